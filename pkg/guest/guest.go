// Package guest is the WebAssembly side of the sharding plugin.
//
// The host drives it through three exports: do_work resolves one row,
// configure installs the shard count the host has targets for, and
// shard_count reports it back. All input arrives through the imported
// poll_table function, which fills the module's request buffer.
//
// Module holds the logic in plain Go so it can be tested without a WASM
// runtime; exports_wasip1.go binds it to the real import and exports.
package guest

import (
	"math"

	"github.com/block/shardwasm/pkg/shard"
)

// Poller fills buf with a request and returns the number of bytes written.
// A negative or over-capacity count is treated as a truncated request.
type Poller interface {
	PollTable(buf []byte) int32
}

// PollFunc adapts a function to Poller.
type PollFunc func(buf []byte) int32

func (f PollFunc) PollTable(buf []byte) int32 { return f(buf) }

// AddressFunc returns the linear memory address of buf[0].
type AddressFunc func(buf []byte) uint32

// Module owns the request buffer and the active resolver. Calls into a
// Module must be serialised; the host runtime guarantees this for a
// guest instance.
type Module struct {
	resolver  *shard.Resolver
	buf       []byte
	poller    Poller
	addressOf AddressFunc
}

func New(poller Poller, addressOf AddressFunc, config shard.Config) (*Module, error) {
	resolver, err := shard.NewResolver(config)
	if err != nil {
		return nil, err
	}
	return &Module{
		resolver:  resolver,
		buf:       make([]byte, config.BufferCapacity),
		poller:    poller,
		addressOf: addressOf,
	}, nil
}

// Work polls one request, resolves it and returns the packed outcome.
// It never panics on malformed input.
func (m *Module) Work() uint64 {
	base := m.addressOf(m.buf)
	n := m.poller.PollTable(m.buf)
	b, err := shard.NewBuffer(m.buf, int(n))
	if err != nil {
		return shard.Failure(base, err).Pack()
	}
	res, err := m.resolver.Do(b)
	if err != nil {
		return shard.Failure(base, err).Pack()
	}
	return shard.Success(base, res).Pack()
}

// Configure replaces the shard count, keeping the rest of the config.
// The previous resolver stays active if the new count is invalid.
func (m *Module) Configure(shardCount int32) shard.Status {
	if shardCount <= 0 || shardCount > math.MaxUint8 {
		return shard.StatusInvalidConfig
	}
	config := m.resolver.Config()
	config.ShardCount = uint8(shardCount)
	resolver, err := shard.NewResolver(config)
	if err != nil {
		return shard.StatusOf(err)
	}
	m.resolver = resolver
	return shard.StatusOK
}

func (m *Module) ShardCount() int32 {
	return int32(m.resolver.Config().ShardCount)
}

// Capacity is the size of the request buffer handed to poll_table.
func (m *Module) Capacity() int32 {
	return int32(len(m.buf))
}
