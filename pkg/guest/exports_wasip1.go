//go:build wasip1

package guest

import (
	"unsafe"

	"github.com/block/shardwasm/pkg/shard"
)

//go:wasmimport sharding poll_table
func pollTable(addr int64, capacity int32) int32

func address(buf []byte) uint32 {
	return uint32(uintptr(unsafe.Pointer(&buf[0])))
}

// instance is allocated once; its buffer is never moved by the Go GC, so the
// address reported in an outcome stays valid until the next do_work call.
var instance = mustNew()

func mustNew() *Module {
	m, err := New(PollFunc(func(buf []byte) int32 {
		return pollTable(int64(address(buf)), int32(len(buf)))
	}), address, shard.NewConfig())
	if err != nil {
		panic(err)
	}
	return m
}

//go:wasmexport do_work
func doWork() int64 {
	return int64(instance.Work())
}

//go:wasmexport configure
func configure(shardCount int32) int32 {
	return int32(instance.Configure(shardCount))
}

//go:wasmexport shard_count
func shardCount() int32 {
	return instance.ShardCount()
}
