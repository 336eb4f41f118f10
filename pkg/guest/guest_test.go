package guest

import (
	"testing"

	"github.com/block/shardwasm/pkg/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = 0x10000

// fakeHost plays the host side of poll_table.
type fakeHost struct {
	payload  []byte
	length   int32 // reported length; -1 means len(payload)
	polls    int
	capacity int
}

func (h *fakeHost) PollTable(buf []byte) int32 {
	h.polls++
	h.capacity = len(buf)
	copy(buf, h.payload)
	if h.length == -1 {
		return int32(len(h.payload))
	}
	return h.length
}

func fixedAddress(buf []byte) uint32 { return testBase }

func newTestModule(t *testing.T, host *fakeHost) *Module {
	t.Helper()
	m, err := New(host, fixedAddress, shard.NewConfig())
	require.NoError(t, err)
	return m
}

// readResult dereferences an outcome the way the host does.
func readResult(m *Module, out shard.Outcome) string {
	off := out.Address - testBase
	return string(m.buf[off : off+uint32(out.Length)])
}

func TestWorkEndToEnd(t *testing.T) {
	host := &fakeHost{
		payload: []byte{0x00, 0x0C, 'u', 'n', 'u', 's', 'e', 'd', ',', 't', 'b', 'l', ',', '5'},
		length:  -1,
	}
	m := newTestModule(t, host)

	out := shard.Unpack(m.Work())
	require.NoError(t, out.Err())
	assert.Equal(t, 1, host.polls)
	assert.Equal(t, shard.DefaultBufferCapacity, host.capacity)
	assert.Equal(t, uint32(testBase+len(host.payload)), out.Address)
	assert.Equal(t, "tbl_2", readResult(m, out))

	// one byte short, the value field is empty.
	host.payload[1] = 0x0B
	out = shard.Unpack(m.Work())
	assert.Equal(t, shard.StatusInvalidColumnValue, out.Status)
	assert.Equal(t, uint32(testBase), out.Address)
	assert.Zero(t, out.Length)
}

func TestWorkRepeatedCalls(t *testing.T) {
	host := &fakeHost{length: -1}
	m := newTestModule(t, host)

	host.payload = []byte("\x00\x0ax,orders,7")
	first := shard.Unpack(m.Work())
	require.NoError(t, first.Err())
	assert.Equal(t, "orders_1", readResult(m, first))

	// identical input, identical output.
	again := shard.Unpack(m.Work())
	assert.Equal(t, first, again)

	// a shorter request overwrites the previous one; stale bytes past the
	// reported length are never read.
	host.payload = []byte("\x00\x05x,a,9")
	short := shard.Unpack(m.Work())
	require.NoError(t, short.Err())
	assert.Equal(t, "a_0", readResult(m, short))
}

func TestWorkFailures(t *testing.T) {
	tests := []struct {
		name string
		host *fakeHost
		want error
	}{
		{"negative length", &fakeHost{length: -5}, shard.ErrTruncatedBuffer},
		{"length past capacity", &fakeHost{length: shard.DefaultBufferCapacity + 1}, shard.ErrTruncatedBuffer},
		{"empty request", &fakeHost{length: 0}, shard.ErrTruncatedBuffer},
		{"missing field", &fakeHost{payload: []byte("\x00\x08x,orders"), length: -1}, shard.ErrMissingField},
		{"bad value", &fakeHost{payload: []byte("\x00\x0cx,orders,300"), length: -1}, shard.ErrInvalidColumnValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModule(t, tt.host)
			out := shard.Unpack(m.Work())
			assert.ErrorIs(t, out.Err(), tt.want)
			assert.Equal(t, uint32(testBase), out.Address)
			assert.Zero(t, out.Length)
		})
	}
}

func TestWorkOverflow(t *testing.T) {
	// fill the buffer so the name has nowhere to go.
	cond := "x,orders,7"
	payload := append([]byte{0x00, byte(len(cond))}, cond...)
	full := make([]byte, shard.DefaultBufferCapacity)
	copy(full, payload)
	host := &fakeHost{payload: full, length: shard.DefaultBufferCapacity - 3}
	m := newTestModule(t, host)

	out := shard.Unpack(m.Work())
	assert.ErrorIs(t, out.Err(), shard.ErrBufferOverflow)
}

func TestConfigure(t *testing.T) {
	host := &fakeHost{payload: []byte("\x00\x0ax,orders,7"), length: -1}
	m := newTestModule(t, host)
	assert.Equal(t, int32(3), m.ShardCount())
	assert.Equal(t, int32(shard.DefaultBufferCapacity), m.Capacity())

	assert.Equal(t, shard.StatusOK, m.Configure(4))
	assert.Equal(t, int32(4), m.ShardCount())
	out := shard.Unpack(m.Work())
	require.NoError(t, out.Err())
	assert.Equal(t, "orders_3", readResult(m, out))

	for _, bad := range []int32{0, -1, 256} {
		assert.Equal(t, shard.StatusInvalidConfig, m.Configure(bad))
		assert.Equal(t, int32(4), m.ShardCount(), "rejected config must not replace the resolver")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&fakeHost{}, fixedAddress, shard.Config{})
	assert.ErrorIs(t, err, shard.ErrInvalidConfig)
}
