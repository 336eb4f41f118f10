package shard

import "fmt"

// Buffer is the bounded request/response area shared with the host.
// The host's payload occupies [0, Len()) and is consumed with the read
// cursor. The response is appended after it with the write cursor, and
// no access is ever allowed past the capacity of the backing slice.
type Buffer struct {
	data []byte
	rpos int
	wpos int
}

// NewBuffer wraps data as a buffer whose first n bytes hold the request.
// An n outside [0, len(data)] is reported as ErrTruncatedBuffer.
func NewBuffer(data []byte, n int) (*Buffer, error) {
	if n < 0 || n > len(data) {
		return nil, fmt.Errorf("%w: payload length %d outside capacity %d", ErrTruncatedBuffer, n, len(data))
	}
	return &Buffer{data: data, wpos: n}, nil
}

// Len returns the number of valid bytes, request and appended response.
func (b *Buffer) Len() int {
	return b.wpos
}

// Cap returns the fixed capacity of the buffer.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Remaining returns how many request bytes are left to read.
func (b *Buffer) Remaining() int {
	return b.wpos - b.rpos
}

// ReadByte reads one byte at the read cursor.
func (b *Buffer) ReadByte() (byte, error) {
	if b.rpos >= b.wpos {
		return 0, fmt.Errorf("%w: need 1 byte at offset %d, have %d", ErrTruncatedBuffer, b.rpos, b.wpos)
	}
	c := b.data[b.rpos]
	b.rpos++
	return c, nil
}

// ReadN returns the next n bytes at the read cursor. The returned slice
// aliases the buffer.
func (b *Buffer) ReadN(n int) ([]byte, error) {
	if n < 0 || n > b.Remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncatedBuffer, n, b.rpos, b.wpos)
	}
	out := b.data[b.rpos : b.rpos+n]
	b.rpos += n
	return out, nil
}

// Append writes p at the write cursor and returns the offset it was
// written at. Nothing is written if p does not fit.
func (b *Buffer) Append(p []byte) (int, error) {
	if len(p) > len(b.data)-b.wpos {
		return 0, fmt.Errorf("%w: %d bytes at offset %d exceed capacity %d", ErrBufferOverflow, len(p), b.wpos, len(b.data))
	}
	off := b.wpos
	copy(b.data[off:], p)
	b.wpos += len(p)
	return off, nil
}

// Bytes returns the valid region of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.wpos]
}
