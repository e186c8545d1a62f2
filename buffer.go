package wordwire

import (
	"fmt"
	"io"
)

// defaultBufferCapacity is the initial receive buffer size.
const defaultBufferCapacity = 512

// Buffer accumulates bytes read from a stream until they can be parsed into
// frames. The first Len bytes of the backing storage are valid; the rest is
// headroom for the next read. A Buffer is not safe for concurrent use.
type Buffer struct {
	buf    []byte
	filled int
}

// NewBuffer returns an empty buffer with the given initial capacity.
// A non-positive size selects the default.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = defaultBufferCapacity
	}
	return &Buffer{buf: make([]byte, size)}
}

// Len returns the number of valid bytes.
func (b *Buffer) Len() int {
	return b.filled
}

// Cap returns the allocated size.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Bytes returns the valid region. The slice aliases the buffer and is only
// valid until the next Append, Fill, or Compact.
func (b *Buffer) Bytes() []byte {
	return b.buf[:b.filled]
}

// Append copies p after the valid region, growing the buffer first if p does
// not fit in the remaining headroom.
func (b *Buffer) Append(p []byte) {
	b.reserve(len(p))
	b.filled += copy(b.buf[b.filled:], p)
}

// Fill makes room for at least atLeast more bytes and fills as much of the
// headroom as a single call to r.Read returns, so the caller can look for
// complete frames after every read.
func (b *Buffer) Fill(r io.Reader, atLeast int) (int, error) {
	if atLeast <= 0 {
		atLeast = 1
	}
	b.reserve(atLeast)
	n, err := r.Read(b.buf[b.filled:])
	if n < 0 || n > len(b.buf)-b.filled {
		return 0, io.ErrShortBuffer
	}
	b.filled += n
	return n, err
}

// Compact discards the first n valid bytes and moves the rest to offset 0.
// The cost is proportional to the bytes kept, not to the capacity.
func (b *Buffer) Compact(n int) {
	if n < 0 || n > b.filled {
		panic(fmt.Sprintf("wordwire: compact %d of %d buffered bytes", n, b.filled))
	}
	if n == 0 {
		return
	}
	b.filled = copy(b.buf, b.buf[n:b.filled])
}

// Reset drops all buffered bytes and keeps the storage.
func (b *Buffer) Reset() {
	b.filled = 0
}

// reserve ensures at least need bytes of headroom. Capacity doubles until
// it fits; buffered bytes are preserved.
func (b *Buffer) reserve(need int) {
	if len(b.buf)-b.filled >= need {
		return
	}

	size := len(b.buf)
	if size == 0 {
		size = defaultBufferCapacity
	}
	for size-b.filled < need {
		size *= 2
	}

	grown := make([]byte, size)
	copy(grown, b.buf[:b.filled])
	b.buf = grown
}
