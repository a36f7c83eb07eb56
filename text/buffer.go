package text

import (
	"github.com/pior/memcache-async/internal/bufpool"
)

// Buffer accumulates received bytes until replies are decoded from them.
//
// Consumed bytes are skipped with a read offset instead of being shifted out;
// the unread tail is moved to the front only when an append would otherwise
// grow the arena.
type Buffer struct {
	pool *bufpool.Pool
	buf  []byte
	off  int
}

// NewBuffer returns an empty buffer whose arena comes from pool.
// A nil pool allocates arenas on demand.
func NewBuffer(pool *bufpool.Pool) *Buffer {
	return &Buffer{pool: pool}
}

// Append copies p to the end of the unread bytes.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}

	if b.buf == nil && b.pool != nil {
		b.buf = b.pool.Get()[:0]
	}

	if b.off > 0 && cap(b.buf)-len(b.buf) < len(p) {
		n := copy(b.buf, b.buf[b.off:])
		b.buf = b.buf[:n]
		b.off = 0
	}

	b.buf = append(b.buf, p...)
}

// Bytes returns the unread bytes. The slice is only valid until the next
// Append, Advance or Reset.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.off:]
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.buf) - b.off
}

// Advance marks the first n unread bytes as consumed.
func (b *Buffer) Advance(n int) {
	if n < 0 || n > b.Len() {
		panic("text: Buffer.Advance out of range")
	}

	b.off += n
	if b.off == len(b.buf) {
		b.buf = b.buf[:0]
		b.off = 0
	}
}

// Reset discards all unread bytes and returns the arena to the pool.
func (b *Buffer) Reset() {
	if b.pool != nil && b.buf != nil {
		b.pool.Put(b.buf)
	}
	b.buf = nil
	b.off = 0
}
