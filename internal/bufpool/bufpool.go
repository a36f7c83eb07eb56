package bufpool

import (
	"sync"
)

// Pool recycles byte slices of a fixed minimum capacity.
type Pool struct {
	pool      sync.Pool
	size      int
	maxRetain int
}

// New returns a pool handing out slices of length size. Slices that grew
// beyond maxRetain bytes are dropped on Put instead of being recycled.
func New(size, maxRetain int) *Pool {
	if maxRetain < size {
		maxRetain = size
	}
	p := &Pool{size: size, maxRetain: maxRetain}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Get returns a slice of length Size.
func (p *Pool) Get() []byte {
	b := *(p.pool.Get().(*[]byte))
	if cap(b) < p.size {
		return make([]byte, p.size)
	}
	return b[:p.size]
}

// Put returns b to the pool.
func (p *Pool) Put(b []byte) {
	if b == nil || cap(b) > p.maxRetain || cap(b) < p.size {
		return
	}
	b = b[:0]
	p.pool.Put(&b)
}

// Size is the length of slices returned by Get.
func (p *Pool) Size() int {
	return p.size
}
