package pool

import (
	"sync"
	"sync/atomic"
)

// SlicePool is a LIFO free list.
type SlicePool[T any] struct {
	mu sync.Mutex
	s  []T
}

func NewSlicePoolSize[T any](size int) *SlicePool[T] {
	return &SlicePool[T]{s: make([]T, 0, size)}
}

func (p *SlicePool[T]) Acquire() (v T, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := len(p.s)
	if l == 0 {
		return v, false
	}

	v = p.s[l-1]
	p.s = p.s[:l-1]
	return v, true
}

func (p *SlicePool[T]) Release(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.s = append(p.s, v)
}

func (p *SlicePool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.s)
}

// Buffers hands out byte slices of one capacity. A buffer must not be
// touched after Put.
type Buffers struct {
	size  int
	free  *SlicePool[[]byte]
	inUse atomic.Int64
}

func NewBuffers(size, keep int) *Buffers {
	return &Buffers{size: size, free: NewSlicePoolSize[[]byte](keep)}
}

// Get returns a buffer of length Size.
func (b *Buffers) Get() []byte {
	b.inUse.Add(1)
	if buf, ok := b.free.Acquire(); ok {
		return buf[:b.size]
	}
	return make([]byte, b.size)
}

// Put takes back a buffer from Get. Foreign slices are dropped.
func (b *Buffers) Put(buf []byte) {
	b.inUse.Add(-1)
	if cap(buf) != b.size {
		return
	}
	b.free.Release(buf[:0])
}

func (b *Buffers) Size() int { return b.size }

// InUse counts buffers handed out and not yet returned.
func (b *Buffers) InUse() int64 { return b.inUse.Load() }
