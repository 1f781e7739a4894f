package av

import (
	"sync"
	"sync/atomic"
)

// Buffer is a reference counted byte buffer shared between packets or
// frames. The last Release returns the storage to a size-classed pool.
type Buffer struct {
	data []byte
	refs atomic.Int32
}

const (
	minPoolClass = 10 // 1 KiB
	maxPoolClass = 26 // 64 MiB
)

var bufferPools [maxPoolClass + 1]sync.Pool

func poolClass(size int) int {
	c := minPoolClass
	for c <= maxPoolClass && 1<<c < size {
		c++
	}
	return c
}

// NewBuffer returns a buffer of size bytes with one reference. The contents
// are zeroed.
func NewBuffer(size int) *Buffer {
	b := &Buffer{}
	b.refs.Store(1)
	c := poolClass(size)
	if c > maxPoolClass {
		b.data = make([]byte, size)
		return b
	}
	if p, ok := bufferPools[c].Get().(*[]byte); ok {
		b.data = (*p)[:size]
		clear(b.data)
		return b
	}
	b.data = make([]byte, size, 1<<c)
	return b
}

// Bytes returns the buffer contents.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the buffer size.
func (b *Buffer) Len() int { return len(b.data) }

// Refs returns the current reference count.
func (b *Buffer) Refs() int { return int(b.refs.Load()) }

// Writable reports whether the caller holds the only reference.
func (b *Buffer) Writable() bool { return b.refs.Load() == 1 }

func (b *Buffer) ref() *Buffer {
	b.refs.Add(1)
	return b
}

func (b *Buffer) release() {
	if b.refs.Add(-1) != 0 {
		return
	}
	data := b.data[:cap(b.data)]
	b.data = nil
	c := poolClass(len(data))
	if c <= maxPoolClass && 1<<c == len(data) {
		bufferPools[c].Put(&data)
	}
}
