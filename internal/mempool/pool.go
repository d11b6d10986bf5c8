// Package mempool recycles scratch slices used by the foreground and object
// detection hot paths.
package mempool

import "sync"

const step = 1024

// Bools, Ints and Float32s are the shared pools for pixel masks, component
// labels and model input tensors.
var (
	Bools    Pool[bool]
	Ints     Pool[int]
	Float32s Pool[float32]
)

// sizeClass rounds n up to the next multiple of 1024, minimum 1024.
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

// Pool hands out zeroed slices bucketed by size class. The zero value is ready to use.
type Pool[T any] struct {
	classes sync.Map // size class -> *sync.Pool
}

func (p *Pool[T]) class(cls int) *sync.Pool {
	if sp, ok := p.classes.Load(cls); ok {
		return sp.(*sync.Pool)
	}
	sp, _ := p.classes.LoadOrStore(cls, &sync.Pool{
		New: func() any {
			buf := make([]T, cls)
			return &buf
		},
	})
	return sp.(*sync.Pool)
}

// Get returns a zeroed slice of length n. Return it with Put when done.
func (p *Pool[T]) Get(n int) []T {
	if n <= 0 {
		return nil
	}
	cls := sizeClass(n)
	bp := p.class(cls).Get().(*[]T)
	buf := *bp
	if cap(buf) < cls {
		buf = make([]T, cls)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}

// Put recycles buf. Nil and undersized slices are dropped.
func (p *Pool[T]) Put(buf []T) {
	if cap(buf) < step {
		return
	}
	// Bucket by the largest class the capacity fully covers.
	cls := cap(buf) / step * step
	buf = buf[:cap(buf)]
	p.class(cls).Put(&buf)
}
