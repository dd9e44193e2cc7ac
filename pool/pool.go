// Package pool provides a generic object pool for libav packets and frames.
package pool

import (
	"runtime"
	"sync"

	"go.uber.org/atomic"
)

var ReuseMemory = true

// Pool recycles *T values. Objects never returned with Put are released
// by a finalizer.
type Pool[T any] struct {
	pool        sync.Pool
	resetFunc   func(*T)
	outstanding atomic.Int64
}

func NewPool[T any](
	allocFunc func() *T,
	resetFunc func(*T),
	freeFunc func(*T),
) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				v := allocFunc()
				runtime.SetFinalizer(v, freeFunc)
				return v
			},
		},
		resetFunc: resetFunc,
	}
}

func (p *Pool[T]) Get() *T {
	p.outstanding.Inc()
	return p.pool.Get().(*T)
}

func (p *Pool[T]) Put(items ...*T) {
	for _, item := range items {
		if item == nil {
			continue
		}
		p.outstanding.Dec()
		if !ReuseMemory {
			continue
		}
		p.resetFunc(item)
		p.pool.Put(item)
	}
}

// Outstanding returns how many objects were taken with Get and not yet
// returned with Put.
func (p *Pool[T]) Outstanding() int64 {
	return p.outstanding.Load()
}
