// Object pools for hot-path allocations, built on sync.Pool.
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Pool is a generic object pool.
type Pool[T any] struct {
	pool    sync.Pool
	newFunc func() T
	reset   func(*T)

	// Metrics
	gets   atomic.Int64
	puts   atomic.Int64
	news   atomic.Int64
	resets atomic.Int64
}

// NewPool creates a new object pool.
func NewPool[T any](newFunc func() T, resetFunc func(*T)) *Pool[T] {
	p := &Pool[T]{
		newFunc: newFunc,
		reset:   resetFunc,
	}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// Get retrieves an object from the pool.
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool.
func (p *Pool[T]) Put(obj T) {
	p.puts.Add(1)
	if p.reset != nil {
		p.resets.Add(1)
		p.reset(&obj)
	}
	p.pool.Put(obj)
}

// Stats returns pool statistics.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Gets:   p.gets.Load(),
		Puts:   p.puts.Load(),
		News:   p.news.Load(),
		Resets: p.resets.Load(),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Gets   int64 `json:"gets"`
	Puts   int64 `json:"puts"`
	News   int64 `json:"news"`
	Resets int64 `json:"resets"`
}

// HitRate returns the cache hit rate.
func (s PoolStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

// Pre-configured pools for common types

// ByteBufferPool provides pooled byte buffers.
var ByteBufferPool = NewPool(
	func() *bytes.Buffer {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
	func(b **bytes.Buffer) {
		(*b).Reset()
	},
)

// SlicePool provides pooled slices.
type SlicePool[T any] struct {
	pool     sync.Pool
	initSize int
}

// NewSlicePool creates a new slice pool.
func NewSlicePool[T any](initSize int) *SlicePool[T] {
	return &SlicePool[T]{
		initSize: initSize,
		pool: sync.Pool{
			New: func() any {
				return make([]T, 0, initSize)
			},
		},
	}
}

// Get retrieves a slice from the pool.
func (p *SlicePool[T]) Get() []T {
	return p.pool.Get().([]T)
}

// Put returns a slice to the pool.
func (p *SlicePool[T]) Put(s []T) {
	s = s[:0] // Reset length but keep capacity
	p.pool.Put(s)
}

// MapPool provides pooled maps.
type MapPool[K comparable, V any] struct {
	pool     sync.Pool
	initSize int
}

// NewMapPool creates a new map pool.
func NewMapPool[K comparable, V any](initSize int) *MapPool[K, V] {
	return &MapPool[K, V]{
		initSize: initSize,
		pool: sync.Pool{
			New: func() any {
				return make(map[K]V, initSize)
			},
		},
	}
}

// Get retrieves a map from the pool.
func (p *MapPool[K, V]) Get() map[K]V {
	return p.pool.Get().(map[K]V)
}

// Put returns a map to the pool.
func (p *MapPool[K, V]) Put(m map[K]V) {
	clear(m)
	p.pool.Put(m)
}

// TaskEnvelopePool provides pooled envelopes for scheduler work items,
// avoiding an allocation on every claim/dispatch cycle.
type TaskEnvelopePool struct {
	pool sync.Pool
}

// TaskEnvelope is a poolable container carrying a claimed task id and its
// scheduling metadata through the work loop.
type TaskEnvelope struct {
	TaskID   string
	AgentID  string
	Attempt  int
	Metadata map[string]any
}

// NewTaskEnvelopePool creates a new envelope pool.
func NewTaskEnvelopePool() *TaskEnvelopePool {
	return &TaskEnvelopePool{
		pool: sync.Pool{
			New: func() any {
				return &TaskEnvelope{
					Metadata: make(map[string]any, 4),
				}
			},
		},
	}
}

// Get retrieves an envelope from the pool.
func (p *TaskEnvelopePool) Get() *TaskEnvelope {
	return p.pool.Get().(*TaskEnvelope)
}

// Put returns an envelope to the pool.
func (p *TaskEnvelopePool) Put(e *TaskEnvelope) {
	e.TaskID = ""
	e.AgentID = ""
	e.Attempt = 0
	clear(e.Metadata)
	p.pool.Put(e)
}

// Global pools for common use
var (
	GlobalTaskEnvelopePool = NewTaskEnvelopePool()
	GlobalStringSlice      = NewSlicePool[string](16)
	GlobalAnyMap           = NewMapPool[string, any](8)
)
