// Package queue holds the write buffers between the recording workers and
// the database flush loop.
package queue

import "sync"

// Queue is a mutex-guarded FIFO. With a limit set, pushing past it evicts
// the oldest items and counts them as dropped.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	dropped uint64
}

// New returns an unbounded queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// NewBounded returns a queue holding at most limit items; limit <= 0 is
// unbounded.
func NewBounded[T any](limit int) *Queue[T] {
	return &Queue[T]{limit: max(limit, 0)}
}

// Push appends items at the back.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.trim()
	q.mu.Unlock()
}

// Requeue puts items back at the front, ahead of anything pushed since they
// were drained. The bound still applies.
func (q *Queue[T]) Requeue(items []T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	merged := make([]T, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	q.items = append(merged, q.items...)
	q.trim()
	q.mu.Unlock()
}

func (q *Queue[T]) trim() {
	if q.limit == 0 || len(q.items) <= q.limit {
		return
	}
	over := len(q.items) - q.limit
	q.dropped += uint64(over)
	clear(q.items[:over])
	q.items = q.items[over:]
}

// Drain removes and returns everything queued. The result is nil when the
// queue is empty.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped reports how many items the bound has evicted.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
