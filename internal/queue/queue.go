// Package queue holds the keyed FIFO used for work that has to be retried
// later, such as fundings whose confirmation could not be completed.
package queue

import "sync"

// Queue is a thread-safe FIFO that holds at most one item per key.
type Queue[K comparable, T any] struct {
	mu    sync.Mutex
	key   func(T) K
	order []K
	items map[K]T
}

// New returns an empty queue that identifies items by key.
func New[K comparable, T any](key func(T) K) *Queue[K, T] {
	return &Queue[K, T]{key: key, items: make(map[K]T)}
}

// Add appends item unless one with the same key is queued. It reports
// whether item was added.
func (q *Queue[K, T]) Add(item T) bool {
	k := q.key(item)
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.items[k]; ok {
		return false
	}
	q.items[k] = item
	q.order = append(q.order, k)
	return true
}

// Has reports whether an item with key k is queued.
func (q *Queue[K, T]) Has(k K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.items[k]
	return ok
}

// Pop removes the oldest item.
func (q *Queue[K, T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.order) == 0 {
		return zero, false
	}
	k := q.order[0]
	q.order = q.order[1:]
	item := q.items[k]
	delete(q.items, k)
	return item, true
}

// Drain removes and returns every item in insertion order.
func (q *Queue[K, T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, len(q.order))
	for _, k := range q.order {
		out = append(out, q.items[k])
	}
	q.order = nil
	clear(q.items)
	return out
}

// Len returns the number of queued items.
func (q *Queue[K, T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
