package queue

import "sync"

// Queue is a FIFO safe for concurrent producers. A single consumer drains it
// in batches, so items pushed from I/O goroutines are handled on the
// consumer's goroutine in arrival order.
type Queue[T any] struct {
	items []T
	mu    sync.Mutex
}

// New creates an empty queue
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends an item
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// Drain removes and returns every queued item, oldest first
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// Len returns the number of items in the queue
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
