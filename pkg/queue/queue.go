// Package queue provides a growable ring-buffer FIFO used for decoded
// pictures and decoded audio.
package queue

import "sync"

const minCapacity = 8

// Option configures a Queue.
type Option[T any] func(*Queue[T])

// WithHighWater sets the length at which the queue reports backpressure.
// Zero disables backpressure.
func WithHighWater[T any](n int) Option[T] {
	return func(q *Queue[T]) {
		if n > 0 {
			q.highWater = n
		}
	}
}

// WithRelease sets the function called for every item discarded by Clear.
// Items handed out by Shift are owned by the caller and are not released.
func WithRelease[T any](fn func(T)) Option[T] {
	return func(q *Queue[T]) {
		q.release = fn
	}
}

// WithCapacity sets the initial capacity. It is rounded up to a power of two.
func WithCapacity[T any](n int) Option[T] {
	return func(q *Queue[T]) {
		q.buf = make([]T, roundPow2(n))
	}
}

// Stats reports queue occupancy.
type Stats struct {
	Len       int
	Cap       int
	HighWater int
	Peak      int
	Pushed    uint64
	Shifted   uint64
	Cleared   uint64
}

// Queue is a FIFO backed by a ring buffer whose capacity doubles when full.
// Push, Shift, Peek and At are O(1) amortized.
//
// A Queue is safe for one producer and one consumer running on different
// goroutines.
type Queue[T any] struct {
	mu        sync.Mutex
	buf       []T
	head      int
	n         int
	highWater int
	release   func(T)

	peak    int
	pushed  uint64
	shifted uint64
	cleared uint64
}

// New creates an empty queue.
func New[T any](opts ...Option[T]) *Queue[T] {
	q := &Queue[T]{}
	for _, opt := range opts {
		opt(q)
	}
	if len(q.buf) == 0 {
		q.buf = make([]T, minCapacity)
	}
	return q
}

// Push appends item at the tail. It reports false when the queue is at or
// above its high-water mark after the push; the item is stored either way.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.n)&(len(q.buf)-1)] = item
	q.n++
	q.pushed++
	if q.n > q.peak {
		q.peak = q.n
	}
	return q.highWater == 0 || q.n < q.highWater
}

// Shift removes and returns the head item.
func (q *Queue[T]) Shift() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.n == 0 {
		return zero, false
	}
	item := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) & (len(q.buf) - 1)
	q.n--
	q.shifted++
	return item, true
}

// Peek returns the head item without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	return q.At(0)
}

// At returns the item at position i counted from the head.
func (q *Queue[T]) At(i int) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if i < 0 || i >= q.n {
		return zero, false
	}
	return q.buf[(q.head+i)&(len(q.buf)-1)], true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Backpressured reports whether the queue holds at least its high-water mark.
func (q *Queue[T]) Backpressured() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highWater > 0 && q.n >= q.highWater
}

// HighWater returns the configured high-water mark.
func (q *Queue[T]) HighWater() int {
	return q.highWater
}

// Clear removes every item, passing each one to the release function.
// The capacity is kept.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	items := make([]T, 0, q.n)
	var zero T
	for i := 0; i < q.n; i++ {
		idx := (q.head + i) & (len(q.buf) - 1)
		items = append(items, q.buf[idx])
		q.buf[idx] = zero
	}
	q.head = 0
	q.n = 0
	q.cleared += uint64(len(items))
	release := q.release
	q.mu.Unlock()

	if release != nil {
		for _, it := range items {
			release(it)
		}
	}
}

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:       q.n,
		Cap:       len(q.buf),
		HighWater: q.highWater,
		Peak:      q.peak,
		Pushed:    q.pushed,
		Shifted:   q.shifted,
		Cleared:   q.cleared,
	}
}

// grow doubles the buffer and unwraps the ring so head is at index 0.
func (q *Queue[T]) grow() {
	next := make([]T, len(q.buf)*2)
	tail := copy(next, q.buf[q.head:])
	copy(next[tail:], q.buf[:q.head])
	q.buf = next
	q.head = 0
}

func roundPow2(n int) int {
	c := minCapacity
	for c < n {
		c <<= 1
	}
	return c
}
