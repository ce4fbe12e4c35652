package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by [Queue.Enqueue] once the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Stats is a point-in-time view of queue counters.
type Stats struct {
	// Enqueued counts items admitted into the queue.
	Enqueued uint64

	// Dropped counts items discarded by a drop policy.
	Dropped uint64

	// Len is the number of items currently buffered.
	Len int

	// Capacity is the fixed maximum number of buffered items.
	Capacity int
}

// Option configures a [Queue].
type Option[T any] func(*Queue[T])

// WithDropCallback registers fn to be called, outside the queue lock, with
// every item discarded by a drop policy.
func WithDropCallback[T any](fn func(T)) Option[T] {
	return func(q *Queue[T]) {
		q.onDrop = fn
	}
}

// Queue is a bounded, ordered, multi-producer single-consumer buffer.
//
// Items are stored in a fixed ring allocated at construction. All methods are
// safe for concurrent use.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int // index of the oldest item
	size     int
	policy   Policy
	closed   bool
	space    chan struct{} // closed and replaced whenever items leave the queue
	ready    chan struct{} // capacity 1, signalled after every enqueue
	done     chan struct{}
	onDrop   func(T)
	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a [Queue] holding at most capacity items. A capacity below 1
// is raised to 1.
func New[T any](capacity int, policy Policy, opts ...Option[T]) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}

	q := &Queue[T]{
		items:  make([]T, capacity),
		policy: policy,
		space:  make(chan struct{}),
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Enqueue appends item to the queue.
//
// When the queue is full the configured [Policy] applies. Under [Block],
// Enqueue waits until space frees up and returns ctx.Err() if ctx ends first.
// Returns [ErrClosed] if the queue is closed before the item is admitted.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}

		if q.size < len(q.items) {
			q.push(item)
			q.mu.Unlock()
			q.signal()
			return nil
		}

		switch q.policy {
		case DropNewest:
			q.mu.Unlock()
			q.drop(item)
			return nil

		case DropOldest:
			oldest := q.pop()
			q.push(item)
			q.mu.Unlock()
			q.drop(oldest)
			q.signal()
			return nil
		}

		space := q.space
		q.mu.Unlock()

		select {
		case <-space:
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return ErrClosed
		}
	}
}

// Drain removes and returns every buffered item, oldest first. It never
// blocks and returns nil when the queue is empty.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nil
	}

	out := make([]T, q.size)
	for i := range out {
		out[i] = q.pop()
	}
	q.head = 0

	// wake every blocked producer
	close(q.space)
	q.space = make(chan struct{})

	return out
}

// Ready returns a channel that receives a value after items are enqueued.
// Signals coalesce: one receive may stand for many enqueues, so the consumer
// must call [Queue.Drain] after each wake-up.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.items)
}

// Policy returns the overflow policy the queue was built with.
func (q *Queue[T]) Policy() Policy {
	return q.policy
}

// Stats returns the current counters.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Enqueued: q.enqueued.Load(),
		Dropped:  q.dropped.Load(),
		Len:      q.Len(),
		Capacity: len(q.items),
	}
}

// Close rejects further enqueues and releases blocked producers with
// [ErrClosed]. Buffered items remain available to [Queue.Drain]. Safe to
// call multiple times.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

// push must be called with q.mu held and q.size < len(q.items).
func (q *Queue[T]) push(item T) {
	q.items[(q.head+q.size)%len(q.items)] = item
	q.size++
	q.enqueued.Add(1)
}

// pop must be called with q.mu held and q.size > 0.
func (q *Queue[T]) pop() T {
	var zero T
	item := q.items[q.head]
	q.items[q.head] = zero // release for GC
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return item
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) drop(item T) {
	q.dropped.Add(1)
	if q.onDrop != nil {
		q.onDrop(item)
	}
}
