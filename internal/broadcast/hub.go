package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jpalmerr/bifrost/internal/telemetry"
)

// DefaultSubscriberBuffer is the per-subscriber channel buffer used when none
// is configured.
const DefaultSubscriberBuffer = 16

// Hub is a [Sink] that fans batches out to subscribed observers.
//
// Subscribers receive batches via buffered channels. Delivery is non-blocking:
// if a subscriber's buffer is full, the batch is dropped for that subscriber
// rather than blocking the broadcaster. A dropped batch is superseded by the
// next window's batch anyway.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan telemetry.Batch]struct{}
	bufferSize  int
	closed      bool
	dropped     atomic.Uint64
}

// NewHub creates a new [Hub]. A bufferSize below 1 selects
// [DefaultSubscriberBuffer].
func NewHub(bufferSize int) *Hub {
	if bufferSize < 1 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Hub{
		subscribers: make(map[chan telemetry.Batch]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a new subscription and returns a channel for receiving
// batches.
//
// Caller must call [Hub.Unsubscribe] when done to prevent resource leaks.
// Subscribing to a closed hub returns an already closed channel.
func (h *Hub) Subscribe() <-chan telemetry.Batch {
	ch := make(chan telemetry.Batch, h.bufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (h *Hub) Unsubscribe(ch <-chan telemetry.Batch) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for subCh := range h.subscribers {
		if subCh == ch {
			delete(h.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Deliver sends batch to every subscriber without blocking.
//
// Returns [ErrNoObservers] when nobody is subscribed, and an error wrapping
// [ErrObserversBehind] when every subscriber was too slow to take the batch.
func (h *Hub) Deliver(_ context.Context, batch telemetry.Batch) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.subscribers) == 0 {
		return ErrNoObservers
	}

	delivered := 0
	for ch := range h.subscribers {
		select {
		case ch <- batch:
			delivered++
		default:
			// subscriber is slow, drop the batch
			h.dropped.Add(1)
		}
	}

	if delivered == 0 {
		return fmt.Errorf("%w (%d observers)", ErrObserversBehind, len(h.subscribers))
	}
	return nil
}

// Observers returns the number of active subscribers.
func (h *Hub) Observers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns how many per-subscriber deliveries were skipped because the
// subscriber's buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close closes every subscriber channel and rejects new subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}
