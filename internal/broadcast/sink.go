package broadcast

import (
	"context"
	"errors"

	"github.com/jpalmerr/bifrost/internal/telemetry"
)

// ErrNoObservers is returned by a [Sink] when nobody is connected to receive
// a batch.
var ErrNoObservers = errors.New("no observers connected")

// ErrObserversBehind is returned by a [Sink] when observers are connected but
// none of them could accept the batch.
var ErrObserversBehind = errors.New("all observers are behind")

// Sink receives coalesced batches from the [Broadcaster].
//
// Deliver is called from the broadcaster goroutine and must return quickly.
// The batch must be treated as read-only.
type Sink interface {
	Deliver(ctx context.Context, batch telemetry.Batch) error
}

// SinkFunc adapts an ordinary function to the [Sink] interface.
type SinkFunc func(ctx context.Context, batch telemetry.Batch) error

// Deliver calls f(ctx, batch).
func (f SinkFunc) Deliver(ctx context.Context, batch telemetry.Batch) error {
	return f(ctx, batch)
}
