package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/bifrost/internal/queue"
	"github.com/jpalmerr/bifrost/internal/store"
	"github.com/jpalmerr/bifrost/internal/telemetry"
)

// DefaultWindow is the coalescing window used when none is configured.
const DefaultWindow = 50 * time.Millisecond

// ErrAlreadyRunning is returned by [Broadcaster.Run] when the loop is already
// active. The broadcaster must be the only consumer of its queue.
var ErrAlreadyRunning = errors.New("broadcaster already running")

// Stats is a point-in-time view of broadcaster counters.
type Stats struct {
	// SamplesRecorded counts events classified and written to history.
	SamplesRecorded uint64

	// BatchesEmitted counts batches handed to the sink.
	BatchesEmitted uint64

	// EntriesEmitted counts batch entries handed to the sink.
	EntriesEmitted uint64

	// DeliveryFailures counts batches the sink reported as undelivered.
	DeliveryFailures uint64
}

// Broadcaster drains the ingestion queue, records history and emits one
// coalesced batch per window.
type Broadcaster struct {
	queue   *queue.Queue[telemetry.Event]
	history store.History
	sink    Sink
	window  time.Duration
	logger  *slog.Logger

	// owned by the Run goroutine
	pending  *pendingBatch
	lastEmit time.Time

	running          atomic.Bool
	samplesRecorded  atomic.Uint64
	batchesEmitted   atomic.Uint64
	entriesEmitted   atomic.Uint64
	deliveryFailures atomic.Uint64
}

// New creates a [Broadcaster].
//
// Parameters:
//   - q: Queue to consume; the broadcaster must be its only consumer
//   - history: Store that receives every drained sample
//   - sink: Destination for coalesced batches
//   - window: Minimum time between two emissions (DefaultWindow if <= 0)
//   - logger: Logger for delivery failures (slog.Default if nil)
func New(q *queue.Queue[telemetry.Event], history store.History, sink Sink, window time.Duration, logger *slog.Logger) *Broadcaster {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		queue:   q,
		history: history,
		sink:    sink,
		window:  window,
		logger:  logger,
		pending: newPendingBatch(),
	}
}

// Window returns the coalescing window.
func (b *Broadcaster) Window() time.Duration {
	return b.window
}

// Stats returns the current counters.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		SamplesRecorded:  b.samplesRecorded.Load(),
		BatchesEmitted:   b.batchesEmitted.Load(),
		EntriesEmitted:   b.entriesEmitted.Load(),
		DeliveryFailures: b.deliveryFailures.Load(),
	}
}

// Run executes the broadcaster loop until ctx is cancelled, then returns nil.
//
// Each iteration drains every buffered event, records it into history and
// coalesces it into the pending batch. When the pending batch is non-empty
// and the window has elapsed since the previous emission, the batch is
// delivered and the window restarts. Between iterations the loop sleeps until
// new events arrive or, while a batch is pending, until the window expires.
//
// Sink errors and panics are logged and counted; they never stop the loop.
func (b *Broadcaster) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer b.running.Store(false)

	b.lastEmit = time.Now()

	timer := time.NewTimer(b.window)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		b.ingest(b.queue.Drain())

		var expired <-chan time.Time
		if b.pending.len() > 0 {
			wait := b.window - time.Since(b.lastEmit)
			if wait <= 0 {
				b.emit(ctx)
				continue
			}
			timer.Reset(wait)
			expired = timer.C
		}

		select {
		case <-ctx.Done():
			return nil
		case <-b.queue.Ready():
		case <-expired:
		}
	}
}

// ingest classifies and records events, then coalesces them for delivery.
func (b *Broadcaster) ingest(events []telemetry.Event) {
	for _, ev := range events {
		b.history.Record(ev.Topic, telemetry.Sample{
			Timestamp: ev.ArrivedAt,
			Value:     telemetry.Classify(ev.Payload),
		})
		b.pending.put(ev)
	}
	b.samplesRecorded.Add(uint64(len(events)))
}

// emit hands the pending batch to the sink and restarts the window.
func (b *Broadcaster) emit(ctx context.Context) {
	batch := b.pending.flush()
	b.lastEmit = time.Now()

	b.batchesEmitted.Add(1)
	b.entriesEmitted.Add(uint64(len(batch)))

	err := b.deliver(ctx, batch)
	switch {
	case err == nil:
		b.logger.Debug("batch emitted", "entries", len(batch))
	case errors.Is(err, ErrNoObservers):
		b.deliveryFailures.Add(1)
		b.logger.Debug("batch not delivered", "entries", len(batch), "reason", err.Error())
	default:
		b.deliveryFailures.Add(1)
		b.logger.Warn("batch delivery failed", "entries", len(batch), "error", err.Error())
	}
}

// deliver calls the sink with panic recovery.
func (b *Broadcaster) deliver(ctx context.Context, batch telemetry.Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			b.logger.Error("sink panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("sink panic (correlation_id: %s)", correlationID)
		}
	}()
	return b.sink.Deliver(ctx, batch)
}
