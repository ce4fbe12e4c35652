package bifrost

import (
	"github.com/jpalmerr/bifrost/internal/poller"
	"github.com/jpalmerr/bifrost/internal/queue"
	"github.com/jpalmerr/bifrost/internal/telemetry"
)

// Batch is the ordered set of coalesced updates emitted once per window.
type Batch = telemetry.Batch

// BatchEntry is the latest update for one topic within a [Batch].
type BatchEntry = telemetry.BatchEntry

// Sample is one classified value recorded in a topic's history.
type Sample = telemetry.Sample

// Value is a classified payload: numeric or text.
type Value = telemetry.Value

// Backpressure selects what [Bifrost.Ingest] does when the ingestion queue
// is full.
type Backpressure = queue.Policy

const (
	// Block makes Ingest wait until the broadcaster frees space. This is the
	// default: no event is lost, but a saturated pipeline slows its sources.
	Block Backpressure = queue.Block

	// DropOldest evicts the oldest queued event to admit the new one.
	DropOldest Backpressure = queue.DropOldest

	// DropNewest discards the incoming event.
	DropNewest Backpressure = queue.DropNewest
)

// ParseBackpressure parses "block", "drop_oldest" or "drop_newest".
func ParseBackpressure(s string) (Backpressure, error) {
	return queue.ParsePolicy(s)
}

// PayloadExtractor converts an HTTP response from a polled target into the
// payload published under the target's topic.
//
// Returning an error publishes nothing for that poll; return [ErrNoPayload]
// when the response simply carries no value.
type PayloadExtractor func(body []byte, statusCode int) (string, error)

// ErrNoPayload is returned by extractors that found nothing to publish.
var ErrNoPayload = poller.ErrNoPayload

// Stats is a point-in-time view of the pipeline counters.
type Stats struct {
	// QueueLength is the number of events waiting to be processed.
	QueueLength int

	// QueueCapacity is the bound on QueueLength.
	QueueCapacity int

	// Enqueued counts events accepted by Ingest.
	Enqueued uint64

	// Dropped counts events discarded under a drop policy.
	Dropped uint64

	// SamplesRecorded counts events written to history.
	SamplesRecorded uint64

	// BatchesEmitted counts batches delivered to observers.
	BatchesEmitted uint64

	// DeliveryFailures counts batches that reached no observer.
	DeliveryFailures uint64

	// Observers is the number of connected stream subscribers.
	Observers int

	// ObserverDrops counts batches skipped for observers that fell behind.
	ObserverDrops uint64

	// MQTTConnected reports whether the MQTT source holds a broker session.
	MQTTConnected bool

	// MQTTReceived counts messages received from the broker.
	MQTTReceived uint64

	// Topics is the number of topics with history.
	Topics int
}
