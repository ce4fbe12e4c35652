package telemetry

import (
	"encoding/json"
	"time"
)

// Event is a raw inbound event waiting in the ingestion queue.
type Event struct {
	// Topic is the hierarchical topic the event was published under.
	Topic string

	// Payload is the raw payload decoded to text.
	Payload string

	// ArrivedAt is when the event reached Bifrost.
	ArrivedAt time.Time
}

// Sample is one classified value plus its arrival timestamp.
//
// Samples are immutable once created. They encode to JSON as a two element
// array [unix_seconds, value], matching the history wire format consumed by
// the dashboard.
type Sample struct {
	Timestamp time.Time
	Value     Value
}

// MarshalJSON implements json.Marshaler.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{UnixSeconds(s.Timestamp), s.Value})
}

// BatchEntry is the most recent update observed for one topic during a window.
type BatchEntry struct {
	Topic     string
	Payload   string
	Timestamp time.Time
}

// MarshalJSON implements json.Marshaler.
func (e BatchEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Topic     string  `json:"topic"`
		Payload   string  `json:"payload"`
		Timestamp float64 `json:"timestamp"`
	}{e.Topic, e.Payload, UnixSeconds(e.Timestamp)})
}

// Batch is the ordered set of coalesced updates emitted for one window.
// Entries appear in the order their topic was first seen during the window.
type Batch []BatchEntry

// Topics returns the topics in the batch, in batch order.
func (b Batch) Topics() []string {
	topics := make([]string, len(b))
	for i, e := range b {
		topics[i] = e.Topic
	}
	return topics
}

// UnixSeconds converts t to fractional seconds since the Unix epoch.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
