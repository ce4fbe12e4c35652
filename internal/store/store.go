package store

import "github.com/jpalmerr/bifrost/internal/telemetry"

// DefaultCapacity is the number of samples kept per topic when no capacity
// is configured.
const DefaultCapacity = 50

// History defines the interface for recording and reading per-topic samples.
//
// History implementations must be safe for concurrent access.
type History interface {
	// Record appends a sample to the topic's history, evicting the oldest
	// sample when the history is at capacity.
	Record(topic string, sample telemetry.Sample)

	// Read returns a snapshot of the topic's history, oldest first.
	// Unknown topics yield an empty slice, never an error.
	Read(topic string) []telemetry.Sample

	// Topics returns every topic that has at least one sample, sorted.
	Topics() []string

	// Len returns the number of samples currently held for the topic.
	Len(topic string) int
}
