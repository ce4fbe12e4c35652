package store

import (
	"sort"
	"sync"

	"github.com/jpalmerr/bifrost/internal/telemetry"
)

// MemoryStore is an in-memory implementation of [History].
//
// Every topic owns a ring of fixed capacity allocated lazily on its first
// sample. Topic histories are never removed; the set of topics is expected to
// be small and long-lived.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	topics   map[string]*ring
}

// NewMemoryStore creates a new in-memory [History] holding up to capacity
// samples per topic. A capacity below 1 selects [DefaultCapacity].
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		topics:   make(map[string]*ring),
	}
}

// Capacity returns the per-topic capacity.
func (m *MemoryStore) Capacity() int {
	return m.capacity
}

// Record appends sample to the history of topic.
func (m *MemoryStore) Record(topic string, sample telemetry.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.topics[topic]
	if !ok {
		r = &ring{samples: make([]telemetry.Sample, m.capacity)}
		m.topics[topic] = r
	}
	r.append(sample)
}

// Read returns a copy of the history of topic, oldest first.
//
// The returned slice is never nil; it is empty for unknown topics.
// Modifying it does not affect the store.
func (m *MemoryStore) Read(topic string) []telemetry.Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.topics[topic]
	if !ok {
		return []telemetry.Sample{}
	}
	return r.snapshot()
}

// Topics returns the known topics in lexical order.
func (m *MemoryStore) Topics() []string {
	m.mu.RLock()
	topics := make([]string, 0, len(m.topics))
	for topic := range m.topics {
		topics = append(topics, topic)
	}
	m.mu.RUnlock()

	sort.Strings(topics)
	return topics
}

// Len returns the number of samples held for topic.
func (m *MemoryStore) Len(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.topics[topic]; ok {
		return r.size
	}
	return 0
}

// ring is a fixed-capacity circular buffer of samples.
type ring struct {
	samples []telemetry.Sample
	head    int // index of the oldest sample
	size    int
}

func (r *ring) append(s telemetry.Sample) {
	capacity := len(r.samples)
	if r.size < capacity {
		r.samples[(r.head+r.size)%capacity] = s
		r.size++
		return
	}
	// full: overwrite the oldest and advance
	r.samples[r.head] = s
	r.head = (r.head + 1) % capacity
}

func (r *ring) snapshot() []telemetry.Sample {
	out := make([]telemetry.Sample, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.samples[(r.head+i)%len(r.samples)]
	}
	return out
}
