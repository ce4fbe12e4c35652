package broadcast

import "github.com/jpalmerr/bifrost/internal/telemetry"

// pendingBatch coalesces events by topic. Only the latest payload per topic
// survives; topics keep the position of their first appearance.
type pendingBatch struct {
	index   map[string]int
	entries telemetry.Batch
}

func newPendingBatch() *pendingBatch {
	return &pendingBatch{index: make(map[string]int)}
}

func (p *pendingBatch) put(ev telemetry.Event) {
	entry := telemetry.BatchEntry{
		Topic:     ev.Topic,
		Payload:   ev.Payload,
		Timestamp: ev.ArrivedAt,
	}

	if i, ok := p.index[ev.Topic]; ok {
		p.entries[i] = entry
		return
	}
	p.index[ev.Topic] = len(p.entries)
	p.entries = append(p.entries, entry)
}

func (p *pendingBatch) len() int {
	return len(p.entries)
}

// flush returns the coalesced batch and resets p to empty.
func (p *pendingBatch) flush() telemetry.Batch {
	batch := p.entries
	p.entries = nil
	clear(p.index)
	return batch
}
