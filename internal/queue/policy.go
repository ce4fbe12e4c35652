package queue

import (
	"fmt"
	"strings"
)

// Policy selects the behaviour of [Queue.Enqueue] when the queue is full.
type Policy int

const (
	// Block makes producers wait until the consumer frees space.
	Block Policy = iota

	// DropOldest evicts the oldest buffered item to admit the new one.
	DropOldest

	// DropNewest discards the incoming item.
	DropNewest
)

// String returns the configuration spelling of the policy.
func (p Policy) String() string {
	switch p {
	case Block:
		return "block"
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses "block", "drop_oldest" or "drop_newest" (case-insensitive,
// "-" accepted in place of "_"). The empty string selects [Block].
func ParsePolicy(s string) (Policy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "", "block":
		return Block, nil
	case "drop_oldest":
		return DropOldest, nil
	case "drop_newest":
		return DropNewest, nil
	default:
		return Block, fmt.Errorf("unknown backpressure policy %q (expected block, drop_oldest or drop_newest)", s)
	}
}
