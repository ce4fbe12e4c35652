// Package queue provides the bounded FIFO hand-off buffer between inbound
// event sources and the Bifrost broadcaster loop.
//
// Producers call [Queue.Enqueue]; the single consumer waits on
// [Queue.Ready] and takes everything buffered with [Queue.Drain]. What happens
// when a producer meets a full queue is decided by the [Policy] chosen at
// construction:
//
//   - [Block]: the producer waits for space (or for its context to end)
//   - [DropOldest]: the oldest buffered item is discarded to make room
//   - [DropNewest]: the incoming item is discarded
//
// Drops are never silent: they are counted in [Stats] and reported to an
// optional drop callback.
package queue
