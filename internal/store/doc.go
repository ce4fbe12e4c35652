// Package store provides the per-topic bounded sample history for Bifrost.
//
// This package is internal to Bifrost. It keeps the most recent samples of
// every topic in a fixed-capacity ring, evicting the oldest sample once a
// topic's history is full.
//
// The main components are:
//
//   - [History]: Interface defining record and snapshot-read operations
//   - [MemoryStore]: In-memory implementation of History
//
// The store is designed for a single writer (the broadcaster loop) and any
// number of concurrent readers. Readers always receive a copy, so they never
// observe a partially appended or partially evicted history.
package store
