// Package poller turns periodically fetched HTTP resources into telemetry
// readings.
//
// A [Scheduler] polls each [Target] on its own interval through a bounded
// worker pool and emits one [Reading] per fetch. Each target names the topic
// its readings are published under and an [Extractor] that reduces the HTTP
// response to a payload string.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with timeout and size limits
//   - [Scheduler]: Periodic polling of targets with a worker pool
//   - [Reading]: Outcome of a single fetch
//   - [Target]: Configuration for one polled resource
package poller
