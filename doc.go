// Package bifrost provides an embeddable real-time telemetry dashboard.
//
// Bifrost ingests a continuous stream of events published under arbitrary
// topic names, keeps a bounded recent history per topic, and pushes updates
// to observers in near real time. Bursts are coalesced: observers receive at
// most one update per topic per window, while history records every event.
//
// # Quick Start
//
// Subscribe to an MQTT broker and serve the dashboard with graceful shutdown:
//
//	b, _ := bifrost.New(bifrost.WithBroker(bifrost.BrokerConfig{
//	    URL: "tcp://localhost:1883",
//	}))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	b.Start(ctx) // blocks until context is cancelled
//
// # Sources
//
// Events reach Bifrost in three ways, all feeding the same bounded queue:
//
//   - [Bifrost.Ingest]: push events directly from your own code
//   - [WithBroker]: subscribe to MQTT topic filters (default "#")
//   - [WithPollTarget]: poll HTTP endpoints and publish a value per response
//
// Poll targets use a [PayloadExtractor] to turn a response into a payload:
//
//   - [BodyExtractor]: the trimmed body of 2xx responses
//   - [JSONFieldExtractor]: a JSON field using dot notation
//   - [RegexExtractor]: the first capture group of a regex
//   - [StatusCodeExtractor]: the HTTP status code
//   - [FirstMatch]: the first extractor that succeeds
//   - [DefaultExtractor]: JSON field "value", then the body
//
// # Values and History
//
// Each payload is classified as numeric when the whole trimmed text is a
// finite decimal number, and as text otherwise. Every topic keeps the last
// [WithHistoryCapacity] samples, available via [Bifrost.History] and the
// /api/history endpoint.
//
// # Backpressure
//
// When the queue is full, [Block] (the default) makes sources wait, while
// [DropOldest] and [DropNewest] discard events and count them. Delivery to
// observers is lossy by design; history is not.
//
// # Architecture
//
// Bifrost consists of several internal packages (under internal/):
//
//   - internal/telemetry: Events, samples, batches and value classification
//   - internal/queue: Bounded ingestion queue with backpressure policies
//   - internal/store: Per-topic bounded history
//   - internal/broadcast: Windowed batch broadcaster and observer hub
//   - internal/mqttsource: MQTT subscriber with reconnect
//   - internal/poller: Concurrent HTTP polling with worker pool
//   - internal/names: Persisted topic display names
//   - internal/metrics: Prometheus collectors
//   - internal/server: HTTP server with REST API, SSE and WebSocket streams
//   - dashboard: Embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package bifrost
