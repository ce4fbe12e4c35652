// Package broadcast implements the Bifrost batch broadcaster and the observer
// hub that fans batches out to connected clients.
//
// The [Broadcaster] is the single processing loop of the ingestion pipeline.
// It is the only consumer of the ingestion queue and the only writer of the
// history store. Every event it drains is classified and recorded, then
// coalesced into a pending batch that keeps only the latest payload per
// topic. At most once per window the pending batch is handed to a [Sink].
//
// The [Hub] is the production Sink. It delivers each batch to every
// subscriber with a non-blocking send, so a slow observer misses batches
// instead of stalling the loop.
package broadcast
