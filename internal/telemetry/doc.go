// Package telemetry defines the data model shared by the Bifrost ingestion
// pipeline.
//
// The main types are:
//
//   - [Value]: a classified sample value, either numeric or text
//   - [Sample]: one classified value plus its arrival timestamp
//   - [Event]: a raw inbound event as it travels through the ingestion queue
//   - [Batch]: the coalesced set of latest per-topic updates emitted once per window
//
// [Classify] converts a raw textual payload into a [Value]. Classification is
// total: anything that is not a finite decimal number is kept as text.
// Spellings such as "inf", "NaN" and "1_0", and values that overflow float64
// like "1e400", are deliberately text so that history never holds a
// non-finite number.
package telemetry
