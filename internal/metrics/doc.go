// Package metrics exposes pipeline counters in the Prometheus exposition
// format.
//
// Metrics are read lazily from the components that own them at scrape time;
// nothing on the hot path touches Prometheus types.
package metrics
