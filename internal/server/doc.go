// Package server provides the HTTP surface for Bifrost.
//
// It serves:
//
//   - the embedded dashboard at "/"
//   - JSON endpoints for per-topic history, topic listing and display names
//   - live batch streams over Server-Sent Events ("/api/sse") and WebSocket
//     ("/api/ws")
//   - Prometheus metrics at "/metrics" when a metrics handler is configured
//
// The legacy routes "/get_history" and "/update_name" are kept for older
// dashboards. The server shuts down gracefully when its context is
// cancelled, with a 5-second timeout for in-flight requests.
package server
