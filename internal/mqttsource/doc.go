// Package mqttsource feeds MQTT publications into the ingestion pipeline.
//
// A [Source] connects to a single broker, subscribes to a set of topic
// filters and hands every received PUBLISH to a [Handler] stamped with its
// arrival time. Lost connections are re-established with capped exponential
// backoff until the context passed to [Source.Run] is cancelled.
package mqttsource
