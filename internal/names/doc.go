// Package names keeps user-assigned display names for topics.
//
// Names are held in memory and written through to a JSON object file
// (topic → name) on every change, so they survive restarts.
package names
