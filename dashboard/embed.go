// Package dashboard provides the embedded web UI assets for Bifrost.
//
// The assets are compiled into the binary with Go's embed directive, so a
// single binary serves the dashboard without external files. The server
// package serves them at the root path ("/").
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Dashboard page with inline CSS and JavaScript
//
// index.html contains a {{.Title}} placeholder that the server replaces with
// the configured title.
//
//go:embed assets/*
var Assets embed.FS
