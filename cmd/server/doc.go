// Package main is the entry point for the spyglass session controller.
//
// The controller hosts proxied browsing sessions: each session owns an
// isolated display surface that renders documents fetched through the
// rewrite proxy, and the host UI drives the collection over REST and a
// WebSocket event stream.
//
// Configuration comes from environment variables (12-factor), with CLI flags
// as overrides and sensible defaults for development.
//
// Usage:
//
//	# Production mode
//	./server -port 8200
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown, closing every open session
package main
