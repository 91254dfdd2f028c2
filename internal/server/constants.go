// Package server exposes the recognition feed over HTTP and WebSocket
package server

import "time"

// Server configuration constants
const (
	// History entries returned when the request gives no limit
	DefaultHistoryLimit = 20

	// Graceful shutdown window for the HTTP listener
	ShutdownTimeout = 5 * time.Second
)
