// Package pipeline runs the capture-and-render loop: grab the configured
// screen region, recognize it, look the words up, and publish a snapshot
// for the overlay and the feed server.
package pipeline

// Pipeline configuration constants
const (
	// Buffer size of each subscriber's snapshot channel
	EventBuffer = 16

	// Completed recognitions kept for the history endpoint
	HistoryMaxEntries = 50

	// Frames whose perceptual hash is within this Hamming distance of the
	// last recognized frame skip OCR
	MaxHashDistance = 5
)
