// Package ui renders recognition snapshots as a desktop overlay window
package ui

// UI constants
const (
	windowTitle = "HanLens"

	// Arrow keys move the capture region by this many pixels;
	// PageUp/PageDown grow and shrink it by the same amount
	nudgeStep = 10
)
