// Package ocr wraps the Tesseract engine and turns its hOCR output into
// positioned, confidence-scored words grouped by line.
package ocr

import (
	"image"
	"strings"
)

// Word is one recognized word. The box is in the coordinates of the image
// handed to the engine; positions are approximate and confidence below the
// overlay's threshold flags the word as likely wrong, never as an error.
type Word struct {
	Text       string          `json:"text"`
	Box        image.Rectangle `json:"box"`
	Confidence float64         `json:"confidence"` // 0-100
}

// Merge combines two words into one: concatenated text, union of boxes,
// and the lower of the two confidences.
func (w Word) Merge(next Word) Word {
	return Word{
		Text:       w.Text + next.Text,
		Box:        w.Box.Union(next.Box),
		Confidence: min(w.Confidence, next.Confidence),
	}
}

// Height returns the box height in pixels.
func (w Word) Height() int {
	return w.Box.Dy()
}

// Line groups the words the engine put on one baseline.
type Line struct {
	Box   image.Rectangle `json:"box"`
	Words []Word          `json:"words"`
}

// Result is one recognition pass over a frame.
type Result struct {
	Text  string `json:"text"`
	Lines []Line `json:"lines"`
}

// Empty reports whether the pass produced no usable text.
func (r Result) Empty() bool {
	return strings.TrimSpace(r.Text) == "" && len(r.Lines) == 0
}

// WordCount returns the total number of words across lines.
func (r Result) WordCount() int {
	n := 0
	for _, line := range r.Lines {
		n += len(line.Words)
	}
	return n
}

// Scaled returns a copy with all geometry divided by divisor, mapping boxes
// from the upscaled preprocessed image back to capture coordinates. A
// divisor below 2 returns the result unchanged.
func (r Result) Scaled(divisor int) Result {
	if divisor < 2 {
		return r
	}

	out := Result{Text: r.Text, Lines: make([]Line, len(r.Lines))}
	for i, line := range r.Lines {
		scaled := Line{
			Box:   divideRect(line.Box, divisor),
			Words: make([]Word, len(line.Words)),
		}
		for j, w := range line.Words {
			w.Box = divideRect(w.Box, divisor)
			scaled.Words[j] = w
		}
		out.Lines[i] = scaled
	}
	return out
}

func divideRect(r image.Rectangle, d int) image.Rectangle {
	return image.Rect(r.Min.X/d, r.Min.Y/d, r.Max.X/d, r.Max.Y/d)
}
