package ui

import "fyne.io/fyne/v2"

// Measurer reports rendered text sizes from the fyne font system, giving
// layout the same metrics the canvas draws with. Construct it after the
// fyne app exists.
type Measurer struct {
	Style fyne.TextStyle
}

func (m Measurer) Measure(text string, scale float64) (float64, float64) {
	size := fyne.MeasureText(text, float32(scale), m.Style)
	return float64(size.Width), float64(size.Height)
}
