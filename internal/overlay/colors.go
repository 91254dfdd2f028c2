package overlay

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	apperrors "github.com/hanlens/hanlens/internal/errors"
)

// LowConfidenceThreshold is the recognition confidence below which a token
// is painted in the low-confidence color so misreads stand out.
const LowConfidenceThreshold = 90.0

// Palette maps token state to render colors.
type Palette struct {
	Text          color.Color
	LowConfidence color.Color
	Highlight     color.Color
	Panel         color.Color
}

// NewPalette parses hex color strings into a palette. panelOpacity in
// [0, 1] sets the alpha of the line background.
func NewPalette(text, lowConfidence, highlight, panel string, panelOpacity float64) (Palette, error) {
	var p Palette
	var err error

	if p.Text, err = parseHex(text); err != nil {
		return Palette{}, err
	}
	if p.LowConfidence, err = parseHex(lowConfidence); err != nil {
		return Palette{}, err
	}
	if p.Highlight, err = parseHex(highlight); err != nil {
		return Palette{}, err
	}

	base, err := colorful.Hex(panel)
	if err != nil {
		return Palette{}, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "invalid panel color").
			WithMetadata("value", panel)
	}
	if panelOpacity < 0 {
		panelOpacity = 0
	}
	if panelOpacity > 1 {
		panelOpacity = 1
	}
	r, g, b := base.RGB255()
	p.Panel = color.NRGBA{R: r, G: g, B: b, A: uint8(panelOpacity*255 + 0.5)}

	return p, nil
}

func parseHex(s string) (color.Color, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "invalid color").
			WithMetadata("value", s)
	}
	return c, nil
}

// For picks the render color for a token: hover beats everything, then
// low recognition confidence, then the plain text color.
func (p Palette) For(t Token) color.Color {
	if t.Highlighted {
		return p.Highlight
	}
	if t.Confidence < LowConfidenceThreshold {
		return p.LowConfidence
	}
	return p.Text
}
