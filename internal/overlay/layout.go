// Package overlay builds the render model for the translation overlay:
// tokens aligned onto OCR geometry, laid out sequentially per line, with
// hover hit testing and confidence-based coloring. The model is pure; the
// ui package draws it.
package overlay

import (
	"unicode"
	"unicode/utf8"

	"github.com/hanlens/hanlens/internal/dict"
	"github.com/hanlens/hanlens/internal/ocr"
)

// Measurer reports the rendered size of text at a font scale. The UI backs
// this with real font metrics; tests use fixed-width glyphs.
type Measurer interface {
	Measure(text string, scale float64) (width, height float64)
}

// Point is a position in overlay pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Token is one laid-out word with its dictionary lookup attached.
type Token struct {
	Text        string       `json:"text"`
	Min         Point        `json:"min"`   // top-left of the rendered text
	Width       float64      `json:"width"` // measured render width
	Confidence  float64      `json:"confidence"`
	Entries     []dict.Entry `json:"entries,omitempty"`
	Highlighted bool         `json:"-"`
}

// Contains reports whether the cursor hits this token. A token without a
// measured width falls back to one scale unit per rune; CJK glyphs are
// square.
func (t Token) Contains(cursor Point, scale float64) bool {
	w := t.Width
	if w <= 0 {
		w = scale * float64(utf8.RuneCountInString(t.Text))
	}
	return cursor.X > t.Min.X && cursor.X <= t.Min.X+w &&
		cursor.Y > t.Min.Y && cursor.Y <= t.Min.Y+scale
}

// Line is one laid-out row of tokens with the geometry of its background
// panel.
type Line struct {
	Tokens []Token `json:"tokens"`
	Min    Point   `json:"min"`
	Max    Point   `json:"max"`
	Scale  float64 `json:"scale"` // font scale, the average glyph height
}

// Layout is the full render model of one recognition pass.
type Layout struct {
	Lines []Line `json:"lines"`
}

// AlignTokens merges a line's OCR words so each token owns the geometry of
// the words its runes came from: union of boxes, minimum confidence. Word
// and token rune totals match because both derive from the same cleaned
// line text.
func AlignTokens(words []ocr.Word, tokens []string) []ocr.Word {
	out := make([]ocr.Word, 0, len(tokens))

	wi := 0   // current word
	used := 0 // runes of words[wi] already consumed
	for _, tok := range tokens {
		need := utf8.RuneCountInString(tok)
		var merged ocr.Word
		first := true

		for need > 0 && wi < len(words) {
			w := words[wi]
			avail := utf8.RuneCountInString(w.Text) - used
			take := need
			if avail < take {
				take = avail
			}

			if first {
				merged = ocr.Word{Box: w.Box, Confidence: w.Confidence}
				first = false
			} else {
				merged = merged.Merge(ocr.Word{Box: w.Box, Confidence: w.Confidence})
			}

			need -= take
			used += take
			if used >= utf8.RuneCountInString(w.Text) {
				wi++
				used = 0
			}
		}

		merged.Text = tok
		out = append(out, merged)
	}
	return out
}

// Builder lays out lines with a font measurer and an optional scale
// factor from the overlay font-size setting.
type Builder struct {
	Measurer Measurer
	Factor   float64 // multiplies the derived line scale; 1 when zero
}

// BuildLine lays out one row of aligned words: the first token sits at the
// line origin and each next token starts at the measured right edge of the
// previous one. lookup attaches dictionary entries per token text.
func (b Builder) BuildLine(words []ocr.Word, lookup func(string) []dict.Entry) Line {
	if len(words) == 0 {
		return Line{}
	}

	scale := lineScale(words)
	if b.Factor > 0 {
		scale *= b.Factor
	}
	origin := Point{X: float64(words[0].Box.Min.X), Y: float64(words[0].Box.Min.Y)}

	line := Line{
		Tokens: make([]Token, 0, len(words)),
		Min:    origin,
		Scale:  scale,
	}

	offset := origin
	lineHeight := scale
	for _, w := range words {
		tw, th := b.Measurer.Measure(w.Text, scale)
		tok := Token{
			Text:       w.Text,
			Min:        offset,
			Width:      tw,
			Confidence: w.Confidence,
		}
		if lookup != nil {
			tok.Entries = lookup(w.Text)
		}
		line.Tokens = append(line.Tokens, tok)

		offset = Point{X: offset.X + tw, Y: offset.Y}
		if th > lineHeight {
			lineHeight = th
		}
	}

	line.Max = Point{X: offset.X, Y: origin.Y + lineHeight}
	return line
}

// lineScale averages the pixel height of the line's non-punctuation words;
// punctuation boxes are short and would drag the font size down.
func lineScale(words []ocr.Word) float64 {
	sum, n := 0.0, 0
	for _, w := range words {
		if startsWithPunct(w.Text) {
			continue
		}
		sum += float64(w.Height())
		n++
	}
	if n == 0 {
		for _, w := range words {
			sum += float64(w.Height())
		}
		n = len(words)
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// startsWithPunct matches ASCII punctuation and symbols, the noise
// characters Tesseract sprinkles into screen captures.
func startsWithPunct(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r != utf8.RuneError && r < 128 && (unicode.IsPunct(r) || unicode.IsSymbol(r))
}

// HandleCursor updates highlight state for a cursor position and reports
// whether any token changed, which is the renderer's cue to repaint.
func (l *Line) HandleCursor(cursor Point) bool {
	changed := false
	for i := range l.Tokens {
		within := l.Tokens[i].Contains(cursor, l.Scale)
		if l.Tokens[i].Highlighted != within {
			l.Tokens[i].Highlighted = within
			changed = true
		}
	}
	return changed
}

// HandleCursor runs hit testing across all lines.
func (l *Layout) HandleCursor(cursor Point) bool {
	changed := false
	for i := range l.Lines {
		if l.Lines[i].HandleCursor(cursor) {
			changed = true
		}
	}
	return changed
}

// Highlighted returns the hovered token, or nil.
func (l *Layout) Highlighted() *Token {
	_, tok := l.HighlightedLine()
	return tok
}

// HighlightedLine returns the hovered token together with its line, which
// anchors the translation panel. Both are nil when nothing is hovered.
func (l *Layout) HighlightedLine() (*Line, *Token) {
	for i := range l.Lines {
		for j := range l.Lines[i].Tokens {
			if l.Lines[i].Tokens[j].Highlighted {
				return &l.Lines[i], &l.Lines[i].Tokens[j]
			}
		}
	}
	return nil, nil
}
