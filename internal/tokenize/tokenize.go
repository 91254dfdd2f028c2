// Package tokenize segments recognized Chinese text into dictionary words
// using forward maximum matching: the longest headword wins, unmatched Han
// runes fall back to single-character tokens, and anything non-Han passes
// through without a lookup.
package tokenize

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Lexicon is the dictionary view the tokenizer needs.
type Lexicon interface {
	Contains(word string) bool
	MaxWordLen() int
}

// Tokenizer splits text against a lexicon.
type Tokenizer struct {
	lex Lexicon
}

// New creates a tokenizer backed by lex.
func New(lex Lexicon) *Tokenizer {
	return &Tokenizer{lex: lex}
}

// Tokenize segments text into tokens. Callers should Clean the text first;
// Chinese has no spaces, so whitespace in OCR output is engine noise.
func (t *Tokenizer) Tokenize(text string) []string {
	runes := []rune(text)
	maxLen := t.lex.MaxWordLen()
	if maxLen < 1 {
		maxLen = 1
	}

	var tokens []string
	for i := 0; i < len(runes); {
		if !IsHan(runes[i]) {
			j := i + 1
			for j < len(runes) && !IsHan(runes[j]) {
				j++
			}
			tokens = append(tokens, string(runes[i:j]))
			i = j
			continue
		}

		limit := maxLen
		if rest := len(runes) - i; rest < limit {
			limit = rest
		}

		matched := 1
		for l := limit; l >= 2; l-- {
			if t.lex.Contains(string(runes[i : i+l])) {
				matched = l
				break
			}
		}
		tokens = append(tokens, string(runes[i:i+matched]))
		i += matched
	}
	return tokens
}

// Clean strips all whitespace and folds fullwidth ASCII to its regular
// form, the shape lookups and rendering both expect.
func Clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return width.Fold.String(b.String())
}

// IsHan reports whether r is a Han ideograph.
func IsHan(r rune) bool {
	return unicode.Is(unicode.Han, r)
}
