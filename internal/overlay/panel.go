package overlay

import (
	"strings"

	"github.com/hanlens/hanlens/internal/dict"
)

// PanelScale is the font scale of the translation panel text.
const PanelScale = 24.0

// glossIndent continues wrapped definitions under the first gloss, past
// the headword column.
const glossIndent = "\n          "

// PanelText formats dictionary entries for the translation panel. Each
// entry renders as "headword(pinyin): <tab>glosses", one block per
// reading, with follow-on glosses indented under the first.
func PanelText(entries []dict.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Traditional)
		b.WriteString("(")
		b.WriteString(e.PinyinMarks)
		b.WriteString("): \t")
		b.WriteString(strings.Join(e.Definitions, glossIndent))
		b.WriteString("\n")
	}
	return b.String()
}
