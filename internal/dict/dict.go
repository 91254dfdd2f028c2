// Package dict loads a CC-CEDICT dictionary and answers headword lookups
// for the script variant the app is configured for.
package dict

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	apperrors "github.com/hanlens/hanlens/internal/errors"
)

// Script selects which headword column lookups match against.
type Script int

const (
	Traditional Script = iota
	Simplified
)

func (s Script) String() string {
	if s == Simplified {
		return "simplified"
	}
	return "traditional"
}

// Entry is one CC-CEDICT record.
type Entry struct {
	Traditional string   `json:"traditional"`
	Simplified  string   `json:"simplified"`
	Pinyin      string   `json:"pinyin"`       // numbered, as in the source file
	PinyinMarks string   `json:"pinyin_marks"` // diacritic form, computed at load
	Definitions []string `json:"definitions"`
}

// Dictionary holds parsed entries keyed by the active script's headword.
type Dictionary struct {
	entries    map[string][]Entry
	script     Script
	maxWordLen int // longest headword in runes, bounds the tokenizer
}

// Load reads a CC-CEDICT file from disk. The app cannot do anything useful
// without its dictionary, so callers treat an error here as fatal.
func Load(path string, script Script) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDictLoad, "open dictionary file").
			WithMetadata("path", path)
	}
	defer f.Close()

	d, err := Parse(f, script)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDictLoad, "parse dictionary file").
			WithMetadata("path", path)
	}

	slog.Info("dictionary loaded",
		"path", path,
		"script", script.String(),
		"headwords", len(d.entries),
		"max_word_len", d.maxWordLen)
	return d, nil
}

// Parse reads CC-CEDICT lines from r. Lines that do not match the
//
//	Traditional Simplified [pin1 yin1] /gloss/gloss/
//
// shape are skipped, not fatal; the file carries comments and the odd
// malformed record.
func Parse(r io.Reader, script Script) (*Dictionary, error) {
	d := &Dictionary{
		entries: make(map[string][]Entry),
		script:  script,
	}

	skipped := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, ok := parseLine(line)
		if !ok {
			skipped++
			continue
		}

		key := entry.Traditional
		if script == Simplified {
			key = entry.Simplified
		}
		d.entries[key] = append(d.entries[key], entry)

		if n := utf8.RuneCountInString(key); n > d.maxWordLen {
			d.maxWordLen = n
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if skipped > 0 {
		slog.Warn("skipped malformed dictionary lines", "count", skipped)
	}
	return d, nil
}

// parseLine splits one CEDICT record into an Entry.
func parseLine(line string) (Entry, bool) {
	trad, rest, ok := strings.Cut(line, " ")
	if !ok || trad == "" {
		return Entry{}, false
	}
	simp, rest, ok := strings.Cut(rest, " ")
	if !ok || simp == "" {
		return Entry{}, false
	}

	lb := strings.IndexByte(rest, '[')
	rb := strings.IndexByte(rest, ']')
	if lb < 0 || rb < lb {
		return Entry{}, false
	}
	pinyin := rest[lb+1 : rb]

	defStart := strings.IndexByte(rest[rb:], '/')
	if defStart < 0 {
		return Entry{}, false
	}
	defStart += rb
	defEnd := strings.LastIndexByte(rest, '/')
	if defEnd <= defStart {
		return Entry{}, false
	}

	defs := strings.Split(rest[defStart+1:defEnd], "/")
	cleaned := make([]string, 0, len(defs))
	for _, def := range defs {
		if def = strings.TrimSpace(def); def != "" {
			cleaned = append(cleaned, def)
		}
	}
	if len(cleaned) == 0 {
		return Entry{}, false
	}

	return Entry{
		Traditional: trad,
		Simplified:  simp,
		Pinyin:      pinyin,
		PinyinMarks: ConvertPinyin(pinyin),
		Definitions: cleaned,
	}, true
}

// Query returns all entries for a headword in the active script. An empty
// result is a miss, not an error.
func (d *Dictionary) Query(word string) []Entry {
	return d.entries[word]
}

// Contains reports whether the headword exists in the active script.
func (d *Dictionary) Contains(word string) bool {
	_, ok := d.entries[word]
	return ok
}

// MaxWordLen returns the longest headword length in runes.
func (d *Dictionary) MaxWordLen() int {
	return d.maxWordLen
}

// Len returns the number of distinct headwords.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Script returns the script variant lookups match against.
func (d *Dictionary) Script() Script {
	return d.script
}
