package pipeline

import (
	"image"
	"sync"
	"time"

	"github.com/hanlens/hanlens/internal/overlay"
)

// Snapshot is the published result of one recognition pass. The overlay
// renders it, the feed server serves it.
type Snapshot struct {
	Seq       uint64          `json:"seq"`
	Region    image.Rectangle `json:"region"`
	Text      string          `json:"text"`     // cleaned, whitespace-free
	RawText   string          `json:"raw_text"` // as the engine produced it
	Lines     []overlay.Line  `json:"lines"`
	Elapsed   time.Duration   `json:"elapsed"`
	Timestamp time.Time       `json:"timestamp"`
}

// Empty reports whether the pass recognized any text.
func (s Snapshot) Empty() bool {
	return len(s.Lines) == 0
}

// TokenCount counts positioned tokens across all lines.
func (s Snapshot) TokenCount() int {
	n := 0
	for _, l := range s.Lines {
		n += len(l.Tokens)
	}
	return n
}

// Record is one completed recognition kept for the history endpoint.
type Record struct {
	Seq       uint64        `json:"seq"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   time.Duration `json:"elapsed"`
}

// historyStore keeps a bounded window of recent recognitions.
type historyStore struct {
	mu      sync.RWMutex
	records []Record
	maxSize int
}

func newHistory(maxSize int) *historyStore {
	return &historyStore{
		records: make([]Record, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends a record, dropping the oldest past the size bound.
func (h *historyStore) Add(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, r)
	if len(h.records) > h.maxSize {
		h.records = h.records[len(h.records)-h.maxSize:]
	}
}

// Recent returns up to limit records, newest first. limit <= 0 means all.
func (h *historyStore) Recent(limit int) []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, 0, n)
	for i := len(h.records) - 1; i >= len(h.records)-n; i-- {
		out = append(out, h.records[i])
	}
	return out
}

// squareMeasurer stands in when no font metrics are wired: CJK glyphs
// render as scale-sized squares, which matches how the overlay font
// behaves for Han text.
type squareMeasurer struct{}

func (squareMeasurer) Measure(text string, scale float64) (float64, float64) {
	n := 0
	for range text {
		n++
	}
	return scale * float64(n), scale
}
