package pipeline

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/hanlens/hanlens/internal/capture"
	"github.com/hanlens/hanlens/internal/clipboard"
	"github.com/hanlens/hanlens/internal/config"
	"github.com/hanlens/hanlens/internal/dict"
	"github.com/hanlens/hanlens/internal/ocr"
	"github.com/hanlens/hanlens/internal/overlay"
	"github.com/hanlens/hanlens/internal/preprocess"
	"github.com/hanlens/hanlens/internal/resilience"
	"github.com/hanlens/hanlens/internal/syncx"
	"github.com/hanlens/hanlens/internal/tokenize"
	"github.com/hanlens/hanlens/internal/trace"
)

// Capturer grabs frames of a screen region.
type Capturer interface {
	Capture(region image.Rectangle) (*image.RGBA, bool, error)
	CaptureAlways(region image.Rectangle) (*image.RGBA, error)
}

// Recognizer extracts positioned text from an image.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (ocr.Result, error)
}

// Clip mirrors recognized text to the system clipboard.
type Clip interface {
	Copy(text string) error
}

// Manager owns the capture-and-render loop. Exactly one pass runs at a
// time; region changes are funneled into the loop instead of racing it.
type Manager struct {
	capturer   Capturer
	engine     Recognizer
	dictionary *dict.Dictionary
	tokenizer  *tokenize.Tokenizer
	builder    overlay.Builder
	clip       Clip
	cfg        *config.Config

	opts     preprocess.Options
	interval time.Duration
	breaker  *resilience.Breaker
	retry    resilience.RetryConfig

	snapshot *syncx.RWGuard[Snapshot]
	region   *syncx.RWGuard[image.Rectangle]
	history  *historyStore
	regionCh chan image.Rectangle
	stopCh   chan struct{}

	subMu sync.Mutex
	subs  []chan Snapshot

	boundsFn func() image.Rectangle
	lastHash *goimagehash.ImageHash
	seq      uint64

	mu sync.Mutex // serializes SetRegion
}

// New wires a pipeline from the loaded configuration.
func New(capturer Capturer, engine Recognizer, dictionary *dict.Dictionary, cfg *config.Config) *Manager {
	opts := preprocess.Options{
		Upscale:   cfg.Upscale,
		Invert:    cfg.Invert,
		Threshold: cfg.Threshold,
		Normalize: cfg.Normalize,
		Grayscale: cfg.Grayscale,
		Sharpen:   cfg.Sharpen,
	}
	if !cfg.Preprocess {
		opts = preprocess.Options{Upscale: 1}
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = config.DefaultInterval
	}

	return &Manager{
		capturer:   capturer,
		engine:     engine,
		dictionary: dictionary,
		tokenizer:  tokenize.New(dictionary),
		builder:    overlay.Builder{Measurer: squareMeasurer{}, Factor: cfg.FontScale},
		clip:       clipboard.New(cfg.ClipboardEnabled),
		cfg:        cfg,
		opts:       opts,
		interval:   interval,
		breaker:    resilience.NewBreaker(resilience.DefaultConfig()),
		retry:      resilience.DefaultRetryConfig(),
		snapshot:   syncx.NewGuard(Snapshot{}),
		region:     syncx.NewGuard(cfg.Region),
		history:    newHistory(HistoryMaxEntries),
		regionCh:   make(chan image.Rectangle, 1),
		stopCh:     make(chan struct{}),
		boundsFn:   capture.VirtualBounds,
	}
}

// SetMeasurer installs real font metrics for token placement. Call before
// Run; the default sizes CJK glyphs as scale-sized squares.
func (m *Manager) SetMeasurer(ms overlay.Measurer) {
	if ms != nil {
		m.builder.Measurer = ms
	}
}

// Run drives the loop until ctx is done or Stop is called. Each tick runs
// at most one pass; a region change forces one immediately.
func (m *Manager) Run(ctx context.Context) error {
	log := trace.Logger(ctx)
	log.Info("pipeline started", "region", m.Region().String(), "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopCh:
			return nil
		case region := <-m.regionCh:
			m.runPass(ctx, region, true)
		case <-ticker.C:
			m.runPass(ctx, m.Region(), false)
		}
	}
}

// Stop ends the loop. Call once.
func (m *Manager) Stop() {
	close(m.stopCh)
}

// Latest returns the most recent snapshot; ok is false before the first
// pass completes.
func (m *Manager) Latest() (Snapshot, bool) {
	s := m.snapshot.Get()
	return s, s.Seq != 0
}

// Region returns the current capture region.
func (m *Manager) Region() image.Rectangle {
	return m.region.Get()
}

// History returns up to limit recent recognitions, newest first.
func (m *Manager) History(limit int) []Record {
	return m.history.Recent(limit)
}

// Subscribe registers a snapshot feed. Every subscriber receives every
// published snapshot on its own buffered channel; a slow consumer misses
// events rather than stalling the loop or its peers.
func (m *Manager) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, EventBuffer)
	m.subMu.Lock()
	m.subs = append(m.subs, ch)
	m.subMu.Unlock()
	return ch
}

// SetRegion validates, clamps, and persists a new capture region, then
// schedules an immediate pass on it. The clamped region is returned.
func (m *Manager) SetRegion(region image.Rectangle) (image.Rectangle, error) {
	if err := capture.Validate(region); err != nil {
		return image.Rectangle{}, err
	}
	if bounds := m.boundsFn(); !bounds.Empty() {
		region = capture.Clamp(region, bounds)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.region.Set(region)
	m.cfg.Region = region
	if err := m.cfg.Save(); err != nil {
		trace.Logger(context.Background()).Warn("region not persisted", "error", err)
	}

	// Replace any pending region so the loop only sees the newest one.
	select {
	case <-m.regionCh:
	default:
	}
	m.regionCh <- region

	return region, nil
}

func (m *Manager) runPass(ctx context.Context, region image.Rectangle, force bool) {
	ctx, span := trace.StartSpan(ctx, "recognition_pass")
	defer span.End()
	span.SetAttr("region", region.String())
	span.SetAttr("forced", force)

	log := trace.Logger(ctx)
	start := time.Now()

	frame, changed, err := m.grab(region, force)
	if err != nil {
		span.SetAttr("error", err.Error())
		log.Error("capture failed", "error", err)
		return
	}
	if !changed {
		return
	}
	if m.similarFrame(frame, force) {
		log.Debug("skipping pass, frame similar to last recognized")
		return
	}

	processed, scale := preprocess.Run(frame, m.opts)

	result, err := resilience.ExecuteWithResult(m.breaker, func() (ocr.Result, error) {
		var out ocr.Result
		rerr := resilience.Retry(ctx, m.retry, func() error {
			var inner error
			out, inner = m.engine.Recognize(ctx, processed)
			return inner
		})
		return out, rerr
	})
	if err != nil {
		if errors.Is(err, resilience.ErrOpen) {
			log.Debug("recognition skipped, breaker open")
			return
		}
		span.SetAttr("error", err.Error())
		log.Error("recognition failed", "error", err)
		return
	}

	snap := m.assemble(region, result.Scaled(scale), time.Since(start))
	span.SetAttr("tokens", snap.TokenCount())
	m.publish(ctx, snap)
}

func (m *Manager) grab(region image.Rectangle, force bool) (*image.RGBA, bool, error) {
	if force {
		frame, err := m.capturer.CaptureAlways(region)
		return frame, err == nil, err
	}
	return m.capturer.Capture(region)
}

// similarFrame compares the frame's perceptual hash against the last
// recognized one. The anchor hash only moves when a frame is accepted, so
// a slow drift cannot dodge recognition forever.
func (m *Manager) similarFrame(frame image.Image, force bool) bool {
	hash, err := goimagehash.PerceptionHash(frame)
	if err != nil {
		return false
	}
	if force || m.lastHash == nil {
		m.lastHash = hash
		return false
	}
	dist, err := m.lastHash.Distance(hash)
	if err != nil {
		m.lastHash = hash
		return false
	}
	if dist <= MaxHashDistance {
		return true
	}
	m.lastHash = hash
	return false
}

// assemble turns positioned OCR output into a render-ready snapshot:
// clean, tokenize, look up, align, and lay out, line by line.
func (m *Manager) assemble(region image.Rectangle, result ocr.Result, elapsed time.Duration) Snapshot {
	m.seq++
	snap := Snapshot{
		Seq:       m.seq,
		Region:    region,
		Text:      tokenize.Clean(result.Text),
		RawText:   result.Text,
		Elapsed:   elapsed,
		Timestamp: time.Now(),
	}

	for _, line := range result.Lines {
		var joined strings.Builder
		for _, w := range line.Words {
			joined.WriteString(w.Text)
		}
		text := tokenize.Clean(joined.String())
		if text == "" {
			continue
		}

		tokens := m.tokenizer.Tokenize(text)
		aligned := overlay.AlignTokens(line.Words, tokens)
		built := m.builder.BuildLine(aligned, m.dictionary.Query)
		if len(built.Tokens) > 0 {
			snap.Lines = append(snap.Lines, built)
		}
	}
	return snap
}

func (m *Manager) publish(ctx context.Context, snap Snapshot) {
	m.snapshot.Set(snap)
	if snap.Text != "" {
		m.history.Add(Record{
			Seq:       snap.Seq,
			Text:      snap.Text,
			Timestamp: snap.Timestamp,
			Elapsed:   snap.Elapsed,
		})
	}
	m.emit(snap)

	log := trace.Logger(ctx)
	if err := m.clip.Copy(snap.RawText); err != nil {
		log.Warn("clipboard copy failed", "error", err)
	}

	log.Info("recognition pass complete",
		"seq", snap.Seq,
		"tokens", snap.TokenCount(),
		"elapsed", snap.Elapsed,
	)
}

// emit fans the snapshot out to every subscriber without ever blocking
// the loop.
func (m *Manager) emit(snap Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
