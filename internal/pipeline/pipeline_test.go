package pipeline

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hanlens/hanlens/internal/config"
	"github.com/hanlens/hanlens/internal/dict"
	apperrors "github.com/hanlens/hanlens/internal/errors"
	"github.com/hanlens/hanlens/internal/ocr"
	"github.com/hanlens/hanlens/internal/resilience"
)

const sampleCedict = `# test dictionary
你好 你好 [ni3 hao3] /hello/
世界 世界 [shi4 jie4] /world/
中國 中国 [Zhong1 guo2] /China/
`

type fakeCapturer struct {
	frame   *image.RGBA
	changed bool
	err     error
	calls   int
}

func (f *fakeCapturer) Capture(region image.Rectangle) (*image.RGBA, bool, error) {
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	return f.frame, f.changed, nil
}

func (f *fakeCapturer) CaptureAlways(region image.Rectangle) (*image.RGBA, error) {
	f.calls++
	return f.frame, f.err
}

type fakeEngine struct {
	result ocr.Result
	err    error
	calls  int
}

func (f *fakeEngine) Recognize(ctx context.Context, img image.Image) (ocr.Result, error) {
	f.calls++
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return f.result, nil
}

type fakeClip struct {
	copies []string
}

func (f *fakeClip) Copy(text string) error {
	f.copies = append(f.copies, text)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.ini"))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func testDict(t *testing.T) *dict.Dictionary {
	t.Helper()
	d, err := dict.Parse(strings.NewReader(sampleCedict), dict.Traditional)
	if err != nil {
		t.Fatalf("dict.Parse: %v", err)
	}
	return d
}

func newTestManager(t *testing.T, capt Capturer, eng Recognizer) (*Manager, *fakeClip) {
	t.Helper()
	cfg := testConfig(t)
	cfg.Preprocess = false

	m := New(capt, eng, testDict(t), cfg)
	clip := &fakeClip{}
	m.clip = clip
	m.boundsFn = func() image.Rectangle { return image.Rect(0, 0, 1920, 1080) }
	m.retry = resilience.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return m, clip
}

// textFrame produces a patterned frame so perceptual hashing has real
// structure to work with.
func textFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 240, G: 240, B: 240, A: 255}
			if (x/4+y/4)%3 == 0 {
				c = color.RGBA{R: 20, G: 20, B: 20, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func sampleResult() ocr.Result {
	return ocr.Result{
		Text: "你好 世界\n",
		Lines: []ocr.Line{{
			Box: image.Rect(10, 10, 130, 40),
			Words: []ocr.Word{
				{Text: "你好", Box: image.Rect(10, 10, 70, 40), Confidence: 96},
				{Text: "世界", Box: image.Rect(70, 10, 130, 40), Confidence: 91},
			},
		}},
	}
}

func TestRunPassPublishesSnapshot(t *testing.T) {
	capt := &fakeCapturer{frame: textFrame(200, 100), changed: true}
	eng := &fakeEngine{result: sampleResult()}
	m, clip := newTestManager(t, capt, eng)
	events := m.Subscribe()

	m.runPass(context.Background(), m.Region(), false)

	snap, ok := m.Latest()
	if !ok {
		t.Fatal("no snapshot published")
	}
	if snap.Seq != 1 {
		t.Errorf("Seq = %d, want 1", snap.Seq)
	}
	if snap.Text != "你好世界" {
		t.Errorf("Text = %q, want 你好世界", snap.Text)
	}
	if snap.RawText != "你好 世界\n" {
		t.Errorf("RawText = %q", snap.RawText)
	}
	if len(snap.Lines) != 1 || len(snap.Lines[0].Tokens) != 2 {
		t.Fatalf("lines = %+v, want one line with two tokens", snap.Lines)
	}
	tok := snap.Lines[0].Tokens[0]
	if tok.Text != "你好" || len(tok.Entries) != 1 {
		t.Errorf("token = %+v, want 你好 with one entry", tok)
	}

	// Raw text reaches the clipboard, cleaned text the history.
	if len(clip.copies) != 1 || clip.copies[0] != "你好 世界\n" {
		t.Errorf("clipboard copies = %q", clip.copies)
	}
	hist := m.History(0)
	if len(hist) != 1 || hist[0].Text != "你好世界" {
		t.Errorf("history = %+v", hist)
	}

	select {
	case ev := <-events:
		if ev.Seq != 1 {
			t.Errorf("event seq = %d, want 1", ev.Seq)
		}
	default:
		t.Error("no event emitted")
	}
}

func TestSubscribeEverySubscriberSeesEveryPass(t *testing.T) {
	capt := &fakeCapturer{frame: textFrame(200, 100), changed: true}
	eng := &fakeEngine{result: sampleResult()}
	m, _ := newTestManager(t, capt, eng)

	overlayFeed := m.Subscribe()
	serverFeed := m.Subscribe()

	const passes = 3
	for i := 0; i < passes; i++ {
		m.runPass(context.Background(), m.Region(), true)
	}

	for name, feed := range map[string]<-chan Snapshot{
		"overlay": overlayFeed,
		"server":  serverFeed,
	} {
		for want := uint64(1); want <= passes; want++ {
			select {
			case snap := <-feed:
				if snap.Seq != want {
					t.Errorf("%s feed seq = %d, want %d", name, snap.Seq, want)
				}
			default:
				t.Fatalf("%s feed missing snapshot %d of %d", name, want, passes)
			}
		}
	}
}

func TestSubscribeSlowConsumerDoesNotStallOthers(t *testing.T) {
	capt := &fakeCapturer{frame: textFrame(200, 100), changed: true}
	eng := &fakeEngine{result: sampleResult()}
	m, _ := newTestManager(t, capt, eng)

	stalled := m.Subscribe() // never drained
	live := m.Subscribe()

	// Overflow the stalled subscriber's buffer; the live one keeps up.
	for i := 0; i < EventBuffer+5; i++ {
		m.runPass(context.Background(), m.Region(), true)
		select {
		case snap := <-live:
			if snap.Seq != uint64(i+1) {
				t.Fatalf("live feed seq = %d, want %d", snap.Seq, i+1)
			}
		default:
			t.Fatalf("live feed missing snapshot %d", i+1)
		}
	}
	if got := len(stalled); got != EventBuffer {
		t.Errorf("stalled feed holds %d snapshots, want full buffer %d", got, EventBuffer)
	}
}

func TestRunPassSkipsUnchangedFrame(t *testing.T) {
	capt := &fakeCapturer{frame: textFrame(200, 100), changed: false}
	eng := &fakeEngine{result: sampleResult()}
	m, _ := newTestManager(t, capt, eng)

	m.runPass(context.Background(), m.Region(), false)

	if eng.calls != 0 {
		t.Errorf("engine calls = %d, want 0", eng.calls)
	}
	if _, ok := m.Latest(); ok {
		t.Error("snapshot published for unchanged frame")
	}
}

func TestRunPassSkipsSimilarFrame(t *testing.T) {
	capt := &fakeCapturer{frame: textFrame(200, 100), changed: true}
	eng := &fakeEngine{result: sampleResult()}
	m, _ := newTestManager(t, capt, eng)

	m.runPass(context.Background(), m.Region(), false)
	m.runPass(context.Background(), m.Region(), false)

	if eng.calls != 1 {
		t.Errorf("engine calls = %d, want 1 (identical frame skipped)", eng.calls)
	}
	if snap, _ := m.Latest(); snap.Seq != 1 {
		t.Errorf("Seq = %d, want 1", snap.Seq)
	}
}

func TestForcedPassBypassesSimilarity(t *testing.T) {
	capt := &fakeCapturer{frame: textFrame(200, 100), changed: true}
	eng := &fakeEngine{result: sampleResult()}
	m, _ := newTestManager(t, capt, eng)

	m.runPass(context.Background(), m.Region(), false)
	m.runPass(context.Background(), m.Region(), true)

	if eng.calls != 2 {
		t.Errorf("engine calls = %d, want 2", eng.calls)
	}
	if snap, _ := m.Latest(); snap.Seq != 2 {
		t.Errorf("Seq = %d, want 2", snap.Seq)
	}
}

func TestRunPassCaptureError(t *testing.T) {
	capt := &fakeCapturer{err: apperrors.New(apperrors.CodeCaptureFailed, "no display")}
	eng := &fakeEngine{result: sampleResult()}
	m, _ := newTestManager(t, capt, eng)

	m.runPass(context.Background(), m.Region(), false)

	if eng.calls != 0 {
		t.Errorf("engine calls = %d, want 0", eng.calls)
	}
	if _, ok := m.Latest(); ok {
		t.Error("snapshot published after capture failure")
	}
}

func TestRunPassRetriesRecognition(t *testing.T) {
	capt := &fakeCapturer{frame: textFrame(200, 100), changed: true}
	eng := &fakeEngine{err: apperrors.New(apperrors.CodeOCRExtract, "engine hiccup")}
	m, _ := newTestManager(t, capt, eng)

	m.runPass(context.Background(), m.Region(), false)

	// Initial attempt plus one retry.
	if eng.calls != 2 {
		t.Errorf("engine calls = %d, want 2", eng.calls)
	}
	if _, ok := m.Latest(); ok {
		t.Error("snapshot published after recognition failure")
	}
}

func TestBreakerStopsRepeatedFailures(t *testing.T) {
	capt := &fakeCapturer{frame: textFrame(200, 100), changed: true}
	eng := &fakeEngine{err: apperrors.New(apperrors.CodeOCRBadImage, "bad frame")}
	m, _ := newTestManager(t, capt, eng)
	m.breaker = resilience.NewBreaker(resilience.Config{
		Threshold:         1,
		ResetTimeout:      time.Hour,
		HalfOpenSuccesses: 1,
	})

	m.runPass(context.Background(), m.Region(), true)
	m.runPass(context.Background(), m.Region(), true)

	if eng.calls != 1 {
		t.Errorf("engine calls = %d, want 1 (breaker open)", eng.calls)
	}
}

func TestRunPassScalesBoxesBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Preprocess = true
	cfg.Upscale = 2
	cfg.Invert = false
	cfg.Threshold = false
	cfg.Normalize = false
	cfg.Grayscale = false
	cfg.Sharpen = false

	capt := &fakeCapturer{frame: textFrame(100, 50), changed: true}
	eng := &fakeEngine{result: ocr.Result{
		Text: "你好",
		Lines: []ocr.Line{{
			Box:   image.Rect(20, 20, 140, 80),
			Words: []ocr.Word{{Text: "你好", Box: image.Rect(20, 20, 140, 80), Confidence: 95}},
		}},
	}}
	m := New(capt, eng, testDict(t), cfg)
	m.clip = &fakeClip{}

	m.runPass(context.Background(), m.Region(), false)

	snap, ok := m.Latest()
	if !ok {
		t.Fatal("no snapshot published")
	}
	got := snap.Lines[0].Tokens[0].Min
	if got.X != 10 || got.Y != 10 {
		t.Errorf("token at (%v, %v), want (10, 10) after dividing by upscale", got.X, got.Y)
	}
}

func TestSetRegionClampsAndPersists(t *testing.T) {
	capt := &fakeCapturer{frame: textFrame(200, 100), changed: true}
	m, _ := newTestManager(t, capt, &fakeEngine{})

	got, err := m.SetRegion(image.Rect(1800, 100, 2200, 300))
	if err != nil {
		t.Fatalf("SetRegion: %v", err)
	}
	want := image.Rect(1520, 100, 1920, 300)
	if got != want {
		t.Errorf("region = %v, want %v", got, want)
	}
	if m.Region() != want {
		t.Errorf("Region() = %v, want %v", m.Region(), want)
	}

	select {
	case r := <-m.regionCh:
		if r != want {
			t.Errorf("scheduled region = %v, want %v", r, want)
		}
	default:
		t.Error("no pass scheduled after region change")
	}

	if _, err := os.Stat(m.cfg.Path()); err != nil {
		t.Errorf("config not persisted: %v", err)
	}
}

func TestSetRegionRejectsDegenerate(t *testing.T) {
	m, _ := newTestManager(t, &fakeCapturer{}, &fakeEngine{})

	_, err := m.SetRegion(image.Rect(10, 10, 10, 10))
	if err == nil {
		t.Fatal("expected error for empty region")
	}
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeInvalidInput)
	}

	select {
	case <-m.regionCh:
		t.Error("pass scheduled for invalid region")
	default:
	}
}

func TestRunAppliesRegionChange(t *testing.T) {
	capt := &fakeCapturer{frame: textFrame(200, 100), changed: true}
	eng := &fakeEngine{result: sampleResult()}
	m, _ := newTestManager(t, capt, eng)
	m.interval = time.Hour // only the region change should drive a pass
	events := m.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	want, err := m.SetRegion(image.Rect(0, 0, 200, 100))
	if err != nil {
		t.Fatalf("SetRegion: %v", err)
	}

	select {
	case snap := <-events:
		if snap.Region != want {
			t.Errorf("snapshot region = %v, want %v", snap.Region, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after region change")
	}

	m.Stop()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

// wideMeasurer doubles every glyph, so a pass laid out with it is
// distinguishable from the default square metrics.
type wideMeasurer struct{}

func (wideMeasurer) Measure(text string, scale float64) (float64, float64) {
	n := 0
	for range text {
		n++
	}
	return 2 * scale * float64(n), scale
}

func TestRunUsesMeasurerInstalledBeforeStart(t *testing.T) {
	capt := &fakeCapturer{frame: textFrame(200, 100), changed: true}
	eng := &fakeEngine{result: sampleResult()}
	m, _ := newTestManager(t, capt, eng)
	m.interval = time.Hour
	m.SetMeasurer(wideMeasurer{})
	events := m.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	if _, err := m.SetRegion(image.Rect(0, 0, 200, 100)); err != nil {
		t.Fatalf("SetRegion: %v", err)
	}

	select {
	case snap := <-events:
		toks := snap.Lines[0].Tokens
		if len(toks) != 2 {
			t.Fatalf("tokens = %d, want 2", len(toks))
		}
		// Scale 30 and a doubled two-rune first token: 10 + 2*30*2 = 130.
		if toks[1].Min.X != 130 {
			t.Errorf("toks[1].Min.X = %v, want 130 from the installed measurer", toks[1].Min.X)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after region change")
	}

	m.Stop()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestAssembleAlignsTokensToGeometry(t *testing.T) {
	m, _ := newTestManager(t, &fakeCapturer{}, &fakeEngine{})

	result := ocr.Result{
		Text: "你好嗎",
		Lines: []ocr.Line{{
			Words: []ocr.Word{
				{Text: "你", Box: image.Rect(10, 10, 40, 40), Confidence: 96},
				{Text: "好", Box: image.Rect(40, 10, 70, 40), Confidence: 93},
				{Text: "嗎", Box: image.Rect(70, 10, 100, 40), Confidence: 42},
			},
		}},
	}

	snap := m.assemble(image.Rect(0, 0, 200, 100), result, 0)

	if len(snap.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(snap.Lines))
	}
	toks := snap.Lines[0].Tokens
	if len(toks) != 2 {
		t.Fatalf("tokens = %+v, want [你好 嗎]", toks)
	}
	if toks[0].Text != "你好" || toks[0].Confidence != 93 {
		t.Errorf("toks[0] = %+v, want 你好 at min confidence 93", toks[0])
	}
	if len(toks[0].Entries) != 1 {
		t.Errorf("你好 entries = %d, want 1", len(toks[0].Entries))
	}
	if toks[1].Text != "嗎" || len(toks[1].Entries) != 0 {
		t.Errorf("toks[1] = %+v, want 嗎 with no entries", toks[1])
	}
	// Second token placed at the measured right edge of the first.
	if toks[1].Min.X != 70 || toks[1].Min.Y != 10 {
		t.Errorf("toks[1].Min = %+v, want {70 10}", toks[1].Min)
	}
}

func TestAssembleEmptyResult(t *testing.T) {
	m, _ := newTestManager(t, &fakeCapturer{}, &fakeEngine{})

	snap := m.assemble(image.Rect(0, 0, 200, 100), ocr.Result{}, 0)

	if !snap.Empty() {
		t.Error("snapshot not empty for empty result")
	}
	if snap.Text != "" {
		t.Errorf("Text = %q, want empty", snap.Text)
	}
}

func TestHistoryBounded(t *testing.T) {
	h := newHistory(3)
	for i := 1; i <= 5; i++ {
		h.Add(Record{Seq: uint64(i)})
	}

	recent := h.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("len = %d, want 3", len(recent))
	}
	if recent[0].Seq != 5 || recent[2].Seq != 3 {
		t.Errorf("recent = %+v, want newest first, oldest dropped", recent)
	}

	limited := h.Recent(2)
	if len(limited) != 2 || limited[0].Seq != 5 || limited[1].Seq != 4 {
		t.Errorf("limited = %+v, want [5 4]", limited)
	}
}
