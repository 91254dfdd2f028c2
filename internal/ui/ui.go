package ui

import (
	"image"
	"log/slog"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"

	"github.com/hanlens/hanlens/internal/config"
	"github.com/hanlens/hanlens/internal/overlay"
	"github.com/hanlens/hanlens/internal/pipeline"
)

// Controller is the slice of the pipeline the overlay drives.
type Controller interface {
	Region() image.Rectangle
	SetRegion(region image.Rectangle) (image.Rectangle, error)
	Latest() (pipeline.Snapshot, bool)
	Subscribe() <-chan pipeline.Snapshot
}

// UI owns the overlay window. All mutation happens on the fyne event
// thread; snapshots arriving from the pipeline are marshalled onto it.
type UI struct {
	win     fyne.Window
	ctrl    Controller
	palette overlay.Palette

	content *fyne.Container
	layout  overlay.Layout
	size    image.Point
}

// New builds the overlay window against a running fyne app.
func New(a fyne.App, ctrl Controller, cfg *config.Config) (*UI, error) {
	palette, err := overlay.NewPalette(
		cfg.TextColor, cfg.LowConfColor, cfg.HighlightColor,
		cfg.PanelColor, cfg.PanelOpacity,
	)
	if err != nil {
		return nil, err
	}

	u := &UI{
		win:     a.NewWindow(windowTitle),
		ctrl:    ctrl,
		palette: palette,
		content: container.NewWithoutLayout(),
	}

	hover := newHoverArea(u.handleCursor, u.clearCursor)
	u.win.SetPadded(false)
	u.win.SetContent(container.NewStack(u.content, hover))
	u.resizeTo(ctrl.Region())
	u.bindKeys()

	return u, nil
}

// Run shows the overlay and blocks until the window closes.
func (u *UI) Run() {
	go u.watch()
	if snap, ok := u.ctrl.Latest(); ok {
		u.apply(snap)
	}
	u.win.ShowAndRun()
}

func (u *UI) watch() {
	for snap := range u.ctrl.Subscribe() {
		s := snap
		fyne.Do(func() { u.apply(s) })
	}
}

func (u *UI) apply(snap pipeline.Snapshot) {
	u.layout = overlay.Layout{Lines: snap.Lines}
	u.resizeTo(snap.Region)
	u.redraw()
}

func (u *UI) resizeTo(region image.Rectangle) {
	size := region.Size()
	if size == u.size || size.X <= 0 || size.Y <= 0 {
		return
	}
	u.size = size
	u.win.Resize(fyne.NewSize(float32(size.X), float32(size.Y)))
}

func (u *UI) handleCursor(pt overlay.Point) {
	if u.layout.HandleCursor(pt) {
		u.redraw()
	}
}

func (u *UI) clearCursor() {
	if u.layout.HandleCursor(overlay.Point{X: -1, Y: -1}) {
		u.redraw()
	}
}

// redraw rebuilds the canvas objects for the current layout: a background
// panel per line, a text object per token, and the translation panel for
// the hovered token.
func (u *UI) redraw() {
	objects := make([]fyne.CanvasObject, 0, len(u.layout.Lines)*4)

	for i := range u.layout.Lines {
		line := &u.layout.Lines[i]

		bg := canvas.NewRectangle(u.palette.Panel)
		bg.Move(fyne.NewPos(float32(line.Min.X), float32(line.Min.Y)))
		bg.Resize(fyne.NewSize(float32(line.Max.X-line.Min.X), float32(line.Max.Y-line.Min.Y)))
		objects = append(objects, bg)

		for j := range line.Tokens {
			tok := &line.Tokens[j]
			txt := canvas.NewText(tok.Text, u.palette.For(*tok))
			txt.TextSize = float32(line.Scale)
			txt.Move(fyne.NewPos(float32(tok.Min.X), float32(tok.Min.Y)))
			objects = append(objects, txt)
		}
	}

	if line, tok := u.layout.HighlightedLine(); tok != nil {
		objects = append(objects, u.panelObjects(line, tok)...)
	}

	u.content.Objects = objects
	u.content.Refresh()
}

// panelObjects draws the dictionary panel under the hovered token's line.
func (u *UI) panelObjects(line *overlay.Line, tok *overlay.Token) []fyne.CanvasObject {
	text := overlay.PanelText(tok.Entries)
	if text == "" {
		return nil
	}

	rows := strings.Split(strings.TrimRight(text, "\n"), "\n")
	origin := fyne.NewPos(float32(line.Min.X), float32(line.Max.Y))
	rowHeight := fyne.MeasureText("好", overlay.PanelScale, fyne.TextStyle{}).Height

	bg := canvas.NewRectangle(u.palette.Panel)
	objects := make([]fyne.CanvasObject, 0, len(rows)+1)
	objects = append(objects, bg)

	var width float32
	for i, row := range rows {
		t := canvas.NewText(row, u.palette.Text)
		t.TextSize = overlay.PanelScale
		t.Move(fyne.NewPos(origin.X, origin.Y+float32(i)*rowHeight))
		objects = append(objects, t)

		if sz := fyne.MeasureText(row, overlay.PanelScale, fyne.TextStyle{}); sz.Width > width {
			width = sz.Width
		}
	}
	bg.Move(origin)
	bg.Resize(fyne.NewSize(width, float32(len(rows))*rowHeight))

	return objects
}

// bindKeys wires region control: arrows nudge the capture region,
// PageUp/PageDown resize it. Every change funnels through the pipeline,
// which clamps, persists, and schedules an immediate pass.
func (u *UI) bindKeys() {
	u.win.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		region := u.ctrl.Region()
		switch ev.Name {
		case fyne.KeyUp:
			region = region.Add(image.Pt(0, -nudgeStep))
		case fyne.KeyDown:
			region = region.Add(image.Pt(0, nudgeStep))
		case fyne.KeyLeft:
			region = region.Add(image.Pt(-nudgeStep, 0))
		case fyne.KeyRight:
			region = region.Add(image.Pt(nudgeStep, 0))
		case fyne.KeyPageUp:
			region.Max = region.Max.Add(image.Pt(nudgeStep, nudgeStep))
		case fyne.KeyPageDown:
			region.Max = region.Max.Sub(image.Pt(nudgeStep, nudgeStep))
		default:
			return
		}
		if _, err := u.ctrl.SetRegion(region); err != nil {
			slog.Warn("region change rejected", "error", err)
		}
	})
}
