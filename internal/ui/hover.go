package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"github.com/hanlens/hanlens/internal/overlay"
)

// hoverArea is an invisible layer that feeds cursor movement into the
// layout hit test.
type hoverArea struct {
	widget.BaseWidget
	onMove func(overlay.Point)
	onOut  func()
}

func newHoverArea(onMove func(overlay.Point), onOut func()) *hoverArea {
	h := &hoverArea{onMove: onMove, onOut: onOut}
	h.ExtendBaseWidget(h)
	return h
}

func (h *hoverArea) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(canvas.NewRectangle(color.Transparent))
}

func (h *hoverArea) MouseIn(ev *desktop.MouseEvent) {
	h.moved(ev)
}

func (h *hoverArea) MouseMoved(ev *desktop.MouseEvent) {
	h.moved(ev)
}

func (h *hoverArea) MouseOut() {
	if h.onOut != nil {
		h.onOut()
	}
}

func (h *hoverArea) moved(ev *desktop.MouseEvent) {
	if h.onMove != nil {
		h.onMove(overlay.Point{X: float64(ev.Position.X), Y: float64(ev.Position.Y)})
	}
}
