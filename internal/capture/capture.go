// Package capture grabs a screen region as an RGBA frame with cheap
// change detection, so an unmoving screen costs no OCR work.
package capture

import (
	"crypto/md5"
	"image"

	"github.com/kbinani/screenshot"

	apperrors "github.com/hanlens/hanlens/internal/errors"
)

// Capturer grabs frames of a screen rectangle.
type Capturer struct {
	grab     func(image.Rectangle) (*image.RGBA, error)
	lastHash [16]byte
}

// New creates a Capturer backed by the display server.
func New() *Capturer {
	return &Capturer{grab: screenshot.CaptureRect}
}

// Capture grabs region and reports whether its pixels differ from the
// previous grab. An unchanged frame returns (nil, false, nil).
func (c *Capturer) Capture(region image.Rectangle) (*image.RGBA, bool, error) {
	img, err := c.capture(region)
	if err != nil {
		return nil, false, err
	}

	hash := pixelHash(img)
	if hash == c.lastHash {
		return nil, false, nil
	}
	c.lastHash = hash
	return img, true, nil
}

// CaptureAlways grabs region regardless of change detection, resetting the
// change hash. Used when the region itself moved.
func (c *Capturer) CaptureAlways(region image.Rectangle) (*image.RGBA, error) {
	img, err := c.capture(region)
	if err != nil {
		return nil, err
	}
	c.lastHash = pixelHash(img)
	return img, nil
}

func (c *Capturer) capture(region image.Rectangle) (*image.RGBA, error) {
	if err := Validate(region); err != nil {
		return nil, err
	}

	img, err := c.grab(region)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "grab screen region").
			WithMetadata("region", region.String())
	}
	if img == nil || img.Bounds().Empty() {
		return nil, apperrors.New(apperrors.CodeCaptureFailed, "grab returned empty frame")
	}
	return img, nil
}

// pixelHash digests the full pixel buffer. A capture region is small enough
// that this costs well under a millisecond per tick.
func pixelHash(img *image.RGBA) [16]byte {
	return md5.Sum(img.Pix)
}

// Validate rejects degenerate capture regions.
func Validate(region image.Rectangle) error {
	if region.Dx() <= 0 || region.Dy() <= 0 {
		return apperrors.New(apperrors.CodeInvalidInput, "region must have positive dimensions").
			WithMetadata("region", region.String())
	}
	return nil
}

// VirtualBounds returns the union of all active displays, the space capture
// regions live in.
func VirtualBounds() image.Rectangle {
	var bounds image.Rectangle
	for i := 0; i < screenshot.NumActiveDisplays(); i++ {
		bounds = bounds.Union(screenshot.GetDisplayBounds(i))
	}
	return bounds
}

// Clamp fits region inside bounds, preserving its size where possible by
// shifting before shrinking. Empty bounds (headless tests) pass region
// through untouched.
func Clamp(region, bounds image.Rectangle) image.Rectangle {
	if bounds.Empty() || region.Empty() {
		return region
	}

	w, h := region.Dx(), region.Dy()
	if w > bounds.Dx() {
		w = bounds.Dx()
	}
	if h > bounds.Dy() {
		h = bounds.Dy()
	}

	x, y := region.Min.X, region.Min.Y
	if x < bounds.Min.X {
		x = bounds.Min.X
	}
	if x+w > bounds.Max.X {
		x = bounds.Max.X - w
	}
	if y < bounds.Min.Y {
		y = bounds.Min.Y
	}
	if y+h > bounds.Max.Y {
		y = bounds.Max.Y - h
	}

	return image.Rect(x, y, x+w, y+h)
}
