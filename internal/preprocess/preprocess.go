// Package preprocess reshapes a captured frame into something Tesseract
// reads well: screen text is small, anti-aliased and often light-on-dark,
// so the chain inverts, upscales, binarizes, normalizes and sharpens before
// the engine ever sees it.
package preprocess

import (
	"image"
	"image/draw"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
)

const (
	// MaxUpscale caps the resize factor; beyond this the frames get big
	// enough to stall the capture loop.
	MaxUpscale = 8

	sharpenRadius = 1.0
	sharpenAmount = 0.5
)

// Options toggles the individual chain steps.
type Options struct {
	Upscale   int // resize factor, clamped to [1, MaxUpscale]
	Invert    bool
	Threshold bool
	Normalize bool
	Grayscale bool
	Sharpen   bool
}

// DefaultOptions enables the full chain at five times upscale.
func DefaultOptions() Options {
	return Options{
		Upscale:   5,
		Invert:    true,
		Threshold: true,
		Normalize: true,
		Grayscale: true,
		Sharpen:   true,
	}
}

// scale returns the clamped effective resize factor.
func (o Options) scale() int {
	switch {
	case o.Upscale < 1:
		return 1
	case o.Upscale > MaxUpscale:
		return MaxUpscale
	}
	return o.Upscale
}

// Run applies the enabled steps in order and returns the processed image
// together with the effective upscale factor, which callers use to map OCR
// geometry back to capture coordinates.
func Run(src image.Image, opts Options) (image.Image, int) {
	img := src
	scale := opts.scale()

	if opts.Invert {
		img = effect.Invert(img)
	}
	if scale > 1 {
		b := img.Bounds()
		img = imaging.Resize(img, b.Dx()*scale, b.Dy()*scale, imaging.Box)
	}
	if opts.Threshold {
		img = segment.Threshold(img, otsuLevel(img))
	}
	if opts.Normalize {
		img = normalize(img)
	}
	if opts.Grayscale {
		img = effect.Grayscale(img)
	}
	if opts.Sharpen {
		img = effect.UnsharpMask(img, sharpenRadius, sharpenAmount)
	}
	return img, scale
}

// otsuLevel picks the binarization threshold that best separates the
// luminance histogram into two classes.
func otsuLevel(img image.Image) uint8 {
	gray := toGray(img)

	var hist [256]int
	for _, p := range gray.Pix {
		hist[p]++
	}
	total := len(gray.Pix)
	if total == 0 {
		return 128
	}

	sum := 0.0
	for i, c := range hist {
		sum += float64(i * c)
	}

	var sumB, wB float64
	var maxVariance float64
	level := uint8(128)
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])

		mB := sumB / wB
		mF := (sum - sumB) / wF
		variance := wB * wF * (mB - mF) * (mB - mF)
		if variance > maxVariance {
			maxVariance = variance
			level = uint8(t)
		}
	}
	return level
}

// normalize stretches the luminance range to full contrast, what the
// engine's binarizer expects after quantization.
func normalize(img image.Image) *image.Gray {
	gray := toGray(img)
	if len(gray.Pix) == 0 {
		return gray
	}

	lo, hi := uint8(255), uint8(0)
	for _, p := range gray.Pix {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	if hi <= lo {
		return gray
	}

	scale := 255.0 / float64(hi-lo)
	for i, p := range gray.Pix {
		gray.Pix[i] = uint8(float64(p-lo)*scale + 0.5)
	}
	return gray
}

// toGray copies img into a fresh grayscale buffer; steps mutate it freely
// without touching the caller's frame.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
