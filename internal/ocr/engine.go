package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/hanlens/hanlens/internal/errors"
)

// Engine tuning, matching the shape of text an overlay region contains:
// a single uniform block, rendered at screen resolution.
const (
	pageSegMode = gosseract.PSM_SINGLE_BLOCK
	dpiHint     = "300"
)

// Options configures the engine.
type Options struct {
	Lang           string // traineddata name, "chi_tra" or "chi_sim"
	TessdataPrefix string // optional override of the tessdata directory
}

// Engine drives a single Tesseract client. It is not safe for concurrent
// use; the pipeline serializes every pass through one goroutine.
type Engine struct {
	client *gosseract.Client
	lang   string
}

// NewEngine initializes a Tesseract client for the given language.
func NewEngine(opts Options) (*Engine, error) {
	client := gosseract.NewClient()

	if opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(opts.TessdataPrefix); err != nil {
			client.Close()
			return nil, apperrors.Wrap(err, apperrors.CodeOCRInit, "set tessdata prefix").
				WithMetadata("prefix", opts.TessdataPrefix)
		}
	}
	if err := client.SetLanguage(opts.Lang); err != nil {
		client.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeOCRInit, "set language").
			WithMetadata("lang", opts.Lang)
	}
	if err := client.SetPageSegMode(pageSegMode); err != nil {
		client.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeOCRInit, "set page segmentation mode")
	}
	if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), dpiHint); err != nil {
		client.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeOCRInit, "set dpi hint")
	}

	slog.Info("ocr engine ready", "tesseract", client.Version(), "lang", opts.Lang)
	return &Engine{client: client, lang: opts.Lang}, nil
}

// Lang returns the traineddata name the engine was initialized with.
func (e *Engine) Lang() string {
	return e.lang
}

// Recognize runs one pass over img and returns positioned words. Geometry
// is in img's own pixel coordinates; callers that upscaled the image first
// rescale with Result.Scaled.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if img == nil || img.Bounds().Empty() {
		return Result{}, apperrors.New(apperrors.CodeOCRBadImage, "empty frame")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.CodeOCRBadImage, "encode frame")
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.CodeOCRBadImage, "set image")
	}

	markup, err := e.client.HOCRText()
	if err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.CodeOCRExtract, "extract hOCR")
	}
	lines, err := ParseHOCR(markup)
	if err != nil {
		return Result{}, err
	}

	text, err := e.client.Text()
	if err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.CodeOCRExtract, "extract text")
	}

	return Result{Text: text, Lines: lines}, nil
}

// Close releases the Tesseract client.
func (e *Engine) Close() error {
	return e.client.Close()
}
