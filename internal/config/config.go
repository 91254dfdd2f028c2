// Package config loads and persists application settings. Settings live in
// an INI file (config.ini next to the binary by default); environment
// variables override file values at load time. The capture region is written
// back through Save whenever the user moves or resizes it.
package config

import (
	"image"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	apperrors "github.com/hanlens/hanlens/internal/errors"
)

// Variant selects the Chinese script for both the OCR model and the
// dictionary headword used on lookup.
type Variant string

const (
	ChiTra Variant = "ChiTra" // traditional script
	ChiSim Variant = "ChiSim" // simplified script
)

// ParseVariant maps a config value onto a Variant. The second return is
// false when the value is unrecognized and the traditional default applies.
func ParseVariant(s string) (Variant, bool) {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(s), `"`)) {
	case "chitra":
		return ChiTra, true
	case "chisim":
		return ChiSim, true
	}
	return ChiTra, false
}

// TessLang returns the Tesseract traineddata name for the variant.
func (v Variant) TessLang() string {
	if v == ChiSim {
		return "chi_sim"
	}
	return "chi_tra"
}

// Traditional reports whether lookups should match the traditional headword.
func (v Variant) Traditional() bool {
	return v != ChiSim
}

// Defaults
const (
	DefaultPath     = "config.ini"
	DefaultDictPath = "cedict_ts.u8"
	DefaultInterval = time.Second
	DefaultUpscale  = 5

	DefaultTextColor    = "#000000"
	DefaultLowConfColor = "#FF0000"
	DefaultHighlight    = "#00FF00"
	DefaultPanelColor   = "#FFFFFF"

	DefaultServerAddr = "127.0.0.1:8090"
)

// DefaultRegion is the initial capture region before the user has placed one.
func DefaultRegion() image.Rectangle {
	return image.Rect(100, 100, 500, 300)
}

type Config struct {
	// [other]
	Language Variant

	// [region] capture region in virtual-screen coordinates
	Region image.Rectangle

	// [ocr]
	Interval       time.Duration
	Upscale        int
	Preprocess     bool
	Invert         bool
	Threshold      bool
	Normalize      bool
	Grayscale      bool
	Sharpen        bool
	TessdataPrefix string

	// [dictionary]
	DictPath string

	// [overlay]
	TextColor      string
	LowConfColor   string
	HighlightColor string
	PanelColor     string
	PanelOpacity   float64
	FontScale      float64

	// [server]
	ServerEnabled bool
	ServerAddr    string

	// [clipboard]
	ClipboardEnabled bool

	path string
	file *ini.File
}

// Load reads the INI file at path, falling back to defaults for anything
// missing, then applies environment overrides. A missing file is not an
// error; the file is created on the first Save.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	f, err := ini.LoadSources(ini.LoadOptions{
		Loose:                     true,
		UnescapeValueDoubleQuotes: true,
		SpaceBeforeInlineComment:  true,
	}, path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "parse config file").
			WithMetadata("path", path)
	}

	c := &Config{path: path, file: f}

	lang := f.Section("other").Key("language").MustString(string(ChiTra))
	variant, ok := ParseVariant(lang)
	if !ok {
		slog.Warn("unknown language in config, using traditional", "language", lang)
	}
	c.Language = variant

	def := DefaultRegion()
	reg := f.Section("region")
	x := reg.Key("x").MustInt(def.Min.X)
	y := reg.Key("y").MustInt(def.Min.Y)
	w := reg.Key("width").MustInt(def.Dx())
	h := reg.Key("height").MustInt(def.Dy())
	if w <= 0 || h <= 0 {
		slog.Warn("non-positive region dimensions in config, using default", "width", w, "height", h)
		c.Region = def
	} else {
		c.Region = image.Rect(x, y, x+w, y+h)
	}

	ocr := f.Section("ocr")
	c.Interval = ocr.Key("interval").MustDuration(DefaultInterval)
	c.Upscale = ocr.Key("upscale").MustInt(DefaultUpscale)
	c.Preprocess = ocr.Key("preprocess").MustBool(true)
	c.Invert = ocr.Key("invert").MustBool(true)
	c.Threshold = ocr.Key("threshold").MustBool(true)
	c.Normalize = ocr.Key("normalize").MustBool(true)
	c.Grayscale = ocr.Key("grayscale").MustBool(true)
	c.Sharpen = ocr.Key("sharpen").MustBool(true)
	c.TessdataPrefix = ocr.Key("tessdata").MustString("")

	c.DictPath = f.Section("dictionary").Key("path").MustString(DefaultDictPath)

	ov := f.Section("overlay")
	c.TextColor = ov.Key("text_color").MustString(DefaultTextColor)
	c.LowConfColor = ov.Key("low_confidence_color").MustString(DefaultLowConfColor)
	c.HighlightColor = ov.Key("highlight_color").MustString(DefaultHighlight)
	c.PanelColor = ov.Key("panel_color").MustString(DefaultPanelColor)
	c.PanelOpacity = ov.Key("panel_opacity").MustFloat64(1.0)
	c.FontScale = ov.Key("font_scale").MustFloat64(1.0)

	srv := f.Section("server")
	c.ServerEnabled = srv.Key("enabled").MustBool(false)
	c.ServerAddr = srv.Key("addr").MustString(DefaultServerAddr)

	c.ClipboardEnabled = f.Section("clipboard").Key("enabled").MustBool(true)

	c.applyEnv()
	return c, nil
}

// applyEnv lets environment variables override file values. Overrides become
// part of the effective config and are written out by the next Save.
func (c *Config) applyEnv() {
	if v := os.Getenv("HANLENS_LANGUAGE"); v != "" {
		variant, ok := ParseVariant(v)
		if !ok {
			slog.Warn("unknown language in HANLENS_LANGUAGE, using traditional", "language", v)
		}
		c.Language = variant
	}
	c.Interval = getEnvDuration("HANLENS_INTERVAL", c.Interval)
	c.Upscale = getEnvInt("HANLENS_UPSCALE", c.Upscale)
	c.Preprocess = getEnvBool("HANLENS_PREPROCESS", c.Preprocess)
	c.TessdataPrefix = getEnv("HANLENS_TESSDATA_PREFIX", c.TessdataPrefix)
	c.DictPath = getEnv("HANLENS_DICT_PATH", c.DictPath)
	c.FontScale = getEnvFloat("HANLENS_FONT_SCALE", c.FontScale)
	c.ServerEnabled = getEnvBool("HANLENS_SERVER_ENABLED", c.ServerEnabled)
	c.ServerAddr = getEnv("HANLENS_SERVER_ADDR", c.ServerAddr)
	c.ClipboardEnabled = getEnvBool("HANLENS_CLIPBOARD_ENABLED", c.ClipboardEnabled)
}

// Save writes the effective config back to the INI file, preserving any
// sections and keys this version does not know about.
func (c *Config) Save() error {
	if c.file == nil {
		c.file = ini.Empty()
	}

	c.file.Section("other").Key("language").SetValue(`"` + string(c.Language) + `"`)

	reg := c.file.Section("region")
	reg.Key("x").SetValue(strconv.Itoa(c.Region.Min.X))
	reg.Key("y").SetValue(strconv.Itoa(c.Region.Min.Y))
	reg.Key("width").SetValue(strconv.Itoa(c.Region.Dx()))
	reg.Key("height").SetValue(strconv.Itoa(c.Region.Dy()))

	ocr := c.file.Section("ocr")
	ocr.Key("interval").SetValue(c.Interval.String())
	ocr.Key("upscale").SetValue(strconv.Itoa(c.Upscale))
	ocr.Key("preprocess").SetValue(strconv.FormatBool(c.Preprocess))
	ocr.Key("invert").SetValue(strconv.FormatBool(c.Invert))
	ocr.Key("threshold").SetValue(strconv.FormatBool(c.Threshold))
	ocr.Key("normalize").SetValue(strconv.FormatBool(c.Normalize))
	ocr.Key("grayscale").SetValue(strconv.FormatBool(c.Grayscale))
	ocr.Key("sharpen").SetValue(strconv.FormatBool(c.Sharpen))
	ocr.Key("tessdata").SetValue(c.TessdataPrefix)

	c.file.Section("dictionary").Key("path").SetValue(c.DictPath)

	ov := c.file.Section("overlay")
	ov.Key("text_color").SetValue(c.TextColor)
	ov.Key("low_confidence_color").SetValue(c.LowConfColor)
	ov.Key("highlight_color").SetValue(c.HighlightColor)
	ov.Key("panel_color").SetValue(c.PanelColor)
	ov.Key("panel_opacity").SetValue(strconv.FormatFloat(c.PanelOpacity, 'f', -1, 64))
	ov.Key("font_scale").SetValue(strconv.FormatFloat(c.FontScale, 'f', -1, 64))

	srv := c.file.Section("server")
	srv.Key("enabled").SetValue(strconv.FormatBool(c.ServerEnabled))
	srv.Key("addr").SetValue(c.ServerAddr)

	c.file.Section("clipboard").Key("enabled").SetValue(strconv.FormatBool(c.ClipboardEnabled))

	if err := c.file.SaveTo(c.path); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "save config file").
			WithMetadata("path", c.path)
	}
	return nil
}

// Path returns the location the config is persisted to.
func (c *Config) Path() string {
	return c.path
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
