// Package clipboard mirrors recognized text onto the system clipboard so a
// capture can be pasted straight into other tools.
package clipboard

import (
	"github.com/atotto/clipboard"

	apperrors "github.com/hanlens/hanlens/internal/errors"
)

// Writer copies recognition text to the system clipboard.
type Writer struct {
	enabled bool
	write   func(string) error
	last    string
}

// New returns a Writer. A disabled Writer accepts copies and drops them.
func New(enabled bool) *Writer {
	return &Writer{enabled: enabled, write: clipboard.WriteAll}
}

// Copy places text on the clipboard. Empty text and repeats of the last
// copy are dropped so successive frames of the same screen region do not
// clobber whatever the user copied in between.
func (w *Writer) Copy(text string) error {
	if !w.enabled || text == "" || text == w.last {
		return nil
	}
	if err := w.write(text); err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "clipboard write failed")
	}
	w.last = text
	return nil
}

// Enabled reports whether copies reach the system clipboard.
func (w *Writer) Enabled() bool {
	return w.enabled
}
