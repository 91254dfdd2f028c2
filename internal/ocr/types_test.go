package ocr

import (
	"image"
	"testing"
)

func TestWordMerge(t *testing.T) {
	a := Word{Text: "中", Box: image.Rect(0, 0, 30, 30), Confidence: 95}
	b := Word{Text: "國", Box: image.Rect(32, 2, 60, 28), Confidence: 88}

	merged := a.Merge(b)

	if merged.Text != "中國" {
		t.Errorf("Text = %q, want %q", merged.Text, "中國")
	}
	if want := image.Rect(0, 0, 60, 30); merged.Box != want {
		t.Errorf("Box = %v, want union %v", merged.Box, want)
	}
	if merged.Confidence != 88 {
		t.Errorf("Confidence = %v, want min 88", merged.Confidence)
	}
}

func TestWordMergeKeepsLowerConfidence(t *testing.T) {
	a := Word{Text: "你", Box: image.Rect(0, 0, 10, 10), Confidence: 40}
	b := Word{Text: "好", Box: image.Rect(10, 0, 20, 10), Confidence: 99}

	if got := a.Merge(b).Confidence; got != 40 {
		t.Errorf("Confidence = %v, want 40", got)
	}
}

func TestResultScaled(t *testing.T) {
	r := Result{
		Text: "你好",
		Lines: []Line{{
			Box: image.Rect(0, 0, 500, 150),
			Words: []Word{
				{Text: "你好", Box: image.Rect(50, 50, 300, 150), Confidence: 92},
			},
		}},
	}

	scaled := r.Scaled(5)

	if scaled.Text != "你好" {
		t.Errorf("Text = %q, want unchanged", scaled.Text)
	}
	if want := image.Rect(0, 0, 100, 30); scaled.Lines[0].Box != want {
		t.Errorf("line Box = %v, want %v", scaled.Lines[0].Box, want)
	}
	if want := image.Rect(10, 10, 60, 30); scaled.Lines[0].Words[0].Box != want {
		t.Errorf("word Box = %v, want %v", scaled.Lines[0].Words[0].Box, want)
	}

	// Original untouched.
	if r.Lines[0].Words[0].Box != image.Rect(50, 50, 300, 150) {
		t.Errorf("Scaled must not mutate the receiver")
	}
}

func TestResultScaledIdentity(t *testing.T) {
	r := Result{Lines: []Line{{Box: image.Rect(1, 2, 3, 4)}}}

	if got := r.Scaled(1); got.Lines[0].Box != r.Lines[0].Box {
		t.Errorf("Scaled(1) changed geometry: %v", got.Lines[0].Box)
	}
	if got := r.Scaled(0); got.Lines[0].Box != r.Lines[0].Box {
		t.Errorf("Scaled(0) changed geometry: %v", got.Lines[0].Box)
	}
}

func TestResultEmpty(t *testing.T) {
	if !(Result{}).Empty() {
		t.Error("zero Result should be empty")
	}
	if !(Result{Text: " \n\t "}).Empty() {
		t.Error("whitespace-only Result should be empty")
	}
	if (Result{Text: "你"}).Empty() {
		t.Error("Result with text should not be empty")
	}
	if (Result{Lines: []Line{{}}}).Empty() {
		t.Error("Result with lines should not be empty")
	}
}

func TestResultWordCount(t *testing.T) {
	r := Result{Lines: []Line{
		{Words: []Word{{Text: "你"}, {Text: "好"}}},
		{Words: []Word{{Text: "嗎"}}},
	}}

	if got := r.WordCount(); got != 3 {
		t.Errorf("WordCount() = %d, want 3", got)
	}
}
