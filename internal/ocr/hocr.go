package ocr

import (
	"image"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	apperrors "github.com/hanlens/hanlens/internal/errors"
)

// hOCR element classes that carry line-level geometry. Tesseract mostly
// emits ocr_line but headers and captions appear on mixed content.
var lineClasses = map[string]bool{
	"ocr_line":      true,
	"ocr_header":    true,
	"ocr_caption":   true,
	"ocr_textfloat": true,
}

// ParseHOCR extracts positioned words from Tesseract hOCR output. Lines
// with no recognizable words are dropped; a word without a bbox is dropped;
// a missing x_wconf leaves confidence at zero so the word renders flagged.
func ParseHOCR(data string) ([]Line, error) {
	doc, err := html.Parse(strings.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeOCRExtract, "parse hOCR markup")
	}

	var lines []Line
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && lineClasses[attr(n, "class")] {
			if line, ok := parseLine(n); ok {
				lines = append(lines, line)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return lines, nil
}

// parseLine collects the ocrx_word children of a line element.
func parseLine(n *html.Node) (Line, bool) {
	var line Line
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && attr(n, "class") == "ocrx_word" {
			if w, ok := parseWord(n); ok {
				line.Words = append(line.Words, w)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	if len(line.Words) == 0 {
		return Line{}, false
	}

	props := titleProps(attr(n, "title"))
	if box, ok := parseBBox(props["bbox"]); ok {
		line.Box = box
	} else {
		for _, w := range line.Words {
			line.Box = line.Box.Union(w.Box)
		}
	}
	return line, true
}

func parseWord(n *html.Node) (Word, bool) {
	text := strings.TrimSpace(nodeText(n))
	if text == "" {
		return Word{}, false
	}

	props := titleProps(attr(n, "title"))
	box, ok := parseBBox(props["bbox"])
	if !ok {
		return Word{}, false
	}

	conf := 0.0
	if v, err := strconv.ParseFloat(props["x_wconf"], 64); err == nil {
		conf = v
	}

	return Word{Text: text, Box: box, Confidence: conf}, true
}

// titleProps splits an hOCR title attribute into its properties:
// "bbox 61 54 217 79; x_wconf 93" yields bbox and x_wconf keys.
func titleProps(title string) map[string]string {
	props := make(map[string]string)
	for _, part := range strings.Split(title, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if key, value, ok := strings.Cut(part, " "); ok {
			props[key] = strings.TrimSpace(value)
		}
	}
	return props
}

func parseBBox(s string) (image.Rectangle, bool) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return image.Rectangle{}, false
	}

	coords := make([]int, 4)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return image.Rectangle{}, false
		}
		coords[i] = v
	}
	return image.Rect(coords[0], coords[1], coords[2], coords[3]), true
}

// attr returns the value of the named attribute, or empty.
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// nodeText concatenates the text nodes under n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
