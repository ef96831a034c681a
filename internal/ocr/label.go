package ocr

import (
	"fmt"
	"image"
	"regexp"
	"strings"

	"drop-analyzer/internal/units"
)

var labelPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*(mm|cm|um|nm|m)\b`)

// ParseLabel extracts "<value> <unit>" from recognized label text,
// tolerating decimal commas, micro signs and stray characters.
func ParseLabel(text string) (string, error) {
	clean := strings.ToLower(text)
	clean = strings.NewReplacer(",", ".", "µ", "u", "μ", "u").Replace(clean)
	m := labelPattern.FindStringSubmatch(clean)
	if m == nil {
		return "", &units.ParseError{Field: "scale label", Text: text}
	}
	return m[1] + " " + m[2], nil
}

// ReadScale reads the scale-bar label in region of frame and returns the
// size of one pixel, given the length of the bar in pixels. The normalized
// label text is returned along with the scale.
func (e *Engine) ReadScale(frame image.Image, region image.Rectangle, barPixels float64) (units.Quantity, string, error) {
	text, err := e.ReadRegion(frame, region)
	if err != nil {
		return units.Quantity{}, "", err
	}
	label, err := ParseLabel(text)
	if err != nil {
		return units.Quantity{}, text, err
	}
	q, err := units.PixelScale(label, barPixels)
	if err != nil {
		return units.Quantity{}, label, fmt.Errorf("label %q: %w", label, err)
	}
	return q, label, nil
}
