package ocr

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drop-analyzer/internal/units"
)

func TestParseLabel(t *testing.T) {
	cases := map[string]string{
		"500 um":      "500 um",
		"500µm":       "500 um",
		" 1,5 mm ":    "1.5 mm",
		"|- 2 mm -|":  "2 mm",
		"0.1m":        "0.1 m",
		"scale 20 nm": "20 nm",
	}
	for in, want := range cases {
		got, err := ParseLabel(in)
		if assert.NoError(t, err, in) {
			assert.Equal(t, want, got, in)
		}
	}
}

func TestParseLabelErrors(t *testing.T) {
	for _, in := range []string{"", "mm", "12 furlongs", "5 mmm"} {
		_, err := ParseLabel(in)
		var perr *units.ParseError
		assert.ErrorAs(t, err, &perr, in)
	}
}

func TestParsedLabelFeedsPixelScale(t *testing.T) {
	label, err := ParseLabel("500 µm")
	require.NoError(t, err)
	q, err := units.PixelScale(label, 250)
	require.NoError(t, err)
	assert.Equal(t, "um", q.Unit)
	assert.InDelta(t, 2, q.Value, 1e-12)
}

func TestToGray(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 6, 4))
	img.Set(3, 2, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	gray := toGray(img, image.Rect(2, 1, 5, 4))
	assert.Equal(t, image.Rect(0, 0, 3, 3), gray.Bounds())
	assert.Equal(t, uint8(255), gray.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(0), gray.GrayAt(0, 0).Y)
}
