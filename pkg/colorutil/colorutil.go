// Package colorutil provides the shared colors of overlays and plots.
package colorutil

import (
	"image/color"
)

// Overlay colors drawn over frames.
var (
	Black    = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Edge     = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	Fit      = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	Baseline = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Center   = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// palette is used for plotted series, in order.
var palette = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
}

// Series returns the color of the i-th plotted series.
func Series(i int) color.RGBA {
	if i < 0 {
		i = -i
	}
	return palette[i%len(palette)]
}

// Luminance returns the Rec. 601 luma of an RGB color (0-255).
func Luminance(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

// WithAlpha returns c with its alpha replaced, keeping RGBA premultiplied.
func WithAlpha(c color.RGBA, alpha uint8) color.RGBA {
	scale := float64(alpha) / 255
	return color.RGBA{
		R: uint8(float64(c.R) * scale),
		G: uint8(float64(c.G) * scale),
		B: uint8(float64(c.B) * scale),
		A: alpha,
	}
}
