// Package drop holds the values flowing through the analysis pipeline:
// normalized frames, detected edges, fitted models and bulk fit results.
//
// Physical coordinates have their origin at the bottom-left corner of the
// cropped frame with y pointing up. Pixel coordinates are relative to the
// top-left corner of the crop with y pointing down.
package drop

import (
	"image"

	"drop-analyzer/pkg/geometry"
)

// Units labels the physical units of lengths and times.
type Units struct {
	Length string `json:"length"`
	Time   string `json:"time"`
}

// NormalizedFrame is a raw frame after baseline, crop and scale were applied.
type NormalizedFrame struct {
	// Index is the position of the frame in the original sequence.
	Index int
	// Image holds the cropped grayscale pixels with bounds starting at (0, 0).
	Image *image.Gray
	// Origin is the crop corner in raw frame pixels.
	Origin image.Point

	Dx, Dy float64
	Time   float64
	Units  Units

	// Baseline in physical coordinates, P1 left of P2.
	Baseline geometry.Baseline
}

// BlankFrame returns the frame used when the requested one is not
// available: a single black pixel with unit scale.
func BlankFrame(index int) *NormalizedFrame {
	return &NormalizedFrame{
		Index:    index,
		Image:    image.NewGray(image.Rect(0, 0, 1, 1)),
		Dx:       1,
		Dy:       1,
		Baseline: geometry.NewBaseline(geometry.NewPoint2D(0, 0), geometry.NewPoint2D(1, 0)),
	}
}

// Empty reports whether the frame carries no pixels.
func (f *NormalizedFrame) Empty() bool {
	return f == nil || f.Image == nil || f.Image.Bounds().Empty()
}

// Size returns the crop size in pixels.
func (f *NormalizedFrame) Size() (width, height int) {
	if f.Empty() {
		return 0, 0
	}
	b := f.Image.Bounds()
	return b.Dx(), b.Dy()
}

// ToPhysical converts crop-relative pixel coordinates to physical ones.
func (f *NormalizedFrame) ToPhysical(px, py float64) geometry.Point2D {
	_, h := f.Size()
	return geometry.Point2D{X: px * f.Dx, Y: (float64(h) - py) * f.Dy}
}

// ToPixel converts physical coordinates back to crop-relative pixels.
func (f *NormalizedFrame) ToPixel(p geometry.Point2D) geometry.Point2D {
	_, h := f.Size()
	dx, dy := f.Dx, f.Dy
	if dx == 0 {
		dx = 1
	}
	if dy == 0 {
		dy = 1
	}
	return geometry.Point2D{X: p.X / dx, Y: float64(h) - p.Y/dy}
}

// BaselinePixels returns the baseline in crop-relative pixels.
func (f *NormalizedFrame) BaselinePixels() geometry.Baseline {
	return f.Baseline.Map(f.ToPixel)
}
