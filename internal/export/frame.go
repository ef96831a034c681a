package export

import (
	"fmt"
	"image/png"
	"os"

	"drop-analyzer/internal/drop"
	dimage "drop-analyzer/internal/image"
	"drop-analyzer/pkg/geometry"
)

// curvePoints is the number of samples drawn along a fitted profile.
const curvePoints = 200

// Annotator gives the display geometry of a frame in crop-relative pixels.
type Annotator interface {
	Normalized(index int) *drop.NormalizedFrame
	EdgeDisplayPoints(index int) []geometry.Point2D
	FitDisplayPoints(index, n int) (curve []geometry.Point2D, center geometry.Point2D, ok bool)
}

// Overlay builds the annotated view of frame index.
func Overlay(a Annotator, index int) *dimage.Overlay {
	f := a.Normalized(index)
	o := dimage.NewOverlay(f.Image)
	o.Baseline = f.BaselinePixels()
	o.Edge = a.EdgeDisplayPoints(index)
	if curve, center, ok := a.FitDisplayPoints(index, curvePoints); ok {
		o.Curve = curve
		o.Center = center
	}
	return o
}

// SaveFrame writes the annotated frame index to a PNG file.
func SaveFrame(path string, a Annotator, index int) error {
	img := Overlay(a, index).Render()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode frame %d: %w", index, err)
	}
	return f.Close()
}
