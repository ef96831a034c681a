package image

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"drop-analyzer/pkg/colorutil"
	"drop-analyzer/pkg/geometry"
)

// Overlay draws analysis results over a frame. Coordinates are
// crop-relative pixels.
type Overlay struct {
	Frame    image.Image
	Baseline geometry.Baseline
	Edge     []geometry.Point2D
	Curve    []geometry.Point2D
	Center   geometry.Point2D
	Opacity  float64
}

// NewOverlay creates an overlay of frame with opaque marks.
func NewOverlay(frame image.Image) *Overlay {
	return &Overlay{Frame: frame, Center: geometry.NaNPoint(), Opacity: 1}
}

// Render produces the frame with baseline, edge, fit curve and center.
func (o *Overlay) Render() *image.RGBA {
	b := o.Frame.Bounds()
	result := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(result, result.Bounds(), o.Frame, b.Min, draw.Src)

	if !o.Baseline.IsZero() {
		o.line(result, o.Baseline.P1, o.Baseline.P2, colorutil.Baseline)
	}
	for _, p := range o.Edge {
		o.dot(result, p, colorutil.Edge)
	}
	for i := 1; i < len(o.Curve); i++ {
		o.line(result, o.Curve[i-1], o.Curve[i], colorutil.Fit)
	}
	if !o.Center.IsNaN() {
		o.cross(result, o.Center, colorutil.Center)
	}
	return result
}

func (o *Overlay) line(dst *image.RGBA, a, b geometry.Point2D, c color.Color) {
	if a.IsNaN() || b.IsNaN() {
		return
	}
	steps := int(math.Ceil(math.Max(math.Abs(b.X-a.X), math.Abs(b.Y-a.Y))))
	if steps == 0 {
		o.dot(dst, a, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		o.dot(dst, geometry.NewPoint2D(a.X+t*(b.X-a.X), a.Y+t*(b.Y-a.Y)), c)
	}
}

func (o *Overlay) cross(dst *image.RGBA, p geometry.Point2D, c color.Color) {
	for d := -3.0; d <= 3; d++ {
		o.dot(dst, geometry.NewPoint2D(p.X+d, p.Y), c)
		o.dot(dst, geometry.NewPoint2D(p.X, p.Y+d), c)
	}
}

func (o *Overlay) dot(dst *image.RGBA, p geometry.Point2D, c color.Color) {
	if p.IsNaN() {
		return
	}
	x, y := int(math.Round(p.X)), int(math.Round(p.Y))
	if !(image.Point{X: x, Y: y}).In(dst.Bounds()) {
		return
	}
	dst.Set(x, y, blend(dst.At(x, y), c, o.Opacity))
}

// blend mixes src over dst with the given opacity.
func blend(dst, src color.Color, opacity float64) color.Color {
	sr, sg, sb, sa := src.RGBA()
	dr, dg, db, da := dst.RGBA()

	sf := [4]float64{float64(sr) / 65535.0, float64(sg) / 65535.0, float64(sb) / 65535.0, float64(sa) / 65535.0}
	df := [4]float64{float64(dr) / 65535.0, float64(dg) / 65535.0, float64(db) / 65535.0, float64(da) / 65535.0}

	alpha := sf[3] * clamp(opacity, 0, 1)
	return color.RGBA{
		R: uint8(clamp(sf[0]*alpha+df[0]*(1-alpha), 0, 1) * 255),
		G: uint8(clamp(sf[1]*alpha+df[1]*(1-alpha), 0, 1) * 255),
		B: uint8(clamp(sf[2]*alpha+df[2]*(1-alpha), 0, 1) * 255),
		A: uint8(clamp(alpha+df[3]*(1-alpha), 0, 1) * 255),
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
