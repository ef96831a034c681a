// Package geometry provides basic geometric types used throughout the application.
package geometry

import (
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Add returns the sum of two points.
func (p Point2D) Add(other Point2D) Point2D {
	return Point2D{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Scale returns the point scaled by a factor.
func (p Point2D) Scale(factor float64) Point2D {
	return Point2D{X: p.X * factor, Y: p.Y * factor}
}

// IsNaN reports whether either coordinate is NaN.
func (p Point2D) IsNaN() bool {
	return math.IsNaN(p.X) || math.IsNaN(p.Y)
}

// NaNPoint returns a point with both coordinates set to NaN.
func NaNPoint() Point2D {
	return Point2D{X: math.NaN(), Y: math.NaN()}
}

// ApproxEqual compares two points coordinate-wise with an absolute tolerance.
func (p Point2D) ApproxEqual(other Point2D, tol float64) bool {
	return approx(p.X, other.X, tol) && approx(p.Y, other.Y, tol)
}

// Interval is a closed range [Min, Max].
type Interval struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Length returns Max - Min.
func (i Interval) Length() float64 {
	return i.Max - i.Min
}

// Sorted returns the interval with Min <= Max.
func (i Interval) Sorted() Interval {
	if i.Min > i.Max {
		return Interval{Min: i.Max, Max: i.Min}
	}
	return i
}

// Contains reports whether v lies inside the interval.
func (i Interval) Contains(v float64) bool {
	return v >= i.Min && v <= i.Max
}

// ApproxEqual compares both bounds with an absolute tolerance.
func (i Interval) ApproxEqual(other Interval, tol float64) bool {
	return approx(i.Min, other.Min, tol) && approx(i.Max, other.Max, tol)
}

// RectInt represents a rectangle with integer coordinates.
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the rectangle has no area.
func (r RectInt) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Baseline is the reference line (usually the substrate surface) against
// which drop geometry and contact angles are measured.
type Baseline struct {
	P1 Point2D `json:"pt1" yaml:"pt1"`
	P2 Point2D `json:"pt2" yaml:"pt2"`
}

// NewBaseline creates a baseline from two points.
func NewBaseline(p1, p2 Point2D) Baseline {
	return Baseline{P1: p1, P2: p2}
}

// IsZero reports whether the baseline is undefined.
func (b Baseline) IsZero() bool {
	return b.P1 == b.P2
}

// Angle returns the baseline inclination in radians.
func (b Baseline) Angle() float64 {
	return math.Atan2(b.P2.Y-b.P1.Y, b.P2.X-b.P1.X)
}

// Length returns the distance between the two baseline points.
func (b Baseline) Length() float64 {
	return b.P1.Distance(b.P2)
}

// ApproxEqual compares both points with an absolute tolerance.
func (b Baseline) ApproxEqual(other Baseline, tol float64) bool {
	return b.P1.ApproxEqual(other.P1, tol) && b.P2.ApproxEqual(other.P2, tol)
}

// Map returns the baseline with both points transformed by fn.
func (b Baseline) Map(fn func(Point2D) Point2D) Baseline {
	return Baseline{P1: fn(b.P1), P2: fn(b.P2)}
}

// ToLocal returns the transform from global coordinates into the baseline
// frame: u along the baseline starting at P1, v perpendicular to it.
// An undefined baseline maps to the horizontal axis through the origin.
func (b Baseline) ToLocal() AffineTransform {
	if b.IsZero() {
		return Identity()
	}
	return Rotation(-b.Angle()).Compose(Translation(-b.P1.X, -b.P1.Y))
}

// ToGlobal returns the inverse of ToLocal.
func (b Baseline) ToGlobal() AffineTransform {
	inv, ok := b.ToLocal().Inverse()
	if !ok {
		return Identity()
	}
	return inv
}

// AffineTransform represents a 2x3 affine transformation matrix.
// [a b tx]
// [c d ty]
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// Identity returns the identity transform.
func Identity() AffineTransform {
	return AffineTransform{A: 1, D: 1}
}

// Translation returns a translation transform.
func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, D: 1, TX: tx, TY: ty}
}

// Rotation returns a rotation transform around the origin.
func Rotation(radians float64) AffineTransform {
	cos := math.Cos(radians)
	sin := math.Sin(radians)
	return AffineTransform{A: cos, B: -sin, C: sin, D: cos}
}

// Apply applies the transform to a point.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// ApplyAll applies the transform to every point and returns a new slice.
func (t AffineTransform) ApplyAll(points []Point2D) []Point2D {
	out := make([]Point2D, len(points))
	for i, p := range points {
		out[i] = t.Apply(p)
	}
	return out
}

// Compose returns this transform composed with another (this * other).
func (t AffineTransform) Compose(other AffineTransform) AffineTransform {
	return AffineTransform{
		A:  t.A*other.A + t.B*other.C,
		B:  t.A*other.B + t.B*other.D,
		TX: t.A*other.TX + t.B*other.TY + t.TX,
		C:  t.C*other.A + t.D*other.C,
		D:  t.C*other.B + t.D*other.D,
		TY: t.C*other.TX + t.D*other.TY + t.TY,
	}
}

// Inverse returns the inverse transform, if it exists.
func (t AffineTransform) Inverse() (AffineTransform, bool) {
	det := t.A*t.D - t.B*t.C
	if math.Abs(det) < 1e-10 {
		return AffineTransform{}, false
	}

	invDet := 1.0 / det
	return AffineTransform{
		A:  t.D * invDet,
		B:  -t.B * invDet,
		TX: (t.B*t.TY - t.D*t.TX) * invDet,
		C:  -t.C * invDet,
		D:  t.A * invDet,
		TY: (t.C*t.TX - t.A*t.TY) * invDet,
	}, true
}

// Centroid computes the centroid (average position) of a set of points.
func Centroid(points []Point2D) Point2D {
	if len(points) == 0 {
		return Point2D{}
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points))
	return Point2D{X: sumX / n, Y: sumY / n}
}

// Bounds returns the X and Y extents of a set of points.
func Bounds(points []Point2D) (x, y Interval) {
	if len(points) == 0 {
		return Interval{}, Interval{}
	}
	x = Interval{Min: points[0].X, Max: points[0].X}
	y = Interval{Min: points[0].Y, Max: points[0].Y}
	for _, p := range points[1:] {
		x.Min = math.Min(x.Min, p.X)
		x.Max = math.Max(x.Max, p.X)
		y.Min = math.Min(y.Min, p.Y)
		y.Max = math.Max(y.Max, p.Y)
	}
	return x, y
}

func approx(a, b, tol float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= tol
}
