package drop

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/integrate"

	"drop-analyzer/internal/params"
	"drop-analyzer/pkg/geometry"
)

// ErrNoGeometry is returned by operations needing a fitted model when the
// fit is degenerate.
var ErrNoGeometry = errors.New("fit has no geometry")

// ErrUndefinedAngle is returned when a model cannot produce a contact angle,
// typically because it does not intersect the baseline.
var ErrUndefinedAngle = errors.New("contact angle undefined")

// ContactAngles are interior angles in degrees, measured inside the drop
// between the baseline and the drop profile.
type ContactAngles struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// Mean returns the average of both angles.
func (a ContactAngles) Mean() float64 {
	return (a.Left + a.Right) / 2
}

// TriplePoints are the points where a wetting ridge meets the drop, in the
// baseline frame, with the drop angles measured there.
type TriplePoints struct {
	Left   geometry.Point2D `json:"left"`
	Right  geometry.Point2D `json:"right"`
	Angles ContactAngles    `json:"angles"`
}

// Model is a fitted drop profile. All coordinates are in the baseline
// frame of the fit.
type Model interface {
	// ContactPoints returns where the profile meets the baseline.
	ContactPoints() (left, right geometry.Point2D)
	ContactAngles() (ContactAngles, error)
	// Height returns the apex height above the baseline.
	Height() float64
	Center() geometry.Point2D
	// Width returns the drop width at height v, NaN above the apex.
	Width(v float64) float64
	// Curve samples n points of the profile from left to right.
	Curve(n int) []geometry.Point2D
	// Residual is the RMS distance between the edge and the model.
	Residual() float64
}

// RidgeModel is implemented by models describing a wetting ridge.
type RidgeModel interface {
	Model
	TriplePoints() (TriplePoints, error)
}

// Fit is the result of fitting one edge. A fit without model is degenerate:
// it only carries the baseline and bounds of its edge.
type Fit struct {
	Index  int
	Method params.FitMethod

	Baseline         geometry.Baseline
	XBounds, YBounds geometry.Interval

	Model  Model
	Angles *ContactAngles
	Triple *TriplePoints

	// Padded marks fits repeated to fill a cancelled bulk run.
	Padded bool
}

// DegenerateFit returns a fit without geometry for the given edge.
func DegenerateFit(e *Edge, method params.FitMethod) *Fit {
	f := &Fit{Method: method}
	if e != nil {
		f.Index = e.Index
		f.Baseline = e.Baseline
		f.XBounds = e.XBounds
		f.YBounds = e.YBounds
	}
	return f
}

// Degenerate reports whether the fit has no model.
func (f *Fit) Degenerate() bool {
	return f == nil || f.Model == nil
}

// ComputeContactAngles derives and stores the contact angles, and the
// triple points for ridge models. A failure leaves the angles unset.
func (f *Fit) ComputeContactAngles() error {
	if f.Degenerate() {
		return ErrNoGeometry
	}
	angles, err := f.Model.ContactAngles()
	if err != nil {
		return err
	}
	if math.IsNaN(angles.Left) && math.IsNaN(angles.Right) {
		return ErrUndefinedAngle
	}
	f.Angles = &angles
	if ridge, ok := f.Model.(RidgeModel); ok {
		tp, err := ridge.TriplePoints()
		if err != nil {
			return err
		}
		f.Triple = &tp
	}
	return nil
}

// Stripped returns a copy of the fit without contact angle data.
func (f *Fit) Stripped() *Fit {
	if f == nil {
		return nil
	}
	c := *f
	c.Angles = nil
	c.Triple = nil
	c.Padded = true
	return &c
}

// ContactPoints returns the contact points in physical coordinates.
func (f *Fit) ContactPoints() (left, right geometry.Point2D, ok bool) {
	if f.Degenerate() {
		return geometry.NaNPoint(), geometry.NaNPoint(), false
	}
	l, r := f.Model.ContactPoints()
	g := f.Baseline.ToGlobal()
	return g.Apply(l), g.Apply(r), true
}

// BaseRadius is half the distance between the contact points.
func (f *Fit) BaseRadius() float64 {
	if f.Degenerate() {
		return math.NaN()
	}
	l, r := f.Model.ContactPoints()
	return l.Distance(r) / 2
}

// Height returns the apex height above the baseline.
func (f *Fit) Height() float64 {
	if f.Degenerate() {
		return math.NaN()
	}
	return f.Model.Height()
}

// Center returns the model center in physical coordinates.
func (f *Fit) Center() geometry.Point2D {
	if f.Degenerate() {
		return geometry.NaNPoint()
	}
	return f.Baseline.ToGlobal().Apply(f.Model.Center())
}

// Curve samples the fitted profile in physical coordinates.
func (f *Fit) Curve(n int) []geometry.Point2D {
	if f.Degenerate() {
		return nil
	}
	return f.Baseline.ToGlobal().ApplyAll(f.Model.Curve(n))
}

const profileSamples = 200

// Area integrates the profile width over the drop height.
func (f *Fit) Area() float64 {
	return f.integrateProfile(func(w float64) float64 { return w })
}

// Volume integrates the profile assuming the drop is axisymmetric.
func (f *Fit) Volume() float64 {
	return f.integrateProfile(func(w float64) float64 {
		return math.Pi * w * w / 4
	})
}

func (f *Fit) integrateProfile(slice func(width float64) float64) float64 {
	h := f.Height()
	if math.IsNaN(h) || h <= 0 {
		return math.NaN()
	}
	vs := make([]float64, profileSamples)
	ys := make([]float64, profileSamples)
	for i := range vs {
		v := h * float64(i) / float64(profileSamples-1)
		w := f.Model.Width(v)
		if math.IsNaN(w) || w < 0 {
			w = 0
		}
		vs[i] = v
		ys[i] = slice(w)
	}
	return integrate.Trapezoidal(vs, ys)
}
