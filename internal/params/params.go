// Package params defines the immutable parameter snapshots that govern each
// cache layer. A layer recomputes only when its snapshot stops comparing
// equal to the one its cached results were produced under.
package params

import (
	"drop-analyzer/internal/units"
	"drop-analyzer/pkg/geometry"
)

// Tolerance is the relative tolerance used when comparing floating-point
// preprocessing parameters.
const Tolerance = 1e-9

// Preprocess holds everything that shapes the normalized frame stream.
// Crop limits and baseline points are in raw pixel coordinates (y down).
type Preprocess struct {
	ScaleX units.Quantity `json:"dx"`
	ScaleY units.Quantity `json:"dy"`
	ScaleT units.Quantity `json:"dt"`

	CropX geometry.Interval `json:"crop_x"`
	CropY geometry.Interval `json:"crop_y"`

	Baseline geometry.Baseline `json:"baseline"`

	// First and Last are 0-based, inclusive frame indices of the original
	// sequence.
	First int `json:"first_frame"`
	Last  int `json:"last_frame"`
}

// DefaultPreprocess returns unscaled parameters covering a full frame of
// the given size and the whole sequence.
func DefaultPreprocess(width, height, frames int) Preprocess {
	w, h := float64(width), float64(height)
	return Preprocess{
		ScaleX: units.Pixel,
		ScaleY: units.Pixel,
		ScaleT: units.Quantity{Value: 1, Unit: "s"},
		CropX:  geometry.Interval{Min: 0, Max: w},
		CropY:  geometry.Interval{Min: 0, Max: h},
		Baseline: geometry.NewBaseline(
			geometry.NewPoint2D(0, h*0.9),
			geometry.NewPoint2D(w, h*0.9),
		),
		First: 0,
		Last:  max(frames-1, 0),
	}
}

// Equal compares scale units exactly and every numeric field with Tolerance.
func (p Preprocess) Equal(o Preprocess) bool {
	if !p.ScaleX.ApproxEqual(o.ScaleX, Tolerance) ||
		!p.ScaleY.ApproxEqual(o.ScaleY, Tolerance) ||
		!p.ScaleT.ApproxEqual(o.ScaleT, Tolerance) {
		return false
	}
	tol := Tolerance * 1e3
	if !p.CropX.ApproxEqual(o.CropX, tol) || !p.CropY.ApproxEqual(o.CropY, tol) {
		return false
	}
	if !p.Baseline.ApproxEqual(o.Baseline, tol) {
		return false
	}
	return p.First == o.First && p.Last == o.Last
}

// WithCrop returns a copy with new crop limits.
func (p Preprocess) WithCrop(x, y geometry.Interval) Preprocess {
	p.CropX = x.Sorted()
	p.CropY = y.Sorted()
	return p
}

// WithBaseline returns a copy with a new baseline.
func (p Preprocess) WithBaseline(b geometry.Baseline) Preprocess {
	p.Baseline = b
	return p
}

// WithFrameRange returns a copy restricted to frames [first, last].
func (p Preprocess) WithFrameRange(first, last int) Preprocess {
	if first > last {
		first, last = last, first
	}
	p.First = first
	p.Last = last
	return p
}

// WithScale returns a copy with the same isotropic pixel scale on x and y.
func (p Preprocess) WithScale(dx, dt units.Quantity) Preprocess {
	p.ScaleX = dx
	p.ScaleY = dx
	p.ScaleT = dt
	return p
}

// Position translates an original-sequence frame index into a position in
// the normalized stream. Both are 0-based.
func (p Preprocess) Position(index int) int {
	return index - p.First
}

// Run describes which frames a bulk computation visits.
type Run struct {
	First  int `json:"first_frame"`
	Last   int `json:"last_frame"`
	Stride int `json:"stride"`
}

// Frames lists the original-sequence indices visited by the run.
func (r Run) Frames() []int {
	stride := r.Stride
	if stride < 1 {
		stride = 1
	}
	if r.Last < r.First {
		return nil
	}
	frames := make([]int, 0, (r.Last-r.First)/stride+1)
	for i := r.First; i <= r.Last; i += stride {
		frames = append(frames, i)
	}
	return frames
}

// Normalized returns the run with a stride of at least one.
func (r Run) Normalized() Run {
	if r.Stride < 1 {
		r.Stride = 1
	}
	return r
}

// Equal compares range and stride exactly.
func (r Run) Equal(o Run) bool {
	r, o = r.Normalized(), o.Normalized()
	return r == o
}
