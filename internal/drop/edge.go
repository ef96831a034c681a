package drop

import (
	"math"
	"sort"

	"drop-analyzer/internal/params"
	"drop-analyzer/pkg/geometry"
)

// Edge is the detected drop boundary of one frame. An edge without points
// is a valid result meaning no drop was found.
type Edge struct {
	Index  int
	Method params.EdgeMethod

	// Points are in physical coordinates, ordered from the left contact
	// over the apex to the right contact.
	Points []geometry.Point2D

	Baseline         geometry.Baseline
	XBounds, YBounds geometry.Interval
}

// EmptyEdge returns an edge without points carrying the frame's baseline.
func EmptyEdge(f *NormalizedFrame, method params.EdgeMethod) *Edge {
	e := &Edge{Method: method}
	if f != nil {
		e.Index = f.Index
		e.Baseline = f.Baseline
		w, h := f.Size()
		e.XBounds = geometry.Interval{Min: 0, Max: float64(w) * f.Dx}
		e.YBounds = geometry.Interval{Min: 0, Max: float64(h) * f.Dy}
	}
	return e
}

// Empty reports whether no drop boundary was found.
func (e *Edge) Empty() bool {
	return e == nil || len(e.Points) == 0
}

// Local returns the points in the baseline frame: u along the baseline,
// v the height above it.
func (e *Edge) Local() []geometry.Point2D {
	return e.Baseline.ToLocal().ApplyAll(e.Points)
}

// BuildEdge turns raw contours, given in crop-relative pixels, into an
// edge: it keeps the opts.Edges largest contours, drops contours smaller
// than opts.SizeRatio times the largest one, removes points below the
// baseline or within opts.IgnoredPixels above it, and orders the remaining
// points around the drop.
func BuildEdge(f *NormalizedFrame, contours [][]geometry.Point2D, method params.EdgeMethod, opts params.EdgeOptions) *Edge {
	edge := EmptyEdge(f, method)
	if f.Empty() || len(contours) == 0 {
		return edge
	}

	kept := largestContours(contours, opts)
	toLocal := f.Baseline.ToLocal()
	band := float64(opts.IgnoredPixels) * f.Dy

	var local []geometry.Point2D
	for _, c := range kept {
		for _, p := range c {
			lp := toLocal.Apply(f.ToPhysical(p.X, p.Y))
			if lp.Y < band || lp.IsNaN() {
				continue
			}
			local = append(local, lp)
		}
	}
	if len(local) == 0 {
		return edge
	}

	orderAroundApex(local)
	edge.Points = f.Baseline.ToGlobal().ApplyAll(local)
	edge.XBounds, edge.YBounds = geometry.Bounds(edge.Points)
	return edge
}

func largestContours(contours [][]geometry.Point2D, opts params.EdgeOptions) [][]geometry.Point2D {
	n := opts.Edges
	if n < 1 {
		n = 1
	}
	sorted := make([][]geometry.Point2D, 0, len(contours))
	for _, c := range contours {
		if len(c) > 0 {
			sorted = append(sorted, c)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})
	largest := float64(len(sorted[0]))
	kept := sorted[:1]
	for _, c := range sorted[1:] {
		if len(kept) >= n {
			break
		}
		if float64(len(c)) < opts.SizeRatio*largest {
			break
		}
		kept = append(kept, c)
	}
	return kept
}

// orderAroundApex sorts baseline-frame points by decreasing polar angle
// around the foot of the drop axis, i.e. from left to right over the apex.
func orderAroundApex(points []geometry.Point2D) {
	axis := geometry.Centroid(points).X
	sort.SliceStable(points, func(i, j int) bool {
		ai := math.Atan2(points[i].Y, points[i].X-axis)
		aj := math.Atan2(points[j].Y, points[j].X-axis)
		return ai > aj
	})
}
