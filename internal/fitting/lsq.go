// Package fitting fits geometric drop models to detected edges. Every model
// works in the baseline frame of its edge: u along the baseline, v the
// height above it.
package fitting

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"drop-analyzer/pkg/geometry"
)

var (
	// ErrTooFewPoints is returned when an edge has not enough points for
	// the requested model.
	ErrTooFewPoints = errors.New("not enough edge points")
	// ErrDegenerate is returned when the least-squares solution does not
	// describe the requested shape.
	ErrDegenerate = errors.New("degenerate fit")
	// ErrPoorFit is returned when the residual exceeds the allowed limit.
	ErrPoorFit = errors.New("residual above limit")
)

// leastSquares solves the overdetermined system rows * x = rhs.
func leastSquares(rows [][]float64, rhs []float64) ([]float64, error) {
	n := len(rows)
	if n == 0 {
		return nil, ErrTooFewPoints
	}
	cols := len(rows[0])
	if n < cols {
		return nil, fmt.Errorf("%w: %d for %d unknowns", ErrTooFewPoints, n, cols)
	}

	A := mat.NewDense(n, cols, nil)
	B := mat.NewVecDense(n, rhs)
	for i, row := range rows {
		A.SetRow(i, row)
	}

	var qr mat.QR
	qr.Factorize(A)

	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, B); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	out := make([]float64, cols)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

// normalizer shifts points to their centroid and scales them to unit
// extent to keep the normal equations well conditioned.
type normalizer struct {
	origin geometry.Point2D
	scale  float64
}

func newNormalizer(points []geometry.Point2D) normalizer {
	x, y := geometry.Bounds(points)
	scale := math.Max(x.Length(), y.Length())
	if scale == 0 {
		scale = 1
	}
	return normalizer{origin: geometry.Centroid(points), scale: scale}
}

func (n normalizer) apply(p geometry.Point2D) geometry.Point2D {
	return p.Sub(n.origin).Scale(1 / n.scale)
}

func (n normalizer) revert(p geometry.Point2D) geometry.Point2D {
	return p.Scale(n.scale).Add(n.origin)
}

func above(points []geometry.Point2D, minHeight float64) []geometry.Point2D {
	out := make([]geometry.Point2D, 0, len(points))
	for _, p := range points {
		if p.Y >= minHeight {
			out = append(out, p)
		}
	}
	return out
}

// splitSides splits points ordered from left to right over the apex at the
// highest point. The apex belongs to both sides.
func splitSides(points []geometry.Point2D) (left, right []geometry.Point2D) {
	if len(points) == 0 {
		return nil, nil
	}
	apex := 0
	for i, p := range points {
		if p.Y > points[apex].Y {
			apex = i
		}
	}
	return points[:apex+1], points[apex:]
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// upwardTangent returns the tangent of a curve with gradient g, oriented
// away from the baseline.
func upwardTangent(g geometry.Point2D) geometry.Point2D {
	t := geometry.Point2D{X: -g.Y, Y: g.X}
	if t.Y < 0 {
		t = t.Scale(-1)
	}
	return t
}

// leftAngle and rightAngle return the interior angle in degrees between
// the baseline and a tangent t leaving the baseline upward.
func leftAngle(t geometry.Point2D) float64 {
	return degrees(math.Atan2(t.Y, t.X))
}

func rightAngle(t geometry.Point2D) float64 {
	return degrees(math.Atan2(t.Y, -t.X))
}

func rms(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(values)))
}
