package fitting

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"drop-analyzer/pkg/geometry"
)

// polySide is a polynomial u(v) with coefficients in v/scale.
type polySide struct {
	coef  []float64
	scale float64
	vmax  float64
}

func (s polySide) at(v float64) float64 {
	x := v / s.scale
	u := 0.0
	for k := len(s.coef) - 1; k >= 0; k-- {
		u = u*x + s.coef[k]
	}
	return u
}

func (s polySide) slope() float64 {
	if len(s.coef) < 2 {
		return 0
	}
	return s.coef[1] / s.scale
}

func (s polySide) top() float64 { return s.vmax }

func fitPolySide(points []geometry.Point2D, degree int) (polySide, error) {
	if len(points) < 2 {
		return polySide{}, fmt.Errorf("polyline: %w", ErrTooFewPoints)
	}
	degree = max(1, min(degree, len(points)-1))
	_, vs := geometry.Bounds(points)
	scale := math.Max(vs.Max, 1e-12)

	rows := make([][]float64, len(points))
	rhs := make([]float64, len(points))
	for i, p := range points {
		x := p.Y / scale
		row := make([]float64, degree+1)
		row[0] = 1
		for k := 1; k <= degree; k++ {
			row[k] = row[k-1] * x
		}
		rows[i] = row
		rhs[i] = p.X
	}
	coef, err := leastSquares(rows, rhs)
	if err != nil {
		return polySide{}, fmt.Errorf("polyline: %w", err)
	}
	return polySide{coef: coef, scale: scale, vmax: vs.Max}, nil
}

func fitPolyline(points []geometry.Point2D, degree int) (sided, error) {
	lp, rp := splitSides(points)
	left, err := fitPolySide(lp, degree)
	if err != nil {
		return sided{}, err
	}
	right, err := fitPolySide(rp, degree)
	if err != nil {
		return sided{}, err
	}
	return newSided(left, right, lp, rp), nil
}

type predictor interface {
	Predict(x float64) float64
}

// splineSide interpolates binned edge points, extrapolating linearly below
// the lowest knot.
type splineSide struct {
	pred   predictor
	v0, u0 float64
	d0     float64
	vmax   float64
}

func (s splineSide) at(v float64) float64 {
	if v < s.v0 {
		return s.u0 + s.d0*(v-s.v0)
	}
	if v > s.vmax {
		return math.NaN()
	}
	return s.pred.Predict(v)
}

func (s splineSide) slope() float64 { return s.d0 }

func (s splineSide) top() float64 { return s.vmax }

// binPoints averages points over equal height bins; the number of bins
// decreases as smoothing grows.
func binPoints(points []geometry.Point2D, smoothing float64) (vs, us []float64) {
	smoothing = math.Max(0, math.Min(smoothing, 0.99))
	sorted := append([]geometry.Point2D(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Y < sorted[j].Y })

	bins := int(math.Round((1 - smoothing) * float64(len(sorted)) / 2))
	bins = max(3, min(bins, len(sorted)))
	lo, hi := sorted[0].Y, sorted[len(sorted)-1].Y
	width := (hi - lo) / float64(bins)
	if width <= 0 {
		return nil, nil
	}

	sumV := make([]float64, bins)
	sumU := make([]float64, bins)
	count := make([]int, bins)
	for _, p := range sorted {
		b := min(int((p.Y-lo)/width), bins-1)
		sumV[b] += p.Y
		sumU[b] += p.X
		count[b]++
	}
	for b := range count {
		if count[b] == 0 {
			continue
		}
		v := sumV[b] / float64(count[b])
		if len(vs) > 0 && v <= vs[len(vs)-1] {
			continue
		}
		vs = append(vs, v)
		us = append(us, sumU[b]/float64(count[b]))
	}
	return vs, us
}

func fitSplineSide(points []geometry.Point2D, degree int, smoothing float64) (splineSide, error) {
	if len(points) < 3 {
		return splineSide{}, fmt.Errorf("spline: %w", ErrTooFewPoints)
	}
	vs, us := binPoints(points, smoothing)
	if len(vs) < 2 {
		return splineSide{}, fmt.Errorf("spline: %w", ErrDegenerate)
	}
	_, vb := geometry.Bounds(points)
	s := splineSide{v0: vs[0], u0: us[0], vmax: vb.Max}
	if degree <= 1 || len(vs) < 3 {
		var pl interp.PiecewiseLinear
		if err := pl.Fit(vs, us); err != nil {
			return splineSide{}, fmt.Errorf("spline: %w", err)
		}
		s.pred = pl
		s.d0 = (us[1] - us[0]) / (vs[1] - vs[0])
		return s, nil
	}
	var nc interp.NaturalCubic
	if err := nc.Fit(vs, us); err != nil {
		return splineSide{}, fmt.Errorf("spline: %w", err)
	}
	s.pred = &nc
	s.d0 = nc.PredictDerivative(vs[0])
	return s, nil
}

func fitSpline(points []geometry.Point2D, degree int, smoothing float64) (sided, error) {
	lp, rp := splitSides(points)
	left, err := fitSplineSide(lp, degree, smoothing)
	if err != nil {
		return sided{}, err
	}
	right, err := fitSplineSide(rp, degree, smoothing)
	if err != nil {
		return sided{}, err
	}
	return newSided(left, right, lp, rp), nil
}
