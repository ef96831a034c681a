package fitting

import (
	"fmt"
	"math"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/pkg/geometry"
)

// ridgeSide follows the drop circle above the triple point and the ridge
// circle below it.
type ridgeSide struct {
	drop, ridge ellipse
	triple      geometry.Point2D
	right       bool
}

func (s ridgeSide) at(v float64) float64 {
	if v >= s.triple.Y {
		return s.drop.branch(v, s.right)
	}
	if u := s.ridge.branch(v, s.right); !math.IsNaN(u) {
		return u
	}
	return s.drop.branch(v, s.right)
}

func (s ridgeSide) slope() float64 {
	return ellipseSide{e: s.ridge, right: s.right}.slope()
}

func (s ridgeSide) top() float64 { return s.drop.Height() }

// wettingRidge is a drop circle resting on a ridge described by one circle
// per side.
type wettingRidge struct {
	sided
	drop ellipse
	tp   drop.TriplePoints
}

// ContactAngles returns the apparent angles of the drop circle.
func (w wettingRidge) ContactAngles() (drop.ContactAngles, error) {
	return w.drop.ContactAngles()
}

func (w wettingRidge) Center() geometry.Point2D { return w.drop.Center() }

func (w wettingRidge) TriplePoints() (drop.TriplePoints, error) {
	if w.tp.Left.IsNaN() || w.tp.Right.IsNaN() {
		return w.tp, drop.ErrUndefinedAngle
	}
	return w.tp, nil
}

func circleIntersections(a, b ellipse) []geometry.Point2D {
	du, dv := b.CU-a.CU, b.CV-a.CV
	d := math.Hypot(du, dv)
	if d == 0 || d > a.A+b.A || d < math.Abs(a.A-b.A) {
		return nil
	}
	l := (a.A*a.A - b.A*b.A + d*d) / (2 * d)
	h := math.Sqrt(math.Max(0, a.A*a.A-l*l))
	mu, mv := a.CU+l*du/d, a.CV+l*dv/d
	return []geometry.Point2D{
		{X: mu + h*dv/d, Y: mv - h*du/d},
		{X: mu - h*dv/d, Y: mv + h*du/d},
	}
}

// triplePoint picks the drop/ridge intersection closest to the estimated
// triple point, or the estimate itself when the circles do not meet.
func triplePoint(dropC, ridge ellipse, height float64, right bool) geometry.Point2D {
	estimate := geometry.NewPoint2D(dropC.branch(height, right), height)
	candidates := circleIntersections(dropC, ridge)
	if len(candidates) == 0 || estimate.IsNaN() {
		return estimate
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Distance(estimate) < best.Distance(estimate) {
			best = c
		}
	}
	return best
}

func fitWettingRidge(points []geometry.Point2D, args params.WettingRidgeArgs) (wettingRidge, error) {
	if len(points) < 9 {
		return wettingRidge{}, fmt.Errorf("wetting ridge: %w", ErrTooFewPoints)
	}
	_, vb := geometry.Bounds(points)
	height := vb.Min + vb.Length()*args.PosEstimate

	dropC, err := fitCircle(above(points, height))
	if err != nil {
		return wettingRidge{}, fmt.Errorf("wetting ridge: %w", err)
	}
	if args.Sigma > 0 && dropC.RMS > args.Sigma*dropC.A {
		return wettingRidge{}, fmt.Errorf("wetting ridge: %w: rms %g for radius %g", ErrPoorFit, dropC.RMS, dropC.A)
	}

	var lp, rp []geometry.Point2D
	for _, p := range points {
		if p.Y >= height {
			continue
		}
		if p.X < dropC.CU {
			lp = append(lp, p)
		} else {
			rp = append(rp, p)
		}
	}
	left, err := fitCircle(lp)
	if err != nil {
		return wettingRidge{}, fmt.Errorf("wetting ridge, left side: %w", err)
	}
	right, err := fitCircle(rp)
	if err != nil {
		return wettingRidge{}, fmt.Errorf("wetting ridge, right side: %w", err)
	}

	tpl := triplePoint(dropC, left, height, false)
	tpr := triplePoint(dropC, right, height, true)
	tp := drop.TriplePoints{Left: tpl, Right: tpr}
	tp.Angles = drop.ContactAngles{
		Left:  leftAngle(upwardTangent(dropC.gradient(tpl))),
		Right: rightAngle(upwardTangent(dropC.gradient(tpr))),
	}

	ls := ridgeSide{drop: dropC, ridge: left, triple: tpl}
	rs := ridgeSide{drop: dropC, ridge: right, triple: tpr, right: true}
	res := append(dropC.residuals(above(points, height)), left.residuals(lp)...)
	res = append(res, right.residuals(rp)...)

	return wettingRidge{
		sided: sided{left: ls, right: rs, rms: rms(res)},
		drop:  dropC,
		tp:    tp,
	}, nil
}
