package fitting

import (
	"fmt"
	"math"

	"drop-analyzer/internal/drop"
	"drop-analyzer/pkg/geometry"
)

// ellipse is an axis-aligned ellipse; a circle when A == B.
type ellipse struct {
	CU, CV float64
	A, B   float64
	RMS    float64
}

func (e ellipse) baselineOffset() (float64, bool) {
	s := -e.CV / e.B
	if math.Abs(s) >= 1 {
		return math.NaN(), false
	}
	return e.A * math.Sqrt(1-s*s), true
}

func (e ellipse) ContactPoints() (geometry.Point2D, geometry.Point2D) {
	du, ok := e.baselineOffset()
	if !ok {
		return geometry.NaNPoint(), geometry.NaNPoint()
	}
	return geometry.NewPoint2D(e.CU-du, 0), geometry.NewPoint2D(e.CU+du, 0)
}

func (e ellipse) gradient(p geometry.Point2D) geometry.Point2D {
	return geometry.Point2D{
		X: (p.X - e.CU) / (e.A * e.A),
		Y: (p.Y - e.CV) / (e.B * e.B),
	}
}

func (e ellipse) ContactAngles() (drop.ContactAngles, error) {
	if _, ok := e.baselineOffset(); !ok {
		return drop.ContactAngles{Left: math.NaN(), Right: math.NaN()}, drop.ErrUndefinedAngle
	}
	l, r := e.ContactPoints()
	return drop.ContactAngles{
		Left:  leftAngle(upwardTangent(e.gradient(l))),
		Right: rightAngle(upwardTangent(e.gradient(r))),
	}, nil
}

func (e ellipse) Height() float64 { return e.CV + e.B }

func (e ellipse) Center() geometry.Point2D { return geometry.NewPoint2D(e.CU, e.CV) }

func (e ellipse) Width(v float64) float64 {
	s := (v - e.CV) / e.B
	if math.Abs(s) > 1 {
		return math.NaN()
	}
	return 2 * e.A * math.Sqrt(1-s*s)
}

// branch returns the u coordinate of the left or right half at height v.
func (e ellipse) branch(v float64, right bool) float64 {
	half := e.Width(v) / 2
	if right {
		return e.CU + half
	}
	return e.CU - half
}

// Curve samples the part of the ellipse above the baseline.
func (e ellipse) Curve(n int) []geometry.Point2D {
	if n < 2 {
		n = 2
	}
	phi0 := math.Asin(math.Max(-1, math.Min(1, -e.CV/e.B)))
	from, to := math.Pi-phi0, phi0
	pts := make([]geometry.Point2D, n)
	for i := range pts {
		phi := from + (to-from)*float64(i)/float64(n-1)
		pts[i] = geometry.NewPoint2D(e.CU+e.A*math.Cos(phi), e.CV+e.B*math.Sin(phi))
	}
	return pts
}

func (e ellipse) Residual() float64 { return e.RMS }

func (e ellipse) residuals(points []geometry.Point2D) []float64 {
	scale := math.Sqrt(e.A * e.B)
	out := make([]float64, len(points))
	for i, p := range points {
		du := (p.X - e.CU) / e.A
		dv := (p.Y - e.CV) / e.B
		out[i] = (math.Hypot(du, dv) - 1) * scale
	}
	return out
}

// fitCircle fits u² + v² + D u + E v + F = 0 by algebraic least squares.
func fitCircle(points []geometry.Point2D) (ellipse, error) {
	if len(points) < 3 {
		return ellipse{}, fmt.Errorf("circle: %w", ErrTooFewPoints)
	}
	norm := newNormalizer(points)
	rows := make([][]float64, len(points))
	rhs := make([]float64, len(points))
	for i, p := range points {
		q := norm.apply(p)
		rows[i] = []float64{q.X, q.Y, 1}
		rhs[i] = -(q.X*q.X + q.Y*q.Y)
	}
	sol, err := leastSquares(rows, rhs)
	if err != nil {
		return ellipse{}, fmt.Errorf("circle: %w", err)
	}
	cu, cv := -sol[0]/2, -sol[1]/2
	r2 := cu*cu + cv*cv - sol[2]
	if r2 <= 0 || math.IsNaN(r2) {
		return ellipse{}, fmt.Errorf("circle: %w", ErrDegenerate)
	}
	c := norm.revert(geometry.NewPoint2D(cu, cv))
	r := math.Sqrt(r2) * norm.scale
	e := ellipse{CU: c.X, CV: c.Y, A: r, B: r}
	e.RMS = rms(e.residuals(points))
	return e, nil
}

// fitEllipse fits A u² + C v² + D u + E v = 1 by least squares.
func fitEllipse(points []geometry.Point2D) (ellipse, error) {
	if len(points) < 4 {
		return ellipse{}, fmt.Errorf("ellipse: %w", ErrTooFewPoints)
	}
	norm := newNormalizer(points)
	rows := make([][]float64, len(points))
	rhs := make([]float64, len(points))
	for i, p := range points {
		q := norm.apply(p)
		rows[i] = []float64{q.X * q.X, q.Y * q.Y, q.X, q.Y}
		rhs[i] = 1
	}
	sol, err := leastSquares(rows, rhs)
	if err != nil {
		return ellipse{}, fmt.Errorf("ellipse: %w", err)
	}
	a, c, d, e := sol[0], sol[1], sol[2], sol[3]
	if a == 0 || c == 0 {
		return ellipse{}, fmt.Errorf("ellipse: %w", ErrDegenerate)
	}
	cu, cv := -d/(2*a), -e/(2*c)
	k := 1 + a*cu*cu + c*cv*cv
	a2, b2 := k/a, k/c
	if a2 <= 0 || b2 <= 0 || math.IsNaN(a2) || math.IsNaN(b2) {
		return ellipse{}, fmt.Errorf("ellipse: %w", ErrDegenerate)
	}
	center := norm.revert(geometry.NewPoint2D(cu, cv))
	el := ellipse{
		CU: center.X,
		CV: center.Y,
		A:  math.Sqrt(a2) * norm.scale,
		B:  math.Sqrt(b2) * norm.scale,
	}
	el.RMS = rms(el.residuals(points))
	return el, nil
}
