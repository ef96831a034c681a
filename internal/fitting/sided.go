package fitting

import (
	"math"

	"drop-analyzer/internal/drop"
	"drop-analyzer/pkg/geometry"
)

// side is one half of a drop profile described as u(v).
type side interface {
	at(v float64) float64
	// slope returns du/dv at the baseline.
	slope() float64
	top() float64
}

// sided is a profile made of independently fitted left and right halves.
type sided struct {
	left, right side
	rms         float64
}

func (s sided) ContactPoints() (geometry.Point2D, geometry.Point2D) {
	return geometry.NewPoint2D(s.left.at(0), 0), geometry.NewPoint2D(s.right.at(0), 0)
}

func (s sided) ContactAngles() (drop.ContactAngles, error) {
	angles := drop.ContactAngles{
		Left:  leftAngle(geometry.NewPoint2D(s.left.slope(), 1)),
		Right: rightAngle(geometry.NewPoint2D(s.right.slope(), 1)),
	}
	if math.IsNaN(angles.Left) || math.IsNaN(angles.Right) {
		return angles, drop.ErrUndefinedAngle
	}
	return angles, nil
}

func (s sided) Height() float64 {
	return math.Max(s.left.top(), s.right.top())
}

func (s sided) Center() geometry.Point2D {
	l, r := s.ContactPoints()
	return geometry.NewPoint2D((l.X+r.X)/2, s.Height()/2)
}

func (s sided) Width(v float64) float64 {
	if v < 0 || v > s.Height() {
		return math.NaN()
	}
	if v > math.Min(s.left.top(), s.right.top()) {
		return 0
	}
	return math.Max(0, s.right.at(v)-s.left.at(v))
}

func (s sided) Curve(n int) []geometry.Point2D {
	if n < 4 {
		n = 4
	}
	half := n / 2
	pts := make([]geometry.Point2D, 0, n)
	for i := 0; i < half; i++ {
		v := s.left.top() * float64(i) / float64(half-1)
		pts = append(pts, geometry.NewPoint2D(s.left.at(v), v))
	}
	rest := n - half
	for i := 0; i < rest; i++ {
		v := s.right.top() * (1 - float64(i)/float64(rest-1))
		pts = append(pts, geometry.NewPoint2D(s.right.at(v), v))
	}
	return pts
}

func (s sided) Residual() float64 { return s.rms }

func sideResiduals(sd side, points []geometry.Point2D) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		if u := sd.at(p.Y); !math.IsNaN(u) {
			out = append(out, u-p.X)
		}
	}
	return out
}

func newSided(left, right side, leftPts, rightPts []geometry.Point2D) sided {
	res := append(sideResiduals(left, leftPts), sideResiduals(right, rightPts)...)
	return sided{left: left, right: right, rms: rms(res)}
}

// ellipseSide is one branch of an axis-aligned ellipse.
type ellipseSide struct {
	e     ellipse
	right bool
}

func (s ellipseSide) at(v float64) float64 { return s.e.branch(v, s.right) }

func (s ellipseSide) slope() float64 {
	q := -s.e.CV / s.e.B
	if math.Abs(q) >= 1 {
		return math.NaN()
	}
	d := s.e.A * q / (s.e.B * math.Sqrt(1-q*q))
	if s.right {
		return -d
	}
	return d
}

func (s ellipseSide) top() float64 { return s.e.Height() }

func fitEllipses(points []geometry.Point2D) (sided, error) {
	lp, rp := splitSides(points)
	left, err := fitEllipse(lp)
	if err != nil {
		return sided{}, err
	}
	right, err := fitEllipse(rp)
	if err != nil {
		return sided{}, err
	}
	return newSided(ellipseSide{e: left}, ellipseSide{e: right, right: true}, lp, rp), nil
}
