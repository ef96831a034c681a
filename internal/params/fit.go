package params

import (
	"fmt"
	"strings"
)

// FitMethod selects the geometric model fitted to an edge.
type FitMethod int

const (
	FitNone FitMethod = iota
	FitCircle
	FitEllipse
	FitEllipses
	FitPolyline
	FitSpline
	FitWettingRidge
)

var fitNames = map[FitMethod]string{
	FitNone:         "none",
	FitCircle:       "circle",
	FitEllipse:      "ellipse",
	FitEllipses:     "ellipses",
	FitPolyline:     "polyline",
	FitSpline:       "spline",
	FitWettingRidge: "wetting ridge",
}

func (m FitMethod) String() string {
	if name, ok := fitNames[m]; ok {
		return name
	}
	return "none"
}

// ParseFitMethod accepts the method names used in session files.
func ParseFitMethod(s string) (FitMethod, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "_", " ")
	if key == "" {
		return FitNone, nil
	}
	for m, name := range fitNames {
		if name == key {
			return m, nil
		}
	}
	return FitNone, fmt.Errorf("unknown fit method %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m FitMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *FitMethod) UnmarshalText(b []byte) error {
	parsed, err := ParseFitMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// SupportsRidge reports whether fits of this method carry triple points.
func (m FitMethod) SupportsRidge() bool {
	return m == FitWettingRidge
}

// CircleArgs fits a single circle to edge points at or above MinHeight.
type CircleArgs struct {
	MinHeight float64 `json:"min_height" yaml:"min_height"`
}

// EllipseArgs fits one axis-aligned ellipse to points at or above MinHeight.
type EllipseArgs struct {
	MinHeight float64 `json:"min_height" yaml:"min_height"`
}

// EllipsesArgs fits one ellipse per drop side.
type EllipsesArgs struct {
	MinHeight float64 `json:"min_height" yaml:"min_height"`
}

// PolylineArgs fits a polynomial of the given degree per drop side.
type PolylineArgs struct {
	Degree int `json:"deg" yaml:"deg"`
}

// SplineArgs fits a spline per drop side; Smoothing in [0, 1) trades
// fidelity for smoothness.
type SplineArgs struct {
	Degree    int     `json:"k" yaml:"k"`
	Smoothing float64 `json:"s" yaml:"s"`
}

// WettingRidgeArgs fits a drop circle and one ridge circle per side.
type WettingRidgeArgs struct {
	// PosEstimate is the triple-point height as a fraction of drop height.
	PosEstimate float64 `json:"pos_estimate" yaml:"pos_estimate"`
	// Sigma bounds the RMS residual of the drop circle, relative to its
	// radius.
	Sigma float64 `json:"sigma" yaml:"sigma"`
}

// Fit is the fitting snapshot.
type Fit struct {
	Method       FitMethod        `json:"method" yaml:"method"`
	Circle       CircleArgs       `json:"circle" yaml:"circle"`
	Ellipse      EllipseArgs      `json:"ellipse" yaml:"ellipse"`
	Ellipses     EllipsesArgs     `json:"ellipses" yaml:"ellipses"`
	Polyline     PolylineArgs     `json:"polyline" yaml:"polyline"`
	Spline       SplineArgs       `json:"spline" yaml:"spline"`
	WettingRidge WettingRidgeArgs `json:"wetting_ridge" yaml:"wetting_ridge"`
}

// DefaultFit returns an ellipses fit with default arguments for every method.
func DefaultFit() Fit {
	return Fit{
		Method:       FitEllipses,
		Polyline:     PolylineArgs{Degree: 5},
		Spline:       SplineArgs{Degree: 3, Smoothing: 0.1},
		WettingRidge: WettingRidgeArgs{PosEstimate: 0.8, Sigma: 0.05},
	}
}

// WithMethod returns a copy using another fit method.
func (p Fit) WithMethod(m FitMethod) Fit {
	p.Method = m
	return p
}

// Equal compares the method and the arguments of that method only.
func (p Fit) Equal(o Fit) bool {
	if p.Method != o.Method {
		return false
	}
	switch p.Method {
	case FitCircle:
		return p.Circle == o.Circle
	case FitEllipse:
		return p.Ellipse == o.Ellipse
	case FitEllipses:
		return p.Ellipses == o.Ellipses
	case FitPolyline:
		return p.Polyline == o.Polyline
	case FitSpline:
		return p.Spline == o.Spline
	case FitWettingRidge:
		return p.WettingRidge == o.WettingRidge
	default:
		return true
	}
}
