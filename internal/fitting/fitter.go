package fitting

import (
	"fmt"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
)

// Fitter dispatches an edge to the model selected by the fit parameters.
type Fitter struct{}

// New returns a Fitter.
func New() *Fitter {
	return &Fitter{}
}

// Fit fits the model selected by p to the edge. A nil model and nil error
// are returned for FitNone.
func (f *Fitter) Fit(edge *drop.Edge, p params.Fit) (drop.Model, error) {
	if edge.Empty() {
		return nil, ErrTooFewPoints
	}
	local := edge.Local()
	switch p.Method {
	case params.FitNone:
		return nil, nil
	case params.FitCircle:
		return fitCircle(above(local, p.Circle.MinHeight))
	case params.FitEllipse:
		return fitEllipse(above(local, p.Ellipse.MinHeight))
	case params.FitEllipses:
		return fitEllipses(above(local, p.Ellipses.MinHeight))
	case params.FitPolyline:
		return fitPolyline(local, p.Polyline.Degree)
	case params.FitSpline:
		return fitSpline(local, p.Spline.Degree, p.Spline.Smoothing)
	case params.FitWettingRidge:
		return fitWettingRidge(local, p.WettingRidge)
	}
	return nil, fmt.Errorf("unsupported fit method %v", p.Method)
}
