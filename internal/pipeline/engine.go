package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/internal/quantity"
	"drop-analyzer/internal/telemetry"
	"drop-analyzer/pkg/geometry"
)

// Options configures an Engine. The zero value logs nothing and discards
// metrics.
type Options struct {
	Logger  zerolog.Logger
	Metrics telemetry.Collector
	// Hook observes stream rebuilds and bulk runs.
	Hook Hook
}

// Engine owns the whole cache chain of one analysis session. Parameters are
// pulled from the ParamSource on every access, so callers only mutate their
// parameters and read results back.
type Engine struct {
	params ParamSource
	source FrameSource

	frames     *PreprocessCache
	edges      *EdgeCache
	fits       *FitCache
	runner     *BatchRunner
	quantities *quantity.Cache

	hook   Hook
	cancel CancelFlag
	log    zerolog.Logger
}

// NewEngine wires the caches on top of source. detector and fitter run the
// per-frame algorithms.
func NewEngine(ps ParamSource, source FrameSource, detector EdgeDetector, fitter Fitter, opts Options) *Engine {
	log := opts.Logger
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.Noop()
	}

	e := &Engine{
		params: ps,
		source: source,
		hook:   opts.Hook,
		log:    log,
	}
	n := sourceLen(source)
	e.frames = NewPreprocessCache(source, log, metrics)
	e.frames.SetHook(opts.Hook)
	e.edges = NewEdgeCache(n, frameLayer{e}, detector, log, metrics)
	e.fits = NewFitCache(n, edgeLayer{e}, fitter, log, metrics)
	e.runner = NewBatchRunner(e, log, metrics)
	e.quantities = quantity.New(log, metrics)

	e.frames.OnEvict(e.edges.Invalidate)
	e.edges.OnEvict(e.fits.Invalidate)
	e.fits.OnEvict(e.quantities.Clear)
	return e
}

func sourceLen(s FrameSource) int {
	if s == nil {
		return 0
	}
	return s.Len()
}

// frameLayer and edgeLayer bind a cache to the current parameters of the
// layer above it.
type frameLayer struct{ e *Engine }

func (l frameLayer) Refresh()       { l.e.frames.Sync(l.e.params.Preprocess()) }
func (l frameLayer) Disabled() bool { return false }
func (l frameLayer) At(index int) *drop.NormalizedFrame {
	return l.e.frames.Get(l.e.params.Preprocess(), index)
}

type edgeLayer struct{ e *Engine }

func (l edgeLayer) Refresh()       { l.e.edges.Refresh(l.e.params.Edge()) }
func (l edgeLayer) Disabled() bool { return l.e.params.Edge().Method == params.EdgeNone }
func (l edgeLayer) At(index int) *drop.Edge {
	return l.e.edges.Get(l.e.params.Edge(), index)
}

// Len returns the number of frames of the source.
func (e *Engine) Len() int {
	return sourceLen(e.source)
}

// IsValidIndex reports whether index addresses a frame of the source.
func (e *Engine) IsValidIndex(index int) bool {
	return index >= 0 && index < e.Len()
}

// Normalized returns the preprocessed frame at index.
func (e *Engine) Normalized(index int) *drop.NormalizedFrame {
	return frameLayer{e}.At(index)
}

// Edge returns the detected edge at index.
func (e *Engine) Edge(index int) *drop.Edge {
	return edgeLayer{e}.At(index)
}

// Fit returns the fit at index.
func (e *Engine) Fit(index int) *drop.Fit {
	return e.fits.Get(e.params.Fit(), index)
}

// ContactAngleAt returns the contact angles of the fit at index, computing
// them when the cached fit has none yet.
func (e *Engine) ContactAngleAt(index int) (drop.ContactAngles, bool) {
	f := e.Fit(index)
	if f.Degenerate() {
		return drop.ContactAngles{}, false
	}
	if f.Angles == nil {
		if err := f.ComputeContactAngles(); err != nil {
			e.log.Debug().Err(err).Int("frame", index).Msg("contact angle not computed")
			return drop.ContactAngles{}, false
		}
	}
	return *f.Angles, true
}

// Request returns the snapshots a bulk run would use now.
func (e *Engine) Request() Request {
	return Request{
		Preprocess: e.params.Preprocess(),
		Edge:       e.params.Edge(),
		Fit:        e.params.Fit(),
		Run:        e.params.Run(),
		Frames:     e.Len(),
	}
}

// Compute runs the bulk fit over the current run range. It blocks until the
// range is done or the run is cancelled through Cancel or ctx.
func (e *Engine) Compute(ctx context.Context) *drop.BulkFitResult {
	res := e.runner.Run(ctx, e.Request(), e.hook, &e.cancel)
	e.quantities.SetResult(res)
	return res
}

// Cancel stops a running Compute. It may be called from any goroutine.
func (e *Engine) Cancel() {
	e.cancel.Cancel()
}

// Result returns the last bulk fit, or nil.
func (e *Engine) Result() *drop.BulkFitResult {
	return e.runner.Last()
}

// Quantity returns a derived quantity of the last bulk fit.
func (e *Engine) Quantity(name string, smoothing float64) quantity.Series {
	return e.quantities.Get(name, smoothing)
}

// Quantities gives access to the derived quantity cache, for custom
// quantity definitions and name listing.
func (e *Engine) Quantities() *quantity.Cache {
	return e.quantities
}

// ResetCache drops the cached edges and/or fits. Dropping edges also drops
// the fits depending on them.
func (e *Engine) ResetCache(edge, fit bool) {
	n := e.Len()
	if edge {
		e.edges.Resize(n)
	}
	if fit || edge {
		e.fits.Resize(n)
	}
	e.runner.Forget()
	e.quantities.SetResult(nil)
}

// SetSource replaces the frame source and resets every cache.
func (e *Engine) SetSource(source FrameSource) {
	e.source = source
	e.frames.SetSource(source)
	e.ResetCache(true, true)
	e.log.Info().Int("frames", e.Len()).Msg("frame source replaced")
}

// EdgeDisplayPoints returns the edge points at index in crop-relative pixel
// coordinates.
func (e *Engine) EdgeDisplayPoints(index int) []geometry.Point2D {
	f := e.Normalized(index)
	edge := e.Edge(index)
	out := make([]geometry.Point2D, len(edge.Points))
	for i, p := range edge.Points {
		out[i] = f.ToPixel(p)
	}
	return out
}

// FitDisplayPoints returns n points of the fitted profile at index and the
// model center, in crop-relative pixel coordinates.
func (e *Engine) FitDisplayPoints(index, n int) (curve []geometry.Point2D, center geometry.Point2D, ok bool) {
	f := e.Normalized(index)
	fit := e.Fit(index)
	if fit.Degenerate() {
		return nil, geometry.NaNPoint(), false
	}
	for _, p := range fit.Curve(n) {
		curve = append(curve, f.ToPixel(p))
	}
	return curve, f.ToPixel(fit.Center()), true
}
