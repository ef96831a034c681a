package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/internal/telemetry"
)

// CancelFlag is set by the user to stop a bulk run. It is the only value of
// the package shared between goroutines. A nil flag is never cancelled.
type CancelFlag struct {
	set atomic.Bool
}

// Cancel requests the running batch to stop.
func (c *CancelFlag) Cancel() {
	if c != nil {
		c.set.Store(true)
	}
}

// Cancelled reports whether a stop was requested.
func (c *CancelFlag) Cancelled() bool {
	return c != nil && c.set.Load()
}

// Reset clears the flag.
func (c *CancelFlag) Reset() {
	if c != nil {
		c.set.Store(false)
	}
}

// FitProvider returns the fit of one frame under the current parameters.
type FitProvider interface {
	Fit(index int) *drop.Fit
}

// Request holds the snapshots a bulk run is computed under.
type Request struct {
	Preprocess params.Preprocess
	Edge       params.Edge
	Fit        params.Fit
	Run        params.Run

	// Frames is the length of the source sequence.
	Frames int
}

func (r Request) matches(o Request) bool {
	return r.Frames == o.Frames &&
		r.Preprocess.Equal(o.Preprocess) &&
		r.Edge.Equal(o.Edge) &&
		r.Fit.Equal(o.Fit) &&
		r.Run.Equal(o.Run)
}

// BatchRunner fits a strided frame range in one pass and keeps the last
// result.
type BatchRunner struct {
	fits    FitProvider
	last    *drop.BulkFitResult
	lastReq Request

	log     zerolog.Logger
	metrics telemetry.Collector
}

// NewBatchRunner returns a runner reading fits from fits.
func NewBatchRunner(fits FitProvider, log zerolog.Logger, metrics telemetry.Collector) *BatchRunner {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &BatchRunner{
		fits:    fits,
		log:     log.With().Str("layer", telemetry.LayerBatch).Logger(),
		metrics: metrics,
	}
}

// Last returns the result of the last run, or nil.
func (r *BatchRunner) Last() *drop.BulkFitResult {
	return r.last
}

// Forget drops the last result so the next run always recomputes.
func (r *BatchRunner) Forget() {
	r.last = nil
	r.lastReq = Request{}
}

// Run fits every frame of req.Run. The cancel flag and ctx are polled before
// each frame; once either is set, the remaining slots are padded with the
// last computed fit stripped of its angles. The flag is reset on return.
// A run without edge detection produces nil.
func (r *BatchRunner) Run(ctx context.Context, req Request, hook Hook, cancel *CancelFlag) *drop.BulkFitResult {
	defer cancel.Reset()
	req.Run = req.Run.Normalized()

	if req.Edge.Method == params.EdgeNone {
		r.log.Warn().Msg("no edge detection method selected")
		return nil
	}
	if r.last != nil && !r.last.Stopped && r.lastReq.matches(req) {
		r.log.Debug().Str("run", r.last.RunID.String()).Msg("parameters unchanged, reusing last bulk fit")
		return r.last
	}

	start := time.Now()
	dt := positiveOr(req.Preprocess.ScaleT.Value, 1)
	res := &drop.BulkFitResult{
		RunID:   uuid.New(),
		Created: start,
		Edge:    req.Edge,
		Fit:     req.Fit,
		Run:     req.Run,
		Dt:      dt * float64(req.Run.Stride),
		Units:   drop.Units{Length: req.Preprocess.ScaleX.Unit, Time: req.Preprocess.ScaleT.Unit},
	}

	computed := 0
	if req.Frames == 1 {
		f := r.fits.Fit(0)
		res.Fits = []*drop.Fit{f, f}
		res.Frames = []int{0, 1}
		res.Times = []float64{0, dt}
		res.Dt = dt
		computed = 1
		hook.call(1, 1)
	} else {
		computed = r.loop(ctx, req, res, dt, hook, cancel)
	}

	elapsed := time.Since(start)
	r.metrics.BatchDone(computed, res.Stopped, elapsed)
	r.log.Info().
		Str("run", res.RunID.String()).
		Int("frames", computed).
		Int("total", res.Len()).
		Bool("stopped", res.Stopped).
		Dur("elapsed", elapsed).
		Msg("bulk fit done")

	r.last = res
	r.lastReq = req
	return res
}

func (r *BatchRunner) loop(ctx context.Context, req Request, res *drop.BulkFitResult, dt float64, hook Hook, cancel *CancelFlag) int {
	frames := req.Run.Frames()
	n := len(frames)
	res.Fits = make([]*drop.Fit, n)
	res.Frames = make([]int, n)
	res.Times = make([]float64, n)

	var last, pad *drop.Fit
	computed := 0
	for i, index := range frames {
		res.Frames[i] = index
		res.Times[i] = float64(index) * dt

		if !res.Stopped && (cancel.Cancelled() || ctx.Err() != nil) {
			res.Stopped = true
			pad = last.Stripped()
			if pad == nil {
				pad = drop.DegenerateFit(nil, req.Fit.Method)
				pad.Padded = true
			}
			r.log.Info().Int("frame", index).Msg("bulk fit stopped by user")
		}
		if res.Stopped {
			res.Fits[i] = pad
			continue
		}

		last = r.fits.Fit(index)
		res.Fits[i] = last
		computed++
		hook.call(i+1, n)
	}
	return computed
}
