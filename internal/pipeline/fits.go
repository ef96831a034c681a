package pipeline

import (
	"github.com/rs/zerolog"

	"drop-analyzer/internal/cache"
	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/internal/telemetry"
)

// FitCache holds one fit per frame of the original sequence.
type FitCache struct {
	up      Upstream[*drop.Edge]
	fitter  Fitter
	slots   *cache.Slots[params.Fit, *drop.Fit]
	onEvict []func()

	log     zerolog.Logger
	metrics telemetry.Collector
}

// NewFitCache returns a fit cache with n slots.
func NewFitCache(n int, up Upstream[*drop.Edge], fitter Fitter, log zerolog.Logger, metrics telemetry.Collector) *FitCache {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &FitCache{
		up:      up,
		fitter:  fitter,
		slots:   cache.New[params.Fit, *drop.Fit](n),
		log:     log.With().Str("layer", telemetry.LayerFit).Logger(),
		metrics: metrics,
	}
}

// OnEvict registers fn to be called whenever cached fits are dropped.
func (c *FitCache) OnEvict(fn func()) {
	c.onEvict = append(c.onEvict, fn)
}

// Refresh checks the upstream layers, then p. A changed p evicts every fit.
// Method none leaves the slots and their snapshot untouched.
func (c *FitCache) Refresh(p params.Fit) {
	c.up.Refresh()
	if p.Method == params.FitNone {
		return
	}
	if c.slots.Sync(p) {
		c.metrics.CacheEvict(telemetry.LayerFit)
		c.log.Debug().Stringer("method", p.Method).Msg("fit parameters changed")
		c.notify()
	}
}

// Get returns the fit of the frame at index. A missing edge or a failed fit
// yields a degenerate fit, which is cached like any other result.
func (c *FitCache) Get(p params.Fit, index int) *drop.Fit {
	c.Refresh(p)
	if p.Method == params.FitNone || c.up.Disabled() || index < 0 || index >= c.slots.Len() {
		return drop.DegenerateFit(c.up.At(index), p.Method)
	}
	if f, ok := c.slots.Get(index); ok {
		c.metrics.CacheHit(telemetry.LayerFit)
		return f
	}
	c.metrics.CacheMiss(telemetry.LayerFit)

	edge := c.up.At(index)
	fit := c.compute(edge, p, index)
	fit.Index = index
	c.slots.Put(index, fit)
	return fit
}

func (c *FitCache) compute(edge *drop.Edge, p params.Fit, index int) *drop.Fit {
	if edge.Empty() {
		c.log.Debug().Int("frame", index).Msg("no edge to fit")
		return drop.DegenerateFit(edge, p.Method)
	}
	model, err := guard(func() (drop.Model, error) { return c.fitter.Fit(edge, p) })
	if err != nil || model == nil {
		c.log.Warn().Err(err).Int("frame", index).Stringer("method", p.Method).Msg("couldn't find a fit")
		c.metrics.FrameFailed(telemetry.LayerFit)
		return drop.DegenerateFit(edge, p.Method)
	}
	fit := drop.DegenerateFit(edge, p.Method)
	fit.Model = model
	if err := fit.ComputeContactAngles(); err != nil {
		c.log.Debug().Err(err).Int("frame", index).Msg("contact angle not computed")
	}
	return fit
}

// Resize drops every fit and resizes the cache to n frames.
func (c *FitCache) Resize(n int) {
	c.slots.Reset(n)
	c.notify()
}

// Invalidate drops every fit and the stored snapshot.
func (c *FitCache) Invalidate() {
	c.slots.Invalidate()
	c.notify()
}

func (c *FitCache) notify() {
	for _, fn := range c.onEvict {
		fn()
	}
}
