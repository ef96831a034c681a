package pipeline

import (
	"github.com/rs/zerolog"

	"drop-analyzer/internal/cache"
	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/internal/telemetry"
)

// EdgeCache holds one detected edge per frame of the original sequence.
type EdgeCache struct {
	up       Upstream[*drop.NormalizedFrame]
	detector EdgeDetector
	slots    *cache.Slots[params.Edge, *drop.Edge]
	onEvict  []func()

	log     zerolog.Logger
	metrics telemetry.Collector
}

// NewEdgeCache returns an edge cache with n slots.
func NewEdgeCache(n int, up Upstream[*drop.NormalizedFrame], detector EdgeDetector, log zerolog.Logger, metrics telemetry.Collector) *EdgeCache {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &EdgeCache{
		up:       up,
		detector: detector,
		slots:    cache.New[params.Edge, *drop.Edge](n),
		log:      log.With().Str("layer", telemetry.LayerEdge).Logger(),
		metrics:  metrics,
	}
}

// OnEvict registers fn to be called whenever cached edges are dropped.
func (c *EdgeCache) OnEvict(fn func()) {
	c.onEvict = append(c.onEvict, fn)
}

// Refresh checks the upstream layer, then p. A changed p evicts every edge.
// Method none leaves the slots and their snapshot untouched.
func (c *EdgeCache) Refresh(p params.Edge) {
	c.up.Refresh()
	if p.Method == params.EdgeNone {
		return
	}
	if c.slots.Sync(p) {
		c.metrics.CacheEvict(telemetry.LayerEdge)
		c.log.Debug().Stringer("method", p.Method).Msg("edge parameters changed")
		c.notify()
	}
}

// Get returns the edge of the frame at index. Detection failures yield an
// empty edge, which is cached like any other result.
func (c *EdgeCache) Get(p params.Edge, index int) *drop.Edge {
	c.Refresh(p)
	if p.Method == params.EdgeNone || index < 0 || index >= c.slots.Len() {
		return drop.EmptyEdge(c.up.At(index), p.Method)
	}
	if e, ok := c.slots.Get(index); ok {
		c.metrics.CacheHit(telemetry.LayerEdge)
		return e
	}
	c.metrics.CacheMiss(telemetry.LayerEdge)

	frame := c.up.At(index)
	edge, err := guard(func() (*drop.Edge, error) { return c.detector.Detect(frame, p) })
	switch {
	case err != nil:
		c.log.Warn().Err(err).Int("frame", index).Msg("no drop found on this frame")
		c.metrics.FrameFailed(telemetry.LayerEdge)
		edge = drop.EmptyEdge(frame, p.Method)
	case edge == nil:
		edge = drop.EmptyEdge(frame, p.Method)
	}
	edge.Index = index
	edge.Method = p.Method
	c.slots.Put(index, edge)
	return edge
}

// Resize drops every edge and resizes the cache to n frames.
func (c *EdgeCache) Resize(n int) {
	c.slots.Reset(n)
	c.notify()
}

// Invalidate drops every edge and the stored snapshot.
func (c *EdgeCache) Invalidate() {
	c.slots.Invalidate()
	c.notify()
}

func (c *EdgeCache) notify() {
	for _, fn := range c.onEvict {
		fn()
	}
}
