package pipeline

import (
	"image"

	"github.com/rs/zerolog"

	"drop-analyzer/internal/cache"
	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/internal/telemetry"
)

// preprocessMilestones is the number of hook steps of a stream rebuild:
// baseline set, crop applied, scale applied, done.
const preprocessMilestones = 4

// PreprocessCache holds the normalized frame stream for one preprocessing
// snapshot. Stream positions are 0-based and relative to the first frame of
// the snapshot's range: position = index - First.
type PreprocessCache struct {
	source  FrameSource
	slots   *cache.Slots[params.Preprocess, *drop.NormalizedFrame]
	plan    plan
	hook    Hook
	onEvict []func()

	log     zerolog.Logger
	metrics telemetry.Collector
}

// NewPreprocessCache returns an empty cache reading from source.
func NewPreprocessCache(source FrameSource, log zerolog.Logger, metrics telemetry.Collector) *PreprocessCache {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &PreprocessCache{
		source:  source,
		slots:   cache.New[params.Preprocess, *drop.NormalizedFrame](0),
		log:     log.With().Str("layer", telemetry.LayerPreprocess).Logger(),
		metrics: metrics,
	}
}

// SetHook sets the hook notified at each milestone of a stream rebuild.
func (c *PreprocessCache) SetHook(h Hook) {
	c.hook = h
}

// OnEvict registers fn to be called whenever the stream is invalidated.
func (c *PreprocessCache) OnEvict(fn func()) {
	c.onEvict = append(c.onEvict, fn)
}

// SetSource replaces the frame source and drops the whole stream.
func (c *PreprocessCache) SetSource(source FrameSource) {
	c.source = source
	c.Invalidate()
}

// Sync makes p the current snapshot, rebuilding the stream and invalidating
// the dependent layers when it changed.
func (c *PreprocessCache) Sync(p params.Preprocess) bool {
	if !c.slots.Sync(p) {
		return false
	}
	c.rebuild(p)
	return true
}

func (c *PreprocessCache) rebuild(p params.Preprocess) {
	c.metrics.CacheEvict(telemetry.LayerPreprocess)
	c.plan = planStages(p, func(stage int) { c.hook.call(stage, preprocessMilestones) })
	c.slots.Resize(max(p.Last-p.First+1, 0))
	c.hook.call(preprocessMilestones, preprocessMilestones)
	c.log.Debug().
		Int("first", p.First).
		Int("last", p.Last).
		Str("crop", c.plan.crop.String()).
		Msg("normalized stream rebuilt")
	c.notify()
}

// Get returns the normalized frame for an index of the original sequence.
func (c *PreprocessCache) Get(p params.Preprocess, index int) *drop.NormalizedFrame {
	c.Sync(p)
	pos := p.Position(index)
	if pos < 0 || pos >= c.slots.Len() {
		c.log.Warn().Int("frame", index).Msg("frame outside the selected range")
		return drop.BlankFrame(index)
	}
	if f, ok := c.slots.Get(pos); ok {
		c.metrics.CacheHit(telemetry.LayerPreprocess)
		return f
	}
	c.metrics.CacheMiss(telemetry.LayerPreprocess)
	f := c.load(index)
	c.slots.Put(pos, f)
	return f
}

// At returns the cached frame at a stream position without loading it.
func (c *PreprocessCache) At(pos int) (*drop.NormalizedFrame, bool) {
	return c.slots.Get(pos)
}

// Len returns the length of the current stream.
func (c *PreprocessCache) Len() int {
	return c.slots.Len()
}

// Invalidate drops the stream and its snapshot.
func (c *PreprocessCache) Invalidate() {
	c.slots.Invalidate()
	c.notify()
}

func (c *PreprocessCache) notify() {
	for _, fn := range c.onEvict {
		fn()
	}
}

func (c *PreprocessCache) load(index int) *drop.NormalizedFrame {
	if c.source == nil || index < 0 || index >= c.source.Len() {
		c.log.Warn().Int("frame", index).Msg("couldn't get the asked frame number")
		c.metrics.FrameFailed(telemetry.LayerPreprocess)
		return drop.BlankFrame(index)
	}
	raw, err := guard(func() (image.Image, error) { return c.source.Frame(index) })
	if err != nil || raw == nil {
		c.log.Warn().Err(err).Int("frame", index).Msg("couldn't decode frame")
		c.metrics.FrameFailed(telemetry.LayerPreprocess)
		return drop.BlankFrame(index)
	}
	return c.plan.apply(raw, index)
}
