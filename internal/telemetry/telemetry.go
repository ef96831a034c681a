package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Layer names used as metric labels.
const (
	LayerPreprocess = "preprocess"
	LayerEdge       = "edge"
	LayerFit        = "fit"
	LayerQuantity   = "quantity"
	LayerBatch      = "batch"
)

// Collector captures cache and batch events emitted by the analysis
// pipeline. Calls happen inline with per-frame work and must be cheap.
type Collector interface {
	CacheHit(layer string)
	CacheMiss(layer string)
	CacheEvict(layer string)
	FrameFailed(layer string)
	BatchDone(frames int, stopped bool, elapsed time.Duration)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) CacheHit(string)                    {}
func (noopCollector) CacheMiss(string)                   {}
func (noopCollector) CacheEvict(string)                  {}
func (noopCollector) FrameFailed(string)                 {}
func (noopCollector) BatchDone(int, bool, time.Duration) {}

// PrometheusCollector exposes pipeline counters via Prometheus.
type PrometheusCollector struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions *prometheus.CounterVec
	failures  *prometheus.CounterVec
	batches   *prometheus.CounterVec
	frames    prometheus.Counter
	duration  prometheus.Histogram
}

// NewPrometheusCollector registers the pipeline metrics with reg, reusing
// collectors that are already registered.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	p := &PrometheusCollector{}
	if p.hits, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drop_analyzer_cache_hits_total",
		Help: "Number of cache hits per pipeline layer.",
	}, []string{"layer"})); err != nil {
		return nil, err
	}
	if p.misses, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drop_analyzer_cache_misses_total",
		Help: "Number of cache misses per pipeline layer.",
	}, []string{"layer"})); err != nil {
		return nil, err
	}
	if p.evictions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drop_analyzer_cache_evictions_total",
		Help: "Number of whole-cache evictions per pipeline layer.",
	}, []string{"layer"})); err != nil {
		return nil, err
	}
	if p.failures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drop_analyzer_frame_failures_total",
		Help: "Number of frames for which a layer produced an empty result.",
	}, []string{"layer"})); err != nil {
		return nil, err
	}
	if p.batches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drop_analyzer_batches_total",
		Help: "Number of bulk fit runs by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if p.frames, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drop_analyzer_batch_frames_total",
		Help: "Number of frames visited by bulk fit runs.",
	})); err != nil {
		return nil, err
	}
	if p.duration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "drop_analyzer_batch_duration_seconds",
		Help:    "Duration of bulk fit runs.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})); err != nil {
		return nil, err
	}
	return p, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// CacheHit counts a cache hit for layer.
func (p *PrometheusCollector) CacheHit(layer string) {
	if p == nil {
		return
	}
	p.hits.WithLabelValues(layer).Inc()
}

// CacheMiss counts a cache miss for layer.
func (p *PrometheusCollector) CacheMiss(layer string) {
	if p == nil {
		return
	}
	p.misses.WithLabelValues(layer).Inc()
}

// CacheEvict counts a whole-cache eviction for layer.
func (p *PrometheusCollector) CacheEvict(layer string) {
	if p == nil {
		return
	}
	p.evictions.WithLabelValues(layer).Inc()
}

// FrameFailed counts an empty per-frame result for layer.
func (p *PrometheusCollector) FrameFailed(layer string) {
	if p == nil {
		return
	}
	p.failures.WithLabelValues(layer).Inc()
}

// BatchDone records a finished bulk run.
func (p *PrometheusCollector) BatchDone(frames int, stopped bool, elapsed time.Duration) {
	if p == nil {
		return
	}
	outcome := "completed"
	if stopped {
		outcome = "stopped"
	}
	p.batches.WithLabelValues(outcome).Inc()
	p.frames.Add(float64(frames))
	p.duration.Observe(elapsed.Seconds())
}
