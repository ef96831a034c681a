// Package quantity derives named time series from a bulk fit result and
// memoizes them by name and smoothing.
package quantity

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/telemetry"
	"drop-analyzer/internal/units"
)

// Built-in quantity names.
const (
	FrameNumber    = "Frame number"
	Time           = "Time"
	PositionLeft   = "Position (x, left)"
	PositionRight  = "Position (x, right)"
	PositionCenter = "Position (x, center)"
	VelocityLeft   = "CL velocity (x, left)"
	VelocityRight  = "CL velocity (x, right)"
	AngleLeft      = "CA (left)"
	AngleRight     = "CA (right)"
	AngleMean      = "CA (mean)"
	BaseRadius     = "Base radius"
	Height         = "Height"
	Area           = "Area"
	Volume         = "Volume"
	RidgeLeft      = "Ridge height (left)"
	RidgeRight     = "Ridge height (right)"
	RidgeMean      = "Ridge height (mean)"
	TPAngleLeft    = "CA (TP, left)"
	TPAngleRight   = "CA (TP, right)"
	TPAngleMean    = "CA (TP, mean)"
)

// Series is one derived quantity. Raw holds the series before smoothing and
// is all NaN when no smoothing was applied.
type Series struct {
	Name   string
	Values []float64
	Raw    []float64
	Unit   string
}

// Empty reports whether the series has no samples.
func (s Series) Empty() bool {
	return len(s.Values) == 0
}

type key struct {
	name      string
	smoothing float64
}

type builtin struct {
	unit   func(drop.Units) string
	values func(*drop.BulkFitResult) []float64
	ridge  bool
}

// Cache computes quantities from the current bulk result. It is not aware
// of parameters: the owner clears it when the result changes.
type Cache struct {
	result *drop.BulkFitResult
	memo   map[key]Series
	custom map[string]customQuantity

	log     zerolog.Logger
	metrics telemetry.Collector
}

// New returns an empty cache.
func New(log zerolog.Logger, metrics telemetry.Collector) *Cache {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &Cache{
		memo:    make(map[key]Series),
		custom:  make(map[string]customQuantity),
		log:     log.With().Str("layer", telemetry.LayerQuantity).Logger(),
		metrics: metrics,
	}
}

// SetResult replaces the bulk result. The memo is cleared when it changes.
func (c *Cache) SetResult(r *drop.BulkFitResult) {
	if r == c.result {
		return
	}
	c.result = r
	c.Clear()
}

// Result returns the bulk result quantities are derived from.
func (c *Cache) Result() *drop.BulkFitResult {
	return c.result
}

// Clear drops every memoized series.
func (c *Cache) Clear() {
	if len(c.memo) > 0 {
		c.metrics.CacheEvict(telemetry.LayerQuantity)
	}
	clear(c.memo)
}

// Names lists the quantities available for the current result: the
// built-in ones, minus ridge quantities when the fit method has no ridge,
// followed by the custom ones in alphabetical order.
func (c *Cache) Names() []string {
	ridge := c.result != nil && c.result.Method().SupportsRidge()
	names := make([]string, 0, len(order)+len(c.custom))
	for _, name := range order {
		if builtins[name].ridge && !ridge {
			continue
		}
		names = append(names, name)
	}
	custom := make([]string, 0, len(c.custom))
	for name := range c.custom {
		custom = append(custom, name)
	}
	sort.Strings(custom)
	return append(names, custom...)
}

// Get returns the named quantity smoothed with a Gaussian of the given
// sigma, in samples. A zero smoothing returns the raw series.
func (c *Cache) Get(name string, smoothing float64) Series {
	if c.result == nil || c.result.Len() == 0 {
		c.log.Warn().Str("quantity", name).Msg("fit needs to be computed first")
		return Series{Name: name}
	}
	k := key{name: name, smoothing: smoothing}
	if s, ok := c.memo[k]; ok {
		c.metrics.CacheHit(telemetry.LayerQuantity)
		return s
	}
	c.metrics.CacheMiss(telemetry.LayerQuantity)

	raw, unit, ok := c.raw(name)
	if !ok {
		return Series{Name: name}
	}
	if len(raw) == 1 {
		raw = []float64{raw[0], raw[0]}
	}

	s := Series{Name: name, Unit: unit}
	if smoothing > 0 {
		s.Raw = raw
		s.Values = smooth(raw, smoothing)
	} else {
		s.Raw = nanSeries(len(raw))
		s.Values = raw
	}
	c.memo[k] = s
	return s
}

func (c *Cache) raw(name string) ([]float64, string, bool) {
	if b, ok := builtins[name]; ok {
		if b.ridge && !c.result.Method().SupportsRidge() {
			c.log.Debug().Str("quantity", name).Stringer("method", c.result.Method()).Msg("fit method has no wetting ridge")
			return nil, "", false
		}
		return b.values(c.result), b.unit(c.result.Units), true
	}
	if q, ok := c.custom[name]; ok {
		values, err := q.evaluate(c)
		if err != nil {
			c.log.Warn().Err(err).Str("quantity", name).Msg("custom quantity failed")
			return nil, "", false
		}
		return values, q.unit, true
	}
	c.log.Warn().Str("quantity", name).Msg("unknown quantity")
	return nil, "", false
}

var order = []string{
	FrameNumber, Time,
	PositionLeft, PositionRight, PositionCenter,
	VelocityLeft, VelocityRight,
	AngleLeft, AngleRight, AngleMean,
	BaseRadius, Height, Area, Volume,
	RidgeLeft, RidgeRight, RidgeMean,
	TPAngleLeft, TPAngleRight, TPAngleMean,
}

var builtins = map[string]builtin{
	FrameNumber: {unit: none, values: func(r *drop.BulkFitResult) []float64 {
		out := make([]float64, len(r.Frames))
		for i, f := range r.Frames {
			out[i] = float64(f)
		}
		return out
	}},
	Time: {unit: timeUnit, values: func(r *drop.BulkFitResult) []float64 {
		return append([]float64(nil), r.Times...)
	}},
	PositionLeft:   {unit: length, values: perFit(leftX)},
	PositionRight:  {unit: length, values: perFit(rightX)},
	PositionCenter: {unit: length, values: perFit(centerX)},
	VelocityLeft:   {unit: velocity, values: velocityOf(leftX)},
	VelocityRight:  {unit: velocity, values: velocityOf(rightX)},
	AngleLeft:      {unit: degrees, values: angle(func(a drop.ContactAngles) float64 { return a.Left })},
	AngleRight:     {unit: degrees, values: angle(func(a drop.ContactAngles) float64 { return a.Right })},
	AngleMean:      {unit: degrees, values: angle(drop.ContactAngles.Mean)},
	BaseRadius:     {unit: length, values: perFit((*drop.Fit).BaseRadius)},
	Height:         {unit: length, values: perFit((*drop.Fit).Height)},
	Area:           {unit: area, values: perFit((*drop.Fit).Area)},
	Volume:         {unit: volume, values: perFit((*drop.Fit).Volume)},
	RidgeLeft:      {unit: length, ridge: true, values: triple(func(t drop.TriplePoints) float64 { return t.Left.Y })},
	RidgeRight:     {unit: length, ridge: true, values: triple(func(t drop.TriplePoints) float64 { return t.Right.Y })},
	RidgeMean: {unit: length, ridge: true, values: triple(func(t drop.TriplePoints) float64 {
		return (t.Left.Y + t.Right.Y) / 2
	})},
	TPAngleLeft:  {unit: degrees, ridge: true, values: triple(func(t drop.TriplePoints) float64 { return t.Angles.Left })},
	TPAngleRight: {unit: degrees, ridge: true, values: triple(func(t drop.TriplePoints) float64 { return t.Angles.Right })},
	TPAngleMean:  {unit: degrees, ridge: true, values: triple(func(t drop.TriplePoints) float64 { return t.Angles.Mean() })},
}

func none(drop.Units) string       { return "" }
func timeUnit(u drop.Units) string { return u.Time }
func length(u drop.Units) string   { return units.Length(u.Length) }
func area(u drop.Units) string     { return units.Area(u.Length) }
func volume(u drop.Units) string   { return units.Volume(u.Length) }
func velocity(u drop.Units) string { return units.Velocity(u.Length, u.Time) }
func degrees(drop.Units) string    { return "deg" }

func perFit(fn func(*drop.Fit) float64) func(*drop.BulkFitResult) []float64 {
	return func(r *drop.BulkFitResult) []float64 {
		return r.Series(func(f *drop.Fit) float64 {
			if f == nil {
				return math.NaN()
			}
			return fn(f)
		})
	}
}

func leftX(f *drop.Fit) float64 {
	l, _, ok := f.ContactPoints()
	if !ok {
		return math.NaN()
	}
	return l.X
}

func rightX(f *drop.Fit) float64 {
	_, r, ok := f.ContactPoints()
	if !ok {
		return math.NaN()
	}
	return r.X
}

func centerX(f *drop.Fit) float64 {
	l, r, ok := f.ContactPoints()
	if !ok {
		return math.NaN()
	}
	return (l.X + r.X) / 2
}

func velocityOf(x func(*drop.Fit) float64) func(*drop.BulkFitResult) []float64 {
	return func(r *drop.BulkFitResult) []float64 {
		return gradient(perFit(x)(r), r.Dt)
	}
}

func angle(fn func(drop.ContactAngles) float64) func(*drop.BulkFitResult) []float64 {
	return perFit(func(f *drop.Fit) float64 {
		if f.Angles == nil {
			return math.NaN()
		}
		return fn(*f.Angles)
	})
}

func triple(fn func(drop.TriplePoints) float64) func(*drop.BulkFitResult) []float64 {
	return perFit(func(f *drop.Fit) float64 {
		if f.Triple == nil {
			return math.NaN()
		}
		return fn(*f.Triple)
	})
}
