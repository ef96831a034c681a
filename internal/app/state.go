// Package app provides the analysis session shared by the command line and
// the desktop front ends: inputs, parameters, events and the cache engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"drop-analyzer/internal/config"
	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/image"
	"drop-analyzer/internal/params"
	"drop-analyzer/internal/pipeline"
	"drop-analyzer/internal/project"
	"drop-analyzer/internal/telemetry"
	"drop-analyzer/internal/units"
	"drop-analyzer/internal/vision"
)

// ErrNoSource is returned by operations needing frames before any input was
// opened.
var ErrNoSource = errors.New("no input opened")

// EventType identifies different session events.
type EventType int

const (
	EventSourceLoaded EventType = iota
	EventParamsChanged
	EventComputed
	EventInfoSaved
	EventModified
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// Deps are the algorithms and sinks a session runs with.
type Deps struct {
	Detector pipeline.EdgeDetector
	Fitter   pipeline.Fitter
	Logger   zerolog.Logger
	Metrics  telemetry.Collector
	// Hook observes stream rebuilds, input loading and bulk runs.
	Hook pipeline.Hook
}

// Session holds the parameters of one analysis and the engine computing
// it. It implements pipeline.ParamSource.
//
// The engine is not safe for concurrent use: every call into it goes
// through Do or TryDo, which serialize with Compute. Cancel is the only
// engine operation that bypasses the lock.
type Session struct {
	mu sync.RWMutex

	engineMu  sync.Mutex
	computing atomic.Bool

	Config   *config.Config
	Inputs   []string
	InfoPath string
	Modified bool

	preprocess params.Preprocess
	edge       params.Edge
	fit        params.Fit
	run        params.Run
	smoothing  float64

	source pipeline.FrameSource
	engine *pipeline.Engine
	hook   pipeline.Hook
	log    zerolog.Logger

	listeners map[EventType][]EventListener
}

// NewSession creates a session from cfg without any input.
func NewSession(cfg *config.Config, deps Deps) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Session{
		Config:    cfg,
		edge:      cfg.Edge,
		fit:       cfg.Fit,
		run:       params.Run{Stride: cfg.Stride}.Normalized(),
		smoothing: cfg.Smoothing,
		hook:      deps.Hook,
		log:       deps.Logger,
		listeners: make(map[EventType][]EventListener),
	}
	s.engine = pipeline.NewEngine(s, nil, deps.Detector, deps.Fitter, pipeline.Options{
		Logger:  deps.Logger,
		Metrics: deps.Metrics,
		Hook:    deps.Hook,
	})
	for _, q := range cfg.Custom {
		if err := s.engine.Quantities().Define(q.Name, q.Expression, q.Unit); err != nil {
			return nil, fmt.Errorf("custom quantity %q: %w", q.Name, err)
		}
	}
	return s, nil
}

// On registers an event listener for the specified event type.
func (s *Session) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *Session) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SetModified marks the session as modified and emits an event.
func (s *Session) SetModified(modified bool) {
	s.mu.Lock()
	s.Modified = modified
	s.mu.Unlock()
	s.Emit(EventModified, modified)
}

// Preprocess implements pipeline.ParamSource.
func (s *Session) Preprocess() params.Preprocess {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preprocess
}

// Edge implements pipeline.ParamSource.
func (s *Session) Edge() params.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edge
}

// Fit implements pipeline.ParamSource.
func (s *Session) Fit() params.Fit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fit
}

// Run implements pipeline.ParamSource.
func (s *Session) Run() params.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

// Smoothing returns the smoothing of plotted quantities, in samples.
func (s *Session) Smoothing() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.smoothing
}

// SetPreprocess replaces the preprocessing parameters. The bulk run range
// follows the frame range.
func (s *Session) SetPreprocess(p params.Preprocess) {
	s.mu.Lock()
	s.preprocess = p
	s.run.First, s.run.Last = p.First, p.Last
	s.mu.Unlock()
	s.changed(p)
}

// SetEdge replaces the edge-detection parameters.
func (s *Session) SetEdge(p params.Edge) {
	s.mu.Lock()
	s.edge = p
	s.mu.Unlock()
	s.changed(p)
}

// SetFit replaces the fit parameters.
func (s *Session) SetFit(p params.Fit) {
	s.mu.Lock()
	s.fit = p
	s.mu.Unlock()
	s.changed(p)
}

// SetStride changes the frame stride of bulk runs.
func (s *Session) SetStride(stride int) {
	s.mu.Lock()
	s.run.Stride = max(stride, 1)
	r := s.run
	s.mu.Unlock()
	s.changed(r)
}

// SetSmoothing changes the smoothing of plotted quantities.
func (s *Session) SetSmoothing(smoothing float64) {
	s.mu.Lock()
	s.smoothing = max(smoothing, 0)
	s.mu.Unlock()
	s.Emit(EventParamsChanged, smoothing)
}

func (s *Session) changed(p interface{}) {
	s.Emit(EventParamsChanged, p)
	s.SetModified(true)
}

// Do runs fn with exclusive use of the engine, waiting for a running
// Compute to finish first. fn must not call back into Do, TryDo or Compute.
func (s *Session) Do(fn func(e *pipeline.Engine)) {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	fn(s.engine)
}

// TryDo runs fn only when the engine is idle and reports whether it ran.
// Interactive callers use it so they never block behind a bulk run.
func (s *Session) TryDo(fn func(e *pipeline.Engine)) bool {
	if !s.engineMu.TryLock() {
		return false
	}
	defer s.engineMu.Unlock()
	fn(s.engine)
	return true
}

// Computing reports whether a bulk run is in progress.
func (s *Session) Computing() bool {
	return s.computing.Load()
}

// Source returns the current frame source, or nil.
func (s *Session) Source() pipeline.FrameSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// OpenInputs opens a video or a set of images as a frame source.
func OpenInputs(inputs []string, hook pipeline.Hook) (pipeline.FrameSource, error) {
	if len(inputs) == 0 {
		return nil, image.ErrNoFrames
	}
	if len(inputs) == 1 && image.IsVideo(inputs[0]) {
		return vision.OpenVideo(inputs[0])
	}
	for _, in := range inputs {
		if !image.IsSupportedFormat(in) {
			return nil, fmt.Errorf("%s: unsupported format", in)
		}
	}
	return image.OpenSequence(inputs, hook)
}

// Open opens inputs, resolves the pixel scale and loads them into the
// session.
func (s *Session) Open(inputs []string) error {
	src, err := OpenInputs(inputs, s.hook)
	if err != nil {
		return err
	}
	if err := s.resolveScale(src); err != nil {
		closeSource(src)
		return err
	}
	if err := s.Load(src, inputs); err != nil {
		closeSource(src)
		return err
	}
	return nil
}

// Load replaces the frame source. Preprocessing comes from the info file
// of inputs when there is one, from the session config otherwise.
func (s *Session) Load(src pipeline.FrameSource, inputs []string) error {
	if src == nil || src.Len() == 0 {
		return ErrNoSource
	}
	first, err := src.Frame(0)
	if err != nil {
		return fmt.Errorf("failed to read first frame: %w", err)
	}
	b := first.Bounds()

	infoPath := project.Path(inputs)
	info, err := project.Read(infoPath, s.log)
	if err != nil {
		s.log.Warn().Err(err).Str("path", infoPath).Msg("info file not read")
	}

	var p params.Preprocess
	if info != nil {
		p = info.Preprocess.WithFrameRange(info.Preprocess.First, min(info.Preprocess.Last, src.Len()-1))
		s.log.Info().Str("path", infoPath).Msg("preprocessing restored from info file")
	} else {
		dx, err := s.Config.PixelScale()
		if err != nil {
			return err
		}
		p, err = s.Config.Preprocess(b.Dx(), b.Dy(), src.Len(), dx, timeStep(src))
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	old := s.source
	s.source = src
	s.Inputs = append([]string(nil), inputs...)
	s.InfoPath = infoPath
	s.preprocess = p
	s.run = params.Run{First: p.First, Last: p.Last, Stride: s.run.Stride}.Normalized()
	s.Modified = false
	s.mu.Unlock()

	if old != nil {
		closeSource(old)
	}
	s.Do(func(e *pipeline.Engine) { e.SetSource(src) })
	s.Emit(EventSourceLoaded, src)
	return nil
}

// timeStep returns the frame interval of sources that know it, one second
// otherwise.
func timeStep(src pipeline.FrameSource) units.Quantity {
	if ts, ok := src.(pipeline.TimeStepper); ok {
		if dt, ok := ts.TimeStep(); ok {
			return units.Quantity{Value: dt, Unit: "s"}
		}
	}
	return units.Quantity{Value: 1, Unit: "s"}
}

// Compute runs the bulk fit and emits the result once the engine is
// released, so listeners may use Do.
func (s *Session) Compute(ctx context.Context) (*drop.BulkFitResult, error) {
	if s.Source() == nil {
		return nil, ErrNoSource
	}
	var res *drop.BulkFitResult
	s.Do(func(e *pipeline.Engine) {
		s.computing.Store(true)
		defer s.computing.Store(false)
		res = e.Compute(ctx)
	})
	s.Emit(EventComputed, res)
	return res, nil
}

// Cancel stops a running Compute from any goroutine.
func (s *Session) Cancel() {
	s.engine.Cancel()
}

// SaveInfo writes the preprocessing next to the inputs.
func (s *Session) SaveInfo() error {
	s.mu.RLock()
	path, inputs, p := s.InfoPath, s.Inputs, s.preprocess
	scale := s.Config.Scale
	timeText := s.Config.TimeStep
	s.mu.RUnlock()
	if path == "" {
		return ErrNoSource
	}

	info := project.New(p)
	info.SetInputs(path, inputs)
	info.ScaleText = scale.Text
	info.ScalingPoints = scale.Points
	info.TimeText = timeText
	if err := info.Save(path); err != nil {
		return fmt.Errorf("failed to save info file: %w", err)
	}
	s.SetModified(false)
	s.Emit(EventInfoSaved, path)
	return nil
}

// Close releases the frame source.
func (s *Session) Close() error {
	s.mu.Lock()
	src := s.source
	s.source = nil
	s.mu.Unlock()
	return closeSource(src)
}

func closeSource(src pipeline.FrameSource) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
