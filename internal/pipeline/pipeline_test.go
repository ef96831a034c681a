package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/internal/quantity"
	"drop-analyzer/pkg/geometry"
)

type memSource struct {
	n     int
	img   image.Image
	reads int
}

func newMemSource(n int) *memSource {
	img := image.NewGray(image.Rect(0, 0, 20, 10))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	return &memSource{n: n, img: img}
}

func (s *memSource) Len() int { return s.n }
func (s *memSource) Frame(index int) (image.Image, error) {
	s.reads++
	return s.img, nil
}

type stubDetector struct {
	calls int
	err   error
}

func (d *stubDetector) Detect(f *drop.NormalizedFrame, p params.Edge) (*drop.Edge, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	e := drop.EmptyEdge(f, p.Method)
	e.Points = []geometry.Point2D{{X: 2, Y: 1}, {X: 4, Y: 3}, {X: 6, Y: 1}}
	return e, nil
}

type stubModel struct{}

func (stubModel) ContactPoints() (geometry.Point2D, geometry.Point2D) {
	return geometry.NewPoint2D(1, 0), geometry.NewPoint2D(5, 0)
}
func (stubModel) ContactAngles() (drop.ContactAngles, error) {
	return drop.ContactAngles{Left: 80, Right: 100}, nil
}
func (stubModel) Height() float64                { return 2 }
func (stubModel) Center() geometry.Point2D       { return geometry.NewPoint2D(3, 0) }
func (stubModel) Width(v float64) float64        { return 4 }
func (stubModel) Curve(n int) []geometry.Point2D { return make([]geometry.Point2D, n) }
func (stubModel) Residual() float64              { return 0 }

type stubFitter struct {
	calls int
	err   error
	panic bool
}

func (f *stubFitter) Fit(e *drop.Edge, p params.Fit) (drop.Model, error) {
	f.calls++
	if f.panic {
		panic("index out of range")
	}
	if f.err != nil {
		return nil, f.err
	}
	return stubModel{}, nil
}

type state struct {
	pre  params.Preprocess
	edge params.Edge
	fit  params.Fit
	run  params.Run
}

func (s *state) Preprocess() params.Preprocess { return s.pre }
func (s *state) Edge() params.Edge             { return s.edge }
func (s *state) Fit() params.Fit               { return s.fit }
func (s *state) Run() params.Run               { return s.run }

type fixture struct {
	engine   *Engine
	state    *state
	source   *memSource
	detector *stubDetector
	fitter   *stubFitter
}

func newFixture(t *testing.T, frames int, opts Options) *fixture {
	t.Helper()
	src := newMemSource(frames)
	st := &state{
		pre:  params.DefaultPreprocess(20, 10, frames),
		edge: params.DefaultEdge(),
		fit:  params.DefaultFit().WithMethod(params.FitCircle),
		run:  params.Run{First: 0, Last: frames - 1, Stride: 1},
	}
	det := &stubDetector{}
	fit := &stubFitter{}
	return &fixture{
		engine:   NewEngine(st, src, det, fit, opts),
		state:    st,
		source:   src,
		detector: det,
		fitter:   fit,
	}
}

func TestSameParamsReturnSameResult(t *testing.T) {
	fx := newFixture(t, 5, Options{})

	a := fx.engine.Fit(3)
	b := fx.engine.Fit(3)
	assert.Same(t, a, b)
	assert.Same(t, fx.engine.Edge(3), fx.engine.Edge(3))
	assert.Equal(t, 1, fx.detector.calls)
	assert.Equal(t, 1, fx.fitter.calls)
	assert.Equal(t, 1, fx.source.reads)
	assert.Equal(t, 3, a.Index)
}

func TestFitParamChangeEvictsAllFits(t *testing.T) {
	fx := newFixture(t, 5, Options{})
	before := make([]*drop.Fit, 5)
	for i := range before {
		before[i] = fx.engine.Fit(i)
	}

	fx.state.fit.Circle.MinHeight = 0.1
	for i := range before {
		assert.NotSame(t, before[i], fx.engine.Fit(i))
	}
	assert.Equal(t, 10, fx.fitter.calls)
	assert.Equal(t, 5, fx.detector.calls, "edges survive a fit change")
}

func TestInactiveArgsDoNotEvict(t *testing.T) {
	fx := newFixture(t, 2, Options{})
	a := fx.engine.Fit(0)
	fx.state.fit.Spline.Smoothing = 0.7
	fx.state.edge.Contour.Level = 0.2
	assert.Same(t, a, fx.engine.Fit(0))
}

func TestPreprocessChangeForcesRecompute(t *testing.T) {
	fx := newFixture(t, 5, Options{})
	edge := fx.engine.Edge(1)
	fit := fx.engine.Fit(1)

	fx.state.pre = fx.state.pre.WithCrop(
		geometry.Interval{Min: 2, Max: 18},
		geometry.Interval{Min: 0, Max: 10},
	)
	assert.NotSame(t, edge, fx.engine.Edge(1))
	assert.NotSame(t, fit, fx.engine.Fit(1))
	assert.Equal(t, 2, fx.detector.calls)
	assert.Equal(t, 2, fx.fitter.calls)

	w, _ := fx.engine.Normalized(1).Size()
	assert.Equal(t, 16, w)
}

func TestFailingDetectionIsCached(t *testing.T) {
	fx := newFixture(t, 3, Options{})
	fx.detector.err = errors.New("no contour")

	e := fx.engine.Edge(2)
	require.NotNil(t, e)
	assert.True(t, e.Empty())
	assert.Same(t, e, fx.engine.Edge(2))
	assert.Equal(t, 1, fx.detector.calls)

	f := fx.engine.Fit(2)
	assert.True(t, f.Degenerate())
	assert.Zero(t, fx.fitter.calls)
}

func TestFitFailuresGiveDegenerateFits(t *testing.T) {
	fx := newFixture(t, 2, Options{})
	fx.fitter.err = errors.New("singular")
	assert.True(t, fx.engine.Fit(0).Degenerate())

	fx.fitter.err = nil
	fx.fitter.panic = true
	assert.NotPanics(t, func() {
		assert.True(t, fx.engine.Fit(1).Degenerate())
	})
}

func TestNoneMethods(t *testing.T) {
	fx := newFixture(t, 2, Options{})
	edge := fx.engine.Edge(0)
	fit := fx.engine.Fit(0)
	require.False(t, fit.Degenerate())
	detections, fits := fx.detector.calls, fx.fitter.calls

	canny := fx.state.edge
	fx.state.edge = canny.WithMethod(params.EdgeNone)
	assert.True(t, fx.engine.Edge(0).Empty())
	assert.True(t, fx.engine.Fit(0).Degenerate())
	assert.Nil(t, fx.engine.Compute(context.Background()))

	fx.state.edge = canny
	assert.Same(t, edge, fx.engine.Edge(0))
	assert.Same(t, fit, fx.engine.Fit(0))
	assert.Equal(t, detections, fx.detector.calls)
	assert.Equal(t, fits, fx.fitter.calls)

	circle := fx.state.fit
	fx.state.fit = circle.WithMethod(params.FitNone)
	assert.True(t, fx.engine.Fit(0).Degenerate())
	assert.Equal(t, fits, fx.fitter.calls)

	fx.state.fit = circle
	assert.Same(t, fit, fx.engine.Fit(0))
	assert.Equal(t, fits, fx.fitter.calls)
}

func TestCancelPadsResult(t *testing.T) {
	var fx *fixture
	cancelled := false
	fx = newFixture(t, 100, Options{Hook: func(step, total int) {
		if total == 100 && step == 10 && !cancelled {
			cancelled = true
			fx.engine.Cancel()
		}
	}})

	res := fx.engine.Compute(context.Background())
	require.NotNil(t, res)
	assert.True(t, res.Stopped)
	require.Equal(t, 100, res.Len())
	assert.Equal(t, 10, fx.fitter.calls)
	assert.False(t, fx.engine.cancel.Cancelled())

	assert.False(t, res.Fits[9].Padded)
	assert.NotNil(t, res.Fits[9].Angles)
	for _, f := range res.Fits[10:] {
		assert.True(t, f.Padded)
		assert.Nil(t, f.Angles)
	}
	assert.Equal(t, 99, res.Frames[99])

	again := fx.engine.Compute(context.Background())
	assert.NotSame(t, res, again, "stopped runs are never reused")
	assert.False(t, again.Stopped)
}

func TestContextCancelStopsRun(t *testing.T) {
	fx := newFixture(t, 4, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := fx.engine.Compute(ctx)
	require.Equal(t, 4, res.Len())
	assert.True(t, res.Stopped)
	assert.Zero(t, fx.fitter.calls)
	assert.True(t, res.Fits[0].Degenerate())
}

func TestComputeShortCircuits(t *testing.T) {
	fx := newFixture(t, 6, Options{})
	fx.state.run = params.Run{First: 0, Last: 5, Stride: 2}

	res := fx.engine.Compute(context.Background())
	assert.Equal(t, []int{0, 2, 4}, res.Frames)
	assert.InDelta(t, 2, res.Dt, 1e-12)
	assert.Same(t, res, fx.engine.Compute(context.Background()))
	assert.Same(t, res, fx.engine.Result())

	fx.state.run.Stride = 1
	assert.NotSame(t, res, fx.engine.Compute(context.Background()))
}

func TestSingleFrameSource(t *testing.T) {
	fx := newFixture(t, 1, Options{})
	res := fx.engine.Compute(context.Background())
	require.Equal(t, 2, res.Len())
	assert.Same(t, res.Fits[0], res.Fits[1])

	frames := fx.engine.Quantity(quantity.FrameNumber, 0)
	assert.Equal(t, []float64{0, 1}, frames.Values)
}

func TestQuantityMemoAndReset(t *testing.T) {
	fx := newFixture(t, 4, Options{})
	assert.True(t, fx.engine.Quantity(quantity.AngleMean, 0).Empty())

	fx.engine.Compute(context.Background())
	a := fx.engine.Quantity(quantity.AngleMean, 0)
	require.Len(t, a.Values, 4)
	assert.InDelta(t, 90, a.Values[0], 1e-12)
	b := fx.engine.Quantity(quantity.AngleMean, 0)
	assert.Same(t, &a.Values[0], &b.Values[0])

	fx.engine.ResetCache(false, true)
	assert.Nil(t, fx.engine.Result())
	assert.True(t, fx.engine.Quantity(quantity.AngleMean, 0).Empty())
}

func TestIndexTranslation(t *testing.T) {
	fx := newFixture(t, 450, Options{})
	fx.state.pre = fx.state.pre.WithFrameRange(50, 400)

	f := fx.engine.Normalized(92)
	assert.Equal(t, 92, f.Index)
	cached, ok := fx.engine.frames.At(42)
	require.True(t, ok)
	assert.Same(t, f, cached)
	assert.Equal(t, 351, fx.engine.frames.Len())

	w, h := fx.engine.Normalized(20).Size()
	assert.Equal(t, []int{1, 1}, []int{w, h})
	assert.Equal(t, 1, fx.source.reads, "out-of-range frames are not read")
}

func TestBlankFrames(t *testing.T) {
	fx := newFixture(t, 3, Options{})
	assert.False(t, fx.engine.IsValidIndex(3))
	assert.True(t, fx.engine.IsValidIndex(0))

	f := fx.engine.Normalized(7)
	w, h := f.Size()
	assert.Equal(t, []int{1, 1}, []int{w, h})
	assert.True(t, fx.engine.Edge(7).Empty())
	assert.True(t, fx.engine.Fit(7).Degenerate())
	assert.Zero(t, fx.detector.calls)
}

func TestPreprocessHookMilestones(t *testing.T) {
	var steps []int
	fx := newFixture(t, 3, Options{Hook: func(step, total int) {
		if total == preprocessMilestones {
			steps = append(steps, step)
		}
	}})
	fx.engine.Normalized(0)
	fx.engine.Normalized(1)
	if diff := cmp.Diff([]int{1, 2, 3, 4}, steps); diff != "" {
		t.Errorf("milestones mismatch (-want +got):\n%s", diff)
	}
}

func TestSetSourceResetsEverything(t *testing.T) {
	fx := newFixture(t, 3, Options{})
	fit := fx.engine.Fit(0)
	fx.engine.Compute(context.Background())

	src := newMemSource(5)
	fx.state.pre = params.DefaultPreprocess(20, 10, 5)
	fx.engine.SetSource(src)
	assert.Equal(t, 5, fx.engine.Len())
	assert.Nil(t, fx.engine.Result())
	assert.NotSame(t, fit, fx.engine.Fit(0))
	assert.False(t, fx.engine.Fit(4).Degenerate())
}

func TestContactAngleAt(t *testing.T) {
	fx := newFixture(t, 2, Options{})
	angles, ok := fx.engine.ContactAngleAt(1)
	require.True(t, ok)
	assert.InDelta(t, 80, angles.Left, 1e-12)

	fx.detector.err = errors.New("nothing")
	fx.engine.ResetCache(true, true)
	_, ok = fx.engine.ContactAngleAt(1)
	assert.False(t, ok)
}

func TestDisplayPoints(t *testing.T) {
	fx := newFixture(t, 1, Options{})
	pts := fx.engine.EdgeDisplayPoints(0)
	require.Len(t, pts, 3)
	assert.InDelta(t, 2, pts[0].X, 1e-12)
	assert.InDelta(t, 9, pts[0].Y, 1e-12)

	curve, center, ok := fx.engine.FitDisplayPoints(0, 8)
	require.True(t, ok)
	assert.Len(t, curve, 8)
	assert.False(t, center.IsNaN())
}

func TestCancelFlag(t *testing.T) {
	var c CancelFlag
	assert.False(t, c.Cancelled())
	c.Cancel()
	assert.True(t, c.Cancelled())
	c.Reset()
	assert.False(t, c.Cancelled())

	var none *CancelFlag
	none.Cancel()
	assert.False(t, none.Cancelled())
}

func TestGuardRecoversPanics(t *testing.T) {
	_, err := guard(func() (int, error) { panic("boom") })
	assert.ErrorIs(t, err, ErrPanic)
}
