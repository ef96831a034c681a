package app

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drop-analyzer/internal/config"
	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/internal/pipeline"
	"drop-analyzer/internal/quantity"
	"drop-analyzer/internal/units"
	"drop-analyzer/pkg/geometry"
)

type memSource struct {
	n  int
	dt float64
}

func (s memSource) Len() int { return s.n }

func (s memSource) Frame(index int) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 20, 10)), nil
}

type videoLike struct{ memSource }

func (s videoLike) TimeStep() (float64, bool) { return s.dt, s.dt > 0 }

type noDrop struct{}

func (noDrop) Detect(*drop.NormalizedFrame, params.Edge) (*drop.Edge, error) {
	return nil, errors.New("nothing here")
}

type noFit struct{}

func (noFit) Fit(*drop.Edge, params.Fit) (drop.Model, error) { return nil, nil }

func newSession(t *testing.T, cfg *config.Config) *Session {
	t.Helper()
	s, err := NewSession(cfg, Deps{Detector: noDrop{}, Fitter: noFit{}})
	require.NoError(t, err)
	return s
}

func inputs(t *testing.T) []string {
	return []string{filepath.Join(t.TempDir(), "drop.avi")}
}

func TestLoadUsesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Stride = 3
	first := 2
	cfg.Frames.First = &first
	cfg.CropX = &geometry.Interval{Min: 2, Max: 18}
	s := newSession(t, cfg)

	var loaded int
	s.On(EventSourceLoaded, func(interface{}) { loaded++ })
	require.NoError(t, s.Load(videoLike{memSource{n: 12, dt: 0.04}}, inputs(t)))

	assert.Equal(t, 1, loaded)
	p := s.Preprocess()
	assert.Equal(t, geometry.Interval{Min: 2, Max: 18}, p.CropX)
	assert.Equal(t, 2, p.First)
	assert.Equal(t, 11, p.Last)
	assert.Equal(t, 0.04, p.ScaleT.Value)
	assert.Equal(t, params.Run{First: 2, Last: 11, Stride: 3}, s.Run())
	s.Do(func(e *pipeline.Engine) { assert.Equal(t, 12, e.Len()) })
	assert.False(t, s.Modified)
}

func TestLoadWithoutFrames(t *testing.T) {
	s := newSession(t, nil)
	assert.ErrorIs(t, s.Load(memSource{}, inputs(t)), ErrNoSource)
	assert.ErrorIs(t, s.Load(nil, inputs(t)), ErrNoSource)
}

func TestSettersEmitAndMarkModified(t *testing.T) {
	s := newSession(t, nil)
	require.NoError(t, s.Load(memSource{n: 4}, inputs(t)))

	var changes []interface{}
	s.On(EventParamsChanged, func(data interface{}) { changes = append(changes, data) })

	s.SetEdge(params.DefaultEdge().WithMethod(params.EdgeContour))
	s.SetFit(params.DefaultFit().WithMethod(params.FitCircle))
	s.SetStride(0)

	assert.Len(t, changes, 3)
	assert.True(t, s.Modified)
	assert.Equal(t, params.EdgeContour, s.Edge().Method)
	assert.Equal(t, params.FitCircle, s.Fit().Method)
	assert.Equal(t, 1, s.Run().Stride)

	s.SetPreprocess(s.Preprocess().WithFrameRange(1, 2))
	assert.Equal(t, 1, s.Run().First)
	assert.Equal(t, 2, s.Run().Last)
}

func TestSaveInfoRestoresPreprocess(t *testing.T) {
	in := inputs(t)
	s := newSession(t, nil)
	require.NoError(t, s.Load(memSource{n: 10}, in))
	cropped := s.Preprocess().WithCrop(geometry.Interval{Min: 4, Max: 12}, geometry.Interval{Min: 1, Max: 9})
	s.SetPreprocess(cropped)

	var saved string
	s.On(EventInfoSaved, func(data interface{}) { saved = data.(string) })
	require.NoError(t, s.SaveInfo())
	assert.Equal(t, filepath.Join(filepath.Dir(in[0]), "drop.info"), saved)
	assert.False(t, s.Modified)

	again := newSession(t, nil)
	require.NoError(t, again.Load(memSource{n: 10}, in))
	assert.True(t, again.Preprocess().Equal(cropped))
}

func TestCompute(t *testing.T) {
	s := newSession(t, nil)
	_, err := s.Compute(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)

	require.NoError(t, s.Load(memSource{n: 5}, inputs(t)))
	var computed *drop.BulkFitResult
	s.On(EventComputed, func(data interface{}) { computed = data.(*drop.BulkFitResult) })

	res, err := s.Compute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Same(t, res, computed)
	assert.Equal(t, 5, res.Len())
	s.Do(func(e *pipeline.Engine) { assert.False(t, e.Quantity(quantity.Time, 0).Empty()) })
}

func TestCustomQuantitiesFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Custom = []config.CustomQuantity{{Name: "spread", Expression: "x_right - x_left", Unit: "mm"}}
	s := newSession(t, cfg)
	s.Do(func(e *pipeline.Engine) { assert.Contains(t, e.Quantities().Names(), "spread") })

	cfg.Custom = []config.CustomQuantity{{Name: quantity.Time, Expression: "1"}}
	_, err := NewSession(cfg, Deps{})
	assert.ErrorIs(t, err, quantity.ErrReservedName)
}

func TestFileWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stride: 1\n"), 0o600))

	w := NewFileWatcher(time.Hour, path, "")
	assert.Empty(t, w.Check())

	require.NoError(t, os.WriteFile(path, []byte("stride: 12\n"), 0o600))
	assert.Equal(t, []string{path}, w.Check())
	assert.Empty(t, w.Check())

	require.NoError(t, os.WriteFile(path, []byte("stride: 123\n"), 0o600))
	w.Acknowledge(path)
	assert.Empty(t, w.Check())
}

type taggedSource struct {
	memSource
	size units.Quantity
	err  error
}

func (s taggedSource) PixelSize() (units.Quantity, error) { return s.size, s.err }

func TestResolveScaleFromResolutionTag(t *testing.T) {
	s := newSession(t, config.Default())
	src := taggedSource{memSource: memSource{n: 3}, size: units.Quantity{Value: 0.5, Unit: "mm"}}
	require.NoError(t, s.resolveScale(src))
	require.NoError(t, s.Load(src, inputs(t)))

	assert.Equal(t, "0.5 mm", s.Config.Scale.Text)
	p := s.Preprocess()
	assert.InDelta(t, 0.5, p.ScaleX.Value, 1e-12)
	assert.Equal(t, "mm", p.ScaleX.Unit)
}

func TestResolveScaleKeepsText(t *testing.T) {
	cfg := config.Default()
	cfg.Scale.Text = "2 mm"
	cfg.Scale.Pixels = 100
	s := newSession(t, cfg)

	src := taggedSource{memSource: memSource{n: 3}, size: units.Quantity{Value: 0.5, Unit: "mm"}}
	require.NoError(t, s.resolveScale(src))
	assert.Equal(t, "2 mm", s.Config.Scale.Text)

	s = newSession(t, config.Default())
	require.NoError(t, s.resolveScale(taggedSource{memSource: memSource{n: 3}, err: errors.New("no tag")}))
	assert.Empty(t, s.Config.Scale.Text)
}

type slowDrop struct{ delay time.Duration }

func (d slowDrop) Detect(*drop.NormalizedFrame, params.Edge) (*drop.Edge, error) {
	time.Sleep(d.delay)
	return nil, errors.New("nothing here")
}

func TestEngineCallsAreSerializedWithCompute(t *testing.T) {
	const frames = 40
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	hook := func(step, total int) {
		if total == frames && step == 1 {
			once.Do(func() {
				close(started)
				<-release
			})
		}
	}
	s, err := NewSession(config.Default(), Deps{Detector: slowDrop{delay: 50 * time.Microsecond}, Fitter: noFit{}, Hook: hook})
	require.NoError(t, err)
	require.NoError(t, s.Load(memSource{n: frames}, inputs(t)))

	done := make(chan *drop.BulkFitResult)
	go func() {
		res, err := s.Compute(context.Background())
		assert.NoError(t, err)
		done <- res
	}()

	<-started
	assert.True(t, s.Computing())
	assert.False(t, s.TryDo(func(e *pipeline.Engine) { e.Fit(frames - 1) }))

	// previews and replots queued behind the run
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Do(func(e *pipeline.Engine) {
				e.Fit(frames - 1 - i)
				e.Quantity(quantity.AngleMean, float64(i))
			})
		}(i)
	}
	s.SetSmoothing(2)
	s.SetStride(1)
	close(release)

	res := <-done
	wg.Wait()
	require.NotNil(t, res)
	assert.Equal(t, frames, res.Len())
	assert.False(t, s.Computing())
	assert.True(t, s.TryDo(func(e *pipeline.Engine) {
		assert.Same(t, res, e.Result())
	}))
}

func TestComputeStopsOnContext(t *testing.T) {
	s := newSession(t, nil)
	require.NoError(t, s.Load(memSource{n: 6}, inputs(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Compute(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Stopped)
	assert.Equal(t, 6, res.Len())

	res, err = s.Compute(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Stopped)
}
