package quantity

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/pkg/geometry"
)

type lineModel struct {
	left, right float64
}

func (m lineModel) ContactPoints() (geometry.Point2D, geometry.Point2D) {
	return geometry.NewPoint2D(m.left, 0), geometry.NewPoint2D(m.right, 0)
}
func (m lineModel) ContactAngles() (drop.ContactAngles, error) { return drop.ContactAngles{}, nil }
func (m lineModel) Height() float64                            { return 1 }
func (m lineModel) Center() geometry.Point2D                   { return geometry.NewPoint2D((m.left+m.right)/2, 0) }
func (m lineModel) Width(v float64) float64                    { return m.right - m.left }
func (m lineModel) Curve(n int) []geometry.Point2D             { return nil }
func (m lineModel) Residual() float64                          { return 0 }

func testResult(lefts []float64, angles []float64) *drop.BulkFitResult {
	r := &drop.BulkFitResult{
		Fit:   params.DefaultFit().WithMethod(params.FitCircle),
		Dt:    0.5,
		Units: drop.Units{Length: "mm", Time: "s"},
	}
	bl := geometry.NewBaseline(geometry.NewPoint2D(0, 0), geometry.NewPoint2D(1, 0))
	for i, l := range lefts {
		f := &drop.Fit{Index: i, Method: params.FitCircle, Baseline: bl}
		if !math.IsNaN(l) {
			f.Model = lineModel{left: l, right: l + 4}
		}
		if i < len(angles) && !math.IsNaN(angles[i]) {
			f.Angles = &drop.ContactAngles{Left: angles[i], Right: angles[i] + 10}
		}
		r.Fits = append(r.Fits, f)
		r.Frames = append(r.Frames, i)
		r.Times = append(r.Times, float64(i)*r.Dt)
	}
	return r
}

func newCache(r *drop.BulkFitResult) *Cache {
	c := New(zerolog.Nop(), nil)
	c.SetResult(r)
	return c
}

func TestGetWithoutResult(t *testing.T) {
	c := New(zerolog.Nop(), nil)
	s := c.Get(AngleLeft, 0)
	assert.True(t, s.Empty())
	assert.Equal(t, AngleLeft, s.Name)
}

func TestBuiltinSeries(t *testing.T) {
	c := newCache(testResult([]float64{0, 1, 2, 3}, []float64{80, 82, 84, 86}))

	assert.Equal(t, []float64{0, 1, 2, 3}, c.Get(FrameNumber, 0).Values)
	assert.Equal(t, []float64{0, 0.5, 1, 1.5}, c.Get(Time, 0).Values)

	pos := c.Get(PositionRight, 0)
	assert.Equal(t, []float64{4, 5, 6, 7}, pos.Values)
	assert.Equal(t, "mm", pos.Unit)

	vel := c.Get(VelocityLeft, 0)
	assert.Equal(t, "mm/s", vel.Unit)
	for _, v := range vel.Values {
		assert.InDelta(t, 2, v, 1e-12)
	}

	mean := c.Get(AngleMean, 0)
	assert.Equal(t, []float64{85, 87, 89, 91}, mean.Values)
	assert.Equal(t, "deg", mean.Unit)

	assert.Equal(t, "mm^2", c.Get(Area, 0).Unit)
	assert.InDelta(t, 2, c.Get(BaseRadius, 0).Values[0], 1e-12)
}

func TestRawIsNaNWithoutSmoothing(t *testing.T) {
	c := newCache(testResult([]float64{0, 1, 2}, nil))
	s := c.Get(PositionLeft, 0)
	require.Len(t, s.Raw, 3)
	for _, v := range s.Raw {
		assert.True(t, math.IsNaN(v))
	}
}

func TestMemoizedByNameAndSmoothing(t *testing.T) {
	c := newCache(testResult([]float64{0, 1, 2, 3}, nil))

	a := c.Get(PositionLeft, 1)
	b := c.Get(PositionLeft, 1)
	assert.Same(t, &a.Values[0], &b.Values[0])

	other := c.Get(PositionLeft, 2)
	assert.NotSame(t, &a.Values[0], &other.Values[0])

	c.Clear()
	again := c.Get(PositionLeft, 1)
	assert.NotSame(t, &a.Values[0], &again.Values[0])
	assert.Equal(t, a.Values, again.Values)
}

func TestSetResultClearsMemo(t *testing.T) {
	c := newCache(testResult([]float64{0, 1}, nil))
	a := c.Get(PositionLeft, 0)
	c.SetResult(testResult([]float64{5, 6}, nil))
	b := c.Get(PositionLeft, 0)
	assert.NotEqual(t, a.Values, b.Values)
}

func TestSmoothingMasksGaps(t *testing.T) {
	c := newCache(testResult([]float64{0, 1, math.NaN(), 3, 4}, nil))
	s := c.Get(PositionLeft, 1)
	require.Len(t, s.Values, 5)
	assert.True(t, math.IsNaN(s.Values[2]))
	assert.True(t, math.IsNaN(s.Raw[2]))
	assert.InDelta(t, 1, s.Raw[1], 1e-12)
	assert.InDelta(t, 4, s.Values[1]+s.Values[3], 1e-9)
}

func TestSingleSampleDuplicated(t *testing.T) {
	c := newCache(testResult([]float64{3}, nil))
	s := c.Get(PositionLeft, 0)
	assert.Equal(t, []float64{3, 3}, s.Values)
}

func TestRidgeQuantitiesNeedRidgeFit(t *testing.T) {
	c := newCache(testResult([]float64{0, 1}, nil))
	assert.True(t, c.Get(RidgeLeft, 0).Empty())
	assert.NotContains(t, c.Names(), TPAngleMean)
	assert.Contains(t, c.Names(), Volume)
}

func TestUnknownQuantity(t *testing.T) {
	c := newCache(testResult([]float64{0, 1}, nil))
	assert.True(t, c.Get("Curvature", 0).Empty())
}

func TestCustomQuantity(t *testing.T) {
	c := newCache(testResult([]float64{0, 1, 2}, []float64{80, 90, 100}))
	require.NoError(t, c.Define("Half angle", "ca_left / 2", "deg"))
	require.NoError(t, c.Define("Spread", "x_right - x_left + i * dt", "mm"))

	assert.Equal(t, []float64{40, 45, 50}, c.Get("Half angle", 0).Values)
	assert.Equal(t, []float64{4, 4.5, 5}, c.Get("Spread", 0).Values)
	assert.Equal(t, "mm", c.Get("Spread", 0).Unit)
	assert.Contains(t, c.Names(), "Half angle")

	require.NoError(t, c.Define("Half angle", "ca_right / 2", "deg"))
	assert.Equal(t, []float64{45, 50, 55}, c.Get("Half angle", 0).Values)

	c.Undefine("Half angle")
	assert.True(t, c.Get("Half angle", 0).Empty())
}

func TestCustomQuantityReadsOnlyIdentifiers(t *testing.T) {
	c := newCache(testResult([]float64{0, 1}, []float64{80, 90}))
	require.NoError(t, c.Define("Guarded", `"volume" == "height" ? 0.0 : ca_left`, "deg"))
	require.NoError(t, c.Define("Sum", "ca_right + ca_left", "deg"))

	assert.Equal(t, []string{"ca_left"}, c.custom["Guarded"].uses)
	assert.Equal(t, []string{"ca_left", "ca_right"}, c.custom["Sum"].uses)
	assert.Equal(t, []float64{80, 90}, c.Get("Guarded", 0).Values)
}

func TestDefineErrors(t *testing.T) {
	c := New(zerolog.Nop(), nil)
	assert.ErrorIs(t, c.Define(Volume, "1", ""), ErrReservedName)
	assert.Error(t, c.Define("x", "", ""))
	assert.Error(t, c.Define("x", "ca_left +", ""))
}

func TestFillGaps(t *testing.T) {
	nan := math.NaN()
	out, ok := fillGaps([]float64{nan, 2, nan, 4, nan})
	require.True(t, ok)
	assert.Equal(t, []float64{2, 2, 3, 4, 4}, out)

	_, ok = fillGaps([]float64{nan, nan})
	assert.False(t, ok)

	out, ok = fillGaps([]float64{nan, 7})
	require.True(t, ok)
	assert.Equal(t, []float64{7, 7}, out)
}

func TestGaussianFilter(t *testing.T) {
	flat := gaussianFilter([]float64{3, 3, 3, 3}, 2)
	for _, v := range flat {
		assert.InDelta(t, 3, v, 1e-12)
	}

	step := gaussianFilter([]float64{0, 0, 0, 10, 10, 10}, 1)
	assert.Less(t, step[2], step[3])
	assert.Greater(t, step[2], 0.0)
	assert.InDelta(t, 10, step[2]+step[3], 1e-9)
}

func TestGradient(t *testing.T) {
	assert.Equal(t, []float64{1, 1.5, 2.5, 3}, gradient([]float64{0, 1, 3, 6}, 1))
	g := gradient([]float64{1}, 1)
	assert.True(t, math.IsNaN(g[0]))
}
