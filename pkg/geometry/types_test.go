package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaselineLocalFrame(t *testing.T) {
	b := NewBaseline(NewPoint2D(1, 1), NewPoint2D(3, 3))

	local := b.ToLocal()
	p := local.Apply(NewPoint2D(3, 3))
	assert.InDelta(t, math.Sqrt(8), p.X, 1e-9)
	assert.InDelta(t, 0, p.Y, 1e-9)

	// A point on the left-hand normal of the baseline has positive height.
	above := local.Apply(NewPoint2D(1, 2))
	assert.Greater(t, above.Y, 0.0)

	back := b.ToGlobal().Apply(p)
	assert.True(t, back.ApproxEqual(NewPoint2D(3, 3), 1e-9))
}

func TestBaselineZeroIsIdentity(t *testing.T) {
	var b Baseline
	require.True(t, b.IsZero())
	p := NewPoint2D(4, -2)
	assert.Equal(t, p, b.ToLocal().Apply(p))
}

func TestBounds(t *testing.T) {
	x, y := Bounds([]Point2D{{X: 2, Y: 5}, {X: -1, Y: 7}, {X: 4, Y: 6}})
	assert.Equal(t, Interval{Min: -1, Max: 4}, x)
	assert.Equal(t, Interval{Min: 5, Max: 7}, y)

	x, y = Bounds(nil)
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestIntervalApproxEqual(t *testing.T) {
	a := Interval{Min: 10, Max: 20}
	assert.True(t, a.ApproxEqual(Interval{Min: 10 + 1e-12, Max: 20}, 1e-9))
	assert.False(t, a.ApproxEqual(Interval{Min: 11, Max: 20}, 1e-9))
	assert.Equal(t, a, Interval{Min: 20, Max: 10}.Sorted())
}
