package vision

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/pkg/geometry"
)

func TestOddKernel(t *testing.T) {
	cases := map[int]int{-2: 1, 0: 1, 1: 1, 2: 3, 3: 3, 8: 9}
	for in, want := range cases {
		assert.Equal(t, want, oddKernel(in), "size %d", in)
	}
}

func TestThresholdLevel(t *testing.T) {
	assert.InDelta(t, 60, thresholdLevel(20, 100, 0.5), 1e-12)
	assert.InDelta(t, 100, thresholdLevel(20, 100, 3), 1e-12)
	assert.InDelta(t, 20, thresholdLevel(20, 100, -1), 1e-12)
}

func TestToPoints(t *testing.T) {
	got := toPoints([]image.Point{{X: 1, Y: 2}, {X: 3, Y: 4}})
	assert.Equal(t, []geometry.Point2D{{X: 1, Y: 2}, {X: 3, Y: 4}}, got)
}

func TestDetectEmptyFrame(t *testing.T) {
	_, err := NewDetector().Detect(&drop.NormalizedFrame{}, params.DefaultEdge())
	assert.ErrorIs(t, err, ErrEmptyFrame)
}
