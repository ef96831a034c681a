package image

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"drop-analyzer/pkg/colorutil"
	"drop-analyzer/pkg/geometry"
)

func writePNG(t *testing.T, path string, gray uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	for i := range img.Pix {
		img.Pix[i] = gray
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestOpenSequenceSortsAndReportsProgress(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame_2.png"), 200)
	writePNG(t, filepath.Join(dir, "frame_1.png"), 100)

	var steps []int
	seq, err := OpenSequence([]string{
		filepath.Join(dir, "frame_2.png"),
		filepath.Join(dir, "frame_1.png"),
	}, func(step, total int) {
		assert.Equal(t, 2, total)
		steps = append(steps, step)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, steps)
	require.Equal(t, 2, seq.Len())
	assert.Equal(t, "frame_1.png", filepath.Base(seq.Paths()[0]))

	first, err := seq.Frame(0)
	require.NoError(t, err)
	r, _, _, _ := first.At(0, 0).RGBA()
	assert.Equal(t, uint32(100)*0x101, r)

	_, err = seq.Frame(2)
	assert.Error(t, err)
}

func TestOpenSequenceErrors(t *testing.T) {
	_, err := OpenSequence(nil, nil)
	assert.ErrorIs(t, err, ErrNoFrames)

	_, err = OpenSequence([]string{filepath.Join(t.TempDir(), "missing.png")}, nil)
	assert.Error(t, err)
}

func TestPixelSizeFromTIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.tif")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, tiff.Encode(f, image.NewGray(image.Rect(0, 0, 8, 8)), nil))
	require.NoError(t, f.Close())

	q, err := PixelSize(path)
	require.NoError(t, err)
	assert.Equal(t, "mm", q.Unit)
	assert.InDelta(t, 25.4/72, q.Value, 1e-9)

	_, err = PixelSize(filepath.Join(t.TempDir(), "drop.png"))
	assert.Error(t, err)
}

func TestFormats(t *testing.T) {
	assert.True(t, IsSupportedFormat("a/b/DROP.TIF"))
	assert.False(t, IsSupportedFormat("movie.avi"))
	assert.True(t, IsVideo("movie.AVI"))
}

func TestOverlayRender(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 10, 10))
	o := NewOverlay(frame)
	o.Baseline = geometry.NewBaseline(geometry.NewPoint2D(0, 8), geometry.NewPoint2D(9, 8))
	o.Edge = []geometry.Point2D{{X: 2, Y: 2}, {X: 50, Y: 50}}
	o.Curve = []geometry.Point2D{{X: 1, Y: 1}, {X: 1, Y: 5}}

	out := o.Render()
	assert.Equal(t, color.RGBA(colorutil.Baseline), out.RGBAAt(4, 8))
	assert.Equal(t, color.RGBA(colorutil.Edge), out.RGBAAt(2, 2))
	assert.Equal(t, color.RGBA(colorutil.Fit), out.RGBAAt(1, 3))
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(6, 3))
}

func TestBlendOpacity(t *testing.T) {
	got := blend(color.RGBA{A: 255}, color.RGBA{R: 255, A: 255}, 0.5)
	r, _, _, a := got.RGBA()
	assert.InDelta(t, 0x7f7f, r, 0x200)
	assert.Equal(t, uint32(0xffff), a)
}
