package export

import (
	"bytes"
	"encoding/csv"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/quantity"
	"drop-analyzer/pkg/colorutil"
	"drop-analyzer/pkg/geometry"
)

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteQuantities(t *testing.T) {
	var buf bytes.Buffer
	err := WriteQuantities(&buf, []quantity.Series{
		{Name: "Time", Unit: "s", Values: []float64{0, 0.5, 1}},
		{Name: "CA (mean)", Unit: "deg", Values: []float64{80, math.NaN()}},
		{Name: "Frame number", Values: []float64{0, 1, 2}},
	})
	require.NoError(t, err)

	want := [][]string{
		{"Time [s]", "CA (mean) [deg]", "Frame number"},
		{"0", "80", "0"},
		{"0.5", "", "1"},
		{"1", "", "2"},
	}
	if diff := cmp.Diff(want, readCSV(t, buf.Bytes())); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteQuantitiesNothing(t *testing.T) {
	assert.ErrorIs(t, WriteQuantities(&bytes.Buffer{}, nil), ErrNothingToExport)
}

type edgeMap map[int]*drop.Edge

func (m edgeMap) Edge(index int) *drop.Edge { return m[index] }

func TestWriteEdges(t *testing.T) {
	edges := edgeMap{
		0: {Index: 0, Points: []geometry.Point2D{{X: 1, Y: 0}, {X: 2, Y: 1.5}}},
		1: {Index: 1},
		2: {Index: 2, Points: []geometry.Point2D{{X: 3, Y: 0.25}}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteEdges(&buf, edges, []int{0, 1, 2}, drop.Units{Length: "mm"}))

	want := [][]string{
		{"frame", "x [mm]", "y [mm]"},
		{"0", "1", "0"},
		{"0", "2", "1.5"},
		{"2", "3", "0.25"},
	}
	if diff := cmp.Diff(want, readCSV(t, buf.Bytes())); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	require.NoError(t, WriteEdges(&buf, edges, []int{2}, drop.Units{}))
	assert.Equal(t, []string{"frame", "x [px]", "y [px]"}, readCSV(t, buf.Bytes())[0])

	assert.ErrorIs(t, WriteEdges(&buf, edges, nil, drop.Units{}), ErrNothingToExport)
}

func TestPoints(t *testing.T) {
	got := points([]float64{0, 1, 2, 3}, []float64{5, math.NaN(), 7})
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[1].X)
	assert.Equal(t, 7.0, got[1].Y)
}

func TestSavePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "angles.png")
	series := []quantity.Series{{
		Name:   "CA (left)",
		Unit:   "deg",
		Values: []float64{80, 81, 82, 83},
		Raw:    []float64{79, 83, math.NaN(), 84},
	}}
	require.NoError(t, SavePlot(path, "Contact angle", "Time [s]", []float64{0, 1, 2, 3}, series, PlotSize{}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), img.Bounds().Dy())

	_, err = Plot("", "", nil, nil)
	assert.ErrorIs(t, err, ErrNothingToExport)
}

type fakeAnnotator struct {
	frame *drop.NormalizedFrame
	fit   bool
}

func (a fakeAnnotator) Normalized(int) *drop.NormalizedFrame { return a.frame }

func (a fakeAnnotator) EdgeDisplayPoints(int) []geometry.Point2D {
	return []geometry.Point2D{{X: 2, Y: 2}}
}

func (a fakeAnnotator) FitDisplayPoints(int, int) ([]geometry.Point2D, geometry.Point2D, bool) {
	if !a.fit {
		return nil, geometry.NaNPoint(), false
	}
	return []geometry.Point2D{{X: 6, Y: 1}, {X: 6, Y: 4}}, geometry.NewPoint2D(6, 2), true
}

func TestSaveFrame(t *testing.T) {
	frame := &drop.NormalizedFrame{
		Image:    image.NewGray(image.Rect(0, 0, 12, 10)),
		Dx:       1,
		Dy:       1,
		Baseline: geometry.NewBaseline(geometry.NewPoint2D(0, 1), geometry.NewPoint2D(11, 1)),
	}

	o := Overlay(fakeAnnotator{frame: frame}, 0)
	assert.Empty(t, o.Curve)
	assert.True(t, o.Center.IsNaN())

	path := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, SaveFrame(path, fakeAnnotator{frame: frame, fit: true}, 0))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 10), img.Bounds())

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(img.Bounds())
		for y := 0; y < 10; y++ {
			for x := 0; x < 12; x++ {
				rgba.Set(x, y, img.At(x, y))
			}
		}
	}
	// baseline y=1 is pixel row 9
	assert.Equal(t, colorutil.Baseline, rgba.RGBAAt(3, 9))
	assert.Equal(t, colorutil.Edge, rgba.RGBAAt(2, 2))
}

func TestRender(t *testing.T) {
	p, err := Plot("Angles", "Time [s]", []float64{0, 1}, []quantity.Series{{Name: "CA (mean)", Values: []float64{80, 90}}})
	require.NoError(t, err)
	img := Render(p, PlotSize{Width: 4 * vg.Inch, Height: 3 * vg.Inch})
	assert.Equal(t, image.Rect(0, 0, 384, 288), img.Bounds())
}
