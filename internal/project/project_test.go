package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drop-analyzer/internal/params"
	"drop-analyzer/internal/units"
	"drop-analyzer/pkg/geometry"
)

func TestPath(t *testing.T) {
	assert.Equal(t, "/data/drop.info", Path([]string{"/data/drop.avi"}))
	assert.Equal(t, "/data/infofile.info", Path([]string{"/data/a.png", "/data/b.png"}))
	assert.Equal(t, "", Path(nil))
}

func TestSaveAndRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drop.info")

	p := params.DefaultPreprocess(640, 480, 100).
		WithFrameRange(5, 60).
		WithScale(units.Quantity{Value: 0.01, Unit: "mm"}, units.Quantity{Value: 0.04, Unit: "s"})
	info := New(p)
	info.ScaleText = "2 mm"
	info.ScalingPoints = []geometry.Point2D{{X: 10, Y: 5}, {X: 210, Y: 5}}
	info.SetInputs(path, []string{filepath.Join(dir, "drop.avi")})
	require.NoError(t, info.Save(path))

	got, err := Read(path, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, Maker, got.Maker)
	assert.True(t, got.Preprocess.Equal(p))
	assert.Equal(t, "2 mm", got.ScaleText)
	assert.Equal(t, info.ScalingPoints, got.ScalingPoints)
	assert.Equal(t, []string{"drop.avi"}, got.Inputs)
	assert.Equal(t, []string{filepath.Join(dir, "drop.avi")}, got.InputPaths(path))
}

func TestReadMissing(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "none.info"), zerolog.Nop())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadForeignMaker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.info")
	require.NoError(t, os.WriteFile(path, []byte(`{"infofile_maker": "pydsaqt5"}`), 0644))

	got, err := Read(path, zerolog.Nop())
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.FileExists(t, path)
}

func TestReadCorruptedRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.info")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	got, err := Read(path, zerolog.Nop())
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoFileExists(t, path)
}
