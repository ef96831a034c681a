// Package project persists the preprocessing settings of an input next to
// it, so a later session can resume where the previous one stopped.
package project

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"drop-analyzer/internal/params"
	"drop-analyzer/pkg/geometry"
)

// Maker identifies info files written by this program.
const Maker = "drop-analyzer"

// Extension of info files.
const Extension = ".info"

// sequenceInfoName is the info file shared by the images of a directory.
const sequenceInfoName = "infofile" + Extension

// Info is the content of an info file.
type Info struct {
	Maker    string    `json:"infofile_maker"`
	Version  int       `json:"version"`
	Modified time.Time `json:"modified"`

	// Inputs are relative to the info file when possible.
	Inputs []string `json:"inputs"`

	Preprocess params.Preprocess `json:"preprocess"`

	// ScaleText and TimeText are the texts the scales were parsed from.
	ScaleText string `json:"dl,omitempty"`
	TimeText  string `json:"dt_text,omitempty"`
	// ScalingPoints are the two raw-pixel points the length scale was
	// measured between.
	ScalingPoints []geometry.Point2D `json:"scaling_pts,omitempty"`
}

// New creates an info file content for the given preprocessing.
func New(p params.Preprocess) *Info {
	return &Info{
		Maker:      Maker,
		Version:    1,
		Modified:   time.Now(),
		Preprocess: p,
	}
}

// Path returns the info file of a set of inputs: next to a single image or
// video with the extension replaced, or one file per directory for image
// sequences.
func Path(inputs []string) string {
	if len(inputs) == 0 {
		return ""
	}
	first, err := filepath.Abs(inputs[0])
	if err != nil {
		first = inputs[0]
	}
	if len(inputs) > 1 {
		return filepath.Join(filepath.Dir(first), sequenceInfoName)
	}
	return first[:len(first)-len(filepath.Ext(first))] + Extension
}

// Read loads the info file at path. A missing file, a file written by
// another program or a corrupted file yield nil without error; corrupted
// files are removed.
func Read(path string, log zerolog.Logger) (*Info, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("corrupted info file, reinitializing")
		if err := os.Remove(path); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if info.Maker != Maker {
		log.Debug().Str("path", path).Str("maker", info.Maker).Msg("ignoring foreign info file")
		return nil, nil
	}
	return &info, nil
}

// Save writes the info file to path.
func (i *Info) Save(path string) error {
	i.Maker = Maker
	i.Modified = time.Now()

	data, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SetInputs records inputs relative to the info file at path.
func (i *Info) SetInputs(path string, inputs []string) {
	i.Inputs = make([]string, len(inputs))
	for k, in := range inputs {
		rel, err := filepath.Rel(filepath.Dir(path), in)
		if err != nil {
			i.Inputs[k] = in
		} else {
			i.Inputs[k] = rel
		}
	}
}

// InputPaths returns the absolute paths of the recorded inputs.
func (i *Info) InputPaths(path string) []string {
	out := make([]string, len(i.Inputs))
	for k, in := range i.Inputs {
		if filepath.IsAbs(in) {
			out[k] = in
		} else {
			out[k] = filepath.Join(filepath.Dir(path), in)
		}
	}
	return out
}
