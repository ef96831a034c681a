// Package config loads analysis sessions from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"drop-analyzer/internal/params"
	"drop-analyzer/internal/units"
	"drop-analyzer/pkg/geometry"
)

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig exposes cache metrics over HTTP when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// ScaleConfig describes the length scale. Either Text is given together
// with the length of the scale bar in pixels, or Region points at the
// label to read it from the first frame.
type ScaleConfig struct {
	Text   string             `yaml:"text,omitempty"`
	Pixels float64            `yaml:"pixels,omitempty"`
	Points []geometry.Point2D `yaml:"points,omitempty"`
	Region *Region            `yaml:"region,omitempty"`
}

// Region is a rectangle in raw frame pixels.
type Region struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// FrameRange selects frames of the input, 0-based and inclusive. Nil
// bounds default to the whole input.
type FrameRange struct {
	First *int `yaml:"first,omitempty"`
	Last  *int `yaml:"last,omitempty"`
}

// CustomQuantity is a derived quantity defined by an expression.
type CustomQuantity struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	Unit       string `yaml:"unit,omitempty"`
}

// ExportConfig lists the files written after a run. Empty paths are
// skipped.
type ExportConfig struct {
	CSV      string `yaml:"csv,omitempty"`
	Edges    string `yaml:"edges,omitempty"`
	Plot     string `yaml:"plot,omitempty"`
	Frames   string `yaml:"frames,omitempty"`
	Database string `yaml:"database,omitempty"`
	InfoFile bool   `yaml:"info_file"`
}

// Config is a complete analysis session.
type Config struct {
	Inputs []string `yaml:"inputs"`

	Scale    ScaleConfig        `yaml:"scale"`
	TimeStep string             `yaml:"time_step,omitempty"`
	CropX    *geometry.Interval `yaml:"crop_x,omitempty"`
	CropY    *geometry.Interval `yaml:"crop_y,omitempty"`
	Baseline *geometry.Baseline `yaml:"baseline,omitempty"`
	Frames   FrameRange         `yaml:"frames"`

	Edge   params.Edge `yaml:"edge"`
	Fit    params.Fit  `yaml:"fit"`
	Stride int         `yaml:"stride"`

	Smoothing  float64          `yaml:"smoothing"`
	Quantities []string         `yaml:"quantities"`
	Custom     []CustomQuantity `yaml:"custom,omitempty"`

	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns a session with default detection and fit parameters.
func Default() *Config {
	return &Config{
		Edge:   params.DefaultEdge(),
		Fit:    params.DefaultFit(),
		Stride: 1,
		Export: ExportConfig{InfoFile: true},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads, decodes and validates a session file. Relative paths are
// resolved against the directory of the file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	cfg.resolve(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Parse decodes a session over the defaults. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) resolve(dir string) {
	for i, in := range c.Inputs {
		if !filepath.IsAbs(in) {
			c.Inputs[i] = filepath.Join(dir, in)
		}
	}
	for _, p := range []*string{&c.Export.CSV, &c.Export.Edges, &c.Export.Plot, &c.Export.Frames, &c.Export.Database} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate reports every problem of the session at once.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Inputs) == 0 {
		errs = append(errs, errors.New("inputs: at least one file is required"))
	}
	if c.Stride < 1 {
		errs = append(errs, fmt.Errorf("stride: must be at least 1, got %d", c.Stride))
	}
	if c.Smoothing < 0 {
		errs = append(errs, fmt.Errorf("smoothing: must not be negative, got %g", c.Smoothing))
	}
	if c.Frames.First != nil && *c.Frames.First < 0 {
		errs = append(errs, fmt.Errorf("frames.first: must not be negative, got %d", *c.Frames.First))
	}
	if c.Frames.First != nil && c.Frames.Last != nil && *c.Frames.Last < *c.Frames.First {
		errs = append(errs, fmt.Errorf("frames: last (%d) is before first (%d)", *c.Frames.Last, *c.Frames.First))
	}
	if c.Scale.Text != "" && c.Scale.Region == nil {
		if _, err := c.PixelScale(); err != nil {
			errs = append(errs, fmt.Errorf("scale: %w", err))
		}
	}
	if c.TimeStep != "" {
		if _, err := units.ParseTimeStep(c.TimeStep); err != nil {
			errs = append(errs, fmt.Errorf("time_step: %w", err))
		}
	}
	seen := map[string]bool{}
	for i, q := range c.Custom {
		if strings.TrimSpace(q.Name) == "" || strings.TrimSpace(q.Expression) == "" {
			errs = append(errs, fmt.Errorf("custom[%d]: name and expression are required", i))
		}
		if seen[q.Name] {
			errs = append(errs, fmt.Errorf("custom[%d]: duplicate name %q", i, q.Name))
		}
		seen[q.Name] = true
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: expected text or json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// ScaleBarPixels returns the length of the scale bar in pixels, measured
// between Points when given.
func (c *Config) ScaleBarPixels() float64 {
	if len(c.Scale.Points) == 2 {
		return c.Scale.Points[0].Distance(c.Scale.Points[1])
	}
	return c.Scale.Pixels
}

// PixelScale returns the size of one pixel, or units.Pixel when no scale
// was configured.
func (c *Config) PixelScale() (units.Quantity, error) {
	if c.Scale.Text == "" {
		return units.Pixel, nil
	}
	return units.PixelScale(c.Scale.Text, c.ScaleBarPixels())
}

// Preprocess builds the preprocessing snapshot for an input of the given
// size. dt is used when no time step is configured.
func (c *Config) Preprocess(width, height, frames int, dx, dt units.Quantity) (params.Preprocess, error) {
	p := params.DefaultPreprocess(width, height, frames)
	if c.TimeStep != "" {
		parsed, err := units.ParseTimeStep(c.TimeStep)
		if err != nil {
			return params.Preprocess{}, err
		}
		dt = parsed
	}
	p = p.WithScale(dx, dt)

	if c.CropX != nil || c.CropY != nil {
		x, y := p.CropX, p.CropY
		if c.CropX != nil {
			x = *c.CropX
		}
		if c.CropY != nil {
			y = *c.CropY
		}
		p = p.WithCrop(x, y)
	}
	if c.Baseline != nil {
		p = p.WithBaseline(*c.Baseline)
	}

	first, last := p.First, p.Last
	if c.Frames.First != nil {
		first = *c.Frames.First
	}
	if c.Frames.Last != nil {
		last = min(*c.Frames.Last, p.Last)
	}
	if first > p.Last {
		return params.Preprocess{}, fmt.Errorf("frames.first (%d) is beyond the last frame (%d)", first, p.Last)
	}
	return p.WithFrameRange(first, last), nil
}

// Run returns the bulk run covering the selected frames.
func (c *Config) Run(p params.Preprocess) params.Run {
	return params.Run{First: p.First, Last: p.Last, Stride: c.Stride}.Normalized()
}
