package params

import (
	"fmt"
	"strings"
)

// EdgeMethod selects the edge-detection algorithm.
type EdgeMethod int

const (
	EdgeNone EdgeMethod = iota
	EdgeCanny
	EdgeContour
)

func (m EdgeMethod) String() string {
	switch m {
	case EdgeCanny:
		return "canny"
	case EdgeContour:
		return "contour"
	default:
		return "none"
	}
}

// ParseEdgeMethod accepts "canny", "contour" and "none" (or an empty string).
func ParseEdgeMethod(s string) (EdgeMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "canny":
		return EdgeCanny, nil
	case "contour":
		return EdgeContour, nil
	case "", "none":
		return EdgeNone, nil
	}
	return EdgeNone, fmt.Errorf("unknown edge detection method %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m EdgeMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *EdgeMethod) UnmarshalText(b []byte) error {
	parsed, err := ParseEdgeMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// CannyArgs configures gradient-based edge detection.
type CannyArgs struct {
	Threshold1      float64 `json:"threshold1" yaml:"threshold1"`
	Threshold2      float64 `json:"threshold2" yaml:"threshold2"`
	DilatationSteps int     `json:"dilatation_steps" yaml:"dilatation_steps"`
	SmoothSize      int     `json:"smooth_size" yaml:"smooth_size"`
}

// ContourArgs configures iso-level contour detection. Level is a fraction
// of the full intensity range.
type ContourArgs struct {
	Level float64 `json:"level" yaml:"level"`
}

// EdgeOptions apply to every detection method.
type EdgeOptions struct {
	// Edges is the number of separate edges to keep (1 or 2).
	Edges int `json:"nmb_edges" yaml:"nmb_edges"`
	// IgnoredPixels is the height of the band above the baseline whose
	// points are dropped, usually to discard reflections.
	IgnoredPixels int `json:"ignored_pixels" yaml:"ignored_pixels"`
	// SizeRatio drops edges smaller than this fraction of the largest one.
	SizeRatio float64 `json:"size_ratio" yaml:"size_ratio"`
}

// Edge is the edge-detection snapshot.
type Edge struct {
	Method  EdgeMethod  `json:"method" yaml:"method"`
	Canny   CannyArgs   `json:"canny" yaml:"canny"`
	Contour ContourArgs `json:"contour" yaml:"contour"`
	Options EdgeOptions `json:"options" yaml:"options"`
}

// DefaultCannyArgs returns thresholds that work on typical back-lit drops.
func DefaultCannyArgs() CannyArgs {
	return CannyArgs{
		Threshold1:      50,
		Threshold2:      150,
		DilatationSteps: 1,
		SmoothSize:      3,
	}
}

// DefaultEdgeOptions keeps a single edge.
func DefaultEdgeOptions() EdgeOptions {
	return EdgeOptions{
		Edges:         1,
		IgnoredPixels: 2,
		SizeRatio:     0.5,
	}
}

// DefaultEdge returns canny detection with default arguments.
func DefaultEdge() Edge {
	return Edge{
		Method:  EdgeCanny,
		Canny:   DefaultCannyArgs(),
		Contour: ContourArgs{Level: 0.5},
		Options: DefaultEdgeOptions(),
	}
}

// WithMethod returns a copy using another detection method.
func (p Edge) WithMethod(m EdgeMethod) Edge {
	p.Method = m
	return p
}

// Equal compares the method and the arguments of that method only, so
// tweaking an inactive method's arguments never evicts cached edges.
func (p Edge) Equal(o Edge) bool {
	if p.Method != o.Method {
		return false
	}
	switch p.Method {
	case EdgeCanny:
		return p.Canny == o.Canny && p.Options == o.Options
	case EdgeContour:
		return p.Contour == o.Contour && p.Options == o.Options
	default:
		return true
	}
}
