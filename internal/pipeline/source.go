// Package pipeline chains the per-frame caches of the drop analysis:
// preprocessing, edge detection and fitting, plus the bulk runner feeding
// derived quantities. Every layer compares its parameter snapshot before
// answering and invalidates the layers depending on it when the snapshot
// changed. Nothing in this package is safe for concurrent use except
// CancelFlag.
package pipeline

import (
	"image"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
)

// FrameSource gives indexed access to raw frames.
type FrameSource interface {
	Len() int
	Frame(index int) (image.Image, error)
}

// TimeStepper is implemented by sources knowing their frame interval, such
// as videos.
type TimeStepper interface {
	TimeStep() (seconds float64, ok bool)
}

// Hook observes the progress of a long-running pass.
type Hook func(step, total int)

func (h Hook) call(step, total int) {
	if h != nil {
		h(step, total)
	}
}

// EdgeDetector finds the drop boundary on a normalized frame.
type EdgeDetector interface {
	Detect(frame *drop.NormalizedFrame, p params.Edge) (*drop.Edge, error)
}

// Fitter fits a drop model to an edge.
type Fitter interface {
	Fit(edge *drop.Edge, p params.Fit) (drop.Model, error)
}

// ParamSource supplies the current parameter snapshots. They are pulled on
// every access, never pushed.
type ParamSource interface {
	Preprocess() params.Preprocess
	Edge() params.Edge
	Fit() params.Fit
	Run() params.Run
}

// Upstream is the layer a cache reads its inputs from.
type Upstream[T any] interface {
	// Refresh re-checks the upstream parameters. When they changed, the
	// dependent caches are invalidated before Refresh returns.
	Refresh()
	At(index int) T
	// Disabled reports whether the layer is switched off and only yields
	// empty results.
	Disabled() bool
}
