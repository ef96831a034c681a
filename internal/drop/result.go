package drop

import (
	"time"

	"github.com/google/uuid"

	"drop-analyzer/internal/params"
)

// BulkFitResult is the output of one bulk run: one fit per visited frame,
// tagged with the parameters it was computed under.
type BulkFitResult struct {
	RunID   uuid.UUID
	Created time.Time

	Fits   []*Fit
	Times  []float64
	Frames []int

	Edge params.Edge
	Fit  params.Fit
	Run  params.Run

	// Dt is the time between two consecutive samples.
	Dt    float64
	Units Units

	// Stopped is set when the run was cancelled and padded.
	Stopped bool
}

// Len returns the number of samples.
func (r *BulkFitResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Fits)
}

// Method returns the fit method the run was started with.
func (r *BulkFitResult) Method() params.FitMethod {
	return r.Fit.Method
}

// Series evaluates fn on every fit.
func (r *BulkFitResult) Series(fn func(*Fit) float64) []float64 {
	out := make([]float64, len(r.Fits))
	for i, f := range r.Fits {
		out[i] = fn(f)
	}
	return out
}
