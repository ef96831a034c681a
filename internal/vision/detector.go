// Package vision runs the OpenCV side of the analysis: decoding videos and
// detecting the drop boundary on normalized frames.
package vision

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/pkg/geometry"
)

var (
	// ErrEmptyFrame is returned for frames without pixels.
	ErrEmptyFrame = errors.New("frame has no pixels")
	// ErrNoDrop is returned when no usable contour remains.
	ErrNoDrop = errors.New("no drop found")
)

// Detector finds drop edges with Canny or iso-level contours.
type Detector struct{}

// NewDetector returns a detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect finds the edge of the drop on f.
func (d *Detector) Detect(f *drop.NormalizedFrame, p params.Edge) (*drop.Edge, error) {
	if f.Empty() {
		return nil, ErrEmptyFrame
	}
	b := f.Image.Bounds()
	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, f.Image.Pix)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", f.Index, err)
	}
	defer src.Close()

	var contours [][]geometry.Point2D
	switch p.Method {
	case params.EdgeCanny:
		contours = cannyContours(src, p.Canny)
	case params.EdgeContour:
		contours = levelContours(src, p.Contour)
	default:
		return drop.EmptyEdge(f, p.Method), nil
	}
	if len(contours) == 0 {
		return nil, ErrNoDrop
	}

	edge := drop.BuildEdge(f, contours, p.Method, p.Options)
	if edge.Empty() {
		return nil, ErrNoDrop
	}
	return edge, nil
}

func cannyContours(src gocv.Mat, args params.CannyArgs) [][]geometry.Point2D {
	blurred := gocv.NewMat()
	defer blurred.Close()
	k := oddKernel(args.SmoothSize)
	if k > 1 {
		gocv.GaussianBlur(src, &blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)
	} else {
		src.CopyTo(&blurred)
	}

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, float32(args.Threshold1), float32(args.Threshold2))

	// close gaps between edge segments
	if args.DilatationSteps > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
		defer kernel.Close()
		for i := 0; i < args.DilatationSteps; i++ {
			gocv.Dilate(edges, &edges, kernel)
		}
		for i := 0; i < args.DilatationSteps; i++ {
			gocv.Erode(edges, &edges, kernel)
		}
	}

	return findContours(edges)
}

func levelContours(src gocv.Mat, args params.ContourArgs) [][]geometry.Point2D {
	minVal, maxVal, _, _ := gocv.MinMaxLoc(src)
	level := thresholdLevel(float64(minVal), float64(maxVal), args.Level)

	binary := gocv.NewMat()
	defer binary.Close()
	// the drop is darker than the backlight
	gocv.Threshold(src, &binary, float32(level), 255, gocv.ThresholdBinaryInv)

	return findContours(binary)
}

func findContours(mask gocv.Mat) [][]geometry.Point2D {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()

	out := make([][]geometry.Point2D, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		pts := contours.At(i).ToPoints()
		if len(pts) == 0 {
			continue
		}
		out = append(out, toPoints(pts))
	}
	return out
}

func toPoints(pts []image.Point) []geometry.Point2D {
	out := make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		out[i] = geometry.NewPoint2D(float64(p.X), float64(p.Y))
	}
	return out
}

// oddKernel rounds a smoothing size up to the odd kernel size OpenCV
// expects.
func oddKernel(size int) int {
	if size <= 1 {
		return 1
	}
	if size%2 == 0 {
		return size + 1
	}
	return size
}

// thresholdLevel maps a level fraction onto the intensity range of a frame.
func thresholdLevel(lo, hi, fraction float64) float64 {
	fraction = min(max(fraction, 0), 1)
	return lo + fraction*(hi-lo)
}
