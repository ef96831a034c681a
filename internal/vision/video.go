package vision

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ErrFrameRead is returned when the video cannot deliver a frame.
var ErrFrameRead = errors.New("cannot read video frame")

// VideoSource gives indexed access to the frames of a video file, converted
// to grayscale. The last decoded frame is kept so repeated reads of the
// same index do not seek.
type VideoSource struct {
	path    string
	capture *gocv.VideoCapture
	count   int
	fps     float64

	mu       sync.Mutex
	next     int
	lastIdx  int
	lastGray *image.Gray
}

// OpenVideo opens the video at path.
func OpenVideo(path string) (*VideoSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open video %s: capture is not opened", path)
	}
	return &VideoSource{
		path:    path,
		capture: capture,
		count:   int(capture.Get(gocv.VideoCaptureFrameCount)),
		fps:     capture.Get(gocv.VideoCaptureFPS),
		lastIdx: -1,
	}, nil
}

// Path returns the video file path.
func (v *VideoSource) Path() string {
	return v.path
}

// Len returns the number of frames announced by the container.
func (v *VideoSource) Len() int {
	return v.count
}

// TimeStep returns the frame interval derived from the frame rate.
func (v *VideoSource) TimeStep() (float64, bool) {
	if v.fps <= 0 {
		return 0, false
	}
	return 1 / v.fps, true
}

// Frame decodes the frame at index.
func (v *VideoSource) Frame(index int) (image.Image, error) {
	if index < 0 || index >= v.count {
		return nil, fmt.Errorf("frame %d of %d: %w", index, v.count, ErrFrameRead)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if index == v.lastIdx && v.lastGray != nil {
		return v.lastGray, nil
	}
	if index != v.next {
		v.capture.Set(gocv.VideoCapturePosFrames, float64(index))
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if !v.capture.Read(&mat) || mat.Empty() {
		v.next = -1
		return nil, fmt.Errorf("frame %d: %w", index, ErrFrameRead)
	}
	v.next = index + 1

	gray := gocv.NewMat()
	defer gray.Close()
	if mat.Channels() > 1 {
		gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)
	} else {
		mat.CopyTo(&gray)
	}
	img, err := gray.ToImage()
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", index, err)
	}
	g, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("frame %d: unexpected image type %T", index, img)
	}

	v.lastIdx = index
	v.lastGray = g
	return g, nil
}

// Close releases the capture.
func (v *VideoSource) Close() error {
	return v.capture.Close()
}
