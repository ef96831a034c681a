// Package ocr reads scale-bar labels burned into frames with Tesseract.
package ocr

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

// LabelChars restricts recognition to what a scale label may contain.
const LabelChars = "0123456789.,umcnµ "

// ErrEmptyRegion is returned when the region does not overlap the frame.
var ErrEmptyRegion = errors.New("empty label region")

// Engine provides OCR functionality using Tesseract.
type Engine struct {
	client *gosseract.Client
}

// NewEngine creates a new OCR engine.
func NewEngine() (*Engine, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	// labels are not dictionary words
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	return &Engine{client: client}, nil
}

// Close releases OCR resources.
func (e *Engine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// ReadRegion recognizes the text of region of frame.
func (e *Engine) ReadRegion(frame image.Image, region image.Rectangle) (string, error) {
	region = region.Intersect(frame.Bounds())
	if region.Empty() {
		return "", ErrEmptyRegion
	}
	gray := toGray(frame, region)

	src, err := gocv.NewMatFromBytes(gray.Rect.Dy(), gray.Rect.Dx(), gocv.MatTypeCV8UC1, gray.Pix)
	if err != nil {
		return "", fmt.Errorf("failed to wrap region: %w", err)
	}
	defer src.Close()

	processed := preprocess(src)
	defer processed.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, processed)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	// a label is a single line of text
	if err := e.client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", fmt.Errorf("failed to set PSM: %w", err)
	}
	if err := e.client.SetWhitelist(LabelChars); err != nil {
		return "", fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return strings.Join(strings.Fields(text), " "), nil
}

// toGray copies region of img into a grayscale image anchored at (0, 0).
func toGray(img image.Image, region image.Rectangle) *image.Gray {
	gray := image.NewGray(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(gray, gray.Bounds(), img, region.Min, draw.Src)
	return gray
}

// preprocess upscales small labels and binarizes them as dark text on a
// light background.
func preprocess(gray gocv.Mat) gocv.Mat {
	h, w := gray.Rows(), gray.Cols()

	scaled := gocv.NewMat()
	if minDim := min(h, w); minDim < 150 {
		scale := 150.0 / float64(minDim)
		gocv.Resize(gray, &scaled, image.Point{}, scale, scale, gocv.InterpolationCubic)
	} else {
		gray.CopyTo(&scaled)
	}
	defer scaled.Close()

	clahe := gocv.NewCLAHEWithParams(2.0, image.Point{X: 8, Y: 8})
	defer clahe.Close()
	enhanced := gocv.NewMat()
	defer enhanced.Close()
	clahe.Apply(scaled, &enhanced)

	binary := gocv.NewMat()
	gocv.Threshold(enhanced, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	// Tesseract expects more background than ink
	white := gocv.CountNonZero(binary)
	if float64(white) < 0.5*float64(binary.Rows()*binary.Cols()) {
		gocv.BitwiseNot(binary, &binary)
	}
	return binary
}
