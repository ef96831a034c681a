// Package image loads still images and image sequences as frame sources.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"drop-analyzer/internal/units"
)

// ErrNoFrames is returned when a sequence is opened without any file.
var ErrNoFrames = errors.New("no image to import")

// Sequence is an ordered set of frames decoded from image files.
type Sequence struct {
	paths  []string
	frames []image.Image
}

// OpenSequence decodes every file of paths, sorted by path. hook, when not
// nil, is called after each decoded file.
func OpenSequence(paths []string, hook func(step, total int)) (*Sequence, error) {
	if len(paths) == 0 {
		return nil, ErrNoFrames
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	s := &Sequence{paths: sorted, frames: make([]image.Image, len(sorted))}
	for i, p := range sorted {
		img, err := Load(p)
		if err != nil {
			return nil, err
		}
		s.frames[i] = img
		if hook != nil {
			hook(i+1, len(sorted))
		}
	}
	return s, nil
}

// Load decodes a single image file.
func Load(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Len returns the number of frames.
func (s *Sequence) Len() int {
	return len(s.frames)
}

// Frame returns the frame at index.
func (s *Sequence) Frame(index int) (image.Image, error) {
	if index < 0 || index >= len(s.frames) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", index, len(s.frames))
	}
	return s.frames[index], nil
}

// Paths returns the sorted file paths.
func (s *Sequence) Paths() []string {
	return append([]string(nil), s.paths...)
}

// PixelSize returns the physical size of one pixel of the first frame when
// it is a TIFF carrying resolution tags.
func (s *Sequence) PixelSize() (units.Quantity, error) {
	return PixelSize(s.paths[0])
}

// PixelSize reads the resolution tags of a TIFF file and returns the size
// of one pixel in millimetres.
func PixelSize(path string) (units.Quantity, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".tiff" && ext != ".tif" {
		return units.Quantity{}, fmt.Errorf("%s: not a TIFF file", filepath.Base(path))
	}
	dpi, err := tiffDPI(path)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return units.Quantity{Value: 25.4 / dpi, Unit: "mm"}, nil
}

// tiffDPI extracts the resolution of the first IFD, in dots per inch.
func tiffDPI(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	header := make([]byte, 8)
	if _, err := io.ReadFull(file, header); err != nil {
		return 0, err
	}

	var byteOrder binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		byteOrder = binary.LittleEndian
	case "MM":
		byteOrder = binary.BigEndian
	default:
		return 0, fmt.Errorf("not a valid TIFF file")
	}

	ifdOffset := byteOrder.Uint32(header[4:8])
	if _, err := file.Seek(int64(ifdOffset), io.SeekStart); err != nil {
		return 0, err
	}

	var numEntries uint16
	if err := binary.Read(file, byteOrder, &numEntries); err != nil {
		return 0, err
	}

	var xRes, yRes float64
	var resUnit uint16 = 2 // inches
	entries := make([]byte, 12*int(numEntries))
	if _, err := io.ReadFull(file, entries); err != nil {
		return 0, err
	}
	for i := 0; i < int(numEntries); i++ {
		entry := entries[i*12 : (i+1)*12]
		tag := byteOrder.Uint16(entry[0:2])
		fieldType := byteOrder.Uint16(entry[2:4])

		switch tag {
		case 282: // XResolution
			if fieldType == 5 {
				xRes, err = readRational(file, int64(byteOrder.Uint32(entry[8:12])), byteOrder)
			}
		case 283: // YResolution
			if fieldType == 5 {
				yRes, err = readRational(file, int64(byteOrder.Uint32(entry[8:12])), byteOrder)
			}
		case 296: // ResolutionUnit
			if fieldType == 3 {
				resUnit = byteOrder.Uint16(entry[8:10])
			}
		}
		if err != nil {
			return 0, err
		}
	}

	dpi := xRes
	if dpi == 0 {
		dpi = yRes
	}
	if dpi == 0 {
		return 0, fmt.Errorf("no resolution tags found")
	}
	if resUnit == 3 {
		dpi *= 2.54
	}
	return dpi, nil
}

func readRational(r io.ReaderAt, offset int64, byteOrder binary.ByteOrder) (float64, error) {
	buf := make([]byte, 8)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return 0, err
	}
	num, denom := byteOrder.Uint32(buf[0:4]), byteOrder.Uint32(buf[4:8])
	if denom == 0 {
		return 0, nil
	}
	return float64(num) / float64(denom), nil
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg", ".bmp"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// IsVideo reports whether path looks like a video file.
func IsVideo(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".avi", ".mp4", ".mov", ".mkv", ".mpg", ".mpeg", ".wmv":
		return true
	}
	return false
}
