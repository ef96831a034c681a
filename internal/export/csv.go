// Package export writes analysis results to CSV files, PNG plots and
// annotated frames.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/quantity"
)

// ErrNothingToExport is returned when no series or frame was selected.
var ErrNothingToExport = errors.New("nothing to export")

// Header returns the column title of a series: its name followed by the
// unit in brackets when it has one.
func Header(s quantity.Series) string {
	if s.Unit == "" {
		return s.Name
	}
	return fmt.Sprintf("%s [%s]", s.Name, s.Unit)
}

// WriteQuantities writes one column per series and one row per sample.
// Missing values are left empty.
func WriteQuantities(w io.Writer, series []quantity.Series) error {
	if len(series) == 0 {
		return ErrNothingToExport
	}
	cw := csv.NewWriter(w)

	header := make([]string, len(series))
	rows := 0
	for i, s := range series {
		header[i] = Header(s)
		rows = max(rows, len(s.Values))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(series))
	for r := 0; r < rows; r++ {
		for i, s := range series {
			record[i] = ""
			if r < len(s.Values) {
				record[i] = formatFloat(s.Values[r])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EdgeProvider gives access to the cached edge of a frame.
type EdgeProvider interface {
	Edge(index int) *drop.Edge
}

// WriteEdges writes the edge points of every frame as (frame, x, y) rows,
// in physical coordinates. Frames without a drop produce no row.
func WriteEdges(w io.Writer, edges EdgeProvider, frames []int, u drop.Units) error {
	if len(frames) == 0 {
		return ErrNothingToExport
	}
	cw := csv.NewWriter(w)
	header := []string{"frame", unitHeader("x", u.Length), unitHeader("y", u.Length)}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, index := range frames {
		e := edges.Edge(index)
		if e.Empty() {
			continue
		}
		frame := strconv.Itoa(index)
		for _, p := range e.Points {
			if err := cw.Write([]string{frame, formatFloat(p.X), formatFloat(p.Y)}); err != nil {
				return fmt.Errorf("frame %d: %w", index, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func unitHeader(name, unit string) string {
	if unit == "" {
		unit = "px"
	}
	return fmt.Sprintf("%s [%s]", name, unit)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
