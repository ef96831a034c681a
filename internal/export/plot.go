package export

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"drop-analyzer/internal/quantity"
	"drop-analyzer/pkg/colorutil"
)

// PlotSize is the size of saved plots.
type PlotSize struct {
	Width, Height vg.Length
}

// DefaultPlotSize is used when a zero size is given.
var DefaultPlotSize = PlotSize{Width: 8 * vg.Inch, Height: 5 * vg.Inch}

// Plot builds a time-series plot of series against x. Smoothed series
// are drawn solid, their raw values dashed in the same color.
func Plot(title, xLabel string, x []float64, series []quantity.Series) (*plot.Plot, error) {
	if len(series) == 0 {
		return nil, ErrNothingToExport
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	if len(series) == 1 {
		p.Y.Label.Text = Header(series[0])
	}

	for i, s := range series {
		c := colorutil.Series(i)

		if raw := points(x, s.Raw); len(raw) > 0 {
			line, err := plotter.NewLine(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", s.Name, err)
			}
			line.Color = colorutil.WithAlpha(c, 160)
			line.Width = vg.Points(1)
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			p.Add(line)
		}

		pts := points(x, s.Values)
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		line.Color = c
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(Header(s), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SavePlot renders the series to a PNG file at path.
func SavePlot(path, title, xLabel string, x []float64, series []quantity.Series, size PlotSize) error {
	p, err := Plot(title, xLabel, x, series)
	if err != nil {
		return err
	}
	if size.Width <= 0 || size.Height <= 0 {
		size = DefaultPlotSize
	}
	if err := p.Save(size.Width, size.Height, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

// Render rasterizes p for on-screen display.
func Render(p *plot.Plot, size PlotSize) image.Image {
	if size.Width <= 0 || size.Height <= 0 {
		size = DefaultPlotSize
	}
	c := vgimg.New(size.Width, size.Height)
	p.Draw(draw.New(c))
	return c.Image()
}

// points pairs x with y, skipping missing values.
func points(x, y []float64) plotter.XYs {
	n := min(len(x), len(y))
	pts := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: x[i], Y: y[i]})
	}
	return pts
}
