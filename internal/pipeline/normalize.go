package pipeline

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/pkg/geometry"
)

// plan is the frame-independent part of normalization, resolved once per
// preprocessing snapshot.
type plan struct {
	crop image.Rectangle
	// baseline in crop-relative pixels, P1 left of P2
	baseline geometry.Baseline
	dx, dy   float64
	dt       float64
	units    drop.Units
}

// planStages resolves a preprocessing snapshot in the order the frames are
// transformed: baseline, crop, then scale. step is called after each stage.
func planStages(p params.Preprocess, step func(stage int)) plan {
	var pl plan

	bl := p.Baseline
	if bl.P2.X < bl.P1.X {
		bl.P1, bl.P2 = bl.P2, bl.P1
	}
	step(1)

	x, y := p.CropX.Sorted(), p.CropY.Sorted()
	pl.crop = image.Rect(
		int(math.Floor(x.Min)), int(math.Floor(y.Min)),
		int(math.Ceil(x.Max)), int(math.Ceil(y.Max)),
	)
	origin := geometry.NewPoint2D(float64(pl.crop.Min.X), float64(pl.crop.Min.Y))
	pl.baseline = bl.Map(func(pt geometry.Point2D) geometry.Point2D { return pt.Sub(origin) })
	step(2)

	pl.dx = positiveOr(p.ScaleX.Value, 1)
	pl.dy = positiveOr(p.ScaleY.Value, pl.dx)
	pl.dt = positiveOr(p.ScaleT.Value, 1)
	pl.units = drop.Units{Length: p.ScaleX.Unit, Time: p.ScaleT.Unit}
	step(3)

	return pl
}

func positiveOr(v, fallback float64) float64 {
	if v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v
	}
	return fallback
}

// apply normalizes one raw frame: it crops it to grayscale pixels and
// attaches the physical scale, time and baseline.
func (pl plan) apply(raw image.Image, index int) *drop.NormalizedFrame {
	bounds := raw.Bounds()
	rect := pl.crop.Add(bounds.Min).Intersect(bounds)
	shift := rect.Min.Sub(bounds.Min).Sub(pl.crop.Min)
	if rect.Empty() || pl.crop.Empty() {
		rect = bounds
		shift = image.Point{X: -pl.crop.Min.X, Y: -pl.crop.Min.Y}
	}

	gray := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(gray, gray.Bounds(), raw, rect.Min, draw.Src)

	f := &drop.NormalizedFrame{
		Index:  index,
		Image:  gray,
		Origin: rect.Min.Sub(bounds.Min),
		Dx:     pl.dx,
		Dy:     pl.dy,
		Time:   float64(index) * pl.dt,
		Units:  pl.units,
	}
	offset := geometry.NewPoint2D(float64(shift.X), float64(shift.Y))
	f.Baseline = pl.baseline.Map(func(pt geometry.Point2D) geometry.Point2D {
		pt = pt.Sub(offset)
		return f.ToPhysical(pt.X, pt.Y)
	})
	return f
}
