package app

import (
	"fmt"
	stdimage "image"

	"drop-analyzer/internal/ocr"
	"drop-analyzer/internal/pipeline"
	"drop-analyzer/internal/units"
)

// resolveScale fills the scale text of the session config. A configured
// label region is read with OCR on the first frame. Without a region and
// without text, the resolution tag of TIFF sequences is used.
func (s *Session) resolveScale(src pipeline.FrameSource) error {
	scale := &s.Config.Scale
	if scale.Region != nil {
		frame, err := src.Frame(0)
		if err != nil {
			return fmt.Errorf("failed to read first frame: %w", err)
		}
		engine, err := ocr.NewEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		r := scale.Region
		region := stdimage.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
		q, label, err := engine.ReadScale(frame, region, s.Config.ScaleBarPixels())
		if err != nil {
			return fmt.Errorf("failed to read scale label: %w", err)
		}
		s.log.Info().Str("label", label).Str("scale", q.String()).Msg("scale read from frame")
		scale.Text = label
		return nil
	}

	if scale.Text != "" {
		return nil
	}
	sized, ok := src.(interface {
		PixelSize() (units.Quantity, error)
	})
	if !ok {
		return nil
	}
	q, err := sized.PixelSize()
	if err != nil {
		s.log.Debug().Err(err).Msg("no resolution tag, lengths stay in pixels")
		return nil
	}
	s.log.Info().Str("scale", q.String()).Msg("scale taken from image resolution")
	scale.Text = fmt.Sprintf("%g %s", q.Value, q.Unit)
	scale.Pixels = 1
	return nil
}
