// Package runwindow is the desktop window driving a session: frame preview
// with overlays, bulk compute with progress and cancel, and quantity plots.
package runwindow

import (
	"context"
	"fmt"
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"drop-analyzer/internal/app"
	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/export"
	"drop-analyzer/internal/pipeline"
	"drop-analyzer/internal/quantity"
	"drop-analyzer/ui/prefs"
)

// Window is the main window of the desktop application.
type Window struct {
	session *app.Session
	prefs   *prefs.Prefs
	log     zerolog.Logger

	win fyne.Window

	frameImage  *canvas.Image
	frameSlider *widget.Slider
	frameLabel  *widget.Label

	plotImage *canvas.Image
	quantity  *widget.Select
	smoothing *widget.Slider

	computeBtn *widget.Button
	cancelBtn  *widget.Button
	saveBtn    *widget.Button
	progress   *widget.ProgressBar
	status     *widget.Label
}

// New builds the window for session.
func New(a fyne.App, title string, session *app.Session, p *prefs.Prefs, log zerolog.Logger) *Window {
	w := &Window{
		session: session,
		prefs:   p,
		log:     log,
		win:     a.NewWindow(title),
	}
	w.build()
	w.win.Resize(fyne.NewSize(
		float32(p.FloatWithFallback(prefs.KeyWindowWidth, 1100)),
		float32(p.FloatWithFallback(prefs.KeyWindowHeight, 700)),
	))

	session.On(app.EventSourceLoaded, func(interface{}) { w.sourceLoaded() })
	session.On(app.EventComputed, func(data interface{}) {
		res, _ := data.(*drop.BulkFitResult)
		w.computed(res)
	})
	session.On(app.EventParamsChanged, func(interface{}) { w.showFrame(w.currentFrame()) })

	w.win.SetOnClosed(w.savePreferences)
	return w
}

func (w *Window) build() {
	w.frameImage = canvas.NewImageFromImage(image.NewGray(image.Rect(0, 0, 1, 1)))
	w.frameImage.FillMode = canvas.ImageFillContain
	w.frameImage.ScaleMode = canvas.ImageScalePixels
	w.frameImage.SetMinSize(fyne.NewSize(400, 300))

	w.frameLabel = widget.NewLabel("Frame -")
	w.frameSlider = widget.NewSlider(0, 1)
	w.frameSlider.Step = 1
	w.frameSlider.OnChanged = func(v float64) { w.showFrame(int(v)) }

	w.plotImage = canvas.NewImageFromImage(image.NewGray(image.Rect(0, 0, 1, 1)))
	w.plotImage.FillMode = canvas.ImageFillContain
	w.plotImage.SetMinSize(fyne.NewSize(400, 300))

	w.quantity = widget.NewSelect(nil, func(name string) {
		w.prefs.SetString(prefs.KeyLastQuantity, name)
		w.replot()
	})
	w.quantity.PlaceHolder = "Quantity"

	w.smoothing = widget.NewSlider(0, 10)
	w.smoothing.Step = 0.5
	w.smoothing.SetValue(w.prefs.FloatWithFallback(prefs.KeySmoothing, w.session.Smoothing()))
	w.session.SetSmoothing(w.smoothing.Value)
	w.smoothing.OnChanged = func(v float64) {
		w.prefs.SetFloat(prefs.KeySmoothing, v)
		w.session.SetSmoothing(v)
		w.replot()
	}

	w.progress = widget.NewProgressBar()
	w.status = widget.NewLabel("No input")

	w.computeBtn = widget.NewButton("Compute", w.compute)
	w.cancelBtn = widget.NewButton("Cancel", w.session.Cancel)
	w.cancelBtn.Disable()
	w.saveBtn = widget.NewButton("Save info file", func() {
		if err := w.session.SaveInfo(); err != nil {
			dialog.ShowError(err, w.win)
			return
		}
		w.status.SetText("Info file saved")
	})

	preview := container.NewBorder(nil, container.NewBorder(nil, nil, w.frameLabel, nil, w.frameSlider), nil, nil, w.frameImage)
	plotControls := container.NewBorder(nil, nil, widget.NewLabel("Smoothing"), nil, w.smoothing)
	plots := container.NewBorder(w.quantity, plotControls, nil, nil, w.plotImage)
	toolbar := container.NewHBox(w.computeBtn, w.cancelBtn, w.saveBtn)
	bottom := container.NewBorder(nil, nil, toolbar, nil, container.NewVBox(w.progress, w.status))

	split := container.NewHSplit(preview, plots)
	split.Offset = 0.5
	w.win.SetContent(container.NewBorder(nil, bottom, nil, nil, split))
}

// ShowAndRun displays the window and runs the application loop.
func (w *Window) ShowAndRun() {
	w.win.ShowAndRun()
}

// Progress reports the progress of a long-running pass.
func (w *Window) Progress(step, total int) {
	if total <= 0 {
		return
	}
	w.progress.SetValue(float64(step) / float64(total))
}

func (w *Window) sourceLoaded() {
	var n int
	w.session.Do(func(e *pipeline.Engine) { n = e.Len() })
	w.frameSlider.Max = float64(max(n-1, 0))
	w.frameSlider.Refresh()
	first := w.session.Preprocess().First
	w.frameSlider.SetValue(float64(first))
	w.showFrame(first)
	w.status.SetText(fmt.Sprintf("%d frames loaded", n))
}

func (w *Window) currentFrame() int {
	return int(w.frameSlider.Value)
}

// showFrame renders the preview of frame index. It is skipped while a bulk
// run holds the engine.
func (w *Window) showFrame(index int) {
	var img image.Image
	w.session.TryDo(func(e *pipeline.Engine) {
		if e.IsValidIndex(index) {
			img = export.Overlay(e, index).Render()
		}
	})
	if img == nil {
		return
	}
	w.frameLabel.SetText(fmt.Sprintf("Frame %d", index))
	w.frameImage.Image = img
	w.frameImage.Refresh()
}

func (w *Window) compute() {
	w.setBusy(true)
	w.progress.SetValue(0)
	w.status.SetText("Computing...")

	go func() {
		if _, err := w.session.Compute(context.Background()); err != nil {
			w.status.SetText(err.Error())
		}
		w.setBusy(false)
		w.showFrame(w.currentFrame())
	}()
}

// setBusy switches between the controls of a running bulk fit and the
// interactive ones.
func (w *Window) setBusy(busy bool) {
	for _, obj := range []fyne.CanvasObject{w.computeBtn, w.saveBtn, w.frameSlider, w.smoothing, w.quantity} {
		d, ok := obj.(fyne.Disableable)
		if !ok {
			continue
		}
		if busy {
			d.Disable()
		} else {
			d.Enable()
		}
	}
	if busy {
		w.cancelBtn.Enable()
	} else {
		w.cancelBtn.Disable()
	}
}

func (w *Window) computed(res *drop.BulkFitResult) {
	if res == nil {
		w.status.SetText("Nothing computed")
		return
	}
	msg := fmt.Sprintf("%d frames fitted", res.Len())
	if res.Stopped {
		msg += " (cancelled)"
	}
	w.status.SetText(msg)

	var names []string
	w.session.Do(func(e *pipeline.Engine) { names = e.Quantities().Names() })
	w.quantity.Options = names
	w.quantity.Refresh()
	selected := w.prefs.String(prefs.KeyLastQuantity)
	if !contains(names, selected) {
		selected = quantity.AngleMean
	}
	w.quantity.SetSelected(selected)
	w.replot()
}

func (w *Window) replot() {
	name := w.quantity.Selected
	if name == "" {
		return
	}
	var (
		res *drop.BulkFitResult
		s   quantity.Series
	)
	smoothing := w.session.Smoothing()
	if !w.session.TryDo(func(e *pipeline.Engine) {
		res = e.Result()
		if res != nil {
			s = e.Quantity(name, smoothing)
		}
	}) || res == nil {
		return
	}
	if s.Empty() {
		w.status.SetText(fmt.Sprintf("%s: no values", name))
		return
	}
	p, err := export.Plot(name, fmt.Sprintf("Time [%s]", res.Units.Time), res.Times, []quantity.Series{s})
	if err != nil {
		w.log.Warn().Err(err).Str("quantity", name).Msg("plot failed")
		return
	}
	w.plotImage.Image = export.Render(p, export.DefaultPlotSize)
	w.plotImage.Refresh()
}

func (w *Window) savePreferences() {
	size := w.win.Canvas().Size()
	w.prefs.SetFloat(prefs.KeyWindowWidth, float64(size.Width))
	w.prefs.SetFloat(prefs.KeyWindowHeight, float64(size.Height))
	if err := w.prefs.SaveIfChanged(); err != nil {
		w.log.Warn().Err(err).Msg("preferences not saved")
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
