package ui

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"bakerycam/internal/config"
	"bakerycam/internal/models"
	"bakerycam/internal/station"
	"bakerycam/internal/ui/cwidget"
	processing "bakerycam/processing/detector"
)

const defaultSaveName = "capture.png"

type captureOutcome int

const (
	captureOK captureOutcome = iota
	// captureNotice is an expected condition shown as information.
	captureNotice
	captureFailed
	// captureFatal means the detector can never succeed; the process exits.
	captureFatal
)

func classifyCaptureError(err error) captureOutcome {
	switch {
	case err == nil:
		return captureOK
	case processing.IsFatal(err):
		return captureFatal
	case errors.Is(err, station.ErrNoFrame):
		return captureNotice
	default:
		return captureFailed
	}
}

type DetectApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	display config.DisplayConfig
	station *station.Station
	catalog *models.Catalog
	logger  *zap.SugaredLogger

	videoCanvas  *canvas.Image
	thumbCanvas  *canvas.Image
	liveCard     *cwidget.SummaryCard
	captureCard  *cwidget.SummaryCard
	latencyLabel *widget.Label
	fpsLabel     *widget.Label
	stateLabel   *widget.Label
	dropsLabel   *widget.Label

	cancel context.CancelFunc
	loops  sync.WaitGroup
}

func CreateApp(st *station.Station, cfg *config.Config, catalog *models.Catalog, logger *zap.SugaredLogger) *DetectApp {
	a := app.New()
	w := a.NewWindow("Bakery Checkout")

	w.Resize(fyne.NewSize(float32(cfg.Display.Width+cfg.Display.ThumbWidth+80), 720))

	return &DetectApp{
		fyneApp: a,
		mainWin: w,
		display: cfg.Display,
		station: st,
		catalog: catalog,
		logger:  logger,
	}
}

func (a *DetectApp) Run() {
	a.videoCanvas = canvas.NewImageFromImage(nil)
	a.videoCanvas.FillMode = canvas.ImageFillContain
	a.videoCanvas.SetMinSize(fyne.NewSize(float32(a.display.Width), float32(a.display.Width*3/4)))

	a.thumbCanvas = canvas.NewImageFromImage(nil)
	a.thumbCanvas.FillMode = canvas.ImageFillContain
	a.thumbCanvas.SetMinSize(fyne.NewSize(float32(a.display.ThumbWidth), float32(a.display.ThumbHeight)))

	a.liveCard = cwidget.NewSummaryCard("Live", a.catalog)
	a.captureCard = cwidget.NewSummaryCard("Captured", a.catalog)

	proc := a.station.Processor()
	a.latencyLabel = widget.NewLabel(formatLatency(proc.Latency()))
	a.fpsLabel = widget.NewLabel(formatFPS(proc.FPS()))
	a.stateLabel = widget.NewLabel(formatState(false))
	a.dropsLabel = widget.NewLabel(formatDrops(0))

	videoContainer := container.NewBorder(
		container.NewHBox(a.stateLabel, widget.NewSeparator(), a.fpsLabel, widget.NewSeparator(), a.latencyLabel, widget.NewSeparator(), a.dropsLabel),
		nil, nil, nil,
		a.videoCanvas,
	)

	buttons := container.NewGridWithColumns(2,
		widget.NewButtonWithIcon("Capture", theme.MediaRecordIcon(), a.onCapture),
		widget.NewButtonWithIcon("Save", theme.DocumentSaveIcon(), a.onSave),
		widget.NewButtonWithIcon("Pause", theme.MediaPauseIcon(), a.onPause),
		widget.NewButtonWithIcon("Resume", theme.MediaPlayIcon(), a.onResume),
	)

	sidebar := container.NewVBox(
		buttons,
		widget.NewSeparator(),
		a.thumbCanvas,
		a.captureCard,
		widget.NewSeparator(),
		a.liveCard,
	)

	split := container.NewHSplit(
		container.NewPadded(videoContainer),
		container.NewPadded(container.NewVScroll(sidebar)),
	)
	split.SetOffset(0.7)

	a.mainWin.SetContent(split)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.loops.Add(3)
	go a.runPlayerLoop(ctx)
	go a.runStatLoop(ctx)
	go a.watchErrors(ctx)

	if err := a.station.Resume(); err != nil {
		a.logger.Errorw("failed to start capture", "error", err)
		dialog.ShowError(err, a.mainWin)
	}

	a.mainWin.SetCloseIntercept(func() {
		a.shutdown()
		a.mainWin.Close()
	})

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

// shutdown stops the UI loops, then the capture loop, releasing the device.
func (a *DetectApp) shutdown() {
	a.cancel()
	a.station.Frames().Close()
	a.loops.Wait()

	if err := a.station.Close(); err != nil {
		a.logger.Warnw("shutdown finished with errors", "error", err)
		return
	}
	a.logger.Info("shutdown complete")
}

func (a *DetectApp) onCapture() {
	go func() {
		c, err := a.station.Capture(context.Background())
		outcome := classifyCaptureError(err)
		if outcome == captureFatal {
			a.logger.Fatalw("detector failed during capture", "error", err)
		}

		fyne.Do(func() {
			if c != nil {
				a.thumbCanvas.Image = thumbnail(c.Image, a.display.ThumbWidth, a.display.ThumbHeight)
				a.thumbCanvas.Refresh()
				a.captureCard.SetSummary(c.Summary)
			}
			switch outcome {
			case captureNotice:
				dialog.ShowInformation("Capture", "No frame available yet.", a.mainWin)
			case captureFailed:
				a.logger.Errorw("capture failed", "error", err)
				dialog.ShowError(err, a.mainWin)
			}
		})
	}()
}

func (a *DetectApp) onSave() {
	if !a.station.HasCapture() {
		a.logger.Debug("save ignored, nothing captured")
		return
	}

	d := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			a.logger.Errorw("save dialog failed", "error", err)
			dialog.ShowError(err, a.mainWin)
			return
		}
		if writer == nil {
			a.logger.Info("save cancelled")
			return
		}

		uri := writer.URI()
		err = multierr.Append(a.station.Save(writer, uri.Name()), writer.Close())
		if err != nil {
			a.logger.Errorw("save failed", "uri", uri.String(), "error", err)
			dialog.ShowError(err, a.mainWin)
			return
		}
		dialog.ShowInformation("Save", "Image saved to "+uri.Path(), a.mainWin)
	}, a.mainWin)

	d.SetFilter(storage.NewExtensionFileFilter(station.SaveExtensions))
	d.SetFileName(defaultSaveName)
	d.Show()
}

func (a *DetectApp) onPause() {
	go a.control("pause", a.station.Pause)
}

func (a *DetectApp) onResume() {
	go a.control("resume", a.station.Resume)
}

func (a *DetectApp) control(action string, fn func() error) {
	err := fn()
	if err == nil {
		a.logger.Infow("capture "+action, "running", a.station.Running())
		return
	}
	a.logger.Errorw(action+" failed", "error", err)
	fyne.Do(func() {
		dialog.ShowError(err, a.mainWin)
	})
}

// watchErrors exits the process on errors the detector cannot recover from.
func (a *DetectApp) watchErrors(ctx context.Context) {
	defer a.loops.Done()

	select {
	case err := <-a.station.Processor().ErrChan:
		a.logger.Fatalw("detector failed", "error", err)
	case <-ctx.Done():
	}
}

func (a *DetectApp) runStatLoop(ctx context.Context) {
	defer a.loops.Done()

	uiTicker := time.NewTicker(time.Millisecond * 200)
	defer uiTicker.Stop()

	proc := a.station.Processor()
	frames := a.station.Frames()
	var reportedDrops uint64

	for {
		select {
		case <-uiTicker.C:
			latency, fps, running := proc.Latency(), proc.FPS(), proc.IsActive()
			drops := frames.Drops()
			if drops != reportedDrops {
				a.logger.Debugw("display skipped frames", "dropped", drops-reportedDrops, "total", drops)
				reportedDrops = drops
			}
			fyne.Do(func() {
				a.latencyLabel.SetText(formatLatency(latency))
				a.fpsLabel.SetText(formatFPS(fps))
				a.stateLabel.SetText(formatState(running))
				a.dropsLabel.SetText(formatDrops(drops))
			})
		case <-ctx.Done():
			return
		}
	}
}

func (a *DetectApp) runPlayerLoop(ctx context.Context) {
	defer a.loops.Done()

	frames := a.station.Frames()

	for {
		frame, ok := frames.Next(ctx)
		if !ok {
			return
		}

		img := scaleToWidth(frame.Annotated, a.display.Width)
		fyne.Do(func() {
			a.videoCanvas.Image = img
			a.videoCanvas.Refresh()
			a.liveCard.SetSummary(frame.Summary)
		})
	}
}

// scaleToWidth resizes img to width pixels keeping its aspect ratio.
func scaleToWidth(img image.Image, width int) image.Image {
	if width <= 0 || img.Bounds().Dx() == width {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Linear)
}

// thumbnail fits img inside w x h keeping its aspect ratio.
func thumbnail(img image.Image, w, h int) image.Image {
	return imaging.Fit(img, w, h, imaging.Lanczos)
}

func formatFPS(v uint) string {
	return fmt.Sprintf("FPS: %d", v)
}

func formatLatency(v time.Duration) string {
	return fmt.Sprintf("Latency: %d ms", v.Milliseconds())
}

func formatDrops(v uint64) string {
	return fmt.Sprintf("Skipped: %d", v)
}

func formatState(running bool) string {
	if running {
		return "Live"
	}
	return "Paused"
}
