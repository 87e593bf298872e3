// Package station holds the checkout counter state behind the UI buttons:
// freezing a frame, saving it, and pausing or resuming the capture loop.
// Capture, Pause and Resume are serialized; none of them runs while another
// is in progress.
package station

import (
	"context"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"bakerycam/internal/mailbox"
	"bakerycam/internal/models"
	processing "bakerycam/processing/detector"
)

var (
	ErrNoFrame           = errors.New("no frame published yet")
	ErrNoCapture         = errors.New("nothing captured yet")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// SaveExtensions are the file extensions Save accepts.
var SaveExtensions = []string{".png", ".jpg", ".jpeg"}

// Capture is a frozen frame with the summary derived from its own pixels.
type Capture struct {
	Seq        uint64
	Image      *image.RGBA
	Detections []models.Detection
	Summary    models.Summary
}

type Station struct {
	mu sync.Mutex

	proc       *processing.Processor
	frames     *mailbox.Slot[*processing.Frame]
	pipeline   processing.Pipeline
	threshold  float32
	countsFile string
	logger     *zap.SugaredLogger

	captured *Capture
}

func New(
	proc *processing.Processor,
	frames *mailbox.Slot[*processing.Frame],
	pipeline processing.Pipeline,
	captureThreshold float32,
	countsFile string,
	logger *zap.SugaredLogger,
) *Station {
	return &Station{
		proc:       proc,
		frames:     frames,
		pipeline:   pipeline,
		threshold:  captureThreshold,
		countsFile: countsFile,
		logger:     logger,
	}
}

// Capture freezes the most recently published frame. Detection is run again
// on its raw pixels with the capture threshold, and the captured image is
// that fresh annotation, not the live overlay shown on screen. Image, summary
// and counts file therefore always describe the same detection pass. The
// class counts are written to the counts file, replacing its content.
func (s *Station) Capture(ctx context.Context) (*Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame, ok := s.frames.Latest()
	if !ok {
		return nil, ErrNoFrame
	}

	annotated, detections, summary, err := s.pipeline.Process(ctx, frame.Raw, s.threshold)
	if err != nil {
		return nil, errors.Wrap(err, "re-detect captured frame")
	}

	c := &Capture{
		Seq:        frame.Seq,
		Image:      annotated,
		Detections: detections,
		Summary:    summary,
	}
	s.captured = c

	s.logger.Infow("captured frame", "seq", c.Seq, "counts", summary.Counts.String(), "total", summary.Total)

	if err := writeCounts(s.countsFile, summary.Counts); err != nil {
		return c, err
	}
	return c, nil
}

func writeCounts(path string, counts models.ClassCount) error {
	if err := os.WriteFile(path, []byte(counts.String()+"\n"), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func (s *Station) Captured() (*Capture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured, s.captured != nil
}

func (s *Station) HasCapture() bool {
	_, ok := s.Captured()
	return ok
}

func formatFor(name string) (imaging.Format, error) {
	format, err := imaging.FormatFromFilename(name)
	if err != nil || (format != imaging.PNG && format != imaging.JPEG) {
		return 0, errors.Wrapf(ErrUnsupportedFormat, "%q", filepath.Ext(name))
	}
	return format, nil
}

// Save encodes the captured image to w in the format implied by name's extension.
func (s *Station) Save(w io.Writer, name string) error {
	c, ok := s.Captured()
	if !ok {
		return ErrNoCapture
	}

	format, err := formatFor(name)
	if err != nil {
		return err
	}

	if err := imaging.Encode(w, c.Image, format); err != nil {
		return errors.Wrapf(err, "encode %s", name)
	}
	s.logger.Infow("image saved", "name", name)
	return nil
}

// Pause stops the capture loop and waits for it to release the device.
func (s *Station) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc.Stop()
}

// Resume starts a fresh capture loop, re-acquiring the device.
func (s *Station) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc.IsActive() {
		return nil
	}
	// A loop that died on its own still holds its bookkeeping.
	if err := s.proc.Stop(); err != nil {
		s.logger.Warnw("releasing previous capture source", "error", err)
	}
	return s.proc.Start()
}

func (s *Station) Running() bool { return s.proc.IsActive() }

func (s *Station) Processor() *processing.Processor { return s.proc }

func (s *Station) Frames() *mailbox.Slot[*processing.Frame] { return s.frames }

// Close stops the loop and releases the detector.
func (s *Station) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return multierr.Combine(s.proc.Stop(), s.pipeline.Detector.Close())
}
