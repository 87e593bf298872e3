package station

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bakerycam/internal/mailbox"
	"bakerycam/internal/models"
	"bakerycam/processing/annotator"
	"bakerycam/processing/capture"
	processing "bakerycam/processing/detector"
)

type stubSource struct{ closed atomic.Bool }

func (s *stubSource) Read(ctx context.Context) (image.Image, error) {
	time.Sleep(time.Millisecond)
	return image.NewRGBA(image.Rect(0, 0, 32, 32)), nil
}

func (s *stubSource) Close() error {
	s.closed.Store(true)
	return nil
}

// scriptedDetector returns result and records every frame it was given.
type scriptedDetector struct {
	mu     sync.Mutex
	result []models.Detection
	seen   []image.Image
	err    error
	closed bool
}

func (d *scriptedDetector) Detect(_ context.Context, frame image.Image, _ float32) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = append(d.seen, frame)
	return d.result, d.err
}

func (d *scriptedDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *scriptedDetector) set(result []models.Detection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result = result
}

func (d *scriptedDetector) last() image.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[len(d.seen)-1]
}

type fixture struct {
	station *Station
	det     *scriptedDetector
	frames  *mailbox.Slot[*processing.Frame]
	opened  *atomic.Int32
	counts  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t).Sugar()
	det := &scriptedDetector{}
	pipeline := processing.Pipeline{Detector: det, Annotator: annotator.New(models.DefaultCatalog())}
	frames := mailbox.New[*processing.Frame]()

	opened := &atomic.Int32{}
	open := func() (capture.Source, error) {
		opened.Add(1)
		return &stubSource{}, nil
	}

	proc := processing.NewProcessor(open, pipeline, frames, 0.6, logger)
	counts := filepath.Join(t.TempDir(), "object_counts.txt")

	st := New(proc, frames, pipeline, 0.6, counts, logger)
	t.Cleanup(func() { _ = st.Close() })

	return &fixture{station: st, det: det, frames: frames, opened: opened, counts: counts}
}

func publishedFrame(seq uint64) *processing.Frame {
	raw := image.NewRGBA(image.Rect(0, 0, 40, 30))
	raw.SetRGBA(3, 4, color.RGBA{R: 200, A: 255})
	return &processing.Frame{Seq: seq, Raw: raw, Annotated: image.NewRGBA(raw.Rect)}
}

func basket(labels ...string) []models.Detection {
	out := make([]models.Detection, 0, len(labels))
	for _, l := range labels {
		out = append(out, models.Detection{Label: l, Box: image.Rect(1, 1, 9, 9), Confidence: 0.9})
	}
	return out
}

func TestSaveWithoutCaptureIsNoop(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.station.HasCapture())

	var buf bytes.Buffer
	assert.ErrorIs(t, f.station.Save(&buf, "shot.png"), ErrNoCapture)
	assert.Zero(t, buf.Len())
}

func TestCaptureWithoutFrame(t *testing.T) {
	f := newFixture(t)

	_, err := f.station.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
	assert.NoFileExists(t, f.counts)
}

func TestCaptureRedetectsFrozenPixels(t *testing.T) {
	f := newFixture(t)

	live := publishedFrame(7)
	live.Summary = models.DefaultCatalog().Summarize(basket("donut"))
	f.frames.Publish(live)

	f.det.set(basket("cookie", "cookie", "cookie", "croissant"))

	c, err := f.station.Capture(context.Background())
	require.NoError(t, err)

	assert.Same(t, live.Raw, f.det.last(), "detection must run on the frozen raw frame")
	assert.Equal(t, uint64(7), c.Seq)
	assert.Equal(t, 3, c.Summary.Counts.Get(models.Cookie))
	assert.Equal(t, 0, c.Summary.Counts.Get(models.Donut), "live summary must not be reused")
	assert.Equal(t, models.Price(45), c.Summary.Total)
	assert.Equal(t, live.Raw.Bounds(), c.Image.Bounds())
	assert.NotSame(t, live.Annotated, c.Image, "captured image is the fresh annotation")

	data, err := os.ReadFile(f.counts)
	require.NoError(t, err)
	assert.Equal(t, "{cookie: 3, croissant: 1, donut: 0}\n", string(data))
}

func TestCaptureOverwritesCountsFile(t *testing.T) {
	f := newFixture(t)
	f.frames.Publish(publishedFrame(1))

	f.det.set(basket("cookie", "donut", "donut"))
	_, err := f.station.Capture(context.Background())
	require.NoError(t, err)

	f.det.set(nil)
	c, err := f.station.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, c.Summary.Items())

	data, err := os.ReadFile(f.counts)
	require.NoError(t, err)
	assert.Equal(t, "{cookie: 0, croissant: 0, donut: 0}\n", string(data))
}

func TestCaptureKeepsPreviousOnDetectorError(t *testing.T) {
	f := newFixture(t)
	f.frames.Publish(publishedFrame(1))
	f.det.set(basket("donut"))

	first, err := f.station.Capture(context.Background())
	require.NoError(t, err)

	f.det.err = errors.New("boom")
	_, err = f.station.Capture(context.Background())
	assert.ErrorContains(t, err, "boom")

	c, ok := f.station.Captured()
	require.True(t, ok)
	assert.Same(t, first, c)
}

func TestSaveEncodesByExtension(t *testing.T) {
	f := newFixture(t)
	f.frames.Publish(publishedFrame(1))
	_, err := f.station.Capture(context.Background())
	require.NoError(t, err)

	var pngBuf bytes.Buffer
	require.NoError(t, f.station.Save(&pngBuf, "basket.PNG"))
	img, err := png.Decode(&pngBuf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())

	var jpegBuf bytes.Buffer
	require.NoError(t, f.station.Save(&jpegBuf, "basket.jpeg"))
	_, err = jpeg.Decode(&jpegBuf)
	assert.NoError(t, err)

	var buf bytes.Buffer
	assert.ErrorIs(t, f.station.Save(&buf, "basket.gif"), ErrUnsupportedFormat)
	assert.ErrorIs(t, f.station.Save(&buf, "basket"), ErrUnsupportedFormat)
}

func TestPauseResumeReacquiresDevice(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.station.Resume())
	assert.True(t, f.station.Running())
	require.NoError(t, f.station.Resume(), "resume while running is a no-op")
	assert.Equal(t, int32(1), f.opened.Load())

	require.Eventually(t, func() bool {
		_, ok := f.frames.Latest()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.station.Pause())
	assert.False(t, f.station.Running())

	_, err := f.station.Capture(context.Background())
	assert.NoError(t, err, "capture works on the last frame while paused")

	require.NoError(t, f.station.Resume())
	assert.Equal(t, int32(2), f.opened.Load())
	require.NoError(t, f.station.Pause())
}

func TestCloseReleasesDetector(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.station.Resume())
	require.NoError(t, f.station.Close())

	assert.False(t, f.station.Running())
	assert.True(t, f.det.closed)
}
