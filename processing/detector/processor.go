package processing

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bakerycam/internal/mailbox"
	"bakerycam/internal/models"
	"bakerycam/processing/capture"
)

// Frame is one published result of the capture loop.
type Frame struct {
	Seq       uint64
	Raw       image.Image
	Annotated *image.RGBA
	Summary   models.Summary
	Timestamp time.Time
}

// Processor is the capture loop: it owns the capture device while running
// and publishes annotated frames to a single-slot mailbox.
type Processor struct {
	open      capture.Opener
	pipeline  Pipeline
	out       *mailbox.Slot[*Frame]
	threshold float32
	logger    *zap.SugaredLogger

	ErrChan chan error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	active   atomic.Bool
	seq      atomic.Uint64
	latency  atomic.Int64
	fps      atomic.Uint64
	closeErr error
}

func NewProcessor(open capture.Opener, pipeline Pipeline, out *mailbox.Slot[*Frame], threshold float32, logger *zap.SugaredLogger) *Processor {
	return &Processor{
		open:      open,
		pipeline:  pipeline,
		out:       out,
		threshold: threshold,
		logger:    logger,
		ErrChan:   make(chan error, 1),
	}
}

// Start acquires the capture device and starts the loop.
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return errors.New("processor already running")
	}

	src, err := p.open()
	if err != nil {
		return errors.Wrap(err, "open capture source")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.active.Store(true)

	go p.run(ctx, src, p.done)

	p.logger.Info("processor started")
	return nil
}

// Stop signals the loop, waits until it has exited and the device is released.
// An in-flight detection completes first. Stop on a stopped processor is a no-op.
func (p *Processor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil {
		return nil
	}

	p.cancel()
	<-p.done

	p.cancel = nil
	p.done = nil

	err := p.closeErr
	p.closeErr = nil

	p.logger.Info("processor stopped")
	return err
}

func (p *Processor) IsActive() bool { return p.active.Load() }

func (p *Processor) Latency() time.Duration { return time.Duration(p.latency.Load()) }

func (p *Processor) FPS() uint { return uint(p.fps.Load()) }

func (p *Processor) run(ctx context.Context, src capture.Source, done chan struct{}) {
	defer close(done)
	defer func() {
		p.active.Store(false)
		if err := src.Close(); err != nil {
			p.logger.Warnw("failed to release capture source", "error", err)
			p.closeErr = err
		}
	}()

	var frameCount uint64
	lastFpsUpdate := time.Now()

	for ctx.Err() == nil {
		img, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Debugw("frame skipped", "error", err)
			}
			continue
		}

		start := time.Now()

		annotated, _, summary, err := p.pipeline.Process(ctx, img, p.threshold)
		if err != nil {
			if IsFatal(err) {
				p.logger.Errorw("detector failed", "error", err)
				p.fail(err)
				return
			}
			if ctx.Err() == nil {
				p.logger.Warnw("detection skipped", "error", err)
			}
			continue
		}

		p.latency.Store(int64(time.Since(start)))

		p.out.Publish(&Frame{
			Seq:       p.seq.Add(1),
			Raw:       img,
			Annotated: annotated,
			Summary:   summary,
			Timestamp: start,
		})

		frameCount++
		if time.Since(lastFpsUpdate) >= time.Second {
			p.fps.Store(frameCount)
			frameCount = 0
			lastFpsUpdate = time.Now()
		}
	}
}

func (p *Processor) fail(err error) {
	select {
	case p.ErrChan <- err:
	default:
	}
}
