package capture

import (
	"context"
	"image"
	"io"

	"github.com/pkg/errors"
)

// ErrNoFrame reports a transient acquisition failure; callers skip the frame.
var ErrNoFrame = errors.New("no frame available")

// Source produces frames on demand. It owns its device until Close.
// Read and Close are not meant to be called concurrently.
type Source interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener acquires a fresh Source, e.g. on resume.
type Opener func() (Source, error)

const bytesPerPixel = 4

// readRGBA reads exactly one raw RGBA frame of width x height from r.
func readRGBA(r io.Reader, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid frame size %dx%d", width, height)
	}

	stride := width * bytesPerPixel
	pix := make([]byte, stride*height)

	if _, err := io.ReadFull(r, pix); err != nil {
		return nil, errors.Wrap(err, "read raw frame")
	}

	return &image.RGBA{
		Pix:    pix,
		Stride: stride,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}
