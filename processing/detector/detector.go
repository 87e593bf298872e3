package processing

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bakerycam/internal/config"
	"bakerycam/internal/models"
)

var (
	// ErrModelLoad means the model artifact could not be loaded. Fatal.
	ErrModelLoad = errors.New("model load failed")
	// ErrModelShape means the model cannot process the frame or its output
	// does not have the expected layout. Fatal.
	ErrModelShape = errors.New("model shape mismatch")
)

// Detector finds objects in one frame. Results are ordered by descending
// confidence and have Confidence >= threshold. Implementations are safe for
// concurrent use.
type Detector interface {
	Detect(ctx context.Context, frame image.Image, threshold float32) ([]models.Detection, error)
	Close() error
}

// IsFatal reports whether err means the detector can never succeed.
func IsFatal(err error) bool {
	return errors.Is(err, ErrModelLoad) || errors.Is(err, ErrModelShape)
}

func NewDetector(c config.DetectorConfig, logger *zap.SugaredLogger) (Detector, error) {
	switch c.Backend {
	case config.BackendOpenCV:
		return NewOpenCVDetector(c, logger)
	case config.BackendONNXRuntime:
		return NewORTDetector(c, logger)
	case config.BackendRemote:
		return NewRemoteDetector(c.RemoteHost, logger), nil
	default:
		return nil, errors.Errorf("unknown detector backend: %s", c.Backend)
	}
}
