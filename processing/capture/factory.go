package capture

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bakerycam/internal/config"
)

func NewSource(c config.SourceConfig, logger *zap.SugaredLogger) (Source, error) {
	switch c.Type {
	case config.SourceWebcam:
		return OpenWebcam(c.DeviceID, c.Width, c.Height, logger)
	case config.SourceFFmpeg:
		return OpenFFmpegWebcam(c.DeviceID, c.TargetFPS, c.Width, c.Height, logger)
	case config.SourceLocal:
		return OpenLocalFile(c.Path, c.TargetFPS, c.Width, c.Height, logger)
	default:
		return nil, errors.Errorf("unknown source: %s", c.Type)
	}
}

// NewOpener binds c so the device can be re-acquired on every resume.
func NewOpener(c config.SourceConfig, logger *zap.SugaredLogger) Opener {
	return func() (Source, error) {
		return NewSource(c, logger.Named(string(c.Type)))
	}
}
