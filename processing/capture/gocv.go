package capture

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// WebcamSource reads frames from a camera through OpenCV.
type WebcamSource struct {
	cam    *gocv.VideoCapture
	frame  gocv.Mat
	logger *zap.SugaredLogger
}

// OpenWebcam opens deviceID ("0" for the default camera, or a device path).
// Width and height are requested from the driver; zero leaves the default.
func OpenWebcam(deviceID string, width, height int, logger *zap.SugaredLogger) (*WebcamSource, error) {
	cam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open device %s", deviceID)
	}
	if !cam.IsOpened() {
		cam.Close()
		return nil, errors.Errorf("device %s is not available", deviceID)
	}

	if width > 0 && height > 0 {
		cam.Set(gocv.VideoCaptureFrameWidth, float64(width))
		cam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	logger.Infow("opened webcam", "device", deviceID,
		"width", cam.Get(gocv.VideoCaptureFrameWidth),
		"height", cam.Get(gocv.VideoCaptureFrameHeight))

	return &WebcamSource{
		cam:    cam,
		frame:  gocv.NewMat(),
		logger: logger,
	}, nil
}

func (ws *WebcamSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := ws.cam.Read(&ws.frame); !ok || ws.frame.Empty() {
		return nil, ErrNoFrame
	}

	img, err := ws.frame.ToImage()
	if err != nil {
		return nil, errors.Wrap(ErrNoFrame, err.Error())
	}
	return img, nil
}

func (ws *WebcamSource) Close() error {
	return multierr.Combine(ws.cam.Close(), ws.frame.Close())
}
