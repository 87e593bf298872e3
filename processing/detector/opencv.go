package processing

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"bakerycam/internal/config"
	"bakerycam/internal/models"
)

// OpenCVDetector runs a YOLOv8 ONNX export through the OpenCV DNN module.
type OpenCVDetector struct {
	mu      sync.Mutex
	net     gocv.Net
	decoder yoloDecoder
	logger  *zap.SugaredLogger
}

func NewOpenCVDetector(c config.DetectorConfig, logger *zap.SugaredLogger) (*OpenCVDetector, error) {
	if _, err := os.Stat(c.ModelPath); err != nil {
		return nil, errors.Wrapf(ErrModelLoad, "model file %s: %v", c.ModelPath, err)
	}

	net := gocv.ReadNetFromONNX(c.ModelPath)
	if net.Empty() {
		return nil, errors.Wrapf(ErrModelLoad, "failed to read network %s", c.ModelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set preferable backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set preferable target")
	}

	logger.Infow("detection network initialized", "model", c.ModelPath, "labels", c.Labels)

	return &OpenCVDetector{
		net: net,
		decoder: yoloDecoder{
			labels:    c.Labels,
			inputSize: c.InputSize,
			iou:       c.IoU,
		},
		logger: logger,
	}, nil
}

func (d *OpenCVDetector) Detect(ctx context.Context, frame image.Image, threshold float32) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, errors.Wrapf(ErrModelShape, "convert frame: %v", err)
	}
	defer mat.Close()

	size := d.decoder.inputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 {
		return nil, errors.Wrapf(ErrModelShape, "output dims %v", dims)
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrapf(ErrModelShape, "read output: %v", err)
	}

	return d.decoder.decode(data, dims[1], dims[2], frame.Bounds(), threshold)
}

func (d *OpenCVDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
