package processing

import (
	"context"
	"image"
	"sync"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"bakerycam/internal/config"
	"bakerycam/internal/models"
)

// ORTDetector runs a YOLOv8 ONNX export through onnxruntime.
type ORTDetector struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	decoder yoloDecoder
	anchors int
	logger  *zap.SugaredLogger
}

func NewORTDetector(c config.DetectorConfig, logger *zap.SugaredLogger) (*ORTDetector, error) {
	if c.ORTLibraryPath != "" {
		ort.SetSharedLibraryPath(c.ORTLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrapf(ErrModelLoad, "initializing onnxruntime: %v", err)
		}
	}

	size := int64(c.InputSize)
	anchors := anchorCount(c.InputSize)
	rows := int64(4 + len(c.Labels))

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, rows, int64(anchors)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "creating session options")
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(c.ModelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(ErrModelLoad, "creating session for %s: %v", c.ModelPath, err)
	}

	logger.Infow("onnxruntime session ready", "model", c.ModelPath, "input", size, "classes", len(c.Labels))

	return &ORTDetector{
		session: session,
		input:   input,
		output:  output,
		decoder: yoloDecoder{
			labels:    c.Labels,
			inputSize: c.InputSize,
			iou:       c.IoU,
		},
		anchors: anchors,
		logger:  logger,
	}, nil
}

func (d *ORTDetector) Detect(ctx context.Context, frame image.Image, threshold float32) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := fillCHW(d.input.GetData(), frame, d.decoder.inputSize); err != nil {
		return nil, err
	}
	if err := d.session.Run(); err != nil {
		return nil, errors.Wrapf(ErrModelShape, "inference: %v", err)
	}

	out := d.output.GetData()
	return d.decoder.decode(out, len(out)/d.anchors, d.anchors, frame.Bounds(), threshold)
}

func (d *ORTDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return multierr.Combine(d.session.Destroy(), d.input.Destroy(), d.output.Destroy())
}

// fillCHW writes frame, stretched to size x size, into dst as planar RGB in [0, 1].
func fillCHW(dst []float32, frame image.Image, size int) error {
	channelSize := size * size
	if len(dst) < channelSize*3 {
		return errors.Wrapf(ErrModelShape, "input tensor holds %d floats, needs %d", len(dst), channelSize*3)
	}

	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	img := resize.Resize(uint(size), uint(size), frame, resize.Bilinear)
	b := img.Bounds()

	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(bl>>8) / 255.0
			i++
		}
	}
	return nil
}
