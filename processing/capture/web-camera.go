package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"regexp"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// FFmpegSource reads raw RGBA frames from an ffmpeg process writing to a pipe.
// It backs both the ffmpeg webcam source and the local file source.
type FFmpegSource struct {
	closeOnce sync.Once

	width  int
	height int
	pace   func(ctx context.Context) error
	// onClose releases resources owned by pace.
	onClose func()

	cancel context.CancelFunc
	pipe   *io.PipeReader
	done   chan struct{}
	logger *zap.SugaredLogger
}

func startFFmpeg(stream *ffmpeg.Stream, width, height int, logger *zap.SugaredLogger) *FFmpegSource {
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()

	fs := &FFmpegSource{
		width:  width,
		height: height,
		cancel: cancel,
		pipe:   pr,
		done:   make(chan struct{}),
		logger: logger,
	}

	var stderr bytes.Buffer
	stream.Context = ctx

	go func() {
		defer close(fs.done)

		err := stream.WithOutput(pw, &stderr).Run()
		if err != nil && ctx.Err() == nil {
			logger.Warnw("ffmpeg exited", "error", err, "stderr", stderr.String())
			err = errors.Wrap(err, "ffmpeg")
		}
		if err == nil {
			err = io.EOF
		}
		pw.CloseWithError(err)
	}()

	return fs
}

func outputArgs(fps uint, width, height int) ffmpeg.KwArgs {
	return ffmpeg.KwArgs{
		"vf":      fmt.Sprintf("fps=%d,scale=%d:%d", fps, width, height),
		"format":  "rawvideo",
		"pix_fmt": "rgba",
		"vcodec":  "rawvideo",
	}
}

// OpenFFmpegWebcam captures from a v4l2 device (dshow on Windows) through ffmpeg.
func OpenFFmpegWebcam(deviceName string, targetFPS uint, width, height int, logger *zap.SugaredLogger) (*FFmpegSource, error) {
	if targetFPS == 0 {
		targetFPS = standardFPS
	}

	var stream *ffmpeg.Stream
	if runtime.GOOS == "windows" {
		stream = ffmpeg.Input(fmt.Sprintf("video=%s", deviceName), ffmpeg.KwArgs{"f": "dshow"})
	} else {
		stream = ffmpeg.Input(deviceName, ffmpeg.KwArgs{"f": "v4l2"})
	}
	stream = stream.Output("pipe:", outputArgs(targetFPS, width, height))

	logger.Infow("starting ffmpeg webcam", "device", deviceName, "fps", targetFPS, "width", width, "height", height)
	return startFFmpeg(stream, width, height, logger), nil
}

func (fs *FFmpegSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fs.pace != nil {
		if err := fs.pace(ctx); err != nil {
			return nil, err
		}
	}

	img, err := readRGBA(fs.pipe, fs.width, fs.height)
	if err != nil {
		return nil, errors.Wrap(ErrNoFrame, err.Error())
	}
	return img, nil
}

func (fs *FFmpegSource) Close() error {
	fs.closeOnce.Do(func() {
		fs.cancel()
		fs.pipe.Close()
		<-fs.done
		if fs.onClose != nil {
			fs.onClose()
		}
	})
	return nil
}

// ListCameras returns the video devices ffmpeg can open.
func ListCameras() ([]string, error) {
	var cameras []string

	if runtime.GOOS == "windows" {
		cmd := exec.Command("ffmpeg", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		// ffmpeg always fails on the dummy input; the listing is on stderr.
		_ = cmd.Run()

		cameras = parseDshowDevices(stderr.String())
	} else {
		cameras = []string{"/dev/video0", "/dev/video1"}
	}

	return cameras, nil
}

var dshowVideoDevice = regexp.MustCompile(`"([^"]+)"\s+\(video\)`)

func parseDshowDevices(output string) []string {
	var cameras []string
	seen := make(map[string]bool)

	for _, m := range dshowVideoDevice.FindAllStringSubmatch(output, -1) {
		name := m[1]
		if name != "dummy" && !seen[name] {
			cameras = append(cameras, name)
			seen[name] = true
		}
	}
	return cameras
}
