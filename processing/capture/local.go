package capture

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

const standardFPS uint = 30

// OpenLocalFile plays a video file in a loop, paced to targetFPS.
// A zero height keeps the file's aspect ratio for the given width.
func OpenLocalFile(path string, targetFPS uint, width, height int, logger *zap.SugaredLogger) (*FFmpegSource, error) {
	if targetFPS == 0 {
		targetFPS = standardFPS
	}

	if height <= 0 {
		w, h, err := probeVideoDimensions(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to probe video")
		}
		height = scaledHeight(w, h, width)
	}

	stream := ffmpeg.Input(path, ffmpeg.KwArgs{"stream_loop": -1}).
		Output("pipe:", outputArgs(targetFPS, width, height))

	logger.Infow("playing local video", "path", path, "fps", targetFPS, "width", width, "height", height)

	fs := startFFmpeg(stream, width, height, logger)
	ticker := time.NewTicker(time.Second / time.Duration(targetFPS))
	fs.onClose = ticker.Stop
	fs.pace = func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			return nil
		}
	}
	return fs, nil
}

type probeData struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

func probeVideoDimensions(path string) (int, int, error) {
	out, err := ffmpeg.Probe(path, ffmpeg.KwArgs{"select_streams": "v:0"})
	if err != nil {
		return 0, 0, err
	}
	return parseProbe([]byte(out))
}

func parseProbe(out []byte) (int, int, error) {
	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return 0, 0, errors.Wrap(err, "decode ffprobe output")
	}

	if len(data.Streams) == 0 {
		return 0, 0, errors.New("no video streams found")
	}

	s := data.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return 0, 0, errors.Errorf("bad video size %dx%d", s.Width, s.Height)
	}
	return s.Width, s.Height, nil
}

// scaledHeight keeps the aspect ratio of w x h at width, rounded to an even number for ffmpeg.
func scaledHeight(w, h, width int) int {
	height := (h*width + w/2) / w
	if height%2 == 1 {
		height++
	}
	return height
}
