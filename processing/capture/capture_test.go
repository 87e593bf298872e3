package capture

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bakerycam/internal/config"
)

func TestReadRGBA(t *testing.T) {
	raw := make([]byte, 0, 2*2*4*2)
	for i := 0; i < 8; i++ {
		raw = append(raw, byte(i*10), byte(i*10+1), byte(i*10+2), 255)
	}
	r := bytes.NewReader(raw)

	first, err := readRGBA(r, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), first.Bounds())
	assert.Equal(t, 8, first.Stride)
	assert.Equal(t, color.RGBA{R: 30, G: 31, B: 32, A: 255}, first.RGBAAt(1, 1))

	second, err := readRGBA(r, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 40, G: 41, B: 42, A: 255}, second.RGBAAt(0, 0))

	_, err = readRGBA(r, 2, 2)
	assert.Error(t, err)
}

func TestReadRGBAShortFrame(t *testing.T) {
	_, err := readRGBA(bytes.NewReader(make([]byte, 10)), 2, 2)
	assert.ErrorContains(t, err, "read raw frame")

	_, err = readRGBA(bytes.NewReader(nil), 0, 2)
	assert.ErrorContains(t, err, "invalid frame size")
}

func TestParseProbe(t *testing.T) {
	w, h, err := parseProbe([]byte(`{"streams":[{"index":0,"codec_type":"video","width":1920,"height":1080}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	_, _, err = parseProbe([]byte(`{"streams":[]}`))
	assert.ErrorContains(t, err, "no video streams")

	_, _, err = parseProbe([]byte(`not json`))
	assert.Error(t, err)
}

func TestScaledHeight(t *testing.T) {
	assert.Equal(t, 360, scaledHeight(1920, 1080, 640))
	assert.Equal(t, 480, scaledHeight(640, 480, 640))
	assert.Equal(t, 0, scaledHeight(1000, 1, 100)%2)
}

func TestParseDshowDevices(t *testing.T) {
	out := `[dshow @ 000001] "Integrated Camera" (video)
[dshow @ 000001]   Alternative name "@device_pnp_\\?\usb"
[dshow @ 000001] "Microphone Array" (audio)
[dshow @ 000001] "Integrated Camera" (video)
[dshow @ 000001] "OBS Virtual Camera" (video)`

	assert.Equal(t, []string{"Integrated Camera", "OBS Virtual Camera"}, parseDshowDevices(out))
}

func TestNewSourceRejectsUnknownType(t *testing.T) {
	_, err := NewSource(config.SourceConfig{Type: "usb"}, zaptest.NewLogger(t).Sugar())
	assert.ErrorContains(t, err, "unknown source")
}
