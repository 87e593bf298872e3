package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakerycam/internal/models"
)

func TestLoadConfigFileMissingUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfigFile("does-not-exist.yaml")
	require.NoError(t, err)

	assert.Equal(t, SourceWebcam, cfg.Source.Type)
	assert.Equal(t, "0", cfg.Source.DeviceID)
	assert.Equal(t, BackendOpenCV, cfg.Detector.Backend)
	assert.Equal(t, []string{"cookie", "croissant", "donut"}, cfg.Detector.Labels)
	assert.InDelta(t, 0.6, cfg.Detector.Confidence, 1e-6)
	assert.Equal(t, DefaultCountsFile, cfg.CountsFile)
	assert.Equal(t, 900, cfg.Display.Width)
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "bakerycam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  type: local
  path: demo.mp4
detector:
  backend: remote
  remote_host: 10.0.0.2:9000
prices:
  donut: 20
extra_classes: [Bagel]
`), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, SourceLocal, cfg.Source.Type)
	assert.Equal(t, "demo.mp4", cfg.Source.Path)
	assert.Equal(t, BackendRemote, cfg.Detector.Backend)
	assert.Equal(t, "10.0.0.2:9000", cfg.Detector.RemoteHost)
	assert.Equal(t, int64(20), cfg.Prices["donut"])
	assert.Equal(t, int64(30), cfg.Prices["croissant"])

	catalog := cfg.Catalog()
	assert.Equal(t, []models.Class{models.Cookie, models.Croissant, models.Donut, "bagel"}, catalog.Classes())
	assert.Equal(t, models.Price(20), catalog.Prices()[models.Donut])
}

func TestLoadConfigFileMixedCaseExtraClass(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "bakerycam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
detector:
  labels: [cookie, croissant, donut, Bagel]
extra_classes: [Bagel]
prices:
  Bagel: 20
`), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	catalog := cfg.Catalog()
	label := cfg.Detector.Labels[3]
	s := catalog.Summarize([]models.Detection{
		{Label: label, ClassID: 3, Box: image.Rect(0, 0, 10, 10), Confidence: 0.9},
		{Label: "cookie", ClassID: 0, Box: image.Rect(20, 0, 30, 10), Confidence: 0.9},
	})

	assert.Equal(t, 1, s.Counts.Get("bagel"))
	assert.Empty(t, s.Other)
	assert.Equal(t, models.Price(25), s.Total)
	assert.Equal(t, "{cookie: 1, croissant: 0, donut: 0, bagel: 1}", s.Counts.String())
}

func TestLoadConfigFileEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BAKERYCAM_MODEL_PATH", "/models/bakery.onnx")
	t.Setenv("BAKERYCAM_CONFIDENCE", "0.45")
	t.Setenv("BAKERYCAM_DISPLAY_WIDTH", "not-a-number")

	cfg, err := LoadConfigFile(DefaultConfigPath)
	require.NoError(t, err)

	assert.Equal(t, "/models/bakery.onnx", cfg.Detector.ModelPath)
	assert.InDelta(t, 0.45, cfg.Detector.Confidence, 1e-6)
	assert.Equal(t, 900, cfg.Display.Width)
}

func TestLoadConfigFileRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source: [unclosed"), 0o644))

	_, err := LoadConfigFile(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown source", func(c *Config) { c.Source.Type = "usb" }, "unknown source"},
		{"local without path", func(c *Config) { c.Source.Type = SourceLocal }, "needs a path"},
		{"local without width", func(c *Config) {
			c.Source.Type = SourceLocal
			c.Source.Path = "demo.mp4"
			c.Source.Width = 0
		}, "positive width"},
		{"local probes height", func(c *Config) {
			c.Source.Type = SourceLocal
			c.Source.Path = "demo.mp4"
			c.Source.Height = 0
		}, ""},
		{"ffmpeg without height", func(c *Config) {
			c.Source.Type = SourceFFmpeg
			c.Source.Height = 0
		}, "positive width and height"},
		{"ffmpeg without width", func(c *Config) {
			c.Source.Type = SourceFFmpeg
			c.Source.Width = -1
		}, "positive width and height"},
		{"gocv webcam keeps driver size", func(c *Config) {
			c.Source.Width = 0
			c.Source.Height = 0
		}, ""},
		{"unknown backend", func(c *Config) { c.Detector.Backend = "tflite" }, "unknown detector backend"},
		{"odd input size", func(c *Config) { c.Detector.InputSize = 100 }, "multiple of 32"},
		{"no labels", func(c *Config) { c.Detector.Labels = nil }, "at least one label"},
		{"confidence", func(c *Config) { c.Detector.Confidence = 1.5 }, "confidence"},
		{"negative price", func(c *Config) { c.Prices["cookie"] = -1 }, "negative"},
		{"remote without host", func(c *Config) {
			c.Detector.Backend = BackendRemote
			c.Detector.RemoteHost = ""
		}, "remote_host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "out.yaml")

	cfg := NewDefaultConfig()
	cfg.Currency = "EUR"
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "EUR", loaded.Currency)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
