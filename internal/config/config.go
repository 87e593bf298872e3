package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"bakerycam/internal/models"
)

type SourceType string

const (
	SourceWebcam SourceType = "webcam"
	SourceFFmpeg SourceType = "ffmpeg"
	SourceLocal  SourceType = "local"
)

type DetectorBackend string

const (
	BackendOpenCV      DetectorBackend = "opencv"
	BackendONNXRuntime DetectorBackend = "onnxruntime"
	BackendRemote      DetectorBackend = "remote"
)

const (
	DefaultConfigPath string = "bakerycam.yaml"
	DefaultCountsFile string = "object_counts.txt"
	DefaultModelPath  string = "best_3.onnx"
	DefaultRemoteHost string = "localhost:8080"

	envPrefix = "BAKERYCAM_"
)

type SourceConfig struct {
	Type      SourceType `yaml:"type"`
	DeviceID  string     `yaml:"device_id"`
	Path      string     `yaml:"path"`
	TargetFPS uint       `yaml:"target_fps"`
	Width     int        `yaml:"width"`
	Height    int        `yaml:"height"`
}

type DetectorConfig struct {
	Backend    DetectorBackend `yaml:"backend"`
	ModelPath  string          `yaml:"model_path"`
	Labels     []string        `yaml:"labels"`
	InputSize  int             `yaml:"input_size"`
	Confidence float32         `yaml:"confidence"`
	// CaptureConfidence is used when a frozen frame is re-detected.
	CaptureConfidence float32 `yaml:"capture_confidence"`
	IoU               float32 `yaml:"iou"`
	ORTLibraryPath    string  `yaml:"ort_library_path"`
	RemoteHost        string  `yaml:"remote_host"`
}

type DisplayConfig struct {
	Width       int `yaml:"width"`
	ThumbWidth  int `yaml:"thumb_width"`
	ThumbHeight int `yaml:"thumb_height"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type Config struct {
	Source   SourceConfig     `yaml:"source"`
	Detector DetectorConfig   `yaml:"detector"`
	Prices   map[string]int64 `yaml:"prices"`
	Currency string           `yaml:"currency"`
	// ExtraClasses extends the known class set beyond cookie, croissant and donut.
	ExtraClasses []string      `yaml:"extra_classes"`
	CountsFile   string        `yaml:"counts_file"`
	Display      DisplayConfig `yaml:"display"`
	Log          LogConfig     `yaml:"log"`
}

func NewDefaultConfig() *Config {
	prices := make(map[string]int64)
	for class, price := range models.DefaultPrices() {
		prices[string(class)] = int64(price)
	}

	labels := make([]string, 0, len(models.BuiltinClasses))
	for _, class := range models.BuiltinClasses {
		labels = append(labels, string(class))
	}

	return &Config{
		Source: SourceConfig{
			Type:      SourceWebcam,
			DeviceID:  "0",
			TargetFPS: 24,
			Width:     640,
			Height:    480,
		},
		Detector: DetectorConfig{
			Backend:           BackendOpenCV,
			ModelPath:         DefaultModelPath,
			Labels:            labels,
			InputSize:         640,
			Confidence:        0.6,
			CaptureConfidence: 0.6,
			IoU:               0.7,
			RemoteHost:        DefaultRemoteHost,
		},
		Prices:     prices,
		Currency:   "Baht",
		CountsFile: DefaultCountsFile,
		Display: DisplayConfig{
			Width:       900,
			ThumbWidth:  320,
			ThumbHeight: 240,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// LoadConfigFile reads path over the defaults, then applies .env and
// BAKERYCAM_* environment overrides. A missing file is not an error.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	// .env is optional; values already in the environment win.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Source.Type = SourceType(getEnv("SOURCE", string(c.Source.Type)))
	c.Source.DeviceID = getEnv("DEVICE", c.Source.DeviceID)
	c.Source.Path = getEnv("VIDEO_PATH", c.Source.Path)
	c.Detector.Backend = DetectorBackend(getEnv("DETECTOR", string(c.Detector.Backend)))
	c.Detector.ModelPath = getEnv("MODEL_PATH", c.Detector.ModelPath)
	c.Detector.ORTLibraryPath = getEnv("ORT_LIBRARY", c.Detector.ORTLibraryPath)
	c.Detector.RemoteHost = getEnv("REMOTE_HOST", c.Detector.RemoteHost)
	c.Detector.Confidence = getEnvAsFloat32("CONFIDENCE", c.Detector.Confidence)
	c.CountsFile = getEnv("COUNTS_FILE", c.CountsFile)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.Display.Width = getEnvAsInt("DISPLAY_WIDTH", c.Display.Width)
}

func (c *Config) Validate() error {
	switch c.Source.Type {
	case SourceWebcam:
		if c.Source.DeviceID == "" {
			return errors.Errorf("source %s needs a device_id", c.Source.Type)
		}
	case SourceFFmpeg:
		if c.Source.DeviceID == "" {
			return errors.Errorf("source %s needs a device_id", c.Source.Type)
		}
		// ffmpeg writes raw frames of exactly this size.
		if c.Source.Width <= 0 || c.Source.Height <= 0 {
			return errors.Errorf("ffmpeg source needs a positive width and height, got %dx%d", c.Source.Width, c.Source.Height)
		}
	case SourceLocal:
		if c.Source.Path == "" {
			return errors.New("local source needs a path")
		}
		if c.Source.Width <= 0 {
			return errors.Errorf("local source needs a positive width, got %d", c.Source.Width)
		}
	default:
		return errors.Errorf("unknown source: %q", c.Source.Type)
	}

	switch c.Detector.Backend {
	case BackendOpenCV, BackendONNXRuntime:
		if c.Detector.ModelPath == "" {
			return errors.Errorf("detector %s needs a model_path", c.Detector.Backend)
		}
		if len(c.Detector.Labels) == 0 {
			return errors.New("detector needs at least one label")
		}
		if c.Detector.InputSize <= 0 || c.Detector.InputSize%32 != 0 {
			return errors.Errorf("input_size must be a positive multiple of 32, got %d", c.Detector.InputSize)
		}
	case BackendRemote:
		if c.Detector.RemoteHost == "" {
			return errors.New("remote detector needs remote_host")
		}
	default:
		return errors.Errorf("unknown detector backend: %q", c.Detector.Backend)
	}

	if c.Detector.Confidence < 0 || c.Detector.Confidence > 1 {
		return errors.Errorf("confidence must be within [0, 1], got %v", c.Detector.Confidence)
	}
	if c.Detector.CaptureConfidence < 0 || c.Detector.CaptureConfidence > 1 {
		return errors.Errorf("capture_confidence must be within [0, 1], got %v", c.Detector.CaptureConfidence)
	}
	if c.Display.Width <= 0 {
		return errors.Errorf("display width must be positive, got %d", c.Display.Width)
	}
	if c.CountsFile == "" {
		return errors.New("counts_file must not be empty")
	}
	for class, price := range c.Prices {
		if price < 0 {
			return errors.Errorf("price of %s is negative", class)
		}
	}
	return nil
}

// Catalog builds the known class set and price table.
func (c *Config) Catalog() *models.Catalog {
	prices := make(models.PriceTable, len(c.Prices))
	for class, price := range c.Prices {
		prices[models.ClassOf(class)] = models.Price(price)
	}

	extra := make([]models.Class, 0, len(c.ExtraClasses))
	for _, class := range c.ExtraClasses {
		extra = append(extra, models.ClassOf(class))
	}

	return models.NewCatalog(prices, c.Currency, extra...)
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}
