package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceDesktop = "desktop"
	SourceCamera  = "camera"
)

type Config struct {
	Capture   CaptureConfig   `yaml:"capture"`
	Model     ModelConfig     `yaml:"model"`
	Display   DisplayConfig   `yaml:"display"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Log       LogConfig       `yaml:"log"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	RegServer RegServerConfig `yaml:"regServer"`
}

type CaptureConfig struct {
	Source         string        `yaml:"source"`
	TargetFPS      int           `yaml:"targetFps"`
	CameraIndex    int           `yaml:"cameraIndex"`
	AdapterIndex   int           `yaml:"adapterIndex"`
	OutputIndex    int           `yaml:"outputIndex"`
	FrameTimeout   time.Duration `yaml:"frameTimeout"`
	Cooldown       time.Duration `yaml:"cooldown"`
	RetryDelay     time.Duration `yaml:"retryDelay"`
	MaxFailures    int           `yaml:"maxFailures"`
	StepRetries    int           `yaml:"stepRetries"`
	StepRetryDelay time.Duration `yaml:"stepRetryDelay"`
	LogEvery       int64         `yaml:"logEvery"`
}

type ModelConfig struct {
	Path           string  `yaml:"path"`
	NamesPath      string  `yaml:"namesPath"`
	InputSize      int     `yaml:"inputSize"`
	Confidence     float32 `yaml:"confidence"`
	Iou            float32 `yaml:"iou"`
	Backend        string  `yaml:"backend"`
	KernelCacheDir string  `yaml:"kernelCacheDir"`
	Warmup         int     `yaml:"warmup"`
}

type DisplayConfig struct {
	Headless   bool   `yaml:"headless"`
	WindowName string `yaml:"windowName"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
}

type SnapshotConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
}

type MonitorConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	HealthPort int  `yaml:"healthPort"`
}

type RegServerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Interval time.Duration `yaml:"interval"`
}

// Load reads path, fills defaults and validates. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	c := &cfg.Capture
	if c.Source == "" {
		c.Source = SourceDesktop
	}
	c.Source = strings.ToLower(c.Source)
	if c.TargetFPS == 0 {
		if c.Source == SourceCamera {
			c.TargetFPS = 30
		} else {
			c.TargetFPS = 60
		}
	}
	if c.FrameTimeout == 0 {
		c.FrameTimeout = 100 * time.Millisecond
	}
	if c.Cooldown == 0 {
		c.Cooldown = 2 * time.Second
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 10 * time.Millisecond
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.StepRetries == 0 {
		c.StepRetries = 3
	}
	if c.StepRetryDelay == 0 {
		c.StepRetryDelay = 10 * time.Millisecond
	}
	if c.LogEvery == 0 {
		c.LogEvery = 100
	}

	m := &cfg.Model
	if m.Path == "" {
		m.Path = "model/yolo11l.onnx"
	}
	if m.NamesPath == "" {
		m.NamesPath = "model/coco.names"
	}
	if m.InputSize == 0 {
		m.InputSize = 640
	}
	if m.Confidence == 0 {
		m.Confidence = 0.5
	}
	if m.Iou == 0 {
		m.Iou = 0.4
	}
	if m.Backend == "" {
		m.Backend = "auto"
	}
	if m.KernelCacheDir == "" {
		m.KernelCacheDir = "kernel_cache"
	}

	if cfg.Display.WindowName == "" {
		cfg.Display.WindowName = "YOLO Detection"
	}
	if cfg.Snapshot.Dir == "" {
		cfg.Snapshot.Dir = "snapshots"
	}
	if cfg.Snapshot.Interval == 0 {
		cfg.Snapshot.Interval = 5 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}

	if cfg.Monitor.Port == 0 {
		cfg.Monitor.Port = 9100
	}
	if cfg.Monitor.HealthPort == 0 {
		cfg.Monitor.HealthPort = 50051
	}
	if cfg.RegServer.Interval == 0 {
		cfg.RegServer.Interval = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	switch c.Capture.Source {
	case SourceDesktop, SourceCamera:
	default:
		return fmt.Errorf("capture.source must be %q or %q, got %q", SourceDesktop, SourceCamera, c.Capture.Source)
	}
	if c.Capture.TargetFPS < 0 {
		return fmt.Errorf("capture.targetFps must be positive, got %d", c.Capture.TargetFPS)
	}
	if c.Capture.MaxFailures < 1 || c.Capture.StepRetries < 1 {
		return errors.New("capture.maxFailures and capture.stepRetries must be at least 1")
	}
	if c.Model.InputSize <= 0 || c.Model.InputSize%32 != 0 {
		return fmt.Errorf("model.inputSize must be a positive multiple of 32, got %d", c.Model.InputSize)
	}
	if c.Model.Confidence <= 0 || c.Model.Confidence >= 1 {
		return fmt.Errorf("model.confidence must be in (0,1), got %v", c.Model.Confidence)
	}
	if c.Model.Iou <= 0 || c.Model.Iou >= 1 {
		return fmt.Errorf("model.iou must be in (0,1), got %v", c.Model.Iou)
	}
	if c.RegServer.Enabled && c.RegServer.Host == "" {
		return errors.New("regServer.host is required when regServer is enabled")
	}
	return nil
}
