// Package config loads the mudra configuration from YAML.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Threshold bounds exposed by the control surface.
const (
	MinThreshold     = 0.1
	MaxThreshold     = 1.0
	ThresholdStep    = 0.05
	DefaultThreshold = 0.35
)

// DefaultModelPath is a placeholder; operators must point it at their exported model.
const DefaultModelPath = "models/best.onnx"

// ErrInvalid is wrapped by every validation failure returned from Load.
var ErrInvalid = errors.New("invalid config")

// ModelConfig describes the pretrained detector artifact.
type ModelConfig struct {
	Path         string   `yaml:"path"`
	LabelsPath   string   `yaml:"labels_path"` // optional, one class name per line
	Labels       []string `yaml:"labels"`      // optional inline class names
	InputSize    int      `yaml:"input_size"`
	NMSThreshold float64  `yaml:"nms_threshold"`
}

// CameraConfig describes the frame source.
// Device is a camera index ("0") or a video file path.
type CameraConfig struct {
	Device      string `yaml:"device"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	FPS         int    `yaml:"fps"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// DashboardConfig describes the control surface.
type DashboardConfig struct {
	Addr             string  `yaml:"addr"`
	StaticDir        string  `yaml:"static_dir"`
	Tray             bool    `yaml:"tray"`
	DefaultThreshold float64 `yaml:"default_threshold"`
}

// Config aggregates all application configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Camera    CameraConfig    `yaml:"camera"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	LogLevel  string          `yaml:"log_level"`
}

// Default returns a Config with every field at its default value.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Path:         DefaultModelPath,
			InputSize:    640,
			NMSThreshold: 0.45,
		},
		Camera: CameraConfig{
			Device:      "0",
			Width:       640,
			Height:      480,
			FPS:         30,
			JPEGQuality: 80,
		},
		Dashboard: DashboardConfig{
			Addr:             ":8080",
			DefaultThreshold: DefaultThreshold,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file and returns the configuration with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Discover finds and loads the configuration file.
// It checks MUDRA_CONFIG, then "mudra.yaml", "configs/mudra.yaml" and ~/.mudra/config.yaml.
// When no file exists the defaults are returned. MUDRA_MODEL overrides the model path.
func Discover() (*Config, string, error) {
	var (
		cfg  *Config
		path string
		err  error
	)

	path = findConfigFile()
	if path != "" {
		cfg, err = Load(path)
		if err != nil {
			return nil, path, err
		}
	} else {
		cfg = Default()
	}

	if model := os.Getenv("MUDRA_MODEL"); model != "" {
		cfg.Model.Path = model
	}

	return cfg, path, nil
}

func findConfigFile() string {
	if p := os.Getenv("MUDRA_CONFIG"); p != "" {
		return p
	}

	candidates := []string{"mudra.yaml", filepath.Join("configs", "mudra.yaml")}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".mudra", "config.yaml"))
	}

	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func (c *Config) applyDefaults() error {
	d := Default()

	if c.Model.Path == "" {
		c.Model.Path = d.Model.Path
	}
	if c.Model.InputSize == 0 {
		c.Model.InputSize = d.Model.InputSize
	}
	if c.Model.InputSize < 0 {
		return fmt.Errorf("%w: model.input_size must be > 0, got %d", ErrInvalid, c.Model.InputSize)
	}
	if c.Model.NMSThreshold == 0 {
		c.Model.NMSThreshold = d.Model.NMSThreshold
	}
	if c.Model.NMSThreshold < 0 || c.Model.NMSThreshold > 1 {
		return fmt.Errorf("%w: model.nms_threshold must be in (0, 1], got %.2f", ErrInvalid, c.Model.NMSThreshold)
	}

	if c.Camera.Device == "" {
		c.Camera.Device = d.Camera.Device
	}
	if c.Camera.Width <= 0 {
		c.Camera.Width = d.Camera.Width
	}
	if c.Camera.Height <= 0 {
		c.Camera.Height = d.Camera.Height
	}
	if c.Camera.FPS <= 0 {
		c.Camera.FPS = d.Camera.FPS
	}
	if c.Camera.JPEGQuality == 0 {
		c.Camera.JPEGQuality = d.Camera.JPEGQuality
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		return fmt.Errorf("%w: camera.jpeg_quality must be between 1 and 100, got %d", ErrInvalid, c.Camera.JPEGQuality)
	}

	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = d.Dashboard.Addr
	}
	if c.Dashboard.DefaultThreshold == 0 {
		c.Dashboard.DefaultThreshold = d.Dashboard.DefaultThreshold
	}
	if c.Dashboard.DefaultThreshold < MinThreshold || c.Dashboard.DefaultThreshold > MaxThreshold {
		return fmt.Errorf("%w: dashboard.default_threshold must be between %.2f and %.2f, got %.2f",
			ErrInvalid, MinThreshold, MaxThreshold, c.Dashboard.DefaultThreshold)
	}

	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}

	return nil
}

// ClassNames returns the model class names.
// Inline labels win over LabelsPath. A missing labels file is not an error.
func (m ModelConfig) ClassNames() ([]string, error) {
	if len(m.Labels) > 0 {
		return m.Labels, nil
	}
	if m.LabelsPath == "" {
		return nil, nil
	}

	f, err := os.Open(m.LabelsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open labels file: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels file: %w", err)
	}

	return names, nil
}
