// Package config provides configuration management for deepfakery.
// It loads configuration from YAML files with sensible defaults and lets
// a handful of environment variables override the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultModelURL is where the inswapper model is fetched from on first use.
const DefaultModelURL = "https://www.dropbox.com/scl/fi/tx59r655h4ke5414s80o3/inswapper_128.onnx?" +
	"rlkey=p9ktqp27w1bxzc3s30dzb9832&st=du2h5t6t&dl=1"

// DefaultModelPath is the fixed local filename of the swap model.
const DefaultModelPath = "inswapper_128.onnx"

// Config holds all deepfakery configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Engine    EngineConfig    `yaml:"engine"`
	Detection DetectionConfig `yaml:"detection"`
	Video     VideoConfig     `yaml:"video"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ModelConfig describes the swap model artifact.
type ModelConfig struct {
	URL  string `yaml:"url"`
	Path string `yaml:"path"`
	// Checksum is optional, "<algo>:<hex>" with algo sha256, blake2b-256 or sha3-256.
	Checksum string `yaml:"checksum"`
	// Timeout in seconds for the download. 0 means no timeout.
	Timeout int `yaml:"timeout"`
}

// EngineConfig describes the inference worker process.
type EngineConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// Pack is the face-analysis model pack the worker loads.
	Pack    string `yaml:"pack"`
	DetSize int    `yaml:"det_size"`
	// Backend is an acceleration backend: auto, cpu, rocm, cuda, openvino.
	Backend string `yaml:"backend"`
}

// DetectionConfig selects and tunes the detector used for main faces.
type DetectionConfig struct {
	Backend     string            `yaml:"backend"`
	Dlib        DlibConfig        `yaml:"dlib"`
	Pigo        PigoConfig        `yaml:"pigo"`
	Rekognition RekognitionConfig `yaml:"rekognition"`
	// DebugDir, when set, receives annotated copies of analysed images.
	DebugDir string `yaml:"debug_dir"`
}

// DlibConfig holds go-face settings.
type DlibConfig struct {
	ModelDir string `yaml:"model_dir"`
	UseCNN   bool   `yaml:"use_cnn"`
}

// PigoConfig holds cascade detector settings.
type PigoConfig struct {
	Cascade      string  `yaml:"cascade"`
	MinSize      int     `yaml:"min_size"`
	MaxSize      int     `yaml:"max_size"`
	ShiftFactor  float64 `yaml:"shift_factor"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	IouThreshold float64 `yaml:"iou_threshold"`
	MinQuality   float64 `yaml:"min_quality"`
}

// RekognitionConfig holds AWS settings.
type RekognitionConfig struct {
	Region        string  `yaml:"region"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// VideoConfig holds video encoding and progress settings.
type VideoConfig struct {
	Codec            string `yaml:"codec"`
	ProgressInterval int    `yaml:"progress_interval"`
	ProgressBar      bool   `yaml:"progress_bar"`
	// DebugEvery saves an annotated frame every N frames when detection.debug_dir is set.
	DebugEvery int `yaml:"debug_every"`
}

// NotifyConfig controls desktop notifications when a job finishes.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// envOverrides lists the variables that take precedence over the YAML file.
type envOverrides struct {
	ModelURL      string `env:"DEEPFAKERY_MODEL_URL"`
	ModelPath     string `env:"DEEPFAKERY_MODEL_PATH"`
	ModelChecksum string `env:"DEEPFAKERY_MODEL_CHECKSUM"`
	EngineCommand string `env:"DEEPFAKERY_ENGINE_COMMAND"`
	EngineBackend string `env:"DEEPFAKERY_ENGINE_BACKEND"`
	Detector      string `env:"DEEPFAKERY_DETECTOR"`
	LogLevel      string `env:"DEEPFAKERY_LOG_LEVEL"`
	AWSRegion     string `env:"AWS_REGION"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local/share/deepfakery")
	return &Config{
		Model: ModelConfig{
			URL:  DefaultModelURL,
			Path: DefaultModelPath,
		},
		Engine: EngineConfig{
			Command: "deepfakery-engine",
			Pack:    "buffalo_l",
			DetSize: 640,
			Backend: "auto",
		},
		Detection: DetectionConfig{
			Backend: "engine",
			Dlib: DlibConfig{
				ModelDir: filepath.Join(dataDir, "models"),
			},
			Pigo: PigoConfig{
				Cascade:      filepath.Join(dataDir, "cascade", "facefinder"),
				MinSize:      20,
				MaxSize:      1000,
				ShiftFactor:  0.1,
				ScaleFactor:  1.1,
				IouThreshold: 0.2,
				MinQuality:   5.0,
			},
			Rekognition: RekognitionConfig{
				Region:        "us-east-1",
				MinConfidence: 90,
			},
		},
		Video: VideoConfig{
			Codec:            "mp4v",
			ProgressInterval: 10,
			ProgressBar:      true,
			DebugEvery:       30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the specified file on top of the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return config, nil
}

// LoadDefault tries to load configuration from default locations.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat("/etc/deepfakery/deepfakery.yaml"); err == nil {
		return Load("/etc/deepfakery/deepfakery.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfig(), nil
	}

	userConfig := filepath.Join(homeDir, ".config/deepfakery/deepfakery.yaml")
	if _, err := os.Stat(userConfig); err == nil {
		return Load(userConfig)
	}

	return DefaultConfig(), nil
}

// ApplyEnv overrides fields from the environment. A .env file in the
// working directory is loaded first if present; real variables win over it.
func (c *Config) ApplyEnv() error {
	_ = godotenv.Load()

	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Model.URL, o.ModelURL)
	set(&c.Model.Path, o.ModelPath)
	set(&c.Model.Checksum, o.ModelChecksum)
	set(&c.Engine.Command, o.EngineCommand)
	set(&c.Engine.Backend, o.EngineBackend)
	set(&c.Detection.Backend, o.Detector)
	set(&c.Logging.Level, o.LogLevel)
	set(&c.Detection.Rekognition.Region, o.AWSRegion)
	return nil
}

// ExpandHome expands a leading ~ to the user's home directory and leaves
// every other character alone. User-supplied job paths go through this.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[1:])
		}
	}
	return path
}

// ExpandPath expands ~ and environment variables in a configured path.
func ExpandPath(path string) string {
	return os.ExpandEnv(ExpandHome(path))
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Model.Path = ExpandPath(c.Model.Path)
	c.Engine.Command = ExpandPath(c.Engine.Command)
	c.Detection.Dlib.ModelDir = ExpandPath(c.Detection.Dlib.ModelDir)
	c.Detection.Pigo.Cascade = ExpandPath(c.Detection.Pigo.Cascade)
	c.Detection.DebugDir = ExpandPath(c.Detection.DebugDir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

var (
	validDetectors = map[string]bool{"engine": true, "dlib": true, "pigo": true, "rekognition": true}
	validBackends  = map[string]bool{"auto": true, "cpu": true, "rocm": true, "cuda": true, "openvino": true}
	validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validChecksums = map[string]bool{"sha256": true, "blake2b-256": true, "sha3-256": true}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Model.URL == "" {
		return fmt.Errorf("model.url must be set")
	}
	if c.Model.Path == "" {
		return fmt.Errorf("model.path must be set")
	}
	if c.Model.Timeout < 0 {
		return fmt.Errorf("model.timeout must not be negative, got %d", c.Model.Timeout)
	}
	if c.Model.Checksum != "" {
		algo, sum, ok := strings.Cut(c.Model.Checksum, ":")
		if !ok || sum == "" || !validChecksums[algo] {
			return fmt.Errorf("invalid model.checksum %q (want sha256:, blake2b-256: or sha3-256: followed by hex)", c.Model.Checksum)
		}
	}

	if c.Engine.Command == "" {
		return fmt.Errorf("engine.command must be set")
	}
	if c.Engine.DetSize <= 0 {
		return fmt.Errorf("engine.det_size must be positive, got %d", c.Engine.DetSize)
	}
	if !validBackends[c.Engine.Backend] {
		return fmt.Errorf("invalid engine.backend: %s (must be auto, cpu, rocm, cuda or openvino)", c.Engine.Backend)
	}

	if !validDetectors[c.Detection.Backend] {
		return fmt.Errorf("invalid detection.backend: %s (must be engine, dlib, pigo or rekognition)", c.Detection.Backend)
	}
	if c.Detection.Pigo.ScaleFactor <= 1 {
		return fmt.Errorf("detection.pigo.scale_factor must be greater than 1, got %f", c.Detection.Pigo.ScaleFactor)
	}
	if c.Detection.Rekognition.MinConfidence < 0 || c.Detection.Rekognition.MinConfidence > 100 {
		return fmt.Errorf("detection.rekognition.min_confidence must be between 0 and 100, got %f", c.Detection.Rekognition.MinConfidence)
	}

	if len(c.Video.Codec) != 4 {
		return fmt.Errorf("video.codec must be a four character code, got %q", c.Video.Codec)
	}
	if c.Video.ProgressInterval <= 0 {
		return fmt.Errorf("video.progress_interval must be positive, got %d", c.Video.ProgressInterval)
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}
