// Package config loads the fancycam service configuration.
//
// A file is optional. YAML (.yaml, .yml) and TOML (.toml) are supported and
// overlay the defaults; FANCYCAM_* environment variables are applied last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-fancycamera/pkg/audioio"
	"github.com/teslashibe/go-fancycamera/pkg/audiolevel"
	"github.com/teslashibe/go-fancycamera/pkg/camera"
	"github.com/teslashibe/go-fancycamera/pkg/preview"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

// Backend names.
const (
	BackendMock = "mock"
	BackendGoCV = "gocv"
)

// Config is the complete service configuration.
type Config struct {
	LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level"`

	Server   ServerConfig    `yaml:"server" toml:"server" json:"server"`
	Backend  BackendConfig   `yaml:"backend" toml:"backend" json:"backend"`
	Camera   camera.Settings `yaml:"camera" toml:"camera" json:"camera"`
	Audio    audioio.Config  `yaml:"audio" toml:"audio" json:"audio"`
	Metering MeteringConfig  `yaml:"metering" toml:"metering" json:"metering"`
	Analysis AnalysisConfig  `yaml:"analysis" toml:"analysis" json:"analysis"`
	Preview  preview.Config  `yaml:"preview" toml:"preview" json:"preview"`

	// Permissions granted to the service. Empty grants everything.
	Permissions []camera.Permission `yaml:"permissions" toml:"permissions" json:"permissions"`

	// Profiles replaces the built-in recording profile catalog when set.
	Profiles []profile.Profile `yaml:"profiles" toml:"profiles" json:"profiles"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port      string `yaml:"port" toml:"port" json:"port"`
	StaticDir string `yaml:"static_dir" toml:"static_dir" json:"static_dir"`
	OutputDir string `yaml:"output_dir" toml:"output_dir" json:"output_dir"`
}

// BackendConfig selects and configures the camera backend.
type BackendConfig struct {
	// Kind is "mock" or "gocv".
	Kind string `yaml:"kind" toml:"kind" json:"kind"`

	Device      int `yaml:"device" toml:"device" json:"device"`
	FrontDevice int `yaml:"front_device" toml:"front_device" json:"front_device"`
	Width       int `yaml:"width" toml:"width" json:"width"`
	Height      int `yaml:"height" toml:"height" json:"height"`
	FPS         int `yaml:"fps" toml:"fps" json:"fps"`
	JPEGQuality int `yaml:"jpeg_quality" toml:"jpeg_quality" json:"jpeg_quality"`
}

// MeteringConfig configures audio levels and the duration counter.
type MeteringConfig struct {
	// MaxReference is the amplitude reported as 0 dB.
	MaxReference float64 `yaml:"max_reference" toml:"max_reference" json:"max_reference"`

	// Interval is the period of one level sample. It sets the audio chunk
	// length when non-zero.
	Interval time.Duration `yaml:"interval" toml:"interval" json:"interval"`

	// Tick is the recording duration counter period.
	Tick time.Duration `yaml:"tick" toml:"tick" json:"tick"`
}

// AnalysisConfig configures frame analysis.
type AnalysisConfig struct {
	Workers int `yaml:"workers" toml:"workers" json:"workers"`

	// FaceModel is the YuNet ONNX model. Empty disables face detection.
	FaceModel string `yaml:"face_model" toml:"face_model" json:"face_model"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:      "8080",
			OutputDir: ".",
		},
		Backend: BackendConfig{
			Kind:        BackendMock,
			Device:      0,
			FrontDevice: -1,
			Width:       640,
			Height:      480,
			FPS:         30,
			JPEGQuality: 80,
		},
		Camera: camera.DefaultSettings(),
		Audio:  audioio.DefaultConfig(),
		Metering: MeteringConfig{
			MaxReference: audiolevel.DefaultMaxReference,
			Tick:         time.Second,
		},
		Analysis: AnalysisConfig{
			Workers: 2,
		},
		Preview: preview.DefaultConfig(),
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path loads defaults and environment only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case ".toml":
			if _, err := toml.Decode(string(data), &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		default:
			return cfg, fmt.Errorf("config: unsupported file type %q", ext)
		}
	}

	ApplyEnv(&cfg)

	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// Validate returns every problem found.
func (c *Config) Validate() []string {
	var errs []string

	if c.Server.Port == "" {
		errs = append(errs, "server.port is required")
	}
	switch c.Backend.Kind {
	case BackendMock, BackendGoCV:
	default:
		errs = append(errs, fmt.Sprintf("backend.kind must be %q or %q, got %q", BackendMock, BackendGoCV, c.Backend.Kind))
	}
	if c.Backend.Device < 0 {
		errs = append(errs, "backend.device must be >= 0")
	}
	if c.Backend.JPEGQuality < 0 || c.Backend.JPEGQuality > 100 {
		errs = append(errs, "backend.jpeg_quality must be between 0 and 100")
	}
	for _, e := range c.Camera.Validate() {
		errs = append(errs, "camera."+e)
	}
	if err := c.Audio.Validate(); err != nil {
		errs = append(errs, "audio."+err.Error())
	}
	if c.Metering.MaxReference <= 0 {
		errs = append(errs, "metering.max_reference must be positive")
	}
	if c.Metering.Interval < 0 || c.Metering.Tick < 0 {
		errs = append(errs, "metering intervals must not be negative")
	}
	if c.Analysis.Workers < 1 {
		errs = append(errs, "analysis.workers must be at least 1")
	}
	for _, p := range c.Permissions {
		switch p {
		case camera.PermissionCamera, camera.PermissionAudio, camera.PermissionStorage:
		default:
			errs = append(errs, fmt.Sprintf("unknown permission %q", p))
		}
	}
	seen := make(map[profile.Quality]bool)
	for _, p := range c.Profiles {
		if !p.Quality.Valid() {
			errs = append(errs, fmt.Sprintf("profile with invalid quality %d", int(p.Quality)))
			continue
		}
		if seen[p.Quality] {
			errs = append(errs, fmt.Sprintf("duplicate profile %s", p.Quality))
		}
		seen[p.Quality] = true
		if p.Width <= 0 || p.Height <= 0 {
			errs = append(errs, fmt.Sprintf("profile %s needs a positive size", p.Quality))
		}
	}

	return errs
}

// AudioConfig returns the audio config with the metering interval applied.
func (c *Config) AudioConfig() audioio.Config {
	a := c.Audio
	if c.Metering.Interval > 0 {
		a.BufferDuration = c.Metering.Interval
	}
	return a
}

// Catalog returns the configured profile catalog, or nil to use the
// backend's own.
func (c *Config) Catalog() *profile.StaticCatalog {
	if len(c.Profiles) == 0 {
		return nil
	}
	return profile.NewStaticCatalog(c.Profiles...)
}

// PermissionSet returns the granted permissions.
func (c *Config) PermissionSet() *camera.StaticPermissions {
	if len(c.Permissions) == 0 {
		return camera.AllPermissions()
	}
	return camera.NewStaticPermissions(c.Permissions...)
}
