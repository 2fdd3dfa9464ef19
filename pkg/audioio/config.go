// Package audioio provides microphone capture for audio-level metering.
//
// Backends:
//   - ffmpeg - captures the default input device through an ffmpeg child
//     process emitting raw PCM16 (avfoundation on macOS, alsa on Linux)
//   - Mock - synthetic silence, sine or scripted peaks for CI and demos
//
// The backend is selected from configuration, or automatically when set to "auto".
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto picks ffmpeg when it is installed, otherwise mock.
	BackendAuto Backend = "auto"
	// BackendFFmpeg captures through an ffmpeg child process.
	BackendFFmpeg Backend = "ffmpeg"
	// BackendMock uses a synthetic source.
	BackendMock Backend = "mock"
)

// MaxPCM16 is the largest magnitude a signed 16-bit sample can hold.
const MaxPCM16 = 32767

// Config holds audio capture configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend" toml:"backend"`

	// SampleRate is the capture rate in Hz.
	// Default: 8000, enough for level metering
	SampleRate int `yaml:"sample_rate" json:"sample_rate" toml:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels" toml:"channels"`

	// BufferDuration is the size of one chunk. Each chunk yields one level sample.
	// Default: 100ms
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration" toml:"buffer_duration"`

	// Device is the platform-specific input device.
	// Examples:
	//   - ffmpeg on macOS: ":default", ":0"
	//   - ffmpeg on Linux: "default", "hw:1,0"
	//   - Mock: ignored
	Device string `yaml:"device" json:"device" toml:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     8000,
		Channels:       1,
		BufferDuration: 100 * time.Millisecond,
		Device:         "",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	switch c.Backend {
	case "", BackendAuto, BackendFFmpeg, BackendMock:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// BufferSize returns the number of frames per chunk.
func (c *Config) BufferSize() int {
	n := int(float64(c.SampleRate) * c.BufferDuration.Seconds())
	if n < 1 {
		return 1
	}
	return n
}

// BufferBytes returns the size of a chunk in bytes (int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
