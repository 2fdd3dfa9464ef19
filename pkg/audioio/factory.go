package audioio

import (
	"fmt"
	"log/slog"
)

// NewSource creates a new audio source with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto || backend == "" {
		backend = detectBestBackend()
	}

	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendFFmpeg:
		return newFFmpegSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns ffmpeg when it is installed.
func detectBestBackend() Backend {
	if CheckFFmpeg() == nil {
		return BackendFFmpeg
	}
	return BackendMock
}

// AvailableBackends returns the list of backends usable on this machine.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if CheckFFmpeg() == nil {
		backends = append(backends, BackendFFmpeg)
	}
	return backends
}
