// Package app assembles the fancycam service from its configuration: camera
// backend, audio source, analysis features, controller, preview publisher
// and web server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-fancycamera/internal/config"
	"github.com/teslashibe/go-fancycamera/pkg/analysis/facedetect"
	"github.com/teslashibe/go-fancycamera/pkg/audioio"
	"github.com/teslashibe/go-fancycamera/pkg/camera"
	"github.com/teslashibe/go-fancycamera/pkg/camera/gocvcam"
	"github.com/teslashibe/go-fancycamera/pkg/capability"
	"github.com/teslashibe/go-fancycamera/pkg/preview"
	"github.com/teslashibe/go-fancycamera/pkg/web"
)

// App is the running service.
type App struct {
	config config.Config
	logger *slog.Logger

	backend    camera.Camera
	audio      audioio.Source
	registry   *capability.Registry
	controller *camera.Controller
	preview    *preview.Publisher
	server     *web.Server
}

// New validates cfg and creates an uninitialized App.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %v", errs)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{config: cfg, logger: logger}, nil
}

// NewBackend builds the camera backend named by cfg.Backend.Kind.
func NewBackend(cfg config.Config, logger *slog.Logger) (camera.Camera, error) {
	switch cfg.Backend.Kind {
	case config.BackendMock:
		var opts []camera.MockOption
		if cat := cfg.Catalog(); cat != nil {
			opts = append(opts, camera.WithCatalog(cat))
		}
		if cfg.Backend.Width > 0 && cfg.Backend.Height > 0 {
			opts = append(opts, camera.WithFrameSize(camera.Size{Width: cfg.Backend.Width, Height: cfg.Backend.Height}))
		}
		return camera.NewMockCamera(opts...), nil
	case config.BackendGoCV:
		return gocvcam.New(gocvcam.Config{
			BackDevice:  cfg.Backend.Device,
			FrontDevice: cfg.Backend.FrontDevice,
			Width:       cfg.Backend.Width,
			Height:      cfg.Backend.Height,
			FPS:         cfg.Backend.FPS,
			JPEGQuality: cfg.Backend.JPEGQuality,
			Catalog:     cfg.Catalog(),
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend.Kind)
	}
}

// Init builds every component. Call it after New and before Run.
func (a *App) Init() error {
	backend, err := NewBackend(a.config, a.logger)
	if err != nil {
		return err
	}
	a.backend = backend

	if a.config.Camera.AudioLevelsEnabled {
		src, err := audioio.NewSource(a.config.AudioConfig(), a.logger)
		if err != nil {
			a.logger.Warn("audio levels unavailable", "error", err)
		} else {
			a.audio = src
		}
	}

	a.registry = capability.NewRegistry()
	if model := a.config.Analysis.FaceModel; model != "" {
		fcfg := facedetect.DefaultConfig()
		fcfg.ModelPath = model
		det, err := facedetect.New(fcfg)
		if err != nil {
			a.logger.Warn("face detection unavailable", "error", err)
		} else if err := a.registry.Register(det); err != nil {
			det.Close()
			return err
		}
	}

	settings := a.config.Camera
	a.controller, err = camera.NewController(camera.ControllerConfig{
		Backend:      a.backend,
		Settings:     &settings,
		Permissions:  a.config.PermissionSet(),
		Audio:        a.audio,
		MaxReference: a.config.Metering.MaxReference,
		Registry:     a.registry,
		Workers:      a.config.Analysis.Workers,
		OutputDir:    a.config.Server.OutputDir,
		TickInterval: a.config.Metering.Tick,
		Logger:       a.logger,
	})
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	pcfg := a.config.Preview
	pcfg.Logger = a.logger
	a.preview = preview.New(pcfg)

	a.server, err = web.NewServer(web.Config{
		Addr:       ":" + a.config.Server.Port,
		Controller: a.controller,
		Preview:    a.preview,
		StaticDir:  a.config.Server.StaticDir,
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}

	a.logger.Info("initialized",
		"backend", a.backend.Name(),
		"features", a.registry.Features(),
		"audio", a.audio != nil)
	return nil
}

// Controller returns the camera controller. Valid after Init.
func (a *App) Controller() *camera.Controller {
	return a.controller
}

// Run opens the camera, starts the preview and serves until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.controller == nil {
		return errors.New("app: Run called before Init")
	}
	if err := a.controller.Open(ctx); err != nil {
		return err
	}
	if err := a.controller.StartPreview(ctx); err != nil {
		return err
	}
	return a.server.Run(ctx)
}

// Shutdown releases every component.
func (a *App) Shutdown() error {
	var errs []error
	if a.server != nil {
		errs = append(errs, a.server.Close())
	}
	if a.controller != nil {
		// Release closes the audio source too.
		errs = append(errs, a.controller.Release())
	} else if a.audio != nil {
		errs = append(errs, a.audio.Close())
	}
	if a.registry != nil {
		errs = append(errs, a.registry.Close())
	}
	if r, ok := a.backend.(interface{ Release() error }); ok {
		errs = append(errs, r.Release())
	}
	return errors.Join(errs...)
}
