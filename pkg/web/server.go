// Package web serves the camera controller over HTTP and websockets.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-fancycamera/pkg/analysis"
	"github.com/teslashibe/go-fancycamera/pkg/audiolevel"
	"github.com/teslashibe/go-fancycamera/pkg/camera"
	"github.com/teslashibe/go-fancycamera/pkg/hub"
	"github.com/teslashibe/go-fancycamera/pkg/orientation"
	"github.com/teslashibe/go-fancycamera/pkg/preview"
)

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// Controller is the camera being served. Required.
	Controller *camera.Controller

	// Preview streams frames to WebRTC viewers. nil disables
	// /api/preview/offer.
	Preview *preview.Publisher

	// StaticDir is served at / when set.
	StaticDir string

	Logger *slog.Logger
}

// Server is the camera HTTP service.
type Server struct {
	app        *fiber.App
	addr       string
	controller *camera.Controller
	preview    *preview.Publisher
	logger     *slog.Logger

	// Hubs for websocket broadcast
	statusHub   *hub.Hub
	levelHub    *hub.Hub
	analysisHub *hub.Hub

	removeSink func()

	// baseCtx outlives requests; it bounds the preview pump and recordings.
	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewServer creates the server and hooks it into the controller's events,
// audio levels and analysis results.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("web: controller is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	baseCtx, baseCancel := context.WithCancel(context.Background())
	s := &Server{
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
		addr:        cfg.Addr,
		controller:  cfg.Controller,
		preview:     cfg.Preview,
		logger:      logger,
		statusHub:   hub.New("status", logger),
		levelHub:    hub.New("levels", logger),
		analysisHub: hub.New("analysis", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "fancycam",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/settings", s.handleGetSettings)
	api.Put("/settings", s.handleUpdateSettings)
	api.Get("/presets", s.handlePresets)
	api.Get("/profiles", s.handleProfiles)
	api.Get("/profiles/:quality", s.handleProfile)
	api.Get("/capabilities", s.handleCapabilities)
	api.Get("/picture-sizes", s.handlePictureSizes)
	api.Post("/orientation", s.handleOrientation)
	api.Post("/open", s.handleOpen)
	api.Post("/close", s.handleClose)
	api.Post("/toggle", s.handleToggle)
	api.Post("/preview/start", s.handlePreviewStart)
	api.Post("/preview/stop", s.handlePreviewStop)
	api.Post("/preview/offer", s.handlePreviewOffer)
	api.Post("/photo", s.handlePhoto)
	api.Post("/recording/start", s.handleRecordingStart)
	api.Post("/recording/stop", s.handleRecordingStop)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/levels", websocket.New(s.serveHub(s.levelHub)))
	app.Get("/ws/analysis", websocket.New(s.serveHub(s.analysisHub)))

	s.app = app

	s.controller.SetListener(&eventBridge{hub: s.statusHub})
	s.controller.SetLevelListener(func(l audiolevel.Level) {
		s.levelHub.BroadcastEvent("level", l)
	})
	for _, f := range s.controller.Registry().Features() {
		feature := f
		s.controller.Dispatcher().SetListener(feature, analysis.CallbackFuncs{
			Success: func(result string) {
				s.analysisHub.BroadcastEvent("analysis", AnalysisResult{
					Feature: string(feature),
					Result:  json.RawMessage(result),
				})
			},
			Error: func(message string, err error) {
				s.analysisHub.BroadcastEvent("analysis_error", fiber.Map{
					"feature": string(feature),
					"message": message,
					"error":   err.Error(),
				})
			},
		})
	}
	if s.preview != nil {
		s.removeSink = s.controller.AddFrameSink(s.preview.Publish)
	}

	return s, nil
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// StatusHub returns the hub behind /ws/status.
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// Run starts the hubs and serves on the configured address until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.statusHub.Run(ctx)
	go s.levelHub.Run(ctx)
	go s.analysisHub.Run(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown failed", "error", err)
		}
	}()

	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Close detaches the server from the controller and the preview publisher.
func (s *Server) Close() error {
	s.baseCancel()
	if s.removeSink != nil {
		s.removeSink()
	}
	s.controller.SetListener(nil)
	s.controller.SetLevelListener(nil)
	if s.preview != nil {
		return s.preview.Close()
	}
	return nil
}

func (s *Server) background() context.Context {
	return s.baseCtx
}

// StreamStats describes one websocket stream.
type StreamStats struct {
	Clients int   `json:"clients"`
	Dropped int64 `json:"dropped"`
}

// StatusResponse is the controller status plus the state of each stream.
type StatusResponse struct {
	camera.Status
	Streams map[string]StreamStats `json:"streams"`
}

func (s *Server) status() StatusResponse {
	streams := make(map[string]StreamStats, 3)
	for name, h := range map[string]*hub.Hub{
		"status":   s.statusHub,
		"levels":   s.levelHub,
		"analysis": s.analysisHub,
	} {
		streams[name] = StreamStats{Clients: h.ClientCount(), Dropped: h.Dropped()}
	}
	return StatusResponse{Status: s.controller.Status(), Streams: streams}
}

// AnalysisResult is the payload of "analysis" events.
type AnalysisResult struct {
	Feature string          `json:"feature"`
	Result  json.RawMessage `json:"result"`
}

// eventBridge forwards controller events to the status hub.
type eventBridge struct {
	hub *hub.Hub
}

func (b *eventBridge) OnReady()       { b.hub.BroadcastEvent("ready", nil) }
func (b *eventBridge) OnCameraOpen()  { b.hub.BroadcastEvent("camera_open", nil) }
func (b *eventBridge) OnCameraClose() { b.hub.BroadcastEvent("camera_close", nil) }
func (b *eventBridge) OnVideoStart()  { b.hub.BroadcastEvent("video_start", nil) }

func (b *eventBridge) OnPhoto(p camera.Photo) {
	b.hub.BroadcastEvent("photo", p)
}

func (b *eventBridge) OnVideo(r camera.Recording) {
	b.hub.BroadcastEvent("video", r)
}

func (b *eventBridge) OnOrientation(_, next orientation.Bucket) {
	b.hub.BroadcastEvent("orientation", fiber.Map{"orientation": next.Degrees()})
}

func (b *eventBridge) OnError(message string, err error) {
	payload := fiber.Map{"message": message}
	if err != nil {
		payload["error"] = err.Error()
	}
	b.hub.BroadcastEvent("error", payload)
}
