package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-fancycamera/pkg/camera"
	"github.com/teslashibe/go-fancycamera/pkg/capability"
	"github.com/teslashibe/go-fancycamera/pkg/hub"
	"github.com/teslashibe/go-fancycamera/pkg/orientation"
	"github.com/teslashibe/go-fancycamera/pkg/preview"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orientation.ErrInvalidInput),
		errors.Is(err, capability.ErrInvalidOptions):
		return fiber.StatusBadRequest
	case errors.Is(err, camera.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, profile.ErrNoProfileAvailable),
		errors.Is(err, capability.ErrUnsupported):
		return fiber.StatusNotFound
	case errors.Is(err, camera.ErrNotOpen),
		errors.Is(err, camera.ErrAlreadyRecording),
		errors.Is(err, camera.ErrNotRecording):
		return fiber.StatusConflict
	case errors.Is(err, preview.ErrTooManyPeers):
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// handleStatus returns the controller snapshot and stream counters
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.controller.Settings().Get())
}

// handleUpdateSettings applies a partial settings map, e.g.
// {"preset": "selfie", "zoom": 0.5}
func (s *Server) handleUpdateSettings(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	if err := s.controller.Settings().Update(params); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	settings := s.controller.Settings().Get()
	s.statusHub.BroadcastEvent("settings", settings)
	return c.JSON(settings)
}

func (s *Server) handlePresets(c *fiber.Ctx) error {
	return c.JSON(camera.Presets())
}

// ResolvedProfile pairs a requested quality with its resolution.
type ResolvedProfile struct {
	Requested profile.Quality  `json:"requested"`
	Profile   *profile.Profile `json:"profile,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// handleProfiles resolves every quality against the backend's catalog
func (s *Server) handleProfiles(c *fiber.Ctx) error {
	out := make([]ResolvedProfile, 0, len(profile.Qualities()))
	for _, q := range profile.Qualities() {
		r := ResolvedProfile{Requested: q}
		if p, err := s.controller.Resolver().Resolve(q); err != nil {
			r.Error = err.Error()
		} else {
			r.Profile = &p
		}
		out = append(out, r)
	}
	return c.JSON(out)
}

func (s *Server) handleProfile(c *fiber.Ctx) error {
	q, err := profile.ParseQuality(c.Params("quality"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	p, err := s.controller.Resolver().Resolve(q)
	if err != nil {
		return fail(c, statusFor(err), err)
	}
	return c.JSON(ResolvedProfile{Requested: q, Profile: &p})
}

// handleCapabilities returns the backend capabilities and the current
// options of each registered analysis feature.
func (s *Server) handleCapabilities(c *fiber.Ctx) error {
	reg := s.controller.Registry()
	options := make(map[string]interface{})
	for _, f := range reg.Features() {
		if opts, ok := reg.Options(f); ok {
			options[string(f)] = opts
		}
	}
	return c.JSON(fiber.Map{
		"capabilities":  s.controller.Capabilities(),
		"options":       options,
		"detector_type": s.controller.Dispatcher().DetectorType(),
	})
}

func (s *Server) handlePictureSizes(c *fiber.Ctx) error {
	ratio := c.Query("ratio", s.controller.Settings().Get().DisplayRatio)
	sizes := s.controller.AvailablePictureSizes(ratio)
	if sizes == nil {
		sizes = []camera.Size{}
	}
	return c.JSON(fiber.Map{"ratio": ratio, "sizes": sizes})
}

// OrientationRequest is the body of POST /api/orientation.
type OrientationRequest struct {
	Degrees *int `json:"degrees"`
}

// handleOrientation feeds one sensor reading
func (s *Server) handleOrientation(c *fiber.Ctx) error {
	var req OrientationRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	if req.Degrees == nil {
		return fail(c, fiber.StatusBadRequest, errors.New("degrees is required"))
	}

	b, changed, err := s.controller.ApplyOrientation(*req.Degrees)
	if err != nil {
		return fail(c, statusFor(err), err)
	}
	return c.JSON(fiber.Map{
		"orientation": b.Degrees(),
		"changed":     changed,
	})
}

func (s *Server) handleOpen(c *fiber.Ctx) error {
	if err := s.controller.Open(c.UserContext()); err != nil {
		return fail(c, statusFor(err), err)
	}
	return c.JSON(s.controller.Status())
}

func (s *Server) handleClose(c *fiber.Ctx) error {
	if err := s.controller.Close(); err != nil {
		return fail(c, statusFor(err), err)
	}
	return c.JSON(s.controller.Status())
}

func (s *Server) handleToggle(c *fiber.Ctx) error {
	if err := s.controller.ToggleCamera(c.UserContext()); err != nil {
		return fail(c, statusFor(err), err)
	}
	return c.JSON(fiber.Map{"position": s.controller.Settings().Get().Position})
}

// handlePreviewStart starts the frame pump. The pump outlives the request.
func (s *Server) handlePreviewStart(c *fiber.Ctx) error {
	if err := s.controller.StartPreview(s.background()); err != nil {
		return fail(c, statusFor(err), err)
	}
	return c.JSON(fiber.Map{"previewing": true})
}

func (s *Server) handlePreviewStop(c *fiber.Ctx) error {
	if err := s.controller.StopPreview(); err != nil {
		return fail(c, statusFor(err), err)
	}
	return c.JSON(fiber.Map{"previewing": false})
}

// OfferRequest carries a browser SDP offer.
type OfferRequest struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// OfferResponse carries the SDP answer.
type OfferResponse struct {
	PeerID string `json:"peer_id"`
	Type   string `json:"type"`
	SDP    string `json:"sdp"`
}

func (s *Server) handlePreviewOffer(c *fiber.Ctx) error {
	if s.preview == nil {
		return fail(c, fiber.StatusServiceUnavailable, errors.New("preview streaming disabled"))
	}
	var req OfferRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	if req.SDP == "" {
		return fail(c, fiber.StatusBadRequest, errors.New("sdp is required"))
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: req.SDP}
	answer, id, err := s.preview.Answer(c.UserContext(), offer)
	if err != nil {
		if errors.Is(err, preview.ErrTooManyPeers) {
			return fail(c, fiber.StatusTooManyRequests, err)
		}
		return fail(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(OfferResponse{PeerID: id, Type: answer.Type.String(), SDP: answer.SDP})
}

func (s *Server) handlePhoto(c *fiber.Ctx) error {
	photo, err := s.controller.TakePhoto(c.UserContext())
	if err != nil {
		return fail(c, statusFor(err), err)
	}
	return c.JSON(photo)
}

func (s *Server) handleRecordingStart(c *fiber.Ctx) error {
	req, err := s.controller.StartRecording(s.background())
	if err != nil {
		return fail(c, statusFor(err), err)
	}
	return c.JSON(req)
}

func (s *Server) handleRecordingStop(c *fiber.Ctx) error {
	rec, err := s.controller.StopRecording()
	if err != nil {
		return fail(c, statusFor(err), err)
	}
	return c.JSON(rec)
}

// handleStatusWS sends the current status, then streams controller events
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	client := hub.NewClient(s.statusHub, conn)
	if err := conn.WriteJSON(hub.NewEvent("status", s.status())); err != nil {
		s.logger.Debug("initial status write failed", "error", err)
	}
	client.Run()
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		hub.NewClient(h, conn).Run()
	}
}

