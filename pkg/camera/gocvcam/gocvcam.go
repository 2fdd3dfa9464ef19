// Package gocvcam is a camera.Camera backed by OpenCV through gocv: frames
// come from VideoCapture, photos are written with IMWrite and recordings with
// VideoWriter.
package gocvcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-fancycamera/pkg/camera"
	"github.com/teslashibe/go-fancycamera/pkg/orientation"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

// Config holds device parameters.
type Config struct {
	// BackDevice and FrontDevice are VideoCapture indices. FrontDevice < 0
	// means there is no front camera.
	BackDevice  int `json:"back_device" yaml:"back_device" toml:"back_device"`
	FrontDevice int `json:"front_device" yaml:"front_device" toml:"front_device"`

	Width       int `json:"width" yaml:"width" toml:"width"`
	Height      int `json:"height" yaml:"height" toml:"height"`
	FPS         int `json:"fps" yaml:"fps" toml:"fps"`
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality" toml:"jpeg_quality"`

	// Catalog seeds the profiles probed on open. nil uses
	// profile.DefaultCatalog.
	Catalog *profile.StaticCatalog `json:"-" yaml:"-" toml:"-"`
}

// DefaultConfig returns a single VGA webcam at 30 fps.
func DefaultConfig() Config {
	return Config{
		BackDevice:  0,
		FrontDevice: -1,
		Width:       640,
		Height:      480,
		FPS:         30,
		JPEGQuality: 80,
	}
}

// Camera drives one or two OpenCV capture devices.
type Camera struct {
	cfg     Config
	logger  *slog.Logger
	catalog *profile.StaticCatalog
	frames  chan camera.Frame

	mu       sync.Mutex
	capture  *gocv.VideoCapture
	settings camera.Settings
	position camera.Position
	last     gocv.Mat
	hasLast  bool

	stopPreview chan struct{}
	previewDone chan struct{}

	writer    *gocv.VideoWriter
	recording *camera.RecordingRequest
	recStart  time.Time
}

var _ camera.Camera = (*Camera)(nil)

// New creates a backend. Devices are opened by Open.
func New(cfg Config, logger *slog.Logger) *Camera {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 80
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = profile.DefaultCatalog()
	}
	return &Camera{
		cfg:      cfg,
		logger:   logger.With("component", "gocvcam"),
		catalog:  catalog,
		frames:   make(chan camera.Frame, 2),
		position: camera.PositionBack,
		last:     gocv.NewMat(),
	}
}

// Name implements camera.Camera.
func (c *Camera) Name() string {
	return "gocv"
}

func (c *Camera) device(p camera.Position) int {
	if p == camera.PositionFront && c.cfg.FrontDevice >= 0 {
		return c.cfg.FrontDevice
	}
	return c.cfg.BackDevice
}

// openDevice must be called with c.mu held.
func (c *Camera) openDevice(p camera.Position) error {
	id := c.device(p)
	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return fmt.Errorf("gocvcam: open device %d: %w", id, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("gocvcam: device %d is not open", id)
	}

	probeCatalog(capture, c.catalog)

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.cfg.FPS))

	c.capture = capture
	c.position = p
	c.logger.Info("device opened", "device", id, "position", p,
		"width", capture.Get(gocv.VideoCaptureFrameWidth),
		"height", capture.Get(gocv.VideoCaptureFrameHeight))
	return nil
}

// Open implements camera.Camera.
func (c *Camera) Open(ctx context.Context, s camera.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}
	if err := c.openDevice(s.Position); err != nil {
		return err
	}
	c.settings = s
	c.applyLocked(s)
	return nil
}

// Close implements camera.Camera.
func (c *Camera) Close() error {
	c.StopPreview()
	if c.IsRecording() {
		c.StopRecording()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

// StartPreview implements camera.Camera.
func (c *Camera) StartPreview(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return camera.ErrNotOpen
	}
	if c.stopPreview != nil {
		return nil
	}
	c.stopPreview = make(chan struct{})
	c.previewDone = make(chan struct{})
	go c.captureLoop(ctx, c.stopPreview, c.previewDone)
	return nil
}

func (c *Camera) captureLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	img := gocv.NewMat()
	defer img.Close()

	ticker := time.NewTicker(time.Second / time.Duration(c.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}

		frame, ok := c.grab(&img)
		if !ok {
			continue
		}
		select {
		case c.frames <- frame:
		default:
			// consumer is slow; drop
		}
	}
}

// grab reads one frame, feeds the recorder and returns the JPEG preview.
func (c *Camera) grab(img *gocv.Mat) (camera.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil || !c.capture.Read(img) || img.Empty() {
		return camera.Frame{}, false
	}
	img.CopyTo(&c.last)
	c.hasLast = true

	if c.writer != nil && c.recording != nil {
		c.writeFrame(*img)
	}

	data, err := c.encode(*img)
	if err != nil {
		c.logger.Debug("encode frame failed", "error", err)
		return camera.Frame{}, false
	}
	return camera.Frame{
		Data:      data,
		Width:     img.Cols(),
		Height:    img.Rows(),
		Timestamp: time.Now(),
	}, true
}

// writeFrame must be called with c.mu held.
func (c *Camera) writeFrame(img gocv.Mat) {
	p := c.recording.Profile
	out := img
	if img.Cols() != p.Width || img.Rows() != p.Height {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(img, &resized, image.Pt(p.Width, p.Height), 0, 0, gocv.InterpolationLinear)
		out = resized
	}
	if err := c.writer.Write(out); err != nil {
		c.logger.Warn("write video frame failed", "error", err)
	}
}

func (c *Camera) encode(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, c.cfg.JPEGQuality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	return buf.GetBytes(), nil
}

// StopPreview implements camera.Camera.
func (c *Camera) StopPreview() error {
	c.mu.Lock()
	stop, done := c.stopPreview, c.previewDone
	c.stopPreview, c.previewDone = nil, nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

// Frames implements camera.Camera.
func (c *Camera) Frames() <-chan camera.Frame {
	return c.frames
}

// StartRecording implements camera.Camera. Frames are written while the
// preview runs.
func (c *Camera) StartRecording(ctx context.Context, req camera.RecordingRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return camera.ErrNotOpen
	}
	if c.recording != nil {
		return camera.ErrAlreadyRecording
	}
	if err := os.MkdirAll(filepath.Dir(req.Path), 0o755); err != nil {
		return fmt.Errorf("gocvcam: create output dir: %w", err)
	}

	fps := req.Profile.VideoFrameRate
	if fps <= 0 || fps > c.cfg.FPS {
		fps = c.cfg.FPS
	}
	w, h := req.Profile.Width, req.Profile.Height
	if w <= 0 || h <= 0 {
		w, h = c.cfg.Width, c.cfg.Height
		req.Profile.Width, req.Profile.Height = w, h
	}

	writer, err := gocv.VideoWriterFile(req.Path, fourCC(req.Profile.VideoCodec), float64(fps), w, h, true)
	if err != nil {
		return fmt.Errorf("gocvcam: open video writer: %w", err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return fmt.Errorf("gocvcam: video writer for %s is not open", req.Path)
	}

	c.writer = writer
	c.recording = &req
	c.recStart = time.Now()
	c.logger.Info("recording", "path", req.Path, "codec", fourCC(req.Profile.VideoCodec), "fps", fps, "width", w, "height", h)
	return nil
}

// StopRecording implements camera.Camera.
func (c *Camera) StopRecording() (camera.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording == nil {
		return camera.Recording{}, camera.ErrNotRecording
	}
	err := c.writer.Close()
	req := c.recording
	c.writer, c.recording = nil, nil
	if err != nil {
		return camera.Recording{}, fmt.Errorf("gocvcam: close video writer: %w", err)
	}

	return camera.Recording{
		ID:        req.ID,
		Path:      req.Path,
		Profile:   req.Profile,
		StartedAt: c.recStart,
	}, nil
}

// IsRecording implements camera.Camera.
func (c *Camera) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording != nil
}

// TakePhoto implements camera.Camera. It uses the latest preview frame, or
// reads one when the preview is stopped.
func (c *Camera) TakePhoto(ctx context.Context, req camera.PhotoRequest) (camera.Photo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return camera.Photo{}, camera.ErrNotOpen
	}

	img := gocv.NewMat()
	defer img.Close()
	if c.hasLast && c.stopPreview != nil {
		c.last.CopyTo(&img)
	} else if !c.capture.Read(&img) || img.Empty() {
		return camera.Photo{}, errors.New("gocvcam: failed to read frame")
	}

	out := processPhoto(img, req)
	defer out.Close()

	if err := os.MkdirAll(filepath.Dir(req.Path), 0o755); err != nil {
		return camera.Photo{}, fmt.Errorf("gocvcam: create output dir: %w", err)
	}
	if !gocv.IMWrite(req.Path, out) {
		return camera.Photo{}, fmt.Errorf("gocvcam: write %s failed", req.Path)
	}
	data, err := c.encode(out)
	if err != nil {
		return camera.Photo{}, fmt.Errorf("gocvcam: encode photo: %w", err)
	}

	return camera.Photo{
		ID:       req.ID,
		Path:     req.Path,
		Width:    out.Cols(),
		Height:   out.Rows(),
		DateTime: req.DateTime,
		Data:     data,
	}, nil
}

// processPhoto crops, scales and rotates img into a new Mat.
func processPhoto(img gocv.Mat, req camera.PhotoRequest) gocv.Mat {
	out := img.Clone()

	if req.AutoSquareCrop {
		region := out.Region(squareRect(out.Cols(), out.Rows()))
		cropped := region.Clone()
		region.Close()
		out.Close()
		out = cropped
	}

	if !req.Size.IsZero() && (req.Size.Width != out.Cols() || req.Size.Height != out.Rows()) {
		resized := gocv.NewMat()
		gocv.Resize(out, &resized, image.Pt(req.Size.Width, req.Size.Height), 0, 0, gocv.InterpolationArea)
		out.Close()
		out = resized
	}

	if flag, ok := rotateFlag(req.Rotation); ok {
		rotated := gocv.NewMat()
		gocv.Rotate(out, &rotated, flag)
		out.Close()
		out = rotated
	}
	return out
}

// HasFlash implements camera.Camera. Webcams have no flash.
func (c *Camera) HasFlash() bool {
	return false
}

// ToggleCamera implements camera.Camera.
func (c *Camera) ToggleCamera(ctx context.Context) error {
	if c.NumberOfCameras() < 2 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return camera.ErrNotOpen
	}
	if c.recording != nil {
		return camera.ErrAlreadyRecording
	}

	next := camera.PositionFront
	if c.position == camera.PositionFront {
		next = camera.PositionBack
	}
	prev := c.capture
	if err := c.openDevice(next); err != nil {
		return err
	}
	prev.Close()
	c.applyLocked(c.settings)
	return nil
}

// NumberOfCameras implements camera.Camera.
func (c *Camera) NumberOfCameras() int {
	if c.cfg.FrontDevice >= 0 && c.cfg.FrontDevice != c.cfg.BackDevice {
		return 2
	}
	return 1
}

// SupportedRatios implements camera.Camera.
func (c *Camera) SupportedRatios() []string {
	return []string{"4:3", "16:9", "1:1"}
}

// AvailablePictureSizes implements camera.Camera. Sizes come from the
// profiles the device accepted.
func (c *Camera) AvailablePictureSizes(ratio string) []camera.Size {
	seen := make(map[camera.Size]bool)
	var out []camera.Size
	for _, p := range c.catalog.Profiles() {
		s := camera.Size{Width: p.Width, Height: p.Height}
		if seen[s] || !matchesRatio(s, ratio) {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Apply implements camera.Camera. A position change reopens the device.
func (c *Camera) Apply(s camera.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil && s.Position != c.position && c.NumberOfCameras() > 1 {
		if c.recording != nil {
			return camera.ErrAlreadyRecording
		}
		prev := c.capture
		if err := c.openDevice(s.Position); err != nil {
			return err
		}
		prev.Close()
	}
	c.settings = s
	c.applyLocked(s)
	return nil
}

// applyLocked pushes capture properties. Drivers ignore the ones they do not
// support.
func (c *Camera) applyLocked(s camera.Settings) {
	if c.capture == nil {
		return
	}
	c.capture.Set(gocv.VideoCaptureAutoFocus, boolProp(s.AutoFocus))
	c.capture.Set(gocv.VideoCaptureAutoWB, boolProp(s.WhiteBalance == camera.WhiteBalanceAuto))
	c.capture.Set(gocv.VideoCaptureZoom, s.Zoom*100)
}

// OrientationUpdated implements camera.Camera. Rotation is carried by each
// request, so the device itself is left as is.
func (c *Camera) OrientationUpdated(b orientation.Bucket) {
	c.logger.Debug("orientation updated", "rotation", b)
}

// Catalog implements camera.Camera.
func (c *Camera) Catalog() profile.Catalog {
	return c.catalog
}

// Release frees the cached frame. Call after Close.
func (c *Camera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last.Close()
}
