package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-fancycamera/pkg/analysis"
	"github.com/teslashibe/go-fancycamera/pkg/audiolevel"
	"github.com/teslashibe/go-fancycamera/pkg/audioio"
	"github.com/teslashibe/go-fancycamera/pkg/capability"
	"github.com/teslashibe/go-fancycamera/pkg/exif"
	"github.com/teslashibe/go-fancycamera/pkg/orientation"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
	"github.com/teslashibe/go-fancycamera/pkg/timer"
)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// Backend is the device. Required.
	Backend Camera

	// Settings are the initial settings. nil selects DefaultSettings.
	Settings *Settings

	// Permissions gates device access. nil grants everything.
	Permissions Permissions

	// Audio feeds the level meter. nil disables audio levels.
	Audio audioio.Source

	// MaxReference is the amplitude that maps to 0 dB.
	MaxReference float64

	// Registry holds the analysis features. nil creates an empty registry.
	Registry *capability.Registry

	// Workers bounds concurrent analyses.
	Workers int

	// OutputDir is where photos and videos are written.
	OutputDir string

	// TickInterval is the duration counter period. Zero means one second.
	TickInterval time.Duration

	Listener EventListener
	Logger   *slog.Logger

	// Now is the clock used for EXIF timestamps. nil means time.Now.
	Now func() time.Time
}

// FrameSink receives preview frames after rotation is stamped.
type FrameSink func(Frame)

// Status is a point-in-time snapshot of the controller.
type Status struct {
	Backend         string           `json:"backend"`
	Open            bool             `json:"open"`
	Previewing      bool             `json:"previewing"`
	Recording       bool             `json:"recording"`
	RecordingID     string           `json:"recording_id,omitempty"`
	Orientation     int              `json:"orientation"`
	Duration        int64            `json:"duration"`
	AudioLevels     bool             `json:"audio_levels"`
	Level           audiolevel.Level `json:"level"`
	Position        Position         `json:"position"`
	Quality         profile.Quality  `json:"quality"`
	Profile         *profile.Profile `json:"profile,omitempty"`
	DetectorType    string           `json:"detector_type"`
	HasFlash        bool             `json:"has_flash"`
	NumberOfCameras int              `json:"number_of_cameras"`
	Analysis        analysis.Stats   `json:"analysis"`
}

// Controller drives a Camera backend: it tracks device orientation, meters
// audio, resolves recording profiles, counts recording time and feeds
// preview frames to the analysis dispatcher.
type Controller struct {
	backend     Camera
	permissions Permissions
	settings    *Manager
	bucketizer  *orientation.Bucketizer
	resolver    *profile.Resolver
	duration    *timer.Duration
	registry    *capability.Registry
	dispatcher  *analysis.Dispatcher
	meter       *audiolevel.Meter
	outputDir   string
	logger      *slog.Logger
	now         func() time.Time

	mu          sync.Mutex
	listener    EventListener
	open        bool
	previewing  bool
	pumpCancel  context.CancelFunc
	pumpDone    chan struct{}
	sinks       map[int]FrameSink
	nextSink    int
	levelSink   func(audiolevel.Level)
	recording   *RecordingRequest
	recordStart time.Time
	sequence    int64
}

// NewController wires a controller around cfg.Backend.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Backend == nil {
		return nil, errors.New("camera: backend is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "camera", "backend", cfg.Backend.Name())

	perms := cfg.Permissions
	if perms == nil {
		perms = AllPermissions()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = capability.NewRegistry()
	}
	listener := cfg.Listener
	if listener == nil {
		listener = NopListener{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = "."
	}

	c := &Controller{
		backend:     cfg.Backend,
		permissions: perms,
		settings:    NewManager(),
		bucketizer:  orientation.NewBucketizer(),
		resolver:    profile.NewResolver(cfg.Backend.Catalog(), logger),
		duration:    timer.NewDuration(cfg.TickInterval),
		registry:    registry,
		dispatcher:  analysis.NewDispatcher(registry, cfg.Workers, logger),
		outputDir:   outputDir,
		logger:      logger,
		now:         now,
		listener:    listener,
		sinks:       make(map[int]FrameSink),
	}

	if cfg.Settings != nil {
		if err := c.settings.Set(*cfg.Settings); err != nil {
			return nil, err
		}
	}
	c.dispatcher.SetDetectorType(c.settings.Get().DetectorType)

	if cfg.Audio != nil {
		c.meter = audiolevel.NewMeter(cfg.Audio, cfg.MaxReference, logger)
		c.meter.OnLevel = c.emitLevel
	}

	c.bucketizer.OnChange = func(prev, next orientation.Bucket) {
		c.logger.Debug("orientation changed", "from", prev, "to", next)
		c.backend.OrientationUpdated(next)
		c.events().OnOrientation(prev, next)
	}
	c.settings.OnChange = c.apply

	return c, nil
}

// Settings returns the settings manager. Changes are pushed to the backend.
func (c *Controller) Settings() *Manager {
	return c.settings
}

// Registry returns the analysis feature registry.
func (c *Controller) Registry() *capability.Registry {
	return c.registry
}

// Dispatcher returns the analysis dispatcher.
func (c *Controller) Dispatcher() *analysis.Dispatcher {
	return c.dispatcher
}

// Resolver returns the profile resolver bound to the backend's catalog.
func (c *Controller) Resolver() *profile.Resolver {
	return c.resolver
}

// SetListener replaces the event listener. nil installs NopListener.
func (c *Controller) SetListener(l EventListener) {
	if l == nil {
		l = NopListener{}
	}
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

func (c *Controller) events() EventListener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listener
}

// SetLevelListener sets the callback for audio levels.
func (c *Controller) SetLevelListener(fn func(audiolevel.Level)) {
	c.mu.Lock()
	c.levelSink = fn
	c.mu.Unlock()
}

func (c *Controller) emitLevel(l audiolevel.Level) {
	c.mu.Lock()
	fn := c.levelSink
	c.mu.Unlock()
	if fn != nil {
		fn(l)
	}
}

// AddFrameSink registers fn for preview frames. The returned function
// removes it.
func (c *Controller) AddFrameSink(fn FrameSink) (remove func()) {
	c.mu.Lock()
	id := c.nextSink
	c.nextSink++
	c.sinks[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.sinks, id)
		c.mu.Unlock()
	}
}

// apply is the settings OnChange hook.
func (c *Controller) apply(s Settings) error {
	c.dispatcher.SetDetectorType(s.DetectorType)

	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if !open {
		return nil
	}

	if err := c.backend.Apply(s); err != nil {
		return err
	}

	if s.AudioLevelsEnabled {
		return c.StartAudioLevels(context.Background())
	}
	return c.stopMeter()
}

// Open acquires the device and starts audio levels if enabled.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.permissions.Request(ctx, PermissionCamera); err != nil {
		return err
	}

	s := c.settings.Get()
	if err := c.backend.Open(ctx, s); err != nil {
		c.events().OnError("open camera", err)
		return fmt.Errorf("open camera: %w", err)
	}

	c.mu.Lock()
	c.open = true
	c.mu.Unlock()

	c.logger.Info("camera opened", "position", s.Position, "quality", s.Quality)
	c.events().OnCameraOpen()

	if s.AudioLevelsEnabled {
		if err := c.StartAudioLevels(context.Background()); err != nil {
			c.logger.Warn("audio levels unavailable", "error", err)
		}
	}

	c.events().OnReady()
	return nil
}

// Close stops preview, recording and metering and releases the device.
func (c *Controller) Close() error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	recording := c.recording != nil
	c.mu.Unlock()

	var errs []error
	if recording {
		if _, err := c.StopRecording(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.StopPreview(); err != nil {
		errs = append(errs, err)
	}
	if err := c.stopMeter(); err != nil {
		errs = append(errs, err)
	}
	if err := c.backend.Close(); err != nil {
		errs = append(errs, err)
	}

	c.mu.Lock()
	c.open = false
	c.mu.Unlock()

	c.logger.Info("camera closed")
	c.events().OnCameraClose()
	return errors.Join(errs...)
}

// Release closes the camera and frees the dispatcher and audio source.
func (c *Controller) Release() error {
	errs := []error{c.Close(), c.dispatcher.Close()}
	if c.meter != nil {
		errs = append(errs, c.meter.Close())
	}
	return errors.Join(errs...)
}

// IsOpen reports whether the device is open.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// UpdateOrientation feeds one sensor reading. The backend is told only when
// the bucket changes.
func (c *Controller) UpdateOrientation(degrees int) (orientation.Bucket, error) {
	return c.bucketizer.Update(degrees)
}

// ApplyOrientation is UpdateOrientation that also reports whether this
// reading changed the bucket.
func (c *Controller) ApplyOrientation(degrees int) (orientation.Bucket, bool, error) {
	return c.bucketizer.Apply(degrees)
}

// Orientation returns the current rotation bucket.
func (c *Controller) Orientation() orientation.Bucket {
	return c.bucketizer.Current()
}

func (c *Controller) rotation() int {
	if b := c.bucketizer.Current(); b.Known() {
		return b.Degrees()
	}
	return 0
}

// StartAudioLevels starts metering. It does nothing when audio levels are
// disabled, no audio source is configured, or camera and audio permissions
// are missing.
func (c *Controller) StartAudioLevels(ctx context.Context) error {
	if c.meter == nil || !c.settings.Get().AudioLevelsEnabled {
		return nil
	}
	if !HasPermission(c.permissions) {
		c.logger.Debug("audio levels skipped: missing permission")
		return nil
	}
	return c.meter.Start(ctx)
}

// StopAudioLevels stops metering.
func (c *Controller) StopAudioLevels() error {
	return c.stopMeter()
}

func (c *Controller) stopMeter() error {
	if c.meter == nil {
		return nil
	}
	return c.meter.Stop()
}

// AudioLevel returns the latest level. Decibels sit at the floor when
// metering never ran.
func (c *Controller) AudioLevel() audiolevel.Level {
	if c.meter == nil {
		return audiolevel.Level{Decibels: audiolevel.MinDecibels}
	}
	return c.meter.Level()
}

// AudioLevelsActive reports whether metering is running.
func (c *Controller) AudioLevelsActive() bool {
	return c.meter != nil && c.meter.Running()
}

// StartPreview starts the backend preview and the frame pump. The pump runs
// until StopPreview or until ctx is cancelled.
func (c *Controller) StartPreview(ctx context.Context) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if c.previewing {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.backend.StartPreview(ctx); err != nil {
		c.events().OnError("start preview", err)
		return fmt.Errorf("start preview: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.previewing = true
	c.pumpCancel = cancel
	c.pumpDone = done
	c.mu.Unlock()

	go c.pump(pumpCtx, c.backend.Frames(), done)
	c.logger.Debug("preview started")
	return nil
}

// StopPreview stops the frame pump and the backend preview.
func (c *Controller) StopPreview() error {
	c.mu.Lock()
	if !c.previewing {
		c.mu.Unlock()
		return nil
	}
	c.previewing = false
	cancel, done := c.pumpCancel, c.pumpDone
	c.pumpCancel, c.pumpDone = nil, nil
	c.mu.Unlock()

	cancel()
	<-done
	c.logger.Debug("preview stopped")
	return c.backend.StopPreview()
}

// IsPreviewing reports whether the frame pump runs.
func (c *Controller) IsPreviewing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previewing
}

func (c *Controller) pump(ctx context.Context, frames <-chan Frame, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			c.deliver(ctx, f)
		}
	}
}

func (c *Controller) deliver(ctx context.Context, f Frame) {
	f.Rotation = c.rotation()
	if f.Timestamp.IsZero() {
		f.Timestamp = c.now()
	}

	c.mu.Lock()
	c.sequence++
	f.Sequence = c.sequence
	sinks := make([]FrameSink, 0, len(c.sinks))
	for _, s := range c.sinks {
		sinks = append(sinks, s)
	}
	c.mu.Unlock()

	c.dispatcher.Submit(ctx, f)
	for _, s := range sinks {
		s(f)
	}
}

// Profile resolves the current quality setting against the device catalog
// and applies the bitrate, frame rate and codec caps.
func (c *Controller) Profile() (profile.Profile, error) {
	s := c.settings.Get()
	p, err := c.resolver.Resolve(s.Quality)
	if err != nil {
		return profile.Profile{}, err
	}
	return s.CapProfile(p), nil
}

// StartRecording resolves the profile and starts recording and the
// duration counter.
func (c *Controller) StartRecording(ctx context.Context) (RecordingRequest, error) {
	c.mu.Lock()
	open, busy := c.open, c.recording != nil
	c.mu.Unlock()
	if !open {
		return RecordingRequest{}, ErrNotOpen
	}
	if busy {
		return RecordingRequest{}, ErrAlreadyRecording
	}
	if !HasPermission(c.permissions) {
		if err := c.permissions.Request(ctx, PermissionCamera, PermissionAudio); err != nil {
			return RecordingRequest{}, err
		}
	}

	p, err := c.Profile()
	if err != nil {
		c.events().OnError("resolve recording profile", err)
		return RecordingRequest{}, err
	}

	id := uuid.NewString()
	req := RecordingRequest{
		ID:       id,
		Path:     filepath.Join(c.outputDir, "VID_"+id+"."+extension(p.FileFormat, "mp4")),
		Profile:  p,
		Rotation: c.rotation(),
		Position: c.settings.Get().Position,
	}

	if err := c.backend.StartRecording(ctx, req); err != nil {
		c.events().OnError("start recording", err)
		return RecordingRequest{}, fmt.Errorf("start recording: %w", err)
	}

	c.mu.Lock()
	c.recording = &req
	c.recordStart = c.now()
	c.mu.Unlock()

	c.duration.Start(context.Background())
	c.logger.Info("recording started", "id", id, "quality", p.Quality, "width", p.Width, "height", p.Height, "codec", p.VideoCodec)
	c.events().OnVideoStart()
	return req, nil
}

// StopRecording stops recording and resets the duration counter.
func (c *Controller) StopRecording() (Recording, error) {
	c.mu.Lock()
	req := c.recording
	started := c.recordStart
	c.mu.Unlock()
	if req == nil {
		return Recording{}, ErrNotRecording
	}

	seconds := c.duration.Seconds()
	c.duration.Stop()

	rec, err := c.backend.StopRecording()

	c.mu.Lock()
	c.recording = nil
	c.mu.Unlock()

	if err != nil {
		c.events().OnError("stop recording", err)
		return Recording{}, fmt.Errorf("stop recording: %w", err)
	}

	if rec.ID == "" {
		rec.ID = req.ID
	}
	if rec.Path == "" {
		rec.Path = req.Path
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = started
	}
	rec.Profile = req.Profile
	rec.Seconds = seconds

	c.logger.Info("recording stopped", "id", rec.ID, "seconds", seconds, "path", rec.Path)
	c.events().OnVideo(rec)
	return rec, nil
}

// IsRecording reports whether a recording is running.
func (c *Controller) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording != nil
}

// Duration returns the seconds counted for the running recording, 0 when idle.
func (c *Controller) Duration() int64 {
	return c.duration.Seconds()
}

// TakePhoto captures a still stamped with the EXIF date and time.
func (c *Controller) TakePhoto(ctx context.Context) (Photo, error) {
	if !c.IsOpen() {
		return Photo{}, ErrNotOpen
	}

	s := c.settings.Get()
	if s.SaveToGallery {
		if err := c.permissions.Request(ctx, PermissionStorage); err != nil {
			return Photo{}, err
		}
	}

	id := uuid.NewString()
	req := PhotoRequest{
		ID:             id,
		Path:           filepath.Join(c.outputDir, "IMG_"+id+".jpg"),
		Size:           s.PhotoSize(),
		AutoSquareCrop: s.AutoSquareCrop,
		Flash:          s.FlashMode,
		DateTime:       exif.FormatDateTime(c.now()),
	}
	if s.AllowExifRotation {
		req.Rotation = c.rotation()
	}

	photo, err := c.backend.TakePhoto(ctx, req)
	if err != nil {
		c.events().OnError("take photo", err)
		return Photo{}, fmt.Errorf("take photo: %w", err)
	}
	if photo.ID == "" {
		photo.ID = id
	}
	if photo.DateTime == "" {
		photo.DateTime = req.DateTime
	}

	c.logger.Info("photo taken", "id", photo.ID, "width", photo.Width, "height", photo.Height, "path", photo.Path)
	c.events().OnPhoto(photo)
	return photo, nil
}

// ToggleCamera switches between the front and back camera.
func (c *Controller) ToggleCamera(ctx context.Context) error {
	if !c.IsOpen() {
		return ErrNotOpen
	}
	if c.backend.NumberOfCameras() < 2 {
		return nil
	}
	if err := c.backend.ToggleCamera(ctx); err != nil {
		c.events().OnError("toggle camera", err)
		return err
	}

	s := c.settings.Get()
	if s.Position == PositionBack {
		s.Position = PositionFront
	} else {
		s.Position = PositionBack
	}
	return c.settings.Set(s)
}

// Capabilities describes the backend and the registered analysis features.
func (c *Controller) Capabilities() Capabilities {
	features := c.registry.Features()
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = string(f)
	}
	return Capabilities{
		Backend:         c.backend.Name(),
		NumberOfCameras: c.backend.NumberOfCameras(),
		HasFlash:        c.backend.HasFlash(),
		Ratios:          c.backend.SupportedRatios(),
		Features:        names,
		MLSupported:     c.registry.MLSupported(),
	}
}

// AvailablePictureSizes lists the backend's sizes for ratio.
func (c *Controller) AvailablePictureSizes(ratio string) []Size {
	return c.backend.AvailablePictureSizes(ratio)
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	s := c.settings.Get()

	c.mu.Lock()
	st := Status{
		Backend:    c.backend.Name(),
		Open:       c.open,
		Previewing: c.previewing,
		Recording:  c.recording != nil,
	}
	if c.recording != nil {
		st.RecordingID = c.recording.ID
	}
	c.mu.Unlock()

	st.Orientation = c.bucketizer.Current().Degrees()
	st.Duration = c.duration.Seconds()
	st.AudioLevels = c.AudioLevelsActive()
	st.Level = c.AudioLevel()
	st.Position = s.Position
	st.Quality = s.Quality
	st.DetectorType = string(s.DetectorType)
	st.HasFlash = c.backend.HasFlash()
	st.NumberOfCameras = c.backend.NumberOfCameras()
	st.Analysis = c.dispatcher.Stats()
	if p, err := c.Profile(); err == nil {
		st.Profile = &p
	}
	return st
}

func extension(format, fallback string) string {
	if format == "" {
		return fallback
	}
	return format
}
