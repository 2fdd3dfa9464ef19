package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/teslashibe/go-fancycamera/pkg/orientation"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

// MockCamera is an in-memory backend for tests and demos. Preview produces
// solid-color JPEG frames; photos and recordings are kept in memory.
type MockCamera struct {
	catalog  profile.Catalog
	interval time.Duration
	size     Size
	cameras  int
	flash    bool

	mu          sync.Mutex
	open        bool
	settings    Settings
	frames      chan Frame
	stopPreview chan struct{}
	previewDone chan struct{}
	recording   *RecordingRequest
	recStart    time.Time
	rotations   []orientation.Bucket
	photos      []PhotoRequest
	applied     int

	// OpenErr, when set, is returned by Open.
	OpenErr error
}

// MockOption configures a MockCamera.
type MockOption func(*MockCamera)

// WithCatalog sets the profile catalog.
func WithCatalog(c profile.Catalog) MockOption {
	return func(m *MockCamera) { m.catalog = c }
}

// WithFrameInterval sets the preview frame period.
func WithFrameInterval(d time.Duration) MockOption {
	return func(m *MockCamera) { m.interval = d }
}

// WithFrameSize sets the preview frame size.
func WithFrameSize(s Size) MockOption {
	return func(m *MockCamera) { m.size = s }
}

// WithCameras sets the number of cameras and whether the device has a flash.
func WithCameras(n int, flash bool) MockOption {
	return func(m *MockCamera) {
		m.cameras = n
		m.flash = flash
	}
}

// NewMockCamera creates a mock with the default catalog, two cameras and a
// flash.
func NewMockCamera(opts ...MockOption) *MockCamera {
	m := &MockCamera{
		catalog:  profile.DefaultCatalog(),
		interval: 33 * time.Millisecond,
		size:     Size{Width: 160, Height: 120},
		cameras:  2,
		flash:    true,
		settings: DefaultSettings(),
		frames:   make(chan Frame, 4),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ Camera = (*MockCamera)(nil)

// Name implements Camera.
func (m *MockCamera) Name() string {
	return "mock"
}

// Open implements Camera.
func (m *MockCamera) Open(ctx context.Context, s Settings) error {
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	m.settings = s
	return nil
}

// Close implements Camera.
func (m *MockCamera) Close() error {
	m.StopPreview()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	m.recording = nil
	return nil
}

// StartPreview implements Camera.
func (m *MockCamera) StartPreview(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	if m.stopPreview != nil {
		return nil
	}

	frame := solidJPEG(m.size, color.RGBA{R: 40, G: 90, B: 160, A: 255})
	m.stopPreview = make(chan struct{})
	m.previewDone = make(chan struct{})
	go m.generate(ctx, frame, m.stopPreview, m.previewDone)
	return nil
}

func (m *MockCamera) generate(ctx context.Context, data []byte, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticker.C:
			f := Frame{Data: data, Width: m.size.Width, Height: m.size.Height, Timestamp: now}
			select {
			case m.frames <- f:
			default:
				// consumer is slow; drop
			}
		}
	}
}

// StopPreview implements Camera.
func (m *MockCamera) StopPreview() error {
	m.mu.Lock()
	stop, done := m.stopPreview, m.previewDone
	m.stopPreview, m.previewDone = nil, nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

// Frames implements Camera.
func (m *MockCamera) Frames() <-chan Frame {
	return m.frames
}

// StartRecording implements Camera.
func (m *MockCamera) StartRecording(ctx context.Context, req RecordingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	if m.recording != nil {
		return ErrAlreadyRecording
	}
	m.recording = &req
	m.recStart = time.Now()
	return nil
}

// StopRecording implements Camera.
func (m *MockCamera) StopRecording() (Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recording == nil {
		return Recording{}, ErrNotRecording
	}
	req := m.recording
	m.recording = nil
	return Recording{
		ID:        req.ID,
		Path:      req.Path,
		Profile:   req.Profile,
		StartedAt: m.recStart,
	}, nil
}

// IsRecording implements Camera.
func (m *MockCamera) IsRecording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording != nil
}

// TakePhoto implements Camera.
func (m *MockCamera) TakePhoto(ctx context.Context, req PhotoRequest) (Photo, error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return Photo{}, ErrNotOpen
	}
	m.photos = append(m.photos, req)
	m.mu.Unlock()

	size := req.Size
	if size.IsZero() {
		size = m.size
	}
	if req.AutoSquareCrop {
		side := min(size.Width, size.Height)
		size = Size{Width: side, Height: side}
	}
	if req.Rotation == 90 || req.Rotation == 270 {
		size = Size{Width: size.Height, Height: size.Width}
	}

	return Photo{
		ID:       req.ID,
		Path:     req.Path,
		Width:    size.Width,
		Height:   size.Height,
		DateTime: req.DateTime,
		Data:     solidJPEG(size, color.RGBA{R: 200, G: 200, B: 200, A: 255}),
	}, nil
}

// HasFlash implements Camera.
func (m *MockCamera) HasFlash() bool {
	return m.flash
}

// ToggleCamera implements Camera.
func (m *MockCamera) ToggleCamera(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrNotOpen
	}
	if m.settings.Position == PositionBack {
		m.settings.Position = PositionFront
	} else {
		m.settings.Position = PositionBack
	}
	return nil
}

// NumberOfCameras implements Camera.
func (m *MockCamera) NumberOfCameras() int {
	return m.cameras
}

// SupportedRatios implements Camera.
func (m *MockCamera) SupportedRatios() []string {
	return []string{"4:3", "16:9", "1:1"}
}

// AvailablePictureSizes implements Camera.
func (m *MockCamera) AvailablePictureSizes(ratio string) []Size {
	switch ratio {
	case "4:3":
		return []Size{{640, 480}, {1280, 960}, {4032, 3024}}
	case "16:9":
		return []Size{{1280, 720}, {1920, 1080}, {3840, 2160}}
	case "1:1":
		return []Size{{720, 720}, {1080, 1080}}
	}
	return nil
}

// Apply implements Camera.
func (m *MockCamera) Apply(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	m.applied++
	return nil
}

// OrientationUpdated implements Camera.
func (m *MockCamera) OrientationUpdated(b orientation.Bucket) {
	m.mu.Lock()
	m.rotations = append(m.rotations, b)
	m.mu.Unlock()
}

// Catalog implements Camera.
func (m *MockCamera) Catalog() profile.Catalog {
	return m.catalog
}

// Rotations returns every bucket passed to OrientationUpdated.
func (m *MockCamera) Rotations() []orientation.Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]orientation.Bucket(nil), m.rotations...)
}

// Photos returns every photo request received.
func (m *MockCamera) Photos() []PhotoRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PhotoRequest(nil), m.photos...)
}

// Applied returns the last applied settings and how many times Apply ran.
func (m *MockCamera) Applied() (Settings, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, m.applied
}

func solidJPEG(size Size, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70})
	return buf.Bytes()
}
