package camera

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-fancycamera/pkg/analysis"
	"github.com/teslashibe/go-fancycamera/pkg/audiolevel"
	"github.com/teslashibe/go-fancycamera/pkg/audioio"
	"github.com/teslashibe/go-fancycamera/pkg/capability"
	"github.com/teslashibe/go-fancycamera/pkg/orientation"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

// recordingListener counts events.
type recordingListener struct {
	NopListener
	mu     sync.Mutex
	events []string
	photos []Photo
	videos []Recording
}

func (l *recordingListener) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *recordingListener) OnReady()       { l.add("ready") }
func (l *recordingListener) OnCameraOpen()  { l.add("open") }
func (l *recordingListener) OnCameraClose() { l.add("close") }
func (l *recordingListener) OnVideoStart()  { l.add("video_start") }

func (l *recordingListener) OnPhoto(p Photo) {
	l.mu.Lock()
	l.photos = append(l.photos, p)
	l.mu.Unlock()
	l.add("photo")
}

func (l *recordingListener) OnVideo(r Recording) {
	l.mu.Lock()
	l.videos = append(l.videos, r)
	l.mu.Unlock()
	l.add("video")
}

func (l *recordingListener) OnOrientation(_, next orientation.Bucket) {
	l.add("orientation " + next.String())
}

func (l *recordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestController(t *testing.T, cfg ControllerConfig) (*Controller, *MockCamera) {
	t.Helper()
	mock, _ := cfg.Backend.(*MockCamera)
	if cfg.Backend == nil {
		mock = NewMockCamera(WithFrameInterval(2 * time.Millisecond))
		cfg.Backend = mock
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = t.TempDir()
	}
	c, err := NewController(cfg)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(func() { c.Release() })
	return c, mock
}

func TestNewController_RequiresBackend(t *testing.T) {
	if _, err := NewController(ControllerConfig{}); err == nil {
		t.Error("NewController: expected error without backend")
	}
}

func TestNewController_InvalidSettings(t *testing.T) {
	s := DefaultSettings()
	s.Zoom = 9
	_, err := NewController(ControllerConfig{Backend: NewMockCamera(), Settings: &s})
	if err == nil {
		t.Error("NewController: expected error for invalid settings")
	}
}

func TestController_OpenClose(t *testing.T) {
	l := &recordingListener{}
	c, _ := newTestController(t, ControllerConfig{Listener: l})

	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !c.IsOpen() {
		t.Error("IsOpen: got false after Open")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	got := strings.Join(l.Events(), ",")
	if got != "open,ready,close" {
		t.Errorf("events: got %q, want open,ready,close", got)
	}
}

func TestController_OpenNeedsCameraPermission(t *testing.T) {
	c, _ := newTestController(t, ControllerConfig{Permissions: NewStaticPermissions(PermissionAudio)})
	if err := c.Open(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Open: got %v, want ErrPermissionDenied", err)
	}
}

func TestController_OpenError(t *testing.T) {
	mock := NewMockCamera()
	mock.OpenErr = errors.New("device busy")
	c, _ := newTestController(t, ControllerConfig{Backend: mock})
	if err := c.Open(context.Background()); !errors.Is(err, mock.OpenErr) {
		t.Errorf("Open: got %v, want wrapped %v", err, mock.OpenErr)
	}
	if c.IsOpen() {
		t.Error("IsOpen after failed Open")
	}
}

func TestController_OrientationForwardedOnChange(t *testing.T) {
	c, mock := newTestController(t, ControllerConfig{})

	readings := []int{10, 15, 350, 45, 100, 95, 130, orientation.UnknownDegrees, 180}
	for _, deg := range readings {
		if _, err := c.UpdateOrientation(deg); err != nil {
			t.Fatalf("UpdateOrientation(%d): %v", deg, err)
		}
	}

	want := []orientation.Bucket{orientation.Deg0, orientation.Deg90, orientation.Deg180}
	got := mock.Rotations()
	if len(got) != len(want) {
		t.Fatalf("rotations: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rotation %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if c.Orientation() != orientation.Deg180 {
		t.Errorf("Orientation: got %v, want 180", c.Orientation())
	}

	if _, err := c.UpdateOrientation(400); !errors.Is(err, orientation.ErrInvalidInput) {
		t.Errorf("UpdateOrientation(400): got %v, want ErrInvalidInput", err)
	}
}

func TestController_ApplyOrientationReportsChangeOnce(t *testing.T) {
	l := &recordingListener{}
	c, _ := newTestController(t, ControllerConfig{Listener: l})

	const readers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := c.ApplyOrientation(270)
			if err != nil {
				t.Errorf("ApplyOrientation: %v", err)
			}
			if ok {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if changed != 1 {
		t.Errorf("changed: got %d, want 1", changed)
	}
	got := strings.Join(l.Events(), ",")
	if got != "orientation 270" {
		t.Errorf("events: got %q, want orientation 270", got)
	}

	if _, ok, _ := c.ApplyOrientation(orientation.UnknownDegrees); ok {
		t.Error("ApplyOrientation(-1): got changed")
	}
}

func newAudio(peaks ...int) *audioio.MockSource {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	cfg.BufferDuration = 2 * time.Millisecond
	return audioio.NewMockSource(cfg, nil, audioio.WithPeaks(peaks...))
}

func TestController_AudioLevels(t *testing.T) {
	tests := []struct {
		name        string
		enabled     bool
		permissions Permissions
		wantRunning bool
	}{
		{"enabled and permitted", true, AllPermissions(), true},
		{"disabled", false, AllPermissions(), false},
		{"no audio permission", true, NewStaticPermissions(PermissionCamera), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			s.AudioLevelsEnabled = tc.enabled
			c, _ := newTestController(t, ControllerConfig{
				Settings:     &s,
				Permissions:  tc.permissions,
				Audio:        newAudio(32767),
				MaxReference: audiolevel.DefaultMaxReference,
			})

			levels := make(chan audiolevel.Level, 16)
			c.SetLevelListener(func(l audiolevel.Level) {
				select {
				case levels <- l:
				default:
				}
			})

			if err := c.Open(context.Background()); err != nil {
				t.Fatalf("Open: %v", err)
			}
			if got := c.AudioLevelsActive(); got != tc.wantRunning {
				t.Fatalf("AudioLevelsActive: got %v, want %v", got, tc.wantRunning)
			}
			if !tc.wantRunning {
				if lvl := c.AudioLevel(); lvl.Decibels != audiolevel.MinDecibels {
					t.Errorf("AudioLevel: got %g dB, want floor", lvl.Decibels)
				}
				return
			}

			select {
			case l := <-levels:
				if l.Decibels != 0 {
					t.Errorf("first level: got %g dB, want 0", l.Decibels)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for level")
			}
		})
	}
}

func TestController_AudioLevelsToggledBySettings(t *testing.T) {
	c, _ := newTestController(t, ControllerConfig{Audio: newAudio()})
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.AudioLevelsActive() {
		t.Fatal("metering active with audio levels disabled")
	}

	if err := c.Settings().Update(map[string]interface{}{"audio_levels_enabled": true}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !c.AudioLevelsActive() {
		t.Error("metering not started after enabling")
	}

	if err := c.Settings().Update(map[string]interface{}{"audio_levels_enabled": false}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.AudioLevelsActive() {
		t.Error("metering still active after disabling")
	}
}

func TestController_NoAudioSource(t *testing.T) {
	s := DefaultSettings()
	s.AudioLevelsEnabled = true
	c, _ := newTestController(t, ControllerConfig{Settings: &s})
	if err := c.StartAudioLevels(context.Background()); err != nil {
		t.Errorf("StartAudioLevels without source: %v", err)
	}
	if c.AudioLevelsActive() {
		t.Error("AudioLevelsActive without source")
	}
}

func TestController_Recording(t *testing.T) {
	catalog := profile.DefaultCatalog()
	catalog.Remove(profile.Max720P)

	l := &recordingListener{}
	mock := NewMockCamera(WithCatalog(catalog))
	c, _ := newTestController(t, ControllerConfig{
		Backend:      mock,
		Listener:     l,
		TickInterval: 2 * time.Millisecond,
	})

	if _, err := c.StartRecording(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("StartRecording before Open: got %v, want ErrNotOpen", err)
	}
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	c.UpdateOrientation(90)

	req, err := c.StartRecording(context.Background())
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if req.Profile.Quality != profile.Max480P {
		t.Errorf("profile: got %v, want 480p fallback", req.Profile.Quality)
	}
	if req.Rotation != 90 {
		t.Errorf("rotation: got %d, want 90", req.Rotation)
	}
	if req.ID == "" || !strings.HasSuffix(req.Path, req.ID+".mp4") {
		t.Errorf("path: got %q for id %q", req.Path, req.ID)
	}
	if !c.IsRecording() || !mock.IsRecording() {
		t.Error("IsRecording: got false after StartRecording")
	}

	if _, err := c.StartRecording(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second StartRecording: got %v, want ErrAlreadyRecording", err)
	}

	waitFor(t, func() bool { return c.Duration() >= 3 })

	rec, err := c.StopRecording()
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if rec.ID != req.ID {
		t.Errorf("recording id: got %q, want %q", rec.ID, req.ID)
	}
	if rec.Seconds < 3 {
		t.Errorf("recording seconds: got %d, want >= 3", rec.Seconds)
	}
	if c.Duration() != 0 {
		t.Errorf("Duration after stop: got %d, want 0", c.Duration())
	}

	if _, err := c.StopRecording(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("second StopRecording: got %v, want ErrNotRecording", err)
	}

	got := strings.Join(l.Events(), ",")
	if got != "open,ready,orientation 90,video_start,video" {
		t.Errorf("events: got %q", got)
	}
}

func TestController_RecordingNeedsPermission(t *testing.T) {
	c, _ := newTestController(t, ControllerConfig{Permissions: NewStaticPermissions(PermissionCamera)})
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.StartRecording(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("StartRecording: got %v, want ErrPermissionDenied", err)
	}
}

func TestController_ProfileCaps(t *testing.T) {
	catalog := profile.DefaultCatalog()
	p, _ := catalog.Get(profile.Max1080P)
	p.VideoCodec = "hevc"
	catalog.Put(p)

	s := DefaultSettings()
	s.Quality = profile.Max1080P
	s.MaxVideoBitrate = 3_000_000
	s.DisableHEVC = true
	c, _ := newTestController(t, ControllerConfig{Backend: NewMockCamera(WithCatalog(catalog)), Settings: &s})

	got, err := c.Profile()
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if got.VideoBitrate != 3_000_000 || got.VideoCodec != "h264" {
		t.Errorf("Profile: got bitrate %d codec %q, want 3000000 h264", got.VideoBitrate, got.VideoCodec)
	}
}

func TestController_ProfileUnavailable(t *testing.T) {
	s := DefaultSettings()
	s.Quality = profile.QVGA
	c, _ := newTestController(t, ControllerConfig{Backend: NewMockCamera(WithCatalog(profile.NewStaticCatalog())), Settings: &s})
	if _, err := c.Profile(); !errors.Is(err, profile.ErrNoProfileAvailable) {
		t.Errorf("Profile: got %v, want ErrNoProfileAvailable", err)
	}
}

func TestController_TakePhoto(t *testing.T) {
	fixed := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	tests := []struct {
		name         string
		mutate       func(*Settings)
		wantRotation int
		wantW, wantH int
	}{
		{
			name:         "exif rotation",
			mutate:       func(s *Settings) {},
			wantRotation: 90,
			wantW:        120, wantH: 160,
		},
		{
			name:         "no exif rotation",
			mutate:       func(s *Settings) { s.AllowExifRotation = false },
			wantRotation: 0,
			wantW:        160, wantH: 120,
		},
		{
			name: "override size",
			mutate: func(s *Settings) {
				s.AllowExifRotation = false
				s.OverridePhotoWidth, s.OverridePhotoHeight = 64, 48
			},
			wantW: 64, wantH: 48,
		},
		{
			name: "square crop",
			mutate: func(s *Settings) {
				s.AllowExifRotation = false
				s.AutoSquareCrop = true
			},
			wantW: 120, wantH: 120,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(&s)
			l := &recordingListener{}
			c, mock := newTestController(t, ControllerConfig{
				Settings: &s,
				Listener: l,
				Now:      func() time.Time { return fixed },
			})

			if _, err := c.TakePhoto(context.Background()); !errors.Is(err, ErrNotOpen) {
				t.Fatalf("TakePhoto before Open: got %v, want ErrNotOpen", err)
			}
			c.Open(context.Background())
			c.UpdateOrientation(90)

			photo, err := c.TakePhoto(context.Background())
			if err != nil {
				t.Fatalf("TakePhoto: %v", err)
			}
			if photo.DateTime != "2024:03:05 14:07:09" {
				t.Errorf("DateTime: got %q", photo.DateTime)
			}
			if photo.Width != tc.wantW || photo.Height != tc.wantH {
				t.Errorf("size: got %dx%d, want %dx%d", photo.Width, photo.Height, tc.wantW, tc.wantH)
			}
			reqs := mock.Photos()
			if len(reqs) != 1 || reqs[0].Rotation != tc.wantRotation {
				t.Errorf("requests: got %+v, want rotation %d", reqs, tc.wantRotation)
			}
			if !strings.HasPrefix(filepath.Base(photo.Path), "IMG_") {
				t.Errorf("path: got %q", photo.Path)
			}
			if len(l.photos) != 1 {
				t.Errorf("OnPhoto calls: got %d, want 1", len(l.photos))
			}
		})
	}
}

func TestController_PreviewFeedsSinksAndAnalysis(t *testing.T) {
	reg := capability.NewRegistry()
	analyzed := make(chan capability.Frame, 16)
	reg.Register(&capability.Func{
		Tag:      capability.FaceDetection,
		Defaults: struct{}{},
		Fn: func(ctx context.Context, f capability.Frame, opts any) (any, error) {
			select {
			case analyzed <- f:
			default:
			}
			return map[string]int{"faces": 0}, nil
		},
	})

	s := DefaultSettings()
	s.DetectorType = analysis.DetectorFace
	c, _ := newTestController(t, ControllerConfig{Settings: &s, Registry: reg})

	results := make(chan string, 16)
	c.Dispatcher().SetListener(capability.FaceDetection, analysis.CallbackFuncs{
		Success: func(r string) {
			select {
			case results <- r:
			default:
			}
		},
	})

	frames := make(chan Frame, 16)
	remove := c.AddFrameSink(func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	})
	defer remove()

	if err := c.StartPreview(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("StartPreview before Open: got %v, want ErrNotOpen", err)
	}
	c.Open(context.Background())
	c.UpdateOrientation(270)
	if err := c.StartPreview(context.Background()); err != nil {
		t.Fatalf("StartPreview: %v", err)
	}

	select {
	case f := <-frames:
		if f.Rotation != 270 {
			t.Errorf("frame rotation: got %d, want 270", f.Rotation)
		}
		if f.Sequence < 1 || len(f.Data) == 0 {
			t.Errorf("frame: sequence %d, %d bytes", f.Sequence, len(f.Data))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}

	select {
	case r := <-results:
		if r != `{"faces":0}` {
			t.Errorf("analysis result: got %s", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for analysis")
	}

	if err := c.StopPreview(); err != nil {
		t.Fatalf("StopPreview: %v", err)
	}
	if c.IsPreviewing() {
		t.Error("IsPreviewing after StopPreview")
	}
}

func TestController_ToggleCamera(t *testing.T) {
	c, mock := newTestController(t, ControllerConfig{})
	c.Open(context.Background())

	if err := c.ToggleCamera(context.Background()); err != nil {
		t.Fatalf("ToggleCamera: %v", err)
	}
	if got := c.Settings().Get().Position; got != PositionFront {
		t.Errorf("Position: got %q, want front", got)
	}
	if applied, _ := mock.Applied(); applied.Position != PositionFront {
		t.Errorf("applied Position: got %q, want front", applied.Position)
	}
}

func TestController_ToggleSingleCamera(t *testing.T) {
	c, _ := newTestController(t, ControllerConfig{Backend: NewMockCamera(WithCameras(1, false))})
	c.Open(context.Background())
	if err := c.ToggleCamera(context.Background()); err != nil {
		t.Fatalf("ToggleCamera: %v", err)
	}
	if got := c.Settings().Get().Position; got != PositionBack {
		t.Errorf("Position: got %q, want back", got)
	}
}

func TestController_SettingsAppliedWhenOpen(t *testing.T) {
	c, mock := newTestController(t, ControllerConfig{})

	c.Settings().Update(map[string]interface{}{"zoom": 0.2})
	if _, n := mock.Applied(); n != 0 {
		t.Errorf("Apply calls while closed: got %d, want 0", n)
	}

	c.Open(context.Background())
	c.Settings().Update(map[string]interface{}{"zoom": 0.4, "detector_type": "text"})
	applied, n := mock.Applied()
	if n != 1 || applied.Zoom != 0.4 {
		t.Errorf("Apply: got %d calls zoom %g, want 1 call zoom 0.4", n, applied.Zoom)
	}
	if got := c.Dispatcher().DetectorType(); got != analysis.DetectorText {
		t.Errorf("DetectorType: got %q, want text", got)
	}
}

func TestController_Status(t *testing.T) {
	c, _ := newTestController(t, ControllerConfig{})
	st := c.Status()
	if st.Open || st.Recording || st.Orientation != -1 {
		t.Errorf("initial status: %+v", st)
	}
	if st.Profile == nil || st.Profile.Quality != profile.Max720P {
		t.Errorf("status profile: got %+v, want 720p", st.Profile)
	}

	c.Open(context.Background())
	c.UpdateOrientation(0)
	st = c.Status()
	if !st.Open || st.Orientation != 0 || st.Backend != "mock" {
		t.Errorf("status after open: %+v", st)
	}

	caps := c.Capabilities()
	if caps.NumberOfCameras != 2 || !caps.HasFlash || caps.MLSupported {
		t.Errorf("Capabilities: %+v", caps)
	}
}
