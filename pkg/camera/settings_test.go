package camera

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-fancycamera/pkg/analysis"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want Size
	}{
		{"1920x1080", Size{1920, 1080}},
		{" 640x480 ", Size{640, 480}},
		{"0x0", Size{0, 0}},
		{"abcx480", Size{0, 480}},
		{"1280", Size{1280, 0}},
		{"", Size{0, 0}},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := ParseSize(tc.in); got != tc.want {
				t.Errorf("ParseSize(%q): got %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestDefaultSettings_Valid(t *testing.T) {
	s := DefaultSettings()
	if errs := s.Validate(); len(errs) > 0 {
		t.Fatalf("default settings invalid: %v", errs)
	}
	if s.OverridePhotoWidth != -1 || s.OverridePhotoHeight != -1 {
		t.Errorf("override photo size: got %dx%d, want -1x-1", s.OverridePhotoWidth, s.OverridePhotoHeight)
	}
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"position", func(s *Settings) { s.Position = "side" }},
		{"rotation", func(s *Settings) { s.Rotation = "sideways" }},
		{"white balance", func(s *Settings) { s.WhiteBalance = "neon" }},
		{"flash", func(s *Settings) { s.FlashMode = "strobe" }},
		{"zoom high", func(s *Settings) { s.Zoom = 1.5 }},
		{"zoom low", func(s *Settings) { s.Zoom = -0.1 }},
		{"ratio", func(s *Settings) { s.DisplayRatio = "21:9" }},
		{"picture size", func(s *Settings) { s.PictureSize = "big" }},
		{"override width zero", func(s *Settings) { s.OverridePhotoWidth = 0 }},
		{"override height negative", func(s *Settings) { s.OverridePhotoHeight = -5 }},
		{"quality", func(s *Settings) { s.Quality = profile.Quality(42) }},
		{"bitrate", func(s *Settings) { s.MaxVideoBitrate = -1 }},
		{"detector", func(s *Settings) { s.DetectorType = "xray" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(&s)
			if errs := s.Validate(); len(errs) != 1 {
				t.Errorf("Validate: got %d errors %v, want 1", len(errs), errs)
			}
		})
	}
}

func TestSettings_PhotoSize(t *testing.T) {
	s := DefaultSettings()
	if got := s.PhotoSize(); !got.IsZero() {
		t.Errorf("default PhotoSize: got %v, want zero", got)
	}

	s.PictureSize = "1280x960"
	if got, want := s.PhotoSize(), (Size{1280, 960}); got != want {
		t.Errorf("PhotoSize: got %v, want %v", got, want)
	}

	s.OverridePhotoWidth, s.OverridePhotoHeight = 800, 600
	if got, want := s.PhotoSize(), (Size{800, 600}); got != want {
		t.Errorf("PhotoSize with override: got %v, want %v", got, want)
	}

	s.OverridePhotoHeight = -1
	if got, want := s.PhotoSize(), (Size{1280, 960}); got != want {
		t.Errorf("PhotoSize with half override: got %v, want %v", got, want)
	}
}

func TestSettings_CapProfile(t *testing.T) {
	p := profile.Profile{
		VideoBitrate:   10_000_000,
		AudioBitrate:   128_000,
		VideoFrameRate: 60,
		VideoCodec:     "hevc",
	}

	s := DefaultSettings()
	if got := s.CapProfile(p); got != p {
		t.Errorf("no caps: got %+v, want unchanged", got)
	}

	s.MaxVideoBitrate = 4_000_000
	s.MaxAudioBitrate = 64_000
	s.MaxVideoFrameRate = 30
	s.DisableHEVC = true
	got := s.CapProfile(p)
	if got.VideoBitrate != 4_000_000 {
		t.Errorf("VideoBitrate: got %d, want 4000000", got.VideoBitrate)
	}
	if got.AudioBitrate != 64_000 {
		t.Errorf("AudioBitrate: got %d, want 64000", got.AudioBitrate)
	}
	if got.VideoFrameRate != 30 {
		t.Errorf("VideoFrameRate: got %d, want 30", got.VideoFrameRate)
	}
	if got.VideoCodec != "h264" {
		t.Errorf("VideoCodec: got %q, want h264", got.VideoCodec)
	}

	s.MaxVideoBitrate = 50_000_000
	if got := s.CapProfile(p); got.VideoBitrate != p.VideoBitrate {
		t.Errorf("cap above value: got %d, want %d", got.VideoBitrate, p.VideoBitrate)
	}
}

func TestManager_Update(t *testing.T) {
	m := NewManager()

	var calls int
	m.OnChange = func(s Settings) error {
		calls++
		return nil
	}

	err := m.Update(map[string]interface{}{
		"position":             "front",
		"zoom":                 0.5,
		"quality":              "1080p",
		"max_video_bitrate":    float64(2_000_000),
		"detector_type":        "face",
		"audio_levels_enabled": true,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	s := m.Get()
	if s.Position != PositionFront {
		t.Errorf("Position: got %q, want front", s.Position)
	}
	if s.Zoom != 0.5 {
		t.Errorf("Zoom: got %g, want 0.5", s.Zoom)
	}
	if s.Quality != profile.Max1080P {
		t.Errorf("Quality: got %v, want 1080p", s.Quality)
	}
	if s.MaxVideoBitrate != 2_000_000 {
		t.Errorf("MaxVideoBitrate: got %d, want 2000000", s.MaxVideoBitrate)
	}
	if s.DetectorType != analysis.DetectorFace {
		t.Errorf("DetectorType: got %q, want face", s.DetectorType)
	}
	if !s.AudioLevelsEnabled {
		t.Error("AudioLevelsEnabled: got false, want true")
	}
	if calls != 1 {
		t.Errorf("OnChange calls: got %d, want 1", calls)
	}
}

func TestManager_UpdateRejectsInvalid(t *testing.T) {
	m := NewManager()
	before := m.Get()

	tests := []struct {
		name   string
		params map[string]interface{}
	}{
		{"out of range", map[string]interface{}{"zoom": 3.0}},
		{"unknown key", map[string]interface{}{"iso": 800}},
		{"bad quality", map[string]interface{}{"quality": "8k"}},
		{"bad detector", map[string]interface{}{"detector_type": "xray"}},
		{"unknown preset", map[string]interface{}{"preset": "moon"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := m.Update(tc.params); err == nil {
				t.Error("Update: expected error")
			}
			if m.Get() != before {
				t.Error("settings changed after rejected update")
			}
		})
	}
}

func TestManager_Preset(t *testing.T) {
	m := NewManager()
	err := m.Update(map[string]interface{}{
		"preset": PresetSelfie,
		"zoom":   0.25,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	s := m.Get()
	if s.Position != PositionFront || s.DetectorType != analysis.DetectorFace {
		t.Errorf("preset not applied: %+v", s)
	}
	if s.Zoom != 0.25 {
		t.Errorf("override after preset: got zoom %g, want 0.25", s.Zoom)
	}
}

func TestManager_OnChangeError(t *testing.T) {
	m := NewManager()
	boom := errors.New("device busy")
	m.OnChange = func(Settings) error { return boom }

	s := m.Get()
	s.Zoom = 0.3
	if err := m.Set(s); !errors.Is(err, boom) {
		t.Errorf("Set: got %v, want wrapped %v", err, boom)
	}
}

func TestPresets_AllValid(t *testing.T) {
	names := PresetNames()
	if len(names) != len(Presets()) {
		t.Fatalf("PresetNames: got %d, want %d", len(names), len(Presets()))
	}
	for _, name := range names {
		p := GetPreset(name)
		if p == nil {
			t.Fatalf("GetPreset(%q) returned nil", name)
		}
		if errs := p.Validate(); len(errs) > 0 {
			t.Errorf("preset %q invalid: %v", name, errs)
		}
	}
	if GetPreset("nope") != nil {
		t.Error("GetPreset(nope): expected nil")
	}
}

func TestStaticPermissions(t *testing.T) {
	p := NewStaticPermissions(PermissionCamera)
	if HasPermission(p) {
		t.Error("HasPermission: camera only should be false")
	}

	err := p.Request(context.Background(), PermissionAudio)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Request: got %v, want ErrPermissionDenied", err)
	}

	p.AutoGrant = true
	if err := p.Request(context.Background(), PermissionAudio); err != nil {
		t.Fatalf("Request with AutoGrant: %v", err)
	}
	if !HasPermission(p) {
		t.Error("HasPermission: got false after grant")
	}

	p.Revoke(PermissionCamera)
	if p.Has(PermissionCamera) {
		t.Error("Has(camera) after Revoke")
	}
}
