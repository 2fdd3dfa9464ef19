package camera

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/teslashibe/go-fancycamera/pkg/analysis"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

// Manager holds the current camera settings and handles updates.
type Manager struct {
	settings Settings
	mu       sync.RWMutex

	// Callback when settings change (for applying to the backend)
	OnChange func(s Settings) error
}

// NewManager creates a new settings manager with default settings.
func NewManager() *Manager {
	return &Manager{
		settings: DefaultSettings(),
	}
}

// Get returns the current settings.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Set replaces the settings. Invalid settings are rejected and the current
// settings are kept.
func (m *Manager) Set(s Settings) error {
	if errors := s.Validate(); len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	m.mu.Lock()
	m.settings = s
	callback := m.OnChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(s); err != nil {
			return fmt.Errorf("failed to apply settings: %w", err)
		}
	}

	return nil
}

// Update changes specific fields of the settings.
// Accepts a map of JSON field names to values; a "preset" key is applied
// first so the other keys override it.
func (m *Manager) Update(params map[string]interface{}) error {
	s := m.Get()

	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
		s = *preset
	}

	for key, value := range params {
		switch key {
		case "preset":
		case "position":
			if v, ok := value.(string); ok {
				s.Position = Position(v)
			}
		case "rotation":
			if v, ok := value.(string); ok {
				s.Rotation = Orientation(v)
			}
		case "white_balance":
			if v, ok := value.(string); ok {
				s.WhiteBalance = WhiteBalance(v)
			}
		case "flash_mode":
			if v, ok := value.(string); ok {
				s.FlashMode = FlashMode(v)
			}
		case "auto_focus":
			if v, ok := value.(bool); ok {
				s.AutoFocus = v
			}
		case "zoom":
			if v, ok := toFloat(value); ok {
				s.Zoom = v
			}
		case "allow_exif_rotation":
			if v, ok := value.(bool); ok {
				s.AllowExifRotation = v
			}
		case "auto_square_crop":
			if v, ok := value.(bool); ok {
				s.AutoSquareCrop = v
			}
		case "save_to_gallery":
			if v, ok := value.(bool); ok {
				s.SaveToGallery = v
			}
		case "display_ratio":
			if v, ok := value.(string); ok {
				s.DisplayRatio = v
			}
		case "picture_size":
			if v, ok := value.(string); ok {
				s.PictureSize = v
			}
		case "override_photo_width":
			if v, ok := toInt(value); ok {
				s.OverridePhotoWidth = v
			}
		case "override_photo_height":
			if v, ok := toInt(value); ok {
				s.OverridePhotoHeight = v
			}
		case "quality":
			q, err := toQuality(value)
			if err != nil {
				return err
			}
			s.Quality = q
		case "max_audio_bitrate":
			if v, ok := toInt(value); ok {
				s.MaxAudioBitrate = v
			}
		case "max_video_bitrate":
			if v, ok := toInt(value); ok {
				s.MaxVideoBitrate = v
			}
		case "max_video_frame_rate":
			if v, ok := toInt(value); ok {
				s.MaxVideoFrameRate = v
			}
		case "disable_hevc":
			if v, ok := value.(bool); ok {
				s.DisableHEVC = v
			}
		case "audio_levels_enabled":
			if v, ok := value.(bool); ok {
				s.AudioLevelsEnabled = v
			}
		case "detector_type":
			if v, ok := value.(string); ok {
				d, err := analysis.ParseDetectorType(v)
				if err != nil {
					return err
				}
				s.DetectorType = d
			}
		default:
			return fmt.Errorf("unknown setting: %s", key)
		}
	}

	return m.Set(s)
}

// Helper functions for type conversion

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

func toQuality(v interface{}) (profile.Quality, error) {
	if s, ok := v.(string); ok {
		return profile.ParseQuality(s)
	}
	if i, ok := toInt(v); ok {
		q := profile.Quality(i)
		if q.Valid() {
			return q, nil
		}
	}
	return 0, fmt.Errorf("invalid quality: %v", v)
}
