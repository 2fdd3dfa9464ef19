package camera

import (
	"sort"

	"github.com/teslashibe/go-fancycamera/pkg/analysis"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

// Preset names for common configurations
const (
	PresetDefault  = "default"
	PresetSelfie   = "selfie"
	PresetVideo4K  = "4k"
	PresetVideoHD  = "1080p"
	PresetLowData  = "low_data"
	PresetScanner  = "scanner"
	PresetSquare   = "square"
	PresetVlogging = "vlog"
)

// Presets returns all available preset settings.
func Presets() map[string]Settings {
	return map[string]Settings{
		PresetDefault:  DefaultSettings(),
		PresetSelfie:   SelfieSettings(),
		PresetVideo4K:  UHD4KSettings(),
		PresetVideoHD:  HD1080Settings(),
		PresetLowData:  LowDataSettings(),
		PresetScanner:  ScannerSettings(),
		PresetSquare:   SquareSettings(),
		PresetVlogging: VlogSettings(),
	}
}

// PresetNames returns the sorted list of available preset names.
func PresetNames() []string {
	names := make([]string, 0, 8)
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns preset settings by name, or nil if not found.
func GetPreset(name string) *Settings {
	if s, ok := Presets()[name]; ok {
		return &s
	}
	return nil
}

// SelfieSettings uses the front camera with face detection.
func SelfieSettings() Settings {
	s := DefaultSettings()
	s.Position = PositionFront
	s.DetectorType = analysis.DetectorFace
	return s
}

// UHD4KSettings records at the best tier up to 2160p.
func UHD4KSettings() Settings {
	s := DefaultSettings()
	s.Quality = profile.Max2160P
	s.DisplayRatio = "16:9"
	return s
}

// HD1080Settings records 1080p without HEVC, for wide player support.
func HD1080Settings() Settings {
	s := DefaultSettings()
	s.Quality = profile.Max1080P
	s.DisplayRatio = "16:9"
	s.DisableHEVC = true
	return s
}

// LowDataSettings keeps files small.
func LowDataSettings() Settings {
	s := DefaultSettings()
	s.Quality = profile.Max480P
	s.MaxVideoBitrate = 1_000_000
	s.MaxAudioBitrate = 64_000
	s.MaxVideoFrameRate = 24
	return s
}

// ScannerSettings runs every detector with the torch on.
func ScannerSettings() Settings {
	s := DefaultSettings()
	s.DetectorType = analysis.DetectorAll
	s.FlashMode = FlashTorch
	s.AutoFocus = true
	return s
}

// SquareSettings crops photos to a square.
func SquareSettings() Settings {
	s := DefaultSettings()
	s.DisplayRatio = "1:1"
	s.AutoSquareCrop = true
	return s
}

// VlogSettings records 1080p from the front camera with live audio levels.
func VlogSettings() Settings {
	s := HD1080Settings()
	s.Position = PositionFront
	s.AudioLevelsEnabled = true
	return s
}
