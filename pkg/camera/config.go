// Package camera defines the camera capability set that platform backends
// implement, and the Controller that layers orientation tracking, audio
// metering, profile resolution, duration counting and frame analysis on top.
package camera

import (
	"github.com/teslashibe/go-fancycamera/pkg/analysis"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

// Settings holds the user-facing camera parameters.
// These can be modified at runtime through a Manager.
type Settings struct {
	// === Device ===
	Position     Position     `json:"position" yaml:"position" toml:"position"`
	Rotation     Orientation  `json:"rotation" yaml:"rotation" toml:"rotation"`
	WhiteBalance WhiteBalance `json:"white_balance" yaml:"white_balance" toml:"white_balance"`
	FlashMode    FlashMode    `json:"flash_mode" yaml:"flash_mode" toml:"flash_mode"`
	AutoFocus    bool         `json:"auto_focus" yaml:"auto_focus" toml:"auto_focus"`

	// Zoom is the linear zoom (0.0 = widest, 1.0 = maximum).
	Zoom float64 `json:"zoom" yaml:"zoom" toml:"zoom"`

	// === Photo ===
	AllowExifRotation bool `json:"allow_exif_rotation" yaml:"allow_exif_rotation" toml:"allow_exif_rotation"`
	AutoSquareCrop    bool `json:"auto_square_crop" yaml:"auto_square_crop" toml:"auto_square_crop"`
	SaveToGallery     bool `json:"save_to_gallery" yaml:"save_to_gallery" toml:"save_to_gallery"`

	// DisplayRatio is the preview aspect ratio, e.g. "4:3" or "16:9".
	DisplayRatio string `json:"display_ratio" yaml:"display_ratio" toml:"display_ratio"`

	// PictureSize is "WIDTHxHEIGHT", or "0x0" for the backend default.
	PictureSize string `json:"picture_size" yaml:"picture_size" toml:"picture_size"`

	// Override dimensions take precedence over PictureSize. -1 = unset.
	OverridePhotoWidth  int `json:"override_photo_width" yaml:"override_photo_width" toml:"override_photo_width"`
	OverridePhotoHeight int `json:"override_photo_height" yaml:"override_photo_height" toml:"override_photo_height"`

	// === Video ===
	Quality profile.Quality `json:"quality" yaml:"quality" toml:"quality"`

	// Caps applied to the resolved profile. 0 = no cap.
	MaxAudioBitrate   int  `json:"max_audio_bitrate" yaml:"max_audio_bitrate" toml:"max_audio_bitrate"`
	MaxVideoBitrate   int  `json:"max_video_bitrate" yaml:"max_video_bitrate" toml:"max_video_bitrate"`
	MaxVideoFrameRate int  `json:"max_video_frame_rate" yaml:"max_video_frame_rate" toml:"max_video_frame_rate"`
	DisableHEVC       bool `json:"disable_hevc" yaml:"disable_hevc" toml:"disable_hevc"`

	// === Audio / analysis ===
	AudioLevelsEnabled bool                  `json:"audio_levels_enabled" yaml:"audio_levels_enabled" toml:"audio_levels_enabled"`
	DetectorType       analysis.DetectorType `json:"detector_type" yaml:"detector_type" toml:"detector_type"`
}

// DefaultSettings returns the settings a fresh camera view starts with.
func DefaultSettings() Settings {
	return Settings{
		Position:     PositionBack,
		Rotation:     OrientationPortrait,
		WhiteBalance: WhiteBalanceAuto,
		FlashMode:    FlashOff,
		AutoFocus:    true,
		Zoom:         0,

		AllowExifRotation:   true,
		AutoSquareCrop:      false,
		SaveToGallery:       false,
		DisplayRatio:        "4:3",
		PictureSize:         "0x0",
		OverridePhotoWidth:  -1,
		OverridePhotoHeight: -1,

		Quality:           profile.Max720P,
		MaxAudioBitrate:   0,
		MaxVideoBitrate:   0,
		MaxVideoFrameRate: 0,
		DisableHEVC:       false,

		AudioLevelsEnabled: false,
		DetectorType:       analysis.DetectorNone,
	}
}

var (
	validPositions     = map[Position]bool{PositionBack: true, PositionFront: true}
	validOrientations  = map[Orientation]bool{OrientationPortrait: true, OrientationPortraitUpsideDown: true, OrientationLandscapeLeft: true, OrientationLandscapeRight: true}
	validFlashModes    = map[FlashMode]bool{FlashOff: true, FlashOn: true, FlashAuto: true, FlashRed: true, FlashTorch: true}
	validWhiteBalances = map[WhiteBalance]bool{
		WhiteBalanceAuto: true, WhiteBalanceSunny: true, WhiteBalanceCloudy: true, WhiteBalanceShadow: true,
		WhiteBalanceTwilight: true, WhiteBalanceFluorescent: true, WhiteBalanceIncandescent: true, WhiteBalanceWarmFluorescent: true,
	}
	validRatios = map[string]bool{"4:3": true, "16:9": true, "1:1": true}
)

// Validate checks if the settings are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (s *Settings) Validate() []string {
	var errors []string

	if !validPositions[s.Position] {
		errors = append(errors, "position must be back or front")
	}
	if s.Rotation != "" && !validOrientations[s.Rotation] {
		errors = append(errors, "rotation must be portrait, portrait_upside_down, landscape_left or landscape_right")
	}
	if !validWhiteBalances[s.WhiteBalance] {
		errors = append(errors, "white_balance is not a known mode")
	}
	if !validFlashModes[s.FlashMode] {
		errors = append(errors, "flash_mode must be off, on, auto, red_eye or torch")
	}
	if s.Zoom < 0 || s.Zoom > 1 {
		errors = append(errors, "zoom must be between 0.0 and 1.0")
	}

	if !validRatios[s.DisplayRatio] {
		errors = append(errors, "display_ratio must be 4:3, 16:9 or 1:1")
	}
	if s.PictureSize != "" && s.PictureSize != "0x0" && ParseSize(s.PictureSize).IsZero() {
		errors = append(errors, "picture_size must be WIDTHxHEIGHT")
	}
	if s.OverridePhotoWidth == 0 || s.OverridePhotoWidth < -1 {
		errors = append(errors, "override_photo_width must be -1 (unset) or positive")
	}
	if s.OverridePhotoHeight == 0 || s.OverridePhotoHeight < -1 {
		errors = append(errors, "override_photo_height must be -1 (unset) or positive")
	}

	if !s.Quality.Valid() {
		errors = append(errors, "quality is not a known tier")
	}
	if s.MaxAudioBitrate < 0 || s.MaxVideoBitrate < 0 || s.MaxVideoFrameRate < 0 {
		errors = append(errors, "bitrate and frame rate caps must be 0 (none) or positive")
	}

	if !s.DetectorType.Valid() {
		errors = append(errors, "detector_type is not a known detector")
	}

	return errors
}

// PhotoSize returns the requested photo size: the overrides when both are
// set, otherwise PictureSize. Zero means backend default.
func (s *Settings) PhotoSize() Size {
	if s.OverridePhotoWidth > 0 && s.OverridePhotoHeight > 0 {
		return Size{Width: s.OverridePhotoWidth, Height: s.OverridePhotoHeight}
	}
	return ParseSize(s.PictureSize)
}

// CapProfile applies the bitrate, frame rate and codec limits to p.
func (s *Settings) CapProfile(p profile.Profile) profile.Profile {
	if s.MaxVideoBitrate > 0 && p.VideoBitrate > s.MaxVideoBitrate {
		p.VideoBitrate = s.MaxVideoBitrate
	}
	if s.MaxAudioBitrate > 0 && p.AudioBitrate > s.MaxAudioBitrate {
		p.AudioBitrate = s.MaxAudioBitrate
	}
	if s.MaxVideoFrameRate > 0 && p.VideoFrameRate > s.MaxVideoFrameRate {
		p.VideoFrameRate = s.MaxVideoFrameRate
	}
	if s.DisableHEVC && (p.VideoCodec == "hevc" || p.VideoCodec == "h265") {
		p.VideoCodec = "h264"
	}
	return p
}

// Capabilities describes what a backend can do.
type Capabilities struct {
	Backend         string   `json:"backend"`
	NumberOfCameras int      `json:"number_of_cameras"`
	HasFlash        bool     `json:"has_flash"`
	Ratios          []string `json:"ratios"`
	Features        []string `json:"features"`
	MLSupported     bool     `json:"ml_supported"`
}
