package camera

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-fancycamera/pkg/capability"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

// WhiteBalance selects the white balance mode.
type WhiteBalance string

const (
	WhiteBalanceAuto            WhiteBalance = "auto"
	WhiteBalanceSunny           WhiteBalance = "sunny"
	WhiteBalanceCloudy          WhiteBalance = "cloudy"
	WhiteBalanceShadow          WhiteBalance = "shadow"
	WhiteBalanceTwilight        WhiteBalance = "twilight"
	WhiteBalanceFluorescent     WhiteBalance = "fluorescent"
	WhiteBalanceIncandescent    WhiteBalance = "incandescent"
	WhiteBalanceWarmFluorescent WhiteBalance = "warm_fluorescent"
)

// Position selects the front or back camera.
type Position string

const (
	PositionBack  Position = "back"
	PositionFront Position = "front"
)

// Orientation is the target rotation of captured media.
type Orientation string

const (
	OrientationPortrait           Orientation = "portrait"
	OrientationPortraitUpsideDown Orientation = "portrait_upside_down"
	OrientationLandscapeLeft      Orientation = "landscape_left"
	OrientationLandscapeRight     Orientation = "landscape_right"
)

// FlashMode selects the flash behavior.
type FlashMode string

const (
	FlashOff   FlashMode = "off"
	FlashOn    FlashMode = "on"
	FlashAuto  FlashMode = "auto"
	FlashRed   FlashMode = "red_eye"
	FlashTorch FlashMode = "torch"
)

// Size is a width and height in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// IsZero reports whether either dimension is unset.
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// ParseSize parses "WIDTHxHEIGHT". Unparseable parts become 0 so callers can
// treat the result as "no size".
func ParseSize(value string) Size {
	parts := strings.SplitN(strings.TrimSpace(value), "x", 2)
	var s Size
	if len(parts) > 0 {
		s.Width, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		s.Height, _ = strconv.Atoi(parts[1])
	}
	return s
}

// Frame is one preview image.
type Frame = capability.Frame

// RecordingRequest tells a backend how to record.
type RecordingRequest struct {
	ID       string          `json:"id"`
	Path     string          `json:"path"`
	Profile  profile.Profile `json:"profile"`
	Rotation int             `json:"rotation"`
	Position Position        `json:"position"`
}

// Recording describes a finished or running video.
type Recording struct {
	ID        string          `json:"id"`
	Path      string          `json:"path"`
	Profile   profile.Profile `json:"profile"`
	StartedAt time.Time       `json:"started_at"`
	Seconds   int64           `json:"duration_seconds"`
}

// PhotoRequest tells a backend how to capture a still.
type PhotoRequest struct {
	ID             string    `json:"id"`
	Path           string    `json:"path"`
	Size           Size      `json:"size"` // zero = backend default
	AutoSquareCrop bool      `json:"auto_square_crop"`
	Flash          FlashMode `json:"flash"`
	Rotation       int       `json:"rotation"`
	DateTime       string    `json:"date_time"` // EXIF DateTimeOriginal
}

// Photo describes a captured still.
type Photo struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	DateTime string `json:"date_time"`
	Data     []byte `json:"-"`
}
