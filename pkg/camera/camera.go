package camera

import (
	"context"
	"errors"

	"github.com/teslashibe/go-fancycamera/pkg/orientation"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

var (
	// ErrNotOpen is returned by operations that need an open device.
	ErrNotOpen = errors.New("camera: not open")

	// ErrAlreadyRecording is returned when a recording is already running.
	ErrAlreadyRecording = errors.New("camera: already recording")

	// ErrNotRecording is returned by StopRecording with no recording running.
	ErrNotRecording = errors.New("camera: not recording")

	// ErrPermissionDenied is returned when a required permission is missing.
	ErrPermissionDenied = errors.New("camera: permission denied")
)

// Camera is the capability set a platform backend implements.
// Implementations must be safe for concurrent use.
type Camera interface {
	// Name returns the backend name (e.g. "mock", "gocv").
	Name() string

	// Open acquires the device with the given settings.
	Open(ctx context.Context, s Settings) error

	// Close releases the device. Closing a closed camera is a no-op.
	Close() error

	// StartPreview begins delivering frames on Frames.
	StartPreview(ctx context.Context) error

	// StopPreview stops frame delivery.
	StopPreview() error

	// Frames returns the preview frame channel. The channel is never closed
	// while the camera is open.
	Frames() <-chan Frame

	StartRecording(ctx context.Context, req RecordingRequest) error
	StopRecording() (Recording, error)
	IsRecording() bool

	TakePhoto(ctx context.Context, req PhotoRequest) (Photo, error)

	HasFlash() bool

	// ToggleCamera switches between the front and back camera.
	ToggleCamera(ctx context.Context) error

	NumberOfCameras() int
	SupportedRatios() []string
	AvailablePictureSizes(ratio string) []Size

	// Apply pushes new settings to the device.
	Apply(s Settings) error

	// OrientationUpdated is told when the device rotation bucket changes.
	OrientationUpdated(b orientation.Bucket)

	// Catalog returns the recording profiles this device offers.
	Catalog() profile.Catalog
}
