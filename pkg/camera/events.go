package camera

import "github.com/teslashibe/go-fancycamera/pkg/orientation"

// EventListener receives camera lifecycle events. Methods are called from the
// controller's goroutines and must not block.
type EventListener interface {
	OnReady()
	OnCameraOpen()
	OnCameraClose()
	OnPhoto(p Photo)
	OnVideoStart()
	OnVideo(r Recording)
	OnError(message string, err error)
	OnOrientation(prev, next orientation.Bucket)
}

// NopListener ignores every event. Embed it to implement a subset.
type NopListener struct{}

func (NopListener) OnReady() {}
func (NopListener) OnCameraOpen() {}
func (NopListener) OnCameraClose() {}
func (NopListener) OnPhoto(Photo) {}
func (NopListener) OnVideoStart() {}
func (NopListener) OnVideo(Recording) {}
func (NopListener) OnError(string, error) {}
func (NopListener) OnOrientation(orientation.Bucket, orientation.Bucket) {}

var _ EventListener = NopListener{}
