// Package analysis runs registered image-analysis features over preview
// frames and delivers their JSON results to per-feature listeners.
package analysis

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-fancycamera/pkg/capability"
)

// DetectorType selects which features run on preview frames.
type DetectorType string

const (
	DetectorNone    DetectorType = "none"
	DetectorBarcode DetectorType = "barcode"
	DetectorFace    DetectorType = "face"
	DetectorImage   DetectorType = "image"
	DetectorObject  DetectorType = "object"
	DetectorPose    DetectorType = "pose"
	DetectorText    DetectorType = "text"
	DetectorAll     DetectorType = "all"
)

var detectorFeatures = map[DetectorType][]capability.Feature{
	DetectorNone:    nil,
	DetectorBarcode: {capability.BarcodeScanning},
	DetectorFace:    {capability.FaceDetection},
	DetectorImage:   {capability.ImageLabeling},
	DetectorObject:  {capability.ObjectDetection},
	DetectorPose:    {capability.PoseDetection},
	DetectorText:    {capability.TextRecognition},
	DetectorAll:     capability.AllFeatures(),
}

// Features returns the features the detector type enables.
func (d DetectorType) Features() []capability.Feature {
	return append([]capability.Feature(nil), detectorFeatures[d]...)
}

// Valid reports whether d is a defined detector type.
func (d DetectorType) Valid() bool {
	_, ok := detectorFeatures[d]
	return ok
}

// ParseDetectorType parses a detector name case-insensitively. The empty
// string means none.
func ParseDetectorType(s string) (DetectorType, error) {
	d := DetectorType(strings.ToLower(strings.TrimSpace(s)))
	if d == "" {
		return DetectorNone, nil
	}
	if !d.Valid() {
		return DetectorNone, fmt.Errorf("analysis: unknown detector type %q", s)
	}
	return d, nil
}
