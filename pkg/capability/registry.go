// Package capability is the registry of optional image-analysis features.
//
// Feature modules register an Analyzer at startup; the camera consults the
// registry instead of probing for optional code at runtime.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Sentinel errors for registry operations.
var (
	ErrUnsupported       = errors.New("capability: feature not supported")
	ErrInvalidOptions    = errors.New("capability: invalid options")
	ErrAlreadyRegistered = errors.New("capability: feature already registered")
	ErrUnknownFeature    = errors.New("capability: unknown feature")
)

// Feature tags an optional analysis module.
type Feature string

const (
	BarcodeScanning Feature = "barcode_scanning"
	FaceDetection   Feature = "face_detection"
	ImageLabeling   Feature = "image_labeling"
	ObjectDetection Feature = "object_detection"
	PoseDetection   Feature = "pose_detection"
	TextRecognition Feature = "text_recognition"
)

// AllFeatures lists every known feature.
func AllFeatures() []Feature {
	return []Feature{BarcodeScanning, FaceDetection, ImageLabeling, ObjectDetection, PoseDetection, TextRecognition}
}

// Known reports whether f is one of AllFeatures.
func (f Feature) Known() bool {
	for _, k := range AllFeatures() {
		if f == k {
			return true
		}
	}
	return false
}

// Frame is one encoded image handed to analyzers.
type Frame struct {
	Data      []byte // JPEG
	Width     int
	Height    int
	Rotation  int // degrees the image must be rotated to be upright
	Timestamp time.Time
	Sequence  int64
}

// Analyzer is an optional analysis module.
type Analyzer interface {
	// Feature returns the tag this analyzer provides.
	Feature() Feature

	// DefaultOptions returns the options used until SetOptions is called.
	// Features without options return nil.
	DefaultOptions() any

	// ValidateOptions rejects options of the wrong type or with bad values.
	ValidateOptions(opts any) error

	// Analyze runs the model on a frame. The result must marshal to JSON.
	Analyze(ctx context.Context, frame Frame, opts any) (any, error)

	// Close releases model resources.
	Close() error
}

type entry struct {
	analyzer Analyzer
	options  any
}

// Registry maps features to registered analyzers.
type Registry struct {
	mu      sync.RWMutex
	entries map[Feature]*entry
}

// NewRegistry returns an empty registry; every feature is unsupported.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Feature]*entry)}
}

// Register adds an analyzer and stores its default options.
func (r *Registry) Register(a Analyzer) error {
	f := a.Feature()
	if !f.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, f)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[f]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, f)
	}
	r.entries[f] = &entry{analyzer: a, options: a.DefaultOptions()}
	return nil
}

// Supported reports whether f has a registered analyzer.
func (r *Registry) Supported(f Feature) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[f]
	return ok
}

// MLSupported reports whether any feature is supported.
func (r *Registry) MLSupported() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries) > 0
}

// Features returns the supported features in sorted order.
func (r *Registry) Features() []Feature {
	r.mu.RLock()
	out := make([]Feature, 0, len(r.entries))
	for f := range r.entries {
		out = append(out, f)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Analyzer returns the analyzer registered for f.
func (r *Registry) Analyzer(f Feature) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[f]
	if !ok {
		return nil, false
	}
	return e.analyzer, true
}

// Options returns the current options for f.
func (r *Registry) Options(f Feature) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[f]
	if !ok {
		return nil, false
	}
	return e.options, true
}

// SetOptions replaces the options for f after the analyzer validates them.
// On error the previous options are kept.
func (r *Registry) SetOptions(f Feature, opts any) error {
	r.mu.RLock()
	e, ok := r.entries[f]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, f)
	}

	if err := e.analyzer.ValidateOptions(opts); err != nil {
		if errors.Is(err, ErrInvalidOptions) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrInvalidOptions, f, err)
	}

	r.mu.Lock()
	e.options = opts
	r.mu.Unlock()
	return nil
}

// Close closes every registered analyzer and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[Feature]*entry)
	r.mu.Unlock()

	var errs []error
	for f, e := range entries {
		if err := e.analyzer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", f, err))
		}
	}
	return errors.Join(errs...)
}
