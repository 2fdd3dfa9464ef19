// Package facedetect is the face-detection feature, backed by OpenCV's YuNet
// detector through gocv.
package facedetect

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-fancycamera/pkg/capability"
)

// Options tunes detection. It is the option type accepted by SetOptions.
type Options struct {
	ScoreThreshold float64 `json:"score_threshold" yaml:"score_threshold"` // minimum face score (0-1)
	NMSThreshold   float64 `json:"nms_threshold" yaml:"nms_threshold"`
	TopK           int     `json:"top_k" yaml:"top_k"`
	MaxFaces       int     `json:"max_faces" yaml:"max_faces"` // 0 = unlimited
}

// DefaultOptions returns production defaults for YuNet.
func DefaultOptions() Options {
	return Options{
		ScoreThreshold: 0.5,
		NMSThreshold:   0.3,
		TopK:           5000,
		MaxFaces:       0,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.ScoreThreshold <= 0 || o.ScoreThreshold > 1 {
		return fmt.Errorf("score_threshold must be in (0,1], got %g", o.ScoreThreshold)
	}
	if o.NMSThreshold <= 0 || o.NMSThreshold > 1 {
		return fmt.Errorf("nms_threshold must be in (0,1], got %g", o.NMSThreshold)
	}
	if o.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", o.TopK)
	}
	if o.MaxFaces < 0 {
		return fmt.Errorf("max_faces must not be negative, got %d", o.MaxFaces)
	}
	return nil
}

// Face is one detection, normalized to the upright frame (0-1).
type Face struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Area returns the area of the bounding box.
func (f Face) Area() float64 {
	return f.Width * f.Height
}

// Result is the JSON payload delivered to face listeners.
type Result struct {
	Faces []Face `json:"faces"`
}

// Config holds detector construction parameters.
type Config struct {
	ModelPath   string
	InputWidth  int
	InputHeight int
}

// DefaultConfig returns the default model location and input size.
func DefaultConfig() Config {
	return Config{
		ModelPath:   "models/face_detection_yunet.onnx",
		InputWidth:  320,
		InputHeight: 320,
	}
}

// Analyzer implements capability.Analyzer with OpenCV's FaceDetectorYN.
type Analyzer struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // protects inference
}

var _ capability.Analyzer = (*Analyzer)(nil)

// New loads the YuNet model.
func New(cfg Config) (*Analyzer, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("facedetect: model file: %w", err)
	}

	opts := DefaultOptions()
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(opts.ScoreThreshold),
		float32(opts.NMSThreshold),
		opts.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &Analyzer{detector: detector, config: cfg}, nil
}

// Feature implements capability.Analyzer.
func (a *Analyzer) Feature() capability.Feature {
	return capability.FaceDetection
}

// DefaultOptions implements capability.Analyzer.
func (a *Analyzer) DefaultOptions() any {
	return DefaultOptions()
}

// ValidateOptions implements capability.Analyzer.
func (a *Analyzer) ValidateOptions(opts any) error {
	o, ok := opts.(Options)
	if !ok {
		return fmt.Errorf("%w: want facedetect.Options, got %T", capability.ErrInvalidOptions, opts)
	}
	if err := o.Validate(); err != nil {
		return fmt.Errorf("%w: %v", capability.ErrInvalidOptions, err)
	}
	return nil
}

// Analyze implements capability.Analyzer.
func (a *Analyzer) Analyze(ctx context.Context, frame capability.Frame, opts any) (any, error) {
	o, ok := opts.(Options)
	if !ok {
		o = DefaultOptions()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	if flag, ok := rotateFlag(frame.Rotation); ok {
		rotated := gocv.NewMat()
		defer rotated.Close()
		gocv.Rotate(img, &rotated, flag)
		img, rotated = rotated, img
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())

	a.mu.Lock()
	defer a.mu.Unlock()

	a.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))
	a.detector.SetScoreThreshold(float32(o.ScoreThreshold))
	a.detector.SetNMSThreshold(float32(o.NMSThreshold))
	a.detector.SetTopK(o.TopK)

	faces := gocv.NewMat()
	defer faces.Close()
	a.detector.Detect(img, &faces)

	// YuNet rows: 0-3 box in pixels, 4-13 landmarks, 14 score.
	res := Result{Faces: make([]Face, 0, faces.Rows())}
	for r := 0; r < faces.Rows(); r++ {
		res.Faces = append(res.Faces, Face{
			X:          float64(faces.GetFloatAt(r, 0)) / imgW,
			Y:          float64(faces.GetFloatAt(r, 1)) / imgH,
			Width:      float64(faces.GetFloatAt(r, 2)) / imgW,
			Height:     float64(faces.GetFloatAt(r, 3)) / imgH,
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}

	res.Faces = Rank(res.Faces, o.MaxFaces)
	return res, nil
}

// Close releases the detector.
func (a *Analyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector.Close()
	return nil
}

func rotateFlag(degrees int) (gocv.RotateFlag, bool) {
	switch degrees {
	case 90:
		return gocv.Rotate90Clockwise, true
	case 180:
		return gocv.Rotate180Clockwise, true
	case 270:
		return gocv.Rotate90CounterClockwise, true
	}
	return 0, false
}
