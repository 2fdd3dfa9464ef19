package analysis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/teslashibe/go-fancycamera/pkg/capability"
)

type collector struct {
	mu      sync.Mutex
	results []string
	errs    []error
}

func (c *collector) OnSuccess(result string) {
	c.mu.Lock()
	c.results = append(c.results, result)
	c.mu.Unlock()
}

func (c *collector) OnError(message string, err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func faceAnalyzer() *capability.Func {
	return &capability.Func{
		Tag: capability.FaceDetection,
		Fn: func(ctx context.Context, frame capability.Frame, opts any) (any, error) {
			return map[string]any{"faces": 1, "seq": frame.Sequence}, nil
		},
	}
}

func TestDetectorType_Features(t *testing.T) {
	tests := []struct {
		detector DetectorType
		want     int
	}{
		{DetectorNone, 0},
		{DetectorFace, 1},
		{DetectorBarcode, 1},
		{DetectorAll, len(capability.AllFeatures())},
	}

	for _, tc := range tests {
		t.Run(string(tc.detector), func(t *testing.T) {
			if got := len(tc.detector.Features()); got != tc.want {
				t.Errorf("Features: got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestParseDetectorType(t *testing.T) {
	if d, err := ParseDetectorType("Face"); err != nil || d != DetectorFace {
		t.Errorf("ParseDetectorType(Face): got %v, %v", d, err)
	}
	if d, err := ParseDetectorType(""); err != nil || d != DetectorNone {
		t.Errorf("ParseDetectorType(\"\"): got %v, %v", d, err)
	}
	if _, err := ParseDetectorType("ink"); err == nil {
		t.Error("ParseDetectorType(ink): expected error")
	}
}

func TestDispatcher_DeliversJSON(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register(faceAnalyzer())

	d := NewDispatcher(reg, 2, nil)
	defer d.Close()

	c := &collector{}
	d.SetListener(capability.FaceDetection, c)
	d.SetDetectorType(DetectorFace)

	if n := d.Submit(context.Background(), capability.Frame{Sequence: 7}); n != 1 {
		t.Fatalf("Submit: started %d, want 1", n)
	}
	d.Wait()

	if len(c.results) != 1 || c.results[0] != `{"faces":1,"seq":7}` {
		t.Errorf("results: got %v", c.results)
	}
}

func TestDispatcher_SkipsInactive(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register(faceAnalyzer())

	tests := []struct {
		name     string
		detector DetectorType
		listen   capability.Feature
	}{
		{name: "detector none", detector: DetectorNone, listen: capability.FaceDetection},
		{name: "other detector", detector: DetectorText, listen: capability.FaceDetection},
		{name: "no listener", detector: DetectorFace, listen: capability.TextRecognition},
		{name: "unregistered feature", detector: DetectorAll, listen: capability.PoseDetection},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDispatcher(reg, 1, nil)
			defer d.Close()
			d.SetDetectorType(tc.detector)
			d.SetListener(tc.listen, &collector{})

			if n := d.Submit(context.Background(), capability.Frame{}); n != 0 {
				t.Errorf("Submit: started %d, want 0", n)
			}
		})
	}
}

func TestDispatcher_Errors(t *testing.T) {
	boom := errors.New("model crashed")
	reg := capability.NewRegistry()
	reg.Register(&capability.Func{
		Tag: capability.TextRecognition,
		Fn: func(ctx context.Context, frame capability.Frame, opts any) (any, error) {
			return nil, boom
		},
	})

	d := NewDispatcher(reg, 1, nil)
	defer d.Close()

	c := &collector{}
	d.SetListener(capability.TextRecognition, c)
	d.SetDetectorType(DetectorAll)
	d.Submit(context.Background(), capability.Frame{})
	d.Wait()

	if len(c.errs) != 1 || !errors.Is(c.errs[0], boom) {
		t.Errorf("errors: got %v", c.errs)
	}
	if s := d.Stats(); s.Failed != 1 || s.Succeeded != 0 {
		t.Errorf("Stats: got %+v", s)
	}
}

func TestDispatcher_DropsWhenBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	reg := capability.NewRegistry()
	reg.Register(&capability.Func{
		Tag: capability.FaceDetection,
		Fn: func(ctx context.Context, frame capability.Frame, opts any) (any, error) {
			started <- struct{}{}
			<-release
			return true, nil
		},
	})

	d := NewDispatcher(reg, 1, nil)
	d.SetListener(capability.FaceDetection, &collector{})
	d.SetDetectorType(DetectorFace)

	if n := d.Submit(context.Background(), capability.Frame{Sequence: 1}); n != 1 {
		t.Fatalf("first Submit: started %d, want 1", n)
	}
	<-started
	if n := d.Submit(context.Background(), capability.Frame{Sequence: 2}); n != 0 {
		t.Errorf("busy Submit: started %d, want 0", n)
	}

	close(release)
	d.Close()

	if s := d.Stats(); s.Dropped != 1 || s.Submitted != 2 {
		t.Errorf("Stats: got %+v", s)
	}
	if n := d.Submit(context.Background(), capability.Frame{}); n != 0 {
		t.Errorf("Submit after Close: started %d, want 0", n)
	}
}

func TestDispatcher_NoAnalysisAfterClose(t *testing.T) {
	var late atomic.Int64
	for i := 0; i < 200; i++ {
		var closed atomic.Bool
		reg := capability.NewRegistry()
		reg.Register(&capability.Func{
			Tag: capability.FaceDetection,
			Fn: func(ctx context.Context, frame capability.Frame, opts any) (any, error) {
				if closed.Load() {
					late.Add(1)
				}
				return nil, nil
			},
		})

		d := NewDispatcher(reg, 4, nil)
		d.SetListener(capability.FaceDetection, CallbackFuncs{})
		d.SetDetectorType(DetectorFace)

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 20; k++ {
					d.Submit(context.Background(), capability.Frame{Sequence: int64(k)})
				}
			}()
		}
		d.Close()
		closed.Store(true)
		wg.Wait()
	}
	if got := late.Load(); got != 0 {
		t.Errorf("analyses after Close: got %d, want 0", got)
	}
}

func TestCallbackFuncs_NilSafe(t *testing.T) {
	var cb Callback = CallbackFuncs{}
	cb.OnSuccess("{}")
	cb.OnError("x", errors.New("y"))
}
