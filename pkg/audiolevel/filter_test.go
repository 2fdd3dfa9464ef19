package audiolevel

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-fancycamera/pkg/audioio"
)

const tolerance = 1e-9

func TestFilter_SilenceConvergesToFloor(t *testing.T) {
	f := NewFilter(DefaultMaxReference)
	f.Update(20000)

	var lvl Level
	for i := 0; i < 2000; i++ {
		lvl = f.Update(0)
	}

	if lvl.EMA > tolerance {
		t.Errorf("EMA: got %g, want ~0", lvl.EMA)
	}
	if lvl.Decibels != MinDecibels {
		t.Errorf("Decibels: got %g, want %g", lvl.Decibels, MinDecibels)
	}
}

func TestFilter_SpikeDecaysGeometrically(t *testing.T) {
	f := NewFilter(DefaultMaxReference)
	spike := 10000.0

	lvl := f.Update(spike)
	if lvl.EMA != spike {
		t.Fatalf("spike EMA: got %g, want %g (instant attack)", lvl.EMA, spike)
	}

	prev := lvl.EMA
	for n := 1; n <= 20; n++ {
		lvl = f.Update(0)
		want := spike * math.Pow(EMAFilter, float64(n))
		if math.Abs(lvl.EMA-want) > 1e-6*spike {
			t.Errorf("step %d: got %g, want %g", n, lvl.EMA, want)
		}
		if ratio := lvl.EMA / prev; math.Abs(ratio-EMAFilter) > 1e-9 {
			t.Errorf("step %d ratio: got %g, want %g", n, ratio, EMAFilter)
		}
		prev = lvl.EMA
	}
}

func TestFilter_Update(t *testing.T) {
	tests := []struct {
		name    string
		inputs  []float64
		wantEMA float64
	}{
		{name: "first sample attacks", inputs: []float64{100}, wantEMA: 100},
		{name: "rise takes max", inputs: []float64{100, 500}, wantEMA: 500},
		{name: "fall smooths", inputs: []float64{100, 50}, wantEMA: 0.6*100 + 0.4*50},
		{name: "negative is silence", inputs: []float64{100, -30}, wantEMA: 60},
		{name: "nan is silence", inputs: []float64{100, math.NaN()}, wantEMA: 60},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFilter(DefaultMaxReference)
			var lvl Level
			for _, in := range tc.inputs {
				lvl = f.Update(in)
			}
			if math.Abs(lvl.EMA-tc.wantEMA) > tolerance {
				t.Errorf("EMA: got %g, want %g", lvl.EMA, tc.wantEMA)
			}
		})
	}
}

func TestFilter_ZeroIsSafe(t *testing.T) {
	f := NewFilter(DefaultMaxReference)
	lvl := f.Update(0)

	if lvl.Amplitude != 0 || lvl.EMA != 0 {
		t.Errorf("zero input: got %+v", lvl)
	}
	if math.IsInf(lvl.Decibels, 0) || math.IsNaN(lvl.Decibels) || lvl.Decibels != MinDecibels {
		t.Errorf("zero input dB: got %g, want %g", lvl.Decibels, MinDecibels)
	}
}

func TestFilter_Reset(t *testing.T) {
	f := NewFilter(DefaultMaxReference)
	f.Update(30000)
	f.Reset()

	if got := f.Last(); got.EMA != 0 || got.Decibels != MinDecibels {
		t.Errorf("after Reset: got %+v", got)
	}

	lvl := f.Update(100)
	if lvl.EMA != 100 {
		t.Errorf("after Reset EMA: got %g, want 100", lvl.EMA)
	}
}

func TestDecibels(t *testing.T) {
	tests := []struct {
		name string
		amp  float64
		ref  float64
		want float64
	}{
		{name: "full scale", amp: 32767, ref: 32767, want: 0},
		{name: "tenth", amp: 3276.7, ref: 32767, want: -20},
		{name: "zero", amp: 0, ref: 32767, want: MinDecibels},
		{name: "below floor", amp: 1e-12, ref: 32767, want: MinDecibels},
		{name: "bad reference", amp: 10, ref: 0, want: MinDecibels},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Decibels(tc.amp, tc.ref)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Decibels(%g, %g): got %g, want %g", tc.amp, tc.ref, got, tc.want)
			}
		})
	}
}

func TestNewFilter_DefaultReference(t *testing.T) {
	if f := NewFilter(0); f.MaxReference() != DefaultMaxReference {
		t.Errorf("MaxReference: got %g, want %g", f.MaxReference(), DefaultMaxReference)
	}
	if f := NewFilter(1000); f.MaxReference() != 1000 {
		t.Errorf("MaxReference: got %g, want 1000", f.MaxReference())
	}
}

func TestMeter_FeedsFilterFromSource(t *testing.T) {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	cfg.BufferDuration = 2 * time.Millisecond

	src := audioio.NewMockSource(cfg, nil, audioio.WithPeaks(32767))
	m := NewMeter(src, DefaultMaxReference, nil)
	defer m.Close()

	var mu sync.Mutex
	var levels []Level
	got := make(chan struct{}, 1)
	m.OnLevel = func(l Level) {
		mu.Lock()
		levels = append(levels, l)
		n := len(levels)
		mu.Unlock()
		if n == 3 {
			got <- struct{}{}
		}
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for levels")
	}
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if levels[0].Decibels != 0 {
		t.Errorf("first level dB: got %g, want 0", levels[0].Decibels)
	}
	if math.Abs(levels[1].EMA-32767*EMAFilter) > 1e-6 {
		t.Errorf("second level EMA: got %g, want %g", levels[1].EMA, 32767*EMAFilter)
	}
	if m.Running() {
		t.Error("Running after Stop")
	}
}

func TestMeter_RestartResetsEMA(t *testing.T) {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	cfg.BufferDuration = 2 * time.Millisecond

	src := audioio.NewMockSource(cfg, nil, audioio.WithPeaks(20000))
	m := NewMeter(src, DefaultMaxReference, nil)
	defer m.Close()

	first := make(chan struct{}, 1)
	m.OnLevel = func(l Level) {
		select {
		case first <- struct{}{}:
		default:
		}
	}

	m.Start(context.Background())
	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for level")
	}
	m.Stop()

	if m.Level().EMA == 0 {
		t.Fatal("expected non-zero EMA before restart")
	}

	m.OnLevel = nil
	m.Start(context.Background())
	defer m.Stop()
	// Start resets synchronously, before any new chunk arrives the EMA can
	// only be 0 or a decayed silence value.
	if lvl := m.Level(); lvl.EMA >= 20000 {
		t.Errorf("after restart EMA: got %g, want reset", lvl.EMA)
	}
}

func TestMeter_RestartsAfterSourceEnds(t *testing.T) {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	cfg.BufferDuration = 2 * time.Millisecond

	src := audioio.NewMockSource(cfg, nil, audioio.WithPeaks(20000))
	m := NewMeter(src, DefaultMaxReference, nil)
	defer m.Close()

	levels := make(chan Level, 64)
	m.OnLevel = func(l Level) {
		select {
		case levels <- l:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-levels:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for level")
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for m.Running() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if m.Running() {
		t.Fatal("Running: got true after source ended, want false")
	}

	for len(levels) > 0 {
		<-levels
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !m.Running() {
		t.Error("Running after restart: got false, want true")
	}
	select {
	case <-levels:
	case <-time.After(2 * time.Second):
		t.Fatal("no levels after restart")
	}
}

func TestMeter_CloseReleasesSource(t *testing.T) {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	src := audioio.NewMockSource(cfg, nil)
	m := NewMeter(src, DefaultMaxReference, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := src.Start(context.Background()); err == nil {
		t.Error("source Start after Close: got nil, want error")
	}
}
