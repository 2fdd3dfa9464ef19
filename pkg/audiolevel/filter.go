// Package audiolevel smooths raw microphone amplitudes into a level meter
// reading in decibels relative to full scale.
package audiolevel

import (
	"math"
	"sync"
)

const (
	// EMAFilter is the weight given to the previous average on each update.
	EMAFilter = 0.6

	// MinDecibels is reported for silence, where log10(0) is undefined.
	MinDecibels = -160.0

	// DefaultMaxReference is the full-scale amplitude of a 16-bit PCM source.
	DefaultMaxReference = 32767.0
)

// Level is one metering reading.
type Level struct {
	Amplitude float64 `json:"amplitude"`
	EMA       float64 `json:"amplitude_ema"`
	Decibels  float64 `json:"db"`
}

// Filter applies an exponential moving average with instant attack to a
// stream of amplitude samples.
type Filter struct {
	mu     sync.Mutex
	maxRef float64
	ema    float64
	last   Level
}

// NewFilter returns a filter whose 0 dB point is maxReference.
// A non-positive maxReference selects DefaultMaxReference.
func NewFilter(maxReference float64) *Filter {
	if maxReference <= 0 || math.IsNaN(maxReference) || math.IsInf(maxReference, 0) {
		maxReference = DefaultMaxReference
	}
	return &Filter{
		maxRef: maxReference,
		last:   Level{Decibels: MinDecibels},
	}
}

// Update feeds one raw amplitude and returns the new level.
// Negative and NaN input count as silence.
func (f *Filter) Update(raw float64) Level {
	if raw < 0 || math.IsNaN(raw) {
		raw = 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.ema = math.Max(raw, EMAFilter*f.ema+(1-EMAFilter)*raw)
	f.last = Level{
		Amplitude: raw,
		EMA:       f.ema,
		Decibels:  Decibels(f.ema, f.maxRef),
	}
	return f.last
}

// Last returns the most recent level.
func (f *Filter) Last() Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Reset clears the running average.
func (f *Filter) Reset() {
	f.mu.Lock()
	f.ema = 0
	f.last = Level{Decibels: MinDecibels}
	f.mu.Unlock()
}

// MaxReference returns the amplitude that maps to 0 dB.
func (f *Filter) MaxReference() float64 {
	return f.maxRef
}

// Decibels converts an amplitude to dB relative to maxReference, clamped at MinDecibels.
func Decibels(amplitude, maxReference float64) float64 {
	if amplitude <= 0 || maxReference <= 0 {
		return MinDecibels
	}
	db := 20 * math.Log10(amplitude/maxReference)
	if db < MinDecibels || math.IsNaN(db) {
		return MinDecibels
	}
	return db
}
