// Package orientation turns raw device-orientation sensor readings into the
// four rotation buckets a camera pipeline cares about.
//
// Readings that fall between buckets keep the previous bucket, so a device held
// near 45 degrees does not flap between portrait and landscape.
package orientation

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidInput is returned for readings outside [0,359] other than UnknownDegrees.
var ErrInvalidInput = errors.New("orientation: invalid input")

// UnknownDegrees is the reading a sensor reports when the device is flat and
// no orientation can be derived. It leaves the bucket unchanged.
const UnknownDegrees = -1

// Bucket is a discrete rotation in degrees.
type Bucket int

const (
	Unknown Bucket = -1
	Deg0    Bucket = 0
	Deg90   Bucket = 90
	Deg180  Bucket = 180
	Deg270  Bucket = 270
)

// Known reports whether the bucket holds an actual rotation.
func (b Bucket) Known() bool {
	return b == Deg0 || b == Deg90 || b == Deg180 || b == Deg270
}

// Degrees returns the rotation in degrees, or -1 when unknown.
func (b Bucket) Degrees() int {
	if !b.Known() {
		return -1
	}
	return int(b)
}

func (b Bucket) String() string {
	if !b.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%d", int(b))
}

// Classify maps a reading in [0,359] to a bucket. The second result is false
// when the reading lies in a dead zone.
func Classify(degrees int) (Bucket, bool) {
	switch {
	case degrees >= 0 && degrees <= 20, degrees >= 340 && degrees <= 359:
		return Deg0, true
	case degrees >= 70 && degrees <= 110:
		return Deg90, true
	case degrees >= 160 && degrees <= 200:
		return Deg180, true
	case degrees >= 250 && degrees <= 290:
		return Deg270, true
	}
	return Unknown, false
}

// Bucketizer holds the current bucket for one sensor stream.
type Bucketizer struct {
	mu      sync.RWMutex
	current Bucket

	// OnChange is called after the bucket changes. It runs on the caller's
	// goroutine, outside the lock.
	OnChange func(prev, next Bucket)
}

// NewBucketizer returns a Bucketizer starting at Unknown.
func NewBucketizer() *Bucketizer {
	return &Bucketizer{current: Unknown}
}

// Update feeds one sensor reading and returns the resulting bucket.
func (b *Bucketizer) Update(degrees int) (Bucket, error) {
	next, _, err := b.Apply(degrees)
	return next, err
}

// Apply is Update that also reports whether this reading moved the bucket.
// Of several concurrent readings, exactly one reports a given change.
func (b *Bucketizer) Apply(degrees int) (Bucket, bool, error) {
	if degrees == UnknownDegrees {
		return b.Current(), false, nil
	}
	if degrees < 0 || degrees > 359 {
		return b.Current(), false, fmt.Errorf("%w: %d degrees", ErrInvalidInput, degrees)
	}

	next, ok := Classify(degrees)

	b.mu.Lock()
	old := b.current
	if !ok || next == old {
		b.mu.Unlock()
		return old, false, nil
	}
	b.current = next
	callback := b.OnChange
	b.mu.Unlock()

	if callback != nil {
		callback(old, next)
	}
	return next, true, nil
}

// Current returns the last bucket.
func (b *Bucketizer) Current() Bucket {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Reset forgets the current bucket.
func (b *Bucketizer) Reset() {
	b.mu.Lock()
	b.current = Unknown
	b.mu.Unlock()
}
