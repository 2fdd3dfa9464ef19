// Package timer provides the recording duration counter.
package timer

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is one tick per second.
const DefaultInterval = time.Second

// Duration counts ticks while a recording runs. The first tick happens as
// soon as Start is called, so a fresh recording reads 1.
type Duration struct {
	interval time.Duration

	mu    sync.Mutex
	count int64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDuration returns a counter ticking every interval.
// A non-positive interval selects DefaultInterval.
func NewDuration(interval time.Duration) *Duration {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Duration{interval: interval}
}

// Start begins counting from zero. A running counter is restarted.
func (d *Duration) Start(ctx context.Context) {
	d.Stop()

	d.runMu.Lock()
	defer d.runMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(runCtx, d.done)
}

func (d *Duration) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	d.Tick()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Tick advances the counter by one.
func (d *Duration) Tick() {
	d.mu.Lock()
	d.count++
	d.mu.Unlock()
}

// Stop halts the ticker and resets the counter to zero.
func (d *Duration) Stop() {
	d.runMu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.runMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	d.mu.Lock()
	d.count = 0
	d.mu.Unlock()
}

// Seconds returns the current count.
func (d *Duration) Seconds() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Running reports whether the ticker is active.
func (d *Duration) Running() bool {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	return d.cancel != nil
}
