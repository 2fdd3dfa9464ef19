package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-fancycamera/pkg/capability"
)

// DefaultWorkers is the size of the analysis pool.
const DefaultWorkers = 4

// Callback receives analysis results for one feature.
type Callback interface {
	OnSuccess(result string)
	OnError(message string, err error)
}

// CallbackFuncs adapts two functions into a Callback. Either may be nil.
type CallbackFuncs struct {
	Success func(result string)
	Error   func(message string, err error)
}

// OnSuccess implements Callback.
func (c CallbackFuncs) OnSuccess(result string) {
	if c.Success != nil {
		c.Success(result)
	}
}

// OnError implements Callback.
func (c CallbackFuncs) OnError(message string, err error) {
	if c.Error != nil {
		c.Error(message, err)
	}
}

// Stats counts dispatcher activity.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Dropped   int64 `json:"dropped"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// Dispatcher fans preview frames out to the analyzers selected by the current
// detector type, on a bounded worker pool. Frames arriving while every worker
// is busy are dropped.
type Dispatcher struct {
	registry *capability.Registry
	logger   *slog.Logger

	mu        sync.RWMutex
	detector  DetectorType
	listeners map[capability.Feature]Callback

	slots chan struct{}
	wg    sync.WaitGroup

	// runMu orders wg.Add in Submit before wg.Wait in Close.
	runMu  sync.Mutex
	closed bool

	submitted atomic.Int64
	dropped   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewDispatcher creates a dispatcher over registry with the given pool size.
// A non-positive workers selects DefaultWorkers.
func NewDispatcher(registry *capability.Registry, workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:  registry,
		logger:    logger,
		detector:  DetectorNone,
		listeners: make(map[capability.Feature]Callback),
		slots:     make(chan struct{}, workers),
	}
}

// SetDetectorType selects the features to run.
func (d *Dispatcher) SetDetectorType(t DetectorType) {
	d.mu.Lock()
	d.detector = t
	d.mu.Unlock()
}

// DetectorType returns the current selection.
func (d *Dispatcher) DetectorType() DetectorType {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.detector
}

// SetListener sets or clears (cb == nil) the listener for f.
func (d *Dispatcher) SetListener(f capability.Feature, cb Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb == nil {
		delete(d.listeners, f)
		return
	}
	d.listeners[f] = cb
}

// active returns the features that are selected, registered and listened to.
func (d *Dispatcher) active() map[capability.Feature]Callback {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[capability.Feature]Callback)
	for _, f := range d.detector.Features() {
		cb, ok := d.listeners[f]
		if !ok || !d.registry.Supported(f) {
			continue
		}
		out[f] = cb
	}
	return out
}

// Submit schedules analysis of frame for every active feature. It never
// blocks; it returns the number of analyses started.
func (d *Dispatcher) Submit(ctx context.Context, frame capability.Frame) int {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.closed {
		return 0
	}

	started := 0
	for f, cb := range d.active() {
		d.submitted.Add(1)
		select {
		case d.slots <- struct{}{}:
		default:
			d.dropped.Add(1)
			continue
		}

		d.wg.Add(1)
		started++
		go func(f capability.Feature, cb Callback) {
			defer func() {
				<-d.slots
				d.wg.Done()
			}()
			d.run(ctx, f, cb, frame)
		}(f, cb)
	}
	return started
}

func (d *Dispatcher) run(ctx context.Context, f capability.Feature, cb Callback, frame capability.Frame) {
	analyzer, ok := d.registry.Analyzer(f)
	if !ok {
		return
	}
	opts, _ := d.registry.Options(f)

	result, err := analyzer.Analyze(ctx, frame, opts)
	if err != nil {
		d.failed.Add(1)
		d.logger.Debug("analysis failed", "feature", f, "seq", frame.Sequence, "error", err)
		cb.OnError(string(f)+" failed", err)
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		d.failed.Add(1)
		cb.OnError("encode "+string(f)+" result", err)
		return
	}

	d.succeeded.Add(1)
	cb.OnSuccess(string(data))
}

// Wait blocks until in-flight analyses finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Stats returns counters since creation.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Submitted: d.submitted.Load(),
		Dropped:   d.dropped.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
	}
}

// Close stops accepting frames and waits for in-flight work.
func (d *Dispatcher) Close() error {
	d.runMu.Lock()
	d.closed = true
	d.runMu.Unlock()
	d.wg.Wait()
	return nil
}
