package audiolevel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-fancycamera/pkg/audioio"
)

// Meter drives a Filter from an audio source, one level per chunk.
type Meter struct {
	source audioio.Source
	filter *Filter
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}

	// OnLevel receives every new level from the metering goroutine.
	OnLevel func(Level)
}

// NewMeter creates a meter over source. maxReference is passed to NewFilter.
func NewMeter(source audioio.Source, maxReference float64, logger *slog.Logger) *Meter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Meter{
		source: source,
		filter: NewFilter(maxReference),
		logger: logger,
	}
}

// Start resets the average and begins metering. Starting a running meter is a no-op.
func (m *Meter) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		select {
		case <-m.done:
			// source ended on its own; restart below
		default:
			return nil
		}
	}

	m.filter.Reset()
	if err := m.source.Start(ctx); err != nil {
		return fmt.Errorf("start audio source: %w", err)
	}

	m.running = true
	m.done = make(chan struct{})
	go m.loop(m.source.Stream(), m.done)

	m.logger.Debug("audio metering started", "backend", m.source.Name())
	return nil
}

func (m *Meter) loop(stream <-chan audioio.AudioChunk, done chan<- struct{}) {
	defer close(done)
	for chunk := range stream {
		level := m.filter.Update(float64(chunk.Peak()))
		m.mu.Lock()
		callback := m.OnLevel
		m.mu.Unlock()
		if callback != nil {
			callback(level)
		}
	}
}

// Stop halts metering and waits for the loop to exit.
func (m *Meter) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	done := m.done
	m.mu.Unlock()

	err := m.source.Stop()
	<-done
	m.logger.Debug("audio metering stopped")
	return err
}

// Running reports whether the meter is active. It turns false as soon as
// the source ends on its own.
func (m *Meter) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// Level returns the latest reading.
func (m *Meter) Level() Level {
	return m.filter.Last()
}

// Close stops metering and releases the source.
func (m *Meter) Close() error {
	return errors.Join(m.Stop(), m.source.Close())
}
