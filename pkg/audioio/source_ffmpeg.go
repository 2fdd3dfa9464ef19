package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// FFmpegSource captures the microphone through an ffmpeg child process that
// writes raw little-endian PCM16 to stdout.
type FFmpegSource struct {
	cfg    Config
	logger *slog.Logger
	binary string

	mu       sync.Mutex
	running  bool
	closed   bool
	cancel   context.CancelFunc
	streamCh chan AudioChunk
	done     chan struct{}

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// CheckFFmpeg reports whether an ffmpeg binary is on PATH.
func CheckFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	return nil
}

func newFFmpegSource(cfg Config, logger *slog.Logger) (*FFmpegSource, error) {
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	return &FFmpegSource{
		cfg:      cfg,
		logger:   logger,
		binary:   bin,
		streamCh: make(chan AudioChunk, 10),
	}, nil
}

// captureArgs builds the ffmpeg argument list for the current platform.
func captureArgs(cfg Config, goos string) []string {
	var input []string
	switch goos {
	case "darwin":
		dev := cfg.Device
		if dev == "" {
			dev = ":default"
		}
		input = []string{"-f", "avfoundation", "-i", dev}
	default:
		dev := cfg.Device
		if dev == "" {
			dev = "default"
		}
		input = []string{"-f", "alsa", "-i", dev}
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	return append(args,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	)
}

// Start launches ffmpeg and begins reading chunks.
func (s *FFmpegSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, s.binary, captureArgs(s.cfg, runtime.GOOS)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.cancel = cancel
	s.running = true
	s.streamCh = make(chan AudioChunk, 10)
	s.done = make(chan struct{})

	go s.readLoop(cmd, stdout, s.streamCh, s.done)

	s.logger.Info("ffmpeg audio source started",
		"device", s.cfg.Device,
		"sample_rate", s.cfg.SampleRate,
	)
	return nil
}

// readLoop owns cmd: it reaps the process once stdout ends and marks the
// source stopped when ffmpeg exits on its own.
func (s *FFmpegSource) readLoop(cmd *exec.Cmd, r io.Reader, out chan<- AudioChunk, done chan struct{}) {
	defer close(done)
	defer close(out)
	defer func() {
		// ffmpeg exits with a signal status when cancelled.
		err := cmd.Wait()
		s.mu.Lock()
		exited := s.running && s.done == done
		if exited {
			s.running = false
			s.cancel()
		}
		s.mu.Unlock()
		if exited {
			s.logger.Warn("ffmpeg audio source exited", "error", err)
		}
	}()

	buf := make([]byte, s.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Debug("ffmpeg read ended", "error", err)
			}
			return
		}
		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
		select {
		case out <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			s.overruns.Add(1)
		}
	}
}

// Stop kills ffmpeg and waits for the reader to drain.
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info("ffmpeg audio source stopped")
	return nil
}

// Read reads the next chunk.
func (s *FFmpegSource) Read(ctx context.Context) (AudioChunk, error) {
	stream := s.Stream()
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-stream:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the chunk channel of the current run.
func (s *FFmpegSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *FFmpegSource) Config() Config {
	return s.cfg
}

// Name returns "ffmpeg".
func (s *FFmpegSource) Name() string {
	return "ffmpeg"
}

// Close stops capture permanently.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns source statistics.
func (s *FFmpegSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "ffmpeg",
	}
}

var _ SourceWithStats = (*FFmpegSource)(nil)
