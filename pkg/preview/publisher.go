// Package preview streams JPEG preview frames to browsers over WebRTC data
// channels.
//
// The browser creates the offer with a data channel labelled "preview"; the
// publisher answers and, once the channel opens, sends every frame split into
// chunks (see Chunk).
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-fancycamera/pkg/camera"
)

// DefaultLabel is the data channel label the publisher serves.
const DefaultLabel = "preview"

// ErrTooManyPeers is returned by Answer when MaxPeers are connected.
var ErrTooManyPeers = errors.New("preview: too many peers")

// Config configures a Publisher.
type Config struct {
	// ICEServers are STUN/TURN URLs. Empty means host candidates only.
	ICEServers []string `json:"ice_servers" yaml:"ice_servers" toml:"ice_servers"`

	// MaxPeers bounds concurrent viewers. 0 means 4.
	MaxPeers int `json:"max_peers" yaml:"max_peers" toml:"max_peers"`

	// MaxBuffered is the per-peer send backlog above which frames are skipped.
	MaxBuffered uint64 `json:"max_buffered" yaml:"max_buffered" toml:"max_buffered"`

	Label  string       `json:"label" yaml:"label" toml:"label"`
	Logger *slog.Logger `json:"-" yaml:"-" toml:"-"`
}

// DefaultConfig returns a host-only configuration.
func DefaultConfig() Config {
	return Config{
		MaxPeers:    4,
		MaxBuffered: 1 << 20,
		Label:       DefaultLabel,
	}
}

type peer struct {
	id   string
	pc   *webrtc.PeerConnection
	mu   sync.Mutex
	dc   *webrtc.DataChannel
	open atomic.Bool
}

// Publisher fans frames out to connected WebRTC peers.
type Publisher struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	peers map[string]*peer

	seq     atomic.Uint32
	sent    atomic.Int64
	skipped atomic.Int64
}

// New creates a publisher.
func New(cfg Config) *Publisher {
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = 4
	}
	if cfg.MaxBuffered == 0 {
		cfg.MaxBuffered = 1 << 20
	}
	if cfg.Label == "" {
		cfg.Label = DefaultLabel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:    cfg,
		logger: logger.With("component", "preview"),
		peers:  make(map[string]*peer),
	}
}

// Answer accepts an SDP offer and returns the answer with gathered ICE
// candidates, plus the peer id.
func (p *Publisher) Answer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, string, error) {
	p.mu.RLock()
	full := len(p.peers) >= p.cfg.MaxPeers
	p.mu.RUnlock()
	if full {
		return webrtc.SessionDescription{}, "", ErrTooManyPeers
	}

	config := webrtc.Configuration{}
	if len(p.cfg.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: p.cfg.ICEServers}}
	}
	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return webrtc.SessionDescription{}, "", fmt.Errorf("preview: create peer connection: %w", err)
	}

	pr := &peer{id: uuid.NewString(), pc: pc}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != p.cfg.Label {
			p.logger.Debug("ignoring data channel", "peer", pr.id, "label", dc.Label())
			return
		}
		pr.mu.Lock()
		pr.dc = dc
		pr.mu.Unlock()
		dc.OnOpen(func() {
			pr.open.Store(true)
			p.logger.Info("preview channel open", "peer", pr.id)
		})
		dc.OnClose(func() {
			pr.open.Store(false)
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Debug("peer state", "peer", pr.id, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			p.remove(pr.id)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, "", fmt.Errorf("preview: set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, "", fmt.Errorf("preview: create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, "", fmt.Errorf("preview: set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return webrtc.SessionDescription{}, "", ctx.Err()
	}

	p.mu.Lock()
	p.peers[pr.id] = pr
	p.mu.Unlock()

	p.logger.Info("preview peer added", "peer", pr.id)
	return *pc.LocalDescription(), pr.id, nil
}

func (p *Publisher) remove(id string) {
	p.mu.Lock()
	pr, ok := p.peers[id]
	delete(p.peers, id)
	p.mu.Unlock()

	if ok {
		pr.pc.Close()
		p.logger.Info("preview peer removed", "peer", id)
	}
}

// Remove disconnects a peer.
func (p *Publisher) Remove(id string) {
	p.remove(id)
}

// Publish sends frame to every open peer. Peers with a send backlog above
// MaxBuffered skip the frame. It is a camera.FrameSink.
func (p *Publisher) Publish(frame camera.Frame) {
	p.mu.RLock()
	peers := make([]*peer, 0, len(p.peers))
	for _, pr := range p.peers {
		peers = append(peers, pr)
	}
	p.mu.RUnlock()
	if len(peers) == 0 || len(frame.Data) == 0 {
		return
	}

	chunks := Chunk(p.seq.Add(1), frame.Data)
	for _, pr := range peers {
		if !pr.open.Load() {
			continue
		}
		pr.mu.Lock()
		dc := pr.dc
		pr.mu.Unlock()
		if dc == nil || dc.BufferedAmount() > p.cfg.MaxBuffered {
			p.skipped.Add(1)
			continue
		}
		for _, c := range chunks {
			if err := dc.Send(c); err != nil {
				p.logger.Debug("send failed", "peer", pr.id, "error", err)
				break
			}
		}
		p.sent.Add(1)
	}
}

// Peers returns the number of connected peers.
func (p *Publisher) Peers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.peers)
}

// Stats returns frames sent and skipped since creation.
func (p *Publisher) Stats() (sent, skipped int64) {
	return p.sent.Load(), p.skipped.Load()
}

// Close disconnects every peer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	peers := p.peers
	p.peers = make(map[string]*peer)
	p.mu.Unlock()

	var errs []error
	for _, pr := range peers {
		errs = append(errs, pr.pc.Close())
	}
	return errors.Join(errs...)
}
