package camera

import (
	"context"
	"fmt"
	"sync"
)

// Permission names a runtime permission the camera needs.
type Permission string

const (
	PermissionCamera  Permission = "camera"
	PermissionAudio   Permission = "audio"
	PermissionStorage Permission = "storage"
)

// Permissions answers and requests runtime permissions.
type Permissions interface {
	Has(p Permission) bool
	Request(ctx context.Context, ps ...Permission) error
}

// HasPermission reports whether both camera and audio are granted, the pair
// recording and audio metering need.
func HasPermission(p Permissions) bool {
	return p.Has(PermissionCamera) && p.Has(PermissionAudio)
}

// StaticPermissions grants a fixed set. With AutoGrant, Request grants
// whatever is asked for.
type StaticPermissions struct {
	mu        sync.RWMutex
	granted   map[Permission]bool
	AutoGrant bool
}

// NewStaticPermissions grants ps.
func NewStaticPermissions(ps ...Permission) *StaticPermissions {
	s := &StaticPermissions{granted: make(map[Permission]bool)}
	for _, p := range ps {
		s.granted[p] = true
	}
	return s
}

// AllPermissions grants camera, audio and storage.
func AllPermissions() *StaticPermissions {
	return NewStaticPermissions(PermissionCamera, PermissionAudio, PermissionStorage)
}

// Has implements Permissions.
func (s *StaticPermissions) Has(p Permission) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.granted[p]
}

// Request implements Permissions.
func (s *StaticPermissions) Request(ctx context.Context, ps ...Permission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []Permission
	for _, p := range ps {
		if s.granted[p] {
			continue
		}
		if s.AutoGrant {
			s.granted[p] = true
			continue
		}
		missing = append(missing, p)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, missing)
	}
	return nil
}

// Revoke removes p.
func (s *StaticPermissions) Revoke(p Permission) {
	s.mu.Lock()
	delete(s.granted, p)
	s.mu.Unlock()
}
