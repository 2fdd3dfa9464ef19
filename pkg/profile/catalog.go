package profile

import (
	"fmt"
	"sort"
	"sync"
)

// StaticCatalog is a Catalog backed by a fixed set of profiles.
type StaticCatalog struct {
	mu       sync.RWMutex
	profiles map[Quality]Profile
}

// NewStaticCatalog creates a catalog holding profiles. Each profile is keyed
// by its Quality field; later entries replace earlier ones.
func NewStaticCatalog(profiles ...Profile) *StaticCatalog {
	c := &StaticCatalog{profiles: make(map[Quality]Profile, len(profiles))}
	for _, p := range profiles {
		c.profiles[p.Quality] = p
	}
	return c
}

// Has reports whether the catalog holds q.
func (c *StaticCatalog) Has(q Quality) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.profiles[q]
	return ok
}

// Get returns the profile for q.
func (c *StaticCatalog) Get(q Quality) (Profile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[q]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, q)
	}
	return p, nil
}

// Put adds or replaces a profile.
func (c *StaticCatalog) Put(p Profile) {
	c.mu.Lock()
	c.profiles[p.Quality] = p
	c.mu.Unlock()
}

// Remove deletes a quality from the catalog.
func (c *StaticCatalog) Remove(q Quality) {
	c.mu.Lock()
	delete(c.profiles, q)
	c.mu.Unlock()
}

// Profiles returns the held profiles ordered by quality.
func (c *StaticCatalog) Profiles() []Profile {
	c.mu.RLock()
	out := make([]Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Quality < out[j].Quality })
	return out
}

// DefaultProfiles returns the standard camcorder profiles, one per quality.
// Highest mirrors 1080p and Lowest mirrors QVGA, as on most phones.
func DefaultProfiles() []Profile {
	base := func(q Quality, w, h, bitrate int) Profile {
		return Profile{
			Quality:         q,
			Width:           w,
			Height:          h,
			VideoBitrate:    bitrate,
			VideoFrameRate:  30,
			VideoCodec:      "h264",
			AudioBitrate:    96000,
			AudioSampleRate: 48000,
			AudioCodec:      "aac",
			FileFormat:      "mp4",
		}
	}

	return []Profile{
		base(Lowest, 320, 240, 512_000),
		base(QVGA, 320, 240, 512_000),
		base(Max480P, 720, 480, 2_500_000),
		base(Max720P, 1280, 720, 5_000_000),
		base(Max1080P, 1920, 1080, 10_000_000),
		base(Max2160P, 3840, 2160, 40_000_000),
		base(Highest, 1920, 1080, 10_000_000),
	}
}

// DefaultCatalog returns a catalog of DefaultProfiles.
func DefaultCatalog() *StaticCatalog {
	return NewStaticCatalog(DefaultProfiles()...)
}
