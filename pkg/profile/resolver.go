package profile

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoProfileAvailable is returned when even the terminal tier cannot be
// looked up. The platform guarantees Lowest and Highest, so this is fatal.
var ErrNoProfileAvailable = errors.New("profile: no profile available")

// ErrNotFound is returned by catalogs for qualities they do not hold.
var ErrNotFound = errors.New("profile: not found")

// Profile describes a concrete recording configuration.
type Profile struct {
	Quality         Quality `json:"quality" yaml:"quality" toml:"quality"`
	Width           int     `json:"width" yaml:"width" toml:"width"`
	Height          int     `json:"height" yaml:"height" toml:"height"`
	VideoBitrate    int     `json:"video_bitrate" yaml:"video_bitrate" toml:"video_bitrate"`
	VideoFrameRate  int     `json:"video_frame_rate" yaml:"video_frame_rate" toml:"video_frame_rate"`
	VideoCodec      string  `json:"video_codec" yaml:"video_codec" toml:"video_codec"`
	AudioBitrate    int     `json:"audio_bitrate" yaml:"audio_bitrate" toml:"audio_bitrate"`
	AudioSampleRate int     `json:"audio_sample_rate" yaml:"audio_sample_rate" toml:"audio_sample_rate"`
	AudioCodec      string  `json:"audio_codec" yaml:"audio_codec" toml:"audio_codec"`
	FileFormat      string  `json:"file_format" yaml:"file_format" toml:"file_format"`
}

// LookupError records a failed lookup of a terminal tier.
type LookupError struct {
	Quality Quality
	Err     error
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	return fmt.Sprintf("profile [%s]: %v", e.Quality, e.Err)
}

// Unwrap returns the underlying error.
func (e *LookupError) Unwrap() error {
	return e.Err
}

// Is makes every LookupError match ErrNoProfileAvailable.
func (e *LookupError) Is(target error) bool {
	return target == ErrNoProfileAvailable
}

// Resolve walks the fallback chain starting at q.
//
// has reports whether the hardware offers a tier; it is not consulted for
// Max2160P, Highest or Lowest, and a nil has treats every tier as offered.
// get fetches a tier's profile. Max2160P and any middle tier whose lookup
// fails fall back like an unavailable tier; a failed lookup of Highest or
// Lowest is a *LookupError matching ErrNoProfileAvailable.
func Resolve(q Quality, has func(Quality) bool, get func(Quality) (Profile, error)) (Profile, error) {
	p, _, err := resolve(q, has, get, nil)
	return p, err
}

func resolve(q Quality, has func(Quality) bool, get func(Quality) (Profile, error), visit func(from, to Quality, err error)) (Profile, Quality, error) {
	if !q.Valid() {
		return Profile{}, q, fmt.Errorf("profile: invalid quality %d", int(q))
	}

	// The chain is strictly decreasing except Max2160P -> Highest, so it
	// terminates within len(Qualities()) steps.
	for steps := 0; steps <= len(qualityNames); steps++ {
		next, ok := q.Fallback()
		if !ok {
			p, err := get(q)
			if err != nil {
				return Profile{}, q, &LookupError{Quality: q, Err: err}
			}
			return p, q, nil
		}

		if q == Max2160P || has == nil || has(q) {
			p, err := get(q)
			if err == nil {
				return p, q, nil
			}
			if visit != nil {
				visit(q, next, err)
			}
		} else if visit != nil {
			visit(q, next, nil)
		}
		q = next
	}
	return Profile{}, q, ErrNoProfileAvailable
}

// Catalog is the set of profiles a device offers.
type Catalog interface {
	// Has reports whether the device supports q.
	Has(q Quality) bool

	// Get returns the profile for q, or an error if it is unavailable.
	Get(q Quality) (Profile, error)
}

// Resolver resolves qualities against a catalog and logs fallbacks.
type Resolver struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewResolver creates a resolver over catalog.
func NewResolver(catalog Catalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: catalog, logger: logger}
}

// Resolve returns the best available profile for q.
func (r *Resolver) Resolve(q Quality) (Profile, error) {
	p, got, err := resolve(q, r.catalog.Has, r.catalog.Get, func(from, to Quality, err error) {
		if err != nil {
			r.logger.Debug("profile lookup failed, falling back", "from", from, "to", to, "error", err)
			return
		}
		r.logger.Debug("profile unavailable, falling back", "from", from, "to", to)
	})
	if err != nil {
		return Profile{}, err
	}
	if got != q {
		r.logger.Info("resolved recording profile", "requested", q, "resolved", got)
	}
	return p, nil
}

// Catalog returns the underlying catalog.
func (r *Resolver) Catalog() Catalog {
	return r.catalog
}
