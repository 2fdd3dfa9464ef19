// Package profile resolves an abstract recording quality into the best
// recording profile the current hardware offers.
package profile

import (
	"fmt"
	"strings"
)

// Quality is a named recording target, ordered from lowest to highest.
type Quality int

const (
	Lowest Quality = iota
	QVGA
	Max480P
	Max720P
	Max1080P
	Max2160P
	Highest
)

var qualityNames = [...]string{
	Lowest:   "lowest",
	QVGA:     "qvga",
	Max480P:  "480p",
	Max720P:  "720p",
	Max1080P: "1080p",
	Max2160P: "2160p",
	Highest:  "highest",
}

// Qualities returns every quality from lowest to highest.
func Qualities() []Quality {
	return []Quality{Lowest, QVGA, Max480P, Max720P, Max1080P, Max2160P, Highest}
}

// Valid reports whether q is a defined quality.
func (q Quality) Valid() bool {
	return q >= Lowest && q <= Highest
}

func (q Quality) String() string {
	if !q.Valid() {
		return fmt.Sprintf("quality(%d)", int(q))
	}
	return qualityNames[q]
}

// Fallback returns the quality tried when q is unavailable. The second result
// is false for Lowest and Highest, which the platform always provides.
func (q Quality) Fallback() (Quality, bool) {
	switch q {
	case Max2160P:
		return Highest, true
	case Max1080P:
		return Max720P, true
	case Max720P:
		return Max480P, true
	case Max480P:
		return QVGA, true
	case QVGA:
		return Lowest, true
	}
	return q, false
}

// ParseQuality accepts the names printed by String, case-insensitively.
// "max_480p" style names are accepted too.
func ParseQuality(s string) (Quality, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "max_")
	for q, n := range qualityNames {
		if n == name {
			return Quality(q), nil
		}
	}
	return 0, fmt.Errorf("profile: unknown quality %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (q Quality) MarshalText() ([]byte, error) {
	if !q.Valid() {
		return nil, fmt.Errorf("profile: invalid quality %d", int(q))
	}
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quality) UnmarshalText(text []byte) error {
	parsed, err := ParseQuality(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
