// Package exif formats and parses the date strings stored in EXIF tags.
package exif

import (
	"fmt"
	"time"
)

// Layouts used by the DateTime, DateTimeOriginal and GPS date/time tags.
const (
	DateLayout     = "2006:01:02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = DateLayout + " " + TimeLayout
)

// FormatDate returns t as "yyyy:MM:dd".
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatTime returns t as "HH:mm:ss".
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// FormatDateTime returns t as "yyyy:MM:dd HH:mm:ss".
func FormatDateTime(t time.Time) string {
	return t.Format(DateTimeLayout)
}

// FromMillis converts a Unix millisecond timestamp to local time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// ParseDateTime parses an EXIF datetime in the local zone.
func ParseDateTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("exif: parse datetime %q: %w", s, err)
	}
	return t, nil
}
