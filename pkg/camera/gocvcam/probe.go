package gocvcam

import (
	"image"
	"strings"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-fancycamera/pkg/camera"
	"github.com/teslashibe/go-fancycamera/pkg/profile"
)

// probeCatalog keeps the middle tiers whose frame size the device accepts
// and points Lowest and Highest at the smallest and largest accepted sizes.
// Lowest and Highest are always kept.
func probeCatalog(capture *gocv.VideoCapture, catalog *profile.StaticCatalog) {
	accepts := func(w, h int) bool {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(w))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(h))
		return int(capture.Get(gocv.VideoCaptureFrameWidth)) == w &&
			int(capture.Get(gocv.VideoCaptureFrameHeight)) == h
	}
	pruneCatalog(catalog, accepts)
}

// pruneCatalog is probeCatalog over an arbitrary size test.
func pruneCatalog(catalog *profile.StaticCatalog, accepts func(w, h int) bool) {
	var lowest, highest *profile.Profile
	for _, p := range profile.DefaultProfiles() {
		if p.Quality == profile.Lowest || p.Quality == profile.Highest {
			continue
		}
		if !accepts(p.Width, p.Height) {
			catalog.Remove(p.Quality)
			continue
		}
		catalog.Put(p)

		p := p
		if lowest == nil || p.Width*p.Height < lowest.Width*lowest.Height {
			lowest = &p
		}
		if highest == nil || p.Width*p.Height > highest.Width*highest.Height {
			highest = &p
		}
	}

	if lowest != nil {
		l := *lowest
		l.Quality = profile.Lowest
		catalog.Put(l)
	}
	if highest != nil {
		h := *highest
		h.Quality = profile.Highest
		catalog.Put(h)
	}
}

// fourCC maps a profile codec name to a VideoWriter FourCC.
func fourCC(codec string) string {
	switch strings.ToLower(codec) {
	case "h264", "avc":
		return "avc1"
	case "hevc", "h265":
		return "hvc1"
	case "mjpeg", "mjpg":
		return "MJPG"
	}
	return "mp4v"
}

// squareRect returns the centered square of a w x h image.
func squareRect(w, h int) image.Rectangle {
	side := min(w, h)
	x := (w - side) / 2
	y := (h - side) / 2
	return image.Rect(x, y, x+side, y+side)
}

func rotateFlag(degrees int) (gocv.RotateFlag, bool) {
	switch degrees {
	case 90:
		return gocv.Rotate90Clockwise, true
	case 180:
		return gocv.Rotate180Clockwise, true
	case 270:
		return gocv.Rotate90CounterClockwise, true
	}
	return 0, false
}

var ratios = map[string][2]int{
	"4:3":  {4, 3},
	"16:9": {16, 9},
	"1:1":  {1, 1},
}

// matchesRatio reports whether s is within 15% of the aspect ratio r, so
// 720x480 counts as 4:3. Unknown ratios match every size.
func matchesRatio(s camera.Size, r string) bool {
	parts, ok := ratios[r]
	if !ok {
		return true
	}
	diff := s.Width*parts[1] - s.Height*parts[0]
	if diff < 0 {
		diff = -diff
	}
	return diff*100 < s.Height*parts[0]*15
}

func boolProp(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
