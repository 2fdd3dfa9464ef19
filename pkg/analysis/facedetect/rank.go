package facedetect

import "sort"

// Rank orders faces best first and keeps at most max (0 = all).
// Score: confidence * 0.7 + relative area * 0.3.
func Rank(faces []Face, max int) []Face {
	if len(faces) == 0 {
		return faces
	}

	maxArea := 0.0
	for _, f := range faces {
		if f.Area() > maxArea {
			maxArea = f.Area()
		}
	}

	score := func(f Face) float64 {
		rel := 0.0
		if maxArea > 0 {
			rel = f.Area() / maxArea
		}
		return f.Confidence*0.7 + rel*0.3
	}

	out := append([]Face(nil), faces...)
	sort.SliceStable(out, func(i, j int) bool { return score(out[i]) > score(out[j]) })

	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
