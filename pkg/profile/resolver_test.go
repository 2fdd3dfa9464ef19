package profile

import (
	"encoding/json"
	"errors"
	"testing"
)

// recorder wraps availability and lookup with call tracking.
type recorder struct {
	available map[Quality]bool
	failing   map[Quality]bool
	lookups   []Quality
}

func (r *recorder) has(q Quality) bool { return r.available[q] }

func (r *recorder) get(q Quality) (Profile, error) {
	r.lookups = append(r.lookups, q)
	if r.failing[q] {
		return Profile{}, ErrNotFound
	}
	return Profile{Quality: q}, nil
}

func TestResolve_FullChainToLowest(t *testing.T) {
	r := &recorder{available: map[Quality]bool{Lowest: true}}

	p, err := Resolve(Max1080P, r.has, r.get)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Quality != Lowest {
		t.Errorf("Resolve: got %s, want lowest", p.Quality)
	}
	if len(r.lookups) != 1 || r.lookups[0] != Lowest {
		t.Errorf("lookups: got %v, want [lowest]", r.lookups)
	}
}

func TestResolve_HighestNoFallback(t *testing.T) {
	r := &recorder{}

	p, err := Resolve(Highest, r.has, r.get)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Quality != Highest {
		t.Errorf("Resolve: got %s, want highest", p.Quality)
	}
	if len(r.lookups) != 1 {
		t.Errorf("lookups: got %v, want exactly one", r.lookups)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		request   Quality
		available []Quality
		failing   []Quality
		want      Quality
	}{
		{name: "available 1080p", request: Max1080P, available: []Quality{Max1080P}, want: Max1080P},
		{name: "1080p to 720p", request: Max1080P, available: []Quality{Max720P}, want: Max720P},
		{name: "720p to qvga", request: Max720P, available: []Quality{QVGA}, want: QVGA},
		{name: "480p to lowest", request: Max480P, want: Lowest},
		{name: "qvga available", request: QVGA, available: []Quality{QVGA}, want: QVGA},
		{name: "2160p ignores availability", request: Max2160P, want: Max2160P},
		{name: "2160p lookup failure to highest", request: Max2160P, failing: []Quality{Max2160P}, want: Highest},
		{name: "lowest direct", request: Lowest, want: Lowest},
		{name: "available but lookup fails", request: Max720P, available: []Quality{Max720P, Max480P}, failing: []Quality{Max720P}, want: Max480P},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &recorder{available: map[Quality]bool{}, failing: map[Quality]bool{}}
			for _, q := range tc.available {
				r.available[q] = true
			}
			for _, q := range tc.failing {
				r.failing[q] = true
			}

			p, err := Resolve(tc.request, r.has, r.get)
			if err != nil {
				t.Fatalf("Resolve(%s): %v", tc.request, err)
			}
			if p.Quality != tc.want {
				t.Errorf("Resolve(%s): got %s, want %s", tc.request, p.Quality, tc.want)
			}
		})
	}
}

func TestResolve_NoProfileAvailable(t *testing.T) {
	tests := []struct {
		name    string
		request Quality
		failing []Quality
	}{
		{name: "lowest fails", request: Max1080P, failing: []Quality{Lowest}},
		{name: "highest fails", request: Highest, failing: []Quality{Highest}},
		{name: "2160p and highest fail", request: Max2160P, failing: []Quality{Max2160P, Highest}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &recorder{failing: map[Quality]bool{}}
			for _, q := range tc.failing {
				r.failing[q] = true
			}

			_, err := Resolve(tc.request, r.has, r.get)
			if !errors.Is(err, ErrNoProfileAvailable) {
				t.Fatalf("Resolve: got %v, want ErrNoProfileAvailable", err)
			}
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Resolve: cause not preserved in %v", err)
			}
			var lerr *LookupError
			if !errors.As(err, &lerr) {
				t.Errorf("Resolve: got %T, want *LookupError", err)
			}
		})
	}
}

func TestResolve_InvalidQuality(t *testing.T) {
	r := &recorder{}
	if _, err := Resolve(Quality(42), r.has, r.get); err == nil {
		t.Error("Resolve(42): expected error")
	}
}

func TestResolver_Catalog(t *testing.T) {
	cat := DefaultCatalog()
	cat.Remove(Max1080P)
	cat.Remove(Max720P)

	res := NewResolver(cat, nil)
	p, err := res.Resolve(Max1080P)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Quality != Max480P || p.Height != 480 {
		t.Errorf("Resolve: got %+v, want 480p", p)
	}
}

func TestQuality_Fallback(t *testing.T) {
	// Every chain ends at a terminal tier.
	for _, q := range Qualities() {
		cur := q
		for i := 0; ; i++ {
			next, ok := cur.Fallback()
			if !ok {
				break
			}
			if i > len(Qualities()) {
				t.Fatalf("fallback from %s does not terminate", q)
			}
			cur = next
		}
		if cur != Lowest && cur != Highest {
			t.Errorf("chain from %s ends at %s", q, cur)
		}
	}
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		in      string
		want    Quality
		wantErr bool
	}{
		{in: "lowest", want: Lowest},
		{in: "QVGA", want: QVGA},
		{in: "max_480p", want: Max480P},
		{in: "720p", want: Max720P},
		{in: " 1080P ", want: Max1080P},
		{in: "2160p", want: Max2160P},
		{in: "highest", want: Highest},
		{in: "8k", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseQuality(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseQuality(%q): err %v", tc.in, err)
			}
			if !tc.wantErr && got != tc.want {
				t.Errorf("ParseQuality(%q): got %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}

func TestQuality_JSON(t *testing.T) {
	p := Profile{Quality: Max720P, Width: 1280}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Profile
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Quality != Max720P {
		t.Errorf("Quality: got %s, want 720p", decoded.Quality)
	}
}

func TestStaticCatalog(t *testing.T) {
	cat := NewStaticCatalog(Profile{Quality: QVGA, Width: 320})
	if !cat.Has(QVGA) || cat.Has(Max720P) {
		t.Fatal("Has: wrong membership")
	}
	if _, err := cat.Get(Max720P); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: got %v, want ErrNotFound", err)
	}

	cat.Put(Profile{Quality: Lowest})
	got := cat.Profiles()
	if len(got) != 2 || got[0].Quality != Lowest || got[1].Quality != QVGA {
		t.Errorf("Profiles: got %+v", got)
	}
}
