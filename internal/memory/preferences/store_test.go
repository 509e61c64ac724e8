package preferences

import (
	"testing"

	"github.com/voyplan/memory-backend/internal/types"
)

func TestVersionWidening(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want int
		ok   bool
	}{
		{"int", 4, 4, true},
		{"int64", int64(7), 7, true},
		{"float64 from json", float64(3), 3, true},
		{"missing", nil, 0, false},
		{"wrong type", "5", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prefs := map[string]any{}
			if tc.in != nil {
				prefs[types.VersionKey] = tc.in
			}
			got, ok := Version(prefs)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("Version(%v) = %d,%v want %d,%v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestVersionNilMap(t *testing.T) {
	if _, ok := Version(nil); ok {
		t.Fatal("nil map has no version")
	}
}

func TestCacheKey(t *testing.T) {
	if got := cacheKey("u42"); got != "pref:u42" {
		t.Fatalf("unexpected cache key %q", got)
	}
}
