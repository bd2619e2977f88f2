package usage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fluxbase-eu/sharedmods/internal/exports"
	"github.com/fluxbase-eu/sharedmods/internal/manifest"
)

func symbolSet(symbols ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}

// tenExports is a KeySet of exactly ten symbols, default included.
func tenExports() exports.KeySet {
	names := make([]string, 0, 9)
	for i := 1; i <= 9; i++ {
		names = append(names, fmt.Sprintf("S%d", i))
	}
	return exports.NewKeySet(names)
}

func TestCollapse(t *testing.T) {
	keys := map[string]exports.KeySet{"X": tenExports()}

	tests := []struct {
		name      string
		raw       []string
		threshold float64
		want      []string
	}{
		{name: "default present collapses", raw: []string{"S1", "S2", "default"}, threshold: 0.8, want: []string{"default"}},
		{name: "nine of ten collapses", raw: []string{"S1", "S2", "S3", "S4", "S5", "S6", "S7", "S8", "S9"}, threshold: 0.8, want: []string{"default"}},
		{name: "seven of ten is kept", raw: []string{"S7", "S1", "S2", "S3", "S4", "S5", "S6"}, threshold: 0.8, want: []string{"S1", "S2", "S3", "S4", "S5", "S6", "S7"}},
		{name: "eight of ten is not above threshold", raw: []string{"S1", "S2", "S3", "S4", "S5", "S6", "S7", "S8"}, threshold: 0.8, want: []string{"S1", "S2", "S3", "S4", "S5", "S6", "S7", "S8"}},
		{name: "lower threshold collapses seven", raw: []string{"S1", "S2", "S3", "S4", "S5", "S6", "S7"}, threshold: 0.5, want: []string{"default"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Collapse(map[string]map[string]struct{}{"X": symbolSet(tt.raw...)}, keys, tt.threshold)
			assert.Equal(t, tt.want, got["X"])
		})
	}
}

func TestCollapse_DropsEmptySets(t *testing.T) {
	got := Collapse(map[string]map[string]struct{}{"X": {}}, map[string]exports.KeySet{"X": tenExports()}, 0.8)
	assert.Empty(t, got)
}

func TestFilter(t *testing.T) {
	m := &manifest.Manifest{
		Dependencies:     map[string]string{"libB": "1.0.0"},
		PeerDependencies: map[string]string{"react": "^18"},
	}
	candidates := Candidates(m, []string{"libC"}, []string{"libD"})

	filtered, undeclared := Filter(map[string][]string{
		"libB":  {"Foo"},
		"react": {"default"},
		"libC":  {"C"},
		"libD":  {"D"},
		"zeta":  {"default"},
		"alpha": {"A"},
	}, candidates)

	assert.Equal(t, map[string][]string{
		"libB":  {"Foo"},
		"react": {"default"},
		"libC":  {"C"},
		"libD":  {"D"},
	}, filtered)
	assert.Equal(t, []string{"alpha", "zeta"}, undeclared)
}

func TestCandidates_NilManifest(t *testing.T) {
	candidates := Candidates(nil, []string{"a"}, nil)
	assert.Equal(t, symbolSet("a"), candidates)
}
