// Package usage finds which exports of external packages a package's own
// source actually imports.
package usage

import (
	"sort"

	"github.com/fluxbase-eu/sharedmods/internal/exports"
	"github.com/fluxbase-eu/sharedmods/internal/manifest"
)

// DefaultThreshold is the share of an external's exports above which a
// partial import is replaced by the whole module.
const DefaultThreshold = 0.8

// Record is the result of the parse pass over one package.
type Record struct {
	Package string
	// Used maps an external package to the symbols imported from it, after
	// collapsing.
	Used map[string][]string
	// Skipped lists externals imported but not introspectable; they are
	// inlined by the build pass.
	Skipped []string
	// DeepImports lists subpath specifiers ("pkg/sub"); they are inlined too.
	DeepImports []string
	Files       int
}

// Externals returns the used external names, sorted.
func (r *Record) Externals() []string {
	names := make([]string, 0, len(r.Used))
	for name := range r.Used {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collapse applies the collapsing rules to raw usage: an external imported
// through "default" is reduced to {default}, and so is one whose imported
// symbols exceed threshold times its export count. Symbols are ordered by
// their position in the external's KeySet.
func Collapse(raw map[string]map[string]struct{}, keys map[string]exports.KeySet, threshold float64) map[string][]string {
	used := make(map[string][]string, len(raw))
	for ext, symbols := range raw {
		if len(symbols) == 0 {
			continue
		}
		if _, ok := symbols[exports.DefaultSymbol]; ok {
			used[ext] = []string{exports.DefaultSymbol}
			continue
		}
		total := keys[ext].Len()
		if float64(len(symbols)) > threshold*float64(total) {
			used[ext] = []string{exports.DefaultSymbol}
			continue
		}
		list := make([]string, 0, len(symbols))
		for symbol := range symbols {
			list = append(list, symbol)
		}
		ks := keys[ext]
		sort.Slice(list, func(i, j int) bool {
			pi, pj := ks.Position(list[i]), ks.Position(list[j])
			if pi != pj {
				return pi < pj
			}
			return list[i] < list[j]
		})
		used[ext] = list
	}
	return used
}

// Candidates returns the package names a package may share: its own
// dependencies and peerDependencies, every consumer-declared name and the
// configured extra externals.
func Candidates(m *manifest.Manifest, consumerNames, extra []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, name := range m.DeclaredDependencies() {
		set[name] = struct{}{}
	}
	for _, name := range consumerNames {
		set[name] = struct{}{}
	}
	for _, name := range extra {
		set[name] = struct{}{}
	}
	return set
}

// Filter keeps the used externals present in candidates. The rest is
// returned as undeclared, sorted.
func Filter(used map[string][]string, candidates map[string]struct{}) (map[string][]string, []string) {
	filtered := make(map[string][]string, len(used))
	var undeclared []string
	for ext, symbols := range used {
		if _, ok := candidates[ext]; ok {
			filtered[ext] = symbols
			continue
		}
		undeclared = append(undeclared, ext)
	}
	sort.Strings(undeclared)
	return filtered, undeclared
}
