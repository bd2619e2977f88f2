// Package exports resolves the exported symbol names of installed packages.
package exports

// DefaultSymbol is the synthetic export standing for the whole module.
const DefaultSymbol = "default"

// KeySet is the ordered export list of a package. A non-empty KeySet always
// starts with DefaultSymbol.
type KeySet []string

// NewKeySet builds a KeySet from raw export names, dropping duplicates and
// empty names and prepending DefaultSymbol when missing.
func NewKeySet(names []string) KeySet {
	seen := make(map[string]struct{}, len(names)+1)
	keys := make(KeySet, 0, len(names)+1)
	keys = append(keys, DefaultSymbol)
	seen[DefaultSymbol] = struct{}{}
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		keys = append(keys, name)
	}
	return keys
}

// Has reports whether name is exported.
func (k KeySet) Has(name string) bool {
	for _, key := range k {
		if key == name {
			return true
		}
	}
	return false
}

// Len returns the number of exports, DefaultSymbol included.
func (k KeySet) Len() int {
	return len(k)
}

// Empty reports an unintrospectable package.
func (k KeySet) Empty() bool {
	return len(k) == 0
}

// Position returns the index of name, or -1.
func (k KeySet) Position(name string) int {
	for i, key := range k {
		if key == name {
			return i
		}
	}
	return -1
}
