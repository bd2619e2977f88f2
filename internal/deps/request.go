// Package deps collects the shared dependencies requested by consumer
// packages (plugins and themes).
package deps

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Import styles of an AddExport.
const (
	ImportDefault = "default"
	ImportNamed   = "named"
)

// AddExport declares an export the introspector cannot see, loaded from an
// explicit path.
type AddExport struct {
	Name string `json:"name"`
	// Path defaults to the package's resolved entry. Relative paths are
	// resolved against the package root.
	Path string `json:"path,omitempty"`
	// ImportType is ImportDefault or ImportNamed (the default).
	ImportType string `json:"importType,omitempty"`
	// SaveAsModules also publishes the loaded value under these module names.
	SaveAsModules []string `json:"saveAsModules,omitempty"`
}

// Request is one shared dependency declared by a consumer.
type Request struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	// Builtins are specifiers never recorded as usage of this package.
	Builtins []string `json:"builtins,omitempty"`
	// Externals are extra package names this package may share.
	Externals      []string    `json:"externals,omitempty"`
	ExcludeExports []string    `json:"excludeExports,omitempty"`
	AddExports     []AddExport `json:"addExports,omitempty"`
	// Ignore drops matching resources from the built artifact.
	Ignore []string `json:"ignore,omitempty"`
}

// UnmarshalJSON accepts either a bare package name or a full object.
func (r *Request) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*r = Request{Name: name}
		return nil
	}

	type plain Request
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Request(p)
	return nil
}

// Validate checks the request is usable.
func (r *Request) Validate() error {
	if r.Name == "" {
		return errors.New("dependency name is required")
	}
	for _, add := range r.AddExports {
		if add.Name == "" {
			return fmt.Errorf("%s: addExports entry without name", r.Name)
		}
		switch add.ImportType {
		case "", ImportDefault, ImportNamed:
		default:
			return fmt.Errorf("%s: addExports %s: invalid importType %q", r.Name, add.Name, add.ImportType)
		}
	}
	return nil
}

// Excludes reports whether symbol is listed in ExcludeExports.
func (r *Request) Excludes(symbol string) bool {
	return contains(r.ExcludeExports, symbol)
}

// IsBuiltin reports whether specifier is listed in Builtins.
func (r *Request) IsBuiltin(specifier string) bool {
	return contains(r.Builtins, specifier)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Set is a deduplicated, ordered list of requests.
type Set []Request

// Dedupe drops requests whose (name, version) pair was already seen. The
// first declaration wins.
func Dedupe(requests []Request) Set {
	type key struct{ name, version string }
	seen := make(map[key]struct{}, len(requests))
	set := make(Set, 0, len(requests))
	for _, r := range requests {
		k := key{r.Name, r.Version}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		set = append(set, r)
	}
	return set
}

// Names returns the distinct requested package names in declaration order.
func (s Set) Names() []string {
	seen := make(map[string]struct{}, len(s))
	names := make([]string, 0, len(s))
	for _, r := range s {
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		names = append(names, r.Name)
	}
	return names
}

// Overrides returns the first request per package name. Packages reached
// only through recursion have no entry.
func (s Set) Overrides() map[string]Request {
	overrides := make(map[string]Request, len(s))
	for _, r := range s {
		if _, ok := overrides[r.Name]; !ok {
			overrides[r.Name] = r
		}
	}
	return overrides
}

// Versions returns the first declared version per package, for the install manifest.
func (s Set) Versions() map[string]string {
	versions := make(map[string]string, len(s))
	for _, r := range s {
		if _, ok := versions[r.Name]; !ok {
			versions[r.Name] = r.Version
		}
	}
	return versions
}
