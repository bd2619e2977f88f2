// Package manifest locates installed packages and reads their package.json.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FileName is the manifest file of a package.
const FileName = "package.json"

// ErrNotResolvable is returned when a package cannot be located on disk.
var ErrNotResolvable = errors.New("package not resolvable")

// ReadError is returned when a manifest exists but cannot be read or decoded.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read manifest %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Manifest is the subset of package.json the bundler cares about
type Manifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Main             string            `json:"main,omitempty"`
	Module           string            `json:"module,omitempty"`
	Dependencies     map[string]string `json:"dependencies,omitempty"`
	PeerDependencies map[string]string `json:"peerDependencies,omitempty"`
	DevDependencies  map[string]string `json:"devDependencies,omitempty"`

	// FrontendDependencies lists the shared dependencies a plugin or theme
	// requests. Entries are either a package name or an object.
	FrontendDependencies []json.RawMessage `json:"frontendDependencies,omitempty"`
}

// Read loads a manifest from path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	return &m, nil
}

// DeclaredDependencies returns the names of dependencies and peer dependencies, sorted.
func (m *Manifest) DeclaredDependencies() []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(m.Dependencies)+len(m.PeerDependencies))
	for name := range m.Dependencies {
		seen[name] = struct{}{}
	}
	for name := range m.PeerDependencies {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VersionOf returns the version range declared for dep in dependencies,
// devDependencies or peerDependencies, in that order.
func (m *Manifest) VersionOf(dep string) string {
	if m == nil {
		return ""
	}
	if v, ok := m.Dependencies[dep]; ok {
		return v
	}
	if v, ok := m.DevDependencies[dep]; ok {
		return v
	}
	return m.PeerDependencies[dep]
}

// Write stores the manifest as indented JSON.
func (m *Manifest) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
