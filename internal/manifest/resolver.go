package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// entryExtensions are tried in order when an entry path has no file of its own
var entryExtensions = []string{".js", ".mjs", ".cjs", ".jsx"}

// Package is an installed package located by the Resolver.
type Package struct {
	Name string
	// Root is the package directory (the one holding package.json).
	Root string
	// Manifest is never nil; it is empty when ManifestErr is set.
	Manifest    *Manifest
	ManifestErr error
	// Entry is the CommonJS entry (main), ModuleEntry the ES-module entry if
	// the package declares one, otherwise equal to Entry.
	Entry       string
	ModuleEntry string
}

// Resolver finds installed packages by walking node_modules directories
// upwards from a set of roots.
type Resolver struct {
	roots []string
}

// NewResolver creates a resolver. Roots are searched in order.
func NewResolver(roots ...string) *Resolver {
	abs := make([]string, 0, len(roots))
	for _, root := range roots {
		if root == "" {
			continue
		}
		if p, err := filepath.Abs(root); err == nil {
			abs = append(abs, p)
		}
	}
	return &Resolver{roots: abs}
}

// Roots returns the search roots.
func (r *Resolver) Roots() []string {
	return r.roots
}

// Resolve locates a package by name. A missing or malformed package.json
// does not fail resolution as long as the package directory and an entry file exist.
func (r *Resolver) Resolve(name string) (*Package, error) {
	if name == "" || strings.HasPrefix(name, ".") || filepath.IsAbs(name) {
		return nil, fmt.Errorf("%w: invalid package name %q", ErrNotResolvable, name)
	}

	dir := r.findDir(name)
	if dir == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotResolvable, name)
	}

	pkg := &Package{Name: name, Root: dir}
	m, err := Read(filepath.Join(dir, FileName))
	if err != nil {
		pkg.ManifestErr = err
		m = &Manifest{Name: name}
	}
	pkg.Manifest = m

	main := m.Main
	if main == "" {
		main = "index.js"
	}
	entry, ok := resolveFile(filepath.Join(dir, main))
	if !ok {
		return nil, fmt.Errorf("%w: %s has no entry file %s", ErrNotResolvable, name, main)
	}
	pkg.Entry = entry
	pkg.ModuleEntry = entry

	if m.Module != "" {
		if moduleEntry, ok := resolveFile(filepath.Join(dir, m.Module)); ok {
			pkg.ModuleEntry = moduleEntry
		}
	}

	return pkg, nil
}

func (r *Resolver) findDir(name string) string {
	rel := filepath.FromSlash(name)
	for _, root := range r.roots {
		dir := root
		for {
			candidate := filepath.Join(dir, "node_modules", rel)
			if info, err := os.Stat(candidate); err == nil && info.IsDir() {
				return candidate
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return ""
}

// resolveFile applies node's file and directory lookup rules to base.
func resolveFile(base string) (string, bool) {
	if isFile(base) {
		return filepath.ToSlash(base), true
	}
	for _, ext := range entryExtensions {
		if isFile(base + ext) {
			return filepath.ToSlash(base + ext), true
		}
	}
	for _, ext := range entryExtensions {
		index := filepath.Join(base, "index"+ext)
		if isFile(index) {
			return filepath.ToSlash(index), true
		}
	}
	return "", false
}

// ResolveRelative resolves a relative specifier against the directory of from.
func ResolveRelative(from, spec string) (string, bool) {
	return resolveFile(filepath.Join(filepath.Dir(filepath.FromSlash(from)), filepath.FromSlash(spec)))
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
