package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Package describes a fake installed package written under node_modules.
type Package struct {
	Name             string
	Version          string
	Main             string
	Module           string
	Dependencies     map[string]string
	PeerDependencies map[string]string
	// Files maps package-relative paths to their contents.
	Files map[string]string
	// RawManifest replaces the generated package.json when set.
	RawManifest string
}

// WritePackage writes pkg to <root>/node_modules/<name> and returns its directory.
func WritePackage(t *testing.T, root string, pkg Package) string {
	t.Helper()

	dir := filepath.Join(root, "node_modules", filepath.FromSlash(pkg.Name))
	require.NoError(t, os.MkdirAll(dir, 0755))

	manifest := []byte(pkg.RawManifest)
	if pkg.RawManifest == "" {
		version := pkg.Version
		if version == "" {
			version = "1.0.0"
		}
		var err error
		manifest, err = json.MarshalIndent(map[string]any{
			"name":             pkg.Name,
			"version":          version,
			"main":             pkg.Main,
			"module":           pkg.Module,
			"dependencies":     pkg.Dependencies,
			"peerDependencies": pkg.PeerDependencies,
		}, "", "  ")
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), manifest, 0644))

	for rel, content := range pkg.Files {
		WriteFile(t, filepath.Join(dir, filepath.FromSlash(rel)), content)
	}
	return dir
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
