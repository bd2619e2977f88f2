package registry

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// MetaFileName is the descriptor written next to every successful build.
const MetaFileName = "meta.json"

// Meta is the descriptor the runtime loader reads before executing a
// package: every external dependency must be resolved into the registry
// first, with at least the listed symbols.
type Meta struct {
	Name                 string              `json:"name" yaml:"name"`
	Library              string              `json:"library,omitempty" yaml:"library,omitempty"`
	ExternalDependencies map[string][]string `json:"externalDependencies" yaml:"externalDependencies"`
}

// ExternalNames returns the external package names in sorted order.
func (m *Meta) ExternalNames() []string {
	return sortedKeys(m.ExternalDependencies)
}

// ReadMeta reads the descriptor in dir.
func ReadMeta(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFileName))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Join(dir, MetaFileName), err)
	}
	if meta.ExternalDependencies == nil {
		meta.ExternalDependencies = map[string][]string{}
	}
	return &meta, nil
}

// WriteMeta writes the descriptor into dir.
func WriteMeta(dir string, meta *Meta) error {
	if meta.ExternalDependencies == nil {
		meta.ExternalDependencies = map[string][]string{}
	}
	data, err := json.MarshalIndent(meta, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return os.WriteFile(filepath.Join(dir, MetaFileName), data, 0644)
}

// PackageDir returns the build directory of a package under outDir.
func PackageDir(outDir, name string) string {
	return filepath.Join(outDir, filepath.FromSlash(name))
}

// ListMeta reads every descriptor under outDir, sorted by package name.
// Installed dependencies under node_modules are not part of the output.
func ListMeta(outDir string) ([]*Meta, error) {
	var metas []*Meta
	err := filepath.WalkDir(outDir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "node_modules" {
				return fs.SkipDir
			}
			return nil
		}
		if d.Name() != MetaFileName {
			return nil
		}
		meta, err := ReadMeta(filepath.Dir(file))
		if err != nil {
			return err
		}
		metas = append(metas, meta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas, nil
}
