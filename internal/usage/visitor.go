package usage

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fluxbase-eu/sharedmods/internal/jsparse"
)

// ImportVisitor parses source files and reports their bare imports to a
// UsageObserver. Only files under one of its roots are visited.
type ImportVisitor struct {
	observer UsageObserver
	roots    []string
	logger   zerolog.Logger

	mu    sync.Mutex
	files map[string]struct{}
}

// NewImportVisitor creates a visitor restricted to roots.
func NewImportVisitor(observer UsageObserver, logger zerolog.Logger, roots ...string) *ImportVisitor {
	clean := make([]string, 0, len(roots))
	for _, root := range roots {
		if root != "" {
			clean = append(clean, filepath.Clean(root))
		}
	}
	return &ImportVisitor{
		observer: observer,
		roots:    clean,
		logger:   logger,
		files:    make(map[string]struct{}),
	}
}

// Owns reports whether path lies under one of the visitor's roots.
func (v *ImportVisitor) Owns(path string) bool {
	path = filepath.Clean(path)
	for _, root := range v.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Visit parses one file. Each file is visited at most once.
func (v *ImportVisitor) Visit(ctx context.Context, path string, content []byte) error {
	if !v.Owns(path) {
		return nil
	}

	v.mu.Lock()
	if _, ok := v.files[path]; ok {
		v.mu.Unlock()
		return nil
	}
	v.files[path] = struct{}{}
	v.mu.Unlock()

	file, err := jsparse.Parse(path, content)
	if err != nil {
		return err
	}
	if file.HasErrors {
		v.logger.Debug().Str("file", path).Msg("Source parsed with errors, imports may be incomplete")
	}

	for _, imp := range file.Imports {
		if jsparse.IsBareSpecifier(imp.Source) {
			v.observer.Observe(ctx, path, imp)
		}
	}
	return nil
}

// Files returns the number of files visited.
func (v *ImportVisitor) Files() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.files)
}
