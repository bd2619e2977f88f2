package deps

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/fluxbase-eu/sharedmods/internal/manifest"
)

// Consumer is a plugin or theme package declaring shared dependencies.
type Consumer struct {
	Dir      string
	Manifest *manifest.Manifest
}

// Discover finds consumer package directories under root. Patterns are
// doublestar globs matching package directories, relative to root.
func Discover(root string, patterns []string) ([]string, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	var dirs []string

	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, path.Join(pattern, manifest.FileName))
		if err != nil {
			return nil, fmt.Errorf("invalid consumer pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if strings.Contains(match, "node_modules/") {
				continue
			}
			dir := filepath.Join(root, filepath.FromSlash(path.Dir(match)))
			if _, ok := seen[dir]; ok {
				continue
			}
			seen[dir] = struct{}{}
			dirs = append(dirs, dir)
		}
	}

	sort.Strings(dirs)
	return dirs, nil
}

// Collect reads the frontendDependencies of every consumer found under root
// and returns the deduplicated requests. A consumer whose manifest cannot be
// read is skipped with a warning.
func Collect(root string, patterns []string, logger zerolog.Logger) (Set, []Consumer, error) {
	dirs, err := Discover(root, patterns)
	if err != nil {
		return nil, nil, err
	}

	var (
		requests  []Request
		consumers []Consumer
	)
	for _, dir := range dirs {
		m, err := manifest.Read(filepath.Join(dir, manifest.FileName))
		if err != nil {
			logger.Warn().Err(err).Str("consumer", dir).Msg("Skipping consumer with unreadable manifest")
			continue
		}
		consumers = append(consumers, Consumer{Dir: dir, Manifest: m})
		requests = append(requests, FromManifest(m, logger)...)
	}

	set := Dedupe(requests)
	logger.Info().
		Int("consumers", len(consumers)).
		Int("dependencies", len(set)).
		Strs("names", set.Names()).
		Msg("Collected shared dependencies")

	return set, consumers, nil
}

// FromManifest decodes the frontendDependencies of a consumer manifest. The
// version of each request is the range the consumer itself depends on.
func FromManifest(m *manifest.Manifest, logger zerolog.Logger) []Request {
	requests := make([]Request, 0, len(m.FrontendDependencies))
	for _, raw := range m.FrontendDependencies {
		var r Request
		if err := json.Unmarshal(raw, &r); err != nil {
			logger.Warn().Err(err).Str("consumer", m.Name).Msg("Invalid frontendDependencies entry")
			continue
		}
		if err := r.Validate(); err != nil {
			logger.Warn().Err(err).Str("consumer", m.Name).Msg("Invalid frontendDependencies entry")
			continue
		}
		r.Version = m.VersionOf(r.Name)
		requests = append(requests, r)
	}
	return requests
}
