// Package artifact compiles probe units into the shared artifacts loaded at
// runtime, one per package.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"

	"github.com/fluxbase-eu/sharedmods/internal/jsparse"
	"github.com/fluxbase-eu/sharedmods/internal/probe"
	"github.com/fluxbase-eu/sharedmods/internal/registry"
)

const (
	// BundleName is the entry output, without extension.
	BundleName = "main.bundle"
	// BundleFileName is the compiled entry loaded by the runtime.
	BundleFileName = BundleName + ".js"
	// ChunksDirName holds split chunks.
	ChunksDirName = "chunks"
)

// BuildError is returned when the build pass fails. No meta.json is written
// for the package.
type BuildError struct {
	Package     string
	Diagnostics []string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed for %s: %s", e.Package, strings.Join(e.Diagnostics, "; "))
}

// Output describes a successful build.
type Output struct {
	Meta       *registry.Meta
	BundlePath string
	Files      []OutputFile
	Bytes      int
	// Inlined lists bare specifiers compiled into the artifact.
	Inlined  []string
	Warnings []string
}

// Options configure a Builder.
type Options struct {
	Production bool
}

// Builder runs the build pass.
type Builder struct {
	opts   Options
	logger zerolog.Logger
}

// NewBuilder creates a builder.
func NewBuilder(opts Options, logger zerolog.Logger) *Builder {
	return &Builder{opts: opts, logger: logger}
}

// LibraryName derives the library identifier of a package by replacing
// every character that is not a letter, digit or underscore.
func LibraryName(pkg string) string {
	var b strings.Builder
	b.Grow(len(pkg))
	for _, r := range pkg {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Build compiles unit with every package in externals resolved through the
// runtime registry, then writes meta.json next to the bundle.
func (b *Builder) Build(ctx context.Context, unit *probe.Unit, externals map[string][]string) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := b.logger.With().Str("package", unit.Name).Logger()
	start := time.Now()

	if err := clean(unit.Dir); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(externals))
	for name := range externals {
		names = append(names, name)
	}
	sort.Strings(names)

	library := LibraryName(unit.Name)
	nodeEnv := "development"
	if b.opts.Production {
		nodeEnv = "production"
	}

	result := api.Build(api.BuildOptions{
		EntryPointsAdvanced: []api.EntryPoint{{InputPath: unit.EntryPath, OutputPath: BundleName}},
		Bundle:              true,
		Write:               true,
		Metafile:            true,
		Splitting:           true,
		Format:              api.FormatESModule,
		Platform:            api.PlatformBrowser,
		Target:              api.ES2020,
		Outdir:              unit.Dir,
		ChunkNames:          ChunksDirName + "/[name]-[hash]",
		AssetNames:          "assets/[name]-[hash]",
		PublicPath:          registry.PublicPath(unit.Name),
		AbsWorkingDir:       unit.Dir,
		LogLevel:            api.LogLevelSilent,
		MinifyWhitespace:    b.opts.Production,
		MinifyIdentifiers:   b.opts.Production,
		MinifySyntax:        b.opts.Production,
		Loader:              assetLoaders(),
		Define: map[string]string{
			"process.env.NODE_ENV": `"` + nodeEnv + `"`,
		},
		Banner: map[string]string{
			"js": "/* " + library + " */",
		},
		Plugins: []api.Plugin{
			ignorePlugin(NewIgnoreMatcher(unit.Request.Ignore)),
			registryPlugin(names),
		},
	})

	if len(result.Errors) > 0 {
		return nil, &BuildError{Package: unit.Name, Diagnostics: formatMessages(result.Errors, api.ErrorMessage)}
	}

	var metafile Metafile
	if err := json.Unmarshal([]byte(result.Metafile), &metafile); err != nil {
		return nil, fmt.Errorf("failed to parse metafile of %s: %w", unit.Name, err)
	}
	files, total := metafile.files(unit.Dir, unit.Dir)

	meta := &registry.Meta{
		Name:                 unit.Name,
		Library:              library,
		ExternalDependencies: externals,
	}
	if err := registry.WriteMeta(unit.Dir, meta); err != nil {
		return nil, fmt.Errorf("failed to write meta of %s: %w", unit.Name, err)
	}

	out := &Output{
		Meta:       meta,
		BundlePath: filepath.Join(unit.Dir, BundleFileName),
		Files:      files,
		Bytes:      total,
		Inlined:    metafile.inlined(jsparse.IsBareSpecifier),
		Warnings:   formatMessages(result.Warnings, api.WarningMessage),
	}

	logger.Debug().
		Int("files", len(files)).
		Int("bytes", total).
		Int("warnings", len(out.Warnings)).
		Strs("inlined", out.Inlined).
		Dur("duration", time.Since(start)).
		Msg("Build pass finished")

	return out, nil
}

// clean removes the outputs of a previous build so a failed build never
// leaves a stale meta.json behind.
func clean(dir string) error {
	for _, name := range []string{registry.MetaFileName, BundleFileName, ChunksDirName, "assets"} {
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("failed to clean %s: %w", filepath.Join(dir, name), err)
		}
	}
	return nil
}

// Exists reports whether a complete artifact is present in dir.
func Exists(dir string) bool {
	for _, name := range []string{registry.MetaFileName, BundleFileName} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

func assetLoaders() map[string]api.Loader {
	loaders := make(map[string]api.Loader)
	for _, ext := range []string{".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".woff", ".woff2", ".ttf", ".eot"} {
		loaders[ext] = api.LoaderFile
	}
	return loaders
}

func formatMessages(msgs []api.Message, kind api.MessageKind) []string {
	if len(msgs) == 0 {
		return nil
	}
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: kind})
	for i := range formatted {
		formatted[i] = strings.TrimSpace(formatted[i])
	}
	return formatted
}
