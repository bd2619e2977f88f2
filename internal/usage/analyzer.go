package usage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"

	"github.com/fluxbase-eu/sharedmods/internal/exports"
	"github.com/fluxbase-eu/sharedmods/internal/jsparse"
	"github.com/fluxbase-eu/sharedmods/internal/probe"
)

// ParseError is returned when the parse pass fails for reasons unrelated to
// externals: syntax errors, unresolvable relative imports and the like.
type ParseError struct {
	Package     string
	Diagnostics []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse pass failed for %s: %s", e.Package, strings.Join(e.Diagnostics, "; "))
}

// sourceFilter matches the script files handed to the import visitor.
const sourceFilter = `\.[cm]?[jt]sx?$`

// bareFilter pre-selects specifiers that may be bare; the callback decides.
const bareFilter = `^[^./]`

// Analyzer runs the parse pass.
type Analyzer struct {
	index     *exports.Index
	threshold float64
	logger    zerolog.Logger
}

// NewAnalyzer creates an analyzer. A threshold outside (0, 1] falls back to
// DefaultThreshold.
func NewAnalyzer(index *exports.Index, threshold float64, logger zerolog.Logger) *Analyzer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Analyzer{index: index, threshold: threshold, logger: logger}
}

// Threshold returns the collapse threshold in use.
func (a *Analyzer) Threshold() float64 {
	return a.threshold
}

// Analyze compiles the unit without emitting code, every bare import left
// external, and records the exports the package's own source imports.
func (a *Analyzer) Analyze(ctx context.Context, unit *probe.Unit) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := a.logger.With().Str("package", unit.Name).Logger()
	start := time.Now()

	recorder := NewRecorder(unit.Name, a.index, unit.Request)
	visitor := NewImportVisitor(recorder, logger, packageRoots(unit.Package.Root)...)

	result := api.Build(api.BuildOptions{
		EntryPoints:   []string{unit.EntryPath},
		Bundle:        true,
		Write:         false,
		Format:        api.FormatESModule,
		Platform:      api.PlatformBrowser,
		Target:        api.ESNext,
		AbsWorkingDir: unit.Dir,
		LogLevel:      api.LogLevelSilent,
		Loader:        assetLoaders(),
		Plugins: []api.Plugin{
			bareExternalPlugin(),
			visitorPlugin(ctx, visitor, logger),
		},
	})

	if len(result.Errors) > 0 {
		return nil, &ParseError{Package: unit.Name, Diagnostics: formatMessages(result.Errors)}
	}

	record := recorder.Record(a.threshold, visitor.Files())

	logger.Debug().
		Int("files", record.Files).
		Strs("externals", record.Externals()).
		Strs("skipped", record.Skipped).
		Dur("duration", time.Since(start)).
		Msg("Parse pass finished")

	return record, nil
}

// packageRoots returns root and, when it is a symlink as in pnpm layouts,
// its target: the compiler reports resolved paths.
func packageRoots(root string) []string {
	roots := []string{root}
	if real, err := filepath.EvalSymlinks(root); err == nil && real != root {
		roots = append(roots, real)
	}
	return roots
}

func bareExternalPlugin() api.Plugin {
	return api.Plugin{
		Name: "sharedmods-bare-external",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: bareFilter},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if !jsparse.IsBareSpecifier(args.Path) {
						return api.OnResolveResult{}, nil
					}
					return api.OnResolveResult{
						Path:     args.Path,
						External: true,
					}, nil
				})
		},
	}
}

func visitorPlugin(ctx context.Context, visitor *ImportVisitor, logger zerolog.Logger) api.Plugin {
	return api.Plugin{
		Name: "sharedmods-import-visitor",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: sourceFilter, Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					if !visitor.Owns(args.Path) {
						return api.OnLoadResult{}, nil
					}
					content, err := os.ReadFile(args.Path)
					if err != nil {
						// the compiler reports unreadable files itself
						return api.OnLoadResult{}, nil
					}
					if err := visitor.Visit(ctx, args.Path, content); err != nil {
						logger.Warn().Err(err).Str("file", args.Path).Msg("Failed to scan imports")
					}
					// no contents: the compiler loads the file as usual
					return api.OnLoadResult{}, nil
				})
		},
	}
}

// assetLoaders drops non-script resources from the parse pass.
func assetLoaders() map[string]api.Loader {
	loaders := make(map[string]api.Loader)
	for _, ext := range []string{".css", ".scss", ".less", ".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".woff", ".woff2", ".ttf", ".eot"} {
		loaders[ext] = api.LoaderEmpty
	}
	return loaders
}

func formatMessages(msgs []api.Message) []string {
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	for i := range formatted {
		formatted[i] = strings.TrimSpace(formatted[i])
	}
	return formatted
}
