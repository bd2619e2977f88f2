// Package probe generates the synthetic entry module that drives both
// compiler passes for one package.
package probe

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fluxbase-eu/sharedmods/internal/deps"
	"github.com/fluxbase-eu/sharedmods/internal/exports"
	"github.com/fluxbase-eu/sharedmods/internal/manifest"
	"github.com/fluxbase-eu/sharedmods/internal/registry"
)

const (
	// EntryFileName is the generated entry module.
	EntryFileName = "generated.js"
	// ShimDirName holds one directory per symbol shim.
	ShimDirName = "generated"
)

// Unit is the generated entry of one package.
type Unit struct {
	Name    string
	Package *manifest.Package
	Request deps.Request
	// Dir is the package's build directory.
	Dir       string
	EntryPath string
	// ModulePath is the package entry the shims import from.
	ModulePath string
	Thunks     []registry.Thunk
	// Shims maps a symbol to its shim file. Reserved symbols have none.
	Shims map[string]string
}

// Keys returns the thunk keys in order.
func (u *Unit) Keys() []string {
	keys := make([]string, 0, len(u.Thunks))
	for _, t := range u.Thunks {
		keys = append(keys, t.Key)
	}
	return keys
}

// Generator writes probe units under an output directory.
type Generator struct {
	outDir string
	logger zerolog.Logger
}

// NewGenerator creates a generator writing into outDir.
func NewGenerator(outDir string, logger zerolog.Logger) *Generator {
	return &Generator{outDir: outDir, logger: logger}
}

// Generate writes the entry module and symbol shims of pkg. Previously
// generated shims are replaced.
func (g *Generator) Generate(pkg *manifest.Package, keys exports.KeySet, req deps.Request) (*Unit, error) {
	dir := registry.PackageDir(g.outDir, pkg.Name)
	shimRoot := filepath.Join(dir, ShimDirName)
	if err := os.RemoveAll(shimRoot); err != nil {
		return nil, fmt.Errorf("failed to clean %s: %w", shimRoot, err)
	}
	if err := os.MkdirAll(shimRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", shimRoot, err)
	}

	unit := &Unit{
		Name:       pkg.Name,
		Package:    pkg,
		Request:    req,
		Dir:        dir,
		EntryPath:  filepath.Join(dir, EntryFileName),
		ModulePath: pkg.ModuleEntry,
		Shims:      make(map[string]string),
	}

	for _, symbol := range keys {
		if req.Excludes(symbol) {
			continue
		}
		if err := g.addThunk(unit, symbol, unit.ModulePath, deps.ImportNamed, nil); err != nil {
			return nil, err
		}
	}

	for _, add := range req.AddExports {
		if req.Excludes(add.Name) {
			continue
		}
		modulePath := unit.ModulePath
		if add.Path != "" {
			modulePath = resolveAddPath(pkg.Root, add.Path)
		}
		if err := g.addThunk(unit, add.Name, modulePath, add.ImportType, add.SaveAsModules); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := registry.RenderEntry(&buf, registry.Entry{Module: pkg.Name, Thunks: unit.Thunks}); err != nil {
		return nil, fmt.Errorf("failed to render entry of %s: %w", pkg.Name, err)
	}
	if err := os.WriteFile(unit.EntryPath, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", unit.EntryPath, err)
	}

	g.logger.Debug().
		Str("package", pkg.Name).
		Int("thunks", len(unit.Thunks)).
		Int("shims", len(unit.Shims)).
		Msg("Probe generated")

	return unit, nil
}

func (g *Generator) addThunk(unit *Unit, symbol, modulePath, importType string, saveAs []string) error {
	thunk := registry.Thunk{Key: symbol, SaveAsModules: saveAs}

	if IsReserved(symbol) {
		// the whole module stands in for the symbol and claims the default
		thunk.ImportPath = filepath.ToSlash(modulePath)
		thunk.Symbol = exports.DefaultSymbol
		delete(unit.Shims, symbol)
	} else {
		shimPath := filepath.Join(unit.Dir, ShimDirName, symbol, "index.js")
		if err := os.MkdirAll(filepath.Dir(shimPath), 0755); err != nil {
			return fmt.Errorf("failed to create shim directory for %s: %w", symbol, err)
		}
		if err := os.WriteFile(shimPath, []byte(shimSource(symbol, modulePath, importType)), 0644); err != nil {
			return fmt.Errorf("failed to write shim for %s: %w", symbol, err)
		}
		unit.Shims[symbol] = shimPath
		thunk.ImportPath = "./" + path.Join(ShimDirName, symbol, "index.js")
		thunk.Symbol = symbol
	}

	for i := range unit.Thunks {
		if unit.Thunks[i].Key == symbol {
			unit.Thunks[i] = thunk
			return nil
		}
	}
	unit.Thunks = append(unit.Thunks, thunk)
	return nil
}

func shimSource(symbol, modulePath, importType string) string {
	from := registry.Quote(filepath.ToSlash(modulePath))
	if importType == deps.ImportDefault {
		return fmt.Sprintf("import __export from %s;\nexport default __export;\n", from)
	}
	return fmt.Sprintf("import { %s as __export } from %s;\nexport default __export;\n", symbol, from)
}

func resolveAddPath(root, p string) string {
	if strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../") {
		if resolved, ok := manifest.ResolveRelative(filepath.Join(root, manifest.FileName), p); ok {
			return resolved
		}
		return filepath.ToSlash(filepath.Join(root, filepath.FromSlash(p)))
	}
	return p
}
