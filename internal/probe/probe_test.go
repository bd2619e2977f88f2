package probe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/sharedmods/internal/deps"
	"github.com/fluxbase-eu/sharedmods/internal/exports"
	"github.com/fluxbase-eu/sharedmods/internal/manifest"
	"github.com/fluxbase-eu/sharedmods/internal/registry"
	"github.com/fluxbase-eu/sharedmods/internal/testutil"
)

func resolveFixture(t *testing.T, pkg testutil.Package) (*manifest.Package, string) {
	t.Helper()
	root := t.TempDir()
	testutil.WritePackage(t, root, pkg)
	resolved, err := manifest.NewResolver(root).Resolve(pkg.Name)
	require.NoError(t, err)
	return resolved, filepath.Join(root, "out")
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestIsReserved(t *testing.T) {
	tests := map[string]bool{
		"Foo":      false,
		"$store":   false,
		"_private": false,
		"café":     false,
		"default":  true,
		"if":       true,
		"delete":   true,
		"a-b":      true,
		"1abc":     true,
		"":         true,
	}

	for symbol, want := range tests {
		assert.Equal(t, want, IsReserved(symbol), symbol)
	}
}

func TestGenerate(t *testing.T) {
	pkg, out := resolveFixture(t, testutil.Package{
		Name:   "libA",
		Module: "esm/index.js",
		Files:  map[string]string{"index.js": "", "esm/index.js": ""},
	})
	gen := NewGenerator(out, zerolog.Nop())

	unit, err := gen.Generate(pkg, exports.NewKeySet([]string{"Foo", "Bar", "Hidden"}), deps.Request{
		Name:           "libA",
		ExcludeExports: []string{"Hidden"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"default", "Foo", "Bar"}, unit.Keys())
	assert.Equal(t, filepath.Join(out, "libA", "generated.js"), unit.EntryPath)
	assert.Equal(t, pkg.ModuleEntry, unit.ModulePath)

	// default never gets a shim
	assert.NotContains(t, unit.Shims, "default")
	assert.Equal(t, registry.Thunk{Key: "default", ImportPath: pkg.ModuleEntry, Symbol: "default"}, unit.Thunks[0])
	assert.Equal(t, registry.Thunk{Key: "Foo", ImportPath: "./generated/Foo/index.js", Symbol: "Foo"}, unit.Thunks[1])

	shim := readFile(t, unit.Shims["Foo"])
	assert.Equal(t, "import { Foo as __export } from \""+pkg.ModuleEntry+"\";\nexport default __export;\n", shim)

	entry := readFile(t, unit.EntryPath)
	assert.Contains(t, entry, `const moduleName = "libA";`)
	assert.Contains(t, entry, `"Bar": () => handleImport(() => import("./generated/Bar/index.js"), "Bar"),`)
	assert.NotContains(t, entry, "Hidden")
	assert.NoDirExists(t, filepath.Join(out, "libA", "generated", "Hidden"))
}

func TestGenerate_ReservedWords(t *testing.T) {
	pkg, out := resolveFixture(t, testutil.Package{Name: "ops", Files: map[string]string{"index.js": ""}})

	unit, err := NewGenerator(out, zerolog.Nop()).Generate(pkg, exports.NewKeySet([]string{"if", "delete", "ok"}), deps.Request{Name: "ops"})
	require.NoError(t, err)

	for _, thunk := range unit.Thunks {
		switch thunk.Key {
		case "if", "delete", "default":
			assert.Equal(t, "default", thunk.Symbol, thunk.Key)
			assert.Equal(t, pkg.ModuleEntry, thunk.ImportPath, thunk.Key)
			assert.NotContains(t, unit.Shims, thunk.Key)
		case "ok":
			assert.Equal(t, "ok", thunk.Symbol)
		}
	}
	assert.NoDirExists(t, filepath.Join(out, "ops", "generated", "if"))
}

func TestGenerate_AddExports(t *testing.T) {
	pkg, out := resolveFixture(t, testutil.Package{
		Name: "ui",
		Files: map[string]string{
			"index.js":         "",
			"styles/index.js":  "",
			"legacy/button.js": "",
		},
	})

	unit, err := NewGenerator(out, zerolog.Nop()).Generate(pkg, exports.NewKeySet([]string{"Button"}), deps.Request{
		Name: "ui",
		AddExports: []deps.AddExport{
			{Name: "styled", Path: "./styles", ImportType: deps.ImportDefault, SaveAsModules: []string{"ui/styles"}},
			{Name: "Button", Path: "./legacy/button", ImportType: deps.ImportNamed},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"default", "Button", "styled"}, unit.Keys())

	styled := unit.Thunks[2]
	assert.Equal(t, []string{"ui/styles"}, styled.SaveAsModules)
	assert.Equal(t,
		"import __export from \""+filepath.ToSlash(filepath.Join(pkg.Root, "styles", "index.js"))+"\";\nexport default __export;\n",
		readFile(t, unit.Shims["styled"]))

	// an addExport replaces the introspected thunk of the same name
	assert.Contains(t, readFile(t, unit.Shims["Button"]), "legacy/button.js")
	assert.Contains(t, readFile(t, unit.EntryPath), `["ui/styles"]`)
}

func TestGenerate_ReplacesStaleShims(t *testing.T) {
	pkg, out := resolveFixture(t, testutil.Package{Name: "libA", Files: map[string]string{"index.js": ""}})
	gen := NewGenerator(out, zerolog.Nop())

	_, err := gen.Generate(pkg, exports.NewKeySet([]string{"Old"}), deps.Request{Name: "libA"})
	require.NoError(t, err)
	_, err = gen.Generate(pkg, exports.NewKeySet([]string{"New"}), deps.Request{Name: "libA"})
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(out, "libA", "generated", "Old"))
	assert.FileExists(t, filepath.Join(out, "libA", "generated", "New", "index.js"))
}
