package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/sharedmods/internal/deps"
	"github.com/fluxbase-eu/sharedmods/internal/exports"
	"github.com/fluxbase-eu/sharedmods/internal/manifest"
	"github.com/fluxbase-eu/sharedmods/internal/probe"
	"github.com/fluxbase-eu/sharedmods/internal/registry"
	"github.com/fluxbase-eu/sharedmods/internal/testutil"
)

func TestLibraryName(t *testing.T) {
	tests := map[string]string{
		"libA":             "libA",
		"@scope/pkg-name":  "_scope_pkg_name",
		"lodash.debounce":  "lodash_debounce",
		"react_dom":        "react_dom",
		"@mui/material/x1": "_mui_material_x1",
	}
	for in, want := range tests {
		assert.Equal(t, want, LibraryName(in), in)
	}
}

func TestIgnoreMatcher(t *testing.T) {
	m := NewIgnoreMatcher([]string{"moment/locale", "./legacy/", ""})

	rule, ok := m.Match("moment/locale/fr")
	assert.True(t, ok)
	assert.Equal(t, "moment/locale", rule)

	_, ok = m.Match("moment/locale")
	assert.True(t, ok)
	_, ok = m.Match("./legacy/button")
	assert.True(t, ok)
	_, ok = m.Match("moment/localeX")
	assert.False(t, ok)
	_, ok = m.Match("moment")
	assert.False(t, ok)

	_, ok = NewIgnoreMatcher(nil).Match("anything")
	assert.False(t, ok)
}

func TestExactFilter(t *testing.T) {
	re := regexp.MustCompile(exactFilter([]string{"react", "@scope/pkg.js"}))

	assert.True(t, re.MatchString("react"))
	assert.True(t, re.MatchString("@scope/pkg.js"))
	assert.False(t, re.MatchString("react-dom"))
	assert.False(t, re.MatchString("@scope/pkgxjs"))
}

func buildFixture(t *testing.T, files map[string]string, req deps.Request, keys []string) (*probe.Unit, string) {
	t.Helper()
	root := t.TempDir()
	testutil.WritePackage(t, root, testutil.Package{
		Name:         "libA",
		Dependencies: map[string]string{"libB": "1.0.0"},
		Files:        files,
	})
	testutil.WritePackage(t, root, testutil.Package{
		Name:  "libB",
		Files: map[string]string{"index.js": `export const Foo = "LIBB_MARKER"; export const Bar = 2;`},
	})

	pkg, err := manifest.NewResolver(root).Resolve("libA")
	require.NoError(t, err)
	req.Name = "libA"
	unit, err := probe.NewGenerator(filepath.Join(root, "out"), zerolog.Nop()).Generate(pkg, exports.NewKeySet(keys), req)
	require.NoError(t, err)
	return unit, root
}

func readOutputs(t *testing.T, out *Output, dir string) string {
	t.Helper()
	var b strings.Builder
	for _, f := range out.Files {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.Path)))
		require.NoError(t, err)
		b.Write(data)
	}
	return b.String()
}

func TestBuilder_Build(t *testing.T) {
	unit, _ := buildFixture(t, map[string]string{
		"index.js": `import { Foo } from "libB"; export const Bar = () => Foo; export default Bar;`,
	}, deps.Request{}, []string{"Bar"})

	builder := NewBuilder(Options{}, zerolog.Nop())
	out, err := builder.Build(context.Background(), unit, map[string][]string{"libB": {"Foo"}})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(unit.Dir, BundleFileName))
	assert.True(t, Exists(unit.Dir))
	assert.Equal(t, filepath.Join(unit.Dir, BundleFileName), out.BundlePath)
	assert.Greater(t, out.Bytes, 0)

	meta, err := registry.ReadMeta(unit.Dir)
	require.NoError(t, err)
	assert.Equal(t, &registry.Meta{
		Name:                 "libA",
		Library:              "libA",
		ExternalDependencies: map[string][]string{"libB": {"Foo"}},
	}, meta)

	code := readOutputs(t, out, unit.Dir)
	assert.Regexp(t, `globalThis\.SharedModulesStore\.nodeModules\.modules(\["libB"\]|\.libB)`, code)
	assert.NotContains(t, code, "LIBB_MARKER")

	var chunks int
	for _, f := range out.Files {
		if strings.HasPrefix(f.Path, ChunksDirName+"/") {
			chunks++
		}
	}
	assert.Greater(t, chunks, 0)
}

func TestBuilder_InlinesNonExternals(t *testing.T) {
	unit, _ := buildFixture(t, map[string]string{
		"index.js": `import { Foo } from "libB"; export const Bar = () => Foo;`,
	}, deps.Request{}, []string{"Bar"})

	out, err := NewBuilder(Options{Production: true}, zerolog.Nop()).Build(context.Background(), unit, nil)
	require.NoError(t, err)

	assert.Contains(t, readOutputs(t, out, unit.Dir), "LIBB_MARKER")
	assert.Equal(t, []string{"libB"}, out.Inlined)

	meta, err := registry.ReadMeta(unit.Dir)
	require.NoError(t, err)
	assert.Empty(t, meta.ExternalDependencies)
}

func TestBuilder_Ignore(t *testing.T) {
	unit, _ := buildFixture(t, map[string]string{
		"index.js":     `import fr from "./locale/fr"; export const Bar = () => fr;`,
		"locale/fr.js": `export default "IGNORED_LOCALE";`,
	}, deps.Request{Ignore: []string{"./locale"}}, []string{"Bar"})

	out, err := NewBuilder(Options{}, zerolog.Nop()).Build(context.Background(), unit, nil)
	require.NoError(t, err)

	assert.NotContains(t, readOutputs(t, out, unit.Dir), "IGNORED_LOCALE")
}

func TestBuilder_BuildError(t *testing.T) {
	unit, _ := buildFixture(t, map[string]string{
		"index.js": `import { X } from "not-installed"; export const Bar = X;`,
	}, deps.Request{}, []string{"Bar"})

	// a stale descriptor from an earlier run must not survive a failed build
	require.NoError(t, registry.WriteMeta(unit.Dir, &registry.Meta{Name: "libA"}))

	_, err := NewBuilder(Options{}, zerolog.Nop()).Build(context.Background(), unit, nil)
	require.Error(t, err)

	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, "libA", buildErr.Package)
	assert.NotEmpty(t, buildErr.Diagnostics)
	assert.NoFileExists(t, filepath.Join(unit.Dir, registry.MetaFileName))
	assert.False(t, Exists(unit.Dir))
}
