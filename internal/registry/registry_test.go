package registry

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleExpr(t *testing.T) {
	assert.Equal(t, `SharedModulesStore.nodeModules.modules["react"]`, ModuleExpr("react"))
	assert.Equal(t, `globalThis.SharedModulesStore.nodeModules.modules["@scope/pkg"]`, GlobalModuleExpr("@scope/pkg"))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"a'b\"c"`, Quote(`a'b"c`))
	assert.Equal(t, `"<tag>"`, Quote("<tag>"))
}

func TestPublicPath(t *testing.T) {
	assert.Equal(t, "/built_modules/@scope/pkg/", PublicPath("@scope/pkg"))
}

func TestMeta_RoundTrip(t *testing.T) {
	dir := PackageDir(t.TempDir(), "@scope/pkg")
	meta := &Meta{
		Name:                 "@scope/pkg",
		Library:              "_scope_pkg",
		ExternalDependencies: map[string][]string{"libB": {"Foo"}, "libA": {"default"}},
	}

	require.NoError(t, WriteMeta(dir, meta))

	read, err := ReadMeta(dir)
	require.NoError(t, err)
	assert.Equal(t, meta, read)
	assert.Equal(t, []string{"libA", "libB"}, read.ExternalNames())
}

func TestMeta_EmptyExternalsSerialiseAsObject(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteMeta(dir, &Meta{Name: "leaf"}))

	read, err := ReadMeta(dir)
	require.NoError(t, err)
	assert.NotNil(t, read.ExternalDependencies)
	assert.Empty(t, read.ExternalDependencies)
}

func TestListMeta(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, WriteMeta(PackageDir(out, "libB"), &Meta{Name: "libB"}))
	require.NoError(t, WriteMeta(PackageDir(out, "@scope/pkg"), &Meta{Name: "@scope/pkg"}))
	require.NoError(t, WriteMeta(filepath.Join(out, "node_modules", "libC"), &Meta{Name: "libC"}))

	metas, err := ListMeta(out)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "@scope/pkg", metas[0].Name)
	assert.Equal(t, "libB", metas[1].Name)
}

func TestRenderEntry(t *testing.T) {
	var b strings.Builder
	err := RenderEntry(&b, Entry{
		Module: "libA",
		Thunks: []Thunk{
			{Key: "default", ImportPath: "./generated/default/index.js", Symbol: "default"},
			{Key: "Foo", ImportPath: "./generated/Foo/index.js", Symbol: "Foo"},
			{Key: "if", ImportPath: "/abs/libA/index.js", Symbol: "default"},
			{Key: "Styled", ImportPath: "./generated/Styled/index.js", Symbol: "Styled", SaveAsModules: []string{"styled"}},
		},
	})
	require.NoError(t, err)

	src := b.String()
	assert.Contains(t, src, `const moduleName = "libA";`)
	assert.Contains(t, src, `globalThis.SharedModulesStore`)
	assert.Contains(t, src, `"Foo": () => handleImport(() => import("./generated/Foo/index.js"), "Foo"),`)
	assert.Contains(t, src, `"if": () => handleImport(() => import("/abs/libA/index.js"), "default"),`)
	assert.Contains(t, src, `"Styled": () => handleImport(() => import("./generated/Styled/index.js"), "Styled", ["styled"]),`)
	assert.Contains(t, src, `store.nodeModules.defaultClaimed[moduleName] = true`)
}
