package walker_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/sharedmods/internal/artifact"
	"github.com/fluxbase-eu/sharedmods/internal/deps"
	"github.com/fluxbase-eu/sharedmods/internal/exports"
	"github.com/fluxbase-eu/sharedmods/internal/manifest"
	"github.com/fluxbase-eu/sharedmods/internal/observability"
	"github.com/fluxbase-eu/sharedmods/internal/registry"
	"github.com/fluxbase-eu/sharedmods/internal/testutil"
	"github.com/fluxbase-eu/sharedmods/internal/usage"
	"github.com/fluxbase-eu/sharedmods/internal/walker"
)

type fixture struct {
	root   string
	out    string
	keys   exports.StaticKeys
	logs   *bytes.Buffer
	logger zerolog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	logs := &bytes.Buffer{}
	return &fixture{
		root:   root,
		out:    filepath.Join(root, "out"),
		keys:   exports.StaticKeys{},
		logs:   logs,
		logger: zerolog.New(zerolog.SyncWriter(logs)),
	}
}

func (f *fixture) add(t *testing.T, pkg testutil.Package, keys ...string) {
	t.Helper()
	testutil.WritePackage(t, f.root, pkg)
	f.keys[pkg.Name] = keys
}

func (f *fixture) walker(metrics *observability.Metrics) *walker.Walker {
	return walker.New(walker.Options{
		OutDir:  f.out,
		Workers: 4,
		Metrics: metrics,
	}, manifest.NewResolver(f.root), f.keys, f.logger)
}

// builtCount counts the "Package built" log events of name.
func (f *fixture) builtCount(t *testing.T, name string) int {
	t.Helper()
	count := 0
	for _, line := range strings.Split(strings.TrimSpace(f.logs.String()), "\n") {
		if line == "" {
			continue
		}
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		if event["message"] == "Package built" && event["package"] == name {
			count++
		}
	}
	return count
}

func (f *fixture) meta(t *testing.T, name string) *registry.Meta {
	t.Helper()
	meta, err := registry.ReadMeta(registry.PackageDir(f.out, name))
	require.NoError(t, err)
	return meta
}

// emitted concatenates the bundle and every split chunk written for name.
func (f *fixture) emitted(t *testing.T, name string) string {
	t.Helper()
	dir := registry.PackageDir(f.out, name)
	bundle, err := os.ReadFile(filepath.Join(dir, artifact.BundleFileName))
	require.NoError(t, err)

	var sb strings.Builder
	sb.Write(bundle)
	chunks, err := filepath.Glob(filepath.Join(dir, artifact.ChunksDirName, "*.js"))
	require.NoError(t, err)
	for _, chunk := range chunks {
		data, err := os.ReadFile(chunk)
		require.NoError(t, err)
		sb.Write(data)
	}
	return sb.String()
}

func addLibAB(t *testing.T, f *fixture) {
	f.add(t, testutil.Package{
		Name:         "libA",
		Dependencies: map[string]string{"libB": "^1.0.0"},
		Files: map[string]string{"index.js": `
import { Foo } from "libB";
export const Bar = () => Foo + 1;
`},
	}, "Bar")
	f.add(t, testutil.Package{
		Name:  "libB",
		Files: map[string]string{"index.js": `export const Foo = 1, Bar = 2, Baz = 3, Qux = 4;`},
	}, "Foo", "Bar", "Baz", "Qux")
}

func TestWalk_SharesUsedExports(t *testing.T) {
	f := newFixture(t)
	addLibAB(t, f)

	report, err := f.walker(nil).Walk(context.Background(), deps.Set{{Name: "libA"}})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []string{"libA", "libB"}, report.Names(walker.StatusBuilt))

	assert.Equal(t, &registry.Meta{
		Name:                 "libA",
		Library:              "libA",
		ExternalDependencies: map[string][]string{"libB": {"Foo"}},
	}, f.meta(t, "libA"))
	assert.Empty(t, f.meta(t, "libB").ExternalDependencies)

	code := f.emitted(t, "libA")
	assert.Regexp(t, `modules(\["libB"\]|\.libB)`, code)
	assert.NotContains(t, code, "Qux")

	res, ok := report.Result("libA")
	require.True(t, ok)
	assert.Equal(t, map[string][]string{"libB": {"Foo"}}, res.Externals)
	assert.Equal(t, "1.0.0", res.Version)
	assert.Positive(t, res.Bytes)
}

func TestWalk_DiamondBuildsOnce(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.Package{
		Name:         "app",
		Dependencies: map[string]string{"left": "1", "right": "1"},
		Files: map[string]string{"index.js": `
import { l } from "left";
import { r } from "right";
export const run = () => l + r;
`},
	}, "run")
	for _, side := range []string{"left", "right"} {
		f.add(t, testutil.Package{
			Name:         side,
			Dependencies: map[string]string{"shared": "1"},
			Files: map[string]string{"index.js": `
import { one } from "shared";
export const ` + side[:1] + ` = one;
`},
		}, side[:1])
	}
	f.add(t, testutil.Package{
		Name:  "shared",
		Files: map[string]string{"index.js": `export const one = 1, two = 2, three = 3;`},
	}, "one", "two", "three")

	metrics := observability.NewMetrics()
	report, err := f.walker(metrics).Walk(context.Background(), deps.Set{{Name: "app"}, {Name: "left"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"app", "left", "right", "shared"}, report.Names(walker.StatusBuilt))
	assert.Equal(t, 1, f.builtCount(t, "shared"))
	assert.Equal(t, 1, f.builtCount(t, "left"))
}

func TestWalk_Cycle(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.Package{
		Name:         "libA",
		Dependencies: map[string]string{"libB": "1"},
		Files: map[string]string{"index.js": `
import { Foo } from "libB";
export const Bar = 1, Other = 2, Third = 3;
export const useFoo = () => Foo;
`},
	}, "Bar", "Other", "Third", "useFoo")
	f.add(t, testutil.Package{
		Name:         "libB",
		Dependencies: map[string]string{"libA": "1"},
		Files: map[string]string{"index.js": `
import { Bar } from "libA";
export const Foo = 1, Baz = 2, Qux = 3;
export const useBar = () => Bar;
`},
	}, "Foo", "Baz", "Qux", "useBar")

	report, err := f.walker(nil).Walk(context.Background(), deps.Set{{Name: "libA"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"libA", "libB"}, report.Names(walker.StatusBuilt))
	assert.Equal(t, map[string][]string{"libB": {"Foo"}}, f.meta(t, "libA").ExternalDependencies)
	assert.Equal(t, map[string][]string{"libA": {"Bar"}}, f.meta(t, "libB").ExternalDependencies)

	plan, err := registry.LoadPlan(registry.DirSource(f.out), "libA")
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2)
	assert.Len(t, plan.Cycles, 1)
}

func TestWalk_UndeclaredIsInlined(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.Package{
		Name: "libA",
		Files: map[string]string{"index.js": `
import { map } from "lodash";
export const Bar = (xs) => map(xs);
`},
	}, "Bar")
	f.add(t, testutil.Package{
		Name:  "lodash",
		Files: map[string]string{"index.js": `export const map = (xs) => xs, filter = (xs) => xs, reduce = (xs) => xs;`},
	}, "map", "filter", "reduce")

	report, err := f.walker(nil).Walk(context.Background(), deps.Set{{Name: "libA"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"libA"}, report.Names(walker.StatusBuilt))
	res, _ := report.Result("libA")
	assert.Equal(t, []string{"lodash"}, res.Undeclared)
	assert.Equal(t, map[string][]string{"lodash": {"libA"}}, report.Undeclared())
	assert.Empty(t, f.meta(t, "libA").ExternalDependencies)
	assert.NoDirExists(t, filepath.Join(f.out, "lodash"))
	assert.Contains(t, f.logs.String(), "undeclared dependency")
}

func TestWalk_ConsumerDeclaredIsShared(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.Package{
		Name: "libA",
		Files: map[string]string{"index.js": `
import { map } from "lodash";
export const Bar = (xs) => map(xs);
`},
	}, "Bar")
	f.add(t, testutil.Package{
		Name:  "lodash",
		Files: map[string]string{"index.js": `export const map = (xs) => xs, filter = (xs) => xs, reduce = (xs) => xs;`},
	}, "map", "filter", "reduce")

	report, err := f.walker(nil).Walk(context.Background(), deps.Set{{Name: "libA"}, {Name: "lodash"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"libA", "lodash"}, report.Names(walker.StatusBuilt))
	assert.Equal(t, map[string][]string{"lodash": {"map"}}, f.meta(t, "libA").ExternalDependencies)
}

func TestWalk_OpaqueConfiguredExternalIsShared(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.Package{
		Name: "libA",
		Files: map[string]string{"index.js": `
import { map } from "opaque";
export const Bar = (xs) => map(xs);
`},
	}, "Bar")
	// no keys: the index cannot introspect it
	testutil.WritePackage(t, f.root, testutil.Package{
		Name:  "opaque",
		Files: map[string]string{"index.js": `export const map = (xs) => xs;`},
	})

	report, err := f.walker(nil).Walk(context.Background(), deps.Set{{Name: "libA", Externals: []string{"opaque"}}})
	require.NoError(t, err)

	assert.Equal(t, []string{"libA", "opaque"}, report.Names(walker.StatusBuilt))
	assert.Equal(t, map[string][]string{"opaque": {"default"}}, f.meta(t, "libA").ExternalDependencies)
	assert.Regexp(t, `modules(\["opaque"\]|\.opaque)`, f.emitted(t, "libA"))
}

func TestWalk_ReservedWordExports(t *testing.T) {
	f := newFixture(t)
	f.add(t, testutil.Package{
		Name:  "ops",
		Files: map[string]string{"index.js": `exports["if"] = 1; exports.ok = 2;`},
	}, "if", "ok")

	report, err := f.walker(nil).Walk(context.Background(), deps.Set{{Name: "ops"}})
	require.NoError(t, err)

	res, ok := report.Result("ops")
	require.True(t, ok)
	assert.Equal(t, walker.StatusBuilt, res.Status, res.Error)
	assert.FileExists(t, filepath.Join(f.out, "ops", registry.MetaFileName))
}

func TestWalk_Idempotent(t *testing.T) {
	f := newFixture(t)
	addLibAB(t, f)

	_, err := f.walker(nil).Walk(context.Background(), deps.Set{{Name: "libA"}})
	require.NoError(t, err)

	metaPath := filepath.Join(f.out, "libA", registry.MetaFileName)
	first, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	firstInfo, err := os.Stat(metaPath)
	require.NoError(t, err)

	report, err := f.walker(nil).Walk(context.Background(), deps.Set{{Name: "libA"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"libA", "libB"}, report.Names(walker.StatusCached))
	assert.Empty(t, report.Names(walker.StatusBuilt))

	second, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	secondInfo, err := os.Stat(metaPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, firstInfo.ModTime(), secondInfo.ModTime())

	res, _ := report.Result("libA")
	assert.Equal(t, map[string][]string{"libB": {"Foo"}}, res.Externals)
}

func TestWalk_UnresolvableIsSkipped(t *testing.T) {
	f := newFixture(t)
	addLibAB(t, f)

	session := walker.NewSession(exports.NewIndex(f.keys, zerolog.Nop()))
	report, err := f.walker(nil).WalkSession(context.Background(), session, deps.Set{{Name: "missing"}, {Name: "libB"}})
	require.NoError(t, err)

	res, ok := report.Result("missing")
	require.True(t, ok)
	assert.Equal(t, walker.StatusSkipped, res.Status)
	assert.True(t, errors.Is(res.Err(), manifest.ErrNotResolvable))
	assert.NotEmpty(t, res.Error)

	assert.Equal(t, walker.Unseen, session.State("missing"))
	assert.Equal(t, walker.Done, session.State("libB"))

	state, err := session.Wait(context.Background(), "libB")
	require.NoError(t, err)
	assert.Equal(t, walker.Done, state)
}

func TestWalk_ParseFailureIsContained(t *testing.T) {
	f := newFixture(t)
	addLibAB(t, f)
	f.add(t, testutil.Package{
		Name:  "broken",
		Files: map[string]string{"index.js": `import { x } from "./nope"; export const = ;`},
	}, "x")

	report, err := f.walker(nil).Walk(context.Background(), deps.Set{{Name: "broken"}, {Name: "libB"}})
	require.NoError(t, err)

	res, ok := report.Result("broken")
	require.True(t, ok)
	assert.Equal(t, walker.StatusFailed, res.Status)

	var parseErr *usage.ParseError
	assert.True(t, errors.As(res.Err(), &parseErr))
	assert.NoFileExists(t, filepath.Join(f.out, "broken", registry.MetaFileName))
	assert.Equal(t, []string{"libB"}, report.Names(walker.StatusBuilt))
}

func TestWalk_Cancelled(t *testing.T) {
	f := newFixture(t)
	addLibAB(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.walker(nil).Walk(ctx, deps.Set{{Name: "libA"}})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Names(walker.StatusBuilt))
	assert.NoFileExists(t, filepath.Join(f.out, "libA", registry.MetaFileName))
}

func TestWalk_NoRequests(t *testing.T) {
	f := newFixture(t)

	report, err := f.walker(nil).Walk(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Packages)
	assert.False(t, report.Finished.Before(report.Started))
}
