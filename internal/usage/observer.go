package usage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/fluxbase-eu/sharedmods/internal/deps"
	"github.com/fluxbase-eu/sharedmods/internal/exports"
	"github.com/fluxbase-eu/sharedmods/internal/jsparse"
	"github.com/fluxbase-eu/sharedmods/internal/probe"
)

// UsageObserver is told about every import of a bare specifier found in the
// probed package's source.
type UsageObserver interface {
	Observe(ctx context.Context, importer string, imp jsparse.Import)
}

// Recorder is the UsageObserver collecting a Record. It is safe for
// concurrent use.
type Recorder struct {
	pkg   string
	index *exports.Index
	req   deps.Request

	mu      sync.Mutex
	raw     map[string]map[string]struct{}
	keys    map[string]exports.KeySet
	skipped map[string]struct{}
	deep    map[string]struct{}
}

// NewRecorder creates a recorder for pkg. Specifiers listed in req.Builtins
// are ignored. Externals listed in req.Externals whose exports cannot be
// introspected are shared whole, as their default export.
func NewRecorder(pkg string, index *exports.Index, req deps.Request) *Recorder {
	return &Recorder{
		pkg:     pkg,
		index:   index,
		req:     req,
		raw:     make(map[string]map[string]struct{}),
		keys:    make(map[string]exports.KeySet),
		skipped: make(map[string]struct{}),
		deep:    make(map[string]struct{}),
	}
}

// Observe implements UsageObserver.
func (r *Recorder) Observe(ctx context.Context, importer string, imp jsparse.Import) {
	if !jsparse.IsBareSpecifier(imp.Source) {
		return
	}
	if r.req.IsBuiltin(imp.Source) {
		return
	}
	if isNodeBuiltin(imp.Source) {
		return
	}

	ext := jsparse.PackageName(imp.Source)
	if ext == r.pkg {
		return
	}
	if ext != imp.Source {
		r.mu.Lock()
		r.deep[imp.Source] = struct{}{}
		r.mu.Unlock()
		return
	}

	keys, _ := r.index.Keys(ctx, ext)

	r.mu.Lock()
	defer r.mu.Unlock()

	symbol := imp.Symbol()
	switch {
	case !keys.Empty():
		if !keys.Has(symbol) || probe.IsReserved(symbol) {
			symbol = exports.DefaultSymbol
		}
	case contains(r.req.Externals, ext):
		// opaque but explicitly shared
		keys = exports.NewKeySet(nil)
		symbol = exports.DefaultSymbol
	default:
		r.skipped[ext] = struct{}{}
		return
	}
	r.keys[ext] = keys

	set := r.raw[ext]
	if set == nil {
		set = make(map[string]struct{})
		r.raw[ext] = set
	}
	set[symbol] = struct{}{}
}

// Record returns the collapsed usage.
func (r *Recorder) Record(threshold float64, files int) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	return &Record{
		Package:     r.pkg,
		Used:        Collapse(r.raw, r.keys, threshold),
		Skipped:     sortedSet(r.skipped),
		DeepImports: sortedSet(r.deep),
		Files:       files,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	list := make([]string, 0, len(set))
	for s := range set {
		list = append(list, s)
	}
	sort.Strings(list)
	return list
}

var nodeBuiltins = map[string]struct{}{
	"assert": {}, "async_hooks": {}, "buffer": {}, "child_process": {}, "cluster": {},
	"console": {}, "constants": {}, "crypto": {}, "dgram": {}, "dns": {}, "domain": {},
	"events": {}, "fs": {}, "http": {}, "http2": {}, "https": {}, "inspector": {},
	"module": {}, "net": {}, "os": {}, "path": {}, "perf_hooks": {}, "process": {},
	"punycode": {}, "querystring": {}, "readline": {}, "repl": {}, "stream": {},
	"string_decoder": {}, "timers": {}, "tls": {}, "tty": {}, "url": {}, "util": {},
	"v8": {}, "vm": {}, "worker_threads": {}, "zlib": {},
}

func isNodeBuiltin(spec string) bool {
	if strings.HasPrefix(spec, "node:") {
		return true
	}
	_, ok := nodeBuiltins[jsparse.PackageName(spec)]
	return ok
}
