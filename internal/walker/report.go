package walker

import (
	"sort"
	"sync"
	"time"
)

// Status is the outcome of one package in a walk.
type Status string

const (
	StatusBuilt   Status = "built"
	StatusCached  Status = "cached"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// PackageResult is the outcome of one package.
type PackageResult struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Status  Status `json:"status" yaml:"status"`
	// Externals are the shared packages this one resolves through the registry.
	Externals map[string][]string `json:"externals,omitempty" yaml:"externals,omitempty"`
	// Undeclared lists used packages missing from the candidate set; they
	// are inlined, never shared.
	Undeclared []string      `json:"undeclared,omitempty" yaml:"undeclared,omitempty"`
	Inlined    []string      `json:"inlined,omitempty" yaml:"inlined,omitempty"`
	Bytes      int           `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// Err returns the error that failed or skipped the package.
func (r PackageResult) Err() error {
	return r.err
}

// Report summarises a walk.
type Report struct {
	RunID string `json:"run_id" yaml:"run_id"`
	// TraceID is set when tracing is enabled.
	TraceID  string          `json:"trace_id,omitempty" yaml:"trace_id,omitempty"`
	Started  time.Time       `json:"started" yaml:"started"`
	Finished time.Time       `json:"finished" yaml:"finished"`
	Packages []PackageResult `json:"packages" yaml:"packages"`
}

// Result returns the result of name.
func (r *Report) Result(name string) (PackageResult, bool) {
	for _, p := range r.Packages {
		if p.Name == name {
			return p, true
		}
	}
	return PackageResult{}, false
}

// Names returns the names of the packages with status s, in report order.
func (r *Report) Names(s Status) []string {
	var names []string
	for _, p := range r.Packages {
		if p.Status == s {
			names = append(names, p.Name)
		}
	}
	return names
}

// Count returns the number of packages with status s.
func (r *Report) Count(s Status) int {
	return len(r.Names(s))
}

// Undeclared maps every package used without being declared to the
// packages using it.
func (r *Report) Undeclared() map[string][]string {
	out := make(map[string][]string)
	for _, p := range r.Packages {
		for _, name := range p.Undeclared {
			out[name] = append(out[name], p.Name)
		}
	}
	return out
}

// Duration returns the wall time of the walk.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// results collects package results from concurrent workers. A later result
// for the same name replaces the earlier one.
type results struct {
	mu     sync.Mutex
	byName map[string]PackageResult
}

func newResults() *results {
	return &results{byName: make(map[string]PackageResult)}
}

func (r *results) put(res PackageResult) {
	if res.err != nil {
		res.Error = res.err.Error()
	}
	r.mu.Lock()
	r.byName[res.Name] = res
	r.mu.Unlock()
}

func (r *results) sorted() []PackageResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PackageResult, 0, len(r.byName))
	for _, res := range r.byName {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
