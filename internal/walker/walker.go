// Package walker drives the per-package passes over the transitive closure
// of the requested shared dependencies.
package walker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fluxbase-eu/sharedmods/internal/artifact"
	"github.com/fluxbase-eu/sharedmods/internal/deps"
	"github.com/fluxbase-eu/sharedmods/internal/exports"
	"github.com/fluxbase-eu/sharedmods/internal/manifest"
	"github.com/fluxbase-eu/sharedmods/internal/observability"
	"github.com/fluxbase-eu/sharedmods/internal/probe"
	"github.com/fluxbase-eu/sharedmods/internal/registry"
	"github.com/fluxbase-eu/sharedmods/internal/usage"
)

// Options configure a Walker.
type Options struct {
	OutDir string
	// Workers bounds the packages built concurrently. Zero means one per CPU.
	Workers    int
	Threshold  float64
	Production bool
	Metrics    *observability.Metrics
}

// Walker builds shared artifacts for a set of requests and everything they
// share in turn.
type Walker struct {
	opts         Options
	resolver     *manifest.Resolver
	introspector exports.Introspector
	generator    *probe.Generator
	builder      *artifact.Builder
	logger       zerolog.Logger
}

// New creates a walker. Packages are located with resolver and their
// exports read through introspector.
func New(opts Options, resolver *manifest.Resolver, introspector exports.Introspector, logger zerolog.Logger) *Walker {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	logger = logger.With().Str("component", "walker").Logger()
	return &Walker{
		opts:         opts,
		resolver:     resolver,
		introspector: introspector,
		generator:    probe.NewGenerator(opts.OutDir, logger),
		builder:      artifact.NewBuilder(artifact.Options{Production: opts.Production}, logger),
		logger:       logger,
	}
}

// run is the state of one Walk call.
type run struct {
	session   *Session
	analyzer  *usage.Analyzer
	overrides map[string]deps.Request
	consumers []string
	queue     *queue
	pending   sync.WaitGroup
	results   *results
}

// Walk builds every request and, recursively, every shared external they
// use. Packages already built in OutDir are not rebuilt. Per-package
// failures are listed in the report and never fail the walk; the returned
// error is only set when ctx is cancelled, alongside the partial report.
func (w *Walker) Walk(ctx context.Context, requests deps.Set) (*Report, error) {
	session := NewSession(exports.NewIndex(w.introspector, w.logger))
	return w.WalkSession(ctx, session, requests)
}

// WalkSession is Walk with a caller-provided session, so that a second walk
// reuses the export cache and visited set of the first.
func (w *Walker) WalkSession(ctx context.Context, session *Session, requests deps.Set) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Started: time.Now()}
	ctx, span := observability.StartRunSpan(ctx, report.RunID, len(requests))
	defer span.End()
	report.TraceID = observability.ExtractTraceID(ctx)

	r := &run{
		session:   session,
		analyzer:  usage.NewAnalyzer(session.Index(), w.opts.Threshold, w.logger),
		overrides: requests.Overrides(),
		consumers: requests.Names(),
		queue:     newQueue(),
		results:   newResults(),
	}

	logger := w.logger.With().Str("run_id", report.RunID).Logger()
	logger.Info().
		Int("requests", len(requests)).
		Int("workers", w.opts.Workers).
		Float64("threshold", r.analyzer.Threshold()).
		Str("out_dir", w.opts.OutDir).
		Msg("Walk started")

	for _, name := range r.consumers {
		w.schedule(ctx, r, name)
	}

	var workers sync.WaitGroup
	for i := 0; i < w.opts.Workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			w.worker(ctx, r, logger.With().Int("worker", id).Logger())
		}(i)
	}

	r.pending.Wait()
	r.queue.close()
	workers.Wait()

	report.Packages = r.results.sorted()
	report.Finished = time.Now()
	w.opts.Metrics.RecordRunFinished(report.Finished)

	logger.Info().
		Int("built", report.Count(StatusBuilt)).
		Int("cached", report.Count(StatusCached)).
		Int("skipped", report.Count(StatusSkipped)).
		Int("failed", report.Count(StatusFailed)).
		Int("introspected", len(session.Index().Known())).
		Dur("duration", report.Duration()).
		Msg("Walk finished")

	if err := ctx.Err(); err != nil {
		observability.RecordError(ctx, err)
		return report, err
	}
	return report, nil
}

// schedule queues name unless it was already claimed in this session.
func (w *Walker) schedule(ctx context.Context, r *run, name string) {
	if ctx.Err() != nil {
		return
	}
	e, claimed := r.session.claim(name)
	if !claimed {
		return
	}
	r.pending.Add(1)
	r.queue.push(e)
}

func (w *Walker) worker(ctx context.Context, r *run, logger zerolog.Logger) {
	for {
		e, ok := r.queue.pop()
		if !ok {
			return
		}

		if err := ctx.Err(); err != nil {
			r.session.release(e)
			r.results.put(PackageResult{Name: e.name, Status: StatusSkipped, err: err})
			r.pending.Done()
			continue
		}

		// A package in flight runs to completion; cancellation only stops
		// further scheduling.
		start := time.Now()
		res, next := w.process(context.WithoutCancel(ctx), r, e, logger.With().Str("package", e.name).Logger())
		res.Duration = time.Since(start)
		r.results.put(res)
		w.opts.Metrics.RecordPackage(string(res.Status))

		for _, name := range next {
			w.schedule(ctx, r, name)
		}
		r.pending.Done()
	}
}

// process runs every pass of one package and returns its result and the
// externals to recurse into.
func (w *Walker) process(ctx context.Context, r *run, e *entry, logger zerolog.Logger) (PackageResult, []string) {
	start := time.Now()
	req, ok := r.overrides[e.name]
	if !ok {
		req = deps.Request{Name: e.name}
	}
	res := PackageResult{Name: e.name, Version: req.Version}

	ctx, span := observability.StartPackageSpan(ctx, e.name, req.Version)
	defer func() { observability.EndSpan(span, res.err) }()

	done := w.opts.Metrics.PackageStarted()
	defer done()

	dir := registry.PackageDir(w.opts.OutDir, e.name)
	if artifact.Exists(dir) {
		meta, err := registry.ReadMeta(dir)
		if err == nil {
			logger.Debug().Msg("Artifact already built")
			res.Status = StatusCached
			res.Externals = meta.ExternalDependencies
			e.finish(Done)
			return res, meta.ExternalNames()
		}
		logger.Warn().Err(err).Msg("Unreadable meta, rebuilding")
	}

	e.set(Resolving)
	pkg, err := w.resolver.Resolve(e.name)
	if err != nil {
		logger.Warn().Err(err).Msg("Package not resolvable, skipping")
		res.Status = StatusSkipped
		res.err = err
		r.session.release(e)
		return res, nil
	}
	if pkg.ManifestErr != nil {
		logger.Warn().Err(pkg.ManifestErr).Msg("Unreadable package manifest, assuming no dependencies")
	}
	if res.Version == "" {
		res.Version = pkg.Manifest.Version
	}

	logger.Info().Str("version", res.Version).Msg("Building package")

	keys, err := r.session.Index().Keys(ctx, e.name)
	if err != nil || keys.Empty() {
		// the whole module is still shared, as one default export
		keys = exports.NewKeySet(nil)
	}

	e.set(Analyzing)
	var unit *probe.Unit
	err = w.pass(ctx, "probe", e.name, func(context.Context) error {
		var err error
		unit, err = w.generator.Generate(pkg, keys, req)
		return err
	})
	if err != nil {
		return w.fail(e, res, err, logger), nil
	}

	var record *usage.Record
	err = w.pass(ctx, "analyze", e.name, func(ctx context.Context) error {
		var err error
		record, err = r.analyzer.Analyze(ctx, unit)
		return err
	})
	if err != nil {
		return w.fail(e, res, err, logger), nil
	}

	candidates := usage.Candidates(pkg.Manifest, r.consumers, req.Externals)
	externals, undeclared := usage.Filter(record.Used, candidates)
	for _, name := range undeclared {
		logger.Warn().
			Str("dependency", name).
			Msg("Package uses an undeclared dependency, it will be inlined")
		observability.AddSpanEvent(ctx, "undeclared_dependency", attribute.String("dependency", name))
	}
	observability.SetSpanAttributes(ctx,
		attribute.Int("package.externals", len(externals)),
		attribute.Int("package.undeclared", len(undeclared)),
	)
	res.Externals = externals
	res.Undeclared = undeclared
	w.opts.Metrics.RecordUsage(len(externals), len(undeclared))

	logger.Debug().
		Strs("externals", sortedNames(externals)).
		Strs("skipped", record.Skipped).
		Strs("deep_imports", record.DeepImports).
		Msg("Usage analyzed")

	e.set(Building)
	var out *artifact.Output
	err = w.pass(ctx, "build", e.name, func(ctx context.Context) error {
		var err error
		out, err = w.builder.Build(ctx, unit, externals)
		return err
	})
	if err != nil {
		return w.fail(e, res, err, logger), nil
	}

	for _, warning := range out.Warnings {
		logger.Warn().Str("diagnostic", warning).Msg("Build warning")
	}
	res.Status = StatusBuilt
	res.Bytes = out.Bytes
	res.Inlined = out.Inlined
	w.opts.Metrics.RecordArtifact(out.Bytes)
	e.finish(Done)

	next := sortedNames(externals)
	logger.Info().
		Int("bytes", out.Bytes).
		Strs("externals", next).
		Dur("duration", time.Since(start)).
		Msg("Package built")

	return res, next
}

// pass runs one pass of a package inside its own span and records its duration.
func (w *Walker) pass(ctx context.Context, pass, name string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := observability.StartPassSpan(ctx, pass, name)
	err := fn(ctx)
	observability.EndSpan(span, err)
	w.opts.Metrics.ObservePass(pass, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%s pass: %w", pass, err)
	}
	return nil
}

func (w *Walker) fail(e *entry, res PackageResult, err error, logger zerolog.Logger) PackageResult {
	var parseErr *usage.ParseError
	var buildErr *artifact.BuildError
	switch {
	case errors.As(err, &parseErr):
		logger.Error().Strs("diagnostics", parseErr.Diagnostics).Msg("Parse pass failed")
	case errors.As(err, &buildErr):
		logger.Error().Strs("diagnostics", buildErr.Diagnostics).Msg("Build pass failed")
	default:
		logger.Error().Err(err).Msg("Package failed")
	}
	res.Status = StatusFailed
	res.err = err
	e.finish(Failed)
	return res
}

func sortedNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
