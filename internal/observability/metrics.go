package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of one bundler process. They live on a
// private registry and are exported as a node_exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	packagesTotal    *prometheus.CounterVec
	passDuration     *prometheus.HistogramVec
	packagesInFlight prometheus.Gauge
	externalsTotal   prometheus.Counter
	undeclaredTotal  prometheus.Counter
	artifactBytes    prometheus.Histogram

	publishObjectsTotal prometheus.Counter
	publishBytesTotal   prometheus.Counter

	lastRunTimestamp prometheus.Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		packagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharedmods_packages_total",
				Help: "Packages processed, by final state",
			},
			[]string{"state"},
		),
		passDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sharedmods_pass_duration_seconds",
				Help:    "Duration of each per-package pass",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"pass", "status"},
		),
		packagesInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sharedmods_packages_in_flight",
				Help: "Packages currently being built",
			},
		),
		externalsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sharedmods_shared_externals_total",
				Help: "External references resolved through the registry",
			},
		),
		undeclaredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sharedmods_undeclared_usage_total",
				Help: "Used but undeclared packages, inlined instead of shared",
			},
		),
		artifactBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sharedmods_artifact_bytes",
				Help:    "Total output size per built package",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		publishObjectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sharedmods_publish_objects_total",
				Help: "Artifact files uploaded to storage",
			},
		),
		publishBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sharedmods_publish_bytes_total",
				Help: "Artifact bytes uploaded to storage",
			},
		),
		lastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sharedmods_last_run_timestamp_seconds",
				Help: "Unix time the last walk finished",
			},
		),
	}
}

// Registry returns the registry holding all metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPackage records a package reaching a final state
func (m *Metrics) RecordPackage(state string) {
	if m == nil {
		return
	}
	m.packagesTotal.WithLabelValues(state).Inc()
}

// ObservePass records the duration of one pass
func (m *Metrics) ObservePass(pass string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.passDuration.WithLabelValues(pass, passStatus(err)).Observe(duration.Seconds())
}

// PackageStarted marks a package build as in flight and returns the func ending it
func (m *Metrics) PackageStarted() func() {
	if m == nil {
		return func() {}
	}
	m.packagesInFlight.Inc()
	return m.packagesInFlight.Dec
}

// RecordUsage records the outcome of the usage analysis of a package
func (m *Metrics) RecordUsage(externals, undeclared int) {
	if m == nil {
		return
	}
	m.externalsTotal.Add(float64(externals))
	m.undeclaredTotal.Add(float64(undeclared))
}

// RecordArtifact records the output size of a build
func (m *Metrics) RecordArtifact(bytes int) {
	if m == nil {
		return
	}
	m.artifactBytes.Observe(float64(bytes))
}

// RecordPublish records a publish run
func (m *Metrics) RecordPublish(objects int, bytes int64) {
	if m == nil {
		return
	}
	m.publishObjectsTotal.Add(float64(objects))
	m.publishBytesTotal.Add(float64(bytes))
}

// RecordRunFinished stamps the end of a walk
func (m *Metrics) RecordRunFinished(at time.Time) {
	if m == nil {
		return
	}
	m.lastRunTimestamp.Set(float64(at.Unix()))
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node_exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func passStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
