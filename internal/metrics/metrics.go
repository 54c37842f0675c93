package metrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nao1215/csvanon/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "csvanon"

// outcomeSucceeded is the outcome label of successful runs. Failed runs
// are labelled with their error kind.
const outcomeSucceeded = "succeeded"

// Collector collects and exposes upload flow metrics.
type Collector struct {
	logger   *slog.Logger
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	uploadBytes   prometheus.Histogram
	runsInFlight  prometheus.Gauge
	downloadTotal *prometheus.CounterVec
}

// NewCollector creates a Collector with a private registry.
// An empty namespace uses DefaultNamespace.
func NewCollector(logger *slog.Logger, namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Collector{
		logger:   logger.With("component", "metrics"),
		registry: prometheus.NewRegistry(),
	}

	c.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of uploads processed, by outcome",
		},
		[]string{"outcome"},
	)
	c.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of upload runs in seconds",
			Buckets:   []float64{0.1, 1, 5, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"outcome"},
	)
	c.uploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_size_bytes",
			Help:      "Size of uploaded files in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)
	c.runsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Number of uploads currently being processed",
		},
	)
	c.downloadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_downloads_total",
			Help:      "Total number of artifact downloads, by artifact kind",
		},
		[]string{"artifact"},
	)

	c.registry.MustRegister(
		c.runsTotal,
		c.runDuration,
		c.uploadBytes,
		c.runsInFlight,
		c.downloadTotal,
	)

	c.logger.Debug("metrics collector initialized", "namespace", namespace)
	return c
}

// Registry returns the Prometheus registry of the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveRun records a finished run. It implements pipeline.Observer.
func (c *Collector) ObserveRun(_ context.Context, run *model.Run) {
	outcome := Outcome(run)
	c.runsTotal.WithLabelValues(outcome).Inc()
	c.runDuration.WithLabelValues(outcome).Observe(run.Duration().Seconds())
	c.uploadBytes.Observe(float64(run.Size))
}

// TrackInFlight increments the in-flight gauge and returns the function
// that decrements it.
func (c *Collector) TrackInFlight() func() {
	c.runsInFlight.Inc()
	return c.runsInFlight.Dec
}

// RecordDownload counts one artifact download. artifact is
// "synthetic_data" or "report".
func (c *Collector) RecordDownload(artifact string) {
	c.downloadTotal.WithLabelValues(artifact).Inc()
}

// Outcome returns the outcome label of a finished run.
func Outcome(run *model.Run) string {
	if run.Succeeded() {
		return outcomeSucceeded
	}
	if run.ErrorKind == "" {
		return "error"
	}
	return string(run.ErrorKind)
}
