// Package telemetry provides the structured logging and metrics the
// scheduler and CLI surface: slog for logging, and
// prometheus/client_golang for the counters/histograms a batch-oriented
// scheduler naturally exposes.
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polyweave/polyweave/internal/plugin"
)

// LogConfig controls the logger NewLogger builds.
type LogConfig struct {
	Level  string
	Pretty bool
}

// DefaultLogConfig returns the default logging configuration: info level,
// JSON output.
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Pretty: false}
}

// NewLogger builds a *slog.Logger per cfg, writing to stdout.
func NewLogger(cfg LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Pretty {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Metrics bundles the Prometheus instruments the scheduler records against.
// A Metrics is safe to share across concurrent Run calls.
type Metrics struct {
	registry *prometheus.Registry

	batchesTotal   prometheus.Counter
	batchSize      prometheus.Histogram
	stepsTotal     *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	cyclesRejected prometheus.Counter
}

// NewMetrics registers a fresh set of instruments on a private registry
// (never the global default, so multiple engines in one process don't
// collide).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polyweave",
			Subsystem: "scheduler",
			Name:      "batches_total",
			Help:      "Total number of step-request batches emitted.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "polyweave",
			Subsystem: "scheduler",
			Name:      "batch_size",
			Help:      "Number of step requests per emitted batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "polyweave",
			Subsystem: "scheduler",
			Name:      "steps_total",
			Help:      "Total node steps, labeled by resulting state kind.",
		}, []string{"state"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "polyweave",
			Subsystem: "scheduler",
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of a single node step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node_kind"}),
		cyclesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polyweave",
			Subsystem: "pgraph",
			Name:      "cyclic_edges_rejected_total",
			Help:      "Total dependency edges rejected by the incremental cycle detector.",
		}),
	}
	reg.MustRegister(m.batchesTotal, m.batchSize, m.stepsTotal, m.stepDuration, m.cyclesRejected)
	return m
}

// Registry exposes the underlying Prometheus registry, e.g. for mounting
// promhttp.HandlerFor in a host binary.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveBatch records one emitted batch of the given size.
func (m *Metrics) ObserveBatch(_ context.Context, size int) {
	m.batchesTotal.Inc()
	m.batchSize.Observe(float64(size))
}

// ObserveStep records one completed step: its resulting state kind, node
// kind, and wall-clock duration.
func (m *Metrics) ObserveStep(_ context.Context, stateKind, nodeKind string, d time.Duration) {
	m.stepsTotal.WithLabelValues(stateKind).Inc()
	m.stepDuration.WithLabelValues(nodeKind).Observe(d.Seconds())
}

// ObserveCycleRejected records n dependency edges the cycle detector has
// rejected.
func (m *Metrics) ObserveCycleRejected(_ context.Context, n int) {
	m.cyclesRejected.Add(float64(n))
}

// MetricsHooks adapts Metrics into plugin.LifecycleHooks, so the scheduler
// records batch metrics through the same hook boundary a plugin would use,
// without the scheduler depending on Prometheus directly.
type MetricsHooks struct {
	Metrics *Metrics
}

func (h MetricsHooks) BeforeBatch(context.Context, int) {}

// AfterBatch records the batch through Metrics.ObserveBatch.
func (h MetricsHooks) AfterBatch(ctx context.Context, batchSize int) {
	h.Metrics.ObserveBatch(ctx, batchSize)
}

func (h MetricsHooks) BeforeStep(context.Context, string)      {}
func (h MetricsHooks) AfterStep(context.Context, string, bool) {}

var _ plugin.LifecycleHooks = MetricsHooks{}
