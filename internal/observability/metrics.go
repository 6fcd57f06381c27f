package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsCollector records the worker's loop metrics. A collector built with
// metrics disabled is valid and records nothing.
type MetricsCollector struct {
	provider *sdkmetric.MeterProvider
	registry *promclient.Registry

	polls          metric.Int64Counter
	tasks          metric.Int64Counter
	taskDuration   metric.Float64Histogram
	reputation     metric.Int64Gauge
	reports        metric.Int64Counter
	snapshotWrites metric.Int64Counter
}

// NewMetricsCollector creates a collector backed by a dedicated Prometheus
// registry so several collectors can coexist in one process (tests).
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("agentscore")

	polls, err := meter.Int64Counter(
		"agentscore.poll.cycles",
		metric.WithDescription("Poll cycles by outcome"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll counter: %w", err)
	}

	tasks, err := meter.Int64Counter(
		"agentscore.tasks",
		metric.WithDescription("Tasks that reached a terminal lifecycle state"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task counter: %w", err)
	}

	taskDuration, err := meter.Float64Histogram(
		"agentscore.task.duration",
		metric.WithDescription("Accept to settle duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task duration histogram: %w", err)
	}

	reputation, err := meter.Int64Gauge(
		"agentscore.reputation",
		metric.WithDescription("Current reputation score"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reputation gauge: %w", err)
	}

	reports, err := meter.Int64Counter(
		"agentscore.reports",
		metric.WithDescription("Reporting channel actions by kind and outcome"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create report counter: %w", err)
	}

	snapshotWrites, err := meter.Int64Counter(
		"agentscore.snapshot.writes",
		metric.WithDescription("Snapshot persistence attempts by status"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot counter: %w", err)
	}

	return &MetricsCollector{
		provider:       provider,
		registry:       registry,
		polls:          polls,
		tasks:          tasks,
		taskDuration:   taskDuration,
		reputation:     reputation,
		reports:        reports,
		snapshotWrites: snapshotWrites,
	}, nil
}

// Handler serves the collector's registry in the Prometheus text format.
func (m *MetricsCollector) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordPoll records the outcome of one poll cycle.
func (m *MetricsCollector) RecordPoll(ctx context.Context, outcome string) {
	if m == nil || m.polls == nil {
		return
	}
	m.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTask records a task reaching a terminal state.
func (m *MetricsCollector) RecordTask(ctx context.Context, status, origin string, duration time.Duration) {
	if m == nil || m.tasks == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("origin", origin),
	)
	m.tasks.Add(ctx, 1, attrs)
	if duration > 0 {
		m.taskDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordReputation records the current reputation score.
func (m *MetricsCollector) RecordReputation(ctx context.Context, score int) {
	if m == nil || m.reputation == nil {
		return
	}
	m.reputation.Record(ctx, int64(score))
}

// RecordReport records a reporting channel action (register, heartbeat,
// broadcast, comment) and its outcome.
func (m *MetricsCollector) RecordReport(ctx context.Context, kind, outcome string) {
	if m == nil || m.reports == nil {
		return
	}
	m.reports.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordSnapshotWrite records a snapshot persistence attempt.
func (m *MetricsCollector) RecordSnapshotWrite(ctx context.Context, err error) {
	if m == nil || m.snapshotWrites == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.snapshotWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
