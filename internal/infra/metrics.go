package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

const metricsNamespace = "usagemon"

// PrometheusMetrics implements domain.Metrics with Prometheus collectors.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	decisions        *prometheus.CounterVec
	decisionDuration prometheus.Histogram
	eventsDropped    *prometheus.CounterVec
	bucketRows       prometheus.Counter
	focusSessions    *prometheus.CounterVec
	rollupRuns       *prometheus.CounterVec
	jobFailures      *prometheus.CounterVec
}

// NewPrometheusMetrics creates the collectors on a private registry together
// with the Go runtime and process collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decisions_total",
			Help:      "Foreground decisions by outcome.",
		}, []string{"outcome"}),
		decisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "decision_duration_seconds",
			Help:      "Time spent choosing an intervention.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25},
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_dropped_total",
			Help:      "Usage events discarded while bucketing, by reason.",
		}, []string{"reason"}),
		bucketRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bucket_rows_written_total",
			Help:      "Hourly usage rows upserted.",
		}),
		focusSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "focus_sessions_total",
			Help:      "Finished focus sessions by result.",
		}, []string{"result"}),
		rollupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rollup_runs_total",
			Help:      "Daily rollup runs by result.",
		}, []string{"result"}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "job_failures_total",
			Help:      "Scheduled jobs that failed after retries.",
		}, []string{"job"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decisions,
		m.decisionDuration,
		m.eventsDropped,
		m.bucketRows,
		m.focusSessions,
		m.rollupRuns,
		m.jobFailures,
	)
	return m
}

// Registry exposes the registry for serving and tests.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) DecisionMade(outcome domain.Intervention, elapsed time.Duration) {
	m.decisions.WithLabelValues(string(outcome)).Inc()
	m.decisionDuration.Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) EventsDropped(reason string, n int) {
	m.eventsDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *PrometheusMetrics) BucketRowsWritten(n int) {
	m.bucketRows.Add(float64(n))
}

func (m *PrometheusMetrics) FocusSessionEnded(completed bool) {
	result := "stopped"
	if completed {
		result = "completed"
	}
	m.focusSessions.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) RollupRun(result string) {
	m.rollupRuns.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) JobFailed(job string) {
	m.jobFailures.WithLabelValues(job).Inc()
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)

// MetricsServer serves a registry over HTTP.
type MetricsServer struct {
	server   *http.Server
	port     int
	endpoint string
	logger   *zap.Logger
}

// NewMetricsServer creates a server for registry on port.
func NewMetricsServer(registry *prometheus.Registry, port int, endpoint string, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(endpoint, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		server: &http.Server{
			Addr:              ":" + strconv.Itoa(port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		port:     port,
		endpoint: endpoint,
		logger:   logger,
	}
}

// Start begins serving metrics in the background.
func (m *MetricsServer) Start() {
	go func() {
		m.logger.Info("metrics server listening",
			zap.Int("port", m.port),
			zap.String("endpoint", m.endpoint))
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if err := m.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop metrics server: %w", err)
	}
	m.logger.Info("metrics server stopped")
	return nil
}
