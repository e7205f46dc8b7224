package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentdock/agentdock/pkg/engine"
)

// Metrics provides Prometheus metrics for the deployment and health
// pipelines. It implements engine.Observer, health.Observer, and
// schema.FallbackObserver.
type Metrics struct {
	config MetricsConfig

	// Deployment metrics
	deploymentsStarted   prometheus.Counter
	deploymentsCompleted *prometheus.CounterVec
	deploymentDuration   *prometheus.HistogramVec
	stageDuration        *prometheus.HistogramVec

	// Retry and rollback metrics
	retries           *prometheus.CounterVec
	rollbackResources *prometheus.CounterVec

	// Schema extraction metrics
	schemaFallbacks *prometheus.CounterVec

	// Health metrics
	healthChecks        *prometheus.CounterVec
	healthCheckDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. A disabled config yields a
// no-op instance whose methods are all safe to call.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		deploymentsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_started_total",
			Help:      "Total number of deployment attempts started",
		}),
		deploymentsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_completed_total",
			Help:      "Total number of deployment attempts completed",
		}, []string{"status"}),
		deploymentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deployment_duration_seconds",
			Help:      "Duration of deployment attempts in seconds",
			Buckets:   buckets,
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deployment_stage_duration_seconds",
			Help:      "Duration of individual pipeline stages in seconds",
			Buckets:   buckets,
		}, []string{"stage"}),

		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_retries_total",
			Help:      "Total number of remote call retries by operation and error class",
		}, []string{"operation", "class"}),
		rollbackResources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollback_resources_total",
			Help:      "Remote resources deleted (or failed to delete) during rollback",
		}, []string{"kind", "outcome"}),

		schemaFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_fallbacks_total",
			Help:      "Credential types resolved by heuristic fallback instead of the registry",
		}, []string{"credential_type"}),

		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Total number of health checks by verdict",
		}, []string{"healthy"}),
		healthCheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_check_duration_seconds",
			Help:      "Wall-clock duration of health checks in seconds",
			Buckets:   buckets,
		}),
	}

	collectors := []prometheus.Collector{
		m.deploymentsStarted,
		m.deploymentsCompleted,
		m.deploymentDuration,
		m.stageDuration,
		m.retries,
		m.rollbackResources,
		m.schemaFallbacks,
		m.healthChecks,
		m.healthCheckDuration,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Handler returns the HTTP handler serving the metrics endpoint, or nil
// when metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DeploymentStarted implements engine.Observer.
func (m *Metrics) DeploymentStarted() {
	if m.registry == nil {
		return
	}
	m.deploymentsStarted.Inc()
}

// DeploymentCompleted implements engine.Observer.
func (m *Metrics) DeploymentCompleted(status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.deploymentsCompleted.WithLabelValues(status).Inc()
	m.deploymentDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// StageCompleted implements engine.Observer.
func (m *Metrics) StageCompleted(stage engine.Stage, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())
}

// RetryAttempted implements engine.Observer.
func (m *Metrics) RetryAttempted(operation string, class engine.ErrorClass) {
	if m.registry == nil {
		return
	}
	m.retries.WithLabelValues(operation, string(class)).Inc()
}

// RollbackResource implements engine.Observer.
func (m *Metrics) RollbackResource(kind string, success bool) {
	if m.registry == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "deleted"
	}
	m.rollbackResources.WithLabelValues(kind, outcome).Inc()
}

// SchemaFallback implements schema.FallbackObserver.
func (m *Metrics) SchemaFallback(credType string) {
	if m.registry == nil {
		return
	}
	m.schemaFallbacks.WithLabelValues(credType).Inc()
}

// HealthCheckCompleted implements health.Observer.
func (m *Metrics) HealthCheckCompleted(healthy bool, duration time.Duration) {
	if m.registry == nil {
		return
	}
	verdict := "false"
	if healthy {
		verdict = "true"
	}
	m.healthChecks.WithLabelValues(verdict).Inc()
	m.healthCheckDuration.Observe(duration.Seconds())
}
