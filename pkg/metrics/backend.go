package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BackendMetrics contains Prometheus metrics for the backend service.
type BackendMetrics struct {
	RPCRequestsTotal      *prometheus.CounterVec
	RPCRequestDuration    *prometheus.HistogramVec
	RPCRequestsInFlight   *prometheus.GaugeVec
	ProcessingRunsTotal   *prometheus.CounterVec
	ProcessingDuration    prometheus.Histogram
	SensorsProcessed      prometheus.Counter
	NotificationsCreated  *prometheus.CounterVec
	VisualCapturesTotal   *prometheus.CounterVec
	AlertsDispatched      *prometheus.CounterVec
	ConsumerMessagesTotal *prometheus.CounterVec
	ConsumerErrors        *prometheus.CounterVec
}

// NewBackendMetrics creates and registers backend service metrics.
func NewBackendMetrics(namespace string) *BackendMetrics {
	m := &BackendMetrics{
		RPCRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "requests_total",
				Help:      "Total number of gRPC requests",
			},
			[]string{"method", "code"},
		),
		RPCRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "request_duration_seconds",
				Help:      "Duration of gRPC requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RPCRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "requests_in_flight",
				Help:      "Number of gRPC requests currently being processed",
			},
			[]string{"method"},
		),
		ProcessingRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "processing",
				Name:      "runs_total",
				Help:      "Total number of frame sensor processing runs",
			},
			[]string{"outcome"}, // outcome: processed, already_processed, no_sensors, no_reading, error
		),
		ProcessingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "processing",
				Name:      "run_duration_seconds",
				Help:      "Duration of frame sensor processing runs",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SensorsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "processing",
				Name:      "sensors_processed_total",
				Help:      "Total number of processed sensor records written",
			},
		),
		NotificationsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "processing",
				Name:      "notifications_created_total",
				Help:      "Total number of notifications created by rule evaluation",
			},
			[]string{"sensor"},
		),
		VisualCapturesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "visual",
				Name:      "captures_total",
				Help:      "Total number of expert visual analyses captured",
			},
			[]string{"mark"},
		),
		AlertsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "dispatched_total",
				Help:      "Total number of alert summaries pushed to external services",
			},
			[]string{"status"},
		),
		ConsumerMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "consumer",
				Name:      "messages_total",
				Help:      "Total number of instrument readings consumed",
			},
			[]string{"queue", "status"}, // status: stored, malformed, error
		),
		ConsumerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "consumer",
				Name:      "errors_total",
				Help:      "Total number of consumer errors",
			},
			[]string{"queue", "error_type"},
		),
	}

	MustRegister(
		m.RPCRequestsTotal,
		m.RPCRequestDuration,
		m.RPCRequestsInFlight,
		m.ProcessingRunsTotal,
		m.ProcessingDuration,
		m.SensorsProcessed,
		m.NotificationsCreated,
		m.VisualCapturesTotal,
		m.AlertsDispatched,
		m.ConsumerMessagesTotal,
		m.ConsumerErrors,
	)

	return m
}
