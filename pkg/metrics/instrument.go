package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// InstrumentMetrics contains Prometheus metrics for the instrument simulator.
type InstrumentMetrics struct {
	ReadingsPublished *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec
	AnomaliesInjected prometheus.Counter
	ActiveProducers   prometheus.Gauge
}

// NewInstrumentMetrics creates and registers instrument simulator metrics.
func NewInstrumentMetrics(namespace string) *InstrumentMetrics {
	m := &InstrumentMetrics{
		ReadingsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "instrument",
				Name:      "readings_published_total",
				Help:      "Total number of instrument readings published",
			},
			[]string{"sensor"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "instrument",
				Name:      "publish_failures_total",
				Help:      "Total number of failed reading publications",
			},
			[]string{"reason"},
		),
		AnomaliesInjected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "instrument",
				Name:      "anomalies_injected_total",
				Help:      "Total number of anomalous readings generated",
			},
		),
		ActiveProducers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "instrument",
				Name:      "active_producers",
				Help:      "Number of currently active instrument producers",
			},
		),
	}

	MustRegister(
		m.ReadingsPublished,
		m.PublishFailures,
		m.AnomaliesInjected,
		m.ActiveProducers,
	)

	return m
}
