package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/qc-app/pkg/metrics"
)

// Constructors register on the shared registry, so each runs once per binary.
var (
	backendMetrics    = sync.OnceValue(func() *metrics.BackendMetrics { return metrics.NewBackendMetrics(metrics.Namespace) })
	frontendMetrics   = sync.OnceValue(func() *metrics.FrontendMetrics { return metrics.NewFrontendMetrics(metrics.Namespace) })
	mqMetrics         = sync.OnceValue(func() *metrics.MQMetrics { return metrics.NewMQMetrics(metrics.Namespace) })
	instrumentMetrics = sync.OnceValue(func() *metrics.InstrumentMetrics { return metrics.NewInstrumentMetrics(metrics.Namespace) })
)

func gatheredNames() []string {
	families, err := metrics.Registry.Gather()
	Expect(err).NotTo(HaveOccurred())
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	return names
}

var _ = Describe("Metrics", func() {
	It("registers the runtime collectors", func() {
		Expect(gatheredNames()).To(ContainElements("go_goroutines", "process_start_time_seconds"))
	})

	It("panics when the same collectors are registered twice", func() {
		backendMetrics()
		Expect(func() { metrics.NewBackendMetrics(metrics.Namespace) }).To(Panic())
	})

	Describe("BackendMetrics", func() {
		It("counts RPCs by method and code", func() {
			m := backendMetrics()
			counter := m.RPCRequestsTotal.WithLabelValues("/qc.v1.QualityControl/ListSensors", "OK")
			before := testutil.ToFloat64(counter)
			counter.Inc()
			Expect(testutil.ToFloat64(counter)).To(Equal(before + 1))
			Expect(gatheredNames()).To(ContainElement("qc_grpc_requests_total"))
		})

		It("tracks processing outcomes", func() {
			m := backendMetrics()
			m.ProcessingRunsTotal.WithLabelValues("processed").Inc()
			m.NotificationsCreated.WithLabelValues("pressure").Add(2)
			Expect(testutil.ToFloat64(m.NotificationsCreated.WithLabelValues("pressure"))).To(BeNumerically(">=", 2))
			Expect(gatheredNames()).To(ContainElements(
				"qc_processing_runs_total",
				"qc_processing_notifications_created_total",
			))
		})
	})

	Describe("FrontendMetrics", func() {
		It("counts form rejections by field", func() {
			m := frontendMetrics()
			m.FormRejections.WithLabelValues("batch", "end_date").Inc()
			Expect(testutil.ToFloat64(m.FormRejections.WithLabelValues("batch", "end_date"))).To(BeNumerically(">=", 1))
			Expect(gatheredNames()).To(ContainElement("qc_forms_rejections_total"))
		})

		It("times template renders", func() {
			m := frontendMetrics()
			timer := prometheus.NewTimer(m.TemplateRenderTime.WithLabelValues("dashboard"))
			timer.ObserveDuration()
			Expect(testutil.CollectAndCount(m.TemplateRenderTime)).To(BeNumerically(">=", 1))
		})
	})

	Describe("MQMetrics", func() {
		It("reports the connection status", func() {
			m := mqMetrics()
			m.ConnectionStatus.Set(1)
			Expect(testutil.ToFloat64(m.ConnectionStatus)).To(Equal(1.0))
			m.ConnectionStatus.Set(0)
			Expect(testutil.ToFloat64(m.ConnectionStatus)).To(Equal(0.0))
		})
	})

	Describe("InstrumentMetrics", func() {
		It("counts published readings per sensor", func() {
			m := instrumentMetrics()
			m.ReadingsPublished.WithLabelValues("pressure").Inc()
			m.ActiveProducers.Inc()
			Expect(testutil.ToFloat64(m.ActiveProducers)).To(BeNumerically(">=", 1))
			Expect(gatheredNames()).To(ContainElement("qc_instrument_readings_published_total"))
		})
	})

	Describe("Handler", func() {
		It("exposes the registry over HTTP", func() {
			backendMetrics().SensorsProcessed.Inc()

			server := httptest.NewServer(metrics.Handler())
			DeferCleanup(server.Close)

			resp, err := http.Get(server.URL)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("qc_processing_sensors_processed_total"))
		})
	})
})
