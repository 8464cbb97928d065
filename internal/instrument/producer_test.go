package instrument_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/qc-app/internal/backend"
	"procodus.dev/qc-app/internal/instrument"
	"procodus.dev/qc-app/pkg/generator"
	"procodus.dev/qc-app/pkg/mq/mock"
)

var _ = Describe("Producer", func() {
	var (
		client *mock.MockClient
		at     time.Time
	)

	BeforeEach(func() {
		client = mock.NewMockClient()
		at = time.Date(2026, 5, 4, 7, 15, 0, 0, time.UTC)
	})

	newProducer := func(ids ...uint) *instrument.Producer {
		p, err := instrument.NewProducer(&instrument.ProducerConfig{
			Client:    client,
			SensorIDs: ids,
			Signal:    generator.SignalConfig{Baseline: 4100, Seed: 3},
			Metrics:   instrumentMetrics(),
			Now:       func() time.Time { return at },
		})
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	DescribeTable("rejecting invalid configuration",
		func(cfg *instrument.ProducerConfig, message string) {
			_, err := instrument.NewProducer(cfg)
			Expect(err).To(MatchError(ContainSubstring(message)))
		},
		Entry("nil config", nil, "producer config cannot be nil"),
		Entry("no client", &instrument.ProducerConfig{SensorIDs: []uint{1}}, "queue client cannot be nil"),
		Entry("no sensors", &instrument.ProducerConfig{Client: mock.NewMockClient()}, "at least one sensor ID"),
		Entry("zero sensor ID", &instrument.ProducerConfig{Client: mock.NewMockClient(), SensorIDs: []uint{0}}, "must be positive"),
	)

	It("publishes one decodable reading per sensor", func() {
		p := newProducer(3, 7)
		Expect(p.Source()).To(MatchRegexp(`^INS-\d{4}$`))

		Expect(p.PublishReadings(context.Background())).To(Succeed())

		pushed := client.Pushed()
		Expect(pushed).To(HaveLen(2))

		var ids []uint
		for _, data := range pushed {
			in, err := backend.UnmarshalReading(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(in.Value).To(Equal(4100.0))
			Expect(in.Timestamp).To(BeTemporally("==", at))
			Expect(in.Source).To(Equal(p.Source()))
			ids = append(ids, in.SensorID)
		}
		Expect(ids).To(Equal([]uint{3, 7}))
	})

	It("counts published readings per sensor", func() {
		counter := instrumentMetrics().ReadingsPublished.WithLabelValues("11")
		before := testutil.ToFloat64(counter)

		Expect(newProducer(11).PublishReadings(context.Background())).To(Succeed())
		Expect(testutil.ToFloat64(counter)).To(Equal(before + 1))
	})

	It("keeps publishing after a failed push", func() {
		calls := 0
		client.PushFunc = func(context.Context, []byte) error {
			calls++
			if calls == 1 {
				return errors.New("broker unavailable")
			}
			return nil
		}
		failures := instrumentMetrics().PublishFailures.WithLabelValues("push_error")
		before := testutil.ToFloat64(failures)

		err := newProducer(1, 2).PublishReadings(context.Background())
		Expect(err).To(MatchError(ContainSubstring("sensor 1: broker unavailable")))
		Expect(client.Pushed()).To(HaveLen(2))
		Expect(testutil.ToFloat64(failures)).To(Equal(before + 1))
	})

	It("stops on a canceled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Expect(newProducer(1).PublishReadings(ctx)).To(MatchError(context.Canceled))
		Expect(client.Pushed()).To(BeEmpty())
	})
})
