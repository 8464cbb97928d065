package backend_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"

	"procodus.dev/qc-app/internal/backend"
	"procodus.dev/qc-app/pkg/mq/mock"
)

type fakeAcker struct {
	mu       sync.Mutex
	acked    []uint64
	nacked   []uint64
	requeued []bool
}

func (f *fakeAcker) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, tag)
	f.requeued = append(f.requeued, requeue)
	return nil
}

func (f *fakeAcker) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcker) Acked() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.acked...)
}

func (f *fakeAcker) Nacked() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.nacked...)
}

type failingRecorder struct{}

func (failingRecorder) RecordReading(context.Context, backend.ReadingInput) (*backend.InstrumentReading, error) {
	return nil, errors.New("database is read-only")
}

var _ = Describe("ReadingConsumer", func() {
	var (
		client     *mock.MockClient
		deliveries chan amqp.Delivery
		acker      *fakeAcker
	)

	BeforeEach(func() {
		client = mock.NewMockClient()
		deliveries = make(chan amqp.Delivery)
		client.ConsumeChannel = deliveries
		acker = &fakeAcker{}
	})

	newConsumer := func(store backend.ReadingRecorder) *backend.ReadingConsumer {
		consumer, err := backend.NewReadingConsumer(&backend.ReadingConsumerConfig{
			Logger:        discardLogger(),
			Client:        client,
			Store:         store,
			Queue:         "instrument-readings",
			RetryInterval: 10 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())
		return consumer
	}

	deliver := func(tag uint64, body []byte) {
		Eventually(deliveries).Should(BeSent(amqp.Delivery{
			Acknowledger: acker,
			DeliveryTag:  tag,
			Body:         body,
		}))
	}

	Describe("NewReadingConsumer", func() {
		It("validates its config", func() {
			_, err := backend.NewReadingConsumer(nil)
			Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))

			_, err = backend.NewReadingConsumer(&backend.ReadingConsumerConfig{Client: client, Store: failingRecorder{}})
			Expect(err).To(MatchError(ContainSubstring("logger")))

			_, err = backend.NewReadingConsumer(&backend.ReadingConsumerConfig{Logger: discardLogger(), Store: failingRecorder{}})
			Expect(err).To(MatchError(ContainSubstring("mq client")))

			_, err = backend.NewReadingConsumer(&backend.ReadingConsumerConfig{Logger: discardLogger(), Client: client})
			Expect(err).To(MatchError(ContainSubstring("store")))
		})
	})

	Context("with a database store", func() {
		var (
			db       *gorm.DB
			svc      *backend.Service
			sensor   *backend.Sensor
			consumer *backend.ReadingConsumer
		)

		BeforeEach(func() {
			db = newTestDB()
			svc = newTestService(db, nil, nil)
			sensor = mustSensor(svc, "torque")
			consumer = newConsumer(svc)
			Expect(consumer.Start(context.Background())).To(Succeed())
			DeferCleanup(func() { Expect(consumer.Stop()).To(Succeed()) })
		})

		It("stores a valid reading and acks it", func() {
			body, err := backend.MarshalReading(backend.ReadingInput{
				SensorID:  sensor.ID,
				Value:     4555,
				Timestamp: fixedNow,
				Source:    "INS-0001",
			})
			Expect(err).NotTo(HaveOccurred())

			deliver(1, body)

			Eventually(acker.Acked).Should(Equal([]uint64{1}))
			var stored []backend.InstrumentReading
			Expect(db.Where("sensor_id = ?", sensor.ID).Find(&stored).Error).To(Succeed())
			Expect(stored).To(HaveLen(1))
			Expect(stored[0].Value).To(Equal(4555.0))
			Expect(stored[0].Source).To(Equal("INS-0001"))
		})

		It("acks and drops a malformed message", func() {
			deliver(2, []byte("not protobuf at all \xff\xff"))
			Eventually(acker.Acked).Should(Equal([]uint64{2}))
			Expect(acker.Nacked()).To(BeEmpty())
		})

		It("acks and drops a reading for an unknown sensor", func() {
			body, err := backend.MarshalReading(backend.ReadingInput{SensorID: 9999, Value: 1, Timestamp: fixedNow})
			Expect(err).NotTo(HaveOccurred())

			deliver(3, body)
			Eventually(acker.Acked).Should(Equal([]uint64{3}))
		})

		It("refuses a second Start", func() {
			Expect(consumer.Start(context.Background())).To(MatchError(ContainSubstring("already started")))
		})
	})

	It("requeues a reading when the store fails", func() {
		consumer := newConsumer(failingRecorder{})
		Expect(consumer.Start(context.Background())).To(Succeed())
		defer func() { Expect(consumer.Stop()).To(Succeed()) }()

		body, err := backend.MarshalReading(backend.ReadingInput{SensorID: 1, Value: 1, Timestamp: fixedNow})
		Expect(err).NotTo(HaveOccurred())
		deliver(4, body)

		Eventually(acker.Nacked).Should(Equal([]uint64{4}))
		acker.mu.Lock()
		Expect(acker.requeued).To(Equal([]bool{true}))
		acker.mu.Unlock()
		Expect(acker.Acked()).To(BeEmpty())
	})

	It("waits for the client to become ready before subscribing", func() {
		client.SetReady(false)
		consumer := newConsumer(failingRecorder{})
		Expect(consumer.Start(context.Background())).To(Succeed())
		defer func() { Expect(consumer.Stop()).To(Succeed()) }()

		Consistently(client.ConsumeCalls, 100*time.Millisecond, 10*time.Millisecond).Should(BeZero())

		client.SetReady(true)
		Eventually(client.ConsumeCalls).Should(Equal(1))
	})

	It("resubscribes after the delivery channel closes", func() {
		second := make(chan amqp.Delivery)
		var calls int
		var mu sync.Mutex
		client.ConsumeFunc = func() (<-chan amqp.Delivery, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return deliveries, nil
			}
			return second, nil
		}

		consumer := newConsumer(failingRecorder{})
		Expect(consumer.Start(context.Background())).To(Succeed())
		defer func() { Expect(consumer.Stop()).To(Succeed()) }()

		Eventually(client.ConsumeCalls).Should(Equal(1))
		close(deliveries)
		Eventually(client.ConsumeCalls).Should(Equal(2))
	})

	It("stops cleanly without being started", func() {
		consumer := newConsumer(failingRecorder{})
		Expect(consumer.Stop()).To(Succeed())
		Expect(client.CloseCalls()).To(Equal(1))
	})

	It("stops when the parent context ends", func() {
		ctx, cancel := context.WithCancel(context.Background())
		consumer := newConsumer(failingRecorder{})
		Expect(consumer.Start(ctx)).To(Succeed())
		cancel()

		done := make(chan error, 1)
		go func() { done <- consumer.Stop() }()
		Eventually(done).Should(Receive(BeNil()))
	})
})
