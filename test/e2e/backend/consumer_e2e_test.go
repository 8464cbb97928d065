package backend

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/qc-app/internal/backend"
	"procodus.dev/qc-app/internal/instrument"
	"procodus.dev/qc-app/pkg/generator"
	"procodus.dev/qc-app/pkg/mq"
)

var _ = Describe("Instrument feed E2E", Ordered, func() {
	var (
		producerClient *mq.Client
		sensor         *backend.Sensor
	)

	BeforeAll(func() {
		var err error
		producerClient, err = mq.NewClient(&mq.Config{
			URL:       rabbitMQ.URL,
			QueueName: readingQueue,
			Durable:   true,
			Logger:    testLogger,
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(producerClient.Close)
		Eventually(producerClient.Ready, 30*time.Second, 200*time.Millisecond).Should(BeTrue())

		sensor, err = client.CreateSensor(testContext(), unique("pressure"))
		Expect(err).NotTo(HaveOccurred())
	})

	readingsFor := func(sensorID uint) func() int64 {
		return func() int64 {
			var n int64
			Expect(db.Model(&backend.InstrumentReading{}).Where("sensor_id = ?", sensorID).Count(&n).Error).To(Succeed())
			return n
		}
	}

	It("stores readings published by a simulated instrument", func() {
		producer, err := instrument.NewProducer(&instrument.ProducerConfig{
			Client:    producerClient,
			SensorIDs: []uint{sensor.ID},
			Signal:    generator.SignalConfig{Baseline: 4200, Seed: 9},
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(producer.PublishReadings(testContext())).To(Succeed())
		Eventually(readingsFor(sensor.ID), 30*time.Second, 250*time.Millisecond).Should(BeEquivalentTo(1))

		var reading backend.InstrumentReading
		Expect(db.Where("sensor_id = ?", sensor.ID).First(&reading).Error).To(Succeed())
		Expect(reading.Value).To(Equal(4200.0))
		Expect(reading.Source).To(Equal(producer.Source()))
	})

	It("drops malformed messages and keeps consuming", func() {
		ctx := testContext()
		Expect(mqChannel.PublishWithContext(ctx, "", readingQueue, false, false, amqp.Publishing{
			ContentType:  mq.ContentTypeProtobuf,
			Body:         []byte("not a reading"),
			DeliveryMode: amqp.Persistent,
		})).To(Succeed())

		data, err := backend.MarshalReading(backend.ReadingInput{
			SensorID:  sensor.ID,
			Value:     4300,
			Timestamp: time.Now().UTC(),
			Source:    "raw-publisher",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(mqChannel.PublishWithContext(ctx, "", readingQueue, false, false, amqp.Publishing{
			ContentType:  mq.ContentTypeProtobuf,
			Body:         data,
			DeliveryMode: amqp.Persistent,
		})).To(Succeed())

		Eventually(readingsFor(sensor.ID), 30*time.Second, 250*time.Millisecond).Should(BeEquivalentTo(2))
	})

	It("processes a frame from the latest readings", func() {
		ctx := testContext()

		rule, err := client.CreateRule(ctx, backend.RuleInput{
			SensorID:    sensor.ID,
			NormalValue: ptr(4000.0),
		})
		Expect(err).NotTo(HaveOccurred())

		// Every sensor needs a reading; other tests may have added sensors.
		sensors, err := client.ListSensors(ctx)
		Expect(err).NotTo(HaveOccurred())
		ids := make([]uint, 0, len(sensors))
		for _, s := range sensors {
			ids = append(ids, s.ID)
		}
		producer, err := instrument.NewProducer(&instrument.ProducerConfig{
			Client:    producerClient,
			SensorIDs: ids,
			Signal:    generator.SignalConfig{Baseline: 4500, Seed: 11},
			Now:       func() time.Time { return time.Now().Add(time.Minute) },
		})
		Expect(err).NotTo(HaveOccurred())
		before := readingsFor(sensor.ID)()
		Expect(producer.PublishReadings(ctx)).To(Succeed())
		Eventually(readingsFor(sensor.ID), 30*time.Second, 250*time.Millisecond).Should(Equal(before + 1))

		frame, err := client.CreateFrame(ctx, backend.FrameInput{SerialNumber: unique("SN")})
		Expect(err).NotTo(HaveOccurred())

		// Readings for the other sensors may still be in flight.
		var result *backend.ProcessResult
		Eventually(func() error {
			result, err = client.ProcessFrameSensors(ctx, frame.ID)
			return err
		}, 30*time.Second, 250*time.Millisecond).Should(Succeed())
		Expect(result.Processed).To(HaveLen(len(sensors)))

		notifications, err := client.ListNotifications(ctx, frame.ID)
		Expect(err).NotTo(HaveOccurred())
		var fired []backend.Notification
		for _, n := range notifications {
			if n.NotificationRuleID != nil && *n.NotificationRuleID == rule.ID {
				fired = append(fired, n)
			}
		}
		Expect(fired).To(HaveLen(1))

		processed, err := client.ListProcessedSensors(ctx, frame.ID)
		Expect(err).NotTo(HaveOccurred())
		for _, p := range processed {
			if p.SensorID == sensor.ID {
				Expect(p.ValueAfterProc).To(Equal(4500.0))
				Expect(fired[0].SensorProdID).To(Equal(p.ID))
			}
		}

		_, err = client.ProcessFrameSensors(ctx, frame.ID)
		Expect(err).To(MatchError(backend.ErrAlreadyProcessed))
	})

	It("refuses to process while a sensor has no reading", func() {
		ctx := testContext()

		silent, err := client.CreateSensor(ctx, unique("silent"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(client.DeleteSensor(testContext(), silent.ID)).To(Succeed())
		})

		frame, err := client.CreateFrame(ctx, backend.FrameInput{SerialNumber: unique("SN")})
		Expect(err).NotTo(HaveOccurred())

		_, err = client.ProcessFrameSensors(ctx, frame.ID)
		Expect(err).To(MatchError(backend.ErrNoReading))
		Expect(err).To(MatchError(backend.ErrPrecondition))

		processed, err := client.ListProcessedSensors(ctx, frame.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(processed).To(BeEmpty())
	})
})
