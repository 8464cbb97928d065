package backend_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"procodus.dev/qc-app/internal/backend"
)

var _ = Describe("Catalog", func() {
	var (
		ctx context.Context
		db  *gorm.DB
		svc *backend.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = newTestDB()
		svc = newTestService(db, fixedValues(map[string]float64{"torque": 4500}), nil)
	})

	Describe("sensors", func() {
		It("creates and lists sensors in id order", func() {
			mustSensor(svc, "torque")
			mustSensor(svc, "gap")

			sensors, err := svc.ListSensors(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sensors).To(HaveLen(2))
			Expect(sensors[0].SensorName).To(Equal("torque"))
		})

		It("rejects blank and duplicate names", func() {
			_, err := svc.CreateSensor(ctx, "  ")
			Expect(err).To(MatchError(backend.ErrValidation))

			mustSensor(svc, "torque")
			_, err = svc.CreateSensor(ctx, "torque")
			Expect(err).To(MatchError(backend.ErrValidation))
		})

		It("deletes an unused sensor together with its rules and readings", func() {
			sensor := mustSensor(svc, "torque")
			mustRule(svc, sensor.ID, ptr(4000.0), nil)
			_, err := svc.RecordReading(ctx, backend.ReadingInput{SensorID: sensor.ID, Value: 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.DeleteSensor(ctx, sensor.ID)).To(Succeed())
			Expect(countRows(db, &backend.NotificationRule{}, "sensor_id = ?", sensor.ID)).To(BeZero())
			Expect(countRows(db, &backend.InstrumentReading{}, "sensor_id = ?", sensor.ID)).To(BeZero())
		})

		It("refuses to delete a sensor with processed values", func() {
			sensor := mustSensor(svc, "torque")
			frame := mustFrame(svc, "FR-1")
			_, err := svc.ProcessFrameSensors(ctx, frame.ID)
			Expect(err).NotTo(HaveOccurred())

			err = svc.DeleteSensor(ctx, sensor.ID)
			var verr *backend.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.Field).To(Equal("sensor"))
		})

		It("returns ErrNotFound when deleting a missing sensor", func() {
			Expect(svc.DeleteSensor(ctx, 31337)).To(MatchError(backend.ErrNotFound))
		})
	})

	Describe("rules", func() {
		It("requires at least one threshold", func() {
			sensor := mustSensor(svc, "torque")
			_, err := svc.CreateRule(ctx, backend.RuleInput{SensorID: sensor.ID})
			Expect(err).To(MatchError(backend.ErrValidation))
		})

		It("requires a known sensor and notification type", func() {
			_, err := svc.CreateRule(ctx, backend.RuleInput{SensorID: 5, NormalValue: ptr(1.0)})
			Expect(err).To(MatchError(backend.ErrValidation))

			sensor := mustSensor(svc, "torque")
			_, err = svc.CreateRule(ctx, backend.RuleInput{SensorID: sensor.ID, NormalValue: ptr(1.0), NotificationTypeID: ptr(uint(42))})
			Expect(err).To(MatchError(backend.ErrValidation))
		})

		It("returns the rule with its sensor and type", func() {
			sensor := mustSensor(svc, "torque")
			types, err := svc.ListNotificationTypes(ctx)
			Expect(err).NotTo(HaveOccurred())

			rule, err := svc.CreateRule(ctx, backend.RuleInput{
				SensorID:           sensor.ID,
				NormalValue:        ptr(4000.0),
				CriticalValue:      ptr(4800.0),
				NotificationTypeID: &types[1].ID,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(rule.Sensor.SensorName).To(Equal("torque"))
			Expect(rule.NotificationType.TypeName).To(Equal(types[1].TypeName))
			Expect(rule.CriticalValue).To(HaveValue(Equal(4800.0)))

			rules, err := svc.ListRules(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rules).To(HaveLen(1))
		})

		It("keeps notifications when their rule is deleted", func() {
			sensor := mustSensor(svc, "torque")
			rule := mustRule(svc, sensor.ID, ptr(4000.0), nil)
			frame := mustFrame(svc, "FR-1")
			_, err := svc.ProcessFrameSensors(ctx, frame.ID)
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.DeleteRule(ctx, rule.ID)).To(Succeed())

			notifications, err := svc.ListNotifications(ctx, frame.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(notifications).To(HaveLen(1))
			Expect(notifications[0].NotificationRuleID).To(BeNil())

			Expect(svc.DeleteRule(ctx, rule.ID)).To(MatchError(backend.ErrNotFound))
		})
	})

	Describe("frame models", func() {
		It("creates unique models sorted by name", func() {
			_, err := svc.CreateFrameModel(ctx, "Zeta")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.CreateFrameModel(ctx, "Alpha")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.CreateFrameModel(ctx, "Alpha")
			Expect(err).To(MatchError(backend.ErrValidation))

			models, err := svc.ListFrameModels(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(models).To(HaveLen(2))
			Expect(models[0].FrameName).To(Equal("Alpha"))
		})
	})

	Describe("RecordReading", func() {
		It("defaults the timestamp to now", func() {
			sensor := mustSensor(svc, "torque")
			reading, err := svc.RecordReading(ctx, backend.ReadingInput{SensorID: sensor.ID, Value: 4321.5, Source: "INS-0001"})
			Expect(err).NotTo(HaveOccurred())
			Expect(reading.ID).NotTo(BeZero())
			Expect(reading.Timestamp).To(BeTemporally("==", fixedNow))
			Expect(reading.Source).To(Equal("INS-0001"))
		})

		It("rejects readings for unknown sensors", func() {
			_, err := svc.RecordReading(ctx, backend.ReadingInput{SensorID: 77, Value: 1})
			Expect(err).To(MatchError(backend.ErrValidation))
		})
	})

	Describe("Summary", func() {
		It("counts records and lists recent notifications", func() {
			sensor := mustSensor(svc, "torque")
			mustRule(svc, sensor.ID, ptr(4000.0), nil)
			_, err := svc.CreateBatch(ctx, backend.BatchInput{})
			Expect(err).NotTo(HaveOccurred())
			processed := mustFrame(svc, "FR-1")
			mustFrame(svc, "FR-2")
			_, err = svc.ProcessFrameSensors(ctx, processed.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{FrameID: processed.ID, ExpertName: "Dana Ruiz", Verdict: "PASS"})
			Expect(err).NotTo(HaveOccurred())

			sum, err := svc.Summary(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sum.Batches).To(Equal(int64(1)))
			Expect(sum.Frames).To(Equal(int64(2)))
			Expect(sum.ProcessedFrames).To(Equal(int64(1)))
			Expect(sum.AnalyzedFrames).To(Equal(int64(1)))
			Expect(sum.Notifications).To(Equal(int64(1)))
			Expect(sum.Sensors).To(Equal(int64(1)))
			Expect(sum.RecentNotifications).To(HaveLen(1))
			Expect(sum.RecentNotifications[0].ProcessedSensor.Sensor.SensorName).To(Equal("torque"))
		})
	})
})
