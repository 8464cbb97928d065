package backend_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"procodus.dev/qc-app/internal/backend"
)

var _ = Describe("Frames", func() {
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

	It("creates a frame with its references", func() {
		batch, err := svc.CreateBatch(ctx, backend.BatchInput{})
		Expect(err).NotTo(HaveOccurred())
		model, err := svc.CreateFrameModel(ctx, "FM-200 touring")
		Expect(err).NotTo(HaveOccurred())
		marks, err := svc.ListMarkTypes(ctx)
		Expect(err).NotTo(HaveOccurred())

		frame, err := svc.CreateFrame(ctx, backend.FrameInput{
			ProdBatchID:  &batch.ID,
			FrameModelID: &model.ID,
			SystemMarkID: &marks[0].ID,
			FinalMarkID:  &marks[2].ID,
			SerialNumber: " SN-0001 ",
			VisualJSON:   `{"note":"pre-check"}`,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(frame.SerialNumber).To(Equal("SN-0001"))
		Expect(frame.Batch).NotTo(BeNil())
		Expect(frame.FrameModel.FrameName).To(Equal("FM-200 touring"))
		Expect(frame.SystemMark.Code).To(Equal(backend.MarkCodePass))
		Expect(frame.ExpertMark).To(BeNil())
		Expect(frame.FinalMark.Code).To(Equal(backend.MarkCodeReject))
		Expect(frame.VisualJSON()).To(MatchJSON(`{"note":"pre-check"}`))
	})

	It("stores NULL for a blank analysis document", func() {
		frame, err := svc.CreateFrame(ctx, backend.FrameInput{SerialNumber: "SN-2", VisualJSON: "  \n "})
		Expect(err).NotTo(HaveOccurred())
		Expect(frame.HasVisualAnalysis()).To(BeFalse())
		Expect(countRows(db, &backend.Frame{}, "frame_id = ? AND visual_analys_params IS NULL", frame.ID)).To(Equal(int64(1)))
	})

	It("rejects an analysis document that is not JSON", func() {
		_, err := svc.CreateFrame(ctx, backend.FrameInput{SerialNumber: "SN-3", VisualJSON: "{oops"})
		var verr *backend.ValidationError
		Expect(errors.As(err, &verr)).To(BeTrue())
		Expect(verr.Field).To(Equal("visual_analys_params"))
		Expect(countRows(db, &backend.Frame{}, "1 = 1")).To(BeZero())
	})

	It("rejects unknown references", func() {
		_, err := svc.CreateFrame(ctx, backend.FrameInput{ExpertMarkID: ptr(uint(99))})
		var verr *backend.ValidationError
		Expect(errors.As(err, &verr)).To(BeTrue())
		Expect(verr.Field).To(Equal("expert_mark_id"))
	})

	It("filters frames by batch", func() {
		batch, err := svc.CreateBatch(ctx, backend.BatchInput{})
		Expect(err).NotTo(HaveOccurred())
		inBatch, err := svc.CreateFrame(ctx, backend.FrameInput{ProdBatchID: &batch.ID, SerialNumber: "A"})
		Expect(err).NotTo(HaveOccurred())
		mustFrame(svc, "B")

		all, err := svc.ListFrames(ctx, backend.FrameFilter{})
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))

		filtered, err := svc.ListFrames(ctx, backend.FrameFilter{BatchID: &batch.ID})
		Expect(err).NotTo(HaveOccurred())
		Expect(filtered).To(HaveLen(1))
		Expect(filtered[0].ID).To(Equal(inBatch.ID))
	})

	Describe("UpdateFrame", func() {
		It("replaces fields and clears a blanked document", func() {
			frame, err := svc.CreateFrame(ctx, backend.FrameInput{SerialNumber: "SN-4", VisualJSON: `{"a":1}`})
			Expect(err).NotTo(HaveOccurred())

			updated, err := svc.UpdateFrame(ctx, backend.FrameInput{
				ID:           frame.ID,
				Version:      frame.Version,
				SerialNumber: "SN-4b",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.SerialNumber).To(Equal("SN-4b"))
			Expect(updated.HasVisualAnalysis()).To(BeFalse())
			Expect(updated.Version).To(Equal(2))
		})

		It("returns ErrConflict when the frame changed underneath", func() {
			frame := mustFrame(svc, "SN-5")
			_, err := svc.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{FrameID: frame.ID, ExpertName: "Dana Ruiz", Verdict: "PASS"})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.UpdateFrame(ctx, backend.FrameInput{ID: frame.ID, Version: frame.Version, SerialNumber: "SN-5b"})
			Expect(err).To(MatchError(backend.ErrConflict))
		})

		It("returns ErrNotFound for a missing frame", func() {
			_, err := svc.UpdateFrame(ctx, backend.FrameInput{ID: 404, Version: 1})
			Expect(err).To(MatchError(backend.ErrNotFound))
		})

		It("validates the document before touching the row", func() {
			frame := mustFrame(svc, "SN-6")
			_, err := svc.UpdateFrame(ctx, backend.FrameInput{ID: frame.ID, Version: frame.Version, VisualJSON: "[1,"})
			Expect(err).To(MatchError(backend.ErrValidation))
		})
	})

	Describe("DeleteFrame", func() {
		It("removes the processed sensors and notifications of the frame", func() {
			sensor := mustSensor(svc, "torque")
			mustRule(svc, sensor.ID, ptr(4000.0), nil)
			doomed := mustFrame(svc, "SN-7")
			kept := mustFrame(svc, "SN-8")

			for _, id := range []uint{doomed.ID, kept.ID} {
				_, err := svc.ProcessFrameSensors(ctx, id)
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(svc.DeleteFrame(ctx, doomed.ID)).To(Succeed())

			Expect(countRows(db, &backend.ProcessedSensor{}, "frame_id = ?", doomed.ID)).To(BeZero())
			Expect(countRows(db, &backend.Notification{}, "frame_id = ?", doomed.ID)).To(BeZero())
			Expect(countRows(db, &backend.ProcessedSensor{}, "frame_id = ?", kept.ID)).To(Equal(int64(1)))
			Expect(countRows(db, &backend.Notification{}, "frame_id = ?", kept.ID)).To(Equal(int64(1)))

			_, err := svc.GetFrame(ctx, doomed.ID)
			Expect(err).To(MatchError(backend.ErrNotFound))
		})

		It("returns ErrNotFound for a missing frame", func() {
			Expect(svc.DeleteFrame(ctx, 404)).To(MatchError(backend.ErrNotFound))
		})
	})
})
