package backend

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/qc-app/internal/backend"
)

var _ = Describe("Backend gRPC API E2E", func() {
	It("serves the seeded lookups", func() {
		ctx := testContext()

		statuses, err := client.ListBatchStatuses(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(statuses).NotTo(BeEmpty())

		marks, err := client.ListMarkTypes(ctx)
		Expect(err).NotTo(HaveOccurred())
		var codes []string
		for _, m := range marks {
			codes = append(codes, m.Code)
		}
		Expect(codes).To(ContainElements(backend.MarkCodePass, backend.MarkCodeRework, backend.MarkCodeReject))

		types, err := client.ListNotificationTypes(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(types).NotTo(BeEmpty())
	})

	It("manages batches with optimistic versions", func() {
		ctx := testContext()

		start := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
		batch, err := client.CreateBatch(ctx, backend.BatchInput{StartDate: &start, Recom: "initial"})
		Expect(err).NotTo(HaveOccurred())
		Expect(batch.Version).To(Equal(1))

		end := start.Add(8 * time.Hour)
		updated, err := client.UpdateBatch(ctx, backend.BatchInput{
			ID:        batch.ID,
			Version:   batch.Version,
			StartDate: &start,
			EndDate:   &end,
			Recom:     "second pass",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Version).To(Equal(2))
		Expect(updated.Recom).To(Equal("second pass"))

		_, err = client.UpdateBatch(ctx, backend.BatchInput{ID: batch.ID, Version: batch.Version, Recom: "stale"})
		Expect(err).To(MatchError(backend.ErrConflict))

		_, err = client.UpdateBatch(ctx, backend.BatchInput{
			ID:        batch.ID,
			Version:   updated.Version,
			StartDate: &end,
			EndDate:   &start,
		})
		var verr *backend.ValidationError
		Expect(err).To(BeAssignableToTypeOf(verr))
		Expect(err).To(MatchError(backend.ErrValidation))

		Expect(client.DeleteBatch(ctx, batch.ID)).To(Succeed())
		_, err = client.GetBatch(ctx, batch.ID)
		Expect(err).To(MatchError(backend.ErrNotFound))
	})

	It("stores and re-reads the visual analysis document", func() {
		ctx := testContext()

		model, err := client.CreateFrameModel(ctx, unique("FM"))
		Expect(err).NotTo(HaveOccurred())
		frame, err := client.CreateFrame(ctx, backend.FrameInput{
			FrameModelID: &model.ID,
			SerialNumber: unique("SN"),
		})
		Expect(err).NotTo(HaveOccurred())

		checks := []backend.VisualCheck{
			{Param: "welds", Status: "fail", Comment: "crack"},
			{Param: "coating", Status: "pass"},
			{Param: "anchor", Status: "pass"},
		}
		captured, err := client.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{
			FrameID:    frame.ID,
			ExpertName: "A. Expert",
			Verdict:    backend.MarkCodeReject,
			Checks:     checks,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(captured.ExpertMark).NotTo(BeNil())
		Expect(captured.ExpertMark.Code).To(Equal(backend.MarkCodeReject))

		stored, err := client.GetFrame(ctx, frame.ID)
		Expect(err).NotTo(HaveOccurred())
		doc, err := backend.ParseVisualAnalysis(stored.VisualAnalysParams)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.VisualChecks).To(Equal(checks))
		Expect(doc.Expert.Name).To(Equal("A. Expert"))

		cleared, err := client.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{
			FrameID:    frame.ID,
			ExpertName: "A. Expert",
			Verdict:    "looks fine",
			Checks:     checks[:1],
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(cleared.ExpertMarkID).To(BeNil())
	})

	It("maps missing records and bad input to backend errors", func() {
		ctx := testContext()

		_, err := client.GetFrame(ctx, 987654)
		Expect(err).To(MatchError(backend.ErrNotFound))

		_, err = client.CreateSensor(ctx, "   ")
		var verr *backend.ValidationError
		Expect(err).To(BeAssignableToTypeOf(verr))
		Expect(err.(*backend.ValidationError).Field).To(Equal("sensor_name"))

		_, err = client.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{FrameID: 987654, ExpertName: "x"})
		Expect(err).To(MatchError(backend.ErrNotFound))
	})
})
