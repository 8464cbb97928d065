package backend_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/qc-app/internal/backend"
)

var _ = Describe("MapVerdict", func() {
	DescribeTable("maps only exact verdicts",
		func(verdict, code string, ok bool) {
			got, mapped := backend.MapVerdict(verdict)
			Expect(mapped).To(Equal(ok))
			Expect(got).To(Equal(code))
		},
		Entry("PASS", "PASS", backend.MarkCodePass, true),
		Entry("REWORK", "REWORK", backend.MarkCodeRework, true),
		Entry("REJECT", "REJECT", backend.MarkCodeReject, true),
		Entry("lower case", "reject", "", false),
		Entry("padded", " PASS ", "", false),
		Entry("empty", "", "", false),
		Entry("free text", "looks fine", "", false),
	)
})

var _ = Describe("CaptureVisualAnalysis", func() {
	var (
		ctx   context.Context
		svc   *backend.Service
		frame *backend.Frame
	)

	checks := []backend.VisualCheck{
		{Param: "weld_seam", Status: "ok", Comment: ""},
		{Param: "paint", Status: "defect", Comment: "scratch near the left rail"},
		{Param: "alignment", Status: "ok", Comment: "within tolerance"},
	}

	BeforeEach(func() {
		ctx = context.Background()
		svc = newTestService(newTestDB(), nil, nil)
		frame = mustFrame(svc, "FR-500")
	})

	It("sets the reject mark for a REJECT verdict", func() {
		updated, err := svc.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{
			FrameID:    frame.ID,
			ExpertName: "Dana Ruiz",
			Verdict:    "REJECT",
			Checks:     checks,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.ExpertMark).NotTo(BeNil())
		Expect(updated.ExpertMark.Code).To(Equal(backend.MarkCodeReject))
		Expect(updated.ExpertMarkID).To(HaveValue(Equal(updated.ExpertMark.ID)))
		Expect(updated.Version).To(Equal(frame.Version + 1))
	})

	It("stores a document that parses back to the submitted checks", func() {
		updated, err := svc.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{
			FrameID:    frame.ID,
			ExpertName: "  Dana Ruiz ",
			Verdict:    "PASS",
			Checks:     checks,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.HasVisualAnalysis()).To(BeTrue())

		doc, err := backend.ParseVisualAnalysis(updated.VisualAnalysParams)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.VisualChecks).To(Equal(checks))
		Expect(doc.Expert.Name).To(Equal("Dana Ruiz"))
		Expect(doc.Expert.Date).To(BeTemporally("==", fixedNow))
		Expect(doc.ExpertResult).To(Equal("PASS"))
	})

	It("writes the documented field names", func() {
		updated, err := svc.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{
			FrameID:    frame.ID,
			ExpertName: "Dana Ruiz",
			Verdict:    "REWORK",
			Checks:     checks[:1],
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(updated.VisualAnalysParams)).To(MatchJSON(`{
			"expert": {"name": "Dana Ruiz", "date": "2026-04-14T09:30:00Z"},
			"visual_checks": [{"param": "weld_seam", "status": "ok", "comment": ""}],
			"expert_result": "REWORK"
		}`))
	})

	It("clears the expert mark for an unrecognized verdict", func() {
		_, err := svc.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{
			FrameID: frame.ID, ExpertName: "Dana Ruiz", Verdict: "REJECT", Checks: checks,
		})
		Expect(err).NotTo(HaveOccurred())

		updated, err := svc.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{
			FrameID: frame.ID, ExpertName: "Lee Park", Verdict: "reject", Checks: checks,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.ExpertMarkID).To(BeNil())
		Expect(updated.ExpertMark).To(BeNil())

		doc, err := backend.ParseVisualAnalysis(updated.VisualAnalysParams)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Expert.Name).To(Equal("Lee Park"))
		Expect(doc.ExpertResult).To(Equal("reject"))
	})

	It("stores an empty check list as an empty array", func() {
		updated, err := svc.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{
			FrameID: frame.ID, ExpertName: "Dana Ruiz", Verdict: "PASS",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(updated.VisualAnalysParams)).To(ContainSubstring(`"visual_checks":[]`))
	})

	It("requires an expert name", func() {
		_, err := svc.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{
			FrameID: frame.ID, ExpertName: "   ", Verdict: "PASS", Checks: checks,
		})
		var verr *backend.ValidationError
		Expect(errors.As(err, &verr)).To(BeTrue())
		Expect(verr.Field).To(Equal("expert_name"))
		Expect(err).To(MatchError(backend.ErrValidation))
	})

	It("rejects duplicate parameters", func() {
		_, err := svc.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{
			FrameID:    frame.ID,
			ExpertName: "Dana Ruiz",
			Checks:     []backend.VisualCheck{{Param: "paint"}, {Param: "paint"}},
		})
		Expect(err).To(MatchError(backend.ErrValidation))
	})

	It("returns ErrNotFound for an unknown frame", func() {
		_, err := svc.CaptureVisualAnalysis(ctx, backend.VisualAnalysisInput{
			FrameID: 9999, ExpertName: "Dana Ruiz", Verdict: "PASS",
		})
		Expect(err).To(MatchError(backend.ErrNotFound))
	})
})

var _ = Describe("Frame visual helpers", func() {
	It("treats missing and null documents as empty", func() {
		Expect((&backend.Frame{}).VisualJSON()).To(Equal("{}"))
		Expect((&backend.Frame{VisualAnalysParams: []byte("null")}).HasVisualAnalysis()).To(BeFalse())
		Expect((&backend.Frame{VisualAnalysParams: []byte(`{"a":1}`)}).VisualJSON()).To(Equal(`{"a":1}`))
	})

	It("fails to parse a malformed document", func() {
		_, err := backend.ParseVisualAnalysis([]byte("{"))
		Expect(err).To(HaveOccurred())
	})
})
