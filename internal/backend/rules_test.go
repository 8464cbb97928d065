package backend_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/qc-app/internal/backend"
)

var _ = Describe("Rule evaluation", func() {
	DescribeTable("RuleFires",
		func(normal, critical *float64, value float64, fires bool) {
			rule := backend.NotificationRule{NormalValue: normal, CriticalValue: critical}
			Expect(backend.RuleFires(rule, value)).To(Equal(fires))
		},
		Entry("above normal", ptr(4000.0), nil, 4500.0, true),
		Entry("equal to normal", ptr(4000.0), nil, 4000.0, false),
		Entry("below normal", ptr(4000.0), nil, 3999.9, false),
		Entry("above critical only", nil, ptr(4800.0), 4900.0, true),
		Entry("below critical only", nil, ptr(4800.0), 4700.0, false),
		Entry("above normal, below critical", ptr(4000.0), ptr(4800.0), 4100.0, true),
		Entry("critical lower than normal", ptr(4800.0), ptr(4000.0), 4100.0, true),
		Entry("no thresholds", nil, nil, 1e9, false),
	)

	It("returns only the firing rules in order", func() {
		rules := []backend.NotificationRule{
			{ID: 1, NormalValue: ptr(4000.0)},
			{ID: 2, CriticalValue: ptr(4800.0)},
			{ID: 3, NormalValue: ptr(3000.0)},
		}
		fired := backend.EvaluateRules(rules, 4500)
		Expect(fired).To(HaveLen(2))
		Expect(fired[0].ID).To(Equal(uint(1)))
		Expect(fired[1].ID).To(Equal(uint(3)))
	})

	It("returns nothing for an empty rule set", func() {
		Expect(backend.EvaluateRules(nil, 4500)).To(BeEmpty())
	})

	DescribeTable("RuleSeverity",
		func(normal, critical *float64, value float64, severity string) {
			rule := backend.NotificationRule{NormalValue: normal, CriticalValue: critical}
			Expect(backend.RuleSeverity(rule, value)).To(Equal(severity))
		},
		Entry("over critical", ptr(4000.0), ptr(4800.0), 4900.0, backend.SeverityCritical),
		Entry("over normal only", ptr(4000.0), ptr(4800.0), 4500.0, backend.SeverityWarning),
		Entry("normal rule", ptr(4000.0), nil, 9000.0, backend.SeverityWarning),
	)
})
