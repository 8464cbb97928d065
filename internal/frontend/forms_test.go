package frontend_test

import (
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/qc-app/internal/backend"
	"procodus.dev/qc-app/internal/frontend"
)

var _ = Describe("ParseVisualChecks", func() {
	It("keeps the presented order", func() {
		checks := frontend.ParseVisualChecks(url.Values{
			"params":          {"geometry", "coating"},
			"status_coating":  {"pass"},
			"status_geometry": {"fail"},
		})
		Expect(checks).To(Equal([]backend.VisualCheck{
			{Param: "geometry", Status: "fail"},
			{Param: "coating", Status: "pass"},
		}))
	})

	It("appends unlisted params sorted by name", func() {
		checks := frontend.ParseVisualChecks(url.Values{
			"params":         {"welds"},
			"status_welds":   {"pass"},
			"status_zinc":    {"fail"},
			"comment_anchor": {"missing bolt"},
		})
		Expect(checks).To(HaveLen(3))
		Expect(checks[0].Param).To(Equal("welds"))
		Expect(checks[1]).To(Equal(backend.VisualCheck{Param: "anchor", Comment: "missing bolt"}))
		Expect(checks[2].Param).To(Equal("zinc"))
	})

	It("trims values and ignores unrelated fields", func() {
		checks := frontend.ParseVisualChecks(url.Values{
			"expert_name":   {"J. Roe"},
			"status_":       {"pass"},
			"status_welds":  {" fail "},
			"comment_welds": {"  porosity  "},
		})
		Expect(checks).To(Equal([]backend.VisualCheck{
			{Param: "welds", Status: "fail", Comment: "porosity"},
		}))
	})

	It("ignores listed params without fields", func() {
		checks := frontend.ParseVisualChecks(url.Values{"params": {"surface", "surface"}})
		Expect(checks).To(BeEmpty())
	})
})
