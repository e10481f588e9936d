package metrics_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/textgen/pkg/metrics"
)

var _ = Describe("Metrics", func() {
	var (
		reg *prometheus.Registry
		m   *metrics.Metrics
	)

	BeforeEach(func() {
		reg = prometheus.NewRegistry()
		m = metrics.New(reg)
	})

	It("counts requests by source, device and outcome", func() {
		m.ObserveRequest("http", "cpu", metrics.OutcomeOK, 20*time.Millisecond)
		m.ObserveRequest("http", "cpu", metrics.OutcomeOK, 30*time.Millisecond)
		m.ObserveRequest("mcp", metrics.DeviceNone, "invalid_argument", time.Millisecond)

		Expect(testutil.ToFloat64(m.RequestsTotal.WithLabelValues("http", "cpu", metrics.OutcomeOK))).To(Equal(2.0))
		Expect(testutil.ToFloat64(m.RequestsTotal.WithLabelValues("mcp", metrics.DeviceNone, "invalid_argument"))).To(Equal(1.0))
		Expect(testutil.CollectAndCount(m.RequestDuration)).To(Equal(2))
	})

	It("adds token counts", func() {
		m.ObserveTokens("cuda", 4, 20)
		m.ObserveTokens("cuda", 1, 5)

		Expect(testutil.ToFloat64(m.TokensTotal.WithLabelValues("cuda", metrics.TokenTypePrompt))).To(Equal(5.0))
		Expect(testutil.ToFloat64(m.TokensTotal.WithLabelValues("cuda", metrics.TokenTypeGenerated))).To(Equal(25.0))
	})

	It("exports queue depth from a callback", func() {
		depth := 3
		m.WatchQueue("cpu", func() int { return depth })

		expected := `
# HELP textgen_queue_depth Jobs waiting for a device worker
# TYPE textgen_queue_depth gauge
textgen_queue_depth{device="cpu"} 3
`
		Expect(testutil.GatherAndCompare(reg, strings.NewReader(expected), "textgen_queue_depth")).To(Succeed())
	})

	It("counts rate limited requests", func() {
		m.RateLimited.Inc()
		Expect(testutil.ToFloat64(m.RateLimited)).To(Equal(1.0))
	})
})
