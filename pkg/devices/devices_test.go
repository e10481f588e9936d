package devices

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/textgen/pkg/generation"
)

type fakeProbe struct {
	hasCUDA bool
	hasMPS  bool
}

func (f fakeProbe) cuda() bool { return f.hasCUDA }
func (f fakeProbe) mps() bool  { return f.hasMPS }

var _ = Describe("Prober", func() {
	It("always reports the CPU", func() {
		p := newProber(Config{CUDA: ModeOff, MPS: ModeOff}, fakeProbe{})
		Expect(p.Available(generation.DeviceCPU)).To(BeTrue())
	})

	It("uses the host probe in auto mode", func() {
		p := newProber(Config{CUDA: ModeAuto, MPS: ModeAuto}, fakeProbe{hasCUDA: true})
		Expect(p.Available(generation.DeviceCUDA)).To(BeTrue())
		Expect(p.Available(generation.DeviceMPS)).To(BeFalse())
	})

	It("lets explicit modes override the probe", func() {
		p := newProber(Config{CUDA: ModeOff, MPS: ModeOn}, fakeProbe{hasCUDA: true})
		Expect(p.Available(generation.DeviceCUDA)).To(BeFalse())
		Expect(p.Available(generation.DeviceMPS)).To(BeTrue())
	})

	It("reports every device", func() {
		p := newProber(Config{}, fakeProbe{hasMPS: true})
		Expect(p.Report()).To(Equal(map[generation.Device]bool{
			generation.DeviceCPU:  true,
			generation.DeviceCUDA: false,
			generation.DeviceMPS:  true,
		}))
	})

	It("probes the real host without error", func() {
		p := NewProber(Config{})
		Expect(p.Available(generation.DeviceCPU)).To(BeTrue())
	})
})

var _ = Describe("ParseMode", func() {
	DescribeTable("accepts known spellings",
		func(in string, want Mode) {
			m, err := ParseMode(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(m).To(Equal(want))
		},
		Entry("empty", "", ModeAuto),
		Entry("auto", "auto", ModeAuto),
		Entry("on", "on", ModeOn),
		Entry("true", "TRUE", ModeOn),
		Entry("off", "off", ModeOff),
		Entry("false", "false", ModeOff),
	)

	It("rejects anything else", func() {
		_, err := ParseMode("maybe")
		Expect(err).To(MatchError(ContainSubstring("invalid device mode")))
	})
})
