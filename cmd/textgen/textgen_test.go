package textgencmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	textgencmder "github.com/papercomputeco/textgen/cmd/textgen"
	"github.com/papercomputeco/textgen/pkg/utils"
)

var _ = Describe("NewTextgenCmd", func() {
	It("registers every subcommand", func() {
		cmd := textgencmder.NewTextgenCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "predict", "devices", "config", "version"))
	})

	It("has the global flags", func() {
		cmd := textgencmder.NewTextgenCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("exposes every serve setting as a flag", func() {
		cmd := textgencmder.NewTextgenCmd()
		serve, _, err := cmd.Find([]string{"serve"})
		Expect(err).NotTo(HaveOccurred())
		for _, name := range []string{"listen", "request-timeout", "backend", "upstream", "model", "cuda", "mps", "kafka-brokers", "mcp"} {
			Expect(serve.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})

	It("prints the version", func() {
		out := &bytes.Buffer{}
		cmd := textgencmder.NewTextgenCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"version"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring(utils.Version))
	})

	It("runs devices against a config directory", func() {
		out := &bytes.Buffer{}
		cmd := textgencmder.NewTextgenCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"devices", "--config-dir", GinkgoT().TempDir(), "--cuda", "off", "--mps", "off"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("cpu"))
	})
})
