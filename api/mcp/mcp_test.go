package mcp_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/textgen/api/mcp"
	"github.com/papercomputeco/textgen/pkg/generation"
	"github.com/papercomputeco/textgen/pkg/logger"
)

var _ = Describe("MCP Server", func() {
	generate := func(context.Context, *generation.Request) (*generation.Result, error) {
		return &generation.Result{Text: "ok"}, nil
	}

	Describe("NewServer", func() {
		It("returns an error when the generate func is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: logger.Nop()})
			Expect(err).To(MatchError("generate func is required"))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Generate: generate})
			Expect(err).To(MatchError("logger is required"))
		})

		It("creates a server with valid config", func() {
			server, err := mcp.NewServer(mcp.Config{Generate: generate, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})

		It("creates an empty server in noop mode", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})
})
