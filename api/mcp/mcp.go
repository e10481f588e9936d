// Package mcp provides an MCP (Model Context Protocol) server exposing text
// generation as a tool.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/textgen/pkg/generation"
	"github.com/papercomputeco/textgen/pkg/utils"
)

// GenerateFunc runs one generation request.
type GenerateFunc func(ctx context.Context, req *generation.Request) (*generation.Result, error)

type Config struct {
	// Generate serves the generate tool
	Generate GenerateFunc

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the generate tool.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "textgen",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)
	s.mcpServer = mcpServer

	if !c.Noop {
		if c.Generate == nil {
			return nil, errors.New("generate func is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        generateToolName,
			Description: generateDescription,
		}, s.handleGenerate)
	}

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
