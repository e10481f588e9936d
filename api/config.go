// Package api provides the HTTP server for text generation.
package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/textgen/pkg/eventstream"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// RateLimit is the sustained POST /predict rate in requests per second.
	// Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the token bucket size. Defaults to 1 when RateLimit is set.
	RateBurst int

	// Publisher receives an event for every completed generation. Optional.
	Publisher eventstream.Publisher

	// Registry holds the service collectors and backs GET /metrics.
	// A fresh registry is created when nil.
	Registry *prometheus.Registry

	// MCPEnabled mounts the MCP generate tool at /mcp.
	MCPEnabled bool
}
