package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/papercomputeco/textgen/api/mcp"
	"github.com/papercomputeco/textgen/pkg/generation"
	"github.com/papercomputeco/textgen/pkg/metrics"
)

// Generator runs a generation request end to end.
type Generator interface {
	Generate(ctx context.Context, req *generation.Request) (*generation.Result, error)
}

// Server is the textgen HTTP server.
type Server struct {
	config    Config
	generator Generator
	metrics   *metrics.Metrics
	limiter   *rate.Limiter
	logger    *slog.Logger
	app       *fiber.App
}

// NewServer creates a new API server around generator.
func NewServer(config Config, generator Generator, logger *slog.Logger) (*Server, error) {
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		config:    config,
		generator: generator,
		metrics:   metrics.New(registry),
		logger:    logger,
		app:       app,
	}

	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))
	app.Use(s.accessLog)

	app.Get("/", s.handleRoot)
	app.Get("/ping", s.handlePing)
	app.Post("/predict", s.rateLimit, s.handlePredict)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	if config.MCPEnabled {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Generate: func(ctx context.Context, req *generation.Request) (*generation.Result, error) {
				return s.generate(ctx, sourceMCP, "", req)
			},
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating MCP server: %w", err)
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Metrics returns the collectors the server records into.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"mcp", s.config.MCPEnabled,
		"rate_limit", s.config.RateLimit,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
