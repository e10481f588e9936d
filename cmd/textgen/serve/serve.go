// Package servecmder provides the serve command that runs the textgen HTTP
// service.
package servecmder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/papercomputeco/textgen/api"
	"github.com/papercomputeco/textgen/pkg/config"
	"github.com/papercomputeco/textgen/pkg/devices"
	"github.com/papercomputeco/textgen/pkg/engine"
	"github.com/papercomputeco/textgen/pkg/engine/ollama"
	"github.com/papercomputeco/textgen/pkg/engine/openai"
	"github.com/papercomputeco/textgen/pkg/eventstream"
	"github.com/papercomputeco/textgen/pkg/eventstream/kafka"
	"github.com/papercomputeco/textgen/pkg/eventstream/nop"
	"github.com/papercomputeco/textgen/pkg/generation"
	"github.com/papercomputeco/textgen/pkg/logger"
	"github.com/papercomputeco/textgen/pkg/tokenizer"
)

// serveFlags is the flag registry for textgen serve.
var serveFlags = config.FlagSet{
	config.FlagListen:         {Name: "listen", Shorthand: "l", ViperKey: "server.listen", Description: "Address for the HTTP server to listen on"},
	config.FlagRequestTimeout: {Name: "request-timeout", ViperKey: "server.request_timeout", Description: "Server-wide generation timeout in seconds (0 disables)"},
	config.FlagRateLimit:      {Name: "rate-limit", ViperKey: "server.rate_limit", Description: "Sustained /predict requests per second (0 disables)"},
	config.FlagRateBurst:      {Name: "rate-burst", ViperKey: "server.rate_burst", Description: "Burst size for the /predict rate limiter"},
	config.FlagBackend:        {Name: "backend", Shorthand: "b", ViperKey: "engine.backend", Description: "Generation backend (ollama, openai)"},
	config.FlagUpstream:       {Name: "upstream", Shorthand: "u", ViperKey: "engine.upstream", Description: "Backend server URL"},
	config.FlagModel:          {Name: "model", Shorthand: "m", ViperKey: "engine.model", Description: "Model served by the backend"},
	config.FlagEncoding:       {Name: "encoding", ViperKey: "engine.encoding", Description: "Tokenizer encoding"},
	config.FlagQueueSize:      {Name: "queue-size", ViperKey: "engine.queue_size", Description: "Pending jobs allowed per device"},
	config.FlagWorkers:        {Name: "workers", ViperKey: "engine.workers", Description: "Concurrent generations per device"},
	config.FlagCUDA:           {Name: "cuda", ViperKey: "devices.cuda", Description: "CUDA availability (auto, on, off)"},
	config.FlagMPS:            {Name: "mps", ViperKey: "devices.mps", Description: "MPS availability (auto, on, off)"},
	config.FlagEventsProvider: {Name: "events-provider", ViperKey: "events.provider", Description: "Generation event sink (none, kafka)"},
	config.FlagKafkaBrokers:   {Name: "kafka-brokers", ViperKey: "events.brokers", Description: "Comma separated Kafka brokers"},
	config.FlagKafkaTopic:     {Name: "kafka-topic", ViperKey: "events.topic", Description: "Kafka topic for generation events"},
	config.FlagMCP:            {Name: "mcp", ViperKey: "mcp.enabled", Description: "Serve the MCP generate tool at /mcp"},
	config.FlagLogJSON:        {Name: "log-json", ViperKey: "log.json", Description: "Write JSON logs"},
	config.FlagLogPretty:      {Name: "log-pretty", ViperKey: "log.pretty", Description: "Write colorized logs"},
}

var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagRequestTimeout,
	config.FlagRateLimit,
	config.FlagRateBurst,
	config.FlagBackend,
	config.FlagUpstream,
	config.FlagModel,
	config.FlagEncoding,
	config.FlagQueueSize,
	config.FlagWorkers,
	config.FlagCUDA,
	config.FlagMPS,
	config.FlagEventsProvider,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagMCP,
	config.FlagLogJSON,
	config.FlagLogPretty,
}

type serveCommander struct {
	// flag targets; values are read back through viper
	listen         string
	requestTimeout uint
	rateLimit      float64
	rateBurst      int
	backend        string
	upstream       string
	model          string
	encoding       string
	queueSize      uint
	workers        uint
	cuda           string
	mps            string
	eventsProvider string
	kafkaBrokers   string
	kafkaTopic     string
	mcp            bool
	logJSON        bool
	logPretty      bool

	viper  *viper.Viper
	level  *slog.LevelVar
	logger *slog.Logger
}

const serveLongDesc string = `Run the textgen HTTP service.

Routes:
  GET  /          Hello World
  POST /predict   Generate text from a prompt
  GET  /ping      Health check
  GET  /metrics   Prometheus metrics
  /mcp            MCP generate tool (when enabled)

Every flag maps to a config.toml key and a TEXTGEN_ environment variable.
Precedence: flag > environment > config file > default.`

const serveShortDesc string = "Run the textgen HTTP service"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
			if f := cmd.Flags().Lookup("debug"); f != nil {
				_ = v.BindPFlag("log.debug", f)
			}

			cmder.viper = v
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagListen, &cmder.listen)
	config.AddUintFlag(cmd, serveFlags, config.FlagRequestTimeout, &cmder.requestTimeout)
	config.AddFloat64Flag(cmd, serveFlags, config.FlagRateLimit, &cmder.rateLimit)
	config.AddIntFlag(cmd, serveFlags, config.FlagRateBurst, &cmder.rateBurst)
	config.AddStringFlag(cmd, serveFlags, config.FlagBackend, &cmder.backend)
	config.AddStringFlag(cmd, serveFlags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, serveFlags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, serveFlags, config.FlagEncoding, &cmder.encoding)
	config.AddUintFlag(cmd, serveFlags, config.FlagQueueSize, &cmder.queueSize)
	config.AddUintFlag(cmd, serveFlags, config.FlagWorkers, &cmder.workers)
	config.AddStringFlag(cmd, serveFlags, config.FlagCUDA, &cmder.cuda)
	config.AddStringFlag(cmd, serveFlags, config.FlagMPS, &cmder.mps)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddBoolFlag(cmd, serveFlags, config.FlagMCP, &cmder.mcp)
	config.AddBoolFlag(cmd, serveFlags, config.FlagLogJSON, &cmder.logJSON)
	config.AddBoolFlag(cmd, serveFlags, config.FlagLogPretty, &cmder.logPretty)

	return cmd
}

func (c *serveCommander) run() error {
	v := c.viper

	c.level = new(slog.LevelVar)
	c.logger = newLogger(v, c.level)
	config.WatchLogLevel(v, c.level, c.logger)

	if used := v.ConfigFileUsed(); used != "" {
		c.logger.Info("using config file", "path", used)
	}

	tok, err := tokenizer.New(v.GetString("engine.encoding"))
	if err != nil {
		return fmt.Errorf("loading tokenizer: %w", err)
	}

	prober, err := newProber(v)
	if err != nil {
		return err
	}
	for _, d := range generation.Devices {
		c.logger.Info("device probed", "device", d.String(), "available", prober.Available(d))
	}

	factory, err := newBackendFactory(v)
	if err != nil {
		return err
	}

	handle, err := engine.New(engine.Config{
		Tokenizer:        tok,
		Prober:           prober,
		NewBackend:       factory,
		WorkersPerDevice: v.GetUint("engine.workers"),
		QueueSize:        v.GetUint("engine.queue_size"),
		Logger:           c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer handle.Close()

	orchestrator, err := generation.NewOrchestrator(generation.Config{
		Engine:  handle,
		Timeout: time.Duration(v.GetUint("server.request_timeout")) * time.Second,
		Logger:  c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := api.NewServer(api.Config{
		ListenAddr: v.GetString("server.listen"),
		RateLimit:  v.GetFloat64("server.rate_limit"),
		RateBurst:  v.GetInt("server.rate_burst"),
		Publisher:  publisher,
		Registry:   registry,
		MCPEnabled: v.GetBool("mcp.enabled"),
	}, orchestrator, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	for _, d := range handle.Devices() {
		server.Metrics().WatchQueue(d.String(), func() int {
			return handle.QueueDepth(d)
		})
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	v := c.viper

	switch provider := v.GetString("events.provider"); provider {
	case "", config.EventsNone:
		return nop.NewPublisher(), nil

	case config.EventsKafka:
		events := config.EventsConfig{Brokers: v.GetString("events.brokers")}
		publisher, err := kafka.NewPublisher(kafka.Config{
			Brokers: events.BrokerList(),
			Topic:   v.GetString("events.topic"),
			Async:   true,
			Logger:  c.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		c.logger.Info("publishing generation events to kafka",
			"brokers", events.Brokers,
			"topic", v.GetString("events.topic"),
		)
		return publisher, nil

	default:
		return nil, fmt.Errorf("unknown events provider: %q", provider)
	}
}

func newLogger(v *viper.Viper, level *slog.LevelVar) *slog.Logger {
	json := v.GetBool("log.json")
	pretty := v.GetBool("log.pretty") || (!json && term.IsTerminal(int(os.Stdout.Fd())))

	return logger.New(
		logger.WithDebug(v.GetBool("log.debug")),
		logger.WithJSON(json),
		logger.WithPretty(pretty && !json),
		logger.WithLevelVar(level),
	)
}

func newProber(v *viper.Viper) (*devices.Prober, error) {
	cuda, err := devices.ParseMode(v.GetString("devices.cuda"))
	if err != nil {
		return nil, fmt.Errorf("devices.cuda: %w", err)
	}
	mps, err := devices.ParseMode(v.GetString("devices.mps"))
	if err != nil {
		return nil, fmt.Errorf("devices.mps: %w", err)
	}
	return devices.NewProber(devices.Config{CUDA: cuda, MPS: mps}), nil
}

func newBackendFactory(v *viper.Viper) (engine.BackendFactory, error) {
	upstream := v.GetString("engine.upstream")
	model := v.GetString("engine.model")

	switch backend := v.GetString("engine.backend"); backend {
	case config.BackendOllama:
		cfg := ollama.Config{BaseURL: upstream, Model: model}
		return func(d generation.Device) (engine.Backend, error) {
			return ollama.NewBackend(cfg, d)
		}, nil

	case config.BackendOpenAI:
		cfg := openai.Config{BaseURL: upstream, Model: model, APIKey: v.GetString("engine.api_key")}
		return func(d generation.Device) (engine.Backend, error) {
			return openai.NewBackend(cfg, d)
		}, nil

	case "":
		return nil, errors.New("engine.backend is required")

	default:
		return nil, fmt.Errorf("unknown backend: %q (expected %s or %s)", backend, config.BackendOllama, config.BackendOpenAI)
	}
}
