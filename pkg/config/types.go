package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent textgen configuration stored as config.toml
// in the .textgen/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Server  ServerConfig  `toml:"server"`
	Engine  EngineConfig  `toml:"engine"`
	Devices DevicesConfig `toml:"devices"`
	Events  EventsConfig  `toml:"events"`
	MCP     MCPConfig     `toml:"mcp"`
	Log     LogConfig     `toml:"log"`
	Client  ClientConfig  `toml:"client"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`

	// RequestTimeout is the server-wide generation deadline in seconds.
	// Zero disables it.
	RequestTimeout uint `toml:"request_timeout"`

	// RateLimit is the sustained /predict rate in requests per second.
	// Zero disables rate limiting.
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst,omitempty"`
}

// EngineConfig selects and tunes the generation backend.
type EngineConfig struct {
	Backend   string `toml:"backend,omitempty"`
	Upstream  string `toml:"upstream,omitempty"`
	Model     string `toml:"model,omitempty"`
	APIKey    string `toml:"api_key,omitempty"`
	Encoding  string `toml:"encoding,omitempty"`
	QueueSize uint   `toml:"queue_size,omitempty"`
	Workers   uint   `toml:"workers,omitempty"`
}

// DevicesConfig overrides accelerator detection. Values are "auto", "on"
// or "off".
type DevicesConfig struct {
	CUDA string `toml:"cuda,omitempty"`
	MPS  string `toml:"mps,omitempty"`
}

// EventsConfig holds generation event publishing settings.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated list of Kafka brokers.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	JSON   bool `toml:"json"`
	Pretty bool `toml:"pretty"`
	Debug  bool `toml:"debug"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// server (e.g. textgen predict). Values are full URLs.
type ClientConfig struct {
	Target string `toml:"target,omitempty"`
}

// BrokerList splits Brokers into its non-empty entries.
func (e EventsConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatUint(uint64(*field(c)), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func modeKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			switch strings.ToLower(v) {
			case "auto", "on", "off":
				*field(c) = strings.ToLower(v)
				return nil
			}
			return fmt.Errorf("invalid value for %s: %q (expected auto, on or off)", name, v)
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.listen":          stringKey(func(c *Config) *string { return &c.Server.Listen }),
	"server.request_timeout": uintKey("server.request_timeout", func(c *Config) *uint { return &c.Server.RequestTimeout }),
	"server.rate_limit": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Server.RateLimit, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 {
				return fmt.Errorf("invalid value for server.rate_limit: %q", v)
			}
			c.Server.RateLimit = f
			return nil
		},
	},
	"server.rate_burst": {
		get: func(c *Config) string { return strconv.Itoa(c.Server.RateBurst) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for server.rate_burst: %q", v)
			}
			c.Server.RateBurst = n
			return nil
		},
	},

	"engine.backend": {
		get: func(c *Config) string { return c.Engine.Backend },
		set: func(c *Config, v string) error {
			switch strings.ToLower(v) {
			case BackendOllama, BackendOpenAI:
				c.Engine.Backend = strings.ToLower(v)
				return nil
			}
			return fmt.Errorf("invalid value for engine.backend: %q (expected %s or %s)", v, BackendOllama, BackendOpenAI)
		},
	},
	"engine.upstream":   stringKey(func(c *Config) *string { return &c.Engine.Upstream }),
	"engine.model":      stringKey(func(c *Config) *string { return &c.Engine.Model }),
	"engine.api_key":    stringKey(func(c *Config) *string { return &c.Engine.APIKey }),
	"engine.encoding":   stringKey(func(c *Config) *string { return &c.Engine.Encoding }),
	"engine.queue_size": uintKey("engine.queue_size", func(c *Config) *uint { return &c.Engine.QueueSize }),
	"engine.workers":    uintKey("engine.workers", func(c *Config) *uint { return &c.Engine.Workers }),

	"devices.cuda": modeKey("devices.cuda", func(c *Config) *string { return &c.Devices.CUDA }),
	"devices.mps":  modeKey("devices.mps", func(c *Config) *string { return &c.Devices.MPS }),

	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error {
			switch strings.ToLower(v) {
			case EventsNone, EventsKafka:
				c.Events.Provider = strings.ToLower(v)
				return nil
			}
			return fmt.Errorf("invalid value for events.provider: %q (expected %s or %s)", v, EventsNone, EventsKafka)
		},
	},
	"events.brokers": stringKey(func(c *Config) *string { return &c.Events.Brokers }),
	"events.topic":   stringKey(func(c *Config) *string { return &c.Events.Topic }),

	"mcp.enabled": boolKey("mcp.enabled", func(c *Config) *bool { return &c.MCP.Enabled }),

	"log.json":   boolKey("log.json", func(c *Config) *bool { return &c.Log.JSON }),
	"log.pretty": boolKey("log.pretty", func(c *Config) *bool { return &c.Log.Pretty }),
	"log.debug":  boolKey("log.debug", func(c *Config) *bool { return &c.Log.Debug }),

	"client.target": stringKey(func(c *Config) *string { return &c.Client.Target }),
}

// orderedKeys lists configKeys in TOML section order.
var orderedKeys = []string{
	"server.listen",
	"server.request_timeout",
	"server.rate_limit",
	"server.rate_burst",
	"engine.backend",
	"engine.upstream",
	"engine.model",
	"engine.api_key",
	"engine.encoding",
	"engine.queue_size",
	"engine.workers",
	"devices.cuda",
	"devices.mps",
	"events.provider",
	"events.brokers",
	"events.topic",
	"mcp.enabled",
	"log.json",
	"log.pretty",
	"log.debug",
	"client.target",
}
