package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/textgen/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable textgen reads.
const EnvPrefix = "TEXTGEN"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the TEXTGEN_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (TEXTGEN_SERVER_LISTEN, TEXTGEN_ENGINE_BACKEND, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: TEXTGEN_SERVER_LISTEN, TEXTGEN_EVENTS_BROKERS, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_burst", d.Server.RateBurst)

	// Engine
	v.SetDefault("engine.backend", d.Engine.Backend)
	v.SetDefault("engine.upstream", d.Engine.Upstream)
	v.SetDefault("engine.model", d.Engine.Model)
	v.SetDefault("engine.api_key", d.Engine.APIKey)
	v.SetDefault("engine.encoding", d.Engine.Encoding)
	v.SetDefault("engine.queue_size", d.Engine.QueueSize)
	v.SetDefault("engine.workers", d.Engine.Workers)

	// Devices
	v.SetDefault("devices.cuda", d.Devices.CUDA)
	v.SetDefault("devices.mps", d.Devices.MPS)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// MCP
	v.SetDefault("mcp.enabled", d.MCP.Enabled)

	// Log
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("log.debug", d.Log.Debug)

	// Client
	v.SetDefault("client.target", d.Client.Target)
}
