package config

const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"

	EventsNone  = "none"
	EventsKafka = "kafka"

	defaultListen         = ":8000"
	defaultRequestTimeout = 120
	defaultRateBurst      = 10

	defaultUpstream  = "http://localhost:11434"
	defaultModel     = "gpt2"
	defaultEncoding  = "r50k_base"
	defaultQueueSize = 64
	defaultWorkers   = 1

	defaultDeviceMode = "auto"

	defaultEventsTopic = "textgen.generations"

	defaultClientTarget = "http://localhost:8000"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Listen:         defaultListen,
			RequestTimeout: defaultRequestTimeout,
			RateBurst:      defaultRateBurst,
		},
		Engine: EngineConfig{
			Backend:   BackendOllama,
			Upstream:  defaultUpstream,
			Model:     defaultModel,
			Encoding:  defaultEncoding,
			QueueSize: defaultQueueSize,
			Workers:   defaultWorkers,
		},
		Devices: DevicesConfig{
			CUDA: defaultDeviceMode,
			MPS:  defaultDeviceMode,
		},
		Events: EventsConfig{
			Provider: EventsNone,
			Topic:    defaultEventsTopic,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
		Client: ClientConfig{
			Target: defaultClientTarget,
		},
	}
}
