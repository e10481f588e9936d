// Package eventstream defines the events textgen emits after each completed
// generation, and the publishers that carry them.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeGenerationCompleted is emitted after a generation returns text.
	EventTypeGenerationCompleted = "textgen.generation.completed"
)

// GenerationCompletedEvent describes a finished generation. It carries
// parameters and counts only, never prompt or output text.
type GenerationCompletedEvent struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	EmittedAt     time.Time      `json:"emitted_at"`
	Source        EventSource    `json:"source"`
	Generation    GenerationMeta `json:"generation"`
}

// EventSource identifies where the request arrived.
type EventSource struct {
	Service   string `json:"service"`
	Surface   string `json:"surface"`
	RequestID string `json:"request_id,omitempty"`
}

// GenerationMeta captures the parameters and size of a generation.
type GenerationMeta struct {
	Device       string  `json:"device"`
	MaxLength    int     `json:"max_length"`
	Temperature  float64 `json:"temperature"`
	TopK         int     `json:"top_k"`
	TopP         float64 `json:"top_p"`
	DoSample     bool    `json:"do_sample"`
	PromptTokens int     `json:"prompt_tokens"`
	OutputTokens int     `json:"output_tokens"`
	DurationMs   int64   `json:"duration_ms"`
}

// NewGenerationCompletedEvent stamps a new event with an id and time.
func NewGenerationCompletedEvent(source EventSource, meta GenerationMeta) *GenerationCompletedEvent {
	return &GenerationCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeGenerationCompleted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Generation:    meta,
	}
}
