// Package generation validates text-generation requests and drives them
// through an Engine: device check, prompt length check, generate, decode.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Engine is the text-generation collaborator. Encode and Decode use the
// model tokenizer; Decode strips special tokens. Generate returns the full
// sequence, prompt tokens included.
type Engine interface {
	Encode(text string) []int
	Decode(tokens []int) string
	DeviceAvailable(d Device) bool
	Generate(ctx context.Context, d Device, tokens []int, p Params) ([]int, error)
}

// Result is a completed generation.
type Result struct {
	Text         string
	Device       Device
	Params       Params
	PromptTokens int
	OutputTokens int
	Duration     time.Duration
}

// Config configures an Orchestrator.
type Config struct {
	// Engine performs tokenization and generation. Required.
	Engine Engine

	// Timeout caps every generation. Zero means no server-side cap.
	Timeout time.Duration

	// Logger is the configured slog logger. Required.
	Logger *slog.Logger
}

// Orchestrator runs requests through validation and the engine.
type Orchestrator struct {
	engine  Engine
	timeout time.Duration
	logger  *slog.Logger
}

// NewOrchestrator creates an Orchestrator from c.
func NewOrchestrator(c Config) (*Orchestrator, error) {
	if c.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	return &Orchestrator{
		engine:  c.Engine,
		timeout: c.Timeout,
		logger:  c.Logger,
	}, nil
}

// CheckDevice fails with DeviceUnavailable when d cannot be served. The CPU
// is always available.
func (o *Orchestrator) CheckDevice(d Device) error {
	if d == DeviceCPU {
		return nil
	}
	if !o.engine.DeviceAvailable(d) {
		return DeviceUnavailable(d)
	}
	return nil
}

// CheckLength fails when maxLength does not leave room for at least one
// generated token after the prompt.
func CheckLength(maxLength, promptTokens int) error {
	if maxLength <= promptTokens {
		return InvalidArgument("max_length must exceed prompt length.")
	}
	return nil
}

// Generate validates req and runs it on the engine. Every returned error is
// an *Error.
func (o *Orchestrator) Generate(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	opts, err := req.Validate()
	if err != nil {
		return nil, err
	}

	logger := o.logger.With("device", opts.Device.String())
	logger.Debug("request validated",
		"max_length", opts.Params.MaxLength,
		"temperature", opts.Params.Temperature,
		"top_k", opts.Params.TopK,
		"top_p", opts.Params.TopP,
		"do_sample", opts.Params.DoSample,
	)

	if err := o.CheckDevice(opts.Device); err != nil {
		logger.Debug("device unavailable")
		return nil, err
	}

	tokens := o.engine.Encode(opts.Prompt)
	if err := CheckLength(opts.Params.MaxLength, len(tokens)); err != nil {
		logger.Debug("prompt too long for max_length",
			"prompt_tokens", len(tokens),
			"max_length", opts.Params.MaxLength,
		)
		return nil, err
	}

	genCtx, cancel := o.withTimeout(ctx, opts.Timeout)
	defer cancel()

	output, err := o.engine.Generate(genCtx, opts.Device, tokens, opts.Params)
	if err != nil {
		genErr := classify(genCtx, err)
		logger.Error("generation failed",
			"kind", genErr.Kind.String(),
			"error", err,
		)
		return nil, genErr
	}

	result := &Result{
		Text:         o.engine.Decode(output),
		Device:       opts.Device,
		Params:       opts.Params,
		PromptTokens: len(tokens),
		OutputTokens: len(output),
		Duration:     time.Since(start),
	}

	logger.Info("generation completed",
		"prompt_tokens", result.PromptTokens,
		"output_tokens", result.OutputTokens,
		"duration", result.Duration,
	)

	return result, nil
}

// withTimeout applies the smaller non-zero of the request and server
// timeouts.
func (o *Orchestrator) withTimeout(ctx context.Context, requested time.Duration) (context.Context, context.CancelFunc) {
	timeout := o.timeout
	if requested > 0 && (timeout == 0 || requested < timeout) {
		timeout = requested
	}
	if timeout == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func classify(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, ErrOverloaded):
		return Overloaded(err)
	case errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Timeout(err)
	default:
		return EngineFailure(err)
	}
}
