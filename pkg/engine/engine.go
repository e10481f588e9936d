// Package engine provides the process-wide generation.Engine: a tokenizer, a
// device prober, and one Backend per device behind its own worker queue.
// Requests for the same device are serialized; different devices run in
// parallel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/textgen/pkg/generation"
)

// greedySeed is sent with greedy requests.
const greedySeed = 0

// Tokenizer is the encode/decode half of the engine.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Prober reports device availability.
type Prober interface {
	Available(d generation.Device) bool
}

// Config is the configuration for a Handle.
type Config struct {
	// Tokenizer is required.
	Tokenizer Tokenizer

	// Prober is required.
	Prober Prober

	// NewBackend creates the per-device Backend instances. Required.
	NewBackend BackendFactory

	// Devices limits which devices get a Backend. Defaults to all.
	Devices []generation.Device

	// WorkersPerDevice defaults to 1, which serializes each device.
	WorkersPerDevice uint

	// QueueSize is the per-device job queue capacity (defaults to 64).
	QueueSize uint

	// Logger is required.
	Logger *slog.Logger
}

// Handle implements generation.Engine.
type Handle struct {
	tokenizer Tokenizer
	prober    Prober
	pools     map[generation.Device]*pool
	backends  []Backend
	logger    *slog.Logger
}

// New builds a Handle and starts its device workers.
func New(c Config) (*Handle, error) {
	if c.Tokenizer == nil {
		return nil, errors.New("tokenizer is required")
	}
	if c.Prober == nil {
		return nil, errors.New("prober is required")
	}
	if c.NewBackend == nil {
		return nil, errors.New("backend factory is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	devices := c.Devices
	if len(devices) == 0 {
		devices = generation.Devices
	}

	h := &Handle{
		tokenizer: c.Tokenizer,
		prober:    c.Prober,
		pools:     make(map[generation.Device]*pool, len(devices)),
		logger:    c.Logger,
	}

	for _, d := range devices {
		if _, ok := h.pools[d]; ok {
			continue
		}

		backend, err := c.NewBackend(d)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("creating %s backend: %w", d, err)
		}
		h.backends = append(h.backends, backend)

		p, err := newPool(&poolConfig{
			device:     d,
			backend:    backend,
			numWorkers: c.WorkersPerDevice,
			queueSize:  c.QueueSize,
			logger:     c.Logger,
		})
		if err != nil {
			h.Close()
			return nil, err
		}
		h.pools[d] = p
	}

	return h, nil
}

func (h *Handle) Encode(text string) []int {
	return h.tokenizer.Encode(text)
}

func (h *Handle) Decode(tokens []int) string {
	return h.tokenizer.Decode(tokens)
}

// DeviceAvailable reports whether the host supports d and a Backend exists
// for it.
func (h *Handle) DeviceAvailable(d generation.Device) bool {
	if _, ok := h.pools[d]; !ok {
		return false
	}
	return h.prober.Available(d)
}

// Generate queues the request on the device's worker and waits for the
// result or for ctx. The returned sequence is the prompt followed by the new
// tokens, capped at p.MaxLength.
func (h *Handle) Generate(ctx context.Context, d generation.Device, tokens []int, p generation.Params) ([]int, error) {
	pl, ok := h.pools[d]
	if !ok {
		return nil, fmt.Errorf("no backend configured for device %s", d)
	}

	req := &BackendRequest{
		Device:       d,
		Prompt:       h.tokenizer.Decode(tokens),
		PromptTokens: tokens,
		NewTokens:    p.MaxLength - len(tokens),
		Temperature:  p.Temperature,
		TopK:         p.TopK,
		TopP:         p.TopP,
		Greedy:       p.Greedy(),
	}
	if req.Greedy {
		seed := greedySeed
		req.Seed = &seed
	}

	j := newJob(ctx, req)
	if !pl.enqueue(j) {
		return nil, fmt.Errorf("%s: %w", d, generation.ErrOverloaded)
	}

	var res jobResult
	select {
	case res = <-j.result:
	case <-ctx.Done():
		h.logger.Debug("caller stopped waiting for generation",
			"device", d.String(),
			"error", ctx.Err(),
		)
		return nil, ctx.Err()
	}

	if res.err != nil {
		return nil, fmt.Errorf("%s backend: %w", d, res.err)
	}

	newTokens := res.resp.Tokens
	if newTokens == nil && res.resp.Text != "" {
		newTokens = h.tokenizer.Encode(res.resp.Text)
	}

	out := make([]int, 0, len(tokens)+len(newTokens))
	out = append(out, tokens...)
	out = append(out, newTokens...)
	if len(out) > p.MaxLength {
		out = out[:p.MaxLength]
	}

	return out, nil
}

// QueueDepth is the number of jobs waiting for the device's worker.
func (h *Handle) QueueDepth(d generation.Device) int {
	if p, ok := h.pools[d]; ok {
		return p.depth()
	}
	return 0
}

// Devices lists the devices that have a Backend.
func (h *Handle) Devices() []generation.Device {
	out := make([]generation.Device, 0, len(h.pools))
	for _, d := range generation.Devices {
		if _, ok := h.pools[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Close drains every device queue and closes the backends.
func (h *Handle) Close() error {
	for _, p := range h.pools {
		p.close()
	}

	var errs []error
	for _, b := range h.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ generation.Engine = (*Handle)(nil)
