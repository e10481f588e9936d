package engine

import (
	"context"

	"github.com/papercomputeco/textgen/pkg/generation"
)

// Backend produces new tokens for one device. A Handle holds one Backend per
// device and never calls the same Backend concurrently unless configured
// with more than one worker per device.
type Backend interface {
	Generate(ctx context.Context, req *BackendRequest) (*BackendResponse, error)
	Close() error
}

// BackendFactory creates the Backend instance for a device.
type BackendFactory func(d generation.Device) (Backend, error)

// BackendRequest carries one generation to a Backend.
type BackendRequest struct {
	Device generation.Device

	// Prompt is the decoded prompt; PromptTokens is its encoding.
	Prompt       string
	PromptTokens []int

	// NewTokens is the most tokens the backend may add.
	NewTokens int

	Temperature float64
	TopK        int
	TopP        float64

	// Greedy asks for deterministic decoding. Seed is set for greedy
	// requests so backends that sample anyway stay reproducible.
	Greedy bool
	Seed   *int
}

// BackendResponse holds the continuation as token ids, or as text when the
// backend cannot report ids. Tokens wins when both are set.
type BackendResponse struct {
	Tokens []int
	Text   string
}
