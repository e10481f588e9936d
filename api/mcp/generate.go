package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/textgen/pkg/generation"
)

var (
	generateToolName    = "generate"
	generateDescription = "Continue a text prompt with the served language model. Returns the prompt followed by the generated continuation."
)

// GenerateInput represents the input arguments for the generate tool.
type GenerateInput struct {
	Prompt      *string  `json:"prompt" jsonschema:"the text to continue"`
	MaxLength   *int     `json:"max_length,omitempty" jsonschema:"total length in tokens including the prompt, 1 to 1000 (default: 50)"`
	Temperature *float64 `json:"temperature,omitempty" jsonschema:"sampling temperature, 0.0 to 2.0 (default: 1.0)"`
	TopK        *int     `json:"top_k,omitempty" jsonschema:"top-k cutoff, 0 to 1000, 0 disables (default: 50)"`
	TopP        *float64 `json:"top_p,omitempty" jsonschema:"nucleus sampling mass, 0.0 to 1.0 (default: 1.0)"`
	DoSample    *bool    `json:"do_sample,omitempty" jsonschema:"sample instead of greedy decoding (default: true)"`
	Device      *string  `json:"device,omitempty" jsonschema:"cpu, cuda or mps (default: cpu)"`
	Timeout     *float64 `json:"timeout,omitempty" jsonschema:"seconds to wait before giving up, 0 uses the server default"`
}

// GenerateOutput represents the output of the generate tool.
type GenerateOutput struct {
	GeneratedText string `json:"generated_text"`
}

func (in GenerateInput) request() *generation.Request {
	return &generation.Request{
		Prompt:      in.Prompt,
		MaxLength:   in.MaxLength,
		Temperature: in.Temperature,
		TopK:        in.TopK,
		TopP:        in.TopP,
		DoSample:    in.DoSample,
		Device:      in.Device,
		Timeout:     in.Timeout,
	}
}

// handleGenerate processes a generate tool call.
func (s *Server) handleGenerate(ctx context.Context, _ *mcp.CallToolRequest, input GenerateInput) (*mcp.CallToolResult, GenerateOutput, error) {
	logger := s.config.Logger

	if input.Prompt != nil {
		logger.Debug("MCP generate request", "prompt_chars", len(*input.Prompt))
	}

	result, err := s.config.Generate(ctx, input.request())
	if err != nil {
		return toolError(detailOf(err)), GenerateOutput{}, nil
	}

	output := GenerateOutput{GeneratedText: result.Text}

	// Tools returning structured content also return it serialized in a
	// TextContent block for older clients.
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal generate output", "error", err)
		return toolError(fmt.Sprintf("Failed to serialize result: %v", err)), GenerateOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// detailOf returns the caller-safe detail of a generation error.
func detailOf(err error) string {
	var genErr *generation.Error
	if errors.As(err, &genErr) {
		return genErr.Detail
	}
	return generation.EngineFailure(err).Detail
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
