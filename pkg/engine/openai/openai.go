// Package openai implements an engine.Backend on the OpenAI-compatible
// completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/textgen/pkg/engine"
	"github.com/papercomputeco/textgen/pkg/generation"
)

const (
	// DefaultBaseURL is a local vLLM server.
	DefaultBaseURL = "http://localhost:8001"

	// DefaultModel is the model used when none is configured.
	DefaultModel = "gpt2"

	defaultTimeout = 10 * time.Minute

	// disabledTopK is how OpenAI-compatible servers spell "no top-k cutoff".
	disabledTopK = -1
)

// Config holds configuration for the OpenAI-compatible backend.
type Config struct {
	// BaseURL is the server root, without the /v1 suffix.
	BaseURL string

	// Model is the served model name.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds a single HTTP call. Defaults to 10 minutes.
	Timeout time.Duration
}

// Backend calls /v1/completions.
type Backend struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewBackend creates a backend instance. Device placement is up to the
// server, so the device is not sent.
func NewBackend(cfg Config, _ generation.Device) (*Backend, error) {
	baseURL := strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Backend{
		baseURL: baseURL,
		model:   model,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Generate runs one completion.
func (b *Backend) Generate(ctx context.Context, req *engine.BackendRequest) (*engine.BackendResponse, error) {
	jsonBody, err := json.Marshal(b.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var compResp completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&compResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(compResp.Choices) == 0 {
		return nil, errors.New("no choices returned")
	}

	return &engine.BackendResponse{Text: compResp.Choices[0].Text}, nil
}

func (b *Backend) buildRequest(req *engine.BackendRequest) *completionRequest {
	out := &completionRequest{
		Model:     b.model,
		Prompt:    req.Prompt,
		MaxTokens: req.NewTokens,
		Seed:      req.Seed,
	}

	if req.Greedy {
		topK := 1
		out.Temperature = 0
		out.TopK = &topK
		return out
	}

	topP := req.TopP
	topK := req.TopK
	if topK == 0 {
		topK = disabledTopK
	}
	out.Temperature = req.Temperature
	out.TopP = &topP
	out.TopK = &topK

	return out
}

// Close releases resources held by the backend.
func (b *Backend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

var _ engine.Backend = (*Backend)(nil)
