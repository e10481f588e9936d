// Package ollama implements an engine.Backend on Ollama's raw completion API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/textgen/pkg/engine"
	"github.com/papercomputeco/textgen/pkg/generation"
)

const (
	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is the model used when none is configured.
	DefaultModel = "gpt2"

	defaultTimeout = 10 * time.Minute
)

// Config holds configuration for the Ollama backend.
type Config struct {
	// BaseURL is the Ollama API URL. Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Model is the Ollama model name. Defaults to DefaultModel if empty.
	Model string

	// Timeout bounds a single HTTP call. Defaults to 10 minutes.
	Timeout time.Duration
}

// Backend sends raw prompts to Ollama's /api/generate.
type Backend struct {
	baseURL    string
	model      string
	device     generation.Device
	httpClient *http.Client
}

// NewBackend creates the backend instance for device.
func NewBackend(cfg Config, device generation.Device) (*Backend, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
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
		device:  device,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Generate runs one completion with the prompt sent verbatim.
func (b *Backend) Generate(ctx context.Context, req *engine.BackendRequest) (*engine.BackendResponse, error) {
	jsonBody, err := json.Marshal(b.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &engine.BackendResponse{Text: genResp.Response}, nil
}

func (b *Backend) buildRequest(req *engine.BackendRequest) *generateRequest {
	numPredict := req.NewTokens
	opts := &generateOptions{
		NumPredict: &numPredict,
		Seed:       req.Seed,
	}

	if req.Greedy {
		temperature := 0.0
		topK := 1
		opts.Temperature = &temperature
		opts.TopK = &topK
	} else {
		temperature := req.Temperature
		topK := req.TopK
		topP := req.TopP
		opts.Temperature = &temperature
		opts.TopK = &topK
		opts.TopP = &topP
	}

	if b.device == generation.DeviceCPU {
		numGPU := 0
		opts.NumGPU = &numGPU
	}

	return &generateRequest{
		Model:   b.model,
		Prompt:  req.Prompt,
		Raw:     true,
		Stream:  false,
		Options: opts,
	}
}

// Close releases resources held by the backend.
func (b *Backend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

var _ engine.Backend = (*Backend)(nil)
