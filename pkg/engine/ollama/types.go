package ollama

// generateRequest is the body of Ollama's /api/generate endpoint.
type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Raw     bool             `json:"raw"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`

	// NumGPU is the number of layers to offload. Zero keeps the model on
	// the CPU.
	NumGPU *int `json:"num_gpu,omitempty"`
}

// generateResponse is the non-streaming /api/generate response.
type generateResponse struct {
	Model      string `json:"model"`
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
	EvalCount  int    `json:"eval_count,omitempty"`
}

// errorResponse is the body Ollama returns with non-2xx statuses.
type errorResponse struct {
	Error string `json:"error"`
}
