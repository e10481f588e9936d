package testutils

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/papercomputeco/textgen/pkg/generation"
)

// MockEngine is a generation.Engine with a whitespace tokenizer. Each
// distinct word gets the next token id, so Decode(Encode(s)) rejoins the
// words of s with single spaces.
type MockEngine struct {
	mu    sync.Mutex
	vocab map[string]int
	words []string

	// Available marks non-CPU devices as present.
	Available map[generation.Device]bool

	// Continuation is appended to the prompt, word by word, until
	// max_length is reached.
	Continuation []string

	// Err causes Generate to fail with this error.
	Err error

	// Block, when non-nil, makes Generate wait for a value or for ctx.
	Block chan struct{}

	// Calls records the params of every Generate call.
	Calls []generation.Params
}

func NewMockEngine() *MockEngine {
	return &MockEngine{
		vocab:        make(map[string]int),
		Available:    make(map[generation.Device]bool),
		Continuation: []string{"and", "then", "some"},
	}
}

func (m *MockEngine) Encode(text string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := strings.Fields(text)
	tokens := make([]int, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, m.idLocked(f))
	}
	return tokens
}

func (m *MockEngine) Decode(tokens []int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	words := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t >= 0 && t < len(m.words) {
			words = append(words, m.words[t])
		}
	}
	return strings.Join(words, " ")
}

func (m *MockEngine) DeviceAvailable(d generation.Device) bool {
	return d == generation.DeviceCPU || m.Available[d]
}

func (m *MockEngine) Generate(ctx context.Context, _ generation.Device, tokens []int, p generation.Params) ([]int, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, p)
	m.mu.Unlock()

	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Continuation) == 0 {
		return nil, errors.New("mock engine has no continuation")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := append([]int(nil), tokens...)
	for i := 0; len(out) < p.MaxLength; i++ {
		out = append(out, m.idLocked(m.Continuation[i%len(m.Continuation)]))
	}
	return out, nil
}

func (m *MockEngine) idLocked(word string) int {
	if id, ok := m.vocab[word]; ok {
		return id
	}
	id := len(m.words)
	m.vocab[word] = id
	m.words = append(m.words, word)
	return id
}

var _ generation.Engine = (*MockEngine)(nil)
