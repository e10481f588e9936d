package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/textgen/pkg/engine"
	"github.com/papercomputeco/textgen/pkg/generation"
)

// MockBackend is an engine.Backend that returns a fixed continuation and
// records how many calls overlap.
type MockBackend struct {
	mu sync.Mutex

	// Text is returned as the continuation when Tokens is nil.
	Text string

	// Tokens is returned as the continuation when set.
	Tokens []int

	// Err causes Generate to fail with this error.
	Err error

	// Block, when non-nil, makes Generate wait for a value or for ctx.
	Block chan struct{}

	// Started receives a value when a call begins, if non-nil.
	Started chan struct{}

	requests  []*engine.BackendRequest
	active    int
	maxActive int
	closed    bool
}

func NewMockBackend() *MockBackend {
	return &MockBackend{Text: " and they lived happily ever after."}
}

func (m *MockBackend) Generate(ctx context.Context, req *engine.BackendRequest) (*engine.BackendResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if m.Started != nil {
		m.Started <- struct{}{}
	}

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

	if m.Tokens != nil {
		return &engine.BackendResponse{Tokens: m.Tokens}, nil
	}
	return &engine.BackendResponse{Text: m.Text}, nil
}

func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Requests returns every request seen so far.
func (m *MockBackend) Requests() []*engine.BackendRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*engine.BackendRequest(nil), m.requests...)
}

// MaxActive is the highest number of concurrent Generate calls observed.
func (m *MockBackend) MaxActive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

// Closed reports whether Close was called.
func (m *MockBackend) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockBackends hands out one MockBackend per device.
type MockBackends struct {
	mu       sync.Mutex
	backends map[generation.Device]*MockBackend

	// Configure, if set, is applied to each backend as it is created.
	Configure func(generation.Device, *MockBackend)
}

func NewMockBackends() *MockBackends {
	return &MockBackends{backends: make(map[generation.Device]*MockBackend)}
}

// Factory is an engine.BackendFactory.
func (m *MockBackends) Factory(d generation.Device) (engine.Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := NewMockBackend()
	if m.Configure != nil {
		m.Configure(d, b)
	}
	m.backends[d] = b
	return b, nil
}

// For returns the backend created for d, or nil.
func (m *MockBackends) For(d generation.Device) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backends[d]
}

// MockProber is an engine.Prober with fixed answers. The CPU is always
// available.
type MockProber struct {
	Devices map[generation.Device]bool
}

func NewMockProber(available ...generation.Device) *MockProber {
	p := &MockProber{Devices: map[generation.Device]bool{generation.DeviceCPU: true}}
	for _, d := range available {
		p.Devices[d] = true
	}
	return p
}

func (p *MockProber) Available(d generation.Device) bool {
	return p.Devices[d]
}

var (
	_ engine.Backend = (*MockBackend)(nil)
	_ engine.Prober  = (*MockProber)(nil)
)
