package llm

import (
	"context"
	"sync"
)

// MockBackend is a scriptable backend for tests and offline runs.
type MockBackend struct {
	mu           sync.Mutex
	response     string
	stopReason   string
	model        string
	inputTokens  int
	outputTokens int
	confidence   float64
	maxTokens    int
	err          error
	pingErr      error
	vector       []float64
	lastRequest  *CompletionRequest
	callCount    int
	embedCount   int
	pingCount    int

	// CompleteFunc can be overridden for custom behavior.
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*Completion, error)
}

var (
	_ Backend = (*MockBackend)(nil)
	_ Pinger  = (*MockBackend)(nil)
)

// NewMockBackend creates a mock that answers every completion with an empty
// JSON object.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		response:   "{}",
		stopReason: "end_turn",
		model:      "mock-model",
		confidence: 0.9,
		maxTokens:  DefaultMaxTokens,
		vector:     []float64{0.1, 0.2, 0.3},
	}
}

// Name implements Backend.
func (m *MockBackend) Name() string { return ProviderMock }

// MaxTokens implements Backend.
func (m *MockBackend) MaxTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxTokens
}

// SetMaxTokens sets the token ceiling reported to the client.
func (m *MockBackend) SetMaxTokens(n int) {
	m.mu.Lock()
	m.maxTokens = n
	m.mu.Unlock()
}

// SetResponse sets the response content.
func (m *MockBackend) SetResponse(content string) {
	m.mu.Lock()
	m.response = content
	m.mu.Unlock()
}

// SetTokenCounts sets the token counts.
func (m *MockBackend) SetTokenCounts(input, output int) {
	m.mu.Lock()
	m.inputTokens, m.outputTokens = input, output
	m.mu.Unlock()
}

// SetConfidence sets the raw confidence reported by the backend.
func (m *MockBackend) SetConfidence(c float64) {
	m.mu.Lock()
	m.confidence = c
	m.mu.Unlock()
}

// SetStopReason sets the stop reason.
func (m *MockBackend) SetStopReason(reason string) {
	m.mu.Lock()
	m.stopReason = reason
	m.mu.Unlock()
}

// SetError sets an error returned by Complete and Embed.
func (m *MockBackend) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// SetPingError sets the error returned by Ping.
func (m *MockBackend) SetPingError(err error) {
	m.mu.Lock()
	m.pingErr = err
	m.mu.Unlock()
}

// SetEmbedding sets the vector returned by Embed.
func (m *MockBackend) SetEmbedding(v []float64) {
	m.mu.Lock()
	m.vector = v
	m.mu.Unlock()
}

// LastRequest returns the last completion request.
func (m *MockBackend) LastRequest() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// CallCount returns the number of Complete calls made.
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// EmbedCount returns the number of Embed calls made.
func (m *MockBackend) EmbedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCount
}

// PingCount returns the number of Ping calls made.
func (m *MockBackend) PingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingCount
}

// Reset resets the call counters.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	m.callCount, m.embedCount, m.pingCount = 0, 0, 0
	m.mu.Unlock()
}

// Complete implements Backend.
func (m *MockBackend) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	m.mu.Lock()
	m.callCount++
	m.lastRequest = &req
	fn := m.CompleteFunc
	comp := &Completion{
		Content:      m.response,
		Model:        m.model,
		StopReason:   m.stopReason,
		InputTokens:  m.inputTokens,
		OutputTokens: m.outputTokens,
		Confidence:   m.confidence,
	}
	err := m.err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return comp, nil
}

// Embed implements Backend.
func (m *MockBackend) Embed(ctx context.Context, text string) (*Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCount++
	if m.err != nil {
		return nil, m.err
	}
	vec := make([]float64, len(m.vector))
	copy(vec, m.vector)
	return &Embedding{Vector: vec, Model: m.model, Tokens: len(text) / 4}, nil
}

// Ping implements Pinger.
func (m *MockBackend) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingCount++
	return m.pingErr
}
