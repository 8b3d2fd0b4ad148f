package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/ratelimit"
)

func userMsg(s string) []Message {
	return []Message{{Role: RoleUser, Content: s}}
}

// =============================================================================
// Validation
// =============================================================================

func TestChat_ValidationNeverCallsBackend(t *testing.T) {
	tests := []struct {
		name     string
		messages []Message
		opts     ChatOptions
	}{
		{"temperature too high", userMsg("hi"), ChatOptions{Temperature: Float(3.5)}},
		{"temperature negative", userMsg("hi"), ChatOptions{Temperature: Float(-0.1)}},
		{"temperature NaN", userMsg("hi"), ChatOptions{Temperature: Float(math.NaN())}},
		{"top_p too high", userMsg("hi"), ChatOptions{TopP: Float(1.5)}},
		{"max tokens zero", userMsg("hi"), ChatOptions{MaxTokens: Int(0)}},
		{"max tokens over ceiling", userMsg("hi"), ChatOptions{MaxTokens: Int(DefaultMaxTokens + 1)}},
		{"no messages", nil, ChatOptions{}},
		{"bad role", []Message{{Role: "tool", Content: "x"}}, ChatOptions{}},
		{"empty content", []Message{{Role: RoleUser, Content: "  "}}, ChatOptions{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockBackend()
			client := NewClient(mock)

			_, err := client.Chat(context.Background(), tt.messages, tt.opts)
			if !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Fatalf("expected INVALID_INPUT, got %v", err)
			}
			if mock.CallCount() != 0 {
				t.Errorf("backend called %d times, want 0", mock.CallCount())
			}
			if se, ok := err.(*errors.Error); !ok || se.Operation() != OpChat {
				t.Errorf("error should carry operation %q", OpChat)
			}
		})
	}
}

func TestChat_BoundaryOptionsAccepted(t *testing.T) {
	mock := NewMockBackend()
	client := NewClient(mock)

	opts := ChatOptions{Temperature: Float(2), TopP: Float(0), MaxTokens: Int(DefaultMaxTokens)}
	if _, err := client.Chat(context.Background(), userMsg("hi"), opts); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("CallCount() = %d", mock.CallCount())
	}
	if got := mock.LastRequest().Options.Temperature; got == nil || *got != 2 {
		t.Error("options should reach the backend unchanged")
	}
}

// =============================================================================
// Responses
// =============================================================================

func TestChat_NormalizesResponse(t *testing.T) {
	mock := NewMockBackend()
	mock.SetResponse("hello")
	mock.SetTokenCounts(12, 8)
	mock.SetConfidence(1.7)
	client := NewClient(mock)

	resp, err := client.Chat(context.Background(), userMsg("hi"), ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
	if resp.Confidence != 1 {
		t.Errorf("Confidence = %v, want clamped to 1", resp.Confidence)
	}
}

func TestAnalyze_BuildsMessages(t *testing.T) {
	mock := NewMockBackend()
	mock.SetResponse(`{"score": 80}`)
	client := NewClient(mock)

	resp, err := client.Analyze(context.Background(), "privacy policy text", "Assess GDPR", ChatOptions{Temperature: Float(0.2)})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if resp.Content != `{"score": 80}` {
		t.Errorf("Content = %q", resp.Content)
	}
	req := mock.LastRequest()
	if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[1].Content, "privacy policy text") ||
		!strings.Contains(req.Messages[1].Content, "Assess GDPR") {
		t.Errorf("user message missing prompt or document: %q", req.Messages[1].Content)
	}
}

func TestAnalyze_Validation(t *testing.T) {
	mock := NewMockBackend()
	client := NewClient(mock)

	if _, err := client.Analyze(context.Background(), "", "p", ChatOptions{}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("empty document: %v", err)
	}
	if _, err := client.Analyze(context.Background(), "doc", " ", ChatOptions{}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("empty prompt: %v", err)
	}
	if _, err := client.Analyze(context.Background(), "doc", "p", ChatOptions{Temperature: Float(3.5)}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("bad temperature: %v", err)
	}
	if mock.CallCount() != 0 {
		t.Errorf("backend called %d times", mock.CallCount())
	}
}

func TestEmbed(t *testing.T) {
	mock := NewMockBackend()
	mock.SetEmbedding([]float64{1, 2})
	client := NewClient(mock)

	emb, err := client.Embed(context.Background(), "access control")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(emb.Vector) != 2 {
		t.Errorf("Vector = %v", emb.Vector)
	}

	if _, err := client.Embed(context.Background(), ""); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("empty text: %v", err)
	}

	mock.SetEmbedding(nil)
	if _, err := client.Embed(context.Background(), "x"); !errors.Is(err, errors.ErrCodeMalformedResponse) {
		t.Errorf("empty vector: %v", err)
	}
}

// =============================================================================
// Errors and timeouts
// =============================================================================

func TestClient_NormalizesBackendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorCode
	}{
		{"rate limit", fmt.Errorf("429 Too Many Requests"), errors.ErrCodeRateLimit},
		{"billing", fmt.Errorf("insufficient credits"), errors.ErrCodeQuotaExceeded},
		{"server", fmt.Errorf("503 service unavailable"), errors.ErrCodeUnavailable},
		{"other", fmt.Errorf("weird payload"), errors.ErrCodeProvider},
		{"structured", errors.New(errors.ErrCodeUnsupported, "nope"), errors.ErrCodeUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockBackend()
			mock.SetError(tt.err)
			client := NewClient(mock)

			_, err := client.Chat(context.Background(), userMsg("hi"), ChatOptions{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("code = %v, want %v", errors.Code(err), tt.want)
			}
			md := errors.GetMetadata(err)
			if md["provider"] != ProviderMock {
				t.Errorf("provider metadata = %q", md["provider"])
			}
			if md["detail"] == "" {
				t.Error("detail metadata should carry the raw error")
			}
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	mock := NewMockBackend()
	mock.CompleteFunc = func(ctx context.Context, req CompletionRequest) (*Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	client := NewClient(mock, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := client.Chat(context.Background(), userMsg("hi"), ChatOptions{})
	if !errors.Is(err, errors.ErrCodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout took too long")
	}
}

func TestClient_TimeoutWithUncooperativeBackend(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	mock := NewMockBackend()
	mock.CompleteFunc = func(ctx context.Context, req CompletionRequest) (*Completion, error) {
		<-release
		return &Completion{Content: "late"}, nil
	}
	client := NewClient(mock, WithTimeout(20*time.Millisecond))

	_, err := client.Chat(context.Background(), userMsg("hi"), ChatOptions{})
	if !errors.Is(err, errors.ErrCodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}

func TestClient_TimeoutIsolatedPerCall(t *testing.T) {
	mock := NewMockBackend()
	mock.CompleteFunc = func(ctx context.Context, req CompletionRequest) (*Completion, error) {
		if req.Messages[0].Content == "slow" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &Completion{Content: "ok"}, nil
	}
	client := NewClient(mock, WithTimeout(30*time.Millisecond))

	var wg sync.WaitGroup
	var slowErr, fastErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, slowErr = client.Chat(context.Background(), userMsg("slow"), ChatOptions{})
	}()
	go func() {
		defer wg.Done()
		_, fastErr = client.Chat(context.Background(), userMsg("fast"), ChatOptions{})
	}()
	wg.Wait()

	if !errors.Is(slowErr, errors.ErrCodeTimeout) {
		t.Errorf("slow call: %v", slowErr)
	}
	if fastErr != nil {
		t.Errorf("fast call should succeed: %v", fastErr)
	}
}

func TestClient_CallerCancel(t *testing.T) {
	mock := NewMockBackend()
	mock.CompleteFunc = func(ctx context.Context, req CompletionRequest) (*Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	client := NewClient(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Chat(ctx, userMsg("hi"), ChatOptions{})
	if !errors.Is(err, errors.ErrCodeCanceled) {
		t.Fatalf("expected CANCELED, got %v", err)
	}
}

func TestClient_BackendPanic(t *testing.T) {
	mock := NewMockBackend()
	mock.CompleteFunc = func(ctx context.Context, req CompletionRequest) (*Completion, error) {
		panic("sdk bug")
	}
	client := NewClient(mock)

	_, err := client.Chat(context.Background(), userMsg("hi"), ChatOptions{})
	if !errors.Is(err, errors.ErrCodePanic) {
		t.Fatalf("expected PANIC, got %v", err)
	}
}

func TestClient_NilCompletion(t *testing.T) {
	mock := NewMockBackend()
	mock.CompleteFunc = func(ctx context.Context, req CompletionRequest) (*Completion, error) {
		return nil, nil
	}
	client := NewClient(mock)

	_, err := client.Chat(context.Background(), userMsg("hi"), ChatOptions{})
	if !errors.Is(err, errors.ErrCodeMalformedResponse) {
		t.Fatalf("expected MALFORMED_RESPONSE, got %v", err)
	}
}

// =============================================================================
// Health
// =============================================================================

func TestHealthCheck(t *testing.T) {
	mock := NewMockBackend()
	client := NewClient(mock)

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	mock.SetPingError(stderrors.New("503 service unavailable"))
	if err := client.HealthCheck(context.Background()); !errors.Is(err, errors.ErrCodeUnavailable) {
		t.Errorf("expected UNAVAILABLE, got %v", err)
	}
	if mock.PingCount() != 2 {
		t.Errorf("PingCount() = %d", mock.PingCount())
	}
}

type noPingBackend struct{ *MockBackend }

func (noPingBackend) Ping() {}

func TestHealthCheck_Unsupported(t *testing.T) {
	// Embedding the mock in a struct whose Ping has the wrong signature hides Pinger.
	client := NewClient(noPingBackend{NewMockBackend()})
	if err := client.HealthCheck(context.Background()); !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("expected UNSUPPORTED, got %v", err)
	}
}

func TestTracingProvider_PassesThrough(t *testing.T) {
	mock := NewMockBackend()
	mock.SetResponse("traced")
	p := WithTracing(NewClient(mock))

	resp, err := p.Chat(context.Background(), userMsg("hi"), ChatOptions{})
	if err != nil || resp.Content != "traced" {
		t.Fatalf("Chat() = %v, %v", resp, err)
	}
	if _, err := p.Analyze(context.Background(), "doc", "p", ChatOptions{}); err != nil {
		t.Errorf("Analyze() error = %v", err)
	}
	if _, err := p.Chat(context.Background(), userMsg("hi"), ChatOptions{Temperature: Float(3.5)}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("validation should survive tracing wrapper: %v", err)
	}
	if hc, ok := p.(HealthChecker); !ok || hc.HealthCheck(context.Background()) != nil {
		t.Error("tracing provider should forward health checks")
	}
}

// =============================================================================
// Config
// =============================================================================

func TestProviderConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		wantErr bool
	}{
		{"valid anthropic", ProviderConfig{Provider: "anthropic", Model: "claude-sonnet-4", APIKey: "k", MaxTokens: 1}, false},
		{"mock needs nothing", ProviderConfig{Provider: "mock", MaxTokens: 1}, false},
		{"missing provider", ProviderConfig{Model: "x", APIKey: "k", MaxTokens: 1}, true},
		{"missing key", ProviderConfig{Provider: "openai", Model: "gpt-4o", MaxTokens: 1}, true},
		{"compat needs base url", ProviderConfig{Provider: "openai-compat", Model: "llama3", MaxTokens: 1}, true},
		{"compat without key", ProviderConfig{Provider: "openai-compat", Model: "llama3", BaseURL: "http://localhost:11434/v1", MaxTokens: 1}, false},
		{"zero max tokens", ProviderConfig{Provider: "mock"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_Mock(t *testing.T) {
	client, err := New(ProviderConfig{Provider: ProviderMock, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.Name() != ProviderMock || client.MaxTokens() != DefaultMaxTokens {
		t.Errorf("Name/MaxTokens = %s/%d", client.Name(), client.MaxTokens())
	}
	if client.Timeout() != 5*time.Second {
		t.Errorf("Timeout() = %v", client.Timeout())
	}
}

func TestNewBackend_Unsupported(t *testing.T) {
	_, err := NewBackend(ProviderConfig{Provider: "carrier-pigeon", Model: "x", APIKey: "k"})
	if !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("expected UNSUPPORTED, got %v", err)
	}
	_, err = NewBackend(ProviderConfig{Model: "unknown-model", APIKey: "k"})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for uninferable model, got %v", err)
	}
}

func TestClient_RateLimiter(t *testing.T) {
	t.Run("throttles calls", func(t *testing.T) {
		lim := ratelimit.New()
		lim.SetCapacity(ProviderMock, 2, time.Hour)
		mock := NewMockBackend()
		client := NewClient(mock, WithRateLimiter(lim), WithTimeout(30*time.Millisecond))

		for i := 0; i < 2; i++ {
			if _, err := client.Chat(context.Background(), userMsg("hi"), ChatOptions{}); err != nil {
				t.Fatalf("call %d error = %v", i+1, err)
			}
		}
		_, err := client.Chat(context.Background(), userMsg("hi"), ChatOptions{})
		if !errors.Is(err, errors.ErrCodeRateLimit) && !errors.Is(err, errors.ErrCodeTimeout) {
			t.Fatalf("third call error = %v, want RATE_LIMITED or TIMEOUT", err)
		}
		if mock.CallCount() != 2 {
			t.Errorf("backend calls = %d, want 2", mock.CallCount())
		}
		if c := lim.Capacity(ProviderMock); c.Reduced != 0 {
			t.Errorf("local throttling reduced capacity: %+v", c)
		}
	})

	t.Run("backend pushback reduces capacity", func(t *testing.T) {
		lim := ratelimit.New()
		lim.SetCapacity(ProviderMock, 100, time.Minute)
		mock := NewMockBackend()
		mock.SetError(fmt.Errorf("429 Too Many Requests"))
		client := NewClient(mock, WithRateLimiter(lim))

		_, err := client.Chat(context.Background(), userMsg("hi"), ChatOptions{})
		if !errors.Is(err, errors.ErrCodeRateLimit) {
			t.Fatalf("error = %v, want RATE_LIMITED", err)
		}
		c := lim.Capacity(ProviderMock)
		if c.Total != 75 || c.Reduced != 1 {
			t.Errorf("Capacity() = %+v, want total 75 reduced 1", c)
		}
	})
}
