package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"

	"github.com/vinayprograms/compliancekit/errors"
)

// Provider type names.
const (
	ProviderAnthropic    = "anthropic"
	ProviderOpenAI       = "openai"
	ProviderGoogle       = "google"
	ProviderOpenAICompat = "openai-compat"
	ProviderMock         = "mock"
)

// NewBackend creates a backend based on the configuration.
// If Provider is empty, it will be inferred from the Model name.
func NewBackend(cfg ProviderConfig) (Backend, error) {
	cfg.ApplyDefaults()
	if cfg.Provider == "" {
		return nil, errors.Validation(fmt.Sprintf("cannot determine provider for model %q; set provider explicitly", cfg.Model))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicBackend(AnthropicConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Retry:     cfg.Retry,
		})

	case ProviderOpenAI, ProviderOpenAICompat:
		return NewOpenAIBackend(OpenAIConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			MaxTokens:      cfg.MaxTokens,
			ProviderName:   cfg.Provider,
			Retry:          cfg.Retry,
		})

	case ProviderGoogle:
		return NewGoogleBackend(context.Background(), GoogleConfig{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			MaxTokens:      cfg.MaxTokens,
			Retry:          cfg.Retry,
		})

	case ProviderMock:
		m := NewMockBackend()
		m.SetMaxTokens(cfg.MaxTokens)
		return m, nil

	default:
		return nil, errors.New(errors.ErrCodeUnsupported, "unsupported provider: "+cfg.Provider,
			errors.WithMetadata("provider", cfg.Provider))
	}
}

// New builds a backend from cfg and wraps it in a Client using cfg.Timeout.
func New(cfg ProviderConfig, opts ...ClientOption) (*Client, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return NewClient(backend, append([]ClientOption{WithTimeout(cfg.Timeout)}, opts...)...), nil
}

// InferProviderFromModel returns the provider name based on model name patterns.
func InferProviderFromModel(model string) string {
	model = strings.ToLower(model)

	if strings.HasPrefix(model, "claude") {
		return ProviderAnthropic
	}

	if strings.HasPrefix(model, "gpt-") ||
		strings.HasPrefix(model, "o1") ||
		strings.HasPrefix(model, "o3") ||
		strings.HasPrefix(model, "o4") ||
		strings.HasPrefix(model, "chatgpt") ||
		strings.HasPrefix(model, "text-embedding") {
		return ProviderOpenAI
	}

	if strings.HasPrefix(model, "gemini") ||
		strings.HasPrefix(model, "gemma") {
		return ProviderGoogle
	}

	return ""
}

// Retry configuration defaults
const (
	defaultMaxRetries  = 3
	defaultInitBackoff = 1 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	backoffFactor      = 2.0
)

// effective returns retry settings with defaults applied. A negative
// MaxRetries disables retries.
func (r RetryConfig) effective() (maxRetries int, initBackoff, maxBackoff time.Duration) {
	maxRetries = r.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	initBackoff = r.InitBackoff
	if initBackoff <= 0 {
		initBackoff = defaultInitBackoff
	}
	maxBackoff = r.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return
}

// withRetry runs call with exponential backoff on rate-limit and server errors.
// Billing errors and anything else non-retryable return immediately.
func withRetry[T any](ctx context.Context, cfg RetryConfig, name string, call func(context.Context) (T, error)) (T, error) {
	maxRetries, backoff, maxBackoff := cfg.effective()
	var zero T

	for attempt := 0; ; attempt++ {
		resp, err := call(ctx)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if isBillingError(err) || !isRetryableError(err) {
			return zero, err
		}
		if attempt == maxRetries {
			return zero, fmt.Errorf("%s request failed after %d retries: %w", name, maxRetries, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// statusCode extracts the HTTP status from SDK errors. Zero means the error
// carried no status and classification falls back to the message text.
func statusCode(err error) int {
	var oe *openai.Error
	if stderrors.As(err, &oe) {
		return oe.StatusCode
	}
	var ae *anthropic.Error
	if stderrors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

// isRateLimitError checks if the error is a rate limit error.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if code := statusCode(err); code != 0 {
		return code == http.StatusTooManyRequests || code == 529
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "capacity")
}

// isServerError checks if the error is a transient server error (5xx).
func isServerError(err error) bool {
	if err == nil {
		return false
	}
	if code := statusCode(err); code != 0 {
		return code >= 500 && code != 529
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") ||
		strings.Contains(errStr, "temporarily unavailable")
}

// isRetryableError checks if the error is retryable (rate limit or server error).
func isRetryableError(err error) bool {
	return isRateLimitError(err) || isServerError(err)
}

// isBillingError checks if the error is a billing/payment/quota error (fatal, no retry).
func isBillingError(err error) bool {
	if err == nil {
		return false
	}
	code := statusCode(err)
	if code == http.StatusPaymentRequired {
		return true
	}
	errStr := strings.ToLower(err.Error())
	if code == 0 && strings.Contains(errStr, "402") {
		return true
	}
	return strings.Contains(errStr, "billing") ||
		strings.Contains(errStr, "payment") ||
		strings.Contains(errStr, "credits") ||
		strings.Contains(errStr, "quota exceeded") ||
		strings.Contains(errStr, "insufficient") ||
		strings.Contains(errStr, "subscription")
}

// classify picks the stable code for a raw backend failure.
func classify(err error) errors.ErrorCode {
	switch {
	case isBillingError(err):
		return errors.ErrCodeQuotaExceeded
	case isRateLimitError(err):
		return errors.ErrCodeRateLimit
	case isServerError(err):
		return errors.ErrCodeUnavailable
	default:
		return errors.ErrCodeProvider
	}
}

// finishKind buckets adapter-specific stop reasons for confidence scoring.
type finishKind int

const (
	finishUnknown finishKind = iota
	finishComplete
	finishTruncated
	finishFiltered
)

// confidenceFor derives a [0,1] confidence from how the model stopped and how
// much it said. A clean stop with substantive content scores highest.
func confidenceFor(kind finishKind, content string) float64 {
	var c float64
	switch kind {
	case finishComplete:
		c = 0.9
	case finishTruncated:
		c = 0.6
	case finishFiltered:
		c = 0.2
	default:
		c = 0.5
	}
	switch n := len(strings.TrimSpace(content)); {
	case n == 0:
		c *= 0.25
	case n < 20:
		c *= 0.8
	}
	return c
}
