// Package llm defines the contract every language-model backend satisfies and
// the adapters for Anthropic, OpenAI (and OpenAI-compatible endpoints) and
// Google Gemini.
//
// Callers use a Provider. A Client turns any Backend into a Provider by adding
// input validation, a per-call timeout, error normalization and confidence
// clamping, so backends only translate requests to their SDK.
package llm

import (
	"context"
	"time"

	"github.com/vinayprograms/compliancekit/errors"
)

// Message roles accepted by Chat.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents an LLM message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatOptions tunes a single call. Nil fields use the backend default.
type ChatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"` // [0,2]
	MaxTokens   *int     `json:"max_tokens,omitempty"`  // [1, provider max]
	TopP        *float64 `json:"top_p,omitempty"`       // [0,1]
	Stop        []string `json:"stop,omitempty"`
}

// Float returns a pointer to v, for ChatOptions literals.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for ChatOptions literals.
func Int(v int) *int { return &v }

// Usage is the token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the normalized result of Chat.
type ChatResponse struct {
	Content    string        `json:"content"`
	Model      string        `json:"model"`
	StopReason string        `json:"stop_reason"`
	Usage      Usage         `json:"usage"`
	Confidence float64       `json:"confidence"` // [0,1]
	Duration   time.Duration `json:"duration"`
}

// Embedding is the normalized result of Embed.
type Embedding struct {
	Vector []float64 `json:"vector"`
	Model  string    `json:"model"`
	Tokens int       `json:"tokens"`
}

// AnalysisResponse is the raw model output of Analyze. Interpreting the
// content is the caller's job.
type AnalysisResponse struct {
	Content    string        `json:"content"`
	Model      string        `json:"model"`
	Usage      Usage         `json:"usage"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"duration"`
}

// Provider is the capability contract agents consume.
type Provider interface {
	// Name identifies the backend (anthropic, openai, google, mock, ...).
	Name() string

	// MaxTokens is the upper bound accepted for ChatOptions.MaxTokens.
	MaxTokens() int

	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error)
	Embed(ctx context.Context, text string) (*Embedding, error)
	Analyze(ctx context.Context, document, prompt string, opts ChatOptions) (*AnalysisResponse, error)
}

// HealthChecker is implemented by providers that can probe their backend.
// Implementations return an UNSUPPORTED error when no probe exists.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CompletionRequest is what a Backend receives after validation. Option
// pointers are still nil when the caller left them unset.
type CompletionRequest struct {
	Messages []Message
	Options  ChatOptions
}

// Completion is what a Backend returns.
type Completion struct {
	Content      string
	Model        string
	StopReason   string
	InputTokens  int
	OutputTokens int
	Confidence   float64
}

// Backend is the adapter surface a model SDK implements. Backends may retry
// internally but never validate caller input; the Client does that.
type Backend interface {
	Name() string
	MaxTokens() int
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	Embed(ctx context.Context, text string) (*Embedding, error)
}

// Pinger is implemented by backends that offer a cheap liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderConfig holds configuration for building a backend.
type ProviderConfig struct {
	Provider       string        `json:"provider" toml:"type"` // anthropic, openai, google, openai-compat, mock
	Model          string        `json:"model" toml:"model"`
	EmbeddingModel string        `json:"embedding_model" toml:"embedding_model"`
	APIKey         string        `json:"api_key" toml:"api_key"`
	MaxTokens      int           `json:"max_tokens" toml:"max_tokens"`
	BaseURL        string        `json:"base_url" toml:"base_url"` // OpenAI-compatible endpoints (LiteLLM, Ollama, LMStudio)
	Timeout        time.Duration `json:"timeout" toml:"-"`
	Retry          RetryConfig   `json:"retry" toml:"-"`
}

// RetryConfig holds retry settings for backend calls.
type RetryConfig struct {
	MaxRetries  int           `json:"max_retries"`  // Max retry attempts (default 3)
	MaxBackoff  time.Duration `json:"max_backoff"`  // Max backoff duration (default 30s)
	InitBackoff time.Duration `json:"init_backoff"` // Initial backoff (default 1s)
}

// Defaults.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxTokens = 4096
)

// ApplyDefaults fills unset fields and infers the provider from the model name.
func (c *ProviderConfig) ApplyDefaults() {
	if c.Provider == "" && c.Model != "" {
		c.Provider = InferProviderFromModel(c.Model)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate validates the configuration.
func (c *ProviderConfig) Validate() error {
	if c.Provider == "" {
		return errors.Validation("provider is required", errors.WithMetadata("model", c.Model))
	}
	if c.Provider != ProviderMock && c.Model == "" {
		return errors.Validation("model is required", errors.WithMetadata("provider", c.Provider))
	}
	if c.APIKey == "" && c.Provider != ProviderMock && c.Provider != ProviderOpenAICompat {
		return errors.Validation("api key is required", errors.WithMetadata("provider", c.Provider))
	}
	if c.Provider == ProviderOpenAICompat && c.BaseURL == "" {
		return errors.Validation("base_url is required for openai-compat", errors.WithMetadata("provider", c.Provider))
	}
	if c.MaxTokens <= 0 {
		return errors.Validation("max_tokens must be positive", errors.WithMetadata("provider", c.Provider))
	}
	if c.Timeout < 0 {
		return errors.Validation("timeout must not be negative", errors.WithMetadata("provider", c.Provider))
	}
	return nil
}
