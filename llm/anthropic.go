package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vinayprograms/compliancekit/errors"
)

// AnthropicBackend implements Backend using the official Anthropic SDK.
type AnthropicBackend struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	retry     RetryConfig
}

var (
	_ Backend = (*AnthropicBackend)(nil)
	_ Pinger  = (*AnthropicBackend)(nil)
)

// AnthropicConfig holds configuration for the Anthropic backend.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string // Optional custom endpoint
	Model     string
	MaxTokens int
	Retry     RetryConfig
}

// NewAnthropicBackend creates a new Anthropic backend.
func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.Validation("api_key is required for anthropic")
	}
	if cfg.Model == "" {
		return nil, errors.Validation("model is required for anthropic")
	}
	if cfg.MaxTokens == 0 {
		return nil, errors.Validation("max_tokens is required for anthropic")
	}

	// Retries are handled by withRetry so they share one policy across backends.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicBackend{
		client:    &client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     cfg.Retry,
	}, nil
}

// Name implements Backend.
func (p *AnthropicBackend) Name() string { return ProviderAnthropic }

// MaxTokens implements Backend.
func (p *AnthropicBackend) MaxTokens() int { return p.maxTokens }

// Complete implements Backend.
func (p *AnthropicBackend) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(p.maxTokens)
	if req.Options.MaxTokens != nil {
		maxTokens = int64(*req.Options.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Options.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Options.Temperature)
	}
	if req.Options.TopP != nil {
		params.TopP = anthropic.Float(*req.Options.TopP)
	}
	if len(req.Options.Stop) > 0 {
		params.StopSequences = req.Options.Stop
	}

	resp, err := withRetry(ctx, p.retry, ProviderAnthropic, func(ctx context.Context) (*anthropic.Message, error) {
		return p.client.Messages.New(ctx, params)
	})
	if err != nil {
		return nil, err
	}

	result := &Completion{
		StopReason:   string(resp.StopReason),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Model:        string(resp.Model),
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			result.Content += block.Text
		}
	}
	result.Confidence = confidenceFor(anthropicFinish(result.StopReason), result.Content)

	return result, nil
}

func anthropicFinish(reason string) finishKind {
	switch reason {
	case "end_turn", "stop_sequence":
		return finishComplete
	case "max_tokens":
		return finishTruncated
	case "refusal":
		return finishFiltered
	default:
		return finishUnknown
	}
}

// Embed is not offered by Anthropic.
func (p *AnthropicBackend) Embed(ctx context.Context, text string) (*Embedding, error) {
	return nil, errors.New(errors.ErrCodeUnsupported, "anthropic does not provide embeddings",
		errors.WithMetadata("provider", ProviderAnthropic))
}

// Ping lists one model to confirm the key and endpoint work.
func (p *AnthropicBackend) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)})
	return err
}
