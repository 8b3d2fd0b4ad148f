package llm

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/vinayprograms/compliancekit/errors"
)

const defaultOpenAIEmbeddingModel = "text-embedding-3-small"

// OpenAIBackend implements Backend using the official OpenAI SDK. With a
// BaseURL it also serves OpenAI-compatible endpoints (LiteLLM, Ollama, LMStudio).
type OpenAIBackend struct {
	client         *openai.Client
	name           string
	model          string
	embeddingModel string
	maxTokens      int
	retry          RetryConfig
}

var (
	_ Backend = (*OpenAIBackend)(nil)
	_ Pinger  = (*OpenAIBackend)(nil)
)

// OpenAIConfig holds configuration for the OpenAI backend.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string // Optional custom endpoint
	Model          string
	EmbeddingModel string
	MaxTokens      int
	ProviderName   string // openai or openai-compat
	Retry          RetryConfig
}

// NewOpenAIBackend creates a new OpenAI backend.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	name := cfg.ProviderName
	if name == "" {
		name = ProviderOpenAI
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.Validation("api_key is required for openai")
	}
	if cfg.Model == "" {
		return nil, errors.Validation("model is required for " + name)
	}
	if cfg.MaxTokens == 0 {
		return nil, errors.Validation("max_tokens is required for " + name)
	}

	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		// Local compatible servers ignore the key but the SDK requires one.
		opts = append(opts, option.WithAPIKey("unused"))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultOpenAIEmbeddingModel
	}

	return &OpenAIBackend{
		client:         &client,
		name:           name,
		model:          cfg.Model,
		embeddingModel: embeddingModel,
		maxTokens:      cfg.MaxTokens,
		retry:          cfg.Retry,
	}, nil
}

// Name implements Backend.
func (p *OpenAIBackend) Name() string { return p.name }

// MaxTokens implements Backend.
func (p *OpenAIBackend) MaxTokens() int { return p.maxTokens }

// Complete implements Backend.
func (p *OpenAIBackend) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}

	maxTokens := int64(p.maxTokens)
	if req.Options.MaxTokens != nil {
		maxTokens = int64(*req.Options.MaxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(p.model),
		Messages:  messages,
		MaxTokens: openai.Int(maxTokens),
	}
	if req.Options.Temperature != nil {
		params.Temperature = openai.Float(*req.Options.Temperature)
	}
	if req.Options.TopP != nil {
		params.TopP = openai.Float(*req.Options.TopP)
	}

	resp, err := withRetry(ctx, p.retry, p.name, func(ctx context.Context) (*openai.ChatCompletion, error) {
		return p.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return nil, err
	}

	result := &Completion{
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		result.Content = choice.Message.Content
		result.StopReason = string(choice.FinishReason)
	}
	// Stop sequences are applied to the returned text so every
	// OpenAI-compatible server behaves the same.
	if content, cut := cutAtStop(result.Content, req.Options.Stop); cut {
		result.Content = content
		result.StopReason = "stop"
	}
	result.Confidence = confidenceFor(openaiFinish(result.StopReason), result.Content)

	return result, nil
}

func openaiFinish(reason string) finishKind {
	switch reason {
	case "stop":
		return finishComplete
	case "length":
		return finishTruncated
	case "content_filter":
		return finishFiltered
	default:
		return finishUnknown
	}
}

func cutAtStop(content string, stops []string) (string, bool) {
	idx := -1
	for _, s := range stops {
		if s == "" {
			continue
		}
		if i := strings.Index(content, s); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
	}
	if idx < 0 {
		return content, false
	}
	return content[:idx], true
}

// Embed implements Backend.
func (p *OpenAIBackend) Embed(ctx context.Context, text string) (*Embedding, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(p.embeddingModel),
	}
	resp, err := withRetry(ctx, p.retry, p.name, func(ctx context.Context) (*openai.CreateEmbeddingResponse, error) {
		return p.client.Embeddings.New(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New(errors.ErrCodeMalformedResponse, "embedding response has no data")
	}
	return &Embedding{
		Vector: resp.Data[0].Embedding,
		Model:  resp.Model,
		Tokens: int(resp.Usage.PromptTokens),
	}, nil
}

// Ping lists models to confirm the key and endpoint work.
func (p *OpenAIBackend) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	return err
}
