package llm

import (
	"context"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/vinayprograms/compliancekit/errors"
)

const defaultGoogleEmbeddingModel = "text-embedding-004"

// GoogleBackend implements Backend using the Google Gemini SDK.
type GoogleBackend struct {
	client         *genai.Client
	modelName      string
	embeddingModel string
	maxTokens      int
	retry          RetryConfig
}

var (
	_ Backend = (*GoogleBackend)(nil)
	_ Pinger  = (*GoogleBackend)(nil)
)

// GoogleConfig holds configuration for the Google backend.
type GoogleConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	MaxTokens      int
	Retry          RetryConfig
}

// NewGoogleBackend creates a new Gemini backend.
func NewGoogleBackend(ctx context.Context, cfg GoogleConfig) (*GoogleBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.Validation("api_key is required for google")
	}
	if cfg.Model == "" {
		return nil, errors.Validation("model is required for google")
	}
	if cfg.MaxTokens == 0 {
		return nil, errors.Validation("max_tokens is required for google")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeProvider, "failed to create google client",
			errors.WithMetadata("provider", ProviderGoogle))
	}

	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultGoogleEmbeddingModel
	}

	return &GoogleBackend{
		client:         client,
		modelName:      cfg.Model,
		embeddingModel: embeddingModel,
		maxTokens:      cfg.MaxTokens,
		retry:          cfg.Retry,
	}, nil
}

// Close closes the underlying client.
func (p *GoogleBackend) Close() error {
	return p.client.Close()
}

// Name implements Backend.
func (p *GoogleBackend) Name() string { return ProviderGoogle }

// MaxTokens implements Backend.
func (p *GoogleBackend) MaxTokens() int { return p.maxTokens }

// model returns a per-call model so concurrent calls never share settings.
func (p *GoogleBackend) model(opts ChatOptions) *genai.GenerativeModel {
	m := p.client.GenerativeModel(p.modelName)
	maxTokens := p.maxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	m.SetMaxOutputTokens(int32(maxTokens))
	if opts.Temperature != nil {
		m.SetTemperature(float32(*opts.Temperature))
	}
	if opts.TopP != nil {
		m.SetTopP(float32(*opts.TopP))
	}
	if len(opts.Stop) > 0 {
		m.StopSequences = opts.Stop
	}
	return m
}

// Complete implements Backend.
func (p *GoogleBackend) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	model := p.model(req.Options)

	cs := model.StartChat()
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
		case RoleUser:
			cs.History = append(cs.History, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case RoleAssistant:
			cs.History = append(cs.History, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}

	// The last user turn is sent as the prompt; everything before it is history.
	var prompt genai.Text
	if n := len(cs.History); n > 0 && cs.History[n-1].Role == "user" {
		last := cs.History[n-1]
		cs.History = cs.History[:n-1]
		if t, ok := last.Parts[0].(genai.Text); ok {
			prompt = t
		}
	}
	if prompt == "" {
		return nil, errors.Validation("google requires the conversation to end with a user message")
	}

	resp, err := withRetry(ctx, p.retry, ProviderGoogle, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return cs.SendMessage(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}

	result := &Completion{Model: p.modelName}
	kind := finishUnknown
	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		if candidate.FinishReason != 0 {
			result.StopReason = candidate.FinishReason.String()
		}
		kind = googleFinish(candidate.FinishReason)
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					result.Content += string(t)
				}
			}
		}
	}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	result.Confidence = confidenceFor(kind, result.Content)

	return result, nil
}

func googleFinish(reason genai.FinishReason) finishKind {
	switch reason {
	case genai.FinishReasonStop:
		return finishComplete
	case genai.FinishReasonMaxTokens:
		return finishTruncated
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return finishFiltered
	default:
		return finishUnknown
	}
}

// Embed implements Backend.
func (p *GoogleBackend) Embed(ctx context.Context, text string) (*Embedding, error) {
	em := p.client.EmbeddingModel(p.embeddingModel)
	resp, err := withRetry(ctx, p.retry, ProviderGoogle, func(ctx context.Context) (*genai.EmbedContentResponse, error) {
		return em.EmbedContent(ctx, genai.Text(text))
	})
	if err != nil {
		return nil, err
	}
	if resp.Embedding == nil {
		return nil, errors.New(errors.ErrCodeMalformedResponse, "embedding response has no values")
	}
	vec := make([]float64, len(resp.Embedding.Values))
	for i, v := range resp.Embedding.Values {
		vec[i] = float64(v)
	}
	return &Embedding{Vector: vec, Model: p.embeddingModel}, nil
}

// Ping fetches model metadata to confirm the key and model name.
func (p *GoogleBackend) Ping(ctx context.Context) error {
	_, err := p.client.GenerativeModel(p.modelName).Info(ctx)
	return err
}
