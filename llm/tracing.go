// Tracing wrapper for providers.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/telemetry"
)

// TracingProvider wraps a Provider with OpenTelemetry tracing.
type TracingProvider struct {
	provider Provider
}

var (
	_ Provider      = (*TracingProvider)(nil)
	_ HealthChecker = (*TracingProvider)(nil)
)

// WithTracing wraps a provider with tracing instrumentation.
func WithTracing(p Provider) Provider {
	return &TracingProvider{provider: p}
}

// Name implements Provider.
func (tp *TracingProvider) Name() string { return tp.provider.Name() }

// MaxTokens implements Provider.
func (tp *TracingProvider) MaxTokens() int { return tp.provider.MaxTokens() }

// Chat implements Provider with tracing.
func (tp *TracingProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartLLMSpan(ctx, "llm.chat")

	resp, err := tp.provider.Chat(ctx, messages, opts)

	spanOpts := telemetry.LLMSpanOptions{Provider: tp.provider.Name(), Operation: OpChat}
	if resp != nil {
		spanOpts.Model = resp.Model
		spanOpts.TokensIn = resp.Usage.PromptTokens
		spanOpts.TokensOut = resp.Usage.CompletionTokens
		spanOpts.Response = resp.Content
	}
	if tracer.Debug() {
		parts := make([]string, 0, len(messages))
		for _, msg := range messages {
			parts = append(parts, fmt.Sprintf("[%s] %s", msg.Role, msg.Content))
		}
		spanOpts.Prompt = strings.Join(parts, "\n")
	}
	tracer.EndLLMSpan(span, spanOpts, err)

	return resp, err
}

// Embed implements Provider with tracing.
func (tp *TracingProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartLLMSpan(ctx, "llm.embed")

	emb, err := tp.provider.Embed(ctx, text)

	spanOpts := telemetry.LLMSpanOptions{Provider: tp.provider.Name(), Operation: OpEmbed, Prompt: text}
	if emb != nil {
		spanOpts.Model = emb.Model
		spanOpts.TokensIn = emb.Tokens
	}
	tracer.EndLLMSpan(span, spanOpts, err)

	return emb, err
}

// Analyze implements Provider with tracing.
func (tp *TracingProvider) Analyze(ctx context.Context, document, prompt string, opts ChatOptions) (*AnalysisResponse, error) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartLLMSpan(ctx, "llm.analyze")

	resp, err := tp.provider.Analyze(ctx, document, prompt, opts)

	spanOpts := telemetry.LLMSpanOptions{Provider: tp.provider.Name(), Operation: OpAnalyze, Prompt: prompt}
	if resp != nil {
		spanOpts.Model = resp.Model
		spanOpts.TokensIn = resp.Usage.PromptTokens
		spanOpts.TokensOut = resp.Usage.CompletionTokens
		spanOpts.Response = resp.Content
	}
	tracer.EndLLMSpan(span, spanOpts, err)

	return resp, err
}

// HealthCheck forwards to the wrapped provider when it can probe.
func (tp *TracingProvider) HealthCheck(ctx context.Context) error {
	if hc, ok := tp.provider.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return errors.New(errors.ErrCodeUnsupported, "provider has no health probe")
}
