// OpenTelemetry tracing for provider calls, analyses and health probes.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with compliance-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include prompt and response content in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a tracer from the global OpenTelemetry provider.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// NewTracerFromProvider creates a tracer bound to a specific provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{tracer: tp.Tracer(name), debug: debug}
}

// SetDebug enables or disables debug mode (content in spans).
func (t *Tracer) SetDebug(debug bool) {
	t.debug = debug
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- LLM Spans ---

// LLMSpanOptions contains options for model provider spans.
type LLMSpanOptions struct {
	Model     string
	Provider  string
	Operation string // chat, embed, analyze
	TokensIn  int
	TokensOut int
	Prompt    string // Only included if debug=true
	Response  string // Only included if debug=true
}

// StartLLMSpan starts a span for a provider call.
func (t *Tracer) StartLLMSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
}

// EndLLMSpan ends a provider span with attributes.
func (t *Tracer) EndLLMSpan(span trace.Span, opts LLMSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("llm.model", opts.Model),
		attribute.String("llm.provider", opts.Provider),
		attribute.Int("llm.tokens.input", opts.TokensIn),
		attribute.Int("llm.tokens.output", opts.TokensOut),
	}
	if opts.Operation != "" {
		attrs = append(attrs, attribute.String("llm.operation", opts.Operation))
	}

	if t.debug {
		if opts.Prompt != "" {
			attrs = append(attrs, attribute.String("llm.prompt", truncate(opts.Prompt, 4000)))
		}
		if opts.Response != "" {
			attrs = append(attrs, attribute.String("llm.response", truncate(opts.Response, 4000)))
		}
	}

	span.SetAttributes(attrs...)
	finish(span, err)
}

// --- Analysis Spans ---

// AnalysisSpanOptions describes a finished document analysis.
type AnalysisSpanOptions struct {
	AgentID    string
	DocumentID string
	Standards  []string
	Score      float64
	Issues     int
	TokensUsed int
}

// StartAnalysisSpan starts a span for an agent analysis.
func (t *Tracer) StartAnalysisSpan(ctx context.Context, agentID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "agent.analyze", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("agent.id", agentID))
	return ctx, span
}

// EndAnalysisSpan ends an analysis span with attributes.
func (t *Tracer) EndAnalysisSpan(span trace.Span, opts AnalysisSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("document.id", opts.DocumentID),
		attribute.StringSlice("analysis.standards", opts.Standards),
	}
	if err == nil {
		attrs = append(attrs,
			attribute.Float64("analysis.score", opts.Score),
			attribute.Int("analysis.issues", opts.Issues),
			attribute.Int("analysis.tokens", opts.TokensUsed),
		)
	}
	span.SetAttributes(attrs...)
	finish(span, err)
}

// --- Health Spans ---

// StartHealthSpan starts a span for a health probe.
func (t *Tracer) StartHealthSpan(ctx context.Context, agentID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "agent.health", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("agent.id", agentID))
	return ctx, span
}

// EndHealthSpan ends a health span.
func (t *Tracer) EndHealthSpan(span trace.Span, healthy bool, status string) {
	span.SetAttributes(
		attribute.Bool("health.healthy", healthy),
		attribute.String("health.status", status),
	)
	if healthy {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, status)
	}
	span.End()
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
