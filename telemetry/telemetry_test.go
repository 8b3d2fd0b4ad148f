package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(debug bool) (*Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewTracerFromProvider(tp, "test", debug), rec
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestLLMSpanHidesContentWithoutDebug(t *testing.T) {
	tr, rec := newRecordingTracer(false)
	_, span := tr.StartLLMSpan(context.Background(), "llm.chat")
	tr.EndLLMSpan(span, LLMSpanOptions{
		Model: "claude", Provider: "anthropic", Operation: "chat",
		TokensIn: 10, TokensOut: 5, Prompt: "secret document",
	}, nil)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := spans[0].Attributes()
	if _, ok := attrValue(attrs, "llm.prompt"); ok {
		t.Error("prompt must not be recorded without debug")
	}
	if v, _ := attrValue(attrs, "llm.tokens.input"); v.AsInt64() != 10 {
		t.Errorf("tokens.input = %v", v.AsInt64())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("status = %v", spans[0].Status().Code)
	}
}

func TestLLMSpanDebugTruncates(t *testing.T) {
	tr, rec := newRecordingTracer(true)
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a'
	}
	_, span := tr.StartLLMSpan(context.Background(), "llm.chat")
	tr.EndLLMSpan(span, LLMSpanOptions{Prompt: string(long)}, nil)

	v, ok := attrValue(rec.Ended()[0].Attributes(), "llm.prompt")
	if !ok {
		t.Fatal("prompt should be recorded in debug mode")
	}
	if len(v.AsString()) != 4003 {
		t.Errorf("prompt length = %d, want 4003", len(v.AsString()))
	}
}

func TestAnalysisSpanRecordsError(t *testing.T) {
	tr, rec := newRecordingTracer(false)
	_, span := tr.StartAnalysisSpan(context.Background(), "comp-1")
	tr.EndAnalysisSpan(span, AnalysisSpanOptions{DocumentID: "doc-1", Score: 90}, errors.New("provider down"))

	s := rec.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v", s.Status().Code)
	}
	if _, ok := attrValue(s.Attributes(), "analysis.score"); ok {
		t.Error("score should not be recorded for failed analyses")
	}
	if v, _ := attrValue(s.Attributes(), "agent.id"); v.AsString() != "comp-1" {
		t.Errorf("agent.id = %v", v.AsString())
	}
}

func TestHealthSpan(t *testing.T) {
	tr, rec := newRecordingTracer(false)
	_, span := tr.StartHealthSpan(context.Background(), "comp-1")
	tr.EndHealthSpan(span, false, "error")

	s := rec.Ended()[0]
	if v, _ := attrValue(s.Attributes(), "health.healthy"); v.AsBool() {
		t.Error("health.healthy should be false")
	}
}

func TestGetTracerDefaultsToNoop(t *testing.T) {
	SetGlobalTracer(nil)
	_, span := GetTracer().StartSpan(context.Background(), "x")
	span.End()
}

func TestNewProviderWithExporter(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p, err := NewProviderWithExporter(exp, ProviderConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("NewProviderWithExporter() error = %v", err)
	}
	defer SetGlobalTracer(nil)

	_, span := p.Tracer().StartSpan(context.Background(), "unit")
	span.End()
	if err := p.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush() error = %v", err)
	}
	if len(exp.GetSpans()) != 1 {
		t.Errorf("exported %d spans, want 1", len(exp.GetSpans()))
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestInitProviderRequiresEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if _, err := InitProvider(context.Background(), ProviderConfig{}); err == nil {
		t.Error("expected error without endpoint")
	}
	if _, err := InitProvider(context.Background(), ProviderConfig{Endpoint: "localhost:4317", Protocol: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown protocol")
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.SetAgentCounts(map[string]int{"active": 2, "error": 1})
	if got := testutil.ToFloat64(m.AgentsByStatus.WithLabelValues("active")); got != 2 {
		t.Errorf("active agents = %v", got)
	}
	m.SetAgentCounts(map[string]int{"active": 1})
	if got := testutil.ToFloat64(m.AgentsByStatus.WithLabelValues("error")); got != 0 {
		t.Errorf("error gauge should reset, got %v", got)
	}

	m.ObserveAnalysis("comp-1", time.Now(), 150, nil)
	m.ObserveAnalysis("comp-1", time.Now(), 0, errors.New("x"))
	if got := testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("comp-1", "success")); got != 1 {
		t.Errorf("success = %v", got)
	}
	if got := testutil.ToFloat64(m.TokensTotal.WithLabelValues("comp-1")); got != 150 {
		t.Errorf("tokens = %v", got)
	}

	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()
	if got := testutil.ToFloat64(m.StandardsCache.WithLabelValues("miss")); got != 2 {
		t.Errorf("misses = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.CacheHit()
	m.IncEvent("agent.registered")
	m.ObserveAnalysis("a", time.Now(), 1, nil)
	m.ObserveProviderCall("mock", "chat", nil)
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	NewMetrics()
	NewMetrics()
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.IncEvent("agent.registered")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "compliancekit_registry_events_total") {
		t.Errorf("events counter missing from scrape:\n%s", rec.Body.String())
	}

	var nilMetrics *Metrics
	rec = httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil metrics status = %d", rec.Code)
	}
}
