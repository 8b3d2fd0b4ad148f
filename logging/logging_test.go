package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelInfo)

	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should be filtered at INFO level")
	}

	logger.Info("info message")
	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["level"] != "info" {
		t.Errorf("level = %v", lines[0]["level"])
	}
	if lines[0]["message"] != "info message" {
		t.Errorf("message = %v", lines[0]["message"])
	}
}

func TestLogger_DerivedSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	parent := New()
	child := parent.WithComponent("registry").WithAgent("comp-1").WithTraceID("req-123")
	parent.SetOutput(&buf)

	child.Info("test message")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["component"] != "registry" {
		t.Errorf("component = %v", lines[0]["component"])
	}
	if lines[0]["agent_id"] != "comp-1" {
		t.Errorf("agent_id = %v", lines[0]["agent_id"])
	}
	if lines[0]["trace_id"] != "req-123" {
		t.Errorf("trace_id = %v", lines[0]["trace_id"])
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Info("analysis", map[string]interface{}{"standard": "gdpr"})

	lines := decodeLines(t, &buf)
	if lines[0]["standard"] != "gdpr" {
		t.Errorf("expected standard field, got: %v", lines[0])
	}
}

func TestLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New().WithComponent("test")
	logger.SetOutput(&buf)
	logger.SetFormat(FormatConsole)

	logger.Info("hello world", map[string]interface{}{"key": "value"})

	output := buf.String()
	if !strings.Contains(output, "hello world") {
		t.Errorf("expected message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("expected key=value, got: %s", output)
	}
}

func TestLogger_AnalysisEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelDebug)

	logger.AnalysisStart("comp-1", "doc-1", []string{"gdpr", "hipaa"})
	logger.AnalysisComplete("comp-1", "doc-1", 10*time.Millisecond, 82.5, 1200)
	logger.AnalysisFailed("comp-1", "doc-2", time.Millisecond, errors.New("timeout"))

	lines := decodeLines(t, &buf)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0]["message"] != "analysis_start" || lines[0]["standards"] != "gdpr,hipaa" {
		t.Errorf("unexpected start line: %v", lines[0])
	}
	if lines[1]["score"] != 82.5 {
		t.Errorf("score = %v", lines[1]["score"])
	}
	if lines[2]["level"] != "error" || lines[2]["error"] != "timeout" {
		t.Errorf("unexpected failure line: %v", lines[2])
	}
}

func TestLogger_HandlerFailedIsWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.HandlerFailed("agent.registered", errors.New("boom"))

	lines := decodeLines(t, &buf)
	if lines[0]["level"] != "warn" {
		t.Errorf("level = %v", lines[0]["level"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"WARNING": LevelWarn,
		" error ": LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNop(t *testing.T) {
	// Must not panic or write anywhere observable.
	Nop().WithComponent("x").Error("ignored")
}
