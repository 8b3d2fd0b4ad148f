// Package logging provides structured log output for agents, the registry and
// the standards library. It wraps zerolog so every component logs the same
// fields under the same names.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel converts a config string to a Level. Unknown values map to INFO.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "WARNING":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Format selects the output encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// shared holds the writer and level so derived loggers follow SetOutput/SetLevel.
type shared struct {
	mu     sync.RWMutex
	output io.Writer
	format Format
	level  Level
}

// Logger provides structured logging. Derived loggers share output and level
// with their parent.
type Logger struct {
	s         *shared
	component string
	traceID   string
	agentID   string
}

// New creates a new Logger writing JSON lines to stdout at INFO.
func New() *Logger {
	return &Logger{s: &shared{output: os.Stdout, format: FormatJSON, level: LevelInfo}}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := New()
	l.SetOutput(io.Discard)
	return l
}

func (l *Logger) derive() *Logger {
	cp := *l
	return &cp
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	d := l.derive()
	d.component = component
	return d
}

// WithTraceID returns a new logger with the given trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	d := l.derive()
	d.traceID = traceID
	return d
}

// WithAgent returns a new logger tagged with an agent id.
func (l *Logger) WithAgent(agentID string) *Logger {
	d := l.derive()
	d.agentID = agentID
	return d
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.s.mu.Lock()
	l.s.level = level
	l.s.mu.Unlock()
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.s.mu.Lock()
	l.s.output = w
	l.s.mu.Unlock()
}

// SetFormat switches between JSON lines and human-readable console output.
func (l *Logger) SetFormat(f Format) {
	l.s.mu.Lock()
	l.s.format = f
	l.s.mu.Unlock()
}

// Zerolog returns a zerolog.Logger carrying this logger's context fields.
func (l *Logger) Zerolog() zerolog.Logger {
	l.s.mu.RLock()
	out, format, level := l.s.output, l.s.format, l.s.level
	l.s.mu.RUnlock()

	if format == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}
	ctx := zerolog.New(syncWriter{w: out, mu: &l.s.mu}).Level(level.zerolog()).With().Timestamp()
	if l.component != "" {
		ctx = ctx.Str("component", l.component)
	}
	if l.traceID != "" {
		ctx = ctx.Str("trace_id", l.traceID)
	}
	if l.agentID != "" {
		ctx = ctx.Str("agent_id", l.agentID)
	}
	return ctx.Logger()
}

// syncWriter serializes writes to the shared output.
type syncWriter struct {
	w  io.Writer
	mu *sync.RWMutex
}

func (s syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	zl := l.Zerolog()
	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = zl.Debug()
	case LevelWarn:
		ev = zl.Warn()
	case LevelError:
		ev = zl.Error()
	default:
		ev = zl.Info()
	}
	if len(fields) > 0 && fields[0] != nil {
		ev = ev.Fields(fields[0])
	}
	ev.Msg(msg)
}

// --- Event-derived logging methods ---

// AgentRegistered logs a successful registration.
func (l *Logger) AgentRegistered(agentID, kind string, capabilities []string) {
	l.Info("agent_registered", map[string]interface{}{
		"agent_id":     agentID,
		"kind":         kind,
		"capabilities": strings.Join(capabilities, ","),
	})
}

// AgentUnregistered logs the removal of an agent.
func (l *Logger) AgentUnregistered(agentID string) {
	l.Info("agent_unregistered", map[string]interface{}{
		"agent_id": agentID,
	})
}

// StatusChanged logs an agent lifecycle transition.
func (l *Logger) StatusChanged(agentID, from, to string) {
	l.Info("status_changed", map[string]interface{}{
		"agent_id": agentID,
		"from":     from,
		"to":       to,
	})
}

// AnalysisStart logs the start of a document analysis.
func (l *Logger) AnalysisStart(agentID, documentID string, standards []string) {
	l.Debug("analysis_start", map[string]interface{}{
		"agent_id":    agentID,
		"document_id": documentID,
		"standards":   strings.Join(standards, ","),
	})
}

// AnalysisComplete logs a finished analysis.
func (l *Logger) AnalysisComplete(agentID, documentID string, duration time.Duration, score float64, tokens int) {
	l.Info("analysis_complete", map[string]interface{}{
		"agent_id":    agentID,
		"document_id": documentID,
		"duration":    duration.String(),
		"score":       score,
		"tokens":      tokens,
	})
}

// AnalysisFailed logs a failed analysis.
func (l *Logger) AnalysisFailed(agentID, documentID string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"agent_id":    agentID,
		"document_id": documentID,
		"duration":    duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error("analysis_failed", fields)
}

// HealthCheckFailed logs an unhealthy probe result.
func (l *Logger) HealthCheckFailed(agentID, reason string) {
	l.Warn("health_check_failed", map[string]interface{}{
		"agent_id": agentID,
		"reason":   reason,
	})
}

// HandlerFailed logs an event handler that returned an error or panicked.
func (l *Logger) HandlerFailed(event string, err error) {
	fields := map[string]interface{}{"event": event}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Warn("handler_failed", fields)
}
