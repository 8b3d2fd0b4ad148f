// Package agent defines the contract every agent kind satisfies and the
// compliance analysis agent built on it.
//
// An agent owns its configuration, bounded analysis history, performance
// metrics and working memory. It reports status changes and metrics through
// an Observer; it never holds a reference to whoever is observing it.
//
// Lifecycle:
//
//	inactive -> active      provider initialization succeeded
//	inactive -> error       provider initialization failed
//	active -> processing    analysis started
//	processing -> active    analysis succeeded
//	processing -> error     analysis failed
//	any -> inactive         shutdown
//
// There is no automatic way out of error. Reinitialize moves an agent back
// to inactive and initializes its provider again.
package agent

import (
	"context"
	"time"
)

// Kind is the closed set of agent kinds.
type Kind string

const (
	KindCompliance Kind = "compliance"
	KindRisk       Kind = "risk"
	KindAudit      Kind = "audit"
	KindPolicy     Kind = "policy"
)

// Kinds returns every known kind.
func Kinds() []Kind {
	return []Kind{KindCompliance, KindRisk, KindAudit, KindPolicy}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCompliance, KindRisk, KindAudit, KindPolicy:
		return true
	}
	return false
}

// Status is an agent's lifecycle state.
type Status string

const (
	StatusInactive   Status = "inactive"
	StatusActive     Status = "active"
	StatusProcessing Status = "processing"
	StatusError      Status = "error"
)

// Statuses returns every known status.
func Statuses() []Status {
	return []Status{StatusInactive, StatusActive, StatusProcessing, StatusError}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusProcessing, StatusError:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusInactive:   {StatusActive, StatusError},
	StatusActive:     {StatusProcessing},
	StatusProcessing: {StatusActive, StatusError},
}

// CanTransition reports whether an agent may move from one status to another.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == StatusInactive {
		return from != StatusInactive
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Observer receives an agent's lifecycle reports. Calls for one agent are
// delivered in the order the changes happened and never while the agent
// holds its own locks, so observers may read the agent back.
type Observer interface {
	StatusChanged(agentID string, from, to Status)
	MetricRecorded(m PerformanceMetric)
}

// Agent is implemented by every agent kind.
type Agent interface {
	ID() string
	Name() string
	Kind() Kind
	Status() Status
	Capabilities() []string
	CreatedAt() time.Time

	// Analyze evaluates doc against the given standard ids.
	Analyze(ctx context.Context, doc Document, standards []string, opts AnalysisOptions) (*AnalysisResult, error)

	// HealthStatus returns a point-in-time health snapshot.
	HealthStatus(ctx context.Context) HealthStatus

	// Metrics returns up to limit recent metrics, oldest first. Zero means all.
	Metrics(limit int) []PerformanceMetric

	// SetObserver installs o, replacing any previous observer. Nil removes it.
	SetObserver(o Observer)

	// Shutdown releases resources and moves the agent to inactive. It is idempotent.
	Shutdown(ctx context.Context) error
}
