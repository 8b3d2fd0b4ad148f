package registry

import (
	"time"

	"github.com/vinayprograms/compliancekit/agent"
	"github.com/vinayprograms/compliancekit/errors"
)

// AggregatedMetrics summarises every agent's metric buffer.
type AggregatedMetrics struct {
	TotalAgents         int           `json:"totalAgents"`
	ActiveAgents        int           `json:"activeAgents"`
	AverageResponseTime time.Duration `json:"averageResponseTime"`
	TotalTokenUsage     int           `json:"totalTokenUsage"`
	ErrorRate           float64       `json:"errorRate"`
	TotalSamples        int           `json:"totalSamples"`
}

// AddMetrics appends m to agent id's buffer, evicting the oldest sample when
// the buffer is full.
func (r *Registry) AddMetrics(id string, m agent.PerformanceMetric) error {
	if err := r.checkOpen(); err != nil {
		return err
	}

	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return r.notFound(id)
	}

	if m.AgentID == "" {
		m.AgentID = id
	}
	if m.AgentID != id {
		return errors.Validation("metric agent id does not match",
			errors.WithAgentID(id),
			errors.WithMetadata("metric_agent_id", m.AgentID))
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	e.metrics.Push(m)

	r.events.emit(Event{
		Type:    EventMetricsRecorded,
		AgentID: id,
		Payload: map[string]interface{}{
			"operation": m.Operation,
			"duration":  m.Duration.String(),
			"tokens":    m.TokenUsage.TotalTokens,
			"error":     m.Error,
		},
	})
	return nil
}

// GetMetrics returns agent id's metrics, oldest first. A positive limit
// returns only the most recent limit samples.
func (r *Registry) GetMetrics(id string, limit int) ([]agent.PerformanceMetric, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, r.notFound(id)
	}
	if limit > 0 {
		return e.metrics.Last(limit), nil
	}
	return e.metrics.Items(), nil
}

// GetAggregatedMetrics walks every buffer once. Unregistered agents no
// longer contribute.
func (r *Registry) GetAggregatedMetrics() AggregatedMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		agg      AggregatedMetrics
		total    time.Duration
		failures int
	)
	agg.TotalAgents = len(r.entries)
	for _, e := range r.entries {
		if e.status == agent.StatusActive {
			agg.ActiveAgents++
		}
		for _, m := range e.metrics.Items() {
			agg.TotalSamples++
			total += m.Duration
			agg.TotalTokenUsage += m.TokenUsage.TotalTokens
			if m.Error {
				failures++
			}
		}
	}
	if agg.TotalSamples > 0 {
		agg.AverageResponseTime = total / time.Duration(agg.TotalSamples)
		agg.ErrorRate = float64(failures) / float64(agg.TotalSamples)
	}
	return agg
}
