package registry

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/compliancekit/agent"
	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/heartbeat"
	"github.com/vinayprograms/compliancekit/memory"
)

// HealthReport is the registry's view of one agent's health.
type HealthReport struct {
	AgentID       string                    `json:"agentId"`
	Status        agent.Status              `json:"status"`
	Healthy       bool                      `json:"healthy"`
	Uptime        time.Duration             `json:"uptime"`
	Memory        memory.Usage              `json:"memory"`
	RecentMetrics []agent.PerformanceMetric `json:"recentMetrics"`
	RecentErrors  []string                  `json:"recentErrors,omitempty"`
	Provider      *agent.ProbeResult        `json:"provider,omitempty"`
	CheckedAt     time.Time                 `json:"checkedAt"`

	// Error is set when the check itself failed.
	Error string `json:"error,omitempty"`
}

// CheckAgentHealth takes a health snapshot of agent id. It never fails: an
// unknown id, a probe that exceeds the timeout or a panicking agent all
// produce an unhealthy report.
func (r *Registry) CheckAgentHealth(ctx context.Context, id string) HealthReport {
	return r.checkHealth(ctx, id, func(e Event) { r.events.emit(e) })
}

func (r *Registry) checkHealth(ctx context.Context, id string, publish func(Event)) HealthReport {
	now := time.Now()
	report := HealthReport{AgentID: id, Status: agent.StatusInactive, CheckedAt: now}

	r.mu.RLock()
	e, ok := r.entries[id]
	var (
		a         agent.Agent
		status    agent.Status
		createdAt time.Time
	)
	if ok {
		a, status, createdAt = e.agent, e.status, e.registeredAt
	}
	r.mu.RUnlock()

	if !ok {
		report.Error = "agent not registered"
		return report
	}

	report.Status = status
	report.Uptime = now.Sub(createdAt)
	report.RecentMetrics, _ = r.GetMetrics(id, recentMetricCount)

	hs, err := r.probe(ctx, a)
	if err != nil {
		report.Error = err.Error()
	} else {
		report.Status = hs.Status
		report.Healthy = hs.Healthy && hs.Status == agent.StatusActive
		report.Provider = hs.Provider
		report.Memory = hs.Memory
		if hs.Uptime > 0 {
			report.Uptime = hs.Uptime
		}
		if len(report.RecentMetrics) == 0 {
			report.RecentMetrics = hs.RecentMetrics
		}
	}
	for _, m := range report.RecentMetrics {
		if m.Error {
			report.RecentErrors = append(report.RecentErrors, m.ErrorMessage)
		}
	}

	r.mu.Lock()
	if cur, ok := r.entries[id]; ok && cur == e {
		cur.lastCheck = report.CheckedAt
	}
	r.mu.Unlock()

	r.metrics.ObserveHealthCheck(id, report.Healthy)
	if !report.Healthy {
		reason := report.Error
		if reason == "" {
			reason = "status " + string(report.Status)
			if report.Provider != nil && report.Provider.Error != "" {
				reason = report.Provider.Error
			}
		}
		r.logger.HealthCheckFailed(id, reason)
		publish(Event{
			Type:    EventHealthCheckFailed,
			AgentID: id,
			Payload: map[string]interface{}{
				"status": string(report.Status),
				"reason": reason,
			},
		})
	}
	return report
}

// probe runs a.HealthStatus bounded by the configured timeout. A probe that
// outlives the timeout is abandoned; its result is discarded.
func (r *Registry) probe(ctx context.Context, a agent.Agent) (agent.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HealthCheckTimeout)
	defer cancel()

	type outcome struct {
		hs  agent.HealthStatus
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if rec := recover(); rec != nil {
				out.err = errors.RecoverPanic(rec)
			}
			done <- out
		}()
		out.hs = a.HealthStatus(ctx)
	}()

	select {
	case out := <-done:
		return out.hs, out.err
	case <-ctx.Done():
		return agent.HealthStatus{}, errors.Timeout("health check timed out",
			errors.WithAgentID(a.ID()),
			errors.WithOperation("health_check"),
			errors.WithCause(ctx.Err()))
	}
}

// CheckAllAgentsHealth checks every registered agent concurrently and returns
// the reports ordered by agent id.
func (r *Registry) CheckAllAgentsHealth(ctx context.Context) []HealthReport {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	reports := make([]HealthReport, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.HealthConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			reports[i] = r.CheckAgentHealth(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// healthTask is the periodic check scheduled by AutoStart. Unhealthy results
// are reported through events; the task itself does not fail.
//
// Events from a scheduled check are delivered on their own goroutine so a
// handler may unregister the agent: Unregister waits for the task to exit.
func (r *Registry) healthTask(id string) heartbeat.Task {
	return func(ctx context.Context) error {
		r.checkHealth(ctx, id, r.publishDetached)
		return nil
	}
}

func (r *Registry) publishDetached(e Event) {
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		r.events.emit(e)
	}()
}
