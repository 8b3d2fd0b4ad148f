package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/compliancekit/agent"
	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/heartbeat"
	"github.com/vinayprograms/compliancekit/logging"
	"github.com/vinayprograms/compliancekit/memory"
	"github.com/vinayprograms/compliancekit/telemetry"
)

// entry is the mutable record behind an Entry snapshot. Fields other than
// metrics are guarded by Registry.mu.
type entry struct {
	agent        agent.Agent
	kind         agent.Kind
	status       agent.Status
	capabilities []string
	dependencies []string
	interval     time.Duration
	lastCheck    time.Time
	registeredAt time.Time
	updatedAt    time.Time
	metrics      *memory.Ring[agent.PerformanceMetric]
}

func (e *entry) snapshot() Entry {
	return Entry{
		ID:                  e.agent.ID(),
		Name:                e.agent.Name(),
		Kind:                e.kind,
		Status:              e.status,
		Capabilities:        append([]string(nil), e.capabilities...),
		Dependencies:        append([]string(nil), e.dependencies...),
		HealthCheckInterval: e.interval,
		LastHealthCheck:     e.lastCheck,
		RegisteredAt:        e.registeredAt,
		UpdatedAt:           e.updatedAt,
		Agent:               e.agent,
	}
}

// Registry is an in-memory agent directory. It is safe for concurrent use.
//
// Read operations take a read lock only and never wait on agent work. Event
// handlers run synchronously on the goroutine that caused the event and may
// call back into the registry. Health failures found by periodic checks are
// the exception: they are delivered on a separate goroutine.
type Registry struct {
	cfg Config

	mu      sync.RWMutex
	entries map[string]*entry
	closed  atomic.Bool

	events    *eventBus
	scheduler *heartbeat.Scheduler

	// pending counts detached event deliveries.
	pending sync.WaitGroup

	logger  *logging.Logger
	metrics *telemetry.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics publishes agent gauges, event counters and health results to m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New creates an empty registry.
func New(cfg Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*entry),
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("registry")
	r.events = newEventBus(r.logger, r.metrics)
	r.scheduler = heartbeat.NewScheduler(heartbeat.WithLogger(r.logger))
	return r
}

func (r *Registry) checkOpen() error {
	if r.closed.Load() {
		return errors.Unavailable("registry is shut down")
	}
	return nil
}

// Register adds a to the registry.
//
// It fails with ALREADY_EXISTS when the id is taken and with DEPENDENCY when a
// declared dependency is missing or not active. A failed registration leaves
// the registry unchanged.
func (r *Registry) Register(ctx context.Context, a agent.Agent, opts RegisterOptions) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if a == nil {
		return errors.Validation("agent is required")
	}
	id := a.ID()
	if strings.TrimSpace(id) == "" {
		return errors.Validation("agent id is required")
	}
	if !a.Kind().Valid() {
		return errors.Validation("unknown agent kind: "+string(a.Kind()), errors.WithAgentID(id))
	}

	caps := opts.Capabilities
	if len(caps) == 0 {
		caps = a.Capabilities()
	}
	interval := opts.HealthCheckInterval
	if interval <= 0 {
		interval = r.cfg.HealthCheckInterval
	}
	obs := &agentObserver{registry: r, id: id}

	r.mu.Lock()
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return errors.AlreadyExists("agent already registered: "+id, errors.WithAgentID(id))
	}
	if err := r.checkDependenciesLocked(id, opts.Dependencies); err != nil {
		r.mu.Unlock()
		return err
	}

	// Observe first, then read the status: a transition in between reaches
	// UpdateAgentStatus after this lock is released and finds the entry.
	a.SetObserver(obs)
	now := time.Now()
	e := &entry{
		agent:        a,
		kind:         a.Kind(),
		status:       a.Status(),
		capabilities: normalizeCapabilities(caps),
		dependencies: append([]string(nil), opts.Dependencies...),
		interval:     interval,
		registeredAt: now,
		updatedAt:    now,
		metrics:      memory.NewRing[agent.PerformanceMetric](r.cfg.MetricsBufferSize),
	}
	r.entries[id] = e
	r.mu.Unlock()

	if opts.AutoStart {
		if err := r.scheduler.Schedule(id, interval, r.healthTask(id)); err != nil {
			r.mu.Lock()
			delete(r.entries, id)
			r.mu.Unlock()
			a.SetObserver(nil)
			return errors.Wrap(err, "starting health check", errors.WithAgentID(id))
		}
	}

	r.logger.AgentRegistered(id, string(e.kind), e.capabilities)
	r.publishCounts()
	r.events.emit(Event{
		Type:    EventAgentRegistered,
		AgentID: id,
		Payload: map[string]interface{}{
			"kind":         string(e.kind),
			"status":       string(e.status),
			"capabilities": e.capabilities,
			"dependencies": e.dependencies,
		},
	})
	return nil
}

func (r *Registry) checkDependenciesLocked(id string, deps []string) error {
	for _, dep := range deps {
		if dep == id {
			return errors.Dependency("agent cannot depend on itself",
				errors.WithAgentID(id),
				errors.WithMetadata("dependency", dep))
		}
		d, ok := r.entries[dep]
		if !ok {
			return errors.Dependency("dependency not registered: "+dep,
				errors.WithAgentID(id),
				errors.WithMetadata("dependency", dep))
		}
		if d.status != agent.StatusActive {
			return errors.Dependency("dependency "+dep+" is "+string(d.status),
				errors.WithAgentID(id),
				errors.WithMetadata("dependency", dep),
				errors.WithMetadata("dependency_status", string(d.status)))
		}
	}
	return nil
}

// Unregister removes agent id. Its health check is cancelled before the
// entry is removed. The agent itself keeps running.
func (r *Registry) Unregister(id string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.remove(id)
}

func (r *Registry) remove(id string) error {
	r.mu.RLock()
	_, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return r.notFound(id)
	}

	r.scheduler.Cancel(id)

	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return r.notFound(id)
	}
	prev := e.status
	delete(r.entries, id)
	r.mu.Unlock()

	// The agent keeps its own status; only the observer is detached.
	e.agent.SetObserver(nil)

	r.logger.AgentUnregistered(id)
	r.publishCounts()
	r.events.emit(Event{
		Type:    EventAgentUnregistered,
		AgentID: id,
		Payload: map[string]interface{}{"previousStatus": string(prev)},
	})
	return nil
}

func (r *Registry) notFound(id string) error {
	return errors.NotFound("agent not found: "+id, errors.WithAgentID(id))
}

// GetAgent returns the entry for id.
func (r *Registry) GetAgent(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Entry{}, r.notFound(id)
	}
	return e.snapshot(), nil
}

// GetAgents returns the entries matching f, ordered by id.
func (r *Registry) GetAgents(f Filter) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		s := e.snapshot()
		if f.Matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindAgentsByCapability returns agents that have every capability in caps.
func (r *Registry) FindAgentsByCapability(caps ...string) []Entry {
	return r.GetAgents(Filter{Capabilities: caps})
}

// GetAgentsByType returns agents of kind k.
func (r *Registry) GetAgentsByType(k agent.Kind) []Entry {
	return r.GetAgents(Filter{Kind: k})
}

// GetActiveAgents returns agents whose status is active.
func (r *Registry) GetActiveAgents() []Entry {
	return r.GetAgents(Filter{Status: agent.StatusActive})
}

// UpdateAgentStatus records a status reported by agent id. Registered agents
// report through an observer, so callers rarely need this directly. The move
// must be a legal lifecycle transition; reporting the current status is a
// no-op.
func (r *Registry) UpdateAgentStatus(id string, status agent.Status) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if !status.Valid() {
		return errors.Validation("unknown status: "+string(status), errors.WithAgentID(id))
	}

	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return r.notFound(id)
	}
	prev := e.status
	if prev == status {
		r.mu.Unlock()
		return nil
	}
	if !agent.CanTransition(prev, status) {
		r.mu.Unlock()
		return errors.Precondition("illegal status transition "+string(prev)+" -> "+string(status),
			errors.WithAgentID(id),
			errors.WithMetadata("from", string(prev)),
			errors.WithMetadata("to", string(status)))
	}
	e.status = status
	e.updatedAt = time.Now()
	r.mu.Unlock()

	r.logger.StatusChanged(id, string(prev), string(status))
	r.publishCounts()
	r.events.emit(Event{
		Type:    EventStatusChanged,
		AgentID: id,
		Payload: map[string]interface{}{"from": string(prev), "to": string(status)},
	})
	return nil
}

// AddEventListener subscribes h to events of type t, or to all events with EventAll.
func (r *Registry) AddEventListener(t EventType, h Handler) ListenerID {
	return r.events.add(t, h)
}

// RemoveEventListener removes a subscription. It reports whether it existed.
func (r *Registry) RemoveEventListener(t EventType, id ListenerID) bool {
	return r.events.remove(t, id)
}

// GetStats summarises the registry.
func (r *Registry) GetStats() Stats {
	entries := r.GetAgents(Filter{})
	st := Stats{
		TotalAgents:  len(entries),
		ByStatus:     make(map[agent.Status]int),
		ByKind:       make(map[agent.Kind]int),
		Capabilities: capabilityHistogram(entries),
		Listeners:    r.events.count(),
		HealthTasks:  r.scheduler.Active(),
		Closed:       r.closed.Load(),
	}
	for _, e := range entries {
		st.ByStatus[e.Status]++
		st.ByKind[e.Kind]++
	}
	return st
}

// HealthTasks returns the number of live periodic health checks.
func (r *Registry) HealthTasks() int {
	return r.scheduler.Active()
}

// Shutdown unregisters and shuts down every agent, clears all listeners and
// stops health checks. Failures are logged and do not stop the loop; they are
// returned joined. Later calls are no-ops and other operations fail with
// UNAVAILABLE.
func (r *Registry) Shutdown(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	agents := make(map[string]agent.Agent, len(r.entries))
	for id, e := range r.entries {
		ids = append(ids, id)
		agents[id] = e.agent
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := r.remove(id); err != nil {
			r.logger.Warn("unregister_failed", map[string]interface{}{"agent_id": id, "error": err.Error()})
			errs = append(errs, err)
		}
		if err := shutdownAgent(ctx, agents[id]); err != nil {
			r.logger.Warn("agent_shutdown_failed", map[string]interface{}{"agent_id": id, "error": err.Error()})
			errs = append(errs, err)
		}
	}

	r.scheduler.Stop()
	r.pending.Wait()
	r.events.clear()
	r.logger.Info("registry_shutdown", map[string]interface{}{"agents": len(ids)})
	return errors.Join(errs...)
}

func shutdownAgent(ctx context.Context, a agent.Agent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.RecoverPanic(rec)
		}
	}()
	return a.Shutdown(ctx)
}

// publishCounts updates the agents-by-status gauge.
func (r *Registry) publishCounts() {
	if r.metrics == nil {
		return
	}
	counts := make(map[string]int)
	for _, s := range agent.Statuses() {
		counts[string(s)] = 0
	}
	r.mu.RLock()
	for _, e := range r.entries {
		counts[string(e.status)]++
	}
	r.mu.RUnlock()
	r.metrics.SetAgentCounts(counts)
}

// agentObserver forwards one agent's reports into the registry.
type agentObserver struct {
	registry *Registry
	id       string
}

func (o *agentObserver) StatusChanged(_ string, _, to agent.Status) {
	if err := o.registry.UpdateAgentStatus(o.id, to); err != nil && !errors.Is(err, errors.ErrCodeNotFound) && !errors.Is(err, errors.ErrCodeUnavailable) {
		o.registry.logger.Warn("status_report_rejected", map[string]interface{}{"agent_id": o.id, "to": string(to), "error": err.Error()})
	}
}

func (o *agentObserver) MetricRecorded(m agent.PerformanceMetric) {
	_ = o.registry.AddMetrics(o.id, m)
}
