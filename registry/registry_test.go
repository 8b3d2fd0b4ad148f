package registry

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vinayprograms/compliancekit/agent"
	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/llm"
	"github.com/vinayprograms/compliancekit/telemetry"
)

// stubAgent is a minimal agent whose status is driven by the test.
type stubAgent struct {
	id   string
	kind agent.Kind
	caps []string

	mu         sync.Mutex
	status     agent.Status
	observer   agent.Observer
	created    time.Time
	healthHook func() agent.HealthStatus
	shutdowns  int32
	shutdownFn func() error
}

func newStub(id string, caps ...string) *stubAgent {
	return &stubAgent{
		id:      id,
		kind:    agent.KindCompliance,
		caps:    caps,
		status:  agent.StatusActive,
		created: time.Now(),
	}
}

func (s *stubAgent) ID() string                            { return s.id }
func (s *stubAgent) Name() string                          { return "stub " + s.id }
func (s *stubAgent) Kind() agent.Kind                      { return s.kind }
func (s *stubAgent) Capabilities() []string                { return s.caps }
func (s *stubAgent) CreatedAt() time.Time                  { return s.created }
func (s *stubAgent) Metrics(int) []agent.PerformanceMetric { return nil }

func (s *stubAgent) Status() agent.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stubAgent) Analyze(context.Context, agent.Document, []string, agent.AnalysisOptions) (*agent.AnalysisResult, error) {
	return nil, errors.Internal("not implemented")
}

func (s *stubAgent) HealthStatus(context.Context) agent.HealthStatus {
	if s.healthHook != nil {
		return s.healthHook()
	}
	st := s.Status()
	return agent.HealthStatus{
		AgentID:   s.id,
		Status:    st,
		Healthy:   st == agent.StatusActive,
		Uptime:    time.Since(s.created),
		CheckedAt: time.Now(),
	}
}

func (s *stubAgent) SetObserver(o agent.Observer) {
	s.mu.Lock()
	s.observer = o
	s.mu.Unlock()
}

func (s *stubAgent) Shutdown(context.Context) error {
	atomic.AddInt32(&s.shutdowns, 1)
	if s.shutdownFn != nil {
		return s.shutdownFn()
	}
	s.setStatus(agent.StatusInactive)
	return nil
}

// setStatus changes status and reports it like a real agent would.
func (s *stubAgent) setStatus(to agent.Status) {
	s.mu.Lock()
	from := s.status
	s.status = to
	o := s.observer
	s.mu.Unlock()
	if o != nil && from != to {
		o.StatusChanged(s.id, from, to)
	}
}

func (s *stubAgent) record(m agent.PerformanceMetric) {
	s.mu.Lock()
	o := s.observer
	s.mu.Unlock()
	if o != nil {
		o.MetricRecorded(m)
	}
}

func (s *stubAgent) hasObserver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observer != nil
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r := New(Config{HealthCheckTimeout: 200 * time.Millisecond}, opts...)
	t.Cleanup(func() { r.Shutdown(context.Background()) })
	return r
}

func mustRegister(t *testing.T, r *Registry, a agent.Agent, opts RegisterOptions) {
	t.Helper()
	if err := r.Register(context.Background(), a, opts); err != nil {
		t.Fatalf("Register(%s) error = %v", a.ID(), err)
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func TestRegister(t *testing.T) {
	r := newTestRegistry(t)
	var log eventLog
	r.AddEventListener(EventAgentRegistered, log.handle)

	a := newStub("a1", "Gap-Analysis", "document-analysis", "gap-analysis")
	mustRegister(t, r, a, RegisterOptions{})

	e, err := r.GetAgent("a1")
	if err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if e.Status != agent.StatusActive || e.Kind != agent.KindCompliance {
		t.Errorf("entry = %+v", e)
	}
	want := []string{"document-analysis", "gap-analysis"}
	if fmt.Sprint(e.Capabilities) != fmt.Sprint(want) {
		t.Errorf("Capabilities = %v, want %v", e.Capabilities, want)
	}
	if e.HealthCheckInterval != DefaultHealthCheckInterval {
		t.Errorf("HealthCheckInterval = %v", e.HealthCheckInterval)
	}
	if !a.hasObserver() {
		t.Error("registry did not install an observer")
	}
	if got := log.types(); len(got) != 1 || got[0] != EventAgentRegistered {
		t.Errorf("events = %v", got)
	}
	if log.events[0].ID == "" || log.events[0].Timestamp.IsZero() {
		t.Errorf("event not stamped: %+v", log.events[0])
	}
}

func TestRegisterRejected(t *testing.T) {
	tests := []struct {
		name  string
		agent agent.Agent
		opts  RegisterOptions
		code  errors.ErrorCode
	}{
		{"nil agent", nil, RegisterOptions{}, errors.ErrCodeInvalidInput},
		{"empty id", newStub(""), RegisterOptions{}, errors.ErrCodeInvalidInput},
		{"bad kind", &stubAgent{id: "k", kind: "robot", status: agent.StatusActive}, RegisterOptions{}, errors.ErrCodeInvalidInput},
		{"duplicate", newStub("base"), RegisterOptions{}, errors.ErrCodeAlreadyExists},
		{"missing dependency", newStub("d1"), RegisterOptions{Dependencies: []string{"ghost"}}, errors.ErrCodeDependency},
		{"inactive dependency", newStub("d2"), RegisterOptions{Dependencies: []string{"sleeper"}}, errors.ErrCodeDependency},
		{"self dependency", newStub("d3"), RegisterOptions{Dependencies: []string{"d3"}}, errors.ErrCodeDependency},
		{"one of two missing", newStub("d4"), RegisterOptions{Dependencies: []string{"base", "ghost"}}, errors.ErrCodeDependency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			mustRegister(t, r, newStub("base"), RegisterOptions{})
			sleeper := newStub("sleeper")
			sleeper.status = agent.StatusError
			mustRegister(t, r, sleeper, RegisterOptions{})

			var log eventLog
			r.AddEventListener(EventAll, log.handle)
			before := r.GetStats()

			err := r.Register(context.Background(), tt.agent, tt.opts)
			if !errors.Is(err, tt.code) {
				t.Fatalf("Register() error = %v, want %s", err, tt.code)
			}

			after := r.GetStats()
			if after.TotalAgents != before.TotalAgents {
				t.Errorf("TotalAgents = %d, want %d", after.TotalAgents, before.TotalAgents)
			}
			if got := log.types(); len(got) != 0 {
				t.Errorf("events emitted on failure: %v", got)
			}
			if s, ok := tt.agent.(*stubAgent); ok && s.id != "base" && s.hasObserver() {
				t.Error("observer left on a rejected agent")
			}
		})
	}
}

func TestRegisterDuplicateKeepsOriginal(t *testing.T) {
	r := newTestRegistry(t)
	orig := newStub("dup", "gap-analysis")
	mustRegister(t, r, orig, RegisterOptions{})

	err := r.Register(context.Background(), newStub("dup", "risk-assessment"), RegisterOptions{})
	if !errors.Is(err, errors.ErrCodeAlreadyExists) {
		t.Fatalf("error = %v", err)
	}
	e, _ := r.GetAgent("dup")
	if e.Agent != orig || !HasCapabilities(e.Capabilities, "gap-analysis") {
		t.Errorf("original entry replaced: %+v", e)
	}
}

func TestRegisterDependencyOrder(t *testing.T) {
	r := newTestRegistry(t)
	child := newStub("child")

	err := r.Register(context.Background(), child, RegisterOptions{Dependencies: []string{"parent"}})
	if !errors.Is(err, errors.ErrCodeDependency) {
		t.Fatalf("error = %v, want DEPENDENCY", err)
	}
	if meta := errors.GetMetadata(err); meta["dependency"] != "parent" {
		t.Errorf("metadata = %v", meta)
	}

	mustRegister(t, r, newStub("parent"), RegisterOptions{})
	mustRegister(t, r, child, RegisterOptions{Dependencies: []string{"parent"}})

	e, _ := r.GetAgent("child")
	if len(e.Dependencies) != 1 || e.Dependencies[0] != "parent" {
		t.Errorf("Dependencies = %v", e.Dependencies)
	}
}

func TestUnregister(t *testing.T) {
	r := newTestRegistry(t)
	var log eventLog
	r.AddEventListener(EventAgentUnregistered, log.handle)

	a := newStub("a1")
	mustRegister(t, r, a, RegisterOptions{})

	if err := r.Unregister("a1"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if _, err := r.GetAgent("a1"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("GetAgent() after unregister error = %v", err)
	}
	if a.hasObserver() {
		t.Error("observer not removed")
	}
	if a.Status() != agent.StatusActive {
		t.Error("unregister must not touch the agent's own state")
	}
	if got := log.types(); len(got) != 1 {
		t.Fatalf("events = %v", got)
	}
	if log.events[0].Payload["previousStatus"] != "active" {
		t.Errorf("payload = %v", log.events[0].Payload)
	}

	if err := r.Unregister("a1"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("second Unregister() error = %v, want NOT_FOUND", err)
	}
}

func TestGetAgentsFilter(t *testing.T) {
	r := newTestRegistry(t)

	a := newStub("a", "document-analysis", "gap-analysis")
	b := newStub("b", "gap-analysis")
	c := newStub("c", "document-analysis", "gap-analysis", "risk-assessment")
	c.kind = agent.KindRisk
	d := newStub("d", "document-analysis", "gap-analysis")
	d.status = agent.StatusError
	for _, x := range []*stubAgent{c, a, d, b} {
		mustRegister(t, r, x, RegisterOptions{})
	}

	ids := func(es []Entry) string {
		out := make([]string, len(es))
		for i, e := range es {
			out[i] = e.ID
		}
		return fmt.Sprint(out)
	}

	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"all sorted", Filter{}, "[a b c d]"},
		{"kind", Filter{Kind: agent.KindRisk}, "[c]"},
		{"status", Filter{Status: agent.StatusError}, "[d]"},
		{"capabilities AND", Filter{Capabilities: []string{"document-analysis", "gap-analysis"}}, "[a c d]"},
		{"capabilities case-insensitive", Filter{Capabilities: []string{" Risk-Assessment "}}, "[c]"},
		{"combined", Filter{Status: agent.StatusActive, Capabilities: []string{"document-analysis"}}, "[a c]"},
		{"no match", Filter{Capabilities: []string{"translation"}}, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(r.GetAgents(tt.filter)); got != tt.want {
				t.Errorf("GetAgents() = %s, want %s", got, tt.want)
			}
		})
	}

	if got := ids(r.FindAgentsByCapability("gap-analysis", "risk-assessment")); got != "[c]" {
		t.Errorf("FindAgentsByCapability() = %s", got)
	}
	if got := ids(r.GetAgentsByType(agent.KindCompliance)); got != "[a b d]" {
		t.Errorf("GetAgentsByType() = %s", got)
	}
	if got := ids(r.GetActiveAgents()); got != "[a b c]" {
		t.Errorf("GetActiveAgents() = %s", got)
	}
}

func TestStatusPropagation(t *testing.T) {
	r := newTestRegistry(t)
	var log eventLog
	r.AddEventListener(EventStatusChanged, log.handle)

	a := newStub("a1")
	mustRegister(t, r, a, RegisterOptions{})

	a.setStatus(agent.StatusProcessing)
	a.setStatus(agent.StatusError)

	e, _ := r.GetAgent("a1")
	if e.Status != agent.StatusError {
		t.Errorf("Status = %s, want error", e.Status)
	}
	if len(log.events) != 2 {
		t.Fatalf("events = %d, want 2", len(log.events))
	}
	last := log.events[1].Payload
	if last["from"] != "processing" || last["to"] != "error" {
		t.Errorf("payload = %v", last)
	}
}

func TestUpdateAgentStatus(t *testing.T) {
	r := newTestRegistry(t)
	mustRegister(t, r, newStub("a1"), RegisterOptions{})

	tests := []struct {
		name   string
		id     string
		status agent.Status
		code   errors.ErrorCode
	}{
		{"unknown agent", "nope", agent.StatusActive, errors.ErrCodeNotFound},
		{"unknown status", "a1", "sleeping", errors.ErrCodeInvalidInput},
		{"illegal transition", "a1", agent.StatusError, errors.ErrCodePrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.UpdateAgentStatus(tt.id, tt.status); !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}

	var log eventLog
	r.AddEventListener(EventStatusChanged, log.handle)
	if err := r.UpdateAgentStatus("a1", agent.StatusActive); err != nil {
		t.Errorf("same status error = %v", err)
	}
	if len(log.events) != 0 {
		t.Error("same status emitted an event")
	}
	if err := r.UpdateAgentStatus("a1", agent.StatusInactive); err != nil {
		t.Errorf("to inactive error = %v", err)
	}
}

func TestMetricsBuffer(t *testing.T) {
	r := newTestRegistry(t)
	a := newStub("a1")
	mustRegister(t, r, a, RegisterOptions{})

	for i := 0; i < 150; i++ {
		a.record(agent.PerformanceMetric{Operation: "analyze", Duration: time.Duration(i) * time.Millisecond})
	}

	all, err := r.GetMetrics("a1", 0)
	if err != nil {
		t.Fatalf("GetMetrics() error = %v", err)
	}
	if len(all) != DefaultMetricsBufferSize {
		t.Fatalf("len = %d, want %d", len(all), DefaultMetricsBufferSize)
	}
	if all[0].Duration != 50*time.Millisecond {
		t.Errorf("oldest = %v, want 50ms", all[0].Duration)
	}
	if all[0].AgentID != "a1" || all[0].Timestamp.IsZero() {
		t.Errorf("metric not stamped: %+v", all[0])
	}

	last, _ := r.GetMetrics("a1", 3)
	if len(last) != 3 || last[2].Duration != 149*time.Millisecond {
		t.Errorf("GetMetrics(3) = %v", last)
	}

	if _, err := r.GetMetrics("nope", 0); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("unknown agent error = %v", err)
	}
	err = r.AddMetrics("a1", agent.PerformanceMetric{AgentID: "other"})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("mismatched agent id error = %v", err)
	}
}

func TestAggregatedMetrics(t *testing.T) {
	r := newTestRegistry(t)
	a := newStub("a")
	b := newStub("b")
	c := newStub("c")
	c.status = agent.StatusError
	for _, x := range []*stubAgent{a, b, c} {
		mustRegister(t, r, x, RegisterOptions{})
	}

	metric := func(d time.Duration, tokens int, failed bool) agent.PerformanceMetric {
		return agent.PerformanceMetric{
			Operation:  "analyze",
			Duration:   d,
			TokenUsage: agent.TokenUsage{TotalTokens: tokens},
			Error:      failed,
		}
	}
	r.AddMetrics("a", metric(100*time.Millisecond, 150, false))
	r.AddMetrics("a", metric(300*time.Millisecond, 250, false))
	r.AddMetrics("b", metric(200*time.Millisecond, 100, true))
	r.AddMetrics("c", metric(400*time.Millisecond, 0, true))

	agg := r.GetAggregatedMetrics()
	want := AggregatedMetrics{
		TotalAgents:         3,
		ActiveAgents:        2,
		AverageResponseTime: 250 * time.Millisecond,
		TotalTokenUsage:     500,
		ErrorRate:           0.5,
		TotalSamples:        4,
	}
	if agg != want {
		t.Errorf("GetAggregatedMetrics() = %+v, want %+v", agg, want)
	}

	if err := r.Unregister("a"); err != nil {
		t.Fatal(err)
	}
	agg = r.GetAggregatedMetrics()
	if agg.TotalTokenUsage != 100 || agg.TotalSamples != 2 {
		t.Errorf("after unregister = %+v", agg)
	}
}

func TestAggregatedMetricsEmpty(t *testing.T) {
	r := newTestRegistry(t)
	if agg := r.GetAggregatedMetrics(); agg != (AggregatedMetrics{}) {
		t.Errorf("GetAggregatedMetrics() = %+v", agg)
	}
}

func TestEventIsolation(t *testing.T) {
	r := newTestRegistry(t)

	var order []string
	var mu sync.Mutex
	note := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	r.AddEventListener(EventAgentRegistered, func(Event) error {
		note("first")
		return stderrors.New("boom")
	})
	r.AddEventListener(EventAgentRegistered, func(Event) error {
		note("second")
		panic("handler panic")
	})
	r.AddEventListener(EventAgentRegistered, func(Event) error {
		note("third")
		return nil
	})
	r.AddEventListener(EventAll, func(e Event) error {
		note("all:" + string(e.Type))
		return nil
	})

	if err := r.Register(context.Background(), newStub("a1"), RegisterOptions{}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	want := "[first second third all:agent.registered]"
	if got := fmt.Sprint(order); got != want {
		t.Errorf("delivery = %s, want %s", got, want)
	}
}

func TestEventHandlerFailureMetrics(t *testing.T) {
	m := telemetry.NewMetrics()
	r := newTestRegistry(t, WithMetrics(m))
	r.AddEventListener(EventAgentRegistered, func(Event) error { return stderrors.New("boom") })
	mustRegister(t, r, newStub("a1"), RegisterOptions{})
	mustRegister(t, r, newStub("a2"), RegisterOptions{})

	if r.GetStats().TotalAgents != 2 {
		t.Error("publisher affected by failing handler")
	}
	if got := testutil.ToFloat64(m.HandlerFailures.WithLabelValues(string(EventAgentRegistered))); got != 2 {
		t.Errorf("handler failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues(string(EventAgentRegistered))); got != 2 {
		t.Errorf("events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.AgentsByStatus.WithLabelValues(string(agent.StatusActive))); got != 2 {
		t.Errorf("active gauge = %v, want 2", got)
	}
}

func TestRemoveEventListener(t *testing.T) {
	r := newTestRegistry(t)
	var calls int32
	id := r.AddEventListener(EventAgentRegistered, func(Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	mustRegister(t, r, newStub("a1"), RegisterOptions{})
	if !r.RemoveEventListener(EventAgentRegistered, id) {
		t.Fatal("RemoveEventListener() = false")
	}
	if r.RemoveEventListener(EventAgentRegistered, id) {
		t.Error("second RemoveEventListener() = true")
	}
	if r.RemoveEventListener(EventAgentUnregistered, id) {
		t.Error("removal under the wrong type succeeded")
	}
	mustRegister(t, r, newStub("a2"), RegisterOptions{})

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if n := r.GetStats().Listeners; n != 0 {
		t.Errorf("Listeners = %d", n)
	}
}

func TestCheckAgentHealth(t *testing.T) {
	t.Run("active", func(t *testing.T) {
		r := newTestRegistry(t)
		a := newStub("a1")
		mustRegister(t, r, a, RegisterOptions{})
		a.record(agent.PerformanceMetric{Operation: "analyze", Error: true, ErrorMessage: "provider down"})
		a.record(agent.PerformanceMetric{Operation: "analyze"})

		rep := r.CheckAgentHealth(context.Background(), "a1")
		if !rep.Healthy || rep.Status != agent.StatusActive || rep.Error != "" {
			t.Errorf("report = %+v", rep)
		}
		if len(rep.RecentMetrics) != 2 {
			t.Errorf("RecentMetrics = %d", len(rep.RecentMetrics))
		}
		if len(rep.RecentErrors) != 1 || rep.RecentErrors[0] != "provider down" {
			t.Errorf("RecentErrors = %v", rep.RecentErrors)
		}
		if rep.Uptime <= 0 {
			t.Errorf("Uptime = %v", rep.Uptime)
		}
		e, _ := r.GetAgent("a1")
		if !e.LastHealthCheck.Equal(rep.CheckedAt) {
			t.Errorf("LastHealthCheck = %v, want %v", e.LastHealthCheck, rep.CheckedAt)
		}
	})

	t.Run("last ten metrics", func(t *testing.T) {
		r := newTestRegistry(t)
		a := newStub("a1")
		mustRegister(t, r, a, RegisterOptions{})
		for i := 0; i < 25; i++ {
			a.record(agent.PerformanceMetric{Operation: "analyze"})
		}
		if rep := r.CheckAgentHealth(context.Background(), "a1"); len(rep.RecentMetrics) != 10 {
			t.Errorf("RecentMetrics = %d, want 10", len(rep.RecentMetrics))
		}
	})

	t.Run("not active", func(t *testing.T) {
		r := newTestRegistry(t)
		var log eventLog
		r.AddEventListener(EventHealthCheckFailed, log.handle)
		a := newStub("a1")
		a.status = agent.StatusError
		mustRegister(t, r, a, RegisterOptions{})

		rep := r.CheckAgentHealth(context.Background(), "a1")
		if rep.Healthy {
			t.Error("error agent reported healthy")
		}
		if len(log.events) != 1 || log.events[0].Payload["reason"] != "status error" {
			t.Errorf("events = %+v", log.events)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		r := newTestRegistry(t)
		rep := r.CheckAgentHealth(context.Background(), "ghost")
		if rep.Healthy || rep.Error == "" || rep.AgentID != "ghost" {
			t.Errorf("report = %+v", rep)
		}
	})

	t.Run("panicking agent", func(t *testing.T) {
		r := newTestRegistry(t)
		a := newStub("a1")
		a.healthHook = func() agent.HealthStatus { panic("health check exploded") }
		mustRegister(t, r, a, RegisterOptions{})

		rep := r.CheckAgentHealth(context.Background(), "a1")
		if rep.Healthy || rep.Error == "" {
			t.Errorf("report = %+v", rep)
		}
		if rep.Status != agent.StatusActive {
			t.Errorf("Status = %s, want registry view active", rep.Status)
		}
	})

	t.Run("slow agent", func(t *testing.T) {
		r := newTestRegistry(t)
		a := newStub("a1")
		release := make(chan struct{})
		defer close(release)
		a.healthHook = func() agent.HealthStatus {
			<-release
			return agent.HealthStatus{Healthy: true, Status: agent.StatusActive}
		}
		mustRegister(t, r, a, RegisterOptions{})

		start := time.Now()
		rep := r.CheckAgentHealth(context.Background(), "a1")
		if rep.Healthy || rep.Error == "" {
			t.Errorf("report = %+v", rep)
		}
		if time.Since(start) > 2*time.Second {
			t.Error("health check not bounded by timeout")
		}
	})
}

func TestCheckAllAgentsHealth(t *testing.T) {
	r := newTestRegistry(t)
	for i := 0; i < 12; i++ {
		a := newStub(fmt.Sprintf("a%02d", i))
		if i%3 == 0 {
			a.status = agent.StatusError
		}
		mustRegister(t, r, a, RegisterOptions{})
	}

	reports := r.CheckAllAgentsHealth(context.Background())
	if len(reports) != 12 {
		t.Fatalf("reports = %d", len(reports))
	}
	healthy := 0
	for i, rep := range reports {
		if rep.AgentID != fmt.Sprintf("a%02d", i) {
			t.Errorf("reports[%d].AgentID = %s", i, rep.AgentID)
		}
		if rep.Healthy {
			healthy++
		}
	}
	if healthy != 8 {
		t.Errorf("healthy = %d, want 8", healthy)
	}
}

func TestAutoStartHealthChecks(t *testing.T) {
	r := newTestRegistry(t)
	var checks int32
	a := newStub("a1")
	a.healthHook = func() agent.HealthStatus {
		atomic.AddInt32(&checks, 1)
		return agent.HealthStatus{Status: agent.StatusActive, Healthy: true}
	}
	mustRegister(t, r, a, RegisterOptions{HealthCheckInterval: 10 * time.Millisecond, AutoStart: true})

	if r.HealthTasks() != 1 {
		t.Fatalf("HealthTasks() = %d, want 1", r.HealthTasks())
	}
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&checks) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := atomic.LoadInt32(&checks); n < 3 {
		t.Fatalf("checks = %d, want >= 3", n)
	}

	if err := r.Unregister("a1"); err != nil {
		t.Fatal(err)
	}
	if r.HealthTasks() != 0 {
		t.Errorf("HealthTasks() after unregister = %d", r.HealthTasks())
	}
	settled := atomic.LoadInt32(&checks)
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&checks) != settled {
		t.Error("health check kept running after unregister")
	}
}

func TestHealthFailureHandlerUnregisters(t *testing.T) {
	r := newTestRegistry(t)
	a := newStub("flaky")
	a.status = agent.StatusError

	done := make(chan error, 1)
	r.AddEventListener(EventHealthCheckFailed, func(e Event) error {
		select {
		case done <- r.Unregister(e.AgentID):
		default:
		}
		return nil
	})
	mustRegister(t, r, a, RegisterOptions{HealthCheckInterval: 20 * time.Millisecond, AutoStart: true})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Unregister() from handler error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Unregister() from a health failure handler did not return")
	}
	if _, err := r.GetAgent("flaky"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("GetAgent() after unregister error = %v", err)
	}
	if r.HealthTasks() != 0 {
		t.Errorf("HealthTasks() = %d, want 0", r.HealthTasks())
	}
}

func TestGetStats(t *testing.T) {
	r := newTestRegistry(t)
	a := newStub("a", "gap-analysis", "document-analysis")
	b := newStub("b", "gap-analysis")
	b.kind = agent.KindAudit
	b.status = agent.StatusError
	mustRegister(t, r, a, RegisterOptions{})
	mustRegister(t, r, b, RegisterOptions{AutoStart: true, HealthCheckInterval: time.Hour})
	r.AddEventListener(EventAll, func(Event) error { return nil })

	st := r.GetStats()
	if st.TotalAgents != 2 || st.ByStatus[agent.StatusActive] != 1 || st.ByStatus[agent.StatusError] != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.ByKind[agent.KindCompliance] != 1 || st.ByKind[agent.KindAudit] != 1 {
		t.Errorf("ByKind = %v", st.ByKind)
	}
	if st.Capabilities["gap-analysis"] != 2 || st.Capabilities["document-analysis"] != 1 {
		t.Errorf("Capabilities = %v", st.Capabilities)
	}
	if st.Listeners != 1 || st.HealthTasks != 1 || st.Closed {
		t.Errorf("stats = %+v", st)
	}
}

func TestShutdown(t *testing.T) {
	r := New(Config{})
	var log eventLog
	r.AddEventListener(EventAgentUnregistered, log.handle)

	good := newStub("good")
	bad := newStub("bad")
	bad.shutdownFn = func() error { return errors.Internal("stuck") }
	mustRegister(t, r, good, RegisterOptions{AutoStart: true, HealthCheckInterval: 10 * time.Millisecond})
	mustRegister(t, r, bad, RegisterOptions{})

	err := r.Shutdown(context.Background())
	if err == nil {
		t.Error("Shutdown() did not report the failing agent")
	}
	if good.Status() != agent.StatusInactive {
		t.Errorf("good status = %s", good.Status())
	}
	if atomic.LoadInt32(&bad.shutdowns) != 1 {
		t.Error("failing agent not shut down")
	}
	if len(log.events) != 2 {
		t.Errorf("unregistered events = %d, want 2", len(log.events))
	}

	st := r.GetStats()
	if st.TotalAgents != 0 || st.Listeners != 0 || st.HealthTasks != 0 || !st.Closed {
		t.Errorf("stats after shutdown = %+v", st)
	}

	if err := r.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if atomic.LoadInt32(&good.shutdowns) != 1 {
		t.Error("second Shutdown() touched agents again")
	}

	checks := []struct {
		name string
		err  error
	}{
		{"Register", r.Register(context.Background(), newStub("late"), RegisterOptions{})},
		{"Unregister", r.Unregister("good")},
		{"UpdateAgentStatus", r.UpdateAgentStatus("good", agent.StatusActive)},
		{"AddMetrics", r.AddMetrics("good", agent.PerformanceMetric{})},
	}
	for _, c := range checks {
		if !errors.Is(c.err, errors.ErrCodeUnavailable) {
			t.Errorf("%s after shutdown error = %v, want UNAVAILABLE", c.name, c.err)
		}
	}
}

func TestConcurrentRegistryAccess(t *testing.T) {
	r := newTestRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("a%d", i)
			a := newStub(id, "gap-analysis")
			if err := r.Register(context.Background(), a, RegisterOptions{}); err != nil {
				t.Errorf("Register(%s) error = %v", id, err)
				return
			}
			for j := 0; j < 10; j++ {
				a.record(agent.PerformanceMetric{Operation: "analyze", Duration: time.Millisecond})
				r.GetAgents(Filter{Capabilities: []string{"gap-analysis"}})
				r.GetAggregatedMetrics()
				r.CheckAgentHealth(context.Background(), id)
			}
			if i%2 == 0 {
				if err := r.Unregister(id); err != nil {
					t.Errorf("Unregister(%s) error = %v", id, err)
				}
			}
		}(i)
	}
	wg.Wait()

	if n := r.GetStats().TotalAgents; n != 10 {
		t.Errorf("TotalAgents = %d, want 10", n)
	}
}

// TestComplianceAgentLifecycle drives a real agent through the registry.
func TestComplianceAgentLifecycle(t *testing.T) {
	r := newTestRegistry(t)
	var log eventLog
	r.AddEventListener(EventStatusChanged, log.handle)

	backend := llm.NewMockBackend()
	backend.SetResponse(`{"score": 90, "gaps": [], "recommendations": []}`)
	backend.SetTokenCounts(40, 20)

	a, err := agent.NewComplianceAgent(context.Background(), agent.Options{
		ID:       "compliance-1",
		Provider: llm.NewClient(backend),
	})
	if err != nil {
		t.Fatalf("NewComplianceAgent() error = %v", err)
	}
	mustRegister(t, r, a, RegisterOptions{})

	found := r.FindAgentsByCapability(agent.CapabilityGapAnalysis)
	if len(found) != 1 || found[0].ID != "compliance-1" {
		t.Fatalf("FindAgentsByCapability() = %v", found)
	}

	doc := agent.Document{ID: "doc-1", Title: "Policy", Content: "text"}
	if _, err := found[0].Agent.Analyze(context.Background(), doc, []string{"gdpr"}, agent.AnalysisOptions{}); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	want := "[agent.status_changed agent.status_changed]"
	if got := fmt.Sprint(log.types()); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
	if log.events[0].Payload["to"] != "processing" || log.events[1].Payload["to"] != "active" {
		t.Errorf("transitions = %v, %v", log.events[0].Payload, log.events[1].Payload)
	}

	metrics, _ := r.GetMetrics("compliance-1", 0)
	if len(metrics) != 1 || metrics[0].TokenUsage.TotalTokens != 60 {
		t.Errorf("metrics = %+v", metrics)
	}
	if agg := r.GetAggregatedMetrics(); agg.TotalTokenUsage != 60 || agg.ErrorRate != 0 {
		t.Errorf("aggregated = %+v", agg)
	}
	if rep := r.CheckAgentHealth(context.Background(), "compliance-1"); !rep.Healthy {
		t.Errorf("health = %+v", rep)
	}

	backend.SetError(errors.Unavailable("backend down"))
	if _, err := a.Analyze(context.Background(), doc, []string{"gdpr"}, agent.AnalysisOptions{}); err == nil {
		t.Fatal("Analyze() succeeded with failing backend")
	}
	e, _ := r.GetAgent("compliance-1")
	if e.Status != agent.StatusError {
		t.Errorf("registry status = %s, want error", e.Status)
	}
	if agg := r.GetAggregatedMetrics(); agg.ErrorRate != 0.5 {
		t.Errorf("ErrorRate = %v, want 0.5", agg.ErrorRate)
	}
}
