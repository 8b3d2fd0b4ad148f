package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/llm"
	"github.com/vinayprograms/compliancekit/logging"
	"github.com/vinayprograms/compliancekit/memory"
	"github.com/vinayprograms/compliancekit/standards"
	"github.com/vinayprograms/compliancekit/telemetry"
)

// Capabilities of the compliance agent.
const (
	CapabilityDocumentAnalysis = "document-analysis"
	CapabilityGapAnalysis      = "gap-analysis"
	CapabilityRiskAssessment   = "risk-assessment"
	CapabilityRecommendations  = "recommendations"
)

// Defaults for bounded per-agent state.
const (
	DefaultHistorySize = 100
	DefaultMetricsSize = 100
	recentMetricCount  = 10
)

// OpAnalyze is the operation name on analysis metrics.
const OpAnalyze = "analyze"

// StandardsSource resolves standard ids into full standards for prompts.
// *standards.Library implements it.
type StandardsSource interface {
	GetStandard(id string) (*standards.Standard, error)
}

// Options configures NewComplianceAgent.
type Options struct {
	// ID defaults to a random UUID.
	ID   string
	Name string

	TenantID string

	// ModelProviderType and ModelConfig select and configure the backend.
	// ModelProviderType overrides ModelConfig.Provider when set.
	ModelProviderType string
	ModelConfig       llm.ProviderConfig

	// Provider, when set, is used as is instead of building one from ModelConfig.
	Provider llm.Provider

	// Capabilities defaults to every compliance capability.
	Capabilities []string

	// Config defaults to DefaultConfig.
	Config *Config

	// Standards enriches prompts with standard names and requirements.
	// Without it, prompts list standard ids only.
	Standards StandardsSource

	HistorySize int
	MetricsSize int
	Memory      memory.AgentConfig

	Logger  *logging.Logger
	Metrics *telemetry.Metrics
}

// ComplianceAgent analyzes documents against compliance standards.
//
// Analyze calls on one agent run one at a time. Status, history and metrics
// are guarded separately, so reads never wait for an in-flight model call.
type ComplianceAgent struct {
	id       string
	name     string
	tenantID string
	caps     []string
	created  time.Time

	providerType string
	modelConfig  llm.ProviderConfig
	injected     llm.Provider
	source       StandardsSource

	analyzeMu sync.Mutex

	mu       sync.RWMutex
	status   Status
	updated  time.Time
	provider llm.Provider
	config   Config
	prefs    map[string]string
	observer Observer

	// currentDoc and currentStandards describe the latest Analyze call.
	currentDoc       string
	currentStandards []string

	// notifyMu orders observer calls.
	notifyMu sync.Mutex

	history *memory.Ring[AnalysisResult]
	metrics *memory.Ring[PerformanceMetric]
	memory  *memory.AgentMemory[AnalysisResult, *standards.Standard]

	logger *logging.Logger
	prom   *telemetry.Metrics
}

var _ Agent = (*ComplianceAgent)(nil)

// NewComplianceAgent creates an agent and initializes its model provider.
//
// If the provider cannot be initialized the agent is returned in the error
// status together with the error. Invalid options return a nil agent.
func NewComplianceAgent(ctx context.Context, opts Options) (*ComplianceAgent, error) {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if cfg.ModelID == "" {
		cfg.ModelID = opts.ModelConfig.Model
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Provider == nil && opts.ModelProviderType == "" && opts.ModelConfig.Provider == "" && opts.ModelConfig.Model == "" {
		return nil, errors.Validation("model provider type or provider is required", errors.WithMetadata("field", "modelProviderType"))
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	name := opts.Name
	if name == "" {
		name = "compliance-agent-" + id
	}
	caps := opts.Capabilities
	if len(caps) == 0 {
		caps = []string{CapabilityDocumentAnalysis, CapabilityGapAnalysis, CapabilityRiskAssessment, CapabilityRecommendations}
	}
	historySize := opts.HistorySize
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	metricsSize := opts.MetricsSize
	if metricsSize <= 0 {
		metricsSize = DefaultMetricsSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	now := time.Now()
	a := &ComplianceAgent{
		id:           id,
		name:         name,
		tenantID:     opts.TenantID,
		caps:         append([]string(nil), caps...),
		created:      now,
		providerType: opts.ModelProviderType,
		modelConfig:  opts.ModelConfig,
		injected:     opts.Provider,
		source:       opts.Standards,
		status:       StatusInactive,
		updated:      now,
		config:       cfg,
		prefs:        make(map[string]string),
		history:      memory.NewRing[AnalysisResult](historySize),
		metrics:      memory.NewRing[PerformanceMetric](metricsSize),
		memory:       memory.NewAgentMemory[AnalysisResult, *standards.Standard](opts.Memory),
		logger:       logger.WithComponent("agent").WithAgent(id),
		prom:         opts.Metrics,
	}

	if err := a.initialize(ctx); err != nil {
		return a, err
	}
	return a, nil
}

// initialize connects the provider and moves the agent out of inactive.
func (a *ComplianceAgent) initialize(ctx context.Context) error {
	provider, err := a.connect(ctx)
	if err != nil {
		a.logger.Error("provider_init_failed", map[string]interface{}{"error": err.Error()})
		a.transition(StatusError, StatusInactive)
		return errors.Wrap(err, "initializing model provider",
			errors.WithAgentID(a.id),
			errors.WithMetadata("tenant_id", a.tenantID))
	}

	a.mu.Lock()
	a.provider = provider
	a.mu.Unlock()

	a.transition(StatusActive, StatusInactive)
	return nil
}

func (a *ComplianceAgent) connect(ctx context.Context) (llm.Provider, error) {
	p := a.injected
	if p == nil {
		cfg := a.modelConfig
		if a.providerType != "" {
			cfg.Provider = a.providerType
		}
		client, err := llm.New(cfg, llm.WithLogger(a.logger), llm.WithMetrics(a.prom))
		if err != nil {
			return nil, err
		}
		p = llm.WithTracing(client)
	}

	if hc, ok := p.(llm.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil && !errors.Is(err, errors.ErrCodeUnsupported) {
			return nil, err
		}
	}
	return p, nil
}

// ID implements Agent.
func (a *ComplianceAgent) ID() string { return a.id }

// Name implements Agent.
func (a *ComplianceAgent) Name() string { return a.name }

// Kind implements Agent.
func (a *ComplianceAgent) Kind() Kind { return KindCompliance }

// TenantID returns the tenant the agent works for.
func (a *ComplianceAgent) TenantID() string { return a.tenantID }

// CreatedAt implements Agent.
func (a *ComplianceAgent) CreatedAt() time.Time { return a.created }

// Capabilities implements Agent.
func (a *ComplianceAgent) Capabilities() []string {
	return append([]string(nil), a.caps...)
}

// Status implements Agent.
func (a *ComplianceAgent) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// UpdatedAt returns when the status last changed.
func (a *ComplianceAgent) UpdatedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.updated
}

// Config returns the current configuration.
func (a *ComplianceAgent) Config() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// SetObserver implements Agent.
func (a *ComplianceAgent) SetObserver(o Observer) {
	a.mu.Lock()
	a.observer = o
	a.mu.Unlock()
}

// transition moves the agent to status to when the move is legal and, if from
// is given, the current status is one of from. The observer is told before
// transition returns.
func (a *ComplianceAgent) transition(to Status, from ...Status) bool {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	prev := a.status
	ok := CanTransition(prev, to) && (len(from) == 0 || slices.Contains(from, prev))
	if ok {
		a.status = to
		a.updated = time.Now()
	}
	obs := a.observer
	a.mu.Unlock()

	if !ok {
		return false
	}
	a.logger.StatusChanged(a.id, string(prev), string(to))
	if obs != nil {
		a.notify(func() { obs.StatusChanged(a.id, prev, to) })
	}
	return true
}

func (a *ComplianceAgent) recordMetric(m PerformanceMetric) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.metrics.Push(m)

	a.mu.RLock()
	obs := a.observer
	a.mu.RUnlock()
	if obs != nil {
		a.notify(func() { obs.MetricRecorded(m) })
	}
}

// notify runs an observer callback, containing panics.
func (a *ComplianceAgent) notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("observer_panic", map[string]interface{}{"error": errors.RecoverPanic(r).Error()})
		}
	}()
	fn()
}

// Analyze implements Agent.
//
// The agent must be active. Invalid input and unknown standards fail without
// a status change. Once the analysis starts, any failure moves the agent to
// error and is returned as ANALYSIS_FAILED carrying the cause.
func (a *ComplianceAgent) Analyze(ctx context.Context, doc Document, standardIDs []string, opts AnalysisOptions) (*AnalysisResult, error) {
	if err := validateRequest(doc, standardIDs, opts); err != nil {
		return nil, errors.Wrap(err, "invalid analysis request", errors.WithAgentID(a.id), errors.WithOperation(OpAnalyze))
	}

	a.analyzeMu.Lock()
	defer a.analyzeMu.Unlock()

	a.mu.RLock()
	status, provider, cfg := a.status, a.provider, a.config
	prefs := make(map[string]string, len(a.prefs))
	for k, v := range a.prefs {
		prefs[k] = v
	}
	a.mu.RUnlock()

	if status != StatusActive || provider == nil {
		return nil, errors.AgentOffline(a.id, string(status), errors.WithOperation(OpAnalyze))
	}

	resolved, err := a.resolveStandards(standardIDs)
	if err != nil {
		return nil, err
	}

	depth := cfg.Depth
	if opts.Depth != "" {
		depth = opts.Depth
	}

	if !a.transition(StatusProcessing, StatusActive) {
		return nil, errors.AgentOffline(a.id, string(a.Status()), errors.WithOperation(OpAnalyze))
	}

	start := time.Now()
	ctx, span := telemetry.GetTracer().StartAnalysisSpan(ctx, a.id)
	a.logger.AnalysisStart(a.id, doc.ID, standardIDs)

	in := promptInput{
		doc:         doc,
		standardIDs: append([]string(nil), standardIDs...),
		standards:   resolved,
		depth:       depth,
		risk:        cfg.RiskTolerance,
		focus:       opts.FocusAreas,
		preferences: prefs,
	}
	a.mu.Lock()
	a.currentDoc = doc.ID
	a.currentStandards = append([]string(nil), standardIDs...)
	a.mu.Unlock()

	result, err := a.safeRun(ctx, provider, cfg, in, opts.UseCache, start)
	duration := time.Since(start)

	usage := a.memory.Usage()
	metric := PerformanceMetric{
		AgentID:      a.id,
		Operation:    OpAnalyze,
		Duration:     duration,
		MemoryUsage:  usage.CurrentSize,
		CacheHitRate: usage.CacheHitRate,
		Timestamp:    time.Now(),
	}
	spanOpts := telemetry.AnalysisSpanOptions{AgentID: a.id, DocumentID: doc.ID, Standards: standardIDs}

	if err != nil {
		failure := errors.AnalysisFailed(a.id, err,
			errors.WithMetadata("document_id", doc.ID),
			errors.WithMetadata("document_title", doc.Title),
			errors.WithMetadata("standards", strings.Join(standardIDs, ",")),
			errors.WithMetadata("depth", string(depth)),
			errors.WithMetadata("tenant_id", a.tenantID))

		metric.Error = true
		metric.ErrorMessage = err.Error()
		a.recordMetric(metric)
		a.transition(StatusError, StatusProcessing)

		a.logger.AnalysisFailed(a.id, doc.ID, duration, err)
		a.prom.ObserveAnalysis(a.id, start, 0, failure)
		telemetry.GetTracer().EndAnalysisSpan(span, spanOpts, failure)
		return nil, failure
	}

	a.history.Push(*result)

	tokens := result.Metadata.TokenUsage
	metric.TokenUsage = tokens
	if secs := duration.Seconds(); secs > 0 {
		metric.Throughput = float64(tokens.TotalTokens) / secs
	}
	a.recordMetric(metric)
	a.transition(StatusActive, StatusProcessing)

	a.logger.AnalysisComplete(a.id, doc.ID, duration, result.Score, tokens.TotalTokens)
	a.prom.ObserveAnalysis(a.id, start, tokens.TotalTokens, nil)
	spanOpts.Score = result.Score
	spanOpts.Issues = len(result.Gaps)
	spanOpts.TokensUsed = tokens.TotalTokens
	telemetry.GetTracer().EndAnalysisSpan(span, spanOpts, nil)

	out := result.Clone()
	return &out, nil
}

// safeRun is run with panics from the provider turned into errors.
func (a *ComplianceAgent) safeRun(ctx context.Context, provider llm.Provider, cfg Config, in promptInput, useCache bool, start time.Time) (res *AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, errors.RecoverPanic(r)
		}
	}()
	return a.run(ctx, provider, cfg, in, useCache, start)
}

// run builds the prompt, calls the model and maps its answer.
func (a *ComplianceAgent) run(ctx context.Context, provider llm.Provider, cfg Config, in promptInput, useCache bool, start time.Time) (*AnalysisResult, error) {
	docJSON, err := serializeDocument(in.doc)
	if err != nil {
		return nil, err
	}
	prompt := buildPrompt(in)
	key := cacheKey(docJSON, prompt)

	if useCache {
		if cached, ok := a.memory.CachedAnalysis(key); ok {
			r := cached.Clone()
			r.AnalysisID = uuid.NewString()
			r.Timestamp = time.Now()
			r.Metadata.Cached = true
			r.Metadata.TokenUsage = TokenUsage{}
			r.Metadata.Duration = time.Since(start)
			return &r, nil
		}
	}

	chatOpts := llm.ChatOptions{
		Temperature: llm.Float(cfg.Temperature),
		MaxTokens:   llm.Int(min(cfg.MaxTokens, provider.MaxTokens())),
	}
	resp, err := provider.Analyze(ctx, docJSON, prompt, chatOpts)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New(errors.ErrCodeMalformedResponse, "provider returned no response",
			errors.WithMetadata("provider", provider.Name()))
	}

	rep, err := parseReport(resp.Content)
	if err != nil {
		return nil, err
	}

	confidence := resp.Confidence
	if rep.Confidence != nil && *rep.Confidence >= 0 && *rep.Confidence < confidence {
		confidence = *rep.Confidence
	}

	result := &AnalysisResult{
		AnalysisID:      uuid.NewString(),
		DocumentID:      in.doc.ID,
		AgentID:         a.id,
		Timestamp:       time.Now(),
		Standards:       in.standardIDs,
		Score:           clampScore(*rep.Score),
		Gaps:            rep.Gaps,
		Recommendations: rep.Recommendations,
		RiskAssessment:  rep.RiskAssessment,
		Metadata: AnalysisMetadata{
			Model:    resp.Model,
			Provider: provider.Name(),
			TokenUsage: TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
			Confidence: confidence,
			Duration:   time.Since(start),
			Depth:      in.depth,
		},
	}
	if result.Gaps == nil {
		result.Gaps = []Gap{}
	}
	if result.Recommendations == nil {
		result.Recommendations = []Recommendation{}
	}

	a.memory.CacheAnalysis(key, result.Clone())
	a.memory.Remember(llm.RoleUser, prompt)
	a.memory.Remember(llm.RoleAssistant, resp.Content)
	for _, g := range result.Gaps {
		a.memory.Learn(g.RequirementID)
	}
	return result, nil
}

// resolveStandards fetches standard details through the agent's standards cache.
func (a *ComplianceAgent) resolveStandards(ids []string) (map[string]*standards.Standard, error) {
	if a.source == nil {
		return nil, nil
	}
	out := make(map[string]*standards.Standard, len(ids))
	for _, id := range ids {
		if s, ok := a.memory.Standard(id); ok {
			out[id] = s
			continue
		}
		s, err := a.source.GetStandard(id)
		if err != nil {
			return nil, errors.Wrap(err, "resolving standard "+id,
				errors.WithAgentID(a.id),
				errors.WithOperation(OpAnalyze),
				errors.WithMetadata("standard_id", id))
		}
		a.memory.CacheStandard(id, s)
		out[id] = s
	}
	return out, nil
}

func validateRequest(doc Document, standardIDs []string, opts AnalysisOptions) error {
	if strings.TrimSpace(doc.ID) == "" {
		return errors.Validation("document id is required", errors.WithMetadata("field", "document.id"))
	}
	if strings.TrimSpace(doc.Title) == "" {
		return errors.Validation("document title is required",
			errors.WithMetadata("field", "document.title"),
			errors.WithMetadata("document_id", doc.ID))
	}
	if len(standardIDs) == 0 {
		return errors.Validation("at least one standard is required",
			errors.WithMetadata("field", "standards"),
			errors.WithMetadata("document_id", doc.ID))
	}
	for i, id := range standardIDs {
		if strings.TrimSpace(id) == "" {
			return errors.Validation(fmt.Sprintf("standard %d has an empty id", i), errors.WithMetadata("field", "standards"))
		}
	}
	if opts.Depth != "" && !opts.Depth.Valid() {
		return errors.Validation("unknown analysis depth: "+string(opts.Depth), errors.WithMetadata("field", "depth"))
	}
	return nil
}

// AnalysisHistory returns past results, oldest first.
func (a *ComplianceAgent) AnalysisHistory() []AnalysisResult {
	items := a.history.Items()
	for i := range items {
		items[i] = items[i].Clone()
	}
	return items
}

// ClearAnalysisHistory drops all past results.
func (a *ComplianceAgent) ClearAnalysisHistory() {
	a.history.Clear()
}

// UpdateConfig applies u and returns the resulting configuration. An invalid
// result leaves the configuration unchanged.
func (a *ComplianceAgent) UpdateConfig(u ConfigUpdate) (Config, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := u.apply(a.config)
	if err := next.Validate(); err != nil {
		return a.config, errors.Wrap(err, "invalid configuration", errors.WithAgentID(a.id), errors.WithOperation("update_config"))
	}
	a.config = next
	a.logger.Info("config_updated", map[string]interface{}{
		"depth":          string(next.Depth),
		"risk_tolerance": string(next.RiskTolerance),
		"temperature":    next.Temperature,
	})
	return next, nil
}

// UpdatePreferences merges prefs into the user preferences. An empty value
// removes the key.
func (a *ComplianceAgent) UpdatePreferences(prefs map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range prefs {
		if v == "" {
			delete(a.prefs, k)
			continue
		}
		a.prefs[k] = v
	}
}

// CurrentContext returns the document id and standard ids of the most recent
// analysis, or empty values before the first one.
func (a *ComplianceAgent) CurrentContext() (documentID string, standardIDs []string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentDoc, append([]string(nil), a.currentStandards...)
}

// Preferences returns a copy of the user preferences.
func (a *ComplianceAgent) Preferences() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]string, len(a.prefs))
	for k, v := range a.prefs {
		out[k] = v
	}
	return out
}

// HealthStatus implements Agent. The agent is healthy when it is active and
// its provider probe, if the provider has one, succeeds.
func (a *ComplianceAgent) HealthStatus(ctx context.Context) HealthStatus {
	ctx, span := telemetry.GetTracer().StartHealthSpan(ctx, a.id)

	a.mu.RLock()
	status, provider := a.status, a.provider
	a.mu.RUnlock()

	now := time.Now()
	hs := HealthStatus{
		AgentID:       a.id,
		Status:        status,
		Healthy:       status == StatusActive,
		Uptime:        now.Sub(a.created),
		Memory:        a.memory.Usage(),
		RecentMetrics: a.metrics.Last(recentMetricCount),
		CheckedAt:     now,
	}
	for _, m := range hs.RecentMetrics {
		if m.Error {
			hs.RecentErrors = append(hs.RecentErrors, m.ErrorMessage)
		}
	}

	if hc, ok := provider.(llm.HealthChecker); ok && status == StatusActive {
		err := hc.HealthCheck(ctx)
		switch {
		case err == nil:
			hs.Provider = &ProbeResult{Supported: true, Healthy: true}
		case errors.Is(err, errors.ErrCodeUnsupported):
			hs.Provider = &ProbeResult{Supported: false}
		default:
			hs.Provider = &ProbeResult{Supported: true, Error: err.Error()}
			hs.Healthy = false
		}
	}

	telemetry.GetTracer().EndHealthSpan(span, hs.Healthy, string(status))
	return hs
}

// Metrics implements Agent.
func (a *ComplianceAgent) Metrics(limit int) []PerformanceMetric {
	if limit > 0 {
		return a.metrics.Last(limit)
	}
	return a.metrics.Items()
}

// MemoryUsage returns the agent memory counters.
func (a *ComplianceAgent) MemoryUsage() memory.Usage {
	return a.memory.Usage()
}

// Conversation returns the recorded prompt and response log, oldest first.
func (a *ComplianceAgent) Conversation() []memory.ConversationEntry {
	return a.memory.Conversation()
}

// LearnedPatterns returns the requirement ids most often reported as gaps.
func (a *ComplianceAgent) LearnedPatterns() []memory.Pattern {
	return a.memory.Patterns()
}

// ClearCache empties the agent memory. It is idempotent.
func (a *ComplianceAgent) ClearCache() {
	a.memory.Clear()
}

// Shutdown implements Agent. It releases memory and metrics, drops the
// provider and moves the agent to inactive. An in-flight analysis finishes
// but does not bring the agent back.
func (a *ComplianceAgent) Shutdown(ctx context.Context) error {
	if a.transition(StatusInactive) {
		a.logger.Info("agent_shutdown")
	}

	a.mu.Lock()
	a.provider = nil
	a.mu.Unlock()

	a.memory.Clear()
	a.metrics.Clear()
	return nil
}

// Reinitialize recovers an agent in error or inactive by initializing its
// provider again. It waits for an in-flight analysis to finish.
func (a *ComplianceAgent) Reinitialize(ctx context.Context) error {
	a.analyzeMu.Lock()
	defer a.analyzeMu.Unlock()

	switch status := a.Status(); status {
	case StatusError:
		a.transition(StatusInactive, StatusError)
	case StatusInactive:
	default:
		return errors.Precondition("agent is "+string(status)+", reinitialize needs error or inactive",
			errors.WithAgentID(a.id),
			errors.WithMetadata("status", string(status)))
	}
	return a.initialize(ctx)
}
