package agent

import (
	"time"

	"github.com/vinayprograms/compliancekit/memory"
)

// Document is the input to an analysis. ID and Title are required.
type Document struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Type     string            `json:"type,omitempty"`
	Content  string            `json:"content,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AnalysisOptions tunes a single Analyze call.
type AnalysisOptions struct {
	// Depth overrides the configured depth for this call.
	Depth Depth `json:"depth,omitempty"`

	// FocusAreas narrows the analysis to named topics.
	FocusAreas []string `json:"focusAreas,omitempty"`

	// UseCache serves a previous result for the same document and standards
	// when one is cached, without calling the model.
	UseCache bool `json:"useCache,omitempty"`
}

// Gap is a discrepancy between the document and a requirement.
type Gap struct {
	RequirementID string `json:"requirementId"`
	StandardID    string `json:"standardId"`
	Description   string `json:"description"`
	Severity      string `json:"severity"`
	CurrentState  string `json:"currentState,omitempty"`
	RequiredState string `json:"requiredState,omitempty"`
}

// Recommendation is a remediation step.
type Recommendation struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Priority       string   `json:"priority"`
	RequirementIDs []string `json:"requirementIds,omitempty"`
	Effort         string   `json:"effort,omitempty"`
}

// RiskAssessment summarises the residual risk.
type RiskAssessment struct {
	OverallRisk string   `json:"overallRisk"`
	Factors     []string `json:"factors,omitempty"`
	Summary     string   `json:"summary,omitempty"`
}

// TokenUsage is token accounting for one operation.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// AnalysisMetadata describes how a result was produced.
type AnalysisMetadata struct {
	Model      string        `json:"model,omitempty"`
	Provider   string        `json:"provider,omitempty"`
	TokenUsage TokenUsage    `json:"tokenUsage"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"duration"`
	Depth      Depth         `json:"depth"`
	Cached     bool          `json:"cached,omitempty"`
}

// AnalysisResult is the outcome of one analysis. Results are never modified
// after they are created; accessors hand out copies.
type AnalysisResult struct {
	AnalysisID      string           `json:"analysisId"`
	DocumentID      string           `json:"documentId"`
	AgentID         string           `json:"agentId"`
	Timestamp       time.Time        `json:"timestamp"`
	Standards       []string         `json:"standards"`
	Score           float64          `json:"score"` // [0,100]
	Gaps            []Gap            `json:"gaps"`
	Recommendations []Recommendation `json:"recommendations"`
	RiskAssessment  RiskAssessment   `json:"riskAssessment"`
	Metadata        AnalysisMetadata `json:"metadata"`
}

// Clone returns a deep copy of r.
func (r AnalysisResult) Clone() AnalysisResult {
	c := r
	c.Standards = append([]string(nil), r.Standards...)
	c.Gaps = append([]Gap(nil), r.Gaps...)
	if r.Recommendations != nil {
		c.Recommendations = make([]Recommendation, len(r.Recommendations))
		for i, rec := range r.Recommendations {
			rec.RequirementIDs = append([]string(nil), rec.RequirementIDs...)
			c.Recommendations[i] = rec
		}
	}
	c.RiskAssessment.Factors = append([]string(nil), r.RiskAssessment.Factors...)
	return c
}

// PerformanceMetric is one sample of an agent operation.
type PerformanceMetric struct {
	AgentID      string        `json:"agentId"`
	Operation    string        `json:"operation"`
	Duration     time.Duration `json:"duration"`
	TokenUsage   TokenUsage    `json:"tokenUsage"`
	MemoryUsage  int           `json:"memoryUsage"` // entries held in agent memory
	CacheHitRate float64       `json:"cacheHitRate"`
	Error        bool          `json:"error"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	Throughput   float64       `json:"throughput"` // tokens per second
	Timestamp    time.Time     `json:"timestamp"`
}

// ProbeResult is the outcome of a provider health probe.
type ProbeResult struct {
	Supported bool   `json:"supported"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
}

// HealthStatus is a point-in-time health snapshot.
type HealthStatus struct {
	AgentID       string              `json:"agentId"`
	Status        Status              `json:"status"`
	Healthy       bool                `json:"healthy"`
	Uptime        time.Duration       `json:"uptime"`
	Memory        memory.Usage        `json:"memory"`
	RecentMetrics []PerformanceMetric `json:"recentMetrics"`
	RecentErrors  []string            `json:"recentErrors,omitempty"`
	Provider      *ProbeResult        `json:"provider,omitempty"`
	CheckedAt     time.Time           `json:"checkedAt"`
}
