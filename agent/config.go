package agent

import (
	"github.com/vinayprograms/compliancekit/errors"
)

// Depth controls how thorough an analysis is.
type Depth string

const (
	DepthQuick         Depth = "quick"
	DepthStandard      Depth = "standard"
	DepthComprehensive Depth = "comprehensive"
)

// Valid reports whether d is a known depth.
func (d Depth) Valid() bool {
	return d == DepthQuick || d == DepthStandard || d == DepthComprehensive
}

// RiskTolerance is how much residual risk the organization accepts.
type RiskTolerance string

const (
	RiskLow    RiskTolerance = "low"
	RiskMedium RiskTolerance = "medium"
	RiskHigh   RiskTolerance = "high"
)

// Valid reports whether r is a known tolerance.
func (r RiskTolerance) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Config is the tunable part of an agent.
type Config struct {
	ModelID       string        `json:"modelId" toml:"model_id"`
	ModelVersion  string        `json:"modelVersion,omitempty" toml:"model_version"`
	Temperature   float64       `json:"temperature" toml:"temperature"`
	MaxTokens     int           `json:"maxTokens" toml:"max_tokens"`
	Depth         Depth         `json:"analysisDepth" toml:"analysis_depth"`
	RiskTolerance RiskTolerance `json:"riskTolerance" toml:"risk_tolerance"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Temperature:   0.2,
		MaxTokens:     4096,
		Depth:         DepthStandard,
		RiskTolerance: RiskMedium,
	}
}

// Validate checks ranges and enums.
func (c Config) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.Validation("temperature must be within [0,2]", errors.WithMetadata("field", "temperature"))
	}
	if c.MaxTokens <= 0 {
		return errors.Validation("max tokens must be positive", errors.WithMetadata("field", "maxTokens"))
	}
	if !c.Depth.Valid() {
		return errors.Validation("unknown analysis depth: "+string(c.Depth), errors.WithMetadata("field", "analysisDepth"))
	}
	if !c.RiskTolerance.Valid() {
		return errors.Validation("unknown risk tolerance: "+string(c.RiskTolerance), errors.WithMetadata("field", "riskTolerance"))
	}
	return nil
}

// ConfigUpdate changes selected fields of a Config. Nil fields are kept.
type ConfigUpdate struct {
	ModelID       *string
	ModelVersion  *string
	Temperature   *float64
	MaxTokens     *int
	Depth         *Depth
	RiskTolerance *RiskTolerance
}

func (u ConfigUpdate) apply(c Config) Config {
	if u.ModelID != nil {
		c.ModelID = *u.ModelID
	}
	if u.ModelVersion != nil {
		c.ModelVersion = *u.ModelVersion
	}
	if u.Temperature != nil {
		c.Temperature = *u.Temperature
	}
	if u.MaxTokens != nil {
		c.MaxTokens = *u.MaxTokens
	}
	if u.Depth != nil {
		c.Depth = *u.Depth
	}
	if u.RiskTolerance != nil {
		c.RiskTolerance = *u.RiskTolerance
	}
	return c
}
