// Package registry is the directory of running agents: registration with
// dependency checks, discovery, status tracking, per-agent metrics, health
// checks and lifecycle events.
package registry

import (
	"time"

	"github.com/vinayprograms/compliancekit/agent"
)

// Defaults.
const (
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultHealthCheckTimeout  = 10 * time.Second
	DefaultMetricsBufferSize   = 100
	DefaultHealthConcurrency   = 8
	recentMetricCount          = 10
)

// Config configures a Registry. Zero fields use the defaults.
type Config struct {
	// HealthCheckInterval is used when RegisterOptions leaves it unset.
	HealthCheckInterval time.Duration `toml:"health_check_interval"`

	// HealthCheckTimeout bounds a single agent health probe.
	HealthCheckTimeout time.Duration `toml:"health_check_timeout"`

	// MetricsBufferSize caps the metrics kept per agent.
	MetricsBufferSize int `toml:"metrics_buffer_size"`

	// HealthConcurrency caps parallel probes in CheckAllAgentsHealth.
	HealthConcurrency int `toml:"health_concurrency"`
}

func (c Config) withDefaults() Config {
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = DefaultHealthCheckTimeout
	}
	if c.MetricsBufferSize <= 0 {
		c.MetricsBufferSize = DefaultMetricsBufferSize
	}
	if c.HealthConcurrency <= 0 {
		c.HealthConcurrency = DefaultHealthConcurrency
	}
	return c
}

// RegisterOptions controls one registration.
type RegisterOptions struct {
	// Capabilities overrides the capabilities the agent reports.
	Capabilities []string

	// Dependencies are agent ids that must be registered and active.
	Dependencies []string

	// HealthCheckInterval defaults to Config.HealthCheckInterval.
	HealthCheckInterval time.Duration

	// AutoStart starts the periodic health check.
	AutoStart bool
}

// Entry is a snapshot of one registration.
type Entry struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Kind                agent.Kind    `json:"kind"`
	Status              agent.Status  `json:"status"`
	Capabilities        []string      `json:"capabilities"`
	Dependencies        []string      `json:"dependencies,omitempty"`
	HealthCheckInterval time.Duration `json:"healthCheckInterval"`
	LastHealthCheck     time.Time     `json:"lastHealthCheck,omitempty"`
	RegisteredAt        time.Time     `json:"registeredAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`

	// Agent is the registered agent. The registry never mutates it.
	Agent agent.Agent `json:"-"`
}

// Filter selects entries. Zero fields do not filter.
type Filter struct {
	Kind   agent.Kind
	Status agent.Status

	// Capabilities must all be present on a matching entry.
	Capabilities []string
}

// Matches reports whether e satisfies f.
func (f Filter) Matches(e Entry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return HasCapabilities(e.Capabilities, f.Capabilities...)
}

// Stats summarises the registry.
type Stats struct {
	TotalAgents  int                  `json:"totalAgents"`
	ByStatus     map[agent.Status]int `json:"byStatus"`
	ByKind       map[agent.Kind]int   `json:"byKind"`
	Capabilities map[string]int       `json:"capabilities"`
	Listeners    int                  `json:"listeners"`
	HealthTasks  int                  `json:"healthTasks"`
	Closed       bool                 `json:"closed"`
}
