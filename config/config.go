// Package config loads compliancekit settings from TOML.
//
// A minimal file:
//
//	[provider]
//	type  = "anthropic"
//	model = "claude-sonnet-4-20250514"
//	timeout = "30s"
//
//	[agent]
//	id = "compliance-1"
//	analysis_depth = "comprehensive"
//
//	[registry]
//	health_check_interval = "1m"
//
// Only provider.type or provider.model is required; everything else has a
// default. API keys are taken from provider.api_key, then the
// <PROVIDER>_API_KEY environment variable, then a credentials.toml file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/compliancekit/agent"
	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/llm"
	"github.com/vinayprograms/compliancekit/logging"
	"github.com/vinayprograms/compliancekit/memory"
	"github.com/vinayprograms/compliancekit/ratelimit"
	"github.com/vinayprograms/compliancekit/registry"
	"github.com/vinayprograms/compliancekit/standards"
	"github.com/vinayprograms/compliancekit/telemetry"
)

// Duration is a time.Duration written as a string such as "30s" or "5m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "invalid duration "+string(b))
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root of the configuration file.
type Config struct {
	Provider  ProviderConfig  `toml:"provider"`
	Agent     AgentConfig     `toml:"agent"`
	Registry  RegistryConfig  `toml:"registry"`
	Standards StandardsConfig `toml:"standards"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ProviderConfig selects the model backend.
type ProviderConfig struct {
	Type            string   `toml:"type"`
	Model           string   `toml:"model"`
	EmbeddingModel  string   `toml:"embedding_model"`
	APIKey          string   `toml:"api_key"`
	BaseURL         string   `toml:"base_url"`
	MaxTokens       int      `toml:"max_tokens"`
	Timeout         Duration `toml:"timeout"`
	MaxRetries      int      `toml:"max_retries"`
	CredentialsFile string   `toml:"credentials_file"`

	// RequestsPerMinute caps calls to the backend. Zero means unlimited.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// AgentConfig configures the compliance agent.
type AgentConfig struct {
	ID            string             `toml:"id"`
	Name          string             `toml:"name"`
	TenantID      string             `toml:"tenant_id"`
	Capabilities  []string           `toml:"capabilities"`
	Dependencies  []string           `toml:"dependencies"`
	Temperature   float64            `toml:"temperature"`
	MaxTokens     int                `toml:"max_tokens"`
	Depth         string             `toml:"analysis_depth"`
	RiskTolerance string             `toml:"risk_tolerance"`
	HistorySize   int                `toml:"history_size"`
	MetricsSize   int                `toml:"metrics_size"`
	Memory        memory.AgentConfig `toml:"memory"`
}

// RegistryConfig configures the agent registry.
type RegistryConfig struct {
	HealthCheckInterval Duration `toml:"health_check_interval"`
	HealthCheckTimeout  Duration `toml:"health_check_timeout"`
	MetricsBufferSize   int      `toml:"metrics_buffer_size"`
	HealthConcurrency   int      `toml:"health_concurrency"`
	AutoStart           bool     `toml:"auto_start"`
}

// StandardsConfig configures the standards library.
type StandardsConfig struct {
	CacheSize int `toml:"cache_size"`
}

// TelemetryConfig configures tracing and the metrics endpoint.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
	Endpoint    string `toml:"endpoint"`
	Protocol    string `toml:"protocol"`
	Insecure    bool   `toml:"insecure"`
	Debug       bool   `toml:"debug"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string `toml:"metrics_addr"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used for fields a file leaves unset.
func Default() *Config {
	ac := agent.DefaultConfig()
	return &Config{
		Provider: ProviderConfig{
			MaxTokens:  llm.DefaultMaxTokens,
			Timeout:    Duration(llm.DefaultTimeout),
			MaxRetries: 3,
		},
		Agent: AgentConfig{
			Temperature:   ac.Temperature,
			MaxTokens:     ac.MaxTokens,
			Depth:         string(ac.Depth),
			RiskTolerance: string(ac.RiskTolerance),
			HistorySize:   agent.DefaultHistorySize,
			MetricsSize:   agent.DefaultMetricsSize,
			Memory:        memory.DefaultAgentConfig(),
		},
		Registry: RegistryConfig{
			HealthCheckInterval: Duration(registry.DefaultHealthCheckInterval),
			HealthCheckTimeout:  Duration(registry.DefaultHealthCheckTimeout),
			MetricsBufferSize:   registry.DefaultMetricsBufferSize,
			HealthConcurrency:   registry.DefaultHealthConcurrency,
		},
		Standards: StandardsConfig{CacheSize: standards.DefaultCacheSize},
		Telemetry: TelemetryConfig{Protocol: "grpc", ServiceName: "compliancekit"},
		Logging:   LoggingConfig{Level: "info", Format: string(logging.FormatJSON)},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeNotFound, "reading config",
			errors.WithMetadata("path", path))
	}
	cfg, err := Parse(string(content))
	if err != nil {
		return nil, errors.Wrap(err, "loading "+path, errors.WithMetadata("path", path))
	}
	return cfg, nil
}

// Parse decodes TOML content over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(content string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(content, cfg)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "parsing config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Validation("unknown config keys: "+strings.Join(keys, ", "),
			errors.WithMetadata("keys", strings.Join(keys, ",")))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var knownProviders = map[string]bool{
	llm.ProviderAnthropic:    true,
	llm.ProviderOpenAI:       true,
	llm.ProviderGoogle:       true,
	llm.ProviderOpenAICompat: true,
	llm.ProviderMock:         true,
}

// Validate checks ranges and enumerations. Missing API keys are not checked
// here; they are resolved when the provider is built.
func (c *Config) Validate() error {
	invalid := func(field, msg string) error {
		return errors.Validation(field+": "+msg, errors.WithMetadata("field", field))
	}

	p := c.Provider
	if p.Type != "" && !knownProviders[p.Type] {
		return invalid("provider.type", "unknown provider "+p.Type)
	}
	if p.Type == "" && p.Model == "" {
		return invalid("provider", "type or model is required")
	}
	if p.Type == llm.ProviderOpenAICompat && p.BaseURL == "" {
		return invalid("provider.base_url", "required for openai-compat")
	}
	if p.MaxTokens <= 0 {
		return invalid("provider.max_tokens", "must be positive")
	}
	if p.Timeout <= 0 {
		return invalid("provider.timeout", "must be positive")
	}
	if p.MaxRetries < 0 {
		return invalid("provider.max_retries", "must not be negative")
	}
	if p.RequestsPerMinute < 0 {
		return invalid("provider.requests_per_minute", "must not be negative")
	}

	if err := c.AgentSettings().Validate(); err != nil {
		return err
	}
	a := c.Agent
	if a.HistorySize <= 0 {
		return invalid("agent.history_size", "must be positive")
	}
	if a.MetricsSize <= 0 {
		return invalid("agent.metrics_size", "must be positive")
	}
	m := a.Memory
	if m.DocumentEntries <= 0 || m.StandardEntries <= 0 || m.ConversationEntries <= 0 || m.PatternEntries <= 0 {
		return invalid("agent.memory", "entry limits must be positive")
	}

	r := c.Registry
	if r.HealthCheckInterval <= 0 {
		return invalid("registry.health_check_interval", "must be positive")
	}
	if r.HealthCheckTimeout <= 0 {
		return invalid("registry.health_check_timeout", "must be positive")
	}
	if r.MetricsBufferSize <= 0 {
		return invalid("registry.metrics_buffer_size", "must be positive")
	}
	if r.HealthConcurrency <= 0 {
		return invalid("registry.health_concurrency", "must be positive")
	}

	if c.Standards.CacheSize <= 0 {
		return invalid("standards.cache_size", "must be positive")
	}

	switch c.Telemetry.Protocol {
	case "grpc", "http":
	default:
		return invalid("telemetry.protocol", "must be grpc or http")
	}

	switch logging.Format(strings.ToLower(c.Logging.Format)) {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return invalid("logging.format", "must be json or console")
	}
	return nil
}

// AgentSettings converts the [agent] section to an agent.Config.
func (c *Config) AgentSettings() agent.Config {
	return agent.Config{
		ModelID:       c.Provider.Model,
		Temperature:   c.Agent.Temperature,
		MaxTokens:     c.Agent.MaxTokens,
		Depth:         agent.Depth(c.Agent.Depth),
		RiskTolerance: agent.RiskTolerance(c.Agent.RiskTolerance),
	}
}

// LLM builds the llm.ProviderConfig, resolving the API key.
func (c *Config) LLM() (llm.ProviderConfig, error) {
	p := c.Provider
	pc := llm.ProviderConfig{
		Provider:       p.Type,
		Model:          p.Model,
		EmbeddingModel: p.EmbeddingModel,
		APIKey:         p.APIKey,
		MaxTokens:      p.MaxTokens,
		BaseURL:        p.BaseURL,
		Timeout:        p.Timeout.Std(),
		Retry:          llm.RetryConfig{MaxRetries: p.MaxRetries},
	}
	pc.ApplyDefaults()

	if pc.APIKey == "" && pc.Provider != llm.ProviderMock {
		key, err := c.resolveAPIKey(pc.Provider)
		if err != nil {
			return llm.ProviderConfig{}, err
		}
		pc.APIKey = key
	}
	if err := pc.Validate(); err != nil {
		return llm.ProviderConfig{}, err
	}
	return pc, nil
}

func (c *Config) resolveAPIKey(provider string) (string, error) {
	if key := os.Getenv(EnvVar(provider)); key != "" {
		return key, nil
	}

	var (
		creds *Credentials
		err   error
	)
	if c.Provider.CredentialsFile != "" {
		creds, err = LoadCredentialsFile(c.Provider.CredentialsFile)
	} else {
		creds, _, err = LoadCredentials()
	}
	if err != nil {
		return "", err
	}
	return creds.APIKey(provider), nil
}

// AgentOptions builds the options for agent.NewComplianceAgent. The caller
// attaches the standards source, logger and metrics.
func (c *Config) AgentOptions() (agent.Options, error) {
	pc, err := c.LLM()
	if err != nil {
		return agent.Options{}, err
	}
	settings := c.AgentSettings()
	return agent.Options{
		ID:                c.Agent.ID,
		Name:              c.Agent.Name,
		TenantID:          c.Agent.TenantID,
		ModelProviderType: pc.Provider,
		ModelConfig:       pc,
		Capabilities:      c.Agent.Capabilities,
		Config:            &settings,
		HistorySize:       c.Agent.HistorySize,
		MetricsSize:       c.Agent.MetricsSize,
		Memory:            c.Agent.Memory,
	}, nil
}

// RegistrySettings converts the [registry] section.
func (c *Config) RegistrySettings() registry.Config {
	r := c.Registry
	return registry.Config{
		HealthCheckInterval: r.HealthCheckInterval.Std(),
		HealthCheckTimeout:  r.HealthCheckTimeout.Std(),
		MetricsBufferSize:   r.MetricsBufferSize,
		HealthConcurrency:   r.HealthConcurrency,
	}
}

// RateLimiter builds a limiter for the configured backend. With no
// requests_per_minute set the limiter lets every call through.
func (c *Config) RateLimiter(logger *logging.Logger) (*ratelimit.Limiter, error) {
	pc, err := c.LLM()
	if err != nil {
		return nil, err
	}
	lim := ratelimit.New(ratelimit.WithLogger(logger))
	lim.SetCapacity(pc.Provider, c.Provider.RequestsPerMinute, time.Minute)
	return lim, nil
}

// TelemetrySettings converts the [telemetry] section.
func (c *Config) TelemetrySettings() telemetry.ProviderConfig {
	t := c.Telemetry
	return telemetry.ProviderConfig{
		ServiceName: t.ServiceName,
		Endpoint:    t.Endpoint,
		Protocol:    t.Protocol,
		Insecure:    t.Insecure,
		Debug:       t.Debug,
	}
}

// Logger builds a logger from the [logging] section.
func (c *Config) Logger() *logging.Logger {
	l := logging.New()
	l.SetLevel(logging.ParseLevel(c.Logging.Level))
	l.SetFormat(logging.Format(strings.ToLower(c.Logging.Format)))
	return l
}
