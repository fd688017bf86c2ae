package config

import "time"

// Default operational values, used whenever a YAML document omits the
// corresponding field entirely.
const (
	DefaultHealthCheckInterval     = 15 * time.Second
	DefaultUnhealthyThreshold      = 3
	DefaultRequestTimeout          = 30 * time.Second
	DefaultCircuitFailureThreshold = 5
	DefaultCircuitOpenTimeout      = 30 * time.Second

	DefaultSemanticWeight      = 0.30
	DefaultRuleWeight          = 0.15
	DefaultLLMWeight           = 0.55
	DefaultConfidenceThreshold = 0.55
	DefaultLLMRatePerSecond    = 2.0
	DefaultLLMTokenBudget      = 2000

	DefaultEmbeddingModelID = "local-hash-v1"
)

// OperationalConfig holds the cross-cutting timeout/failure-handling knobs
// that apply across backends rather than to one named backend.
type OperationalConfig struct {
	RequestTimeout      Duration             `yaml:"request_timeout,omitempty"`
	HealthCheckInterval Duration             `yaml:"health_check_interval,omitempty"`
	UnhealthyThreshold  int                  `yaml:"unhealthy_threshold,omitempty"`
	CircuitBreaker      CircuitBreakerConfig `yaml:"circuit_breaker,omitempty"`
}

// CircuitBreakerConfig configures pkg/vmcp/health's per-backend breaker.
type CircuitBreakerConfig struct {
	Enabled          bool     `yaml:"enabled,omitempty"`
	FailureThreshold int      `yaml:"failure_threshold,omitempty"`
	OpenTimeout      Duration `yaml:"open_timeout,omitempty"`
}

// DefaultOperationalConfig returns the operational config applied when a
// document supplies none at all.
func DefaultOperationalConfig() OperationalConfig {
	return OperationalConfig{
		RequestTimeout:      Duration(DefaultRequestTimeout),
		HealthCheckInterval: Duration(DefaultHealthCheckInterval),
		UnhealthyThreshold:  DefaultUnhealthyThreshold,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: DefaultCircuitFailureThreshold,
			OpenTimeout:      Duration(DefaultCircuitOpenTimeout),
		},
	}
}

// EnsureOperationalDefaults fills in any zero-valued field of cfg.Operational
// (allocating it if nil) rather than requiring every field in a hand-written
// YAML document.
func EnsureOperationalDefaults(cfg *Config) {
	if cfg.Operational == nil {
		d := DefaultOperationalConfig()
		cfg.Operational = &d
		return
	}
	op := cfg.Operational
	if op.RequestTimeout == 0 {
		op.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if op.HealthCheckInterval == 0 {
		op.HealthCheckInterval = Duration(DefaultHealthCheckInterval)
	}
	if op.UnhealthyThreshold == 0 {
		op.UnhealthyThreshold = DefaultUnhealthyThreshold
	}
	if op.CircuitBreaker.FailureThreshold == 0 {
		op.CircuitBreaker.FailureThreshold = DefaultCircuitFailureThreshold
	}
	if op.CircuitBreaker.OpenTimeout == 0 {
		op.CircuitBreaker.OpenTimeout = Duration(DefaultCircuitOpenTimeout)
	}
}

// ensureDiscoveryDefaults fills zero-valued Discovery fields, mirroring
// EnsureOperationalDefaults for the weighting/LLM knobs (spec.md §4.6).
func ensureDiscoveryDefaults(d *DiscoveryConfig) {
	if d.SemanticWeight == 0 && d.RuleWeight == 0 && d.LLMWeight == 0 {
		d.SemanticWeight = DefaultSemanticWeight
		d.RuleWeight = DefaultRuleWeight
		d.LLMWeight = DefaultLLMWeight
	}
	if d.ConfidenceThreshold == 0 {
		d.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if d.LLMRatePerSecond == 0 {
		d.LLMRatePerSecond = DefaultLLMRatePerSecond
	}
	if d.LLMTokenBudget == 0 {
		d.LLMTokenBudget = DefaultLLMTokenBudget
	}
}

// ensureEmbeddingDefaults fills Embedding.ModelID when omitted.
func ensureEmbeddingDefaults(e *EmbeddingConfig) {
	if e.ModelID == "" {
		e.ModelID = DefaultEmbeddingModelID
	}
}

// ApplyDefaults fills every defaultable section of cfg in place. The YAML
// loader calls this after unmarshalling and before validation so Validate
// only ever has to reject genuinely missing required fields, never
// defaultable ones.
func ApplyDefaults(cfg *Config) {
	EnsureOperationalDefaults(cfg)
	ensureDiscoveryDefaults(&cfg.Discovery)
	ensureEmbeddingDefaults(&cfg.Embedding)
}
