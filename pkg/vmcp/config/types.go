// Package config is the configuration surface of spec.md §6: a Config
// struct, a YAML loader with ${VAR} environment substitution, and a
// validator. It is a thin consumed surface — it does not implement CLI
// flag parsing beyond locating the file, and its auth sections describe
// only the shape an external authn/authz collaborator would consume
// (spec.md's Non-goals exclude implementing that collaborator itself).
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// Duration wraps time.Duration so it can be loaded from a YAML string like
// "30s" instead of an integer nanosecond count, matching the teacher's
// convention for every duration-typed config field.
type Duration time.Duration

func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the root configuration for one proxy process.
type Config struct {
	Name string `yaml:"name"`

	Listen       ListenConfig        `yaml:"listen"`
	Backends     []BackendConfig     `yaml:"backends"`
	Registry     RegistryConfig      `yaml:"registry"`
	Embedding    EmbeddingConfig     `yaml:"embedding"`
	Discovery    DiscoveryConfig     `yaml:"discovery"`
	Telemetry    TelemetryConfig     `yaml:"telemetry"`
	IncomingAuth *IncomingAuthConfig `yaml:"incoming_auth,omitempty"`

	Operational *OperationalConfig `yaml:"operational,omitempty"`
}

// ListenConfig is the set of transport endpoints the proxy accepts
// downstream sessions on. Any subset may be non-empty; an empty Config
// disables that transport entirely.
type ListenConfig struct {
	HTTP      string `yaml:"http,omitempty"`
	WebSocket string `yaml:"websocket,omitempty"`
	SSE       string `yaml:"sse,omitempty"`
	Stdio     bool   `yaml:"stdio,omitempty"`
}

// BackendConfig declares one upstream MCP server. AuthRef is an opaque
// reference resolved by the external auth collaborator (spec.md §6) into
// whatever credential that backend needs — this package never sees the
// credential value itself.
type BackendConfig struct {
	ID            string             `yaml:"id"`
	Name          string             `yaml:"name"`
	TransportType vmcp.TransportKind `yaml:"transport"`
	BaseURL       string             `yaml:"base_url,omitempty"`
	Command       string             `yaml:"command,omitempty"`
	Args          []string           `yaml:"args,omitempty"`
	Env           map[string]string  `yaml:"env,omitempty"`
	WorkingDir    string             `yaml:"working_dir,omitempty"`
	AuthRef       string             `yaml:"auth_ref,omitempty"`
}

// ToBackend converts the config shape into the registry-facing vmcp.Backend.
func (b BackendConfig) ToBackend() vmcp.Backend {
	return vmcp.Backend{
		ID:            b.ID,
		Name:          b.Name,
		TransportType: b.TransportType,
		BaseURL:       b.BaseURL,
		Command:       b.Command,
		Args:          b.Args,
		Env:           b.Env,
		WorkingDir:    b.WorkingDir,
		AuthRef:       b.AuthRef,
	}
}

// RegistryConfig locates the static tool catalog and controls hot reload.
type RegistryConfig struct {
	StaticToolsPath string `yaml:"static_tools_path,omitempty"`
	WatchReload     bool   `yaml:"watch_reload,omitempty"`
}

// EmbeddingConfig configures the tool-embedding store backing semantic
// discovery.
type EmbeddingConfig struct {
	DBPath  string `yaml:"db_path,omitempty"`
	ModelID string `yaml:"model_id,omitempty"`
}

// DiscoveryConfig configures smart tool discovery's hybrid ranker.
type DiscoveryConfig struct {
	SemanticWeight      float64 `yaml:"semantic_weight,omitempty"`
	RuleWeight          float64 `yaml:"rule_weight,omitempty"`
	LLMWeight           float64 `yaml:"llm_weight,omitempty"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold,omitempty"`

	LLMProvider      string  `yaml:"llm_provider,omitempty"`
	LLMModel         string  `yaml:"llm_model,omitempty"`
	LLMBaseURL       string  `yaml:"llm_base_url,omitempty"`
	LLMAPIKeyEnv     string  `yaml:"llm_api_key_env,omitempty"`
	LLMRatePerSecond float64 `yaml:"llm_rate_per_second,omitempty"`
	LLMTokenBudget   int     `yaml:"llm_token_budget,omitempty"`

	llmAPIKey string
}

// LLMAPIKey returns the resolved API key (populated by the loader from the
// environment variable named by LLMAPIKeyEnv).
func (d *DiscoveryConfig) LLMAPIKey() string { return d.llmAPIKey }

// TelemetryConfig configures tracing/metrics (pkg/vmcp/telemetry.Config).
type TelemetryConfig struct {
	TracingEnabled bool    `yaml:"tracing_enabled,omitempty"`
	SamplingRate   float64 `yaml:"sampling_rate,omitempty"`
	MetricsEnabled bool    `yaml:"metrics_enabled,omitempty"`
}

// IncomingAuthConfig describes how downstream callers authenticate to the
// proxy. Only the shape is defined here; verifying a token/session against
// this config is the external authn collaborator's job (spec.md §6,
// Non-goals).
type IncomingAuthConfig struct {
	Type string `yaml:"type"` // "anonymous", "oidc", ...

	OIDC *OIDCConfig `yaml:"oidc,omitempty"`
}

// OIDCConfig is the shape an external OIDC-verifying collaborator would
// need; ClientSecretEnv names an environment variable rather than
// embedding the secret in the YAML file directly.
type OIDCConfig struct {
	Issuer          string   `yaml:"issuer"`
	ClientID        string   `yaml:"client_id"`
	ClientSecretEnv string   `yaml:"client_secret_env,omitempty"`
	Audience        string   `yaml:"audience,omitempty"`
	Scopes          []string `yaml:"scopes,omitempty"`

	clientSecret string
}

// ClientSecret returns the resolved secret value (populated by the loader
// from the environment variable named by ClientSecretEnv).
func (o *OIDCConfig) ClientSecret() string { return o.clientSecret }

// MarshalJSON redacts the resolved secret so a Config is safe to log.
func (o OIDCConfig) MarshalJSON() ([]byte, error) {
	type alias OIDCConfig
	a := alias(o)
	a.clientSecret = ""
	return json.Marshal(a)
}
