package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads path, expands ${VAR} references against env, unmarshals the
// result as a Config, applies defaults, resolves auth secrets, and
// validates. It is the single entry point cmd/magictunnel's --config flag
// uses to go from a file on disk to a ready-to-wire Config.
func Load(path string, env Reader) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded, err := expandEnv(string(raw), env)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := resolveAuthSecrets(&cfg, env); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &cfg, nil
}

// expandEnv replaces every ${VAR} reference in doc with env's value for VAR,
// failing if VAR is unset — a silently empty substitution (a missing
// backend URL, a misspelled secret name) is a misconfiguration, not a
// blank default.
func expandEnv(doc string, env Reader) (string, error) {
	var firstErr error
	out := envRefPattern.ReplaceAllStringFunc(doc, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := envRefPattern.FindStringSubmatch(match)[1]
		val, ok := env.LookupEnv(name)
		if !ok {
			firstErr = fmt.Errorf("undefined environment variable %q", name)
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// resolveAuthSecrets populates OIDCConfig.clientSecret and
// DiscoveryConfig.llmAPIKey from the environment variables they name, if
// set. Unlike expandEnv this is optional: a backend with no incoming OIDC
// auth (or no LLM ranking tier) configured has nothing to resolve.
func resolveAuthSecrets(cfg *Config, env Reader) error {
	if cfg.IncomingAuth != nil && cfg.IncomingAuth.OIDC != nil {
		oidc := cfg.IncomingAuth.OIDC
		if oidc.ClientSecretEnv != "" {
			val, ok := env.LookupEnv(oidc.ClientSecretEnv)
			if !ok {
				return fmt.Errorf("incoming_auth.oidc.client_secret_env %q is not set", oidc.ClientSecretEnv)
			}
			oidc.clientSecret = val
		}
	}

	if cfg.Discovery.LLMAPIKeyEnv != "" {
		val, ok := env.LookupEnv(cfg.Discovery.LLMAPIKeyEnv)
		if !ok {
			return fmt.Errorf("discovery.llm_api_key_env %q is not set", cfg.Discovery.LLMAPIKeyEnv)
		}
		cfg.Discovery.llmAPIKey = val
	}
	return nil
}
