package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnv map[string]string

func (f fakeEnv) LookupEnv(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalDoc = `
name: test-proxy
listen:
  http: ":8080"
backends:
  - id: b1
    name: backend one
    transport: streamable-http
    base_url: "${BACKEND_URL}"
`

func TestLoad_ExpandsEnvAndValidates(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, minimalDoc)
	env := fakeEnv{"BACKEND_URL": "http://localhost:9000"}

	cfg, err := Load(path, env)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", cfg.Backends[0].BaseURL)
	assert.NotNil(t, cfg.Operational)
}

func TestLoad_UndefinedEnvVarFails(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, minimalDoc)

	_, err := Load(path, fakeEnv{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_URL")
}

func TestLoad_InvalidConfigFailsValidation(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
name: ""
backends: []
`)
	_, err := Load(path, fakeEnv{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"), fakeEnv{})
	assert.Error(t, err)
}

func TestLoad_ResolvesOIDCClientSecret(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, minimalDoc+`
incoming_auth:
  type: oidc
  oidc:
    issuer: "https://issuer.example.com"
    client_id: "abc123"
    client_secret_env: "OIDC_SECRET"
`)
	env := fakeEnv{"BACKEND_URL": "http://localhost:9000", "OIDC_SECRET": "s3cr3t"}

	cfg, err := Load(path, env)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", cfg.IncomingAuth.OIDC.ClientSecret())

	raw, err := cfg.IncomingAuth.OIDC.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cr3t")
}

func TestLoad_ResolvesLLMAPIKey(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, minimalDoc+`
discovery:
  llm_provider: openai
  llm_model: gpt-4o-mini
  llm_api_key_env: "LLM_API_KEY"
`)
	env := fakeEnv{"BACKEND_URL": "http://localhost:9000", "LLM_API_KEY": "sk-test"}

	cfg, err := Load(path, env)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Discovery.LLMAPIKey())
}

func TestLoad_MissingLLMAPIKeyEnvFails(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, minimalDoc+`
discovery:
  llm_provider: openai
  llm_model: gpt-4o-mini
  llm_api_key_env: "LLM_API_KEY"
`)
	env := fakeEnv{"BACKEND_URL": "http://localhost:9000"}

	_, err := Load(path, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestLoad_MissingOIDCSecretEnvFails(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, minimalDoc+`
incoming_auth:
  type: oidc
  oidc:
    issuer: "https://issuer.example.com"
    client_id: "abc123"
    client_secret_env: "OIDC_SECRET"
`)
	env := fakeEnv{"BACKEND_URL": "http://localhost:9000"}

	_, err := Load(path, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OIDC_SECRET")
}
