package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

func validConfig() *Config {
	cfg := &Config{
		Name: "test-proxy",
		Listen: ListenConfig{
			HTTP: ":8080",
		},
		Backends: []BackendConfig{
			{ID: "b1", Name: "backend one", TransportType: vmcp.TransportStreamableHTTP, BaseURL: "http://localhost:9000"},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Cases(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "missing name",
			mutate: func(c *Config) { c.Name = "" },
			errMsg: "name is required",
		},
		{
			name:   "no listen transports",
			mutate: func(c *Config) { c.Listen = ListenConfig{} },
			errMsg: "at least one of http, websocket, sse, stdio",
		},
		{
			name:   "no backends",
			mutate: func(c *Config) { c.Backends = nil },
			errMsg: "at least one backend is required",
		},
		{
			name: "backend missing id",
			mutate: func(c *Config) {
				c.Backends[0].ID = ""
			},
			errMsg: "id is required",
		},
		{
			name: "stdio backend missing command",
			mutate: func(c *Config) {
				c.Backends[0].TransportType = vmcp.TransportStdio
				c.Backends[0].Command = ""
			},
			errMsg: "requires command",
		},
		{
			name: "http backend missing base_url",
			mutate: func(c *Config) {
				c.Backends[0].BaseURL = ""
			},
			errMsg: "requires base_url",
		},
		{
			name: "duplicate backend id",
			mutate: func(c *Config) {
				c.Backends = append(c.Backends, c.Backends[0])
			},
			errMsg: "duplicate id",
		},
		{
			name: "unknown transport",
			mutate: func(c *Config) {
				c.Backends[0].TransportType = "carrier-pigeon"
			},
			errMsg: "unknown transport",
		},
		{
			name: "discovery weights all zero",
			mutate: func(c *Config) {
				c.Discovery = DiscoveryConfig{}
			},
			errMsg: "must be > 0",
		},
		{
			name: "discovery confidence threshold out of range",
			mutate: func(c *Config) {
				c.Discovery.ConfidenceThreshold = 1.5
			},
			errMsg: "must be within [0,1]",
		},
		{
			name: "oidc without issuer",
			mutate: func(c *Config) {
				c.IncomingAuth = &IncomingAuthConfig{Type: "oidc", OIDC: &OIDCConfig{ClientID: "abc"}}
			},
			errMsg: "issuer is required",
		},
		{
			name: "unknown incoming auth type",
			mutate: func(c *Config) {
				c.IncomingAuth = &IncomingAuthConfig{Type: "carrier-pigeon"}
			},
			errMsg: "unknown type",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
