// Package server wires the transport, session, registry, router, and
// discovery layers into one running proxy process: it accepts downstream
// connections on every configured transport, negotiates the MCP
// handshake, and dispatches each request to the capability registry, the
// tool router, or smart tool discovery.
package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/magictunnel/magictunnel/pkg/vmcp/auth"
	"github.com/magictunnel/magictunnel/pkg/vmcp/telemetry"
)

// Config is everything Server needs beyond the collaborators passed
// explicitly to New (registry manager, router, client pool, discovery
// engine).
type Config struct {
	Name    string
	Version string

	ListenHTTP      string
	ListenWebSocket string
	ListenSSE       string

	MaxInFlight        int
	RequestTimeout     time.Duration
	ForwardTimeout     time.Duration
	WebSocketPingEvery time.Duration

	Authenticator auth.Authenticator
	Authorizer    auth.Authorizer

	Telemetry  *telemetry.Providers
	Registerer prometheus.Registerer
}

func (c Config) withDefaults() Config {
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 64
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ForwardTimeout <= 0 {
		c.ForwardTimeout = 30 * time.Second
	}
	if c.WebSocketPingEvery <= 0 {
		c.WebSocketPingEvery = 30 * time.Second
	}
	if c.Authenticator == nil {
		c.Authenticator = auth.AnonymousAuthenticator{}
	}
	if c.Authorizer == nil {
		c.Authorizer = auth.AllowAll{}
	}
	return c
}
