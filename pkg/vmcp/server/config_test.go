package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magictunnel/magictunnel/pkg/vmcp/auth"
)

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()

	assert.Equal(t, 64, cfg.MaxInFlight)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.ForwardTimeout)
	assert.Equal(t, 30*time.Second, cfg.WebSocketPingEvery)
	assert.IsType(t, auth.AnonymousAuthenticator{}, cfg.Authenticator)
	assert.IsType(t, auth.AllowAll{}, cfg.Authorizer)
}

func TestConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	t.Parallel()

	want := &fakeAuthorizer{}
	cfg := Config{
		MaxInFlight:    8,
		RequestTimeout: time.Second,
		Authorizer:     want,
	}.withDefaults()

	assert.Equal(t, 8, cfg.MaxInFlight)
	assert.Equal(t, time.Second, cfg.RequestTimeout)
	assert.Same(t, want, cfg.Authorizer)
	// Untouched fields still pick up defaults.
	assert.Equal(t, 30*time.Second, cfg.ForwardTimeout)
}

type fakeAuthorizer struct{}

func (*fakeAuthorizer) Authorize(context.Context, auth.Request) (auth.Verdict, error) {
	return auth.Verdict{Allowed: true}, nil
}
