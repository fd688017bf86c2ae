package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowAll_AlwaysAllows(t *testing.T) {
	t.Parallel()
	v, err := (AllowAll{}).Authorize(context.Background(), Request{
		Identity: Anonymous,
		Action:   ActionCallTool,
		Resource: "dangerous_tool",
	})
	require.NoError(t, err)
	assert.True(t, v.Allowed)
}

type denyAll struct{ reason string }

func (d denyAll) Authorize(context.Context, Request) (Verdict, error) {
	return Verdict{Allowed: false, Reason: d.reason}, nil
}

func TestAuthorizer_DenyImplementation(t *testing.T) {
	t.Parallel()
	var a Authorizer = denyAll{reason: "no policy grants this action"}
	v, err := a.Authorize(context.Background(), Request{Action: ActionCallTool, Resource: "admin_only_tool"})
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, "no policy grants this action", v.Reason)
}
