package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

func TestSubprocessAdapter_Call(t *testing.T) {
	t.Parallel()
	a := NewSubprocessAdapter()
	tool := vmcp.Tool{
		Name: "echo",
		Routing: vmcp.RoutingConfig{
			Variant:    vmcp.RoutingSubprocess,
			Subprocess: &vmcp.SubprocessRouting{Command: "echo", Args: []string{"hello {name}"}},
		},
	}
	res, err := a.Call(context.Background(), tool, map[string]any{"name": "world"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	require.Len(t, res.Content, 1)
	assert.Contains(t, res.Content[0].Text, "hello world")
}

func TestSubprocessAdapter_TimeoutReturnsKindTimeout(t *testing.T) {
	t.Parallel()
	a := NewSubprocessAdapter()
	tool := vmcp.Tool{
		Name: "sleeper",
		Routing: vmcp.RoutingConfig{
			Variant: vmcp.RoutingSubprocess,
			Subprocess: &vmcp.SubprocessRouting{
				Command:   "sleep",
				Args:      []string{"5"},
				TimeoutMS: 50,
			},
		},
	}
	_, err := a.Call(context.Background(), tool, nil)
	require.Error(t, err)
	assert.Equal(t, mterrors.KindTimeout, mterrors.KindOf(err))
}

func TestSubprocessAdapter_MissingRoutingConfig(t *testing.T) {
	t.Parallel()
	a := NewSubprocessAdapter()
	_, err := a.Call(context.Background(), vmcp.Tool{Name: "bad"}, nil)
	require.Error(t, err)
	assert.Equal(t, mterrors.KindInternalError, mterrors.KindOf(err))
}

func TestSubprocessAdapter_MissingSubstitutionValueIsInvalidParams(t *testing.T) {
	t.Parallel()
	a := NewSubprocessAdapter()
	tool := vmcp.Tool{
		Name: "echo",
		Routing: vmcp.RoutingConfig{
			Variant:    vmcp.RoutingSubprocess,
			Subprocess: &vmcp.SubprocessRouting{Command: "echo", Args: []string{"{missing}"}},
		},
	}
	_, err := a.Call(context.Background(), tool, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, mterrors.KindInvalidParams, mterrors.KindOf(err))
}
