package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/registry"
	"github.com/magictunnel/magictunnel/pkg/vmcp/session"
)

type fakeAdapter struct {
	lastArgs map[string]any
	result   vmcp.ToolCallResult
	err      error
}

func (a *fakeAdapter) Call(_ context.Context, _ vmcp.Tool, args map[string]any) (vmcp.ToolCallResult, error) {
	a.lastArgs = args
	return a.result, a.err
}

func registryWithTool(tool vmcp.Tool) *registry.Registry {
	src := registry.Source{Static: true, Tools: []vmcp.Tool{tool}}
	snap, diags := registry.Merge([]registry.Source{src})
	if len(diags) > 0 {
		panic(diags[0])
	}
	r := registry.New()
	r.Swap(snap)
	return r
}

func TestRouter_DispatchSubprocess(t *testing.T) {
	t.Parallel()
	tool := vmcp.Tool{
		Name:        "echo",
		Description: "echoes",
		InputSchema: []byte(`{"type":"object","properties":{"msg":{"type":"string"}}}`),
		Routing:     vmcp.RoutingConfig{Variant: vmcp.RoutingSubprocess, Subprocess: &vmcp.SubprocessRouting{Command: "true"}},
	}
	reg := registryWithTool(tool)
	adapter := &fakeAdapter{result: vmcp.ToolCallResult{OK: true, Content: []vmcp.Content{{Type: "text", Text: "hi"}}}}
	r := New(reg, nil, WithSubprocess(adapter))

	result, err := r.Dispatch(context.Background(), "echo", map[string]any{"msg": "hi"}, session.Origin{Self: true})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "hi", adapter.lastArgs["msg"])
}

func TestRouter_DispatchUnknownTool(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	r := New(reg, nil)
	_, err := r.Dispatch(context.Background(), "nope", nil, session.Origin{Self: true})
	assert.Error(t, err)
}

func TestRouter_DispatchInvalidArguments(t *testing.T) {
	t.Parallel()
	tool := vmcp.Tool{
		Name:        "strict",
		InputSchema: []byte(`{"type":"object","required":["q"],"properties":{"q":{"type":"string"}}}`),
		Routing:     vmcp.RoutingConfig{Variant: vmcp.RoutingSubprocess, Subprocess: &vmcp.SubprocessRouting{Command: "true"}},
	}
	reg := registryWithTool(tool)
	r := New(reg, nil, WithSubprocess(&fakeAdapter{}))

	_, err := r.Dispatch(context.Background(), "strict", map[string]any{}, session.Origin{Self: true})
	assert.Error(t, err)
}

type fakeUpstreamCaller struct {
	calledBackend string
	calledOrig    string
	result        vmcp.ToolCallResult
}

func (f *fakeUpstreamCaller) CallTool(_ context.Context, backendID, originalName string, _ map[string]any, _ session.Origin, _ time.Duration) (vmcp.ToolCallResult, error) {
	f.calledBackend = backendID
	f.calledOrig = originalName
	return f.result, nil
}

func TestRouter_DispatchUpstreamMCP(t *testing.T) {
	t.Parallel()
	tool := vmcp.Tool{
		Name:        "remote_search",
		BackendID:   "backend-1",
		InputSchema: []byte(`{"type":"object"}`),
		Routing:     vmcp.RoutingConfig{Variant: vmcp.RoutingUpstreamMCP, Upstream: &vmcp.UpstreamRouting{Server: "search-server", OriginalName: "search"}},
	}
	reg := registryWithTool(tool)
	caller := &fakeUpstreamCaller{result: vmcp.ToolCallResult{OK: true}}
	r := New(reg, caller)

	result, err := r.Dispatch(context.Background(), "remote_search", map[string]any{}, session.Origin{SessionID: "client-1"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "backend-1", caller.calledBackend)
	assert.Equal(t, "search", caller.calledOrig)
}
