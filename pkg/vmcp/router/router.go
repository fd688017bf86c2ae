// Package router implements the tool router (spec.md §4.4): it resolves a
// tool call against the capability registry's routing table, substitutes
// the caller's arguments into the tool's routing template, dispatches
// through the adapter matching the tool's routing variant, and normalizes
// the result to vmcp.ToolCallResult.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/registry"
	"github.com/magictunnel/magictunnel/pkg/vmcp/schema"
	"github.com/magictunnel/magictunnel/pkg/vmcp/session"
)

// Adapter dispatches one tool call through a specific backend mechanism
// (subprocess, HTTP, gRPC, ...).
type Adapter interface {
	Call(ctx context.Context, tool vmcp.Tool, args map[string]any) (vmcp.ToolCallResult, error)
}

// UpstreamCaller is implemented by the client pool: it forwards a
// tools/call to a named upstream backend, pushing origin as the active
// origin so bidirectional sampling/elicitation attributes correctly.
type UpstreamCaller interface {
	CallTool(ctx context.Context, backendID, originalName string, args map[string]any, origin session.Origin, timeout time.Duration) (vmcp.ToolCallResult, error)
}

// Router resolves and dispatches tool calls.
type Router struct {
	registry *registry.Registry
	upstream UpstreamCaller

	subprocess Adapter
	http       Adapter
	grpcA      Adapter
	graphql    Adapter
	websocket  Adapter
	sse        Adapter
	database   Adapter
	llm        Adapter
}

// Option configures a Router's adapters. Every adapter is optional: a nil
// adapter for a routing variant that's never used in the configured
// registry is fine, and dispatch fails clearly if it's ever needed.
type Option func(*Router)

func WithSubprocess(a Adapter) Option { return func(r *Router) { r.subprocess = a } }
func WithHTTP(a Adapter) Option       { return func(r *Router) { r.http = a } }
func WithGRPC(a Adapter) Option       { return func(r *Router) { r.grpcA = a } }
func WithGraphQL(a Adapter) Option    { return func(r *Router) { r.graphql = a } }
func WithWebSocket(a Adapter) Option  { return func(r *Router) { r.websocket = a } }
func WithSSE(a Adapter) Option        { return func(r *Router) { r.sse = a } }
func WithDatabase(a Adapter) Option   { return func(r *Router) { r.database = a } }
func WithLLM(a Adapter) Option        { return func(r *Router) { r.llm = a } }

// New builds a Router against reg's live snapshot and upstream for
// RoutingUpstreamMCP dispatch.
func New(reg *registry.Registry, upstream UpstreamCaller, opts ...Option) *Router {
	r := &Router{registry: reg, upstream: upstream}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch looks up toolName in the current snapshot, validates args
// against its input schema, and routes the call through the matching
// adapter. origin identifies the downstream client/session that issued
// the call, used only when the tool routes to RoutingUpstreamMCP.
func (r *Router) Dispatch(ctx context.Context, toolName string, args map[string]any, origin session.Origin) (vmcp.ToolCallResult, error) {
	snap := r.registry.Current()
	tool, ok := snap.Tool(toolName)
	if !ok {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindToolNotFound, "tool %q not found", toolName)
	}

	if len(tool.InputSchema) > 0 {
		violations, err := schema.ValidateArguments(tool.InputSchema, args)
		if err != nil {
			return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInternalError, err, "validate arguments for %q", toolName)
		}
		if len(violations) > 0 {
			return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInvalidParams, "invalid arguments for %q: %v", toolName, violations)
		}
	}

	return r.dispatchVariant(ctx, tool, args, origin)
}

func (r *Router) dispatchVariant(ctx context.Context, tool vmcp.Tool, args map[string]any, origin session.Origin) (vmcp.ToolCallResult, error) {
	switch tool.Routing.Variant {
	case vmcp.RoutingSubprocess:
		return callAdapter(ctx, r.subprocess, tool, args, "subprocess")
	case vmcp.RoutingHTTP:
		return r.callHTTPWithRetry(ctx, tool, args)
	case vmcp.RoutingGRPC:
		return callAdapter(ctx, r.grpcA, tool, args, "grpc")
	case vmcp.RoutingGraphQL:
		return callAdapter(ctx, r.graphql, tool, args, "graphql")
	case vmcp.RoutingWebSocket:
		return callAdapter(ctx, r.websocket, tool, args, "websocket")
	case vmcp.RoutingSSE:
		return callAdapter(ctx, r.sse, tool, args, "sse")
	case vmcp.RoutingDatabase:
		return callAdapter(ctx, r.database, tool, args, "database")
	case vmcp.RoutingLLM:
		return callAdapter(ctx, r.llm, tool, args, "llm")
	case vmcp.RoutingUpstreamMCP:
		return r.callUpstream(ctx, tool, args, origin)
	default:
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "tool %q has unknown routing variant %q", tool.Name, tool.Routing.Variant)
	}
}

func callAdapter(ctx context.Context, a Adapter, tool vmcp.Tool, args map[string]any, variant string) (vmcp.ToolCallResult, error) {
	if a == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "no %s adapter configured", variant)
	}
	return a.Call(ctx, tool, args)
}

func (r *Router) callUpstream(ctx context.Context, tool vmcp.Tool, args map[string]any, origin session.Origin) (vmcp.ToolCallResult, error) {
	if r.upstream == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "no upstream caller configured")
	}
	if tool.Routing.Upstream == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "tool %q missing upstream routing config", tool.Name)
	}
	timeout := 30 * time.Second
	return r.upstream.CallTool(ctx, tool.BackendID, tool.Routing.Upstream.OriginalName, args, origin, timeout)
}

// callHTTPWithRetry applies the HTTP routing's retry policy (spec.md §4.4
// "Retry/backoff semantics respecting deadlines") around the HTTP adapter,
// since retrying is a cross-cutting router concern, not the adapter's.
func (r *Router) callHTTPWithRetry(ctx context.Context, tool vmcp.Tool, args map[string]any) (vmcp.ToolCallResult, error) {
	if r.http == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "no http adapter configured")
	}
	retry := tool.Routing.HTTP.Retry
	if retry == nil || retry.MaxAttempts <= 1 {
		return r.http.Call(ctx, tool, args)
	}

	var lastErr error
	wait := time.Duration(retry.InitialMS) * time.Millisecond
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		result, err := r.http.Call(ctx, tool, args)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == retry.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return vmcp.ToolCallResult{}, ctx.Err()
		case <-time.After(wait):
		}
		wait = time.Duration(float64(wait) * retry.Multiplier)
		if maxWait := time.Duration(retry.MaxMS) * time.Millisecond; retry.MaxMS > 0 && wait > maxWait {
			wait = maxWait
		}
	}
	return vmcp.ToolCallResult{}, fmt.Errorf("router: %s: all %d attempts failed: %w", tool.Name, retry.MaxAttempts, lastErr)
}
