package server

import (
	"context"
	"encoding/json"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/auth"
	"github.com/magictunnel/magictunnel/pkg/vmcp/discovery"
	"github.com/magictunnel/magictunnel/pkg/vmcp/registry"
	"github.com/magictunnel/magictunnel/pkg/vmcp/session"
)

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type resourceReadParams struct {
	URI string `json:"uri"`
}

type promptGetParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// buildHandlers returns the DownstreamDispatcher.Handlers map for one
// downstream client session. identity is the caller resolved during the
// HTTP, WebSocket or SSE connection.
func (s *Server) buildHandlers(identity *auth.Identity) map[string]func(context.Context, *session.Session, json.RawMessage) (any, error) {
	return map[string]func(context.Context, *session.Session, json.RawMessage) (any, error){
		"initialize": func(_ context.Context, sess *session.Session, params json.RawMessage) (any, error) {
			return session.HandleInitialize(sess, s.localCapabilities, session.ClientInfo{Name: s.cfg.Name, Version: s.cfg.Version}, params)
		},
		"ping": func(context.Context, *session.Session, json.RawMessage) (any, error) {
			return struct{}{}, nil
		},
		"tools/list": func(ctx context.Context, _ *session.Session, _ json.RawMessage) (any, error) {
			if err := s.registry.EnsureLoaded(ctx, registry.Identity{Subject: identity.Subject}); err != nil {
				return nil, mterrors.Wrap(mterrors.KindInternalError, err, "load capabilities")
			}
			snap := s.registry.Registry().Current()
			return map[string]any{"tools": snap.AdvertisedTools(false)}, nil
		},
		"tools/call": func(ctx context.Context, sess *session.Session, params json.RawMessage) (any, error) {
			return s.handleToolCall(ctx, identity, sess, params)
		},
		"resources/list": func(ctx context.Context, _ *session.Session, _ json.RawMessage) (any, error) {
			if err := s.registry.EnsureLoaded(ctx, registry.Identity{Subject: identity.Subject}); err != nil {
				return nil, mterrors.Wrap(mterrors.KindInternalError, err, "load capabilities")
			}
			snap := s.registry.Registry().Current()
			out := make([]vmcp.Resource, 0, len(snap.Resources))
			for _, r := range snap.Resources {
				out = append(out, r)
			}
			return map[string]any{"resources": out}, nil
		},
		"resources/read": func(ctx context.Context, _ *session.Session, params json.RawMessage) (any, error) {
			return s.handleResourceRead(ctx, identity, params)
		},
		"prompts/list": func(ctx context.Context, _ *session.Session, _ json.RawMessage) (any, error) {
			if err := s.registry.EnsureLoaded(ctx, registry.Identity{Subject: identity.Subject}); err != nil {
				return nil, mterrors.Wrap(mterrors.KindInternalError, err, "load capabilities")
			}
			snap := s.registry.Registry().Current()
			out := make([]vmcp.Prompt, 0, len(snap.Prompts))
			for _, p := range snap.Prompts {
				out = append(out, p)
			}
			return map[string]any{"prompts": out}, nil
		},
		"prompts/get": func(ctx context.Context, _ *session.Session, params json.RawMessage) (any, error) {
			return s.handlePromptGet(ctx, identity, params)
		},
	}
}

func (s *Server) handleToolCall(ctx context.Context, identity *auth.Identity, sess *session.Session, raw json.RawMessage) (any, error) {
	var params toolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, mterrors.Wrap(mterrors.KindInvalidParams, err, "malformed tools/call params")
	}

	verdict, err := s.cfg.Authorizer.Authorize(ctx, auth.Request{Identity: *identity, Action: auth.ActionCallTool, Resource: params.Name})
	if err != nil {
		return nil, mterrors.Wrap(mterrors.KindInternalError, err, "authorize tools/call %q", params.Name)
	}
	if !verdict.Allowed {
		return nil, mterrors.New(mterrors.KindInvalidParams, "tools/call %q denied: %s", params.Name, verdict.Reason)
	}

	// origin identifies the downstream session this call came from, so a
	// sampling/elicitation request the upstream issues mid-call can be
	// routed back to the right client (spec.md §5).
	origin := session.Origin{SessionID: sess.ID}

	var result vmcp.ToolCallResult
	if params.Name == registry.DiscoveryToolName {
		if s.argumentMapper == nil {
			return nil, mterrors.New(mterrors.KindInvalidParams, "%s requires an LLM provider, none is configured", registry.DiscoveryToolName)
		}
		result, err = s.discoveryEngine.Invoke(ctx, discoveryRequest(params.Arguments), s.argumentMapper, s.router, origin)
	} else {
		result, err = s.router.Dispatch(ctx, params.Name, params.Arguments, origin)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": result.Content, "isError": result.IsError}, nil
}

func discoveryRequest(args map[string]any) string {
	if v, ok := args["request"].(string); ok {
		return v
	}
	return ""
}

func (s *Server) handleResourceRead(ctx context.Context, identity *auth.Identity, raw json.RawMessage) (any, error) {
	var params resourceReadParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, mterrors.Wrap(mterrors.KindInvalidParams, err, "malformed resources/read params")
	}
	verdict, err := s.cfg.Authorizer.Authorize(ctx, auth.Request{Identity: *identity, Action: auth.ActionReadResource, Resource: params.URI})
	if err != nil {
		return nil, mterrors.Wrap(mterrors.KindInternalError, err, "authorize resources/read %q", params.URI)
	}
	if !verdict.Allowed {
		return nil, mterrors.New(mterrors.KindInvalidParams, "resources/read %q denied: %s", params.URI, verdict.Reason)
	}

	snap := s.registry.Registry().Current()
	res, ok := findResource(snap.Resources, params.URI)
	if !ok {
		return nil, mterrors.New(mterrors.KindToolNotFound, "resource %q not found", params.URI)
	}
	return s.forwardBackendCall(ctx, res.BackendID, "resources/read", map[string]any{"uri": params.URI}, session.Origin{Self: true})
}

func (s *Server) handlePromptGet(ctx context.Context, identity *auth.Identity, raw json.RawMessage) (any, error) {
	var params promptGetParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, mterrors.Wrap(mterrors.KindInvalidParams, err, "malformed prompts/get params")
	}
	verdict, err := s.cfg.Authorizer.Authorize(ctx, auth.Request{Identity: *identity, Action: auth.ActionGetPrompt, Resource: params.Name})
	if err != nil {
		return nil, mterrors.Wrap(mterrors.KindInternalError, err, "authorize prompts/get %q", params.Name)
	}
	if !verdict.Allowed {
		return nil, mterrors.New(mterrors.KindInvalidParams, "prompts/get %q denied: %s", params.Name, verdict.Reason)
	}

	snap := s.registry.Registry().Current()
	p, ok := snap.Prompts[params.Name]
	if !ok {
		return nil, mterrors.New(mterrors.KindToolNotFound, "prompt %q not found", params.Name)
	}
	return s.forwardBackendCall(ctx, p.BackendID, "prompts/get", map[string]any{"name": params.Name, "arguments": params.Arguments}, session.Origin{Self: true})
}

func findResource(resources map[string]vmcp.Resource, uri string) (vmcp.Resource, bool) {
	for _, r := range resources {
		if r.URI == uri {
			return r, true
		}
	}
	return vmcp.Resource{}, false
}

// forwardBackendCall relays one request verbatim to backendID's upstream
// session and returns the decoded result, for MCP methods the router
// doesn't cover (resources/read, prompts/get are not tool calls and carry
// no routing template).
func (s *Server) forwardBackendCall(ctx context.Context, backendID, method string, params map[string]any, origin session.Origin) (any, error) {
	if backendID == "" {
		return nil, mterrors.New(mterrors.KindInternalError, "%s: no backend associated with this capability", method)
	}
	cl, ok := s.pool.Get(backendID)
	if !ok {
		return nil, mterrors.New(mterrors.KindUpstreamUnavailable, "backend %q not registered", backendID)
	}
	sess := cl.Session()
	if sess == nil {
		return nil, mterrors.New(mterrors.KindUpstreamUnavailable, "backend %q not connected", backendID)
	}
	raw, err := sess.SendRequest(ctx, method, params, s.cfg.RequestTimeout, origin)
	if err != nil {
		return nil, err
	}
	var decoded any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, mterrors.Wrap(mterrors.KindProtocolError, err, "decode %s result", method)
		}
	}
	return decoded, nil
}
