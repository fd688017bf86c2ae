package client

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/registry"
	"github.com/magictunnel/magictunnel/pkg/vmcp/session"
)

// Discover implements registry.BackendDiscoverer: it issues tools/list,
// resources/list, and prompts/list on the backend's current session and
// folds the results into a registry.Source. A backend with no ready
// session (still connecting/reconnecting) yields an UpstreamUnavailable
// error; the registry logs it and leaves that backend out of the snapshot
// it is building, so the backend's tools are absent until a later load
// discovers them again.
func (p *Pool) Discover(ctx context.Context, backend vmcp.Backend) (registry.Source, error) {
	cl, ok := p.client(backend.ID)
	if !ok {
		return registry.Source{}, mterrors.New(mterrors.KindUpstreamUnavailable, "backend %s: no client", backend.Name)
	}
	sess := cl.Session()
	if sess == nil {
		return registry.Source{}, mterrors.New(mterrors.KindUpstreamUnavailable, "backend %s: not connected", backend.Name)
	}

	tools, err := listTools(ctx, sess)
	if err != nil {
		return registry.Source{}, err
	}
	resources, err := listResources(ctx, sess)
	if err != nil {
		return registry.Source{}, err
	}
	prompts, err := listPrompts(ctx, sess)
	if err != nil {
		return registry.Source{}, err
	}
	if cl.monitor != nil {
		cl.monitor.SetToolCount(len(tools))
	}
	return registry.Source{
		Tools:     tools,
		Resources: resources,
		Prompts:   prompts,
	}, nil
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

func listTools(ctx context.Context, sess *session.Session) ([]vmcp.Tool, error) {
	raw, err := sess.SendRequest(ctx, "tools/list", map[string]any{}, defaultListTimeout, session.Origin{Self: true})
	if err != nil {
		return nil, mterrors.Wrap(mterrors.KindUpstreamUnavailable, err, "tools/list")
	}
	var result struct {
		Tools []wireTool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, mterrors.Wrap(mterrors.KindProtocolError, err, "decode tools/list")
	}
	out := make([]vmcp.Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		out = append(out, vmcp.Tool{
			Name:         t.Name,
			Description:  t.Description,
			InputSchema:  t.InputSchema,
			OriginalName: t.Name,
			Routing:      vmcp.RoutingConfig{Variant: vmcp.RoutingUpstreamMCP, Upstream: &vmcp.UpstreamRouting{OriginalName: t.Name}},
		})
	}
	return out, nil
}

type wireResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

func listResources(ctx context.Context, sess *session.Session) ([]vmcp.Resource, error) {
	raw, err := sess.SendRequest(ctx, "resources/list", map[string]any{}, defaultListTimeout, session.Origin{Self: true})
	if err != nil {
		var rpcErr *mterrors.Error
		if errors.As(err, &rpcErr) && rpcErr.Kind == mterrors.KindToolError && rpcErr.Code() == -32601 {
			// Upstream doesn't implement resources; not every server does.
			return nil, nil
		}
		return nil, mterrors.Wrap(mterrors.KindUpstreamUnavailable, err, "resources/list")
	}
	var result struct {
		Resources []wireResource `json:"resources"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, mterrors.Wrap(mterrors.KindProtocolError, err, "decode resources/list")
	}
	out := make([]vmcp.Resource, 0, len(result.Resources))
	for _, r := range result.Resources {
		out = append(out, vmcp.Resource{URI: r.URI, Name: r.Name, Description: r.Description, MimeType: r.MimeType})
	}
	return out, nil
}

type wirePrompt struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Arguments   []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Required    bool   `json:"required"`
	} `json:"arguments"`
}

func listPrompts(ctx context.Context, sess *session.Session) ([]vmcp.Prompt, error) {
	raw, err := sess.SendRequest(ctx, "prompts/list", map[string]any{}, defaultListTimeout, session.Origin{Self: true})
	if err != nil {
		var rpcErr *mterrors.Error
		if errors.As(err, &rpcErr) && rpcErr.Kind == mterrors.KindToolError && rpcErr.Code() == -32601 {
			return nil, nil
		}
		return nil, mterrors.Wrap(mterrors.KindUpstreamUnavailable, err, "prompts/list")
	}
	var result struct {
		Prompts []wirePrompt `json:"prompts"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, mterrors.Wrap(mterrors.KindProtocolError, err, "decode prompts/list")
	}
	out := make([]vmcp.Prompt, 0, len(result.Prompts))
	for _, p := range result.Prompts {
		args := make([]vmcp.PromptArgument, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, vmcp.PromptArgument{Name: a.Name, Description: a.Description, Required: a.Required})
		}
		out = append(out, vmcp.Prompt{Name: p.Name, Description: p.Description, Arguments: args})
	}
	return out, nil
}
