package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// GraphQLAdapter posts a query/mutation document with the caller's
// arguments as GraphQL variables.
type GraphQLAdapter struct {
	Client *http.Client
}

func NewGraphQLAdapter(client *http.Client) *GraphQLAdapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GraphQLAdapter{Client: client}
}

func (a *GraphQLAdapter) Call(ctx context.Context, tool vmcp.Tool, args map[string]any) (vmcp.ToolCallResult, error) {
	cfg := tool.Routing.GraphQL
	if cfg == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "tool %q missing graphql routing config", tool.Name)
	}
	url, err := Substitute(cfg.URL, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "graphql url")
	}
	headers, err := SubstituteMap(cfg.Headers, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "graphql headers")
	}

	payload, err := json.Marshal(map[string]any{"query": cfg.Query, "variables": args})
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInternalError, err, "marshal graphql payload")
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "build graphql request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindUpstreamUnavailable, err, "graphql request to %s", url)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindTransportError, err, "read graphql response")
	}

	var wire struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindProtocolError, err, "decode graphql response")
	}
	if len(wire.Errors) > 0 {
		return vmcp.ToolCallResult{OK: false, IsError: true, ErrorMsg: wire.Errors[0].Message}, nil
	}
	return vmcp.ToolCallResult{OK: true, Content: []vmcp.Content{{Type: "text", Text: string(wire.Data), MimeType: "application/json"}}}, nil
}
