package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/transport"
)

// SSEAdapter dispatches a tool call over a pooled SSE (events stream) +
// POST (command channel) pair, keyed by the events/post URL combination.
type SSEAdapter struct {
	client *http.Client

	mu    sync.Mutex
	conns map[string]transport.Transport
}

func NewSSEAdapter(client *http.Client) *SSEAdapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SSEAdapter{client: client, conns: make(map[string]transport.Transport)}
}

func (a *SSEAdapter) Call(ctx context.Context, tool vmcp.Tool, args map[string]any) (vmcp.ToolCallResult, error) {
	cfg := tool.Routing.SSE
	if cfg == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "tool %q missing sse routing config", tool.Name)
	}
	eventsURL, err := Substitute(cfg.EventsURL, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "sse events_url")
	}
	postURL, err := Substitute(cfg.PostURL, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "sse post_url")
	}
	body, err := Substitute(cfg.Body, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "sse body")
	}

	key := eventsURL + "|" + postURL
	conn, err := a.connFor(ctx, key, eventsURL, postURL)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindUpstreamUnavailable, err, "sse dial %s", eventsURL)
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := json.RawMessage(`"` + uuid.NewString() + `"`)
	req := &vmcp.Frame{JSONRPC: "2.0", ID: id, Method: "tool/invoke", Params: json.RawMessage(mustJSON(map[string]any{"body": body, "args": args}))}
	if err := conn.Send(callCtx, req); err != nil {
		a.evict(key)
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindTransportError, err, "sse send")
	}

	select {
	case <-callCtx.Done():
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindTimeout, "sse call timed out")
	case f, ok := <-conn.Frames():
		if !ok {
			a.evict(key)
			return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindTransportError, "sse connection closed")
		}
		if f.Error != nil {
			return vmcp.ToolCallResult{OK: false, IsError: true, ErrorMsg: f.Error.Message}, nil
		}
		return vmcp.ToolCallResult{OK: true, Content: []vmcp.Content{{Type: "text", Text: string(f.Result)}}}, nil
	}
}

func (a *SSEAdapter) connFor(ctx context.Context, key, eventsURL, postURL string) (transport.Transport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.conns[key]; ok {
		return c, nil
	}
	c, err := transport.DialSSE(ctx, eventsURL, postURL, nil, a.client)
	if err != nil {
		return nil, err
	}
	a.conns[key] = c
	return c, nil
}

func (a *SSEAdapter) evict(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.conns[key]; ok {
		c.Close()
		delete(a.conns, key)
	}
}

// Close tears down every pooled connection.
func (a *SSEAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, c := range a.conns {
		c.Close()
		delete(a.conns, key)
	}
	return nil
}
