package router

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/transport"
)

// WebSocketAdapter dispatches a tool call as a single request/response
// pair over a pooled WebSocket connection, keyed by the substituted URL so
// repeated calls to the same endpoint reuse one connection (spec.md §4.4
// "WebSocket/SSE pooled connections").
type WebSocketAdapter struct {
	pingPeriod time.Duration

	mu    sync.Mutex
	conns map[string]transport.Transport
}

func NewWebSocketAdapter(pingPeriod time.Duration) *WebSocketAdapter {
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}
	return &WebSocketAdapter{pingPeriod: pingPeriod, conns: make(map[string]transport.Transport)}
}

func (a *WebSocketAdapter) Call(ctx context.Context, tool vmcp.Tool, args map[string]any) (vmcp.ToolCallResult, error) {
	cfg := tool.Routing.WebSocket
	if cfg == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "tool %q missing websocket routing config", tool.Name)
	}
	url, err := Substitute(cfg.URL, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "websocket url")
	}
	body, err := Substitute(cfg.Body, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "websocket body")
	}

	conn, err := a.connFor(ctx, url)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindUpstreamUnavailable, err, "websocket dial %s", url)
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
		a.evict(url)
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindTransportError, err, "websocket send")
	}

	select {
	case <-callCtx.Done():
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindTimeout, "websocket call timed out")
	case f, ok := <-conn.Frames():
		if !ok {
			a.evict(url)
			return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindTransportError, "websocket connection closed")
		}
		if f.Error != nil {
			return vmcp.ToolCallResult{OK: false, IsError: true, ErrorMsg: f.Error.Message}, nil
		}
		return vmcp.ToolCallResult{OK: true, Content: []vmcp.Content{{Type: "text", Text: string(f.Result)}}}, nil
	}
}

func (a *WebSocketAdapter) connFor(ctx context.Context, url string) (transport.Transport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.conns[url]; ok {
		return c, nil
	}
	c, err := transport.DialWebSocket(ctx, url, nil, a.pingPeriod)
	if err != nil {
		return nil, err
	}
	a.conns[url] = c
	return c, nil
}

func (a *WebSocketAdapter) evict(url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.conns[url]; ok {
		c.Close()
		delete(a.conns, url)
	}
}

// Close tears down every pooled connection.
func (a *WebSocketAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for url, c := range a.conns {
		c.Close()
		delete(a.conns, url)
	}
	return nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
