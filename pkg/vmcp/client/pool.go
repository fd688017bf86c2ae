package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/health"
	"github.com/magictunnel/magictunnel/pkg/vmcp/session"
)

const defaultListTimeout = 10 * time.Second

// Pool owns one Client per configured backend and implements
// registry.BackendDiscoverer over the pool. It does not implement
// session.Locator: the bidirectional forwarder resolves downstream client
// sessions through the server's own downstream-session registry, while the
// pool only resolves *upstream* sessions by backend id, used by the router
// to dispatch tools/call.
type Pool struct {
	dialer      Dialer
	dispatch    func(backend vmcp.Backend) session.InboundDispatcher
	thresholds  PingThresholds
	maxInFlight int
	registerer  prometheus.Registerer

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewPool builds an empty client pool. dispatch builds the
// InboundDispatcher installed on each backend's upstream session (normally
// a *session.UpstreamDispatcher wired to the server's downstream locator).
func NewPool(dialer Dialer, dispatch func(backend vmcp.Backend) session.InboundDispatcher, thresholds PingThresholds, maxInFlight int, registerer prometheus.Registerer) *Pool {
	return &Pool{
		dialer:      dialer,
		dispatch:    dispatch,
		thresholds:  thresholds,
		maxInFlight: maxInFlight,
		registerer:  registerer,
		clients:     make(map[string]*Client),
	}
}

func (p *Pool) client(backendID string) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[backendID]
	return c, ok
}

// Add registers a backend with the pool and starts its connection loop.
// The returned Client is also retrievable later via Get.
func (p *Pool) Add(ctx context.Context, backend vmcp.Backend) *Client {
	monitor := health.NewMonitor(backend.ID, p.registerer)
	cl := New(backend, p.dialer, p.dispatch(backend), monitor, p.thresholds, p.maxInFlight)

	p.mu.Lock()
	p.clients[backend.ID] = cl
	p.mu.Unlock()

	go cl.Run(ctx)
	return cl
}

// Get returns the client for backendID, if registered.
func (p *Pool) Get(backendID string) (*Client, bool) {
	return p.client(backendID)
}

// All returns every registered client, snapshotted.
func (p *Pool) All() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		out = append(out, c)
	}
	return out
}

// Snapshots returns the health snapshot of every registered client,
// keyed by backend id, for the /health surface (SPEC_FULL.md §C.2).
func (p *Pool) Snapshots() map[string]health.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]health.Snapshot, len(p.clients))
	for id, c := range p.clients {
		if c.monitor != nil {
			out[id] = c.monitor.Snapshot()
		}
	}
	return out
}

// CallTool dispatches tools/call on backendID's upstream session, pushing
// origin as the active origin for the duration of the call so any
// sampling/elicitation request the upstream makes mid-call is attributed
// back to the correct downstream client (pkg/vmcp/session's
// activeOrigins, spec.md §4.2/§4.5 "Bidirectional forwarding").
func (p *Pool) CallTool(ctx context.Context, backendID, originalName string, args map[string]any, origin session.Origin, timeout time.Duration) (vmcp.ToolCallResult, error) {
	cl, ok := p.client(backendID)
	if !ok {
		return vmcp.ToolCallResult{}, fmt.Errorf("client: backend %q not registered", backendID)
	}
	sess := cl.Session()
	if sess == nil {
		return vmcp.ToolCallResult{}, fmt.Errorf("client: backend %q not connected", backendID)
	}

	pop := sess.PushActiveOrigin(origin)
	defer pop()

	start := time.Now()
	raw, err := sess.SendRequest(ctx, "tools/call", map[string]any{"name": originalName, "arguments": args}, timeout, session.Origin{Self: true})
	if err != nil {
		if cl.monitor != nil {
			cl.monitor.RecordFailure(err, time.Now())
		}
		return vmcp.ToolCallResult{}, err
	}
	if cl.monitor != nil {
		cl.monitor.RecordSuccess(time.Since(start), time.Now())
	}

	var wire struct {
		Content []vmcp.Content `json:"content"`
		IsError bool           `json:"isError"`
	}
	if uErr := json.Unmarshal(raw, &wire); uErr != nil {
		return vmcp.ToolCallResult{}, fmt.Errorf("client: decode tools/call result: %w", uErr)
	}
	return vmcp.ToolCallResult{OK: !wire.IsError, Content: wire.Content, IsError: wire.IsError}, nil
}

// Close tears down every client in the pool.
// Close shuts down every backend client concurrently rather than one at a
// time, since each Close blocks on its own session teardown; an
// unresponsive backend only costs the shutdown path its own timeout
// instead of serializing behind every other backend.
func (p *Pool) Close() error {
	p.mu.RLock()
	clients := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	p.mu.RUnlock()

	var g errgroup.Group
	for _, c := range clients {
		g.Go(c.Close)
	}
	return g.Wait()
}
