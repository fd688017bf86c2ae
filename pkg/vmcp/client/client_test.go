package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/health"
	"github.com/magictunnel/magictunnel/pkg/vmcp/session"
	"github.com/magictunnel/magictunnel/pkg/vmcp/transport"
)

// fakeUpstream is an in-process Transport double that auto-answers
// initialize and ping like a well-behaved MCP server would, so client
// lifecycle tests never need a real subprocess or socket.
type fakeUpstream struct {
	in     chan *vmcp.Frame
	out    chan *vmcp.Frame
	events chan transport.Event
	fail   bool
}

func newFakeUpstream() *fakeUpstream {
	f := &fakeUpstream{
		in:     make(chan *vmcp.Frame, 16),
		out:    make(chan *vmcp.Frame, 16),
		events: make(chan transport.Event, 4),
	}
	go f.serve()
	return f
}

func (f *fakeUpstream) serve() {
	for req := range f.in {
		if f.fail {
			continue
		}
		switch req.Method {
		case "initialize":
			result := map[string]any{
				"protocolVersion": session.ProtocolVersion,
				"capabilities":    map[string]any{"sampling": map[string]any{}},
				"serverInfo":      map[string]string{"name": "fake-upstream", "version": "1.0"},
			}
			resp, _ := vmcp.NewResultResponse(req.ID, result)
			f.out <- resp
		case "ping":
			resp, _ := vmcp.NewResultResponse(req.ID, map[string]any{})
			f.out <- resp
		case "tools/list":
			resp, _ := vmcp.NewResultResponse(req.ID, map[string]any{
				"tools": []map[string]any{{"name": "search", "description": "search things", "inputSchema": map[string]any{"type": "object"}}},
			})
			f.out <- resp
		case "resources/list", "prompts/list":
			resp, _ := vmcp.NewResultResponse(req.ID, map[string]any{})
			f.out <- resp
		}
	}
}

func (f *fakeUpstream) Send(_ context.Context, fr *vmcp.Frame) error {
	if fr.Method == "notifications/initialized" {
		return nil
	}
	f.in <- fr
	return nil
}
func (f *fakeUpstream) Frames() <-chan *vmcp.Frame     { return f.out }
func (f *fakeUpstream) Events() <-chan transport.Event { return f.events }
func (f *fakeUpstream) Close() error                   { return nil }

type fakeDialer struct {
	t *fakeUpstream
}

func (d fakeDialer) Dial(context.Context, vmcp.Backend) (transport.Transport, error) {
	return d.t, nil
}

func TestClient_ConnectsAndReachesReady(t *testing.T) {
	t.Parallel()
	backend := vmcp.Backend{ID: "b1", Name: "search-server", TransportType: vmcp.TransportStdio}
	dispatch := &session.UpstreamDispatcher{Forwarder: session.NewForwarder(noopLocator{}, time.Second)}
	monitor := health.NewMonitor("b1", nil)

	cl := New(backend, fakeDialer{t: newFakeUpstream()}, dispatch, monitor, PingThresholds{PingInterval: 20 * time.Millisecond}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cl.Run(ctx)

	require.NoError(t, cl.WaitReady(ctx, 5*time.Millisecond))
	assert.Equal(t, health.Ready, cl.State())
	assert.NotNil(t, cl.Session())
}

func TestPool_DiscoverReturnsUpstreamCatalog(t *testing.T) {
	t.Parallel()
	backend := vmcp.Backend{ID: "b1", Name: "search-server", TransportType: vmcp.TransportStdio}
	pool := NewPool(
		fakeDialer{t: newFakeUpstream()},
		func(vmcp.Backend) session.InboundDispatcher {
			return &session.UpstreamDispatcher{Forwarder: session.NewForwarder(noopLocator{}, time.Second)}
		},
		PingThresholds{},
		0,
		nil,
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cl := pool.Add(ctx, backend)
	require.NoError(t, cl.WaitReady(ctx, 5*time.Millisecond))

	src, err := pool.Discover(ctx, backend)
	require.NoError(t, err)
	require.Len(t, src.Tools, 1)
	assert.Equal(t, "search", src.Tools[0].Name)
	assert.Equal(t, vmcp.RoutingUpstreamMCP, src.Tools[0].Routing.Variant)
}

type noopLocator struct{}

func (noopLocator) SessionByID(string) (*session.Session, bool) { return nil, false }
