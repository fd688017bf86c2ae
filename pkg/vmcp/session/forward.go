package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
)

// activeOrigins is a per-session stack of the downstream origins behind
// currently in-flight outbound tools/call requests. A tool call and the
// bidirectional sampling/elicitation request it induces are FIFO-related
// on the upstream session (spec.md §5), so the most recently pushed origin
// is the one an inbound sampling/elicitation request belongs to; nested
// calls push/pop in the same order they start/finish.
type activeOrigins struct {
	mu    sync.Mutex
	stack []Origin
}

func (a *activeOrigins) push(o Origin) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stack = append(a.stack, o)
}

func (a *activeOrigins) pop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.stack) > 0 {
		a.stack = a.stack[:len(a.stack)-1]
	}
}

func (a *activeOrigins) current() (Origin, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.stack) == 0 {
		return Origin{}, false
	}
	return a.stack[len(a.stack)-1], true
}

// PushActiveOrigin records that a tools/call dispatched on this (upstream)
// session originated from downstream client origin. The returned func must
// be called when that call completes. client.Pool.CallTool calls this
// around the blocking upstream tools/call so an inbound sampling/elicitation
// request arriving mid-call can be attributed correctly.
func (s *Session) PushActiveOrigin(o Origin) (pop func()) {
	s.origins.push(o)
	return s.origins.pop
}

// CurrentOrigin returns the origin of the tool call currently in flight on
// this session, if any.
func (s *Session) CurrentOrigin() (Origin, bool) {
	return s.origins.current()
}

// Locator resolves a downstream client's session by id, so the forwarder
// can reach the session that originated the current tool call. The server
// (pkg/vmcp/server) implements this over its set of active client sessions.
type Locator interface {
	SessionByID(id string) (*Session, bool)
}

// Forwarder implements spec.md §4.2's "Inbound request dispatch on an
// upstream session": sampling/createMessage and elicitation/create
// requests are re-issued with a fresh id on the originating downstream
// client session, and the reply is relayed back using the upstream's
// original id semantics (handled by the caller wrapping this as the
// response to f.ID on the upstream side).
type Forwarder struct {
	locator Locator
	timeout time.Duration
}

// NewForwarder builds a Forwarder resolving origins via locator, forwarding
// with the given per-hop timeout.
func NewForwarder(locator Locator, timeout time.Duration) *Forwarder {
	return &Forwarder{locator: locator, timeout: timeout}
}

// Forward dispatches method/params to the client session that originated
// the tool call currently in flight on upstream, and returns its result
// (or a taxonomy error on any forwarding failure: no client, client
// refused, timeout).
func (f *Forwarder) Forward(ctx context.Context, upstream *Session, method string, params json.RawMessage) (json.RawMessage, error) {
	origin, ok := upstream.CurrentOrigin()
	if !ok || origin.Self {
		return nil, mterrors.New(mterrors.KindInternalError, "no originating client session for forwarded %s", method)
	}
	client, ok := f.locator.SessionByID(origin.SessionID)
	if !ok {
		return nil, mterrors.New(mterrors.KindUpstreamUnavailable, "originating client session %s not found", origin.SessionID)
	}

	var decoded any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &decoded); err != nil {
			return nil, mterrors.Wrap(mterrors.KindProtocolError, err, "malformed forwarded params")
		}
	}

	result, err := client.SendRequest(ctx, method, decoded, f.timeout, Origin{SessionID: upstream.ID})
	if err != nil {
		return nil, mterrors.Wrap(mterrors.KindUpstreamUnavailable, err, "forward %s to client %s failed", method, origin.SessionID)
	}
	return result, nil
}
