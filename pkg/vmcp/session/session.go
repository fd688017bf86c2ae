// Package session implements the MCP handshake, the pending-request
// correlation table, inbound frame dispatch, and bidirectional
// sampling/elicitation forwarding (spec.md §4.2).
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/magictunnel/magictunnel/pkg/logger"
	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/transport"
)

// CompletionResult is delivered on a pending request's completion sink
// exactly once: either a response frame, or a taxonomy error
// (Timeout/Cancelled/TransportError).
type CompletionResult struct {
	Result json.RawMessage
	Err    error
}

// Origin identifies who triggered an outbound request: either a specific
// downstream client session (for forwarding sampling/elicitation replies
// back) or the proxy itself.
type Origin struct {
	SessionID string
	Self      bool
}

// pendingRequest is the internal bookkeeping record for one in-flight
// outbound request (spec.md §3 "Pending request").
type pendingRequest struct {
	id       string
	method   string
	deadline time.Time
	sink     chan CompletionResult
	cancel   context.CancelFunc
	origin   Origin
	done     atomic.Bool
}

// fulfill delivers result on the sink exactly once; subsequent calls are
// no-ops, satisfying testable property S1 ("no sink is fulfilled twice").
func (p *pendingRequest) fulfill(res CompletionResult) {
	if !p.done.CompareAndSwap(false, true) {
		return
	}
	p.sink <- res
	close(p.sink)
}

// InboundDispatcher handles an inbound JSON-RPC request or notification
// arriving on a Session, returning a result (for requests) or nil (for
// notifications which expect no reply).
type InboundDispatcher interface {
	// HandleRequest answers an inbound request by method name. Returning
	// an error produces a JSON-RPC error response; err should normally be
	// an *mterrors.Error so the wire code is meaningful.
	HandleRequest(ctx context.Context, s *Session, method string, params json.RawMessage) (any, error)
	// HandleNotification processes a notification; no reply is sent.
	HandleNotification(ctx context.Context, s *Session, method string, params json.RawMessage)
}

// Session drives one full-duplex MCP connection: it owns the pending
// request table, performs id allocation, and classifies/dispatches every
// inbound frame.
type Session struct {
	ID        string
	transport transport.Transport
	dispatch  InboundDispatcher
	queue     *admissionQueue

	mu      sync.Mutex
	pending map[string]*pendingRequest
	nextID  int64

	capabilities Capabilities
	origins      *activeOrigins
	closed       atomic.Bool
	closeCh      chan struct{}
}

// Capabilities is the MCP capability set negotiated at initialize. Only
// the two capabilities that affect forwarding semantics (sampling,
// elicitation) are modeled explicitly. Other capabilities are not kept:
// decoding from the wire does not fill Extra, and Extra is not encoded.
type Capabilities struct {
	Sampling    bool                       `json:"-"`
	Elicitation bool                       `json:"-"`
	Extra       map[string]json.RawMessage `json:"-"`
}

// New builds a Session around an already-connected transport. dispatch
// handles inbound requests/notifications; maxInFlight bounds the admission
// queue (SPEC_FULL.md §C.3).
func New(t transport.Transport, dispatch InboundDispatcher, maxInFlight int) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		transport: t,
		dispatch:  dispatch,
		queue:     newAdmissionQueue(maxInFlight),
		pending:   make(map[string]*pendingRequest),
		closeCh:   make(chan struct{}),
		origins:   &activeOrigins{},
	}
	return s
}

// Run starts the inbound frame dispatch loop; it blocks until the
// transport closes or ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	defer s.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-s.transport.Frames():
			if !ok {
				return
			}
			s.handleFrame(ctx, f)
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, f *vmcp.Frame) {
	switch f.Kind() {
	case vmcp.KindResponse:
		s.completeResponse(f)
	case vmcp.KindRequest:
		s.queue.Submit(func() { s.handleInboundRequest(ctx, f) })
	case vmcp.KindNotification:
		s.queue.Submit(func() { s.handleInboundNotification(ctx, f) })
	default:
		logger.Warnw("session: dropping frame of unknown shape", "session", s.ID)
	}
}

// completeResponse matches an inbound response to its pending request by
// id. An unknown id is logged and dropped; the session stays open
// (spec.md §4.2 "Boundary behaviors").
func (s *Session) completeResponse(f *vmcp.Frame) {
	key := string(f.ID)
	s.mu.Lock()
	p, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if !ok {
		logger.Warnw("session: response for unknown id dropped", "session", s.ID, "id", key)
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	if f.Error != nil {
		e := &mterrors.Error{
			Kind:     mterrors.KindToolError,
			WireCode: f.Error.Code,
			Message:  f.Error.Message,
		}
		if len(f.Error.Data) > 0 {
			e.Data = f.Error.Data
		}
		p.fulfill(CompletionResult{Err: e})
		return
	}
	p.fulfill(CompletionResult{Result: f.Result})
}

func (s *Session) handleInboundRequest(ctx context.Context, f *vmcp.Frame) {
	result, err := s.dispatch.HandleRequest(ctx, s, f.Method, f.Params)
	if err != nil {
		we := mterrors.ToWire(err)
		resp := vmcp.NewErrorResponse(f.ID, we.Code, we.Message, we.Data)
		if sendErr := s.transport.Send(ctx, resp); sendErr != nil {
			logger.Warnw("session: failed to send error response", "error", sendErr)
		}
		return
	}
	resp, err := vmcp.NewResultResponse(f.ID, result)
	if err != nil {
		logger.Errorw("session: failed to marshal result", "error", err)
		return
	}
	if err := s.transport.Send(ctx, resp); err != nil {
		logger.Warnw("session: failed to send response", "error", err)
	}
}

func (s *Session) handleInboundNotification(ctx context.Context, f *vmcp.Frame) {
	s.dispatch.HandleNotification(ctx, s, f.Method, f.Params)
}

// SendRequest allocates a fresh id, registers a pending record, writes the
// request, and blocks until a response, deadline, or ctx cancellation
// fulfills it.
func (s *Session) SendRequest(ctx context.Context, method string, params any, timeout time.Duration, origin Origin) (json.RawMessage, error) {
	if s.closed.Load() {
		return nil, mterrors.New(mterrors.KindTransportError, "session %s is closed", s.ID)
	}

	id := s.allocateID()
	idRaw := json.RawMessage(fmt.Sprintf("%q", id))
	key := string(idRaw)
	reqCtx, cancel := context.WithCancel(ctx)

	p := &pendingRequest{
		id:       id,
		method:   method,
		deadline: time.Now().Add(timeout),
		sink:     make(chan CompletionResult, 1),
		cancel:   cancel,
		origin:   origin,
	}

	s.mu.Lock()
	s.pending[key] = p
	s.mu.Unlock()

	frame, err := vmcp.NewRequest(idRaw, method, params)
	if err != nil {
		s.removePending(key)
		return nil, fmt.Errorf("session: build request: %w", err)
	}
	if err := s.transport.Send(ctx, frame); err != nil {
		s.removePending(key)
		return nil, mterrors.Wrap(mterrors.KindTransportError, err, "send %s", method)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-p.sink:
		return res.Result, res.Err
	case <-timer.C:
		s.removePending(key)
		p.fulfill(CompletionResult{Err: mterrors.New(mterrors.KindTimeout, "%s timed out after %s", method, timeout)})
		return nil, mterrors.New(mterrors.KindTimeout, "%s timed out after %s", method, timeout)
	case <-reqCtx.Done():
		s.removePending(key)
		s.sendCancellation(id)
		p.fulfill(CompletionResult{Err: mterrors.New(mterrors.KindCancelled, "%s cancelled", method)})
		return nil, mterrors.New(mterrors.KindCancelled, "%s cancelled", method)
	}
}

// SendNotification writes a fire-and-forget frame; there is no completion
// sink to fulfill.
func (s *Session) SendNotification(ctx context.Context, method string, params any) error {
	frame, err := vmcp.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("session: build notification: %w", err)
	}
	return s.transport.Send(ctx, frame)
}

// sendCancellation best-effort notifies the peer that id was cancelled, per
// spec.md §4.2's "best-effort send an MCP cancellation notification".
func (s *Session) sendCancellation(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.SendNotification(ctx, "notifications/cancelled", map[string]string{"requestId": id}); err != nil {
		logger.Warnw("session: best-effort cancellation notice failed", "session", s.ID, "id", id, "error", err)
	}
}

func (s *Session) removePending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Session) allocateID() string {
	n := atomic.AddInt64(&s.nextID, 1)
	return fmt.Sprintf("%s-%d", s.ID, n)
}

// Send exposes the raw transport send for callers (e.g. forwarding) that
// already have a fully-built frame.
func (s *Session) Send(ctx context.Context, f *vmcp.Frame) error {
	return s.transport.Send(ctx, f)
}

func (s *Session) shutdown() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.closeCh)

	s.mu.Lock()
	pending := make([]*pendingRequest, 0, len(s.pending))
	for _, p := range s.pending {
		pending = append(pending, p)
	}
	s.pending = make(map[string]*pendingRequest)
	s.mu.Unlock()

	for _, p := range pending {
		p.fulfill(CompletionResult{Err: mterrors.New(mterrors.KindTransportError, "session %s closed", s.ID)})
	}
}

// Close closes the underlying transport and fails every pending request.
func (s *Session) Close() error {
	err := s.transport.Close()
	s.shutdown()
	return err
}

// Done reports the channel closed when the session has shut down.
func (s *Session) Done() <-chan struct{} { return s.closeCh }
