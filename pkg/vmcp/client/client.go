// Package client implements the upstream MCP client pool (spec.md §4.5):
// one Client per configured backend, each owning a transport and a
// session, driven through the lifecycle state machine Disconnected ->
// Connecting -> Ready -> Degraded -> Failed -> Disconnected, reconnecting
// on exponential backoff and publishing health metrics.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/magictunnel/magictunnel/pkg/logger"
	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/health"
	"github.com/magictunnel/magictunnel/pkg/vmcp/session"
	"github.com/magictunnel/magictunnel/pkg/vmcp/transport"
)

// Dialer opens a fresh transport for a backend. Split out from Client so
// tests can substitute an in-process transport without a real subprocess
// or network dial.
type Dialer interface {
	Dial(ctx context.Context, backend vmcp.Backend) (transport.Transport, error)
}

// DialerFunc adapts a plain function to the Dialer interface.
type DialerFunc func(ctx context.Context, backend vmcp.Backend) (transport.Transport, error)

func (f DialerFunc) Dial(ctx context.Context, backend vmcp.Backend) (transport.Transport, error) {
	return f(ctx, backend)
}

// PingThresholds configures the Ready<->Degraded<->Failed transitions
// driven by the health-check loop, per spec.md §4.5.
type PingThresholds struct {
	DegradeAfter int           // consecutive failed pings before Ready -> Degraded
	FailAfter    int           // consecutive failed pings before Degraded -> Failed
	PingInterval time.Duration
	PingTimeout  time.Duration
}

func (t PingThresholds) withDefaults() PingThresholds {
	if t.DegradeAfter <= 0 {
		t.DegradeAfter = 2
	}
	if t.FailAfter <= 0 {
		t.FailAfter = 5
	}
	if t.PingInterval <= 0 {
		t.PingInterval = 30 * time.Second
	}
	if t.PingTimeout <= 0 {
		t.PingTimeout = 5 * time.Second
	}
	return t
}

// Client owns one upstream backend's transport and session, and drives its
// lifecycle state machine. Its bidirectional forwarding hook is wired by
// the caller via Session()/PushActiveOrigin so inbound sampling/elicitation
// requests route back to the originating downstream client.
type Client struct {
	backend    vmcp.Backend
	dialer     Dialer
	thresholds PingThresholds
	monitor    *health.Monitor
	breaker    *health.CircuitBreaker
	dispatch   session.InboundDispatcher
	maxInFlight int

	mu      sync.RWMutex
	state   health.State
	current *session.Session
	closed  bool
	stopCh  chan struct{}
}

// New builds a Client for backend. dispatch handles inbound requests on
// the upstream session (normally a *session.UpstreamDispatcher).
func New(backend vmcp.Backend, dialer Dialer, dispatch session.InboundDispatcher, monitor *health.Monitor, thresholds PingThresholds, maxInFlight int) *Client {
	return &Client{
		backend:     backend,
		dialer:      dialer,
		dispatch:    dispatch,
		monitor:     monitor,
		thresholds:  thresholds.withDefaults(),
		breaker:     health.NewCircuitBreaker(thresholds.withDefaults().FailAfter, 30*time.Second, nil),
		maxInFlight: maxInFlight,
		state:       health.Disconnected,
		stopCh:      make(chan struct{}),
	}
}

// Backend returns the backend this client manages.
func (c *Client) Backend() vmcp.Backend { return c.backend }

// State returns the client's current lifecycle state.
func (c *Client) State() health.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Session returns the current upstream session, or nil if not connected.
func (c *Client) Session() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Client) setState(s health.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.monitor != nil {
		c.monitor.SetState(s)
	}
}

// Run connects the client and keeps it connected, reconnecting on
// exponential backoff whenever the session dies, until ctx is cancelled or
// Close is called. It also drives the health-check ping loop.
func (c *Client) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		c.setState(health.Connecting)
		sess, err := c.connect(ctx)
		if err != nil {
			logger.Warnw("client: connect failed, backing off", "backend", c.backend.Name, "error", err)
			c.setState(health.Failed)
			if c.monitor != nil {
				c.monitor.RecordFailure(err, time.Now())
			}
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				wait = b.MaxInterval
			}
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()
		c.setState(health.Ready)

		sessionCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			sess.Run(sessionCtx)
			close(done)
		}()

		c.runHealthLoop(sessionCtx, sess)

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return
		case <-c.stopCh:
			cancel()
			<-done
			return
		case <-done:
			// Session died unexpectedly (transport closed); reconnect.
			cancel()
		}
		c.setState(health.Disconnected)
	}
}

func (c *Client) connect(ctx context.Context) (*session.Session, error) {
	t, err := c.dialer.Dial(ctx, c.backend)
	if err != nil {
		return nil, mterrors.Wrap(mterrors.KindTransportError, err, "dial backend %s", c.backend.Name)
	}
	sess := session.New(t, c.dispatch, c.maxInFlight)
	go sess.Run(ctx)

	handshakeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err = sess.Handshake(handshakeCtx, session.Capabilities{Sampling: true, Elicitation: true}, session.ClientInfo{Name: "magictunnel", Version: "0.1.0"}, 10*time.Second)
	if err != nil {
		sess.Close()
		return nil, mterrors.Wrap(mterrors.KindProtocolError, err, "handshake with backend %s", c.backend.Name)
	}

	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
	return sess, nil
}

// runHealthLoop pings the upstream on an interval, driving the circuit
// breaker and Ready<->Degraded<->Failed transitions until the session's
// context is done.
func (c *Client) runHealthLoop(ctx context.Context, sess *session.Session) {
	ticker := time.NewTicker(c.thresholds.PingInterval)
	defer ticker.Stop()
	consecutiveFails := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.breaker.Allow() {
				continue
			}
			pingCtx, cancel := context.WithTimeout(ctx, c.thresholds.PingTimeout)
			start := time.Now()
			_, err := sess.SendRequest(pingCtx, "ping", nil, c.thresholds.PingTimeout, session.Origin{Self: true})
			cancel()
			if err != nil {
				consecutiveFails++
				c.breaker.RecordFailure()
				if c.monitor != nil {
					c.monitor.RecordFailure(err, time.Now())
				}
				switch {
				case consecutiveFails >= c.thresholds.FailAfter:
					c.setState(health.Failed)
					return
				case consecutiveFails >= c.thresholds.DegradeAfter:
					c.setState(health.Degraded)
				}
				continue
			}
			consecutiveFails = 0
			c.breaker.RecordSuccess()
			if c.monitor != nil {
				c.monitor.RecordSuccess(time.Since(start), time.Now())
			}
			if c.State() == health.Degraded {
				c.setState(health.Ready)
			}
		}
	}
}

// Close stops the client's reconnect loop and tears down its current
// session.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sess := c.current
	c.mu.Unlock()
	close(c.stopCh)
	if sess != nil {
		return sess.Close()
	}
	return nil
}

// WaitReady blocks until the client reaches Ready (or a non-recoverable
// terminal condition via ctx) — used by callers that need a connected
// upstream before proceeding (e.g. initial registry discovery).
func (c *Client) WaitReady(ctx context.Context, poll time.Duration) error {
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		if c.State() == health.Ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("client: %s: %w", c.backend.Name, ctx.Err())
		case <-t.C:
		}
	}
}
