package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/magictunnel/magictunnel/pkg/logger"
	"github.com/magictunnel/magictunnel/pkg/vmcp/auth"
	"github.com/magictunnel/magictunnel/pkg/vmcp/client"
	"github.com/magictunnel/magictunnel/pkg/vmcp/discovery"
	"github.com/magictunnel/magictunnel/pkg/vmcp/registry"
	"github.com/magictunnel/magictunnel/pkg/vmcp/router"
	"github.com/magictunnel/magictunnel/pkg/vmcp/session"
	"github.com/magictunnel/magictunnel/pkg/vmcp/transport"
)

// Server is the proxy process: it accepts downstream connections on every
// configured transport, negotiates the MCP handshake, and dispatches
// requests to the capability registry, the tool router, or smart tool
// discovery, per spec.md §4.2-§4.6.
type Server struct {
	cfg Config

	registry        *registry.Manager
	pool            *client.Pool
	router          *router.Router
	discoveryEngine *discovery.Engine
	argumentMapper  *discovery.ArgumentMapper

	localCapabilities session.Capabilities
	sessions          *ClientSessions

	mu          sync.Mutex
	servers     []*http.Server
	sseByRemote map[string]*transport.SSEServerTransport
	stopOnce    sync.Once
	ready       chan struct{}
}

// Deps bundles the collaborators New needs beyond Config. Registry, Pool,
// Router, and DiscoveryEngine are each built by the caller (cmd/magictunnel)
// since they have their own construction-time dependencies (static tool
// path, dialer, adapters). Sessions must be the SAME ClientSessions passed
// to every per-backend session.UpstreamDispatcher's Forwarder when the Pool
// was built, so bidirectional sampling/elicitation requests reach the
// downstream client that originated the call (spec.md §5); call
// NewClientSessions once and share it across both constructions.
type Deps struct {
	Registry        *registry.Manager
	Pool            *client.Pool
	Router          *router.Router
	DiscoveryEngine *discovery.Engine
	ArgumentMapper  *discovery.ArgumentMapper
	Sessions        *ClientSessions
}

// New wires one Server. It does not start listening; call Start for that.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Registry == nil || deps.Pool == nil || deps.Router == nil || deps.DiscoveryEngine == nil {
		return nil, errors.New("server: Registry, Pool, Router, and DiscoveryEngine are required")
	}
	cfg = cfg.withDefaults()

	sessions := deps.Sessions
	if sessions == nil {
		sessions = NewClientSessions()
	}

	s := &Server{
		cfg:               cfg,
		registry:          deps.Registry,
		pool:              deps.Pool,
		router:            deps.Router,
		discoveryEngine:   deps.DiscoveryEngine,
		argumentMapper:    deps.ArgumentMapper,
		localCapabilities: session.Capabilities{Sampling: true, Elicitation: true},
		sessions:          sessions,
		sseByRemote:       make(map[string]*transport.SSEServerTransport),
		ready:             make(chan struct{}),
	}
	return s, nil
}

// Ready closes once every configured listener is up, for readiness probes
// and tests that must not race the accept loop.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// SessionCount reports how many downstream clients are currently
// connected.
func (s *Server) SessionCount() int { return s.sessions.count() }

// Start builds the HTTP mux for every configured transport and blocks
// serving it until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := s.buildMux()

	var addrs []string
	if s.cfg.ListenHTTP != "" {
		addrs = append(addrs, s.cfg.ListenHTTP)
	}
	if s.cfg.ListenWebSocket != "" && s.cfg.ListenWebSocket != s.cfg.ListenHTTP {
		addrs = append(addrs, s.cfg.ListenWebSocket)
	}
	if s.cfg.ListenSSE != "" && s.cfg.ListenSSE != s.cfg.ListenHTTP && s.cfg.ListenSSE != s.cfg.ListenWebSocket {
		addrs = append(addrs, s.cfg.ListenSSE)
	}
	if len(addrs) == 0 {
		return errors.New("server: no listen address configured")
	}

	errCh := make(chan error, len(addrs))
	s.mu.Lock()
	for _, addr := range addrs {
		hs := &http.Server{Addr: addr, Handler: mux}
		s.servers = append(s.servers, hs)
		go func(hs *http.Server) {
			logger.Infow("vmcp server listening", "addr", hs.Addr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", hs.Addr, err)
				return
			}
			errCh <- nil
		}(hs)
	}
	s.mu.Unlock()
	close(s.ready)

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return err
		}
	}
	return nil
}

// Shutdown stops every listener and closes the upstream client pool. Safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		servers := s.servers
		s.mu.Unlock()
		for _, hs := range servers {
			if shutdownErr := hs.Shutdown(ctx); shutdownErr != nil {
				err = errors.Join(err, shutdownErr)
			}
		}
		if poolErr := s.pool.Close(); poolErr != nil {
			err = errors.Join(err, poolErr)
		}
	})
	return err
}

// runSession builds a downstream Session over t, registers it so the
// forwarder can reach it for bidirectional requests, and blocks running
// its dispatch loop until the connection closes.
func (s *Server) runSession(ctx context.Context, t transport.Transport, identity *auth.Identity) {
	dispatcher := &session.DownstreamDispatcher{}
	sess := session.New(t, dispatcher, s.cfg.MaxInFlight)
	dispatcher.Handlers = s.buildHandlers(identity)

	s.sessions.add(sess, identity)
	defer s.sessions.remove(sess.ID)

	logger.Infow("client session started", "session_id", sess.ID, "subject", identity.Subject)
	sess.Run(ctx)
	logger.Infow("client session ended", "session_id", sess.ID)
}

// authenticate resolves the caller identity for one incoming connection
// via the configured Authenticator, falling back to auth.Anonymous when no
// bearer token is present and the authenticator allows it.
func (s *Server) authenticate(r *http.Request) (*auth.Identity, error) {
	token := bearerToken(r)
	identity, err := s.cfg.Authenticator.Authenticate(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
