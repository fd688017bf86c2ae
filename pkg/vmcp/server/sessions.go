package server

import (
	"sync"

	"github.com/magictunnel/magictunnel/pkg/vmcp/auth"
	"github.com/magictunnel/magictunnel/pkg/vmcp/session"
)

// ClientSessions tracks every connected downstream client session so the
// upstream Forwarder (pkg/vmcp/session.Locator) can resolve one by id when
// relaying a bidirectional sampling/elicitation request back to its
// originating client. It is exported because cmd/magictunnel must build one
// before the upstream client.Pool (whose per-backend UpstreamDispatcher
// needs a Forwarder over it) and before the Server itself exists, then
// share the same instance with both.
type ClientSessions struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	identity map[string]*auth.Identity
}

// NewClientSessions builds an empty session directory.
func NewClientSessions() *ClientSessions {
	return &ClientSessions{
		sessions: make(map[string]*session.Session),
		identity: make(map[string]*auth.Identity),
	}
}

func (r *ClientSessions) add(s *session.Session, identity *auth.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	r.identity[s.ID] = identity
}

func (r *ClientSessions) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.identity, id)
}

// SessionByID implements session.Locator.
func (r *ClientSessions) SessionByID(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *ClientSessions) identityFor(id string) *auth.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity[id]
}

// count reports how many downstream clients are currently connected, for
// the status/health surface.
func (r *ClientSessions) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
