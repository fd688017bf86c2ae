package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/magictunnel/magictunnel/pkg/logger"
	"github.com/magictunnel/magictunnel/pkg/vmcp/health"
	"github.com/magictunnel/magictunnel/pkg/vmcp/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// buildMux assembles the HTTP surface: one endpoint per transport plus
// /healthz and, when telemetry.Config.MetricsEnabled, /metrics.
func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleStreamingHTTP)
	mux.HandleFunc("/mcp/ws", s.handleWebSocket)
	mux.HandleFunc("/mcp/sse", s.handleSSE)
	mux.HandleFunc("/mcp/sse/message", s.handleSSEMessage)
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.cfg.Telemetry != nil && s.cfg.Telemetry.MetricsHandler != nil {
		mux.Handle("/metrics", s.cfg.Telemetry.MetricsHandler)
	}
	return mux
}

func (s *Server) handleStreamingHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	t, err := transport.ServeStreamingHTTP(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.runSession(r.Context(), t, identity)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnw("websocket upgrade failed", "err", err)
		return
	}
	t := transport.AcceptWebSocket(conn, s.cfg.WebSocketPingEvery)
	s.runSession(r.Context(), t, identity)
}

// handleSSE opens the long-lived event stream half of the SSE transport.
// Inbound client messages arrive on the companion POST endpoint
// (handleSSEMessage), matching spec.md §4.1's two-endpoint SSE shape.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	t, err := transport.NewSSEServerTransport(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.sseByRemote[r.RemoteAddr] = t
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sseByRemote, r.RemoteAddr)
		s.mu.Unlock()
	}()

	s.runSession(r.Context(), t, identity)
}

func (s *Server) handleSSEMessage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	t, ok := s.sseByRemote[r.RemoteAddr]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "no active SSE stream for this client", http.StatusBadRequest)
		return
	}
	t.HandleInboundPOST(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snapshots := s.pool.Snapshots()
	unhealthy := 0
	for _, snap := range snapshots {
		if snap.State != health.Ready && snap.State != health.Degraded {
			unhealthy++
		}
	}
	status := http.StatusOK
	if unhealthy > 0 {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"sessions":  s.sessions.count(),
		"backends":  snapshots,
		"unhealthy": unhealthy,
	})
}
