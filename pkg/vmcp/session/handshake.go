package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
)

// ProtocolVersion is the MCP wire protocol version this proxy speaks.
const ProtocolVersion = "2025-06-18"

// ClientInfo identifies one peer of the handshake (name + version), sent
// both directions as clientInfo/serverInfo.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// wireCapabilities is the MCP wire shape for a capability set: presence of
// a key (even an empty object) means the peer supports that capability.
type wireCapabilities struct {
	Sampling    *struct{}                  `json:"sampling,omitempty"`
	Elicitation *struct{}                  `json:"elicitation,omitempty"`
	Extra       map[string]json.RawMessage `json:"-"`
}

func toWireCapabilities(c Capabilities) wireCapabilities {
	w := wireCapabilities{}
	if c.Sampling {
		w.Sampling = &struct{}{}
	}
	if c.Elicitation {
		w.Elicitation = &struct{}{}
	}
	return w
}

func fromWireCapabilities(w wireCapabilities) Capabilities {
	return Capabilities{Sampling: w.Sampling != nil, Elicitation: w.Elicitation != nil}
}

type initializeParams struct {
	ProtocolVersion string           `json:"protocolVersion"`
	Capabilities    wireCapabilities `json:"capabilities"`
	ClientInfo      ClientInfo       `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string           `json:"protocolVersion"`
	Capabilities    wireCapabilities `json:"capabilities"`
	ServerInfo      ClientInfo       `json:"serverInfo"`
}

// Handshake performs the client side of the MCP handshake (spec.md §4.2):
// send initialize, await the response, then send notifications/initialized.
// local is what the proxy itself can offer; the negotiated capability set
// becomes the intersection with what the peer declares.
func (s *Session) Handshake(ctx context.Context, local Capabilities, info ClientInfo, deadline time.Duration) error {
	params := initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    toWireCapabilities(local),
		ClientInfo:      info,
	}

	raw, err := s.SendRequest(ctx, "initialize", params, deadline, Origin{Self: true})
	if err != nil {
		return fmt.Errorf("session: initialize: %w", err)
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return mterrors.Wrap(mterrors.KindProtocolError, err, "malformed initialize result")
	}
	if result.ProtocolVersion != ProtocolVersion {
		return mterrors.New(mterrors.KindProtocolError, "unsupported protocol version %q", result.ProtocolVersion)
	}

	peer := fromWireCapabilities(result.Capabilities)
	s.capabilities = intersectCapabilities(local, peer)

	if err := s.SendNotification(ctx, "notifications/initialized", struct{}{}); err != nil {
		return mterrors.Wrap(mterrors.KindTransportError, err, "send notifications/initialized")
	}
	return nil
}

// intersectCapabilities implements spec.md §4.2's "advertised capabilities
// are the intersection of what the proxy can serve and what the peer
// declared": sampling/elicitation are only negotiated on when BOTH sides
// advertise them, because the proxy implements them by forwarding and has
// nowhere to forward to otherwise.
func intersectCapabilities(local, peer Capabilities) Capabilities {
	return Capabilities{
		Sampling:    local.Sampling && peer.Sampling,
		Elicitation: local.Elicitation && peer.Elicitation,
	}
}

// Capabilities returns the negotiated capability set from Handshake.
func (s *Session) Capabilities() Capabilities { return s.capabilities }

// HandleInitialize is the server side of the handshake, called by an
// InboundDispatcher when method == "initialize": it computes the
// intersection against the caller's declared capabilities and returns the
// initializeResult wire shape.
func HandleInitialize(s *Session, local Capabilities, serverInfo ClientInfo, params json.RawMessage) (any, error) {
	var req initializeParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, mterrors.Wrap(mterrors.KindProtocolError, err, "malformed initialize params")
	}
	if req.ProtocolVersion != ProtocolVersion {
		return nil, mterrors.New(mterrors.KindProtocolError, "unsupported protocol version %q", req.ProtocolVersion)
	}
	peer := fromWireCapabilities(req.Capabilities)
	s.capabilities = intersectCapabilities(local, peer)

	return initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    toWireCapabilities(s.capabilities),
		ServerInfo:      serverInfo,
	}, nil
}
