package session

import (
	"context"
	"encoding/json"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
)

// UpstreamDispatcher is the InboundDispatcher installed on every upstream
// session: it forwards sampling/elicitation requests to the originating
// downstream client and answers everything else with MethodNotFound,
// exactly matching spec.md §4.2's "Inbound request dispatch on an upstream
// session".
type UpstreamDispatcher struct {
	Forwarder *Forwarder
}

var forwardableMethods = map[string]bool{
	"sampling/createMessage": true,
	"elicitation/create":     true,
}

// HandleRequest forwards sampling/createMessage and elicitation/create to
// the originating client; any other inbound method on an upstream session
// is answered with MethodNotFound (-32601) rather than escalated.
func (d *UpstreamDispatcher) HandleRequest(ctx context.Context, s *Session, method string, params json.RawMessage) (any, error) {
	if !forwardableMethods[method] {
		e := mterrors.New(mterrors.KindProtocolError, "method not found: %s", method)
		e.WireCode = -32601
		return nil, e
	}
	result, err := d.Forwarder.Forward(ctx, s, method, params)
	if err != nil {
		return nil, err
	}
	var decoded any
	if len(result) > 0 {
		if uErr := json.Unmarshal(result, &decoded); uErr != nil {
			return nil, mterrors.Wrap(mterrors.KindProtocolError, uErr, "malformed forwarded result")
		}
	}
	return decoded, nil
}

// HandleNotification on an upstream session only needs to observe
// capability-relevant notifications (e.g. notifications/initialized from
// our own handshake flow is outbound, not inbound); anything else is
// logged by the caller's frame classification and otherwise ignored.
func (d *UpstreamDispatcher) HandleNotification(_ context.Context, _ *Session, _ string, _ json.RawMessage) {
}

// DownstreamDispatcher is installed on every downstream client session; it
// answers MCP requests (tools/list, tools/call, resources/*, prompts/*,
// ping) via the supplied handler funcs so the session package stays
// decoupled from the registry/router packages that actually implement
// them.
type DownstreamDispatcher struct {
	Handlers map[string]func(ctx context.Context, s *Session, params json.RawMessage) (any, error)
	OnNotify func(ctx context.Context, s *Session, method string, params json.RawMessage)
}

func (d *DownstreamDispatcher) HandleRequest(ctx context.Context, s *Session, method string, params json.RawMessage) (any, error) {
	h, ok := d.Handlers[method]
	if !ok {
		return nil, mterrors.New(mterrors.KindProtocolError, "method not found: %s", method)
	}
	return h(ctx, s, params)
}

func (d *DownstreamDispatcher) HandleNotification(ctx context.Context, s *Session, method string, params json.RawMessage) {
	if d.OnNotify != nil {
		d.OnNotify(ctx, s, method, params)
	}
}
