// Package mterrors defines the error taxonomy every MagicTunnel subsystem
// maps its failures onto before they reach a downstream client, per the
// error handling section of the specification.
package mterrors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is one of the fixed taxonomy members. Kind values are stable and are
// never renumbered; the JSON-RPC code a Kind maps to is likewise fixed.
type Kind string

// Taxonomy members.
const (
	KindInvalidParams       Kind = "invalid_params"
	KindToolNotFound        Kind = "tool_not_found"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindTransportError      Kind = "transport_error"
	KindProtocolError       Kind = "protocol_error"
	KindTimeout             Kind = "timeout"
	KindCancelled           Kind = "cancelled"
	KindToolError           Kind = "tool_error"
	KindInternalError       Kind = "internal_error"
)

// jsonrpcCode maps each Kind onto the JSON-RPC 2.0 error code sent on the
// wire. Standard codes (-32600..-32700) are reused where the JSON-RPC spec
// already covers the case; everything domain-specific uses the -32000..
// -32099 "server error" range.
var jsonrpcCode = map[Kind]int{
	KindInvalidParams:       -32602,
	KindToolNotFound:        -32001,
	KindUpstreamUnavailable: -32002,
	KindTransportError:      -32003,
	KindProtocolError:       -32600,
	KindTimeout:             -32004,
	KindCancelled:           -32005,
	KindToolError:           -32006,
	KindInternalError:       -32603,
}

// Error is a taxonomy-tagged error carrying enough detail to build the
// JSON-RPC error object without the caller re-deriving the code.
type Error struct {
	Kind Kind
	// WireCode overrides the Kind's default JSON-RPC code when set, so a
	// ToolError can carry the backend's original wire code forward instead
	// of collapsing to the taxonomy's generic one (spec.md §7 "propagate as
	// ToolError preserving the backend's code where possible").
	WireCode int
	Message  string
	Data     any
	Wrapped  error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is lets errors.Is(err, mterrors.ToolNotFound) match regardless of message
// or wrapped cause, by comparing Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Code returns the JSON-RPC error code for e's Kind, or WireCode if set.
func (e *Error) Code() int {
	if e.WireCode != 0 {
		return e.WireCode
	}
	return jsonrpcCode[e.Kind]
}

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind, wrapping cause so errors.Is/As
// keep working up the call stack.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: cause}
}

// Sentinels for errors.Is comparisons against a bare Kind, e.g.
// errors.Is(err, mterrors.ToolNotFound).
var (
	InvalidParams       = &Error{Kind: KindInvalidParams}
	ToolNotFound        = &Error{Kind: KindToolNotFound}
	UpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	TransportError       = &Error{Kind: KindTransportError}
	ProtocolError       = &Error{Kind: KindProtocolError}
	Timeout             = &Error{Kind: KindTimeout}
	Cancelled           = &Error{Kind: KindCancelled}
	ToolError           = &Error{Kind: KindToolError}
	InternalError       = &Error{Kind: KindInternalError}
)

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to KindInternalError otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalError
}

// WireError is the JSON-RPC error object shape sent to clients.
type WireError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ToWire renders err as a JSON-RPC error object, coercing non-taxonomy
// errors to KindInternalError so every failure path produces a valid frame.
func ToWire(err error) *WireError {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: KindInternalError, Message: err.Error()}
	}
	w := &WireError{Code: e.Code(), Message: e.Message}
	if e.Data != nil {
		if raw, mErr := json.Marshal(e.Data); mErr == nil {
			w.Data = raw
		}
	}
	return w
}
