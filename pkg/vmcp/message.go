package vmcp

import "encoding/json"

// MessageKind classifies a decoded JSON-RPC frame without fully unmarshaling
// its payload, so transports and the session layer can route it before
// knowing its method-specific shape.
type MessageKind int

// Frame kinds, per the JSON-RPC 2.0 envelope: a frame is a Request (has id
// and method), a Notification (has method, no id), or a Response (has id,
// no method; exactly one of Result/Error set).
const (
	KindUnknown MessageKind = iota
	KindRequest
	KindNotification
	KindResponse
)

// Frame is the generic, not-yet-typed JSON-RPC 2.0 message every transport
// adapter produces and consumes. It deliberately mirrors the wire shape
// rather than a method-specific struct, because a single duplex connection
// carries requests, notifications, and responses flowing in both
// directions (spec.md §4.1, §4.2).
type Frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
}

// FrameError is the JSON-RPC 2.0 error object.
type FrameError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Kind classifies the frame by presence of ID/Method/Result/Error, matching
// the JSON-RPC 2.0 grammar rather than relying on a side-channel tag.
func (f *Frame) Kind() MessageKind {
	switch {
	case f.Method != "" && len(f.ID) > 0:
		return KindRequest
	case f.Method != "" && len(f.ID) == 0:
		return KindNotification
	case len(f.ID) > 0:
		return KindResponse
	default:
		return KindUnknown
	}
}

// NewRequest builds an outbound request frame with the given id and params.
func NewRequest(id json.RawMessage, method string, params any) (*Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Frame{JSONRPC: "2.0", ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds an outbound notification frame (no id).
func NewNotification(method string, params any) (*Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Frame{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

// NewResultResponse builds a success response frame echoing id.
func NewResultResponse(id json.RawMessage, result any) (*Frame, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Frame{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response frame echoing id.
func NewErrorResponse(id json.RawMessage, code int, message string, data any) *Frame {
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	return &Frame{JSONRPC: "2.0", ID: id, Error: &FrameError{Code: code, Message: message, Data: raw}}
}
