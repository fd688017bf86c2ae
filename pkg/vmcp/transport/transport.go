// Package transport implements the four MCP wire adapters — stdio,
// WebSocket, SSE, and streaming HTTP — behind one common duplex contract
// (spec.md §4.1): frames delivered in order, a single malformed frame
// dropped with a warning rather than killing the connection, connection
// close reported exactly once, and writes serialized so concurrent sends
// never interleave bytes.
package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/magictunnel/magictunnel/pkg/logger"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// EventKind classifies a connection lifecycle event.
type EventKind int

// Lifecycle events every adapter reports, per spec.md §4.1.
const (
	EventOpened EventKind = iota
	EventClosed
	EventError
)

// Event is one connection lifecycle notification.
type Event struct {
	Kind EventKind
	Err  error
}

// Transport is the common contract every wire adapter satisfies. Session
// (pkg/vmcp/session) depends only on this interface, never on a concrete
// adapter, so it can drive stdio, WebSocket, SSE, or streaming-HTTP
// identically.
type Transport interface {
	// Send writes one frame. Concurrent callers are serialized internally;
	// callers need not hold an external lock.
	Send(ctx context.Context, f *vmcp.Frame) error
	// Frames yields inbound frames in arrival order. The channel is closed
	// exactly once, when the transport is closed or the connection drops.
	Frames() <-chan *vmcp.Frame
	// Events yields connection lifecycle notifications (Opened/Closed/Error).
	Events() <-chan Event
	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// frameReader is the shared machinery behind every adapter: it decodes
// raw bytes into Frames, drops single malformed frames with a warning
// instead of terminating the loop, and fans out lifecycle events exactly
// once on close.
type frameReader struct {
	frames chan *vmcp.Frame
	events chan Event

	closeOnce sync.Once
	closeErr  error
}

func newFrameReader() *frameReader {
	return &frameReader{
		frames: make(chan *vmcp.Frame, 64),
		events: make(chan Event, 4),
	}
}

func (r *frameReader) Frames() <-chan *vmcp.Frame { return r.frames }
func (r *frameReader) Events() <-chan Event       { return r.events }

// decodeLine parses one line/message of raw bytes into a Frame, emitting a
// warning log (not an error event) on malformed input so the read loop
// continues per spec.md §4.1's "single malformed frame is dropped".
func (r *frameReader) decodeLine(raw []byte) (*vmcp.Frame, bool) {
	var f vmcp.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		logger.Warnw("transport: dropping malformed frame", "error", err, "raw", string(raw))
		return nil, false
	}
	if f.JSONRPC == "" {
		logger.Warnw("transport: dropping frame missing jsonrpc version", "raw", string(raw))
		return nil, false
	}
	return &f, true
}

// emitOpened/emitClosed/emitError push a lifecycle event, best-effort (the
// events channel is buffered; a slow consumer never blocks the read loop
// indefinitely since each adapter only emits a handful of events total).
func (r *frameReader) emitOpened() {
	select {
	case r.events <- Event{Kind: EventOpened}:
	default:
	}
}

func (r *frameReader) emitClosed(err error) {
	r.closeOnce.Do(func() {
		r.closeErr = err
		kind := EventClosed
		if err != nil {
			kind = EventError
		}
		select {
		case r.events <- Event{Kind: kind, Err: err}:
		default:
		}
		close(r.frames)
	})
}
