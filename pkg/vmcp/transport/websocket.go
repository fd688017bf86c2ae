package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// WebSocketTransport frames one JSON-RPC message per text frame over a
// full-duplex RFC 6455 connection, with periodic ping/pong keepalive
// (spec.md §4.1 "WebSocket transport").
type WebSocketTransport struct {
	*frameReader

	conn        *websocket.Conn
	writeMu     sync.Mutex
	pingPeriod  time.Duration
	stopPing    chan struct{}
	stopPingOne sync.Once
}

// DialWebSocket opens a client-side WebSocket connection to url (which may
// be wss:// for TLS), sending header as the handshake headers.
func DialWebSocket(ctx context.Context, url string, header http.Header, pingPeriod time.Duration) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("transport: websocket dial %q: %w", url, err)
	}
	return newWebSocketTransport(conn, pingPeriod), nil
}

// AcceptWebSocket wraps an already-upgraded server-side connection (from
// gorilla/websocket's Upgrader.Upgrade) as a Transport.
func AcceptWebSocket(conn *websocket.Conn, pingPeriod time.Duration) *WebSocketTransport {
	return newWebSocketTransport(conn, pingPeriod)
}

func newWebSocketTransport(conn *websocket.Conn, pingPeriod time.Duration) *WebSocketTransport {
	t := &WebSocketTransport{
		frameReader: newFrameReader(),
		conn:        conn,
		pingPeriod:  pingPeriod,
		stopPing:    make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error { return nil })
	t.emitOpened()
	go t.readLoop()
	if pingPeriod > 0 {
		go t.pingLoop()
	}
	return t
}

func (t *WebSocketTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.stopPinging()
			t.emitClosed(err)
			return
		}
		frame, ok := t.decodeLine(data)
		if !ok {
			continue
		}
		t.frames <- frame
	}
}

func (t *WebSocketTransport) pingLoop() {
	ticker := time.NewTicker(t.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-t.stopPing:
			return
		}
	}
}

func (t *WebSocketTransport) stopPinging() {
	t.stopPingOne.Do(func() { close(t.stopPing) })
}

// Send writes one frame as a single text message. Writes are serialized
// via writeMu so ping frames and data frames never interleave.
func (t *WebSocketTransport) Send(ctx context.Context, f *vmcp.Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("transport: marshal frame: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("transport: write websocket frame: %w", err)
	}
	return nil
}

// Close sends a close handshake and closes the underlying connection.
func (t *WebSocketTransport) Close() error {
	t.stopPinging()
	t.writeMu.Lock()
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	return t.conn.Close()
}
