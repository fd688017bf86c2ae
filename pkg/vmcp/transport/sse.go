package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// SSEClientTransport implements the legacy receive-only SSE transport:
// inbound frames arrive as an EventSource-style `data:`-prefixed stream;
// outbound frames are sent as individual HTTP POSTs to a sibling endpoint
// (spec.md §4.1 "SSE transport"). The two legs are different TCP
// connections; this type presents them as one logical Transport.
type SSEClientTransport struct {
	*frameReader

	postURL    string
	httpClient *http.Client
	header     http.Header
	resp       *http.Response
}

// DialSSE opens the events GET stream at eventsURL and configures outbound
// requests to POST to postURL.
func DialSSE(ctx context.Context, eventsURL, postURL string, header http.Header, client *http.Client) (*SSEClientTransport, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, eventsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: build sse request: %w", err)
	}
	req.Header = header.Clone()
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: dial sse %q: %w", eventsURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("transport: sse %q returned status %d", eventsURL, resp.StatusCode)
	}

	t := &SSEClientTransport{
		frameReader: newFrameReader(),
		postURL:     postURL,
		httpClient:  client,
		header:      header,
		resp:        resp,
	}
	t.emitOpened()
	go t.readLoop()
	return t, nil
}

func (t *SSEClientTransport) readLoop() {
	scanner := bufio.NewScanner(t.resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var dataLines []string

	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		frame, ok := t.decodeLine([]byte(payload))
		if !ok {
			return
		}
		t.frames <- frame
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush() // blank line terminates one SSE event
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// Other SSE fields (event:, id:, retry:, comments) are not part
			// of the JSON-RPC payload and are ignored.
		}
	}
	flush()
	t.emitClosed(scanner.Err())
}

// Send POSTs f as a JSON-RPC request to the companion endpoint.
func (t *SSEClientTransport) Send(ctx context.Context, f *vmcp.Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("transport: marshal frame: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.postURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("transport: build sse post: %w", err)
	}
	req.Header = t.header.Clone()
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport: sse post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: sse post returned status %d", resp.StatusCode)
	}
	return nil
}

func (t *SSEClientTransport) Close() error { return t.resp.Body.Close() }

// SSEServerTransport is the server side of the SSE transport: it pushes
// frames to a connected client as `data:` events over an open HTTP
// response, and accepts inbound frames via a companion POST handler.
type SSEServerTransport struct {
	*frameReader

	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEServerTransport prepares w as an SSE event stream (setting the
// appropriate headers) for one connected client.
func NewSSEServerTransport(w http.ResponseWriter) (*SSEServerTransport, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("transport: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	t := &SSEServerTransport{frameReader: newFrameReader(), w: w, flusher: flusher}
	t.emitOpened()
	return t, nil
}

// Send writes f as one SSE `data:` event and flushes immediately, per
// spec.md §4.1's "Both sides MUST be flushed per-frame".
func (t *SSEServerTransport) Send(ctx context.Context, f *vmcp.Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("transport: marshal frame: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", raw); err != nil {
		return fmt.Errorf("transport: write sse event: %w", err)
	}
	t.flusher.Flush()
	return nil
}

// HandleInboundPOST decodes one frame from an inbound companion POST
// request and makes it available on Frames(). It is the handler the server
// wires to the POST sibling endpoint named in spec.md §4.1.
func (t *SSEServerTransport) HandleInboundPOST(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	frame, ok := t.decodeLine(body)
	if !ok {
		http.Error(w, "malformed frame", http.StatusBadRequest)
		return
	}
	t.frames <- frame
	w.WriteHeader(http.StatusAccepted)
}

// Close reports the connection closed exactly once; the underlying
// ResponseWriter's lifecycle is owned by the HTTP server, not this type.
func (t *SSEServerTransport) Close() error {
	t.emitClosed(nil)
	return nil
}
