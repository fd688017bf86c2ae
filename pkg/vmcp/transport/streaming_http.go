package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// StreamingHTTPClientTransport implements the MCP 2025-06-18 preferred
// wire: full-duplex NDJSON over one persistent HTTP request/response pair.
// The client keeps the request body open via an io.Pipe so it can keep
// writing frames after the initial POST, and reads the response body as
// it arrives rather than waiting for it to complete.
type StreamingHTTPClientTransport struct {
	*frameReader

	pw      *io.PipeWriter
	writeMu sync.Mutex
	resp    *http.Response
}

// DialStreamingHTTP opens a long-lived POST to url and begins reading the
// response body as an NDJSON stream of inbound frames.
func DialStreamingHTTP(ctx context.Context, url string, header http.Header, client *http.Client) (*StreamingHTTPClientTransport, error) {
	if client == nil {
		client = http.DefaultClient
	}
	pr, pw := io.Pipe()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return nil, fmt.Errorf("transport: build streaming-http request: %w", err)
	}
	req.Header = header.Clone()
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: dial streaming-http %q: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("transport: streaming-http %q returned status %d", url, resp.StatusCode)
	}

	t := &StreamingHTTPClientTransport{frameReader: newFrameReader(), pw: pw, resp: resp}
	t.emitOpened()
	go t.readLoop()
	return t, nil
}

func (t *StreamingHTTPClientTransport) readLoop() {
	scanner := bufio.NewScanner(t.resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := sanitizeLine(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		frame, ok := t.decodeLine(line)
		if !ok {
			continue
		}
		t.frames <- frame
	}
	t.emitClosed(scanner.Err())
}

// Send writes f as one NDJSON line onto the still-open request body.
func (t *StreamingHTTPClientTransport) Send(ctx context.Context, f *vmcp.Frame) error {
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
	if _, err := t.pw.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("transport: write streaming-http frame: %w", err)
	}
	return nil
}

func (t *StreamingHTTPClientTransport) Close() error {
	_ = t.pw.Close()
	return t.resp.Body.Close()
}

// StreamingHTTPServerTransport is the server side: it reads the inbound
// request body as NDJSON and writes outbound frames to the response body,
// flushing after every frame so both directions stay live simultaneously.
type StreamingHTTPServerTransport struct {
	*frameReader

	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// ServeStreamingHTTP adapts one HTTP request/response pair into a
// Transport. It starts the inbound read loop in the background and
// returns immediately; the caller must keep the ResponseWriter's
// underlying connection open for the lifetime of the returned Transport
// (i.e. call this from within the http.Handler and block on Events()/a
// done channel before returning).
func ServeStreamingHTTP(w http.ResponseWriter, r *http.Request) (*StreamingHTTPServerTransport, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("transport: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	t := &StreamingHTTPServerTransport{frameReader: newFrameReader(), w: w, flusher: flusher}
	t.emitOpened()
	go t.readLoop(r.Body)
	return t, nil
}

func (t *StreamingHTTPServerTransport) readLoop(body io.ReadCloser) {
	defer body.Close()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := sanitizeLine(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		frame, ok := t.decodeLine(line)
		if !ok {
			continue
		}
		t.frames <- frame
	}
	t.emitClosed(scanner.Err())
}

// Send writes f as one NDJSON line to the response body and flushes.
func (t *StreamingHTTPServerTransport) Send(ctx context.Context, f *vmcp.Frame) error {
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
	if _, err := t.w.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("transport: write streaming-http frame: %w", err)
	}
	t.flusher.Flush()
	return nil
}

// Close reports the connection closed exactly once. The HTTP server owns
// closing the actual TCP connection once the handler returns.
func (t *StreamingHTTPServerTransport) Close() error {
	t.emitClosed(nil)
	return nil
}
