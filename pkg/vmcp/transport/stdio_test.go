package transport

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// loopbackPipe wires an NewPipeStdio's writer directly back to its own
// reader, so Send()ing a frame makes it observable on Frames() — enough
// to exercise the line-framing/decoding logic without spawning a real
// subprocess.
func newLoopbackStdio(t *testing.T) *StdioTransport {
	t.Helper()
	pr, pw := io.Pipe()
	transport := NewPipeStdio(pr, pw)
	t.Cleanup(func() { _ = transport.Close() })
	return transport
}

func waitFrame(t *testing.T, ch <-chan *vmcp.Frame) *vmcp.Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestStdioTransport_SendThenReceiveOwnFrame(t *testing.T) {
	t.Parallel()
	tr := newLoopbackStdio(t)

	req, err := vmcp.NewRequest(json.RawMessage(`1`), "tools/call", map[string]any{"name": "echo"})
	require.NoError(t, err)

	require.NoError(t, tr.Send(context.Background(), req))
	got := waitFrame(t, tr.Frames())

	assert.Equal(t, vmcp.KindRequest, got.Kind())
	assert.Equal(t, "tools/call", got.Method)
}

func TestStdioTransport_MalformedLineDroppedNotFatal(t *testing.T) {
	t.Parallel()
	pr, pw := io.Pipe()
	tr := NewPipeStdio(pr, pw)
	defer tr.Close()

	go func() {
		_, _ = pw.Write([]byte("not json\n"))
		raw, _ := json.Marshal(vmcp.Frame{JSONRPC: "2.0", ID: json.RawMessage(`2`), Method: "ping"})
		_, _ = pw.Write(append(raw, '\n'))
	}()

	got := waitFrame(t, tr.Frames())
	assert.Equal(t, "ping", got.Method)
}

func TestSanitizeLine(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []byte(`{"a":1}`), sanitizeLine([]byte("  {\"a\":1}  \r")))
	assert.Empty(t, sanitizeLine([]byte("   ")))
}
