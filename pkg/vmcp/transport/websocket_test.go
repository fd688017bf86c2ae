package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

func TestWebSocketTransport_RoundTrip(t *testing.T) {
	t.Parallel()
	upgrader := websocket.Upgrader{}
	serverFrame := make(chan *vmcp.Frame, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		st := AcceptWebSocket(conn, 0)
		defer st.Close()

		f := waitFrame(t, st.Frames())
		serverFrame <- f

		resp, err := vmcp.NewResultResponse(f.ID, map[string]string{"content": "hi"})
		require.NoError(t, err)
		require.NoError(t, st.Send(context.Background(), resp))

		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	client, err := DialWebSocket(context.Background(), wsURL, nil, 0)
	require.NoError(t, err)
	defer client.Close()

	req, err := vmcp.NewRequest(json.RawMessage(`7`), "tools/call", map[string]any{"name": "echo"})
	require.NoError(t, err)
	require.NoError(t, client.Send(context.Background(), req))

	gotOnServer := <-serverFrame
	assert.Equal(t, "tools/call", gotOnServer.Method)

	resp := waitFrame(t, client.Frames())
	assert.Equal(t, vmcp.KindResponse, resp.Kind())
}
