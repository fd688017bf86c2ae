package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

func TestStreamingHTTPTransport_BidirectionalNDJSON(t *testing.T) {
	t.Parallel()
	serverDone := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := ServeStreamingHTTP(w, r)
		require.NoError(t, err)

		reqFrame := waitFrame(t, st.Frames())
		assert.Equal(t, "tools/call", reqFrame.Method)

		resp, err := vmcp.NewResultResponse(reqFrame.ID, map[string]string{"content": "hi"})
		require.NoError(t, err)
		require.NoError(t, st.Send(r.Context(), resp))
		close(serverDone)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, err := DialStreamingHTTP(context.Background(), srv.URL, nil, srv.Client())
	require.NoError(t, err)
	defer client.Close()

	req, err := vmcp.NewRequest(json.RawMessage(`9`), "tools/call", map[string]any{"name": "echo"})
	require.NoError(t, err)
	require.NoError(t, client.Send(context.Background(), req))

	got := waitFrame(t, client.Frames())
	assert.Equal(t, vmcp.KindResponse, got.Kind())
	<-serverDone
}
