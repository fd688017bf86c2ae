package llmclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderComplete(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"0.82"}}]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.Client(), map[string]string{"openai": srv.URL}, map[string]string{"openai": "secret"})
	out, err := p.Complete(context.Background(), "openai", "gpt-4o-mini", "how relevant is this tool?")
	require.NoError(t, err)
	assert.Equal(t, "0.82", out)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestHTTPProviderUnknownProvider(t *testing.T) {
	t.Parallel()

	p := NewHTTPProvider(nil, map[string]string{}, map[string]string{})
	_, err := p.Complete(context.Background(), "nope", "m", "p")
	assert.Error(t, err)
}

func TestHTTPProviderUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.Client(), map[string]string{"openai": srv.URL}, nil)
	_, err := p.Complete(context.Background(), "openai", "m", "p")
	assert.Error(t, err)
}
