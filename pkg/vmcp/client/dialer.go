package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/transport"
)

// DefaultDialer opens the transport matching backend.TransportType, per
// spec.md §4.1's four wire adapters.
type DefaultDialer struct {
	HTTPClient *http.Client
	PingPeriod time.Duration
}

// NewDefaultDialer builds a DefaultDialer with sensible HTTP client and
// WebSocket ping-period defaults.
func NewDefaultDialer() *DefaultDialer {
	return &DefaultDialer{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		PingPeriod: 30 * time.Second,
	}
}

// Dial opens the wire transport for backend, selecting the adapter by
// backend.TransportType.
func (d *DefaultDialer) Dial(ctx context.Context, backend vmcp.Backend) (transport.Transport, error) {
	switch backend.TransportType {
	case vmcp.TransportStdio:
		return transport.NewProcessStdio(transport.StdioConfig{
			Command:    backend.Command,
			Args:       backend.Args,
			Env:        backend.Env,
			WorkingDir: backend.WorkingDir,
		})
	case vmcp.TransportWebSocket:
		return transport.DialWebSocket(ctx, backend.BaseURL, nil, d.PingPeriod)
	case vmcp.TransportSSE:
		return transport.DialSSE(ctx, backend.BaseURL+"/events", backend.BaseURL+"/messages", nil, d.HTTPClient)
	case vmcp.TransportStreamableHTTP:
		return transport.DialStreamingHTTP(ctx, backend.BaseURL, nil, d.HTTPClient)
	default:
		return nil, fmt.Errorf("client: backend %q: unsupported transport %q", backend.Name, backend.TransportType)
	}
}
