package router

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

const jsonCodecName = "magictunnel-json"

// jsonCodec lets the gRPC adapter invoke arbitrary methods without
// compiled protobuf stubs: both the request and response are plain
// map[string]any values, marshaled as JSON. This only works against
// services that accept/return google.protobuf.Struct-shaped messages or
// that the operator has otherwise arranged to speak JSON over gRPC; it is
// a deliberate simplification documented in DESIGN.md rather than pulling
// in a full dynamic-descriptor/reflection client.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error  { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                        { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GRPCAdapter dispatches a tool call as a unary gRPC invocation, pooling
// one *grpc.ClientConn per target.
type GRPCAdapter struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func NewGRPCAdapter() *GRPCAdapter {
	return &GRPCAdapter{conns: make(map[string]*grpc.ClientConn)}
}

func (a *GRPCAdapter) Call(ctx context.Context, tool vmcp.Tool, args map[string]any) (vmcp.ToolCallResult, error) {
	cfg := tool.Routing.GRPC
	if cfg == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "tool %q missing grpc routing config", tool.Name)
	}

	conn, err := a.connFor(cfg)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindUpstreamUnavailable, err, "grpc dial %s", cfg.Target)
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp map[string]any
	err = conn.Invoke(callCtx, cfg.FullMethod, args, &resp, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return vmcp.ToolCallResult{OK: false, IsError: true, ErrorMsg: err.Error()}, nil
	}
	raw, _ := json.Marshal(resp)
	return vmcp.ToolCallResult{OK: true, Content: []vmcp.Content{{Type: "text", Text: string(raw), MimeType: "application/json"}}}, nil
}

func (a *GRPCAdapter) connFor(cfg *vmcp.GRPCRouting) (*grpc.ClientConn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.conns[cfg.Target]; ok {
		return c, nil
	}

	var opts []grpc.DialOption
	if cfg.PlaintextOK {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		return nil, err
	}
	a.conns[cfg.Target] = conn
	return conn, nil
}

// Close tears down every pooled connection.
func (a *GRPCAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for target, c := range a.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.conns, target)
	}
	return firstErr
}
