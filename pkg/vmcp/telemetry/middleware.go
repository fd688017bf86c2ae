package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RequestRecorder wraps one JSON-RPC call in a span and records its
// latency/outcome. The server and transports in this module do not call
// it; callers build one and call Record around each request themselves.
type RequestRecorder struct {
	tracer      trace.Tracer
	callCounter metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewRequestRecorder builds a recorder from the given providers, named
// for instrumentation scope attribution.
func NewRequestRecorder(p *Providers, scope string) (*RequestRecorder, error) {
	tracer := p.TracerProvider.Tracer(scope)
	meter := p.MeterProvider.Meter(scope)

	counter, err := meter.Int64Counter(
		"magictunnel_mcp_requests_total",
		metric.WithDescription("Count of MCP JSON-RPC requests handled"),
	)
	if err != nil {
		return nil, err
	}
	hist, err := meter.Float64Histogram(
		"magictunnel_mcp_request_duration_seconds",
		metric.WithDescription("MCP JSON-RPC request duration in seconds"),
	)
	if err != nil {
		return nil, err
	}
	return &RequestRecorder{tracer: tracer, callCounter: counter, duration: hist}, nil
}

// Record starts a span named method, runs fn, and records its duration
// and outcome as metrics tagged with method/backendID/transport. fn's
// returned error (if any) marks the span as failed without altering it.
func (r *RequestRecorder) Record(ctx context.Context, method, backendID, transport string, fn func(ctx context.Context) error) error {
	attrs := RequestAttributes(method, backendID, transport)

	ctx, span := r.tracer.Start(ctx, method)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start).Seconds()

	status := "ok"
	if err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	recordAttrs := append(attrs, attribute.String("status", status))

	r.callCounter.Add(ctx, 1, metric.WithAttributes(recordAttrs...))
	r.duration.Record(ctx, elapsed, metric.WithAttributes(recordAttrs...))
	return err
}
