package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

func serviceAttributes(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	return attrs
}

// RequestAttributes builds the standard span/metric attribute set for one
// JSON-RPC call, identifying the backend it targeted (if any) and the
// transport it arrived on.
func RequestAttributes(method, backendID, transport string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("mcp.method", method),
		attribute.String("mcp.transport", transport),
	}
	if backendID != "" {
		attrs = append(attrs, attribute.String("mcp.backend_id", backendID))
	}
	return attrs
}
