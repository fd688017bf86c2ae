// Package telemetry provides request tracing and metrics building blocks
// for the proxy. There was no buildable teacher implementation to adapt for
// this concern (see DESIGN.md), so the provider/middleware shape here is
// grounded on the teacher's telemetry test suite (which specifies the
// Config fields and middleware behavior precisely even without the
// source) and scoped down to what SPEC_FULL.md's observability section
// actually needs: a tracer, a meter, and a per-request span/metric pair
// (RequestRecorder) for one JSON-RPC call. No transport or server handler
// calls RequestRecorder.
package telemetry

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"go.opentelemetry.io/otel/exporters/prometheus"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls which telemetry signals are produced. Tracing always
// uses an in-process SDK tracer (sampled per SamplingRate); metrics are
// exposed either as a Prometheus scrape endpoint or not at all — this
// module has no OTLP collector dependency of its own, unlike the
// teacher's multi-backend exporter matrix, since SPEC_FULL.md's
// Non-goals exclude an external metrics backend.
type Config struct {
	ServiceName    string
	ServiceVersion string

	TracingEnabled bool
	// SamplingRate is the fraction of traces sampled, in (0, 1]; a value
	// of 0 or below samples every trace.
	SamplingRate float64

	MetricsEnabled bool
}

// Providers bundles the constructed tracer/meter and, when metrics are
// enabled, the Prometheus scrape handler to mount at /metrics.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	MetricsHandler http.Handler
	Shutdown       func(context.Context) error
}

// NewProviders builds tracer/meter providers per cfg. Disabled signals
// get no-op providers so instrumented code never has to check whether
// telemetry is configured.
func NewProviders(cfg Config) (*Providers, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("telemetry: service name is required")
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		serviceAttributes(cfg)...,
	))
	if err != nil {
		return nil, err
	}

	var shutdownFns []func(context.Context) error

	var tp trace.TracerProvider = tracenoop.NewTracerProvider()
	if cfg.TracingEnabled {
		rate := cfg.SamplingRate
		if rate <= 0 {
			rate = 1
		}
		sdkTP := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
		)
		tp = sdkTP
		shutdownFns = append(shutdownFns, sdkTP.Shutdown)
	}

	var mp metric.MeterProvider = noop.NewMeterProvider()
	var handler http.Handler
	if cfg.MetricsEnabled {
		registry := promclient.NewRegistry()
		exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, err
		}
		sdkMP := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		mp = sdkMP
		shutdownFns = append(shutdownFns, sdkMP.Shutdown)
		handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		MetricsHandler: handler,
		Shutdown: func(ctx context.Context) error {
			var errs []error
			for _, fn := range shutdownFns {
				if err := fn(ctx); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}, nil
}
