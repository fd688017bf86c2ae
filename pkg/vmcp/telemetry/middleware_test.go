package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func noopProviders() *Providers {
	return &Providers{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  noop.NewMeterProvider(),
	}
}

func TestRequestRecorder_RecordSuccess(t *testing.T) {
	t.Parallel()
	rec, err := NewRequestRecorder(noopProviders(), "test")
	require.NoError(t, err)

	called := false
	err = rec.Record(context.Background(), "tools/call", "backend-a", "stdio", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRequestRecorder_RecordError(t *testing.T) {
	t.Parallel()
	rec, err := NewRequestRecorder(noopProviders(), "test")
	require.NoError(t, err)

	wantErr := errors.New("boom")
	err = rec.Record(context.Background(), "tools/call", "", "websocket", func(context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}
