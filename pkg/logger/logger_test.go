package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnv map[string]string

func (f fakeEnv) Getenv(key string) string { return f[key] }

func TestUnstructuredLogsWithEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"Default Case", "", true},
		{"Explicitly True", "true", true},
		{"Explicitly False", "false", false},
		{"Invalid Value", "not-a-bool", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := fakeEnv{"UNSTRUCTURED_LOGS": tt.envValue}
			assert.Equal(t, tt.expected, unstructuredLogsWithEnv(env))
		})
	}
}

func TestUnstructuredLogsWithEnv_NilDefersToOSEnv(t *testing.T) {
	t.Setenv("UNSTRUCTURED_LOGS", "false")
	assert.False(t, unstructuredLogsWithEnv(nil))
}

func setSingletonForTest(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := singleton.Load()
	singleton.Store(l)
	t.Cleanup(func() { singleton.Store(prev) })
}

func TestInitializeStructured(t *testing.T) {
	var buf bytes.Buffer
	Initialize(&buf, slog.LevelInfo, fakeEnv{"UNSTRUCTURED_LOGS": "false"})

	Info("hello structured")
	assert.Contains(t, buf.String(), `"msg":"hello structured"`)
}

func TestInitializeUnstructured(t *testing.T) {
	var buf bytes.Buffer
	Initialize(&buf, slog.LevelInfo, fakeEnv{"UNSTRUCTURED_LOGS": "true"})

	Info("hello text")
	assert.Contains(t, buf.String(), "hello text")
	assert.NotContains(t, buf.String(), `"msg"`)
}

func TestLevelHelpers(t *testing.T) { //nolint:paralleltest // mutates the process-wide singleton
	tests := []struct {
		name     string
		logFn    func()
		contains string
	}{
		{"Debugf", func() { Debugf("debug %s", "formatted") }, "debug formatted"},
		{"Debugw", func() { Debugw("debug kv", "key", "val") }, "debug kv"},
		{"Infof", func() { Infof("info %s", "formatted") }, "info formatted"},
		{"Infow", func() { Infow("info kv", "key", "val") }, "info kv"},
		{"Warnf", func() { Warnf("warn %s", "formatted") }, "warn formatted"},
		{"Warnw", func() { Warnw("warn kv", "key", "val") }, "warn kv"},
		{"Errorf", func() { Errorf("error %s", "formatted") }, "error formatted"},
		{"Errorw", func() { Errorw("error kv", "key", "val") }, "error kv"},
	}

	for _, tc := range tests { //nolint:paralleltest // mutates the process-wide singleton
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			setSingletonForTest(t, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

			tc.logFn()

			assert.Contains(t, buf.String(), tc.contains)
		})
	}
}

func TestDPanic(t *testing.T) { //nolint:paralleltest // mutates the process-wide singleton
	var buf bytes.Buffer
	setSingletonForTest(t, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	require.Panics(t, func() { DPanic("invariant violated") })
	assert.Contains(t, buf.String(), "invariant violated")
}

func TestLWithoutInitializeFallsBackToStderr(t *testing.T) {
	prev := singleton.Load()
	singleton.Store(nil)
	t.Cleanup(func() { singleton.Store(prev) })

	l := L()
	require.NotNil(t, l)
}

func TestWithContext(t *testing.T) {
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, l, WithContext(context.Background(), l))
	assert.NotNil(t, WithContext(context.Background(), nil))
}
