package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }
	b := NewCircuitBreaker(3, time.Second, now)

	require.True(t, b.Allow())
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, Closed, b.State())
	b.RecordFailure()
	assert.Equal(t, Open, b.State())
	assert.False(t, b.Allow())
}

func TestCircuitBreaker_HalfOpenAfterCoolDown(t *testing.T) {
	t.Parallel()
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }
	b := NewCircuitBreaker(1, time.Second, now)

	b.RecordFailure()
	require.Equal(t, Open, b.State())
	assert.False(t, b.Allow())

	clock = clock.Add(2 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }
	b := NewCircuitBreaker(1, time.Second, now)

	b.RecordFailure()
	clock = clock.Add(2 * time.Second)
	require.True(t, b.Allow())
	require.Equal(t, HalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, Open, b.State())
}

func TestCircuitBreaker_SuccessCloses(t *testing.T) {
	t.Parallel()
	b := NewCircuitBreaker(1, time.Second, nil)
	b.RecordFailure()
	require.Equal(t, Open, b.State())
	b.RecordSuccess()
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.Allow())
}
