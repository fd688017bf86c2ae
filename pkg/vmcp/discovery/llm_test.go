package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

type fakeProvider struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeProvider) Complete(_ context.Context, _, _, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func TestLLMScorer_ParsesNumericScore(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{response: "0.8"}
	s := NewLLMScorer(p, "openai", "gpt-test", 1000, 4096)

	score, err := s.Score(context.Background(), "list files", vmcp.Tool{Name: "ls", Description: "list files"})
	require.NoError(t, err)
	assert.Equal(t, 0.8, score)
}

func TestLLMScorer_ClampsOutOfRangeScore(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{response: "1.5"}
	s := NewLLMScorer(p, "openai", "gpt-test", 1000, 4096)
	score, err := s.Score(context.Background(), "q", vmcp.Tool{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestLLMScorer_NonNumericRespondsZero(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{response: "I think this is quite relevant"}
	s := NewLLMScorer(p, "openai", "gpt-test", 1000, 4096)
	score, err := s.Score(context.Background(), "q", vmcp.Tool{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestLLMScorer_PropagatesProviderError(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("provider down")
	p := &fakeProvider{err: wantErr}
	s := NewLLMScorer(p, "openai", "gpt-test", 1000, 4096)
	_, err := s.Score(context.Background(), "q", vmcp.Tool{})
	assert.ErrorIs(t, err, wantErr)
}

func TestArgumentMapper_MapsValidArguments(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{response: `{"path": "/tmp"}`}
	m := NewArgumentMapper(p, "openai", "gpt-test")
	tool := vmcp.Tool{
		Name:        "list_dir",
		InputSchema: []byte(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}

	args, err := m.Map(context.Background(), "list files in tmp", tool)
	require.NoError(t, err)
	assert.Equal(t, "/tmp", args["path"])
	assert.Len(t, p.prompts, 1)
}

func TestArgumentMapper_RetriesOnceOnValidationFailure(t *testing.T) {
	t.Parallel()
	responses := []string{`{"path": 123}`, `{"path": "/tmp"}`}
	p := &countingProvider{responses: responses}
	m := NewArgumentMapper(p, "openai", "gpt-test")
	tool := vmcp.Tool{
		Name:        "list_dir",
		InputSchema: []byte(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}

	args, err := m.Map(context.Background(), "list files in tmp", tool)
	require.NoError(t, err)
	assert.Equal(t, "/tmp", args["path"])
	assert.Equal(t, 2, p.calls)
}

func TestArgumentMapper_FailsAfterRetryExhausted(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{response: `{"path": 123}`}
	m := NewArgumentMapper(p, "openai", "gpt-test")
	tool := vmcp.Tool{
		Name:        "list_dir",
		InputSchema: []byte(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}

	_, err := m.Map(context.Background(), "list files", tool)
	assert.Error(t, err)
}

func TestExtractJSON_StripsSurroundingProse(t *testing.T) {
	t.Parallel()
	got := extractJSON("Sure thing! {\"a\":1} Hope that helps.")
	assert.Equal(t, `{"a":1}`, got)
}

type countingProvider struct {
	responses []string
	calls     int
}

func (c *countingProvider) Complete(_ context.Context, _, _, _ string) (string, error) {
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}
