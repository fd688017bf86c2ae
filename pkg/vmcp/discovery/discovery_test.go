package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/registry"
)

func registryWithTools(tools ...vmcp.Tool) *registry.Registry {
	src := registry.Source{Static: true, Tools: tools}
	snap, diags := registry.Merge([]registry.Source{src})
	if len(diags) > 0 {
		panic(diags[0])
	}
	r := registry.New()
	r.Swap(snap)
	return r
}

func schemaTool(name, description string) vmcp.Tool {
	return vmcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: []byte(`{"type":"object"}`),
		Routing:     vmcp.RoutingConfig{Variant: vmcp.RoutingSubprocess, Subprocess: &vmcp.SubprocessRouting{Command: "true"}},
	}
}

func TestEngine_RankByRuleOverlap(t *testing.T) {
	t.Parallel()
	reg := registryWithTools(
		schemaTool("list_pull_requests", "List open pull requests on a repository"),
		schemaTool("send_email", "Send an email to a recipient"),
	)
	e := New(reg)

	candidates, err := e.Rank(context.Background(), "list pull requests", 5)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.Equal(t, "list_pull_requests", candidates[0].Tool.Name)
}

func TestEngine_ConfidenceThresholdDropsWeakMatches(t *testing.T) {
	t.Parallel()
	reg := registryWithTools(schemaTool("send_email", "Send an email to a recipient"))
	e := New(reg, WithConfidenceThreshold(0.99))

	candidates, err := e.Rank(context.Background(), "completely unrelated query", 5)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestEngine_RankSkipsDiscoveryToolItself(t *testing.T) {
	t.Parallel()
	reg := registryWithTools(schemaTool("send_email", "Send an email to a recipient"))
	e := New(reg, WithConfidenceThreshold(0))

	candidates, err := e.Rank(context.Background(), "email", 10)
	require.NoError(t, err)
	for _, c := range candidates {
		assert.NotEqual(t, registry.DiscoveryToolName, c.Tool.Name)
	}
}

func TestEngine_MatchCacheServesRepeatedQuery(t *testing.T) {
	t.Parallel()
	reg := registryWithTools(schemaTool("list_pull_requests", "List open pull requests"))
	e := New(reg)

	first, err := e.Rank(context.Background(), "list pull requests", 5)
	require.NoError(t, err)
	second, err := e.Rank(context.Background(), "list pull requests", 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

type fakeRanker struct {
	score float64
	err   error
}

func (f fakeRanker) Score(context.Context, string, vmcp.Tool) (float64, error) { return f.score, f.err }

func TestEngine_EffectiveWeightsRenormalizeWithoutOptionalSignals(t *testing.T) {
	t.Parallel()
	reg := registryWithTools(schemaTool("a", "a tool"))
	e := New(reg)
	w := e.effectiveWeights()
	assert.InDelta(t, 1.0, w.Rule+w.Semantic+w.LLM, 1e-9)
	assert.Equal(t, 0.0, w.Semantic)
	assert.Equal(t, 0.0, w.LLM)
}

func TestEngine_BlendsAllThreeSignalsWhenConfigured(t *testing.T) {
	t.Parallel()
	reg := registryWithTools(schemaTool("a", "a tool"))
	e := New(reg, WithSemanticRanker(fakeRanker{score: 1}), WithLLMRanker(fakeRanker{score: 1}), WithConfidenceThreshold(0))

	candidates, err := e.Rank(context.Background(), "anything", 5)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.InDelta(t, 1.0, candidates[0].Semantic, 1e-9)
	assert.InDelta(t, 1.0, candidates[0].LLM, 1e-9)
}
