// Package discovery implements smart tool discovery (spec.md §4.6): a
// hybrid rule-based/semantic/LLM-based ranker that picks the tools most
// relevant to a natural-language query, plus an LLM argument mapper that
// turns the caller's free-form request into validated tool arguments.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/cache"
	"github.com/magictunnel/magictunnel/pkg/vmcp/embedding"
	"github.com/magictunnel/magictunnel/pkg/vmcp/registry"
)

// Weights controls how the three scoring signals are blended. Defaults
// per spec.md §4.6: semantic 0.30, rule 0.15, LLM 0.55 — renormalized
// when a signal is unavailable (e.g. no LLM provider configured) so the
// remaining weights still sum to 1.
type Weights struct {
	Semantic float64
	Rule     float64
	LLM      float64
}

// DefaultWeights is the spec-prescribed hybrid blend.
var DefaultWeights = Weights{Semantic: 0.30, Rule: 0.15, LLM: 0.55}

// Candidate is one ranked tool with its blended score and the signals
// that produced it, returned to callers for transparency/debugging.
type Candidate struct {
	Tool       vmcp.Tool
	Score      float64
	Semantic   float64
	Rule       float64
	LLM        float64
	Confidence float64
}

// Ranker scores a query against one tool; RuleScorer, SemanticScorer, and
// LLMScorer each implement this over a different signal.
type Ranker interface {
	Score(ctx context.Context, query string, tool vmcp.Tool) (float64, error)
}

// Engine performs smart tool discovery over the registry's live snapshot.
type Engine struct {
	reg      *registry.Registry
	rule     Ranker
	semantic Ranker
	llm      Ranker
	weights  Weights

	// confidenceThreshold below which a candidate is dropped entirely
	// rather than returned with a low score (spec.md §4.6 "Confidence
	// thresholds").
	confidenceThreshold float64

	// matchCache is the first caching tier: a ranked result list keyed by
	// (registry snapshot version, query), so a repeated query against an
	// unchanged registry skips scoring entirely. A new snapshot version
	// (registry.Snapshot.Version) naturally misses the cache instead of
	// requiring an explicit purge hook (spec.md §4.6 "three-tier caching").
	matchCache *cache.TTLCache[string, []Candidate]

	// llmCache is the second tier: raw LLM relevance scores keyed by
	// (query, tool name), so ranking the same query against
	// overlapping tool sets doesn't re-pay the LLM round trip per call.
	// The third tier is the registry's own snapshot — embedding.Manager
	// re-embeds only changed tools on reload, so no discovery-level cache
	// is needed for it.
	llmCache *cache.TTLCache[string, float64]
}

// Option configures an Engine.
type Option func(*Engine)

func WithWeights(w Weights) Option             { return func(e *Engine) { e.weights = w } }
func WithConfidenceThreshold(t float64) Option { return func(e *Engine) { e.confidenceThreshold = t } }
func WithSemanticRanker(r Ranker) Option        { return func(e *Engine) { e.semantic = r } }
func WithLLMRanker(r Ranker) Option             { return func(e *Engine) { e.llm = r } }

// New builds an Engine over reg. A rule-based ranker is always present
// (it needs no external dependency); semantic and LLM rankers are
// optional collaborators supplied via options.
func New(reg *registry.Registry, opts ...Option) *Engine {
	matchCache, _ := cache.New[string, []Candidate](512, 30*time.Second, nil)
	llmCache, _ := cache.New[string, float64](2048, 5*time.Minute, nil)
	e := &Engine{
		reg:                 reg,
		rule:                &RuleScorer{},
		weights:             DefaultWeights,
		confidenceThreshold: 0.2,
		matchCache:          matchCache,
		llmCache:            llmCache,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rank scores every advertised (non-hidden) tool against query and
// returns the top K candidates above the confidence threshold, sorted by
// score descending, tie-broken by higher semantic score then
// lexicographic tool name (spec.md §4.6 "Tie-breaking").
func (e *Engine) Rank(ctx context.Context, query string, topK int) ([]Candidate, error) {
	snap := e.reg.Current()
	tools := snap.AdvertisedTools(false)

	matchKey := snap.Version + "|" + query
	if e.matchCache != nil {
		if cached, ok := e.matchCache.Get(matchKey); ok {
			if topK > 0 && len(cached) > topK {
				cached = cached[:topK]
			}
			return cached, nil
		}
	}

	weights := e.effectiveWeights()

	candidates := make([]Candidate, 0, len(tools))
	for _, t := range tools {
		if t.Name == registry.DiscoveryToolName {
			continue
		}
		c := Candidate{Tool: t}

		ruleScore, err := e.rule.Score(ctx, query, t)
		if err != nil {
			return nil, err
		}
		c.Rule = ruleScore

		if e.semantic != nil {
			s, err := e.semantic.Score(ctx, query, t)
			if err == nil {
				c.Semantic = s
			}
		}
		if e.llm != nil {
			c.LLM = e.scoreLLMCached(ctx, query, t)
		}

		c.Score = weights.Semantic*c.Semantic + weights.Rule*c.Rule + weights.LLM*c.LLM
		c.Confidence = c.Score
		if c.Confidence >= e.confidenceThreshold {
			candidates = append(candidates, c)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Semantic != candidates[j].Semantic {
			return candidates[i].Semantic > candidates[j].Semantic
		}
		return candidates[i].Tool.Name < candidates[j].Tool.Name
	})

	if e.matchCache != nil {
		e.matchCache.Set(matchKey, candidates)
	}

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// scoreLLMCached scores tool against the LLM ranker, reusing a cached
// score for an identical (query, tool) pair within the LLM cache's TTL.
// Errors from the underlying ranker are swallowed to 0, matching the
// uncached call site's behavior: the LLM signal is optional and an
// outage degrades ranking quality rather than failing the request.
func (e *Engine) scoreLLMCached(ctx context.Context, query string, t vmcp.Tool) float64 {
	key := fmt.Sprintf("%s|%s", query, t.Name)
	if e.llmCache != nil {
		if s, ok := e.llmCache.Get(key); ok {
			return s
		}
	}
	s, err := e.llm.Score(ctx, query, t)
	if err != nil {
		return 0
	}
	if e.llmCache != nil {
		e.llmCache.Set(key, s)
	}
	return s
}

// effectiveWeights renormalizes the configured weights so unavailable
// signals (no semantic or LLM ranker configured) don't silently zero out
// part of the score budget.
func (e *Engine) effectiveWeights() Weights {
	w := e.weights
	if e.semantic == nil {
		w.Semantic = 0
	}
	if e.llm == nil {
		w.LLM = 0
	}
	sum := w.Semantic + w.Rule + w.LLM
	if sum <= 0 {
		return Weights{Rule: 1}
	}
	return Weights{Semantic: w.Semantic / sum, Rule: w.Rule / sum, LLM: w.LLM / sum}
}

// embeddingToolSources adapts the registry's advertised tools to
// embedding.ToolSource for Manager.Reconcile.
func embeddingToolSources(tools []vmcp.Tool) []embedding.ToolSource {
	out := make([]embedding.ToolSource, 0, len(tools))
	for _, t := range tools {
		out = append(out, embedding.ToolSource{Key: t.Name, Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out
}

// ReconcileEmbeddings re-embeds any tool in the registry's current
// snapshot whose canonical content changed since the last call, via mgr.
// Callers invoke this on registry reload (the registry's fsnotify-driven
// watch) so the semantic signal stays in step with the live catalog.
func (e *Engine) ReconcileEmbeddings(ctx context.Context, mgr *embedding.Manager) (int, error) {
	snap := e.reg.Current()
	tools := snap.AdvertisedTools(false)
	return mgr.Reconcile(ctx, embeddingToolSources(tools))
}
