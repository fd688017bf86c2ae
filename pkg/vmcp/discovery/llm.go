package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/schema"
)

// Provider completes a prompt against a named model. The router's
// LLMAdapter depends on the identical shape (router.LLMProvider); discovery
// defines its own to avoid an import of pkg/vmcp/router, which would be a
// needless dependency in the other direction.
type Provider interface {
	Complete(ctx context.Context, provider, model, prompt string) (string, error)
}

// LLMScorer asks the configured provider/model to rate a tool's relevance
// to the query on a 0-1 scale (spec.md §4.6 "LLM-based ranking"), subject
// to a per-provider rate limit and a token budget on how much tool
// metadata gets included in the prompt.
type LLMScorer struct {
	provider    Provider
	providerID  string
	model       string
	limiter     *rate.Limiter
	tokenBudget int
}

// NewLLMScorer builds a scorer calling providerID/model through provider,
// capped at ratePerSecond requests/second and tokenBudget characters of
// tool metadata per prompt (a crude proxy for a token count, consistent
// with not pulling in a tokenizer dependency just for budgeting).
func NewLLMScorer(provider Provider, providerID, model string, ratePerSecond float64, tokenBudget int) *LLMScorer {
	return &LLMScorer{
		provider:    provider,
		providerID:  providerID,
		model:       model,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		tokenBudget: tokenBudget,
	}
}

func (s *LLMScorer) Score(ctx context.Context, query string, tool vmcp.Tool) (float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	prompt := s.buildScorePrompt(query, tool)
	text, err := s.provider.Complete(ctx, s.providerID, s.model, prompt)
	if err != nil {
		return 0, err
	}
	return parseScore(text), nil
}

// buildScorePrompt renders the tool's description within the scorer's
// token budget (truncating a long description rather than failing) and
// asks for a bare numeric relevance score.
func (s *LLMScorer) buildScorePrompt(query string, tool vmcp.Tool) string {
	desc := tool.Description
	if s.tokenBudget > 0 && len(desc) > s.tokenBudget {
		desc = desc[:s.tokenBudget]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %q\n", query)
	fmt.Fprintf(&b, "Tool: %s - %s\n", tool.Name, desc)
	b.WriteString("On a scale of 0.0 to 1.0, how relevant is this tool to the query? Respond with only the number.")
	return b.String()
}

func parseScore(text string) float64 {
	text = strings.TrimSpace(text)
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		if f < 0 {
			return 0
		}
		if f > 1 {
			return 1
		}
		return f
	}
	return 0
}

// ArgumentMapper turns a caller's free-form request into tool arguments
// that satisfy the target tool's input schema, by asking the LLM to
// produce a JSON object and validating it (spec.md §4.6 "Argument
// mapping"). On a validation failure, it retries once with the schema
// violations appended to the prompt, giving the model a second chance.
type ArgumentMapper struct {
	provider   Provider
	providerID string
	model      string
}

func NewArgumentMapper(provider Provider, providerID, model string) *ArgumentMapper {
	return &ArgumentMapper{provider: provider, providerID: providerID, model: model}
}

// Map produces validated arguments for tool from the caller's request
// text, retrying once against validation feedback.
func (m *ArgumentMapper) Map(ctx context.Context, request string, tool vmcp.Tool) (map[string]any, error) {
	prompt := mappingPrompt(request, tool, nil)
	args, err := m.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	violations, err := schema.ValidateArguments(tool.InputSchema, args)
	if err != nil {
		return nil, mterrors.Wrap(mterrors.KindInternalError, err, "validate mapped arguments")
	}
	if len(violations) == 0 {
		return args, nil
	}

	retryPrompt := mappingPrompt(request, tool, violations)
	args, err = m.complete(ctx, retryPrompt)
	if err != nil {
		return nil, err
	}
	violations, err = schema.ValidateArguments(tool.InputSchema, args)
	if err != nil {
		return nil, mterrors.Wrap(mterrors.KindInternalError, err, "validate retried arguments")
	}
	if len(violations) > 0 {
		return nil, mterrors.New(mterrors.KindInvalidParams, "argument mapping for %q failed validation after retry: %v", tool.Name, violations)
	}
	return args, nil
}

func (m *ArgumentMapper) complete(ctx context.Context, prompt string) (map[string]any, error) {
	text, err := m.provider.Complete(ctx, m.providerID, m.model, prompt)
	if err != nil {
		return nil, mterrors.Wrap(mterrors.KindUpstreamUnavailable, err, "llm argument mapping")
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(extractJSON(text)), &args); err != nil {
		return nil, mterrors.Wrap(mterrors.KindProtocolError, err, "llm did not return a JSON object")
	}
	return args, nil
}

func mappingPrompt(request string, tool vmcp.Tool, violations []schema.ValidationError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given the request %q, produce a JSON object of arguments for the tool %q (%s).\n", request, tool.Name, tool.Description)
	fmt.Fprintf(&b, "The arguments must satisfy this JSON Schema:\n%s\n", string(tool.InputSchema))
	if len(violations) > 0 {
		b.WriteString("The previous attempt failed validation:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s: %s\n", v.Field, v.Description)
		}
	}
	b.WriteString("Respond with only the JSON object, no surrounding text.")
	return b.String()
}

// extractJSON strips any leading/trailing prose a model might add around
// the JSON object despite instructions, by taking the substring between
// the first '{' and the last '}'.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
