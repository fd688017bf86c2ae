package router

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// LLMProvider completes a single prompt against a named model. The serve
// command supplies llmclient.NewHTTPProvider (pkg/vmcp/llmclient) as the
// concrete implementation; the router only needs this narrow seam.
type LLMProvider interface {
	Complete(ctx context.Context, provider, model, prompt string) (string, error)
}

// LLMAdapter dispatches a tool call by rendering its prompt template
// (parameter-substituted) and sending it to the configured LLM provider,
// rate limited per provider so a burst of LLM-routed tool calls can't
// exhaust a provider's quota on its own.
type LLMAdapter struct {
	provider      LLMProvider
	ratePerSecond float64
	burst         int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLLMAdapter builds an adapter over provider, rate limiting each named
// provider to ratePerSecond requests/second with a matching burst.
func NewLLMAdapter(provider LLMProvider, ratePerSecond float64, burst int) *LLMAdapter {
	return &LLMAdapter{provider: provider, ratePerSecond: ratePerSecond, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (a *LLMAdapter) limiterFor(provider string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.limiters[provider]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(a.ratePerSecond), a.burst)
	a.limiters[provider] = l
	return l
}

func (a *LLMAdapter) Call(ctx context.Context, tool vmcp.Tool, args map[string]any) (vmcp.ToolCallResult, error) {
	cfg := tool.Routing.LLM
	if cfg == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "tool %q missing llm routing config", tool.Name)
	}
	if a.provider == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "no llm provider configured")
	}

	prompt, err := Substitute(cfg.Prompt, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "llm prompt")
	}

	limiter := a.limiterFor(cfg.Provider)
	if err := limiter.Wait(ctx); err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindTimeout, err, "llm rate limit wait")
	}

	callCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	text, err := a.provider.Complete(callCtx, cfg.Provider, cfg.Model, prompt)
	if err != nil {
		return vmcp.ToolCallResult{OK: false, IsError: true, ErrorMsg: err.Error()}, nil
	}
	return vmcp.ToolCallResult{OK: true, Content: []vmcp.Content{{Type: "text", Text: text}}}, nil
}
