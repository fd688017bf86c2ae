// Package llmclient implements the one concrete LLM backend this module
// ships: a plain HTTP client against an OpenAI-compatible chat completions
// endpoint. It satisfies both router.LLMProvider and discovery.Provider
// (identical single-method shapes, kept as separate interfaces in their
// own packages per SPEC_FULL.md's package-boundary rationale), so one
// instance can be wired into the LLM routing adapter and the discovery
// engine's LLM ranking/argument-mapping tiers alike.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
)

// HTTPProvider calls BaseURL+"/chat/completions" with a single user
// message and returns the first choice's content. provider is accepted
// per-call (not baked into HTTPProvider) because spec.md's routing and
// discovery configs both name a provider per call site, and a single
// process may talk to more than one OpenAI-compatible endpoint behind one
// HTTPProvider if BaseURLs is populated for more than one provider id.
type HTTPProvider struct {
	client   *http.Client
	baseURLs map[string]string // provider id -> base URL
	apiKeys  map[string]string // provider id -> bearer key
}

// NewHTTPProvider builds a provider dispatching to baseURLs[providerID] for
// each Complete call, authenticating with apiKeys[providerID] if present.
func NewHTTPProvider(client *http.Client, baseURLs, apiKeys map[string]string) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{client: client, baseURLs: baseURLs, apiKeys: apiKeys}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete implements router.LLMProvider and discovery.Provider.
func (p *HTTPProvider) Complete(ctx context.Context, provider, model, prompt string) (string, error) {
	baseURL, ok := p.baseURLs[provider]
	if !ok {
		return "", mterrors.New(mterrors.KindInvalidParams, "llmclient: unknown provider %q", provider)
	}

	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("llmclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llmclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := p.apiKeys[provider]; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", mterrors.Wrap(mterrors.KindUpstreamUnavailable, err, "llm provider %q request failed", provider)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llmclient: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", mterrors.New(mterrors.KindUpstreamUnavailable, "llm provider %q returned %d: %s", provider, resp.StatusCode, raw)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", mterrors.Wrap(mterrors.KindProtocolError, err, "decode llm response")
	}
	if len(decoded.Choices) == 0 {
		return "", mterrors.New(mterrors.KindUpstreamUnavailable, "llm provider %q returned no choices", provider)
	}
	return decoded.Choices[0].Message.Content, nil
}
