package config

import (
	"errors"
	"fmt"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// Validate checks cfg for the minimum a server can start with. It assumes
// ApplyDefaults has already run, so it never complains about a field that
// defaulting would have filled in.
func (c *Config) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	if c.Listen.HTTP == "" && c.Listen.WebSocket == "" && c.Listen.SSE == "" && !c.Listen.Stdio {
		errs = append(errs, errors.New("listen: at least one of http, websocket, sse, stdio must be configured"))
	}

	if len(c.Backends) == 0 {
		errs = append(errs, errors.New("backends: at least one backend is required"))
	}
	seenIDs := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if verr := validateBackend(i, b); verr != nil {
			errs = append(errs, verr)
			continue
		}
		if seenIDs[b.ID] {
			errs = append(errs, fmt.Errorf("backends[%d]: duplicate id %q", i, b.ID))
		}
		seenIDs[b.ID] = true
	}

	if verr := validateDiscoveryWeights(c.Discovery); verr != nil {
		errs = append(errs, verr)
	}

	if c.IncomingAuth != nil {
		if verr := validateIncomingAuth(*c.IncomingAuth); verr != nil {
			errs = append(errs, verr)
		}
	}

	return errors.Join(errs...)
}

func validateBackend(i int, b BackendConfig) error {
	if b.ID == "" {
		return fmt.Errorf("backends[%d]: id is required", i)
	}
	switch b.TransportType {
	case vmcp.TransportStdio:
		if b.Command == "" {
			return fmt.Errorf("backends[%d] (%s): stdio transport requires command", i, b.ID)
		}
	case vmcp.TransportWebSocket, vmcp.TransportSSE, vmcp.TransportStreamableHTTP:
		if b.BaseURL == "" {
			return fmt.Errorf("backends[%d] (%s): %s transport requires base_url", i, b.ID, b.TransportType)
		}
	default:
		return fmt.Errorf("backends[%d] (%s): unknown transport %q", i, b.ID, b.TransportType)
	}
	return nil
}

func validateDiscoveryWeights(d DiscoveryConfig) error {
	sum := d.SemanticWeight + d.RuleWeight + d.LLMWeight
	if sum <= 0 {
		return errors.New("discovery: semantic_weight + rule_weight + llm_weight must be > 0")
	}
	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold > 1 {
		return fmt.Errorf("discovery: confidence_threshold %.2f must be within [0,1]", d.ConfidenceThreshold)
	}
	return nil
}

func validateIncomingAuth(a IncomingAuthConfig) error {
	switch a.Type {
	case "", "anonymous":
		return nil
	case "oidc":
		if a.OIDC == nil {
			return errors.New("incoming_auth: type oidc requires an oidc section")
		}
		if a.OIDC.Issuer == "" {
			return errors.New("incoming_auth.oidc: issuer is required")
		}
		if a.OIDC.ClientID == "" {
			return errors.New("incoming_auth.oidc: client_id is required")
		}
		return nil
	default:
		return fmt.Errorf("incoming_auth: unknown type %q", a.Type)
	}
}
