// Package auth defines the identity and authorization shapes the proxy
// consumes at its edges. Verifying a bearer token against an OIDC issuer,
// evaluating an RBAC/Cedar policy, and exchanging tokens for outgoing
// backend calls are all external collaborator responsibilities per
// spec.md §6's Non-goals — this package only carries the result of that
// work (an Identity, an authorization verdict) through the request path.
package auth

// Identity is the caller identity attached to a downstream session after
// incoming authentication succeeds. Subject is the only field any
// collaborator is required to populate; the rest are best-effort claims
// carried through for logging, routing (OutgoingAuth source selection),
// and policy evaluation.
type Identity struct {
	Subject   string
	Name      string
	Email     string
	Groups    []string
	Claims    map[string]any
	Token     string
	TokenType string
	Metadata  map[string]string
}

// Anonymous is the Identity attached to a session when IncomingAuth.Type
// is "anonymous" — a non-empty Subject so downstream code never has to
// special-case an empty-string caller.
var Anonymous = Identity{Subject: "anonymous", TokenType: "none"}
