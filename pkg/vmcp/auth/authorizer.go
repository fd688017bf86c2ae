package auth

import "context"

// Action identifies the kind of MCP operation an Authorizer is asked to
// rule on, mirroring the JSON-RPC methods that mutate or read backend
// state (spec.md §4).
type Action string

const (
	ActionListTools    Action = "list_tools"
	ActionCallTool     Action = "call_tool"
	ActionReadResource Action = "read_resource"
	ActionGetPrompt    Action = "get_prompt"
)

// Request is the minimal shape an Authorizer needs to rule on one
// operation: who is asking (Identity, via context normally, but passed
// explicitly here so an Authorizer implementation stays a pure function
// of its inputs), what they're trying to do, and against which named
// resource.
type Request struct {
	Identity Identity
	Action   Action
	Resource string // tool/resource/prompt name, empty for list_* actions
}

// Verdict is an Authorizer's decision. Reason is populated on Allowed ==
// false for inclusion in the JSON-RPC error returned to the caller.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Authorizer rules on whether one request is permitted. A policy-engine
// backed implementation (Cedar, OPA, RBAC role checks) is an external
// collaborator per spec.md §6's Non-goals; this package only defines the
// seam the server's request path calls through.
type Authorizer interface {
	Authorize(ctx context.Context, req Request) (Verdict, error)
}

// AllowAll is the default Authorizer used when no IncomingAuth.Authz
// collaborator is configured: every request is permitted.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, Request) (Verdict, error) {
	return Verdict{Allowed: true}, nil
}
