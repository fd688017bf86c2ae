// Package vmcp holds the core domain types shared across the virtual MCP
// proxy: the JSON-RPC envelope, tool/resource/prompt descriptions, backend
// identity, and the routing table that maps a capability name to the
// backend that serves it.
package vmcp

import (
	"encoding/json"
	"fmt"
)

// BackendHealthStatus is the coarse health of an upstream backend as
// observed by the client pool's lifecycle state machine (see pkg/vmcp/client).
type BackendHealthStatus string

// Backend health states. These are deliberately coarser than the client
// pool's internal lifecycle states (Disconnected/Connecting/Ready/Degraded/
// Failed): callers outside the pool only need to know whether a backend is
// usable, degraded, or not.
const (
	BackendHealthy         BackendHealthStatus = "healthy"
	BackendDegraded        BackendHealthStatus = "degraded"
	BackendUnhealthy       BackendHealthStatus = "unhealthy"
	BackendUnauthenticated BackendHealthStatus = "unauthenticated"
	BackendUnknown         BackendHealthStatus = "unknown"
)

// TransportKind identifies which wire adapter (pkg/vmcp/transport) a
// backend or downstream session communicates over.
type TransportKind string

// Supported transport kinds, per spec.md §4.1.
const (
	TransportStdio         TransportKind = "stdio"
	TransportWebSocket     TransportKind = "websocket"
	TransportSSE           TransportKind = "sse"
	TransportStreamableHTTP TransportKind = "streamable-http"
)

// Backend describes one configured upstream MCP server.
type Backend struct {
	ID            string
	Name          string
	TransportType TransportKind
	// BaseURL is the endpoint for network transports; Command/Args/Env/Dir
	// are used for the stdio transport instead.
	BaseURL      string
	Command      string
	Args         []string
	Env          map[string]string
	WorkingDir   string
	HealthStatus BackendHealthStatus
	AuthRef      string
	Metadata     map[string]string
}

// Content is one piece of tool/resource/prompt content, matching the MCP
// content union (text, image, embedded resource).
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// RoutingVariant tags which backend adapter a tool dispatches through.
type RoutingVariant string

// Routing variants, per spec.md §3/§4.4.
const (
	RoutingSubprocess  RoutingVariant = "subprocess"
	RoutingHTTP        RoutingVariant = "http"
	RoutingGRPC        RoutingVariant = "grpc"
	RoutingGraphQL     RoutingVariant = "graphql"
	RoutingWebSocket   RoutingVariant = "websocket"
	RoutingSSE         RoutingVariant = "sse"
	RoutingDatabase    RoutingVariant = "database"
	RoutingUpstreamMCP RoutingVariant = "upstream_mcp"
	RoutingLLM         RoutingVariant = "llm"
)

// RoutingConfig is the tagged-variant routing configuration attached to a
// Tool. Only the field matching Variant is populated; the rest are zero.
// String fields may contain the parameter substitution grammar of §4.4.
type RoutingConfig struct {
	Variant RoutingVariant `yaml:"type" json:"type"`

	Subprocess *SubprocessRouting `yaml:"subprocess,omitempty" json:"subprocess,omitempty"`
	HTTP       *HTTPRouting       `yaml:"http,omitempty" json:"http,omitempty"`
	GRPC       *GRPCRouting       `yaml:"grpc,omitempty" json:"grpc,omitempty"`
	GraphQL    *GraphQLRouting    `yaml:"graphql,omitempty" json:"graphql,omitempty"`
	WebSocket  *WebSocketRouting  `yaml:"websocket,omitempty" json:"websocket,omitempty"`
	SSE        *SSERouting        `yaml:"sse,omitempty" json:"sse,omitempty"`
	Database   *DatabaseRouting   `yaml:"database,omitempty" json:"database,omitempty"`
	Upstream   *UpstreamRouting   `yaml:"upstream_mcp,omitempty" json:"upstream_mcp,omitempty"`
	LLM        *LLMRouting        `yaml:"llm,omitempty" json:"llm,omitempty"`
}

// Validate confirms exactly one backend variant is populated, matching the
// tool-definition invariant of spec.md §3.
func (r RoutingConfig) Validate() error {
	set := 0
	for _, present := range []bool{
		r.Subprocess != nil, r.HTTP != nil, r.GRPC != nil, r.GraphQL != nil,
		r.WebSocket != nil, r.SSE != nil, r.Database != nil, r.Upstream != nil, r.LLM != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("routing config must set exactly one backend variant, got %d", set)
	}
	return nil
}

// SubprocessRouting forks a subprocess to fulfil a tool call.
type SubprocessRouting struct {
	Command    string            `yaml:"command" json:"command"`
	Args       []string          `yaml:"args" json:"args"`
	Env        map[string]string `yaml:"env" json:"env"`
	WorkingDir string            `yaml:"working_dir" json:"working_dir"`
	TimeoutMS  int               `yaml:"timeout_ms" json:"timeout_ms"`
}

// HTTPRouting issues an HTTP request to fulfil a tool call.
type HTTPRouting struct {
	Method        string            `yaml:"method" json:"method"`
	URL           string            `yaml:"url" json:"url"`
	Headers       map[string]string `yaml:"headers" json:"headers"`
	Body          string            `yaml:"body" json:"body"`
	FollowRedirects bool            `yaml:"follow_redirects" json:"follow_redirects"`
	Retry         *RetryConfig      `yaml:"retry,omitempty" json:"retry,omitempty"`
	ErrorMapping  map[string]string `yaml:"error_mapping,omitempty" json:"error_mapping,omitempty"`
}

// RetryConfig configures exponential backoff retries for idempotent calls.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts" json:"max_attempts"`
	InitialMS   int     `yaml:"initial_ms" json:"initial_ms"`
	Multiplier  float64 `yaml:"multiplier" json:"multiplier"`
	MaxMS       int     `yaml:"max_ms" json:"max_ms"`
}

// GRPCRouting calls a gRPC method. The adapter always issues a single
// unary call; Streaming is accepted in config but not consulted, so
// streaming methods are not supported.
type GRPCRouting struct {
	Target      string `yaml:"target" json:"target"`
	FullMethod  string `yaml:"full_method" json:"full_method"`
	Streaming   bool   `yaml:"streaming" json:"streaming"`
	TimeoutMS   int    `yaml:"timeout_ms" json:"timeout_ms"`
	PlaintextOK bool   `yaml:"plaintext" json:"plaintext"`
}

// GraphQLRouting POSTs a query/mutation document.
type GraphQLRouting struct {
	URL       string            `yaml:"url" json:"url"`
	Query     string            `yaml:"query" json:"query"`
	Headers   map[string]string `yaml:"headers" json:"headers"`
	TimeoutMS int               `yaml:"timeout_ms" json:"timeout_ms"`
}

// WebSocketRouting sends a request/response pair over a pooled WS connection.
type WebSocketRouting struct {
	URL       string            `yaml:"url" json:"url"`
	Headers   map[string]string `yaml:"headers" json:"headers"`
	Body      string            `yaml:"body" json:"body"`
	TimeoutMS int               `yaml:"timeout_ms" json:"timeout_ms"`
}

// SSERouting sends a request/response pair over a pooled SSE+POST pair.
type SSERouting struct {
	EventsURL string            `yaml:"events_url" json:"events_url"`
	PostURL   string            `yaml:"post_url" json:"post_url"`
	Headers   map[string]string `yaml:"headers" json:"headers"`
	Body      string            `yaml:"body" json:"body"`
	TimeoutMS int               `yaml:"timeout_ms" json:"timeout_ms"`
}

// DatabaseRouting runs a parameterized query against a configured database.
type DatabaseRouting struct {
	DSNRef    string `yaml:"dsn_ref" json:"dsn_ref"`
	Query     string `yaml:"query" json:"query"`
	TimeoutMS int    `yaml:"timeout_ms" json:"timeout_ms"`
}

// UpstreamRouting forwards tools/call to an upstream MCP server by name.
type UpstreamRouting struct {
	Server       string `yaml:"server" json:"server"`
	OriginalName string `yaml:"original_name" json:"original_name"`
}

// LLMRouting dispatches a tool call as a prompt to an LLM provider.
type LLMRouting struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	Prompt   string `yaml:"prompt" json:"prompt"`
}

// Enhancement is optional LLM-generated metadata enriching a tool's
// discoverability, per spec.md §3.
type Enhancement struct {
	EnrichedDescription string   `json:"enriched_description,omitempty"`
	Examples            []string `json:"examples,omitempty"`
	Keywords            []string `json:"keywords,omitempty"`
}

// Tool is the canonical, registry-resident description of one invocable
// capability.
type Tool struct {
	// Name is the canonical, registry-unique invocable name (post collision
	// resolution; see pkg/vmcp/registry).
	Name        string
	Description string
	InputSchema json.RawMessage
	Routing     RoutingConfig
	Hidden      bool
	Annotations map[string]any
	Enhancement *Enhancement

	// BackendID identifies the originating backend for dynamic (upstream)
	// tools; empty for statically configured tools.
	BackendID string
	// OriginalName is the name the tool was advertised under by its
	// upstream, before any namespace-prefix collision resolution.
	OriginalName string
}

// Category returns the "category" annotation, if any, used by rule-based
// discovery scoring.
func (t Tool) Category() string {
	if t.Annotations == nil {
		return ""
	}
	if c, ok := t.Annotations["category"].(string); ok {
		return c
	}
	return ""
}

// Resource is the registry-resident description of one readable resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	BackendID   string
}

// Prompt is the registry-resident description of one gettable prompt.
type Prompt struct {
	Name        string
	Description string
	Arguments   []PromptArgument
	BackendID   string
}

// PromptArgument describes one named prompt input.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// BackendTarget is the dispatch target a routing-table entry resolves to.
type BackendTarget struct {
	BackendID    string
	OriginalName string
}

// RoutingTable maps a canonical capability name to the backend that serves
// it, produced by the registry on every load/reload (spec.md §3, §4.3).
type RoutingTable struct {
	Tools     map[string]*BackendTarget
	Resources map[string]*BackendTarget
	Prompts   map[string]*BackendTarget
}

// NewRoutingTable returns an empty, ready-to-populate routing table.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{
		Tools:     make(map[string]*BackendTarget),
		Resources: make(map[string]*BackendTarget),
		Prompts:   make(map[string]*BackendTarget),
	}
}

// ToolCallResult is the normalized result of a tool invocation, common to
// every adapter (spec.md §4.4 "Result normalization").
type ToolCallResult struct {
	OK       bool
	Content  []Content
	IsError  bool
	ErrorMsg string
	Meta     map[string]any
}

// ResourceReadResult is the normalized result of a resources/read call.
type ResourceReadResult struct {
	Contents []byte
	MimeType string
}

// PromptGetResult is the normalized result of a prompts/get call.
type PromptGetResult struct {
	Messages string
}
