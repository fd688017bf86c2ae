// Package registry implements the capability registry (spec.md §4.3): it
// loads tool/resource/prompt definitions from static YAML files and from
// live upstream MCP catalogs, resolves name collisions, and publishes an
// immutable snapshot that the router dispatches against.
package registry

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// Snapshot is the immutable view of the registry at one point in time.
// Holders of a Snapshot keep working against it for the duration of one
// call, even if a reload swaps in a new one (spec.md §4.3 "Hot reload").
type Snapshot struct {
	Version   string
	Tools     map[string]vmcp.Tool
	Resources map[string]vmcp.Resource
	Prompts   map[string]vmcp.Prompt
	Routing   *vmcp.RoutingTable

	// reverse maps a (backendID, originalName) dynamic-tool pair back to
	// its canonical registry name, for routing (CanonicalName). Merge builds
	// it afresh for each snapshot and does not read the previous one.
	reverseTools map[reverseKey]string
}

type reverseKey struct {
	backendID    string
	originalName string
}

// visibilityMode records whether tools/list should collapse to just the
// smart_tool_discovery virtual tool.
type visibilityMode struct {
	discoveryOnly bool
}

// AdvertisedTools returns the tools that must appear in an external
// tools/list response: neither hidden nor suppressed by discovery-only
// mode, sorted by name for a deterministic listing.
func (s *Snapshot) AdvertisedTools(discoveryOnly bool) []vmcp.Tool {
	if discoveryOnly {
		if t, ok := s.Tools[DiscoveryToolName]; ok {
			return []vmcp.Tool{t}
		}
		return nil
	}
	out := make([]vmcp.Tool, 0, len(s.Tools))
	for _, t := range s.Tools {
		if t.Hidden {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DiscoveryToolName is the canonical name of the smart-discovery virtual
// tool, always present in the registry regardless of mode.
const DiscoveryToolName = "smart_tool_discovery"

// Tool looks up a tool by its canonical invocable name.
func (s *Snapshot) Tool(name string) (vmcp.Tool, bool) {
	t, ok := s.Tools[name]
	return t, ok
}

// CanonicalName resolves a dynamic upstream tool's (backendID, originalName)
// pair back to the name it is registered under, after collision resolution.
func (s *Snapshot) CanonicalName(backendID, originalName string) (string, bool) {
	name, ok := s.reverseTools[reverseKey{backendID, originalName}]
	return name, ok
}

// Registry holds the current Snapshot behind an atomic pointer, so readers
// never block on a reload and a reload is a single atomic pointer swap.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// New returns a Registry initialized with an empty snapshot.
func New() *Registry {
	r := &Registry{}
	r.current.Store(emptySnapshot())
	return r
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Version:      uuid.NewString(),
		Tools:        make(map[string]vmcp.Tool),
		Resources:    make(map[string]vmcp.Resource),
		Prompts:      make(map[string]vmcp.Prompt),
		Routing:      vmcp.NewRoutingTable(),
		reverseTools: make(map[reverseKey]string),
	}
}

// Current returns the currently published snapshot. Safe for concurrent
// use; the returned pointer is stable even if a concurrent reload swaps in
// a newer one.
func (r *Registry) Current() *Snapshot { return r.current.Load() }

// Swap atomically publishes next as the current snapshot.
func (r *Registry) Swap(next *Snapshot) { r.current.Store(next) }

// Source is one contributor to a merged snapshot: either the static
// loader's result or one upstream's discovered catalog.
type Source struct {
	// Static is false for dynamic (upstream) sources.
	Static bool
	// BackendID is empty for the static source.
	BackendID   string
	BackendName string
	Tools       []vmcp.Tool
	Resources   []vmcp.Resource
	Prompts     []vmcp.Prompt
}

// ErrInvalidTool reports a tool that failed load-time validation; it does
// not abort the overall load (spec.md §4.3 "Invalid tools are skipped").
type ErrInvalidTool struct {
	Name   string
	Reason string
}

func (e *ErrInvalidTool) Error() string {
	return fmt.Sprintf("registry: tool %q invalid: %s", e.Name, e.Reason)
}
