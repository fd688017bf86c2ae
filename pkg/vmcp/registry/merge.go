package registry

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/schema"
)

// Merge builds a new Snapshot from sources: static tools are authoritative
// over dynamic upstream tools sharing a bare name; within dynamic
// upstreams, name collisions are resolved by prefixing with the
// upstream's server name (spec.md §4.3 "Merge & collision policy").
//
// Invalid tools are skipped and returned as diagnostics rather than
// aborting the merge.
func Merge(sources []Source) (*Snapshot, []error) {
	snap := emptySnapshot()
	var diagnostics []error

	// Pass 1: static tools claim their bare names first so they are
	// authoritative over any same-named dynamic tool.
	staticNames := make(map[string]bool)
	for _, src := range sources {
		if !src.Static {
			continue
		}
		for _, t := range src.Tools {
			if err := validateTool(t); err != nil {
				diagnostics = append(diagnostics, err)
				continue
			}
			snap.Tools[t.Name] = t
			staticNames[t.Name] = true
		}
		for _, r := range src.Resources {
			snap.Resources[r.URI] = r
		}
		for _, p := range src.Prompts {
			snap.Prompts[p.Name] = p
		}
	}

	// Pass 2: dynamic upstream tools. A bare name already claimed by a
	// static tool (or a previous upstream, first-registered-wins) is
	// namespaced with the upstream's server name.
	for _, src := range sources {
		if src.Static {
			continue
		}
		for _, t := range src.Tools {
			t.BackendID = src.BackendID
			if t.OriginalName == "" {
				t.OriginalName = t.Name
			}
			canonical := t.Name
			if staticNames[canonical] || snap.Tools[canonical].BackendID != "" && snap.Tools[canonical].BackendID != src.BackendID {
				canonical = namespacedName(src.BackendName, t.OriginalName)
			}
			t.Name = canonical
			if err := validateTool(t); err != nil {
				diagnostics = append(diagnostics, err)
				continue
			}
			snap.Tools[canonical] = t
			snap.reverseTools[reverseKey{src.BackendID, t.OriginalName}] = canonical
			snap.Routing.Tools[canonical] = &vmcp.BackendTarget{BackendID: src.BackendID, OriginalName: t.OriginalName}
		}
		for _, r := range src.Resources {
			r.BackendID = src.BackendID
			key := r.URI
			if _, exists := snap.Resources[key]; exists {
				key = namespacedName(src.BackendName, r.URI)
			}
			snap.Resources[key] = r
			snap.Routing.Resources[key] = &vmcp.BackendTarget{BackendID: src.BackendID, OriginalName: r.URI}
		}
		for _, p := range src.Prompts {
			p.BackendID = src.BackendID
			key := p.Name
			if _, exists := snap.Prompts[key]; exists {
				key = namespacedName(src.BackendName, p.Name)
			}
			snap.Prompts[key] = p
			snap.Routing.Prompts[key] = &vmcp.BackendTarget{BackendID: src.BackendID, OriginalName: p.Name}
		}
	}

	// The smart-discovery virtual tool is always present, independent of
	// any source, per spec.md §4.6.
	if _, ok := snap.Tools[DiscoveryToolName]; !ok {
		snap.Tools[DiscoveryToolName] = discoveryPlaceholderTool()
	}

	snap.Version = uuid.NewString()
	return snap, diagnostics
}

// namespacedName builds the "server__tool" collision-resolved name.
func namespacedName(serverName, original string) string {
	return fmt.Sprintf("%s__%s", serverName, original)
}

// validateTool checks the load-time invariants of spec.md §4.3: non-empty
// identifier name, a syntactically valid JSON Schema object, and exactly
// one routing variant.
func validateTool(t vmcp.Tool) error {
	if strings.TrimSpace(t.Name) == "" {
		return &ErrInvalidTool{Name: t.Name, Reason: "name must be a non-empty identifier"}
	}
	if len(t.InputSchema) == 0 {
		return &ErrInvalidTool{Name: t.Name, Reason: "input_schema is required"}
	}
	if err := schema.ValidateDocument(t.InputSchema); err != nil {
		return &ErrInvalidTool{Name: t.Name, Reason: err.Error()}
	}
	if t.Name != DiscoveryToolName {
		if err := t.Routing.Validate(); err != nil {
			return &ErrInvalidTool{Name: t.Name, Reason: err.Error()}
		}
	}
	return nil
}

// discoverySchema holds the reflected input schema for smart_tool_discovery,
// replaced by SetDiscoverySchema. It defaults to a minimal hand-written
// schema so Merge never produces an invalid tool entry when no reflected
// schema has been installed.
var discoverySchema = []byte(`{"type":"object","properties":{"request":{"type":"string"}},"required":["request"]}`)

// SetDiscoverySchema installs the reflected JSON Schema for the
// smart_tool_discovery tool's input (SPEC_FULL.md §C.4); it affects every
// later Merge. discovery.InstallSchema is its only caller.
func SetDiscoverySchema(raw []byte) { discoverySchema = raw }

// discoveryPlaceholderTool is the registry-resident Tool entry for
// smart_tool_discovery; its schema is discoverySchema (replaced by
// discovery.InstallSchema's invopop reflection when that is called,
// SPEC_FULL.md §C.4), this is just the registry-visible placeholder so
// AdvertisedTools always has an entry.
func discoveryPlaceholderTool() vmcp.Tool {
	return vmcp.Tool{
		Name:        DiscoveryToolName,
		Description: "Route a natural-language request to the best matching tool and invoke it.",
		InputSchema: discoverySchema,
		Routing:     vmcp.RoutingConfig{Variant: vmcp.RoutingLLM, LLM: &vmcp.LLMRouting{Provider: "internal"}},
	}
}
