package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

func subprocessTool(name string) vmcp.Tool {
	return vmcp.Tool{
		Name:        name,
		Description: "test tool",
		InputSchema: []byte(`{"type":"object"}`),
		Routing: vmcp.RoutingConfig{
			Variant:    vmcp.RoutingSubprocess,
			Subprocess: &vmcp.SubprocessRouting{Command: "echo"},
		},
	}
}

// TestMerge_StaticAuthoritative covers spec.md S4: a static tool and a
// same-named upstream tool coexist as "read" (static) and "fs__read"
// (namespaced upstream).
func TestMerge_StaticAuthoritative(t *testing.T) {
	t.Parallel()
	sources := []Source{
		{Static: true, Tools: []vmcp.Tool{subprocessTool("read")}},
		{
			BackendID:   "fs-1",
			BackendName: "fs",
			Tools:       []vmcp.Tool{subprocessTool("read")},
		},
	}

	snap, diags := Merge(sources)
	assert.Empty(t, diags)

	static, ok := snap.Tool("read")
	require.True(t, ok)
	assert.Empty(t, static.BackendID, "static tool should win the bare name")

	namespaced, ok := snap.Tool("fs__read")
	require.True(t, ok)
	assert.Equal(t, "fs-1", namespaced.BackendID)

	canonical, ok := snap.CanonicalName("fs-1", "read")
	require.True(t, ok)
	assert.Equal(t, "fs__read", canonical)
}

func TestMerge_DynamicCollisionBetweenUpstreams(t *testing.T) {
	t.Parallel()
	sources := []Source{
		{BackendID: "a", BackendName: "alpha", Tools: []vmcp.Tool{subprocessTool("ping")}},
		{BackendID: "b", BackendName: "beta", Tools: []vmcp.Tool{subprocessTool("ping")}},
	}

	snap, diags := Merge(sources)
	assert.Empty(t, diags)

	first, ok := snap.Tool("ping")
	require.True(t, ok)
	assert.Equal(t, "a", first.BackendID, "first-registered upstream keeps the bare name")

	second, ok := snap.Tool("beta__ping")
	require.True(t, ok)
	assert.Equal(t, "b", second.BackendID)
}

func TestMerge_InvalidToolSkippedNotFatal(t *testing.T) {
	t.Parallel()
	bad := subprocessTool("broken")
	bad.InputSchema = nil

	sources := []Source{
		{Static: true, Tools: []vmcp.Tool{subprocessTool("good"), bad}},
	}

	snap, diags := Merge(sources)
	require.Len(t, diags, 1)

	_, ok := snap.Tool("good")
	assert.True(t, ok)
	_, ok = snap.Tool("broken")
	assert.False(t, ok)
}

func TestMerge_DiscoveryToolAlwaysPresent(t *testing.T) {
	t.Parallel()
	snap, diags := Merge(nil)
	assert.Empty(t, diags)
	_, ok := snap.Tool(DiscoveryToolName)
	assert.True(t, ok)
}

func TestSnapshot_AdvertisedTools_HiddenAndDiscoveryOnly(t *testing.T) {
	t.Parallel()
	visible := subprocessTool("visible")
	hidden := subprocessTool("hidden")
	hidden.Hidden = true

	snap, _ := Merge([]Source{{Static: true, Tools: []vmcp.Tool{visible, hidden}}})

	normal := snap.AdvertisedTools(false)
	names := map[string]bool{}
	for _, t := range normal {
		names[t.Name] = true
	}
	assert.True(t, names["visible"])
	assert.False(t, names["hidden"])
	assert.True(t, names[DiscoveryToolName])

	discoveryOnly := snap.AdvertisedTools(true)
	require.Len(t, discoveryOnly, 1)
	assert.Equal(t, DiscoveryToolName, discoveryOnly[0].Name)
}
