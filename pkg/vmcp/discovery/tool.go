package discovery

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/magictunnel/magictunnel/pkg/vmcp/registry"
)

// Request is the input shape of the smart_tool_discovery virtual tool
// (SPEC_FULL.md §C.4): a free-form natural-language request, optionally
// narrowed by an explicit result count.
type Request struct {
	// Request is the caller's free-form description of what they want
	// done, e.g. "list open pull requests on the infra repo".
	Request string `json:"request" jsonschema:"required,description=Natural-language description of the desired action"`

	// TopK bounds how many ranked candidates are considered before the
	// single best match is invoked. Zero uses the engine's default.
	TopK int `json:"top_k,omitempty" jsonschema:"description=Maximum number of ranked candidates to consider"`
}

// ReflectSchema renders Request's JSON Schema via struct reflection,
// avoiding a hand-maintained schema literal going out of sync with the
// Go type discovery actually decodes (SPEC_FULL.md §C.4).
func ReflectSchema() (json.RawMessage, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(&Request{})
	return json.Marshal(schema)
}

// InstallSchema reflects Request's schema and installs it as the
// smart_tool_discovery tool's input schema for all subsequent registry
// Merge calls. The serve command does not call it, so the served tool
// keeps the registry's default hand-written schema.
func InstallSchema() error {
	raw, err := ReflectSchema()
	if err != nil {
		return err
	}
	registry.SetDiscoverySchema(raw)
	return nil
}
