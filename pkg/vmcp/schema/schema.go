// Package schema centralizes JSON Schema validation shared by the
// registry (validating a tool's declared input_schema is itself
// well-formed) and the router/discovery packages (validating a caller's
// arguments, or an LLM-mapped argument set, against a tool's schema
// before dispatch).
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateDocument checks that raw is itself a syntactically valid JSON
// Schema document (used when loading tool definitions, spec.md §3).
func ValidateDocument(raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("schema: empty input_schema")
	}
	loader := gojsonschema.NewBytesLoader(raw)
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		return fmt.Errorf("schema: invalid input_schema: %w", err)
	}
	return nil
}

// ValidationError describes one schema violation, in the shape the router
// and discovery's argument-mapper both surface to callers.
type ValidationError struct {
	Field       string
	Description string
}

// ValidateArguments validates args (already decoded to a plain map) against
// the tool's input_schema, returning every violation found rather than
// failing fast, so callers (e.g. the LLM argument mapper) can retry with
// full context on what was wrong.
func ValidateArguments(inputSchema json.RawMessage, args map[string]any) ([]ValidationError, error) {
	schemaLoader := gojsonschema.NewBytesLoader(inputSchema)
	docLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("schema: validate: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	out := make([]ValidationError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		out = append(out, ValidationError{Field: re.Field(), Description: re.Description()})
	}
	return out, nil
}
