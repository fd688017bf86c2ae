package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDocument(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateDocument(json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`)))
	assert.Error(t, ValidateDocument(json.RawMessage(``)))
	assert.Error(t, ValidateDocument(json.RawMessage(`{"type": 123}`)))
}

func TestValidateArguments(t *testing.T) {
	t.Parallel()
	s := json.RawMessage(`{"type":"object","required":["q"],"properties":{"q":{"type":"string"}}}`)

	errs, err := ValidateArguments(s, map[string]any{"q": "hello"})
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = ValidateArguments(s, map[string]any{})
	require.NoError(t, err)
	require.NotEmpty(t, errs)

	errs, err = ValidateArguments(s, map[string]any{"q": 5})
	require.NoError(t, err)
	require.NotEmpty(t, errs)
}
