package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute_Plain(t *testing.T) {
	t.Parallel()
	out, err := Substitute("hello {name}", map[string]any{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestSubstitute_Default(t *testing.T) {
	t.Parallel()
	out, err := Substitute("{region|us-east-1}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", out)

	out, err = Substitute("{region|us-east-1}", map[string]any{"region": "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", out)
}

func TestSubstitute_Index(t *testing.T) {
	t.Parallel()
	out, err := Substitute("{items[1]}", map[string]any{"items": []any{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, "b", out)

	_, err = Substitute("{items[9]}", map[string]any{"items": []any{"a"}})
	assert.Error(t, err)
}

func TestSubstitute_Ternary(t *testing.T) {
	t.Parallel()
	out, err := Substitute("{verbose?--verbose:}", map[string]any{"verbose": true})
	require.NoError(t, err)
	assert.Equal(t, "--verbose", out)

	out, err = Substitute("{verbose?--verbose:}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestSubstitute_NoPlaceholders(t *testing.T) {
	t.Parallel()
	out, err := Substitute("plain string", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain string", out)
}

func TestSubstitute_MissingRequiredValueErrors(t *testing.T) {
	t.Parallel()
	_, err := Substitute("hello {name}", map[string]any{})
	require.Error(t, err)

	_, err = Substitute("hello {name}", map[string]any{"other": "value"})
	require.Error(t, err)
}
