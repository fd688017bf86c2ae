package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	t.Parallel()

	e := NewHashEmbedder(16)
	v1, err := e.Embed(context.Background(), "list files in a directory")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "list files in a directory")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 16)
	assert.Equal(t, "local-hash-v1", e.ModelID())
	assert.Equal(t, 16, e.Dims())
}

func TestHashEmbedderDiffersByText(t *testing.T) {
	t.Parallel()

	e := NewHashEmbedder(0)
	assert.Equal(t, 32, e.Dims())

	v1, err := e.Embed(context.Background(), "read a file")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "write a file")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}
