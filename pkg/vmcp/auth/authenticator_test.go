package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymousAuthenticator_AlwaysResolves(t *testing.T) {
	t.Parallel()
	id, err := (AnonymousAuthenticator{}).Authenticate(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, Anonymous.Subject, id.Subject)

	id2, err := (AnonymousAuthenticator{}).Authenticate(context.Background(), "some-token-ignored")
	require.NoError(t, err)
	assert.Equal(t, Anonymous.Subject, id2.Subject)
}
