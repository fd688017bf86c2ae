package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityContext_StoreAndRetrieve(t *testing.T) {
	t.Parallel()
	identity := &Identity{
		Subject: "user123",
		Name:    "Alice Smith",
		Email:   "alice@example.com",
		Groups:  []string{"admins", "developers"},
		Claims:  map[string]any{"org_id": "org456"},
		Token:   "test-token",
	}

	ctx := WithIdentity(context.Background(), identity)

	retrieved, ok := IdentityFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, identity.Subject, retrieved.Subject)
	assert.Equal(t, identity.Name, retrieved.Name)
	assert.Equal(t, identity.Email, retrieved.Email)
	assert.Equal(t, identity.Groups, retrieved.Groups)
	assert.Equal(t, identity.Token, retrieved.Token)
}

func TestIdentityContext_NilIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	got := WithIdentity(ctx, nil)
	assert.Equal(t, ctx, got)
}

func TestIdentityFromContext_NotPresent(t *testing.T) {
	t.Parallel()
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)
}
