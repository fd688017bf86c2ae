package auth

import "context"

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying identity. A nil identity
// returns ctx unchanged rather than storing a nil pointer that
// IdentityFromContext would then have to guard against.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the Identity stored by WithIdentity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok
}
