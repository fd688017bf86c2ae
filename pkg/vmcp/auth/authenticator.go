package auth

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned by an Authenticator when the supplied
// token is missing, expired, or otherwise fails verification.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Authenticator resolves a raw incoming credential (typically a bearer
// token extracted from a transport-specific header or query parameter)
// into an Identity. Verifying the credential's signature against an OIDC
// issuer is an external collaborator's job per spec.md §6's Non-goals;
// this interface is the seam the server's incoming-request path calls
// before attaching the result to the session via WithIdentity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// AnonymousAuthenticator implements the "anonymous" IncomingAuth.Type:
// every request resolves to Anonymous regardless of what token (if any)
// was supplied.
type AnonymousAuthenticator struct{}

func (AnonymousAuthenticator) Authenticate(context.Context, string) (*Identity, error) {
	id := Anonymous
	return &id, nil
}
