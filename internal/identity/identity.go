// Package identity turns an inbound request into the authenticated principal that the
// tenant scope is built from.
package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/firmdesk/firmdesk/internal/rbac"
)

// ErrInvalidCredentials signals that the request carried credentials that failed
// verification. Resolvers return it instead of an anonymous result so callers can log it.
var ErrInvalidCredentials = errors.New("identity: invalid credentials")

// Identity is the authenticated principal behind a request.
type Identity struct {
	UserID   string    `json:"user_id"`
	Role     rbac.Role `json:"role"`
	TenantID string    `json:"tenant_id,omitempty"`
}

// Resolver authenticates a request. A nil identity with a nil error means the request is
// anonymous.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (*Identity, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, r *http.Request) (*Identity, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, r *http.Request) (*Identity, error) {
	return f(ctx, r)
}

// Chain tries each resolver in order and returns the first identity found. Errors from
// earlier resolvers are kept and returned only when no resolver succeeds.
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, r *http.Request) (*Identity, error) {
		var firstErr error
		for _, res := range resolvers {
			if res == nil {
				continue
			}
			id, err := res.Resolve(ctx, r)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if id != nil && id.UserID != "" {
				return id, nil
			}
		}
		return nil, firstErr
	})
}

// Static always resolves to the given identity. It is intended for tests and local tooling.
func Static(id Identity) Resolver {
	return ResolverFunc(func(context.Context, *http.Request) (*Identity, error) {
		out := id
		return &out, nil
	})
}
