package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/firmdesk/firmdesk/internal/identity"
	"github.com/firmdesk/firmdesk/internal/platform/httpx"
)

// DefaultResolveTimeout bounds identity resolution when Options leaves it unset.
const DefaultResolveTimeout = 5 * time.Second

var errNoResolver = errors.New("tenant: no identity resolver configured")

// Options tunes Middleware. The zero value requires authentication.
type Options struct {
	// AllowAnonymous lets requests without an identity through with an empty Context.
	AllowAnonymous bool
	// ResolveTimeout bounds the identity resolver. Zero means DefaultResolveTimeout.
	ResolveTimeout time.Duration
	Logger         *slog.Logger
}

// Middleware resolves the request principal and runs the rest of the chain inside a tenant
// scope. Requests that cannot be authenticated get a 401 unless AllowAnonymous is set, and
// the downstream handler is not called. The scope is released when the handler returns,
// including when it panics.
func Middleware(resolver identity.Resolver, opts Options) func(http.Handler) http.Handler {
	timeout := opts.ResolveTimeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolve(r, resolver, timeout)
			if err != nil {
				logger.Warn("identity resolution failed",
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
				id = nil
			}
			if id == nil && !opts.AllowAnonymous {
				httpx.Unauthorized(w)
				return
			}

			var tc Context
			if id != nil {
				tc = Context{UserID: id.UserID, Role: id.Role, TenantID: id.TenantID}
			}
			ctx, release := WithContext(r.Context(), tc)
			defer release()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type resolveResult struct {
	id  *identity.Identity
	err error
}

func resolve(r *http.Request, resolver identity.Resolver, timeout time.Duration) (*identity.Identity, error) {
	if resolver == nil {
		return nil, errNoResolver
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	done := make(chan resolveResult, 1)
	go func() {
		id, err := resolver.Resolve(ctx, r.WithContext(ctx))
		done <- resolveResult{id: id, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("tenant: resolve identity: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if res.id == nil || res.id.UserID == "" {
			return nil, nil
		}
		return res.id, nil
	}
}

// Wrap runs h inside a tenant scope. It is Middleware applied to a single handler.
func Wrap(h http.Handler, resolver identity.Resolver, opts Options) http.Handler {
	return Middleware(resolver, opts)(h)
}
