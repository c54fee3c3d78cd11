// Package tenant carries the authenticated principal of a request through its call tree and
// derives the tenant filter applied to data access.
package tenant

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/firmdesk/firmdesk/internal/rbac"
)

// ErrNoContext is returned when code that needs the request principal runs outside an
// active tenant scope.
var ErrNoContext = errors.New("tenant: no context in scope")

// Context is the principal of the request being served.
type Context struct {
	UserID   string    `json:"user_id,omitempty"`
	Role     rbac.Role `json:"role"`
	TenantID string    `json:"tenant_id,omitempty"`
}

// Authenticated reports whether the context belongs to a signed in user.
func (c Context) Authenticated() bool {
	return c.UserID != ""
}

// Filter returns the data filter for this context under the process scoping mode.
func (c Context) Filter() Filter {
	return FilterFor(c.TenantID)
}

// State is the lifecycle stage of a tenant scope.
type State int32

const (
	// StateUnresolved means no scope is attached to the context.
	StateUnresolved State = iota
	// StateResolved means the scope is active and readable.
	StateResolved
	// StateReleased means the request finished and the scope can no longer be read.
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateResolved:
		return "resolved"
	case StateReleased:
		return "released"
	default:
		return "unresolved"
	}
}

type scopeKey struct{}

type scope struct {
	value Context
	state atomic.Int32
}

// WithContext attaches tc to ctx. The returned release function ends the scope; it is safe
// to call more than once and must be deferred by the caller that created the scope.
func WithContext(ctx context.Context, tc Context) (context.Context, func()) {
	s := &scope{value: tc}
	s.state.Store(int32(StateResolved))
	return context.WithValue(ctx, scopeKey{}, s), func() {
		s.state.Store(int32(StateReleased))
	}
}

// Require returns the active tenant context or ErrNoContext.
func Require(ctx context.Context) (Context, error) {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok || State(s.state.Load()) != StateResolved {
		return Context{}, ErrNoContext
	}
	return s.value, nil
}

// MustRequire is like Require but panics outside an active scope. It is meant for code paths
// that are only mounted behind Middleware.
func MustRequire(ctx context.Context) Context {
	tc, err := Require(ctx)
	if err != nil {
		panic(err)
	}
	return tc
}

// FromContext returns the active tenant context, if any.
func FromContext(ctx context.Context) (Context, bool) {
	tc, err := Require(ctx)
	return tc, err == nil
}

// ScopeState reports the lifecycle stage of the scope attached to ctx.
func ScopeState(ctx context.Context) State {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return StateUnresolved
	}
	return State(s.state.Load())
}
