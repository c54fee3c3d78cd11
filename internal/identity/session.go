package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/firmdesk/firmdesk/internal/shared"
)

// SessionResolver authenticates requests through the session cookie and loads the role and
// tenant of the session user from the Directory, so role changes apply without a new login.
type SessionResolver struct {
	sessions  *shared.SessionManager
	directory *Directory
}

// NewSessionResolver constructs a cookie session resolver.
func NewSessionResolver(sessions *shared.SessionManager, directory *Directory) *SessionResolver {
	return &SessionResolver{sessions: sessions, directory: directory}
}

// Resolve implements Resolver.
func (s *SessionResolver) Resolve(ctx context.Context, r *http.Request) (*Identity, error) {
	sess, err := s.sessions.Lookup(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("identity: load session: %w", err)
	}
	if sess == nil || sess.User() == "" {
		return nil, nil
	}

	id, err := s.directory.Lookup(ctx, sess.User())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: session user %s", ErrInvalidCredentials, sess.User())
		}
		return nil, err
	}
	return &id, nil
}
