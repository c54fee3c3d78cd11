package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "firmdesk:session:"

// SessionManager issues signed session cookies whose state lives in Redis. The cookie only
// carries the session id and its HMAC; the user id never leaves the server.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session is the server side state behind one cookie.
type Session struct {
	ID         string
	userID     string
	issuedAt   time.Time
	previousID string
	isNew      bool
	dirty      bool
	destroyed  bool
}

type sessionPayload struct {
	UserID   string    `json:"user_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// NewSessionManager constructs a SessionManager. secret signs cookie values.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Load returns the session of r, or a fresh unsaved one.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	sess, err := sm.Lookup(ctx, r)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return sm.newSession(), nil
	}
	return sess, nil
}

// Lookup returns the stored session referenced by the request cookie. A missing cookie, a
// cookie with a bad signature and an expired session all yield nil without error.
func (sm *SessionManager) Lookup(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}
	id, ok := sm.verify(cookie.Value)
	if !ok {
		return nil, nil
	}

	raw, err := sm.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var stored sessionPayload
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	return &Session{ID: id, userID: stored.UserID, issuedAt: stored.IssuedAt}, nil
}

// Rotate gives sess a new id. The old id is deleted on Commit. Call it whenever the
// session is bound to a different user.
func (sm *SessionManager) Rotate(sess *Session) {
	if sess == nil {
		return
	}
	if !sess.isNew && sess.previousID == "" {
		sess.previousID = sess.ID
	}
	sess.ID = uuid.NewString()
	sess.dirty = true
}

// Commit persists sess and writes the cookie.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sessionKeyPrefix+sess.ID).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, sm.cookie("", -1))
		return nil
	}

	if sess.previousID != "" {
		if err := sm.client.Del(ctx, sessionKeyPrefix+sess.previousID).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sess.previousID = ""
	}

	if sess.dirty || sess.isNew {
		data, err := json.Marshal(sessionPayload{UserID: sess.userID, IssuedAt: sess.issuedAt})
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sessionKeyPrefix+sess.ID, data, sm.ttl).Err(); err != nil {
			return err
		}
		sess.dirty = false
		sess.isNew = false
	}

	http.SetCookie(w, sm.cookie(sm.sign(sess.ID), 0))
	return nil
}

// Destroy marks the session for deletion on Commit.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess != nil {
		sess.destroyed = true
	}
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// SetUser binds the session to a user id.
func (s *Session) SetUser(id string) {
	s.userID = id
	s.dirty = true
}

// User returns the bound user id, or "".
func (s *Session) User() string {
	return s.userID
}

// IssuedAt is when the session was first created.
func (s *Session) IssuedAt() time.Time {
	return s.issuedAt
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:       uuid.NewString(),
		issuedAt: time.Now().UTC(),
		isNew:    true,
		dirty:    true,
	}
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge == 0 {
		c.Expires = time.Now().Add(sm.ttl)
	}
	return c
}

// sign returns "<id>.<mac>".
func (sm *SessionManager) sign(id string) string {
	return id + "." + base64.RawURLEncoding.EncodeToString(sm.mac(id))
}

func (sm *SessionManager) verify(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}
	return id, hmac.Equal(got, sm.mac(id))
}

func (sm *SessionManager) mac(id string) []byte {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(id))
	return h.Sum(nil)
}
