package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/firmdesk/firmdesk/internal/rbac"
)

// ErrUserNotFound is returned when a user is missing or inactive.
var ErrUserNotFound = errors.New("identity: user not found")

const (
	directoryKeyPrefix = "identity:user:"
	lookupTimeout      = 3 * time.Second
)

// Store loads the current role and tenant of a user.
type Store interface {
	FindIdentity(ctx context.Context, userID string) (Identity, error)
}

// PGStore reads identities from the users table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a Postgres backed Store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// FindIdentity implements Store.
func (s *PGStore) FindIdentity(ctx context.Context, userID string) (Identity, error) {
	var (
		role     string
		tenantID *string
	)
	err := s.pool.QueryRow(ctx, `SELECT role, tenant_id FROM users WHERE id = $1 AND is_active`, userID).
		Scan(&role, &tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, err
	}
	id := Identity{UserID: userID, Role: rbac.ParseRole(role)}
	if tenantID != nil {
		id.TenantID = *tenantID
	}
	return id, nil
}

// Directory caches Store lookups in Redis and collapses concurrent misses for the same user.
type Directory struct {
	store  Store
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewDirectory constructs a Directory. A nil client disables caching.
func NewDirectory(store Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{store: store, client: client, ttl: ttl, logger: logger}
}

type cachedIdentity struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Lookup returns the identity of userID.
func (d *Directory) Lookup(ctx context.Context, userID string) (Identity, error) {
	if id, ok := d.cached(ctx, userID); ok {
		return id, nil
	}

	resultChan := d.group.DoChan(userID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		id, err := d.store.FindIdentity(loadCtx, userID)
		if err != nil {
			return Identity{}, err
		}
		d.remember(loadCtx, id)
		return id, nil
	})

	select {
	case <-ctx.Done():
		return Identity{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Identity{}, res.Err
		}
		return res.Val.(Identity), nil
	}
}

// Invalidate drops the cached identity of userID.
func (d *Directory) Invalidate(ctx context.Context, userID string) error {
	if d.client == nil {
		return nil
	}
	if err := d.client.Del(ctx, directoryKeyPrefix+userID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("identity: invalidate %s: %w", userID, err)
	}
	return nil
}

func (d *Directory) cached(ctx context.Context, userID string) (Identity, bool) {
	if d.client == nil {
		return Identity{}, false
	}
	raw, err := d.client.Get(ctx, directoryKeyPrefix+userID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			d.logger.Warn("identity cache read failed", slog.String("user_id", userID), slog.Any("error", err))
		}
		return Identity{}, false
	}
	var entry cachedIdentity
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Identity{}, false
	}
	return Identity{UserID: entry.UserID, Role: rbac.ParseRole(entry.Role), TenantID: entry.TenantID}, true
}

func (d *Directory) remember(ctx context.Context, id Identity) {
	if d.client == nil {
		return
	}
	payload, err := json.Marshal(cachedIdentity{UserID: id.UserID, Role: id.Role.String(), TenantID: id.TenantID})
	if err != nil {
		return
	}
	if err := d.client.Set(ctx, directoryKeyPrefix+id.UserID, payload, d.ttl).Err(); err != nil {
		d.logger.Warn("identity cache write failed", slog.String("user_id", id.UserID), slog.Any("error", err))
	}
}
