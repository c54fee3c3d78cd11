package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const maxIdempotencyKeyLength = 128

var (
	// ErrIdempotencyConflict indicates the key was already claimed.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
	// ErrInvalidIdempotencyKey indicates an empty or oversized key.
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
)

// IdempotencyKey identifies one Idempotency-Key header value. Keys are namespaced by
// tenant and module, so two firms may send the same value.
type IdempotencyKey struct {
	TenantID string
	Module   string
	Key      string
}

// Validate checks the key before it reaches the database.
func (k IdempotencyKey) Validate() error {
	if k.Module == "" {
		return fmt.Errorf("%w: module required", ErrInvalidIdempotencyKey)
	}
	if k.Key == "" || len(k.Key) > maxIdempotencyKeyLength {
		return fmt.Errorf("%w: length must be 1..%d", ErrInvalidIdempotencyKey, maxIdempotencyKeyLength)
	}
	return nil
}

// IdempotencyStore persists claimed keys in idempotency_keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Claim records k, or fails with ErrIdempotencyConflict when it already exists.
func (s *IdempotencyStore) Claim(ctx context.Context, k IdempotencyKey) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if err := k.Validate(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO idempotency_keys (tenant_id, module, key, created_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (tenant_id, module, key) DO NOTHING`, k.TenantID, k.Module, k.Key)
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Release removes k so the request can be retried after a failure.
func (s *IdempotencyStore) Release(ctx context.Context, k IdempotencyKey) error {
	if s == nil {
		return nil
	}
	if err := k.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE tenant_id = $1 AND module = $2 AND key = $3`,
		k.TenantID, k.Module, k.Key)
	return err
}

// Cleanup removes keys older than olderThan.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().Add(-olderThan))
	return err
}
