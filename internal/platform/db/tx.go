package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantSetting is the transaction-local setting row level security policies read.
const TenantSetting = "app.tenant_id"

// WithTx runs fn in a RepeatableRead transaction. A non-empty tenantID is published as
// TenantSetting for the lifetime of the transaction only.
func WithTx(ctx context.Context, pool *pgxpool.Pool, tenantID string, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if tenantID != "" {
		if _, err := tx.Exec(ctx, `SELECT set_config($1, $2, true)`, TenantSetting, tenantID); err != nil {
			return fmt.Errorf("platform/db: set tenant: %w", err)
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}
