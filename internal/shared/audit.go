package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firmdesk/firmdesk/internal/platform/db"
)

// Audit actions recorded by the platform.
const (
	AuditActionAccessDenied = "access.denied"
	AuditActionRoleChanged  = "user.role_changed"
	AuditActionLogin        = "auth.login"
	AuditActionClientCreate = "client.created"
	AuditActionClientDelete = "client.deleted"
)

var auditActions = map[string]struct{}{
	AuditActionAccessDenied: {},
	AuditActionRoleChanged:  {},
	AuditActionLogin:        {},
	AuditActionClientCreate: {},
	AuditActionClientDelete: {},
}

// KnownAuditAction reports whether action is one of the audit actions above.
func KnownAuditAction(action string) bool {
	_, ok := auditActions[action]
	return ok
}

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  string         `json:"actor_id"`
	TenantID string         `json:"tenant_id,omitempty"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// Validate checks the fields required by audit_logs.
func (l AuditLog) Validate() error {
	if l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	return nil
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
	// inTx runs fn in a transaction with tenantID published to row level security.
	inTx func(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{
		pool: pool,
		inTx: func(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error {
			return db.WithTx(ctx, pool, tenantID, fn)
		},
	}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	var tenantID *string
	if log.TenantID != "" {
		tenantID = &log.TenantID
	}
	return l.inTx(ctx, log.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO audit_logs (actor_id, tenant_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
			log.ActorID, tenantID, log.Action, log.Entity, log.EntityID, metaJSON, at)
		return err
	})
}

// Prune deletes entries older than retention and returns how many were removed.
func (l *AuditLogger) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if l == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention)
	tag, err := l.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
