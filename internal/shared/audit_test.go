package shared

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLoggerRecordRunsUnderRecordTenant(t *testing.T) {
	var tenants []string
	logger := &AuditLogger{inTx: func(_ context.Context, tenantID string, _ func(pgx.Tx) error) error {
		tenants = append(tenants, tenantID)
		return nil
	}}

	require.NoError(t, logger.Record(context.Background(), AuditLog{
		ActorID: "u-1", TenantID: "firm-a", Action: AuditActionClientCreate, Entity: "client", EntityID: "c-1",
	}))
	require.NoError(t, logger.Record(context.Background(), AuditLog{
		ActorID: "u-2", Action: AuditActionLogin, Entity: "user", EntityID: "u-2",
	}))
	assert.Equal(t, []string{"firm-a", ""}, tenants)
}

func TestAuditLoggerRecordValidatesBeforeWriting(t *testing.T) {
	called := false
	logger := &AuditLogger{inTx: func(context.Context, string, func(pgx.Tx) error) error {
		called = true
		return nil
	}}
	assert.Error(t, logger.Record(context.Background(), AuditLog{ActorID: "u-1"}))
	assert.False(t, called)
}

func TestKnownAuditAction(t *testing.T) {
	assert.True(t, KnownAuditAction(AuditActionAccessDenied))
	assert.False(t, KnownAuditAction("client.exploded"))
}
