package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/firmdesk/firmdesk/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit trail writes.
	QueueAudit = "audit"

	// TaskAuditRecord persists a single audit record.
	TaskAuditRecord = "audit:record"
	// TaskAuditPrune removes audit records past retention.
	TaskAuditPrune = "audit:prune"
)

// AuditPrunePayload configures a retention run.
type AuditPrunePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditRecordTask constructs an Asynq task for a single audit record.
func NewAuditRecordTask(log shared.AuditLog) (*asynq.Task, error) {
	data, err := json.Marshal(log)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data, asynq.Queue(QueueAudit), asynq.MaxRetry(5)), nil
}

// NewAuditPruneTask constructs an Asynq task for a retention run.
func NewAuditPruneTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(AuditPrunePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, data, asynq.Queue(QueueAudit), asynq.MaxRetry(1)), nil
}
