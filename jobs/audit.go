package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/firmdesk/firmdesk/internal/authz"
	jobmetrics "github.com/firmdesk/firmdesk/internal/jobs"
	"github.com/firmdesk/firmdesk/internal/shared"
)

const (
	// DefaultAuditRetention applies when a prune payload carries no retention.
	DefaultAuditRetention = 90 * 24 * time.Hour
	// IdempotencyKeyTTL bounds how long a stored Idempotency-Key blocks a replay.
	IdempotencyKeyTTL = 7 * 24 * time.Hour
)

const (
	auditPruneSchedule = "@daily"
	publishTimeout     = 2 * time.Second
	// maxPendingDenials bounds denial enqueues running in the background.
	maxPendingDenials = 64
)

// AuditStore persists and expires audit records.
type AuditStore interface {
	Record(ctx context.Context, log shared.AuditLog) error
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// KeyCleaner expires stored idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// AuditJob handles audit record and retention tasks.
type AuditJob struct {
	Store   AuditStore
	Keys    KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditJob initialises the audit handlers.
func NewAuditJob(store AuditStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditJob {
	return &AuditJob{Store: store, Logger: logger, Metrics: metrics}
}

// HandleRecord persists one audit record.
func (j *AuditJob) HandleRecord(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("audit record: handler not configured")
	}
	var log shared.AuditLog
	if err := json.Unmarshal(t.Payload(), &log); err != nil {
		return fmt.Errorf("audit record: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := log.Validate(); err != nil {
		return fmt.Errorf("audit record: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskAuditRecord)
	defer func() {
		err = tracker.End(err)
	}()

	// The store applies log.TenantID to the write itself; no request scope exists here.
	if err = j.Store.Record(ctx, log); err != nil {
		j.logger().Error("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
		return err
	}
	j.Metrics.AddAuditEvent(log.Action)
	return nil
}

// HandlePrune removes audit records past retention.
func (j *AuditJob) HandlePrune(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("audit prune: handler not configured")
	}
	var payload AuditPrunePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("audit prune: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Retention <= 0 {
		payload.Retention = DefaultAuditRetention
	}

	tracker := j.Metrics.Track(TaskAuditPrune)
	defer func() {
		err = tracker.End(err)
	}()

	removed, err := j.Store.Prune(ctx, payload.Retention)
	if err != nil {
		j.logger().Error("audit prune failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddPruned(removed)
	if j.Keys != nil {
		if err := j.Keys.Cleanup(ctx, IdempotencyKeyTTL); err != nil {
			j.logger().Warn("idempotency key cleanup failed", slog.Any("error", err))
		}
	}
	j.logger().Info("audit prune completed",
		slog.Int64("removed", removed),
		slog.Duration("retention", payload.Retention))
	return nil
}

// Handlers returns the task handlers served by the worker.
func (j *AuditJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskAuditRecord, Handler: j.HandleRecord},
		{Type: TaskAuditPrune, Handler: j.HandlePrune},
	}
}

// PruneSchedule registers the daily retention run.
func PruneSchedule(retention time.Duration) ([]CronRegistration, error) {
	task, err := NewAuditPruneTask(retention)
	if err != nil {
		return nil, err
	}
	return []CronRegistration{{
		Spec:    auditPruneSchedule,
		Task:    task,
		Options: []asynq.Option{asynq.Unique(time.Hour)},
	}}, nil
}

func (j *AuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// AuditPublisher enqueues audit records from request handlers. It implements
// authz.DenialSink.
type AuditPublisher struct {
	client  *Client
	logger  *slog.Logger
	pending chan struct{}
	wg      sync.WaitGroup
}

// NewAuditPublisher constructs a publisher over client.
func NewAuditPublisher(client *Client, logger *slog.Logger) *AuditPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditPublisher{client: client, logger: logger, pending: make(chan struct{}, maxPendingDenials)}
}

// Wait blocks until background denial enqueues have finished.
func (p *AuditPublisher) Wait() {
	if p != nil {
		p.wg.Wait()
	}
}

// Publish enqueues log. Enqueue failures are logged and otherwise ignored so the request
// path never fails on the audit trail.
func (p *AuditPublisher) Publish(ctx context.Context, log shared.AuditLog) {
	if p == nil || p.client == nil {
		return
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if _, err := p.client.EnqueueAudit(ctx, log); err != nil {
		p.logger.Warn("audit enqueue failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}

// RecordDenial implements authz.DenialSink. The enqueue runs in the background; when
// maxPendingDenials are already in flight the denial is logged and dropped.
func (p *AuditPublisher) RecordDenial(ctx context.Context, d authz.Denial) {
	if p == nil || p.client == nil {
		return
	}
	log := denialLog(d)
	select {
	case p.pending <- struct{}{}:
	default:
		p.logger.Warn("audit denial dropped", slog.String("user_id", d.UserID), slog.String("path", d.Path))
		return
	}
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.pending
			p.wg.Done()
		}()
		p.Publish(context.WithoutCancel(ctx), log)
	}()
}

func denialLog(d authz.Denial) shared.AuditLog {
	required := make([]string, 0, len(d.Required))
	for _, perm := range d.Required {
		required = append(required, perm.String())
	}
	roles := make([]string, 0, len(d.Roles))
	for _, r := range d.Roles {
		roles = append(roles, r.String())
	}
	return shared.AuditLog{
		ActorID:  d.UserID,
		TenantID: d.TenantID,
		Action:   shared.AuditActionAccessDenied,
		Entity:   "route",
		EntityID: d.Method + " " + d.Path,
		Meta: map[string]any{
			"role":     d.Role.String(),
			"kind":     d.Kind,
			"required": required,
			"roles":    roles,
		},
		At: d.At,
	}
}
