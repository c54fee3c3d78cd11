package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmdesk/firmdesk/internal/authz"
	jobmetrics "github.com/firmdesk/firmdesk/internal/jobs"
	"github.com/firmdesk/firmdesk/internal/rbac"
	"github.com/firmdesk/firmdesk/internal/shared"
)

type memoryAuditStore struct {
	mu        sync.Mutex
	records   []shared.AuditLog
	retention time.Duration
	recordErr error
}

func (s *memoryAuditStore) Record(_ context.Context, log shared.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.records = append(s.records, log)
	return nil
}

func (s *memoryAuditStore) Prune(_ context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = retention
	return 3, nil
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestAuditJobHandleRecord(t *testing.T) {
	store := &memoryAuditStore{}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewAuditJob(store, nil, metrics)

	task, err := NewAuditRecordTask(shared.AuditLog{
		ActorID:  "u-1",
		TenantID: "firm-a",
		Action:   shared.AuditActionRoleChanged,
		Entity:   "user",
		EntityID: "u-2",
		Meta:     map[string]any{"role": "STAFF"},
	})
	require.NoError(t, err)
	require.NoError(t, job.HandleRecord(context.Background(), task))

	require.Len(t, store.records, 1)
	assert.Equal(t, "firm-a", store.records[0].TenantID)
	assert.Equal(t, "STAFF", store.records[0].Meta["role"])
}

func TestAuditJobRejectsBadPayloadWithoutRetry(t *testing.T) {
	job := NewAuditJob(&memoryAuditStore{}, nil, nil)

	err := job.HandleRecord(context.Background(), asynq.NewTask(TaskAuditRecord, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.HandleRecord(context.Background(), asynq.NewTask(TaskAuditRecord, []byte(`{"action":"x"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditJobRecordFailureIsRetried(t *testing.T) {
	boom := errors.New("db down")
	job := NewAuditJob(&memoryAuditStore{recordErr: boom}, nil, nil)
	task, err := NewAuditRecordTask(shared.AuditLog{Action: "a", Entity: "e", EntityID: "1"})
	require.NoError(t, err)

	err = job.HandleRecord(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditJobHandlePrune(t *testing.T) {
	store := &memoryAuditStore{}
	job := NewAuditJob(store, nil, nil)

	task, err := NewAuditPruneTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.HandlePrune(context.Background(), task))
	assert.Equal(t, 48*time.Hour, store.retention)

	require.NoError(t, job.HandlePrune(context.Background(), asynq.NewTask(TaskAuditPrune, nil)))
	assert.Equal(t, DefaultAuditRetention, store.retention)
}

type keyCleaner struct {
	olderThan []time.Duration
	err       error
}

func (k *keyCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	k.olderThan = append(k.olderThan, olderThan)
	return k.err
}

func TestAuditJobPruneExpiresIdempotencyKeys(t *testing.T) {
	keys := &keyCleaner{}
	job := NewAuditJob(&memoryAuditStore{}, nil, nil)
	job.Keys = keys

	require.NoError(t, job.HandlePrune(context.Background(), asynq.NewTask(TaskAuditPrune, nil)))
	assert.Equal(t, []time.Duration{IdempotencyKeyTTL}, keys.olderThan)

	keys.err = errors.New("relation does not exist")
	require.NoError(t, job.HandlePrune(context.Background(), asynq.NewTask(TaskAuditPrune, nil)), "key cleanup failures do not fail the prune")
}

func TestPruneSchedule(t *testing.T) {
	cron, err := PruneSchedule(time.Hour)
	require.NoError(t, err)
	require.Len(t, cron, 1)
	assert.Equal(t, "@daily", cron[0].Spec)
	assert.Equal(t, TaskAuditPrune, cron[0].Task.Type())
}

func TestAuditPublisherRecordsDenial(t *testing.T) {
	enq := &fakeEnqueuer{}
	pub := NewAuditPublisher(&Client{client: enq}, nil)

	pub.RecordDenial(context.Background(), authz.Denial{
		UserID:   "c-1",
		Role:     rbac.RoleClient,
		TenantID: "firm-a",
		Method:   http.MethodDelete,
		Path:     "/service-requests/42",
		Kind:     authz.KindAll,
		Required: []rbac.Permission{rbac.PermServiceRequestsDelete},
	})
	pub.Wait()

	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskAuditRecord, enq.tasks[0].Type())

	var log shared.AuditLog
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &log))
	assert.Equal(t, shared.AuditActionAccessDenied, log.Action)
	assert.Equal(t, "DELETE /service-requests/42", log.EntityID)
	assert.Equal(t, "firm-a", log.TenantID)
	assert.Equal(t, []any{"SERVICE_REQUESTS_DELETE"}, log.Meta["required"])
	assert.False(t, log.At.IsZero())
}

type blockingEnqueuer struct {
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	b.calls.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (b *blockingEnqueuer) Close() error { return nil }

func TestAuditPublisherRecordDenialDoesNotBlock(t *testing.T) {
	enq := &blockingEnqueuer{release: make(chan struct{})}
	pub := NewAuditPublisher(&Client{client: enq}, nil)
	denial := authz.Denial{UserID: "c-1", Role: rbac.RoleClient, TenantID: "firm-a", Method: http.MethodGet, Path: "/users"}

	start := time.Now()
	for i := 0; i < maxPendingDenials+10; i++ {
		pub.RecordDenial(context.Background(), denial)
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond, "a stalled queue must not hold up denied requests")

	close(enq.release)
	pub.Wait()
	assert.EqualValues(t, maxPendingDenials, enq.calls.Load(), "denials beyond the pending limit are dropped")
}

func TestAuditPublisherSwallowsEnqueueErrors(t *testing.T) {
	pub := NewAuditPublisher(&Client{client: &fakeEnqueuer{err: errors.New("redis down")}}, nil)
	assert.NotPanics(t, func() {
		pub.Publish(context.Background(), shared.AuditLog{Action: "a", Entity: "e", EntityID: "1"})
	})

	var nilPublisher *AuditPublisher
	assert.NotPanics(t, func() {
		nilPublisher.Publish(context.Background(), shared.AuditLog{})
	})
}

func TestJobMetricsTrackRuns(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	job := NewAuditJob(&memoryAuditStore{}, nil, metrics)

	task, err := NewAuditRecordTask(shared.AuditLog{Action: shared.AuditActionLogin, Entity: "user", EntityID: "u-1"})
	require.NoError(t, err)
	require.NoError(t, job.HandleRecord(context.Background(), task))

	families, err := registry.Gather()
	require.NoError(t, err)
	seen := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				seen[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, seen["firmdesk_jobs_total"])
	assert.Equal(t, 1.0, seen["firmdesk_audit_events_total"])
}

func TestHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","queues":[
		{"queue":"audit","pending":0,"active":0,"retry":0,"archived":0,"failed":0,"latency_ms":0},
		{"queue":"default","pending":0,"active":0,"retry":0,"archived":0,"failed":0,"latency_ms":0}]}`, rec.Body.String())
}

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthReportsArchivedAuditTasks(t *testing.T) {
	h := NewHandler(stubInspector{infos: map[string]*asynq.QueueInfo{
		QueueAudit: {Queue: QueueAudit, Pending: 4, Archived: 1, Latency: 1500 * time.Millisecond},
	}}, nil)
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	require.Len(t, body.Queues, 2)
	assert.Equal(t, queueHealth{Queue: QueueAudit, Pending: 4, Archived: 1, LatencyMS: 1500}, body.Queues[0])
	assert.Equal(t, queueHealth{Queue: QueueDefault}, body.Queues[1])
}

func TestHealthInspectorFailure(t *testing.T) {
	h := NewHandler(stubInspector{err: errors.New("redis down")}, nil)
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
