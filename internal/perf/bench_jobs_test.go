package perf

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/firmdesk/firmdesk/internal/jobs"
	"github.com/firmdesk/firmdesk/internal/shared"
	"github.com/firmdesk/firmdesk/jobs"
)

type flakyStore struct {
	mu      sync.Mutex
	calls   int
	failAt  map[int]bool
	delay   time.Duration
	tenants map[string]int
}

func (s *flakyStore) Record(ctx context.Context, log shared.AuditLog) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt[s.calls] {
		return errors.New("connection reset")
	}
	s.tenants[log.TenantID]++
	return nil
}

func (s *flakyStore) Prune(context.Context, time.Duration) (int64, error) {
	time.Sleep(4 * s.delay)
	return 120, nil
}

func TestAuditJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	store := &flakyStore{
		failAt:  map[int]bool{17: true, 41: true, 73: true},
		delay:   2 * time.Millisecond,
		tenants: map[string]int{},
	}
	job := jobs.NewAuditJob(store, nil, metrics)

	for i := 0; i < 80; i++ {
		tenantID := "firm-a"
		if i%4 == 0 {
			tenantID = "firm-b"
		}
		task, err := jobs.NewAuditRecordTask(shared.AuditLog{
			ActorID:  "u-1",
			TenantID: tenantID,
			Action:   shared.AuditActionClientCreate,
			Entity:   "client",
			EntityID: "c-1",
		})
		if err != nil {
			t.Fatalf("build task: %v", err)
		}
		_ = job.HandleRecord(context.Background(), task)
	}

	prune, err := jobs.NewAuditPruneTask(time.Hour)
	if err != nil {
		t.Fatalf("build prune task: %v", err)
	}
	if err := job.HandlePrune(context.Background(), prune); err != nil {
		t.Fatalf("prune: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "firmdesk_jobs_total", map[string]string{"job": jobs.TaskAuditRecord, "status": "success"})
	failure := metricValue(t, families, "firmdesk_jobs_total", map[string]string{"job": jobs.TaskAuditRecord, "status": "failure"})
	if success != 77 || failure != 3 {
		t.Fatalf("unexpected record counts: success=%v failure=%v", success, failure)
	}
	if ratio := success / (success + failure); ratio < 0.95 {
		t.Fatalf("audit record success ratio too low: %f", ratio)
	}

	events := metricValue(t, families, "firmdesk_audit_events_total", map[string]string{"action": shared.AuditActionClientCreate})
	if events != success {
		t.Fatalf("audit events %v do not match successful records %v", events, success)
	}
	if pruned := metricValue(t, families, "firmdesk_audit_pruned_total", nil); pruned != 120 {
		t.Fatalf("unexpected pruned total %v", pruned)
	}

	if mean := histogramMean(t, families, "firmdesk_job_duration_seconds", map[string]string{"job": jobs.TaskAuditRecord}); mean > 0.5 {
		t.Fatalf("audit record duration above budget: %f", mean)
	}
	if mean := histogramMean(t, families, "firmdesk_job_duration_seconds", map[string]string{"job": jobs.TaskAuditPrune}); mean > 2.0 {
		t.Fatalf("audit prune duration above budget: %f", mean)
	}

	if store.tenants["firm-b"] == 0 || store.tenants["firm-a"] == 0 {
		t.Fatalf("records missing a tenant: %v", store.tenants)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
