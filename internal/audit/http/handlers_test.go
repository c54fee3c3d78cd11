package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/firmdesk/firmdesk/internal/audit"
	"github.com/firmdesk/firmdesk/internal/authz"
	"github.com/firmdesk/firmdesk/internal/identity"
	"github.com/firmdesk/firmdesk/internal/rbac"
	"github.com/firmdesk/firmdesk/internal/tenant"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

type offsetRecorder struct {
	offset int
}

func (o *offsetRecorder) Window(_ context.Context, _ tenant.Filter, _ audit.TimelineFilters, _ int, offset int) ([]audit.TimelineRow, error) {
	o.offset = offset
	return nil, nil
}

func (o *offsetRecorder) All(context.Context, tenant.Filter, audit.TimelineFilters) ([]audit.TimelineRow, error) {
	return nil, nil
}

func newAuditRouter(t *testing.T, service TimelineService, role rbac.Role) http.Handler {
	t.Helper()
	handler := NewHandler(nil, service, authz.Middleware{})
	handler.now = func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Use(tenant.Middleware(identity.Static(identity.Identity{UserID: "u-1", Role: role, TenantID: "firm-a"}), tenant.Options{}))
	r.Route("/audit", handler.MountRoutes)
	return r
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestTimelineRequiresPermission(t *testing.T) {
	rr := serve(newAuditRouter(t, &stubTimelineService{}, rbac.RoleTeamLead), "/audit/")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestTimelineReturnsRows(t *testing.T) {
	rows := []audit.TimelineRow{{At: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC), ActorID: "u-2", Action: "access.denied", Entity: "route", EntityID: "DELETE /clients/1"}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	rr := serve(newAuditRouter(t, service, rbac.RoleAdmin), "/audit/?actor=u-2")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"entity_id":"DELETE /clients/1"`) {
		t.Fatalf("expected row in body, got %s", rr.Body.String())
	}
	if service.lastFilters.Actor != "u-2" {
		t.Fatalf("expected actor filter, got %q", service.lastFilters.Actor)
	}
	wantFrom := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	if !service.lastFilters.From.Equal(wantFrom) {
		t.Fatalf("expected default from %v, got %v", wantFrom, service.lastFilters.From)
	}
}

func TestTimelineRejectsBadRange(t *testing.T) {
	router := newAuditRouter(t, &stubTimelineService{}, rbac.RoleAdmin)
	for _, target := range []string{
		"/audit/?from=2024-03-10&to=2024-03-01",
		"/audit/?from=2023-01-01&to=2024-03-01",
		"/audit/?to=yesterday",
		"/audit/?page=0",
		"/audit/?page_size=ten",
		"/audit/?action=client.renamed",
	} {
		if rr := serve(router, target); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func TestExportCSV(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.TimelineRow{{At: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC), ActorID: "u-1", Action: "client.created", Entity: "client", EntityID: "c-1"}}}
	rr := serve(newAuditRouter(t, service, rbac.RoleAdmin), "/audit/export.csv")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "client.created") {
		t.Fatalf("expected csv row, got %s", rr.Body.String())
	}
	want := `attachment; filename="audit-firm-a-2024-03-08-2024-03-15.csv"`
	if got := rr.Header().Get("Content-Disposition"); got != want {
		t.Fatalf("unexpected disposition %q", got)
	}
}

func TestTimelineAcceptsKnownAction(t *testing.T) {
	service := &stubTimelineService{}
	rr := serve(newAuditRouter(t, service, rbac.RoleAdmin), "/audit/?action=access.denied&from=2024-03-01&to=2024-03-02&page=2&page_size=5")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := service.lastFilters
	if got.Action != "access.denied" || got.Page != 2 || got.PageSize != 5 {
		t.Fatalf("unexpected filters %+v", got)
	}
	if !got.To.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected to %v", got.To)
	}
}

func TestTimelineHugePageIsNotAServerError(t *testing.T) {
	repo := &offsetRecorder{}
	rr := serve(newAuditRouter(t, audit.NewService(repo), rbac.RoleAdmin), "/audit/?page=9223372036854775807")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if repo.offset < 0 {
		t.Fatalf("offset overflowed: %d", repo.offset)
	}
}
