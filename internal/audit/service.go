package audit

import (
	"context"
	"fmt"

	"github.com/firmdesk/firmdesk/internal/shared"
	"github.com/firmdesk/firmdesk/internal/tenant"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Repository membaca audit_logs dengan filter tenant.
type Repository interface {
	Window(ctx context.Context, filter tenant.Filter, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
	All(ctx context.Context, filter tenant.Filter, filters TimelineFilters) ([]TimelineRow, error)
}

// Service mengoordinasikan pengambilan data audit.
type Service struct {
	repo Repository
}

// NewService membuat service audit timeline baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline mengambil data audit tenant pemanggil dengan paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	tc, err := tenant.Require(ctx)
	if err != nil {
		return Result{}, err
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := shared.ClampPage(filters.Page, pageSize)
	rows, err := s.repo.Window(ctx, tc.Filter(), filters, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export mengambil seluruh data timeline tanpa paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	tc, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.All(ctx, tc.Filter(), filters)
}
