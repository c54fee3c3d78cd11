package shared

import "math"

// MaxPerPage caps page sizes requested by clients.
const MaxPerPage = 100

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	page = ClampPage(page, perPage)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset returns the row offset of the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// ClampPage bounds page to [1, math.MaxInt/perPage] so the row offset of the page fits an int.
func ClampPage(page, perPage int) int {
	if page <= 0 {
		return 1
	}
	if perPage > 0 && page > math.MaxInt/perPage {
		return math.MaxInt / perPage
	}
	return page
}
