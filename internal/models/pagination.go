package models

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination describes one page of a list response.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination builds the page metadata for total matching rows.
func NewPagination(page, size, total int) *Pagination {
	page, size = NormalizePage(page, size)
	return &Pagination{
		Page:       page,
		PageSize:   size,
		TotalCount: total,
		TotalPages: (total + size - 1) / size,
	}
}

// NormalizePage clamps page to at least 1 and size to (0, 100], defaulting
// to 20.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return page, size
}

// PageOffset is the row offset of page.
func PageOffset(page, size int) int {
	page, size = NormalizePage(page, size)
	return (page - 1) * size
}
