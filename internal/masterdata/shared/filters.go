package shared

import (
	"net/http"
	"strconv"
	"strings"
)

// ListFilters represents standard list endpoint filters.
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string

	IsActive *bool
}

// ParseListFilters extracts filters from query parameters with sane defaults.
func ParseListFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{
		Page:    1,
		Limit:   20,
		Search:  strings.TrimSpace(q.Get("search")),
		SortBy:  q.Get("sort_by"),
		SortDir: q.Get("sort_dir"),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		filters.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("per_page")); err == nil && limit > 0 && limit <= 100 {
		filters.Limit = limit
	}
	if raw := q.Get("is_active"); raw != "" {
		active := raw == "true" || raw == "1"
		filters.IsActive = &active
	}
	return filters
}

// Offset computes the SQL offset for the current page.
func (f ListFilters) Offset() int {
	offset := (f.Page - 1) * f.Limit
	if offset < 0 {
		return 0
	}
	return offset
}
