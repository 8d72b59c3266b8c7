package common

import (
	"net/http"
	"strings"
)

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page        int  `json:"page"`
	PerPage     int  `json:"per_page"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	HasNextPage bool `json:"has_next_page"`
	HasPrevPage bool `json:"has_prev_page"`
}

// NewPagination derives page counts and navigation flags from the totals.
func NewPagination(page, perPage, totalItems int) Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	totalPages := (totalItems + perPage - 1) / perPage
	return Pagination{
		Page:        page,
		PerPage:     perPage,
		TotalItems:  totalItems,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// Offset returns the zero-based row offset for the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// ParsePagination extracts page and per-page parameters from query values.
// Non-positive or malformed values fall back to defaults and perPage is capped at maxPerPage.
func ParsePagination(r *http.Request, defaultPerPage, maxPerPage int) (page, perPage int) {
	q := r.URL.Query()
	page = AtoiDefault(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	perPage = AtoiDefault(q.Get("limit"), defaultPerPage)
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}
	return
}

// Sort describes a validated ordering.
type Sort struct {
	Field string
	Desc  bool
}

// ParseSort reads sort and order query values. Unknown fields fall back to def.
func ParseSort(r *http.Request, allowed []string, def Sort) Sort {
	q := r.URL.Query()
	out := def
	field := strings.TrimSpace(q.Get("sort"))
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, field) {
			out.Field = candidate
			break
		}
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("order"))) {
	case "asc":
		out.Desc = false
	case "desc":
		out.Desc = true
	}
	return out
}
