package common

import (
	"net/http"
)

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePagination extracts page and per-page parameters from query values.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	page = 1
	perPage = defaultPerPage
	if p := AtoiDefault(r.URL.Query().Get("page"), 0); p > 0 {
		page = p
	}
	if l := AtoiDefault(r.URL.Query().Get("limit"), 0); l > 0 {
		perPage = l
	}
	return
}
