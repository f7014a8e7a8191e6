package common

import (
	"net/http"
	"strconv"
)

// Pagination is the metadata block of admin list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// PageRequest is a parsed ?page=&limit= pair.
type PageRequest struct {
	Page    int
	PerPage int
}

// ParsePagination reads page and limit from the query. Missing or invalid values fall back to
// page 1 and defaultPerPage; limit is capped at maxPerPage when that is positive.
func ParsePagination(r *http.Request, defaultPerPage, maxPerPage int) PageRequest {
	p := PageRequest{Page: 1, PerPage: defaultPerPage}
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		p.PerPage = n
	}
	if maxPerPage > 0 && p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

// Of builds the response metadata for total matching items.
func (p PageRequest) Of(total int) Pagination {
	pages := 0
	if p.PerPage > 0 {
		pages = (total + p.PerPage - 1) / p.PerPage
	}
	return Pagination{Page: p.Page, PerPage: p.PerPage, TotalItems: total, TotalPages: pages}
}
