package common

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	p := ParsePagination(httptest.NewRequest("GET", "/api/v1/admin/orders", nil), 50, 200)
	require.Equal(t, PageRequest{Page: 1, PerPage: 50}, p)

	p = ParsePagination(httptest.NewRequest("GET", "/api/v1/admin/orders?page=3&limit=20", nil), 50, 200)
	require.Equal(t, PageRequest{Page: 3, PerPage: 20}, p)

	p = ParsePagination(httptest.NewRequest("GET", "/api/v1/admin/orders?page=-1&limit=5000", nil), 50, 200)
	require.Equal(t, PageRequest{Page: 1, PerPage: 200}, p)
}

func TestPageRequestOf(t *testing.T) {
	require.Equal(t, Pagination{Page: 2, PerPage: 20, TotalItems: 41, TotalPages: 3}, PageRequest{Page: 2, PerPage: 20}.Of(41))
	require.Equal(t, 0, PageRequest{Page: 1, PerPage: 20}.Of(0).TotalPages)
}
