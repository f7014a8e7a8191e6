package export

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/noah-isme/liff-store/internal/common"
)

// Handler exposes the admin report endpoints.
type Handler struct {
	Svc *Service
}

// DailyRevenue handles GET /api/v1/admin/export/daily-revenue?date=.
func (h *Handler) DailyRevenue(w http.ResponseWriter, r *http.Request) {
	day, err := h.Svc.ParseDay(r.URL.Query().Get("date"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	sum, err := h.Svc.DailyRevenue(r.Context(), day)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sum})
}

// ExportAndSettle handles POST /api/v1/admin/export/export-and-settle.
func (h *Handler) ExportAndSettle(w http.ResponseWriter, r *http.Request) {
	out, err := h.Svc.ExportAndSettle(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// PackingList handles GET /api/v1/admin/export/packing-list?date=YYYY-MM-DD.
func (h *Handler) PackingList(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		common.WriteError(w, common.ValidationError("date is required (YYYY-MM-DD)"))
		return
	}
	day, err := h.Svc.ParseDay(raw)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := h.Svc.WritePackingList(r.Context(), &buf, day); err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"packing_list_%s.csv\"", day.Format(DateLayout)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// TopProducts handles GET /api/v1/admin/products/top10.
func (h *Handler) TopProducts(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	rows, err := h.Svc.TopProducts(r.Context(), limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
