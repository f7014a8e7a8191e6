package order

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
)

// Handler serves the customer's order history.
type Handler struct {
	Svc *Service
}

// Mine handles GET /users/me/orders?userId=.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Svc.ListForUser(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orders})
}

// AdminHandler provides administrative order management endpoints.
type AdminHandler struct {
	Svc *Service
}

func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	page := common.ParsePagination(r, 50, 200)
	orders, total, err := h.Svc.List(r.Context(), r.URL.Query().Get("status"), page.Page, page.PerPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": page.Of(total),
	})
}

func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	o, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

func (h *AdminHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var p Patch
	if err := common.DecodeJSON(r, &p); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.Update(r.Context(), id, p)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SetStatus updates the order status with state-machine validation.
func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.SetStatus(r.Context(), id, db.OrderStatus(req.Status))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

func (h *AdminHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	o, err := h.Svc.Remove(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

type bulkRequest struct {
	IDs []Ref `json:"ids"`
}

func (h *AdminHandler) BulkShip(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.Svc.BulkShip)
}

func (h *AdminHandler) BulkComplete(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.Svc.BulkComplete)
}

func (h *AdminHandler) bulk(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, ids []int64) (int, error)) {
	var req bulkRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	ids := make([]int64, 0, len(req.IDs))
	for _, ref := range req.IDs {
		ids = append(ids, int64(ref))
	}
	updated, err := run(r.Context(), ids)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]int{"updated": updated}})
}

// Ref is an order reference as sent by the admin console: a number, a numeric string or an
// order number such as "C12".
type Ref int64

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		id, err := ParseID(s)
		if err != nil {
			return err
		}
		*r = Ref(id)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = Ref(n)
	return nil
}

// ParseID accepts "12" or "C12".
func ParseID(value string) (int64, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(strings.TrimPrefix(value, "C"), "c")
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.ValidationError("invalid order id")
	}
	return id, nil
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return 0, false
	}
	return id, true
}
