package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
)

// Handler exposes catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Products handles GET /api/v1/products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListProducts(r.Context(), ParseListParams(r.URL.Query()))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// AdminProducts handles GET /api/v1/admin/products, including disabled products.
func (h *Handler) AdminProducts(w http.ResponseWriter, r *http.Request) {
	params := ParseListParams(r.URL.Query())
	params.IncludeDisabled = true
	rows, err := h.service.ListProducts(r.Context(), params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// ReplaceProducts handles PUT /api/v1/admin/products.
func (h *Handler) ReplaceProducts(w http.ResponseWriter, r *http.Request) {
	var in []ProductInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.service.ReplaceProducts(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// UpsertProduct handles PUT /api/v1/admin/products/{name}.
func (h *Handler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.service.UpsertProduct(r.Context(), chi.URLParam(r, "name"), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// DeleteProduct handles DELETE /api/v1/admin/products/{name}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "name")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Categories handles GET /api/v1/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListCategories(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// ReplaceCategories handles PUT /api/v1/admin/categories.
func (h *Handler) ReplaceCategories(w http.ResponseWriter, r *http.Request) {
	var in []db.Category
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.service.ReplaceCategories(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// SyncCart handles POST /api/v1/carts.
func (h *Handler) SyncCart(w http.ResponseWriter, r *http.Request) {
	var in CartInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	items, err := h.service.SyncCart(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"userId": in.UserID, "cart": items}})
}
