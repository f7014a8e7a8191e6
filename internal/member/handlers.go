package member

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/liff-store/internal/common"
)

// Handler exposes member profile endpoints for the storefront and the admin console.
type Handler struct {
	Svc *Service
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		common.WriteError(w, common.ValidationError("userId is required"))
		return
	}
	p, err := h.Svc.Me(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var in ProfileUpdate
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.Svc.UpdateMe(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// ValidateAddress handles POST /address/validate.
func (h *Handler) ValidateAddress(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Address string `json:"address"`
	}
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	address, err := ValidateAddress(in.Address)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": true, "address": address}})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.Svc.List(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": members})
}

// UpdateContact handles POST /admin/members/{userId}/contact.
func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var in ContactUpdate
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.UpdateContact(r.Context(), chi.URLParam(r, "userId"), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}
