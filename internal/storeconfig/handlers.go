package storeconfig

import (
	"net/http"

	"github.com/noah-isme/liff-store/internal/common"
)

// Handler exposes store profile and admin settings endpoints.
type Handler struct {
	Svc *Service
}

// PublicSettings is the subset of admin settings the storefront needs.
type PublicSettings struct {
	Mode        string `json:"mode"`
	AllowOrders bool   `json:"allowOrders"`
	OrderingOn  bool   `json:"orderingOpen"`
	LineLiffID  string `json:"lineLiffId"`
}

func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Svc.Store(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cfg})
}

func (h *Handler) UpdateStore(w http.ResponseWriter, r *http.Request) {
	var patch StorePatch
	if err := common.DecodeJSON(r, &patch); err != nil {
		common.WriteError(w, err)
		return
	}
	cfg, err := h.Svc.UpdateStore(r.Context(), patch)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cfg})
}

func (h *Handler) GetPublicSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Svc.Settings(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": PublicSettings{
		Mode:        s.Mode,
		AllowOrders: s.AllowOrders,
		OrderingOn:  OrderingOpen(s),
		LineLiffID:  s.LineLiffID,
	}})
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Svc.Settings(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": s})
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch SettingsPatch
	if err := common.DecodeJSON(r, &patch); err != nil {
		common.WriteError(w, err)
		return
	}
	s, err := h.Svc.UpdateSettings(r.Context(), patch)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": s})
}

// PageView handles POST /store/views.
func (h *Handler) PageView(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.RecordPageView(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]int64{"productPageViews": n}})
}
