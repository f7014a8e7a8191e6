package auth

import (
	"net/http"
	"strconv"
	"time"

	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/liff-store/internal/common"
)

// Handler exposes the admin login endpoints.
type Handler struct {
	Service *Service
	// Limiter throttles login attempts per client IP. Nil disables throttling.
	Limiter *limiter.Limiter
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /api/v1/admin/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeUnavailable, "admin auth not configured", nil)
		return
	}
	if h.Limiter != nil {
		lctx, err := h.Limiter.Get(r.Context(), "login:"+common.ClientIP(r))
		if err != nil {
			common.WriteError(w, err)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		if lctx.Reached {
			retry := time.Until(time.Unix(lctx.Reset, 0))
			if retry < time.Second {
				retry = time.Second
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many login attempts", nil)
			return
		}
	}
	var req loginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.Service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// Me handles GET /api/v1/admin/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	subject, ok := common.Admin(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"username": subject, "role": RoleAdmin}})
}
