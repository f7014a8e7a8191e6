package coupon

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/vip"
)

// Handler exposes coupon validation and administrative coupon management endpoints.
type Handler struct {
	Svc *Service
}

// Payload is the admin wire shape of a coupon. Missing isActive means active.
type Payload struct {
	Code             string   `json:"code"`
	Description      string   `json:"description"`
	DiscountType     string   `json:"discountType"`
	DiscountValue    float64  `json:"discountValue"`
	MaxDiscount      int64    `json:"maxDiscount"`
	MinAmount        int64    `json:"minAmount"`
	ValidFrom        string   `json:"validFrom"`
	ValidUntil       string   `json:"validUntil"`
	UsageLimit       *int     `json:"usageLimit"`
	UsedCount        int      `json:"usedCount"`
	PerUserLimit     *int     `json:"perUserLimit"`
	AllowedVipLevels []int    `json:"allowedVipLevels"`
	BlockedUserIDs   []string `json:"blockedUserIds"`
	IsActive         *bool    `json:"isActive"`
}

// ToModel converts the payload, parsing the validity window.
func (p Payload) ToModel() (db.Coupon, error) {
	c := db.Coupon{
		Code:             p.Code,
		Description:      p.Description,
		DiscountType:     p.DiscountType,
		DiscountValue:    p.DiscountValue,
		MaxDiscount:      p.MaxDiscount,
		MinAmount:        p.MinAmount,
		UsageLimit:       p.UsageLimit,
		UsedCount:        p.UsedCount,
		PerUserLimit:     p.PerUserLimit,
		AllowedVipLevels: p.AllowedVipLevels,
		BlockedUserIDs:   p.BlockedUserIDs,
		IsActive:         p.IsActive == nil || *p.IsActive,
	}
	var err error
	if c.ValidFrom, err = ParseTime(p.ValidFrom); err != nil {
		return db.Coupon{}, common.ValidationError("coupon %s has an invalid validFrom", p.Code)
	}
	if c.ValidUntil, err = ParseTime(p.ValidUntil); err != nil {
		return db.Coupon{}, common.ValidationError("coupon %s has an invalid validUntil", p.Code)
	}
	return c, nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// ParseTime accepts RFC 3339 timestamps, HTML datetime-local values and bare dates. Values
// without a zone are read as UTC. An empty string yields nil.
func ParseTime(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return &t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Validate handles GET /coupons/validate?code=&userId=&amount=&vipLevel=.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := parseInt(q.Get("amount"))
	if err != nil {
		common.WriteError(w, common.ValidationError("amount must be a number"))
		return
	}
	level, err := parseInt(q.Get("vipLevel"))
	if err != nil {
		common.WriteError(w, common.ValidationError("vipLevel must be a number"))
		return
	}
	res, err := h.Svc.Validate(r.Context(), Input{
		UserID:   strings.TrimSpace(q.Get("userId")),
		Amount:   amount,
		Code:     q.Get("code"),
		VIPLevel: vip.Level(level),
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// List returns every coupon.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.Svc.List(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": coupons})
}

// Replace swaps the whole coupon catalogue.
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	var payload []Payload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	coupons := make([]db.Coupon, 0, len(payload))
	for _, p := range payload {
		c, err := p.ToModel()
		if err != nil {
			common.WriteError(w, err)
			return
		}
		coupons = append(coupons, c)
	}
	if err := h.Svc.ReplaceAll(r.Context(), coupons); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"count": len(coupons)}})
}

// Upsert creates or replaces the coupon named in the path.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var payload Payload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	payload.Code = chi.URLParam(r, "code")
	c, err := payload.ToModel()
	if err != nil {
		common.WriteError(w, err)
		return
	}
	saved, err := h.Svc.Upsert(r.Context(), c)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": saved})
}

var errNotANumber = errors.New("not a finite number")

// parseInt accepts integers and decimals (truncated). Infinities, NaN and values outside int64
// are rejected.
func parseInt(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0, errNotANumber
	}
	return int64(f), nil
}
