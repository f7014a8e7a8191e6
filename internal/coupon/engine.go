// Package coupon decides whether a coupon applies to a purchase and how much it takes off.
//
// Percent coupons use the "tenths" convention: a DiscountValue of 9 means the buyer pays 90% of
// the amount (10% off) and 8.5 means 15% off. A value of 10 therefore discounts nothing and 0 is
// a free order.
package coupon

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/vip"
)

// Rejection codes, in evaluation order.
const (
	ReasonNoCode        = "NO_CODE"
	ReasonNotFound      = "NOT_FOUND"
	ReasonInactive      = "INACTIVE"
	ReasonNotStarted    = "NOT_STARTED"
	ReasonExpired       = "EXPIRED"
	ReasonUsageCap      = "USAGE_CAP"
	ReasonVIPIneligible = "VIP_INELIGIBLE"
	ReasonUserBlocked   = "USER_BLOCKED"
	ReasonPerUserCap    = "PER_USER_CAP"
	ReasonMinSpend      = "MIN_SPEND"
	ReasonInvalidType   = "INVALID_TYPE"
	ReasonZeroDiscount  = "ZERO_DISCOUNT"
)

var reasonMessages = map[string]string{
	ReasonNoCode:        "no code provided",
	ReasonNotFound:      "code does not exist",
	ReasonInactive:      "coupon disabled",
	ReasonNotStarted:    "not yet started",
	ReasonExpired:       "expired",
	ReasonUsageCap:      "usage cap reached",
	ReasonVIPIneligible: "VIP level not eligible",
	ReasonUserBlocked:   "user blocked",
	ReasonPerUserCap:    "per-user cap reached",
	ReasonMinSpend:      "minimum spend not met",
	ReasonInvalidType:   "invalid discount type",
	ReasonZeroDiscount:  "discount evaluates to zero",
}

// Message returns the human readable text for a rejection code.
func Message(code string) string {
	return reasonMessages[code]
}

// Result is either an acceptance carrying the discount and the coupon, or a rejection carrying
// a reason. A rejection is an expected outcome, not an error.
type Result struct {
	OK         bool       `json:"ok"`
	ReasonCode string     `json:"reasonCode,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Discount   int64      `json:"discountAmount"`
	Coupon     *db.Coupon `json:"coupon"`
}

func reject(code string, c *db.Coupon) Result {
	return Result{ReasonCode: code, Reason: reasonMessages[code], Coupon: c}
}

// Input is the purchase context a coupon is checked against.
type Input struct {
	UserID   string
	Amount   int64
	Code     string
	VIPLevel vip.Level
}

// Evaluate runs the ordered eligibility checks against c. c is nil when the code is unknown.
// usesByUser is the number of earlier orders by in.UserID carrying this coupon; it is only
// consulted when the coupon has a per-user limit.
func Evaluate(c *db.Coupon, in Input, usesByUser int64, now time.Time) Result {
	if strings.TrimSpace(in.Code) == "" {
		return reject(ReasonNoCode, nil)
	}
	if c == nil {
		return reject(ReasonNotFound, nil)
	}
	if !c.IsActive {
		return reject(ReasonInactive, c)
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return reject(ReasonNotStarted, c)
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return reject(ReasonExpired, c)
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return reject(ReasonUsageCap, c)
	}
	if len(c.AllowedVipLevels) > 0 && !slices.Contains(c.AllowedVipLevels, int(in.VIPLevel)) {
		return reject(ReasonVIPIneligible, c)
	}
	if in.UserID != "" && slices.Contains(c.BlockedUserIDs, in.UserID) {
		return reject(ReasonUserBlocked, c)
	}
	if NeedsUsageCount(c, in.UserID) && usesByUser >= int64(*c.PerUserLimit) {
		return reject(ReasonPerUserCap, c)
	}
	amount := in.Amount
	if amount < 0 {
		amount = 0
	}
	if amount < c.MinAmount {
		return reject(ReasonMinSpend, c)
	}
	discount, ok := Compute(*c, amount)
	if !ok {
		return reject(ReasonInvalidType, c)
	}
	if discount == 0 {
		return reject(ReasonZeroDiscount, c)
	}
	return Result{OK: true, Discount: discount, Coupon: c}
}

// NeedsUsageCount reports whether Evaluate will look at the per-user usage count.
func NeedsUsageCount(c *db.Coupon, userID string) bool {
	return c != nil && c.PerUserLimit != nil && userID != ""
}

// Compute returns the discount c grants on amount, clamped to [0, amount]. ok is false for an
// unknown discount type.
func Compute(c db.Coupon, amount int64) (discount int64, ok bool) {
	if amount < 0 {
		amount = 0
	}
	switch c.DiscountType {
	case db.DiscountAmount:
		discount = int64(math.Round(c.DiscountValue))
	case db.DiscountPercent:
		tenths := math.Min(math.Max(c.DiscountValue, 0), 10)
		discount = int64(math.Round(float64(amount) * (10 - tenths) / 10))
		if c.MaxDiscount > 0 && discount > c.MaxDiscount {
			discount = c.MaxDiscount
		}
	default:
		return 0, false
	}
	if discount < 0 {
		discount = 0
	}
	if discount > amount {
		discount = amount
	}
	return discount, true
}

// Usable reports whether a coupon should be offered to a member of the given level: active,
// inside its validity window and allowed for the level. Usage caps are not considered.
func Usable(c db.Coupon, level vip.Level, now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	return len(c.AllowedVipLevels) == 0 || slices.Contains(c.AllowedVipLevels, int(level))
}
