// Package pricing turns a priced cart into the totals stored on an order.
package pricing

import (
	"strings"

	"github.com/noah-isme/liff-store/internal/coupon"
	"github.com/noah-isme/liff-store/internal/vip"
)

// Money represents a monetary value in whole currency units.
type Money = int64

// Line is one cart entry with the catalog price already resolved.
type Line struct {
	ProductName string
	Qty         int
	UnitPrice   Money
}

// Total returns qty × unit price, treating non-positive quantities as empty.
func (l Line) Total() Money {
	if l.Qty <= 0 || l.UnitPrice < 0 {
		return 0
	}
	return Money(l.Qty) * l.UnitPrice
}

// Flags are the store switches that take part in pricing.
type Flags struct {
	EnableVip     bool
	EnableCoupons bool
}

// CouponEvaluator checks the order's coupon against the base amount (subtotal after the VIP
// discount).
type CouponEvaluator func(base Money) (coupon.Result, error)

// Quote aggregates computed pricing components.
type Quote struct {
	Subtotal          Money  `json:"subtotal"`
	VIPLevel          int    `json:"vipLevel"`
	VIPDiscount       Money  `json:"vipDiscount"`
	BaseAmount        Money  `json:"baseAmount"`
	CouponDiscount    Money  `json:"couponDiscount"`
	Total             Money  `json:"total"`
	AppliedCouponCode string `json:"couponCode,omitempty"`
	CouponReasonCode  string `json:"couponReasonCode,omitempty"`
	CouponReason      string `json:"couponReason,omitempty"`
}

// CouponApplied reports whether the coupon step granted a discount.
func (q Quote) CouponApplied() bool {
	return q.AppliedCouponCode != ""
}

// PriceOrder computes subtotal, VIP discount, coupon discount and total. code names the coupon
// the buyer asked for; eval is only called when coupons are enabled and code is not blank. A
// rejected coupon leaves the order priced without it and records why.
func PriceOrder(lines []Line, level vip.Level, code string, eval CouponEvaluator, flags Flags) (Quote, error) {
	var subtotal Money
	for _, l := range lines {
		subtotal += l.Total()
	}
	q := Quote{Subtotal: subtotal, VIPLevel: int(level)}
	q.VIPDiscount = vip.Discount(subtotal, level, flags.EnableVip)
	if q.VIPDiscount > subtotal {
		q.VIPDiscount = subtotal
	}
	q.BaseAmount = subtotal - q.VIPDiscount

	if flags.EnableCoupons && strings.TrimSpace(code) != "" && eval != nil {
		res, err := eval(q.BaseAmount)
		if err != nil {
			return Quote{}, err
		}
		if res.OK {
			q.CouponDiscount = min(max(res.Discount, 0), q.BaseAmount)
			if res.Coupon != nil {
				q.AppliedCouponCode = res.Coupon.Code
			} else {
				q.AppliedCouponCode = strings.TrimSpace(code)
			}
		} else {
			q.CouponReasonCode = res.ReasonCode
			q.CouponReason = res.Reason
		}
	}
	q.Total = max(q.BaseAmount-q.CouponDiscount, 0)
	return q, nil
}
