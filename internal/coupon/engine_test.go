package coupon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/vip"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func percentCoupon(v float64) db.Coupon {
	return db.Coupon{Code: "P", DiscountType: db.DiscountPercent, DiscountValue: v, IsActive: true}
}

func TestComputeAmountIsMinOfValueAndAmount(t *testing.T) {
	c := db.Coupon{Code: "A", DiscountType: db.DiscountAmount, DiscountValue: 150, IsActive: true}
	for _, amount := range []int64{0, 1, 149, 150, 151, 1000} {
		got, ok := Compute(c, amount)
		require.True(t, ok)
		require.Equal(t, min(int64(150), amount), got, "amount %d", amount)
	}
}

func TestComputePercentTenths(t *testing.T) {
	cases := []struct {
		value  float64
		amount int64
		want   int64
	}{
		{9, 1000, 100},
		{8.5, 1000, 150},
		{9, 125, 13},
		{9, 135, 14},
		{10, 1000, 0},
		{12, 1000, 0},
		{0, 1000, 1000},
		{-3, 1000, 1000},
		{9.5, 30, 2},
		// exact half units round up: amount*(1-0.9) in floats would give 0 and 1
		{9, 5, 1},
		{9, 15, 2},
	}
	for _, tc := range cases {
		got, ok := Compute(percentCoupon(tc.value), tc.amount)
		require.True(t, ok)
		require.Equal(t, tc.want, got, "value %v amount %d", tc.value, tc.amount)
	}
}

func TestComputePercentMaxDiscountCap(t *testing.T) {
	c := percentCoupon(5)
	c.MaxDiscount = 300
	got, _ := Compute(c, 1000)
	require.Equal(t, int64(300), got)

	c.MaxDiscount = 0
	got, _ = Compute(c, 1000)
	require.Equal(t, int64(500), got)
}

func TestComputeUnknownType(t *testing.T) {
	_, ok := Compute(db.Coupon{DiscountType: "bogo", DiscountValue: 1}, 100)
	require.False(t, ok)
}

func TestEvaluatePercentEdges(t *testing.T) {
	c := percentCoupon(10)
	res := Evaluate(&c, Input{Amount: 1000, Code: "P"}, 0, testNow)
	require.False(t, res.OK)
	require.Equal(t, ReasonZeroDiscount, res.ReasonCode)

	c = percentCoupon(0)
	res = Evaluate(&c, Input{Amount: 1000, Code: "P"}, 0, testNow)
	require.True(t, res.OK)
	require.Equal(t, int64(1000), res.Discount)
}

func TestEvaluateChecksRunInOrder(t *testing.T) {
	base := func() db.Coupon {
		return db.Coupon{
			Code:          "SAVE",
			DiscountType:  db.DiscountAmount,
			DiscountValue: 100,
			MinAmount:     500,
			IsActive:      true,
		}
	}
	in := Input{UserID: "U1", Amount: 1000, Code: "SAVE", VIPLevel: vip.Level1}

	cases := []struct {
		name   string
		coupon *db.Coupon
		in     Input
		uses   int64
		reason string
	}{
		{"empty code", nil, Input{Code: "  "}, 0, ReasonNoCode},
		{"unknown", nil, in, 0, ReasonNotFound},
		{"inactive beats expiry", func() *db.Coupon {
			c := base()
			c.IsActive = false
			c.ValidUntil = timePtr(testNow.Add(-time.Hour))
			return &c
		}(), in, 0, ReasonInactive},
		{"not started", func() *db.Coupon {
			c := base()
			c.ValidFrom = timePtr(testNow.Add(time.Hour))
			return &c
		}(), in, 0, ReasonNotStarted},
		{"expired", func() *db.Coupon {
			c := base()
			c.ValidUntil = timePtr(testNow.Add(-time.Second))
			return &c
		}(), in, 0, ReasonExpired},
		{"usage cap beats vip", func() *db.Coupon {
			c := base()
			c.UsageLimit = intPtr(3)
			c.UsedCount = 3
			c.AllowedVipLevels = []int{2}
			return &c
		}(), in, 0, ReasonUsageCap},
		{"vip ineligible", func() *db.Coupon {
			c := base()
			c.AllowedVipLevels = []int{2}
			return &c
		}(), in, 0, ReasonVIPIneligible},
		{"blocked", func() *db.Coupon {
			c := base()
			c.BlockedUserIDs = []string{"U1"}
			return &c
		}(), in, 0, ReasonUserBlocked},
		{"per user cap", func() *db.Coupon {
			c := base()
			c.PerUserLimit = intPtr(1)
			return &c
		}(), in, 1, ReasonPerUserCap},
		{"min spend", func() *db.Coupon {
			c := base()
			return &c
		}(), Input{UserID: "U1", Amount: 499, Code: "SAVE"}, 0, ReasonMinSpend},
		{"invalid type", func() *db.Coupon {
			c := base()
			c.DiscountType = "gift"
			return &c
		}(), in, 0, ReasonInvalidType},
		{"zero discount", func() *db.Coupon {
			c := base()
			c.DiscountValue = 0
			return &c
		}(), in, 0, ReasonZeroDiscount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Evaluate(tc.coupon, tc.in, tc.uses, testNow)
			require.False(t, res.OK)
			require.Equal(t, tc.reason, res.ReasonCode)
			require.Equal(t, Message(tc.reason), res.Reason)
			require.Zero(t, res.Discount)
		})
	}
}

func TestEvaluateWindowBoundsAreInclusive(t *testing.T) {
	c := db.Coupon{
		Code: "W", DiscountType: db.DiscountAmount, DiscountValue: 10, IsActive: true,
		ValidFrom: timePtr(testNow), ValidUntil: timePtr(testNow),
	}
	res := Evaluate(&c, Input{Amount: 100, Code: "W"}, 0, testNow)
	require.True(t, res.OK)
}

func TestEvaluatePerUserLimitIgnoredWithoutUser(t *testing.T) {
	c := db.Coupon{Code: "ONCE", DiscountType: db.DiscountAmount, DiscountValue: 50, IsActive: true, PerUserLimit: intPtr(1)}
	require.False(t, NeedsUsageCount(&c, ""))
	res := Evaluate(&c, Input{Amount: 100, Code: "ONCE"}, 5, testNow)
	require.True(t, res.OK)

	res = Evaluate(&c, Input{UserID: "U9", Amount: 100, Code: "ONCE"}, 0, testNow)
	require.True(t, res.OK)
}

func TestEvaluateBlockedListNeedsUser(t *testing.T) {
	c := db.Coupon{Code: "B", DiscountType: db.DiscountAmount, DiscountValue: 50, IsActive: true, BlockedUserIDs: []string{""}}
	res := Evaluate(&c, Input{Amount: 100, Code: "B"}, 0, testNow)
	require.True(t, res.OK)
}

func TestEvaluatePercentScenario(t *testing.T) {
	c := db.Coupon{Code: "TEN", DiscountType: db.DiscountPercent, DiscountValue: 9, MinAmount: 500, IsActive: true}
	res := Evaluate(&c, Input{Amount: 1000, Code: "TEN"}, 0, testNow)
	require.True(t, res.OK)
	require.Equal(t, int64(100), res.Discount)
	require.Equal(t, "TEN", res.Coupon.Code)
}

func TestEvaluateUsageCapRegardlessOfOtherFields(t *testing.T) {
	c := db.Coupon{
		Code: "LAST", DiscountType: "nonsense", DiscountValue: -1, MinAmount: 1_000_000,
		IsActive: true, UsageLimit: intPtr(1), UsedCount: 1, BlockedUserIDs: []string{"U1"},
	}
	res := Evaluate(&c, Input{UserID: "U1", Amount: 10, Code: "LAST"}, 0, testNow)
	require.False(t, res.OK)
	require.Equal(t, ReasonUsageCap, res.ReasonCode)
	require.Equal(t, "usage cap reached", res.Reason)
}

func TestEvaluateAmountClampedToBase(t *testing.T) {
	c := db.Coupon{Code: "BIG", DiscountType: db.DiscountAmount, DiscountValue: 2000, IsActive: true}
	res := Evaluate(&c, Input{Amount: 500, Code: "BIG"}, 0, testNow)
	require.True(t, res.OK)
	require.Equal(t, int64(500), res.Discount)
}

func TestUsable(t *testing.T) {
	c := db.Coupon{Code: "V", IsActive: true, AllowedVipLevels: []int{1, 2}}
	require.False(t, Usable(c, vip.Level0, testNow))
	require.True(t, Usable(c, vip.Level2, testNow))

	c.AllowedVipLevels = nil
	c.ValidUntil = timePtr(testNow.Add(-time.Minute))
	require.False(t, Usable(c, vip.Level0, testNow))

	c.ValidUntil = nil
	c.IsActive = false
	require.False(t, Usable(c, vip.Level0, testNow))
}
