package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/coupon"
	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/events"
	"github.com/noah-isme/liff-store/internal/lock"
	"github.com/noah-isme/liff-store/internal/member"
	"github.com/noah-isme/liff-store/internal/storeconfig"
)

var fixedNow = time.Date(2026, 4, 2, 11, 30, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

type fixture struct {
	svc   *Service
	store *db.Memory
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := db.NewMemory()
	store.Now = func() time.Time { return fixedNow }
	ctx := context.Background()
	require.NoError(t, store.SaveAdminSettings(ctx, db.AdminSettings{Mode: db.ModePublic}))
	for _, p := range []db.Product{
		{Name: "beef noodles", Price: 250, Enabled: true},
		{Name: "soup", Price: 100, Enabled: true},
		{Name: "retired", Price: 80, Enabled: false},
	} {
		_, err := store.UpsertProduct(ctx, p)
		require.NoError(t, err)
	}
	svc := &Service{
		Store:  store,
		Events: &events.Bus{Store: store},
		Log:    zerolog.Nop(),
		Now:    func() time.Time { return fixedNow },
	}
	return fixture{svc: svc, store: store}
}

func (f fixture) addCoupon(t *testing.T, c db.Coupon) {
	t.Helper()
	_, err := f.store.UpsertCoupon(context.Background(), c)
	require.NoError(t, err)
}

func TestCreatePlainOrder(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.Create(context.Background(), Input{UserID: "U1", Cart: map[string]int{"beef noodles": 4}, Name: "Amy"})
	require.NoError(t, err)
	require.Equal(t, "C1", out.OrderID)
	require.Equal(t, int64(1000), out.Subtotal)
	require.Zero(t, out.VIPDiscount)
	require.Zero(t, out.CouponDiscount)
	require.Equal(t, int64(1000), out.Total)
	require.Equal(t, "cash", out.PaymentMethod)
	require.Equal(t, int64(1000), out.TotalSpent)

	o, err := f.store.GetOrder(context.Background(), out.ID)
	require.NoError(t, err)
	require.Equal(t, db.OrderStatusUnpaid, o.Status)
	require.True(t, o.SpendAccrued)
	require.Equal(t, "Amy", o.Name)
	require.Len(t, o.Items, 1)
	require.Equal(t, int64(1000), o.Items[0].SubTotal)

	evs := f.store.Events()
	require.Len(t, evs, 1)
	require.Equal(t, events.TopicOrderCreated, evs[0].Topic)
	require.Equal(t, "C1", evs[0].AggregateID)
}

func TestCreateAppliesVIPDiscountAtPurchaseLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.InsertMember(ctx, db.Member{UserID: "VIP", TotalSpent: 15000, VIPLevel: 2})
	require.NoError(t, err)

	out, err := f.svc.Create(ctx, Input{UserID: "VIP", Cart: map[string]int{"soup": 10}})
	require.NoError(t, err)
	require.Equal(t, int64(100), out.VIPDiscount)
	require.Equal(t, int64(900), out.Total)
	require.Equal(t, int64(15900), out.TotalSpent)

	o, err := f.store.GetOrder(ctx, out.ID)
	require.NoError(t, err)
	require.Equal(t, 2, o.VIPLevel)
}

func TestCreateVIPDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := storeconfig.DefaultStore()
	cfg.EnableVip = false
	require.NoError(t, f.store.SaveStoreConfig(ctx, cfg))
	_, err := f.store.InsertMember(ctx, db.Member{UserID: "VIP", TotalSpent: 15000, VIPLevel: 2})
	require.NoError(t, err)

	out, err := f.svc.Create(ctx, Input{UserID: "VIP", Cart: map[string]int{"soup": 10}})
	require.NoError(t, err)
	require.Zero(t, out.VIPDiscount)
	require.Equal(t, int64(1000), out.Total)
}

func TestCreateWithCouponRecordsUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCoupon(t, db.Coupon{Code: "TEN", DiscountType: db.DiscountPercent, DiscountValue: 9, MinAmount: 500, IsActive: true})

	out, err := f.svc.Create(ctx, Input{UserID: "U1", Cart: map[string]int{"soup": 10}, CouponCode: " TEN "})
	require.NoError(t, err)
	require.Equal(t, "TEN", out.CouponCode)
	require.Equal(t, int64(100), out.CouponDiscount)
	require.Equal(t, int64(900), out.Total)

	c, err := f.store.GetCouponByCode(ctx, "TEN")
	require.NoError(t, err)
	require.Equal(t, 1, c.UsedCount)
	n, err := f.store.CountOrdersByUserAndCoupon(ctx, "U1", "TEN")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestCreateRejectedCouponStillPlacesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addCoupon(t, db.Coupon{Code: "LAST", DiscountType: db.DiscountAmount, DiscountValue: 100, IsActive: true, UsageLimit: intPtr(1), UsedCount: 1})

	out, err := f.svc.Create(ctx, Input{UserID: "U1", Cart: map[string]int{"soup": 3}, CouponCode: "LAST"})
	require.NoError(t, err)
	require.Empty(t, out.CouponCode)
	require.Equal(t, coupon.ReasonUsageCap, out.CouponReasonCode)
	require.Equal(t, int64(300), out.Total)

	c, err := f.store.GetCouponByCode(ctx, "LAST")
	require.NoError(t, err)
	require.Equal(t, 1, c.UsedCount)
}

func TestCreateAmountCouponClampsTotalToZero(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(t, db.Coupon{Code: "BIG", DiscountType: db.DiscountAmount, DiscountValue: 2000, IsActive: true})

	out, err := f.svc.Create(context.Background(), Input{UserID: "U1", Cart: map[string]int{"soup": 5}, CouponCode: "BIG"})
	require.NoError(t, err)
	require.Equal(t, int64(500), out.CouponDiscount)
	require.Zero(t, out.Total)
}

func TestCreatePerUserLimitAcrossOrders(t *testing.T) {
	f := newFixture(t)
	f.addCoupon(t, db.Coupon{Code: "ONCE", DiscountType: db.DiscountAmount, DiscountValue: 50, IsActive: true, PerUserLimit: intPtr(1)})
	ctx := context.Background()

	first, err := f.svc.Create(ctx, Input{UserID: "U1", Cart: map[string]int{"soup": 1}, CouponCode: "ONCE"})
	require.NoError(t, err)
	require.Equal(t, "ONCE", first.CouponCode)

	second, err := f.svc.Create(ctx, Input{UserID: "U1", Cart: map[string]int{"soup": 1}, CouponCode: "ONCE"})
	require.NoError(t, err)
	require.Empty(t, second.CouponCode)
	require.Equal(t, coupon.ReasonPerUserCap, second.CouponReasonCode)
}

func TestCreateCrossesVIPThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.InsertMember(ctx, db.Member{UserID: "U1", TotalSpent: 4999})
	require.NoError(t, err)

	out, err := f.svc.Create(ctx, Input{UserID: "U1", Cart: map[string]int{"soup": 1}})
	require.NoError(t, err)
	require.Equal(t, 1, out.VIPLevel)
	require.Equal(t, int64(5099), out.TotalSpent)

	var topics []string
	for _, ev := range f.store.Events() {
		topics = append(topics, ev.Topic)
	}
	require.Equal(t, []string{events.TopicOrderCreated, events.TopicMemberVIPChanged}, topics)
}

func TestCreateAccrueOnPaidDefersSpend(t *testing.T) {
	f := newFixture(t)
	f.svc.Policy = member.Policy{Mode: member.AccrueOnPaid}

	out, err := f.svc.Create(context.Background(), Input{UserID: "U1", Cart: map[string]int{"soup": 2}})
	require.NoError(t, err)
	require.Zero(t, out.TotalSpent)
	o, err := f.store.GetOrder(context.Background(), out.ID)
	require.NoError(t, err)
	require.False(t, o.SpendAccrued)
}

func TestCreateOrderingDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveAdminSettings(ctx, db.AdminSettings{Mode: db.ModeLocal}))

	_, err := f.svc.Create(ctx, Input{UserID: "U1", Cart: map[string]int{"soup": 1}})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, CodeOrderingDisabled, appErr.Code)
	require.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)

	require.NoError(t, f.store.SaveAdminSettings(ctx, db.AdminSettings{Mode: db.ModeLocal, AllowOrders: true}))
	_, err = f.svc.Create(ctx, Input{UserID: "U1", Cart: map[string]int{"soup": 1}})
	require.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []Input{
		{Cart: map[string]int{"soup": 1}},
		{UserID: "U1"},
		{UserID: "U1", Cart: map[string]int{"soup": 0}},
		{UserID: "U1", Cart: map[string]int{"ghost": 1}},
		{UserID: "U1", Cart: map[string]int{"retired": 1}},
		{UserID: "U1", Cart: map[string]int{"soup": 1}, PaymentMethod: "card"},
		{UserID: "U1", Cart: map[string]int{"soup": 1}, PaymentMethod: "bitcoin"},
	}
	for i, in := range cases {
		_, err := f.svc.Create(ctx, in)
		require.True(t, common.HasCode(err, common.CodeValidation), "case %d: %v", i, err)
	}
	orders, err := f.store.ListOrders(ctx, db.OrderFilter{})
	require.NoError(t, err)
	require.Empty(t, orders)
	_, err = f.store.GetMember(ctx, "U1")
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestCreateMergesCartKeysThatDifferByWhitespace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Create(ctx, Input{UserID: "U9", Cart: map[string]int{"soup": 1, " soup": 5, "beef noodles ": 1}})
	require.NoError(t, err)
	require.Equal(t, int64(850), out.Subtotal)

	o, err := f.store.GetOrder(ctx, out.ID)
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	require.Equal(t, "beef noodles", o.Items[0].ProductName)
	require.Equal(t, 1, o.Items[0].Qty)
	require.Equal(t, "soup", o.Items[1].ProductName)
	require.Equal(t, 6, o.Items[1].Qty)
	require.Equal(t, int64(600), o.Items[1].SubTotal)
}

func TestCreateRejectsBlankOrOversizedMergedLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, Input{UserID: "U9", Cart: map[string]int{"   ": 1}})
	require.True(t, common.HasCode(err, common.CodeValidation), "%v", err)

	_, err = f.svc.Create(ctx, Input{UserID: "U9", Cart: map[string]int{"soup": 999, " soup": 1}})
	require.True(t, common.HasCode(err, common.CodeValidation), "%v", err)
}

func TestConcurrentCheckoutsRespectUsageLimit(t *testing.T) {
	f := newFixture(t)
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.svc.Locker = lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond}
	f.addCoupon(t, db.Coupon{Code: "FIRST3", DiscountType: db.DiscountAmount, DiscountValue: 10, IsActive: true, UsageLimit: intPtr(3)})

	var wg sync.WaitGroup
	results := make(chan Output, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.svc.Create(context.Background(), Input{UserID: "U1", Cart: map[string]int{"soup": 1}, CouponCode: "FIRST3"})
			if err == nil {
				results <- out
			}
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	count := 0
	for out := range results {
		count++
		if out.CouponCode == "FIRST3" {
			applied++
		}
	}
	require.Equal(t, 10, count)
	require.Equal(t, 3, applied)
	c, err := f.store.GetCouponByCode(context.Background(), "FIRST3")
	require.NoError(t, err)
	require.Equal(t, 3, c.UsedCount)
	m, err := f.store.GetMember(context.Background(), "U1")
	require.NoError(t, err)
	require.Equal(t, int64(10*100-3*10), m.TotalSpent)
}

func TestCheckoutHandler(t *testing.T) {
	f := newFixture(t)
	h := &Handler{Svc: f.svc}

	rec := httptest.NewRecorder()
	body := `{"userId":"U1","cart":{"soup":2},"paymentMethod":"linePay"}`
	h.Checkout(rec, httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Data Output `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "C1", resp.Data.OrderID)
	require.Equal(t, "linePay", resp.Data.PaymentMethod)

	rec = httptest.NewRecorder()
	h.Checkout(rec, httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"userId":"U1","cart":{}}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
