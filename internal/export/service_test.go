package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/events"
	"github.com/noah-isme/liff-store/internal/export"
	"github.com/noah-isme/liff-store/internal/lock"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func seedOrders(t *testing.T, store *db.Memory) {
	t.Helper()
	ctx := context.Background()
	today := testNow.Add(-2 * time.Hour)
	orders := []db.Order{
		{Name: "王小明", Phone: "0911", Address: "嘉義市東區1號", Status: db.OrderStatusPaid, Paid: true, Total: 300, VIPDiscount: 10, CreatedAt: today,
			Items: []db.OrderItem{{ProductName: "牛肉麵", Qty: 1, Price: 180}, {ProductName: "滷蛋", Qty: 6, Price: 20}}},
		{Name: "李", Phone: "0922", Store: "7-11 民族門市", Status: db.OrderStatusShipped, Total: 360, CouponDiscount: 40, CreatedAt: today,
			Items: []db.OrderItem{{ProductName: "牛肉麵", Qty: 2, Price: 180}}},
		{Name: "陳", Status: db.OrderStatusUnpaid, Total: 20, CreatedAt: today,
			Items: []db.OrderItem{{ProductName: "滷蛋", Qty: 1, Price: 20}}},
		{Name: "取消", Status: db.OrderStatusCancel, Total: 999, CreatedAt: today,
			Items: []db.OrderItem{{ProductName: "季節限定", Qty: 50, Price: 250}}},
		{Name: "昨天", Status: db.OrderStatusDone, Paid: true, Total: 500, CreatedAt: today.AddDate(0, 0, -1),
			Items: []db.OrderItem{{ProductName: "湯麵", Qty: 3, Price: 120}}},
	}
	for _, o := range orders {
		_, err := store.InsertOrder(ctx, o)
		require.NoError(t, err)
	}
}

func newService(t *testing.T) (*export.Service, *db.Memory) {
	t.Helper()
	store := db.NewMemory()
	store.Now = func() time.Time { return testNow }
	svc := &export.Service{
		Store:    store,
		Locker:   lock.Local{},
		Events:   &events.Bus{Store: store, Now: func() time.Time { return testNow }},
		Location: time.UTC,
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return testNow },
	}
	return svc, store
}

func TestDailyRevenueCountsPaidOrdersOfTheDay(t *testing.T) {
	svc, store := newService(t)
	seedOrders(t, store)

	day, err := svc.ParseDay("")
	require.NoError(t, err)
	sum, err := svc.DailyRevenue(context.Background(), day)
	require.NoError(t, err)
	require.Equal(t, "2026-03-10", sum.Date)
	require.Equal(t, 2, sum.TotalOrders)
	require.Equal(t, int64(660), sum.TotalRevenue)
	require.Equal(t, 3, sum.TotalItems)
	require.Equal(t, int64(10), sum.TotalVIPDiscount)
	require.Equal(t, int64(40), sum.TotalCouponDiscount)

	yesterday, err := svc.ParseDay("2026-03-09")
	require.NoError(t, err)
	sum, err = svc.DailyRevenue(context.Background(), yesterday)
	require.NoError(t, err)
	require.Equal(t, int64(500), sum.TotalRevenue)
}

func TestParseDayRejectsGarbage(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.ParseDay("10/03/2026")
	require.True(t, common.HasCode(err, common.CodeValidation))
}

func TestExportAndSettleMarksPaidOrders(t *testing.T) {
	svc, store := newService(t)
	seedOrders(t, store)

	out, err := svc.ExportAndSettle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, out.TotalOrders)
	require.Equal(t, testNow, out.SettledAt)

	all, err := store.ListOrders(context.Background(), db.OrderFilter{})
	require.NoError(t, err)
	settled := 0
	for _, o := range all {
		if o.Settled {
			settled++
			require.NotNil(t, o.SettledAt)
			require.True(t, o.IsPaid())
		}
	}
	require.Equal(t, 2, settled)

	evs := store.Events()
	require.Len(t, evs, 1)
	require.Equal(t, events.TopicOrdersSettled, evs[0].Topic)
	require.Equal(t, "2026-03-10", evs[0].AggregateID)
}

func TestExportAndSettleWithoutPaidOrders(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.ExportAndSettle(context.Background())
	require.True(t, common.HasCode(err, common.CodeValidation))

	rec := httptest.NewRecorder()
	(&export.Handler{Svc: svc}).ExportAndSettle(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/export/export-and-settle", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportAndSettleUsesSettlementLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, store := newService(t)
	seedOrders(t, store)
	svc.Locker = lock.Locker{R: client, MaxWait: 50 * time.Millisecond, RetryBackoff: 10 * time.Millisecond}

	require.NoError(t, mr.Set(lock.SettleKey, "someone-else"))
	_, err := svc.ExportAndSettle(context.Background())
	require.True(t, common.HasCode(err, common.CodeBusinessRule))

	mr.Del(lock.SettleKey)
	_, err = svc.ExportAndSettle(context.Background())
	require.NoError(t, err)
	require.False(t, mr.Exists(lock.SettleKey))
}

func TestPackingListCSV(t *testing.T) {
	svc, store := newService(t)
	seedOrders(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/export/packing-list?date=2026-03-10", nil)
	rec := httptest.NewRecorder()
	(&export.Handler{Svc: svc}).PackingList(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "packing_list_2026-03-10.csv")

	body := rec.Body.Bytes()
	require.True(t, bytes.HasPrefix(body, []byte("\xEF\xBB\xBF")))
	rows, err := csv.NewReader(bytes.NewReader(body[3:])).ReadAll()
	require.NoError(t, err)
	require.Equal(t, export.PackingHeader, rows[0])
	require.Len(t, rows, 4)
	require.Equal(t, []string{"C1", "王小明", "0911", "嘉義市東區1號", "牛肉麵x1 / 滷蛋x6", "300", "paid"}, rows[1])
	require.Equal(t, "7-11 民族門市", rows[2][3])
	for _, row := range rows[1:] {
		require.NotEqual(t, "cancel", row[6])
	}
}

func TestPackingListRequiresDate(t *testing.T) {
	svc, _ := newService(t)
	rec := httptest.NewRecorder()
	(&export.Handler{Svc: svc}).PackingList(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/export/packing-list", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTopProductsOrderingAndCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, store := newService(t)
	svc.R = client
	svc.TTL = time.Minute
	seedOrders(t, store)

	rows, err := svc.TopProducts(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []export.TopProduct{
		{Name: "滷蛋", Qty: 7, Amount: 140},
		{Name: "牛肉麵", Qty: 3, Amount: 540},
		{Name: "湯麵", Qty: 3, Amount: 360},
	}, rows)
	require.True(t, mr.Exists("export:top:10"))

	rows, err = svc.TopProducts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "滷蛋", rows[0].Name)
}

func TestItemsText(t *testing.T) {
	require.Equal(t, "", export.ItemsText(nil))
	require.True(t, strings.Contains(export.ItemsText([]db.OrderItem{{ProductName: "a", Qty: 2}}), "ax2"))
}
