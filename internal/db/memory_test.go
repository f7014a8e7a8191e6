package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.UpsertCoupon(ctx, Coupon{Code: "SAVE", DiscountType: DiscountAmount, DiscountValue: 50, IsActive: true})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = m.InTx(ctx, func(q Querier) error {
		if _, err := q.InsertOrder(ctx, Order{UserID: "u1", CouponCode: "SAVE", Total: 100}); err != nil {
			return err
		}
		if err := q.IncrementCouponUsage(ctx, "SAVE"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	c, err := m.GetCouponByCode(ctx, "SAVE")
	require.NoError(t, err)
	require.Equal(t, 0, c.UsedCount)
	orders, err := m.ListOrders(ctx, OrderFilter{})
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestMemoryInTxCommits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.UpsertCoupon(ctx, Coupon{Code: "SAVE", DiscountType: DiscountAmount, DiscountValue: 50, IsActive: true})
	require.NoError(t, err)

	var orderID int64
	err = m.InTx(ctx, func(q Querier) error {
		o, err := q.InsertOrder(ctx, Order{UserID: "u1", CouponCode: "SAVE", Total: 100})
		if err != nil {
			return err
		}
		orderID = o.ID
		return q.IncrementCouponUsage(ctx, "SAVE")
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), orderID)

	c, err := m.GetCouponByCode(ctx, "SAVE")
	require.NoError(t, err)
	require.Equal(t, 1, c.UsedCount)

	n, err := m.CountOrdersByUserAndCoupon(ctx, "u1", "SAVE")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	levels := []int{1, 2}
	_, err := m.UpsertCoupon(ctx, Coupon{Code: "VIP", AllowedVipLevels: levels})
	require.NoError(t, err)
	levels[0] = 9

	c, err := m.GetCouponByCode(ctx, "VIP")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, c.AllowedVipLevels)

	c.AllowedVipLevels[1] = 7
	again, err := m.GetCouponByCode(ctx, "VIP")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, again.AllowedVipLevels)
}

func TestMemoryInsertMemberConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.InsertMember(ctx, Member{UserID: "u1"})
	require.NoError(t, err)
	_, err = m.InsertMember(ctx, Member{UserID: "u1"})
	require.ErrorIs(t, err, ErrConflict)

	_, err = m.UpdateMember(ctx, Member{UserID: "ghost"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryOrdersNewestFirstAndWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := m.InsertOrder(ctx, Order{UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	_, err := m.InsertOrder(ctx, Order{ID: 500, UserID: "u2", CreatedAt: base.Add(24 * time.Hour)})
	require.NoError(t, err)

	list, err := m.ListOrders(ctx, OrderFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, int64(3), list[0].ID)
	require.Equal(t, int64(1), list[2].ID)

	window, err := m.ListOrdersCreatedBetween(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 2)

	next, err := m.InsertOrder(ctx, Order{UserID: "u3"})
	require.NoError(t, err)
	require.Equal(t, int64(501), next.ID)
}

func TestMemorySerialisesTransactions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.UpsertCoupon(ctx, Coupon{Code: "HOT"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.InTx(ctx, func(q Querier) error {
				c, err := q.GetCouponByCodeForUpdate(ctx, "HOT")
				if err != nil {
					return err
				}
				_ = c
				return q.IncrementCouponUsage(ctx, "HOT")
			})
		}()
	}
	wg.Wait()
	c, err := m.GetCouponByCode(ctx, "HOT")
	require.NoError(t, err)
	require.Equal(t, 50, c.UsedCount)
}

func TestMemoryStoreConfigViews(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.GetStoreConfig(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	views, err := m.IncrementProductPageViews(ctx, StoreConfig{Name: "shop", EnableVip: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), views)
	views, err = m.IncrementProductPageViews(ctx, StoreConfig{})
	require.NoError(t, err)
	require.Equal(t, int64(2), views)

	cfg, err := m.GetStoreConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, "shop", cfg.Name)
	require.True(t, cfg.EnableVip)
}

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/shop", migrateURL("postgres://u:p@localhost:5432/shop"))
	require.Equal(t, "pgx5://localhost/shop", migrateURL("postgresql://localhost/shop"))
	require.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}

func TestOrderHelpers(t *testing.T) {
	o := Order{ID: 42, Status: OrderStatusShipped}
	require.Equal(t, "C42", o.OrderNo())
	require.True(t, o.IsPaid())
	require.False(t, Order{Status: OrderStatusUnpaid}.IsPaid())
	require.True(t, Order{Status: OrderStatusUnpaid, Paid: true}.IsPaid())
	require.False(t, OrderStatus("lost").Valid())
}
