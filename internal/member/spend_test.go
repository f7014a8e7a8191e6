package member

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/vip"
)

func TestParseAccrualMode(t *testing.T) {
	require.Equal(t, AccrueOnPaid, ParseAccrualMode(" PAID "))
	require.Equal(t, AccrueAtCheckout, ParseAccrualMode("checkout"))
	require.Equal(t, AccrueAtCheckout, ParseAccrualMode("whatever"))
}

func TestAddAndRemoveSpend(t *testing.T) {
	m := db.Member{UserID: "U1", TotalSpent: 4800}
	change := AddSpend(&m, 200)
	require.True(t, change.Moved())
	require.Equal(t, vip.Level0, change.From)
	require.Equal(t, vip.Level1, change.To)
	require.Equal(t, int64(5000), m.TotalSpent)
	require.Equal(t, 1, m.VIPLevel)

	change = RemoveSpend(&m, 9000)
	require.Equal(t, vip.Level0, change.To)
	require.Zero(t, m.TotalSpent)
}

func TestAccrueOrderOnlyOnce(t *testing.T) {
	store := db.NewMemory()
	ctx := context.Background()
	o := db.Order{UserID: "U1", Total: 6000}

	err := store.InTx(ctx, func(q db.Querier) error {
		change, err := AccrueOrder(ctx, q, &o)
		require.NoError(t, err)
		require.Equal(t, vip.Level1, change.To)
		_, err = AccrueOrder(ctx, q, &o)
		return err
	})
	require.NoError(t, err)
	require.True(t, o.SpendAccrued)

	m, err := store.GetMember(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, int64(6000), m.TotalSpent)

	err = store.InTx(ctx, func(q db.Querier) error {
		_, err := ReverseOrder(ctx, q, &o)
		return err
	})
	require.NoError(t, err)
	require.False(t, o.SpendAccrued)
	m, err = store.GetMember(ctx, "U1")
	require.NoError(t, err)
	require.Zero(t, m.TotalSpent)
	require.Zero(t, m.VIPLevel)
}
