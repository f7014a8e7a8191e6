package vip

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelBoundaries(t *testing.T) {
	cases := []struct {
		total int64
		want  Level
	}{
		{0, Level0},
		{4999, Level0},
		{5000, Level1},
		{14999, Level1},
		{15000, Level2},
		{90000, Level2},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, LevelFor(tc.total), "total=%d", tc.total)
	}
}

func TestLevelMonotonic(t *testing.T) {
	prev := LevelFor(0)
	for total := int64(0); total <= 20000; total += 37 {
		lvl := LevelFor(total)
		require.GreaterOrEqual(t, lvl, prev, "level dropped at %d", total)
		prev = lvl
	}
}

func TestAccumulateRecomputesFromTotal(t *testing.T) {
	got := Accumulate(Status{TotalSpent: 4500, Level: Level0}, 600)
	require.Equal(t, Status{TotalSpent: 5100, Level: Level1}, got)

	got = Accumulate(Status{TotalSpent: 14000, Level: Level1}, 1000)
	require.Equal(t, Level2, got.Level)

	// A stored level that disagrees with the total is corrected.
	got = Accumulate(Status{TotalSpent: 100, Level: Level2}, 0)
	require.Equal(t, Level0, got.Level)

	got = Accumulate(Status{TotalSpent: 100}, -50)
	require.Equal(t, int64(100), got.TotalSpent)
}

func TestReverseFloorsAtZero(t *testing.T) {
	got := Reverse(Status{TotalSpent: 5200, Level: Level1}, 300)
	require.Equal(t, Status{TotalSpent: 4900, Level: Level0}, got)

	got = Reverse(Status{TotalSpent: 200}, 900)
	require.Equal(t, int64(0), got.TotalSpent)
}

func TestDiscount(t *testing.T) {
	require.Equal(t, int64(0), Discount(1000, Level0, true))
	require.Equal(t, int64(50), Discount(1000, Level1, true))
	require.Equal(t, int64(100), Discount(1000, Level2, true))
	require.Equal(t, int64(0), Discount(1000, Level2, false))
	// 5% of 130 = 6.5 rounds up.
	require.Equal(t, int64(7), Discount(130, Level1, true))
	// 5% of 129 = 6.45 rounds down.
	require.Equal(t, int64(6), Discount(129, Level1, true))
}

func TestNextTier(t *testing.T) {
	p := NextTier(Status{TotalSpent: 1200, Level: Level0})
	require.NotNil(t, p.NextLevel)
	require.Equal(t, Level1, *p.NextLevel)
	require.Equal(t, int64(3800), p.AmountToNext)

	p = NextTier(Status{TotalSpent: 6000, Level: Level1})
	require.Equal(t, Level2, *p.NextLevel)
	require.Equal(t, int64(9000), p.AmountToNext)

	p = NextTier(Status{TotalSpent: 20000, Level: Level2})
	require.Nil(t, p.NextLevel)
	require.Zero(t, p.AmountToNext)
}
