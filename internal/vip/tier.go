// Package vip derives loyalty tiers from cumulative spend.
package vip

// Level is a loyalty tier. Levels are derived purely from cumulative spend.
type Level int

const (
	Level0 Level = 0
	Level1 Level = 1
	Level2 Level = 2
)

// Spend thresholds for each tier, in whole currency units.
const (
	Level1Threshold int64 = 5000
	Level2Threshold int64 = 15000
)

// Status is the loyalty state kept on a member.
type Status struct {
	TotalSpent int64 `json:"totalSpent"`
	Level      Level `json:"vipLevel"`
}

// Progress describes how far a member is from the next tier.
type Progress struct {
	NextLevel    *Level `json:"nextLevel"`
	AmountToNext int64  `json:"amountToNext"`
}

// Valid reports whether l is one of the known tiers.
func (l Level) Valid() bool {
	return l >= Level0 && l <= Level2
}

// LevelFor recomputes the tier from a cumulative total. It is not sticky: the tier is read
// off the total every time.
func LevelFor(totalSpent int64) Level {
	switch {
	case totalSpent >= Level2Threshold:
		return Level2
	case totalSpent >= Level1Threshold:
		return Level1
	default:
		return Level0
	}
}

// Accumulate adds a finalized order total to the member's spend and recomputes the tier.
// Negative totals count as zero so spend never decreases here.
func Accumulate(current Status, orderTotal int64) Status {
	if orderTotal < 0 {
		orderTotal = 0
	}
	total := current.TotalSpent + orderTotal
	if total < 0 {
		total = 0
	}
	return Status{TotalSpent: total, Level: LevelFor(total)}
}

// Reverse subtracts a previously accumulated order total, flooring at zero.
func Reverse(current Status, orderTotal int64) Status {
	if orderTotal < 0 {
		orderTotal = 0
	}
	total := current.TotalSpent - orderTotal
	if total < 0 {
		total = 0
	}
	return Status{TotalSpent: total, Level: LevelFor(total)}
}

// DiscountPercent returns the whole-percent discount a tier grants on a subtotal.
func DiscountPercent(l Level) int64 {
	switch l {
	case Level1:
		return 5
	case Level2:
		return 10
	default:
		return 0
	}
}

// Discount computes the VIP discount for subtotal, rounded half up to a whole currency unit.
// It is zero when the store has VIP pricing disabled.
func Discount(subtotal int64, l Level, enabled bool) int64 {
	if !enabled || subtotal <= 0 {
		return 0
	}
	pct := DiscountPercent(l)
	return (subtotal*pct + 50) / 100
}

// NextTier reports the next tier and the spend still required to reach it.
func NextTier(s Status) Progress {
	switch {
	case s.Level < Level1 && s.TotalSpent < Level1Threshold:
		next := Level1
		return Progress{NextLevel: &next, AmountToNext: Level1Threshold - s.TotalSpent}
	case s.Level < Level2 && s.TotalSpent < Level2Threshold:
		next := Level2
		return Progress{NextLevel: &next, AmountToNext: Level2Threshold - s.TotalSpent}
	default:
		return Progress{}
	}
}
