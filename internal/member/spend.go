package member

import (
	"context"
	"errors"
	"strings"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/vip"
)

// AccrualMode selects when an order's total is added to the member's spend.
type AccrualMode string

const (
	// AccrueAtCheckout adds spend when the order is placed.
	AccrueAtCheckout AccrualMode = "checkout"
	// AccrueOnPaid adds spend the first time an admin marks the order paid.
	AccrueOnPaid AccrualMode = "paid"
)

// ParseAccrualMode maps a config value to a mode. Unknown values select AccrueAtCheckout.
func ParseAccrualMode(v string) AccrualMode {
	if AccrualMode(strings.ToLower(strings.TrimSpace(v))) == AccrueOnPaid {
		return AccrueOnPaid
	}
	return AccrueAtCheckout
}

// Policy is the VIP spend policy shared by checkout and order management.
type Policy struct {
	Mode            AccrualMode
	ReverseOnCancel bool
}

// Store is the member persistence surface used inside a transaction.
type Store interface {
	GetMember(ctx context.Context, userID string) (db.Member, error)
	GetMemberForUpdate(ctx context.Context, userID string) (db.Member, error)
	InsertMember(ctx context.Context, m db.Member) (db.Member, error)
	UpdateMember(ctx context.Context, m db.Member) (db.Member, error)
}

// Load returns the member for userID, creating an empty one on first sight. When lock is set
// the row is read FOR UPDATE.
func Load(ctx context.Context, s Store, userID string, lock bool) (db.Member, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return db.Member{}, common.ValidationError("userId is required")
	}
	get := s.GetMember
	if lock {
		get = s.GetMemberForUpdate
	}
	m, err := get(ctx, userID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return db.Member{}, common.PersistenceError("load member", err)
	}
	m, err = s.InsertMember(ctx, db.Member{UserID: userID, Addresses: []db.Address{}, Stores: []db.PickupStore{}})
	if errors.Is(err, db.ErrConflict) {
		m, err = get(ctx, userID)
	}
	if err != nil {
		return db.Member{}, common.PersistenceError("create member", err)
	}
	return m, nil
}

// Change records a member's tier before and after a spend adjustment.
type Change struct {
	UserID string    `json:"userId"`
	From   vip.Level `json:"from"`
	To     vip.Level `json:"to"`
	Total  int64     `json:"totalSpent"`
}

// Moved reports whether the tier changed.
func (c Change) Moved() bool {
	return c.From != c.To
}

// AddSpend accumulates orderTotal onto m.
func AddSpend(m *db.Member, orderTotal int64) Change {
	from := vip.Level(m.VIPLevel)
	st := vip.Accumulate(vip.Status{TotalSpent: m.TotalSpent, Level: from}, orderTotal)
	m.TotalSpent, m.VIPLevel = st.TotalSpent, int(st.Level)
	return Change{UserID: m.UserID, From: from, To: st.Level, Total: st.TotalSpent}
}

// RemoveSpend takes a previously accrued orderTotal back off m.
func RemoveSpend(m *db.Member, orderTotal int64) Change {
	from := vip.Level(m.VIPLevel)
	st := vip.Reverse(vip.Status{TotalSpent: m.TotalSpent, Level: from}, orderTotal)
	m.TotalSpent, m.VIPLevel = st.TotalSpent, int(st.Level)
	return Change{UserID: m.UserID, From: from, To: st.Level, Total: st.TotalSpent}
}

// AccrueOrder adds o's total to its member exactly once and marks o as accrued. The caller
// persists o; the member is written here.
func AccrueOrder(ctx context.Context, s Store, o *db.Order) (Change, error) {
	if o.SpendAccrued {
		return Change{UserID: o.UserID}, nil
	}
	m, err := Load(ctx, s, o.UserID, true)
	if err != nil {
		return Change{}, err
	}
	change := AddSpend(&m, o.Total)
	if _, err := s.UpdateMember(ctx, m); err != nil {
		return Change{}, common.PersistenceError("update member spend", err)
	}
	o.SpendAccrued = true
	return change, nil
}

// ReverseOrder undoes AccrueOrder for a cancelled order.
func ReverseOrder(ctx context.Context, s Store, o *db.Order) (Change, error) {
	if !o.SpendAccrued {
		return Change{UserID: o.UserID}, nil
	}
	m, err := Load(ctx, s, o.UserID, true)
	if err != nil {
		return Change{}, err
	}
	change := RemoveSpend(&m, o.Total)
	if _, err := s.UpdateMember(ctx, m); err != nil {
		return Change{}, common.PersistenceError("update member spend", err)
	}
	o.SpendAccrued = false
	return change, nil
}
