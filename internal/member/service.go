// Package member keeps the customer profile: contact details, saved addresses and pickup
// stores, and the VIP spend that drives loyalty pricing.
package member

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/vip"
)

// MinAddressLength is the shortest delivery address accepted, in characters.
const MinAddressLength = 5

// CouponLister returns the coupons a member of a given level may use.
type CouponLister interface {
	UsableFor(ctx context.Context, level vip.Level) ([]db.Coupon, error)
}

// Querier captures the database methods required by the member service.
type Querier interface {
	Store
	ListMembers(ctx context.Context) ([]db.Member, error)
}

// TxRunner runs a unit of work in one repository transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q db.Querier) error) error
}

// Service orchestrates member profile operations.
type Service struct {
	Q       Querier
	Tx      TxRunner
	Coupons CouponLister
}

// Profile is the member page payload.
type Profile struct {
	db.Member
	Coupons      []db.Coupon `json:"coupons"`
	NextLevel    *vip.Level  `json:"nextLevel"`
	AmountToNext int64       `json:"amountToNext"`
	DiscountPct  int64       `json:"vipDiscountPercent"`
}

// Me returns the member profile for userID, creating the member on first visit.
func (s *Service) Me(ctx context.Context, userID string) (Profile, error) {
	var m db.Member
	err := s.Tx.InTx(ctx, func(q db.Querier) error {
		var err error
		m, err = Load(ctx, q, userID, false)
		return err
	})
	if err != nil {
		return Profile{}, err
	}
	return s.profile(ctx, m)
}

func (s *Service) profile(ctx context.Context, m db.Member) (Profile, error) {
	level := vip.Level(m.VIPLevel)
	if !level.Valid() {
		level = vip.LevelFor(m.TotalSpent)
	}
	p := Profile{Member: m, Coupons: []db.Coupon{}, DiscountPct: vip.DiscountPercent(level)}
	progress := vip.NextTier(vip.Status{TotalSpent: m.TotalSpent, Level: level})
	p.NextLevel, p.AmountToNext = progress.NextLevel, progress.AmountToNext
	if s.Coupons != nil {
		coupons, err := s.Coupons.UsableFor(ctx, level)
		if err != nil {
			return Profile{}, err
		}
		p.Coupons = coupons
	}
	if p.Addresses == nil {
		p.Addresses = []db.Address{}
	}
	if p.Stores == nil {
		p.Stores = []db.PickupStore{}
	}
	return p, nil
}

// ProfileUpdate is the body of POST /users/me. Addresses and Stores replace the saved lists
// when present; NewAddress and NewStore append one entry.
type ProfileUpdate struct {
	UserID            string            `json:"userId" validate:"required,max=128"`
	Name              *string           `json:"name" validate:"omitempty,max=80"`
	Phone             *string           `json:"phone" validate:"omitempty,max=32"`
	Addresses         *[]db.Address     `json:"addresses"`
	Stores            *[]db.PickupStore `json:"stores"`
	NewAddress        *db.Address       `json:"newAddress"`
	NewStore          *db.PickupStore   `json:"newStore"`
	LastUsedAddressID *string           `json:"lastUsedAddressId"`
	LastUsedStoreID   *string           `json:"lastUsedStoreId"`
}

// UpdateMe applies a profile update.
func (s *Service) UpdateMe(ctx context.Context, in ProfileUpdate) (Profile, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if err := common.Validate(in); err != nil {
		return Profile{}, err
	}
	var m db.Member
	err := s.Tx.InTx(ctx, func(q db.Querier) error {
		var err error
		m, err = Load(ctx, q, in.UserID, true)
		if err != nil {
			return err
		}
		if in.Name != nil {
			m.Name = strings.TrimSpace(*in.Name)
		}
		if in.Phone != nil {
			m.Phone = strings.TrimSpace(*in.Phone)
		}
		if in.Addresses != nil {
			m.Addresses = make([]db.Address, 0, len(*in.Addresses))
			for _, a := range *in.Addresses {
				if m.Addresses, err = appendAddress(m.Addresses, a); err != nil {
					return err
				}
			}
		}
		if in.NewAddress != nil {
			if m.Addresses, err = appendAddress(m.Addresses, *in.NewAddress); err != nil {
				return err
			}
			m.LastUsedAddressID = m.Addresses[len(m.Addresses)-1].ID
		}
		if in.Stores != nil {
			m.Stores = make([]db.PickupStore, 0, len(*in.Stores))
			for _, st := range *in.Stores {
				if m.Stores, err = appendStore(m.Stores, st); err != nil {
					return err
				}
			}
		}
		if in.NewStore != nil {
			if m.Stores, err = appendStore(m.Stores, *in.NewStore); err != nil {
				return err
			}
			m.LastUsedStoreID = m.Stores[len(m.Stores)-1].ID
		}
		if in.LastUsedAddressID != nil {
			m.LastUsedAddressID = strings.TrimSpace(*in.LastUsedAddressID)
		}
		if in.LastUsedStoreID != nil {
			m.LastUsedStoreID = strings.TrimSpace(*in.LastUsedStoreID)
		}
		m, err = q.UpdateMember(ctx, m)
		if err != nil {
			return common.PersistenceError("update member", err)
		}
		return nil
	})
	if err != nil {
		return Profile{}, err
	}
	return s.profile(ctx, m)
}

func appendAddress(list []db.Address, a db.Address) ([]db.Address, error) {
	text, err := ValidateAddress(a.Address)
	if err != nil {
		return nil, err
	}
	a.Address = text
	a.Label = strings.TrimSpace(a.Label)
	if a.ID = strings.TrimSpace(a.ID); a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.IsDefault {
		for i := range list {
			list[i].IsDefault = false
		}
	}
	return append(list, a), nil
}

func appendStore(list []db.PickupStore, st db.PickupStore) ([]db.PickupStore, error) {
	st.Store = strings.TrimSpace(st.Store)
	if st.Store == "" {
		return nil, common.ValidationError("store is required")
	}
	st.Label = strings.TrimSpace(st.Label)
	if st.ID = strings.TrimSpace(st.ID); st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.IsDefault {
		for i := range list {
			list[i].IsDefault = false
		}
	}
	return append(list, st), nil
}

// ValidateAddress trims a delivery address and requires MinAddressLength characters.
func ValidateAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if utf8.RuneCountInString(address) < MinAddressLength {
		return "", common.ValidationError("address must be at least %d characters", MinAddressLength)
	}
	return address, nil
}

// List returns every member, oldest first.
func (s *Service) List(ctx context.Context) ([]db.Member, error) {
	members, err := s.Q.ListMembers(ctx)
	if err != nil {
		return nil, common.PersistenceError("list members", err)
	}
	if members == nil {
		members = []db.Member{}
	}
	return members, nil
}

// ContactUpdate is the admin correction of a member's contact details. Nil fields are left
// untouched.
type ContactUpdate struct {
	Name        *string `json:"name" validate:"omitempty,max=80"`
	Phone       *string `json:"phone" validate:"omitempty,max=32"`
	Address     *string `json:"address"`
	Store       *string `json:"store"`
	VIPLevel    *int    `json:"vipLevel" validate:"omitempty,min=0,max=2"`
	Blacklisted *bool   `json:"blacklisted"`
}

// ContactResult reports what UpdateContact touched.
type ContactResult struct {
	Member        db.Member `json:"member"`
	UpdatedOrders int       `json:"updatedOrders"`
}

// UpdateContact writes in to the member and to every one of their orders. A member without
// orders is reported as not found.
func (s *Service) UpdateContact(ctx context.Context, userID string, in ContactUpdate) (ContactResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ContactResult{}, common.ValidationError("userId is required")
	}
	if err := common.Validate(in); err != nil {
		return ContactResult{}, err
	}
	if in.Address != nil && strings.TrimSpace(*in.Address) != "" {
		text, err := ValidateAddress(*in.Address)
		if err != nil {
			return ContactResult{}, err
		}
		in.Address = &text
	}
	var res ContactResult
	err := s.Tx.InTx(ctx, func(q db.Querier) error {
		orders, err := q.ListOrders(ctx, db.OrderFilter{UserID: userID})
		if err != nil {
			return common.PersistenceError("list member orders", err)
		}
		if len(orders) == 0 {
			return common.NotFoundError("no order for this userId")
		}
		for _, o := range orders {
			applyContact(&o, in)
			if _, err := q.UpdateOrder(ctx, o); err != nil {
				return common.PersistenceError("update order contact", err)
			}
		}
		m, err := Load(ctx, q, userID, true)
		if err != nil {
			return err
		}
		if in.Name != nil {
			m.Name = strings.TrimSpace(*in.Name)
		}
		if in.Phone != nil {
			m.Phone = strings.TrimSpace(*in.Phone)
		}
		if in.VIPLevel != nil {
			m.VIPLevel = *in.VIPLevel
		}
		if in.Blacklisted != nil {
			m.Blacklisted = *in.Blacklisted
		}
		if in.Address != nil && *in.Address != "" && !hasAddress(m.Addresses, *in.Address) {
			if m.Addresses, err = appendAddress(m.Addresses, db.Address{Address: *in.Address, IsDefault: true}); err != nil {
				return err
			}
		}
		if in.Store != nil && strings.TrimSpace(*in.Store) != "" && !hasStore(m.Stores, *in.Store) {
			if m.Stores, err = appendStore(m.Stores, db.PickupStore{Store: *in.Store, IsDefault: true}); err != nil {
				return err
			}
		}
		res.Member, err = q.UpdateMember(ctx, m)
		if err != nil {
			return common.PersistenceError("update member", err)
		}
		res.UpdatedOrders = len(orders)
		return nil
	})
	if err != nil {
		return ContactResult{}, err
	}
	return res, nil
}

func applyContact(o *db.Order, in ContactUpdate) {
	if in.Name != nil {
		o.Name = strings.TrimSpace(*in.Name)
	}
	if in.Phone != nil {
		o.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Address != nil {
		o.Address = strings.TrimSpace(*in.Address)
	}
	if in.Store != nil {
		o.Store = strings.TrimSpace(*in.Store)
	}
	if in.Blacklisted != nil {
		o.Blacklisted = *in.Blacklisted
	}
}

func hasAddress(list []db.Address, address string) bool {
	for _, a := range list {
		if a.Address == address {
			return true
		}
	}
	return false
}

func hasStore(list []db.PickupStore, store string) bool {
	store = strings.TrimSpace(store)
	for _, st := range list {
		if st.Store == store {
			return true
		}
	}
	return false
}
