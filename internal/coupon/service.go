package coupon

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/obs"
	"github.com/noah-isme/liff-store/internal/vip"
)

// Lookup is the repository surface coupon evaluation reads from.
type Lookup interface {
	GetCouponByCode(ctx context.Context, code string) (db.Coupon, error)
	CountOrdersByUserAndCoupon(ctx context.Context, userID, code string) (int64, error)
}

// Querier captures the database methods required by the coupon service.
type Querier interface {
	Lookup
	ListCoupons(ctx context.Context) ([]db.Coupon, error)
	UpsertCoupon(ctx context.Context, c db.Coupon) (db.Coupon, error)
}

// TxRunner runs a unit of work in one repository transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q db.Querier) error) error
}

// Service evaluates coupons and manages the coupon catalogue.
type Service struct {
	Q   Querier
	Tx  TxRunner
	Now func() time.Time
}

// Check loads the coupon named by in.Code through l and evaluates it. Only repository failures
// are returned as errors; every business outcome is in the Result.
func Check(ctx context.Context, l Lookup, in Input, now time.Time) (Result, error) {
	in.Code = strings.TrimSpace(in.Code)
	if in.Code == "" {
		return Evaluate(nil, in, 0, now), nil
	}
	c, err := l.GetCouponByCode(ctx, in.Code)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Evaluate(nil, in, 0, now), nil
		}
		return Result{}, common.PersistenceError("load coupon", err)
	}
	var uses int64
	if NeedsUsageCount(&c, in.UserID) {
		uses, err = l.CountOrdersByUserAndCoupon(ctx, in.UserID, c.Code)
		if err != nil {
			return Result{}, common.PersistenceError("count coupon usage", err)
		}
	}
	return Evaluate(&c, in, uses, now), nil
}

// ForUpdate adapts a transactional querier so that the coupon row is locked when read.
func ForUpdate(q db.Querier) Lookup {
	return lockingLookup{q: q}
}

type lockingLookup struct {
	q db.Querier
}

func (l lockingLookup) GetCouponByCode(ctx context.Context, code string) (db.Coupon, error) {
	return l.q.GetCouponByCodeForUpdate(ctx, code)
}

func (l lockingLookup) CountOrdersByUserAndCoupon(ctx context.Context, userID, code string) (int64, error) {
	return l.q.CountOrdersByUserAndCoupon(ctx, userID, code)
}

// Validate is the side-effect free coupon check exposed to the storefront.
func (s *Service) Validate(ctx context.Context, in Input) (Result, error) {
	if s == nil || s.Q == nil {
		return Result{}, errors.New("coupon service not configured")
	}
	if in.Amount < 0 {
		return Result{}, common.ValidationError("amount must not be negative")
	}
	if !in.VIPLevel.Valid() {
		return Result{}, common.ValidationError("vipLevel must be 0, 1 or 2")
	}
	res, err := Check(ctx, s.Q, in, s.now())
	if err != nil {
		return Result{}, err
	}
	RecordOutcome(res)
	return res, nil
}

// RecordOutcome counts an evaluation in the coupon metrics.
func RecordOutcome(res Result) {
	if res.OK {
		obs.ObserveCouponValidation("ok")
		return
	}
	obs.ObserveCouponValidation(res.ReasonCode)
}

// List returns every coupon.
func (s *Service) List(ctx context.Context) ([]db.Coupon, error) {
	coupons, err := s.Q.ListCoupons(ctx)
	if err != nil {
		return nil, common.PersistenceError("list coupons", err)
	}
	if coupons == nil {
		coupons = []db.Coupon{}
	}
	return coupons, nil
}

// UsableFor returns the coupons shown to a member of the given level.
func (s *Service) UsableFor(ctx context.Context, level vip.Level) ([]db.Coupon, error) {
	coupons, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]db.Coupon, 0, len(coupons))
	for _, c := range coupons {
		if Usable(c, level, now) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ReplaceAll swaps the coupon catalogue for coupons after validating every definition.
func (s *Service) ReplaceAll(ctx context.Context, coupons []db.Coupon) error {
	if s.Tx == nil {
		return errors.New("coupon service not configured")
	}
	seen := make(map[string]struct{}, len(coupons))
	for i := range coupons {
		if err := Normalize(&coupons[i]); err != nil {
			return err
		}
		if _, dup := seen[coupons[i].Code]; dup {
			return common.ValidationError("duplicate coupon code %s", coupons[i].Code)
		}
		seen[coupons[i].Code] = struct{}{}
	}
	err := s.Tx.InTx(ctx, func(q db.Querier) error {
		return q.ReplaceCoupons(ctx, coupons)
	})
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			return common.NewAppError(common.CodeConflict, "duplicate coupon code", http.StatusConflict, err)
		}
		return common.PersistenceError("replace coupons", err)
	}
	return nil
}

// Upsert creates or replaces a single coupon definition.
func (s *Service) Upsert(ctx context.Context, c db.Coupon) (db.Coupon, error) {
	if err := Normalize(&c); err != nil {
		return db.Coupon{}, err
	}
	saved, err := s.Q.UpsertCoupon(ctx, c)
	if err != nil {
		return db.Coupon{}, common.PersistenceError("save coupon", err)
	}
	return saved, nil
}

// Normalize trims and validates an admin supplied coupon definition.
func Normalize(c *db.Coupon) error {
	c.Code = strings.TrimSpace(c.Code)
	if c.Code == "" {
		return common.ValidationError("every coupon needs a code")
	}
	c.DiscountType = strings.ToLower(strings.TrimSpace(c.DiscountType))
	if c.DiscountType != db.DiscountAmount && c.DiscountType != db.DiscountPercent {
		return common.ValidationError("coupon %s has an invalid discount type", c.Code)
	}
	if c.DiscountValue < 0 {
		return common.ValidationError("coupon %s discount value must not be negative", c.Code)
	}
	if c.MinAmount < 0 {
		return common.ValidationError("coupon %s minimum amount must not be negative", c.Code)
	}
	if c.MaxDiscount < 0 {
		return common.ValidationError("coupon %s max discount must not be negative", c.Code)
	}
	if c.UsedCount < 0 {
		c.UsedCount = 0
	}
	if c.ValidFrom != nil && c.ValidUntil != nil && c.ValidFrom.After(*c.ValidUntil) {
		return common.ValidationError("coupon %s starts after it ends", c.Code)
	}
	for _, l := range c.AllowedVipLevels {
		if !vip.Level(l).Valid() {
			return common.ValidationError("coupon %s allows unknown VIP level %d", c.Code, l)
		}
	}
	if len(c.AllowedVipLevels) > 0 {
		sort.Ints(c.AllowedVipLevels)
	}
	blocked := c.BlockedUserIDs[:0]
	for _, id := range c.BlockedUserIDs {
		if id = strings.TrimSpace(id); id != "" {
			blocked = append(blocked, id)
		}
	}
	c.BlockedUserIDs = blocked
	return nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
