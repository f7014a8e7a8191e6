// Package checkout places orders: it prices the cart against the catalog, applies VIP and
// coupon discounts, records coupon usage and VIP spend, all in one repository transaction.
package checkout

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/coupon"
	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/events"
	"github.com/noah-isme/liff-store/internal/lock"
	"github.com/noah-isme/liff-store/internal/member"
	"github.com/noah-isme/liff-store/internal/obs"
	"github.com/noah-isme/liff-store/internal/pricing"
	"github.com/noah-isme/liff-store/internal/storeconfig"
	"github.com/noah-isme/liff-store/internal/vip"
)

// CodeOrderingDisabled is returned while the store is in local mode with orders switched off.
const CodeOrderingDisabled = "ORDERING_DISABLED"

// Input is the checkout request body. Cart maps product name to quantity.
type Input struct {
	UserID        string         `json:"userId" validate:"required,max=128"`
	Cart          map[string]int `json:"cart" validate:"required,min=1,dive,keys,required,endkeys,min=1,max=999"`
	Name          string         `json:"name" validate:"max=80"`
	Phone         string         `json:"phone" validate:"max=32"`
	Address       string         `json:"address" validate:"max=300"`
	Store         string         `json:"store" validate:"max=200"`
	CouponCode    string         `json:"couponCode" validate:"max=64"`
	PaymentMethod string         `json:"paymentMethod"`
	Note          string         `json:"note" validate:"max=500"`
}

// Output is returned to the storefront after a successful checkout.
type Output struct {
	OrderID          string `json:"orderId"`
	ID               int64  `json:"id"`
	Status           string `json:"status"`
	Subtotal         int64  `json:"subtotal"`
	VIPDiscount      int64  `json:"vipDiscount"`
	CouponDiscount   int64  `json:"couponDiscount"`
	Total            int64  `json:"total"`
	CouponCode       string `json:"couponCode,omitempty"`
	CouponReasonCode string `json:"couponReasonCode,omitempty"`
	CouponReason     string `json:"couponReason,omitempty"`
	VIPLevel         int    `json:"vipLevel"`
	TotalSpent       int64  `json:"totalSpent"`
	PaymentMethod    string `json:"paymentMethod"`
}

// Service places orders.
type Service struct {
	Store   db.Store
	Locker  lock.Runner
	LockTTL time.Duration
	Events  *events.Bus
	Policy  member.Policy
	Log     zerolog.Logger
	Now     func() time.Time
}

// Create runs a checkout. Coupon rejections do not fail the order; the reason is reported in
// the Output and the order is priced without the coupon.
func (s *Service) Create(ctx context.Context, in Input) (Output, error) {
	if s == nil || s.Store == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	settings, err := storeconfig.Settings(ctx, s.Store)
	if err != nil {
		obs.ObserveCheckout("error")
		return Output{}, err
	}
	if !storeconfig.OrderingOpen(settings) {
		obs.ObserveCheckout("closed")
		return Output{}, common.NewAppError(CodeOrderingDisabled, "online ordering is currently closed", http.StatusServiceUnavailable, nil)
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.CouponCode = strings.TrimSpace(in.CouponCode)
	if err := common.Validate(in); err != nil {
		obs.ObserveCheckout("invalid")
		return Output{}, err
	}

	var (
		out     Output
		pending []db.DomainEvent
		change  member.Change
	)
	locker := s.Locker
	if locker == nil {
		locker = lock.Local{}
	}
	err = locker.WithLock(ctx, lock.MemberKey(in.UserID), s.lockTTL(), func(ctx context.Context) error {
		return s.Store.InTx(ctx, func(q db.Querier) error {
			var err error
			out, pending, change, err = s.place(ctx, q, in)
			return err
		})
	})
	if err != nil {
		if common.HasCode(err, common.CodeValidation) {
			obs.ObserveCheckout("invalid")
		} else {
			obs.ObserveCheckout("error")
		}
		return Output{}, err
	}

	result := "ok"
	if out.CouponReasonCode != "" {
		result = "coupon_rejected"
	}
	obs.ObserveCheckout(result)
	if change.Moved() {
		obs.ObserveVIPLevelChange(int(change.From), int(change.To))
	}
	if err := s.Events.Dispatch(ctx, pending...); err != nil {
		s.Log.Warn().Err(err).Str("order_id", out.OrderID).Msg("checkout event dispatch failed")
	}
	s.Log.Info().
		Str("order_id", out.OrderID).
		Str("member_id", in.UserID).
		Int64("total", out.Total).
		Str("coupon", out.CouponCode).
		Str("coupon_reason", out.CouponReasonCode).
		Msg("order placed")
	return out, nil
}

func (s *Service) place(ctx context.Context, q db.Querier, in Input) (Output, []db.DomainEvent, member.Change, error) {
	now := s.now()
	cart, err := normalizeCart(in.Cart)
	if err != nil {
		return Output{}, nil, member.Change{}, err
	}
	names := make([]string, 0, len(cart))
	for name := range cart {
		names = append(names, name)
	}
	sort.Strings(names)
	products, err := q.GetProductsByNames(ctx, names)
	if err != nil {
		return Output{}, nil, member.Change{}, common.PersistenceError("load products", err)
	}
	lines := make([]pricing.Line, 0, len(names))
	items := make([]db.OrderItem, 0, len(names))
	for _, name := range names {
		p, ok := products[name]
		if !ok || !p.Enabled {
			return Output{}, nil, member.Change{}, common.ValidationError("product %s is not available", name)
		}
		qty := cart[name]
		line := pricing.Line{ProductName: name, Qty: qty, UnitPrice: p.Price}
		lines = append(lines, line)
		items = append(items, db.OrderItem{ProductName: name, Qty: qty, Price: p.Price, SubTotal: line.Total()})
	}

	cfg, err := storeconfig.Store(ctx, q)
	if err != nil {
		return Output{}, nil, member.Change{}, err
	}
	payment, err := paymentMethod(in.PaymentMethod, cfg.PaymentMethods)
	if err != nil {
		return Output{}, nil, member.Change{}, err
	}
	m, err := member.Load(ctx, q, in.UserID, true)
	if err != nil {
		return Output{}, nil, member.Change{}, err
	}
	level := vip.Level(m.VIPLevel)
	if !level.Valid() {
		level = vip.LevelFor(m.TotalSpent)
	}

	eval := func(base pricing.Money) (coupon.Result, error) {
		res, err := coupon.Check(ctx, coupon.ForUpdate(q), coupon.Input{
			UserID:   in.UserID,
			Amount:   base,
			Code:     in.CouponCode,
			VIPLevel: level,
		}, now)
		if err != nil {
			return coupon.Result{}, err
		}
		coupon.RecordOutcome(res)
		return res, nil
	}
	quote, err := pricing.PriceOrder(lines, level, in.CouponCode, eval, pricing.Flags{
		EnableVip:     cfg.EnableVip,
		EnableCoupons: cfg.EnableCoupons,
	})
	if err != nil {
		return Output{}, nil, member.Change{}, err
	}

	order := db.Order{
		UserID:         in.UserID,
		Name:           firstNonEmpty(in.Name, m.Name),
		Phone:          firstNonEmpty(in.Phone, m.Phone),
		Address:        strings.TrimSpace(in.Address),
		Store:          strings.TrimSpace(in.Store),
		Items:          items,
		Subtotal:       quote.Subtotal,
		VIPLevel:       int(level),
		VIPDiscount:    quote.VIPDiscount,
		CouponCode:     quote.AppliedCouponCode,
		CouponDiscount: quote.CouponDiscount,
		Total:          quote.Total,
		PaymentMethod:  payment,
		Status:         db.OrderStatusUnpaid,
		Note:           strings.TrimSpace(in.Note),
		Blacklisted:    m.Blacklisted,
		CreatedAt:      now,
	}
	var change member.Change
	if s.Policy.Mode != member.AccrueOnPaid {
		change = member.AddSpend(&m, order.Total)
		order.SpendAccrued = true
	}
	order, err = q.InsertOrder(ctx, order)
	if err != nil {
		return Output{}, nil, member.Change{}, common.PersistenceError("insert order", err)
	}
	if quote.CouponApplied() {
		if err := q.IncrementCouponUsage(ctx, quote.AppliedCouponCode); err != nil {
			return Output{}, nil, member.Change{}, common.PersistenceError("record coupon usage", err)
		}
	}

	if strings.TrimSpace(in.Name) != "" {
		m.Name = strings.TrimSpace(in.Name)
	}
	if strings.TrimSpace(in.Phone) != "" {
		m.Phone = strings.TrimSpace(in.Phone)
	}
	m.LastOrderAt = &now
	m, err = q.UpdateMember(ctx, m)
	if err != nil {
		return Output{}, nil, member.Change{}, common.PersistenceError("update member", err)
	}

	var pending []db.DomainEvent
	if s.Events != nil {
		ev, err := s.Events.Record(ctx, q, events.TopicOrderCreated, order.OrderNo(), map[string]any{
			"orderId":        order.OrderNo(),
			"userId":         order.UserID,
			"total":          order.Total,
			"couponCode":     order.CouponCode,
			"couponDiscount": order.CouponDiscount,
			"vipDiscount":    order.VIPDiscount,
		})
		if err != nil {
			return Output{}, nil, member.Change{}, err
		}
		pending = append(pending, ev)
		if change.Moved() {
			ev, err := s.Events.Record(ctx, q, events.TopicMemberVIPChanged, m.UserID, change)
			if err != nil {
				return Output{}, nil, member.Change{}, err
			}
			pending = append(pending, ev)
		}
	}

	return Output{
		OrderID:          order.OrderNo(),
		ID:               order.ID,
		Status:           string(order.Status),
		Subtotal:         quote.Subtotal,
		VIPDiscount:      quote.VIPDiscount,
		CouponDiscount:   quote.CouponDiscount,
		Total:            quote.Total,
		CouponCode:       quote.AppliedCouponCode,
		CouponReasonCode: quote.CouponReasonCode,
		CouponReason:     quote.CouponReason,
		VIPLevel:         m.VIPLevel,
		TotalSpent:       m.TotalSpent,
		PaymentMethod:    payment,
	}, pending, change, nil
}

// maxLineQty bounds a single order line after keys that only differ by whitespace are merged.
const maxLineQty = 999

// normalizeCart trims product names and sums the quantities of keys that name the same product.
func normalizeCart(raw map[string]int) (map[string]int, error) {
	cart := make(map[string]int, len(raw))
	for name, qty := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, common.ValidationError("cart contains an empty product name")
		}
		cart[name] += qty
		if cart[name] > maxLineQty {
			return nil, common.ValidationError("quantity of %s exceeds %d", name, maxLineQty)
		}
	}
	return cart, nil
}

// paymentMethod defaults to cash and rejects methods the store has switched off.
func paymentMethod(requested string, enabled db.PaymentMethods) (string, error) {
	method := strings.TrimSpace(requested)
	if method == "" {
		method = "cash"
	}
	allowed := map[string]bool{
		"cash":         enabled.Cash,
		"linePay":      enabled.LinePay,
		"card":         enabled.Card,
		"homeDelivery": enabled.HomeDelivery,
		"cod":          enabled.COD,
		"cvsCode":      enabled.CVSCode,
	}
	on, known := allowed[method]
	if !known {
		return "", common.ValidationError("unknown payment method %s", method)
	}
	if !on {
		return "", common.ValidationError("payment method %s is not available", method)
	}
	return method, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return 10 * time.Second
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
