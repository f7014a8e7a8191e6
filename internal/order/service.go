// Package order manages placed orders: status changes, soft removal, bulk fulfilment and the
// customer's order history.
package order

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/events"
	"github.com/noah-isme/liff-store/internal/member"
	"github.com/noah-isme/liff-store/internal/obs"
)

// Service orchestrates order management.
type Service struct {
	Store  db.Store
	Events *events.Bus
	Policy member.Policy
	Log    zerolog.Logger
}

// effects collects what a unit of work must publish once it has committed.
type effects struct {
	events      []db.DomainEvent
	changes     []member.Change
	transitions [][2]db.OrderStatus
}

func (e *effects) record(ctx context.Context, bus *events.Bus, q db.Querier, topic, id string, payload any) error {
	if bus == nil {
		return nil
	}
	ev, err := bus.Record(ctx, q, topic, id, payload)
	if err != nil {
		return err
	}
	e.events = append(e.events, ev)
	return nil
}

func (s *Service) publish(ctx context.Context, fx *effects) {
	for _, t := range fx.transitions {
		obs.ObserveOrderTransition(string(t[0]), string(t[1]))
	}
	for _, c := range fx.changes {
		if c.Moved() {
			obs.ObserveVIPLevelChange(int(c.From), int(c.To))
		}
	}
	if err := s.Events.Dispatch(ctx, fx.events...); err != nil {
		s.Log.Warn().Err(err).Msg("order event dispatch failed")
	}
}

// ListForUser returns a customer's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]db.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, common.ValidationError("userId is required")
	}
	return s.list(ctx, db.OrderFilter{UserID: userID})
}

// List returns one page of orders, newest first, and the number of orders matching the filter.
func (s *Service) List(ctx context.Context, status string, page, perPage int) ([]db.Order, int, error) {
	f := db.OrderFilter{Status: db.OrderStatus(strings.TrimSpace(status))}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, common.ValidationError("unknown order status %q", status)
	}
	all, err := s.list(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if perPage <= 0 || start >= len(all) {
		if perPage <= 0 {
			return all, len(all), nil
		}
		return []db.Order{}, len(all), nil
	}
	end := min(start+perPage, len(all))
	return all[start:end], len(all), nil
}

func (s *Service) list(ctx context.Context, f db.OrderFilter) ([]db.Order, error) {
	orders, err := s.Store.ListOrders(ctx, f)
	if err != nil {
		return nil, common.PersistenceError("list orders", err)
	}
	if orders == nil {
		orders = []db.Order{}
	}
	return orders, nil
}

// Get loads one order.
func (s *Service) Get(ctx context.Context, id int64) (db.Order, error) {
	o, err := s.Store.GetOrder(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return db.Order{}, common.NotFoundError("order %d not found", id)
	}
	if err != nil {
		return db.Order{}, common.PersistenceError("load order", err)
	}
	return o, nil
}

func loadForUpdate(ctx context.Context, q db.Querier, id int64) (db.Order, error) {
	o, err := q.GetOrderForUpdate(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return db.Order{}, common.NotFoundError("order %d not found", id)
	}
	if err != nil {
		return db.Order{}, common.PersistenceError("load order", err)
	}
	return o, nil
}

// move changes o's status and applies the side effects of entering the new status. The caller
// validates the move and persists o.
func (s *Service) move(ctx context.Context, q db.Querier, o *db.Order, to db.OrderStatus, fx *effects) error {
	from := o.Status
	if from == to {
		return nil
	}
	o.Status = to
	switch to {
	case db.OrderStatusPaid:
		o.Paid = true
	case db.OrderStatusUnpaid:
		o.Paid = false
	}
	if to == db.OrderStatusPaid {
		if err := s.accrue(ctx, q, o, fx); err != nil {
			return err
		}
		if err := fx.record(ctx, s.Events, q, events.TopicOrderPaid, o.OrderNo(), map[string]any{
			"orderId": o.OrderNo(), "userId": o.UserID, "total": o.Total,
		}); err != nil {
			return err
		}
	}
	if to == db.OrderStatusCancel {
		if s.Policy.ReverseOnCancel {
			change, err := member.ReverseOrder(ctx, q, o)
			if err != nil {
				return err
			}
			if err := s.noteChange(ctx, q, change, fx); err != nil {
				return err
			}
		}
		if err := fx.record(ctx, s.Events, q, events.TopicOrderCanceled, o.OrderNo(), map[string]any{
			"orderId": o.OrderNo(), "userId": o.UserID, "from": from,
		}); err != nil {
			return err
		}
	}
	fx.transitions = append(fx.transitions, [2]db.OrderStatus{from, to})
	return fx.record(ctx, s.Events, q, events.TopicOrderStatusChanged, o.OrderNo(), map[string]any{
		"orderId": o.OrderNo(), "from": from, "to": to,
	})
}

func (s *Service) accrue(ctx context.Context, q db.Querier, o *db.Order, fx *effects) error {
	change, err := member.AccrueOrder(ctx, q, o)
	if err != nil {
		return err
	}
	return s.noteChange(ctx, q, change, fx)
}

func (s *Service) noteChange(ctx context.Context, q db.Querier, change member.Change, fx *effects) error {
	fx.changes = append(fx.changes, change)
	if !change.Moved() {
		return nil
	}
	return fx.record(ctx, s.Events, q, events.TopicMemberVIPChanged, change.UserID, change)
}

// SetStatus moves an order to a new status on an admin's request.
func (s *Service) SetStatus(ctx context.Context, id int64, to db.OrderStatus) (db.Order, error) {
	to = db.OrderStatus(strings.ToLower(strings.TrimSpace(string(to))))
	var (
		out db.Order
		fx  effects
	)
	err := s.Store.InTx(ctx, func(q db.Querier) error {
		o, err := loadForUpdate(ctx, q, id)
		if err != nil {
			return err
		}
		if err := CheckTransition(o.Status, to); err != nil {
			return err
		}
		if o.Status == to {
			out = o
			return nil
		}
		if err := s.move(ctx, q, &o, to, &fx); err != nil {
			return err
		}
		out, err = s.save(ctx, q, o)
		return err
	})
	if err != nil {
		return db.Order{}, err
	}
	s.publish(ctx, &fx)
	s.Log.Info().Str("order_id", out.OrderNo()).Str("status", string(out.Status)).Msg("order status changed")
	return out, nil
}

// Remove soft-deletes an order by cancelling it. Only unpaid or already cancelled orders can
// be removed.
func (s *Service) Remove(ctx context.Context, id int64) (db.Order, error) {
	var (
		out db.Order
		fx  effects
	)
	err := s.Store.InTx(ctx, func(q db.Querier) error {
		o, err := loadForUpdate(ctx, q, id)
		if err != nil {
			return err
		}
		if !Removable(o.Status) {
			return common.BusinessRuleError("only unpaid or cancelled orders can be removed (order is %s)", o.Status)
		}
		if o.Status == db.OrderStatusCancel {
			out = o
			return nil
		}
		if err := s.move(ctx, q, &o, db.OrderStatusCancel, &fx); err != nil {
			return err
		}
		out, err = s.save(ctx, q, o)
		return err
	})
	if err != nil {
		return db.Order{}, err
	}
	s.publish(ctx, &fx)
	return out, nil
}

// BulkShip marks every paid or unshipped order in ids as shipped and returns how many moved.
// Orders in other states and unknown ids are skipped.
func (s *Service) BulkShip(ctx context.Context, ids []int64) (int, error) {
	return s.bulk(ctx, ids, Shippable, db.OrderStatusShipped)
}

// BulkComplete marks every shipped order in ids as done.
func (s *Service) BulkComplete(ctx context.Context, ids []int64) (int, error) {
	return s.bulk(ctx, ids, func(st db.OrderStatus) bool { return st == db.OrderStatusShipped }, db.OrderStatusDone)
}

func (s *Service) bulk(ctx context.Context, ids []int64, eligible func(db.OrderStatus) bool, to db.OrderStatus) (int, error) {
	if len(ids) == 0 {
		return 0, common.ValidationError("ids must not be empty")
	}
	var (
		updated int
		fx      effects
	)
	err := s.Store.InTx(ctx, func(q db.Querier) error {
		seen := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			o, err := q.GetOrderForUpdate(ctx, id)
			if errors.Is(err, db.ErrNotFound) {
				continue
			}
			if err != nil {
				return common.PersistenceError("load order", err)
			}
			if !eligible(o.Status) {
				continue
			}
			if err := s.move(ctx, q, &o, to, &fx); err != nil {
				return err
			}
			if _, err := s.save(ctx, q, o); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.publish(ctx, &fx)
	s.Log.Info().Int("updated", updated).Str("status", string(to)).Msg("bulk order update")
	return updated, nil
}

// Patch is the admin edit of an order's operational flags. Nil fields are left untouched.
type Patch struct {
	Served *bool   `json:"served"`
	Paid   *bool   `json:"paid"`
	Note   *string `json:"note" validate:"omitempty,max=500"`
}

// Update applies p. Marking an unpaid order paid moves it to paid, and clearing the flag on a
// paid order moves it back to unpaid; both follow the status rules.
func (s *Service) Update(ctx context.Context, id int64, p Patch) (db.Order, error) {
	if err := common.Validate(p); err != nil {
		return db.Order{}, err
	}
	var (
		out db.Order
		fx  effects
	)
	err := s.Store.InTx(ctx, func(q db.Querier) error {
		o, err := loadForUpdate(ctx, q, id)
		if err != nil {
			return err
		}
		if p.Served != nil {
			o.Served = *p.Served
		}
		if p.Note != nil {
			o.Note = strings.TrimSpace(*p.Note)
		}
		if p.Paid != nil {
			switch {
			case *p.Paid && o.Status == db.OrderStatusUnpaid:
				if err := s.move(ctx, q, &o, db.OrderStatusPaid, &fx); err != nil {
					return err
				}
			case !*p.Paid && o.Status == db.OrderStatusPaid:
				if err := s.move(ctx, q, &o, db.OrderStatusUnpaid, &fx); err != nil {
					return err
				}
			case *p.Paid && o.Status == db.OrderStatusCancel:
				return common.BusinessRuleError("cancelled orders cannot be marked paid")
			default:
				o.Paid = *p.Paid
				if o.Paid {
					if err := s.accrue(ctx, q, &o, &fx); err != nil {
						return err
					}
				}
			}
		}
		out, err = s.save(ctx, q, o)
		return err
	})
	if err != nil {
		return db.Order{}, err
	}
	s.publish(ctx, &fx)
	return out, nil
}

func (s *Service) save(ctx context.Context, q db.Querier, o db.Order) (db.Order, error) {
	saved, err := q.UpdateOrder(ctx, o)
	if err != nil {
		return db.Order{}, common.PersistenceError("update order", err)
	}
	return saved, nil
}
