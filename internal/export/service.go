// Package export produces the back-office reports: daily revenue, the end-of-day settlement, the
// packing list and the best sellers.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/events"
	"github.com/noah-isme/liff-store/internal/lock"
)

// DateLayout is the day format accepted and reported by the export endpoints.
const DateLayout = "2006-01-02"

// PackingHeader is the first row of the packing list CSV.
var PackingHeader = []string{"訂單編號", "客戶名稱", "電話", "地址", "品項", "金額", "狀態"}

// Service builds reports over the order book.
type Service struct {
	Store    db.Store
	Locker   lock.Runner
	LockTTL  time.Duration
	Events   *events.Bus
	R        redis.UniversalClient
	TTL      time.Duration
	Location *time.Location
	Log      zerolog.Logger
	Now      func() time.Time
}

// Summary aggregates the paid orders of one day.
type Summary struct {
	Date                string     `json:"date"`
	TotalRevenue        int64      `json:"totalRevenue"`
	TotalOrders         int        `json:"totalOrders"`
	TotalItems          int        `json:"totalItems"`
	TotalVIPDiscount    int64      `json:"totalVipDiscount"`
	TotalCouponDiscount int64      `json:"totalCouponDiscount"`
	Orders              []db.Order `json:"orders"`
}

// Settlement is the result of an export-and-settle run.
type Settlement struct {
	Summary
	SettledAt time.Time `json:"settledAt"`
}

// TopProduct is one best-seller row.
type TopProduct struct {
	Name   string `json:"name"`
	Qty    int    `json:"qty"`
	Amount int64  `json:"amount"`
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) loc() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.Local
}

// ParseDay resolves a YYYY-MM-DD string in the store's time zone. An empty string means today.
func (s *Service) ParseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.dayStart(s.now()), nil
	}
	day, err := time.ParseInLocation(DateLayout, raw, s.loc())
	if err != nil {
		return time.Time{}, common.ValidationError("date must be YYYY-MM-DD")
	}
	return day, nil
}

func (s *Service) dayStart(t time.Time) time.Time {
	t = t.In(s.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc())
}

func (s *Service) ordersOn(ctx context.Context, q db.Querier, day time.Time) ([]db.Order, error) {
	from := s.dayStart(day)
	rows, err := q.ListOrdersCreatedBetween(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, common.PersistenceError("list orders", err)
	}
	return rows, nil
}

func summarize(day time.Time, orders []db.Order) Summary {
	sum := Summary{Date: day.Format(DateLayout), Orders: []db.Order{}}
	for _, o := range orders {
		if !o.IsPaid() {
			continue
		}
		sum.Orders = append(sum.Orders, o)
		sum.TotalRevenue += o.Total
		sum.TotalItems += len(o.Items)
		sum.TotalVIPDiscount += o.VIPDiscount
		sum.TotalCouponDiscount += o.CouponDiscount
	}
	sum.TotalOrders = len(sum.Orders)
	return sum
}

// DailyRevenue sums the paid orders created on day.
func (s *Service) DailyRevenue(ctx context.Context, day time.Time) (Summary, error) {
	day = s.dayStart(day)
	orders, err := s.ordersOn(ctx, s.Store, day)
	if err != nil {
		return Summary{}, err
	}
	return summarize(day, orders), nil
}

// ExportAndSettle marks every paid order of today as settled and returns the day's summary.
// Runs are serialised through the settlement lock.
func (s *Service) ExportAndSettle(ctx context.Context) (Settlement, error) {
	locker := s.Locker
	if locker == nil {
		locker = lock.Local{}
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	var (
		out Settlement
		evs []db.DomainEvent
	)
	err := locker.WithLock(ctx, lock.SettleKey, ttl, func(ctx context.Context) error {
		return s.Store.InTx(ctx, func(q db.Querier) error {
			now := s.now()
			day := s.dayStart(now)
			orders, err := s.ordersOn(ctx, q, day)
			if err != nil {
				return err
			}
			sum := summarize(day, orders)
			if sum.TotalOrders == 0 {
				return common.ValidationError("no paid orders today")
			}
			ids := make([]int64, 0, len(sum.Orders))
			for i, o := range sum.Orders {
				if !o.Settled || o.SettledAt == nil {
					o.Settled = true
					o.SettledAt = &now
					if o, err = q.UpdateOrder(ctx, o); err != nil {
						return common.PersistenceError("settle order", err)
					}
					sum.Orders[i] = o
				}
				ids = append(ids, o.ID)
			}
			if s.Events != nil {
				ev, err := s.Events.Record(ctx, q, events.TopicOrdersSettled, sum.Date, map[string]any{
					"date":         sum.Date,
					"orderIds":     ids,
					"totalRevenue": sum.TotalRevenue,
					"settledAt":    now,
				})
				if err != nil {
					return err
				}
				evs = append(evs, ev)
			}
			out = Settlement{Summary: sum, SettledAt: now}
			return nil
		})
	})
	if errors.Is(err, lock.ErrTimeout) {
		return Settlement{}, common.BusinessRuleError("a settlement is already running")
	}
	if err != nil {
		return Settlement{}, err
	}
	if err := s.Events.Dispatch(ctx, evs...); err != nil {
		s.Log.Warn().Err(err).Msg("settlement event dispatch failed")
	}
	s.Log.Info().Str("date", out.Date).Int("orders", out.TotalOrders).Int64("revenue", out.TotalRevenue).Msg("orders settled")
	return out, nil
}

// WritePackingList writes the CSV packing list of day's non-cancelled orders to w, prefixed
// with a UTF-8 byte order mark.
func (s *Service) WritePackingList(ctx context.Context, w io.Writer, day time.Time) error {
	orders, err := s.ordersOn(ctx, s.Store, day)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(PackingHeader); err != nil {
		return err
	}
	for _, o := range orders {
		if o.Status == db.OrderStatusCancel {
			continue
		}
		address := o.Address
		if address == "" {
			address = o.Store
		}
		if err := cw.Write([]string{
			o.OrderNo(),
			o.Name,
			o.Phone,
			address,
			ItemsText(o.Items),
			strconv.FormatInt(o.Total, 10),
			string(o.Status),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ItemsText renders order lines as "namexqty" joined by " / ".
func ItemsText(items []db.OrderItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%sx%d", it.ProductName, it.Qty))
	}
	return strings.Join(parts, " / ")
}

// TopProducts ranks products over all non-cancelled orders by quantity, then by amount.
func (s *Service) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = 10
	}
	key := "export:top:" + strconv.Itoa(limit)
	if rows, ok := s.cached(ctx, key); ok {
		return rows, nil
	}
	orders, err := s.Store.ListOrders(ctx, db.OrderFilter{})
	if err != nil {
		return nil, common.PersistenceError("list orders", err)
	}
	byName := make(map[string]*TopProduct)
	for _, o := range orders {
		if o.Status == db.OrderStatusCancel {
			continue
		}
		for _, it := range o.Items {
			if it.ProductName == "" {
				continue
			}
			row, ok := byName[it.ProductName]
			if !ok {
				row = &TopProduct{Name: it.ProductName}
				byName[it.ProductName] = row
			}
			row.Qty += it.Qty
			row.Amount += int64(it.Qty) * it.Price
		}
	}
	rows := make([]TopProduct, 0, len(byName))
	for _, row := range byName {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Qty != rows[j].Qty {
			return rows[i].Qty > rows[j].Qty
		}
		if rows[i].Amount != rows[j].Amount {
			return rows[i].Amount > rows[j].Amount
		}
		return rows[i].Name < rows[j].Name
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	s.store(ctx, key, rows)
	return rows, nil
}

func (s *Service) cached(ctx context.Context, key string) ([]TopProduct, bool) {
	if s.R == nil || s.TTL <= 0 {
		return nil, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var rows []TopProduct
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
