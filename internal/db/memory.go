package db

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. Transactions are serialised behind a mutex and run against a
// working copy that replaces the committed state only when fn succeeds. Stored values are
// copied on the way in and out so callers never share slices with the store.
//
// Code running inside InTx must use the Querier it is given; calling back into the Memory
// itself from fn deadlocks.
type Memory struct {
	mu  sync.Mutex
	st  *memState
	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{st: newMemState()}
}

var _ Store = (*Memory)(nil)

type memState struct {
	products    map[string]Product
	categories  []Category
	coupons     map[string]Coupon
	members     map[string]Member
	orders      map[int64]Order
	nextOrderID int64
	store       *StoreConfig
	settings    *AdminSettings
	carts       map[string]map[string]int
	events      []DomainEvent
}

func newMemState() *memState {
	return &memState{
		products:    map[string]Product{},
		coupons:     map[string]Coupon{},
		members:     map[string]Member{},
		orders:      map[int64]Order{},
		nextOrderID: 1,
		carts:       map[string]map[string]int{},
	}
}

func (s *memState) clone() *memState {
	out := &memState{
		products:    make(map[string]Product, len(s.products)),
		categories:  append([]Category(nil), s.categories...),
		coupons:     make(map[string]Coupon, len(s.coupons)),
		members:     make(map[string]Member, len(s.members)),
		orders:      make(map[int64]Order, len(s.orders)),
		nextOrderID: s.nextOrderID,
		store:       s.store,
		settings:    s.settings,
		carts:       make(map[string]map[string]int, len(s.carts)),
		events:      append([]DomainEvent(nil), s.events...),
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.coupons {
		out.coupons[k] = v
	}
	for k, v := range s.members {
		out.members[k] = v
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.carts {
		out.carts[k] = v
	}
	return out
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Memory) tx(ctx context.Context, fn func(q *memQ) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.st.clone()
	if err := fn(&memQ{st: work, now: m.now}); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (m *Memory) InTx(ctx context.Context, fn func(q Querier) error) error {
	return m.tx(ctx, func(q *memQ) error { return fn(q) })
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Events returns every persisted domain event in insertion order.
func (m *Memory) Events() []DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DomainEvent(nil), m.st.events...)
}

// Cart returns the last synced cart for userID.
func (m *Memory) Cart(userID string) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneCart(m.st.carts[userID])
}

func call[T any](ctx context.Context, m *Memory, fn func(q *memQ) (T, error)) (T, error) {
	var out T
	err := m.tx(ctx, func(q *memQ) error {
		var err error
		out, err = fn(q)
		return err
	})
	return out, err
}

func (m *Memory) ListProducts(ctx context.Context) ([]Product, error) {
	return call(ctx, m, func(q *memQ) ([]Product, error) { return q.ListProducts(ctx) })
}

func (m *Memory) GetProductsByNames(ctx context.Context, names []string) (map[string]Product, error) {
	return call(ctx, m, func(q *memQ) (map[string]Product, error) { return q.GetProductsByNames(ctx, names) })
}

func (m *Memory) UpsertProduct(ctx context.Context, p Product) (Product, error) {
	return call(ctx, m, func(q *memQ) (Product, error) { return q.UpsertProduct(ctx, p) })
}

func (m *Memory) ReplaceProducts(ctx context.Context, products []Product) error {
	return m.tx(ctx, func(q *memQ) error { return q.ReplaceProducts(ctx, products) })
}

func (m *Memory) DeleteProduct(ctx context.Context, name string) error {
	return m.tx(ctx, func(q *memQ) error { return q.DeleteProduct(ctx, name) })
}

func (m *Memory) ListCategories(ctx context.Context) ([]Category, error) {
	return call(ctx, m, func(q *memQ) ([]Category, error) { return q.ListCategories(ctx) })
}

func (m *Memory) ReplaceCategories(ctx context.Context, categories []Category) error {
	return m.tx(ctx, func(q *memQ) error { return q.ReplaceCategories(ctx, categories) })
}

func (m *Memory) ListCoupons(ctx context.Context) ([]Coupon, error) {
	return call(ctx, m, func(q *memQ) ([]Coupon, error) { return q.ListCoupons(ctx) })
}

func (m *Memory) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	return call(ctx, m, func(q *memQ) (Coupon, error) { return q.GetCouponByCode(ctx, code) })
}

func (m *Memory) GetCouponByCodeForUpdate(ctx context.Context, code string) (Coupon, error) {
	return m.GetCouponByCode(ctx, code)
}

func (m *Memory) UpsertCoupon(ctx context.Context, c Coupon) (Coupon, error) {
	return call(ctx, m, func(q *memQ) (Coupon, error) { return q.UpsertCoupon(ctx, c) })
}

func (m *Memory) ReplaceCoupons(ctx context.Context, coupons []Coupon) error {
	return m.tx(ctx, func(q *memQ) error { return q.ReplaceCoupons(ctx, coupons) })
}

func (m *Memory) IncrementCouponUsage(ctx context.Context, code string) error {
	return m.tx(ctx, func(q *memQ) error { return q.IncrementCouponUsage(ctx, code) })
}

func (m *Memory) CountOrdersByUserAndCoupon(ctx context.Context, userID, code string) (int64, error) {
	return call(ctx, m, func(q *memQ) (int64, error) { return q.CountOrdersByUserAndCoupon(ctx, userID, code) })
}

func (m *Memory) GetMember(ctx context.Context, userID string) (Member, error) {
	return call(ctx, m, func(q *memQ) (Member, error) { return q.GetMember(ctx, userID) })
}

func (m *Memory) GetMemberForUpdate(ctx context.Context, userID string) (Member, error) {
	return m.GetMember(ctx, userID)
}

func (m *Memory) InsertMember(ctx context.Context, mem Member) (Member, error) {
	return call(ctx, m, func(q *memQ) (Member, error) { return q.InsertMember(ctx, mem) })
}

func (m *Memory) UpdateMember(ctx context.Context, mem Member) (Member, error) {
	return call(ctx, m, func(q *memQ) (Member, error) { return q.UpdateMember(ctx, mem) })
}

func (m *Memory) ListMembers(ctx context.Context) ([]Member, error) {
	return call(ctx, m, func(q *memQ) ([]Member, error) { return q.ListMembers(ctx) })
}

func (m *Memory) InsertOrder(ctx context.Context, o Order) (Order, error) {
	return call(ctx, m, func(q *memQ) (Order, error) { return q.InsertOrder(ctx, o) })
}

func (m *Memory) GetOrder(ctx context.Context, id int64) (Order, error) {
	return call(ctx, m, func(q *memQ) (Order, error) { return q.GetOrder(ctx, id) })
}

func (m *Memory) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return m.GetOrder(ctx, id)
}

func (m *Memory) UpdateOrder(ctx context.Context, o Order) (Order, error) {
	return call(ctx, m, func(q *memQ) (Order, error) { return q.UpdateOrder(ctx, o) })
}

func (m *Memory) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	return call(ctx, m, func(q *memQ) ([]Order, error) { return q.ListOrders(ctx, f) })
}

func (m *Memory) ListOrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]Order, error) {
	return call(ctx, m, func(q *memQ) ([]Order, error) { return q.ListOrdersCreatedBetween(ctx, from, to) })
}

func (m *Memory) GetStoreConfig(ctx context.Context) (StoreConfig, error) {
	return call(ctx, m, func(q *memQ) (StoreConfig, error) { return q.GetStoreConfig(ctx) })
}

func (m *Memory) SaveStoreConfig(ctx context.Context, cfg StoreConfig) error {
	return m.tx(ctx, func(q *memQ) error { return q.SaveStoreConfig(ctx, cfg) })
}

func (m *Memory) IncrementProductPageViews(ctx context.Context, seed StoreConfig) (int64, error) {
	return call(ctx, m, func(q *memQ) (int64, error) { return q.IncrementProductPageViews(ctx, seed) })
}

func (m *Memory) GetAdminSettings(ctx context.Context) (AdminSettings, error) {
	return call(ctx, m, func(q *memQ) (AdminSettings, error) { return q.GetAdminSettings(ctx) })
}

func (m *Memory) SaveAdminSettings(ctx context.Context, s AdminSettings) error {
	return m.tx(ctx, func(q *memQ) error { return q.SaveAdminSettings(ctx, s) })
}

func (m *Memory) SaveCart(ctx context.Context, userID string, items map[string]int) error {
	return m.tx(ctx, func(q *memQ) error { return q.SaveCart(ctx, userID, items) })
}

func (m *Memory) InsertDomainEvent(ctx context.Context, e DomainEvent) error {
	return m.tx(ctx, func(q *memQ) error { return q.InsertDomainEvent(ctx, e) })
}

// memQ operates on one working copy of the state. It is only reachable through Memory.tx.
type memQ struct {
	st  *memState
	now func() time.Time
}

var _ Querier = (*memQ)(nil)

func (q *memQ) ListProducts(context.Context) ([]Product, error) {
	out := make([]Product, 0, len(q.st.products))
	for _, p := range q.st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sort != out[j].Sort {
			return out[i].Sort < out[j].Sort
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (q *memQ) GetProductsByNames(_ context.Context, names []string) (map[string]Product, error) {
	out := make(map[string]Product, len(names))
	for _, n := range names {
		if p, ok := q.st.products[n]; ok {
			out[n] = p
		}
	}
	return out, nil
}

func (q *memQ) UpsertProduct(_ context.Context, p Product) (Product, error) {
	p.UpdatedAt = q.now()
	q.st.products[p.Name] = p
	return p, nil
}

func (q *memQ) ReplaceProducts(ctx context.Context, products []Product) error {
	q.st.products = make(map[string]Product, len(products))
	for _, p := range products {
		if _, err := q.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (q *memQ) DeleteProduct(_ context.Context, name string) error {
	if _, ok := q.st.products[name]; !ok {
		return ErrNotFound
	}
	delete(q.st.products, name)
	return nil
}

func (q *memQ) ListCategories(context.Context) ([]Category, error) {
	out := append([]Category(nil), q.st.categories...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Sort != out[j].Sort {
			return out[i].Sort < out[j].Sort
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (q *memQ) ReplaceCategories(_ context.Context, categories []Category) error {
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		if _, dup := seen[c.ID]; dup {
			return ErrConflict
		}
		seen[c.ID] = struct{}{}
	}
	q.st.categories = append([]Category(nil), categories...)
	return nil
}

func (q *memQ) ListCoupons(context.Context) ([]Coupon, error) {
	out := make([]Coupon, 0, len(q.st.coupons))
	for _, c := range q.st.coupons {
		out = append(out, cloneCoupon(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (q *memQ) GetCouponByCode(_ context.Context, code string) (Coupon, error) {
	c, ok := q.st.coupons[code]
	if !ok {
		return Coupon{}, ErrNotFound
	}
	return cloneCoupon(c), nil
}

func (q *memQ) GetCouponByCodeForUpdate(ctx context.Context, code string) (Coupon, error) {
	return q.GetCouponByCode(ctx, code)
}

func (q *memQ) UpsertCoupon(_ context.Context, c Coupon) (Coupon, error) {
	now := q.now()
	if existing, ok := q.st.coupons[c.Code]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	q.st.coupons[c.Code] = cloneCoupon(c)
	return cloneCoupon(c), nil
}

func (q *memQ) ReplaceCoupons(ctx context.Context, coupons []Coupon) error {
	q.st.coupons = make(map[string]Coupon, len(coupons))
	for _, c := range coupons {
		if _, dup := q.st.coupons[c.Code]; dup {
			return ErrConflict
		}
		if _, err := q.UpsertCoupon(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (q *memQ) IncrementCouponUsage(_ context.Context, code string) error {
	c, ok := q.st.coupons[code]
	if !ok {
		return ErrNotFound
	}
	c = cloneCoupon(c)
	c.UsedCount++
	c.UpdatedAt = q.now()
	q.st.coupons[code] = c
	return nil
}

func (q *memQ) CountOrdersByUserAndCoupon(_ context.Context, userID, code string) (int64, error) {
	var n int64
	for _, o := range q.st.orders {
		if o.UserID == userID && o.CouponCode == code {
			n++
		}
	}
	return n, nil
}

func (q *memQ) GetMember(_ context.Context, userID string) (Member, error) {
	m, ok := q.st.members[userID]
	if !ok {
		return Member{}, ErrNotFound
	}
	return cloneMember(m), nil
}

func (q *memQ) GetMemberForUpdate(ctx context.Context, userID string) (Member, error) {
	return q.GetMember(ctx, userID)
}

func (q *memQ) InsertMember(_ context.Context, m Member) (Member, error) {
	if _, ok := q.st.members[m.UserID]; ok {
		return Member{}, ErrConflict
	}
	now := q.now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = m.CreatedAt
	q.st.members[m.UserID] = cloneMember(m)
	return cloneMember(m), nil
}

func (q *memQ) UpdateMember(_ context.Context, m Member) (Member, error) {
	existing, ok := q.st.members[m.UserID]
	if !ok {
		return Member{}, ErrNotFound
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = q.now()
	q.st.members[m.UserID] = cloneMember(m)
	return cloneMember(m), nil
}

func (q *memQ) ListMembers(context.Context) ([]Member, error) {
	out := make([]Member, 0, len(q.st.members))
	for _, m := range q.st.members {
		out = append(out, cloneMember(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (q *memQ) InsertOrder(_ context.Context, o Order) (Order, error) {
	if o.ID > 0 {
		if _, ok := q.st.orders[o.ID]; ok {
			return Order{}, ErrConflict
		}
	} else {
		o.ID = q.st.nextOrderID
	}
	if o.ID >= q.st.nextOrderID {
		q.st.nextOrderID = o.ID + 1
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = q.now()
	}
	if o.Status == "" {
		o.Status = OrderStatusUnpaid
	}
	o.UpdatedAt = o.CreatedAt
	q.st.orders[o.ID] = cloneOrder(o)
	return cloneOrder(o), nil
}

func (q *memQ) GetOrder(_ context.Context, id int64) (Order, error) {
	o, ok := q.st.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (q *memQ) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return q.GetOrder(ctx, id)
}

func (q *memQ) UpdateOrder(_ context.Context, o Order) (Order, error) {
	existing, ok := q.st.orders[o.ID]
	if !ok {
		return Order{}, ErrNotFound
	}
	updated := cloneOrder(existing)
	updated.Name = o.Name
	updated.Phone = o.Phone
	updated.Address = o.Address
	updated.Store = o.Store
	updated.VIPLevel = o.VIPLevel
	updated.Status = o.Status
	updated.Paid = o.Paid
	updated.Served = o.Served
	updated.Note = o.Note
	updated.Settled = o.Settled
	updated.SettledAt = cloneTime(o.SettledAt)
	updated.SpendAccrued = o.SpendAccrued
	updated.Blacklisted = o.Blacklisted
	updated.UpdatedAt = q.now()
	q.st.orders[o.ID] = updated
	return cloneOrder(updated), nil
}

func (q *memQ) sortedOrders(desc bool, keep func(Order) bool) []Order {
	out := make([]Order, 0, len(q.st.orders))
	for _, o := range q.st.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if desc {
			a, b = b, a
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func (q *memQ) ListOrders(_ context.Context, f OrderFilter) ([]Order, error) {
	out := q.sortedOrders(true, func(o Order) bool {
		if f.Status != "" && o.Status != f.Status {
			return false
		}
		return f.UserID == "" || o.UserID == f.UserID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Order{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (q *memQ) ListOrdersCreatedBetween(_ context.Context, from, to time.Time) ([]Order, error) {
	return q.sortedOrders(false, func(o Order) bool {
		return !o.CreatedAt.Before(from) && o.CreatedAt.Before(to)
	}), nil
}

func (q *memQ) GetStoreConfig(context.Context) (StoreConfig, error) {
	if q.st.store == nil {
		return StoreConfig{}, ErrNotFound
	}
	return *q.st.store, nil
}

func (q *memQ) SaveStoreConfig(_ context.Context, cfg StoreConfig) error {
	q.st.store = &cfg
	return nil
}

func (q *memQ) IncrementProductPageViews(_ context.Context, seed StoreConfig) (int64, error) {
	cfg := seed
	if q.st.store != nil {
		cfg = *q.st.store
	} else {
		cfg.ProductPageViews = 0
	}
	cfg.ProductPageViews++
	q.st.store = &cfg
	return cfg.ProductPageViews, nil
}

func (q *memQ) GetAdminSettings(context.Context) (AdminSettings, error) {
	if q.st.settings == nil {
		return AdminSettings{}, ErrNotFound
	}
	return *q.st.settings, nil
}

func (q *memQ) SaveAdminSettings(_ context.Context, s AdminSettings) error {
	q.st.settings = &s
	return nil
}

func (q *memQ) SaveCart(_ context.Context, userID string, items map[string]int) error {
	q.st.carts[userID] = cloneCart(items)
	return nil
}

func (q *memQ) InsertDomainEvent(_ context.Context, e DomainEvent) error {
	for _, existing := range q.st.events {
		if existing.ID == e.ID {
			return ErrConflict
		}
	}
	e.Payload = append([]byte(nil), e.Payload...)
	q.st.events = append(q.st.events, e)
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

func cloneCoupon(c Coupon) Coupon {
	c.ValidFrom = cloneTime(c.ValidFrom)
	c.ValidUntil = cloneTime(c.ValidUntil)
	c.UsageLimit = cloneInt(c.UsageLimit)
	c.PerUserLimit = cloneInt(c.PerUserLimit)
	if c.AllowedVipLevels != nil {
		c.AllowedVipLevels = append([]int(nil), c.AllowedVipLevels...)
	}
	if c.BlockedUserIDs != nil {
		c.BlockedUserIDs = append([]string(nil), c.BlockedUserIDs...)
	}
	return c
}

func cloneMember(m Member) Member {
	if m.Addresses != nil {
		m.Addresses = append([]Address(nil), m.Addresses...)
	}
	if m.Stores != nil {
		m.Stores = append([]PickupStore(nil), m.Stores...)
	}
	m.LastOrderAt = cloneTime(m.LastOrderAt)
	return m
}

func cloneOrder(o Order) Order {
	if o.Items != nil {
		o.Items = append([]OrderItem(nil), o.Items...)
	}
	o.SettledAt = cloneTime(o.SettledAt)
	return o
}

func cloneCart(items map[string]int) map[string]int {
	if items == nil {
		return nil
	}
	out := make(map[string]int, len(items))
	for k, v := range items {
		out[k] = v
	}
	return out
}
