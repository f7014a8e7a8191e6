package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries implements Querier with hand-written SQL over pgx.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

var _ Querier = (*Queries)(nil)

const uniqueViolation = "23505"

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// --- products -----------------------------------------------------------------------------

const productColumns = `name, price, stock, enabled, sort, category, image, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.Name, &p.Price, &p.Stock, &p.Enabled, &p.Sort, &p.Category, &p.Image, &p.UpdatedAt)
	return p, err
}

func (q *Queries) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY sort, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) GetProductsByNames(ctx context.Context, names []string) (map[string]Product, error) {
	out := make(map[string]Product, len(names))
	if len(names) == 0 {
		return out, nil
	}
	rows, err := q.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.Name] = p
	}
	return out, rows.Err()
}

func (q *Queries) UpsertProduct(ctx context.Context, p Product) (Product, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO products (name, price, stock, enabled, sort, category, image, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (name) DO UPDATE SET
    price = EXCLUDED.price,
    stock = EXCLUDED.stock,
    enabled = EXCLUDED.enabled,
    sort = EXCLUDED.sort,
    category = EXCLUDED.category,
    image = EXCLUDED.image,
    updated_at = now()
RETURNING `+productColumns,
		p.Name, p.Price, p.Stock, p.Enabled, p.Sort, p.Category, p.Image)
	out, err := scanProduct(row)
	return out, mapErr(err)
}

func (q *Queries) ReplaceProducts(ctx context.Context, products []Product) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM products`); err != nil {
		return err
	}
	for _, p := range products {
		if _, err := q.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queries) DeleteProduct(ctx context.Context, name string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM products WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name, sort FROM product_categories ORDER BY sort, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Sort); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) ReplaceCategories(ctx context.Context, categories []Category) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM product_categories`); err != nil {
		return err
	}
	for _, c := range categories {
		if _, err := q.db.Exec(ctx, `INSERT INTO product_categories (id, name, sort) VALUES ($1, $2, $3)`, c.ID, c.Name, c.Sort); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// --- coupons ------------------------------------------------------------------------------

const couponColumns = `code, description, discount_type, discount_value, max_discount, min_amount,
    valid_from, valid_until, usage_limit, used_count, per_user_limit, allowed_vip_levels,
    blocked_user_ids, is_active, created_at, updated_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var (
		c            Coupon
		usageLimit   *int32
		perUserLimit *int32
		levels       []int32
	)
	err := row.Scan(&c.Code, &c.Description, &c.DiscountType, &c.DiscountValue, &c.MaxDiscount, &c.MinAmount,
		&c.ValidFrom, &c.ValidUntil, &usageLimit, &c.UsedCount, &perUserLimit, &levels,
		&c.BlockedUserIDs, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Coupon{}, err
	}
	c.UsageLimit = intPtr(usageLimit)
	c.PerUserLimit = intPtr(perUserLimit)
	if len(levels) > 0 {
		c.AllowedVipLevels = make([]int, len(levels))
		for i, l := range levels {
			c.AllowedVipLevels[i] = int(l)
		}
	}
	return c, nil
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func int32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

func int32Slice(values []int) []int32 {
	out := make([]int32, len(values))
	for i, v := range values {
		out[i] = int32(v)
	}
	return out
}

func (q *Queries) ListCoupons(ctx context.Context) ([]Coupon, error) {
	rows, err := q.db.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	c, err := scanCoupon(q.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	return c, mapErr(err)
}

func (q *Queries) GetCouponByCodeForUpdate(ctx context.Context, code string) (Coupon, error) {
	c, err := scanCoupon(q.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1 FOR UPDATE`, code))
	return c, mapErr(err)
}

func (q *Queries) UpsertCoupon(ctx context.Context, c Coupon) (Coupon, error) {
	blocked := c.BlockedUserIDs
	if blocked == nil {
		blocked = []string{}
	}
	row := q.db.QueryRow(ctx, `
INSERT INTO coupons (code, description, discount_type, discount_value, max_discount, min_amount,
    valid_from, valid_until, usage_limit, used_count, per_user_limit, allowed_vip_levels,
    blocked_user_ids, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
ON CONFLICT (code) DO UPDATE SET
    description = EXCLUDED.description,
    discount_type = EXCLUDED.discount_type,
    discount_value = EXCLUDED.discount_value,
    max_discount = EXCLUDED.max_discount,
    min_amount = EXCLUDED.min_amount,
    valid_from = EXCLUDED.valid_from,
    valid_until = EXCLUDED.valid_until,
    usage_limit = EXCLUDED.usage_limit,
    used_count = EXCLUDED.used_count,
    per_user_limit = EXCLUDED.per_user_limit,
    allowed_vip_levels = EXCLUDED.allowed_vip_levels,
    blocked_user_ids = EXCLUDED.blocked_user_ids,
    is_active = EXCLUDED.is_active,
    updated_at = now()
RETURNING `+couponColumns,
		c.Code, c.Description, c.DiscountType, c.DiscountValue, c.MaxDiscount, c.MinAmount,
		c.ValidFrom, c.ValidUntil, int32Ptr(c.UsageLimit), c.UsedCount, int32Ptr(c.PerUserLimit),
		int32Slice(c.AllowedVipLevels), blocked, c.IsActive)
	out, err := scanCoupon(row)
	return out, mapErr(err)
}

func (q *Queries) ReplaceCoupons(ctx context.Context, coupons []Coupon) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM coupons`); err != nil {
		return err
	}
	for _, c := range coupons {
		if _, err := q.UpsertCoupon(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queries) IncrementCouponUsage(ctx context.Context, code string) error {
	tag, err := q.db.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1, updated_at = now() WHERE code = $1`, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) CountOrdersByUserAndCoupon(ctx context.Context, userID, code string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1 AND coupon_code = $2`, userID, code).Scan(&n)
	return n, err
}

// --- members ------------------------------------------------------------------------------

const memberColumns = `user_id, name, phone, total_spent, vip_level, addresses, stores,
    last_used_address_id, last_used_store_id, blacklisted, created_at, updated_at, last_order_at`

func scanMember(row pgx.Row) (Member, error) {
	var (
		m         Member
		addresses []byte
		stores    []byte
	)
	err := row.Scan(&m.UserID, &m.Name, &m.Phone, &m.TotalSpent, &m.VIPLevel, &addresses, &stores,
		&m.LastUsedAddressID, &m.LastUsedStoreID, &m.Blacklisted, &m.CreatedAt, &m.UpdatedAt, &m.LastOrderAt)
	if err != nil {
		return Member{}, err
	}
	if err := unmarshalJSON(addresses, &m.Addresses); err != nil {
		return Member{}, fmt.Errorf("decode addresses: %w", err)
	}
	if err := unmarshalJSON(stores, &m.Stores); err != nil {
		return Member{}, fmt.Errorf("decode stores: %w", err)
	}
	return m, nil
}

func (q *Queries) GetMember(ctx context.Context, userID string) (Member, error) {
	m, err := scanMember(q.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE user_id = $1`, userID))
	return m, mapErr(err)
}

func (q *Queries) GetMemberForUpdate(ctx context.Context, userID string) (Member, error) {
	m, err := scanMember(q.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE user_id = $1 FOR UPDATE`, userID))
	return m, mapErr(err)
}

func (q *Queries) InsertMember(ctx context.Context, m Member) (Member, error) {
	addresses, stores, err := memberJSON(m)
	if err != nil {
		return Member{}, err
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	row := q.db.QueryRow(ctx, `
INSERT INTO members (user_id, name, phone, total_spent, vip_level, addresses, stores,
    last_used_address_id, last_used_store_id, blacklisted, created_at, updated_at, last_order_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11, $12)
ON CONFLICT (user_id) DO NOTHING
RETURNING `+memberColumns,
		m.UserID, m.Name, m.Phone, m.TotalSpent, m.VIPLevel, addresses, stores,
		m.LastUsedAddressID, m.LastUsedStoreID, m.Blacklisted, createdAt, m.LastOrderAt)
	out, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, ErrConflict
	}
	return out, mapErr(err)
}

func (q *Queries) UpdateMember(ctx context.Context, m Member) (Member, error) {
	addresses, stores, err := memberJSON(m)
	if err != nil {
		return Member{}, err
	}
	row := q.db.QueryRow(ctx, `
UPDATE members SET
    name = $2,
    phone = $3,
    total_spent = $4,
    vip_level = $5,
    addresses = $6,
    stores = $7,
    last_used_address_id = $8,
    last_used_store_id = $9,
    blacklisted = $10,
    last_order_at = $11,
    updated_at = now()
WHERE user_id = $1
RETURNING `+memberColumns,
		m.UserID, m.Name, m.Phone, m.TotalSpent, m.VIPLevel, addresses, stores,
		m.LastUsedAddressID, m.LastUsedStoreID, m.Blacklisted, m.LastOrderAt)
	out, err := scanMember(row)
	return out, mapErr(err)
}

func (q *Queries) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := q.db.Query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY created_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func memberJSON(m Member) ([]byte, []byte, error) {
	addresses, err := marshalJSON(m.Addresses)
	if err != nil {
		return nil, nil, err
	}
	stores, err := marshalJSON(m.Stores)
	if err != nil {
		return nil, nil, err
	}
	return addresses, stores, nil
}

// --- orders -------------------------------------------------------------------------------

const orderColumns = `id, user_id, name, phone, address, store, items, subtotal, vip_level,
    vip_discount, coupon_code, coupon_discount, total, payment_method, status, paid, served,
    note, settled, settled_at, spend_accrued, blacklisted, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		items  []byte
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Name, &o.Phone, &o.Address, &o.Store, &items, &o.Subtotal, &o.VIPLevel,
		&o.VIPDiscount, &o.CouponCode, &o.CouponDiscount, &o.Total, &o.PaymentMethod, &status, &o.Paid, &o.Served,
		&o.Note, &o.Settled, &o.SettledAt, &o.SpendAccrued, &o.Blacklisted, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Status = OrderStatus(status)
	if err := unmarshalJSON(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("decode order items: %w", err)
	}
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// InsertOrder stores a new order. A zero ID is assigned from the sequence; a preset ID (legacy
// imports) is kept and the sequence is moved past it.
func (q *Queries) InsertOrder(ctx context.Context, o Order) (Order, error) {
	items, err := marshalJSON(o.Items)
	if err != nil {
		return Order{}, err
	}
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	args := []any{o.UserID, o.Name, o.Phone, o.Address, o.Store, items, o.Subtotal, o.VIPLevel,
		o.VIPDiscount, o.CouponCode, o.CouponDiscount, o.Total, o.PaymentMethod, string(o.Status), o.Paid, o.Served,
		o.Note, o.Settled, o.SettledAt, o.SpendAccrued, o.Blacklisted, createdAt}
	cols := `user_id, name, phone, address, store, items, subtotal, vip_level, vip_discount, coupon_code,
    coupon_discount, total, payment_method, status, paid, served, note, settled, settled_at, spend_accrued,
    blacklisted, created_at, updated_at`
	values := `$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $22`
	if o.ID > 0 {
		cols = "id, " + cols
		values = "$23, " + values
		args = append(args, o.ID)
	}
	out, err := scanOrder(q.db.QueryRow(ctx, `INSERT INTO orders (`+cols+`) VALUES (`+values+`) RETURNING `+orderColumns, args...))
	if err != nil {
		return Order{}, mapErr(err)
	}
	if o.ID > 0 {
		if _, err := q.db.Exec(ctx, `SELECT setval(pg_get_serial_sequence('orders', 'id'), GREATEST((SELECT max(id) FROM orders), 1))`); err != nil {
			return Order{}, err
		}
	}
	return out, nil
}

func (q *Queries) GetOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	return o, mapErr(err)
}

func (q *Queries) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	return o, mapErr(err)
}

// UpdateOrder writes the mutable operational fields. The pricing snapshot is never rewritten.
func (q *Queries) UpdateOrder(ctx context.Context, o Order) (Order, error) {
	row := q.db.QueryRow(ctx, `
UPDATE orders SET
    name = $2,
    phone = $3,
    address = $4,
    store = $5,
    vip_level = $6,
    status = $7,
    paid = $8,
    served = $9,
    note = $10,
    settled = $11,
    settled_at = $12,
    spend_accrued = $13,
    blacklisted = $14,
    updated_at = now()
WHERE id = $1
RETURNING `+orderColumns,
		o.ID, o.Name, o.Phone, o.Address, o.Store, o.VIPLevel, string(o.Status), o.Paid, o.Served,
		o.Note, o.Settled, o.SettledAt, o.SpendAccrued, o.Blacklisted)
	out, err := scanOrder(row)
	return out, mapErr(err)
}

func (q *Queries) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	sql := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (q *Queries) ListOrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]Order, error) {
	rows, err := q.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at, id`, from, to)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// --- store configuration ------------------------------------------------------------------

func (q *Queries) GetStoreConfig(ctx context.Context) (StoreConfig, error) {
	var raw []byte
	if err := q.db.QueryRow(ctx, `SELECT config FROM store_config WHERE id = 1`).Scan(&raw); err != nil {
		return StoreConfig{}, mapErr(err)
	}
	var cfg StoreConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return StoreConfig{}, fmt.Errorf("decode store config: %w", err)
	}
	return cfg, nil
}

func (q *Queries) SaveStoreConfig(ctx context.Context, cfg StoreConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx, `
INSERT INTO store_config (id, config, updated_at) VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, updated_at = now()`, raw)
	return err
}

// IncrementProductPageViews bumps the page view counter, creating the config from seed when
// none has been saved yet.
func (q *Queries) IncrementProductPageViews(ctx context.Context, seed StoreConfig) (int64, error) {
	seed.ProductPageViews = 1
	raw, err := json.Marshal(seed)
	if err != nil {
		return 0, err
	}
	var views int64
	err = q.db.QueryRow(ctx, `
INSERT INTO store_config (id, config, updated_at) VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE SET
    config = jsonb_set(store_config.config, '{productPageViews}',
        to_jsonb(COALESCE((store_config.config->>'productPageViews')::bigint, 0) + 1)),
    updated_at = now()
RETURNING (config->>'productPageViews')::bigint`, raw).Scan(&views)
	return views, err
}

func (q *Queries) GetAdminSettings(ctx context.Context) (AdminSettings, error) {
	var s AdminSettings
	err := q.db.QueryRow(ctx, `SELECT mode, allow_orders, line_liff_id, base_url FROM admin_settings WHERE id = 1`).
		Scan(&s.Mode, &s.AllowOrders, &s.LineLiffID, &s.BaseURL)
	return s, mapErr(err)
}

func (q *Queries) SaveAdminSettings(ctx context.Context, s AdminSettings) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO admin_settings (id, mode, allow_orders, line_liff_id, base_url, updated_at)
VALUES (1, $1, $2, $3, $4, now())
ON CONFLICT (id) DO UPDATE SET
    mode = EXCLUDED.mode,
    allow_orders = EXCLUDED.allow_orders,
    line_liff_id = EXCLUDED.line_liff_id,
    base_url = EXCLUDED.base_url,
    updated_at = now()`, s.Mode, s.AllowOrders, s.LineLiffID, s.BaseURL)
	return err
}

// --- carts & events -----------------------------------------------------------------------

func (q *Queries) SaveCart(ctx context.Context, userID string, items map[string]int) error {
	if items == nil {
		items = map[string]int{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx, `
INSERT INTO carts (user_id, items, updated_at) VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET items = EXCLUDED.items, updated_at = now()`, userID, raw)
	return err
}

func (q *Queries) InsertDomainEvent(ctx context.Context, e DomainEvent) error {
	_, err := q.db.Exec(ctx, `INSERT INTO domain_events (id, topic, aggregate_id, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Topic, e.AggregateID, e.Payload, e.CreatedAt)
	return mapErr(err)
}

func marshalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return []byte("[]"), nil
	}
	return raw, nil
}

func unmarshalJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
