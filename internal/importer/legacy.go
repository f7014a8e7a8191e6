// Package importer loads the JSON files written by the legacy storefront and replays them into a
// db.Store in one transaction.
package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/liff-store/internal/coupon"
	"github.com/noah-isme/liff-store/internal/db"
)

// Legacy file names, without the .json suffix.
const (
	FileProducts   = "products"
	FileCategories = "product-categories"
	FileCoupons    = "coupons"
	FileUsers      = "users"
	FileOrders     = "orders"
	FileStore      = "store"
	FileSettings   = "settings"
	FileCarts      = "carts"
)

// flexID accepts both string and numeric identifiers. The legacy app minted ids from Date.now().
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type legacyProduct struct {
	Price    int64  `json:"price"`
	Stock    int64  `json:"stock"`
	Sort     int    `json:"sort"`
	Category string `json:"category"`
	Image    string `json:"image"`
	Enabled  *bool  `json:"enabled"`
}

type legacyCategory struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
	Sort int    `json:"sort"`
}

type legacyAddress struct {
	ID        flexID `json:"id"`
	Label     string `json:"label"`
	Address   string `json:"address"`
	IsDefault bool   `json:"isDefault"`
}

type legacyStore struct {
	ID        flexID `json:"id"`
	Label     string `json:"label"`
	Store     string `json:"store"`
	IsDefault bool   `json:"isDefault"`
}

type legacyUser struct {
	UserID            string          `json:"userId"`
	Name              string          `json:"name"`
	Phone             string          `json:"phone"`
	Address           string          `json:"address"`
	TotalSpent        int64           `json:"totalSpent"`
	VIPLevel          int             `json:"vipLevel"`
	Addresses         []legacyAddress `json:"addresses"`
	Stores            []legacyStore   `json:"stores"`
	LastUsedAddressID flexID          `json:"lastUsedAddressId"`
	LastUsedStoreID   flexID          `json:"lastUsedStoreId"`
	Blacklisted       bool            `json:"blacklisted"`
	CreatedAt         string          `json:"createdAt"`
	UpdatedAt         string          `json:"updatedAt"`
}

type legacyItem struct {
	ProductName string `json:"productName"`
	Name        string `json:"name"`
	Qty         int    `json:"qty"`
	Price       int64  `json:"price"`
	SubTotal    int64  `json:"subTotal"`
}

type legacyOrder struct {
	ID             flexID       `json:"id"`
	UserID         string       `json:"userId"`
	Name           string       `json:"name"`
	Phone          string       `json:"phone"`
	Address        string       `json:"address"`
	Store          string       `json:"store"`
	Items          []legacyItem `json:"items"`
	Subtotal       int64        `json:"subtotal"`
	VIPLevel       int          `json:"vipLevel"`
	VIPDiscount    int64        `json:"vipDiscount"`
	CouponCode     string       `json:"couponCode"`
	CouponDiscount int64        `json:"couponDiscount"`
	Total          int64        `json:"total"`
	PaymentMethod  string       `json:"paymentMethod"`
	Status         string       `json:"status"`
	Paid           bool         `json:"paid"`
	Served         bool         `json:"served"`
	Note           string       `json:"note"`
	Settled        bool         `json:"settled"`
	SettledAt      string       `json:"settledAt"`
	SpendAccrued   *bool        `json:"spendAccrued"`
	CreatedAt      string       `json:"createdAt"`
	UpdatedAt      string       `json:"updatedAt"`
}

// Snapshot is the full legacy data set converted to storefront models. Nil store config or
// settings mean the file was absent.
type Snapshot struct {
	Products   []db.Product
	Categories []db.Category
	Coupons    []db.Coupon
	Members    []db.Member
	Orders     []db.Order
	Store      *db.StoreConfig
	Settings   *db.AdminSettings
	Carts      map[string]map[string]int
}

// Load reads every legacy file present in dir. Missing files are skipped; malformed ones fail
// the whole load.
func Load(dir string) (Snapshot, error) {
	var snap Snapshot

	var products map[string]legacyProduct
	if ok, err := readJSON(dir, FileProducts, &products); err != nil {
		return snap, err
	} else if ok {
		snap.Products = convertProducts(products)
	}

	var categories []legacyCategory
	if ok, err := readJSON(dir, FileCategories, &categories); err != nil {
		return snap, err
	} else if ok {
		for _, c := range categories {
			id := string(c.ID)
			if id == "" {
				id = uuid.NewString()
			}
			snap.Categories = append(snap.Categories, db.Category{ID: id, Name: strings.TrimSpace(c.Name), Sort: c.Sort})
		}
	}

	var coupons []coupon.Payload
	if ok, err := readJSON(dir, FileCoupons, &coupons); err != nil {
		return snap, err
	} else if ok {
		for _, p := range coupons {
			c, err := p.ToModel()
			if err != nil {
				return snap, fmt.Errorf("%s.json: %w", FileCoupons, err)
			}
			snap.Coupons = append(snap.Coupons, c)
		}
	}

	var users []legacyUser
	if ok, err := readJSON(dir, FileUsers, &users); err != nil {
		return snap, err
	} else if ok {
		for _, u := range users {
			if strings.TrimSpace(u.UserID) == "" {
				continue
			}
			snap.Members = append(snap.Members, convertUser(u))
		}
	}

	var orders []legacyOrder
	if ok, err := readJSON(dir, FileOrders, &orders); err != nil {
		return snap, err
	} else if ok {
		for i, o := range orders {
			order, err := convertOrder(o)
			if err != nil {
				return snap, fmt.Errorf("%s.json[%d]: %w", FileOrders, i, err)
			}
			snap.Orders = append(snap.Orders, order)
		}
	}

	var store db.StoreConfig
	if ok, err := readJSON(dir, FileStore, &store); err != nil {
		return snap, err
	} else if ok {
		snap.Store = &store
	}

	var settings db.AdminSettings
	if ok, err := readJSON(dir, FileSettings, &settings); err != nil {
		return snap, err
	} else if ok {
		if settings.Mode != db.ModePublic {
			settings.Mode = db.ModeLocal
		}
		snap.Settings = &settings
	}

	if _, err := readJSON(dir, FileCarts, &snap.Carts); err != nil {
		return snap, err
	}
	return snap, nil
}

func readJSON(dir, name string, dst any) (bool, error) {
	b, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("%s.json: %w", name, err)
	}
	return true, nil
}

func convertProducts(in map[string]legacyProduct) []db.Product {
	out := make([]db.Product, 0, len(in))
	for name, p := range in {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, db.Product{
			Name:     name,
			Price:    p.Price,
			Stock:    p.Stock,
			Enabled:  p.Enabled == nil || *p.Enabled,
			Sort:     p.Sort,
			Category: p.Category,
			Image:    p.Image,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sort != out[j].Sort {
			return out[i].Sort < out[j].Sort
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func convertUser(u legacyUser) db.Member {
	m := db.Member{
		UserID:            u.UserID,
		Name:              u.Name,
		Phone:             u.Phone,
		TotalSpent:        u.TotalSpent,
		VIPLevel:          u.VIPLevel,
		LastUsedAddressID: string(u.LastUsedAddressID),
		LastUsedStoreID:   string(u.LastUsedStoreID),
		Blacklisted:       u.Blacklisted,
		CreatedAt:         parseTimeOrZero(u.CreatedAt),
		UpdatedAt:         parseTimeOrZero(u.UpdatedAt),
	}
	for _, a := range u.Addresses {
		m.Addresses = append(m.Addresses, db.Address{ID: string(a.ID), Label: a.Label, Address: a.Address, IsDefault: a.IsDefault})
	}
	// Early records only carried a single free-text address.
	if len(m.Addresses) == 0 && strings.TrimSpace(u.Address) != "" {
		m.Addresses = []db.Address{{ID: "legacy", Label: "default", Address: strings.TrimSpace(u.Address), IsDefault: true}}
	}
	for _, s := range u.Stores {
		m.Stores = append(m.Stores, db.PickupStore{ID: string(s.ID), Label: s.Label, Store: s.Store, IsDefault: s.IsDefault})
	}
	return m
}

func convertOrder(o legacyOrder) (db.Order, error) {
	id, err := strconv.ParseInt(string(o.ID), 10, 64)
	if err != nil || id <= 0 {
		return db.Order{}, fmt.Errorf("invalid order id %q", o.ID)
	}
	status := db.OrderStatus(o.Status)
	if status == "" {
		status = db.OrderStatusUnpaid
	}
	if !status.Valid() {
		return db.Order{}, fmt.Errorf("order %d has unknown status %q", id, o.Status)
	}
	order := db.Order{
		ID:             id,
		UserID:         o.UserID,
		Name:           o.Name,
		Phone:          o.Phone,
		Address:        o.Address,
		Store:          o.Store,
		Subtotal:       o.Subtotal,
		VIPLevel:       o.VIPLevel,
		VIPDiscount:    o.VIPDiscount,
		CouponCode:     o.CouponCode,
		CouponDiscount: o.CouponDiscount,
		Total:          o.Total,
		PaymentMethod:  o.PaymentMethod,
		Status:         status,
		Paid:           o.Paid,
		Served:         o.Served,
		Note:           o.Note,
		Settled:        o.Settled,
		CreatedAt:      parseTimeOrZero(o.CreatedAt),
		UpdatedAt:      parseTimeOrZero(o.UpdatedAt),
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = "cash"
	}
	if t, err := coupon.ParseTime(o.SettledAt); err == nil && t != nil {
		order.SettledAt = t
	}
	for _, it := range o.Items {
		name := it.ProductName
		if name == "" {
			name = it.Name
		}
		sub := it.SubTotal
		if sub == 0 {
			sub = it.Price * int64(it.Qty)
		}
		order.Items = append(order.Items, db.OrderItem{ProductName: name, Qty: it.Qty, Price: it.Price, SubTotal: sub})
	}
	// The legacy app accrued spend at checkout, so every non-cancelled order already counted.
	if o.SpendAccrued != nil {
		order.SpendAccrued = *o.SpendAccrued
	} else {
		order.SpendAccrued = status != db.OrderStatusCancel
	}
	return order, nil
}

func parseTimeOrZero(v string) time.Time {
	t, err := coupon.ParseTime(v)
	if err != nil || t == nil {
		return time.Time{}
	}
	return *t
}
