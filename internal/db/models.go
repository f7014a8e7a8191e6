package db

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusUnpaid    OrderStatus = "unpaid"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusUnshipped OrderStatus = "unshipped"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDone      OrderStatus = "done"
	OrderStatusCancel    OrderStatus = "cancel"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusUnpaid, OrderStatusPaid, OrderStatusUnshipped, OrderStatusShipped, OrderStatusDone, OrderStatusCancel:
		return true
	}
	return false
}

// Coupon discount types.
const (
	DiscountAmount  = "amount"
	DiscountPercent = "percent"
)

// Store operating modes. In local mode checkout is closed unless orders are explicitly allowed.
const (
	ModeLocal  = "local"
	ModePublic = "public"
)

type Product struct {
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Stock     int64     `json:"stock"`
	Enabled   bool      `json:"enabled"`
	Sort      int       `json:"sort"`
	Category  string    `json:"category"`
	Image     string    `json:"image"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Sort int    `json:"sort"`
}

// Coupon is a rule-gated discount instrument. For percent coupons DiscountValue is expressed
// in tenths of the payable amount: 9 means the buyer pays 90%.
type Coupon struct {
	Code             string     `json:"code"`
	Description      string     `json:"description"`
	DiscountType     string     `json:"discountType"`
	DiscountValue    float64    `json:"discountValue"`
	MaxDiscount      int64      `json:"maxDiscount"`
	MinAmount        int64      `json:"minAmount"`
	ValidFrom        *time.Time `json:"validFrom"`
	ValidUntil       *time.Time `json:"validUntil"`
	UsageLimit       *int       `json:"usageLimit"`
	UsedCount        int        `json:"usedCount"`
	PerUserLimit     *int       `json:"perUserLimit"`
	AllowedVipLevels []int      `json:"allowedVipLevels"`
	BlockedUserIDs   []string   `json:"blockedUserIds"`
	IsActive         bool       `json:"isActive"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type Address struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Address   string `json:"address"`
	IsDefault bool   `json:"isDefault"`
}

type PickupStore struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Store     string `json:"store"`
	IsDefault bool   `json:"isDefault"`
}

type Member struct {
	UserID            string        `json:"userId"`
	Name              string        `json:"name"`
	Phone             string        `json:"phone"`
	TotalSpent        int64         `json:"totalSpent"`
	VIPLevel          int           `json:"vipLevel"`
	Addresses         []Address     `json:"addresses"`
	Stores            []PickupStore `json:"stores"`
	LastUsedAddressID string        `json:"lastUsedAddressId"`
	LastUsedStoreID   string        `json:"lastUsedStoreId"`
	Blacklisted       bool          `json:"blacklisted"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	LastOrderAt       *time.Time    `json:"lastOrderAt"`
}

type OrderItem struct {
	ProductName string `json:"productName"`
	Qty         int    `json:"qty"`
	Price       int64  `json:"price"`
	SubTotal    int64  `json:"subTotal"`
}

// Order keeps the pricing snapshot taken at checkout next to the operational fields admins edit.
type Order struct {
	ID             int64       `json:"id"`
	UserID         string      `json:"userId"`
	Name           string      `json:"name"`
	Phone          string      `json:"phone"`
	Address        string      `json:"address"`
	Store          string      `json:"store"`
	Items          []OrderItem `json:"items"`
	Subtotal       int64       `json:"subtotal"`
	VIPLevel       int         `json:"vipLevel"`
	VIPDiscount    int64       `json:"vipDiscount"`
	CouponCode     string      `json:"couponCode"`
	CouponDiscount int64       `json:"couponDiscount"`
	Total          int64       `json:"total"`
	PaymentMethod  string      `json:"paymentMethod"`
	Status         OrderStatus `json:"status"`
	Paid           bool        `json:"paid"`
	Served         bool        `json:"served"`
	Note           string      `json:"note"`
	Settled        bool        `json:"settled"`
	SettledAt      *time.Time  `json:"settledAt"`
	SpendAccrued   bool        `json:"spendAccrued"`
	Blacklisted    bool        `json:"blacklisted"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// OrderNo is the customer-facing order number.
func (o Order) OrderNo() string {
	return "C" + strconv.FormatInt(o.ID, 10)
}

// IsPaid reports whether the order counts towards revenue.
func (o Order) IsPaid() bool {
	if o.Paid {
		return true
	}
	switch o.Status {
	case OrderStatusPaid, OrderStatusUnshipped, OrderStatusShipped, OrderStatusDone:
		return true
	}
	return false
}

// OrderFilter narrows admin order listings.
type OrderFilter struct {
	Status OrderStatus
	UserID string
	Limit  int
	Offset int
}

type PaymentMethods struct {
	Cash         bool `json:"cash"`
	LinePay      bool `json:"linePay"`
	Card         bool `json:"card"`
	HomeDelivery bool `json:"homeDelivery"`
	COD          bool `json:"cod"`
	CVSCode      bool `json:"cvsCode"`
}

type StoreConfig struct {
	Name             string         `json:"name"`
	AdminTitle       string         `json:"adminTitle"`
	Subtitle         string         `json:"subtitle"`
	BusinessHours    string         `json:"businessHours"`
	TakeoutEnabled   bool           `json:"takeoutEnabled"`
	DeliveryEnabled  bool           `json:"deliveryEnabled"`
	ProductPageViews int64          `json:"productPageViews"`
	EnableCoupons    bool           `json:"enableCoupons"`
	EnableVip        bool           `json:"enableVip"`
	Icon             string         `json:"icon"`
	PaymentMethods   PaymentMethods `json:"paymentMethods"`
}

type AdminSettings struct {
	Mode        string `json:"mode"`
	AllowOrders bool   `json:"allowOrders"`
	LineLiffID  string `json:"lineLiffId"`
	BaseURL     string `json:"baseUrl"`
}

type DomainEvent struct {
	ID          uuid.UUID `json:"id"`
	Topic       string    `json:"topic"`
	AggregateID string    `json:"aggregateId"`
	Payload     []byte    `json:"payload"`
	CreatedAt   time.Time `json:"createdAt"`
}
