// Package storeconfig owns the store-wide switches: the public store profile (name, payment
// methods, VIP and coupon toggles) and the admin settings that gate ordering.
package storeconfig

import (
	"context"
	"errors"
	"strings"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
)

// Querier captures the database methods required by the store config service.
type Querier interface {
	GetStoreConfig(ctx context.Context) (db.StoreConfig, error)
	SaveStoreConfig(ctx context.Context, cfg db.StoreConfig) error
	IncrementProductPageViews(ctx context.Context, seed db.StoreConfig) (int64, error)
	GetAdminSettings(ctx context.Context) (db.AdminSettings, error)
	SaveAdminSettings(ctx context.Context, s db.AdminSettings) error
}

// DefaultStore is served until an admin saves a store profile.
func DefaultStore() db.StoreConfig {
	return db.StoreConfig{
		Name:            "嘉義牛肉麵",
		AdminTitle:      "嘉義牛肉麵 後台",
		TakeoutEnabled:  true,
		DeliveryEnabled: true,
		EnableCoupons:   true,
		EnableVip:       true,
		PaymentMethods:  db.PaymentMethods{Cash: true, LinePay: true},
	}
}

// DefaultSettings keeps a fresh install closed for orders.
func DefaultSettings() db.AdminSettings {
	return db.AdminSettings{Mode: db.ModeLocal, AllowOrders: false}
}

// Store loads the store profile, falling back to DefaultStore.
func Store(ctx context.Context, q Querier) (db.StoreConfig, error) {
	cfg, err := q.GetStoreConfig(ctx)
	if errors.Is(err, db.ErrNotFound) {
		return DefaultStore(), nil
	}
	if err != nil {
		return db.StoreConfig{}, common.PersistenceError("load store config", err)
	}
	return cfg, nil
}

// Settings loads the admin settings, falling back to DefaultSettings.
func Settings(ctx context.Context, q Querier) (db.AdminSettings, error) {
	s, err := q.GetAdminSettings(ctx)
	if errors.Is(err, db.ErrNotFound) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return db.AdminSettings{}, common.PersistenceError("load admin settings", err)
	}
	return s, nil
}

// OrderingOpen reports whether checkout accepts orders under s.
func OrderingOpen(s db.AdminSettings) bool {
	return s.Mode != db.ModeLocal || s.AllowOrders
}

// Service reads and updates store configuration.
type Service struct {
	Q Querier
}

func (s *Service) Store(ctx context.Context) (db.StoreConfig, error) {
	return Store(ctx, s.Q)
}

func (s *Service) Settings(ctx context.Context) (db.AdminSettings, error) {
	return Settings(ctx, s.Q)
}

// StorePatch carries the fields an admin may change. Nil fields keep their current value.
type StorePatch struct {
	Name            *string            `json:"name" validate:"omitempty,max=80"`
	AdminTitle      *string            `json:"adminTitle" validate:"omitempty,max=80"`
	Subtitle        *string            `json:"subtitle" validate:"omitempty,max=200"`
	BusinessHours   *string            `json:"businessHours" validate:"omitempty,max=200"`
	TakeoutEnabled  *bool              `json:"takeoutEnabled"`
	DeliveryEnabled *bool              `json:"deliveryEnabled"`
	EnableCoupons   *bool              `json:"enableCoupons"`
	EnableVip       *bool              `json:"enableVip"`
	Icon            *string            `json:"icon"`
	PaymentMethods  *db.PaymentMethods `json:"paymentMethods"`
}

// UpdateStore merges patch into the stored profile. The page view counter is never taken from
// the patch.
func (s *Service) UpdateStore(ctx context.Context, patch StorePatch) (db.StoreConfig, error) {
	if err := common.Validate(patch); err != nil {
		return db.StoreConfig{}, err
	}
	cfg, err := Store(ctx, s.Q)
	if err != nil {
		return db.StoreConfig{}, err
	}
	setString(&cfg.Name, patch.Name)
	setString(&cfg.AdminTitle, patch.AdminTitle)
	setString(&cfg.Subtitle, patch.Subtitle)
	setString(&cfg.BusinessHours, patch.BusinessHours)
	setString(&cfg.Icon, patch.Icon)
	setBool(&cfg.TakeoutEnabled, patch.TakeoutEnabled)
	setBool(&cfg.DeliveryEnabled, patch.DeliveryEnabled)
	setBool(&cfg.EnableCoupons, patch.EnableCoupons)
	setBool(&cfg.EnableVip, patch.EnableVip)
	if patch.PaymentMethods != nil {
		cfg.PaymentMethods = *patch.PaymentMethods
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return db.StoreConfig{}, common.ValidationError("store name must not be empty")
	}
	if err := s.Q.SaveStoreConfig(ctx, cfg); err != nil {
		return db.StoreConfig{}, common.PersistenceError("save store config", err)
	}
	return cfg, nil
}

// SettingsPatch carries admin setting changes. Nil fields keep their current value.
type SettingsPatch struct {
	Mode        *string `json:"mode" validate:"omitempty,oneof=local public"`
	AllowOrders *bool   `json:"allowOrders"`
	LineLiffID  *string `json:"lineLiffId"`
	BaseURL     *string `json:"baseUrl" validate:"omitempty,url"`
}

func (s *Service) UpdateSettings(ctx context.Context, patch SettingsPatch) (db.AdminSettings, error) {
	if patch.Mode != nil {
		mode := strings.ToLower(strings.TrimSpace(*patch.Mode))
		patch.Mode = &mode
	}
	if err := common.Validate(patch); err != nil {
		return db.AdminSettings{}, err
	}
	current, err := Settings(ctx, s.Q)
	if err != nil {
		return db.AdminSettings{}, err
	}
	setString(&current.Mode, patch.Mode)
	setBool(&current.AllowOrders, patch.AllowOrders)
	setString(&current.LineLiffID, patch.LineLiffID)
	setString(&current.BaseURL, patch.BaseURL)
	if err := s.Q.SaveAdminSettings(ctx, current); err != nil {
		return db.AdminSettings{}, common.PersistenceError("save admin settings", err)
	}
	return current, nil
}

// RecordPageView bumps the product page view counter and returns the new count.
func (s *Service) RecordPageView(ctx context.Context) (int64, error) {
	n, err := s.Q.IncrementProductPageViews(ctx, DefaultStore())
	if err != nil {
		return 0, common.PersistenceError("count page view", err)
	}
	return n, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
