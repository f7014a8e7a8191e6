package storeconfig

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
)

func TestDefaultsWhenUnset(t *testing.T) {
	svc := &Service{Q: db.NewMemory()}
	ctx := context.Background()

	cfg, err := svc.Store(ctx)
	require.NoError(t, err)
	require.Equal(t, "嘉義牛肉麵", cfg.Name)
	require.True(t, cfg.EnableVip)
	require.True(t, cfg.EnableCoupons)
	require.True(t, cfg.PaymentMethods.Cash)
	require.True(t, cfg.PaymentMethods.LinePay)

	s, err := svc.Settings(ctx)
	require.NoError(t, err)
	require.Equal(t, db.ModeLocal, s.Mode)
	require.False(t, OrderingOpen(s))
}

func TestOrderingOpen(t *testing.T) {
	require.False(t, OrderingOpen(db.AdminSettings{Mode: db.ModeLocal}))
	require.True(t, OrderingOpen(db.AdminSettings{Mode: db.ModeLocal, AllowOrders: true}))
	require.True(t, OrderingOpen(db.AdminSettings{Mode: db.ModePublic}))
}

func TestUpdateStoreMergesAndKeepsViews(t *testing.T) {
	store := db.NewMemory()
	svc := &Service{Q: store}
	ctx := context.Background()

	n, err := svc.RecordPageView(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	off := false
	name := "  Noodle Bar "
	cfg, err := svc.UpdateStore(ctx, StorePatch{Name: &name, EnableVip: &off})
	require.NoError(t, err)
	require.Equal(t, "Noodle Bar", cfg.Name)
	require.False(t, cfg.EnableVip)
	require.True(t, cfg.EnableCoupons)
	require.Equal(t, int64(1), cfg.ProductPageViews)

	n, err = svc.RecordPageView(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestUpdateStoreRejectsBlankName(t *testing.T) {
	svc := &Service{Q: db.NewMemory()}
	blank := " "
	_, err := svc.UpdateStore(context.Background(), StorePatch{Name: &blank})
	require.True(t, common.HasCode(err, common.CodeValidation))
}

func TestUpdateSettingsValidatesMode(t *testing.T) {
	svc := &Service{Q: db.NewMemory()}
	ctx := context.Background()

	bad := "closed"
	_, err := svc.UpdateSettings(ctx, SettingsPatch{Mode: &bad})
	require.True(t, common.HasCode(err, common.CodeValidation))

	mode := "PUBLIC"
	s, err := svc.UpdateSettings(ctx, SettingsPatch{Mode: &mode})
	require.NoError(t, err)
	require.Equal(t, db.ModePublic, s.Mode)
	require.True(t, OrderingOpen(s))
}

func TestSettingsHandlers(t *testing.T) {
	h := &Handler{Svc: &Service{Q: db.NewMemory()}}

	rec := httptest.NewRecorder()
	h.UpdateSettings(rec, httptest.NewRequest(http.MethodPut, "/admin/settings", strings.NewReader(`{"allowOrders":true,"lineLiffId":"123-abc"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	h.GetPublicSettings(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data PublicSettings `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, db.ModeLocal, body.Data.Mode)
	require.True(t, body.Data.OrderingOn)
	require.Equal(t, "123-abc", body.Data.LineLiffID)
}
