package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/events"
	"github.com/noah-isme/liff-store/internal/member"
)

func newService(t *testing.T, policy member.Policy) (*Service, *db.Memory) {
	t.Helper()
	store := db.NewMemory()
	return &Service{Store: store, Events: &events.Bus{Store: store}, Policy: policy, Log: zerolog.Nop()}, store
}

func seedOrder(t *testing.T, store *db.Memory, o db.Order) db.Order {
	t.Helper()
	saved, err := store.InsertOrder(context.Background(), o)
	require.NoError(t, err)
	return saved
}

func TestSetStatusPaidAccruesOnce(t *testing.T) {
	svc, store := newService(t, member.Policy{Mode: member.AccrueOnPaid})
	ctx := context.Background()
	o := seedOrder(t, store, db.Order{UserID: "U1", Total: 6000})

	updated, err := svc.SetStatus(ctx, o.ID, db.OrderStatusPaid)
	require.NoError(t, err)
	require.True(t, updated.Paid)
	require.True(t, updated.SpendAccrued)

	m, err := store.GetMember(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, int64(6000), m.TotalSpent)
	require.Equal(t, 1, m.VIPLevel)

	_, err = svc.SetStatus(ctx, o.ID, db.OrderStatusUnpaid)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, o.ID, db.OrderStatusPaid)
	require.NoError(t, err)
	m, err = store.GetMember(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, int64(6000), m.TotalSpent)

	var topics []string
	for _, ev := range store.Events() {
		topics = append(topics, ev.Topic)
	}
	require.Contains(t, topics, events.TopicOrderPaid)
	require.Contains(t, topics, events.TopicMemberVIPChanged)
}

func TestSetStatusPaidDoesNotDoubleCountCheckoutSpend(t *testing.T) {
	svc, store := newService(t, member.Policy{Mode: member.AccrueAtCheckout})
	ctx := context.Background()
	_, err := store.InsertMember(ctx, db.Member{UserID: "U1", TotalSpent: 500})
	require.NoError(t, err)
	o := seedOrder(t, store, db.Order{UserID: "U1", Total: 500, SpendAccrued: true})

	_, err = svc.SetStatus(ctx, o.ID, db.OrderStatusPaid)
	require.NoError(t, err)
	m, err := store.GetMember(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, int64(500), m.TotalSpent)
}

func TestSetStatusRejectsIllegalMoves(t *testing.T) {
	svc, store := newService(t, member.Policy{})
	ctx := context.Background()
	o := seedOrder(t, store, db.Order{UserID: "U1", Total: 100})

	_, err := svc.SetStatus(ctx, o.ID, db.OrderStatusShipped)
	require.True(t, common.HasCode(err, common.CodeBusinessRule))
	_, err = svc.SetStatus(ctx, o.ID, db.OrderStatusDone)
	require.True(t, common.HasCode(err, common.CodeBusinessRule))
	_, err = svc.SetStatus(ctx, 999, db.OrderStatusPaid)
	require.True(t, common.HasCode(err, common.CodeNotFound))

	got, err := store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, db.OrderStatusUnpaid, got.Status)
}

func TestFulfilmentPath(t *testing.T) {
	svc, store := newService(t, member.Policy{})
	ctx := context.Background()
	o := seedOrder(t, store, db.Order{UserID: "U1", Total: 100})

	for _, st := range []db.OrderStatus{db.OrderStatusPaid, db.OrderStatusUnshipped, db.OrderStatusShipped, db.OrderStatusDone} {
		updated, err := svc.SetStatus(ctx, o.ID, st)
		require.NoError(t, err)
		require.Equal(t, st, updated.Status)
	}
	_, err := svc.SetStatus(ctx, o.ID, db.OrderStatusCancel)
	require.True(t, common.HasCode(err, common.CodeBusinessRule))
}

func TestCancelReversesSpendWhenConfigured(t *testing.T) {
	svc, store := newService(t, member.Policy{ReverseOnCancel: true})
	ctx := context.Background()
	_, err := store.InsertMember(ctx, db.Member{UserID: "U1", TotalSpent: 5200, VIPLevel: 1})
	require.NoError(t, err)
	o := seedOrder(t, store, db.Order{UserID: "U1", Total: 300, SpendAccrued: true})

	updated, err := svc.SetStatus(ctx, o.ID, db.OrderStatusCancel)
	require.NoError(t, err)
	require.False(t, updated.SpendAccrued)
	m, err := store.GetMember(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, int64(4900), m.TotalSpent)
	require.Zero(t, m.VIPLevel)
}

func TestCancelKeepsSpendByDefault(t *testing.T) {
	svc, store := newService(t, member.Policy{})
	ctx := context.Background()
	_, err := store.InsertMember(ctx, db.Member{UserID: "U1", TotalSpent: 5200, VIPLevel: 1})
	require.NoError(t, err)
	o := seedOrder(t, store, db.Order{UserID: "U1", Total: 300, SpendAccrued: true})

	_, err = svc.Remove(ctx, o.ID)
	require.NoError(t, err)
	m, err := store.GetMember(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, int64(5200), m.TotalSpent)
}

func TestRemove(t *testing.T) {
	svc, store := newService(t, member.Policy{})
	ctx := context.Background()
	unpaid := seedOrder(t, store, db.Order{UserID: "U1"})
	paid := seedOrder(t, store, db.Order{UserID: "U1", Status: db.OrderStatusPaid, Paid: true})

	removed, err := svc.Remove(ctx, unpaid.ID)
	require.NoError(t, err)
	require.Equal(t, db.OrderStatusCancel, removed.Status)
	_, err = svc.Remove(ctx, unpaid.ID)
	require.NoError(t, err)

	_, err = svc.Remove(ctx, paid.ID)
	require.True(t, common.HasCode(err, common.CodeBusinessRule))
}

func TestBulkShipAndComplete(t *testing.T) {
	svc, store := newService(t, member.Policy{})
	ctx := context.Background()
	a := seedOrder(t, store, db.Order{UserID: "U1", Status: db.OrderStatusPaid, Paid: true})
	b := seedOrder(t, store, db.Order{UserID: "U1", Status: db.OrderStatusUnshipped, Paid: true})
	c := seedOrder(t, store, db.Order{UserID: "U1"})

	n, err := svc.BulkShip(ctx, []int64{a.ID, b.ID, c.ID, 404, a.ID})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := store.GetOrder(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, db.OrderStatusUnpaid, got.Status)

	n, err = svc.BulkComplete(ctx, []int64{a.ID, b.ID, c.ID})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = svc.BulkShip(ctx, nil)
	require.True(t, common.HasCode(err, common.CodeValidation))
}

func TestUpdatePaidFlagMovesStatus(t *testing.T) {
	svc, store := newService(t, member.Policy{Mode: member.AccrueOnPaid})
	ctx := context.Background()
	o := seedOrder(t, store, db.Order{UserID: "U1", Total: 250})
	yes, no := true, false
	note := "  extra chili "

	updated, err := svc.Update(ctx, o.ID, Patch{Paid: &yes, Served: &yes, Note: &note})
	require.NoError(t, err)
	require.Equal(t, db.OrderStatusPaid, updated.Status)
	require.True(t, updated.Served)
	require.Equal(t, "extra chili", updated.Note)
	require.True(t, updated.SpendAccrued)

	updated, err = svc.Update(ctx, o.ID, Patch{Paid: &no})
	require.NoError(t, err)
	require.Equal(t, db.OrderStatusUnpaid, updated.Status)
	require.False(t, updated.Paid)
}

func TestListPaginates(t *testing.T) {
	svc, store := newService(t, member.Policy{})
	for i := 0; i < 5; i++ {
		seedOrder(t, store, db.Order{UserID: "U1"})
	}
	seedOrder(t, store, db.Order{UserID: "U2", Status: db.OrderStatusPaid})

	page, total, err := svc.List(context.Background(), "", 2, 4)
	require.NoError(t, err)
	require.Equal(t, 6, total)
	require.Len(t, page, 2)

	page, total, err = svc.List(context.Background(), "paid", 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "U2", page[0].UserID)

	_, _, err = svc.List(context.Background(), "nope", 1, 10)
	require.True(t, common.HasCode(err, common.CodeValidation))
}

func newAdminRouter(svc *Service) http.Handler {
	h := &AdminHandler{Svc: svc}
	r := chi.NewRouter()
	r.Get("/admin/orders", h.List)
	r.Get("/admin/orders/{id}", h.Get)
	r.Patch("/admin/orders/{id}", h.Patch)
	r.Post("/admin/orders/{id}/status", h.SetStatus)
	r.Post("/admin/orders/{id}/remove", h.Remove)
	r.Post("/admin/orders/bulk-ship", h.BulkShip)
	r.Post("/admin/orders/bulk-complete", h.BulkComplete)
	mine := &Handler{Svc: svc}
	r.Get("/users/me/orders", mine.Mine)
	return r
}

func TestAdminHandlers(t *testing.T) {
	svc, store := newService(t, member.Policy{})
	a := seedOrder(t, store, db.Order{UserID: "U1", Status: db.OrderStatusPaid, Paid: true})
	seedOrder(t, store, db.Order{UserID: "U2"})
	router := newAdminRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders/C1/status", strings.NewReader(`{"status":"done"}`)))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "BUSINESS_RULE")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders/bulk-ship", strings.NewReader(`{"ids":["C1", 2, "99"]}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bulk struct {
		Data struct {
			Updated int `json:"updated"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bulk))
	require.Equal(t, 1, bulk.Data.Updated)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders/bulk-complete", strings.NewReader(`{"ids":[]}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders/"+"C1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Data db.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, a.ID, got.Data.ID)
	require.Equal(t, db.OrderStatusShipped, got.Data.Status)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-Total-Count"))
	require.Contains(t, rec.Body.String(), `"pagination":{"page":1,"perPage":1,"totalItems":2,"totalPages":2}`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/me/orders?userId=U2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var mine struct {
		Data []db.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine.Data, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders/abc/remove", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
