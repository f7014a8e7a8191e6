// Package app assembles the storefront services and their HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/liff-store/internal/audit"
	"github.com/noah-isme/liff-store/internal/auth"
	"github.com/noah-isme/liff-store/internal/catalog"
	"github.com/noah-isme/liff-store/internal/checkout"
	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/coupon"
	"github.com/noah-isme/liff-store/internal/events"
	"github.com/noah-isme/liff-store/internal/export"
	"github.com/noah-isme/liff-store/internal/health"
	"github.com/noah-isme/liff-store/internal/member"
	"github.com/noah-isme/liff-store/internal/obs"
	"github.com/noah-isme/liff-store/internal/order"
	"github.com/noah-isme/liff-store/internal/ratelimit"
	"github.com/noah-isme/liff-store/internal/security"
	"github.com/noah-isme/liff-store/internal/storeconfig"
)

// App holds the wired services and the HTTP router.
type App struct {
	Router chi.Router
	Bus    *events.Bus
}

// New wires every module onto deps and builds the router.
func New(ctx context.Context, deps Dependencies) (*App, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if err := deps.ping(ctx); err != nil {
		return nil, fmt.Errorf("app: store unavailable: %w", err)
	}
	log := deps.Logger
	store := deps.Store
	rdb := deps.Redis
	loc := cfg.Location()

	notifiers := append([]events.Notifier{events.LogNotifier{Logger: log}}, deps.Notifiers...)
	bus := &events.Bus{Store: store, Notifiers: notifiers, Now: deps.Now}
	policy := member.Policy{Mode: member.ParseAccrualMode(cfg.VIPAccrualMode), ReverseOnCancel: cfg.VIPReverseOnCancel}
	locker := NewLocker(rdb, cfg.MemberLockWait)

	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Queries: store,
		Tx:      store,
		Cache:   catalog.NewCache(rdb, cfg.CatalogCacheTTL),
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("app: catalog: %w", err)
	}
	couponSvc := &coupon.Service{Q: store, Tx: store, Now: deps.Now}
	storeSvc := &storeconfig.Service{Q: store}
	memberSvc := &member.Service{Q: store, Tx: store, Coupons: couponSvc}
	checkoutSvc := &checkout.Service{
		Store:   store,
		Locker:  locker,
		LockTTL: cfg.MemberLockTTL,
		Events:  bus,
		Policy:  policy,
		Log:     log,
		Now:     deps.Now,
	}
	orderSvc := &order.Service{Store: store, Events: bus, Policy: policy, Log: log}
	exportSvc := &export.Service{
		Store:    store,
		Locker:   locker,
		LockTTL:  cfg.MemberLockTTL,
		Events:   bus,
		R:        rdb,
		TTL:      cfg.ReportCacheTTL,
		Location: loc,
		Log:      log,
		Now:      deps.Now,
	}

	var authSvc *auth.Service
	if cfg.AdminPasswordHash == "" {
		log.Warn().Msg("ADMIN_PASSWORD_HASH not set, admin routes are disabled")
	} else {
		authSvc, err = auth.NewService(auth.Config{
			Username:       cfg.AdminUsername,
			PasswordHash:   cfg.AdminPasswordHash,
			Secret:         cfg.JWTSecret,
			AccessTokenTTL: cfg.AccessTokenTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("app: auth: %w", err)
		}
		if deps.Now != nil {
			authSvc.WithNow(deps.Now)
		}
	}
	loginLimiter, err := NewLoginLimiter(rdb, cfg.LoginRateLimit)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a := &App{Bus: bus}

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogSvc})
	couponHandler := &coupon.Handler{Svc: couponSvc}
	storeHandler := &storeconfig.Handler{Svc: storeSvc}
	memberHandler := &member.Handler{Svc: memberSvc}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}
	orderHandler := &order.Handler{Svc: orderSvc}
	orderAdmin := &order.AdminHandler{Svc: orderSvc}
	exportHandler := &export.Handler{Svc: exportSvc}
	authHandler := &auth.Handler{Service: authSvc, Limiter: loginLimiter}
	authMiddleware := auth.Middleware{Service: authSvc}

	auditRecorder := audit.HTTPRecorder{
		Service: audit.Service{Bus: bus, Enabled: cfg.AuditEnabled},
		OnError: func(err error) { log.Warn().Err(err).Msg("record audit entry") },
	}

	idem := common.Idem{R: rdb, TTL: cfg.IdempotencyTTL}
	couponLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: rdb, Prefix: "ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("coupon-validate:"),
			Window: cfg.CouponValidateRateWindow,
			Max:    cfg.CouponValidateRateLimit,
		},
		OnError: func(err error) { log.Warn().Err(err).Msg("coupon rate limiter unavailable") },
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if deps.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if deps.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: deps.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: log}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production", HSTSMaxAge: 31536000}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", common.IdempotencyHeader},
		MaxAge:         300,
	}))
	r.Use(security.BodyLimit{Max: cfg.HTTPBodyLimitBytes}.Middleware)

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}
	healthHandler := health.Handler{
		Checker:      health.Probe{DB: store, Redis: rdb},
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/store", storeHandler.GetStore)
		v.Get("/settings", storeHandler.GetPublicSettings)
		v.Post("/store/views", storeHandler.PageView)

		v.Get("/products", catalogHandler.Products)
		v.Get("/categories", catalogHandler.Categories)
		v.Post("/carts", catalogHandler.SyncCart)

		v.With(couponLimit.Middleware).Get("/coupons/validate", couponHandler.Validate)
		v.With(idem.Middleware).Post("/checkout", checkoutHandler.Checkout)

		v.Get("/users/me", memberHandler.GetMe)
		v.Post("/users/me", memberHandler.UpdateMe)
		v.Get("/users/me/orders", orderHandler.Mine)
		v.Post("/address/validate", memberHandler.ValidateAddress)

		v.Route("/admin", func(admin chi.Router) {
			admin.Post("/login", authHandler.Login)

			admin.Group(func(g chi.Router) {
				g.Use(authMiddleware.RequireAdmin)
				g.Use(security.NoStore)
				g.Use(auditRecorder.Middleware)
				g.Get("/me", authHandler.Me)

				g.Get("/store", storeHandler.GetStore)
				g.Put("/store", storeHandler.UpdateStore)
				g.Get("/settings", storeHandler.GetSettings)
				g.Put("/settings", storeHandler.UpdateSettings)

				g.Get("/products", catalogHandler.AdminProducts)
				g.Put("/products", catalogHandler.ReplaceProducts)
				g.Get("/products/top10", exportHandler.TopProducts)
				g.Put("/products/{name}", catalogHandler.UpsertProduct)
				g.Delete("/products/{name}", catalogHandler.DeleteProduct)
				g.Put("/categories", catalogHandler.ReplaceCategories)

				g.Get("/coupons", couponHandler.List)
				g.Put("/coupons", couponHandler.Replace)
				g.Put("/coupons/{code}", couponHandler.Upsert)

				g.Get("/orders", orderAdmin.List)
				g.Post("/orders/bulk-ship", orderAdmin.BulkShip)
				g.Post("/orders/bulk-complete", orderAdmin.BulkComplete)
				g.Get("/orders/{id}", orderAdmin.Get)
				g.Patch("/orders/{id}", orderAdmin.Patch)
				g.Post("/orders/{id}/status", orderAdmin.SetStatus)
				g.Post("/orders/{id}/remove", orderAdmin.Remove)

				g.Get("/members", memberHandler.List)
				g.Post("/members/{userId}/contact", memberHandler.UpdateContact)

				g.Get("/export/daily-revenue", exportHandler.DailyRevenue)
				g.Post("/export/export-and-settle", exportHandler.ExportAndSettle)
				g.Get("/export/packing-list", exportHandler.PackingList)
			})
		})
	})

	a.Router = r
	return a, nil
}

// ServeHTTP lets App act as the server handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.Router.ServeHTTP(w, r)
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
