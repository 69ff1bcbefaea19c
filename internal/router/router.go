package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tabletab/api/internal/config"
	"github.com/tabletab/api/internal/database"
	"github.com/tabletab/api/internal/enum"
	"github.com/tabletab/api/internal/fees"
	"github.com/tabletab/api/internal/gateway"
	"github.com/tabletab/api/internal/handler"
	mw "github.com/tabletab/api/internal/middleware"
	"github.com/tabletab/api/internal/rewards"
	"github.com/tabletab/api/internal/service"
	"github.com/tabletab/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Guests reach order creation, lookup and payment verification without
// a token; everything else sits behind authentication, with reports
// and expenses further restricted to managers and admins.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	mw.InitMetrics()
	r.Use(mw.Metrics)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Shared infrastructure
	publisher := ws.NewPublisher(hub)
	feeCalc := fees.NewCalculator(queries, cfg.FeeCacheTTL)
	payClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewaySecret, cfg.GatewayRedirectURL)
	offers := rewards.NewService(queries)

	newOrderStore := func(db database.DBTX) service.OrderStore { return database.New(db) }
	newTabStore := func(db database.DBTX) service.TabStore { return database.New(db) }
	newSettlementStore := func(db database.DBTX) service.SettlementStore { return database.New(db) }

	orderService := service.NewOrderService(pool, queries, newOrderStore, feeCalc, publisher, payClient)
	tabService := service.NewTabService(pool, queries, newTabStore, feeCalc, offers)
	settlementService := service.NewSettlementService(pool, queries, newSettlementStore, payClient, publisher)
	reportService := service.NewReportService(queries)

	orderHandler := handler.NewOrderHandler(orderService)
	tabHandler := handler.NewTabHandler(tabService)
	paymentHandler := handler.NewPaymentHandler(settlementService)
	reportHandler := handler.NewReportHandler(reportService)
	expenseHandler := handler.NewExpenseHandler(queries)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket routes (handle auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, ws.TopicOrders, w, r)
	})
	r.Get("/ws/kitchen", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, ws.TopicKitchen, w, r)
	})

	// Guest-reachable routes. Auth is optional here: a token attributes
	// the order to the caller, its absence means a guest checkout.
	r.Group(func(r chi.Router) {
		r.Use(mw.OptionalAuthenticate(cfg.JWTSecret))

		orderHandler.RegisterPublicRoutes(r)
		paymentHandler.RegisterPublicRoutes(r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		orderHandler.RegisterStaffRoutes(r)
		tabHandler.RegisterRoutes(r)
		paymentHandler.RegisterStaffRoutes(r)

		// Manager and admin only
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleManager))
			reportHandler.RegisterRoutes(r)
			expenseHandler.RegisterRoutes(r)
		})
	})

	return r
}
