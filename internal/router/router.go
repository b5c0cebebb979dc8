package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/config"
	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/enum"
	"github.com/branchline/api/internal/events"
	"github.com/branchline/api/internal/handler"
	mw "github.com/branchline/api/internal/middleware"
	"github.com/branchline/api/internal/service"
	"github.com/branchline/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication, branch scoping, and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, bus *events.Bus, log *zap.Logger) (chi.Router, error) {
	policy, err := service.PolicyFor(cfg.OrderTransitionPolicy)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(mw.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Services
	branchService := service.NewBranchService(queries, log.Named("branches"))
	menuService := service.NewMenuService(queries)
	settingsService := service.NewSettingsService(queries)
	userService := service.NewUserService(queries, log.Named("users"))
	categoryService := service.NewCategoryService(queries, log.Named("categories"))
	orderService := service.NewOrderService(
		pool,
		func(db database.DBTX) service.OrderStore { return database.New(db) },
		queries,
		policy,
		bus,
		log.Named("orders"),
	)

	// Public routes
	r.Get("/health", health(pool))

	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret, log.Named("auth"))
	authHandler.RegisterRoutes(r)

	// WebSocket routes (handle auth internally via query param)
	r.Get("/ws/devices/{deviceID}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeDeviceWS(hub, cfg.JWTSecret, branchService, w, r)
	})
	r.Get("/ws/branches/{bid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Storefront: anonymous reads, authenticated order submission
	storefrontHandler := handler.NewStorefrontHandler(branchService, orderService, log.Named("storefront"))
	r.Route("/storefront", func(r chi.Router) {
		storefrontHandler.RegisterPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(cfg.JWTSecret))
			storefrontHandler.RegisterOrderRoutes(r)
		})
	})

	// Staff and admin routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleStaff))

		branchHandler := handler.NewBranchHandler(branchService, log.Named("branches"))
		menuHandler := handler.NewMenuHandler(menuService, log.Named("menu"))
		categoryHandler := handler.NewCategoryHandler(categoryService, log.Named("categories"))
		orderHandler := handler.NewOrderHandler(orderService, branchService, log.Named("orders"))
		reportsHandler := handler.NewReportsHandler(queries, log.Named("reports"))
		settingsHandler := handler.NewSettingsHandler(settingsService, log.Named("settings"))

		r.Route("/branches", func(r chi.Router) {
			branchHandler.RegisterRoutes(r)

			// Branch-scoped routes
			r.Route("/{bid}", func(r chi.Router) {
				r.Use(mw.RequireBranch)
				branchHandler.RegisterBranchRoutes(r)
				r.Route("/menu-items", menuHandler.RegisterRoutes)
				r.Route("/categories", categoryHandler.RegisterRoutes)
				r.Route("/orders", orderHandler.RegisterBranchRoutes)
				r.Route("/reports", reportsHandler.RegisterRoutes)
			})
		})

		r.Route("/orders", orderHandler.RegisterRoutes)
		r.Route("/settings", settingsHandler.RegisterRoutes)

		r.Route("/users", func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))
			handler.NewUserHandler(userService, log.Named("users")).RegisterRoutes(r)
		})
	})

	log.Info("router initialized", zap.String("transition_policy", policy.Name()))
	return r, nil
}

// health reports ok when the database answers a ping.
func health(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	}
}
