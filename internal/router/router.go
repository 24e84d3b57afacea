package router

import (
	"net/http"

	"github.com/almacen-erp/api/internal/config"
	"github.com/almacen-erp/api/internal/database"
	"github.com/almacen-erp/api/internal/enum"
	"github.com/almacen-erp/api/internal/handler"
	mw "github.com/almacen-erp/api/internal/middleware"
	"github.com/almacen-erp/api/internal/service"
	"github.com/almacen-erp/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))

			userHandler := handler.NewUserHandler(queries)
			r.Route("/users", userHandler.RegisterRoutes)
		})

		// Catalog
		categoryHandler := handler.NewCategoryHandler(queries)
		r.Route("/categories", categoryHandler.RegisterRoutes)

		unitHandler := handler.NewUnitHandler(queries)
		r.Route("/units", unitHandler.RegisterRoutes)

		productHandler := handler.NewProductHandler(
			queries,
			pool,
			func(db database.DBTX) handler.ProductStore {
				return database.New(db)
			},
		)
		r.Route("/products", productHandler.RegisterRoutes)

		stockMovementHandler := handler.NewStockMovementHandler(queries)
		r.Route("/stock-movements", stockMovementHandler.RegisterRoutes)

		// Parties
		customerHandler := handler.NewCustomerHandler(queries)
		r.Route("/customers", customerHandler.RegisterRoutes)

		supplierHandler := handler.NewSupplierHandler(queries)
		r.Route("/suppliers", supplierHandler.RegisterRoutes)

		// Orders
		orderService := service.NewOrderService(pool, func(db database.DBTX) service.OrderStore {
			return database.New(db)
		})
		orderHandler := handler.NewOrderHandler(orderService, queries, hub)
		r.Route("/orders", orderHandler.RegisterRoutes)

		// Invoices
		invoiceHandler := handler.NewInvoiceHandler(
			queries,
			pool,
			func(db database.DBTX) handler.InvoiceStore {
				return database.New(db)
			},
		)
		r.Route("/invoices", invoiceHandler.RegisterRoutes)

		// Payments
		paymentHandler := handler.NewPaymentHandler(
			queries,
			pool,
			func(db database.DBTX) handler.PaymentStore {
				return database.New(db)
			},
		)
		r.Route("/payments", paymentHandler.RegisterRoutes)

		// Purchasing
		purchaseOrderHandler := handler.NewPurchaseOrderHandler(
			queries,
			pool,
			func(db database.DBTX) handler.PurchaseOrderStore {
				return database.New(db)
			},
		)
		r.Route("/purchase-orders", purchaseOrderHandler.RegisterRoutes)

		// Register closures
		closureHandler := handler.NewClosureHandler(queries)
		r.Route("/closures", closureHandler.RegisterRoutes)

		// Reports
		reportHandler := handler.NewReportHandler(queries)
		r.Route("/reports", reportHandler.RegisterRoutes)
	})

	return r
}
