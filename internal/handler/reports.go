package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/almacen-erp/api/internal/database"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ReportStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries.
type ReportStore interface {
	GetSalesSummary(ctx context.Context, arg database.GetSalesSummaryParams) (database.SalesSummaryRow, error)
	ListTopProducts(ctx context.Context, arg database.ListTopProductsParams) ([]database.TopProductRow, error)
	ListLowStockProducts(ctx context.Context) ([]database.Product, error)
	GetPaymentSummary(ctx context.Context, arg database.GetPaymentSummaryParams) ([]database.PaymentMethodSummaryRow, error)
	ListCustomerBalances(ctx context.Context) ([]database.CustomerBalanceRow, error)
	ListSupplierBalances(ctx context.Context) ([]database.SupplierBalanceRow, error)
}

// ReportHandler handles reporting endpoints.
type ReportHandler struct {
	store ReportStore
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(store ReportStore) *ReportHandler {
	return &ReportHandler{store: store}
}

// RegisterRoutes registers report endpoints on the given Chi router.
func (h *ReportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sales-summary", h.SalesSummary)
	r.Get("/top-products", h.TopProducts)
	r.Get("/low-stock", h.LowStock)
	r.Get("/payment-summary", h.PaymentSummary)
	r.Get("/customer-balances", h.CustomerBalances)
	r.Get("/supplier-balances", h.SupplierBalances)
}

// --- Response types ---

type salesSummaryResponse struct {
	OrderCount    int64  `json:"order_count"`
	GrossSales    string `json:"gross_sales"`
	DiscountTotal string `json:"discount_total"`
	TaxTotal      string `json:"tax_total"`
	NetSales      string `json:"net_sales"`
}

type topProductResponse struct {
	ProductID    uuid.UUID `json:"product_id"`
	Sku          string    `json:"sku"`
	Name         string    `json:"name"`
	QuantitySold int64     `json:"quantity_sold"`
	Revenue      string    `json:"revenue"`
}

type paymentSummaryResponse struct {
	PaymentMethod string `json:"payment_method"`
	Count         int64  `json:"count"`
	Total         string `json:"total"`
}

type customerBalanceRow struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Name       string    `json:"name"`
	OrderTotal string    `json:"order_total"`
	PaidTotal  string    `json:"paid_total"`
	Balance    string    `json:"balance"`
}

type supplierBalanceRow struct {
	SupplierID uuid.UUID `json:"supplier_id"`
	Name       string    `json:"name"`
	Balance    string    `json:"balance"`
}

// --- Handlers ---

// SalesSummary handles GET /reports/sales-summary.
func (h *ReportHandler) SalesSummary(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, errMsg := parseDateWindow(r)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	summary, err := h.store.GetSalesSummary(r.Context(), database.GetSalesSummaryParams{
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		log.Printf("ERROR: get sales summary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, salesSummaryResponse{
		OrderCount:    summary.OrderCount,
		GrossSales:    numericToString(summary.GrossSales),
		DiscountTotal: numericToString(summary.DiscountTotal),
		TaxTotal:      numericToString(summary.TaxTotal),
		NetSales:      numericToString(summary.NetSales),
	})
}

// TopProducts handles GET /reports/top-products.
func (h *ReportHandler) TopProducts(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, errMsg := parseDateWindow(r)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	products, err := h.store.ListTopProducts(r.Context(), database.ListTopProductsParams{
		StartDate: startDate,
		EndDate:   endDate,
		Limit:     int32(limit),
	})
	if err != nil {
		log.Printf("ERROR: list top products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]topProductResponse, len(products))
	for i, p := range products {
		resp[i] = topProductResponse{
			ProductID:    p.ProductID,
			Sku:          p.Sku,
			Name:         p.Name,
			QuantitySold: p.QuantitySold,
			Revenue:      numericToString(p.Revenue),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// LowStock handles GET /reports/low-stock.
func (h *ReportHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListLowStockProducts(r.Context())
	if err != nil {
		log.Printf("ERROR: list low stock products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}

	writeJSON(w, http.StatusOK, resp)
}

// PaymentSummary handles GET /reports/payment-summary.
func (h *ReportHandler) PaymentSummary(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, errMsg := parseDateWindow(r)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	summary, err := h.store.GetPaymentSummary(r.Context(), database.GetPaymentSummaryParams{
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		log.Printf("ERROR: get payment summary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentSummaryResponse, len(summary))
	for i, s := range summary {
		resp[i] = paymentSummaryResponse{
			PaymentMethod: s.PaymentMethod,
			Count:         s.Count,
			Total:         numericToString(s.Total),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// CustomerBalances handles GET /reports/customer-balances.
func (h *ReportHandler) CustomerBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.store.ListCustomerBalances(r.Context())
	if err != nil {
		log.Printf("ERROR: list customer balances: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]customerBalanceRow, len(balances))
	for i, b := range balances {
		resp[i] = customerBalanceRow{
			CustomerID: b.CustomerID,
			Name:       b.Name,
			OrderTotal: numericToString(b.OrderTotal),
			PaidTotal:  numericToString(b.PaidTotal),
			Balance:    numericToString(b.Balance),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// SupplierBalances handles GET /reports/supplier-balances.
func (h *ReportHandler) SupplierBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.store.ListSupplierBalances(r.Context())
	if err != nil {
		log.Printf("ERROR: list supplier balances: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]supplierBalanceRow, len(balances))
	for i, b := range balances {
		resp[i] = supplierBalanceRow{
			SupplierID: b.SupplierID,
			Name:       b.Name,
			Balance:    numericToString(b.Balance),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// parseDateWindow reads optional start_date and end_date query params.
func parseDateWindow(r *http.Request) (pgtype.Timestamptz, pgtype.Timestamptz, string) {
	var start, end pgtype.Timestamptz
	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return start, end, "invalid start_date format, use YYYY-MM-DD"
		}
		start = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return start, end, "invalid end_date format, use YYYY-MM-DD"
		}
		end = pgtype.Timestamptz{Time: t, Valid: true}
	}
	return start, end, ""
}
