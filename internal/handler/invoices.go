package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/almacen-erp/api/internal/database"
	"github.com/almacen-erp/api/internal/enum"
	"github.com/almacen-erp/api/internal/middleware"
	"github.com/almacen-erp/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// InvoiceStore defines the database methods needed by invoice handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type InvoiceStore interface {
	NextInvoiceNumber(ctx context.Context) (int64, error)
	CreateInvoice(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error)
	CreateInvoiceItem(ctx context.Context, arg database.CreateInvoiceItemParams) (database.InvoiceItem, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (database.Invoice, error)
	ListInvoices(ctx context.Context, arg database.ListInvoicesParams) ([]database.Invoice, error)
	ListInvoiceItemsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]database.InvoiceItem, error)
	UpdateInvoice(ctx context.Context, arg database.UpdateInvoiceParams) (database.Invoice, error)
	DeleteInvoiceItems(ctx context.Context, invoiceID uuid.UUID) error
	UpdateInvoiceStatus(ctx context.Context, arg database.UpdateInvoiceStatusParams) (database.Invoice, error)
}

// NewInvoiceStore creates an InvoiceStore from a DBTX (pool or tx).
type NewInvoiceStore func(db database.DBTX) InvoiceStore

// InvoiceHandler handles invoice endpoints.
type InvoiceHandler struct {
	store    InvoiceStore
	pool     service.TxBeginner
	newStore NewInvoiceStore
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(store InvoiceStore, pool service.TxBeginner, newStore NewInvoiceStore) *InvoiceHandler {
	return &InvoiceHandler{store: store, pool: pool, newStore: newStore}
}

// RegisterRoutes registers invoice endpoints on the given Chi router.
func (h *InvoiceHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Patch("/status", h.UpdateStatus)
	})
}

// --- Request / Response types ---

type invoiceRequest struct {
	CustomerID     string               `json:"customer_id"`
	OrderID        string               `json:"order_id"`
	TaxAmount      string               `json:"tax_amount"`
	DiscountAmount string               `json:"discount_amount"`
	DueDate        string               `json:"due_date"`
	Notes          string               `json:"notes"`
	Items          []invoiceItemRequest `json:"items"`
}

type invoiceItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type invoiceResponse struct {
	ID             uuid.UUID             `json:"id"`
	InvoiceNumber  string                `json:"invoice_number"`
	CustomerID     *string               `json:"customer_id"`
	OrderID        *string               `json:"order_id"`
	Status         string                `json:"status"`
	Subtotal       string                `json:"subtotal"`
	TaxAmount      string                `json:"tax_amount"`
	DiscountAmount string                `json:"discount_amount"`
	Total          string                `json:"total"`
	PaidAmount     string                `json:"paid_amount"`
	DueDate        *string               `json:"due_date"`
	Notes          *string               `json:"notes"`
	CreatedBy      uuid.UUID             `json:"created_by"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	Items          []invoiceItemResponse `json:"items,omitempty"`
}

type invoiceItemResponse struct {
	ID         uuid.UUID `json:"id"`
	ProductID  uuid.UUID `json:"product_id"`
	Quantity   int32     `json:"quantity"`
	UnitPrice  string    `json:"unit_price"`
	TotalPrice string    `json:"total_price"`
}

type invoiceListResponse struct {
	Invoices []invoiceResponse `json:"invoices"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func toInvoiceResponse(inv database.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:             inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		Status:         inv.Status,
		Subtotal:       numericToString(inv.Subtotal),
		TaxAmount:      numericToString(inv.TaxAmount),
		DiscountAmount: numericToString(inv.DiscountAmount),
		Total:          numericToString(inv.Total),
		PaidAmount:     numericToString(inv.PaidAmount),
		CreatedBy:      inv.CreatedBy,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
	if inv.CustomerID.Valid {
		s := uuid.UUID(inv.CustomerID.Bytes).String()
		resp.CustomerID = &s
	}
	if inv.OrderID.Valid {
		s := uuid.UUID(inv.OrderID.Bytes).String()
		resp.OrderID = &s
	}
	if inv.DueDate.Valid {
		s := inv.DueDate.Time.Format("2006-01-02")
		resp.DueDate = &s
	}
	if inv.Notes.Valid {
		resp.Notes = &inv.Notes.String
	}
	return resp
}

func toInvoiceItemResponse(item database.InvoiceItem) invoiceItemResponse {
	return invoiceItemResponse{
		ID:         item.ID,
		ProductID:  item.ProductID,
		Quantity:   item.Quantity,
		UnitPrice:  numericToString(item.UnitPrice),
		TotalPrice: numericToString(item.TotalPrice),
	}
}

// parseInvoiceRequest validates shared fields and computes totals. Returns a
// non-empty error message when validation fails.
type parsedInvoice struct {
	customerID     pgtype.UUID
	orderID        pgtype.UUID
	subtotal       decimal.Decimal
	taxAmount      decimal.Decimal
	discountAmount decimal.Decimal
	total          decimal.Decimal
	dueDate        pgtype.Date
	notes          pgtype.Text
	items          []parsedInvoiceItem
}

type parsedInvoiceItem struct {
	productID uuid.UUID
	quantity  int32
	unitPrice decimal.Decimal
}

func parseInvoiceRequest(req invoiceRequest) (parsedInvoice, string) {
	var p parsedInvoice

	if len(req.Items) == 0 {
		return p, "items are required"
	}

	if req.CustomerID != "" {
		id, err := uuid.Parse(req.CustomerID)
		if err != nil {
			return p, "invalid customer_id"
		}
		p.customerID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if req.OrderID != "" {
		id, err := uuid.Parse(req.OrderID)
		if err != nil {
			return p, "invalid order_id"
		}
		p.orderID = pgtype.UUID{Bytes: id, Valid: true}
	}

	p.taxAmount = decimal.Zero
	if req.TaxAmount != "" {
		d, err := decimal.NewFromString(req.TaxAmount)
		if err != nil || d.IsNegative() {
			return p, "invalid tax_amount"
		}
		p.taxAmount = d
	}
	p.discountAmount = decimal.Zero
	if req.DiscountAmount != "" {
		d, err := decimal.NewFromString(req.DiscountAmount)
		if err != nil || d.IsNegative() {
			return p, "invalid discount_amount"
		}
		p.discountAmount = d
	}

	if req.DueDate != "" {
		t, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			return p, "invalid due_date format, use YYYY-MM-DD"
		}
		p.dueDate = pgtype.Date{Time: t, Valid: true}
	}
	if req.Notes != "" {
		p.notes = pgtype.Text{String: req.Notes, Valid: true}
	}

	p.subtotal = decimal.Zero
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return p, fmt.Sprintf("items[%d]: quantity must be > 0", i)
		}
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return p, fmt.Sprintf("items[%d]: invalid product_id", i)
		}
		unitPrice, err := decimal.NewFromString(item.UnitPrice)
		if err != nil || unitPrice.IsNegative() {
			return p, fmt.Sprintf("items[%d]: invalid unit_price", i)
		}
		p.subtotal = p.subtotal.Add(unitPrice.Mul(decimal.NewFromInt32(item.Quantity)))
		p.items = append(p.items, parsedInvoiceItem{
			productID: productID,
			quantity:  item.Quantity,
			unitPrice: unitPrice,
		})
	}

	p.total = p.subtotal.Sub(p.discountAmount).Add(p.taxAmount)
	if p.total.IsNegative() {
		return p, "discount_amount exceeds subtotal plus tax"
	}
	return p, ""
}

// --- Handlers ---

// Create handles POST /invoices. The header and all items are written in one
// transaction.
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req invoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	parsed, errMsg := parseInvoiceRequest(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		log.Printf("ERROR: begin tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck

	txStore := h.newStore(tx)

	nextNum, err := txStore.NextInvoiceNumber(r.Context())
	if err != nil {
		log.Printf("ERROR: next invoice number: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	invoice, err := txStore.CreateInvoice(r.Context(), database.CreateInvoiceParams{
		InvoiceNumber:  fmt.Sprintf("INV-%03d", nextNum),
		CustomerID:     parsed.customerID,
		OrderID:        parsed.orderID,
		Subtotal:       decimalToNumeric(parsed.subtotal),
		TaxAmount:      decimalToNumeric(parsed.taxAmount),
		DiscountAmount: decimalToNumeric(parsed.discountAmount),
		Total:          decimalToNumeric(parsed.total),
		DueDate:        parsed.dueDate,
		Notes:          parsed.notes,
		CreatedBy:      claims.UserID,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "referenced customer or order does not exist"})
			return
		}
		log.Printf("ERROR: create invoice: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.insertInvoiceItems(r.Context(), txStore, invoice.ID, parsed.items)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "referenced product does not exist"})
			return
		}
		log.Printf("ERROR: create invoice items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := toInvoiceResponse(invoice)
	resp.Items = items
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /invoices.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	// Parse pagination
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListInvoicesParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		if !isValidInvoiceStatus(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("customer_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid customer_id"})
			return
		}
		params.CustomerID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date format, use YYYY-MM-DD"})
			return
		}
		params.StartDate = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date format, use YYYY-MM-DD"})
			return
		}
		params.EndDate = pgtype.Timestamptz{Time: t, Valid: true}
	}

	invoices, err := h.store.ListInvoices(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list invoices: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]invoiceResponse, len(invoices))
	for i, inv := range invoices {
		resp[i] = toInvoiceResponse(inv)
	}

	writeJSON(w, http.StatusOK, invoiceListResponse{
		Invoices: resp,
		Limit:    limit,
		Offset:   offset,
	})
}

// Get handles GET /invoices/{id}.
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice ID"})
		return
	}

	invoice, err := h.store.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invoice not found"})
			return
		}
		log.Printf("ERROR: get invoice: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListInvoiceItemsByInvoice(r.Context(), invoiceID)
	if err != nil {
		log.Printf("ERROR: list invoice items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := toInvoiceResponse(invoice)
	resp.Items = make([]invoiceItemResponse, len(items))
	for i, item := range items {
		resp.Items[i] = toInvoiceItemResponse(item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Update handles PUT /invoices/{id}. Items are fully replaced: existing lines
// are deleted and the submitted set is inserted, all in one transaction.
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice ID"})
		return
	}

	var req invoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	parsed, errMsg := parseInvoiceRequest(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	current, err := h.store.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invoice not found"})
			return
		}
		log.Printf("ERROR: get invoice for update: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	// Paid and cancelled invoices are frozen.
	if current.Status == enum.InvoiceStatusPaid || current.Status == enum.InvoiceStatusCancelled {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot modify a " + current.Status + " invoice"})
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		log.Printf("ERROR: begin tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck

	txStore := h.newStore(tx)

	invoice, err := txStore.UpdateInvoice(r.Context(), database.UpdateInvoiceParams{
		ID:             invoiceID,
		CustomerID:     parsed.customerID,
		Subtotal:       decimalToNumeric(parsed.subtotal),
		TaxAmount:      decimalToNumeric(parsed.taxAmount),
		DiscountAmount: decimalToNumeric(parsed.discountAmount),
		Total:          decimalToNumeric(parsed.total),
		DueDate:        parsed.dueDate,
		Notes:          parsed.notes,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invoice not found"})
			return
		}
		log.Printf("ERROR: update invoice: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := txStore.DeleteInvoiceItems(r.Context(), invoiceID); err != nil {
		log.Printf("ERROR: delete invoice items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.insertInvoiceItems(r.Context(), txStore, invoiceID, parsed.items)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "referenced product does not exist"})
			return
		}
		log.Printf("ERROR: create invoice items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := toInvoiceResponse(invoice)
	resp.Items = items
	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus handles PATCH /invoices/{id}/status.
func (h *InvoiceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}
	if !isValidInvoiceStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	// Paid is set by the payment flow, not by hand.
	if req.Status == enum.InvoiceStatusPaid {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "paid status is set by recording payments"})
		return
	}

	current, err := h.store.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invoice not found"})
			return
		}
		log.Printf("ERROR: get invoice for status update: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if current.Status == enum.InvoiceStatusPaid || current.Status == enum.InvoiceStatusCancelled {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot modify a " + current.Status + " invoice"})
		return
	}

	invoice, err := h.store.UpdateInvoiceStatus(r.Context(), database.UpdateInvoiceStatusParams{
		ID:     invoiceID,
		Status: req.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invoice not found"})
			return
		}
		log.Printf("ERROR: update invoice status: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

// --- Helpers ---

func (h *InvoiceHandler) insertInvoiceItems(ctx context.Context, store InvoiceStore, invoiceID uuid.UUID, items []parsedInvoiceItem) ([]invoiceItemResponse, error) {
	resp := make([]invoiceItemResponse, 0, len(items))
	for _, item := range items {
		created, err := store.CreateInvoiceItem(ctx, database.CreateInvoiceItemParams{
			InvoiceID: invoiceID,
			ProductID: item.productID,
			Quantity:  item.quantity,
			UnitPrice: decimalToNumeric(item.unitPrice),
		})
		if err != nil {
			return nil, err
		}
		resp = append(resp, toInvoiceItemResponse(created))
	}
	return resp, nil
}

func isValidInvoiceStatus(s string) bool {
	switch s {
	case enum.InvoiceStatusPending,
		enum.InvoiceStatusPaid,
		enum.InvoiceStatusOverdue,
		enum.InvoiceStatusCancelled:
		return true
	}
	return false
}
