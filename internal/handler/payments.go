package handler

import (
	"context"
	"encoding/json"
	"errors"
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
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// PaymentStore defines the database methods needed by payment handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type PaymentStore interface {
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (database.Payment, error)
	ListPayments(ctx context.Context, arg database.ListPaymentsParams) ([]database.Payment, error)
	UpdatePayment(ctx context.Context, arg database.UpdatePaymentParams) (database.Payment, error)
	DeletePayment(ctx context.Context, id uuid.UUID) (database.Payment, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (database.Invoice, error)
	SumCompletedPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error)
	SumCompletedPaymentsByInvoice(ctx context.Context, invoiceID uuid.UUID) (pgtype.Numeric, error)
	UpdateOrderPaymentStatus(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error)
	UpdateInvoicePayment(ctx context.Context, arg database.UpdateInvoicePaymentParams) (database.Invoice, error)
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	store    PaymentStore
	pool     service.TxBeginner
	newStore NewPaymentStore
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(store PaymentStore, pool service.TxBeginner, newStore NewPaymentStore) *PaymentHandler {
	return &PaymentHandler{store: store, pool: pool, newStore: newStore}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})
}

// --- Request / Response types ---

type createPaymentRequest struct {
	OrderID       string `json:"order_id"`
	InvoiceID     string `json:"invoice_id"`
	Amount        string `json:"amount"`
	PaymentMethod string `json:"payment_method"`
	PaymentDate   string `json:"payment_date"`
	Reference     string `json:"reference"`
	Notes         string `json:"notes"`
}

type updatePaymentRequest struct {
	Amount        string `json:"amount"`
	PaymentMethod string `json:"payment_method"`
	PaymentDate   string `json:"payment_date"`
	Notes         string `json:"notes"`
}

type paymentResponse struct {
	ID            uuid.UUID `json:"id"`
	OrderID       *string   `json:"order_id"`
	InvoiceID     *string   `json:"invoice_id"`
	CustomerID    *string   `json:"customer_id"`
	Amount        string    `json:"amount"`
	PaymentMethod string    `json:"payment_method"`
	Status        string    `json:"status"`
	PaymentDate   time.Time `json:"payment_date"`
	Reference     *string   `json:"reference"`
	Notes         *string   `json:"notes"`
	CreatedBy     uuid.UUID `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type paymentListResponse struct {
	Payments []paymentResponse `json:"payments"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func dbPaymentToResponse(p database.Payment) paymentResponse {
	resp := paymentResponse{
		ID:            p.ID,
		Amount:        numericToString(p.Amount),
		PaymentMethod: p.PaymentMethod,
		Status:        p.Status,
		PaymentDate:   p.PaymentDate,
		CreatedBy:     p.CreatedBy,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.OrderID.Valid {
		s := uuid.UUID(p.OrderID.Bytes).String()
		resp.OrderID = &s
	}
	if p.InvoiceID.Valid {
		s := uuid.UUID(p.InvoiceID.Bytes).String()
		resp.InvoiceID = &s
	}
	if p.CustomerID.Valid {
		s := uuid.UUID(p.CustomerID.Bytes).String()
		resp.CustomerID = &s
	}
	if p.Reference.Valid {
		resp.Reference = &p.Reference.String
	}
	if p.Notes.Valid {
		resp.Notes = &p.Notes.String
	}
	return resp
}

// --- Handlers ---

// Create handles POST /payments. The target order or invoice row is locked
// for the duration of the transaction, so concurrent payments against the
// same target serialize and the overpayment check holds.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if (req.OrderID == "") == (req.InvoiceID == "") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exactly one of order_id or invoice_id is required"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be > 0"})
		return
	}

	if !isValidPaymentMethod(req.PaymentMethod) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_method"})
		return
	}

	paymentDate := time.Now()
	if req.PaymentDate != "" {
		t, err := time.Parse("2006-01-02", req.PaymentDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_date format, use YYYY-MM-DD"})
			return
		}
		paymentDate = t
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		log.Printf("ERROR: begin tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck

	txStore := h.newStore(tx)

	params := database.CreatePaymentParams{
		Amount:        decimalToNumeric(amount),
		PaymentMethod: req.PaymentMethod,
		Status:        enum.PaymentStatusCompleted,
		PaymentDate:   paymentDate,
		Reference:     optionalText(req.Reference),
		Notes:         optionalText(req.Notes),
		CreatedBy:     claims.UserID,
	}

	if req.OrderID != "" {
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_id"})
			return
		}

		order, err := txStore.GetOrderForUpdate(r.Context(), orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
				return
			}
			log.Printf("ERROR: lock order for payment: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		if order.Status == enum.OrderStatusCancelled {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot pay a cancelled order"})
			return
		}

		paid, err := txStore.SumCompletedPaymentsByOrder(r.Context(), orderID)
		if err != nil {
			log.Printf("ERROR: sum payments for order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}

		total := numericToDecimal(order.Total)
		remaining := total.Sub(numericToDecimal(paid))
		if amount.GreaterThan(remaining) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":     "payment exceeds remaining balance",
				"total":     total.StringFixed(2),
				"paid":      numericToString(paid),
				"remaining": remaining.StringFixed(2),
			})
			return
		}

		params.OrderID = pgtype.UUID{Bytes: orderID, Valid: true}
		params.CustomerID = order.CustomerID

		payment, err := txStore.CreatePayment(r.Context(), params)
		if err != nil {
			log.Printf("ERROR: create payment: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}

		if err := recomputeOrderPaymentStatus(r.Context(), txStore, orderID, total); err != nil {
			log.Printf("ERROR: recompute order payment status: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}

		if err := tx.Commit(r.Context()); err != nil {
			log.Printf("ERROR: commit tx: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		writeJSON(w, http.StatusCreated, dbPaymentToResponse(payment))
		return
	}

	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice_id"})
		return
	}

	invoice, err := txStore.GetInvoiceForUpdate(r.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invoice not found"})
			return
		}
		log.Printf("ERROR: lock invoice for payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if invoice.Status == enum.InvoiceStatusCancelled {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot pay a cancelled invoice"})
		return
	}

	paid, err := txStore.SumCompletedPaymentsByInvoice(r.Context(), invoiceID)
	if err != nil {
		log.Printf("ERROR: sum payments for invoice: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	total := numericToDecimal(invoice.Total)
	remaining := total.Sub(numericToDecimal(paid))
	if amount.GreaterThan(remaining) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "payment exceeds remaining balance",
			"total":     total.StringFixed(2),
			"paid":      numericToString(paid),
			"remaining": remaining.StringFixed(2),
		})
		return
	}

	params.InvoiceID = pgtype.UUID{Bytes: invoiceID, Valid: true}
	params.CustomerID = invoice.CustomerID

	payment, err := txStore.CreatePayment(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: create payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := recomputeInvoicePayment(r.Context(), txStore, invoiceID, invoice.Status, total); err != nil {
		log.Printf("ERROR: recompute invoice payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, dbPaymentToResponse(payment))
}

// List handles GET /payments.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
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

	params := database.ListPaymentsParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}

	if s := r.URL.Query().Get("order_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_id"})
			return
		}
		params.OrderID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if s := r.URL.Query().Get("invoice_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice_id"})
			return
		}
		params.InvoiceID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if s := r.URL.Query().Get("customer_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid customer_id"})
			return
		}
		params.CustomerID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if s := r.URL.Query().Get("payment_method"); s != "" {
		if !isValidPaymentMethod(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_method"})
			return
		}
		params.PaymentMethod = pgtype.Text{String: s, Valid: true}
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

	payments, err := h.store.ListPayments(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = dbPaymentToResponse(p)
	}

	writeJSON(w, http.StatusOK, paymentListResponse{
		Payments: resp,
		Limit:    limit,
		Offset:   offset,
	})
}

// Get handles GET /payments/{id}.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment ID"})
		return
	}

	payment, err := h.store.GetPayment(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "payment not found"})
			return
		}
		log.Printf("ERROR: get payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, dbPaymentToResponse(payment))
}

// Update handles PUT /payments/{id}. When the payment targets an order, the
// order's payment status is recomputed against the corrected amount.
func (h *PaymentHandler) Update(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment ID"})
		return
	}

	var req updatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be > 0"})
		return
	}

	if !isValidPaymentMethod(req.PaymentMethod) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_method"})
		return
	}

	paymentDate := time.Now()
	if req.PaymentDate != "" {
		t, err := time.Parse("2006-01-02", req.PaymentDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_date format, use YYYY-MM-DD"})
			return
		}
		paymentDate = t
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		log.Printf("ERROR: begin tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck

	txStore := h.newStore(tx)

	existing, err := txStore.GetPayment(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "payment not found"})
			return
		}
		log.Printf("ERROR: get payment for update: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	// Lock and overpayment-check the linked order, excluding this payment's
	// current amount from the paid total.
	var orderTotal decimal.Decimal
	if existing.OrderID.Valid {
		orderID := uuid.UUID(existing.OrderID.Bytes)
		order, err := txStore.GetOrderForUpdate(r.Context(), orderID)
		if err != nil {
			log.Printf("ERROR: lock order for payment update: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		paid, err := txStore.SumCompletedPaymentsByOrder(r.Context(), orderID)
		if err != nil {
			log.Printf("ERROR: sum payments for order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}

		orderTotal = numericToDecimal(order.Total)
		remaining := orderTotal.Sub(numericToDecimal(paid)).Add(numericToDecimal(existing.Amount))
		if amount.GreaterThan(remaining) {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":     "payment exceeds remaining balance",
				"total":     orderTotal.StringFixed(2),
				"remaining": remaining.StringFixed(2),
			})
			return
		}
	}

	payment, err := txStore.UpdatePayment(r.Context(), database.UpdatePaymentParams{
		ID:            paymentID,
		Amount:        decimalToNumeric(amount),
		PaymentMethod: req.PaymentMethod,
		PaymentDate:   paymentDate,
		Notes:         optionalText(req.Notes),
	})
	if err != nil {
		log.Printf("ERROR: update payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if existing.OrderID.Valid {
		orderID := uuid.UUID(existing.OrderID.Bytes)
		if err := recomputeOrderPaymentStatus(r.Context(), txStore, orderID, orderTotal); err != nil {
			log.Printf("ERROR: recompute order payment status: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, dbPaymentToResponse(payment))
}

// Delete handles DELETE /payments/{id}.
func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment ID"})
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

	payment, err := txStore.DeletePayment(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "payment not found"})
			return
		}
		log.Printf("ERROR: delete payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if payment.OrderID.Valid {
		orderID := uuid.UUID(payment.OrderID.Bytes)
		order, err := txStore.GetOrderForUpdate(r.Context(), orderID)
		if err != nil {
			log.Printf("ERROR: lock order for payment delete: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		if err := recomputeOrderPaymentStatus(r.Context(), txStore, orderID, numericToDecimal(order.Total)); err != nil {
			log.Printf("ERROR: recompute order payment status: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit tx: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// recomputeOrderPaymentStatus re-derives the order's payment status from the
// sum of its completed payments. Caller holds the order row lock.
func recomputeOrderPaymentStatus(ctx context.Context, store PaymentStore, orderID uuid.UUID, total decimal.Decimal) error {
	paid, err := store.SumCompletedPaymentsByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	paidAmount := numericToDecimal(paid)

	// Paid iff the completed sum covers the total; a zero-total order is
	// covered from the start.
	status := enum.OrderPaymentStatusPending
	switch {
	case paidAmount.GreaterThanOrEqual(total):
		status = enum.OrderPaymentStatusPaid
	case paidAmount.IsPositive():
		status = enum.OrderPaymentStatusPartial
	}

	_, err = store.UpdateOrderPaymentStatus(ctx, database.UpdateOrderPaymentStatusParams{
		ID:            orderID,
		PaymentStatus: status,
	})
	return err
}

// recomputeInvoicePayment re-derives the invoice's paid amount and flips the
// status to paid when fully covered. Caller holds the invoice row lock.
func recomputeInvoicePayment(ctx context.Context, store PaymentStore, invoiceID uuid.UUID, currentStatus string, total decimal.Decimal) error {
	paid, err := store.SumCompletedPaymentsByInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	paidAmount := numericToDecimal(paid)

	status := currentStatus
	if paidAmount.GreaterThanOrEqual(total) {
		status = enum.InvoiceStatusPaid
	}

	_, err = store.UpdateInvoicePayment(ctx, database.UpdateInvoicePaymentParams{
		ID:         invoiceID,
		PaidAmount: decimalToNumeric(paidAmount),
		Status:     status,
	})
	return err
}
