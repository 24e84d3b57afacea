package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/almacen-erp/api/internal/database"
	"github.com/almacen-erp/api/internal/handler"
	"github.com/almacen-erp/api/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- Mock InvoiceStore ---

type mockInvoiceStore struct {
	nextInvoiceNumberFn         func(ctx context.Context) (int64, error)
	createInvoiceFn             func(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error)
	createInvoiceItemFn         func(ctx context.Context, arg database.CreateInvoiceItemParams) (database.InvoiceItem, error)
	getInvoiceFn                func(ctx context.Context, id uuid.UUID) (database.Invoice, error)
	listInvoicesFn              func(ctx context.Context, arg database.ListInvoicesParams) ([]database.Invoice, error)
	listInvoiceItemsByInvoiceFn func(ctx context.Context, invoiceID uuid.UUID) ([]database.InvoiceItem, error)
	updateInvoiceFn             func(ctx context.Context, arg database.UpdateInvoiceParams) (database.Invoice, error)
	deleteInvoiceItemsFn        func(ctx context.Context, invoiceID uuid.UUID) error
	updateInvoiceStatusFn       func(ctx context.Context, arg database.UpdateInvoiceStatusParams) (database.Invoice, error)
}

func (m *mockInvoiceStore) NextInvoiceNumber(ctx context.Context) (int64, error) {
	if m.nextInvoiceNumberFn != nil {
		return m.nextInvoiceNumberFn(ctx)
	}
	return 1, nil
}

func (m *mockInvoiceStore) CreateInvoice(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error) {
	if m.createInvoiceFn != nil {
		return m.createInvoiceFn(ctx, arg)
	}
	return database.Invoice{}, pgx.ErrNoRows
}

func (m *mockInvoiceStore) CreateInvoiceItem(ctx context.Context, arg database.CreateInvoiceItemParams) (database.InvoiceItem, error) {
	if m.createInvoiceItemFn != nil {
		return m.createInvoiceItemFn(ctx, arg)
	}
	return database.InvoiceItem{}, pgx.ErrNoRows
}

func (m *mockInvoiceStore) GetInvoice(ctx context.Context, id uuid.UUID) (database.Invoice, error) {
	if m.getInvoiceFn != nil {
		return m.getInvoiceFn(ctx, id)
	}
	return database.Invoice{}, pgx.ErrNoRows
}

func (m *mockInvoiceStore) ListInvoices(ctx context.Context, arg database.ListInvoicesParams) ([]database.Invoice, error) {
	if m.listInvoicesFn != nil {
		return m.listInvoicesFn(ctx, arg)
	}
	return []database.Invoice{}, nil
}

func (m *mockInvoiceStore) ListInvoiceItemsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]database.InvoiceItem, error) {
	if m.listInvoiceItemsByInvoiceFn != nil {
		return m.listInvoiceItemsByInvoiceFn(ctx, invoiceID)
	}
	return []database.InvoiceItem{}, nil
}

func (m *mockInvoiceStore) UpdateInvoice(ctx context.Context, arg database.UpdateInvoiceParams) (database.Invoice, error) {
	if m.updateInvoiceFn != nil {
		return m.updateInvoiceFn(ctx, arg)
	}
	return database.Invoice{}, pgx.ErrNoRows
}

func (m *mockInvoiceStore) DeleteInvoiceItems(ctx context.Context, invoiceID uuid.UUID) error {
	if m.deleteInvoiceItemsFn != nil {
		return m.deleteInvoiceItemsFn(ctx, invoiceID)
	}
	return nil
}

func (m *mockInvoiceStore) UpdateInvoiceStatus(ctx context.Context, arg database.UpdateInvoiceStatusParams) (database.Invoice, error) {
	if m.updateInvoiceStatusFn != nil {
		return m.updateInvoiceStatusFn(ctx, arg)
	}
	return database.Invoice{}, pgx.ErrNoRows
}

func setupInvoiceRouter(store *mockInvoiceStore) *chi.Mux {
	h := handler.NewInvoiceHandler(store, &mockPool{}, func(db database.DBTX) handler.InvoiceStore {
		return store
	})
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/invoices", h.RegisterRoutes)
	return r
}

func testInvoice(status string, createdBy uuid.UUID) database.Invoice {
	now := time.Now()
	return database.Invoice{
		ID:             uuid.New(),
		InvoiceNumber:  "INV-001",
		Status:         status,
		Subtotal:       testNumeric("100.00"),
		TaxAmount:      testNumeric("0.00"),
		DiscountAmount: testNumeric("0.00"),
		Total:          testNumeric("100.00"),
		PaidAmount:     testNumeric("0.00"),
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// --- Tests ---

func TestInvoiceCreate_HappyPath(t *testing.T) {
	claims := testClaims("admin")
	productID := uuid.New()

	store := &mockInvoiceStore{
		nextInvoiceNumberFn: func(ctx context.Context) (int64, error) {
			return 42, nil
		},
		createInvoiceFn: func(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error) {
			if arg.InvoiceNumber != "INV-042" {
				t.Errorf("invoice_number: got %v, want INV-042", arg.InvoiceNumber)
			}
			// subtotal 100 - discount 10 + tax 5 = 95
			if got := numericString(t, arg.Total); got != "95.00" {
				t.Errorf("total: got %v, want 95.00", got)
			}
			inv := testInvoice("draft", claims.UserID)
			inv.InvoiceNumber = arg.InvoiceNumber
			inv.Total = arg.Total
			return inv, nil
		},
		createInvoiceItemFn: func(ctx context.Context, arg database.CreateInvoiceItemParams) (database.InvoiceItem, error) {
			return database.InvoiceItem{
				ID:        uuid.New(),
				InvoiceID: arg.InvoiceID,
				ProductID: arg.ProductID,
				Quantity:  arg.Quantity,
				UnitPrice: arg.UnitPrice,
			}, nil
		},
	}

	router := setupInvoiceRouter(store)
	rr := doAuthRequest(t, router, "POST", "/invoices", map[string]interface{}{
		"tax_amount":      "5.00",
		"discount_amount": "10.00",
		"items": []map[string]interface{}{
			{"product_id": productID.String(), "quantity": 2, "unit_price": "50.00"},
		},
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["invoice_number"] != "INV-042" {
		t.Errorf("invoice_number: got %v, want INV-042", resp["invoice_number"])
	}
	if resp["total"] != "95.00" {
		t.Errorf("total: got %v, want 95.00", resp["total"])
	}
}

func TestInvoiceCreate_DiscountExceedsTotal(t *testing.T) {
	claims := testClaims("admin")
	router := setupInvoiceRouter(&mockInvoiceStore{})

	rr := doAuthRequest(t, router, "POST", "/invoices", map[string]interface{}{
		"discount_amount": "500.00",
		"items": []map[string]interface{}{
			{"product_id": uuid.New().String(), "quantity": 1, "unit_price": "100.00"},
		},
	}, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestInvoiceCreate_EmptyItems(t *testing.T) {
	claims := testClaims("admin")
	router := setupInvoiceRouter(&mockInvoiceStore{})

	rr := doAuthRequest(t, router, "POST", "/invoices", map[string]interface{}{
		"items": []map[string]interface{}{},
	}, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestInvoiceCreate_UnknownCustomer(t *testing.T) {
	claims := testClaims("admin")

	store := &mockInvoiceStore{
		createInvoiceFn: func(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error) {
			return database.Invoice{}, &pgconn.PgError{Code: "23503"}
		},
	}

	router := setupInvoiceRouter(store)
	rr := doAuthRequest(t, router, "POST", "/invoices", map[string]interface{}{
		"customer_id": uuid.New().String(),
		"items": []map[string]interface{}{
			{"product_id": uuid.New().String(), "quantity": 1, "unit_price": "10.00"},
		},
	}, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestInvoiceUpdate_ReplacesItems(t *testing.T) {
	claims := testClaims("admin")
	invoice := testInvoice("draft", claims.UserID)
	productID := uuid.New()

	itemsDeleted := false
	itemsInserted := 0
	store := &mockInvoiceStore{
		getInvoiceFn: func(ctx context.Context, id uuid.UUID) (database.Invoice, error) {
			return invoice, nil
		},
		updateInvoiceFn: func(ctx context.Context, arg database.UpdateInvoiceParams) (database.Invoice, error) {
			updated := invoice
			updated.Total = arg.Total
			return updated, nil
		},
		deleteInvoiceItemsFn: func(ctx context.Context, invoiceID uuid.UUID) error {
			itemsDeleted = true
			return nil
		},
		createInvoiceItemFn: func(ctx context.Context, arg database.CreateInvoiceItemParams) (database.InvoiceItem, error) {
			itemsInserted++
			return database.InvoiceItem{
				ID:        uuid.New(),
				InvoiceID: arg.InvoiceID,
				ProductID: arg.ProductID,
				Quantity:  arg.Quantity,
				UnitPrice: arg.UnitPrice,
			}, nil
		},
	}

	router := setupInvoiceRouter(store)
	rr := doAuthRequest(t, router, "PUT", "/invoices/"+invoice.ID.String(), map[string]interface{}{
		"items": []map[string]interface{}{
			{"product_id": productID.String(), "quantity": 3, "unit_price": "10.00"},
			{"product_id": uuid.New().String(), "quantity": 1, "unit_price": "25.00"},
		},
	}, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if !itemsDeleted {
		t.Error("existing items were not deleted")
	}
	if itemsInserted != 2 {
		t.Errorf("items inserted: got %d, want 2", itemsInserted)
	}
}

func TestInvoiceUpdate_PaidIsFrozen(t *testing.T) {
	claims := testClaims("admin")
	invoice := testInvoice("paid", claims.UserID)

	store := &mockInvoiceStore{
		getInvoiceFn: func(ctx context.Context, id uuid.UUID) (database.Invoice, error) {
			return invoice, nil
		},
	}

	router := setupInvoiceRouter(store)
	rr := doAuthRequest(t, router, "PUT", "/invoices/"+invoice.ID.String(), map[string]interface{}{
		"items": []map[string]interface{}{
			{"product_id": uuid.New().String(), "quantity": 1, "unit_price": "10.00"},
		},
	}, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestInvoiceUpdateStatus_PaidViaPatchRejected(t *testing.T) {
	claims := testClaims("admin")
	router := setupInvoiceRouter(&mockInvoiceStore{})

	rr := doAuthRequest(t, router, "PATCH", "/invoices/"+uuid.New().String()+"/status",
		map[string]string{"status": "paid"}, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestInvoiceUpdateStatus_SendDraft(t *testing.T) {
	claims := testClaims("admin")
	invoice := testInvoice("draft", claims.UserID)

	store := &mockInvoiceStore{
		getInvoiceFn: func(ctx context.Context, id uuid.UUID) (database.Invoice, error) {
			return invoice, nil
		},
		updateInvoiceStatusFn: func(ctx context.Context, arg database.UpdateInvoiceStatusParams) (database.Invoice, error) {
			updated := invoice
			updated.Status = arg.Status
			return updated, nil
		},
	}

	router := setupInvoiceRouter(store)
	rr := doAuthRequest(t, router, "PATCH", "/invoices/"+invoice.ID.String()+"/status",
		map[string]string{"status": "sent"}, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["status"] != "sent" {
		t.Errorf("status: got %v, want sent", resp["status"])
	}
}

func TestInvoiceUpdateStatus_CancelledIsFrozen(t *testing.T) {
	claims := testClaims("admin")
	invoice := testInvoice("cancelled", claims.UserID)

	store := &mockInvoiceStore{
		getInvoiceFn: func(ctx context.Context, id uuid.UUID) (database.Invoice, error) {
			return invoice, nil
		},
	}

	router := setupInvoiceRouter(store)
	rr := doAuthRequest(t, router, "PATCH", "/invoices/"+invoice.ID.String()+"/status",
		map[string]string{"status": "sent"}, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestInvoiceList_InvalidStatus(t *testing.T) {
	claims := testClaims("admin")
	router := setupInvoiceRouter(&mockInvoiceStore{})

	rr := doAuthRequest(t, router, "GET", "/invoices?status=bogus", nil, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}
