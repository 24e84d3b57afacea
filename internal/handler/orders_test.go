package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/almacen-erp/api/internal/auth"
	"github.com/almacen-erp/api/internal/database"
	"github.com/almacen-erp/api/internal/handler"
	"github.com/almacen-erp/api/internal/middleware"
	"github.com/almacen-erp/api/internal/service"
	"github.com/almacen-erp/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// --- Mock OrderServicer ---

type mockOrderService struct {
	createFn func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	cancelFn func(ctx context.Context, orderID, cancelledBy uuid.UUID) (*database.Order, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
	return m.createFn(ctx, req)
}

func (m *mockOrderService) CancelOrder(ctx context.Context, orderID, cancelledBy uuid.UUID) (*database.Order, error) {
	return m.cancelFn(ctx, orderID, cancelledBy)
}

// --- Mock OrderStore ---

type mockOrderStore struct {
	getOrderFn              func(ctx context.Context, id uuid.UUID) (database.Order, error)
	listOrdersFn            func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	listOrderItemsByOrderFn func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	listPaymentsFn          func(ctx context.Context, arg database.ListPaymentsParams) ([]database.Payment, error)
	updateOrderStatusFn     func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
}

func (m *mockOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, id)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return []database.Order{}, nil
}

func (m *mockOrderStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listOrderItemsByOrderFn != nil {
		return m.listOrderItemsByOrderFn(ctx, orderID)
	}
	return []database.OrderItem{}, nil
}

func (m *mockOrderStore) ListPayments(ctx context.Context, arg database.ListPaymentsParams) ([]database.Payment, error) {
	if m.listPaymentsFn != nil {
		return m.listPaymentsFn(ctx, arg)
	}
	return []database.Payment{}, nil
}

func (m *mockOrderStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	if m.updateOrderStatusFn != nil {
		return m.updateOrderStatusFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}

// --- Mock Broadcaster ---

type mockHub struct {
	events []ws.Event
}

func (m *mockHub) Broadcast(event ws.Event) {
	m.events = append(m.events, event)
}

// --- Mock TxBeginner ---

type mockTx struct {
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
}

func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitFn != nil {
		return m.commitFn(ctx)
	}
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx)
	}
	return nil
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *mockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Conn() *pgx.Conn {
	return nil
}

type mockPool struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockPool) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginFn != nil {
		return m.beginFn(ctx)
	}
	// Return a mock transaction that commits successfully
	return &mockTx{}, nil
}

// --- Test helpers ---

const testJWTSecret = "test-secret"

func testClaims(role string) *auth.Claims {
	return &auth.Claims{
		UserID: uuid.New(),
		Email:  "test@almacen.local",
		Role:   role,
	}
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.Email, claims.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func testNumeric(s string) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		panic(err)
	}
	return n
}

func numericString(t *testing.T, n pgtype.Numeric) string {
	t.Helper()
	v, err := n.Value()
	if err != nil || v == nil {
		t.Fatalf("numeric value: %v", err)
	}
	d, err := decimal.NewFromString(v.(string))
	if err != nil {
		t.Fatalf("parse numeric %q: %v", v, err)
	}
	return d.StringFixed(2)
}

func setupOrderRouter(svc *mockOrderService, store *mockOrderStore, hub *mockHub) *chi.Mux {
	h := handler.NewOrderHandler(svc, store, hub)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/orders", h.RegisterRoutes)
	return r
}

func testOrder(createdBy uuid.UUID) database.Order {
	now := time.Now()
	return database.Order{
		ID:                 uuid.New(),
		OrderNumber:        "ORD-001",
		Status:             "pending",
		PaymentStatus:      "pending",
		Subtotal:           testNumeric("100.00"),
		DiscountPercentage: testNumeric("0.00"),
		DiscountAmount:     testNumeric("0.00"),
		TaxAmount:          testNumeric("0.00"),
		Total:              testNumeric("100.00"),
		CreatedBy:          createdBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// --- Tests ---

func TestOrderCreate_HappyPath(t *testing.T) {
	claims := testClaims("cashier")
	productID := uuid.New()

	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			if req.CreatedBy != claims.UserID {
				t.Errorf("created_by: got %v, want %v", req.CreatedBy, claims.UserID)
			}
			if len(req.Items) != 1 {
				t.Errorf("items count: got %d, want 1", len(req.Items))
			}
			if req.Items[0].Quantity != 2 {
				t.Errorf("quantity: got %d, want 2", req.Items[0].Quantity)
			}
			order := testOrder(claims.UserID)
			return &service.CreateOrderResult{
				Order: order,
				Items: []database.OrderItem{
					{
						ID:        uuid.New(),
						OrderID:   order.ID,
						ProductID: productID,
						Quantity:  2,
						UnitPrice: testNumeric("50.00"),
						Total:     testNumeric("100.00"),
					},
				},
			}, nil
		},
	}

	hub := &mockHub{}
	router := setupOrderRouter(svc, &mockOrderStore{}, hub)
	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
		"items": []map[string]interface{}{
			{"product_id": productID.String(), "quantity": 2},
		},
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["order_number"] != "ORD-001" {
		t.Errorf("order_number: got %v, want ORD-001", resp["order_number"])
	}
	if resp["total"] != "100.00" {
		t.Errorf("total: got %v, want 100.00", resp["total"])
	}

	items, ok := resp["items"].([]interface{})
	if !ok || len(items) != 1 {
		t.Fatalf("items: got %v, want 1 item", resp["items"])
	}
	item := items[0].(map[string]interface{})
	if item["unit_price"] != "50.00" {
		t.Errorf("item unit_price: got %v, want 50.00", item["unit_price"])
	}

	if len(hub.events) != 1 || hub.events[0].Type != ws.EventOrderCreated {
		t.Errorf("broadcast events: got %v, want one %s", hub.events, ws.EventOrderCreated)
	}
}

func TestOrderCreate_EmptyItems(t *testing.T) {
	claims := testClaims("cashier")
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{}, &mockHub{})

	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
		"items": []map[string]interface{}{},
	}, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestOrderCreate_InsufficientStock(t *testing.T) {
	claims := testClaims("cashier")
	productID := uuid.New()

	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			return nil, &service.InsufficientStockError{
				ProductID: productID,
				Sku:       "SKU-1",
				Name:      "Widget",
				Requested: 5,
				Available: 2,
			}
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{}, &mockHub{})
	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
		"items": []map[string]interface{}{
			{"product_id": productID.String(), "quantity": 5},
		},
	}, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["requested"] != float64(5) {
		t.Errorf("requested: got %v, want 5", resp["requested"])
	}
	if resp["available"] != float64(2) {
		t.Errorf("available: got %v, want 2", resp["available"])
	}
}

func TestOrderCreate_ValidationError(t *testing.T) {
	claims := testClaims("cashier")

	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			return nil, service.ErrInvalidDiscount
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{}, &mockHub{})
	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
		"discount_percentage": "150",
		"items": []map[string]interface{}{
			{"product_id": uuid.New().String(), "quantity": 1},
		},
	}, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestOrderGet_WithItemsAndPayments(t *testing.T) {
	claims := testClaims("cashier")
	order := testOrder(claims.UserID)

	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			if id != order.ID {
				t.Errorf("order id: got %v, want %v", id, order.ID)
			}
			return order, nil
		},
		listOrderItemsByOrderFn: func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
			return []database.OrderItem{
				{ID: uuid.New(), OrderID: orderID, ProductID: uuid.New(), Quantity: 1,
					UnitPrice: testNumeric("100.00"), Total: testNumeric("100.00")},
			}, nil
		},
		listPaymentsFn: func(ctx context.Context, arg database.ListPaymentsParams) ([]database.Payment, error) {
			return []database.Payment{
				{ID: uuid.New(), Amount: testNumeric("40.00"), PaymentMethod: "cash",
					Status: "completed", PaymentDate: time.Now(), CreatedBy: claims.UserID},
			}, nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store, &mockHub{})
	rr := doAuthRequest(t, router, "GET", "/orders/"+order.ID.String(), nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if items := resp["items"].([]interface{}); len(items) != 1 {
		t.Errorf("items count: got %d, want 1", len(items))
	}
	payments, ok := resp["payments"].([]interface{})
	if !ok || len(payments) != 1 {
		t.Fatalf("payments: got %v, want 1 payment", resp["payments"])
	}
	payment := payments[0].(map[string]interface{})
	if payment["amount"] != "40.00" {
		t.Errorf("payment amount: got %v, want 40.00", payment["amount"])
	}
}

func TestOrderGet_NotFound(t *testing.T) {
	claims := testClaims("cashier")
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{}, &mockHub{})

	rr := doAuthRequest(t, router, "GET", "/orders/"+uuid.New().String(), nil, claims)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusNotFound, rr.Body.String())
	}
}

func TestOrderUpdateStatus_ValidTransition(t *testing.T) {
	claims := testClaims("cashier")
	order := testOrder(claims.UserID)

	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
		updateOrderStatusFn: func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
			if arg.PrevStatus != "pending" {
				t.Errorf("prev status: got %v, want pending", arg.PrevStatus)
			}
			updated := order
			updated.Status = arg.Status
			return updated, nil
		},
	}

	hub := &mockHub{}
	router := setupOrderRouter(&mockOrderService{}, store, hub)
	rr := doAuthRequest(t, router, "PATCH", "/orders/"+order.ID.String()+"/status",
		map[string]string{"status": "processing"}, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["status"] != "processing" {
		t.Errorf("status: got %v, want processing", resp["status"])
	}

	if len(hub.events) != 1 || hub.events[0].Type != ws.EventOrderStatusChanged {
		t.Errorf("broadcast events: got %v, want one %s", hub.events, ws.EventOrderStatusChanged)
	}
}

func TestOrderUpdateStatus_InvalidTransition(t *testing.T) {
	claims := testClaims("cashier")
	order := testOrder(claims.UserID)
	order.Status = "completed"

	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store, &mockHub{})
	rr := doAuthRequest(t, router, "PATCH", "/orders/"+order.ID.String()+"/status",
		map[string]string{"status": "processing"}, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestOrderUpdateStatus_CancelledRunsCancelFlow(t *testing.T) {
	claims := testClaims("cashier")
	order := testOrder(claims.UserID)
	order.Status = "cancelled"

	svc := &mockOrderService{
		cancelFn: func(ctx context.Context, orderID, cancelledBy uuid.UUID) (*database.Order, error) {
			if orderID != order.ID {
				t.Errorf("order id: got %v, want %v", orderID, order.ID)
			}
			if cancelledBy != claims.UserID {
				t.Errorf("cancelled_by: got %v, want %v", cancelledBy, claims.UserID)
			}
			return &order, nil
		},
	}

	hub := &mockHub{}
	router := setupOrderRouter(svc, &mockOrderStore{}, hub)
	rr := doAuthRequest(t, router, "PATCH", "/orders/"+order.ID.String()+"/status",
		map[string]string{"status": "cancelled"}, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["status"] != "cancelled" {
		t.Errorf("status: got %v, want cancelled", resp["status"])
	}

	if len(hub.events) != 1 || hub.events[0].Type != ws.EventOrderCancelled {
		t.Errorf("broadcast events: got %v, want one %s", hub.events, ws.EventOrderCancelled)
	}
}

func TestOrderUpdateStatus_RaceDetected(t *testing.T) {
	claims := testClaims("cashier")
	order := testOrder(claims.UserID)

	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
		updateOrderStatusFn: func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
			// Status changed between read and compare-and-set
			return database.Order{}, pgx.ErrNoRows
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store, &mockHub{})
	rr := doAuthRequest(t, router, "PATCH", "/orders/"+order.ID.String()+"/status",
		map[string]string{"status": "processing"}, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestOrderCancel_HappyPath(t *testing.T) {
	claims := testClaims("cashier")
	order := testOrder(claims.UserID)
	order.Status = "cancelled"

	svc := &mockOrderService{
		cancelFn: func(ctx context.Context, orderID, cancelledBy uuid.UUID) (*database.Order, error) {
			if orderID != order.ID {
				t.Errorf("order id: got %v, want %v", orderID, order.ID)
			}
			if cancelledBy != claims.UserID {
				t.Errorf("cancelled_by: got %v, want %v", cancelledBy, claims.UserID)
			}
			return &order, nil
		},
	}

	hub := &mockHub{}
	router := setupOrderRouter(svc, &mockOrderStore{}, hub)
	rr := doAuthRequest(t, router, "DELETE", "/orders/"+order.ID.String(), nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["status"] != "cancelled" {
		t.Errorf("status: got %v, want cancelled", resp["status"])
	}

	if len(hub.events) != 1 || hub.events[0].Type != ws.EventOrderCancelled {
		t.Errorf("broadcast events: got %v, want one %s", hub.events, ws.EventOrderCancelled)
	}
}

func TestOrderCancel_NotCancellable(t *testing.T) {
	claims := testClaims("cashier")

	svc := &mockOrderService{
		cancelFn: func(ctx context.Context, orderID, cancelledBy uuid.UUID) (*database.Order, error) {
			return nil, service.ErrOrderNotCancellable
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{}, &mockHub{})
	rr := doAuthRequest(t, router, "DELETE", "/orders/"+uuid.New().String(), nil, claims)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestOrderList_FilterParsing(t *testing.T) {
	claims := testClaims("cashier")
	customerID := uuid.New()

	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			if !arg.Status.Valid || arg.Status.String != "pending" {
				t.Errorf("status filter: got %v, want pending", arg.Status)
			}
			if !arg.CustomerID.Valid || uuid.UUID(arg.CustomerID.Bytes) != customerID {
				t.Errorf("customer filter: got %v, want %v", arg.CustomerID, customerID)
			}
			if arg.Limit != 5 {
				t.Errorf("limit: got %d, want 5", arg.Limit)
			}
			return []database.Order{testOrder(claims.UserID)}, nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store, &mockHub{})
	rr := doAuthRequest(t, router, "GET",
		"/orders?status=pending&customer_id="+customerID.String()+"&limit=5", nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	orders := resp["orders"].([]interface{})
	if len(orders) != 1 {
		t.Errorf("orders count: got %d, want 1", len(orders))
	}
}

func TestOrderList_InvalidStatus(t *testing.T) {
	claims := testClaims("cashier")
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{}, &mockHub{})

	rr := doAuthRequest(t, router, "GET", "/orders?status=bogus", nil, claims)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}
