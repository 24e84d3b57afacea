package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/almacen-erp/api/internal/database"
	"github.com/almacen-erp/api/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// --- Mock transaction ---

type mockTx struct {
	committed  bool
	rolledBack bool
}

func (m *mockTx) Commit(ctx context.Context) error {
	m.committed = true
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	m.rolledBack = true
	return nil
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row { return nil }

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (m *mockTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Conn() *pgx.Conn { return nil }

type mockPool struct {
	tx *mockTx
}

func (m *mockPool) Begin(ctx context.Context) (pgx.Tx, error) {
	m.tx = &mockTx{}
	return m.tx, nil
}

// --- Mock OrderStore ---

type mockOrderStore struct {
	nextOrderNumberFn       func(ctx context.Context) (int64, error)
	getProductForSaleFn     func(ctx context.Context, id uuid.UUID) (database.Product, error)
	decrementStockFn        func(ctx context.Context, arg database.DecrementStockParams) (int32, error)
	incrementStockFn        func(ctx context.Context, arg database.IncrementStockParams) (int32, error)
	createOrderFn           func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	createOrderItemFn       func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	createStockMovementFn   func(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error)
	getOrderFn              func(ctx context.Context, id uuid.UUID) (database.Order, error)
	cancelOrderFn           func(ctx context.Context, id uuid.UUID) (database.Order, error)
	listOrderItemsByOrderFn func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

func (m *mockOrderStore) NextOrderNumber(ctx context.Context) (int64, error) {
	if m.nextOrderNumberFn != nil {
		return m.nextOrderNumberFn(ctx)
	}
	return 1, nil
}

func (m *mockOrderStore) GetProductForSale(ctx context.Context, id uuid.UUID) (database.Product, error) {
	if m.getProductForSaleFn != nil {
		return m.getProductForSaleFn(ctx, id)
	}
	return database.Product{}, pgx.ErrNoRows
}

func (m *mockOrderStore) DecrementStock(ctx context.Context, arg database.DecrementStockParams) (int32, error) {
	if m.decrementStockFn != nil {
		return m.decrementStockFn(ctx, arg)
	}
	return 0, pgx.ErrNoRows
}

func (m *mockOrderStore) IncrementStock(ctx context.Context, arg database.IncrementStockParams) (int32, error) {
	if m.incrementStockFn != nil {
		return m.incrementStockFn(ctx, arg)
	}
	return 0, nil
}

func (m *mockOrderStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	if m.createOrderFn != nil {
		return m.createOrderFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	if m.createOrderItemFn != nil {
		return m.createOrderItemFn(ctx, arg)
	}
	return database.OrderItem{}, pgx.ErrNoRows
}

func (m *mockOrderStore) CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error) {
	if m.createStockMovementFn != nil {
		return m.createStockMovementFn(ctx, arg)
	}
	return database.StockMovement{}, nil
}

func (m *mockOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, id)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) CancelOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if m.cancelOrderFn != nil {
		return m.cancelOrderFn(ctx, id)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listOrderItemsByOrderFn != nil {
		return m.listOrderItemsByOrderFn(ctx, orderID)
	}
	return []database.OrderItem{}, nil
}

// --- Helpers ---

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
	return v.(string)
}

func newService(store *mockOrderStore) (*service.OrderService, *mockPool) {
	pool := &mockPool{}
	svc := service.NewOrderService(pool, func(db database.DBTX) service.OrderStore {
		return store
	})
	return svc, pool
}

func testProduct(id uuid.UUID, price string, stock int32) database.Product {
	return database.Product{
		ID:     id,
		Sku:    "SKU-001",
		Name:   "Widget",
		Price:  testNumeric(price),
		Cost:   testNumeric("5.00"),
		Stock:  stock,
		Status: "active",
	}
}

// --- Tests ---

func TestCreateOrder_HappyPath(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	productID := uuid.New()

	var decremented int32
	var createdOrder database.CreateOrderParams
	var movement database.CreateStockMovementParams

	store := &mockOrderStore{
		nextOrderNumberFn: func(ctx context.Context) (int64, error) {
			return 12, nil
		},
		getProductForSaleFn: func(ctx context.Context, id uuid.UUID) (database.Product, error) {
			return testProduct(productID, "25.00", 10), nil
		},
		decrementStockFn: func(ctx context.Context, arg database.DecrementStockParams) (int32, error) {
			decremented = arg.Quantity
			return 10 - arg.Quantity, nil
		},
		createOrderFn: func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
			createdOrder = arg
			return database.Order{
				ID:          uuid.New(),
				OrderNumber: arg.OrderNumber,
				Status:      "pending",
				Subtotal:    arg.Subtotal,
				Total:       arg.Total,
				CreatedBy:   arg.CreatedBy,
			}, nil
		},
		createOrderItemFn: func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
			return database.OrderItem{
				ID:        uuid.New(),
				OrderID:   arg.OrderID,
				ProductID: arg.ProductID,
				Quantity:  arg.Quantity,
				UnitPrice: arg.UnitPrice,
				Total:     arg.Total,
			}, nil
		},
		createStockMovementFn: func(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error) {
			movement = arg
			return database.StockMovement{}, nil
		},
	}

	svc, pool := newService(store)
	result, err := svc.CreateOrder(ctx, service.CreateOrderRequest{
		CreatedBy:          userID,
		DiscountPercentage: "10",
		Items: []service.CreateOrderItemRequest{
			{ProductID: productID.String(), Quantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if result.Order.OrderNumber != "ORD-012" {
		t.Errorf("order_number: got %v, want ORD-012", result.Order.OrderNumber)
	}
	if decremented != 4 {
		t.Errorf("decrement quantity: got %d, want 4", decremented)
	}

	// subtotal 100, 10% discount, total 90
	if got := numericString(t, createdOrder.Subtotal); got != "100.00" {
		t.Errorf("subtotal: got %v, want 100.00", got)
	}
	if got := numericString(t, createdOrder.Total); got != "90.00" {
		t.Errorf("total: got %v, want 90.00", got)
	}

	// Sale leaves the ledger as a negative quantity
	if movement.Type != "out" {
		t.Errorf("movement type: got %v, want out", movement.Type)
	}
	if movement.Quantity != 4 {
		t.Errorf("movement quantity: got %d, want 4", movement.Quantity)
	}
	if !movement.ReferenceType.Valid || movement.ReferenceType.String != "sale" {
		t.Errorf("movement reference_type: got %v, want sale", movement.ReferenceType)
	}

	if !pool.tx.committed {
		t.Error("transaction was not committed")
	}
}

func TestCreateOrder_CustomUnitPriceOverridesProduct(t *testing.T) {
	ctx := context.Background()
	productID := uuid.New()

	var createdItem database.CreateOrderItemParams
	store := &mockOrderStore{
		getProductForSaleFn: func(ctx context.Context, id uuid.UUID) (database.Product, error) {
			return testProduct(productID, "25.00", 10), nil
		},
		decrementStockFn: func(ctx context.Context, arg database.DecrementStockParams) (int32, error) {
			return 9, nil
		},
		createOrderFn: func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
			return database.Order{ID: uuid.New(), OrderNumber: arg.OrderNumber}, nil
		},
		createOrderItemFn: func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
			createdItem = arg
			return database.OrderItem{ID: uuid.New()}, nil
		},
	}

	svc, _ := newService(store)
	_, err := svc.CreateOrder(ctx, service.CreateOrderRequest{
		CreatedBy: uuid.New(),
		Items: []service.CreateOrderItemRequest{
			{ProductID: productID.String(), Quantity: 1, UnitPrice: "19.99"},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if got := numericString(t, createdItem.UnitPrice); got != "19.99" {
		t.Errorf("unit_price: got %v, want 19.99", got)
	}
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	svc, _ := newService(&mockOrderStore{})

	_, err := svc.CreateOrder(context.Background(), service.CreateOrderRequest{
		CreatedBy: uuid.New(),
	})
	if !errors.Is(err, service.ErrEmptyItems) {
		t.Errorf("error: got %v, want %v", err, service.ErrEmptyItems)
	}
}

func TestCreateOrder_InvalidDiscount(t *testing.T) {
	svc, _ := newService(&mockOrderStore{})

	for _, pct := range []string{"-1", "101", "abc"} {
		_, err := svc.CreateOrder(context.Background(), service.CreateOrderRequest{
			CreatedBy:          uuid.New(),
			DiscountPercentage: pct,
			Items: []service.CreateOrderItemRequest{
				{ProductID: uuid.New().String(), Quantity: 1},
			},
		})
		if !errors.Is(err, service.ErrInvalidDiscount) {
			t.Errorf("discount %q: got %v, want %v", pct, err, service.ErrInvalidDiscount)
		}
	}
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	productID := uuid.New()

	store := &mockOrderStore{
		getProductForSaleFn: func(ctx context.Context, id uuid.UUID) (database.Product, error) {
			return testProduct(productID, "25.00", 2), nil
		},
		decrementStockFn: func(ctx context.Context, arg database.DecrementStockParams) (int32, error) {
			// The guarded UPDATE matches no rows when stock < quantity
			return 0, pgx.ErrNoRows
		},
	}

	svc, pool := newService(store)
	_, err := svc.CreateOrder(ctx, service.CreateOrderRequest{
		CreatedBy: uuid.New(),
		Items: []service.CreateOrderItemRequest{
			{ProductID: productID.String(), Quantity: 5},
		},
	})

	var stockErr *service.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("error: got %v, want InsufficientStockError", err)
	}
	if stockErr.Requested != 5 {
		t.Errorf("requested: got %d, want 5", stockErr.Requested)
	}
	if stockErr.Available != 2 {
		t.Errorf("available: got %d, want 2", stockErr.Available)
	}
	if pool.tx.committed {
		t.Error("transaction must not commit on insufficient stock")
	}
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	svc, _ := newService(&mockOrderStore{})

	_, err := svc.CreateOrder(context.Background(), service.CreateOrderRequest{
		CreatedBy: uuid.New(),
		Items: []service.CreateOrderItemRequest{
			{ProductID: uuid.New().String(), Quantity: 1},
		},
	})
	if !errors.Is(err, service.ErrProductNotFound) {
		t.Errorf("error: got %v, want %v", err, service.ErrProductNotFound)
	}
}

func TestCreateOrder_InvalidQuantity(t *testing.T) {
	svc, _ := newService(&mockOrderStore{})

	_, err := svc.CreateOrder(context.Background(), service.CreateOrderRequest{
		CreatedBy: uuid.New(),
		Items: []service.CreateOrderItemRequest{
			{ProductID: uuid.New().String(), Quantity: 0},
		},
	})
	if !errors.Is(err, service.ErrInvalidQuantity) {
		t.Errorf("error: got %v, want %v", err, service.ErrInvalidQuantity)
	}
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	ctx := context.Background()
	orderID := uuid.New()
	productID := uuid.New()
	cancelledBy := uuid.New()

	var restored int32
	var movement database.CreateStockMovementParams
	store := &mockOrderStore{
		cancelOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return database.Order{ID: orderID, Status: "cancelled"}, nil
		},
		listOrderItemsByOrderFn: func(ctx context.Context, id uuid.UUID) ([]database.OrderItem, error) {
			return []database.OrderItem{
				{ID: uuid.New(), OrderID: orderID, ProductID: productID, Quantity: 3},
			}, nil
		},
		incrementStockFn: func(ctx context.Context, arg database.IncrementStockParams) (int32, error) {
			restored = arg.Quantity
			return 13, nil
		},
		createStockMovementFn: func(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error) {
			movement = arg
			return database.StockMovement{}, nil
		},
	}

	svc, pool := newService(store)
	order, err := svc.CancelOrder(ctx, orderID, cancelledBy)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	if order.Status != "cancelled" {
		t.Errorf("status: got %v, want cancelled", order.Status)
	}
	if restored != 3 {
		t.Errorf("restored quantity: got %d, want 3", restored)
	}

	// Returns re-enter the ledger as positive quantities
	if movement.Type != "return" {
		t.Errorf("movement type: got %v, want return", movement.Type)
	}
	if movement.Quantity != 3 {
		t.Errorf("movement quantity: got %d, want 3", movement.Quantity)
	}
	if !movement.CreatedBy.Valid || uuid.UUID(movement.CreatedBy.Bytes) != cancelledBy {
		t.Errorf("movement created_by: got %v, want %v", movement.CreatedBy, cancelledBy)
	}

	if !pool.tx.committed {
		t.Error("transaction was not committed")
	}
}

func TestCancelOrder_NotFound(t *testing.T) {
	svc, _ := newService(&mockOrderStore{})

	_, err := svc.CancelOrder(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, service.ErrOrderNotFound) {
		t.Errorf("error: got %v, want %v", err, service.ErrOrderNotFound)
	}
}

func TestCancelOrder_NotCancellable(t *testing.T) {
	orderID := uuid.New()

	store := &mockOrderStore{
		// Guarded UPDATE misses because the order is already completed
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return database.Order{ID: orderID, Status: "completed"}, nil
		},
	}

	svc, _ := newService(store)
	_, err := svc.CancelOrder(context.Background(), orderID, uuid.New())
	if !errors.Is(err, service.ErrOrderNotCancellable) {
		t.Errorf("error: got %v, want %v", err, service.ErrOrderNotCancellable)
	}
}
