package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/almacen-erp/api/internal/database"
	"github.com/almacen-erp/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Errors returned by the order service.
var (
	ErrEmptyItems          = errors.New("items are required")
	ErrInvalidQuantity     = errors.New("quantity must be > 0")
	ErrInvalidProductID    = errors.New("invalid product_id")
	ErrInvalidCustomerID   = errors.New("invalid customer_id")
	ErrInvalidDiscount     = errors.New("discount_percentage must be between 0 and 100")
	ErrInvalidUnitPrice    = errors.New("invalid unit_price")
	ErrProductNotFound     = errors.New("product not found or inactive")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotCancellable = errors.New("only pending or processing orders can be cancelled")
)

// InsufficientStockError reports which product could not cover the requested
// quantity. It unwraps the available and requested figures for the response.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Sku       string
	Name      string
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%s): requested %d, available %d",
		e.Name, e.Sku, e.Requested, e.Available)
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to create and cancel orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	NextOrderNumber(ctx context.Context) (int64, error)
	GetProductForSale(ctx context.Context, id uuid.UUID) (database.Product, error)
	DecrementStock(ctx context.Context, arg database.DecrementStockParams) (int32, error)
	IncrementStock(ctx context.Context, arg database.IncrementStockParams) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	CreatedBy          uuid.UUID
	CustomerID         string
	DiscountPercentage string
	PaymentMethod      string
	Notes              string
	Items              []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single line in the order. UnitPrice overrides
// the product's listed price when set.
type CreateOrderItemRequest struct {
	ProductID string
	Quantity  int32
	UnitPrice string
}

// CreateOrderResult is the full created order with items.
type CreateOrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderService handles order business logic.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, newStore: newStore}
}

// processedItem holds a prepared order line awaiting insert.
type processedItem struct {
	productID uuid.UUID
	quantity  int32
	unitPrice decimal.Decimal
	total     decimal.Decimal
}

// CreateOrder validates, prices, decrements stock, and records the order and
// its stock movements in one transaction. Order numbers come from a database
// sequence, so concurrent creations never collide.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	discountPct := decimal.Zero
	if req.DiscountPercentage != "" {
		dv, err := decimal.NewFromString(req.DiscountPercentage)
		if err != nil || dv.IsNegative() || dv.GreaterThan(decimal.NewFromInt(100)) {
			return nil, ErrInvalidDiscount
		}
		discountPct = dv
	}

	customerID := pgtype.UUID{}
	if req.CustomerID != "" {
		cid, err := uuid.Parse(req.CustomerID)
		if err != nil {
			return nil, ErrInvalidCustomerID
		}
		customerID = pgtype.UUID{Bytes: cid, Valid: true}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	nextNum, err := store.NextOrderNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("next order number: %w", err)
	}
	orderNumber := fmt.Sprintf("ORD-%03d", nextNum)

	// Price each line and decrement stock. A failed decrement rolls the
	// whole transaction back, so partial orders never persist.
	subtotal := decimal.Zero
	var items []processedItem

	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidProductID)
		}

		product, err := store.GetProductForSale(ctx, productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrProductNotFound)
			}
			return nil, fmt.Errorf("item[%d]: get product: %w", i, err)
		}

		unitPrice := numericToDecimal(product.Price)
		if item.UnitPrice != "" {
			up, err := decimal.NewFromString(item.UnitPrice)
			if err != nil || up.IsNegative() {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidUnitPrice)
			}
			unitPrice = up
		}

		if _, err := store.DecrementStock(ctx, database.DecrementStockParams{
			ID:       productID,
			Quantity: item.Quantity,
		}); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &InsufficientStockError{
					ProductID: productID,
					Sku:       product.Sku,
					Name:      product.Name,
					Requested: item.Quantity,
					Available: product.Stock,
				}
			}
			return nil, fmt.Errorf("item[%d]: decrement stock: %w", i, err)
		}

		lineTotal := unitPrice.Mul(decimal.NewFromInt32(item.Quantity))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, processedItem{
			productID: productID,
			quantity:  item.Quantity,
			unitPrice: unitPrice,
			total:     lineTotal,
		})
	}

	discountAmount := subtotal.Mul(discountPct).Div(decimal.NewFromInt(100))
	taxAmount := decimal.Zero // tax = 0 for now
	total := subtotal.Sub(discountAmount).Add(taxAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	paymentMethod := pgtype.Text{}
	if req.PaymentMethod != "" {
		paymentMethod = pgtype.Text{String: req.PaymentMethod, Valid: true}
	}
	notes := pgtype.Text{}
	if req.Notes != "" {
		notes = pgtype.Text{String: req.Notes, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:        orderNumber,
		CustomerID:         customerID,
		Subtotal:           decimalToNumeric(subtotal),
		DiscountPercentage: decimalToNumeric(discountPct),
		DiscountAmount:     decimalToNumeric(discountAmount),
		TaxAmount:          decimalToNumeric(taxAmount),
		Total:              decimalToNumeric(total),
		PaymentMethod:      paymentMethod,
		Notes:              notes,
		CreatedBy:          req.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	var itemResults []database.OrderItem
	for _, pi := range items {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:   order.ID,
			ProductID: pi.productID,
			Quantity:  pi.quantity,
			UnitPrice: decimalToNumeric(pi.unitPrice),
			Total:     decimalToNumeric(pi.total),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		itemResults = append(itemResults, item)

		// Movement rows carry positive magnitudes; type gives the direction.
		if _, err := store.CreateStockMovement(ctx, database.CreateStockMovementParams{
			ProductID:     pi.productID,
			Type:          enum.MovementTypeOut,
			Quantity:      pi.quantity,
			ReferenceType: pgtype.Text{String: enum.ReferenceTypeSale, Valid: true},
			ReferenceID:   pgtype.UUID{Bytes: order.ID, Valid: true},
			CreatedBy:     pgtype.UUID{Bytes: req.CreatedBy, Valid: true},
		}); err != nil {
			return nil, fmt.Errorf("create stock movement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{Order: order, Items: itemResults}, nil
}

// CancelOrder flips a pending or processing order to cancelled and returns
// its stock, recording return movements, all in one transaction.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, cancelledBy uuid.UUID) (*database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.CancelOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish missing from non-cancellable.
			if _, getErr := store.GetOrder(ctx, orderID); getErr != nil {
				if errors.Is(getErr, pgx.ErrNoRows) {
					return nil, ErrOrderNotFound
				}
				return nil, fmt.Errorf("get order: %w", getErr)
			}
			return nil, ErrOrderNotCancellable
		}
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	items, err := store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	for _, item := range items {
		if _, err := store.IncrementStock(ctx, database.IncrementStockParams{
			ID:       item.ProductID,
			Quantity: item.Quantity,
		}); err != nil {
			return nil, fmt.Errorf("restore stock: %w", err)
		}
		if _, err := store.CreateStockMovement(ctx, database.CreateStockMovementParams{
			ProductID:     item.ProductID,
			Type:          enum.MovementTypeReturn,
			Quantity:      item.Quantity,
			ReferenceType: pgtype.Text{String: enum.ReferenceTypeSale, Valid: true},
			ReferenceID:   pgtype.UUID{Bytes: order.ID, Valid: true},
			CreatedBy:     pgtype.UUID{Bytes: cancelledBy, Valid: true},
		}); err != nil {
			return nil, fmt.Errorf("create stock movement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &order, nil
}

// --- Helpers ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
