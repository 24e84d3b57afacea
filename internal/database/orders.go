package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, customer_id, status, payment_status, subtotal,
	discount_percentage, discount_amount, tax_amount, total, payment_method, notes,
	created_by, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.DiscountPercentage, &o.DiscountAmount, &o.TaxAmount, &o.Total,
		&o.PaymentMethod, &o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// NextOrderNumber reserves the next value from the order number sequence.
// Sequence reservation is atomic, so concurrent creations never collide.
func (q *Queries) NextOrderNumber(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&n)
	return n, err
}

type CreateOrderParams struct {
	OrderNumber        string
	CustomerID         pgtype.UUID
	Subtotal           pgtype.Numeric
	DiscountPercentage pgtype.Numeric
	DiscountAmount     pgtype.Numeric
	TaxAmount          pgtype.Numeric
	Total              pgtype.Numeric
	PaymentMethod      pgtype.Text
	Notes              pgtype.Text
	CreatedBy          uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO orders (order_number, customer_id, subtotal, discount_percentage,
		                     discount_amount, tax_amount, total, payment_method, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+orderColumns,
		arg.OrderNumber, arg.CustomerID, arg.Subtotal, arg.DiscountPercentage,
		arg.DiscountAmount, arg.TaxAmount, arg.Total, arg.PaymentMethod, arg.Notes,
		arg.CreatedBy)
	return scanOrder(row)
}

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	UnitPrice pgtype.Numeric
	Total     pgtype.Numeric
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	var item OrderItem
	err := q.db.QueryRow(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity, unit_price, total)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, order_id, product_id, quantity, unit_price, total`,
		arg.OrderID, arg.ProductID, arg.Quantity, arg.UnitPrice, arg.Total).
		Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.Total)
	return item, err
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// GetOrderForUpdate locks the order row so concurrent payment inserts
// serialize on it.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR NO KEY UPDATE`, id)
	return scanOrder(row)
}

type ListOrdersParams struct {
	Status        pgtype.Text
	PaymentStatus pgtype.Text
	CustomerID    pgtype.UUID
	StartDate     pgtype.Timestamptz
	EndDate       pgtype.Timestamptz
	Limit         int32
	Offset        int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE ($1::text IS NULL OR status = $1)
		   AND ($2::text IS NULL OR payment_status = $2)
		   AND ($3::uuid IS NULL OR customer_id = $3)
		   AND ($4::timestamptz IS NULL OR created_at >= $4)
		   AND ($5::timestamptz IS NULL OR created_at < $5 + interval '1 day')
		 ORDER BY created_at DESC
		 LIMIT $6 OFFSET $7`,
		arg.Status, arg.PaymentStatus, arg.CustomerID, arg.StartDate, arg.EndDate,
		arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, order_id, product_id, quantity, unit_price, total
		 FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.Total); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	Status     string
	PrevStatus string
}

// UpdateOrderStatus is compare-and-set: no rows means the order is missing or
// its status changed since the caller read it.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE orders SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = $3
		 RETURNING `+orderColumns,
		arg.ID, arg.Status, arg.PrevStatus)
	return scanOrder(row)
}

// CancelOrder flips a non-terminal order to cancelled. No rows means the
// order is missing, completed, or already cancelled.
func (q *Queries) CancelOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE orders SET status = 'cancelled', updated_at = now()
		 WHERE id = $1 AND status IN ('pending', 'processing')
		 RETURNING `+orderColumns, id)
	return scanOrder(row)
}

type UpdateOrderPaymentStatusParams struct {
	ID            uuid.UUID
	PaymentStatus string
}

func (q *Queries) UpdateOrderPaymentStatus(ctx context.Context, arg UpdateOrderPaymentStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE orders SET payment_status = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+orderColumns,
		arg.ID, arg.PaymentStatus)
	return scanOrder(row)
}

func (q *Queries) SumCompletedPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error) {
	var sum pgtype.Numeric
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE(sum(amount), 0) FROM payments
		 WHERE order_id = $1 AND status = 'completed'`, orderID).Scan(&sum)
	return sum, err
}
