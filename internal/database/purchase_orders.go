package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const purchaseOrderColumns = `id, po_number, supplier_id, status, total, notes,
	created_by, received_at, created_at, updated_at`

func scanPurchaseOrder(row interface{ Scan(...any) error }) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.PoNumber, &po.SupplierID, &po.Status, &po.Total,
		&po.Notes, &po.CreatedBy, &po.ReceivedAt, &po.CreatedAt, &po.UpdatedAt)
	return po, err
}

const purchaseOrderItemColumns = `id, purchase_order_id, product_id, quantity,
	unit_cost, total, received_quantity`

func scanPurchaseOrderItem(row interface{ Scan(...any) error }) (PurchaseOrderItem, error) {
	var item PurchaseOrderItem
	err := row.Scan(&item.ID, &item.PurchaseOrderID, &item.ProductID, &item.Quantity,
		&item.UnitCost, &item.Total, &item.ReceivedQuantity)
	return item, err
}

func (q *Queries) NextPurchaseOrderNumber(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT nextval('purchase_order_number_seq')`).Scan(&n)
	return n, err
}

type CreatePurchaseOrderParams struct {
	PoNumber   string
	SupplierID uuid.UUID
	Total      pgtype.Numeric
	Notes      pgtype.Text
	CreatedBy  uuid.UUID
}

func (q *Queries) CreatePurchaseOrder(ctx context.Context, arg CreatePurchaseOrderParams) (PurchaseOrder, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO purchase_orders (po_number, supplier_id, total, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+purchaseOrderColumns,
		arg.PoNumber, arg.SupplierID, arg.Total, arg.Notes, arg.CreatedBy)
	return scanPurchaseOrder(row)
}

type CreatePurchaseOrderItemParams struct {
	PurchaseOrderID uuid.UUID
	ProductID       uuid.UUID
	Quantity        int32
	UnitCost        pgtype.Numeric
	Total           pgtype.Numeric
}

func (q *Queries) CreatePurchaseOrderItem(ctx context.Context, arg CreatePurchaseOrderItemParams) (PurchaseOrderItem, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO purchase_order_items (purchase_order_id, product_id, quantity, unit_cost, total)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+purchaseOrderItemColumns,
		arg.PurchaseOrderID, arg.ProductID, arg.Quantity, arg.UnitCost, arg.Total)
	return scanPurchaseOrderItem(row)
}

func (q *Queries) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1`, id)
	return scanPurchaseOrder(row)
}

func (q *Queries) GetPurchaseOrderForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1 FOR NO KEY UPDATE`, id)
	return scanPurchaseOrder(row)
}

type ListPurchaseOrdersParams struct {
	Status     pgtype.Text
	SupplierID pgtype.UUID
	Limit      int32
	Offset     int32
}

func (q *Queries) ListPurchaseOrders(ctx context.Context, arg ListPurchaseOrdersParams) ([]PurchaseOrder, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+purchaseOrderColumns+` FROM purchase_orders
		 WHERE ($1::text IS NULL OR status = $1)
		   AND ($2::uuid IS NULL OR supplier_id = $2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		arg.Status, arg.SupplierID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, po)
	}
	return orders, rows.Err()
}

func (q *Queries) ListPurchaseOrderItems(ctx context.Context, purchaseOrderID uuid.UUID) ([]PurchaseOrderItem, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+purchaseOrderItemColumns+` FROM purchase_order_items
		 WHERE purchase_order_id = $1`, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PurchaseOrderItem
	for rows.Next() {
		item, err := scanPurchaseOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListPurchaseOrderItemsForUpdate locks the line items so a concurrent
// receive cannot credit the same line twice.
func (q *Queries) ListPurchaseOrderItemsForUpdate(ctx context.Context, purchaseOrderID uuid.UUID) ([]PurchaseOrderItem, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+purchaseOrderItemColumns+` FROM purchase_order_items
		 WHERE purchase_order_id = $1 FOR NO KEY UPDATE`, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PurchaseOrderItem
	for rows.Next() {
		item, err := scanPurchaseOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type UpdatePurchaseOrderStatusParams struct {
	ID         uuid.UUID
	Status     string
	PrevStatus string
}

func (q *Queries) UpdatePurchaseOrderStatus(ctx context.Context, arg UpdatePurchaseOrderStatusParams) (PurchaseOrder, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE purchase_orders SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = $3
		 RETURNING `+purchaseOrderColumns,
		arg.ID, arg.Status, arg.PrevStatus)
	return scanPurchaseOrder(row)
}

func (q *Queries) MarkPurchaseOrderReceived(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE purchase_orders
		 SET status = 'received', received_at = now(), updated_at = now()
		 WHERE id = $1
		 RETURNING `+purchaseOrderColumns, id)
	return scanPurchaseOrder(row)
}

type SetPurchaseOrderItemReceivedParams struct {
	ID               uuid.UUID
	ReceivedQuantity int32
}

func (q *Queries) SetPurchaseOrderItemReceived(ctx context.Context, arg SetPurchaseOrderItemReceivedParams) error {
	_, err := q.db.Exec(ctx,
		`UPDATE purchase_order_items SET received_quantity = $2 WHERE id = $1`,
		arg.ID, arg.ReceivedQuantity)
	return err
}
