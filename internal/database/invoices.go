package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const invoiceColumns = `id, invoice_number, customer_id, order_id, status, subtotal,
	tax_amount, discount_amount, total, paid_amount, due_date, notes, created_by,
	created_at, updated_at`

func scanInvoice(row interface{ Scan(...any) error }) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.CustomerID, &inv.OrderID,
		&inv.Status, &inv.Subtotal, &inv.TaxAmount, &inv.DiscountAmount, &inv.Total,
		&inv.PaidAmount, &inv.DueDate, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt,
		&inv.UpdatedAt)
	return inv, err
}

func (q *Queries) NextInvoiceNumber(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&n)
	return n, err
}

type CreateInvoiceParams struct {
	InvoiceNumber  string
	CustomerID     pgtype.UUID
	OrderID        pgtype.UUID
	Subtotal       pgtype.Numeric
	TaxAmount      pgtype.Numeric
	DiscountAmount pgtype.Numeric
	Total          pgtype.Numeric
	DueDate        pgtype.Date
	Notes          pgtype.Text
	CreatedBy      uuid.UUID
}

func (q *Queries) CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO invoices (invoice_number, customer_id, order_id, subtotal,
		                       tax_amount, discount_amount, total, due_date, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+invoiceColumns,
		arg.InvoiceNumber, arg.CustomerID, arg.OrderID, arg.Subtotal, arg.TaxAmount,
		arg.DiscountAmount, arg.Total, arg.DueDate, arg.Notes, arg.CreatedBy)
	return scanInvoice(row)
}

type CreateInvoiceItemParams struct {
	InvoiceID uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	UnitPrice pgtype.Numeric
}

// CreateInvoiceItem returns the generated total_price column along with the row.
func (q *Queries) CreateInvoiceItem(ctx context.Context, arg CreateInvoiceItemParams) (InvoiceItem, error) {
	var item InvoiceItem
	err := q.db.QueryRow(ctx,
		`INSERT INTO invoice_items (invoice_id, product_id, quantity, unit_price)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, invoice_id, product_id, quantity, unit_price, total_price`,
		arg.InvoiceID, arg.ProductID, arg.Quantity, arg.UnitPrice).
		Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.TotalPrice)
	return item, err
}

func (q *Queries) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

func (q *Queries) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (Invoice, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR NO KEY UPDATE`, id)
	return scanInvoice(row)
}

type ListInvoicesParams struct {
	Status     pgtype.Text
	CustomerID pgtype.UUID
	StartDate  pgtype.Timestamptz
	EndDate    pgtype.Timestamptz
	Limit      int32
	Offset     int32
}

func (q *Queries) ListInvoices(ctx context.Context, arg ListInvoicesParams) ([]Invoice, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE ($1::text IS NULL OR status = $1)
		   AND ($2::uuid IS NULL OR customer_id = $2)
		   AND ($3::timestamptz IS NULL OR created_at >= $3)
		   AND ($4::timestamptz IS NULL OR created_at < $4 + interval '1 day')
		 ORDER BY created_at DESC
		 LIMIT $5 OFFSET $6`,
		arg.Status, arg.CustomerID, arg.StartDate, arg.EndDate, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (q *Queries) ListInvoiceItemsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceItem, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, invoice_id, product_id, quantity, unit_price, total_price
		 FROM invoice_items WHERE invoice_id = $1`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []InvoiceItem
	for rows.Next() {
		var item InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type UpdateInvoiceParams struct {
	ID             uuid.UUID
	CustomerID     pgtype.UUID
	Subtotal       pgtype.Numeric
	TaxAmount      pgtype.Numeric
	DiscountAmount pgtype.Numeric
	Total          pgtype.Numeric
	DueDate        pgtype.Date
	Notes          pgtype.Text
}

func (q *Queries) UpdateInvoice(ctx context.Context, arg UpdateInvoiceParams) (Invoice, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE invoices
		 SET customer_id = $2, subtotal = $3, tax_amount = $4, discount_amount = $5,
		     total = $6, due_date = $7, notes = $8, updated_at = now()
		 WHERE id = $1
		 RETURNING `+invoiceColumns,
		arg.ID, arg.CustomerID, arg.Subtotal, arg.TaxAmount, arg.DiscountAmount,
		arg.Total, arg.DueDate, arg.Notes)
	return scanInvoice(row)
}

// DeleteInvoiceItems clears all items ahead of a full replacement on update.
func (q *Queries) DeleteInvoiceItems(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID)
	return err
}

type UpdateInvoiceStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpdateInvoiceStatus(ctx context.Context, arg UpdateInvoiceStatusParams) (Invoice, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE invoices SET status = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+invoiceColumns,
		arg.ID, arg.Status)
	return scanInvoice(row)
}

type UpdateInvoicePaymentParams struct {
	ID         uuid.UUID
	PaidAmount pgtype.Numeric
	Status     string
}

func (q *Queries) UpdateInvoicePayment(ctx context.Context, arg UpdateInvoicePaymentParams) (Invoice, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE invoices SET paid_amount = $2, status = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+invoiceColumns,
		arg.ID, arg.PaidAmount, arg.Status)
	return scanInvoice(row)
}

func (q *Queries) SumCompletedPaymentsByInvoice(ctx context.Context, invoiceID uuid.UUID) (pgtype.Numeric, error) {
	var sum pgtype.Numeric
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE(sum(amount), 0) FROM payments
		 WHERE invoice_id = $1 AND status = 'completed'`, invoiceID).Scan(&sum)
	return sum, err
}
