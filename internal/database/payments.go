package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, order_id, invoice_id, customer_id, amount, payment_method,
	status, payment_date, reference, notes, created_by, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.InvoiceID, &p.CustomerID, &p.Amount,
		&p.PaymentMethod, &p.Status, &p.PaymentDate, &p.Reference, &p.Notes,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

type CreatePaymentParams struct {
	OrderID       pgtype.UUID
	InvoiceID     pgtype.UUID
	CustomerID    pgtype.UUID
	Amount        pgtype.Numeric
	PaymentMethod string
	Status        string
	PaymentDate   time.Time
	Reference     pgtype.Text
	Notes         pgtype.Text
	CreatedBy     uuid.UUID
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO payments (order_id, invoice_id, customer_id, amount, payment_method,
		                       status, payment_date, reference, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+paymentColumns,
		arg.OrderID, arg.InvoiceID, arg.CustomerID, arg.Amount, arg.PaymentMethod,
		arg.Status, arg.PaymentDate, arg.Reference, arg.Notes, arg.CreatedBy)
	return scanPayment(row)
}

func (q *Queries) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

type ListPaymentsParams struct {
	OrderID       pgtype.UUID
	InvoiceID     pgtype.UUID
	CustomerID    pgtype.UUID
	PaymentMethod pgtype.Text
	StartDate     pgtype.Timestamptz
	EndDate       pgtype.Timestamptz
	Limit         int32
	Offset        int32
}

func (q *Queries) ListPayments(ctx context.Context, arg ListPaymentsParams) ([]Payment, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE ($1::uuid IS NULL OR order_id = $1)
		   AND ($2::uuid IS NULL OR invoice_id = $2)
		   AND ($3::uuid IS NULL OR customer_id = $3)
		   AND ($4::text IS NULL OR payment_method = $4)
		   AND ($5::timestamptz IS NULL OR payment_date >= $5)
		   AND ($6::timestamptz IS NULL OR payment_date < $6 + interval '1 day')
		 ORDER BY payment_date DESC
		 LIMIT $7 OFFSET $8`,
		arg.OrderID, arg.InvoiceID, arg.CustomerID, arg.PaymentMethod,
		arg.StartDate, arg.EndDate, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type UpdatePaymentParams struct {
	ID            uuid.UUID
	Amount        pgtype.Numeric
	PaymentMethod string
	PaymentDate   time.Time
	Notes         pgtype.Text
}

func (q *Queries) UpdatePayment(ctx context.Context, arg UpdatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE payments
		 SET amount = $2, payment_method = $3, payment_date = $4, notes = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING `+paymentColumns,
		arg.ID, arg.Amount, arg.PaymentMethod, arg.PaymentDate, arg.Notes)
	return scanPayment(row)
}

// DeletePayment removes the row and returns it so the caller can recompute
// the linked target's payment status.
func (q *Queries) DeletePayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	row := q.db.QueryRow(ctx,
		`DELETE FROM payments WHERE id = $1 RETURNING `+paymentColumns, id)
	return scanPayment(row)
}
