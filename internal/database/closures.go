package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const registerClosureColumns = `id, closure_date, total_sales, details, user_id, notes, closed_at`

func scanRegisterClosure(row interface{ Scan(...any) error }) (RegisterClosure, error) {
	var c RegisterClosure
	err := row.Scan(&c.ID, &c.ClosureDate, &c.TotalSales, &c.Details, &c.UserID,
		&c.Notes, &c.ClosedAt)
	return c, err
}

type CreateRegisterClosureParams struct {
	ClosureDate pgtype.Date
	TotalSales  pgtype.Numeric
	Details     []byte
	UserID      uuid.UUID
	Notes       pgtype.Text
}

func (q *Queries) CreateRegisterClosure(ctx context.Context, arg CreateRegisterClosureParams) (RegisterClosure, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO register_closures (closure_date, total_sales, details, user_id, notes)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+registerClosureColumns,
		arg.ClosureDate, arg.TotalSales, arg.Details, arg.UserID, arg.Notes)
	return scanRegisterClosure(row)
}

func (q *Queries) GetRegisterClosure(ctx context.Context, id uuid.UUID) (RegisterClosure, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+registerClosureColumns+` FROM register_closures WHERE id = $1`, id)
	return scanRegisterClosure(row)
}

type ListRegisterClosuresParams struct {
	StartDate pgtype.Date
	EndDate   pgtype.Date
	Limit     int32
	Offset    int32
}

func (q *Queries) ListRegisterClosures(ctx context.Context, arg ListRegisterClosuresParams) ([]RegisterClosure, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+registerClosureColumns+` FROM register_closures
		 WHERE ($1::date IS NULL OR closure_date >= $1)
		   AND ($2::date IS NULL OR closure_date <= $2)
		 ORDER BY closure_date DESC
		 LIMIT $3 OFFSET $4`,
		arg.StartDate, arg.EndDate, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var closures []RegisterClosure
	for rows.Next() {
		c, err := scanRegisterClosure(rows)
		if err != nil {
			return nil, err
		}
		closures = append(closures, c)
	}
	return closures, rows.Err()
}

func (q *Queries) DeleteRegisterClosure(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM register_closures WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetDailySalesTotal sums completed payments whose payment_date falls on the
// given day. This is the figure a closure records as total_sales.
func (q *Queries) GetDailySalesTotal(ctx context.Context, day pgtype.Date) (pgtype.Numeric, error) {
	var total pgtype.Numeric
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE(sum(amount), 0) FROM payments
		 WHERE status = 'completed' AND payment_date::date = $1`, day).Scan(&total)
	return total, err
}

type DailyMethodTotal struct {
	PaymentMethod string
	Count         int64
	Total         pgtype.Numeric
}

func (q *Queries) ListDailyPaymentTotalsByMethod(ctx context.Context, day pgtype.Date) ([]DailyMethodTotal, error) {
	rows, err := q.db.Query(ctx,
		`SELECT payment_method, count(*), COALESCE(sum(amount), 0)
		 FROM payments
		 WHERE status = 'completed' AND payment_date::date = $1
		 GROUP BY payment_method
		 ORDER BY payment_method`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []DailyMethodTotal
	for rows.Next() {
		var t DailyMethodTotal
		if err := rows.Scan(&t.PaymentMethod, &t.Count, &t.Total); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (q *Queries) CountOrdersForDay(ctx context.Context, day pgtype.Date) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM orders
		 WHERE status <> 'cancelled' AND created_at::date = $1`, day).Scan(&n)
	return n, err
}
