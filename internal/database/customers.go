package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const customerColumns = `id, name, email, phone, address, notes, created_at, updated_at, deleted_at`

func scanCustomer(row interface{ Scan(...any) error }) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	return c, err
}

type ListCustomersParams struct {
	Search pgtype.Text
	Limit  int32
	Offset int32
}

func (q *Queries) ListCustomers(ctx context.Context, arg ListCustomersParams) ([]Customer, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+customerColumns+` FROM customers
		 WHERE deleted_at IS NULL
		   AND ($1::text IS NULL OR name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')
		 ORDER BY name
		 LIMIT $2 OFFSET $3`,
		arg.Search, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanCustomer(row)
}

type CreateCustomerParams struct {
	Name    string
	Email   pgtype.Text
	Phone   pgtype.Text
	Address pgtype.Text
	Notes   pgtype.Text
}

func (q *Queries) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO customers (name, email, phone, address, notes)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+customerColumns,
		arg.Name, arg.Email, arg.Phone, arg.Address, arg.Notes)
	return scanCustomer(row)
}

type UpdateCustomerParams struct {
	ID      uuid.UUID
	Name    string
	Email   pgtype.Text
	Phone   pgtype.Text
	Address pgtype.Text
	Notes   pgtype.Text
}

func (q *Queries) UpdateCustomer(ctx context.Context, arg UpdateCustomerParams) (Customer, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE customers
		 SET name = $2, email = $3, phone = $4, address = $5, notes = $6, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+customerColumns,
		arg.ID, arg.Name, arg.Email, arg.Phone, arg.Address, arg.Notes)
	return scanCustomer(row)
}

func (q *Queries) SoftDeleteCustomer(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var deleted uuid.UUID
	err := q.db.QueryRow(ctx,
		`UPDATE customers SET deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING id`, id).Scan(&deleted)
	return deleted, err
}

// GetCustomerBalance derives the balance on read: non-cancelled order totals
// minus completed payments. Nothing stores this figure.
func (q *Queries) GetCustomerBalance(ctx context.Context, customerID uuid.UUID) (pgtype.Numeric, error) {
	var balance pgtype.Numeric
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE((SELECT sum(o.total) FROM orders o
		                  WHERE o.customer_id = $1 AND o.status <> 'cancelled'), 0)
		      - COALESCE((SELECT sum(p.amount) FROM payments p
		                  WHERE p.customer_id = $1 AND p.status = 'completed'), 0)`,
		customerID).Scan(&balance)
	return balance, err
}

func (q *Queries) CountOpenOrdersByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM orders
		 WHERE customer_id = $1 AND status IN ('pending', 'processing')`,
		customerID).Scan(&count)
	return count, err
}
