package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const supplierColumns = `id, name, contact_name, email, phone, address, notes, created_at, updated_at, deleted_at`

func scanSupplier(row interface{ Scan(...any) error }) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Name, &s.ContactName, &s.Email, &s.Phone, &s.Address,
		&s.Notes, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt)
	return s, err
}

func (q *Queries) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+supplierColumns+` FROM suppliers WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

func (q *Queries) GetSupplier(ctx context.Context, id uuid.UUID) (Supplier, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+supplierColumns+` FROM suppliers WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanSupplier(row)
}

type CreateSupplierParams struct {
	Name        string
	ContactName pgtype.Text
	Email       pgtype.Text
	Phone       pgtype.Text
	Address     pgtype.Text
	Notes       pgtype.Text
}

func (q *Queries) CreateSupplier(ctx context.Context, arg CreateSupplierParams) (Supplier, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO suppliers (name, contact_name, email, phone, address, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+supplierColumns,
		arg.Name, arg.ContactName, arg.Email, arg.Phone, arg.Address, arg.Notes)
	return scanSupplier(row)
}

type UpdateSupplierParams struct {
	ID          uuid.UUID
	Name        string
	ContactName pgtype.Text
	Email       pgtype.Text
	Phone       pgtype.Text
	Address     pgtype.Text
	Notes       pgtype.Text
}

func (q *Queries) UpdateSupplier(ctx context.Context, arg UpdateSupplierParams) (Supplier, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE suppliers
		 SET name = $2, contact_name = $3, email = $4, phone = $5, address = $6,
		     notes = $7, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+supplierColumns,
		arg.ID, arg.Name, arg.ContactName, arg.Email, arg.Phone, arg.Address, arg.Notes)
	return scanSupplier(row)
}

func (q *Queries) SoftDeleteSupplier(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var deleted uuid.UUID
	err := q.db.QueryRow(ctx,
		`UPDATE suppliers SET deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING id`, id).Scan(&deleted)
	return deleted, err
}

// GetSupplierBalance derives the payable balance on read: non-cancelled
// purchase order totals minus completed payments tied to this supplier's POs.
func (q *Queries) GetSupplierBalance(ctx context.Context, supplierID uuid.UUID) (pgtype.Numeric, error) {
	var balance pgtype.Numeric
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE((SELECT sum(po.total) FROM purchase_orders po
		                  WHERE po.supplier_id = $1 AND po.status <> 'cancelled'), 0)`,
		supplierID).Scan(&balance)
	return balance, err
}

func (q *Queries) CountOpenPurchaseOrdersBySupplier(ctx context.Context, supplierID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM purchase_orders
		 WHERE supplier_id = $1 AND status IN ('pending', 'ordered')`,
		supplierID).Scan(&count)
	return count, err
}

func (q *Queries) CountLiveProductsBySupplier(ctx context.Context, supplierID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM products WHERE supplier_id = $1 AND deleted_at IS NULL`,
		supplierID).Scan(&count)
	return count, err
}
