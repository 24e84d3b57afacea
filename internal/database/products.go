package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, sku, name, description, price, cost, stock, min_stock,
	category_id, unit_id, supplier_id, status, created_at, updated_at, deleted_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Sku, &p.Name, &p.Description, &p.Price, &p.Cost,
		&p.Stock, &p.MinStock, &p.CategoryID, &p.UnitID, &p.SupplierID, &p.Status,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	return p, err
}

type ListProductsParams struct {
	CategoryID pgtype.UUID
	SupplierID pgtype.UUID
	Status     pgtype.Text
	Search     pgtype.Text
	LowStock   bool
	Limit      int32
	Offset     int32
}

func (q *Queries) ListProducts(ctx context.Context, arg ListProductsParams) ([]Product, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE deleted_at IS NULL
		   AND ($1::uuid IS NULL OR category_id = $1)
		   AND ($2::uuid IS NULL OR supplier_id = $2)
		   AND ($3::text IS NULL OR status = $3)
		   AND ($4::text IS NULL OR name ILIKE '%' || $4 || '%' OR sku ILIKE '%' || $4 || '%')
		   AND (NOT $5::bool OR stock <= min_stock)
		 ORDER BY name
		 LIMIT $6 OFFSET $7`,
		arg.CategoryID, arg.SupplierID, arg.Status, arg.Search, arg.LowStock,
		arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanProduct(row)
}

type CreateProductParams struct {
	Sku         string
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	Cost        pgtype.Numeric
	Stock       int32
	MinStock    int32
	CategoryID  uuid.UUID
	UnitID      pgtype.UUID
	SupplierID  pgtype.UUID
	Status      string
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO products (sku, name, description, price, cost, stock, min_stock,
		                       category_id, unit_id, supplier_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+productColumns,
		arg.Sku, arg.Name, arg.Description, arg.Price, arg.Cost, arg.Stock,
		arg.MinStock, arg.CategoryID, arg.UnitID, arg.SupplierID, arg.Status)
	return scanProduct(row)
}

type UpdateProductParams struct {
	ID          uuid.UUID
	Sku         string
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	Cost        pgtype.Numeric
	MinStock    int32
	CategoryID  uuid.UUID
	UnitID      pgtype.UUID
	SupplierID  pgtype.UUID
	Status      string
}

// UpdateProduct deliberately does not touch stock; the counter moves only
// through order, purchase order, and adjustment flows.
func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE products
		 SET sku = $2, name = $3, description = $4, price = $5, cost = $6,
		     min_stock = $7, category_id = $8, unit_id = $9, supplier_id = $10,
		     status = $11, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+productColumns,
		arg.ID, arg.Sku, arg.Name, arg.Description, arg.Price, arg.Cost,
		arg.MinStock, arg.CategoryID, arg.UnitID, arg.SupplierID, arg.Status)
	return scanProduct(row)
}

func (q *Queries) SoftDeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var deleted uuid.UUID
	err := q.db.QueryRow(ctx,
		`UPDATE products SET deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING id`, id).Scan(&deleted)
	return deleted, err
}

type DecrementStockParams struct {
	ID       uuid.UUID
	Quantity int32
}

// DecrementStock is the check-and-write in one statement: zero rows affected
// means the product is missing or has insufficient stock, and the caller's
// transaction rolls back.
func (q *Queries) DecrementStock(ctx context.Context, arg DecrementStockParams) (int32, error) {
	var stock int32
	err := q.db.QueryRow(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL AND stock >= $2
		 RETURNING stock`,
		arg.ID, arg.Quantity).Scan(&stock)
	return stock, err
}

type IncrementStockParams struct {
	ID       uuid.UUID
	Quantity int32
}

func (q *Queries) IncrementStock(ctx context.Context, arg IncrementStockParams) (int32, error) {
	var stock int32
	err := q.db.QueryRow(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING stock`,
		arg.ID, arg.Quantity).Scan(&stock)
	return stock, err
}

type AdjustStockParams struct {
	ID    uuid.UUID
	Delta int32
}

// AdjustStock applies a signed manual correction; the WHERE clause keeps the
// counter non-negative.
func (q *Queries) AdjustStock(ctx context.Context, arg AdjustStockParams) (int32, error) {
	var stock int32
	err := q.db.QueryRow(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL AND stock + $2 >= 0
		 RETURNING stock`,
		arg.ID, arg.Delta).Scan(&stock)
	return stock, err
}

// GetProductForSale reads the fields order placement needs. The existence
// check and the stock check both re-run atomically in DecrementStock; this
// read only supplies the default unit price and data for error messages.
func (q *Queries) GetProductForSale(ctx context.Context, id uuid.UUID) (Product, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE id = $1 AND deleted_at IS NULL AND status = 'active'`, id)
	return scanProduct(row)
}
