package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const stockMovementColumns = `id, product_id, type, quantity, reference_type, reference_id,
	notes, created_by, created_at`

func scanStockMovement(row interface{ Scan(...any) error }) (StockMovement, error) {
	var m StockMovement
	err := row.Scan(&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.ReferenceType,
		&m.ReferenceID, &m.Notes, &m.CreatedBy, &m.CreatedAt)
	return m, err
}

type CreateStockMovementParams struct {
	ProductID     uuid.UUID
	Type          string
	Quantity      int32
	ReferenceType pgtype.Text
	ReferenceID   pgtype.UUID
	Notes         pgtype.Text
	CreatedBy     pgtype.UUID
}

func (q *Queries) CreateStockMovement(ctx context.Context, arg CreateStockMovementParams) (StockMovement, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO stock_movements (product_id, type, quantity, reference_type,
		                              reference_id, notes, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+stockMovementColumns,
		arg.ProductID, arg.Type, arg.Quantity, arg.ReferenceType, arg.ReferenceID,
		arg.Notes, arg.CreatedBy)
	return scanStockMovement(row)
}

type ListStockMovementsParams struct {
	ProductID pgtype.UUID
	Type      pgtype.Text
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Limit     int32
	Offset    int32
}

func (q *Queries) ListStockMovements(ctx context.Context, arg ListStockMovementsParams) ([]StockMovement, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+stockMovementColumns+` FROM stock_movements
		 WHERE ($1::uuid IS NULL OR product_id = $1)
		   AND ($2::text IS NULL OR type = $2)
		   AND ($3::timestamptz IS NULL OR created_at >= $3)
		   AND ($4::timestamptz IS NULL OR created_at < $4 + interval '1 day')
		 ORDER BY created_at DESC
		 LIMIT $5 OFFSET $6`,
		arg.ProductID, arg.Type, arg.StartDate, arg.EndDate, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []StockMovement
	for rows.Next() {
		m, err := scanStockMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
