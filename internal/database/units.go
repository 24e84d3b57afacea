package database

import (
	"context"

	"github.com/google/uuid"
)

const unitColumns = `id, name, symbol, created_at, updated_at, deleted_at`

func scanUnit(row interface{ Scan(...any) error }) (Unit, error) {
	var u Unit
	err := row.Scan(&u.ID, &u.Name, &u.Symbol, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	return u, err
}

func (q *Queries) ListUnits(ctx context.Context) ([]Unit, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+unitColumns+` FROM units WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (q *Queries) GetUnit(ctx context.Context, id uuid.UUID) (Unit, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+unitColumns+` FROM units WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanUnit(row)
}

type CreateUnitParams struct {
	Name   string
	Symbol string
}

func (q *Queries) CreateUnit(ctx context.Context, arg CreateUnitParams) (Unit, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO units (name, symbol) VALUES ($1, $2)
		 RETURNING `+unitColumns,
		arg.Name, arg.Symbol)
	return scanUnit(row)
}

type UpdateUnitParams struct {
	ID     uuid.UUID
	Name   string
	Symbol string
}

func (q *Queries) UpdateUnit(ctx context.Context, arg UpdateUnitParams) (Unit, error) {
	row := q.db.QueryRow(ctx,
		`UPDATE units SET name = $2, symbol = $3, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+unitColumns,
		arg.ID, arg.Name, arg.Symbol)
	return scanUnit(row)
}

func (q *Queries) SoftDeleteUnit(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var deleted uuid.UUID
	err := q.db.QueryRow(ctx,
		`UPDATE units SET deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING id`, id).Scan(&deleted)
	return deleted, err
}

func (q *Queries) CountLiveProductsByUnit(ctx context.Context, unitID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM products WHERE unit_id = $1 AND deleted_at IS NULL`,
		unitID).Scan(&count)
	return count, err
}
