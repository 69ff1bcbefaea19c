package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// GetMenuItemForOrder returns an active menu item; inactive items
// cannot be ordered.
func (q *Queries) GetMenuItemForOrder(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	var m MenuItem
	err := q.db.QueryRow(ctx, `
		SELECT id, name, category, price, unit_cost, active, created_at
		FROM menu_items WHERE id = $1 AND active = true`, id,
	).Scan(&m.ID, &m.Name, &m.Category, &m.Price, &m.UnitCost, &m.Active, &m.CreatedAt)
	return m, err
}

type GetMenuItemCostRow struct {
	Category string
	UnitCost pgtype.Numeric
}

// GetMenuItemCost serves the report aggregator's per-item cost and
// category lookup.
func (q *Queries) GetMenuItemCost(ctx context.Context, id uuid.UUID) (GetMenuItemCostRow, error) {
	var r GetMenuItemCostRow
	err := q.db.QueryRow(ctx, `
		SELECT category, unit_cost FROM menu_items WHERE id = $1`, id,
	).Scan(&r.Category, &r.UnitCost)
	return r, err
}

type CreateMenuItemParams struct {
	Name     string
	Category string
	Price    pgtype.Numeric
	UnitCost pgtype.Numeric
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	var m MenuItem
	err := q.db.QueryRow(ctx, `
		INSERT INTO menu_items (name, category, price, unit_cost)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, category, price, unit_cost, active, created_at`,
		arg.Name, arg.Category, arg.Price, arg.UnitCost,
	).Scan(&m.ID, &m.Name, &m.Category, &m.Price, &m.UnitCost, &m.Active, &m.CreatedAt)
	return m, err
}
