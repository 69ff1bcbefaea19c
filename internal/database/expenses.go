package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type CreateExpenseParams struct {
	ExpenseDate pgtype.Date
	ExpenseType string
	Category    string
	Amount      pgtype.Numeric
	Description pgtype.Text
	CreatedBy   pgtype.UUID
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	var e Expense
	err := q.db.QueryRow(ctx, `
		INSERT INTO expenses (expense_date, expense_type, category, amount, description, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, expense_date, expense_type, category, amount, description, created_by, created_at`,
		arg.ExpenseDate, arg.ExpenseType, arg.Category, arg.Amount, arg.Description, arg.CreatedBy,
	).Scan(&e.ID, &e.ExpenseDate, &e.ExpenseType, &e.Category, &e.Amount, &e.Description, &e.CreatedBy, &e.CreatedAt)
	return e, err
}

type ListExpensesBetweenParams struct {
	Start pgtype.Date
	End   pgtype.Date
}

// ListExpensesBetween returns expenses dated in [start, end).
func (q *Queries) ListExpensesBetween(ctx context.Context, arg ListExpensesBetweenParams) ([]Expense, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, expense_date, expense_type, category, amount, description, created_by, created_at
		FROM expenses
		WHERE expense_date >= $1 AND expense_date < $2
		ORDER BY expense_date ASC, created_at ASC`, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var expenses []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.ExpenseDate, &e.ExpenseType, &e.Category, &e.Amount, &e.Description, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}
