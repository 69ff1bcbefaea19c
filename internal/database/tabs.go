package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const tabColumns = `id, tab_number, table_number, status,
	subtotal, service_fee, tax, discount_total, tip_amount, total,
	payment_status, payment_reference, transaction_reference, settled_by, opened_by,
	opened_at, closed_at, paid_at`

func scanTab(row pgx.Row) (Tab, error) {
	var t Tab
	err := row.Scan(
		&t.ID, &t.TabNumber, &t.TableNumber, &t.Status,
		&t.Subtotal, &t.ServiceFee, &t.Tax, &t.DiscountTotal, &t.TipAmount, &t.Total,
		&t.PaymentStatus, &t.PaymentReference, &t.TransactionReference, &t.SettledBy, &t.OpenedBy,
		&t.OpenedAt, &t.ClosedAt, &t.PaidAt,
	)
	return t, err
}

type CreateTabParams struct {
	TabNumber   string
	TableNumber string
	OpenedBy    pgtype.UUID
}

func (q *Queries) CreateTab(ctx context.Context, arg CreateTabParams) (Tab, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO tabs (tab_number, table_number, opened_by)
		VALUES ($1, $2, $3)
		RETURNING `+tabColumns, arg.TabNumber, arg.TableNumber, arg.OpenedBy)
	return scanTab(row)
}

func (q *Queries) GetTab(ctx context.Context, id uuid.UUID) (Tab, error) {
	row := q.db.QueryRow(ctx, `SELECT `+tabColumns+` FROM tabs WHERE id = $1`, id)
	return scanTab(row)
}

// GetTabForUpdate locks the tab row for the duration of the surrounding
// transaction. Every tab mutation goes through this lock, which is the
// per-tab serialization point for concurrent recalculation, attachment
// and settlement.
func (q *Queries) GetTabForUpdate(ctx context.Context, id uuid.UUID) (Tab, error) {
	row := q.db.QueryRow(ctx, `SELECT `+tabColumns+` FROM tabs WHERE id = $1 FOR NO KEY UPDATE`, id)
	return scanTab(row)
}

func (q *Queries) GetTabByPaymentReference(ctx context.Context, reference string) (Tab, error) {
	row := q.db.QueryRow(ctx, `SELECT `+tabColumns+` FROM tabs WHERE payment_reference = $1`, reference)
	return scanTab(row)
}

type UpdateTabTotalsParams struct {
	ID            uuid.UUID
	Subtotal      pgtype.Numeric
	ServiceFee    pgtype.Numeric
	Tax           pgtype.Numeric
	DiscountTotal pgtype.Numeric
	TipAmount     pgtype.Numeric
	Total         pgtype.Numeric
}

func (q *Queries) UpdateTabTotals(ctx context.Context, arg UpdateTabTotalsParams) (Tab, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE tabs
		SET subtotal = $2, service_fee = $3, tax = $4, discount_total = $5,
		    tip_amount = $6, total = $7
		WHERE id = $1
		RETURNING `+tabColumns,
		arg.ID, arg.Subtotal, arg.ServiceFee, arg.Tax, arg.DiscountTotal, arg.TipAmount, arg.Total)
	return scanTab(row)
}

type SetTabPaymentReferenceParams struct {
	ID               uuid.UUID
	PaymentReference pgtype.Text
	Status           string
}

func (q *Queries) SetTabPaymentReference(ctx context.Context, arg SetTabPaymentReferenceParams) (Tab, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE tabs SET payment_reference = $2, status = $3
		WHERE id = $1
		RETURNING `+tabColumns, arg.ID, arg.PaymentReference, arg.Status)
	return scanTab(row)
}

type SettleTabParams struct {
	ID                   uuid.UUID
	Status               string
	PaymentStatus        string
	TransactionReference pgtype.Text
	SettledBy            pgtype.UUID
	ClosedAt             pgtype.Timestamptz
	PaidAt               pgtype.Timestamptz
}

func (q *Queries) SettleTab(ctx context.Context, arg SettleTabParams) (Tab, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE tabs
		SET status = $2, payment_status = $3, transaction_reference = $4,
		    settled_by = $5, closed_at = $6, paid_at = $7
		WHERE id = $1
		RETURNING `+tabColumns,
		arg.ID, arg.Status, arg.PaymentStatus, arg.TransactionReference,
		arg.SettledBy, arg.ClosedAt, arg.PaidAt)
	return scanTab(row)
}

type CloseTabParams struct {
	ID       uuid.UUID
	ClosedAt pgtype.Timestamptz
}

func (q *Queries) CloseTab(ctx context.Context, arg CloseTabParams) (Tab, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE tabs SET status = 'closed', closed_at = $2
		WHERE id = $1
		RETURNING `+tabColumns, arg.ID, arg.ClosedAt)
	return scanTab(row)
}
