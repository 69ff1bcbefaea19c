package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, tab_id, user_id, guest_name, guest_email, guest_phone,
	order_type, table_number, pickup_time, delivery_address, status, payment_status,
	subtotal, tax, service_fee, delivery_fee, discount, total,
	payment_reference, transaction_reference, refund_amount, settled_by, paid_at,
	created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.TabID, &o.UserID, &o.GuestName, &o.GuestEmail, &o.GuestPhone,
		&o.OrderType, &o.TableNumber, &o.PickupTime, &o.DeliveryAddress, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.Tax, &o.ServiceFee, &o.DeliveryFee, &o.Discount, &o.Total,
		&o.PaymentReference, &o.TransactionReference, &o.RefundAmount, &o.SettledBy, &o.PaidAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type CreateOrderParams struct {
	OrderNumber     string
	TabID           pgtype.UUID
	UserID          pgtype.UUID
	GuestName       pgtype.Text
	GuestEmail      pgtype.Text
	GuestPhone      pgtype.Text
	OrderType       string
	TableNumber     pgtype.Text
	PickupTime      pgtype.Timestamptz
	DeliveryAddress pgtype.Text
	Subtotal        pgtype.Numeric
	Tax             pgtype.Numeric
	ServiceFee      pgtype.Numeric
	DeliveryFee     pgtype.Numeric
	Discount        pgtype.Numeric
	Total           pgtype.Numeric
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (
			order_number, tab_id, user_id, guest_name, guest_email, guest_phone,
			order_type, table_number, pickup_time, delivery_address,
			subtotal, tax, service_fee, delivery_fee, discount, total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+orderColumns,
		arg.OrderNumber, arg.TabID, arg.UserID, arg.GuestName, arg.GuestEmail, arg.GuestPhone,
		arg.OrderType, arg.TableNumber, arg.PickupTime, arg.DeliveryAddress,
		arg.Subtotal, arg.Tax, arg.ServiceFee, arg.DeliveryFee, arg.Discount, arg.Total,
	)
	return scanOrder(row)
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// GetOrderForUpdate locks the order row for the duration of the
// surrounding transaction, serializing concurrent mutations.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR NO KEY UPDATE`, id)
	return scanOrder(row)
}

func (q *Queries) GetOrderByPaymentReference(ctx context.Context, reference string) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1`, reference)
	return scanOrder(row)
}

type ListOrdersParams struct {
	Status    pgtype.Text
	OrderType pgtype.Text
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Limit     int32
	Offset    int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR order_type = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`,
		arg.Status, arg.OrderType, arg.StartDate, arg.EndDate, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// ListOrdersByTab returns a tab's orders in chronological order. The
// tab_id back-pointer on orders is the single source of truth for
// tab membership.
func (q *Queries) ListOrdersByTab(ctx context.Context, tabID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE tab_id = $1
		ORDER BY created_at ASC`, tabID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

type UpdateOrderStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns, arg.ID, arg.Status)
	return scanOrder(row)
}

type SetOrderTabParams struct {
	ID    uuid.UUID
	TabID pgtype.UUID
}

func (q *Queries) SetOrderTab(ctx context.Context, arg SetOrderTabParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET tab_id = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns, arg.ID, arg.TabID)
	return scanOrder(row)
}

type SetOrderPaymentReferenceParams struct {
	ID               uuid.UUID
	PaymentReference pgtype.Text
}

func (q *Queries) SetOrderPaymentReference(ctx context.Context, arg SetOrderPaymentReferenceParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET payment_reference = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns, arg.ID, arg.PaymentReference)
	return scanOrder(row)
}

type UpdateOrderPaymentParams struct {
	ID                   uuid.UUID
	PaymentStatus        string
	TransactionReference pgtype.Text
	SettledBy            pgtype.UUID
	PaidAt               pgtype.Timestamptz
}

func (q *Queries) UpdateOrderPayment(ctx context.Context, arg UpdateOrderPaymentParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET payment_status = $2, transaction_reference = $3, settled_by = $4, paid_at = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns,
		arg.ID, arg.PaymentStatus, arg.TransactionReference, arg.SettledBy, arg.PaidAt)
	return scanOrder(row)
}

type CancelOrderParams struct {
	ID           uuid.UUID
	RefundAmount pgtype.Numeric
}

func (q *Queries) CancelOrder(ctx context.Context, arg CancelOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET status = 'cancelled', refund_amount = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns, arg.ID, arg.RefundAmount)
	return scanOrder(row)
}

type CreateOrderItemParams struct {
	OrderID      uuid.UUID
	MenuItemID   uuid.UUID
	Name         string
	UnitPrice    pgtype.Numeric
	Quantity     int32
	Subtotal     pgtype.Numeric
	Instructions pgtype.Text
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	var it OrderItem
	err := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, menu_item_id, name, unit_price, quantity, subtotal, instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, order_id, menu_item_id, name, unit_price, quantity, subtotal, instructions`,
		arg.OrderID, arg.MenuItemID, arg.Name, arg.UnitPrice, arg.Quantity, arg.Subtotal, arg.Instructions,
	).Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.UnitPrice, &it.Quantity, &it.Subtotal, &it.Instructions)
	return it, err
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, menu_item_id, name, unit_price, quantity, subtotal, instructions
		FROM order_items WHERE order_id = $1 ORDER BY name ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.UnitPrice, &it.Quantity, &it.Subtotal, &it.Instructions); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type InsertOrderStatusHistoryParams struct {
	OrderID uuid.UUID
	Status  string
	Note    pgtype.Text
}

func (q *Queries) InsertOrderStatusHistory(ctx context.Context, arg InsertOrderStatusHistoryParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, note)
		VALUES ($1, $2, $3)`, arg.OrderID, arg.Status, arg.Note)
	return err
}

func (q *Queries) ListOrderStatusHistory(ctx context.Context, orderID uuid.UUID) ([]OrderStatusHistory, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, status, note, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []OrderStatusHistory
	for rows.Next() {
		var h OrderStatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.Status, &h.Note, &h.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

type ListPaidOrderItemsBetweenParams struct {
	Start pgtype.Timestamptz
	End   pgtype.Timestamptz
}

type ListPaidOrderItemsBetweenRow struct {
	MenuItemID uuid.UUID
	Name       string
	UnitPrice  pgtype.Numeric
	Quantity   int32
}

// ListPaidOrderItemsBetween returns the line items of every paid order
// whose paid_at falls in [start, end). Cost and category are resolved
// separately through the inventory collaborator.
func (q *Queries) ListPaidOrderItemsBetween(ctx context.Context, arg ListPaidOrderItemsBetweenParams) ([]ListPaidOrderItemsBetweenRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT oi.menu_item_id, oi.name, oi.unit_price, oi.quantity
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.payment_status = 'paid'
		  AND o.paid_at >= $1 AND o.paid_at < $2
		ORDER BY oi.name ASC, oi.id ASC`, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []ListPaidOrderItemsBetweenRow
	for rows.Next() {
		var r ListPaidOrderItemsBetweenRow
		if err := rows.Scan(&r.MenuItemID, &r.Name, &r.UnitPrice, &r.Quantity); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
