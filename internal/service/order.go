package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tabletab/api/internal/database"
	"github.com/tabletab/api/internal/enum"
	"github.com/tabletab/api/internal/fees"
	"github.com/tabletab/api/internal/ws"
)

const maxOrderNumberRetries = 3

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// FeeCalculator computes the fee breakdown for a subtotal.
// Satisfied by *fees.Calculator.
type FeeCalculator interface {
	OrderTotals(ctx context.Context, subtotal decimal.Decimal, orderType string) (fees.Totals, error)
}

// Notifier pushes an event to connected clients. Satisfied by
// *ws.Publisher. Notifications are best effort and never fail the
// operation that triggered them.
type Notifier interface {
	Notify(topic, eventType string, payload any)
}

// RefundInitiator asks the payment provider to return funds.
// Satisfied by *gateway.Client.
type RefundInitiator interface {
	Refund(ctx context.Context, reference string, amount decimal.Decimal) error
}

// OrderStore defines the DB methods the order service needs.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetMenuItemForOrder(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	UpdateOrderPayment(ctx context.Context, arg database.UpdateOrderPaymentParams) (database.Order, error)
	CancelOrder(ctx context.Context, arg database.CancelOrderParams) (database.Order, error)
	InsertOrderStatusHistory(ctx context.Context, arg database.InsertOrderStatusHistoryParams) error
	ListOrderStatusHistory(ctx context.Context, orderID uuid.UUID) ([]database.OrderStatusHistory, error)
	GetTabForUpdate(ctx context.Context, id uuid.UUID) (database.Tab, error)
	ListOrdersByTab(ctx context.Context, tabID uuid.UUID) ([]database.Order, error)
	UpdateTabTotals(ctx context.Context, arg database.UpdateTabTotalsParams) (database.Tab, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// statusTransitions is the order lifecycle state machine. A target
// status must be listed under the current one; everything else is
// rejected. "out-for-delivery" is additionally gated on the order
// being a delivery order.
var statusTransitions = map[string][]string{
	enum.OrderStatusPending:        {enum.OrderStatusConfirmed, enum.OrderStatusCancelled},
	enum.OrderStatusConfirmed:      {enum.OrderStatusPreparing, enum.OrderStatusCancelled},
	enum.OrderStatusPreparing:      {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:          {enum.OrderStatusCompleted, enum.OrderStatusOutForDelivery, enum.OrderStatusCancelled},
	enum.OrderStatusOutForDelivery: {enum.OrderStatusDelivered, enum.OrderStatusCancelled},
}

func validateStatusTransition(from, to string) error {
	for _, allowed := range statusTransitions[from] {
		if to == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// CreateOrderRequest is the input for creating an order. Exactly one
// identity source is required: a registered user or guest details.
type CreateOrderRequest struct {
	UserID          string
	GuestName       string
	GuestEmail      string
	GuestPhone      string
	OrderType       string
	TableNumber     string
	PickupTime      string // RFC3339
	DeliveryAddress string
	Items           []CreateOrderItemRequest
}

type CreateOrderItemRequest struct {
	MenuItemID   string
	Quantity     int32
	Instructions string
}

// OrderDetails is an order with its line items and status history.
type OrderDetails struct {
	Order   database.Order
	Items   []database.OrderItem
	History []database.OrderStatusHistory
}

// OrderService owns the order lifecycle: creation, status transitions
// and cancellation with refunds. store runs read-only queries against
// the pool; newStore builds a store bound to a transaction for writes.
type OrderService struct {
	pool     TxBeginner
	store    OrderStore
	newStore NewOrderStore
	fees     FeeCalculator
	notifier Notifier
	refunds  RefundInitiator
}

func NewOrderService(pool TxBeginner, store OrderStore, newStore NewOrderStore, fees FeeCalculator, notifier Notifier, refunds RefundInitiator) *OrderService {
	return &OrderService{pool: pool, store: store, newStore: newStore, fees: fees, notifier: notifier, refunds: refunds}
}

// CreateOrder validates, prices and creates an order atomically.
// Retries up to maxOrderNumberRetries times on order_number unique
// constraint violations (two transactions generating the same second
// can collide on the timestamp component).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderDetails, error) {
	if err := validateCreateOrder(req); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			s.notifier.Notify(ws.TopicKitchen, "order_created", orderEventPayload(result.Order))
			return result, nil
		}
		if isUniqueViolation(err, "orders_order_number_key") {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// validateCreateOrder collects every field problem into one error so
// the client sees the full list at once.
func validateCreateOrder(req CreateOrderRequest) error {
	var result *multierror.Error

	switch req.OrderType {
	case enum.OrderTypeDineIn:
		if req.TableNumber == "" {
			result = multierror.Append(result, ErrMissingTableNumber)
		}
	case enum.OrderTypePickup:
		if req.PickupTime == "" {
			result = multierror.Append(result, ErrMissingPickupTime)
		} else if _, err := time.Parse(time.RFC3339, req.PickupTime); err != nil {
			result = multierror.Append(result, ErrInvalidPickupTime)
		}
	case enum.OrderTypeDelivery:
		if req.DeliveryAddress == "" {
			result = multierror.Append(result, ErrMissingAddress)
		}
	default:
		result = multierror.Append(result, ErrInvalidOrderType)
	}

	hasGuest := req.GuestName != "" || req.GuestEmail != "" || req.GuestPhone != ""
	switch {
	case req.UserID == "" && !hasGuest:
		result = multierror.Append(result, ErrMissingIdentity)
	case req.UserID != "" && hasGuest:
		result = multierror.Append(result, ErrConflictingIdentity)
	case hasGuest && req.GuestEmail == "" && req.GuestPhone == "":
		result = multierror.Append(result, ErrMissingGuestContact)
	}

	if len(req.Items) == 0 {
		result = multierror.Append(result, ErrEmptyItems)
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			result = multierror.Append(result, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity))
		}
		if _, err := uuid.Parse(item.MenuItemID); err != nil {
			result = multierror.Append(result, fmt.Errorf("item[%d]: %w", i, ErrInvalidMenuItemID))
		}
	}

	return result.ErrorOrNil()
}

func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*OrderDetails, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// Snapshot name and unit price per item so later menu edits never
	// change a placed order.
	subtotal := decimal.Zero
	var itemParams []database.CreateOrderItemParams
	for i, item := range req.Items {
		menuItemID, _ := uuid.Parse(item.MenuItemID)
		menuItem, err := store.GetMenuItemForOrder(ctx, menuItemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrMenuItemNotFound)
			}
			return nil, fmt.Errorf("item[%d]: get menu item: %w", i, err)
		}

		unitPrice := numericToDecimal(menuItem.Price)
		itemSubtotal := unitPrice.Mul(decimal.NewFromInt32(item.Quantity))
		subtotal = subtotal.Add(itemSubtotal)

		instructions := pgtype.Text{}
		if item.Instructions != "" {
			instructions = pgtype.Text{String: item.Instructions, Valid: true}
		}

		itemParams = append(itemParams, database.CreateOrderItemParams{
			MenuItemID:   menuItemID,
			Name:         menuItem.Name,
			UnitPrice:    decimalToNumeric(unitPrice),
			Quantity:     item.Quantity,
			Subtotal:     decimalToNumeric(itemSubtotal),
			Instructions: instructions,
		})
	}

	totals, err := s.fees.OrderTotals(ctx, subtotal, req.OrderType)
	if err != nil {
		return nil, err
	}

	userID := pgtype.UUID{}
	if req.UserID != "" {
		uid, err := uuid.Parse(req.UserID)
		if err != nil {
			return nil, fmt.Errorf("invalid user id: %w", err)
		}
		userID = pgtype.UUID{Bytes: uid, Valid: true}
	}

	tableNumber := pgtype.Text{}
	if req.TableNumber != "" {
		tableNumber = pgtype.Text{String: req.TableNumber, Valid: true}
	}
	pickupTime := pgtype.Timestamptz{}
	if req.PickupTime != "" {
		t, _ := time.Parse(time.RFC3339, req.PickupTime)
		pickupTime = pgtype.Timestamptz{Time: t, Valid: true}
	}
	deliveryAddress := pgtype.Text{}
	if req.DeliveryAddress != "" {
		deliveryAddress = pgtype.Text{String: req.DeliveryAddress, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:     newOrderNumber(time.Now()),
		UserID:          userID,
		GuestName:       textOrNull(req.GuestName),
		GuestEmail:      textOrNull(req.GuestEmail),
		GuestPhone:      textOrNull(req.GuestPhone),
		OrderType:       req.OrderType,
		TableNumber:     tableNumber,
		PickupTime:      pickupTime,
		DeliveryAddress: deliveryAddress,
		Subtotal:        decimalToNumeric(subtotal),
		Tax:             decimalToNumeric(totals.Tax),
		ServiceFee:      decimalToNumeric(totals.ServiceFee),
		DeliveryFee:     decimalToNumeric(totals.DeliveryFee),
		Discount:        decimalToNumeric(decimal.Zero),
		Total:           decimalToNumeric(totals.Total),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	var items []database.OrderItem
	for _, params := range itemParams {
		params.OrderID = order.ID
		item, err := store.CreateOrderItem(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if err := store.InsertOrderStatusHistory(ctx, database.InsertOrderStatusHistoryParams{
		OrderID: order.ID,
		Status:  enum.OrderStatusPending,
	}); err != nil {
		return nil, fmt.Errorf("insert status history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderDetails{Order: order, Items: items}, nil
}

// UpdateStatus moves an order along its lifecycle. Cancellation has
// its own money side effects and is delegated to Cancel.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, target, note string) (database.Order, error) {
	if target == enum.OrderStatusCancelled {
		return s.Cancel(ctx, orderID, note)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	if err := validateStatusTransition(order.Status, target); err != nil {
		return database.Order{}, err
	}
	if target == enum.OrderStatusOutForDelivery && order.OrderType != enum.OrderTypeDelivery {
		return database.Order{}, fmt.Errorf("%w: %s order cannot go out for delivery", ErrInvalidTransition, order.OrderType)
	}

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{ID: orderID, Status: target})
	if err != nil {
		return database.Order{}, fmt.Errorf("update status: %w", err)
	}
	if err := store.InsertOrderStatusHistory(ctx, database.InsertOrderStatusHistoryParams{
		OrderID: orderID,
		Status:  target,
		Note:    textOrNull(note),
	}); err != nil {
		return database.Order{}, fmt.Errorf("insert status history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}

	s.notifier.Notify(ws.TopicOrders, "order_status_changed", orderEventPayload(updated))
	return updated, nil
}

// refundFraction returns how much of a paid order comes back when it
// is cancelled at the given status. Work already done is not refunded.
func refundFraction(status string) decimal.Decimal {
	switch status {
	case enum.OrderStatusPending, enum.OrderStatusConfirmed:
		return decimal.NewFromInt(1)
	case enum.OrderStatusPreparing:
		return decimal.RequireFromString("0.5")
	}
	return decimal.Zero
}

// Cancel cancels an order, computes any refund owed, and recalculates
// the parent tab's totals in the same transaction. The refund call to
// the provider happens after commit and is not retried on failure.
func (s *OrderService) Cancel(ctx context.Context, orderID uuid.UUID, note string) (database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// Lock order first to learn its tab, then take locks in tab->order
	// order like every other tab mutation to avoid deadlock.
	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	var tab database.Tab
	if order.TabID.Valid {
		tab, err = store.GetTabForUpdate(ctx, uuid.UUID(order.TabID.Bytes))
		if err != nil {
			return database.Order{}, fmt.Errorf("get tab: %w", err)
		}
		if tab.Status == enum.TabStatusSettling {
			return database.Order{}, ErrTabSettling
		}
	}

	if enum.IsTerminalOrderStatus(order.Status) {
		return database.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, enum.OrderStatusCancelled)
	}

	refund := decimal.Zero
	if order.PaymentStatus == enum.PaymentStatusPaid {
		refund = numericToDecimal(order.Total).Mul(refundFraction(order.Status)).Round(2)
	}

	cancelled, err := store.CancelOrder(ctx, database.CancelOrderParams{
		ID:           orderID,
		RefundAmount: decimalToNumeric(refund),
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("cancel order: %w", err)
	}

	if refund.IsPositive() {
		cancelled, err = store.UpdateOrderPayment(ctx, database.UpdateOrderPaymentParams{
			ID:                   orderID,
			PaymentStatus:        enum.PaymentStatusRefunded,
			TransactionReference: order.TransactionReference,
			SettledBy:            order.SettledBy,
			PaidAt:               order.PaidAt,
		})
		if err != nil {
			return database.Order{}, fmt.Errorf("mark refunded: %w", err)
		}
	}

	if err := store.InsertOrderStatusHistory(ctx, database.InsertOrderStatusHistoryParams{
		OrderID: orderID,
		Status:  enum.OrderStatusCancelled,
		Note:    textOrNull(note),
	}); err != nil {
		return database.Order{}, fmt.Errorf("insert status history: %w", err)
	}

	// A cancelled order no longer counts toward its tab.
	if order.TabID.Valid {
		if err := recalculateTabTx(ctx, store, s.fees, tab); err != nil {
			return database.Order{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}

	if refund.IsPositive() {
		// Orders paid directly carry their own payment reference; orders
		// settled through a tab only carry the settlement transaction
		// reference.
		reference := order.PaymentReference.String
		if !order.PaymentReference.Valid {
			reference = order.TransactionReference.String
		}
		if reference == "" {
			log.Printf("ERROR: refund %s for order %s skipped, no provider reference on record, needs manual follow-up",
				refund, cancelled.OrderNumber)
		} else if err := s.refunds.Refund(ctx, reference, refund); err != nil {
			log.Printf("ERROR: refund %s for order %s failed, needs manual follow-up: %v",
				refund, cancelled.OrderNumber, err)
		}
	}

	s.notifier.Notify(ws.TopicKitchen, "order_cancelled", orderEventPayload(cancelled))
	return cancelled, nil
}

// GetDetails returns an order with its items and status history.
func (s *OrderService) GetDetails(ctx context.Context, orderID uuid.UUID) (*OrderDetails, error) {
	return getOrderDetails(ctx, s.store, orderID)
}

func getOrderDetails(ctx context.Context, store OrderStore, orderID uuid.UUID) (*OrderDetails, error) {
	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	items, err := store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	history, err := store.ListOrderStatusHistory(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return &OrderDetails{Order: order, Items: items, History: history}, nil
}

// List returns orders matching the filter.
func (s *OrderService) List(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	return s.store.ListOrders(ctx, arg)
}

// --- Helpers ---

// newOrderNumber builds ORD-YYYYMMDD-HHMMSS-NNNN. The random suffix
// disambiguates orders placed in the same second; a residual collision
// surfaces as a unique violation and is retried.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", now.Format("20060102-150405"), rand.Intn(10000))
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

func orderEventPayload(o database.Order) map[string]string {
	return map[string]string{
		"order_id":     o.ID.String(),
		"order_number": o.OrderNumber,
		"status":       o.Status,
	}
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
