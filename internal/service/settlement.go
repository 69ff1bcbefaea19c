package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tabletab/api/internal/database"
	"github.com/tabletab/api/internal/enum"
	"github.com/tabletab/api/internal/gateway"
	"github.com/tabletab/api/internal/ws"
)

// PaymentGateway is the slice of the provider client the settlement
// service uses. Satisfied by *gateway.Client.
type PaymentGateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (gateway.InitializeResponse, error)
	Verify(ctx context.Context, reference string) (gateway.VerifyResponse, error)
}

// SettlementStore defines the DB methods settlement needs.
// Satisfied by *database.Queries (and its WithTx variant).
type SettlementStore interface {
	GetTab(ctx context.Context, id uuid.UUID) (database.Tab, error)
	GetTabForUpdate(ctx context.Context, id uuid.UUID) (database.Tab, error)
	GetTabByPaymentReference(ctx context.Context, reference string) (database.Tab, error)
	SetTabPaymentReference(ctx context.Context, arg database.SetTabPaymentReferenceParams) (database.Tab, error)
	SettleTab(ctx context.Context, arg database.SettleTabParams) (database.Tab, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderByPaymentReference(ctx context.Context, reference string) (database.Order, error)
	SetOrderPaymentReference(ctx context.Context, arg database.SetOrderPaymentReferenceParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	UpdateOrderPayment(ctx context.Context, arg database.UpdateOrderPaymentParams) (database.Order, error)
	ListOrdersByTab(ctx context.Context, tabID uuid.UUID) ([]database.Order, error)
	InsertOrderStatusHistory(ctx context.Context, arg database.InsertOrderStatusHistoryParams) error
}

// NewSettlementStore creates a SettlementStore from a DBTX (pool or tx).
type NewSettlementStore func(db database.DBTX) SettlementStore

// Checkout is the result of initializing a payment.
type Checkout struct {
	PaymentReference string `json:"payment_reference"`
	CheckoutURL      string `json:"checkout_url"`
}

// VerifyResult is the outcome of a payment verification.
type VerifyResult struct {
	PaymentReference string `json:"payment_reference"`
	PaymentStatus    string `json:"payment_status"`
	Target           string `json:"target"` // "tab" or "order"
	TargetID         string `json:"target_id"`
}

// SettlementService implements the two-phase payment flow: initialize
// records intent with the provider before any local write; verify
// reconciles the provider's answer into local state exactly once.
type SettlementService struct {
	pool     TxBeginner
	store    SettlementStore
	newStore NewSettlementStore
	gateway  PaymentGateway
	notifier Notifier
}

func NewSettlementService(pool TxBeginner, store SettlementStore, newStore NewSettlementStore, gw PaymentGateway, notifier Notifier) *SettlementService {
	return &SettlementService{pool: pool, store: store, newStore: newStore, gateway: gw, notifier: notifier}
}

// newPaymentReference builds {entityID}-{unixMillis}-{hex4}. Unique
// per attempt so a retried checkout gets a fresh provider session.
func newPaymentReference(entityID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("%s-%d-%04x", entityID, now.UnixMilli(), rand.Intn(1<<16))
}

// InitializeTab starts checkout for a tab. The provider call happens
// before any local write: a gateway failure leaves the tab untouched
// and open. On success the tab moves to settling, which freezes its
// composition until verification resolves.
func (s *SettlementService) InitializeTab(ctx context.Context, tabID uuid.UUID, customerName, customerEmail string) (*Checkout, error) {
	tab, err := s.store.GetTab(ctx, tabID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTabNotFound
		}
		return nil, fmt.Errorf("get tab: %w", err)
	}
	if tab.PaymentStatus == enum.PaymentStatusPaid {
		return nil, ErrAlreadyPaid
	}
	if tab.Status == enum.TabStatusClosed {
		return nil, ErrTabNotOpen
	}

	reference := newPaymentReference(tab.ID, time.Now())
	resp, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Amount:        numericToDecimal(tab.Total),
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		Reference:     reference,
	})
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	locked, err := store.GetTabForUpdate(ctx, tabID)
	if err != nil {
		return nil, fmt.Errorf("lock tab: %w", err)
	}
	if locked.PaymentStatus == enum.PaymentStatusPaid {
		return nil, ErrAlreadyPaid
	}
	if locked.Status == enum.TabStatusClosed {
		return nil, ErrTabNotOpen
	}

	if _, err := store.SetTabPaymentReference(ctx, database.SetTabPaymentReferenceParams{
		ID:               tabID,
		PaymentReference: pgtype.Text{String: reference, Valid: true},
		Status:           enum.TabStatusSettling,
	}); err != nil {
		return nil, fmt.Errorf("set payment reference: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &Checkout{PaymentReference: reference, CheckoutURL: resp.CheckoutURL}, nil
}

// InitializeOrder starts checkout for a standalone order.
func (s *SettlementService) InitializeOrder(ctx context.Context, orderID uuid.UUID, customerName, customerEmail string) (*Checkout, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.PaymentStatus == enum.PaymentStatusPaid {
		return nil, ErrAlreadyPaid
	}
	if order.Status == enum.OrderStatusCancelled {
		return nil, ErrOrderCancelled
	}
	if order.TabID.Valid {
		// Tab orders settle through their tab, never individually.
		return nil, ErrOrderOnAnotherTab
	}

	reference := newPaymentReference(order.ID, time.Now())
	resp, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Amount:        numericToDecimal(order.Total),
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		Reference:     reference,
	})
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	locked, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if locked.PaymentStatus == enum.PaymentStatusPaid {
		return nil, ErrAlreadyPaid
	}

	if _, err := store.SetOrderPaymentReference(ctx, database.SetOrderPaymentReferenceParams{
		ID:               orderID,
		PaymentReference: pgtype.Text{String: reference, Valid: true},
	}); err != nil {
		return nil, fmt.Errorf("set payment reference: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &Checkout{PaymentReference: reference, CheckoutURL: resp.CheckoutURL}, nil
}

// mapProviderStatus folds the provider's status vocabulary onto ours.
// Unknown values stay pending so a later verify can still resolve them.
func mapProviderStatus(providerStatus string) string {
	switch providerStatus {
	case "PAID", "OVERPAID":
		return enum.PaymentStatusPaid
	case "FAILED", "EXPIRED":
		return enum.PaymentStatusFailed
	case "CANCELLED":
		return enum.PaymentStatusCancelled
	}
	return enum.PaymentStatusPending
}

// Verify reconciles a payment reference against the provider. Safe to
// call any number of times: once the target is paid, further calls
// report the stored state without touching the database or notifying.
func (s *SettlementService) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	tab, err := s.store.GetTabByPaymentReference(ctx, reference)
	if err == nil {
		return s.verifyTab(ctx, tab, reference)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find tab by reference: %w", err)
	}

	order, err := s.store.GetOrderByPaymentReference(ctx, reference)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("find order by reference: %w", err)
	}
	return s.verifyOrder(ctx, order, reference)
}

func (s *SettlementService) verifyTab(ctx context.Context, tab database.Tab, reference string) (*VerifyResult, error) {
	result := &VerifyResult{
		PaymentReference: reference,
		Target:           "tab",
		TargetID:         tab.ID.String(),
	}

	if tab.PaymentStatus == enum.PaymentStatusPaid {
		result.PaymentStatus = enum.PaymentStatusPaid
		return result, nil
	}

	resp, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	status := mapProviderStatus(resp.PaymentStatus)
	result.PaymentStatus = status

	switch status {
	case enum.PaymentStatusPaid:
		settled, err := s.settleTabTx(ctx, tab.ID, resp.TransactionReference, pgtype.UUID{})
		if err != nil {
			return nil, err
		}
		s.notifier.Notify(ws.TopicOrders, "tab_payment_completed", map[string]string{
			"tab_id":     settled.ID.String(),
			"tab_number": settled.TabNumber,
		})
	case enum.PaymentStatusFailed, enum.PaymentStatusCancelled:
		if err := s.reopenTabTx(ctx, tab.ID, status, resp.TransactionReference); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// settleTabTx closes a paid tab and cascades payment to its orders in
// one transaction. Already-terminal orders are skipped: a cancelled
// order's refund bookkeeping must survive tab settlement.
func (s *SettlementService) settleTabTx(ctx context.Context, tabID uuid.UUID, txnRef string, settledBy pgtype.UUID) (database.Tab, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Tab{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	tab, err := store.GetTabForUpdate(ctx, tabID)
	if err != nil {
		return database.Tab{}, fmt.Errorf("lock tab: %w", err)
	}
	if tab.PaymentStatus == enum.PaymentStatusPaid {
		// Lost a race with another verify; that one did the work.
		return tab, tx.Commit(ctx)
	}

	now := time.Now()
	settled, err := store.SettleTab(ctx, database.SettleTabParams{
		ID:                   tabID,
		Status:               enum.TabStatusClosed,
		PaymentStatus:        enum.PaymentStatusPaid,
		TransactionReference: textOrNull(txnRef),
		SettledBy:            settledBy,
		ClosedAt:             pgtype.Timestamptz{Time: now, Valid: true},
		PaidAt:               pgtype.Timestamptz{Time: now, Valid: true},
	})
	if err != nil {
		return database.Tab{}, fmt.Errorf("settle tab: %w", err)
	}

	orders, err := store.ListOrdersByTab(ctx, tabID)
	if err != nil {
		return database.Tab{}, fmt.Errorf("list tab orders: %w", err)
	}
	for _, order := range orders {
		if enum.IsTerminalOrderStatus(order.Status) {
			continue
		}
		if _, err := store.UpdateOrderPayment(ctx, database.UpdateOrderPaymentParams{
			ID:                   order.ID,
			PaymentStatus:        enum.PaymentStatusPaid,
			TransactionReference: textOrNull(txnRef),
			SettledBy:            settledBy,
			PaidAt:               pgtype.Timestamptz{Time: now, Valid: true},
		}); err != nil {
			return database.Tab{}, fmt.Errorf("cascade payment to order %s: %w", order.OrderNumber, err)
		}
		if order.Status == enum.OrderStatusPending {
			if _, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
				ID:     order.ID,
				Status: enum.OrderStatusConfirmed,
			}); err != nil {
				return database.Tab{}, fmt.Errorf("confirm order %s: %w", order.OrderNumber, err)
			}
			if err := store.InsertOrderStatusHistory(ctx, database.InsertOrderStatusHistoryParams{
				OrderID: order.ID,
				Status:  enum.OrderStatusConfirmed,
				Note:    pgtype.Text{String: "tab settled", Valid: true},
			}); err != nil {
				return database.Tab{}, fmt.Errorf("record order history: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Tab{}, fmt.Errorf("commit tx: %w", err)
	}
	return settled, nil
}

// reopenTabTx returns a settling tab to open after a failed or
// cancelled payment so the table can retry or order more.
func (s *SettlementService) reopenTabTx(ctx context.Context, tabID uuid.UUID, paymentStatus, txnRef string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	tab, err := store.GetTabForUpdate(ctx, tabID)
	if err != nil {
		return fmt.Errorf("lock tab: %w", err)
	}
	if tab.PaymentStatus == enum.PaymentStatusPaid || tab.Status != enum.TabStatusSettling {
		return tx.Commit(ctx)
	}

	if _, err := store.SettleTab(ctx, database.SettleTabParams{
		ID:                   tabID,
		Status:               enum.TabStatusOpen,
		PaymentStatus:        paymentStatus,
		TransactionReference: textOrNull(txnRef),
	}); err != nil {
		return fmt.Errorf("reopen tab: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *SettlementService) verifyOrder(ctx context.Context, order database.Order, reference string) (*VerifyResult, error) {
	result := &VerifyResult{
		PaymentReference: reference,
		Target:           "order",
		TargetID:         order.ID.String(),
	}

	if order.PaymentStatus == enum.PaymentStatusPaid {
		result.PaymentStatus = enum.PaymentStatusPaid
		return result, nil
	}

	resp, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	status := mapProviderStatus(resp.PaymentStatus)
	result.PaymentStatus = status
	if status == enum.PaymentStatusPending {
		return result, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	locked, err := store.GetOrderForUpdate(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if locked.PaymentStatus == enum.PaymentStatusPaid {
		result.PaymentStatus = enum.PaymentStatusPaid
		return result, tx.Commit(ctx)
	}

	paidAt := pgtype.Timestamptz{}
	if status == enum.PaymentStatusPaid {
		paidAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	}
	if _, err := store.UpdateOrderPayment(ctx, database.UpdateOrderPaymentParams{
		ID:                   order.ID,
		PaymentStatus:        status,
		TransactionReference: textOrNull(resp.TransactionReference),
		PaidAt:               paidAt,
	}); err != nil {
		return nil, fmt.Errorf("update order payment: %w", err)
	}

	if status == enum.PaymentStatusPaid && locked.Status == enum.OrderStatusPending {
		if _, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
			ID:     order.ID,
			Status: enum.OrderStatusConfirmed,
		}); err != nil {
			return nil, fmt.Errorf("confirm order: %w", err)
		}
		if err := store.InsertOrderStatusHistory(ctx, database.InsertOrderStatusHistoryParams{
			OrderID: order.ID,
			Status:  enum.OrderStatusConfirmed,
			Note:    pgtype.Text{String: "payment confirmed", Valid: true},
		}); err != nil {
			return nil, fmt.Errorf("record order history: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if status == enum.PaymentStatusPaid {
		s.notifier.Notify(ws.TopicOrders, "order_payment_completed", map[string]string{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
		})
	}
	return result, nil
}

// CompleteTabManually settles a tab paid at the counter (cash, card
// terminal) without the provider. Runs the same cascade as a verified
// provider payment, stamped with who took the money.
func (s *SettlementService) CompleteTabManually(ctx context.Context, tabID uuid.UUID, settledBy uuid.UUID, reference string) (database.Tab, error) {
	tab, err := s.store.GetTab(ctx, tabID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Tab{}, ErrTabNotFound
		}
		return database.Tab{}, fmt.Errorf("get tab: %w", err)
	}
	if tab.PaymentStatus == enum.PaymentStatusPaid {
		return database.Tab{}, ErrAlreadyPaid
	}

	settled, err := s.settleTabTx(ctx, tabID, reference, pgtype.UUID{Bytes: settledBy, Valid: true})
	if err != nil {
		return database.Tab{}, err
	}

	s.notifier.Notify(ws.TopicOrders, "tab_payment_completed", map[string]string{
		"tab_id":     settled.ID.String(),
		"tab_number": settled.TabNumber,
	})
	return settled, nil
}
