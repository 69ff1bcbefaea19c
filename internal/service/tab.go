package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tabletab/api/internal/database"
	"github.com/tabletab/api/internal/enum"
	"github.com/tabletab/api/internal/rewards"
)

// TabStore defines the DB methods the tab service needs.
// Satisfied by *database.Queries (and its WithTx variant).
type TabStore interface {
	CreateTab(ctx context.Context, arg database.CreateTabParams) (database.Tab, error)
	GetTab(ctx context.Context, id uuid.UUID) (database.Tab, error)
	GetTabForUpdate(ctx context.Context, id uuid.UUID) (database.Tab, error)
	UpdateTabTotals(ctx context.Context, arg database.UpdateTabTotalsParams) (database.Tab, error)
	CloseTab(ctx context.Context, arg database.CloseTabParams) (database.Tab, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	SetOrderTab(ctx context.Context, arg database.SetOrderTabParams) (database.Order, error)
	ListOrdersByTab(ctx context.Context, tabID uuid.UUID) ([]database.Order, error)
}

// NewTabStore creates a TabStore from a DBTX (pool or tx).
type NewTabStore func(db database.DBTX) TabStore

// OfferProvider lists the discount offers a subtotal qualifies for.
// Satisfied by *rewards.Service.
type OfferProvider interface {
	EligibleOffers(ctx context.Context, subtotal decimal.Decimal) ([]rewards.Offer, error)
}

// TabDetails is a tab with its attached orders.
type TabDetails struct {
	Tab    database.Tab
	Orders []database.Order
}

// CheckoutSummary is the final bill presented before settlement.
type CheckoutSummary struct {
	Tab    database.Tab
	Orders []database.Order
	Offers []rewards.Offer
}

// TabService owns tab aggregation: opening, attaching orders, totals
// recalculation, discounts and checkout preparation.
type TabService struct {
	pool     TxBeginner
	store    TabStore
	newStore NewTabStore
	fees     FeeCalculator
	offers   OfferProvider
}

func NewTabService(pool TxBeginner, store TabStore, newStore NewTabStore, fees FeeCalculator, offers OfferProvider) *TabService {
	return &TabService{pool: pool, store: store, newStore: newStore, fees: fees, offers: offers}
}

// Create opens a tab for a table. The partial unique index on open
// tabs makes a second open tab for the same table a conflict, so the
// one-open-tab-per-table rule holds under concurrency without a
// pre-check.
func (s *TabService) Create(ctx context.Context, tableNumber string, openedBy uuid.UUID) (database.Tab, error) {
	tab, err := s.store.CreateTab(ctx, database.CreateTabParams{
		TabNumber:   fmt.Sprintf("TAB-%s-%d", tableNumber, time.Now().Unix()),
		TableNumber: tableNumber,
		OpenedBy:    pgtype.UUID{Bytes: openedBy, Valid: true},
	})
	if err != nil {
		if isUniqueViolation(err, "ux_tabs_open_table") {
			return database.Tab{}, ErrOpenTabExists
		}
		return database.Tab{}, fmt.Errorf("create tab: %w", err)
	}
	return tab, nil
}

// AddOrder attaches an order to an open tab and recalculates totals.
// Re-attaching to the same tab is a no-op; an order already on another
// tab is a conflict.
func (s *TabService) AddOrder(ctx context.Context, tabID, orderID uuid.UUID) (database.Tab, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Tab{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	tab, err := store.GetTabForUpdate(ctx, tabID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Tab{}, ErrTabNotFound
		}
		return database.Tab{}, fmt.Errorf("get tab: %w", err)
	}
	if tab.Status != enum.TabStatusOpen {
		return database.Tab{}, ErrTabNotOpen
	}

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Tab{}, ErrOrderNotFound
		}
		return database.Tab{}, fmt.Errorf("get order: %w", err)
	}
	if order.TabID.Valid {
		if uuid.UUID(order.TabID.Bytes) == tabID {
			return tab, nil
		}
		return database.Tab{}, ErrOrderOnAnotherTab
	}
	if order.Status == enum.OrderStatusCancelled {
		return database.Tab{}, ErrOrderCancelled
	}

	if _, err := store.SetOrderTab(ctx, database.SetOrderTabParams{
		ID:    orderID,
		TabID: pgtype.UUID{Bytes: tabID, Valid: true},
	}); err != nil {
		return database.Tab{}, fmt.Errorf("attach order: %w", err)
	}

	if err := recalculateTabTx(ctx, store, s.fees, tab); err != nil {
		return database.Tab{}, err
	}
	tab, err = store.GetTab(ctx, tabID)
	if err != nil {
		return database.Tab{}, fmt.Errorf("reload tab: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Tab{}, fmt.Errorf("commit tx: %w", err)
	}
	return tab, nil
}

// Recalculate rebuilds a tab's totals from its attached orders.
// Idempotent: running it twice against the same orders yields the
// same totals.
func (s *TabService) Recalculate(ctx context.Context, tabID uuid.UUID) (database.Tab, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Tab{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	tab, err := store.GetTabForUpdate(ctx, tabID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Tab{}, ErrTabNotFound
		}
		return database.Tab{}, fmt.Errorf("get tab: %w", err)
	}

	if err := recalculateTabTx(ctx, store, s.fees, tab); err != nil {
		return database.Tab{}, err
	}
	tab, err = store.GetTab(ctx, tabID)
	if err != nil {
		return database.Tab{}, fmt.Errorf("reload tab: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Tab{}, fmt.Errorf("commit tx: %w", err)
	}
	return tab, nil
}

// ApplyDiscount adds a discount on top of whatever the tab has already
// accumulated. Only open tabs accept discount changes.
func (s *TabService) ApplyDiscount(ctx context.Context, tabID uuid.UUID, discount decimal.Decimal) (database.Tab, error) {
	if discount.IsNegative() {
		return database.Tab{}, ErrInvalidDiscount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Tab{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	tab, err := store.GetTabForUpdate(ctx, tabID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Tab{}, ErrTabNotFound
		}
		return database.Tab{}, fmt.Errorf("get tab: %w", err)
	}
	if tab.Status != enum.TabStatusOpen {
		return database.Tab{}, ErrTabNotOpen
	}

	tab, err = updateTabTotals(ctx, store, tab,
		numericToDecimal(tab.Subtotal),
		numericToDecimal(tab.ServiceFee),
		numericToDecimal(tab.Tax),
		numericToDecimal(tab.DiscountTotal).Add(discount),
		numericToDecimal(tab.TipAmount))
	if err != nil {
		return database.Tab{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Tab{}, fmt.Errorf("commit tx: %w", err)
	}
	return tab, nil
}

// PrepareCheckout records the tip, recalculates the final bill and
// returns it together with the discount offers the subtotal earns.
// The tab stays open until settlement is initialized.
func (s *TabService) PrepareCheckout(ctx context.Context, tabID uuid.UUID, tip decimal.Decimal) (*CheckoutSummary, error) {
	if tip.IsNegative() {
		return nil, ErrInvalidTip
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	tab, err := store.GetTabForUpdate(ctx, tabID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTabNotFound
		}
		return nil, fmt.Errorf("get tab: %w", err)
	}
	if tab.Status != enum.TabStatusOpen {
		return nil, ErrTabNotOpen
	}

	orders, err := store.ListOrdersByTab(ctx, tabID)
	if err != nil {
		return nil, fmt.Errorf("list tab orders: %w", err)
	}

	subtotal := activeOrdersSubtotal(orders)
	totals, err := s.fees.OrderTotals(ctx, subtotal, enum.OrderTypeDineIn)
	if err != nil {
		return nil, err
	}

	tab, err = updateTabTotals(ctx, store, tab, subtotal, totals.ServiceFee, totals.Tax,
		numericToDecimal(tab.DiscountTotal), tip)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	offers, err := s.offers.EligibleOffers(ctx, subtotal)
	if err != nil {
		return nil, err
	}
	return &CheckoutSummary{Tab: tab, Orders: orders, Offers: offers}, nil
}

// Close closes a tab administratively, paid or not (walked-out table,
// voided bill). Closing an already closed tab is a no-op; a tab mid
// settlement cannot be closed.
func (s *TabService) Close(ctx context.Context, tabID uuid.UUID) (database.Tab, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Tab{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	tab, err := store.GetTabForUpdate(ctx, tabID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Tab{}, ErrTabNotFound
		}
		return database.Tab{}, fmt.Errorf("get tab: %w", err)
	}
	switch tab.Status {
	case enum.TabStatusClosed:
		return tab, nil
	case enum.TabStatusSettling:
		return database.Tab{}, ErrTabSettling
	}

	tab, err = store.CloseTab(ctx, database.CloseTabParams{
		ID:       tabID,
		ClosedAt: pgtype.Timestamptz{Time: time.Now(), Valid: true},
	})
	if err != nil {
		return database.Tab{}, fmt.Errorf("close tab: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Tab{}, fmt.Errorf("commit tx: %w", err)
	}
	return tab, nil
}

// GetDetails returns a tab with its orders.
func (s *TabService) GetDetails(ctx context.Context, tabID uuid.UUID) (*TabDetails, error) {
	tab, err := s.store.GetTab(ctx, tabID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTabNotFound
		}
		return nil, fmt.Errorf("get tab: %w", err)
	}
	orders, err := s.store.ListOrdersByTab(ctx, tabID)
	if err != nil {
		return nil, fmt.Errorf("list tab orders: %w", err)
	}
	return &TabDetails{Tab: tab, Orders: orders}, nil
}

// --- Shared recalculation ---

// tabRecalcStore is the slice of store methods recalculation needs,
// so the order service can trigger it inside its own transactions.
type tabRecalcStore interface {
	ListOrdersByTab(ctx context.Context, tabID uuid.UUID) ([]database.Order, error)
	UpdateTabTotals(ctx context.Context, arg database.UpdateTabTotalsParams) (database.Tab, error)
}

// activeOrdersSubtotal sums the subtotals of every non-cancelled order.
func activeOrdersSubtotal(orders []database.Order) decimal.Decimal {
	subtotal := decimal.Zero
	for _, o := range orders {
		if o.Status == enum.OrderStatusCancelled {
			continue
		}
		subtotal = subtotal.Add(numericToDecimal(o.Subtotal))
	}
	return subtotal
}

// recalculateTabTx rebuilds tab totals from attached orders inside the
// caller's transaction. The caller must already hold the tab lock.
func recalculateTabTx(ctx context.Context, store tabRecalcStore, calc FeeCalculator, tab database.Tab) error {
	orders, err := store.ListOrdersByTab(ctx, tab.ID)
	if err != nil {
		return fmt.Errorf("list tab orders: %w", err)
	}

	subtotal := activeOrdersSubtotal(orders)
	totals, err := calc.OrderTotals(ctx, subtotal, enum.OrderTypeDineIn)
	if err != nil {
		return err
	}

	_, err = updateTabTotals(ctx, store, tab, subtotal, totals.ServiceFee, totals.Tax,
		numericToDecimal(tab.DiscountTotal), numericToDecimal(tab.TipAmount))
	return err
}

// updateTabTotals persists the monetary breakdown, holding the tab
// total invariant: total = subtotal + service_fee + tax - discount + tip,
// clamped at zero.
func updateTabTotals(ctx context.Context, store tabRecalcStore, tab database.Tab, subtotal, serviceFee, tax, discount, tip decimal.Decimal) (database.Tab, error) {
	total := subtotal.Add(serviceFee).Add(tax).Sub(discount).Add(tip)
	if total.IsNegative() {
		total = decimal.Zero
	}

	updated, err := store.UpdateTabTotals(ctx, database.UpdateTabTotalsParams{
		ID:            tab.ID,
		Subtotal:      decimalToNumeric(subtotal),
		ServiceFee:    decimalToNumeric(serviceFee),
		Tax:           decimalToNumeric(tax),
		DiscountTotal: decimalToNumeric(discount),
		TipAmount:     decimalToNumeric(tip),
		Total:         decimalToNumeric(total),
	})
	if err != nil {
		return database.Tab{}, fmt.Errorf("update tab totals: %w", err)
	}
	return updated, nil
}
