package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tabletab/api/internal/database"
	"github.com/tabletab/api/internal/enum"
)

// ReportStore defines the DB methods reporting needs.
// Satisfied by *database.Queries.
type ReportStore interface {
	ListPaidOrderItemsBetween(ctx context.Context, arg database.ListPaidOrderItemsBetweenParams) ([]database.ListPaidOrderItemsBetweenRow, error)
	ListExpensesBetween(ctx context.Context, arg database.ListExpensesBetweenParams) ([]database.Expense, error)
	GetMenuItemCost(ctx context.Context, id uuid.UUID) (database.GetMenuItemCostRow, error)
}

// CategoryBreakdown is revenue against cost for one menu category.
type CategoryBreakdown struct {
	Revenue     decimal.Decimal `json:"revenue"`
	Cost        decimal.Decimal `json:"cost"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
}

// ItemSales is the per-item sales line of the report.
type ItemSales struct {
	MenuItemID  uuid.UUID       `json:"menu_item_id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Quantity    int32           `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
	Cost        decimal.Decimal `json:"cost"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
}

// ExpenseBreakdown splits recorded expenses by type.
type ExpenseBreakdown struct {
	DirectCost       decimal.Decimal `json:"direct_cost"`
	OperatingExpense decimal.Decimal `json:"operating_expense"`
	Total            decimal.Decimal `json:"total"`
}

// Summary is the profit and loss report for a period.
type Summary struct {
	Start         time.Time         `json:"start"`
	End           time.Time         `json:"end"`
	Food          CategoryBreakdown `json:"food"`
	Drink         CategoryBreakdown `json:"drink"`
	TotalRevenue  decimal.Decimal   `json:"total_revenue"`
	TotalCost     decimal.Decimal   `json:"total_cost"`
	GrossProfit   decimal.Decimal   `json:"gross_profit"`
	Expenses      ExpenseBreakdown  `json:"expenses"`
	NetProfit     decimal.Decimal   `json:"net_profit"`
	GrossMarginPc decimal.Decimal   `json:"gross_margin_percent"`
	NetMarginPc   decimal.Decimal   `json:"net_margin_percent"`
	Items         []ItemSales       `json:"items"`
}

// ReportService aggregates paid sales and expenses into a P&L summary.
type ReportService struct {
	store ReportStore
}

func NewReportService(store ReportStore) *ReportService {
	return &ReportService{store: store}
}

// GenerateSummary builds the P&L for paid orders and expenses dated in
// [start, end). Only orders that actually settled count as revenue;
// cancelled and unpaid orders never appear here. Output is
// deterministic: items sort by name, then id.
func (s *ReportService) GenerateSummary(ctx context.Context, start, end time.Time) (*Summary, error) {
	rows, err := s.store.ListPaidOrderItemsBetween(ctx, database.ListPaidOrderItemsBetweenParams{
		Start: pgtype.Timestamptz{Time: start, Valid: true},
		End:   pgtype.Timestamptz{Time: end, Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("list paid order items: %w", err)
	}

	// Cost and category come from the menu item, looked up once per
	// distinct item across the whole period.
	type itemInfo struct {
		category string
		unitCost decimal.Decimal
	}
	infoCache := make(map[uuid.UUID]itemInfo)
	lookup := func(id uuid.UUID) (itemInfo, error) {
		if info, ok := infoCache[id]; ok {
			return info, nil
		}
		row, err := s.store.GetMenuItemCost(ctx, id)
		if err != nil {
			return itemInfo{}, fmt.Errorf("get cost for menu item %s: %w", id, err)
		}
		info := itemInfo{category: row.Category, unitCost: numericToDecimal(row.UnitCost)}
		infoCache[id] = info
		return info, nil
	}

	itemTotals := make(map[uuid.UUID]*ItemSales)
	for _, row := range rows {
		info, err := lookup(row.MenuItemID)
		if err != nil {
			return nil, err
		}

		line, ok := itemTotals[row.MenuItemID]
		if !ok {
			line = &ItemSales{
				MenuItemID: row.MenuItemID,
				Name:       row.Name,
				Category:   info.category,
				Revenue:    decimal.Zero,
				Cost:       decimal.Zero,
			}
			itemTotals[row.MenuItemID] = line
		}

		qty := decimal.NewFromInt32(row.Quantity)
		line.Quantity += row.Quantity
		line.Revenue = line.Revenue.Add(numericToDecimal(row.UnitPrice).Mul(qty))
		line.Cost = line.Cost.Add(info.unitCost.Mul(qty))
	}

	summary := &Summary{
		Start: start,
		End:   end,
		Food:  zeroBreakdown(),
		Drink: zeroBreakdown(),
		Expenses: ExpenseBreakdown{
			DirectCost:       decimal.Zero,
			OperatingExpense: decimal.Zero,
			Total:            decimal.Zero,
		},
	}

	items := make([]ItemSales, 0, len(itemTotals))
	for _, line := range itemTotals {
		line.GrossProfit = line.Revenue.Sub(line.Cost)
		switch line.Category {
		case enum.ItemCategoryDrink:
			summary.Drink.Revenue = summary.Drink.Revenue.Add(line.Revenue)
			summary.Drink.Cost = summary.Drink.Cost.Add(line.Cost)
		default:
			summary.Food.Revenue = summary.Food.Revenue.Add(line.Revenue)
			summary.Food.Cost = summary.Food.Cost.Add(line.Cost)
		}
		items = append(items, *line)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].MenuItemID.String() < items[j].MenuItemID.String()
	})
	summary.Items = items

	summary.Food.GrossProfit = summary.Food.Revenue.Sub(summary.Food.Cost)
	summary.Drink.GrossProfit = summary.Drink.Revenue.Sub(summary.Drink.Cost)
	summary.TotalRevenue = summary.Food.Revenue.Add(summary.Drink.Revenue)
	summary.TotalCost = summary.Food.Cost.Add(summary.Drink.Cost)
	summary.GrossProfit = summary.TotalRevenue.Sub(summary.TotalCost)

	expenses, err := s.store.ListExpensesBetween(ctx, database.ListExpensesBetweenParams{
		Start: pgtype.Date{Time: start, Valid: true},
		End:   pgtype.Date{Time: end, Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	for _, e := range expenses {
		amount := numericToDecimal(e.Amount)
		switch e.ExpenseType {
		case enum.ExpenseTypeDirectCost:
			summary.Expenses.DirectCost = summary.Expenses.DirectCost.Add(amount)
		case enum.ExpenseTypeOperating:
			summary.Expenses.OperatingExpense = summary.Expenses.OperatingExpense.Add(amount)
		}
	}
	summary.Expenses.Total = summary.Expenses.DirectCost.Add(summary.Expenses.OperatingExpense)

	summary.NetProfit = summary.GrossProfit.Sub(summary.Expenses.Total)

	// Margins are defined as 0 for a zero-revenue period, not an error.
	if summary.TotalRevenue.IsPositive() {
		hundred := decimal.NewFromInt(100)
		summary.GrossMarginPc = summary.GrossProfit.Mul(hundred).Div(summary.TotalRevenue).Round(2)
		summary.NetMarginPc = summary.NetProfit.Mul(hundred).Div(summary.TotalRevenue).Round(2)
	} else {
		summary.GrossMarginPc = decimal.Zero
		summary.NetMarginPc = decimal.Zero
	}

	return summary, nil
}

func zeroBreakdown() CategoryBreakdown {
	return CategoryBreakdown{
		Revenue:     decimal.Zero,
		Cost:        decimal.Zero,
		GrossProfit: decimal.Zero,
	}
}
