package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tabletab/api/internal/database"
	"github.com/tabletab/api/internal/enum"
)

type mockReportStore struct {
	rows      []database.ListPaidOrderItemsBetweenRow
	expenses  []database.Expense
	costs     map[uuid.UUID]database.GetMenuItemCostRow
	costCalls int
}

func (m *mockReportStore) ListPaidOrderItemsBetween(ctx context.Context, arg database.ListPaidOrderItemsBetweenParams) ([]database.ListPaidOrderItemsBetweenRow, error) {
	return m.rows, nil
}
func (m *mockReportStore) ListExpensesBetween(ctx context.Context, arg database.ListExpensesBetweenParams) ([]database.Expense, error) {
	return m.expenses, nil
}
func (m *mockReportStore) GetMenuItemCost(ctx context.Context, id uuid.UUID) (database.GetMenuItemCostRow, error) {
	m.costCalls++
	return m.costs[id], nil
}

func TestGenerateSummary(t *testing.T) {
	foodID := uuid.New()
	drinkID := uuid.New()

	store := &mockReportStore{
		rows: []database.ListPaidOrderItemsBetweenRow{
			{MenuItemID: foodID, Name: "Jollof Rice", UnitPrice: makeNumeric("1000.00"), Quantity: 1},
			{MenuItemID: foodID, Name: "Jollof Rice", UnitPrice: makeNumeric("1000.00"), Quantity: 1},
			{MenuItemID: drinkID, Name: "Chapman", UnitPrice: makeNumeric("400.00"), Quantity: 3},
		},
		expenses: []database.Expense{
			{ExpenseType: enum.ExpenseTypeDirectCost, Amount: makeNumeric("150.00")},
			{ExpenseType: enum.ExpenseTypeOperating, Amount: makeNumeric("50.00")},
		},
		costs: map[uuid.UUID]database.GetMenuItemCostRow{
			foodID:  {Category: enum.ItemCategoryFood, UnitCost: makeNumeric("400.00")},
			drinkID: {Category: enum.ItemCategoryDrink, UnitCost: makeNumeric("200.00")},
		},
	}
	svc := NewReportService(store)

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	summary, err := svc.GenerateSummary(context.Background(), start, end)
	if err != nil {
		t.Fatalf("generate summary: %v", err)
	}

	// Food: 2 x 1000 revenue, 2 x 400 cost. Drink: 3 x 400 revenue, 3 x 200 cost.
	if !summary.Food.Revenue.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("food revenue = %s, want 2000", summary.Food.Revenue)
	}
	if !summary.Food.GrossProfit.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("food gross = %s, want 1200", summary.Food.GrossProfit)
	}
	if !summary.Drink.Revenue.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("drink revenue = %s, want 1200", summary.Drink.Revenue)
	}
	if !summary.Drink.GrossProfit.Equal(decimal.NewFromInt(600)) {
		t.Errorf("drink gross = %s, want 600", summary.Drink.GrossProfit)
	}
	if !summary.GrossProfit.Equal(decimal.NewFromInt(1800)) {
		t.Errorf("gross profit = %s, want 1800", summary.GrossProfit)
	}
	if !summary.Expenses.Total.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expenses = %s, want 200", summary.Expenses.Total)
	}
	if !summary.NetProfit.Equal(decimal.NewFromInt(1600)) {
		t.Errorf("net profit = %s, want 1600", summary.NetProfit)
	}
	if !summary.GrossMarginPc.Equal(decimal.RequireFromString("56.25")) {
		t.Errorf("gross margin = %s, want 56.25", summary.GrossMarginPc)
	}
	if !summary.NetMarginPc.Equal(decimal.NewFromInt(50)) {
		t.Errorf("net margin = %s, want 50", summary.NetMarginPc)
	}

	// Two rows for the same food item fold into one line.
	if len(summary.Items) != 2 {
		t.Fatalf("got %d item lines, want 2", len(summary.Items))
	}
	// Sorted by name: Chapman before Jollof Rice.
	if summary.Items[0].Name != "Chapman" || summary.Items[1].Name != "Jollof Rice" {
		t.Errorf("item order = %q, %q", summary.Items[0].Name, summary.Items[1].Name)
	}
	if summary.Items[1].Quantity != 2 {
		t.Errorf("jollof quantity = %d, want 2", summary.Items[1].Quantity)
	}

	// Cost lookup is cached per distinct menu item.
	if store.costCalls != 2 {
		t.Errorf("cost lookups = %d, want 2", store.costCalls)
	}
}

func TestGenerateSummary_ZeroRevenueMargins(t *testing.T) {
	store := &mockReportStore{
		expenses: []database.Expense{
			{ExpenseType: enum.ExpenseTypeOperating, Amount: makeNumeric("500.00")},
		},
	}
	svc := NewReportService(store)

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	summary, err := svc.GenerateSummary(context.Background(), start, start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("generate summary: %v", err)
	}

	if !summary.GrossMarginPc.IsZero() || !summary.NetMarginPc.IsZero() {
		t.Errorf("margins = %s / %s, want 0 / 0 for zero revenue", summary.GrossMarginPc, summary.NetMarginPc)
	}
	if !summary.NetProfit.Equal(decimal.NewFromInt(-500)) {
		t.Errorf("net profit = %s, want -500", summary.NetProfit)
	}
	if len(summary.Items) != 0 {
		t.Errorf("items = %d, want 0", len(summary.Items))
	}
}
