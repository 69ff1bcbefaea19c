package handler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tabletab/api/internal/database"
)

type mockExpenseStore struct {
	createExpense       func(ctx context.Context, arg database.CreateExpenseParams) (database.Expense, error)
	listExpensesBetween func(ctx context.Context, arg database.ListExpensesBetweenParams) ([]database.Expense, error)
}

func (m *mockExpenseStore) CreateExpense(ctx context.Context, arg database.CreateExpenseParams) (database.Expense, error) {
	return m.createExpense(ctx, arg)
}

func (m *mockExpenseStore) ListExpensesBetween(ctx context.Context, arg database.ListExpensesBetweenParams) ([]database.Expense, error) {
	return m.listExpensesBetween(ctx, arg)
}

func newExpenseRouter(store ExpenseStore) chi.Router {
	r := chi.NewRouter()
	NewExpenseHandler(store).RegisterRoutes(r)
	return r
}

func TestCreateExpense(t *testing.T) {
	var captured database.CreateExpenseParams
	store := &mockExpenseStore{
		createExpense: func(ctx context.Context, arg database.CreateExpenseParams) (database.Expense, error) {
			captured = arg
			return database.Expense{
				ID:          uuid.New(),
				ExpenseDate: arg.ExpenseDate.Time,
				ExpenseType: arg.ExpenseType,
				Category:    arg.Category,
				Amount:      arg.Amount,
				Description: arg.Description,
				CreatedAt:   time.Now(),
			}, nil
		},
	}

	body := `{"expense_date":"2026-09-01","expense_type":"direct-cost","category":"ingredients","amount":"1500.00","description":"rice and chicken"}`
	req := httptest.NewRequest("POST", "/expenses", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newExpenseRouter(store).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if captured.ExpenseType != "direct-cost" {
		t.Errorf("expense_type: got %q, want %q", captured.ExpenseType, "direct-cost")
	}
	if got := captured.ExpenseDate.Time.Format("2006-01-02"); got != "2026-09-01" {
		t.Errorf("expense_date: got %s, want 2026-09-01", got)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["amount"] != "1500.00" {
		t.Errorf("amount: got %v, want 1500.00", resp["amount"])
	}
}

func TestCreateExpenseRejectsUnknownType(t *testing.T) {
	store := &mockExpenseStore{
		createExpense: func(ctx context.Context, arg database.CreateExpenseParams) (database.Expense, error) {
			t.Fatal("store must not be called for an invalid expense_type")
			return database.Expense{}, nil
		},
	}

	body := `{"expense_date":"2026-09-01","expense_type":"capital","category":"equipment","amount":"50000"}`
	req := httptest.NewRequest("POST", "/expenses", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newExpenseRouter(store).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCreateExpenseRejectsBadDate(t *testing.T) {
	store := &mockExpenseStore{}

	body := `{"expense_date":"01/09/2026","expense_type":"operating-expense","category":"rent","amount":"20000"}`
	req := httptest.NewRequest("POST", "/expenses", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newExpenseRouter(store).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestListExpensesPassesRange(t *testing.T) {
	var captured database.ListExpensesBetweenParams
	store := &mockExpenseStore{
		listExpensesBetween: func(ctx context.Context, arg database.ListExpensesBetweenParams) ([]database.Expense, error) {
			captured = arg
			return []database.Expense{
				{
					ID:          uuid.New(),
					ExpenseDate: time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
					ExpenseType: "operating-expense",
					Category:    "rent",
					Amount:      pgtype.Numeric{Int: big.NewInt(2000000), Exp: -2, Valid: true},
				},
			}, nil
		},
	}

	req := httptest.NewRequest("GET", "/expenses?start=2026-08-01&end=2026-09-01", nil)
	rec := httptest.NewRecorder()
	newExpenseRouter(store).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := captured.Start.Time.Format("2006-01-02"); got != "2026-08-01" {
		t.Errorf("start: got %s, want 2026-08-01", got)
	}
	if got := captured.End.Time.Format("2006-01-02"); got != "2026-09-01" {
		t.Errorf("end: got %s, want 2026-09-01", got)
	}

	var resp struct {
		Expenses []map[string]any `json:"expenses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Expenses) != 1 {
		t.Fatalf("expenses: got %d entries, want 1", len(resp.Expenses))
	}
	if resp.Expenses[0]["amount"] != "20000.00" {
		t.Errorf("amount: got %v, want 20000.00", resp.Expenses[0]["amount"])
	}
}
