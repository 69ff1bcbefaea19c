package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tabletab/api/internal/database"
	"github.com/tabletab/api/internal/enum"
	"github.com/tabletab/api/internal/middleware"
)

// ExpenseStore defines the database methods needed by expense handlers.
// Satisfied by *database.Queries.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, arg database.CreateExpenseParams) (database.Expense, error)
	ListExpensesBetween(ctx context.Context, arg database.ListExpensesBetweenParams) ([]database.Expense, error)
}

// ExpenseHandler records and lists the expenses feeding the P&L.
type ExpenseHandler struct {
	store ExpenseStore
}

func NewExpenseHandler(store ExpenseStore) *ExpenseHandler {
	return &ExpenseHandler{store: store}
}

func (h *ExpenseHandler) RegisterRoutes(r chi.Router) {
	r.Post("/expenses", h.Create)
	r.Get("/expenses", h.List)
}

type createExpenseRequest struct {
	ExpenseDate string `json:"expense_date"` // YYYY-MM-DD
	ExpenseType string `json:"expense_type"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type expenseResponse struct {
	ID          uuid.UUID `json:"id"`
	ExpenseDate string    `json:"expense_date"`
	ExpenseType string    `json:"expense_type"`
	Category    string    `json:"category"`
	Amount      string    `json:"amount"`
	Description string    `json:"description,omitempty"`
}

func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.ExpenseType != enum.ExpenseTypeDirectCost && req.ExpenseType != enum.ExpenseTypeOperating {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid expense_type"})
		return
	}
	expenseDate, err := time.Parse("2006-01-02", req.ExpenseDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid expense_date, want YYYY-MM-DD"})
		return
	}
	var amount pgtype.Numeric
	if err := amount.Scan(req.Amount); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return
	}

	createdBy := pgtype.UUID{}
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		createdBy = pgtype.UUID{Bytes: claims.UserID, Valid: true}
	}

	description := pgtype.Text{}
	if req.Description != "" {
		description = pgtype.Text{String: req.Description, Valid: true}
	}

	expense, err := h.store.CreateExpense(r.Context(), database.CreateExpenseParams{
		ExpenseDate: pgtype.Date{Time: expenseDate, Valid: true},
		ExpenseType: req.ExpenseType,
		Category:    req.Category,
		Amount:      amount,
		Description: description,
		CreatedBy:   createdBy,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseResponse(expense))
}

func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	if s := q.Get("start"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start, want YYYY-MM-DD"})
			return
		}
		start = t
	}
	if s := q.Get("end"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end, want YYYY-MM-DD"})
			return
		}
		end = t
	}

	expenses, err := h.store.ListExpensesBetween(r.Context(), database.ListExpensesBetweenParams{
		Start: pgtype.Date{Time: start, Valid: true},
		End:   pgtype.Date{Time: end, Valid: true},
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		resp = append(resp, toExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": resp})
}

func toExpenseResponse(e database.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		ExpenseDate: e.ExpenseDate.Format("2006-01-02"),
		ExpenseType: e.ExpenseType,
		Category:    e.Category,
		Amount:      numericToString(e.Amount),
		Description: e.Description.String,
	}
}
