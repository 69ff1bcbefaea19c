package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tabletab/api/internal/middleware"
	"github.com/tabletab/api/internal/service"
)

// PaymentHandler exposes the two-phase settlement flow.
type PaymentHandler struct {
	settlements *service.SettlementService
}

func NewPaymentHandler(settlements *service.SettlementService) *PaymentHandler {
	return &PaymentHandler{settlements: settlements}
}

// RegisterPublicRoutes: initialize and verify are reachable by guests
// finishing their own checkout. Verify is idempotent, so exposing it
// publicly is safe; it can only move a payment to the state the
// provider reports.
func (h *PaymentHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/payments/tabs/{id}/initialize", h.InitializeTab)
	r.Post("/payments/orders/{id}/initialize", h.InitializeOrder)
	r.Get("/payments/verify", h.Verify)
}

func (h *PaymentHandler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/payments/tabs/{id}/complete", h.CompleteTabManually)
}

// --- Request types ---

type initializeRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

type completeManuallyRequest struct {
	Reference string `json:"reference"`
}

// --- Handlers ---

func (h *PaymentHandler) InitializeTab(w http.ResponseWriter, r *http.Request) {
	tabID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tab id"})
		return
	}

	var req initializeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	checkout, err := h.settlements.InitializeTab(r.Context(), tabID, req.CustomerName, req.CustomerEmail)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkout)
}

func (h *PaymentHandler) InitializeOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	var req initializeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	checkout, err := h.settlements.InitializeOrder(r.Context(), orderID, req.CustomerName, req.CustomerEmail)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkout)
}

func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reference is required"})
		return
	}

	result, err := h.settlements.Verify(r.Context(), reference)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) CompleteTabManually(w http.ResponseWriter, r *http.Request) {
	tabID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tab id"})
		return
	}

	var req completeManuallyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Reference == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reference is required"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	tab, err := h.settlements.CompleteTabManually(r.Context(), tabID, claims.UserID, req.Reference)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTabResponse(tab))
}
