package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tabletab/api/internal/database"
	"github.com/tabletab/api/internal/middleware"
	"github.com/tabletab/api/internal/rewards"
	"github.com/tabletab/api/internal/service"
)

// TabHandler exposes tab aggregation over HTTP. All endpoints are
// staff facing.
type TabHandler struct {
	tabs *service.TabService
}

func NewTabHandler(tabs *service.TabService) *TabHandler {
	return &TabHandler{tabs: tabs}
}

func (h *TabHandler) RegisterRoutes(r chi.Router) {
	r.Post("/tabs", h.Create)
	r.Get("/tabs/{id}", h.Get)
	r.Post("/tabs/{id}/orders", h.AddOrder)
	r.Post("/tabs/{id}/recalculate", h.Recalculate)
	r.Post("/tabs/{id}/discount", h.ApplyDiscount)
	r.Post("/tabs/{id}/checkout", h.PrepareCheckout)
	r.Post("/tabs/{id}/close", h.Close)
}

// --- Request / Response types ---

type createTabRequest struct {
	TableNumber string `json:"table_number"`
}

type addOrderRequest struct {
	OrderID string `json:"order_id"`
}

type applyDiscountRequest struct {
	Discount string `json:"discount"`
}

type checkoutRequest struct {
	TipAmount string `json:"tip_amount"`
}

type tabResponse struct {
	ID            uuid.UUID  `json:"id"`
	TabNumber     string     `json:"tab_number"`
	TableNumber   string     `json:"table_number"`
	Status        string     `json:"status"`
	Subtotal      string     `json:"subtotal"`
	ServiceFee    string     `json:"service_fee"`
	Tax           string     `json:"tax"`
	DiscountTotal string     `json:"discount_total"`
	TipAmount     string     `json:"tip_amount"`
	Total         string     `json:"total"`
	PaymentStatus string     `json:"payment_status"`
	OpenedAt      time.Time  `json:"opened_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

type tabDetailsResponse struct {
	tabResponse
	Orders []orderResponse `json:"orders"`
}

type checkoutSummaryResponse struct {
	tabResponse
	Orders []orderResponse `json:"orders"`
	Offers []rewards.Offer `json:"offers"`
}

// --- Handlers ---

func (h *TabHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TableNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table_number is required"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	tab, err := h.tabs.Create(r.Context(), req.TableNumber, claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTabResponse(tab))
}

func (h *TabHandler) Get(w http.ResponseWriter, r *http.Request) {
	tabID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tab id"})
		return
	}

	details, err := h.tabs.GetDetails(r.Context(), tabID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := tabDetailsResponse{tabResponse: toTabResponse(details.Tab)}
	resp.Orders = toOrderResponses(details.Orders)
	writeJSON(w, http.StatusOK, resp)
}

func (h *TabHandler) AddOrder(w http.ResponseWriter, r *http.Request) {
	tabID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tab id"})
		return
	}

	var req addOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_id"})
		return
	}

	tab, err := h.tabs.AddOrder(r.Context(), tabID, orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTabResponse(tab))
}

func (h *TabHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	tabID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tab id"})
		return
	}

	tab, err := h.tabs.Recalculate(r.Context(), tabID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTabResponse(tab))
}

func (h *TabHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	tabID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tab id"})
		return
	}

	var req applyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	discount, err := decimal.NewFromString(req.Discount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid discount"})
		return
	}

	tab, err := h.tabs.ApplyDiscount(r.Context(), tabID, discount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTabResponse(tab))
}

func (h *TabHandler) PrepareCheckout(w http.ResponseWriter, r *http.Request) {
	tabID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tab id"})
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	tip := decimal.Zero
	if req.TipAmount != "" {
		tip, err = decimal.NewFromString(req.TipAmount)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tip_amount"})
			return
		}
	}

	summary, err := h.tabs.PrepareCheckout(r.Context(), tabID, tip)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := checkoutSummaryResponse{
		tabResponse: toTabResponse(summary.Tab),
		Orders:      toOrderResponses(summary.Orders),
		Offers:      summary.Offers,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TabHandler) Close(w http.ResponseWriter, r *http.Request) {
	tabID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tab id"})
		return
	}

	tab, err := h.tabs.Close(r.Context(), tabID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTabResponse(tab))
}

// --- Response mapping ---

func toTabResponse(t database.Tab) tabResponse {
	resp := tabResponse{
		ID:            t.ID,
		TabNumber:     t.TabNumber,
		TableNumber:   t.TableNumber,
		Status:        t.Status,
		Subtotal:      numericToString(t.Subtotal),
		ServiceFee:    numericToString(t.ServiceFee),
		Tax:           numericToString(t.Tax),
		DiscountTotal: numericToString(t.DiscountTotal),
		TipAmount:     numericToString(t.TipAmount),
		Total:         numericToString(t.Total),
		PaymentStatus: t.PaymentStatus,
		OpenedAt:      t.OpenedAt,
	}
	if t.ClosedAt.Valid {
		closedAt := t.ClosedAt.Time
		resp.ClosedAt = &closedAt
	}
	return resp
}

func toOrderResponses(orders []database.Order) []orderResponse {
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	return resp
}
