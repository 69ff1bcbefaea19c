package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tabletab/api/internal/database"
	"github.com/tabletab/api/internal/middleware"
	"github.com/tabletab/api/internal/service"
)

// OrderHandler exposes the order lifecycle over HTTP.
type OrderHandler struct {
	orders *service.OrderService
}

func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// RegisterRoutes registers order endpoints. Create sits behind
// optional auth so guests can order; the rest is staff only and the
// caller wraps it in the auth middleware.
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/orders", h.Create)
	r.Get("/orders/{id}", h.Get)
}

func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Patch("/orders/{id}/status", h.UpdateStatus)
	r.Post("/orders/{id}/cancel", h.Cancel)
}

// --- Request / Response types ---

type createOrderRequest struct {
	GuestName       string                   `json:"guest_name"`
	GuestEmail      string                   `json:"guest_email"`
	GuestPhone      string                   `json:"guest_phone"`
	OrderType       string                   `json:"order_type"`
	TableNumber     string                   `json:"table_number"`
	PickupTime      string                   `json:"pickup_time"`
	DeliveryAddress string                   `json:"delivery_address"`
	Items           []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	MenuItemID   string `json:"menu_item_id"`
	Quantity     int32  `json:"quantity"`
	Instructions string `json:"instructions"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type cancelOrderRequest struct {
	Note string `json:"note"`
}

type orderResponse struct {
	ID              uuid.UUID `json:"id"`
	OrderNumber     string    `json:"order_number"`
	TabID           *string   `json:"tab_id,omitempty"`
	GuestName       string    `json:"guest_name,omitempty"`
	OrderType       string    `json:"order_type"`
	TableNumber     string    `json:"table_number,omitempty"`
	DeliveryAddress string    `json:"delivery_address,omitempty"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"payment_status"`
	Subtotal        string    `json:"subtotal"`
	Tax             string    `json:"tax"`
	ServiceFee      string    `json:"service_fee"`
	DeliveryFee     string    `json:"delivery_fee"`
	Discount        string    `json:"discount"`
	Total           string    `json:"total"`
	RefundAmount    string    `json:"refund_amount"`
	CreatedAt       time.Time `json:"created_at"`
}

type orderItemResponse struct {
	ID           uuid.UUID `json:"id"`
	MenuItemID   uuid.UUID `json:"menu_item_id"`
	Name         string    `json:"name"`
	UnitPrice    string    `json:"unit_price"`
	Quantity     int32     `json:"quantity"`
	Subtotal     string    `json:"subtotal"`
	Instructions string    `json:"instructions,omitempty"`
}

type orderHistoryResponse struct {
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type orderDetailsResponse struct {
	orderResponse
	Items   []orderItemResponse    `json:"items"`
	History []orderHistoryResponse `json:"history,omitempty"`
}

// --- Handlers ---

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq := service.CreateOrderRequest{
		GuestName:       req.GuestName,
		GuestEmail:      req.GuestEmail,
		GuestPhone:      req.GuestPhone,
		OrderType:       req.OrderType,
		TableNumber:     req.TableNumber,
		PickupTime:      req.PickupTime,
		DeliveryAddress: req.DeliveryAddress,
	}
	// A logged-in caller orders as themselves; guests fill in details.
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		svcReq.UserID = claims.UserID.String()
	}
	for _, item := range req.Items {
		svcReq.Items = append(svcReq.Items, service.CreateOrderItemRequest{
			MenuItemID:   item.MenuItemID,
			Quantity:     item.Quantity,
			Instructions: item.Instructions,
		})
	}

	result, err := h.orders.CreateOrder(r.Context(), svcReq)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDetailsResponse(result))
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	result, err := h.orders.GetDetails(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetailsResponse(result))
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	params := database.ListOrdersParams{Limit: 50}
	q := r.URL.Query()

	if s := q.Get("status"); s != "" {
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := q.Get("order_type"); s != "" {
		params.OrderType = pgtype.Text{String: s, Valid: true}
	}
	if s := q.Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start"})
			return
		}
		params.StartDate = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := q.Get("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end"})
			return
		}
		params.EndDate = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		params.Limit = int32(n)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
		params.Offset = int32(n)
	}

	orders, err := h.orders.List(r.Context(), params)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": resp})
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), orderID, req.Status, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	var req cancelOrderRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	order, err := h.orders.Cancel(r.Context(), orderID, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// --- Response mapping ---

func toOrderResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		GuestName:       o.GuestName.String,
		OrderType:       o.OrderType,
		TableNumber:     o.TableNumber.String,
		DeliveryAddress: o.DeliveryAddress.String,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		Subtotal:        numericToString(o.Subtotal),
		Tax:             numericToString(o.Tax),
		ServiceFee:      numericToString(o.ServiceFee),
		DeliveryFee:     numericToString(o.DeliveryFee),
		Discount:        numericToString(o.Discount),
		Total:           numericToString(o.Total),
		RefundAmount:    numericToString(o.RefundAmount),
		CreatedAt:       o.CreatedAt,
	}
	if o.TabID.Valid {
		id := uuid.UUID(o.TabID.Bytes).String()
		resp.TabID = &id
	}
	return resp
}

func toOrderDetailsResponse(d *service.OrderDetails) orderDetailsResponse {
	resp := orderDetailsResponse{orderResponse: toOrderResponse(d.Order)}
	resp.Items = make([]orderItemResponse, 0, len(d.Items))
	for _, item := range d.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:           item.ID,
			MenuItemID:   item.MenuItemID,
			Name:         item.Name,
			UnitPrice:    numericToString(item.UnitPrice),
			Quantity:     item.Quantity,
			Subtotal:     numericToString(item.Subtotal),
			Instructions: item.Instructions.String,
		})
	}
	for _, entry := range d.History {
		resp.History = append(resp.History, orderHistoryResponse{
			Status:    entry.Status,
			Note:      entry.Note.String,
			CreatedAt: entry.CreatedAt,
		})
	}
	return resp
}

// numericToString renders a numeric as a plain decimal string, "0" when null.
func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0"
	}
	return val.(string)
}
