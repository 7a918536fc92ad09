package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/platform/auth"
	"github.com/lahm-market/api/internal/platform/httpx"
	"github.com/lahm-market/api/internal/platform/observability"
	"github.com/lahm-market/api/internal/services"
)

const (
	maxCreateOrderBodySize = 32 * 1024
	maxOrderCancelBodySize = 4 * 1024
)

// OrderHandlers exposes the customer-facing order endpoints.
type OrderHandlers struct {
	authn      *auth.Authenticator
	orders     services.OrderService
	deliveries services.DeliveryService
	limiter    rateLimiter
}

// NewOrderHandlers constructs the customer order handler group.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, deliveries services.DeliveryService) *OrderHandlers {
	return &OrderHandlers{
		authn:      authn,
		orders:     orders,
		deliveries: deliveries,
		limiter:    newPlaceOrderLimiter(),
	}
}

// Routes registers the customer order endpoints on the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if h == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(domain.ActorCustomer))
	}
	r.Post("/", h.CreateOrder)
	r.Get("/", h.ListOrders)
	r.Get("/{orderID}", h.GetOrder)
	r.Post("/{orderID}:cancel", h.CancelOrder)
	r.Get("/{orderID}/tracking", h.GetTracking)
}

type createOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	Items         []createOrderItemRequest `json:"items"`
	Address       addressPayload           `json:"address"`
	PaymentMethod string                   `json:"payment_method"`
	Discount      int64                    `json:"discount"`
	DeliveryFee   int64                    `json:"delivery_fee"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderTotalsPayload struct {
	Subtotal    int64 `json:"subtotal"`
	Discount    int64 `json:"discount"`
	DeliveryFee int64 `json:"delivery_fee"`
	VAT         int64 `json:"vat"`
	Total       int64 `json:"total"`
}

type orderItemPayload struct {
	ProductID string      `json:"product_id"`
	Name      textPayload `json:"name"`
	UnitPrice int64       `json:"unit_price"`
	Quantity  int         `json:"quantity"`
	Total     int64       `json:"total"`
}

type statusHistoryPayload struct {
	Status    string `json:"status"`
	ActorID   string `json:"actor_id"`
	ActorKind string `json:"actor_kind"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

type orderPayload struct {
	ID              string                 `json:"id"`
	OrderNumber     string                 `json:"order_number"`
	CustomerID      string                 `json:"customer_id"`
	Status          string                 `json:"status"`
	PaymentStatus   string                 `json:"payment_status"`
	PaymentMethod   string                 `json:"payment_method"`
	Totals          orderTotalsPayload     `json:"totals"`
	Items           []orderItemPayload     `json:"items"`
	DeliveryAddress addressPayload         `json:"delivery_address"`
	StatusHistory   []statusHistoryPayload `json:"status_history,omitempty"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at"`
	ConfirmedAt     string                 `json:"confirmed_at,omitempty"`
	CancelledAt     string                 `json:"cancelled_at,omitempty"`
	DeliveredAt     string                 `json:"delivered_at,omitempty"`
	CancelReason    string                 `json:"cancel_reason,omitempty"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

// CreateOrder places a new order for the authenticated customer.
func (h *OrderHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "order service not configured", http.StatusServiceUnavailable))
		return
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(actor.ID) {
		httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many orders placed, slow down", http.StatusTooManyRequests))
		return
	}

	data, err := readLimitedBody(r, maxCreateOrderBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		CustomerID:    actor.ID,
		Address:       req.Address.toDomain(),
		PaymentMethod: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Discount:      req.Discount,
		DeliveryFee:   req.DeliveryFee,
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.CreateOrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orders.Create(r.Context(), cmd)
	observability.RecordOrderOperation("create", err)
	if err != nil {
		writeOrderError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

// ListOrders returns the authenticated customer's orders, newest first.
func (h *OrderHandlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "order service not configured", http.StatusServiceUnavailable))
		return
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.List(r.Context(), actor.ID, pager)
	if err != nil {
		writeOrderError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

// GetOrder returns one order owned by the authenticated customer.
func (h *OrderHandlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "order service not configured", http.StatusServiceUnavailable))
		return
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Get(r.Context(), orderID, actor)
	if err != nil {
		writeOrderError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

// CancelOrder cancels a customer's own order while it is still cancellable.
func (h *OrderHandlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "order service not configured", http.StatusServiceUnavailable))
		return
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	data, err := readLimitedBody(r, maxOrderCancelBodySize)
	switch {
	case errors.Is(err, errEmptyBody):
		// cancellation reason is optional
	case err != nil:
		writeBodyError(r, w, err)
		return
	default:
		if err := json.Unmarshal(data, &req); err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.Cancel(r.Context(), services.CancelOrderCommand{
		OrderID: orderID,
		Actor:   actor,
		Reason:  strings.TrimSpace(req.Reason),
	})
	observability.RecordOrderOperation("cancel", err)
	if err != nil {
		writeOrderError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

// GetTracking returns the delivery tracking record for a customer's order.
func (h *OrderHandlers) GetTracking(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil || h.deliveries == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "delivery service not configured", http.StatusServiceUnavailable))
		return
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	// Ownership is checked on the order before reading the tracking record.
	if _, err := h.orders.Get(r.Context(), orderID, actor); err != nil {
		writeOrderError(r, w, err)
		return
	}

	tracking, err := h.deliveries.GetByOrder(r.Context(), orderID)
	if err != nil {
		writeDeliveryError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDeliveryPayload(tracking))
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		Totals: orderTotalsPayload{
			Subtotal:    order.Totals.Subtotal,
			Discount:    order.Totals.Discount,
			DeliveryFee: order.Totals.DeliveryFee,
			VAT:         order.Totals.VAT,
			Total:       order.Totals.Total,
		},
		DeliveryAddress: buildAddressPayload(order.DeliveryAddress),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		ConfirmedAt:     formatTimePtr(order.ConfirmedAt),
		CancelledAt:     formatTimePtr(order.CancelledAt),
		DeliveredAt:     formatTimePtr(order.ActualDeliveryAt),
		CancelReason:    stringPtrValue(order.CancelReason),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      buildTextPayload(item.Name),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Total:     item.Total,
		})
	}
	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusHistoryPayload{
			Status:    string(entry.Status),
			ActorID:   entry.ActorID,
			ActorKind: string(entry.ActorKind),
			Note:      stringPtrValue(entry.Note),
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}
	return payload
}

func buildOrderListResponse(page domain.CursorPage[domain.Order]) orderListResponse {
	resp := orderListResponse{
		Items:         make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		resp.Items = append(resp.Items, buildOrderPayload(order))
	}
	return resp
}

func writeBodyError(r *http.Request, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(r.Context(), w, httpx.NewError("payload_too_large", "request body exceeds limit", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
	}
}

func writeOrderError(r *http.Request, w http.ResponseWriter, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrStockInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStockInsufficient):
		httpx.WriteError(ctx, w, httpx.NewError("stock_insufficient", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrOrderUnauthorized):
		// Unauthorized reads report not-found to avoid leaking order existence.
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently, retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
