package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/platform/auth"
	"github.com/lahm-market/api/internal/platform/httpx"
	"github.com/lahm-market/api/internal/platform/observability"
	"github.com/lahm-market/api/internal/services"
)

const (
	maxAdminBodySize         = 16 * 1024
	defaultLowStockThreshold = 5
)

// AdminHandlers exposes the staff order, stock and dispatch endpoints.
type AdminHandlers struct {
	authn      *auth.Authenticator
	orders     services.OrderService
	stock      services.StockService
	deliveries services.DeliveryService
}

// NewAdminHandlers constructs the staff handler group.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, stock services.StockService, deliveries services.DeliveryService) *AdminHandlers {
	return &AdminHandlers{
		authn:      authn,
		orders:     orders,
		stock:      stock,
		deliveries: deliveries,
	}
}

// Routes registers the staff endpoints on the provided router. Drivers share
// the staff session store but are kept out of this surface by role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if h == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(domain.ActorStaff))
	}
	r.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))

	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{orderID}", h.GetOrder)
	r.Post("/orders/{orderID}:transition", h.TransitionOrder)
	r.Post("/orders/{orderID}:payment", h.MarkPaymentStatus)
	r.Post("/orders/{orderID}:assign-driver", h.AssignDriver)

	r.Get("/stock/low", h.ListLowStock)
	r.Get("/stock/{productID}", h.GetStock)
	r.Post("/stock/{productID}:adjust", h.AdjustStock)
	r.Get("/stock/{productID}/movements", h.ListStockMovements)
}

type transitionOrderRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type markPaymentRequest struct {
	Status        string `json:"status"`
	Captured      bool   `json:"captured"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type assignDriverRequest struct {
	DriverID         string `json:"driver_id"`
	EstimatedArrival string `json:"estimated_arrival,omitempty"`
}

type adjustStockRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type stockPayload struct {
	ProductID        string `json:"product_id"`
	Quantity         int    `json:"quantity"`
	Reserved         int    `json:"reserved"`
	Available        int    `json:"available"`
	ReorderThreshold int    `json:"reorder_threshold"`
	UpdatedAt        string `json:"updated_at"`
}

type stockListResponse struct {
	Items         []stockPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type stockMovementPayload struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	Type         string `json:"type"`
	Quantity     int    `json:"quantity"`
	PrevQuantity int    `json:"prev_quantity"`
	NewQuantity  int    `json:"new_quantity"`
	Reason       string `json:"reason,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
	ActorID      string `json:"actor_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type stockMovementListResponse struct {
	Items         []stockMovementPayload `json:"items"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

// ListOrders returns orders across all customers, filterable by status.
func (h *AdminHandlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	_, ok := h.adminRequest(w, r, h.orders == nil)
	if !ok {
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderAdminFilter{
		CustomerID: strings.TrimSpace(r.URL.Query().Get("customer_id")),
		Pagination: pager,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, value := range strings.Split(raw, ",") {
			if value = strings.TrimSpace(value); value != "" {
				filter.Statuses = append(filter.Statuses, domain.OrderStatus(strings.ToLower(value)))
			}
		}
	}

	page, err := h.orders.ListAll(r.Context(), filter)
	if err != nil {
		writeOrderError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

// GetOrder returns any order by id for staff review.
func (h *AdminHandlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.adminRequest(w, r, h.orders == nil)
	if !ok {
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

// TransitionOrder moves an order along the status graph on staff authority.
func (h *AdminHandlers) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.adminRequest(w, r, h.orders == nil)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	data, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var req transitionOrderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Transition(r.Context(), services.OrderTransitionCommand{
		OrderID: orderID,
		Status:  domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Actor:   actor,
		Note:    strings.TrimSpace(req.Note),
	})
	observability.RecordOrderOperation("transition", err)
	if err != nil {
		writeOrderError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

// MarkPaymentStatus records a gateway outcome against the order's payment machine.
func (h *AdminHandlers) MarkPaymentStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.adminRequest(w, r, h.orders == nil)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	data, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var req markPaymentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.MarkPaymentStatus(r.Context(), services.MarkPaymentStatusCommand{
		OrderID: orderID,
		Status:  domain.PaymentStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Gateway: domain.GatewayResult{
			Captured:      req.Captured,
			TransactionID: strings.TrimSpace(req.TransactionID),
		},
		Actor: actor,
	})
	observability.RecordOrderOperation("mark_payment", err)
	if err != nil {
		writeOrderError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

// AssignDriver creates or re-targets the delivery tracking record for an order.
func (h *AdminHandlers) AssignDriver(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.adminRequest(w, r, h.deliveries == nil)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	data, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var req assignDriverRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.AssignDriverCommand{
		OrderID:  orderID,
		DriverID: strings.TrimSpace(req.DriverID),
		Actor:    actor,
	}
	if raw := strings.TrimSpace(req.EstimatedArrival); raw != "" {
		eta, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "estimated_arrival must be RFC3339", http.StatusBadRequest))
			return
		}
		cmd.EstimatedArrival = &eta
	}

	tracking, err := h.deliveries.Assign(r.Context(), cmd)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) || errors.Is(err, services.ErrOrderInvalidTransition) {
			writeOrderError(r, w, err)
			return
		}
		writeDeliveryError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildDeliveryPayload(tracking))
}

// GetStock returns the stock record for one product.
func (h *AdminHandlers) GetStock(w http.ResponseWriter, r *http.Request) {
	_, ok := h.adminRequest(w, r, h.stock == nil)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	stock, err := h.stock.GetStock(r.Context(), productID)
	if err != nil {
		writeStockError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStockPayload(stock))
}

// AdjustStock applies a signed manual correction with an audit movement.
func (h *AdminHandlers) AdjustStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.adminRequest(w, r, h.stock == nil)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	data, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(r, w, err)
		return
	}
	var req adjustStockRequest
	if err := json.Unmarshal(data, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	stock, err := h.stock.Adjust(r.Context(), services.StockAdjustCommand{
		ProductID: productID,
		Delta:     req.Delta,
		Reason:    strings.TrimSpace(req.Reason),
		ActorID:   actor.ID,
	})
	if err != nil {
		writeStockError(r, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStockPayload(stock))
}

// ListLowStock returns products at or below the availability threshold.
func (h *AdminHandlers) ListLowStock(w http.ResponseWriter, r *http.Request) {
	_, ok := h.adminRequest(w, r, h.stock == nil)
	if !ok {
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	threshold := defaultLowStockThreshold
	if raw := strings.TrimSpace(r.URL.Query().Get("threshold")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "threshold must be a non-negative integer", http.StatusBadRequest))
			return
		}
		threshold = parsed
	}

	page, err := h.stock.ListLowStock(r.Context(), services.LowStockFilter{
		Threshold:  threshold,
		Pagination: pager,
	})
	if err != nil {
		writeStockError(r, w, err)
		return
	}

	resp := stockListResponse{
		Items:         make([]stockPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, stock := range page.Items {
		resp.Items = append(resp.Items, buildStockPayload(stock))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// ListStockMovements returns the audit trail of quantity changes for a product.
func (h *AdminHandlers) ListStockMovements(w http.ResponseWriter, r *http.Request) {
	_, ok := h.adminRequest(w, r, h.stock == nil)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.stock.ListMovements(r.Context(), productID, pager)
	if err != nil {
		writeStockError(r, w, err)
		return
	}

	resp := stockMovementListResponse{
		Items:         make([]stockMovementPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, movement := range page.Items {
		resp.Items = append(resp.Items, stockMovementPayload{
			ID:           movement.ID,
			ProductID:    movement.ProductID,
			Type:         string(movement.Type),
			Quantity:     movement.Quantity,
			PrevQuantity: movement.PrevQuantity,
			NewQuantity:  movement.NewQuantity,
			Reason:       movement.Reason,
			OrderID:      stringPtrValue(movement.OrderID),
			ActorID:      stringPtrValue(movement.ActorID),
			CreatedAt:    formatTime(movement.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminHandlers) adminRequest(w http.ResponseWriter, r *http.Request, serviceMissing bool) (domain.Actor, bool) {
	if serviceMissing {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "service not configured", http.StatusServiceUnavailable))
		return domain.Actor{}, false
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return domain.Actor{}, false
	}
	return actor, true
}

func buildStockPayload(stock domain.Stock) stockPayload {
	return stockPayload{
		ProductID:        stock.ProductID,
		Quantity:         stock.Quantity,
		Reserved:         stock.Reserved,
		Available:        stock.Available,
		ReorderThreshold: stock.ReorderThreshold,
		UpdatedAt:        formatTime(stock.UpdatedAt),
	}
}

func writeStockError(r *http.Request, w http.ResponseWriter, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrStockInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStockNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", "stock record not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStockInsufficient):
		httpx.WriteError(ctx, w, httpx.NewError("stock_insufficient", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
