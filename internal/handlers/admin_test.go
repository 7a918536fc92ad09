package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/services"
)

func newAdminTestRouter(orders services.OrderService, stock services.StockService, deliveries services.DeliveryService) chi.Router {
	h := NewAdminHandlers(newTestAuthenticator(), orders, stock, deliveries)
	return NewRouter(WithAdminRoutes(h.Routes))
}

func TestAdminListOrdersParsesStatusFilter(t *testing.T) {
	var captured services.OrderAdminFilter
	orders := &stubOrderService{
		listAllFn: func(ctx context.Context, filter services.OrderAdminFilter) (domain.CursorPage[domain.Order], error) {
			captured = filter
			return domain.CursorPage[domain.Order]{Items: []domain.Order{sampleHandlerOrder()}}, nil
		},
	}
	router := newAdminTestRouter(orders, &stubStockHandlerService{}, &stubDeliveryService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders?status=pending,confirmed&customer_id=cust-1", nil)
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(captured.Statuses) != 2 || captured.Statuses[0] != domain.OrderStatusPending || captured.Statuses[1] != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected status filter: %+v", captured.Statuses)
	}
	if captured.CustomerID != "cust-1" {
		t.Fatalf("expected customer filter forwarded, got %q", captured.CustomerID)
	}
}

func TestAdminSurfaceRejectsCustomers(t *testing.T) {
	router := newAdminTestRouter(&stubOrderService{}, &stubStockHandlerService{}, &stubDeliveryService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer on staff surface, got %d", rec.Code)
	}
}

func TestAdminTransitionOrderForwardsCommand(t *testing.T) {
	var captured services.OrderTransitionCommand
	orders := &stubOrderService{
		transitionFn: func(ctx context.Context, cmd services.OrderTransitionCommand) (domain.Order, error) {
			captured = cmd
			order := sampleHandlerOrder()
			order.Status = domain.OrderStatusConfirmed
			return order, nil
		},
	}
	router := newAdminTestRouter(orders, &stubStockHandlerService{}, &stubDeliveryService{})

	body := `{"status": "confirmed", "note": "called the customer"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/ord-1:transition", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "ord-1" || captured.Status != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected transition command: %+v", captured)
	}
	if captured.Note != "called the customer" {
		t.Fatalf("expected note forwarded, got %q", captured.Note)
	}
	if captured.Actor.Kind != domain.ActorStaff {
		t.Fatalf("expected staff actor, got %+v", captured.Actor)
	}
}

func TestAdminTransitionMapsInvalidState(t *testing.T) {
	orders := &stubOrderService{
		transitionFn: func(ctx context.Context, cmd services.OrderTransitionCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidTransition
		},
	}
	router := newAdminTestRouter(orders, &stubStockHandlerService{}, &stubDeliveryService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/ord-1:transition", strings.NewReader(`{"status": "delivered"}`))
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "order_invalid_state") {
		t.Fatalf("expected order_invalid_state code, got %s", rec.Body.String())
	}
}

func TestAdminMarkPaymentStatus(t *testing.T) {
	var captured services.MarkPaymentStatusCommand
	orders := &stubOrderService{
		paymentFn: func(ctx context.Context, cmd services.MarkPaymentStatusCommand) (domain.Order, error) {
			captured = cmd
			order := sampleHandlerOrder()
			order.PaymentStatus = domain.PaymentStatusCaptured
			return order, nil
		},
	}
	router := newAdminTestRouter(orders, &stubStockHandlerService{}, &stubDeliveryService{})

	body := `{"status": "captured", "captured": true, "transaction_id": "txn-9"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/ord-1:payment", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Status != domain.PaymentStatusCaptured || !captured.Gateway.Captured || captured.Gateway.TransactionID != "txn-9" {
		t.Fatalf("unexpected payment command: %+v", captured)
	}
}

func TestAdminAssignDriverParsesArrival(t *testing.T) {
	var captured services.AssignDriverCommand
	deliveries := &stubDeliveryService{
		assignFn: func(ctx context.Context, cmd services.AssignDriverCommand) (domain.DeliveryTracking, error) {
			captured = cmd
			return sampleHandlerTracking(), nil
		},
	}
	router := newAdminTestRouter(&stubOrderService{}, &stubStockHandlerService{}, deliveries)

	body := `{"driver_id": "driver-1", "estimated_arrival": "2026-04-02T15:30:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/ord-1:assign-driver", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "ord-1" || captured.DriverID != "driver-1" {
		t.Fatalf("unexpected assign command: %+v", captured)
	}
	want := time.Date(2026, time.April, 2, 15, 30, 0, 0, time.UTC)
	if captured.EstimatedArrival == nil || !captured.EstimatedArrival.Equal(want) {
		t.Fatalf("expected estimated arrival %s, got %v", want, captured.EstimatedArrival)
	}
}

func TestAdminAssignDriverMapsInvalidDriver(t *testing.T) {
	deliveries := &stubDeliveryService{
		assignFn: func(ctx context.Context, cmd services.AssignDriverCommand) (domain.DeliveryTracking, error) {
			return domain.DeliveryTracking{}, services.ErrDeliveryInvalidActor
		},
	}
	router := newAdminTestRouter(&stubOrderService{}, &stubStockHandlerService{}, deliveries)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/ord-1:assign-driver", strings.NewReader(`{"driver_id": "staff-2"}`))
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_driver") {
		t.Fatalf("expected invalid_driver code, got %s", rec.Body.String())
	}
}

func TestAdminAdjustStock(t *testing.T) {
	var captured services.StockAdjustCommand
	stock := &stubStockHandlerService{
		adjustFn: func(ctx context.Context, cmd services.StockAdjustCommand) (domain.Stock, error) {
			captured = cmd
			return domain.Stock{ProductID: cmd.ProductID, Quantity: 16, Available: 16, UpdatedAt: time.Now()}, nil
		},
	}
	router := newAdminTestRouter(&stubOrderService{}, stock, &stubDeliveryService{})

	body := `{"delta": -4, "reason": "spoilage"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/stock/prod-lamb:adjust", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.ProductID != "prod-lamb" || captured.Delta != -4 || captured.Reason != "spoilage" {
		t.Fatalf("unexpected adjust command: %+v", captured)
	}
	if captured.ActorID != "staff-1" {
		t.Fatalf("expected actor id from token, got %q", captured.ActorID)
	}
}

func TestAdminListLowStockParsesThreshold(t *testing.T) {
	var captured services.LowStockFilter
	stock := &stubStockHandlerService{
		lowStockFn: func(ctx context.Context, filter services.LowStockFilter) (domain.CursorPage[domain.Stock], error) {
			captured = filter
			return domain.CursorPage[domain.Stock]{
				Items: []domain.Stock{{ProductID: "prod-lamb", Available: 2}},
			}, nil
		},
	}
	router := newAdminTestRouter(&stubOrderService{}, stock, &stubDeliveryService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stock/low?threshold=3", nil)
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Threshold != 3 {
		t.Fatalf("expected threshold 3, got %d", captured.Threshold)
	}

	var resp stockListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ProductID != "prod-lamb" {
		t.Fatalf("unexpected low stock items: %+v", resp.Items)
	}
}

func TestAdminListStockMovements(t *testing.T) {
	orderID := "ord-1"
	stock := &stubStockHandlerService{
		movementsFn: func(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockMovement], error) {
			return domain.CursorPage[domain.StockMovement]{
				Items: []domain.StockMovement{
					{
						ID:           "mov-1",
						ProductID:    productID,
						Type:         domain.StockMovementOut,
						Quantity:     2,
						PrevQuantity: 18,
						NewQuantity:  16,
						OrderID:      &orderID,
						CreatedAt:    time.Date(2026, time.April, 2, 14, 0, 0, 0, time.UTC),
					},
				},
			}, nil
		},
	}
	router := newAdminTestRouter(&stubOrderService{}, stock, &stubDeliveryService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stock/prod-lamb/movements", nil)
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp stockMovementListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Type != "out" || resp.Items[0].OrderID != "ord-1" {
		t.Fatalf("unexpected movement payload: %+v", resp.Items)
	}
}

func TestAdminGetStockMapsNotFound(t *testing.T) {
	router := newAdminTestRouter(&stubOrderService{}, &stubStockHandlerService{}, &stubDeliveryService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stock/prod-missing", nil)
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "stock_not_found") {
		t.Fatalf("expected stock_not_found code, got %s", rec.Body.String())
	}
}
