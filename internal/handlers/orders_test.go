package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/services"
)

func newOrderTestRouter(orders services.OrderService, deliveries services.DeliveryService) chi.Router {
	h := NewOrderHandlers(newTestAuthenticator(), orders, deliveries)
	return NewRouter(WithOrderRoutes(h.Routes))
}

func TestCreateOrderReturnsCreated(t *testing.T) {
	var captured services.CreateOrderCommand
	orders := &stubOrderService{
		createFn: func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			captured = cmd
			return sampleHandlerOrder(), nil
		},
	}
	router := newOrderTestRouter(orders, &stubDeliveryService{})

	body := `{
		"items": [{"product_id": "prod-lamb", "quantity": 2}],
		"address": {"recipient": "Fahad", "line1": "12 Olaya St", "city": "Riyadh", "phone": "+966500000001"},
		"payment_method": "COD",
		"delivery_fee": 1500
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.CustomerID != "cust-1" {
		t.Fatalf("expected customer id from token, got %q", captured.CustomerID)
	}
	if captured.PaymentMethod != domain.PaymentMethodCOD {
		t.Fatalf("expected payment method normalised to cod, got %q", captured.PaymentMethod)
	}
	if len(captured.Items) != 1 || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", captured.Items)
	}

	var payload orderPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if payload.OrderNumber != "LM-2026-0042" {
		t.Fatalf("expected order number in payload, got %q", payload.OrderNumber)
	}
	if payload.Totals.Total != 18750 {
		t.Fatalf("expected total 18750, got %d", payload.Totals.Total)
	}
}

func TestCreateOrderRejectsInvalidJSON(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{}, &stubDeliveryService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateOrderRequiresCustomerKind(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{}, &stubDeliveryService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer driver-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for driver on customer surface, got %d", rec.Code)
	}
}

func TestCreateOrderRequiresToken(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{}, &stubDeliveryService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestListOrdersClampsPageSize(t *testing.T) {
	var captured domain.Pagination
	orders := &stubOrderService{
		listFn: func(ctx context.Context, customerID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
			captured = pager
			return domain.CursorPage[domain.Order]{Items: []domain.Order{sampleHandlerOrder()}}, nil
		},
	}
	router := newOrderTestRouter(orders, &stubDeliveryService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?page_size=500&page_token=abc", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.PageSize != maxPageSize {
		t.Fatalf("expected page size clamped to %d, got %d", maxPageSize, captured.PageSize)
	}
	if captured.PageToken != "abc" {
		t.Fatalf("expected page token forwarded, got %q", captured.PageToken)
	}
}

func TestGetOrderMapsNotFound(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{}, &stubDeliveryService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord-missing", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "order_not_found") {
		t.Fatalf("expected order_not_found code, got %s", rec.Body.String())
	}
}

func TestCancelOrderAllowsEmptyBody(t *testing.T) {
	var captured services.CancelOrderCommand
	orders := &stubOrderService{
		cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			captured = cmd
			order := sampleHandlerOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	router := newOrderTestRouter(orders, &stubDeliveryService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-1:cancel", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "ord-1" || captured.Reason != "" {
		t.Fatalf("unexpected cancel command: %+v", captured)
	}
	if captured.Actor.ID != "cust-1" {
		t.Fatalf("expected actor from token, got %+v", captured.Actor)
	}
}

func TestGetTrackingChecksOwnershipFirst(t *testing.T) {
	byOrderCalled := false
	orders := &stubOrderService{
		getFn: func(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderUnauthorized
		},
	}
	deliveries := &stubDeliveryService{
		byOrderFn: func(ctx context.Context, orderID string) (domain.DeliveryTracking, error) {
			byOrderCalled = true
			return sampleHandlerTracking(), nil
		},
	}
	router := newOrderTestRouter(orders, deliveries)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord-1/tracking", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign order, got %d", rec.Code)
	}
	if byOrderCalled {
		t.Fatal("tracking lookup must not run when the order is not owned by the caller")
	}
}

func TestGetTrackingReturnsRecord(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error) {
			return sampleHandlerOrder(), nil
		},
	}
	deliveries := &stubDeliveryService{
		byOrderFn: func(ctx context.Context, orderID string) (domain.DeliveryTracking, error) {
			return sampleHandlerTracking(), nil
		},
	}
	router := newOrderTestRouter(orders, deliveries)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord-1/tracking", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload deliveryPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if payload.ID != "dlv-1" || payload.Driver.Name != "Omar" {
		t.Fatalf("unexpected tracking payload: %+v", payload)
	}
}
