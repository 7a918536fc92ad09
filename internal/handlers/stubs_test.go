package handlers

import (
	"context"
	"time"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/platform/auth"
	"github.com/lahm-market/api/internal/services"
)

type stubTokenResolver struct {
	actors map[string]domain.Actor
}

func (s *stubTokenResolver) Resolve(ctx context.Context, token string) (domain.Actor, error) {
	actor, ok := s.actors[token]
	if !ok {
		return domain.Actor{}, auth.ErrUnauthenticated
	}
	return actor, nil
}

func newTestAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(&stubTokenResolver{
		actors: map[string]domain.Actor{
			"customer-token": {Kind: domain.ActorCustomer, ID: "cust-1", NotifyID: "cust-1"},
			"staff-token":    {Kind: domain.ActorStaff, ID: "staff-1", Role: auth.RoleAdmin, NotifyID: "staff-inbox"},
			"driver-token":   {Kind: domain.ActorDriver, ID: "driver-1", Role: auth.RoleDriver, NotifyID: "driver-1"},
		},
	})
}

type stubOrderService struct {
	createFn     func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error)
	getFn        func(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error)
	listFn       func(ctx context.Context, customerID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	listAllFn    func(ctx context.Context, filter services.OrderAdminFilter) (domain.CursorPage[domain.Order], error)
	transitionFn func(ctx context.Context, cmd services.OrderTransitionCommand) (domain.Order, error)
	cancelFn     func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error)
	paymentFn    func(ctx context.Context, cmd services.MarkPaymentStatusCommand) (domain.Order, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Order{}, services.ErrOrderInvalidInput
}

func (s *stubOrderService) Get(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, actor)
	}
	return domain.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) List(ctx context.Context, customerID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, customerID, pager)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderService) ListAll(ctx context.Context, filter services.OrderAdminFilter) (domain.CursorPage[domain.Order], error) {
	if s.listAllFn != nil {
		return s.listAllFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderService) Transition(ctx context.Context, cmd services.OrderTransitionCommand) (domain.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return domain.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return domain.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) MarkPaymentStatus(ctx context.Context, cmd services.MarkPaymentStatusCommand) (domain.Order, error) {
	if s.paymentFn != nil {
		return s.paymentFn(ctx, cmd)
	}
	return domain.Order{}, services.ErrOrderNotFound
}

type stubDeliveryService struct {
	assignFn   func(ctx context.Context, cmd services.AssignDriverCommand) (domain.DeliveryTracking, error)
	advanceFn  func(ctx context.Context, cmd services.AdvanceDeliveryCommand) (domain.DeliveryTracking, error)
	completeFn func(ctx context.Context, cmd services.CompleteDeliveryCommand) (domain.DeliveryTracking, error)
	failFn     func(ctx context.Context, cmd services.FailDeliveryCommand) (domain.DeliveryTracking, error)
	locationFn func(ctx context.Context, cmd services.UpdateLocationCommand) error
	byOrderFn  func(ctx context.Context, orderID string) (domain.DeliveryTracking, error)
	listFn     func(ctx context.Context, driverID string, onlyOpen bool, pager domain.Pagination) (domain.CursorPage[domain.DeliveryTracking], error)
}

func (s *stubDeliveryService) Assign(ctx context.Context, cmd services.AssignDriverCommand) (domain.DeliveryTracking, error) {
	if s.assignFn != nil {
		return s.assignFn(ctx, cmd)
	}
	return domain.DeliveryTracking{}, services.ErrDeliveryNotFound
}

func (s *stubDeliveryService) Advance(ctx context.Context, cmd services.AdvanceDeliveryCommand) (domain.DeliveryTracking, error) {
	if s.advanceFn != nil {
		return s.advanceFn(ctx, cmd)
	}
	return domain.DeliveryTracking{}, services.ErrDeliveryNotFound
}

func (s *stubDeliveryService) Complete(ctx context.Context, cmd services.CompleteDeliveryCommand) (domain.DeliveryTracking, error) {
	if s.completeFn != nil {
		return s.completeFn(ctx, cmd)
	}
	return domain.DeliveryTracking{}, services.ErrDeliveryNotFound
}

func (s *stubDeliveryService) Fail(ctx context.Context, cmd services.FailDeliveryCommand) (domain.DeliveryTracking, error) {
	if s.failFn != nil {
		return s.failFn(ctx, cmd)
	}
	return domain.DeliveryTracking{}, services.ErrDeliveryNotFound
}

func (s *stubDeliveryService) UpdateLocation(ctx context.Context, cmd services.UpdateLocationCommand) error {
	if s.locationFn != nil {
		return s.locationFn(ctx, cmd)
	}
	return services.ErrDeliveryNotFound
}

func (s *stubDeliveryService) GetByOrder(ctx context.Context, orderID string) (domain.DeliveryTracking, error) {
	if s.byOrderFn != nil {
		return s.byOrderFn(ctx, orderID)
	}
	return domain.DeliveryTracking{}, services.ErrDeliveryNotFound
}

func (s *stubDeliveryService) ListForDriver(ctx context.Context, driverID string, onlyOpen bool, pager domain.Pagination) (domain.CursorPage[domain.DeliveryTracking], error) {
	if s.listFn != nil {
		return s.listFn(ctx, driverID, onlyOpen, pager)
	}
	return domain.CursorPage[domain.DeliveryTracking]{}, nil
}

type stubStockHandlerService struct {
	getFn       func(ctx context.Context, productID string) (domain.Stock, error)
	adjustFn    func(ctx context.Context, cmd services.StockAdjustCommand) (domain.Stock, error)
	lowStockFn  func(ctx context.Context, filter services.LowStockFilter) (domain.CursorPage[domain.Stock], error)
	movementsFn func(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockMovement], error)
}

func (s *stubStockHandlerService) ReserveForOrder(ctx context.Context, cmd services.StockReserveCommand) error {
	return nil
}

func (s *stubStockHandlerService) ReleaseForOrder(ctx context.Context, cmd services.StockReleaseCommand) error {
	return nil
}

func (s *stubStockHandlerService) CommitForOrder(ctx context.Context, cmd services.StockCommitCommand) error {
	return nil
}

func (s *stubStockHandlerService) Adjust(ctx context.Context, cmd services.StockAdjustCommand) (domain.Stock, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, cmd)
	}
	return domain.Stock{}, services.ErrStockNotFound
}

func (s *stubStockHandlerService) GetStock(ctx context.Context, productID string) (domain.Stock, error) {
	if s.getFn != nil {
		return s.getFn(ctx, productID)
	}
	return domain.Stock{}, services.ErrStockNotFound
}

func (s *stubStockHandlerService) ListLowStock(ctx context.Context, filter services.LowStockFilter) (domain.CursorPage[domain.Stock], error) {
	if s.lowStockFn != nil {
		return s.lowStockFn(ctx, filter)
	}
	return domain.CursorPage[domain.Stock]{}, nil
}

func (s *stubStockHandlerService) ListMovements(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockMovement], error) {
	if s.movementsFn != nil {
		return s.movementsFn(ctx, productID, pager)
	}
	return domain.CursorPage[domain.StockMovement]{}, nil
}

type stubNotificationHandlerService struct {
	listFn        func(ctx context.Context, actor domain.Actor, onlyUnread bool, pager domain.Pagination) (domain.CursorPage[domain.Notification], error)
	unreadFn      func(ctx context.Context, actor domain.Actor) (int, error)
	markReadFn    func(ctx context.Context, actor domain.Actor, notificationID string) error
	markAllReadFn func(ctx context.Context, actor domain.Actor) (int, error)
	deleteFn      func(ctx context.Context, actor domain.Actor, notificationID string) error
	clearFn       func(ctx context.Context, actor domain.Actor) (int, error)
}

func (s *stubNotificationHandlerService) Dispatch(ctx context.Context, cmd services.DispatchNotificationCommand) (domain.Notification, error) {
	return domain.Notification{}, nil
}

func (s *stubNotificationHandlerService) List(ctx context.Context, actor domain.Actor, onlyUnread bool, pager domain.Pagination) (domain.CursorPage[domain.Notification], error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, onlyUnread, pager)
	}
	return domain.CursorPage[domain.Notification]{}, nil
}

func (s *stubNotificationHandlerService) UnreadCount(ctx context.Context, actor domain.Actor) (int, error) {
	if s.unreadFn != nil {
		return s.unreadFn(ctx, actor)
	}
	return 0, nil
}

func (s *stubNotificationHandlerService) MarkRead(ctx context.Context, actor domain.Actor, notificationID string) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, actor, notificationID)
	}
	return services.ErrNotificationNotFound
}

func (s *stubNotificationHandlerService) MarkAllRead(ctx context.Context, actor domain.Actor) (int, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, actor)
	}
	return 0, nil
}

func (s *stubNotificationHandlerService) Delete(ctx context.Context, actor domain.Actor, notificationID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, actor, notificationID)
	}
	return services.ErrNotificationNotFound
}

func (s *stubNotificationHandlerService) Clear(ctx context.Context, actor domain.Actor) (int, error) {
	if s.clearFn != nil {
		return s.clearFn(ctx, actor)
	}
	return 0, nil
}

type stubSystemService struct {
	reportFn func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.reportFn != nil {
		return s.reportFn(ctx)
	}
	return domain.SystemHealthReport{Status: domain.HealthStatusOK, GeneratedAt: time.Now()}, nil
}

func sampleHandlerOrder() domain.Order {
	created := time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:            "ord-1",
		OrderNumber:   "LM-2026-0042",
		CustomerID:    "cust-1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: domain.PaymentMethodCOD,
		Totals: domain.OrderTotals{
			Subtotal:    15000,
			DeliveryFee: 1500,
			VAT:         2250,
			Total:       18750,
		},
		Items: []domain.OrderLineItem{
			{
				ProductID: "prod-lamb",
				Name:      domain.Text{EN: "Lamb shoulder", AR: "كتف خروف"},
				UnitPrice: 7500,
				Quantity:  2,
				Total:     15000,
			},
		},
		DeliveryAddress: domain.Address{
			Recipient: "Fahad",
			Line1:     "12 Olaya St",
			City:      "Riyadh",
			Phone:     "+966500000001",
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func sampleHandlerTracking() domain.DeliveryTracking {
	created := time.Date(2026, time.April, 2, 12, 0, 0, 0, time.UTC)
	return domain.DeliveryTracking{
		ID:      "dlv-1",
		OrderID: "ord-1",
		Driver:  domain.DriverSnapshot{ID: "driver-1", Name: "Omar", Mobile: "+966500000002"},
		Status:  domain.DeliveryStatusAssigned,
		Timeline: []domain.TimelineEntry{
			{Status: domain.DeliveryStatusAssigned, CreatedAt: created},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}
