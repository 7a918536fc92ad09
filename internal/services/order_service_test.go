package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/repositories"
)

type stubOrderRepo struct {
	insertFn         func(ctx context.Context, order domain.Order) error
	findFn           func(ctx context.Context, orderID string) (domain.Order, error)
	updateStatusFn   func(ctx context.Context, update repositories.OrderStatusUpdate) (domain.Order, error)
	appendHistoryFn  func(ctx context.Context, orderID string, entry domain.StatusHistoryEntry) error
	listByCustomerFn func(ctx context.Context, customerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	listFn           func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order "+orderID+" not found", nil)
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, update)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) AppendHistory(ctx context.Context, orderID string, entry domain.StatusHistoryEntry) error {
	if s.appendHistoryFn != nil {
		return s.appendHistoryFn(ctx, orderID, entry)
	}
	return nil
}

func (s *stubOrderRepo) ListByCustomer(ctx context.Context, customerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listByCustomerFn != nil {
		return s.listByCustomerFn(ctx, customerID, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

type stubStockService struct {
	reserveFn func(ctx context.Context, cmd StockReserveCommand) error
	releaseFn func(ctx context.Context, cmd StockReleaseCommand) error
	commitFn  func(ctx context.Context, cmd StockCommitCommand) error
}

func (s *stubStockService) ReserveForOrder(ctx context.Context, cmd StockReserveCommand) error {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, cmd)
	}
	return nil
}

func (s *stubStockService) ReleaseForOrder(ctx context.Context, cmd StockReleaseCommand) error {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, cmd)
	}
	return nil
}

func (s *stubStockService) CommitForOrder(ctx context.Context, cmd StockCommitCommand) error {
	if s.commitFn != nil {
		return s.commitFn(ctx, cmd)
	}
	return nil
}

func (s *stubStockService) Adjust(ctx context.Context, cmd StockAdjustCommand) (Stock, error) {
	return Stock{}, errors.New("not implemented")
}

func (s *stubStockService) GetStock(ctx context.Context, productID string) (Stock, error) {
	return Stock{}, errors.New("not implemented")
}

func (s *stubStockService) ListLowStock(ctx context.Context, filter LowStockFilter) (domain.CursorPage[Stock], error) {
	return domain.CursorPage[Stock]{}, errors.New("not implemented")
}

func (s *stubStockService) ListMovements(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[StockMovement], error) {
	return domain.CursorPage[StockMovement]{}, errors.New("not implemented")
}

// captureNotifier records dispatched notifications and satisfies NotificationService.
type captureNotifier struct {
	dispatched []DispatchNotificationCommand
}

func (c *captureNotifier) Dispatch(_ context.Context, cmd DispatchNotificationCommand) (Notification, error) {
	c.dispatched = append(c.dispatched, cmd)
	return Notification{ID: "ntf_test", Target: cmd.Target, Type: cmd.Type}, nil
}

func (c *captureNotifier) List(context.Context, Actor, bool, Pagination) (domain.CursorPage[Notification], error) {
	return domain.CursorPage[Notification]{}, errors.New("not implemented")
}

func (c *captureNotifier) UnreadCount(context.Context, Actor) (int, error) {
	return 0, errors.New("not implemented")
}

func (c *captureNotifier) MarkRead(context.Context, Actor, string) error {
	return errors.New("not implemented")
}

func (c *captureNotifier) MarkAllRead(context.Context, Actor) (int, error) {
	return 0, errors.New("not implemented")
}

func (c *captureNotifier) Delete(context.Context, Actor, string) error {
	return errors.New("not implemented")
}

func (c *captureNotifier) Clear(context.Context, Actor) (int, error) {
	return 0, errors.New("not implemented")
}

type stubCatalog struct {
	products map[string]domain.Product
}

func (s *stubCatalog) FindProducts(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	found := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if product, ok := s.products[id]; ok {
			found[id] = product
		}
	}
	return found, nil
}

type stubCounters struct {
	next int64
}

func (s *stubCounters) Next(_ context.Context, name string, step int) (int64, error) {
	s.next += int64(step)
	return s.next, nil
}

func testAddress() domain.Address {
	return domain.Address{
		Recipient: "Fahad",
		Line1:     "12 King Faisal Rd",
		City:      "Riyadh",
		Phone:     "+966500000000",
	}
}

type orderServiceFixture struct {
	repo     *stubOrderRepo
	stock    *stubStockService
	notifier *captureNotifier
	now      time.Time
	svc      OrderService
}

func newOrderServiceFixture(t *testing.T) *orderServiceFixture {
	t.Helper()
	f := &orderServiceFixture{
		repo:     &stubOrderRepo{},
		stock:    &stubStockService{},
		notifier: &captureNotifier{},
		now:      time.Date(2026, 4, 2, 11, 0, 0, 0, time.UTC),
	}

	catalog := &stubCatalog{products: map[string]domain.Product{
		"prod-lamb": {ID: "prod-lamb", Name: domain.Text{EN: "Lamb shoulder"}, UnitPrice: 4500, VATRate: 15, Active: true},
		"prod-beef": {ID: "prod-beef", Name: domain.Text{EN: "Beef ribs"}, UnitPrice: 6000, VATRate: 15, Active: true},
		"prod-old":  {ID: "prod-old", Name: domain.Text{EN: "Retired cut"}, UnitPrice: 1000, VATRate: 15, Active: false},
	}}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:       f.repo,
		Stock:        f.stock,
		Catalog:      catalog,
		Counters:     &stubCounters{},
		Notifier:     f.notifier,
		UnitOfWork:   passthroughUnitOfWork{},
		NumberPrefix: "LM",
		Clock:        func() time.Time { return f.now },
		IDGenerator:  func() string { return "ord_test" },
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	f.svc = svc
	return f
}

func TestOrderServiceCreateReservesStockAndComputesTotals(t *testing.T) {
	f := newOrderServiceFixture(t)

	var inserted domain.Order
	f.repo.insertFn = func(_ context.Context, order domain.Order) error {
		inserted = order
		return nil
	}
	var reserved StockReserveCommand
	f.stock.reserveFn = func(_ context.Context, cmd StockReserveCommand) error {
		reserved = cmd
		return nil
	}

	order, err := f.svc.Create(context.Background(), CreateOrderCommand{
		CustomerID: "cust-1",
		Items: []CreateOrderItem{
			{ProductID: "prod-lamb", Quantity: 2},
			{ProductID: "prod-beef", Quantity: 1},
		},
		Address:       testAddress(),
		PaymentMethod: domain.PaymentMethodCOD,
		DeliveryFee:   1500,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", order.Status)
	}
	if order.OrderNumber != "LM-2026-0001" {
		t.Fatalf("unexpected order number %s", order.OrderNumber)
	}
	// 2*4500 + 6000 = 15000 subtotal, 15 percent VAT = 2250, +1500 delivery.
	if order.Totals.Subtotal != 15000 {
		t.Fatalf("expected subtotal 15000, got %d", order.Totals.Subtotal)
	}
	if order.Totals.VAT != 2250 {
		t.Fatalf("expected VAT 2250, got %d", order.Totals.VAT)
	}
	if order.Totals.Total != 18750 {
		t.Fatalf("expected total 18750, got %d", order.Totals.Total)
	}
	if !order.Totals.Reconciles() {
		t.Fatalf("totals do not reconcile: %+v", order.Totals)
	}

	if reserved.OrderID != order.ID || len(reserved.Lines) != 2 {
		t.Fatalf("unexpected reservation %+v", reserved)
	}
	if inserted.ID != order.ID {
		t.Fatalf("expected insert of %s, got %s", order.ID, inserted.ID)
	}
	if len(inserted.StatusHistory) != 1 || inserted.StatusHistory[0].Status != domain.OrderStatusPending {
		t.Fatalf("expected initial pending history entry, got %+v", inserted.StatusHistory)
	}

	if len(f.notifier.dispatched) != 1 {
		t.Fatalf("expected 1 staff notification, got %d", len(f.notifier.dispatched))
	}
	if f.notifier.dispatched[0].Type != domain.NotificationOrderPlaced {
		t.Fatalf("unexpected notification type %s", f.notifier.dispatched[0].Type)
	}
	if _, ok := f.notifier.dispatched[0].Target.StaffID(); !ok {
		t.Fatalf("expected staff-scoped notification")
	}
}

func TestOrderServiceCreateRejectsUnknownAndInactiveProducts(t *testing.T) {
	f := newOrderServiceFixture(t)

	_, err := f.svc.Create(context.Background(), CreateOrderCommand{
		CustomerID:    "cust-1",
		Items:         []CreateOrderItem{{ProductID: "prod-missing", Quantity: 1}},
		Address:       testAddress(),
		PaymentMethod: domain.PaymentMethodCard,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput for unknown product, got %v", err)
	}

	_, err = f.svc.Create(context.Background(), CreateOrderCommand{
		CustomerID:    "cust-1",
		Items:         []CreateOrderItem{{ProductID: "prod-old", Quantity: 1}},
		Address:       testAddress(),
		PaymentMethod: domain.PaymentMethodCard,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput for inactive product, got %v", err)
	}
}

func TestOrderServiceCreatePropagatesInsufficientStock(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.stock.reserveFn = func(_ context.Context, _ StockReserveCommand) error {
		return ErrStockInsufficient
	}

	_, err := f.svc.Create(context.Background(), CreateOrderCommand{
		CustomerID:    "cust-1",
		Items:         []CreateOrderItem{{ProductID: "prod-lamb", Quantity: 50}},
		Address:       testAddress(),
		PaymentMethod: domain.PaymentMethodCOD,
	})
	if !errors.Is(err, ErrStockInsufficient) {
		t.Fatalf("expected ErrStockInsufficient, got %v", err)
	}
}

func storedOrder(status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:            "ord-1",
		OrderNumber:   "LM-2026-0042",
		CustomerID:    "cust-1",
		Status:        status,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: domain.PaymentMethodCOD,
		Items: []domain.OrderLineItem{
			{ProductID: "prod-lamb", Quantity: 2, UnitPrice: 4500, Total: 9000},
		},
	}
}

func TestOrderServiceTransitionConfirmsPendingOrder(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.repo.findFn = func(_ context.Context, _ string) (domain.Order, error) {
		return storedOrder(domain.OrderStatusPending), nil
	}
	var applied repositories.OrderStatusUpdate
	f.repo.updateStatusFn = func(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
		applied = update
		updated := storedOrder(update.Status)
		updated.ConfirmedAt = update.ConfirmedAt
		return updated, nil
	}

	order, err := f.svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "ord-1",
		Status:  domain.OrderStatusConfirmed,
		Actor:   Actor{Kind: domain.ActorStaff, ID: "staff-1"},
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", order.Status)
	}
	if applied.PreviousStatus != domain.OrderStatusPending {
		t.Fatalf("expected compare against pending, got %s", applied.PreviousStatus)
	}
	if applied.ConfirmedAt == nil || !applied.ConfirmedAt.Equal(f.now) {
		t.Fatalf("expected confirmedAt %v, got %v", f.now, applied.ConfirmedAt)
	}

	if len(f.notifier.dispatched) != 1 {
		t.Fatalf("expected 1 customer notification, got %d", len(f.notifier.dispatched))
	}
	if id, ok := f.notifier.dispatched[0].Target.CustomerID(); !ok || id != "cust-1" {
		t.Fatalf("expected customer target cust-1, got %+v", f.notifier.dispatched[0].Target)
	}
}

func TestOrderServiceTransitionRejectsSkippedStates(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.repo.findFn = func(_ context.Context, _ string) (domain.Order, error) {
		return storedOrder(domain.OrderStatusPending), nil
	}

	_, err := f.svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "ord-1",
		Status:  domain.OrderStatusDelivered,
		Actor:   Actor{Kind: domain.ActorStaff, ID: "staff-1"},
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
	}
}

func TestOrderServiceCancelReleasesStock(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.repo.findFn = func(_ context.Context, _ string) (domain.Order, error) {
		return storedOrder(domain.OrderStatusConfirmed), nil
	}
	f.repo.updateStatusFn = func(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
		if update.CancelReason == nil || *update.CancelReason != "changed my mind" {
			t.Fatalf("expected cancel reason, got %v", update.CancelReason)
		}
		return storedOrder(update.Status), nil
	}
	var released StockReleaseCommand
	f.stock.releaseFn = func(_ context.Context, cmd StockReleaseCommand) error {
		released = cmd
		return nil
	}

	order, err := f.svc.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "ord-1",
		Actor:   Actor{Kind: domain.ActorCustomer, ID: "cust-1"},
		Reason:  "changed my mind",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", order.Status)
	}
	if released.OrderID != "ord-1" || len(released.Lines) != 1 || released.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected release %+v", released)
	}

	// Customer and staff are both told about the cancellation.
	if len(f.notifier.dispatched) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(f.notifier.dispatched))
	}
}

func TestOrderServiceCancelOfCancelledOrderIsNoOp(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.repo.findFn = func(_ context.Context, _ string) (domain.Order, error) {
		return storedOrder(domain.OrderStatusCancelled), nil
	}
	f.stock.releaseFn = func(_ context.Context, _ StockReleaseCommand) error {
		t.Fatalf("release must not run for an already cancelled order")
		return nil
	}

	order, err := f.svc.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "ord-1",
		Actor:   Actor{Kind: domain.ActorCustomer, ID: "cust-1"},
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", order.Status)
	}
	if len(f.notifier.dispatched) != 0 {
		t.Fatalf("expected no notifications on repeated cancel, got %d", len(f.notifier.dispatched))
	}
}

func TestOrderServiceCustomerCannotCancelAfterPreparation(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.repo.findFn = func(_ context.Context, _ string) (domain.Order, error) {
		return storedOrder(domain.OrderStatusProcessing), nil
	}

	_, err := f.svc.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "ord-1",
		Actor:   Actor{Kind: domain.ActorCustomer, ID: "cust-1"},
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition, got %v", err)
	}
}

func TestOrderServiceDeliveredCommitsStockAndCapturesCOD(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.repo.findFn = func(_ context.Context, _ string) (domain.Order, error) {
		return storedOrder(domain.OrderStatusOutForDelivery), nil
	}
	var applied repositories.OrderStatusUpdate
	f.repo.updateStatusFn = func(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
		applied = update
		updated := storedOrder(update.Status)
		if update.PaymentStatus != nil {
			updated.PaymentStatus = *update.PaymentStatus
		}
		return updated, nil
	}
	var committed StockCommitCommand
	f.stock.commitFn = func(_ context.Context, cmd StockCommitCommand) error {
		committed = cmd
		return nil
	}

	order, err := f.svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "ord-1",
		Status:  domain.OrderStatusDelivered,
		Actor:   Actor{Kind: domain.ActorDriver, ID: "driver-1"},
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusCaptured {
		t.Fatalf("expected captured COD payment, got %s", order.PaymentStatus)
	}
	if applied.ActualDeliveryAt == nil {
		t.Fatalf("expected actual delivery timestamp")
	}
	if committed.OrderID != "ord-1" {
		t.Fatalf("expected stock commit for ord-1, got %+v", committed)
	}
}

func TestOrderServiceDeliveredNotificationEmbedsDriverNote(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.repo.findFn = func(_ context.Context, _ string) (domain.Order, error) {
		return storedOrder(domain.OrderStatusOutForDelivery), nil
	}
	f.repo.updateStatusFn = func(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
		updated := storedOrder(update.Status)
		if update.PaymentStatus != nil {
			updated.PaymentStatus = *update.PaymentStatus
		}
		return updated, nil
	}
	f.stock.commitFn = func(_ context.Context, _ StockCommitCommand) error {
		return nil
	}

	_, err := f.svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "ord-1",
		Status:  domain.OrderStatusDelivered,
		Note:    "left with the doorman",
		Actor:   Actor{Kind: domain.ActorDriver, ID: "driver-1"},
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}

	if len(f.notifier.dispatched) == 0 {
		t.Fatalf("expected a customer notification")
	}
	customer := f.notifier.dispatched[0]
	if id, ok := customer.Target.CustomerID(); !ok || id != "cust-1" {
		t.Fatalf("expected customer target, got %+v", customer.Target)
	}
	if !strings.Contains(customer.Message.EN, "left with the doorman") {
		t.Fatalf("expected driver note in the message, got %q", customer.Message.EN)
	}
	if !strings.Contains(customer.Message.AR, "left with the doorman") {
		t.Fatalf("expected driver note in the arabic message, got %q", customer.Message.AR)
	}
}

func TestOrderServiceRefundOfCancelledOrderRequiresCapturedPayment(t *testing.T) {
	f := newOrderServiceFixture(t)

	pendingPayment := storedOrder(domain.OrderStatusCancelled)
	f.repo.findFn = func(_ context.Context, _ string) (domain.Order, error) {
		return pendingPayment, nil
	}
	_, err := f.svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "ord-1",
		Status:  domain.OrderStatusRefunded,
		Actor:   Actor{Kind: domain.ActorStaff, ID: "staff-1"},
	})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected ErrOrderInvalidTransition without capture, got %v", err)
	}

	captured := storedOrder(domain.OrderStatusCancelled)
	captured.PaymentStatus = domain.PaymentStatusCaptured
	f.repo.findFn = func(_ context.Context, _ string) (domain.Order, error) {
		return captured, nil
	}
	f.repo.updateStatusFn = func(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
		if update.PaymentStatus == nil || *update.PaymentStatus != domain.PaymentStatusRefunded {
			t.Fatalf("expected refunded payment status, got %v", update.PaymentStatus)
		}
		return storedOrder(update.Status), nil
	}

	if _, err := f.svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "ord-1",
		Status:  domain.OrderStatusRefunded,
		Actor:   Actor{Kind: domain.ActorStaff, ID: "staff-1"},
	}); err != nil {
		t.Fatalf("refund after capture: %v", err)
	}
}

func TestOrderServiceGetScopesCustomers(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.repo.findFn = func(_ context.Context, _ string) (domain.Order, error) {
		return storedOrder(domain.OrderStatusPending), nil
	}

	if _, err := f.svc.Get(context.Background(), "ord-1", Actor{Kind: domain.ActorCustomer, ID: "cust-2"}); !errors.Is(err, ErrOrderUnauthorized) {
		t.Fatalf("expected ErrOrderUnauthorized, got %v", err)
	}
	if _, err := f.svc.Get(context.Background(), "ord-1", Actor{Kind: domain.ActorCustomer, ID: "cust-1"}); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), "ord-1", Actor{Kind: domain.ActorStaff, ID: "staff-1"}); err != nil {
		t.Fatalf("staff get: %v", err)
	}
}

func TestOrderServiceTransitionMapsConflict(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.repo.findFn = func(_ context.Context, _ string) (domain.Order, error) {
		return storedOrder(domain.OrderStatusPending), nil
	}
	f.repo.updateStatusFn = func(_ context.Context, _ repositories.OrderStatusUpdate) (domain.Order, error) {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorConflict, "status is \"confirmed\", expected \"pending\"", nil)
	}

	_, err := f.svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID: "ord-1",
		Status:  domain.OrderStatusConfirmed,
		Actor:   Actor{Kind: domain.ActorStaff, ID: "staff-1"},
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
}
