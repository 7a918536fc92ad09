package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates the requested status is not reachable.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates the order changed underneath the caller.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnauthorized indicates the actor may not operate on this order.
	ErrOrderUnauthorized = errors.New("order: actor not permitted")
)

// orderTransitions is the adjacency table of the order status machine.
// Cancelled to refunded additionally requires a captured payment.
var orderTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:        {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:      {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing:     {domain.OrderStatusReadyForPickup},
	domain.OrderStatusReadyForPickup: {domain.OrderStatusOutForDelivery},
	domain.OrderStatusOutForDelivery: {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:      {domain.OrderStatusRefunded},
	domain.OrderStatusCancelled:      {domain.OrderStatusRefunded},
}

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Stock        StockService
	Catalog      repositories.ProductCatalog
	Counters     repositories.CounterRepository
	Notifier     NotificationService
	UnitOfWork   repositories.UnitOfWork
	NumberPrefix string
	StaffInboxID string
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	repo       repositories.OrderRepository
	stock      StockService
	catalog    repositories.ProductCatalog
	counters   repositories.CounterRepository
	notifier   NotificationService
	uow        repositories.UnitOfWork
	prefix     string
	staffInbox string
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("order service: stock service is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: product catalog is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("order service: notification service is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("order service: unit of work is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return "ord_" + ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	prefix := strings.TrimSpace(deps.NumberPrefix)
	if prefix == "" {
		prefix = "LM"
	}

	staffInbox := strings.TrimSpace(deps.StaffInboxID)
	if staffInbox == "" {
		staffInbox = "staff-inbox"
	}

	return &orderService{
		repo:       deps.Orders,
		stock:      deps.Stock,
		catalog:    deps.Catalog,
		counters:   deps.Counters,
		notifier:   deps.Notifier,
		uow:        deps.UnitOfWork,
		prefix:     prefix,
		staffInbox: staffInbox,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	if err := validateAddress(cmd.Address); err != nil {
		return Order{}, err
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodCOD, domain.PaymentMethodCard, domain.PaymentMethodWallet:
	default:
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	if cmd.Discount < 0 || cmd.DeliveryFee < 0 {
		return Order{}, fmt.Errorf("%w: discount and delivery fee must not be negative", ErrOrderInvalidInput)
	}

	items, vat, stockLines, err := s.snapshotItems(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	totals := computeTotals(items, vat, cmd.Discount, cmd.DeliveryFee)
	if totals.Total < 0 {
		return Order{}, fmt.Errorf("%w: discount exceeds order value", ErrOrderInvalidInput)
	}

	now := s.clock()
	number, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := domain.Order{
		ID:              s.newID(),
		OrderNumber:     number,
		CustomerID:      customerID,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   cmd.PaymentMethod,
		Totals:          totals,
		Items:           items,
		DeliveryAddress: cmd.Address,
		StatusHistory: []domain.StatusHistoryEntry{{
			Status:    domain.OrderStatusPending,
			ActorID:   customerID,
			ActorKind: domain.ActorCustomer,
			CreatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.stock.ReserveForOrder(ctx, StockReserveCommand{OrderID: order.ID, Lines: stockLines}); err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return s.notifyStaff(ctx, domain.NotificationOrderPlaced,
			domain.Text{EN: "New order placed", AR: "طلب جديد"},
			domain.Text{
				EN: fmt.Sprintf("Order %s was placed and is awaiting confirmation.", order.OrderNumber),
				AR: fmt.Sprintf("تم استلام الطلب %s وهو بانتظار التأكيد.", order.OrderNumber),
			},
			"/admin/orders/"+order.ID)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.create", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"customerId":  customerID,
		"total":       totals.Total,
	})
	return order, nil
}

func (s *orderService) Get(ctx context.Context, orderID string, actor Actor) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if actor.Kind == domain.ActorCustomer && order.CustomerID != actor.ID {
		return Order{}, fmt.Errorf("%w: order %s belongs to another customer", ErrOrderUnauthorized, orderID)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, customerID string, pager Pagination) (domain.CursorPage[Order], error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}

	page, err := s.repo.ListByCustomer(ctx, customerID, repositories.OrderListFilter{Pagination: pager})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListAll(ctx context.Context, filter OrderAdminFilter) (domain.CursorPage[Order], error) {
	repoFilter := repositories.OrderListFilter{
		Status:     filter.Statuses,
		Pagination: filter.Pagination,
	}

	if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
		page, err := s.repo.ListByCustomer(ctx, customerID, repoFilter)
		if err != nil {
			return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
		}
		return page, nil
	}

	page, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) Transition(ctx context.Context, cmd OrderTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	// Repeating a cancellation is a no-op, not an error.
	if cmd.Status == domain.OrderStatusCancelled && order.Status == domain.OrderStatusCancelled {
		return order, nil
	}

	if !transitionAllowed(order, cmd.Status) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidTransition, order.Status, cmd.Status)
	}

	now := s.clock()
	update := repositories.OrderStatusUpdate{
		OrderID:        order.ID,
		PreviousStatus: order.Status,
		Status:         cmd.Status,
		Now:            now,
	}

	var releaseStock, commitStock bool
	switch cmd.Status {
	case domain.OrderStatusConfirmed:
		update.ConfirmedAt = &now
	case domain.OrderStatusCancelled:
		update.CancelledAt = &now
		if reason := strings.TrimSpace(cmd.Note); reason != "" {
			update.CancelReason = &reason
		}
		releaseStock = true
	case domain.OrderStatusDelivered:
		update.ActualDeliveryAt = &now
		if order.PaymentMethod == domain.PaymentMethodCOD {
			captured := domain.PaymentStatusCaptured
			update.PaymentStatus = &captured
		}
		commitStock = true
	case domain.OrderStatusRefunded:
		refunded := domain.PaymentStatusRefunded
		update.PaymentStatus = &refunded
	}

	var updated domain.Order
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if releaseStock {
			if err := s.stock.ReleaseForOrder(ctx, StockReleaseCommand{
				OrderID: order.ID,
				Lines:   stockLinesFromItems(order.Items),
				ActorID: cmd.Actor.ID,
			}); err != nil {
				return err
			}
		}
		if commitStock {
			if err := s.stock.CommitForOrder(ctx, StockCommitCommand{
				OrderID: order.ID,
				Lines:   stockLinesFromItems(order.Items),
				ActorID: cmd.Actor.ID,
			}); err != nil {
				return err
			}
		}

		result, err := s.repo.UpdateStatus(ctx, update)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		entry := domain.StatusHistoryEntry{
			Status:    cmd.Status,
			ActorID:   cmd.Actor.ID,
			ActorKind: cmd.Actor.Kind,
			CreatedAt: now,
		}
		if note := strings.TrimSpace(cmd.Note); note != "" {
			entry.Note = &note
		}
		if err := s.repo.AppendHistory(ctx, order.ID, entry); err != nil {
			return s.mapRepositoryError(err)
		}
		result.StatusHistory = append(result.StatusHistory, entry)
		updated = result

		return s.notifyTransition(ctx, updated, cmd.Status, cmd.Note)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.transition", map[string]any{
		"orderId": order.ID,
		"from":    string(order.Status),
		"to":      string(cmd.Status),
		"actorId": cmd.Actor.ID,
	})
	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if cmd.Actor.Kind == domain.ActorCustomer {
		if order.CustomerID != cmd.Actor.ID {
			return Order{}, fmt.Errorf("%w: order %s belongs to another customer", ErrOrderUnauthorized, orderID)
		}
		// Customers may only cancel before the order enters preparation.
		switch order.Status {
		case domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusCancelled:
		default:
			return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidTransition, order.Status, domain.OrderStatusCancelled)
		}
	}

	return s.Transition(ctx, OrderTransitionCommand{
		OrderID: orderID,
		Status:  domain.OrderStatusCancelled,
		Actor:   cmd.Actor,
		Note:    cmd.Reason,
	})
}

func (s *orderService) MarkPaymentStatus(ctx context.Context, cmd MarkPaymentStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	switch cmd.Status {
	case domain.PaymentStatusAuthorized, domain.PaymentStatusCaptured,
		domain.PaymentStatusFailed, domain.PaymentStatusRefunded,
		domain.PaymentStatusPartiallyRefunded:
	default:
		return Order{}, fmt.Errorf("%w: unsupported payment status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	status := cmd.Status
	updated, err := s.repo.UpdateStatus(ctx, repositories.OrderStatusUpdate{
		OrderID:        order.ID,
		PreviousStatus: order.Status,
		Status:         order.Status,
		PaymentStatus:  &status,
		Now:            s.clock(),
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.paymentStatus", map[string]any{
		"orderId":       order.ID,
		"paymentStatus": string(cmd.Status),
		"transactionId": cmd.Gateway.TransactionID,
	})
	return updated, nil
}

func (s *orderService) snapshotItems(ctx context.Context, requested []CreateOrderItem) ([]domain.OrderLineItem, int64, []StockLine, error) {
	ids := make([]string, 0, len(requested))
	for _, item := range requested {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, 0, nil, fmt.Errorf("%w: item product id is required", ErrOrderInvalidInput)
		}
		if item.Quantity <= 0 {
			return nil, 0, nil, fmt.Errorf("%w: quantity for %s must be positive", ErrOrderInvalidInput, productID)
		}
		ids = append(ids, productID)
	}

	products, err := s.catalog.FindProducts(ctx, ids)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("order: catalog lookup: %w", err)
	}

	var vat int64
	items := make([]domain.OrderLineItem, 0, len(requested))
	lines := make([]StockLine, 0, len(requested))
	for _, item := range requested {
		productID := strings.TrimSpace(item.ProductID)
		product, ok := products[productID]
		if !ok {
			return nil, 0, nil, fmt.Errorf("%w: unknown product %s", ErrOrderInvalidInput, productID)
		}
		if !product.Active {
			return nil, 0, nil, fmt.Errorf("%w: product %s is not available", ErrOrderInvalidInput, productID)
		}

		lineTotal := product.UnitPrice * int64(item.Quantity)
		vat += taxAmount(lineTotal, product.VATRate)
		items = append(items, domain.OrderLineItem{
			ProductID: productID,
			Name:      product.Name,
			UnitPrice: product.UnitPrice,
			Quantity:  item.Quantity,
			Total:     lineTotal,
		})
		lines = append(lines, StockLine{ProductID: productID, Quantity: item.Quantity})
	}
	return items, vat, lines, nil
}

func (s *orderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	counter := fmt.Sprintf("orders:%d", now.Year())
	seq, err := s.counters.Next(ctx, counter, 1)
	if err != nil {
		return "", fmt.Errorf("order: next order number: %w", err)
	}
	return fmt.Sprintf("%s-%d-%04d", s.prefix, now.Year(), seq), nil
}

func (s *orderService) notifyTransition(ctx context.Context, order domain.Order, status domain.OrderStatus, note string) error {
	title, message := transitionContent(order, status)
	// Driver remarks ride along in the delivered message, e.g. where the
	// parcel was left.
	if note = strings.TrimSpace(note); note != "" && status == domain.OrderStatusDelivered {
		message.EN = message.EN + " " + note
		message.AR = message.AR + " " + note
	}
	if err := s.dispatch(ctx, DispatchNotificationCommand{
		Target:  domain.CustomerTarget(order.CustomerID),
		Type:    domain.NotificationOrderStatus,
		Title:   title,
		Message: message,
		Link:    "/orders/" + order.ID,
	}); err != nil {
		return err
	}

	// Staff see cancellations and completed deliveries in their inbox.
	switch status {
	case domain.OrderStatusCancelled:
		return s.notifyStaff(ctx, domain.NotificationOrderStatus,
			domain.Text{EN: "Order cancelled", AR: "تم إلغاء الطلب"},
			domain.Text{
				EN: fmt.Sprintf("Order %s was cancelled.", order.OrderNumber),
				AR: fmt.Sprintf("تم إلغاء الطلب %s.", order.OrderNumber),
			},
			"/admin/orders/"+order.ID)
	case domain.OrderStatusDelivered:
		return s.notifyStaff(ctx, domain.NotificationOrderStatus,
			domain.Text{EN: "Order delivered", AR: "تم توصيل الطلب"},
			domain.Text{
				EN: fmt.Sprintf("Order %s was delivered.", order.OrderNumber),
				AR: fmt.Sprintf("تم توصيل الطلب %s.", order.OrderNumber),
			},
			"/admin/orders/"+order.ID)
	}
	return nil
}

func (s *orderService) notifyStaff(ctx context.Context, kind NotificationType, title, message Text, link string) error {
	return s.dispatch(ctx, DispatchNotificationCommand{
		Target:  domain.StaffTarget(s.staffInbox),
		Type:    kind,
		Title:   title,
		Message: message,
		Link:    link,
	})
}

func (s *orderService) dispatch(ctx context.Context, cmd DispatchNotificationCommand) error {
	if _, err := s.notifier.Dispatch(ctx, cmd); err != nil {
		return fmt.Errorf("order: dispatch notification: %w", err)
	}
	return nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case repositories.OrderErrorNotFound:
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderErr.Message)
		case repositories.OrderErrorConflict:
			return fmt.Errorf("%w: %s", ErrOrderConflict, orderErr.Message)
		}
	}

	return err
}

func transitionAllowed(order domain.Order, target domain.OrderStatus) bool {
	for _, next := range orderTransitions[order.Status] {
		if next != target {
			continue
		}
		// A cancelled order is refundable only when money was taken.
		if order.Status == domain.OrderStatusCancelled && target == domain.OrderStatusRefunded {
			return order.PaymentStatus == domain.PaymentStatusCaptured
		}
		return true
	}
	return false
}

func transitionContent(order domain.Order, status domain.OrderStatus) (Text, Text) {
	switch status {
	case domain.OrderStatusConfirmed:
		return Text{EN: "Order confirmed", AR: "تم تأكيد الطلب"}, Text{
			EN: fmt.Sprintf("Your order %s has been confirmed and will be prepared shortly.", order.OrderNumber),
			AR: fmt.Sprintf("تم تأكيد طلبك %s وسيتم تجهيزه قريباً.", order.OrderNumber),
		}
	case domain.OrderStatusProcessing:
		return Text{EN: "Order being prepared", AR: "جاري تجهيز الطلب"}, Text{
			EN: fmt.Sprintf("Your order %s is being prepared.", order.OrderNumber),
			AR: fmt.Sprintf("جاري تجهيز طلبك %s.", order.OrderNumber),
		}
	case domain.OrderStatusReadyForPickup:
		return Text{EN: "Order ready", AR: "الطلب جاهز"}, Text{
			EN: fmt.Sprintf("Your order %s is packed and awaiting the driver.", order.OrderNumber),
			AR: fmt.Sprintf("طلبك %s جاهز وبانتظار السائق.", order.OrderNumber),
		}
	case domain.OrderStatusOutForDelivery:
		return Text{EN: "Order on the way", AR: "الطلب في الطريق"}, Text{
			EN: fmt.Sprintf("Your order %s is out for delivery.", order.OrderNumber),
			AR: fmt.Sprintf("طلبك %s في الطريق إليك.", order.OrderNumber),
		}
	case domain.OrderStatusDelivered:
		return Text{EN: "Order delivered", AR: "تم توصيل الطلب"}, Text{
			EN: fmt.Sprintf("Your order %s has been delivered.", order.OrderNumber),
			AR: fmt.Sprintf("تم توصيل طلبك %s.", order.OrderNumber),
		}
	case domain.OrderStatusCancelled:
		return Text{EN: "Order cancelled", AR: "تم إلغاء الطلب"}, Text{
			EN: fmt.Sprintf("Your order %s has been cancelled.", order.OrderNumber),
			AR: fmt.Sprintf("تم إلغاء طلبك %s.", order.OrderNumber),
		}
	case domain.OrderStatusRefunded:
		return Text{EN: "Order refunded", AR: "تم استرداد المبلغ"}, Text{
			EN: fmt.Sprintf("The amount for order %s has been refunded.", order.OrderNumber),
			AR: fmt.Sprintf("تم استرداد مبلغ الطلب %s.", order.OrderNumber),
		}
	default:
		return Text{EN: "Order update", AR: "تحديث الطلب"}, Text{
			EN: fmt.Sprintf("Your order %s status changed to %s.", order.OrderNumber, status),
			AR: fmt.Sprintf("تم تحديث حالة طلبك %s.", order.OrderNumber),
		}
	}
}

func computeTotals(items []domain.OrderLineItem, vat, discount, deliveryFee int64) domain.OrderTotals {
	var subtotal int64
	for _, item := range items {
		subtotal += item.Total
	}
	return domain.OrderTotals{
		Subtotal:    subtotal,
		Discount:    discount,
		DeliveryFee: deliveryFee,
		VAT:         vat,
		Total:       subtotal - discount + deliveryFee + vat,
	}
}

// taxAmount computes tax on the smallest currency unit with half-up rounding.
func taxAmount(base int64, ratePercent int) int64 {
	if base <= 0 || ratePercent <= 0 {
		return 0
	}
	return (base*int64(ratePercent) + 50) / 100
}

func stockLinesFromItems(items []domain.OrderLineItem) []StockLine {
	lines := make([]StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

func validateAddress(addr Address) error {
	if strings.TrimSpace(addr.Recipient) == "" {
		return fmt.Errorf("%w: address recipient is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return fmt.Errorf("%w: address line is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: address city is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.Phone) == "" {
		return fmt.Errorf("%w: address phone is required", ErrOrderInvalidInput)
	}
	return nil
}
