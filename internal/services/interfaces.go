package services

import (
	"context"
	"time"

	domain "github.com/lahm-market/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination       = domain.Pagination
	Actor            = domain.Actor
	Order            = domain.Order
	OrderStatus      = domain.OrderStatus
	OrderTotals      = domain.OrderTotals
	OrderLineItem    = domain.OrderLineItem
	PaymentStatus    = domain.PaymentStatus
	PaymentMethod    = domain.PaymentMethod
	GatewayResult    = domain.GatewayResult
	Address          = domain.Address
	Stock            = domain.Stock
	StockMovement    = domain.StockMovement
	DeliveryTracking = domain.DeliveryTracking
	DeliveryStatus   = domain.DeliveryStatus
	DeliveryProof    = domain.DeliveryProof
	GeoPoint         = domain.GeoPoint
	Notification     = domain.Notification
	NotificationType = domain.NotificationType
	Text             = domain.Text
)

// StockService owns the stock ledger: holds, releases, permanent deductions
// and manual corrections, each paired with an audit movement.
type StockService interface {
	ReserveForOrder(ctx context.Context, cmd StockReserveCommand) error
	ReleaseForOrder(ctx context.Context, cmd StockReleaseCommand) error
	CommitForOrder(ctx context.Context, cmd StockCommitCommand) error
	Adjust(ctx context.Context, cmd StockAdjustCommand) (Stock, error)
	GetStock(ctx context.Context, productID string) (Stock, error)
	ListLowStock(ctx context.Context, filter LowStockFilter) (domain.CursorPage[Stock], error)
	ListMovements(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[StockMovement], error)
}

// StockLine is one product hold within an order-scoped batch.
type StockLine struct {
	ProductID string
	Quantity  int
}

// StockReserveCommand places holds for every line or none at all.
type StockReserveCommand struct {
	OrderID string
	Lines   []StockLine
}

// StockReleaseCommand returns holds to availability. Safe to repeat.
type StockReleaseCommand struct {
	OrderID string
	Lines   []StockLine
	ActorID string
}

// StockCommitCommand converts holds into permanent deductions. Safe to repeat
// per order and product.
type StockCommitCommand struct {
	OrderID string
	Lines   []StockLine
	ActorID string
}

// StockAdjustCommand is a staff manual correction.
type StockAdjustCommand struct {
	ProductID string
	Delta     int
	Reason    string
	ActorID   string
}

// LowStockFilter selects products at or below the availability threshold.
type LowStockFilter struct {
	Threshold  int
	Pagination Pagination
}

// OrderService owns the order status state machine and its side effects.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, orderID string, actor Actor) (Order, error)
	List(ctx context.Context, customerID string, pager Pagination) (domain.CursorPage[Order], error)
	ListAll(ctx context.Context, filter OrderAdminFilter) (domain.CursorPage[Order], error)
	Transition(ctx context.Context, cmd OrderTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	MarkPaymentStatus(ctx context.Context, cmd MarkPaymentStatusCommand) (Order, error)
}

// CreateOrderItem is a requested line before catalog snapshotting.
type CreateOrderItem struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand creates an order in the pending state with all stock held.
type CreateOrderCommand struct {
	CustomerID    string
	Items         []CreateOrderItem
	Address       Address
	PaymentMethod PaymentMethod
	Discount      int64
	DeliveryFee   int64
}

// OrderTransitionCommand moves an order along the status graph.
type OrderTransitionCommand struct {
	OrderID string
	Status  OrderStatus
	Actor   Actor
	Note    string
}

// CancelOrderCommand cancels an order. Repeat cancels of a cancelled order
// return the current state unchanged.
type CancelOrderCommand struct {
	OrderID string
	Actor   Actor
	Reason  string
}

// MarkPaymentStatusCommand records the gateway outcome on the payment machine.
type MarkPaymentStatusCommand struct {
	OrderID string
	Status  PaymentStatus
	Gateway GatewayResult
	Actor   Actor
}

// OrderAdminFilter narrows the staff order listing.
type OrderAdminFilter struct {
	Statuses   []OrderStatus
	CustomerID string
	Pagination Pagination
}

// DeliveryService owns the delivery tracking sub-machine attached to an order.
type DeliveryService interface {
	Assign(ctx context.Context, cmd AssignDriverCommand) (DeliveryTracking, error)
	Advance(ctx context.Context, cmd AdvanceDeliveryCommand) (DeliveryTracking, error)
	Complete(ctx context.Context, cmd CompleteDeliveryCommand) (DeliveryTracking, error)
	Fail(ctx context.Context, cmd FailDeliveryCommand) (DeliveryTracking, error)
	UpdateLocation(ctx context.Context, cmd UpdateLocationCommand) error
	GetByOrder(ctx context.Context, orderID string) (DeliveryTracking, error)
	ListForDriver(ctx context.Context, driverID string, onlyOpen bool, pager Pagination) (domain.CursorPage[DeliveryTracking], error)
}

// AssignDriverCommand creates or re-targets the tracking record for an order.
type AssignDriverCommand struct {
	OrderID          string
	DriverID         string
	EstimatedArrival *time.Time
	Actor            Actor
}

// AdvanceDeliveryCommand moves the delivery one step along its status chain.
type AdvanceDeliveryCommand struct {
	TrackingID string
	Status     DeliveryStatus
	Location   *GeoPoint
	Note       string
	Actor      Actor
}

// CompleteDeliveryCommand finishes a delivery with proof of hand-over.
type CompleteDeliveryCommand struct {
	TrackingID string
	Proof      DeliveryProof
	Location   *GeoPoint
	Note       string
	Actor      Actor
}

// FailDeliveryCommand terminates a delivery without hand-over.
type FailDeliveryCommand struct {
	TrackingID string
	Reason     string
	Actor      Actor
}

// UpdateLocationCommand reports the driver position. Last write wins.
type UpdateLocationCommand struct {
	TrackingID string
	Location   GeoPoint
	Actor      Actor
}

// NotificationService writes and serves audience-scoped inbox records.
type NotificationService interface {
	Dispatch(ctx context.Context, cmd DispatchNotificationCommand) (Notification, error)
	List(ctx context.Context, actor Actor, onlyUnread bool, pager Pagination) (domain.CursorPage[Notification], error)
	UnreadCount(ctx context.Context, actor Actor) (int, error)
	MarkRead(ctx context.Context, actor Actor, notificationID string) error
	MarkAllRead(ctx context.Context, actor Actor) (int, error)
	Delete(ctx context.Context, actor Actor, notificationID string) error
	Clear(ctx context.Context, actor Actor) (int, error)
}

// DispatchNotificationCommand writes one inbox record for exactly one recipient.
type DispatchNotificationCommand struct {
	Target  domain.NotificationTarget
	Type    NotificationType
	Title   Text
	Message Text
	Link    string
}

// ActorResolver turns a bearer token into the per-request actor identity.
type ActorResolver interface {
	Resolve(ctx context.Context, token string) (Actor, error)
}
