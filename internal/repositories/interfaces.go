package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/lahm-market/api/internal/domain"
)

var (
	// ErrSessionNotFound reports an unknown bearer token.
	ErrSessionNotFound = errors.New("repositories: session not found")
	// ErrUserNotFound reports a missing staff or customer directory record.
	ErrUserNotFound = errors.New("repositories: user not found")
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Implementations carry the open transaction on the context so that repository calls made
// inside fn join it.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository owns order headers, line items and the append-only status history.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// UpdateStatus performs a compare-and-swap on the order status: the write
	// applies only when the stored status still equals update.PreviousStatus,
	// otherwise a conflict error is returned.
	UpdateStatus(ctx context.Context, update OrderStatusUpdate) (domain.Order, error)
	AppendHistory(ctx context.Context, orderID string, entry domain.StatusHistoryEntry) error
	ListByCustomer(ctx context.Context, customerID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderStatusUpdate carries the fields written alongside a status transition.
type OrderStatusUpdate struct {
	OrderID          string
	PreviousStatus   domain.OrderStatus
	Status           domain.OrderStatus
	PaymentStatus    *domain.PaymentStatus
	CancelReason     *string
	ConfirmedAt      *time.Time
	CancelledAt      *time.Time
	ActualDeliveryAt *time.Time
	Now              time.Time
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// StockRepository manages per-product stock rows and the movement ledger with
// transactional guarantees. All mutating calls lock the stock row for the
// duration of the enclosing transaction.
type StockRepository interface {
	Get(ctx context.Context, productID string) (domain.Stock, error)
	// Reserve conditionally increments the reserved quantity; it fails with an
	// insufficient-stock error when available < quantity at execution time.
	Reserve(ctx context.Context, req StockMutation) (domain.Stock, error)
	// Release decrements the reserved quantity, floored at zero.
	Release(ctx context.Context, req StockMutation) (domain.Stock, error)
	// Commit converts a reservation into a permanent deduction. Idempotent per
	// order+product: a repeat for an already committed pair is a no-op.
	Commit(ctx context.Context, req StockMutation) (domain.Stock, error)
	// Adjust applies a signed on-hand correction, never below the reserved count.
	Adjust(ctx context.Context, req StockMutation) (domain.Stock, error)
	ListLowStock(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Stock], error)
	ListMovements(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockMovement], error)
}

// StockMutation describes a single ledger operation against one product.
type StockMutation struct {
	MovementID string
	ProductID  string
	Quantity   int
	Reason     string
	OrderID    *string
	ActorID    *string
	Now        time.Time
}

// DeliveryRepository persists tracking records, their timelines and locations.
type DeliveryRepository interface {
	Insert(ctx context.Context, tracking domain.DeliveryTracking) error
	FindByID(ctx context.Context, trackingID string) (domain.DeliveryTracking, error)
	FindByOrder(ctx context.Context, orderID string) (domain.DeliveryTracking, error)
	// Reassign replaces the driver snapshot and resets the status to assigned
	// on an existing record, appending the provided timeline entry.
	Reassign(ctx context.Context, trackingID string, driver domain.DriverSnapshot, estimatedArrival *time.Time, entry domain.TimelineEntry, now time.Time) (domain.DeliveryTracking, error)
	// AdvanceStatus performs a compare-and-swap on the delivery status and
	// appends the timeline entry in the same write.
	AdvanceStatus(ctx context.Context, update DeliveryStatusUpdate) (domain.DeliveryTracking, error)
	// AppendTimeline records an entry without changing the status.
	AppendTimeline(ctx context.Context, trackingID string, entry domain.TimelineEntry, now time.Time) (domain.DeliveryTracking, error)
	// UpdateLocation overwrites the current location. Last write wins.
	UpdateLocation(ctx context.Context, trackingID string, loc domain.TrackedLocation) error
	ListByDriver(ctx context.Context, driverID string, onlyOpen bool, pager domain.Pagination) (domain.CursorPage[domain.DeliveryTracking], error)
}

// DeliveryStatusUpdate carries the fields written alongside a delivery transition.
type DeliveryStatusUpdate struct {
	TrackingID     string
	PreviousStatus domain.DeliveryStatus
	Status         domain.DeliveryStatus
	Entry          domain.TimelineEntry
	Proof          *domain.DeliveryProof
	ActualArrival  *time.Time
	Now            time.Time
}

// NotificationRepository persists audience-scoped inbox records.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	// FindByID returns the notification only when it belongs to the target.
	FindByID(ctx context.Context, target domain.NotificationTarget, id string) (domain.Notification, error)
	ListByTarget(ctx context.Context, target domain.NotificationTarget, onlyUnread bool, pager domain.Pagination) (domain.CursorPage[domain.Notification], error)
	CountUnread(ctx context.Context, target domain.NotificationTarget) (int, error)
	MarkRead(ctx context.Context, target domain.NotificationTarget, id string) error
	MarkAllRead(ctx context.Context, target domain.NotificationTarget) (int, error)
	Delete(ctx context.Context, target domain.NotificationTarget, id string) error
	Clear(ctx context.Context, target domain.NotificationTarget) (int, error)
}

// SessionStore resolves bearer tokens against the external session system.
type SessionStore interface {
	LookupStaffSession(ctx context.Context, token string) (domain.StaffSession, error)
	LookupCustomerSession(ctx context.Context, token string) (domain.CustomerSession, error)
}

// UserDirectory exposes read-only staff/driver profile lookups.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (domain.UserProfile, error)
	GetRole(ctx context.Context, userID string) (string, error)
}

// ProductCatalog exposes the read-only catalog projection used for line-item snapshotting.
type ProductCatalog interface {
	FindProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// CustomerDirectory exposes the customer profile fields embedded in driver notifications.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, customerID string) (domain.UserProfile, error)
}

// CounterRepository issues monotonic sequence numbers for human-readable identifiers.
type CounterRepository interface {
	Next(ctx context.Context, name string, step int) (int64, error)
}
