package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Text carries a bilingual English/Arabic string pair rendered by clients.
type Text struct {
	EN string
	AR string
}

// In returns the variant matching the BCP-47 base language, defaulting to English.
func (t Text) In(lang string) string {
	if lang == "ar" && t.AR != "" {
		return t.AR
	}
	if t.EN != "" {
		return t.EN
	}
	return t.AR
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been placed and awaits confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates staff accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusReadyForPickup indicates the order awaits driver pickup.
	OrderStatusReadyForPickup OrderStatus = "ready_for_pickup"
	// OrderStatusOutForDelivery indicates a driver is en route to the customer.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before fulfilment. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates a captured payment was returned. Terminal.
	OrderStatusRefunded OrderStatus = "refunded"
)

// PaymentStatus enumerates payment lifecycle states tracked alongside the order status.
type PaymentStatus string

const (
	// PaymentStatusPending indicates no gateway outcome has been recorded yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusAuthorized indicates funds are held but not captured.
	PaymentStatusAuthorized PaymentStatus = "authorized"
	// PaymentStatusCaptured indicates funds have been collected.
	PaymentStatusCaptured PaymentStatus = "captured"
	// PaymentStatusFailed indicates the gateway rejected the payment.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the full amount was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
	// PaymentStatusPartiallyRefunded indicates part of the amount was returned.
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// PaymentMethod enumerates supported payment instruments.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery; captured when the order is delivered.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodCard is an online card payment handled by the external gateway.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodWallet draws from the customer's stored wallet balance.
	PaymentMethodWallet PaymentMethod = "wallet"
)

// GatewayResult is the opaque outcome reported by the external payment gateway.
type GatewayResult struct {
	Captured      bool
	TransactionID string
}

// Order captures order headers returned to handlers/services.
type Order struct {
	ID              string
	OrderNumber     string
	CustomerID      string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   PaymentMethod
	Totals          OrderTotals
	Items           []OrderLineItem
	DeliveryAddress Address
	StatusHistory   []StatusHistoryEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
	ActualDeliveryAt *time.Time
	CancelReason    *string
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
// Total must reconcile as Subtotal - Discount + DeliveryFee + VAT.
type OrderTotals struct {
	Subtotal    int64
	Discount    int64
	DeliveryFee int64
	VAT         int64
	Total       int64
}

// Reconciles reports whether the stored total matches the component sum within tolerance.
func (t OrderTotals) Reconciles() bool {
	diff := t.Total - (t.Subtotal - t.Discount + t.DeliveryFee + t.VAT)
	return diff >= -1 && diff <= 1
}

// OrderLineItem snapshots catalog data at the time of order creation. Immutable.
type OrderLineItem struct {
	ProductID string
	Name      Text
	UnitPrice int64
	Quantity  int
	Total     int64
}

// StatusHistoryEntry records one applied order status transition. Append-only.
type StatusHistoryEntry struct {
	Status    OrderStatus
	ActorID   string
	ActorKind ActorKind
	Note      *string
	CreatedAt time.Time
}

// Address is the delivery address snapshot stored on the order.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	District   *string
	PostalCode string
	Phone      string
	Location   *GeoPoint
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64
	Lng float64
}

// Stock represents current stock metrics tracked per product.
// Available is always Quantity - Reserved; both invariants are enforced on write.
type Stock struct {
	ProductID        string
	Quantity         int
	Reserved         int
	Available        int
	ReorderThreshold int
	UpdatedAt        time.Time
}

// StockMovementType enumerates the causes of a stock quantity change.
type StockMovementType string

const (
	// StockMovementIn records goods received into stock.
	StockMovementIn StockMovementType = "in"
	// StockMovementOut records a committed deduction on fulfilment.
	StockMovementOut StockMovementType = "out"
	// StockMovementAdjustment records a manual staff correction.
	StockMovementAdjustment StockMovementType = "adjustment"
	// StockMovementReserved records a provisional hold for an open order.
	StockMovementReserved StockMovementType = "reserved"
	// StockMovementReleased records a hold returned to availability.
	StockMovementReleased StockMovementType = "released"
)

// StockMovement is one immutable entry in the append-only stock audit trail.
type StockMovement struct {
	ID           string
	ProductID    string
	Type         StockMovementType
	Quantity     int
	PrevQuantity int
	NewQuantity  int
	Reason       string
	OrderID      *string
	ActorID      *string
	CreatedAt    time.Time
}

// DeliveryStatus enumerates the delivery tracking sub-machine states.
type DeliveryStatus string

const (
	// DeliveryStatusAssigned indicates a driver has been assigned.
	DeliveryStatusAssigned DeliveryStatus = "assigned"
	// DeliveryStatusPickedUp indicates the driver collected the order.
	DeliveryStatusPickedUp DeliveryStatus = "picked_up"
	// DeliveryStatusInTransit indicates the driver is on the way.
	DeliveryStatusInTransit DeliveryStatus = "in_transit"
	// DeliveryStatusNearby indicates the driver is close to the destination.
	DeliveryStatusNearby DeliveryStatus = "nearby"
	// DeliveryStatusDelivered indicates the hand-off completed. Terminal.
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	// DeliveryStatusFailed indicates the delivery could not be completed. Terminal.
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// Terminal reports whether no further delivery transition is defined from s.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed
}

// DeliveryTracking is the one-to-one tracking record created when a driver is assigned.
type DeliveryTracking struct {
	ID               string
	OrderID          string
	Driver           DriverSnapshot
	Status           DeliveryStatus
	CurrentLocation  *TrackedLocation
	Timeline         []TimelineEntry
	Proof            *DeliveryProof
	EstimatedArrival *time.Time
	ActualArrival    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DriverSnapshot stores the assigned driver's identity at assignment time.
type DriverSnapshot struct {
	ID     string
	Name   string
	Mobile string
}

// TrackedLocation is the last reported driver position. Last write wins.
type TrackedLocation struct {
	GeoPoint
	ReportedAt time.Time
}

// TimelineEntry is one event in the append-only delivery timeline.
type TimelineEntry struct {
	Status    DeliveryStatus
	Location  *GeoPoint
	Note      *string
	CreatedAt time.Time
}

// DeliveryProof captures evidence recorded when a delivery completes.
// At least one of Signature or PhotoURL must be present.
type DeliveryProof struct {
	Signature *string
	PhotoURL  *string
	Note      *string
}

// Valid reports whether the proof carries at least one evidence field.
func (p DeliveryProof) Valid() bool {
	return (p.Signature != nil && *p.Signature != "") || (p.PhotoURL != nil && *p.PhotoURL != "")
}

// ActorKind enumerates authenticated principal categories.
type ActorKind string

const (
	// ActorCustomer is a storefront customer.
	ActorCustomer ActorKind = "customer"
	// ActorStaff is a back-office user.
	ActorStaff ActorKind = "staff"
	// ActorDriver is a staff user with the delivery role.
	ActorDriver ActorKind = "driver"
)

// Actor is the transient per-request resolution of a bearer token.
// For staff admins, NotifyID carries the shared admin inbox identity;
// otherwise it equals ID.
type Actor struct {
	Kind     ActorKind
	ID       string
	Role     string
	NotifyID string
}

// NotificationType tags notifications for client-side rendering and deep links.
type NotificationType string

const (
	// NotificationOrderPlaced is sent to staff when a new order arrives.
	NotificationOrderPlaced NotificationType = "order_placed"
	// NotificationOrderStatus is sent to the customer on each status change.
	NotificationOrderStatus NotificationType = "order_status"
	// NotificationDriverAssigned is sent to the customer when a driver is assigned.
	NotificationDriverAssigned NotificationType = "driver_assigned"
	// NotificationNewDelivery is sent to the driver on assignment.
	NotificationNewDelivery NotificationType = "new_delivery"
	// NotificationDeliveryUpdate is sent to the customer as the delivery progresses.
	NotificationDeliveryUpdate NotificationType = "delivery_update"
	// NotificationDeliveryFailed is sent to staff when a delivery fails.
	NotificationDeliveryFailed NotificationType = "delivery_failed"
	// NotificationStockLow is sent to staff when stock crosses its reorder threshold.
	NotificationStockLow NotificationType = "stock_low"
)

// NotificationTarget is the audience of a notification: exactly one of a staff
// user or a customer. The zero value is invalid, which keeps the
// "exactly one" invariant unrepresentable-to-violate outside this package.
type NotificationTarget struct {
	staffID    string
	customerID string
}

// StaffTarget addresses a notification to a staff inbox.
func StaffTarget(staffID string) NotificationTarget {
	return NotificationTarget{staffID: staffID}
}

// CustomerTarget addresses a notification to a customer inbox.
func CustomerTarget(customerID string) NotificationTarget {
	return NotificationTarget{customerID: customerID}
}

// StaffID returns the staff recipient and whether the target is staff-scoped.
func (t NotificationTarget) StaffID() (string, bool) {
	return t.staffID, t.staffID != ""
}

// CustomerID returns the customer recipient and whether the target is customer-scoped.
func (t NotificationTarget) CustomerID() (string, bool) {
	return t.customerID, t.customerID != ""
}

// Valid reports whether exactly one recipient is set.
func (t NotificationTarget) Valid() bool {
	return (t.staffID != "") != (t.customerID != "")
}

// TargetFor builds the inbox target owned by the given actor.
func TargetFor(actor Actor) NotificationTarget {
	if actor.Kind == ActorCustomer {
		return CustomerTarget(actor.ID)
	}
	return StaffTarget(actor.NotifyID)
}

// Notification is an audience-scoped in-app inbox record.
type Notification struct {
	ID        string
	Target    NotificationTarget
	Type      NotificationType
	Title     Text
	Message   Text
	Link      *string
	Unread    bool
	CreatedAt time.Time
}

// Product is the read-only catalog projection consumed at order creation.
type Product struct {
	ID        string
	Name      Text
	UnitPrice int64
	VATRate   int
	Active    bool
}

// UserProfile is the directory projection used for role checks and driver snapshots.
type UserProfile struct {
	ID     string
	Name   string
	Mobile string
	Role   string
	Active bool
}

// StaffSession is the resolved staff bearer-token session.
type StaffSession struct {
	UserID    string
	ExpiresAt time.Time
}

// CustomerSession is the resolved customer bearer-token session.
type CustomerSession struct {
	CustomerID string
	ExpiresAt  time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
