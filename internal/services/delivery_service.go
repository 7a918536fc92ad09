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
	// ErrDeliveryInvalidInput signals the caller provided invalid data.
	ErrDeliveryInvalidInput = errors.New("delivery: invalid input")
	// ErrDeliveryNotFound indicates the tracking record could not be located.
	ErrDeliveryNotFound = errors.New("delivery: not found")
	// ErrDeliveryInvalidTransition indicates the requested status skips a step
	// or moves backwards.
	ErrDeliveryInvalidTransition = errors.New("delivery: invalid status transition")
	// ErrDeliveryConflict indicates the tracking record changed underneath the caller.
	ErrDeliveryConflict = errors.New("delivery: conflict")
	// ErrDeliveryInvalidActor indicates the referenced user cannot act as a driver.
	ErrDeliveryInvalidActor = errors.New("delivery: invalid actor")
	// ErrDeliveryUnauthorized indicates the actor may not touch this tracking record.
	ErrDeliveryUnauthorized = errors.New("delivery: actor not permitted")
)

// driverRole is the staff role string that marks a user as a delivery driver.
const driverRole = "delivery"

// deliveryNext maps each delivery status to its single allowed successor.
// Failed is reachable from any non-terminal status and is handled separately.
var deliveryNext = map[domain.DeliveryStatus]domain.DeliveryStatus{
	domain.DeliveryStatusAssigned:  domain.DeliveryStatusPickedUp,
	domain.DeliveryStatusPickedUp:  domain.DeliveryStatusInTransit,
	domain.DeliveryStatusInTransit: domain.DeliveryStatusNearby,
	domain.DeliveryStatusNearby:    domain.DeliveryStatusDelivered,
}

// DeliveryServiceDeps bundles the collaborators required to construct a delivery service.
type DeliveryServiceDeps struct {
	Deliveries   repositories.DeliveryRepository
	Orders       OrderService
	Users        repositories.UserDirectory
	Customers    repositories.CustomerDirectory
	Notifier     NotificationService
	UnitOfWork   repositories.UnitOfWork
	StaffInboxID string
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type deliveryService struct {
	repo       repositories.DeliveryRepository
	orders     OrderService
	users      repositories.UserDirectory
	customers  repositories.CustomerDirectory
	notifier   NotificationService
	uow        repositories.UnitOfWork
	staffInbox string
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewDeliveryService wires dependencies into a concrete DeliveryService implementation.
func NewDeliveryService(deps DeliveryServiceDeps) (DeliveryService, error) {
	if deps.Deliveries == nil {
		return nil, errors.New("delivery service: delivery repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("delivery service: order service is required")
	}
	if deps.Users == nil {
		return nil, errors.New("delivery service: user directory is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("delivery service: customer directory is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("delivery service: notification service is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("delivery service: unit of work is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return "dlv_" + ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	staffInbox := strings.TrimSpace(deps.StaffInboxID)
	if staffInbox == "" {
		staffInbox = "staff-inbox"
	}

	return &deliveryService{
		repo:       deps.Deliveries,
		orders:     deps.Orders,
		users:      deps.Users,
		customers:  deps.Customers,
		notifier:   deps.Notifier,
		uow:        deps.UnitOfWork,
		staffInbox: staffInbox,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *deliveryService) Assign(ctx context.Context, cmd AssignDriverCommand) (DeliveryTracking, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return DeliveryTracking{}, fmt.Errorf("%w: order id is required", ErrDeliveryInvalidInput)
	}
	driverID := strings.TrimSpace(cmd.DriverID)
	if driverID == "" {
		return DeliveryTracking{}, fmt.Errorf("%w: driver id is required", ErrDeliveryInvalidInput)
	}

	driver, err := s.resolveDriver(ctx, driverID)
	if err != nil {
		return DeliveryTracking{}, err
	}

	order, err := s.orders.Get(ctx, orderID, cmd.Actor)
	if err != nil {
		return DeliveryTracking{}, err
	}

	now := s.clock()
	entry := domain.TimelineEntry{
		Status:    domain.DeliveryStatusAssigned,
		CreatedAt: now,
	}

	var tracking domain.DeliveryTracking
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.FindByOrder(ctx, orderID)
		switch {
		case err == nil:
			// Re-assignment reuses the record instead of creating a second one.
			tracking, err = s.repo.Reassign(ctx, existing.ID, driver, cmd.EstimatedArrival, entry, now)
			if err != nil {
				return s.mapRepositoryError(err)
			}
		case isDeliveryNotFound(err):
			tracking = domain.DeliveryTracking{
				ID:               s.newID(),
				OrderID:          orderID,
				Driver:           driver,
				Status:           domain.DeliveryStatusAssigned,
				Timeline:         []domain.TimelineEntry{entry},
				EstimatedArrival: cmd.EstimatedArrival,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := s.repo.Insert(ctx, tracking); err != nil {
				return s.mapRepositoryError(err)
			}
		default:
			return s.mapRepositoryError(err)
		}

		if err := s.mirrorOrderStatus(ctx, order, domain.OrderStatusReadyForPickup, cmd.Actor); err != nil {
			return err
		}

		return s.notifyAssignment(ctx, order, driver, tracking)
	})
	if err != nil {
		return DeliveryTracking{}, err
	}

	s.logger(ctx, "delivery.assign", map[string]any{
		"trackingId": tracking.ID,
		"orderId":    orderID,
		"driverId":   driverID,
	})
	return tracking, nil
}

func (s *deliveryService) Advance(ctx context.Context, cmd AdvanceDeliveryCommand) (DeliveryTracking, error) {
	trackingID := strings.TrimSpace(cmd.TrackingID)
	if trackingID == "" {
		return DeliveryTracking{}, fmt.Errorf("%w: tracking id is required", ErrDeliveryInvalidInput)
	}
	switch cmd.Status {
	case domain.DeliveryStatusPickedUp, domain.DeliveryStatusInTransit, domain.DeliveryStatusNearby:
	case domain.DeliveryStatusDelivered:
		return DeliveryTracking{}, fmt.Errorf("%w: delivery completion requires proof", ErrDeliveryInvalidInput)
	case domain.DeliveryStatusFailed:
		return DeliveryTracking{}, fmt.Errorf("%w: use the failure operation to terminate a delivery", ErrDeliveryInvalidInput)
	default:
		return DeliveryTracking{}, fmt.Errorf("%w: unsupported status %q", ErrDeliveryInvalidInput, cmd.Status)
	}

	tracking, err := s.loadForActor(ctx, trackingID, cmd.Actor)
	if err != nil {
		return DeliveryTracking{}, err
	}

	now := s.clock()
	entry := timelineEntry(cmd.Status, cmd.Location, cmd.Note, now)

	// Repeating the current leg is not a transition; the report still lands
	// on the timeline.
	if cmd.Status == tracking.Status {
		updated, err := s.repo.AppendTimeline(ctx, trackingID, entry, now)
		if err != nil {
			return DeliveryTracking{}, s.mapRepositoryError(err)
		}
		s.logger(ctx, "delivery.advance", map[string]any{
			"trackingId": trackingID,
			"from":       string(tracking.Status),
			"to":         string(cmd.Status),
		})
		return updated, nil
	}

	if deliveryNext[tracking.Status] != cmd.Status {
		return DeliveryTracking{}, fmt.Errorf("%w: %s to %s", ErrDeliveryInvalidTransition, tracking.Status, cmd.Status)
	}

	var updated domain.DeliveryTracking
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		updated, err = s.repo.AdvanceStatus(ctx, repositories.DeliveryStatusUpdate{
			TrackingID:     trackingID,
			PreviousStatus: tracking.Status,
			Status:         cmd.Status,
			Entry:          entry,
			Now:            now,
		})
		if err != nil {
			return s.mapRepositoryError(err)
		}

		// Pickup mirrors the parent order onto the road.
		if cmd.Status == domain.DeliveryStatusPickedUp {
			order, err := s.orders.Get(ctx, tracking.OrderID, cmd.Actor)
			if err != nil {
				return err
			}
			if err := s.mirrorOrderStatus(ctx, order, domain.OrderStatusOutForDelivery, cmd.Actor); err != nil {
				return err
			}
		}

		return s.notifyProgress(ctx, updated, cmd.Status, cmd.Note)
	})
	if err != nil {
		return DeliveryTracking{}, err
	}

	s.logger(ctx, "delivery.advance", map[string]any{
		"trackingId": trackingID,
		"from":       string(tracking.Status),
		"to":         string(cmd.Status),
	})
	return updated, nil
}

func (s *deliveryService) Complete(ctx context.Context, cmd CompleteDeliveryCommand) (DeliveryTracking, error) {
	trackingID := strings.TrimSpace(cmd.TrackingID)
	if trackingID == "" {
		return DeliveryTracking{}, fmt.Errorf("%w: tracking id is required", ErrDeliveryInvalidInput)
	}
	if !cmd.Proof.Valid() {
		return DeliveryTracking{}, fmt.Errorf("%w: proof requires a signature or a photo", ErrDeliveryInvalidInput)
	}

	tracking, err := s.loadForActor(ctx, trackingID, cmd.Actor)
	if err != nil {
		return DeliveryTracking{}, err
	}
	if deliveryNext[tracking.Status] != domain.DeliveryStatusDelivered {
		return DeliveryTracking{}, fmt.Errorf("%w: %s to %s", ErrDeliveryInvalidTransition, tracking.Status, domain.DeliveryStatusDelivered)
	}

	now := s.clock()
	proof := cmd.Proof
	entry := timelineEntry(domain.DeliveryStatusDelivered, cmd.Location, cmd.Note, now)

	var updated domain.DeliveryTracking
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		updated, err = s.repo.AdvanceStatus(ctx, repositories.DeliveryStatusUpdate{
			TrackingID:     trackingID,
			PreviousStatus: tracking.Status,
			Status:         domain.DeliveryStatusDelivered,
			Entry:          entry,
			Proof:          &proof,
			ActualArrival:  &now,
			Now:            now,
		})
		if err != nil {
			return s.mapRepositoryError(err)
		}

		// The parent order transition commits the stock reservation and
		// notifies the customer, driver note included.
		_, err = s.orders.Transition(ctx, OrderTransitionCommand{
			OrderID: tracking.OrderID,
			Status:  domain.OrderStatusDelivered,
			Actor:   cmd.Actor,
			Note:    cmd.Note,
		})
		return err
	})
	if err != nil {
		return DeliveryTracking{}, err
	}

	s.logger(ctx, "delivery.complete", map[string]any{
		"trackingId": trackingID,
		"orderId":    tracking.OrderID,
	})
	return updated, nil
}

func (s *deliveryService) Fail(ctx context.Context, cmd FailDeliveryCommand) (DeliveryTracking, error) {
	trackingID := strings.TrimSpace(cmd.TrackingID)
	if trackingID == "" {
		return DeliveryTracking{}, fmt.Errorf("%w: tracking id is required", ErrDeliveryInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return DeliveryTracking{}, fmt.Errorf("%w: failure reason is required", ErrDeliveryInvalidInput)
	}

	tracking, err := s.loadForActor(ctx, trackingID, cmd.Actor)
	if err != nil {
		return DeliveryTracking{}, err
	}
	if tracking.Status.Terminal() {
		return DeliveryTracking{}, fmt.Errorf("%w: %s to %s", ErrDeliveryInvalidTransition, tracking.Status, domain.DeliveryStatusFailed)
	}

	now := s.clock()
	entry := timelineEntry(domain.DeliveryStatusFailed, nil, reason, now)

	var updated domain.DeliveryTracking
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		updated, err = s.repo.AdvanceStatus(ctx, repositories.DeliveryStatusUpdate{
			TrackingID:     trackingID,
			PreviousStatus: tracking.Status,
			Status:         domain.DeliveryStatusFailed,
			Entry:          entry,
			Now:            now,
		})
		if err != nil {
			return s.mapRepositoryError(err)
		}

		return s.dispatch(ctx, DispatchNotificationCommand{
			Target: domain.StaffTarget(s.staffInbox),
			Type:   domain.NotificationDeliveryFailed,
			Title:  domain.Text{EN: "Delivery failed", AR: "فشل التوصيل"},
			Message: domain.Text{
				EN: fmt.Sprintf("Delivery for order %s failed: %s", tracking.OrderID, reason),
				AR: fmt.Sprintf("فشل توصيل الطلب %s: %s", tracking.OrderID, reason),
			},
			Link: "/admin/orders/" + tracking.OrderID,
		})
	})
	if err != nil {
		return DeliveryTracking{}, err
	}

	s.logger(ctx, "delivery.fail", map[string]any{
		"trackingId": trackingID,
		"orderId":    tracking.OrderID,
		"reason":     reason,
	})
	return updated, nil
}

func (s *deliveryService) UpdateLocation(ctx context.Context, cmd UpdateLocationCommand) error {
	trackingID := strings.TrimSpace(cmd.TrackingID)
	if trackingID == "" {
		return fmt.Errorf("%w: tracking id is required", ErrDeliveryInvalidInput)
	}
	if cmd.Location.Lat < -90 || cmd.Location.Lat > 90 || cmd.Location.Lng < -180 || cmd.Location.Lng > 180 {
		return fmt.Errorf("%w: location out of range", ErrDeliveryInvalidInput)
	}

	tracking, err := s.loadForActor(ctx, trackingID, cmd.Actor)
	if err != nil {
		return err
	}
	if tracking.Status.Terminal() {
		return fmt.Errorf("%w: delivery is %s", ErrDeliveryInvalidTransition, tracking.Status)
	}

	err = s.repo.UpdateLocation(ctx, trackingID, domain.TrackedLocation{
		GeoPoint:   cmd.Location,
		ReportedAt: s.clock(),
	})
	if err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *deliveryService) GetByOrder(ctx context.Context, orderID string) (DeliveryTracking, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return DeliveryTracking{}, fmt.Errorf("%w: order id is required", ErrDeliveryInvalidInput)
	}

	tracking, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		return DeliveryTracking{}, s.mapRepositoryError(err)
	}
	return tracking, nil
}

func (s *deliveryService) ListForDriver(ctx context.Context, driverID string, onlyOpen bool, pager Pagination) (domain.CursorPage[DeliveryTracking], error) {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return domain.CursorPage[DeliveryTracking]{}, fmt.Errorf("%w: driver id is required", ErrDeliveryInvalidInput)
	}

	page, err := s.repo.ListByDriver(ctx, driverID, onlyOpen, pager)
	if err != nil {
		return domain.CursorPage[DeliveryTracking]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// resolveDriver validates the user exists, is active and carries the delivery role.
func (s *deliveryService) resolveDriver(ctx context.Context, driverID string) (domain.DriverSnapshot, error) {
	role, err := s.users.GetRole(ctx, driverID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return domain.DriverSnapshot{}, fmt.Errorf("%w: user %s not found", ErrDeliveryInvalidActor, driverID)
		}
		return domain.DriverSnapshot{}, fmt.Errorf("delivery: driver lookup: %w", err)
	}
	if !strings.EqualFold(role, driverRole) {
		return domain.DriverSnapshot{}, fmt.Errorf("%w: user %s is not a driver", ErrDeliveryInvalidActor, driverID)
	}
	profile, err := s.users.GetUser(ctx, driverID)
	if err != nil {
		return domain.DriverSnapshot{}, fmt.Errorf("delivery: driver lookup: %w", err)
	}
	if !profile.Active {
		return domain.DriverSnapshot{}, fmt.Errorf("%w: user %s is inactive", ErrDeliveryInvalidActor, driverID)
	}
	return domain.DriverSnapshot{ID: profile.ID, Name: profile.Name, Mobile: profile.Mobile}, nil
}

// loadForActor fetches the tracking record and verifies driver ownership.
// Staff actors may touch any record; a driver only their own.
func (s *deliveryService) loadForActor(ctx context.Context, trackingID string, actor Actor) (domain.DeliveryTracking, error) {
	tracking, err := s.repo.FindByID(ctx, trackingID)
	if err != nil {
		return domain.DeliveryTracking{}, s.mapRepositoryError(err)
	}
	if actor.Kind == domain.ActorDriver && tracking.Driver.ID != actor.ID {
		return domain.DeliveryTracking{}, fmt.Errorf("%w: delivery %s is assigned to another driver", ErrDeliveryUnauthorized, trackingID)
	}
	if actor.Kind == domain.ActorCustomer {
		return domain.DeliveryTracking{}, fmt.Errorf("%w: customers cannot modify deliveries", ErrDeliveryUnauthorized)
	}
	return tracking, nil
}

// orderMirrorPath is the happy-path sequence a delivery drags its parent
// order along. Cancelled and refunded orders are off this path.
var orderMirrorPath = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
	domain.OrderStatusProcessing,
	domain.OrderStatusReadyForPickup,
	domain.OrderStatusOutForDelivery,
	domain.OrderStatusDelivered,
}

func mirrorRank(status domain.OrderStatus) int {
	for i, s := range orderMirrorPath {
		if s == status {
			return i
		}
	}
	return -1
}

// mirrorOrderStatus fast-forwards the parent order through every
// intermediate status up to target. Orders already at or past the target
// are left alone.
func (s *deliveryService) mirrorOrderStatus(ctx context.Context, order Order, target domain.OrderStatus, actor Actor) error {
	cur, tgt := mirrorRank(order.Status), mirrorRank(target)
	if cur < 0 {
		return fmt.Errorf("%w: order %s is %s", ErrDeliveryConflict, order.ID, order.Status)
	}
	if cur >= tgt {
		return nil
	}
	for _, next := range orderMirrorPath[cur+1 : tgt+1] {
		if _, err := s.orders.Transition(ctx, OrderTransitionCommand{
			OrderID: order.ID,
			Status:  next,
			Actor:   actor,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *deliveryService) notifyAssignment(ctx context.Context, order Order, driver domain.DriverSnapshot, tracking domain.DeliveryTracking) error {
	customer, err := s.customers.GetCustomer(ctx, order.CustomerID)
	if err != nil {
		return fmt.Errorf("delivery: customer lookup: %w", err)
	}

	if err := s.dispatch(ctx, DispatchNotificationCommand{
		Target: domain.CustomerTarget(order.CustomerID),
		Type:   domain.NotificationDriverAssigned,
		Title:  domain.Text{EN: "Driver assigned", AR: "تم تعيين السائق"},
		Message: domain.Text{
			EN: fmt.Sprintf("%s (%s) will deliver your order %s.", driver.Name, driver.Mobile, order.OrderNumber),
			AR: fmt.Sprintf("سيقوم %s (%s) بتوصيل طلبك %s.", driver.Name, driver.Mobile, order.OrderNumber),
		},
		Link: "/orders/" + order.ID,
	}); err != nil {
		return err
	}

	return s.dispatch(ctx, DispatchNotificationCommand{
		Target: domain.StaffTarget(driver.ID),
		Type:   domain.NotificationNewDelivery,
		Title:  domain.Text{EN: "New delivery", AR: "توصيلة جديدة"},
		Message: domain.Text{
			EN: fmt.Sprintf("Order %s for %s at %s, %s.", order.OrderNumber, customer.Name, order.DeliveryAddress.Line1, order.DeliveryAddress.City),
			AR: fmt.Sprintf("الطلب %s للعميل %s في %s، %s.", order.OrderNumber, customer.Name, order.DeliveryAddress.Line1, order.DeliveryAddress.City),
		},
		Link: "/delivery/" + tracking.ID,
	})
}

func (s *deliveryService) notifyProgress(ctx context.Context, tracking domain.DeliveryTracking, status domain.DeliveryStatus, note string) error {
	order, err := s.orders.Get(ctx, tracking.OrderID, Actor{Kind: domain.ActorStaff})
	if err != nil {
		return err
	}

	var message domain.Text
	switch status {
	case domain.DeliveryStatusPickedUp:
		message = domain.Text{
			EN: fmt.Sprintf("The driver picked up your order %s.", order.OrderNumber),
			AR: fmt.Sprintf("استلم السائق طلبك %s.", order.OrderNumber),
		}
	case domain.DeliveryStatusInTransit:
		message = domain.Text{
			EN: fmt.Sprintf("Your order %s is on its way.", order.OrderNumber),
			AR: fmt.Sprintf("طلبك %s في الطريق.", order.OrderNumber),
		}
	case domain.DeliveryStatusNearby:
		message = domain.Text{
			EN: fmt.Sprintf("The driver is almost there with your order %s.", order.OrderNumber),
			AR: fmt.Sprintf("السائق على وشك الوصول بطلبك %s.", order.OrderNumber),
		}
	default:
		return nil
	}
	if note = strings.TrimSpace(note); note != "" {
		message.EN = message.EN + " " + note
	}

	return s.dispatch(ctx, DispatchNotificationCommand{
		Target:  domain.CustomerTarget(order.CustomerID),
		Type:    domain.NotificationDeliveryUpdate,
		Title:   domain.Text{EN: "Delivery update", AR: "تحديث التوصيل"},
		Message: message,
		Link:    "/orders/" + order.ID,
	})
}

func (s *deliveryService) dispatch(ctx context.Context, cmd DispatchNotificationCommand) error {
	if _, err := s.notifier.Dispatch(ctx, cmd); err != nil {
		return fmt.Errorf("delivery: dispatch notification: %w", err)
	}
	return nil
}

func (s *deliveryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var deliveryErr *repositories.DeliveryError
	if errors.As(err, &deliveryErr) {
		switch deliveryErr.Code {
		case repositories.DeliveryErrorNotFound:
			return fmt.Errorf("%w: %s", ErrDeliveryNotFound, deliveryErr.Message)
		case repositories.DeliveryErrorConflict:
			return fmt.Errorf("%w: %s", ErrDeliveryConflict, deliveryErr.Message)
		}
	}

	return err
}

func isDeliveryNotFound(err error) bool {
	var deliveryErr *repositories.DeliveryError
	return errors.As(err, &deliveryErr) && deliveryErr.Code == repositories.DeliveryErrorNotFound
}

func timelineEntry(status domain.DeliveryStatus, loc *domain.GeoPoint, note string, now time.Time) domain.TimelineEntry {
	entry := domain.TimelineEntry{Status: status, Location: loc, CreatedAt: now}
	if note = strings.TrimSpace(note); note != "" {
		entry.Note = &note
	}
	return entry
}
