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
	// ErrNotificationInvalidInput signals the caller provided invalid data.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationNotFound indicates no record matches the id within the actor's inbox.
	ErrNotificationNotFound = errors.New("notification: not found")
	// ErrNotificationInvalidTarget indicates the target does not name exactly one recipient.
	ErrNotificationInvalidTarget = errors.New("notification: invalid target")
)

// NotificationServiceDeps bundles the collaborators required to construct a notification service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	repo   repositories.NotificationRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a concrete NotificationService implementation.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return "ntf_" + ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationService{
		repo: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *notificationService) Dispatch(ctx context.Context, cmd DispatchNotificationCommand) (Notification, error) {
	if !cmd.Target.Valid() {
		return Notification{}, fmt.Errorf("%w: exactly one recipient is required", ErrNotificationInvalidTarget)
	}
	if cmd.Type == "" {
		return Notification{}, fmt.Errorf("%w: type is required", ErrNotificationInvalidInput)
	}
	if cmd.Title.EN == "" && cmd.Title.AR == "" {
		return Notification{}, fmt.Errorf("%w: title is required", ErrNotificationInvalidInput)
	}

	notification := domain.Notification{
		ID:        s.newID(),
		Target:    cmd.Target,
		Type:      cmd.Type,
		Title:     cmd.Title,
		Message:   cmd.Message,
		Unread:    true,
		CreatedAt: s.clock(),
	}
	if link := strings.TrimSpace(cmd.Link); link != "" {
		notification.Link = &link
	}

	if err := s.repo.Insert(ctx, notification); err != nil {
		return Notification{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "notification.dispatch", map[string]any{
		"notificationId": notification.ID,
		"type":           string(cmd.Type),
	})
	return notification, nil
}

func (s *notificationService) List(ctx context.Context, actor Actor, onlyUnread bool, pager Pagination) (domain.CursorPage[Notification], error) {
	target, err := inboxFor(actor)
	if err != nil {
		return domain.CursorPage[Notification]{}, err
	}

	page, err := s.repo.ListByTarget(ctx, target, onlyUnread, pager)
	if err != nil {
		return domain.CursorPage[Notification]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, actor Actor) (int, error) {
	target, err := inboxFor(actor)
	if err != nil {
		return 0, err
	}

	count, err := s.repo.CountUnread(ctx, target)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return count, nil
}

func (s *notificationService) MarkRead(ctx context.Context, actor Actor, notificationID string) error {
	target, err := inboxFor(actor)
	if err != nil {
		return err
	}
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return fmt.Errorf("%w: notification id is required", ErrNotificationInvalidInput)
	}

	if err := s.repo.MarkRead(ctx, target, notificationID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, actor Actor) (int, error) {
	target, err := inboxFor(actor)
	if err != nil {
		return 0, err
	}

	count, err := s.repo.MarkAllRead(ctx, target)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return count, nil
}

func (s *notificationService) Delete(ctx context.Context, actor Actor, notificationID string) error {
	target, err := inboxFor(actor)
	if err != nil {
		return err
	}
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return fmt.Errorf("%w: notification id is required", ErrNotificationInvalidInput)
	}

	if err := s.repo.Delete(ctx, target, notificationID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *notificationService) Clear(ctx context.Context, actor Actor) (int, error) {
	target, err := inboxFor(actor)
	if err != nil {
		return 0, err
	}

	count, err := s.repo.Clear(ctx, target)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return count, nil
}

// inboxFor derives the actor's own inbox target. Staff admins share one inbox
// through the NotifyID resolved at authentication time.
func inboxFor(actor Actor) (domain.NotificationTarget, error) {
	target := domain.TargetFor(actor)
	if !target.Valid() {
		return domain.NotificationTarget{}, fmt.Errorf("%w: actor has no inbox", ErrNotificationInvalidTarget)
	}
	return target, nil
}

func (s *notificationService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var notificationErr *repositories.NotificationError
	if errors.As(err, &notificationErr) {
		switch notificationErr.Code {
		case repositories.NotificationErrorNotFound:
			return fmt.Errorf("%w: %s", ErrNotificationNotFound, notificationErr.Message)
		case repositories.NotificationErrorInvalidTarget:
			return fmt.Errorf("%w: %s", ErrNotificationInvalidTarget, notificationErr.Message)
		}
	}

	return err
}
