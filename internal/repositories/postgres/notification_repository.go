package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/repositories"
)

// NotificationRepository implements repositories.NotificationRepository on
// Postgres. Every read and write is scoped to a single inbox target so one
// audience can never see or mutate another audience's records.
type NotificationRepository struct {
	provider *Provider
}

// NewNotificationRepository constructs a notification repository bound to the provider.
func NewNotificationRepository(provider *Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("postgres: notification repository requires a provider")
	}
	return &NotificationRepository{provider: provider}, nil
}

// targetColumn returns the recipient column and value for the target.
func targetColumn(target domain.NotificationTarget) (string, string, error) {
	if staffID, ok := target.StaffID(); ok {
		return "staff_user_id", staffID, nil
	}
	if customerID, ok := target.CustomerID(); ok {
		return "customer_id", customerID, nil
	}
	return "", "", repositories.NewNotificationError(repositories.NotificationErrorInvalidTarget, "target has no recipient", nil)
}

func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if !notification.Target.Valid() {
		return repositories.NewNotificationError(repositories.NotificationErrorInvalidTarget, "target must name exactly one recipient", nil)
	}
	q := r.provider.querier(ctx)

	var staffID, customerID *string
	if id, ok := notification.Target.StaffID(); ok {
		staffID = &id
	}
	if id, ok := notification.Target.CustomerID(); ok {
		customerID = &id
	}

	_, err := q.Exec(ctx, `
		INSERT INTO notifications (
			id, staff_user_id, customer_id, type, title_en, title_ar,
			message_en, message_ar, link, unread, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		notification.ID, staffID, customerID, string(notification.Type),
		notification.Title.EN, notification.Title.AR,
		notification.Message.EN, notification.Message.AR,
		notification.Link, notification.Unread, notification.CreatedAt)
	if err != nil {
		return repositories.NewNotificationError(repositories.NotificationErrorUnknown, "insert notification", err)
	}
	return nil
}

const notificationColumns = `
	id, staff_user_id, customer_id, type, title_en, title_ar,
	message_en, message_ar, link, unread, created_at`

func (r *NotificationRepository) FindByID(ctx context.Context, target domain.NotificationTarget, id string) (domain.Notification, error) {
	column, value, err := targetColumn(target)
	if err != nil {
		return domain.Notification{}, err
	}
	q := r.provider.querier(ctx)

	row := q.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1 AND `+column+` = $2`, id, value)
	notification, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Notification{}, repositories.NewNotificationError(repositories.NotificationErrorNotFound, fmt.Sprintf("notification %s not found", id), err)
		}
		return domain.Notification{}, repositories.NewNotificationError(repositories.NotificationErrorUnknown, "find notification", err)
	}
	return notification, nil
}

func (r *NotificationRepository) ListByTarget(ctx context.Context, target domain.NotificationTarget, onlyUnread bool, pager domain.Pagination) (domain.CursorPage[domain.Notification], error) {
	column, value, err := targetColumn(target)
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, err
	}
	q := r.provider.querier(ctx)
	limit := normalisePageSize(pager.PageSize)

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + column + ` = $1`
	args := []any{value}
	if onlyUnread {
		query += ` AND unread`
	}
	if pager.PageToken != "" {
		args = append(args, pager.PageToken)
		query += fmt.Sprintf(` AND id < $%d`, len(args))
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT %d`, limit+1)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, repositories.NewNotificationError(repositories.NotificationErrorUnknown, "list notifications", err)
	}
	defer rows.Close()

	var items []domain.Notification
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, repositories.NewNotificationError(repositories.NotificationErrorUnknown, "scan notification", err)
		}
		items = append(items, notification)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.Notification]{}, repositories.NewNotificationError(repositories.NotificationErrorUnknown, "list notifications", err)
	}

	page := domain.CursorPage[domain.Notification]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextPageToken = items[limit-1].ID
	}
	return page, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, target domain.NotificationTarget) (int, error) {
	column, value, err := targetColumn(target)
	if err != nil {
		return 0, err
	}
	q := r.provider.querier(ctx)

	var count int
	err = q.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE `+column+` = $1 AND unread`, value).Scan(&count)
	if err != nil {
		return 0, repositories.NewNotificationError(repositories.NotificationErrorUnknown, "count unread", err)
	}
	return count, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, target domain.NotificationTarget, id string) error {
	column, value, err := targetColumn(target)
	if err != nil {
		return err
	}
	q := r.provider.querier(ctx)

	tag, err := q.Exec(ctx, `UPDATE notifications SET unread = FALSE WHERE id = $1 AND `+column+` = $2`, id, value)
	if err != nil {
		return repositories.NewNotificationError(repositories.NotificationErrorUnknown, "mark read", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotificationError(repositories.NotificationErrorNotFound, fmt.Sprintf("notification %s not found", id), nil)
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, target domain.NotificationTarget) (int, error) {
	column, value, err := targetColumn(target)
	if err != nil {
		return 0, err
	}
	q := r.provider.querier(ctx)

	tag, err := q.Exec(ctx, `UPDATE notifications SET unread = FALSE WHERE `+column+` = $1 AND unread`, value)
	if err != nil {
		return 0, repositories.NewNotificationError(repositories.NotificationErrorUnknown, "mark all read", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *NotificationRepository) Delete(ctx context.Context, target domain.NotificationTarget, id string) error {
	column, value, err := targetColumn(target)
	if err != nil {
		return err
	}
	q := r.provider.querier(ctx)

	tag, err := q.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND `+column+` = $2`, id, value)
	if err != nil {
		return repositories.NewNotificationError(repositories.NotificationErrorUnknown, "delete notification", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotificationError(repositories.NotificationErrorNotFound, fmt.Sprintf("notification %s not found", id), nil)
	}
	return nil
}

func (r *NotificationRepository) Clear(ctx context.Context, target domain.NotificationTarget) (int, error) {
	column, value, err := targetColumn(target)
	if err != nil {
		return 0, err
	}
	q := r.provider.querier(ctx)

	tag, err := q.Exec(ctx, `DELETE FROM notifications WHERE `+column+` = $1`, value)
	if err != nil {
		return 0, repositories.NewNotificationError(repositories.NotificationErrorUnknown, "clear notifications", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanNotification(row rowScanner) (domain.Notification, error) {
	var (
		notification domain.Notification
		staffID      *string
		customerID   *string
		kind         string
	)
	err := row.Scan(
		&notification.ID, &staffID, &customerID, &kind,
		&notification.Title.EN, &notification.Title.AR,
		&notification.Message.EN, &notification.Message.AR,
		&notification.Link, &notification.Unread, &notification.CreatedAt,
	)
	if err != nil {
		return domain.Notification{}, err
	}
	notification.Type = domain.NotificationType(kind)
	switch {
	case staffID != nil:
		notification.Target = domain.StaffTarget(*staffID)
	case customerID != nil:
		notification.Target = domain.CustomerTarget(*customerID)
	}
	return notification, nil
}
