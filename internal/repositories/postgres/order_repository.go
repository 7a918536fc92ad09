package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/repositories"
)

// OrderRepository implements repositories.OrderRepository on Postgres.
// Status writes use a compare-and-swap on the previous status checked by
// affected-row count, so concurrent transitions cannot both apply.
type OrderRepository struct {
	provider *Provider
}

// NewOrderRepository constructs an order repository bound to the provider.
func NewOrderRepository(provider *Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("postgres: order repository requires a provider")
	}
	return &OrderRepository{provider: provider}, nil
}

type addressDoc struct {
	Recipient  string           `json:"recipient"`
	Line1      string           `json:"line1"`
	Line2      *string          `json:"line2,omitempty"`
	City       string           `json:"city"`
	District   *string          `json:"district,omitempty"`
	PostalCode string           `json:"postalCode"`
	Phone      string           `json:"phone"`
	Location   *domain.GeoPoint `json:"location,omitempty"`
}

func encodeAddress(addr domain.Address) ([]byte, error) {
	return json.Marshal(addressDoc{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		District:   addr.District,
		PostalCode: addr.PostalCode,
		Phone:      addr.Phone,
		Location:   addr.Location,
	})
}

func decodeAddress(raw []byte) (domain.Address, error) {
	var doc addressDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Address{}, err
	}
	return domain.Address{
		Recipient:  doc.Recipient,
		Line1:      doc.Line1,
		Line2:      doc.Line2,
		City:       doc.City,
		District:   doc.District,
		PostalCode: doc.PostalCode,
		Phone:      doc.Phone,
		Location:   doc.Location,
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	q := r.provider.querier(ctx)

	address, err := encodeAddress(order.DeliveryAddress)
	if err != nil {
		return repositories.NewOrderError(repositories.OrderErrorUnknown, "encode delivery address", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO orders (
			id, order_number, customer_id, status, payment_status, payment_method,
			subtotal, discount, delivery_fee, vat, total, delivery_address,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)`,
		order.ID, order.OrderNumber, order.CustomerID,
		string(order.Status), string(order.PaymentStatus), string(order.PaymentMethod),
		order.Totals.Subtotal, order.Totals.Discount, order.Totals.DeliveryFee,
		order.Totals.VAT, order.Totals.Total, address, order.CreatedAt)
	if err != nil {
		return repositories.NewOrderError(repositories.OrderErrorUnknown, "insert order", err)
	}

	for i, item := range order.Items {
		_, err = q.Exec(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, name_en, name_ar, unit_price, quantity, total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			order.ID, i+1, item.ProductID, item.Name.EN, item.Name.AR,
			item.UnitPrice, item.Quantity, item.Total)
		if err != nil {
			return repositories.NewOrderError(repositories.OrderErrorUnknown, "insert order item", err)
		}
	}

	for _, entry := range order.StatusHistory {
		if err := r.AppendHistory(ctx, order.ID, entry); err != nil {
			return err
		}
	}
	return nil
}

const orderColumns = `
	id, order_number, customer_id, status, payment_status, payment_method,
	subtotal, discount, delivery_fee, vat, total, delivery_address,
	cancel_reason, confirmed_at, cancelled_at, actual_delivery_at, created_at, updated_at`

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	q := r.provider.querier(ctx)

	row := q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
		}
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "find order", err)
	}

	if order.Items, err = r.loadItems(ctx, orderID); err != nil {
		return domain.Order{}, err
	}
	if order.StatusHistory, err = r.loadHistory(ctx, orderID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
	q := r.provider.querier(ctx)

	var paymentStatus *string
	if update.PaymentStatus != nil {
		value := string(*update.PaymentStatus)
		paymentStatus = &value
	}

	tag, err := q.Exec(ctx, `
		UPDATE orders
		   SET status = $3,
		       payment_status = COALESCE($4, payment_status),
		       cancel_reason = COALESCE($5, cancel_reason),
		       confirmed_at = COALESCE($6, confirmed_at),
		       cancelled_at = COALESCE($7, cancelled_at),
		       actual_delivery_at = COALESCE($8, actual_delivery_at),
		       updated_at = $9
		 WHERE id = $1 AND status = $2`,
		update.OrderID, string(update.PreviousStatus), string(update.Status),
		paymentStatus, update.CancelReason, update.ConfirmedAt, update.CancelledAt,
		update.ActualDeliveryAt, update.Now)
	if err != nil {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "update order status", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the order vanished or the expected status no longer holds.
		current, findErr := r.FindByID(ctx, update.OrderID)
		if findErr != nil {
			return domain.Order{}, findErr
		}
		return domain.Order{}, repositories.NewOrderError(
			repositories.OrderErrorConflict,
			fmt.Sprintf("order %s: status is %q, expected %q", update.OrderID, current.Status, update.PreviousStatus),
			nil,
		)
	}

	return r.FindByID(ctx, update.OrderID)
}

func (r *OrderRepository) AppendHistory(ctx context.Context, orderID string, entry domain.StatusHistoryEntry) error {
	q := r.provider.querier(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, actor_id, actor_kind, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		orderID, string(entry.Status), entry.ActorID, string(entry.ActorKind), entry.Note, entry.CreatedAt)
	if err != nil {
		return repositories.NewOrderError(repositories.OrderErrorUnknown, "append status history", err)
	}
	return nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return r.list(ctx, &customerID, filter)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return r.list(ctx, nil, filter)
}

func (r *OrderRepository) list(ctx context.Context, customerID *string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	q := r.provider.querier(ctx)
	limit := normalisePageSize(filter.Pagination.PageSize)

	var (
		conditions []string
		args       []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if customerID != nil {
		conditions = append(conditions, "customer_id = "+arg(*customerID))
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		conditions = append(conditions, "status = ANY("+arg(statuses)+")")
	}
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		// Order ids are ULIDs, so lexical order tracks creation order.
		conditions = append(conditions, "id < "+arg(token))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT %d`, limit+1)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "list orders", err)
	}
	defer rows.Close()

	var items []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "scan order", err)
		}
		items = append(items, order)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.Order]{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "list orders", err)
	}

	page := domain.CursorPage[domain.Order]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextPageToken = items[limit-1].ID
	}

	for i := range page.Items {
		if page.Items[i].Items, err = r.loadItems(ctx, page.Items[i].ID); err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
	}
	return page, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderLineItem, error) {
	q := r.provider.querier(ctx)
	rows, err := q.Query(ctx, `
		SELECT product_id, name_en, name_ar, unit_price, quantity, total
		  FROM order_items WHERE order_id = $1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, repositories.NewOrderError(repositories.OrderErrorUnknown, "load order items", err)
	}
	defer rows.Close()

	var items []domain.OrderLineItem
	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(&item.ProductID, &item.Name.EN, &item.Name.AR, &item.UnitPrice, &item.Quantity, &item.Total); err != nil {
			return nil, repositories.NewOrderError(repositories.OrderErrorUnknown, "scan order item", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *OrderRepository) loadHistory(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	q := r.provider.querier(ctx)
	rows, err := q.Query(ctx, `
		SELECT status, actor_id, actor_kind, note, created_at
		  FROM order_status_history WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, repositories.NewOrderError(repositories.OrderErrorUnknown, "load status history", err)
	}
	defer rows.Close()

	var entries []domain.StatusHistoryEntry
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		if err := rows.Scan(&entry.Status, &entry.ActorID, &entry.ActorKind, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, repositories.NewOrderError(repositories.OrderErrorUnknown, "scan status history", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order   domain.Order
		address []byte
	)
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.CustomerID,
		&order.Status, &order.PaymentStatus, &order.PaymentMethod,
		&order.Totals.Subtotal, &order.Totals.Discount, &order.Totals.DeliveryFee,
		&order.Totals.VAT, &order.Totals.Total, &address,
		&order.CancelReason, &order.ConfirmedAt, &order.CancelledAt,
		&order.ActualDeliveryAt, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	if order.DeliveryAddress, err = decodeAddress(address); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}
