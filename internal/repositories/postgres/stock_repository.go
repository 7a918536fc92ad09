package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/repositories"
)

// StockRepository implements repositories.StockRepository on Postgres.
//
// Mutations are expected to run inside a unit of work so the movement append
// and the counter update commit or roll back together. Reserve relies on a
// conditional update checked by affected-row count; the remaining mutations
// take a row lock first.
type StockRepository struct {
	provider *Provider
}

// NewStockRepository constructs a stock repository bound to the provider.
func NewStockRepository(provider *Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("postgres: stock repository requires a provider")
	}
	return &StockRepository{provider: provider}, nil
}

const stockColumns = `product_id, quantity, reserved, available, reorder_threshold, updated_at`

func (r *StockRepository) Get(ctx context.Context, productID string) (domain.Stock, error) {
	q := r.provider.querier(ctx)
	row := q.QueryRow(ctx, `SELECT `+stockColumns+` FROM stock WHERE product_id = $1`, productID)
	stock, err := scanStock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stock{}, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("no stock row for product %s", productID), err)
		}
		return domain.Stock{}, repositories.NewStockError(repositories.StockErrorUnknown, "get stock", err)
	}
	return stock, nil
}

func (r *StockRepository) Reserve(ctx context.Context, req repositories.StockMutation) (domain.Stock, error) {
	q := r.provider.querier(ctx)

	// Conditional increment: two racing reservations cannot both pass the
	// quantity - reserved >= $2 guard for the same row.
	row := q.QueryRow(ctx, `
		UPDATE stock
		   SET reserved = reserved + $2, updated_at = $3
		 WHERE product_id = $1 AND quantity - reserved >= $2
		RETURNING `+stockColumns, req.ProductID, req.Quantity, req.Now)

	stock, err := scanStock(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.Stock{}, repositories.NewStockError(repositories.StockErrorUnknown, "reserve stock", err)
		}
		// Distinguish a missing row from a shortfall.
		current, getErr := r.Get(ctx, req.ProductID)
		if getErr != nil {
			return domain.Stock{}, getErr
		}
		return domain.Stock{}, repositories.NewStockError(
			repositories.StockErrorInsufficient,
			fmt.Sprintf("product %s: requested %d, available %d", req.ProductID, req.Quantity, current.Available),
			nil,
		)
	}

	if err := r.appendMovement(ctx, domain.StockMovementReserved, req, stock.Reserved-req.Quantity, stock.Reserved); err != nil {
		return domain.Stock{}, err
	}
	return stock, nil
}

func (r *StockRepository) Release(ctx context.Context, req repositories.StockMutation) (domain.Stock, error) {
	q := r.provider.querier(ctx)

	prev, err := r.lock(ctx, q, req.ProductID)
	if err != nil {
		return domain.Stock{}, err
	}

	released := req.Quantity
	if released > prev.Reserved {
		released = prev.Reserved
	}
	if released == 0 {
		// Nothing held; releasing again is a no-op.
		return prev, nil
	}

	row := q.QueryRow(ctx, `
		UPDATE stock
		   SET reserved = reserved - $2, updated_at = $3
		 WHERE product_id = $1
		RETURNING `+stockColumns, req.ProductID, released, req.Now)
	stock, err := scanStock(row)
	if err != nil {
		return domain.Stock{}, repositories.NewStockError(repositories.StockErrorUnknown, "release stock", err)
	}

	mutation := req
	mutation.Quantity = released
	if err := r.appendMovement(ctx, domain.StockMovementReleased, mutation, prev.Reserved, stock.Reserved); err != nil {
		return domain.Stock{}, err
	}
	return stock, nil
}

func (r *StockRepository) Commit(ctx context.Context, req repositories.StockMutation) (domain.Stock, error) {
	q := r.provider.querier(ctx)

	if req.OrderID == nil || *req.OrderID == "" {
		return domain.Stock{}, repositories.NewStockError(repositories.StockErrorUnknown, "commit requires an order reference", nil)
	}

	var committed bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM stock_movements
			 WHERE order_id = $1 AND product_id = $2 AND type = 'out'
		)`, *req.OrderID, req.ProductID).Scan(&committed)
	if err != nil {
		return domain.Stock{}, repositories.NewStockError(repositories.StockErrorUnknown, "commit lookup", err)
	}
	if committed {
		return r.Get(ctx, req.ProductID)
	}

	prev, err := r.lock(ctx, q, req.ProductID)
	if err != nil {
		return domain.Stock{}, err
	}
	if prev.Reserved < req.Quantity || prev.Quantity < req.Quantity {
		return domain.Stock{}, repositories.NewStockError(
			repositories.StockErrorInvariant,
			fmt.Sprintf("product %s: commit of %d exceeds reserved %d", req.ProductID, req.Quantity, prev.Reserved),
			nil,
		)
	}

	row := q.QueryRow(ctx, `
		UPDATE stock
		   SET quantity = quantity - $2, reserved = reserved - $2, updated_at = $3
		 WHERE product_id = $1
		RETURNING `+stockColumns, req.ProductID, req.Quantity, req.Now)
	stock, err := scanStock(row)
	if err != nil {
		return domain.Stock{}, repositories.NewStockError(repositories.StockErrorUnknown, "commit stock", err)
	}

	if err := r.appendMovement(ctx, domain.StockMovementOut, req, prev.Quantity, stock.Quantity); err != nil {
		return domain.Stock{}, err
	}
	return stock, nil
}

func (r *StockRepository) Adjust(ctx context.Context, req repositories.StockMutation) (domain.Stock, error) {
	q := r.provider.querier(ctx)

	prev, err := r.lock(ctx, q, req.ProductID)
	if err != nil {
		return domain.Stock{}, err
	}

	next := prev.Quantity + req.Quantity
	if next < 0 || next < prev.Reserved {
		return domain.Stock{}, repositories.NewStockError(
			repositories.StockErrorInvariant,
			fmt.Sprintf("product %s: adjustment %+d would leave quantity %d below reserved %d", req.ProductID, req.Quantity, next, prev.Reserved),
			nil,
		)
	}

	row := q.QueryRow(ctx, `
		UPDATE stock
		   SET quantity = $2, updated_at = $3
		 WHERE product_id = $1
		RETURNING `+stockColumns, req.ProductID, next, req.Now)
	stock, err := scanStock(row)
	if err != nil {
		return domain.Stock{}, repositories.NewStockError(repositories.StockErrorUnknown, "adjust stock", err)
	}

	movementType := domain.StockMovementAdjustment
	if req.Quantity > 0 {
		movementType = domain.StockMovementIn
	}
	if err := r.appendMovement(ctx, movementType, req, prev.Quantity, stock.Quantity); err != nil {
		return domain.Stock{}, err
	}
	return stock, nil
}

func (r *StockRepository) ListLowStock(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Stock], error) {
	q := r.provider.querier(ctx)
	limit := normalisePageSize(pager.PageSize)

	rows, err := q.Query(ctx, `
		SELECT `+stockColumns+`
		  FROM stock
		 WHERE quantity - reserved <= reorder_threshold AND product_id > $1
		 ORDER BY product_id
		 LIMIT $2`, pager.PageToken, limit+1)
	if err != nil {
		return domain.CursorPage[domain.Stock]{}, repositories.NewStockError(repositories.StockErrorUnknown, "list low stock", err)
	}
	defer rows.Close()

	var items []domain.Stock
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return domain.CursorPage[domain.Stock]{}, repositories.NewStockError(repositories.StockErrorUnknown, "scan low stock", err)
		}
		items = append(items, stock)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.Stock]{}, repositories.NewStockError(repositories.StockErrorUnknown, "list low stock", err)
	}

	page := domain.CursorPage[domain.Stock]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextPageToken = items[limit-1].ProductID
	}
	return page, nil
}

func (r *StockRepository) ListMovements(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockMovement], error) {
	q := r.provider.querier(ctx)
	limit := normalisePageSize(pager.PageSize)

	// Movement ids are ULIDs, so lexical order tracks creation order.
	query := `
		SELECT id, product_id, type, quantity, prev_quantity, new_quantity, reason, order_id, actor_id, created_at
		  FROM stock_movements
		 WHERE product_id = $1`
	args := []any{productID}
	if pager.PageToken != "" {
		query += ` AND id < $2`
		args = append(args, pager.PageToken)
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT %d`, limit+1)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return domain.CursorPage[domain.StockMovement]{}, repositories.NewStockError(repositories.StockErrorUnknown, "list movements", err)
	}
	defer rows.Close()

	var items []domain.StockMovement
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.PrevQuantity, &m.NewQuantity, &m.Reason, &m.OrderID, &m.ActorID, &m.CreatedAt); err != nil {
			return domain.CursorPage[domain.StockMovement]{}, repositories.NewStockError(repositories.StockErrorUnknown, "scan movement", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.StockMovement]{}, repositories.NewStockError(repositories.StockErrorUnknown, "list movements", err)
	}

	page := domain.CursorPage[domain.StockMovement]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextPageToken = items[limit-1].ID
	}
	return page, nil
}

func (r *StockRepository) lock(ctx context.Context, q Querier, productID string) (domain.Stock, error) {
	row := q.QueryRow(ctx, `SELECT `+stockColumns+` FROM stock WHERE product_id = $1 FOR UPDATE`, productID)
	stock, err := scanStock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stock{}, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("no stock row for product %s", productID), err)
		}
		return domain.Stock{}, repositories.NewStockError(repositories.StockErrorUnknown, "lock stock", err)
	}
	return stock, nil
}

// appendMovement records the ledger entry for a mutation. prev and next carry
// the reserved counter for hold movements and the on-hand quantity otherwise.
func (r *StockRepository) appendMovement(ctx context.Context, movementType domain.StockMovementType, req repositories.StockMutation, prev, next int) error {
	q := r.provider.querier(ctx)

	query := `
		INSERT INTO stock_movements (id, product_id, type, quantity, prev_quantity, new_quantity, reason, order_id, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if movementType == domain.StockMovementOut {
		query += ` ON CONFLICT (order_id, product_id) WHERE type = 'out' DO NOTHING`
	}

	_, err := q.Exec(ctx, query,
		req.MovementID, req.ProductID, string(movementType), req.Quantity,
		prev, next, req.Reason, req.OrderID, req.ActorID, req.Now)
	if err != nil {
		return repositories.NewStockError(repositories.StockErrorUnknown, "append movement", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStock(row rowScanner) (domain.Stock, error) {
	var stock domain.Stock
	err := row.Scan(&stock.ProductID, &stock.Quantity, &stock.Reserved, &stock.Available, &stock.ReorderThreshold, &stock.UpdatedAt)
	if err != nil {
		return domain.Stock{}, err
	}
	return stock, nil
}

func normalisePageSize(size int) int {
	const (
		defaultPageSize = 20
		maxPageSize     = 100
	)
	switch {
	case size <= 0:
		return defaultPageSize
	case size > maxPageSize:
		return maxPageSize
	default:
		return size
	}
}
