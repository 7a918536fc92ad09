package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/repositories"
)

var (
	// ErrStockInvalidInput signals the caller provided invalid arguments.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockInsufficient indicates the requested quantity exceeds availability.
	ErrStockInsufficient = errors.New("stock: insufficient stock")
	// ErrStockNotFound indicates the product has no stock record.
	ErrStockNotFound = errors.New("stock: not found")
)

// StockServiceDeps bundles the collaborators required to construct a stock service.
type StockServiceDeps struct {
	Stock       repositories.StockRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	repo   repositories.StockRepository
	uow    repositories.UnitOfWork
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewStockService wires dependencies into a concrete StockService implementation.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Stock == nil {
		return nil, errors.New("stock service: stock repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("stock service: unit of work is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return "sm_" + ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &stockService{
		repo: deps.Stock,
		uow:  deps.UnitOfWork,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *stockService) ReserveForOrder(ctx context.Context, cmd StockReserveCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrStockInvalidInput)
	}
	lines, err := normaliseStockLines(cmd.Lines)
	if err != nil {
		return err
	}

	now := s.clock()
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		for _, line := range lines {
			_, err := s.repo.Reserve(ctx, repositories.StockMutation{
				MovementID: s.newID(),
				ProductID:  line.ProductID,
				Quantity:   line.Quantity,
				Reason:     "order reservation",
				OrderID:    &orderID,
				Now:        now,
			})
			if err != nil {
				return s.mapRepositoryError(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger(ctx, "stock.reserve", map[string]any{"orderId": orderID, "lines": len(lines)})
	return nil
}

func (s *stockService) ReleaseForOrder(ctx context.Context, cmd StockReleaseCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrStockInvalidInput)
	}
	lines, err := normaliseStockLines(cmd.Lines)
	if err != nil {
		return err
	}

	now := s.clock()
	actorID := optionalID(cmd.ActorID)
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		for _, line := range lines {
			_, err := s.repo.Release(ctx, repositories.StockMutation{
				MovementID: s.newID(),
				ProductID:  line.ProductID,
				Quantity:   line.Quantity,
				Reason:     "order cancelled",
				OrderID:    &orderID,
				ActorID:    actorID,
				Now:        now,
			})
			if err != nil {
				return s.mapRepositoryError(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger(ctx, "stock.release", map[string]any{"orderId": orderID, "lines": len(lines)})
	return nil
}

func (s *stockService) CommitForOrder(ctx context.Context, cmd StockCommitCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrStockInvalidInput)
	}
	lines, err := normaliseStockLines(cmd.Lines)
	if err != nil {
		return err
	}

	now := s.clock()
	actorID := optionalID(cmd.ActorID)
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		for _, line := range lines {
			_, err := s.repo.Commit(ctx, repositories.StockMutation{
				MovementID: s.newID(),
				ProductID:  line.ProductID,
				Quantity:   line.Quantity,
				Reason:     "order delivered",
				OrderID:    &orderID,
				ActorID:    actorID,
				Now:        now,
			})
			if err != nil {
				return s.mapRepositoryError(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger(ctx, "stock.commit", map[string]any{"orderId": orderID, "lines": len(lines)})
	return nil
}

func (s *stockService) Adjust(ctx context.Context, cmd StockAdjustCommand) (Stock, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Stock{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	if cmd.Delta == 0 {
		return Stock{}, fmt.Errorf("%w: delta must be non-zero", ErrStockInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return Stock{}, fmt.Errorf("%w: reason is required", ErrStockInvalidInput)
	}

	var stock domain.Stock
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		updated, err := s.repo.Adjust(ctx, repositories.StockMutation{
			MovementID: s.newID(),
			ProductID:  productID,
			Quantity:   cmd.Delta,
			Reason:     reason,
			ActorID:    optionalID(cmd.ActorID),
			Now:        s.clock(),
		})
		if err != nil {
			return s.mapRepositoryError(err)
		}
		stock = updated
		return nil
	})
	if err != nil {
		return Stock{}, err
	}

	s.logger(ctx, "stock.adjust", map[string]any{
		"productId": productID,
		"delta":     cmd.Delta,
		"quantity":  stock.Quantity,
	})
	return stock, nil
}

func (s *stockService) GetStock(ctx context.Context, productID string) (Stock, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Stock{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}

	stock, err := s.repo.Get(ctx, productID)
	if err != nil {
		return Stock{}, s.mapRepositoryError(err)
	}
	return stock, nil
}

func (s *stockService) ListLowStock(ctx context.Context, filter LowStockFilter) (domain.CursorPage[Stock], error) {
	page, err := s.repo.ListLowStock(ctx, filter.Pagination)
	if err != nil {
		return domain.CursorPage[Stock]{}, s.mapRepositoryError(err)
	}

	threshold := filter.Threshold
	if threshold <= 0 {
		return page, nil
	}

	filtered := make([]domain.Stock, 0, len(page.Items))
	for _, stock := range page.Items {
		if stock.Available <= threshold {
			filtered = append(filtered, stock)
		}
	}
	page.Items = filtered
	return page, nil
}

func (s *stockService) ListMovements(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[StockMovement], error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CursorPage[StockMovement]{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}

	page, err := s.repo.ListMovements(ctx, productID, pager)
	if err != nil {
		return domain.CursorPage[StockMovement]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *stockService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrStockInsufficient, stockErr.Message)
		case repositories.StockErrorNotFound:
			return fmt.Errorf("%w: %s", ErrStockNotFound, stockErr.Message)
		case repositories.StockErrorInvariant:
			return fmt.Errorf("%w: %s", ErrStockInvalidInput, stockErr.Message)
		}
	}

	return err
}

// normaliseStockLines trims, validates and aggregates duplicate product lines.
func normaliseStockLines(lines []StockLine) ([]StockLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrStockInvalidInput)
	}

	aggregated := make(map[string]int, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: line product id is required", ErrStockInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrStockInvalidInput, productID)
		}
		aggregated[productID] += line.Quantity
	}

	result := make([]StockLine, 0, len(aggregated))
	for productID, quantity := range aggregated {
		result = append(result, StockLine{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	return result, nil
}

func optionalID(id string) *string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
