package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lahm-market/api/internal/repositories"
)

// CounterRepository issues monotonic sequence numbers backed by a counters
// table. The upsert keeps the increment atomic under concurrent callers.
type CounterRepository struct {
	provider *Provider
}

// NewCounterRepository constructs a counter repository bound to the provider.
func NewCounterRepository(provider *Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("postgres: counter repository requires a provider")
	}
	return &CounterRepository{provider: provider}, nil
}

func (r *CounterRepository) Next(ctx context.Context, name string, step int) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter name is required", nil)
	}
	if step <= 0 {
		step = 1
	}
	q := r.provider.querier(ctx)

	var value int64
	err := q.QueryRow(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + $2
		RETURNING value`, name, step).Scan(&value)
	if err != nil {
		return 0, repositories.NewCounterError(repositories.CounterErrorUnknown, fmt.Sprintf("next %s counter", name), err)
	}
	return value, nil
}
