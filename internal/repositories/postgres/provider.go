package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx operations shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Provider owns the pgx pool and routes repository statements either to the
// pool or to the transaction carried on the context by RunInTx.
type Provider struct {
	pool *pgxpool.Pool
}

// Connect establishes a pgx pool against the given DSN and verifies connectivity.
func Connect(ctx context.Context, dsn string, maxConns int32) (*Provider, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Provider{pool: pool}, nil
}

// NewProvider wraps an existing pool, primarily for tests.
func NewProvider(pool *pgxpool.Pool) *Provider {
	return &Provider{pool: pool}
}

// Pool exposes the underlying pool for health probes.
func (p *Provider) Pool() *pgxpool.Pool {
	return p.pool
}

// Close releases the pool.
func (p *Provider) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}

type txContextKey struct{}

// RunInTx implements repositories.UnitOfWork. The open transaction is stored on
// the derived context so that repository calls made inside fn join it; nested
// calls reuse the outer transaction rather than opening a second one.
func (p *Provider) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if p == nil || p.pool == nil {
		return errors.New("postgres: provider not initialised")
	}
	if _, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// querier returns the transaction bound to ctx when present, else the pool.
func (p *Provider) querier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return p.pool
}
