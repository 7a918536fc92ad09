package postgres

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema applies the idempotent schema definition. Intended for local
// development and tests; production rollouts run the SQL through migrations.
func EnsureSchema(ctx context.Context, provider *Provider) error {
	_, err := provider.pool.Exec(ctx, schemaSQL)
	return err
}
