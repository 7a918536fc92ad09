package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/repositories"
)

// DirectoryRepository serves the read-only catalog and profile projections
// used for line-item snapshotting, role checks and driver assignment.
type DirectoryRepository struct {
	provider *Provider
}

// NewDirectoryRepository constructs a directory repository bound to the provider.
func NewDirectoryRepository(provider *Provider) (*DirectoryRepository, error) {
	if provider == nil {
		return nil, errors.New("postgres: directory repository requires a provider")
	}
	return &DirectoryRepository{provider: provider}, nil
}

func (r *DirectoryRepository) GetUser(ctx context.Context, userID string) (domain.UserProfile, error) {
	q := r.provider.querier(ctx)

	var profile domain.UserProfile
	err := q.QueryRow(ctx, `SELECT id, name, mobile, role, active FROM users WHERE id = $1`, userID).
		Scan(&profile.ID, &profile.Name, &profile.Mobile, &profile.Role, &profile.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProfile{}, fmt.Errorf("user %s: %w", userID, repositories.ErrUserNotFound)
		}
		return domain.UserProfile{}, fmt.Errorf("postgres: get user %s: %w", userID, err)
	}
	return profile, nil
}

func (r *DirectoryRepository) GetRole(ctx context.Context, userID string) (string, error) {
	profile, err := r.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return profile.Role, nil
}

func (r *DirectoryRepository) GetCustomer(ctx context.Context, customerID string) (domain.UserProfile, error) {
	q := r.provider.querier(ctx)

	var profile domain.UserProfile
	err := q.QueryRow(ctx, `SELECT id, name, mobile, active FROM customers WHERE id = $1`, customerID).
		Scan(&profile.ID, &profile.Name, &profile.Mobile, &profile.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProfile{}, fmt.Errorf("customer %s: %w", customerID, repositories.ErrUserNotFound)
		}
		return domain.UserProfile{}, fmt.Errorf("postgres: get customer %s: %w", customerID, err)
	}
	return profile, nil
}

func (r *DirectoryRepository) FindProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if len(productIDs) == 0 {
		return map[string]domain.Product{}, nil
	}
	q := r.provider.querier(ctx)

	rows, err := q.Query(ctx, `
		SELECT id, name_en, name_ar, unit_price, vat_rate, active
		  FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: find products: %w", err)
	}
	defer rows.Close()

	found := make(map[string]domain.Product, len(productIDs))
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(&product.ID, &product.Name.EN, &product.Name.AR, &product.UnitPrice, &product.VATRate, &product.Active); err != nil {
			return nil, fmt.Errorf("postgres: scan product: %w", err)
		}
		found[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: find products: %w", err)
	}
	return found, nil
}
