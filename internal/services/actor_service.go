package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/platform/auth"
	"github.com/lahm-market/api/internal/repositories"
)

// ActorResolverDeps bundles the collaborators required to construct an actor resolver.
type ActorResolverDeps struct {
	Sessions      repositories.SessionStore
	Users         repositories.UserDirectory
	SharedAdminID string
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type actorResolver struct {
	sessions   repositories.SessionStore
	users      repositories.UserDirectory
	adminInbox string
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewActorResolver wires dependencies into a concrete ActorResolver implementation.
func NewActorResolver(deps ActorResolverDeps) (ActorResolver, error) {
	if deps.Sessions == nil {
		return nil, errors.New("actor resolver: session store is required")
	}
	if deps.Users == nil {
		return nil, errors.New("actor resolver: user directory is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	adminInbox := strings.TrimSpace(deps.SharedAdminID)
	if adminInbox == "" {
		adminInbox = "staff-inbox"
	}

	return &actorResolver{
		sessions:   deps.Sessions,
		users:      deps.Users,
		adminInbox: adminInbox,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Resolve maps a bearer token to an actor. Staff sessions are consulted first,
// then customer sessions; admins are remapped onto the shared staff inbox and
// users with the delivery role surface as drivers.
func (r *actorResolver) Resolve(ctx context.Context, token string) (Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Actor{}, fmt.Errorf("%w: empty token", auth.ErrUnauthenticated)
	}

	staff, err := r.sessions.LookupStaffSession(ctx, token)
	switch {
	case err == nil:
		return r.resolveStaff(ctx, staff)
	case !errors.Is(err, repositories.ErrSessionNotFound):
		return Actor{}, fmt.Errorf("actor resolver: staff session lookup: %w", err)
	}

	customer, err := r.sessions.LookupCustomerSession(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return Actor{}, fmt.Errorf("%w: unknown token", auth.ErrUnauthenticated)
		}
		return Actor{}, fmt.Errorf("actor resolver: customer session lookup: %w", err)
	}
	if customer.ExpiresAt.Before(r.clock()) {
		return Actor{}, fmt.Errorf("%w: customer session", auth.ErrSessionExpired)
	}

	return Actor{
		Kind:     domain.ActorCustomer,
		ID:       customer.CustomerID,
		NotifyID: customer.CustomerID,
	}, nil
}

func (r *actorResolver) resolveStaff(ctx context.Context, session domain.StaffSession) (Actor, error) {
	if session.ExpiresAt.Before(r.clock()) {
		return Actor{}, fmt.Errorf("%w: staff session", auth.ErrSessionExpired)
	}

	profile, err := r.users.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return Actor{}, fmt.Errorf("%w: staff user %s", auth.ErrUnauthenticated, session.UserID)
		}
		return Actor{}, fmt.Errorf("actor resolver: staff lookup: %w", err)
	}
	if !profile.Active {
		return Actor{}, fmt.Errorf("%w: staff user %s is disabled", auth.ErrUnauthenticated, session.UserID)
	}

	actor := Actor{
		Kind:     domain.ActorStaff,
		ID:       profile.ID,
		Role:     strings.ToLower(strings.TrimSpace(profile.Role)),
		NotifyID: profile.ID,
	}
	switch actor.Role {
	case auth.RoleDriver:
		actor.Kind = domain.ActorDriver
	case auth.RoleAdmin:
		// Admins share one inbox so any of them can triage order events.
		actor.NotifyID = r.adminInbox
	}

	r.logger(ctx, "actor.resolve", map[string]any{
		"actorId": actor.ID,
		"kind":    string(actor.Kind),
		"role":    actor.Role,
	})
	return actor, nil
}
