package auth

import (
	"context"
	"strings"

	domain "github.com/lahm-market/api/internal/domain"
)

// Role constants used throughout the API when checking authorisation boundaries.
const (
	RoleStaff  = "staff"
	RoleAdmin  = "admin"
	RoleDriver = "delivery"
)

type contextKey string

const actorContextKey contextKey = "github.com/lahm-market/api/internal/platform/auth/actor"

// WithActor stores the resolved actor within the context for downstream handlers.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext retrieves the actor previously stored in context.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(domain.Actor)
	if !ok || actor.ID == "" {
		return domain.Actor{}, false
	}
	return actor, true
}

// HasRole reports whether the actor carries the requested role (case-insensitive).
func HasRole(actor domain.Actor, role string) bool {
	return strings.EqualFold(actor.Role, strings.TrimSpace(role))
}

// HasAnyRole reports whether the actor carries any of the provided roles.
func HasAnyRole(actor domain.Actor, roles ...string) bool {
	for _, role := range roles {
		if HasRole(actor, role) {
			return true
		}
	}
	return false
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
