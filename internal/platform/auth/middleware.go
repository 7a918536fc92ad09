package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	domain "github.com/lahm-market/api/internal/domain"
)

const defaultResolveTimeout = 5 * time.Second

var (
	// ErrUnauthenticated signals that the bearer token matched no live session.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrSessionExpired signals that a session was found but has lapsed.
	ErrSessionExpired = errors.New("auth: session expired")
)

// Resolver turns a bearer token into an authenticated actor.
type Resolver interface {
	Resolve(ctx context.Context, token string) (domain.Actor, error)
}

// Authenticator wires actor resolution into HTTP middleware.
type Authenticator struct {
	resolver Resolver
	timeout  time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithResolveTimeout caps the time spent resolving a token per request.
func WithResolveTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(resolver Resolver, opts ...Option) *Authenticator {
	a := &Authenticator{
		resolver: resolver,
		timeout:  defaultResolveTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAuth resolves the Authorization bearer token and, when kinds are
// given, ensures the actor is one of them.
func (a *Authenticator) RequireAuth(kinds ...domain.ActorKind) func(http.Handler) http.Handler {
	allowed := make(map[domain.ActorKind]struct{}, len(kinds))
	for _, kind := range kinds {
		allowed[kind] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.resolver == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			ctx, cancel := a.contextWithTimeout(r.Context())
			if cancel != nil {
				defer cancel()
			}

			actor, err := a.resolver.Resolve(ctx, token)
			if err != nil {
				respondResolutionError(w, err)
				return
			}

			if len(allowed) > 0 {
				if _, ok := allowed[actor.Kind]; !ok {
					respondAuthError(w, http.StatusForbidden, "forbidden", "caller may not access this resource")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole ensures an already-authenticated actor carries one of the roles.
// It must be mounted after RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = normaliseRole(role)
		if role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "no actor associated with request")
				return
			}
			if len(allowed) > 0 {
				if _, ok := allowed[normaliseRole(actor.Role)]; !ok {
					respondAuthError(w, http.StatusForbidden, "insufficient_role", "actor does not have required role")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a == nil || a.timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeout)
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func respondResolutionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionExpired):
		respondAuthError(w, http.StatusUnauthorized, "session_expired", "session expired")
	case errors.Is(err, ErrUnauthenticated):
		respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "bearer token matched no session")
	default:
		respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "token resolution failed")
	}
}
