// Package redisstore holds the Redis-backed adapters: the bearer session
// lookup shared with the storefront, and the idempotency key store used by
// the HTTP middleware.
package redisstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/lahm-market/api/internal/domain"
	"github.com/lahm-market/api/internal/repositories"
)

// New dials a Redis client for the given address.
func New(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// SessionStore resolves bearer tokens against the session records written by
// the storefront's auth flow. Tokens are stored hashed so a Redis dump never
// reveals usable credentials.
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore constructs a session store over the shared Redis client.
func NewSessionStore(client *redis.Client) (*SessionStore, error) {
	if client == nil {
		return nil, errors.New("redisstore: session store requires a client")
	}
	return &SessionStore{client: client}, nil
}

type staffSessionDoc struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type customerSessionDoc struct {
	CustomerID string    `json:"customerId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func sessionKey(audience, token string) string {
	sum := sha256.Sum256([]byte(token))
	return "session:" + audience + ":" + hex.EncodeToString(sum[:])
}

func (s *SessionStore) LookupStaffSession(ctx context.Context, token string) (domain.StaffSession, error) {
	raw, err := s.client.Get(ctx, sessionKey("staff", token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.StaffSession{}, repositories.ErrSessionNotFound
		}
		return domain.StaffSession{}, fmt.Errorf("redisstore: lookup staff session: %w", err)
	}
	var doc staffSessionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.StaffSession{}, fmt.Errorf("redisstore: decode staff session: %w", err)
	}
	return domain.StaffSession{UserID: doc.UserID, ExpiresAt: doc.ExpiresAt}, nil
}

func (s *SessionStore) LookupCustomerSession(ctx context.Context, token string) (domain.CustomerSession, error) {
	raw, err := s.client.Get(ctx, sessionKey("customer", token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CustomerSession{}, repositories.ErrSessionNotFound
		}
		return domain.CustomerSession{}, fmt.Errorf("redisstore: lookup customer session: %w", err)
	}
	var doc customerSessionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.CustomerSession{}, fmt.Errorf("redisstore: decode customer session: %w", err)
	}
	return domain.CustomerSession{CustomerID: doc.CustomerID, ExpiresAt: doc.ExpiresAt}, nil
}
