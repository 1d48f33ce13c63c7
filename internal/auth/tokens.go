package auth

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens is the access/refresh credential pair for one session.
// Both values are opaque to the gateway; the access token happens to be a JWT
// whose exp claim we read for observability, but we never verify it locally.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Empty reports whether neither credential is present.
func (t Tokens) Empty() bool {
	return t.Access == "" && t.Refresh == ""
}

// AccessExpiry returns the exp claim embedded in the access token, unverified.
// Returns the zero time if the token is missing, not a JWT, or has no exp.
func (t Tokens) AccessExpiry() time.Time {
	if t.Access == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(t.Access, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Store abstracts where a session's tokens live (cookie mirror, Redis, memory).
// Only the refresh-success and logout paths write it; everything else reads.
type Store interface {
	Get(ctx context.Context) (Tokens, error)
	Set(ctx context.Context, t Tokens) error
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process Store, used for standalone SDK clients and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens Tokens
}

// NewMemoryStore creates a MemoryStore seeded with the given tokens.
func NewMemoryStore(t Tokens) *MemoryStore {
	return &MemoryStore{tokens: t}
}

func (s *MemoryStore) Get(ctx context.Context) (Tokens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens, nil
}

func (s *MemoryStore) Set(ctx context.Context, t Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = Tokens{}
	return nil
}
