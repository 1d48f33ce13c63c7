package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fresh-motors/gateway/internal/auth"
)

// Sessions is the server-side mirror of the browser token cookies, one Redis
// key per session. It is the durable half of the token store: cookies carry
// the tokens to the browser, Redis keeps the authoritative copy the refresh
// coordinator reads and writes.
type Sessions struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(addr string, db int, password string, ttl time.Duration, logger *zap.Logger) (*Sessions, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Sessions{
		redis:  rdb,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func sessionKey(id string) string {
	return "fm:session:" + id
}

// ForSession returns an auth.Store bound to one session ID.
func (s *Sessions) ForSession(id string) auth.Store {
	return &sessionStore{sessions: s, key: sessionKey(id)}
}

// HealthCheck pings Redis.
func (s *Sessions) HealthCheck(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Sessions) Close() error {
	return s.redis.Close()
}

// sessionStore implements auth.Store over one Redis key.
type sessionStore struct {
	sessions *Sessions
	key      string
}

// Get returns the session's tokens; a missing key yields empty tokens, not an
// error, so a cold mirror behaves like a logged-out session.
func (st *sessionStore) Get(ctx context.Context) (auth.Tokens, error) {
	val, err := st.sessions.redis.Get(ctx, st.key).Result()
	if errors.Is(err, redis.Nil) {
		return auth.Tokens{}, nil
	}
	if err != nil {
		return auth.Tokens{}, fmt.Errorf("session get: %w", err)
	}

	var t auth.Tokens
	if err := json.Unmarshal([]byte(val), &t); err != nil {
		return auth.Tokens{}, fmt.Errorf("session decode: %w", err)
	}
	return t, nil
}

func (st *sessionStore) Set(ctx context.Context, t auth.Tokens) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := st.sessions.redis.Set(ctx, st.key, data, st.sessions.ttl).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

func (st *sessionStore) Clear(ctx context.Context) error {
	if err := st.sessions.redis.Del(ctx, st.key).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}
