package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fresh-motors/gateway/internal/metrics"
)

// refreshOutcome is what a refresh cycle delivers to every parked request.
type refreshOutcome struct {
	tokens  Tokens
	rotated bool
	err     error
}

// Hooks receives auth lifecycle notifications. Either field may be nil.
// OnRefreshed reports whether the backend rotated the refresh token.
// OnSessionExpired fires exactly once per failed refresh cycle, regardless of
// how many requests were parked on it.
type Hooks struct {
	OnRefreshed      func(t Tokens, rotated bool)
	OnSessionExpired func(reason error)
}

// Coordinator serializes token refreshes for one session.
//
// Any number of requests may hit a 401 concurrently; the first caller to
// observe the Idle state becomes the refresh leader, everyone else parks on a
// result channel. The leader performs exactly one refresh call and fans the
// outcome out to all waiters. The flag check and transition happen under one
// mutex hold, so two callers can never both become leader.
type Coordinator struct {
	logger    *zap.Logger
	store     Store
	refresher Refresher
	timeout   time.Duration
	hooks     Hooks

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshOutcome
}

// NewCoordinator creates a refresh coordinator over the given store and refresher.
// timeout bounds the whole refresh cycle (on top of the refresher's own HTTP timeout).
func NewCoordinator(logger *zap.Logger, store Store, refresher Refresher, timeout time.Duration, hooks Hooks) *Coordinator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Coordinator{
		logger:    logger,
		store:     store,
		refresher: refresher,
		timeout:   timeout,
		hooks:     hooks,
	}
}

// WaitForFresh returns tokens minted by a refresh cycle, joining the in-flight
// cycle if one exists. On failure every joined caller receives ErrSessionExpired
// and the store has been cleared.
func (c *Coordinator) WaitForFresh(ctx context.Context) (Tokens, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan refreshOutcome, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case out := <-ch:
			return out.tokens, out.err
		case <-ctx.Done():
			// The cycle keeps running for the remaining waiters.
			return Tokens{}, ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	start := time.Now()
	out := c.runRefresh(ctx)

	c.mu.Lock()
	c.refreshing = false
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- out
	}

	metrics.ObserveRefreshFanout(len(waiters) + 1)
	if out.err != nil {
		metrics.IncRefresh("failure")
		c.logger.Warn("auth.refresh_cycle_failed",
			zap.Int("waiters", len(waiters)+1),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(out.err))
		if c.hooks.OnSessionExpired != nil {
			c.hooks.OnSessionExpired(out.err)
		}
	} else {
		metrics.IncRefresh("success")
		metrics.ObserveRefreshDuration(start)
		c.logger.Info("auth.refresh_cycle_complete",
			zap.Int("waiters", len(waiters)+1),
			zap.Duration("elapsed", time.Since(start)))
		if c.hooks.OnRefreshed != nil {
			c.hooks.OnRefreshed(out.tokens, out.rotated)
		}
	}

	return out.tokens, out.err
}

// runRefresh performs one refresh cycle: read the refresh token, call the
// endpoint, persist or clear. It is detached from the leader's cancellation so
// a single impatient caller cannot fail the cycle for everyone parked on it.
func (c *Coordinator) runRefresh(ctx context.Context) refreshOutcome {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	current, err := c.store.Get(rctx)
	if err != nil {
		_ = c.store.Clear(rctx)
		return refreshOutcome{err: fmt.Errorf("read token store: %v: %w", err, ErrSessionExpired)}
	}
	if current.Refresh == "" {
		_ = c.store.Clear(rctx)
		return refreshOutcome{err: fmt.Errorf("no refresh token: %w", ErrSessionExpired)}
	}

	next, err := c.refresher.Refresh(rctx, current.Refresh)
	if err != nil {
		_ = c.store.Clear(rctx)
		return refreshOutcome{err: fmt.Errorf("refresh failed: %v: %w", err, ErrSessionExpired)}
	}

	if err := c.store.Set(rctx, next); err != nil {
		// Tokens were minted but we cannot keep them; treat as a failed cycle
		// so callers do not proceed with state the next request cannot see.
		_ = c.store.Clear(rctx)
		return refreshOutcome{err: fmt.Errorf("persist tokens: %v: %w", err, ErrSessionExpired)}
	}

	return refreshOutcome{tokens: next, rotated: next.Refresh != current.Refresh}
}
