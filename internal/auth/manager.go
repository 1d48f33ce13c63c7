package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StoreFactory builds the token store backing a given session ID.
type StoreFactory func(sessionID string) Store

// HookFactory builds the lifecycle hooks for a given session ID, so event
// publishing can tag which session refreshed or expired.
type HookFactory func(sessionID string) Hooks

// Manager hands out Sessions and caches one Coordinator per session ID, so
// concurrent requests from the same browser session always share a single
// refresh flight. Idle entries are swept periodically.
type Manager struct {
	logger    *zap.Logger
	newStore  StoreFactory
	newHooks  HookFactory
	refresher Refresher
	timeout   time.Duration

	mu      sync.Mutex
	entries map[string]*managerEntry
}

type managerEntry struct {
	session  *Session
	lastUsed time.Time
}

// NewManager constructs the session manager. newHooks may be nil.
func NewManager(logger *zap.Logger, newStore StoreFactory, refresher Refresher, timeout time.Duration, newHooks HookFactory) *Manager {
	return &Manager{
		logger:    logger,
		newStore:  newStore,
		newHooks:  newHooks,
		refresher: refresher,
		timeout:   timeout,
		entries:   make(map[string]*managerEntry),
	}
}

// Session returns the Session for the given ID, creating store and
// coordinator on first use.
func (m *Manager) Session(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[id]; ok {
		e.lastUsed = time.Now()
		return e.session
	}

	var hooks Hooks
	if m.newHooks != nil {
		hooks = m.newHooks(id)
	}
	store := m.newStore(id)
	sess := &Session{
		ID:          id,
		Store:       store,
		Coordinator: NewCoordinator(m.logger, store, m.refresher, m.timeout, hooks),
	}
	m.entries[id] = &managerEntry{session: sess, lastUsed: time.Now()}
	return sess
}

// Sweep drops coordinators idle for longer than maxIdle. Token state lives in
// the store, so dropping an entry only discards the in-memory flight state.
func (m *Manager) Sweep(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.lastUsed.Before(cutoff) {
			delete(m.entries, id)
		}
	}
}

// StartSweeper runs Sweep on a ticker until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep(maxIdle)
		case <-ctx.Done():
			return
		}
	}
}
