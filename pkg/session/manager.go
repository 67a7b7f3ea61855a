package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/regions/internal/logging"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// Factory builds the workspace for a new session.
type Factory func(ctx context.Context, sessionID string) (ports.Workspace, error)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager owns one workspace per session and serializes commands per session.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	factory Factory

	mu         sync.Mutex            // Global lock for the maps
	locks      map[string]*lockEntry // Map of active locks
	workspaces map[string]ports.Workspace

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking, for replicas sharing one record store.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock expiry.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager building workspaces with factory.
func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory:    factory,
		locks:      make(map[string]*lockEntry),
		workspaces: make(map[string]ports.Workspace),
		lockTTL:    DefaultLockTTL,
		logger:     logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Get returns the workspace of an existing session.
func (m *Manager) Get(sessionID string) (ports.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, ok := m.workspaces[sessionID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", sessionID, domain.ErrSessionNotFound)
	}
	return ws, nil
}

// GetOrCreate returns the session's workspace, building it on first use.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (ports.Workspace, error) {
	var ws ports.Workspace
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		ws, err = m.Get(sessionID)
		if err == nil {
			return nil
		}

		ws, err = m.factory(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to initialize session %s: %w", sessionID, err)
		}

		m.mu.Lock()
		m.workspaces[sessionID] = ws
		m.mu.Unlock()
		m.logger.Debug("Session created", "session_id", sessionID)
		return nil
	})
	return ws, err
}

// Do runs fn against an existing session while holding its lock.
func (m *Manager) Do(ctx context.Context, sessionID string, fn func(context.Context, ports.Workspace) error) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		ws, err := m.Get(sessionID)
		if err != nil {
			return err
		}
		return fn(ctx, ws)
	})
}

// Close closes and forgets a session.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		m.mu.Lock()
		ws, ok := m.workspaces[sessionID]
		delete(m.workspaces, sessionID)
		m.mu.Unlock()

		if !ok {
			return fmt.Errorf("%s: %w", sessionID, domain.ErrSessionNotFound)
		}
		return ws.Close()
	})
}

// CloseAll closes every session.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	all := m.workspaces
	m.workspaces = make(map[string]ports.Workspace)
	m.mu.Unlock()

	var errs []error
	for id, ws := range all {
		if err := ws.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// List returns the session IDs in lexical order.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.workspaces))
	for id := range m.workspaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	// Distributed Locking
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
