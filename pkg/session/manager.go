package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/chequeflow"
	"github.com/aretw0/chequeflow/internal/logging"
	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/aretw0/chequeflow/pkg/ports"
	"github.com/google/uuid"
)

// ErrSessionExists is returned by Create when the id is already live.
var ErrSessionExists = errors.New("session already exists")

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	engine *chequeflow.Engine

	mu    sync.Mutex                  // Guards flows and locks
	flows map[string]*chequeflow.Flow // Live sessions
	locks map[string]*lockEntry       // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets how long a distributed lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager starting sessions on engine.
func NewManager(engine *chequeflow.Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:  engine,
		flows:   make(map[string]*chequeflow.Flow),
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
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

// Create starts a session. An empty id is replaced by a random UUID.
func (m *Manager) Create(ctx context.Context, sessionID string) (*chequeflow.Flow, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var flow *chequeflow.Flow
	err := m.withLock(ctx, sessionID, func(ctx context.Context) error {
		m.mu.Lock()
		_, exists := m.flows[sessionID]
		m.mu.Unlock()
		if exists {
			return fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
		}

		flow = m.engine.Start(ctx, sessionID)

		m.mu.Lock()
		m.flows[sessionID] = flow
		m.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "session created", "session_id", sessionID)
	return flow, nil
}

// Get returns a live session.
func (m *Manager) Get(sessionID string) (*chequeflow.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flow, ok := m.flows[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return flow, nil
}

// WithFlow runs fn on the session while holding its lock.
func (m *Manager) WithFlow(ctx context.Context, sessionID string, fn func(context.Context, *chequeflow.Flow) error) error {
	return m.withLock(ctx, sessionID, func(ctx context.Context) error {
		flow, err := m.Get(sessionID)
		if err != nil {
			return err
		}
		return fn(ctx, flow)
	})
}

// Close abandons the session if it is still open and forgets it.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	return m.withLock(ctx, sessionID, func(ctx context.Context) error {
		m.mu.Lock()
		flow, ok := m.flows[sessionID]
		delete(m.flows, sessionID)
		m.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
		}

		if err := flow.Abandon(ctx); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
			m.logger.WarnContext(ctx, "abandon on close failed", "session_id", sessionID, "error", err)
		}
		flow.Close()
		return nil
	})
}

// List returns the ids of live sessions, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.flows))
	for id := range m.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown closes every live session.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, id := range m.List() {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			m.logger.WarnContext(ctx, "session shutdown failed", "session_id", id, "error", err)
		}
	}
}

// withLock executes fn while holding the local and, if configured, the
// distributed lock of the session.
func (m *Manager) withLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
