package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/coordinator"
)

// DefaultTTL is how long an untouched session is kept.
const DefaultTTL = 2 * time.Hour

// Factory builds a coordinator with the given extra options.
type Factory func(opts ...coordinator.Option) *coordinator.Coordinator

type live struct {
	c        *coordinator.Coordinator
	lastSeen time.Time
}

// Manager owns the live coordinators of this process and mirrors each of
// their snapshots into a Store. A session unknown to this process is rebuilt
// from its stored snapshot.
type Manager struct {
	store   Store
	ttl     time.Duration
	factory Factory
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	live map[string]*live
	// deleted holds ids removed by Delete, with the removal time, so that
	// coordinators still running for them stop writing snapshots.
	deleted map[string]time.Time
}

func NewManager(store Store, ttl time.Duration, factory Factory, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   store,
		ttl:     ttl,
		factory: factory,
		logger:  logger,
		now:     time.Now,
		live:    make(map[string]*live),
		deleted: make(map[string]time.Time),
	}
}

// Create starts a new idle session.
func (m *Manager) Create(ctx context.Context) (string, *coordinator.Coordinator, error) {
	id := uuid.NewString()
	c := m.factory(coordinator.WithObserver(m.persist(id)))
	if err := m.store.Save(ctx, id, c.Snapshot(), m.ttl); err != nil {
		return "", nil, err
	}
	m.mu.Lock()
	m.pruneLocked()
	m.live[id] = &live{c: c, lastSeen: m.now()}
	m.mu.Unlock()
	m.logger.Info("session created", slog.String("session", id))
	return id, c, nil
}

// Get returns the coordinator for id, or ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*coordinator.Coordinator, error) {
	m.mu.Lock()
	if l, ok := m.live[id]; ok {
		l.lastSeen = m.now()
		m.mu.Unlock()
		return l.c, nil
	}
	m.mu.Unlock()

	snap, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	c := m.factory(coordinator.WithSnapshot(snap), coordinator.WithObserver(m.persist(id)))

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.live[id]; ok {
		// Lost a race with another loader.
		l.lastSeen = m.now()
		return l.c, nil
	}
	m.live[id] = &live{c: c, lastSeen: m.now()}
	m.logger.Debug("session restored", slog.String("session", id), slog.String("state", string(snap.State)))
	return c, nil
}

// Delete forgets id. Running calls of its coordinator still complete, but
// their snapshots are no longer stored.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.live, id)
	m.deleted[id] = m.now()
	m.mu.Unlock()
	return m.store.Delete(ctx, id)
}

func (m *Manager) isDeleted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.deleted[id]
	return ok
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Manager) persist(id string) func(coordinator.Snapshot) {
	return func(s coordinator.Snapshot) {
		if m.isDeleted(id) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.Save(ctx, id, s, m.ttl); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("session snapshot not saved",
				slog.String("session", id),
				slog.String("error", err.Error()),
			)
			return
		}
		// Delete may have run between the check and the save; its tombstone
		// is set before its store delete, so one of the two removes the key.
		if m.isDeleted(id) {
			if err := m.store.Delete(ctx, id); err != nil {
				m.logger.Warn("deleted session not removed",
					slog.String("session", id),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// pruneLocked drops live coordinators that have not been touched within the
// TTL. Their stored snapshots expire on their own. Deletion marks older than
// the TTL are dropped too.
func (m *Manager) pruneLocked() {
	cutoff := m.now().Add(-m.ttl)
	for id, l := range m.live {
		if l.lastSeen.Before(cutoff) {
			delete(m.live, id)
		}
	}
	for id, at := range m.deleted {
		if at.Before(cutoff) {
			delete(m.deleted, id)
		}
	}
}
