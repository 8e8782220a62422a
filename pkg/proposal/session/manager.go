// Package session keeps the time-bounded identity around the live proposal
// context. Expiry is checked lazily on Load; nothing runs in the background.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/internal/repository/contract"
	"grant-assistant-be/pkg/proposal/contextstore"
	"grant-assistant-be/pkg/store"

	"github.com/google/uuid"
)

const (
	module = "SessionManager"

	KeyPrefix = "session:"
	KeyActive = "sessions:active"

	DefaultTTL = 24 * time.Hour
)

var ErrNoActiveSession = errors.New("no active session")

// ContextStore is the part of the context store the manager needs.
type ContextStore interface {
	GetContext() store.ApplicationContext
	ClearContext(ctx context.Context)
	Subscribe(fn contextstore.Listener) func()
}

type Manager struct {
	repo     contract.KVRepository
	contexts ContextStore
	logger   logger.ILogger
	ttl      time.Duration
	now      func() time.Time

	mu     sync.Mutex
	active *store.Session
}

type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(repo contract.KVRepository, contexts ContextStore, log logger.ILogger, opts ...Option) *Manager {
	m := &Manager{
		repo:     repo,
		contexts: contexts,
		logger:   log,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sessionKey(id string) string {
	return KeyPrefix + id
}

// Create starts a new session around the current context and makes it active.
func (m *Manager) Create(ctx context.Context) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(ctx)
}

func (m *Manager) createLocked(ctx context.Context) (*store.Session, error) {
	now := m.now()
	s := &store.Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		TouchedAt: now,
		Context:   m.contexts.GetContext(),
	}

	if err := contract.SaveJSON(ctx, m.repo, sessionKey(s.ID), s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	if err := m.repo.Set(ctx, KeyActive, []byte(s.ID)); err != nil {
		return nil, fmt.Errorf("failed to point active session: %w", err)
	}
	m.active = s

	m.logger.Info(module, "Session created", map[string]interface{}{
		"session_id": s.ID,
		"expires_at": s.ExpiresAt,
	})
	copied := *s
	return &copied, nil
}

// Load resolves the active session. Every expired session key is removed
// first. When the active session has expired the context is cleared along
// with it; when there is no active session a fresh one is created around
// whatever context is already stored.
func (m *Manager) Load(ctx context.Context) (*store.Session, error) {
	m.mu.Lock()
	s, clearContext, err := m.resolveLocked(ctx)
	m.mu.Unlock()
	if err != nil || s != nil {
		return s, err
	}

	// The store notifies subscribers on clear, Attach among them, so this
	// runs without the manager lock.
	if clearContext {
		m.contexts.ClearContext(ctx)
	}
	return m.Create(ctx)
}

func (m *Manager) resolveLocked(ctx context.Context) (*store.Session, bool, error) {
	m.active = nil

	expired, err := m.collectExpired(ctx)
	if err != nil {
		return nil, false, err
	}

	raw, found, err := m.repo.Get(ctx, KeyActive)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read active session pointer: %w", err)
	}
	activeID := strings.TrimSpace(string(raw))
	if !found || activeID == "" {
		return nil, false, nil
	}

	if expired[activeID] {
		m.logger.Info(module, "Active session expired", map[string]interface{}{"session_id": activeID})
		return nil, true, nil
	}

	var s store.Session
	ok, err := contract.LoadJSON(ctx, m.repo, sessionKey(activeID), &s)
	switch {
	case err != nil:
		m.logger.Warn(module, "Discarding malformed session", map[string]interface{}{"session_id": activeID, "error": err.Error()})
		_ = m.repo.Delete(ctx, sessionKey(activeID))
	case ok && !s.Expired(m.now()):
		m.active = &s
		copied := s
		return &copied, false, nil
	}
	return nil, false, nil
}

// StoredActiveID returns the id the persisted active pointer names, whether
// or not that session is still valid. It returns "" when there is none.
func (m *Manager) StoredActiveID(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, found, err := m.repo.Get(ctx, KeyActive)
	if err != nil {
		m.logger.Warn(module, "Failed to read active session pointer", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if !found {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// collectExpired deletes every stored session whose expiry has passed and
// returns their ids.
func (m *Manager) collectExpired(ctx context.Context) (map[string]bool, error) {
	keys, err := m.repo.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := m.now()
	expired := make(map[string]bool)
	for _, key := range keys {
		var s store.Session
		ok, err := contract.LoadJSON(ctx, m.repo, key, &s)
		if err != nil || !ok {
			continue
		}
		if !s.Expired(now) {
			continue
		}
		if err := m.repo.Delete(ctx, key); err != nil {
			m.logger.Warn(module, "Failed to delete expired session", map[string]interface{}{"key": key, "error": err.Error()})
			continue
		}
		expired[strings.TrimPrefix(key, KeyPrefix)] = true
	}

	if len(expired) > 0 {
		m.logger.Info(module, "Expired sessions removed", map[string]interface{}{"count": len(expired)})
	}
	return expired, nil
}

// Touch re-persists the active session with the current context. The
// expiry is never moved.
func (m *Manager) Touch(ctx context.Context) error {
	return m.touch(ctx, m.contexts.GetContext())
}

func (m *Manager) touch(ctx context.Context, appCtx store.ApplicationContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ErrNoActiveSession
	}
	m.active.Context = appCtx
	m.active.TouchedAt = m.now()

	if err := contract.SaveJSON(ctx, m.repo, sessionKey(m.active.ID), m.active); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// IsExpired reports whether s is past its expiry at the manager's clock.
func (m *Manager) IsExpired(s store.Session) bool {
	return s.Expired(m.now())
}

// Reset drops the active session, clears the context and starts over.
func (m *Manager) Reset(ctx context.Context) (*store.Session, error) {
	m.mu.Lock()
	if m.active != nil {
		if err := m.repo.Delete(ctx, sessionKey(m.active.ID)); err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("failed to delete session: %w", err)
		}
		m.logger.Info(module, "Session reset", map[string]interface{}{"session_id": m.active.ID})
		m.active = nil
	}
	m.mu.Unlock()

	m.contexts.ClearContext(ctx)
	return m.Create(ctx)
}

// Active returns a copy of the active session.
func (m *Manager) Active() (store.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return store.Session{}, false
	}
	return *m.active, true
}

// Attach touches the active session after every context update. The returned
// function detaches it.
func (m *Manager) Attach(contexts ContextStore) func() {
	return contexts.Subscribe(func(snap contextstore.Snapshot) {
		if err := m.touch(context.Background(), snap.Context); err != nil && !errors.Is(err, ErrNoActiveSession) {
			m.logger.Error(module, "Failed to touch session", map[string]interface{}{"error": err.Error()})
		}
	})
}
