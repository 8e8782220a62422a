package session

import (
	"context"
	"testing"
	"time"

	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/internal/repository/contract"
	"grant-assistant-be/internal/repository/memory"
	"grant-assistant-be/pkg/proposal/contextstore"
	"grant-assistant-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func setup(t *testing.T) (*Manager, *contextstore.Store, *memory.KVRepository, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	repo := memory.NewKVRepository()
	log := logger.NewNopLogger()
	contexts := contextstore.New(repo, log, contextstore.WithClock(c.Now))
	m := NewManager(repo, contexts, log, WithClock(c.Now), WithTTL(time.Hour))
	return m, contexts, repo, c
}

func TestCreateAndLoad(t *testing.T) {
	m, _, repo, _ := setup(t)
	ctx := context.Background()

	created, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt.Add(time.Hour), created.ExpiresAt)

	raw, found, err := repo.Get(ctx, KeyActive)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created.ID, string(raw))

	other := NewManager(repo, contextstore.New(repo, logger.NewNopLogger()), logger.NewNopLogger(), WithClock(m.now))
	loaded, err := other.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)
}

func TestLoadCreatesWhenMissing(t *testing.T) {
	m, contexts, _, _ := setup(t)
	ctx := context.Background()
	contexts.UpdateContext(ctx, store.ApplicationContext{OrganizationName: "Open Society Foundations"})

	s, err := m.Load(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "Open Society Foundations", s.Context.OrganizationName)
	assert.Equal(t, "Open Society Foundations", contexts.GetContext().OrganizationName)
}

func TestLoadReplacesExpiredSession(t *testing.T) {
	m, contexts, repo, c := setup(t)
	ctx := context.Background()

	old, err := m.Create(ctx)
	require.NoError(t, err)
	contexts.UpdateContext(ctx, store.ApplicationContext{OrganizationName: "Open Society Foundations"})

	c.now = c.now.Add(2 * time.Hour)
	assert.True(t, m.IsExpired(*old))

	fresh, err := m.Load(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)

	_, found, err := repo.Get(ctx, sessionKey(old.ID))
	require.NoError(t, err)
	assert.False(t, found, "expired session must be gone after load")
	assert.True(t, contexts.GetContext().IsEmpty())
}

func TestLoadCollectsEveryExpiredSession(t *testing.T) {
	m, _, repo, c := setup(t)
	ctx := context.Background()

	stale := store.Session{ID: "stale", CreatedAt: c.now.Add(-48 * time.Hour), ExpiresAt: c.now.Add(-24 * time.Hour)}
	require.NoError(t, contract.SaveJSON(ctx, repo, sessionKey(stale.ID), stale))
	live, err := m.Create(ctx)
	require.NoError(t, err)

	_, err = m.Load(ctx)
	require.NoError(t, err)

	keys, err := repo.Keys(ctx, KeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{sessionKey(live.ID)}, keys)
}

func TestTouchNeverExtendsExpiry(t *testing.T) {
	m, contexts, repo, c := setup(t)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)
	c.now = c.now.Add(30 * time.Minute)
	contexts.UpdateContext(ctx, store.ApplicationContext{ProjectTitle: "Democracy Shield Project"})
	require.NoError(t, m.Touch(ctx))

	var stored store.Session
	found, err := contract.LoadJSON(ctx, repo, sessionKey(s.ID), &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s.ExpiresAt, stored.ExpiresAt)
	assert.Equal(t, c.now, stored.TouchedAt)
	assert.Equal(t, "Democracy Shield Project", stored.Context.ProjectTitle)
}

func TestTouchWithoutSession(t *testing.T) {
	m, _, _, _ := setup(t)
	assert.ErrorIs(t, m.Touch(context.Background()), ErrNoActiveSession)
}

func TestAttachTouchesOnUpdate(t *testing.T) {
	m, contexts, repo, _ := setup(t)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)
	detach := m.Attach(contexts)

	contexts.UpdateContext(ctx, store.ApplicationContext{OrganizationName: "Open Society Foundations"})
	var stored store.Session
	_, err = contract.LoadJSON(ctx, repo, sessionKey(s.ID), &stored)
	require.NoError(t, err)
	assert.Equal(t, "Open Society Foundations", stored.Context.OrganizationName)

	detach()
	contexts.UpdateContext(ctx, store.ApplicationContext{ProjectTitle: "Democracy Shield Project"})
	_, err = contract.LoadJSON(ctx, repo, sessionKey(s.ID), &stored)
	require.NoError(t, err)
	assert.Equal(t, "", stored.Context.ProjectTitle)
}

func TestResetWithAttachedManager(t *testing.T) {
	m, contexts, repo, _ := setup(t)
	ctx := context.Background()

	old, err := m.Create(ctx)
	require.NoError(t, err)
	m.Attach(contexts)
	contexts.UpdateContext(ctx, store.ApplicationContext{OrganizationName: "Open Society Foundations"})

	fresh, err := m.Reset(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.True(t, contexts.GetContext().IsEmpty())

	_, found, err := repo.Get(ctx, sessionKey(old.ID))
	require.NoError(t, err)
	assert.False(t, found)

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, fresh.ID, active.ID)
}
