// Package draft manages named, versioned snapshots of a proposal session and
// the reserved autosave slot. Drafts live in their own key namespace and
// never touch the live context.
package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/internal/repository/contract"
	"grant-assistant-be/pkg/proposal/validator"
	"grant-assistant-be/pkg/store"

	"github.com/google/uuid"
)

const (
	module = "DraftManager"

	KeyPrefix   = "drafts:"
	KeyIndex    = "drafts:index"
	KeyAutoSave = "drafts:autosave"
	KeyCurrent  = "drafts:current"

	DefaultName = "Untitled draft"
)

var ErrDraftNotFound = errors.New("draft not found")

// Input is what a caller hands over to be captured in a draft.
type Input struct {
	// ID selects the draft to overwrite. It only takes effect when it names
	// the current draft; otherwise a new draft is created.
	ID                string
	Name              string
	Context           store.ApplicationContext
	Transcript        []store.Message
	PopulatedSections map[string]string
	Sections          map[string]store.SectionProgress
	Metadata          store.DraftMetadata
}

// Stats aggregates over the named drafts.
type Stats struct {
	TotalDrafts       int        `json:"totalDrafts"`
	AverageCompletion float64    `json:"averageCompletion"`
	AutoSaveAt        *time.Time `json:"autoSaveAt,omitempty"`
}

type Manager struct {
	repo   contract.KVRepository
	logger logger.ILogger
	now    func() time.Time

	mu       sync.Mutex
	autoSave bool
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithAutoSave sets the initial autosave switch. Autosave is on by default.
func WithAutoSave(enabled bool) Option {
	return func(m *Manager) { m.autoSave = enabled }
}

func NewManager(repo contract.KVRepository, log logger.ILogger, opts ...Option) *Manager {
	m := &Manager{
		repo:     repo,
		logger:   log,
		now:      time.Now,
		autoSave: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func draftKey(id string) string {
	return KeyPrefix + id
}

// reserved reports whether id collides with one of the manager's own keys
// in the drafts namespace. Such ids never name a stored draft.
func reserved(id string) bool {
	switch KeyPrefix + id {
	case KeyIndex, KeyAutoSave, KeyCurrent:
		return true
	}
	return id == ""
}

// SaveDraft stores a named draft. Saving over the current draft bumps its
// version and keeps its creation time; anything else creates version 1.
// The saved draft becomes current.
func (m *Manager) SaveDraft(ctx context.Context, in Input) (*store.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	d := m.build(in, now)

	current := m.currentID(ctx)
	if in.ID != "" && in.ID == current {
		if prev, ok := m.read(ctx, draftKey(in.ID)); ok {
			d.ID = prev.ID
			d.Version = prev.Version + 1
			d.CreatedAt = prev.CreatedAt
		}
	}

	if err := contract.SaveJSON(ctx, m.repo, draftKey(d.ID), d); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	if d.Version == 1 {
		ids := m.readIndex(ctx)
		if err := m.writeIndex(ctx, append(ids, d.ID)); err != nil {
			return nil, err
		}
	}
	if err := m.repo.Set(ctx, KeyCurrent, []byte(d.ID)); err != nil {
		return nil, fmt.Errorf("failed to mark current draft: %w", err)
	}

	m.logger.Info(module, "Draft saved", map[string]interface{}{
		"draft_id": d.ID,
		"version":  d.Version,
		"name":     d.Name,
	})
	out := d.Clone()
	return &out, nil
}

func (m *Manager) build(in Input, now time.Time) store.Draft {
	name := validator.Sanitize(in.Name)
	if name == "" {
		name = DefaultName
	}
	// Stored drafts hold the same normalized context an import would produce.
	appCtx, dropped := validator.CleanContext(in.Context)
	if len(dropped) > 0 {
		m.logger.Warn(module, "Draft context carried invalid fields", map[string]interface{}{"dropped": dropped})
	}
	d := store.Draft{
		ID:                uuid.New().String(),
		Name:              name,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
		Context:           appCtx,
		Transcript:        in.Transcript,
		PopulatedSections: in.PopulatedSections,
		Sections:          in.Sections,
		Metadata:          in.Metadata,
	}
	// Clone so the caller's slices and maps are never aliased by storage.
	return d.Clone()
}

// AutoSave writes the reserved autosave slot. It does nothing and returns
// nil when autosave is switched off; throttling is up to the caller.
func (m *Manager) AutoSave(ctx context.Context, in Input) (*store.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.autoSave {
		return nil, nil
	}

	now := m.now()
	if in.Name == "" {
		in.Name = "Autosave"
	}
	d := m.build(in, now)
	d.ID = store.AutoSaveDraftID
	d.AutoSave = true
	if prev, ok := m.read(ctx, KeyAutoSave); ok {
		d.Version = prev.Version + 1
		d.CreatedAt = prev.CreatedAt
	}

	if err := contract.SaveJSON(ctx, m.repo, KeyAutoSave, d); err != nil {
		return nil, fmt.Errorf("failed to write autosave: %w", err)
	}
	m.logger.Debug(module, "Autosaved", map[string]interface{}{"version": d.Version})
	out := d.Clone()
	return &out, nil
}

func (m *Manager) SetAutoSave(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoSave = enabled
	m.logger.Info(module, "Autosave switched", map[string]interface{}{"enabled": enabled})
}

func (m *Manager) AutoSaveEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoSave
}

// LoadAutoSave returns the autosave slot, if any.
func (m *Manager) LoadAutoSave(ctx context.Context) (*store.Draft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.read(ctx, KeyAutoSave)
	if !ok {
		return nil, false
	}
	return &d, true
}

// LoadDraft returns a stored draft unchanged and makes it current.
func (m *Manager) LoadDraft(ctx context.Context, id string) (*store.Draft, bool) {
	if id == store.AutoSaveDraftID {
		return m.LoadAutoSave(ctx)
	}

	if reserved(id) {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.read(ctx, draftKey(id))
	if !ok {
		return nil, false
	}
	if err := m.repo.Set(ctx, KeyCurrent, []byte(d.ID)); err != nil {
		m.logger.Warn(module, "Failed to mark current draft", map[string]interface{}{"draft_id": id, "error": err.Error()})
	}
	return &d, true
}

// DeleteDraft removes a draft. It reports false when the id is unknown.
func (m *Manager) DeleteDraft(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reserved(id) {
		return false, nil
	}
	_, found, err := m.repo.Get(ctx, draftKey(id))
	if err != nil {
		return false, fmt.Errorf("failed to read draft: %w", err)
	}
	if !found {
		return false, nil
	}

	if err := m.repo.Delete(ctx, draftKey(id)); err != nil {
		return false, fmt.Errorf("failed to delete draft: %w", err)
	}
	ids := m.readIndex(ctx)
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if err := m.writeIndex(ctx, kept); err != nil {
		return false, err
	}
	if m.currentID(ctx) == id {
		if err := m.repo.Delete(ctx, KeyCurrent); err != nil {
			return false, fmt.Errorf("failed to clear current draft: %w", err)
		}
	}

	m.logger.Info(module, "Draft deleted", map[string]interface{}{"draft_id": id})
	return true, nil
}

// ListDrafts returns the named drafts in the order they were first saved.
func (m *Manager) ListDrafts(ctx context.Context) []store.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.readIndex(ctx)
	drafts := make([]store.Draft, 0, len(ids))
	for _, id := range ids {
		if d, ok := m.read(ctx, draftKey(id)); ok {
			drafts = append(drafts, d)
		}
	}
	return drafts
}

// ClearAllDrafts empties the collection, autosave slot included. The live
// context is not touched.
func (m *Manager) ClearAllDrafts(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.repo.Keys(ctx, KeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to list drafts: %w", err)
	}
	for _, key := range keys {
		if err := m.repo.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}

	m.logger.Info(module, "All drafts cleared", map[string]interface{}{"keys": len(keys)})
	return nil
}

// GetDraftStats aggregates over the named drafts. The average only counts
// drafts that carry a completion percentage and is 0 when none do.
func (m *Manager) GetDraftStats(ctx context.Context) Stats {
	drafts := m.ListDrafts(ctx)

	stats := Stats{TotalDrafts: len(drafts)}
	var sum float64
	var counted int
	for _, d := range drafts {
		if d.Metadata.CompletionPercentage != nil {
			sum += *d.Metadata.CompletionPercentage
			counted++
		}
	}
	if counted > 0 {
		stats.AverageCompletion = sum / float64(counted)
	}
	if auto, ok := m.LoadAutoSave(ctx); ok {
		at := auto.UpdatedAt
		stats.AutoSaveAt = &at
	}
	return stats
}

// CurrentDraftID returns the id of the current draft or "".
func (m *Manager) CurrentDraftID(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID(ctx)
}

func (m *Manager) currentID(ctx context.Context) string {
	raw, found, err := m.repo.Get(ctx, KeyCurrent)
	if err != nil {
		m.logger.Warn(module, "Failed to read current draft pointer", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if !found {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func (m *Manager) read(ctx context.Context, key string) (store.Draft, bool) {
	var d store.Draft
	found, err := contract.LoadJSON(ctx, m.repo, key, &d)
	if err != nil {
		m.logger.Warn(module, "Ignoring unreadable draft", map[string]interface{}{"key": key, "error": err.Error()})
		return store.Draft{}, false
	}
	return d, found
}

// readIndex returns the ordered id list. A broken index is rebuilt from the
// stored draft keys.
func (m *Manager) readIndex(ctx context.Context) []string {
	var ids []string
	found, err := contract.LoadJSON(ctx, m.repo, KeyIndex, &ids)
	if err == nil {
		if !found {
			return []string{}
		}
		return ids
	}

	m.logger.Warn(module, "Rebuilding draft index", map[string]interface{}{"error": err.Error()})
	keys, err := m.repo.Keys(ctx, KeyPrefix)
	if err != nil {
		return []string{}
	}
	ids = []string{}
	for _, key := range keys {
		switch key {
		case KeyIndex, KeyAutoSave, KeyCurrent:
			continue
		}
		ids = append(ids, strings.TrimPrefix(key, KeyPrefix))
	}
	return ids
}

func (m *Manager) writeIndex(ctx context.Context, ids []string) error {
	if err := contract.SaveJSON(ctx, m.repo, KeyIndex, ids); err != nil {
		return fmt.Errorf("failed to write draft index: %w", err)
	}
	return nil
}
