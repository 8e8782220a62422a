// Package contextstore owns the live ApplicationContext of the active
// proposal session: validated merges, persistence, legacy migration and
// change notification.
package contextstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/internal/repository/contract"
	"grant-assistant-be/pkg/proposal/template"
	"grant-assistant-be/pkg/proposal/validator"
	"grant-assistant-be/pkg/proposal/workflow"
	"grant-assistant-be/pkg/store"
)

const module = "ContextStore"

var (
	ErrInvalidSection = errors.New("invalid section id")
	ErrInvalidStatus  = errors.New("invalid section status")
)

// Listener receives the snapshot written by an update.
type Listener func(Snapshot)

type subscription struct {
	id uint64
	fn Listener
}

// UpdateResult reports what an UpdateContext call did with its patch.
type UpdateResult struct {
	Snapshot Snapshot                    `json:"snapshot"`
	Applied  []string                    `json:"applied"`
	Rejected map[string]validator.Result `json:"rejected,omitempty"`
	Changed  bool                        `json:"changed"`
}

// SectionUpdate carries the section fields a collaborator wants to change;
// nil fields are left alone.
type SectionUpdate struct {
	Status               *string
	CompletionPercentage *float64
	Notes                *string
}

// Store is the canonical holder of the live context. Mutations are
// serialised; subscribers are called after the new state is persisted, in
// registration order, with only the writer lock held. Subscribers may read
// the store but must not call back into a mutating method.
type Store struct {
	repo   contract.KVRepository
	logger logger.ILogger
	now    func() time.Time

	writeMu sync.Mutex
	mu      sync.RWMutex
	rec     Record

	subMu  sync.Mutex
	subs   []subscription
	nextID uint64
}

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(repo contract.KVRepository, log logger.ILogger, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rec = emptyRecord(s.now())
	return s
}

// GetContext returns a copy of the current context.
func (s *Store) GetContext() store.ApplicationContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Context.Clone()
}

// Snapshot returns a copy of the full state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.snapshot()
}

// SectionProgress returns a copy of the section progress map.
func (s *Store) SectionProgress() map[string]store.SectionProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.CloneSections(s.rec.Sections)
}

// CurrentStep returns the workflow position.
func (s *Store) CurrentStep() workflow.Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Step
}

// Subscribe registers fn for every subsequent update. The returned function
// removes it and may be called more than once.
func (s *Store) Subscribe(fn Listener) func() {
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// UpdateContext validates the gating fields of patch, merges everything that
// passed, persists and notifies. Rejected values are dropped, never stored.
func (s *Store) UpdateContext(ctx context.Context, patch store.ApplicationContext) UpdateResult {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result := UpdateResult{Applied: []string{}}
	accepted := store.ApplicationContext{}

	for _, field := range store.GatingFields {
		raw := patch.Get(field)
		if raw == "" {
			continue
		}
		check := validator.Validate(field, raw)
		if !check.Valid {
			if result.Rejected == nil {
				result.Rejected = make(map[string]validator.Result)
			}
			result.Rejected[field] = check
			s.logger.Debug(module, "Dropped invalid field", map[string]interface{}{
				"field":  field,
				"reason": check.Reason,
			})
			continue
		}
		accepted.Set(field, check.Value)
		result.Applied = append(result.Applied, field)
	}

	// Pass-through metadata is sanitized but not validated.
	meta, _ := validator.CleanContext(store.ApplicationContext{
		TemplateID: patch.TemplateID,
		Acronym:    patch.Acronym,
		Country:    patch.Country,
		Budget:     patch.Budget,
		Duration:   patch.Duration,
		Partners:   patch.Partners,
	})
	accepted = accepted.Merge(meta)
	if !meta.IsEmpty() {
		result.Applied = append(result.Applied, "metadata")
	}

	s.mu.Lock()
	before := s.rec
	next := s.rec
	next.Context = s.rec.Context.Merge(accepted)
	if accepted.Call != "" && accepted.TemplateID == "" {
		next.Context.TemplateID = template.Resolve(accepted.Call)
	}
	next = settle(next)
	result.Changed = !recordsEqual(before, withTime(next, before.UpdatedAt))
	if result.Changed {
		next.UpdatedAt = s.now()
	}
	s.rec = next
	snap := s.rec.snapshot()
	s.mu.Unlock()

	result.Snapshot = snap
	if len(result.Applied) == 0 {
		return result
	}

	if before.Step != snap.Step {
		s.logger.Info(module, "Workflow step changed", map[string]interface{}{
			"from": string(before.Step),
			"to":   string(snap.Step),
		})
	}
	s.persist(ctx)
	s.notify(snap)
	return result
}

// ClearContext resets the context, section progress and workflow position.
func (s *Store) ClearContext(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.rec = emptyRecord(s.now())
	snap := s.rec.snapshot()
	s.mu.Unlock()

	s.logger.Info(module, "Context cleared", nil)
	s.persist(ctx)
	s.notify(snap)
}

// Restore replaces the whole state, e.g. from a draft. The context goes
// through the same validation as UpdateContext.
func (s *Store) Restore(ctx context.Context, appCtx store.ApplicationContext, sections map[string]store.SectionProgress) Snapshot {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, report := Migrate(Record{
		SchemaVersion: CurrentSchemaVersion,
		Context:       appCtx,
		Sections:      sections,
		Step:          workflow.Initial(),
	})
	rec.UpdatedAt = s.now()

	s.mu.Lock()
	s.rec = rec
	snap := s.rec.snapshot()
	s.mu.Unlock()

	s.logger.Info(module, "Context restored", map[string]interface{}{
		"dropped": report.DroppedFields,
		"step":    string(snap.Step),
	})
	s.persist(ctx)
	s.notify(snap)
	return snap
}

// UpdateSectionProgress changes one section entry, creating it on first touch.
func (s *Store) UpdateSectionProgress(ctx context.Context, sectionID string, upd SectionUpdate) (store.SectionProgress, error) {
	sectionID = validator.Sanitize(sectionID)
	if sectionID == "" {
		return store.SectionProgress{}, ErrInvalidSection
	}
	if upd.Status != nil && !store.IsValidSectionStatus(*upd.Status) {
		return store.SectionProgress{}, ErrInvalidStatus
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	now := s.now()
	p, ok := s.rec.Sections[sectionID]
	if !ok {
		p = store.SectionProgress{Status: store.SectionNotStarted}
	}
	if upd.Status != nil {
		p.Status = *upd.Status
		if p.Status == store.SectionComplete && upd.CompletionPercentage == nil {
			p.CompletionPercentage = 100
		}
	}
	if upd.CompletionPercentage != nil {
		p.CompletionPercentage = clampPercentage(*upd.CompletionPercentage)
	}
	if upd.Notes != nil {
		p.Notes = validator.Sanitize(*upd.Notes)
	}
	p.UpdatedAt = now

	sections := store.CloneSections(s.rec.Sections)
	sections[sectionID] = p
	before := s.rec.Step
	s.rec.Sections = sections
	s.rec = settle(s.rec)
	s.rec.UpdatedAt = now
	snap := s.rec.snapshot()
	s.mu.Unlock()

	if before != snap.Step {
		s.logger.Info(module, "Workflow step changed", map[string]interface{}{
			"from":    string(before),
			"to":      string(snap.Step),
			"section": sectionID,
		})
	}
	s.persist(ctx)
	s.notify(snap)
	return p, nil
}

// ValidateStepRequirements evaluates the exit guard of step against the
// current state.
func (s *Store) ValidateStepRequirements(step workflow.Step) workflow.Requirement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return workflow.Requirements(step, s.rec.Context, s.rec.Sections)
}

// CanAdvanceToStep is true when to immediately follows from and from's
// requirements hold.
func (s *Store) CanAdvanceToStep(from, to workflow.Step) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return workflow.CanAdvance(from, to, s.rec.Context, s.rec.Sections)
}

// NavigateTo moves the workflow position. Backward moves always succeed and
// pin the position; forward moves go one guarded step at a time.
func (s *Store) NavigateTo(ctx context.Context, to workflow.Step) workflow.Transition {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	t := workflow.Evaluate(s.rec.Step, to, s.rec.Context, s.rec.Sections)
	if !t.Allowed || t.Direction == workflow.DirectionStay {
		s.mu.Unlock()
		return t
	}
	s.rec.Step = to
	s.rec.Pinned = true
	s.rec = settle(s.rec)
	s.rec.UpdatedAt = s.now()
	snap := s.rec.snapshot()
	s.mu.Unlock()

	s.logger.Info(module, "Workflow navigation", map[string]interface{}{
		"from":      string(t.From),
		"to":        string(t.To),
		"direction": string(t.Direction),
	})
	s.persist(ctx)
	s.notify(snap)
	return t
}

// Load restores persisted state, migrating legacy data when needed. Broken
// or missing data yields an empty context. Storage problems are logged.
func (s *Store) Load(ctx context.Context) MigrationReport {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, report, persist := s.readPersisted(ctx)

	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()

	if persist {
		s.persist(ctx)
	}
	if report.Source != "" && report.Source != KeyContext {
		for _, key := range legacyKeys {
			if err := s.repo.Delete(ctx, key); err != nil {
				s.logger.Warn(module, "Failed to remove legacy context key", map[string]interface{}{"key": key, "error": err.Error()})
			}
		}
	}
	if report.Migrated {
		s.logger.Info(module, "Migrated persisted context", map[string]interface{}{
			"source":  report.Source,
			"from":    report.FromVersion,
			"to":      report.ToVersion,
			"dropped": report.DroppedFields,
		})
	}
	return report
}

func (s *Store) readPersisted(ctx context.Context) (Record, MigrationReport, bool) {
	fresh := emptyRecord(s.now())

	for _, key := range append([]string{KeyContext}, legacyKeys...) {
		raw, found, err := s.repo.Get(ctx, key)
		if err != nil {
			s.logger.Warn(module, "Failed to read persisted context", map[string]interface{}{"key": key, "error": err.Error()})
			continue
		}
		if !found {
			continue
		}

		decoded, err := decodeRecord(key, raw)
		if err != nil {
			s.logger.Warn(module, "Ignoring malformed persisted context", map[string]interface{}{"detail": describe(key, err)})
			if key == KeyContext {
				return fresh, MigrationReport{Source: key, ToVersion: CurrentSchemaVersion, Malformed: true}, true
			}
			continue
		}

		rec, report := Migrate(decoded)
		report.Source = key
		persist := report.Migrated || key != KeyContext
		if persist || rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = s.now()
		}
		return rec, report, persist
	}
	return fresh, MigrationReport{ToVersion: CurrentSchemaVersion}, false
}

func (s *Store) persist(ctx context.Context) {
	s.mu.RLock()
	rec := s.rec
	s.mu.RUnlock()

	if err := contract.SaveJSON(ctx, s.repo, KeyContext, rec); err != nil {
		s.logger.Error(module, "Failed to persist context", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.Lock()
	subs := append([]subscription(nil), s.subs...)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(copySnapshot(snap))
	}
}

func copySnapshot(snap Snapshot) Snapshot {
	snap.Context = snap.Context.Clone()
	snap.Sections = store.CloneSections(snap.Sections)
	return snap
}

func withTime(r Record, t time.Time) Record {
	r.UpdatedAt = t
	return r
}
