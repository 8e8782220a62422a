package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"grant-assistant-be/internal/dto"
	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/pkg/events"
	"grant-assistant-be/pkg/proposal/contextstore"
	"grant-assistant-be/pkg/proposal/extractor"
	"grant-assistant-be/pkg/proposal/session"
	"grant-assistant-be/pkg/proposal/validator"
	"grant-assistant-be/pkg/proposal/workflow"
	"grant-assistant-be/pkg/store"
)

var (
	ErrInvalidStep    = errors.New("unknown workflow step")
	ErrInvalidSection = errors.New("invalid section update")
)

type IProposalService interface {
	Start(ctx context.Context) (*dto.SessionResponse, error)
	SendMessage(ctx context.Context, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error)
	PatchContext(ctx context.Context, req *dto.PatchContextRequest) (*dto.PatchContextResponse, error)
	GetContext(ctx context.Context) *dto.ContextResponse
	ResetSession(ctx context.Context) (*dto.SessionResponse, error)
	GetSession(ctx context.Context) (*dto.SessionResponse, error)
	GetSteps(ctx context.Context) []dto.StepResponse
	GetStepRequirements(ctx context.Context, step string) (*workflow.Requirement, error)
	Navigate(ctx context.Context, req *dto.NavigateRequest) (*workflow.Transition, error)
	UpdateSection(ctx context.Context, req *dto.UpdateSectionRequest) (*dto.UpdateSectionResponse, error)
	GetTranscript(ctx context.Context) *dto.TranscriptResponse
	Subscribe(fn contextstore.Listener) func()
}

type proposalService struct {
	contexts   *contextstore.Store
	sessions   *session.Manager
	drafts     IDraftService
	transcript *Transcript
	publisher  events.Publisher
	logger     logger.ILogger

	autoSaveEvery int

	mu             sync.Mutex
	pendingChanges int
}

func NewProposalService(
	contexts *contextstore.Store,
	sessions *session.Manager,
	drafts IDraftService,
	transcript *Transcript,
	publisher events.Publisher,
	log logger.ILogger,
	autoSaveEvery int,
) IProposalService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &proposalService{
		contexts:      contexts,
		sessions:      sessions,
		drafts:        drafts,
		transcript:    transcript,
		publisher:     publisher,
		logger:        log,
		autoSaveEvery: autoSaveEvery,
	}
}

// Start restores persisted state: the context (with legacy migration), the
// transcript and the active session. The transcript is dropped when the
// stored session turns out to have expired.
func (s *proposalService) Start(ctx context.Context) (*dto.SessionResponse, error) {
	report := s.contexts.Load(ctx)
	s.logger.Info("ProposalService", "Context loaded", map[string]interface{}{
		"source":    report.Source,
		"migrated":  report.Migrated,
		"malformed": report.Malformed,
		"step":      string(s.contexts.CurrentStep()),
	})
	s.transcript.Load(ctx)

	prevID := s.sessions.StoredActiveID(ctx)
	sess, err := s.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	// A replaced session takes its conversation with it.
	if prevID != "" && prevID != sess.ID {
		s.transcript.Clear(ctx)
		s.logger.Info("ProposalService", "Previous session ended, transcript cleared", map[string]interface{}{
			"previous_session_id": prevID,
			"session_id":          sess.ID,
		})
	}
	return toSessionResponse(*sess), nil
}

func (s *proposalService) SendMessage(ctx context.Context, req *dto.SendMessageRequest) (*dto.SendMessageResponse, error) {
	role := req.Role
	if role == "" {
		role = store.RoleUser
	}
	s.transcript.Append(ctx, store.Message{Role: role, Content: validator.Sanitize(req.Content), Timestamp: time.Now()})

	res := &dto.SendMessageResponse{Extracted: []string{}}
	before := s.contexts.CurrentStep()

	// Assistant turns are recorded but never mined for fields.
	if role == store.RoleUser {
		extracted := extractor.Extract(req.Content, s.contexts.GetContext())
		res.Rule = string(extracted.Rule)
		res.Rejected = extracted.Rejections

		if !extracted.Empty() {
			update := s.contexts.UpdateContext(ctx, extracted.Patch)
			res.Extracted = update.Applied
			for field, rejection := range update.Rejected {
				if res.Rejected == nil {
					res.Rejected = make(map[string]validator.Result)
				}
				res.Rejected[field] = rejection
			}
			s.afterUpdate(ctx, update, before)
			res.AutoSaved = s.countChange(ctx, update.Changed)
		}
	}

	snap := s.contexts.Snapshot()
	res.Context = snap.Context
	res.Step = snap.Step
	res.NextField = extractor.NextExpectedField(snap.Context)
	res.Missing = s.contexts.ValidateStepRequirements(workflow.StepBasics).Missing
	res.Completion = workflow.Completion(snap.Context, snap.Sections)
	return res, nil
}

func (s *proposalService) PatchContext(ctx context.Context, req *dto.PatchContextRequest) (*dto.PatchContextResponse, error) {
	before := s.contexts.CurrentStep()
	update := s.contexts.UpdateContext(ctx, req.ToContext())
	s.afterUpdate(ctx, update, before)
	s.countChange(ctx, update.Changed)

	return &dto.PatchContextResponse{
		Applied:  update.Applied,
		Rejected: update.Rejected,
		Changed:  update.Changed,
		Context:  NewContextResponse(update.Snapshot),
	}, nil
}

func (s *proposalService) afterUpdate(ctx context.Context, update contextstore.UpdateResult, before workflow.Step) {
	if !update.Changed {
		return
	}
	sessionID := s.sessionID()
	now := time.Now()
	s.publish(ctx, events.NewContextUpdated(sessionID, update.Applied, string(update.Snapshot.Step), now))
	if update.Snapshot.Step != before {
		s.publish(ctx, events.NewStepChanged(sessionID, string(before), string(update.Snapshot.Step), now))
	}
}

// countChange feeds the change counter and autosaves when it reaches the
// configured threshold. It reports whether an autosave was written.
func (s *proposalService) countChange(ctx context.Context, changed bool) bool {
	if !changed || s.autoSaveEvery <= 0 || s.drafts == nil {
		return false
	}

	s.mu.Lock()
	s.pendingChanges++
	due := s.pendingChanges >= s.autoSaveEvery
	if due {
		s.pendingChanges = 0
	}
	s.mu.Unlock()

	if !due {
		return false
	}
	d, err := s.drafts.AutoSave(ctx)
	if err != nil {
		s.logger.Error("ProposalService", "Autosave failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	return d != nil
}

func (s *proposalService) GetContext(ctx context.Context) *dto.ContextResponse {
	res := NewContextResponse(s.contexts.Snapshot())
	return &res
}

func (s *proposalService) ResetSession(ctx context.Context) (*dto.SessionResponse, error) {
	sess, err := s.sessions.Reset(ctx)
	if err != nil {
		return nil, err
	}
	s.transcript.Clear(ctx)

	s.mu.Lock()
	s.pendingChanges = 0
	s.mu.Unlock()

	s.publish(ctx, events.NewSessionCreated(sess.ID, sess.ExpiresAt, time.Now()))
	return toSessionResponse(*sess), nil
}

// GetSession re-runs the lazy expiry check, so an expired session is
// replaced here.
func (s *proposalService) GetSession(ctx context.Context) (*dto.SessionResponse, error) {
	prev, hadActive := s.sessions.Active()
	sess, err := s.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	if hadActive && prev.ID != sess.ID {
		s.transcript.Clear(ctx)
		s.publish(ctx, events.NewSessionCreated(sess.ID, sess.ExpiresAt, time.Now()))
	}
	return toSessionResponse(*sess), nil
}

func (s *proposalService) GetSteps(ctx context.Context) []dto.StepResponse {
	current := s.contexts.CurrentStep()
	steps := workflow.Steps()
	out := make([]dto.StepResponse, 0, len(steps))
	for i, step := range steps {
		section, _ := workflow.SectionFor(step)
		out = append(out, dto.StepResponse{
			Step:      step,
			Index:     i,
			Current:   step == current,
			Section:   section,
			Satisfied: s.contexts.ValidateStepRequirements(step).Satisfied,
		})
	}
	return out
}

func (s *proposalService) GetStepRequirements(ctx context.Context, name string) (*workflow.Requirement, error) {
	step, ok := workflow.Parse(name)
	if !ok {
		return nil, ErrInvalidStep
	}
	req := s.contexts.ValidateStepRequirements(step)
	return &req, nil
}

func (s *proposalService) Navigate(ctx context.Context, req *dto.NavigateRequest) (*workflow.Transition, error) {
	step, ok := workflow.Parse(req.Step)
	if !ok {
		return nil, ErrInvalidStep
	}
	t := s.contexts.NavigateTo(ctx, step)
	if t.Allowed && t.Direction != workflow.DirectionStay {
		s.publish(ctx, events.NewStepChanged(s.sessionID(), string(t.From), string(s.contexts.CurrentStep()), time.Now()))
	}
	return &t, nil
}

func (s *proposalService) UpdateSection(ctx context.Context, req *dto.UpdateSectionRequest) (*dto.UpdateSectionResponse, error) {
	before := s.contexts.CurrentStep()
	p, err := s.contexts.UpdateSectionProgress(ctx, req.Id, contextstore.SectionUpdate{
		Status:               req.Status,
		CompletionPercentage: req.CompletionPercentage,
		Notes:                req.Notes,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidSection, err)
	}

	after := s.contexts.CurrentStep()
	if after != before {
		s.publish(ctx, events.NewStepChanged(s.sessionID(), string(before), string(after), time.Now()))
	}
	s.countChange(ctx, true)
	return &dto.UpdateSectionResponse{Id: req.Id, Progress: p, Step: after}, nil
}

func (s *proposalService) GetTranscript(ctx context.Context) *dto.TranscriptResponse {
	messages := s.transcript.All()
	return &dto.TranscriptResponse{Messages: messages, Total: len(messages)}
}

func (s *proposalService) Subscribe(fn contextstore.Listener) func() {
	return s.contexts.Subscribe(fn)
}

func (s *proposalService) sessionID() string {
	if sess, ok := s.sessions.Active(); ok {
		return sess.ID
	}
	return ""
}

func (s *proposalService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("ProposalService", "Failed to publish event", map[string]interface{}{
			"event": e.EventType(),
			"error": err.Error(),
		})
	}
}

func NewContextResponse(snap contextstore.Snapshot) dto.ContextResponse {
	return dto.ContextResponse{
		Context:    snap.Context,
		Sections:   snap.Sections,
		Step:       snap.Step,
		Pinned:     snap.Pinned,
		Completion: workflow.Completion(snap.Context, snap.Sections),
		UpdatedAt:  snap.UpdatedAt,
	}
}

func toSessionResponse(sess store.Session) *dto.SessionResponse {
	return &dto.SessionResponse{
		Id:        sess.ID,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
		TouchedAt: sess.TouchedAt,
	}
}
