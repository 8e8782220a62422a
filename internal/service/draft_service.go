package service

import (
	"context"
	"time"

	"grant-assistant-be/internal/dto"
	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/pkg/events"
	"grant-assistant-be/pkg/proposal/contextstore"
	"grant-assistant-be/pkg/proposal/draft"
	"grant-assistant-be/pkg/proposal/workflow"
	"grant-assistant-be/pkg/store"
)

type IDraftService interface {
	List(ctx context.Context) *dto.ListDraftsResponse
	Save(ctx context.Context, req *dto.SaveDraftRequest) (*store.Draft, error)
	Get(ctx context.Context, id string) (*store.Draft, error)
	Delete(ctx context.Context, id string) error
	Export(ctx context.Context, id string) (string, error)
	Import(ctx context.Context, req *dto.ImportDraftRequest) (*store.Draft, error)
	Stats(ctx context.Context) *dto.DraftStatsResponse
	AutoSave(ctx context.Context) (*store.Draft, error)
	GetAutoSave(ctx context.Context) (*store.Draft, error)
	SetAutoSave(ctx context.Context, req *dto.AutoSaveSettingsRequest) *dto.AutoSaveSettingsResponse
	Restore(ctx context.Context, id string) (*dto.RestoreDraftResponse, error)
	ClearAll(ctx context.Context) error
}

type draftService struct {
	drafts     *draft.Manager
	contexts   *contextstore.Store
	transcript *Transcript
	publisher  events.Publisher
	logger     logger.ILogger
}

func NewDraftService(
	drafts *draft.Manager,
	contexts *contextstore.Store,
	transcript *Transcript,
	publisher events.Publisher,
	log logger.ILogger,
) IDraftService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &draftService{
		drafts:     drafts,
		contexts:   contexts,
		transcript: transcript,
		publisher:  publisher,
		logger:     log,
	}
}

// capture builds a draft input from the live session.
func (s *draftService) capture() draft.Input {
	snap := s.contexts.Snapshot()
	completion := workflow.Completion(snap.Context, snap.Sections)
	return draft.Input{
		Context:    snap.Context,
		Transcript: s.transcript.All(),
		Sections:   snap.Sections,
		Metadata: store.DraftMetadata{
			CompletionPercentage: &completion,
			Step:                 string(snap.Step),
		},
	}
}

func (s *draftService) List(ctx context.Context) *dto.ListDraftsResponse {
	drafts := s.drafts.ListDrafts(ctx)
	res := &dto.ListDraftsResponse{
		Drafts:    make([]dto.DraftSummary, 0, len(drafts)),
		CurrentId: s.drafts.CurrentDraftID(ctx),
	}
	for _, d := range drafts {
		res.Drafts = append(res.Drafts, dto.NewDraftSummary(d))
	}
	return res
}

func (s *draftService) Save(ctx context.Context, req *dto.SaveDraftRequest) (*store.Draft, error) {
	in := s.capture()
	in.ID = req.Id
	in.Name = req.Name
	in.PopulatedSections = req.PopulatedSections

	d, err := s.drafts.SaveDraft(ctx, in)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.NewDraftSaved(d.ID, d.Version, false, d.UpdatedAt))
	return d, nil
}

func (s *draftService) Get(ctx context.Context, id string) (*store.Draft, error) {
	d, ok := s.drafts.LoadDraft(ctx, id)
	if !ok {
		return nil, draft.ErrDraftNotFound
	}
	return d, nil
}

func (s *draftService) Delete(ctx context.Context, id string) error {
	deleted, err := s.drafts.DeleteDraft(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return draft.ErrDraftNotFound
	}
	s.publish(ctx, events.NewDraftDeleted(id, time.Now()))
	return nil
}

func (s *draftService) Export(ctx context.Context, id string) (string, error) {
	content, ok := s.drafts.ExportDraft(ctx, id)
	if !ok {
		return "", draft.ErrDraftNotFound
	}
	return content, nil
}

func (s *draftService) Import(ctx context.Context, req *dto.ImportDraftRequest) (*store.Draft, error) {
	d, err := s.drafts.ImportDraft(ctx, req.Content)
	if err != nil {
		s.logger.Warn("DraftService", "Draft import refused", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	s.publish(ctx, events.NewDraftSaved(d.ID, d.Version, false, d.UpdatedAt))
	return d, nil
}

func (s *draftService) Stats(ctx context.Context) *dto.DraftStatsResponse {
	stats := s.drafts.GetDraftStats(ctx)
	return &dto.DraftStatsResponse{
		TotalDrafts:       stats.TotalDrafts,
		AverageCompletion: stats.AverageCompletion,
		AutoSaveAt:        stats.AutoSaveAt,
		AutoSaveEnabled:   s.drafts.AutoSaveEnabled(),
		CurrentId:         s.drafts.CurrentDraftID(ctx),
	}
}

// AutoSave captures the live session into the autosave slot. It returns
// nil when autosave is switched off.
func (s *draftService) AutoSave(ctx context.Context) (*store.Draft, error) {
	d, err := s.drafts.AutoSave(ctx, s.capture())
	if err != nil || d == nil {
		return d, err
	}
	s.publish(ctx, events.NewDraftSaved(d.ID, d.Version, true, d.UpdatedAt))
	return d, nil
}

func (s *draftService) GetAutoSave(ctx context.Context) (*store.Draft, error) {
	d, ok := s.drafts.LoadAutoSave(ctx)
	if !ok {
		return nil, draft.ErrDraftNotFound
	}
	return d, nil
}

func (s *draftService) SetAutoSave(ctx context.Context, req *dto.AutoSaveSettingsRequest) *dto.AutoSaveSettingsResponse {
	if req.Enabled != nil {
		s.drafts.SetAutoSave(*req.Enabled)
	}
	return &dto.AutoSaveSettingsResponse{Enabled: s.drafts.AutoSaveEnabled()}
}

// Restore replaces the live session state with a stored draft.
func (s *draftService) Restore(ctx context.Context, id string) (*dto.RestoreDraftResponse, error) {
	d, ok := s.drafts.LoadDraft(ctx, id)
	if !ok {
		return nil, draft.ErrDraftNotFound
	}

	snap := s.contexts.Restore(ctx, d.Context, d.Sections)
	s.transcript.Replace(ctx, d.Transcript)

	s.logger.Info("DraftService", "Draft restored", map[string]interface{}{
		"draft_id": d.ID,
		"version":  d.Version,
		"step":     string(snap.Step),
	})
	return &dto.RestoreDraftResponse{
		Draft:   dto.NewDraftSummary(*d),
		Context: NewContextResponse(snap),
	}, nil
}

func (s *draftService) ClearAll(ctx context.Context) error {
	return s.drafts.ClearAllDrafts(ctx)
}

func (s *draftService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("DraftService", "Failed to publish event", map[string]interface{}{
			"event": e.EventType(),
			"error": err.Error(),
		})
	}
}
