package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"grant-assistant-be/internal/dto"
	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/internal/repository/memory"
	"grant-assistant-be/pkg/events"
	"grant-assistant-be/pkg/proposal/contextstore"
	"grant-assistant-be/pkg/proposal/draft"
	"grant-assistant-be/pkg/proposal/session"
	"grant-assistant-be/pkg/proposal/workflow"
	"grant-assistant-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type fixture struct {
	proposals IProposalService
	drafts    IDraftService
	contexts  *contextstore.Store
	repo      *memory.KVRepository
	events    *recordingPublisher
}

func newFixture(t *testing.T, autoSaveEvery int) *fixture {
	t.Helper()
	log := logger.NewNopLogger()
	repo := memory.NewKVRepository()
	pub := &recordingPublisher{}

	contexts := contextstore.New(repo, log)
	sessions := session.NewManager(repo, contexts, log)
	sessions.Attach(contexts)
	transcript := NewTranscript(repo, log, 0)
	drafts := NewDraftService(draft.NewManager(repo, log), contexts, transcript, pub, log)
	proposals := NewProposalService(contexts, sessions, drafts, transcript, pub, log, autoSaveEvery)

	_, err := proposals.Start(context.Background())
	require.NoError(t, err)

	return &fixture{proposals: proposals, drafts: drafts, contexts: contexts, repo: repo, events: pub}
}

func (f *fixture) send(t *testing.T, content string) *dto.SendMessageResponse {
	t.Helper()
	res, err := f.proposals.SendMessage(context.Background(), &dto.SendMessageRequest{Content: content})
	require.NoError(t, err)
	return res
}

func TestConversationScenario(t *testing.T) {
	f := newFixture(t, 0)

	res := f.send(t, "Legen wir los")
	assert.Empty(t, res.Extracted)
	assert.Equal(t, store.FieldOrganizationName, res.NextField)
	assert.Contains(t, res.Rejected, store.FieldOrganizationName)

	f.send(t, "Open Society Foundations")
	f.send(t, "Democracy Shield: Protecting Civil Society")
	res = f.send(t, "HORIZON-CL2-2025-DEMOCRACY-01")

	assert.Equal(t, store.ApplicationContext{
		OrganizationName: "Open Society Foundations",
		ProjectTitle:     "Democracy Shield: Protecting Civil Society",
		Call:             "HORIZON-CL2-2025-DEMOCRACY-01",
		TemplateID:       "horizon-europe",
	}, res.Context)
	assert.Equal(t, workflow.StepExcellence, res.Step)
	assert.Empty(t, res.Missing)
	assert.Equal(t, "", res.NextField)

	transcript := f.proposals.GetTranscript(context.Background())
	assert.Equal(t, 4, transcript.Total)

	assert.Contains(t, f.events.types(), events.TypeStepChanged)
	assert.Contains(t, f.events.types(), events.TypeContextUpdated)
}

func TestAssistantMessagesAreNotExtracted(t *testing.T) {
	f := newFixture(t, 0)

	res, err := f.proposals.SendMessage(context.Background(), &dto.SendMessageRequest{
		Role:    store.RoleAssistant,
		Content: "Open Society Foundations",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Extracted)
	assert.Equal(t, "", f.contexts.GetContext().OrganizationName)
}

func TestAutoSaveAfterThreshold(t *testing.T) {
	f := newFixture(t, 2)

	res := f.send(t, "Open Society Foundations")
	assert.False(t, res.AutoSaved)
	res = f.send(t, "Democracy Shield: Protecting Civil Society")
	assert.True(t, res.AutoSaved)

	auto, err := f.drafts.GetAutoSave(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Democracy Shield: Protecting Civil Society", auto.Context.ProjectTitle)
	assert.Len(t, auto.Transcript, 2)
	require.NotNil(t, auto.Metadata.CompletionPercentage)
}

func TestNavigateAndRequirements(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.proposals.GetStepRequirements(ctx, "Budget")
	assert.ErrorIs(t, err, ErrInvalidStep)

	req, err := f.proposals.GetStepRequirements(ctx, string(workflow.StepBasics))
	require.NoError(t, err)
	assert.False(t, req.Satisfied)

	tr, err := f.proposals.Navigate(ctx, &dto.NavigateRequest{Step: string(workflow.StepImpact)})
	require.NoError(t, err)
	assert.False(t, tr.Allowed)
	assert.Equal(t, workflow.ReasonNonAdjacent, tr.Reason)

	steps := f.proposals.GetSteps(ctx)
	require.Len(t, steps, 5)
	assert.True(t, steps[0].Current)
	assert.Equal(t, "excellence", steps[1].Section)
}

func TestUpdateSectionAdvancesStep(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.proposals.PatchContext(ctx, &dto.PatchContextRequest{
		OrganizationName: "Open Society Foundations",
		ProjectTitle:     "Democracy Shield: Protecting Civil Society",
		Call:             "HORIZON-CL2-2025-DEMOCRACY-01",
	})
	require.NoError(t, err)

	complete := store.SectionComplete
	res, err := f.proposals.UpdateSection(ctx, &dto.UpdateSectionRequest{Id: "excellence", Status: &complete})
	require.NoError(t, err)
	assert.Equal(t, workflow.StepImpact, res.Step)
	assert.Equal(t, 100.0, res.Progress.CompletionPercentage)

	bad := "finished"
	_, err = f.proposals.UpdateSection(ctx, &dto.UpdateSectionRequest{Id: "impact", Status: &bad})
	assert.ErrorIs(t, err, ErrInvalidSection)
}

func TestResetSessionClearsEverything(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	before, err := f.proposals.GetSession(ctx)
	require.NoError(t, err)

	f.send(t, "Open Society Foundations")
	after, err := f.proposals.ResetSession(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, before.Id, after.Id)
	assert.True(t, f.contexts.GetContext().IsEmpty())
	assert.Equal(t, 0, f.proposals.GetTranscript(ctx).Total)
	assert.Contains(t, f.events.types(), events.TypeSessionCreated)
}

func TestDraftSaveAndRestore(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.send(t, "Open Society Foundations")
	f.send(t, "Democracy Shield: Protecting Civil Society")
	saved, err := f.drafts.Save(ctx, &dto.SaveDraftRequest{Name: "Before call"})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StepBasics), saved.Metadata.Step)

	_, err = f.proposals.ResetSession(ctx)
	require.NoError(t, err)

	restored, err := f.drafts.Restore(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Open Society Foundations", restored.Context.Context.OrganizationName)
	assert.Equal(t, 2, f.proposals.GetTranscript(ctx).Total)

	_, err = f.drafts.Restore(ctx, "missing")
	assert.ErrorIs(t, err, draft.ErrDraftNotFound)
	assert.ErrorIs(t, f.drafts.Delete(ctx, "missing"), draft.ErrDraftNotFound)

	require.NoError(t, f.drafts.Delete(ctx, saved.ID))
	assert.Contains(t, f.events.types(), events.TypeDraftDeleted)
}

func TestTranscriptIsCapped(t *testing.T) {
	log := logger.NewNopLogger()
	repo := memory.NewKVRepository()
	tr := NewTranscript(repo, log, 3)
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c", "d"} {
		tr.Append(ctx, store.Message{Role: store.RoleUser, Content: content})
	}
	all := tr.All()
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].Content)

	reloaded := NewTranscript(repo, log, 3)
	reloaded.Load(ctx)
	assert.Equal(t, all, reloaded.All())
}

func TestStartDropsTranscriptOfExpiredSession(t *testing.T) {
	log := logger.NewNopLogger()
	repo := memory.NewKVRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	boot := func() IProposalService {
		contexts := contextstore.New(repo, log)
		sessions := session.NewManager(repo, contexts, log,
			session.WithTTL(time.Hour),
			session.WithClock(func() time.Time { return now }),
		)
		sessions.Attach(contexts)
		transcript := NewTranscript(repo, log, 0)
		drafts := NewDraftService(draft.NewManager(repo, log), contexts, transcript, nil, log)
		return NewProposalService(contexts, sessions, drafts, transcript, nil, log, 0)
	}

	first := boot()
	before, err := first.Start(ctx)
	require.NoError(t, err)
	_, err = first.SendMessage(ctx, &dto.SendMessageRequest{Content: "Open Society Foundations"})
	require.NoError(t, err)
	require.Equal(t, 1, first.GetTranscript(ctx).Total)

	// Restarting inside the TTL keeps the conversation.
	again := boot()
	same, err := again.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Id, same.Id)
	assert.Equal(t, 1, again.GetTranscript(ctx).Total)

	now = now.Add(2 * time.Hour)
	second := boot()
	after, err := second.Start(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, before.Id, after.Id)
	assert.Equal(t, 0, second.GetTranscript(ctx).Total)
	assert.Empty(t, second.GetContext(ctx).Context.OrganizationName)
}
