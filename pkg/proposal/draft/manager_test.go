package draft

import (
	"context"
	"strings"
	"testing"
	"time"

	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/internal/repository/memory"
	"grant-assistant-be/pkg/store"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleContext = store.ApplicationContext{
	OrganizationName: "Open Society Foundations",
	ProjectTitle:     "Democracy Shield: Protecting Civil Society",
	Call:             "HORIZON-CL2-2025-DEMOCRACY-01",
	TemplateID:       "horizon-europe",
	Country:          "DE",
	Partners:         []string{"Universität Wien", "Sciences Po"},
}

func newTestManager(t *testing.T) (*Manager, *memory.KVRepository) {
	t.Helper()
	repo := memory.NewKVRepository()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return NewManager(repo, logger.NewNopLogger(), WithClock(func() time.Time { return now })), repo
}

func pct(v float64) *float64 { return &v }

func TestSaveAndLoadRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	saved, err := m.SaveDraft(ctx, Input{
		Name:       "First pass",
		Context:    sampleContext,
		Transcript: []store.Message{{Role: store.RoleUser, Content: "Open Society Foundations"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)

	loaded, ok := m.LoadDraft(ctx, saved.ID)
	require.True(t, ok)
	if diff := cmp.Diff(sampleContext, loaded.Context); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, saved.ID, m.CurrentDraftID(ctx))
}

func TestSaveOverCurrentBumpsVersion(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.SaveDraft(ctx, Input{Name: "Draft", Context: sampleContext})
	require.NoError(t, err)
	second, err := m.SaveDraft(ctx, Input{ID: first.ID, Name: "Draft", Context: sampleContext})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Len(t, m.ListDrafts(ctx), 1)

	// An id that is not current starts a new draft.
	other, err := m.SaveDraft(ctx, Input{Name: "Other"})
	require.NoError(t, err)
	third, err := m.SaveDraft(ctx, Input{ID: first.ID, Name: "Draft"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.NotEqual(t, other.ID, third.ID)
	assert.Equal(t, 1, third.Version)
	assert.Len(t, m.ListDrafts(ctx), 3)
}

func TestSaveDraftDefaultsName(t *testing.T) {
	m, _ := newTestManager(t)
	d, err := m.SaveDraft(context.Background(), Input{Name: "  <b></b> "})
	require.NoError(t, err)
	assert.Equal(t, DefaultName, d.Name)
}

func TestLoadMissingDraft(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	_, ok := m.LoadDraft(ctx, "nope")
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, draftKey("broken"), []byte("{")))
	_, ok = m.LoadDraft(ctx, "broken")
	assert.False(t, ok)
}

func TestDeleteDraft(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	d, err := m.SaveDraft(ctx, Input{Name: "Draft", Context: sampleContext})
	require.NoError(t, err)

	deleted, err := m.DeleteDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, "", m.CurrentDraftID(ctx))
	assert.Empty(t, m.ListDrafts(ctx))

	deleted, err = m.DeleteDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestAutoSave(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.AutoSave(ctx, Input{Context: sampleContext})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.AutoSave)
	assert.Equal(t, store.AutoSaveDraftID, first.ID)

	second, err := m.AutoSave(ctx, Input{Context: sampleContext})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	m.SetAutoSave(false)
	assert.False(t, m.AutoSaveEnabled())
	skipped, err := m.AutoSave(ctx, Input{Context: store.ApplicationContext{}})
	require.NoError(t, err)
	assert.Nil(t, skipped)

	slot, ok := m.LoadAutoSave(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, slot.Version)
	assert.Equal(t, sampleContext.OrganizationName, slot.Context.OrganizationName)

	// The autosave slot is not a named draft.
	assert.Empty(t, m.ListDrafts(ctx))
	assert.Equal(t, "", m.CurrentDraftID(ctx))
}

func TestExportImportRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	d, err := m.SaveDraft(ctx, Input{
		Name:              "Export me",
		Context:           sampleContext,
		PopulatedSections: map[string]string{"excellence": "Objectives..."},
		Metadata:          store.DraftMetadata{CompletionPercentage: pct(40), Step: "Excellence"},
	})
	require.NoError(t, err)

	exported, ok := m.ExportDraft(ctx, d.ID)
	require.True(t, ok)
	assert.Contains(t, exported, `"formatVersion": "grant-draft/1"`)

	imported, err := m.ImportDraft(ctx, exported)
	require.NoError(t, err)
	assert.NotEqual(t, d.ID, imported.ID)
	assert.Equal(t, 1, imported.Version)
	assert.Equal(t, d.Name, imported.Name)
	if diff := cmp.Diff(sampleContext, imported.Context); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, m.ListDrafts(ctx), 2)
}

func TestImportRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"not json", "{", ErrMalformedImport},
		{"unknown format", `{"formatVersion":"grant-draft/9","draft":{"name":"x","context":{}}}`, ErrUnsupportedFormat},
		{"missing format", `{"draft":{"name":"x","context":{}}}`, ErrMalformedImport},
		{"missing draft", `{"formatVersion":"grant-draft/1"}`, ErrMalformedImport},
		{"missing name", `{"formatVersion":"grant-draft/1","draft":{"context":{}}}`, ErrMalformedImport},
		{"missing context", `{"formatVersion":"grant-draft/1","draft":{"name":"x"}}`, ErrMalformedImport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, repo := newTestManager(t)
			_, err := m.ImportDraft(context.Background(), tt.content)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, repo.Len())
		})
	}
}

func TestImportDropsInvalidFields(t *testing.T) {
	m, _ := newTestManager(t)
	content := `{"formatVersion":"grant-draft/1","draft":{"name":"x","context":{"organizationName":"Legen wir los","projectTitle":"Democracy Shield Project"}}}`

	d, err := m.ImportDraft(context.Background(), content)
	require.NoError(t, err)
	assert.Equal(t, "", d.Context.OrganizationName)
	assert.Equal(t, "Democracy Shield Project", d.Context.ProjectTitle)
}

func TestDraftStats(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	stats := m.GetDraftStats(ctx)
	assert.Equal(t, 0, stats.TotalDrafts)
	assert.Equal(t, 0.0, stats.AverageCompletion)
	assert.Nil(t, stats.AutoSaveAt)

	for _, in := range []Input{
		{Name: "a", Metadata: store.DraftMetadata{CompletionPercentage: pct(20)}},
		{Name: "b", Metadata: store.DraftMetadata{CompletionPercentage: pct(60)}},
		{Name: "c"},
	} {
		_, err := m.SaveDraft(ctx, in)
		require.NoError(t, err)
	}
	_, err := m.AutoSave(ctx, Input{})
	require.NoError(t, err)

	stats = m.GetDraftStats(ctx)
	assert.Equal(t, 3, stats.TotalDrafts)
	assert.InDelta(t, 40.0, stats.AverageCompletion, 0.0001)
	assert.NotNil(t, stats.AutoSaveAt)
}

func TestClearAllDrafts(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, repo.Set(ctx, "context:v2", []byte(`{}`)))

	for _, name := range []string{"a", "b"} {
		_, err := m.SaveDraft(ctx, Input{Name: name})
		require.NoError(t, err)
	}
	_, err := m.AutoSave(ctx, Input{})
	require.NoError(t, err)

	require.NoError(t, m.ClearAllDrafts(ctx))
	assert.Empty(t, m.ListDrafts(ctx))
	keys, err := repo.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"context:v2"}, keys)
}

func TestBrokenIndexIsRebuilt(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	d, err := m.SaveDraft(ctx, Input{Name: "Kept"})
	require.NoError(t, err)
	require.NoError(t, repo.Set(ctx, KeyIndex, []byte("not json")))

	drafts := m.ListDrafts(ctx)
	require.Len(t, drafts, 1)
	assert.Equal(t, d.ID, drafts[0].ID)
	assert.False(t, strings.HasPrefix(drafts[0].ID, KeyPrefix))
}

func TestReservedIDsNeverNameADraft(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	saved, err := m.SaveDraft(ctx, Input{Name: "Keep me", Context: sampleContext})
	require.NoError(t, err)

	for _, id := range []string{"index", "current", "autosave", ""} {
		t.Run(id, func(t *testing.T) {
			deleted, err := m.DeleteDraft(ctx, id)
			require.NoError(t, err)
			assert.False(t, deleted)

			_, ok := m.ExportDraft(ctx, id)
			assert.False(t, ok)
		})
	}
	for _, id := range []string{"index", "current"} {
		_, ok := m.LoadDraft(ctx, id)
		assert.False(t, ok, "LoadDraft(%q)", id)
	}

	drafts := m.ListDrafts(ctx)
	require.Len(t, drafts, 1)
	assert.Equal(t, saved.ID, drafts[0].ID)
	assert.Equal(t, 1, m.GetDraftStats(ctx).TotalDrafts)
}

func TestExportImportRoundTripNormalizesOnSave(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	raw := sampleContext.Clone()
	raw.Call = "horizon-cl2-2025-democracy-01"
	raw.Country = " <b>DE</b> "

	saved, err := m.SaveDraft(ctx, Input{Name: "Unclean", Context: raw})
	require.NoError(t, err)
	assert.Equal(t, "HORIZON-CL2-2025-DEMOCRACY-01", saved.Context.Call)

	exported, ok := m.ExportDraft(ctx, saved.ID)
	require.True(t, ok)
	imported, err := m.ImportDraft(ctx, exported)
	require.NoError(t, err)

	if diff := cmp.Diff(saved.Context, imported.Context); diff != "" {
		t.Errorf("context changed across export/import (-saved +imported):\n%s", diff)
	}
	if diff := cmp.Diff(sampleContext, imported.Context); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
}
