package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"grant-assistant-be/internal/repository/contract"
	"grant-assistant-be/pkg/store"

	playground "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// FormatVersion tags exported drafts. Imports with any other tag are refused.
const FormatVersion = "grant-draft/1"

var (
	ErrUnsupportedFormat = errors.New("unsupported draft format")
	ErrMalformedImport   = errors.New("malformed draft document")
)

var shapeValidator = playground.New()

type exportDocument struct {
	FormatVersion string      `json:"formatVersion"`
	ExportedAt    time.Time   `json:"exportedAt"`
	Draft         store.Draft `json:"draft"`
}

// importDocument is the minimal shape an import has to carry.
type importDocument struct {
	FormatVersion string          `json:"formatVersion" validate:"required"`
	Draft         json.RawMessage `json:"draft" validate:"required"`
}

type importShape struct {
	Name    string                    `json:"name" validate:"required"`
	Context *store.ApplicationContext `json:"context" validate:"required"`
}

// ExportDraft serializes one draft into a self-describing document.
func (m *Manager) ExportDraft(ctx context.Context, id string) (string, bool) {
	if reserved(id) {
		return "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.read(ctx, draftKey(id))
	if !ok {
		return "", false
	}
	raw, err := json.MarshalIndent(exportDocument{
		FormatVersion: FormatVersion,
		ExportedAt:    m.now(),
		Draft:         d,
	}, "", "  ")
	if err != nil {
		m.logger.Error(module, "Failed to export draft", map[string]interface{}{"draft_id": id, "error": err.Error()})
		return "", false
	}
	return string(raw), true
}

// ImportDraft inserts an exported draft under a fresh id as version 1.
// Storage is left untouched when the document is refused.
func (m *Manager) ImportDraft(ctx context.Context, content string) (*store.Draft, error) {
	var doc importDocument
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	if err := shapeValidator.Struct(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	if doc.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, doc.FormatVersion)
	}

	var shape importShape
	if err := json.Unmarshal(doc.Draft, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	if err := shapeValidator.Struct(shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	var imported store.Draft
	if err := json.Unmarshal(doc.Draft, &imported); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	d := m.build(Input{
		Name:              imported.Name,
		Context:           imported.Context,
		Transcript:        imported.Transcript,
		PopulatedSections: imported.PopulatedSections,
		Sections:          imported.Sections,
		Metadata:          imported.Metadata,
	}, now)
	if !imported.CreatedAt.IsZero() {
		d.CreatedAt = imported.CreatedAt
	}
	d.ID = m.freshID(ctx)

	if err := contract.SaveJSON(ctx, m.repo, draftKey(d.ID), d); err != nil {
		return nil, fmt.Errorf("failed to save imported draft: %w", err)
	}
	if err := m.writeIndex(ctx, append(m.readIndex(ctx), d.ID)); err != nil {
		return nil, err
	}

	m.logger.Info(module, "Draft imported", map[string]interface{}{"draft_id": d.ID, "source_id": imported.ID})
	out := d.Clone()
	return &out, nil
}

func (m *Manager) freshID(ctx context.Context) string {
	for {
		id := uuid.New().String()
		if _, found, err := m.repo.Get(ctx, draftKey(id)); err != nil || !found {
			return id
		}
	}
}
