package contextstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"grant-assistant-be/pkg/proposal/template"
	"grant-assistant-be/pkg/proposal/validator"
	"grant-assistant-be/pkg/proposal/workflow"
	"grant-assistant-be/pkg/store"
)

// MigrationReport describes what a load did to the persisted context.
type MigrationReport struct {
	Source        string   `json:"source,omitempty"`
	FromVersion   int      `json:"fromVersion"`
	ToVersion     int      `json:"toVersion"`
	Migrated      bool     `json:"migrated"`
	DroppedFields []string `json:"droppedFields,omitempty"`
	Malformed     bool     `json:"malformed,omitempty"`
}

var errNoContext = errors.New("document carries no context")

// legacyContext accepts every field name earlier schemas used.
type legacyContext struct {
	store.ApplicationContext
	CallIdentifier string `json:"callIdentifier,omitempty"`
}

func (l legacyContext) fold() store.ApplicationContext {
	ctx := l.ApplicationContext
	if ctx.Call == "" {
		ctx.Call = l.CallIdentifier
	}
	return ctx
}

type taggedDocument struct {
	SchemaVersion *int                             `json:"schemaVersion"`
	Context       *legacyContext                   `json:"context"`
	Sections      map[string]store.SectionProgress `json:"sections"`
	Step          workflow.Step                    `json:"step"`
	Pinned        bool                             `json:"pinned"`
	UpdatedAt     time.Time                        `json:"updatedAt"`
}

type stateBlob struct {
	ProjectContext *legacyContext `json:"projectContext"`
}

// decodeRecord reads any known persisted shape. Untagged documents are the
// bare context of the earliest schema and come back with version 0.
func decodeRecord(key string, raw []byte) (Record, error) {
	if key == KeyLegacyState {
		var blob stateBlob
		if err := json.Unmarshal(raw, &blob); err != nil {
			return Record{}, err
		}
		if blob.ProjectContext == nil {
			return Record{}, errNoContext
		}
		return Record{SchemaVersion: 0, Context: blob.ProjectContext.fold()}, nil
	}

	var doc taggedDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Record{}, err
	}
	if doc.SchemaVersion != nil {
		rec := Record{
			SchemaVersion: *doc.SchemaVersion,
			Sections:      doc.Sections,
			Step:          doc.Step,
			Pinned:        doc.Pinned,
			UpdatedAt:     doc.UpdatedAt,
		}
		if doc.Context != nil {
			rec.Context = doc.Context.fold()
		}
		return rec, nil
	}

	var bare legacyContext
	if err := json.Unmarshal(raw, &bare); err != nil {
		return Record{}, err
	}
	return Record{SchemaVersion: 0, Context: bare.fold()}, nil
}

// Migrate brings a record to the current schema: gating fields that the
// current validator rejects are dropped, valid ones are kept in sanitized
// form, section entries are normalised and the workflow position is
// re-derived. Migrating an already-current record returns it unchanged.
func Migrate(rec Record) (Record, MigrationReport) {
	report := MigrationReport{FromVersion: rec.SchemaVersion, ToVersion: CurrentSchemaVersion}

	out := rec
	out.SchemaVersion = CurrentSchemaVersion

	clean, dropped := validator.CleanContext(rec.Context)
	if clean.Call != "" && clean.TemplateID == "" {
		clean.TemplateID = template.Resolve(clean.Call)
	}
	out.Context = clean
	report.DroppedFields = dropped

	out.Sections = make(map[string]store.SectionProgress, len(rec.Sections))
	for id, p := range rec.Sections {
		out.Sections[id] = normalizeSection(p)
	}

	if workflow.IndexOf(out.Step) < 0 {
		out.Step = workflow.Initial()
		out.Pinned = false
	}
	out = settle(out)

	report.Migrated = rec.SchemaVersion != CurrentSchemaVersion || !recordsEqual(rec, out)
	return out, report
}

func normalizeSection(p store.SectionProgress) store.SectionProgress {
	if !store.IsValidSectionStatus(p.Status) {
		p.Status = store.SectionNotStarted
	}
	p.CompletionPercentage = clampPercentage(p.CompletionPercentage)
	p.Notes = validator.Sanitize(p.Notes)
	return p
}

func clampPercentage(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func recordsEqual(a, b Record) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

func describe(key string, err error) string {
	return fmt.Sprintf("%s: %v", key, err)
}
