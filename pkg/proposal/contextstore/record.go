package contextstore

import (
	"time"

	"grant-assistant-be/pkg/proposal/workflow"
	"grant-assistant-be/pkg/store"
)

// Schema versions of the persisted context record:
// v0: untagged ApplicationContext (call stored as "callIdentifier" or "call")
// v1: tagged record under context:v1, context validated by the looser extractor
// v2: tagged record under context:v2 with section progress and workflow position
const CurrentSchemaVersion = 2

// Storage keys. Legacy keys are only ever read by the migration pass.
const (
	KeyContext       = "context:v2"
	KeyContextV1     = "context:v1"
	KeyLegacyContext = "grant-application-context"
	KeyLegacyState   = "grant-assistant-state"
)

// legacyKeys are consulted in precedence order when no current record exists.
var legacyKeys = []string{KeyContextV1, KeyLegacyContext, KeyLegacyState}

// Record is the persisted form of the live context.
type Record struct {
	SchemaVersion int                              `json:"schemaVersion"`
	Context       store.ApplicationContext         `json:"context"`
	Sections      map[string]store.SectionProgress `json:"sections,omitempty"`
	Step          workflow.Step                    `json:"step,omitempty"`
	// Pinned is set after manual backward navigation; automatic step
	// advancement is suspended until the user moves forward again.
	Pinned    bool      `json:"pinned,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot is a read-only copy of the store's state.
type Snapshot struct {
	Context   store.ApplicationContext         `json:"context"`
	Sections  map[string]store.SectionProgress `json:"sections"`
	Step      workflow.Step                    `json:"step"`
	Pinned    bool                             `json:"pinned"`
	UpdatedAt time.Time                        `json:"updatedAt"`
}

func emptyRecord(now time.Time) Record {
	return Record{
		SchemaVersion: CurrentSchemaVersion,
		Sections:      map[string]store.SectionProgress{},
		Step:          workflow.Initial(),
		UpdatedAt:     now,
	}
}

func (r Record) snapshot() Snapshot {
	return Snapshot{
		Context:   r.Context.Clone(),
		Sections:  store.CloneSections(r.Sections),
		Step:      r.Step,
		Pinned:    r.Pinned,
		UpdatedAt: r.UpdatedAt,
	}
}

// settle recomputes the workflow position from the record's contents. An
// unpinned record always sits on the derived step; a pinned one keeps its
// position as long as that position is still reachable.
func settle(r Record) Record {
	derived := workflow.Derive(r.Context, r.Sections)
	pos := workflow.IndexOf(r.Step)
	if r.Pinned && pos >= 0 && pos < workflow.IndexOf(derived) {
		return r
	}
	r.Step = derived
	r.Pinned = false
	return r
}
