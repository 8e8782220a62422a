package events

import "time"

const (
	TypeContextUpdated = "CONTEXT_UPDATED"
	TypeStepChanged    = "STEP_CHANGED"
	TypeDraftSaved     = "DRAFT_SAVED"
	TypeDraftDeleted   = "DRAFT_DELETED"
	TypeSessionCreated = "SESSION_CREATED"
)

func NewContextUpdated(sessionID string, applied []string, step string, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeContextUpdated,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"applied":    applied,
			"step":       step,
		},
		OccurredAt: at,
	}
}

func NewStepChanged(sessionID, from, to string, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeStepChanged,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"from":       from,
			"to":         to,
		},
		OccurredAt: at,
	}
}

func NewDraftSaved(draftID string, version int, autoSave bool, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeDraftSaved,
		Data: map[string]interface{}{
			"draft_id":  draftID,
			"version":   version,
			"auto_save": autoSave,
		},
		OccurredAt: at,
	}
}

func NewDraftDeleted(draftID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:       TypeDraftDeleted,
		Data:       map[string]interface{}{"draft_id": draftID},
		OccurredAt: at,
	}
}

func NewSessionCreated(sessionID string, expiresAt, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeSessionCreated,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"expires_at": expiresAt.Format(time.RFC3339),
		},
		OccurredAt: at,
	}
}
