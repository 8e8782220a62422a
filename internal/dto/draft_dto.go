package dto

import (
	"time"

	"grant-assistant-be/pkg/store"
)

type SaveDraftRequest struct {
	Id                string            `json:"id"`
	Name              string            `json:"name" validate:"max=200"`
	PopulatedSections map[string]string `json:"populated_sections"`
}

type DraftSummary struct {
	Id                   string    `json:"id"`
	Name                 string    `json:"name"`
	Version              int       `json:"version"`
	AutoSave             bool      `json:"auto_save"`
	Step                 string    `json:"step,omitempty"`
	CompletionPercentage *float64  `json:"completion_percentage,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func NewDraftSummary(d store.Draft) DraftSummary {
	return DraftSummary{
		Id:                   d.ID,
		Name:                 d.Name,
		Version:              d.Version,
		AutoSave:             d.AutoSave,
		Step:                 d.Metadata.Step,
		CompletionPercentage: d.Metadata.CompletionPercentage,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

type ListDraftsResponse struct {
	Drafts    []DraftSummary `json:"drafts"`
	CurrentId string         `json:"current_id,omitempty"`
}

type ImportDraftRequest struct {
	Content string `json:"content" validate:"required"`
}

type AutoSaveSettingsRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type AutoSaveSettingsResponse struct {
	Enabled bool `json:"enabled"`
}

type DraftStatsResponse struct {
	TotalDrafts       int        `json:"total_drafts"`
	AverageCompletion float64    `json:"average_completion"`
	AutoSaveAt        *time.Time `json:"auto_save_at,omitempty"`
	AutoSaveEnabled   bool       `json:"auto_save_enabled"`
	CurrentId         string     `json:"current_id,omitempty"`
}

type RestoreDraftResponse struct {
	Draft   DraftSummary    `json:"draft"`
	Context ContextResponse `json:"context"`
}
