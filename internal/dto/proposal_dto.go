package dto

import (
	"time"

	"grant-assistant-be/pkg/proposal/validator"
	"grant-assistant-be/pkg/proposal/workflow"
	"grant-assistant-be/pkg/store"
)

type SendMessageRequest struct {
	Role    string `json:"role" validate:"omitempty,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=5000"`
}

type SendMessageResponse struct {
	Rule       string                      `json:"rule"`
	Extracted  []string                    `json:"extracted"`
	Rejected   map[string]validator.Result `json:"rejected,omitempty"`
	Context    store.ApplicationContext    `json:"context"`
	Step       workflow.Step               `json:"step"`
	NextField  string                      `json:"next_field,omitempty"`
	Missing    []string                    `json:"missing"`
	AutoSaved  bool                        `json:"auto_saved"`
	Completion float64                     `json:"completion"`
}

type PatchContextRequest struct {
	OrganizationName string   `json:"organizationName" validate:"max=200"`
	ProjectTitle     string   `json:"projectTitle" validate:"max=300"`
	Call             string   `json:"call" validate:"max=120"`
	Acronym          string   `json:"acronym" validate:"max=40"`
	Country          string   `json:"country" validate:"max=80"`
	Budget           string   `json:"budget" validate:"max=80"`
	Duration         string   `json:"duration" validate:"max=80"`
	Partners         []string `json:"partners" validate:"max=50,dive,max=200"`
}

func (r PatchContextRequest) ToContext() store.ApplicationContext {
	return store.ApplicationContext{
		OrganizationName: r.OrganizationName,
		ProjectTitle:     r.ProjectTitle,
		Call:             r.Call,
		Acronym:          r.Acronym,
		Country:          r.Country,
		Budget:           r.Budget,
		Duration:         r.Duration,
		Partners:         r.Partners,
	}
}

type PatchContextResponse struct {
	Applied  []string                    `json:"applied"`
	Rejected map[string]validator.Result `json:"rejected,omitempty"`
	Changed  bool                        `json:"changed"`
	Context  ContextResponse             `json:"context"`
}

type ContextResponse struct {
	Context    store.ApplicationContext         `json:"context"`
	Sections   map[string]store.SectionProgress `json:"sections"`
	Step       workflow.Step                    `json:"step"`
	Pinned     bool                             `json:"pinned"`
	Completion float64                          `json:"completion"`
	UpdatedAt  time.Time                        `json:"updated_at"`
}

type SessionResponse struct {
	Id        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	TouchedAt time.Time `json:"touched_at"`
}

type StepResponse struct {
	Step      workflow.Step `json:"step"`
	Index     int           `json:"index"`
	Current   bool          `json:"current"`
	Section   string        `json:"section,omitempty"`
	Satisfied bool          `json:"satisfied"`
}

type NavigateRequest struct {
	Step string `json:"step" validate:"required"`
}

type UpdateSectionRequest struct {
	Id                   string
	Status               *string  `json:"status" validate:"omitempty,oneof=not-started in-progress complete"`
	CompletionPercentage *float64 `json:"completion_percentage" validate:"omitempty,min=0,max=100"`
	Notes                *string  `json:"notes" validate:"omitempty,max=5000"`
}

type UpdateSectionResponse struct {
	Id       string                `json:"id"`
	Progress store.SectionProgress `json:"progress"`
	Step     workflow.Step         `json:"step"`
}

type TranscriptResponse struct {
	Messages []store.Message `json:"messages"`
	Total    int             `json:"total"`
}
