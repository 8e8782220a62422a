package store

import "time"

// ApplicationContext is the canonical business-fact record for one proposal
// session. An empty string means the field is unset.
type ApplicationContext struct {
	// Gating fields. Validated before they are merged.
	OrganizationName string `json:"organizationName,omitempty"`
	ProjectTitle     string `json:"projectTitle,omitempty"`
	Call             string `json:"call,omitempty"`

	TemplateID string `json:"templateId,omitempty"`

	// Pass-through metadata.
	Acronym  string   `json:"acronym,omitempty"`
	Country  string   `json:"country,omitempty"`
	Budget   string   `json:"budget,omitempty"`
	Duration string   `json:"duration,omitempty"`
	Partners []string `json:"partners,omitempty"`
}

const (
	FieldOrganizationName = "organizationName"
	FieldProjectTitle     = "projectTitle"
	FieldCall             = "call"
)

// GatingFields lists the fields required to leave the first workflow step,
// in the order the extractor fills them.
var GatingFields = []string{FieldOrganizationName, FieldProjectTitle, FieldCall}

// Get returns the value of a gating field by its JSON name.
func (c ApplicationContext) Get(field string) string {
	switch field {
	case FieldOrganizationName:
		return c.OrganizationName
	case FieldProjectTitle:
		return c.ProjectTitle
	case FieldCall:
		return c.Call
	}
	return ""
}

// Set assigns a gating field by its JSON name. Unknown names are ignored.
func (c *ApplicationContext) Set(field, value string) {
	switch field {
	case FieldOrganizationName:
		c.OrganizationName = value
	case FieldProjectTitle:
		c.ProjectTitle = value
	case FieldCall:
		c.Call = value
	}
}

// Clone returns a deep copy so callers never alias the store's slices.
func (c ApplicationContext) Clone() ApplicationContext {
	out := c
	if c.Partners != nil {
		out.Partners = append([]string(nil), c.Partners...)
	}
	return out
}

// IsEmpty reports whether no field at all is populated.
func (c ApplicationContext) IsEmpty() bool {
	return c.OrganizationName == "" && c.ProjectTitle == "" && c.Call == "" &&
		c.TemplateID == "" && c.Acronym == "" && c.Country == "" &&
		c.Budget == "" && c.Duration == "" && len(c.Partners) == 0
}

// Merge overlays the non-empty fields of patch onto c. Omitted fields are
// never cleared, so applying the same patch twice is a no-op.
func (c ApplicationContext) Merge(patch ApplicationContext) ApplicationContext {
	out := c.Clone()
	if patch.OrganizationName != "" {
		out.OrganizationName = patch.OrganizationName
	}
	if patch.ProjectTitle != "" {
		out.ProjectTitle = patch.ProjectTitle
	}
	if patch.Call != "" {
		out.Call = patch.Call
	}
	if patch.TemplateID != "" {
		out.TemplateID = patch.TemplateID
	}
	if patch.Acronym != "" {
		out.Acronym = patch.Acronym
	}
	if patch.Country != "" {
		out.Country = patch.Country
	}
	if patch.Budget != "" {
		out.Budget = patch.Budget
	}
	if patch.Duration != "" {
		out.Duration = patch.Duration
	}
	if len(patch.Partners) > 0 {
		out.Partners = append([]string(nil), patch.Partners...)
	}
	return out
}

// Section status values.
const (
	SectionNotStarted = "not-started"
	SectionInProgress = "in-progress"
	SectionComplete   = "complete"
)

// SectionProgress tracks one proposal section. Entries are created lazily on
// first touch and only disappear with an explicit reset.
type SectionProgress struct {
	Status               string    `json:"status"`
	CompletionPercentage float64   `json:"completionPercentage"`
	Notes                string    `json:"notes,omitempty"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// IsValidSectionStatus reports whether s is one of the known statuses.
func IsValidSectionStatus(s string) bool {
	switch s {
	case SectionNotStarted, SectionInProgress, SectionComplete:
		return true
	}
	return false
}

// CloneSections copies a section map.
func CloneSections(in map[string]SectionProgress) map[string]SectionProgress {
	out := make(map[string]SectionProgress, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
