package store

import "time"

// Draft is a named, versioned point-in-time capture of a proposal session.
type Draft struct {
	ID                string                     `json:"id"`
	Name              string                     `json:"name"`
	Version           int                        `json:"version"`
	CreatedAt         time.Time                  `json:"createdAt"`
	UpdatedAt         time.Time                  `json:"updatedAt"`
	AutoSave          bool                       `json:"autoSave"`
	Context           ApplicationContext         `json:"context"`
	Transcript        []Message                  `json:"transcript,omitempty"`
	PopulatedSections map[string]string          `json:"populatedSections,omitempty"`
	Sections          map[string]SectionProgress `json:"sections,omitempty"`
	Metadata          DraftMetadata              `json:"metadata"`
}

type DraftMetadata struct {
	CompletionPercentage *float64 `json:"completionPercentage,omitempty"`
	Step                 string   `json:"step,omitempty"`
}

// AutoSaveDraftID is the reserved id of the autosave slot.
const AutoSaveDraftID = "autosave"

// Clone returns a deep copy of the draft.
func (d Draft) Clone() Draft {
	out := d
	out.Context = d.Context.Clone()
	if d.Transcript != nil {
		out.Transcript = append([]Message(nil), d.Transcript...)
	}
	if d.PopulatedSections != nil {
		out.PopulatedSections = make(map[string]string, len(d.PopulatedSections))
		for k, v := range d.PopulatedSections {
			out.PopulatedSections[k] = v
		}
	}
	if d.Sections != nil {
		out.Sections = CloneSections(d.Sections)
	}
	if d.Metadata.CompletionPercentage != nil {
		v := *d.Metadata.CompletionPercentage
		out.Metadata.CompletionPercentage = &v
	}
	return out
}
