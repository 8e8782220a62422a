package extractor

import (
	"testing"

	"grant-assistant-be/pkg/proposal/validator"
	"grant-assistant-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	full := store.ApplicationContext{
		OrganizationName: "Open Society Foundations",
		ProjectTitle:     "Democracy Shield",
		Call:             "HORIZON-CL2-2025-DEMOCRACY-01",
	}

	tests := []struct {
		name       string
		message    string
		current    store.ApplicationContext
		wantRule   Rule
		wantFields []string
		wantPatch  store.ApplicationContext
	}{
		{
			name:       "organization first",
			message:    "Open Society Foundations",
			wantRule:   RuleNextExpected,
			wantFields: []string{store.FieldOrganizationName},
			wantPatch:  store.ApplicationContext{OrganizationName: "Open Society Foundations"},
		},
		{
			name:       "title once organization is set",
			message:    "Democracy Shield: Protecting Civil Society",
			current:    store.ApplicationContext{OrganizationName: "Open Society Foundations"},
			wantRule:   RuleNextExpected,
			wantFields: []string{store.FieldProjectTitle},
			wantPatch:  store.ApplicationContext{ProjectTitle: "Democracy Shield: Protecting Civil Society"},
		},
		{
			name:       "call code skips organization slot",
			message:    "HORIZON-CL2-2025-DEMOCRACY-01",
			wantRule:   RuleNextExpected,
			wantFields: []string{store.FieldCall},
			wantPatch:  store.ApplicationContext{Call: "HORIZON-CL2-2025-DEMOCRACY-01"},
		},
		{
			name:     "single word with organization set is nothing",
			message:  "Platform",
			current:  store.ApplicationContext{OrganizationName: "Open Society Foundations"},
			wantRule: RuleNone,
		},
		{
			name:     "generic phrase",
			message:  "Legen wir los",
			wantRule: RuleNone,
		},
		{
			name:     "everything already set",
			message:  "Another Organization Name",
			current:  full,
			wantRule: RuleNone,
		},
		{
			name:       "compound record",
			message:    "Open Society Foundations\nHORIZON-CL2-2025-DEMOCRACY-01 Democracy and governance",
			wantRule:   RuleCompound,
			wantFields: []string{store.FieldOrganizationName, store.FieldCall},
			wantPatch: store.ApplicationContext{
				OrganizationName: "Open Society Foundations",
				Call:             "HORIZON-CL2-2025-DEMOCRACY-01",
			},
		},
		{
			name:       "compound record with labels and blank line",
			message:    "Organisation: Caritas e.V.\n\nCall: cerv-2025-char-liti",
			wantRule:   RuleCompound,
			wantFields: []string{store.FieldOrganizationName, store.FieldCall},
			wantPatch: store.ApplicationContext{
				OrganizationName: "Caritas e.V.",
				Call:             "CERV-2025-CHAR-LITI",
			},
		},
		{
			name:       "labelled correction overrides set field",
			message:    "Titel: Civic Tech for Everyone",
			current:    full,
			wantRule:   RuleLabelled,
			wantFields: []string{store.FieldProjectTitle},
			wantPatch:  store.ApplicationContext{ProjectTitle: "Civic Tech for Everyone"},
		},
		{
			name:     "empty message",
			message:  "   ",
			wantRule: RuleNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Extract(tt.message, tt.current)
			assert.Equal(t, tt.wantRule, res.Rule)
			assert.Equal(t, tt.wantFields, res.Fields)
			assert.Equal(t, tt.wantPatch, res.Patch)
		})
	}
}

func TestExtractReportsRejections(t *testing.T) {
	res := Extract("invalid call", store.ApplicationContext{
		OrganizationName: "Open Society Foundations",
		ProjectTitle:     "Democracy Shield",
	})

	require.True(t, res.Empty())
	require.Contains(t, res.Rejections, store.FieldCall)
	assert.Equal(t, validator.ReasonBadFormat, res.Rejections[store.FieldCall].Reason)
}

func TestExtractLabelledInvalidValue(t *testing.T) {
	res := Extract("Call: invalid call", store.ApplicationContext{})

	assert.Equal(t, RuleLabelled, res.Rule)
	assert.True(t, res.Empty())
	assert.Equal(t, validator.ReasonBadFormat, res.Rejections[store.FieldCall].Reason)
}

func TestExtractIgnoresEveryGenericPhrase(t *testing.T) {
	for _, phrase := range validator.GenericPhrases() {
		res := Extract(phrase, store.ApplicationContext{})
		assert.True(t, res.Empty(), "phrase %q populated %v", phrase, res.Fields)
	}
}

func TestNextExpectedField(t *testing.T) {
	assert.Equal(t, store.FieldOrganizationName, NextExpectedField(store.ApplicationContext{}))
	assert.Equal(t, store.FieldProjectTitle, NextExpectedField(store.ApplicationContext{OrganizationName: "ACME"}))
	assert.Equal(t, store.FieldCall, NextExpectedField(store.ApplicationContext{OrganizationName: "ACME", ProjectTitle: "A B"}))
	assert.Equal(t, "", NextExpectedField(store.ApplicationContext{OrganizationName: "ACME", ProjectTitle: "A B", Call: "X-2025"}))
}
