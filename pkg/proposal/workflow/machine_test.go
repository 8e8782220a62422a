package workflow

import (
	"testing"

	"grant-assistant-be/pkg/store"

	"github.com/stretchr/testify/assert"
)

var complete = store.ApplicationContext{
	OrganizationName: "Open Society Foundations",
	ProjectTitle:     "Democracy Shield: Protecting Civil Society",
	Call:             "HORIZON-CL2-2025-DEMOCRACY-01",
}

func TestStepOrder(t *testing.T) {
	assert.Equal(t, []Step{StepBasics, StepExcellence, StepImpact, StepImplementation, StepReview}, Steps())
	assert.Equal(t, StepBasics, Initial())
	assert.Equal(t, StepReview, Terminal())

	next, ok := Next(StepImplementation)
	assert.True(t, ok)
	assert.Equal(t, StepReview, next)

	_, ok = Next(StepReview)
	assert.False(t, ok)

	_, ok = Parse("Unknown")
	assert.False(t, ok)
	s, ok := Parse("Überprüfung")
	assert.True(t, ok)
	assert.Equal(t, StepReview, s)
}

func TestBasicsRequirements(t *testing.T) {
	req := Requirements(StepBasics, store.ApplicationContext{}, nil)
	assert.False(t, req.Satisfied)
	assert.Equal(t, []string{store.FieldOrganizationName, store.FieldProjectTitle, store.FieldCall}, req.Missing)

	req = Requirements(StepBasics, complete, nil)
	assert.True(t, req.Satisfied)
	assert.Empty(t, req.Missing)

	invalid := complete
	invalid.Call = "invalid call"
	req = Requirements(StepBasics, invalid, nil)
	assert.Equal(t, []string{store.FieldCall}, req.Missing)
}

func TestCanAdvanceFromBasics(t *testing.T) {
	assert.True(t, CanAdvance(StepBasics, StepExcellence, complete, nil))

	for _, field := range store.GatingFields {
		partial := complete
		partial.Set(field, "")
		assert.False(t, CanAdvance(StepBasics, StepExcellence, partial, nil), "advanced without %s", field)
	}

	assert.False(t, CanAdvance(StepBasics, StepImpact, complete, nil))
	assert.False(t, CanAdvance(StepBasics, StepImpact, store.ApplicationContext{}, nil))
	assert.False(t, CanAdvance(StepBasics, StepBasics, complete, nil))
}

func TestLaterStepsNeedCompletedSection(t *testing.T) {
	sections := map[string]store.SectionProgress{
		"excellence": {Status: store.SectionInProgress},
	}
	assert.False(t, CanAdvance(StepExcellence, StepImpact, complete, sections))

	sections["excellence"] = store.SectionProgress{Status: store.SectionComplete, CompletionPercentage: 100}
	assert.True(t, CanAdvance(StepExcellence, StepImpact, complete, sections))

	req := Requirements(StepImpact, complete, sections)
	assert.Equal(t, []string{"section:impact"}, req.Missing)

	assert.True(t, Requirements(StepReview, store.ApplicationContext{}, nil).Satisfied)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		from, to  Step
		ctx       store.ApplicationContext
		allowed   bool
		direction Direction
		reason    string
	}{
		{"forward guarded ok", StepBasics, StepExcellence, complete, true, DirectionForward, ""},
		{"forward guard missing", StepBasics, StepExcellence, store.ApplicationContext{}, false, DirectionForward, ReasonRequirementsMissing},
		{"skip rejected", StepBasics, StepImplementation, complete, false, DirectionForward, ReasonNonAdjacent},
		{"backward always", StepReview, StepBasics, store.ApplicationContext{}, true, DirectionBackward, ""},
		{"stay", StepImpact, StepImpact, store.ApplicationContext{}, true, DirectionStay, ""},
		{"terminal stays", StepReview, StepReview, complete, true, DirectionStay, ""},
		{"past terminal", StepReview, Step("Abgabe"), complete, false, "", ReasonUnknownStep},
		{"unknown", StepBasics, Step("Budget"), complete, false, "", ReasonUnknownStep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Evaluate(tt.from, tt.to, tt.ctx, nil)
			assert.Equal(t, tt.allowed, tr.Allowed)
			assert.Equal(t, tt.direction, tr.Direction)
			assert.Equal(t, tt.reason, tr.Reason)
		})
	}
}

func TestTerminalHasNoNext(t *testing.T) {
	_, ok := Next(StepReview)
	assert.False(t, ok)
	assert.Equal(t, StepReview, Terminal())
	assert.False(t, CanAdvance(StepReview, StepReview, complete, nil))
}

func TestDerive(t *testing.T) {
	assert.Equal(t, StepBasics, Derive(store.ApplicationContext{}, nil))
	assert.Equal(t, StepExcellence, Derive(complete, nil))

	sections := map[string]store.SectionProgress{
		"excellence":     {Status: store.SectionComplete},
		"impact":         {Status: store.SectionComplete},
		"implementation": {Status: store.SectionComplete},
	}
	assert.Equal(t, StepReview, Derive(complete, sections))

	delete(sections, "impact")
	assert.Equal(t, StepImpact, Derive(complete, sections))
}

func TestCompletion(t *testing.T) {
	assert.Equal(t, 0.0, Completion(store.ApplicationContext{}, nil))
	assert.Equal(t, 25.0, Completion(complete, nil))

	sections := map[string]store.SectionProgress{
		"excellence": {Status: store.SectionComplete},
		"impact":     {Status: store.SectionInProgress, CompletionPercentage: 50},
	}
	assert.InDelta(t, 62.5, Completion(complete, sections), 0.0001)

	partial := store.ApplicationContext{OrganizationName: complete.OrganizationName}
	assert.InDelta(t, 100.0/3/4, Completion(partial, nil), 0.0001)
}
