// Package workflow defines the proposal steps, their entry requirements and
// which transitions between them are legal. Everything here is derived from a
// context and a section-progress map; the machine itself keeps no state.
package workflow

import (
	"grant-assistant-be/pkg/proposal/validator"
	"grant-assistant-be/pkg/store"
)

type Step string

const (
	StepBasics         Step = "Grundlagen"
	StepExcellence     Step = "Excellence"
	StepImpact         Step = "Impact"
	StepImplementation Step = "Implementation"
	StepReview         Step = "Überprüfung"
)

var steps = []Step{StepBasics, StepExcellence, StepImpact, StepImplementation, StepReview}

// sectionForStep maps the steps whose completion is decided by the section
// editor to the section id that must be complete.
var sectionForStep = map[Step]string{
	StepExcellence:     "excellence",
	StepImpact:         "impact",
	StepImplementation: "implementation",
}

// Transition rejection reasons.
const (
	ReasonUnknownStep         = "unknown_step"
	ReasonNonAdjacent         = "non_adjacent"
	ReasonRequirementsMissing = "requirements_missing"
)

type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
	DirectionStay     Direction = "stay"
)

// Requirement reports whether a step's exit guard is satisfied.
type Requirement struct {
	Step      Step     `json:"step"`
	Satisfied bool     `json:"satisfied"`
	Missing   []string `json:"missing"`
}

// Transition is the verdict on a requested step change.
type Transition struct {
	From      Step      `json:"from"`
	To        Step      `json:"to"`
	Allowed   bool      `json:"allowed"`
	Direction Direction `json:"direction,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Missing   []string  `json:"missing,omitempty"`
}

// Steps returns the steps in order, initial first.
func Steps() []Step {
	return append([]Step(nil), steps...)
}

// Initial is the step every new session starts in.
func Initial() Step { return StepBasics }

// Terminal is the last step.
func Terminal() Step { return StepReview }

// IndexOf returns the position of s, or -1 for unknown steps.
func IndexOf(s Step) int {
	for i, candidate := range steps {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Parse resolves a step name.
func Parse(name string) (Step, bool) {
	s := Step(name)
	return s, IndexOf(s) >= 0
}

// Next returns the step after s. ok is false for the terminal or unknown steps.
func Next(s Step) (Step, bool) {
	i := IndexOf(s)
	if i < 0 || i+1 >= len(steps) {
		return "", false
	}
	return steps[i+1], true
}

// SectionFor returns the section id gating the given step, if any.
func SectionFor(s Step) (string, bool) {
	id, ok := sectionForStep[s]
	return id, ok
}

// Requirements evaluates the exit guard of step against the given state.
func Requirements(step Step, ctx store.ApplicationContext, sections map[string]store.SectionProgress) Requirement {
	req := Requirement{Step: step, Missing: []string{}}

	switch {
	case step == StepBasics:
		for _, field := range store.GatingFields {
			value := ctx.Get(field)
			if value == "" || !validator.Validate(field, value).Valid {
				req.Missing = append(req.Missing, field)
			}
		}
	case IndexOf(step) < 0:
		req.Missing = append(req.Missing, ReasonUnknownStep)
	default:
		if section, ok := sectionForStep[step]; ok {
			if sections[section].Status != store.SectionComplete {
				req.Missing = append(req.Missing, "section:"+section)
			}
		}
	}

	req.Satisfied = len(req.Missing) == 0
	return req
}

// CanAdvance is true only for the immediate next step with a satisfied guard.
func CanAdvance(from, to Step, ctx store.ApplicationContext, sections map[string]store.SectionProgress) bool {
	next, ok := Next(from)
	if !ok || next != to {
		return false
	}
	return Requirements(from, ctx, sections).Satisfied
}

// Evaluate judges a move from one step to another. Moving back is always
// allowed; moving forward is allowed one step at a time behind the guard.
func Evaluate(from, to Step, ctx store.ApplicationContext, sections map[string]store.SectionProgress) Transition {
	t := Transition{From: from, To: to}
	fi, ti := IndexOf(from), IndexOf(to)
	if fi < 0 || ti < 0 {
		t.Reason = ReasonUnknownStep
		return t
	}

	switch {
	case ti == fi:
		t.Allowed, t.Direction = true, DirectionStay
	case ti < fi:
		t.Allowed, t.Direction = true, DirectionBackward
	case ti > fi+1:
		t.Direction, t.Reason = DirectionForward, ReasonNonAdjacent
	default:
		t.Direction = DirectionForward
		req := Requirements(from, ctx, sections)
		if req.Satisfied {
			t.Allowed = true
		} else {
			t.Reason, t.Missing = ReasonRequirementsMissing, req.Missing
		}
	}
	return t
}

// Derive returns the furthest step reachable by consecutive guarded advances
// from the initial step.
func Derive(ctx store.ApplicationContext, sections map[string]store.SectionProgress) Step {
	current := Initial()
	for {
		next, ok := Next(current)
		if !ok || !Requirements(current, ctx, sections).Satisfied {
			return current
		}
		current = next
	}
}

// Completion estimates overall progress in percent: the share of valid
// gating fields and the completion of every section that gates a step,
// weighted equally.
func Completion(ctx store.ApplicationContext, sections map[string]store.SectionProgress) float64 {
	valid := 0
	for _, field := range store.GatingFields {
		if value := ctx.Get(field); value != "" && validator.Validate(field, value).Valid {
			valid++
		}
	}
	total := float64(valid) / float64(len(store.GatingFields)) * 100

	for _, step := range steps {
		section, ok := sectionForStep[step]
		if !ok {
			continue
		}
		p := sections[section]
		pct := p.CompletionPercentage
		if p.Status == store.SectionComplete {
			pct = 100
		}
		total += pct
	}
	return total / float64(len(sectionForStep)+1)
}
