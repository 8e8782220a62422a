// Package validator holds the field predicates and the sanitizer applied to
// every value before it can enter the context store. Predicates never panic;
// they report acceptance together with the sanitized value.
package validator

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"grant-assistant-be/pkg/store"

	"github.com/microcosm-cc/bluemonday"
)

const (
	MinOrganizationLength = 3
	MaxOrganizationLength = 200
	MinTitleWords         = 2
	MaxTitleLength        = 300
	MaxFreeTextLength     = 5000

	// maxStalledPasses bounds passes that change the value without
	// shortening it. Shrinking passes are not bounded.
	maxStalledPasses = 8
)

// Rejection reasons.
const (
	ReasonEmpty         = "empty"
	ReasonGenericPhrase = "generic_phrase"
	ReasonTooShort      = "too_short"
	ReasonTooLong       = "too_long"
	ReasonTooFewWords   = "too_few_words"
	ReasonNoLetters     = "no_letters"
	ReasonLooksLikeCall = "looks_like_call_identifier"
	ReasonBadFormat     = "invalid_call_format"
	ReasonUnknownField  = "unknown_field"
)

// Result is the outcome of validating one candidate value.
type Result struct {
	Valid  bool   `json:"valid"`
	Value  string `json:"value"`
	Reason string `json:"reason,omitempty"`
}

func accept(v string) Result         { return Result{Valid: true, Value: v} }
func reject(v, reason string) Result { return Result{Valid: false, Value: v, Reason: reason} }

var (
	policy = bluemonday.StrictPolicy()

	callShape   = regexp.MustCompile(`^[A-Z][A-Z0-9]*(?:-[A-Z0-9]+)+$`)
	yearSegment = regexp.MustCompile(`^[0-9]{4}$`)
	alphaSeg    = regexp.MustCompile(`[A-Z]`)
)

// Sanitize strips markup (script and style bodies included), decodes entities
// and collapses whitespace. It is applied until the value stops changing, so
// Sanitize(Sanitize(s)) == Sanitize(s) however deeply s is entity-encoded.
func Sanitize(s string) string {
	cur := collapse(s)
	stalled := 0
	for {
		next := collapse(html.UnescapeString(policy.Sanitize(cur)))
		if next == cur {
			return cur
		}
		if len(next) >= len(cur) {
			stalled++
			if stalled > maxStalledPasses {
				return next
			}
		} else {
			stalled = 0
		}
		cur = next
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IsCallShaped reports whether s has the structural shape of a funding-call
// identifier, regardless of case.
func IsCallShaped(s string) bool {
	candidate := strings.ToUpper(strings.TrimSpace(s))
	if !callShape.MatchString(candidate) {
		return false
	}
	hasYear, hasAlpha := false, false
	for _, seg := range strings.Split(candidate, "-") {
		if yearSegment.MatchString(seg) {
			hasYear = true
		}
		if alphaSeg.MatchString(seg) {
			hasAlpha = true
		}
	}
	return hasYear && hasAlpha
}

// ValidateOrganizationName accepts applicant organization names.
func ValidateOrganizationName(s string) Result {
	v := Sanitize(s)
	switch {
	case v == "":
		return reject(v, ReasonEmpty)
	case IsGenericPhrase(v):
		return reject(v, ReasonGenericPhrase)
	case utf8.RuneCountInString(v) < MinOrganizationLength:
		return reject(v, ReasonTooShort)
	case utf8.RuneCountInString(v) > MaxOrganizationLength:
		return reject(v, ReasonTooLong)
	case !hasLetter(v):
		return reject(v, ReasonNoLetters)
	case IsCallShaped(v):
		return reject(v, ReasonLooksLikeCall)
	}
	return accept(v)
}

// ValidateProjectTitle accepts multi-word proposal titles.
func ValidateProjectTitle(s string) Result {
	v := Sanitize(s)
	switch {
	case v == "":
		return reject(v, ReasonEmpty)
	case IsGenericPhrase(v):
		return reject(v, ReasonGenericPhrase)
	case len(strings.Fields(v)) < MinTitleWords:
		return reject(v, ReasonTooFewWords)
	case utf8.RuneCountInString(v) > MaxTitleLength:
		return reject(v, ReasonTooLong)
	case !hasLetter(v):
		return reject(v, ReasonNoLetters)
	case IsCallShaped(v):
		return reject(v, ReasonLooksLikeCall)
	}
	return accept(v)
}

// ValidateCallIdentifier accepts codes such as HORIZON-CL2-2025-DEMOCRACY-01
// or LIFE-2025: hyphen-joined segments with an alphabetic program segment and
// a 4-digit year. Input is matched case-insensitively and the accepted value
// is upper-cased.
func ValidateCallIdentifier(s string) Result {
	v := strings.ToUpper(strings.TrimRight(Sanitize(s), ".,;:!"))
	switch {
	case v == "":
		return reject(v, ReasonEmpty)
	case IsGenericPhrase(v):
		return reject(v, ReasonGenericPhrase)
	case !IsCallShaped(v):
		return reject(v, ReasonBadFormat)
	}
	return accept(v)
}

// ValidateFreeText accepts any non-filler text of bounded length.
func ValidateFreeText(s string) Result {
	v := Sanitize(s)
	switch {
	case v == "":
		return reject(v, ReasonEmpty)
	case IsGenericPhrase(v):
		return reject(v, ReasonGenericPhrase)
	case utf8.RuneCountInString(v) > MaxFreeTextLength:
		return reject(v, ReasonTooLong)
	}
	return accept(v)
}

// Validate dispatches on a gating field name.
func Validate(field, s string) Result {
	switch field {
	case store.FieldOrganizationName:
		return ValidateOrganizationName(s)
	case store.FieldProjectTitle:
		return ValidateProjectTitle(s)
	case store.FieldCall:
		return ValidateCallIdentifier(s)
	}
	return reject(Sanitize(s), ReasonUnknownField)
}

// CleanContext re-validates the gating fields of ctx, dropping those that
// fail, and sanitizes the pass-through metadata. It returns the names of the
// dropped fields.
func CleanContext(ctx store.ApplicationContext) (store.ApplicationContext, []string) {
	out := ctx.Clone()
	var dropped []string
	for _, field := range store.GatingFields {
		raw := out.Get(field)
		if raw == "" {
			continue
		}
		res := Validate(field, raw)
		if !res.Valid {
			out.Set(field, "")
			dropped = append(dropped, field)
			continue
		}
		out.Set(field, res.Value)
	}

	out.TemplateID = Sanitize(out.TemplateID)
	out.Acronym = Sanitize(out.Acronym)
	out.Country = Sanitize(out.Country)
	out.Budget = Sanitize(out.Budget)
	out.Duration = Sanitize(out.Duration)
	if len(out.Partners) > 0 {
		partners := make([]string, 0, len(out.Partners))
		for _, p := range out.Partners {
			if clean := Sanitize(p); clean != "" {
				partners = append(partners, clean)
			}
		}
		if len(partners) == 0 {
			partners = nil
		}
		out.Partners = partners
	}
	return out, dropped
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
