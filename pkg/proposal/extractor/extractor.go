// Package extractor turns one free-text chat message into a partial
// ApplicationContext patch. It is pure: no I/O, no logging.
package extractor

import (
	"regexp"
	"strings"

	"grant-assistant-be/pkg/proposal/validator"
	"grant-assistant-be/pkg/store"
)

// Rule names which extraction rule produced a result.
type Rule string

const (
	RuleNone         Rule = "none"
	RuleCompound     Rule = "compound"
	RuleLabelled     Rule = "labelled"
	RuleNextExpected Rule = "next_expected"
)

// Result is the outcome of one extraction.
type Result struct {
	Patch  store.ApplicationContext `json:"patch"`
	Fields []string                 `json:"fields"`
	Rule   Rule                     `json:"rule"`
	// Rejections holds, per gating field the message was tried against, why it
	// was not accepted. Callers use it to tell "not provided" from "invalid".
	Rejections map[string]validator.Result `json:"rejections,omitempty"`
}

// Empty reports whether the message populated nothing.
func (r Result) Empty() bool {
	return len(r.Fields) == 0
}

var (
	orgLabel   = regexp.MustCompile(`(?i)^(organisation|organization|org|antragsteller|applicant)\s*:\s*`)
	titleLabel = regexp.MustCompile(`(?i)^(projekttitel|project title|titel|title)\s*:\s*`)
	callLabel  = regexp.MustCompile(`(?i)^(call id|call|ausschreibung|topic)\s*:\s*`)
)

// NextExpectedField returns the first unset gating field, or "" when all are set.
func NextExpectedField(current store.ApplicationContext) string {
	for _, field := range store.GatingFields {
		if current.Get(field) == "" {
			return field
		}
	}
	return ""
}

// Extract applies the extraction rules in order; the first rule that yields
// anything wins.
func Extract(message string, current store.ApplicationContext) Result {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Result{Rule: RuleNone}
	}

	if res, ok := extractCompound(trimmed); ok {
		return res
	}
	if res, ok := extractLabelled(trimmed); ok {
		return res
	}
	return extractNextExpected(trimmed, current)
}

// extractCompound parses an organization line directly followed by a line that
// starts with a call identifier.
func extractCompound(message string) (Result, bool) {
	lines := nonEmptyLines(message)
	if len(lines) < 2 {
		return Result{}, false
	}

	for i := 0; i+1 < len(lines); i++ {
		org := validator.ValidateOrganizationName(orgLabel.ReplaceAllString(lines[i], ""))
		if !org.Valid {
			continue
		}
		callLine := callLabel.ReplaceAllString(lines[i+1], "")
		fields := strings.Fields(callLine)
		if len(fields) == 0 {
			continue
		}
		call := validator.ValidateCallIdentifier(fields[0])
		if !call.Valid {
			continue
		}

		res := Result{Rule: RuleCompound}
		res.Patch.OrganizationName = org.Value
		res.Patch.Call = call.Value
		res.Fields = []string{store.FieldOrganizationName, store.FieldCall}
		return res, true
	}
	return Result{}, false
}

// extractLabelled routes a single "Label: value" line to the named field, set
// or not, so users can correct an earlier answer.
func extractLabelled(message string) (Result, bool) {
	if strings.Contains(message, "\n") {
		return Result{}, false
	}

	labels := []struct {
		field string
		re    *regexp.Regexp
	}{
		{store.FieldOrganizationName, orgLabel},
		{store.FieldProjectTitle, titleLabel},
		{store.FieldCall, callLabel},
	}
	for _, l := range labels {
		loc := l.re.FindStringIndex(message)
		if loc == nil {
			continue
		}
		res := Result{Rule: RuleLabelled}
		check := validator.Validate(l.field, message[loc[1]:])
		if !check.Valid {
			res.Rejections = map[string]validator.Result{l.field: check}
			return res, true
		}
		res.Patch.Set(l.field, check.Value)
		res.Fields = []string{l.field}
		return res, true
	}
	return Result{}, false
}

func extractNextExpected(message string, current store.ApplicationContext) Result {
	res := Result{Rule: RuleNone}
	for _, field := range store.GatingFields {
		if current.Get(field) != "" {
			continue
		}
		check := validator.Validate(field, message)
		if check.Valid {
			res.Rule = RuleNextExpected
			res.Patch.Set(field, check.Value)
			res.Fields = []string{field}
			return res
		}
		if res.Rejections == nil {
			res.Rejections = make(map[string]validator.Result)
		}
		res.Rejections[field] = check
	}
	return res
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
