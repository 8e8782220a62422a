// Package template maps a funding call to the proposal template used to
// render it. Only the template id is resolved here.
package template

import "strings"

const GenericTemplateID = "generic"

var programTemplates = map[string]string{
	"HORIZON":  "horizon-europe",
	"ERASMUS":  "erasmus-plus",
	"CERV":     "cerv",
	"LIFE":     "life",
	"DIGITAL":  "digital-europe",
	"CREA":     "creative-europe",
	"INTERREG": "interreg",
}

// Resolve returns the template id for a call identifier, keyed on its
// program prefix. An empty call resolves to "".
func Resolve(call string) string {
	call = strings.TrimSpace(call)
	if call == "" {
		return ""
	}
	program := strings.ToUpper(strings.SplitN(call, "-", 2)[0])
	if id, ok := programTemplates[program]; ok {
		return id
	}
	return GenericTemplateID
}
