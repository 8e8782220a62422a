package validator

import "strings"

// genericPhrases are conversational filler that must never become a field
// value, whatever its length.
var genericPhrases = map[string]struct{}{
	// German
	"legen wir los":     {},
	"lass uns loslegen": {},
	"lass uns anfangen": {},
	"lass uns starten":  {},
	"fangen wir an":     {},
	"los geht's":        {},
	"los gehts":         {},
	"los":               {},
	"ja":                {},
	"nein":              {},
	"hallo":             {},
	"guten tag":         {},
	"danke":             {},
	"danke schön":       {},
	"vielen dank":       {},
	"weiter":            {},
	"gut":               {},
	"super":             {},
	"prima":             {},
	"klar":              {},
	"genau":             {},
	"passt":             {},
	"alles klar":        {},
	"testen":            {},
	"starten":           {},
	"hilfe":             {},
	// English
	"let's go":    {},
	"lets go":     {},
	"let's start": {},
	"lets start":  {},
	"let's begin": {},
	"get started": {},
	"yes":         {},
	"no":          {},
	"sure":        {},
	"thanks":      {},
	"thank you":   {},
	"next":        {},
	"continue":    {},
	"hello":       {},
	"good":        {},
	"great":       {},
	"fine":        {},
	"alright":     {},
	"help":        {},
	"begin":       {},
	"start":       {},
	// Shared
	"ok":   {},
	"okay": {},
	"test": {},
	"hi":   {},
	"hey":  {},
}

// IsGenericPhrase reports whether s, normalised, is conversational filler.
func IsGenericPhrase(s string) bool {
	_, found := genericPhrases[normalizePhrase(s)]
	return found
}

// GenericPhrases returns the denylist entries.
func GenericPhrases() []string {
	out := make([]string, 0, len(genericPhrases))
	for p := range genericPhrases {
		out = append(out, p)
	}
	return out
}

func normalizePhrase(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", "`", "'", "´", "'").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " .,!?;:…-")
}
