package encoding

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName converts user-typed names to NFC and collapses whitespace,
// so "José  Silva" and "José Silva" are stored identically
func NormalizeName(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// DisplayName title-cases a stored name for greetings in messages
func DisplayName(s string) string {
	return cases.Title(language.Und, cases.NoLower).String(NormalizeName(s))
}

// FirstName returns the first word of a display name
func FirstName(s string) string {
	fields := strings.Fields(DisplayName(s))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
