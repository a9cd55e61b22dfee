// Package textnorm produces display-friendly column names from the service's
// labels: accents are stripped and whitespace runs become underscores.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripAccents removes combining marks: "Niño Ágil" becomes "Nino Agil".
func StripAccents(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// ColumnName strips accents and replaces every run of whitespace or slashes
// with a single underscore. Case is preserved.
//
//	ColumnName("Café con Leche") == "Cafe_con_Leche"
//	ColumnName("Niño/a Ágil")    == "Nino_a_Agil"
func ColumnName(s string) string {
	s = StripAccents(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	sep := false
	for _, r := range s {
		if unicode.IsSpace(r) || r == '/' {
			if !sep {
				b.WriteByte('_')
				sep = true
			}
			continue
		}
		b.WriteRune(r)
		sep = false
	}
	return b.String()
}
