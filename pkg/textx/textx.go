// Package textx holds the text helpers the relay applies to inbound and rendered text.
package textx

import (
	"strings"
	"unicode/utf8"
)

// SanitizeText drops invalid UTF-8 and control characters other than tab,
// newline and carriage return, then trims surrounding space.
func SanitizeText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
