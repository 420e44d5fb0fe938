package usecase

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxVariationRunes = 6
	minVariationRunes = 2
)

var (
	fileExtRe     = regexp.MustCompile(`\.[A-Za-z0-9]{1,5}$`)
	nonKeywordRe  = regexp.MustCompile(`[^A-Za-z\p{Nd}\x{4E00}-\x{9FFF}\s]+`)
	versionMarkRe = regexp.MustCompile(`\d+(?:\.\d+)?版`)
)

// CleanToken strips the file extension and everything that is not an ASCII
// letter, a CJK unified ideograph, a digit or whitespace, then trims.
func CleanToken(token string) string {
	token = fileExtRe.ReplaceAllString(strings.TrimSpace(token), "")
	token = nonKeywordRe.ReplaceAllString(token, "")
	return strings.TrimSpace(token)
}

// DeriveVariations turns a placeholder file name into search keywords, most
// specific first: the cleaned token, its version-stripped form, then every
// substring of 6 down to 2 runes (longer first, earlier first). The list is
// de-duplicated and never holds entries shorter than 2 runes.
func DeriveVariations(token string) []string {
	full := CleanToken(token)
	if full == "" {
		return nil
	}

	out := make([]string, 0, 16)
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) < minVariationRunes {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	add(full)
	if stripped := strings.TrimSpace(versionMarkRe.ReplaceAllString(full, "")); stripped != full {
		add(stripped)
	}

	runes := []rune(full)
	maxLen := min(len(runes), maxVariationRunes)
	for n := maxLen; n >= minVariationRunes; n-- {
		for start := 0; start+n <= len(runes); start++ {
			add(string(runes[start : start+n]))
		}
	}
	return out
}
