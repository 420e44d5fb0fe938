package ai

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxSuggestionRunes bounds an accepted keyword; longer lines are prose, not search terms.
const maxSuggestionRunes = 20

var (
	listMarkerRe   = regexp.MustCompile(`^\s*(?:[-*•·]+|\d+\s*[.、)）:：]|[（(]\d+[)）])\s*`)
	labelPrefixRe  = regexp.MustCompile(`^(?i:alternatives?|suggestions?|keywords?|替代词|替代关键词|关键词|建议)\s*[:：]\s*`)
	digitsOnlyRe   = regexp.MustCompile(`^[0-9\s]+$`)
	markdownEmRe   = regexp.MustCompile(`\*\*([^*]+)\*\*|\*([^*]+)\*`)
	suggestionSeps = []string{"\n", ",", "，", "、", ";", "；", "|", "/"}
)

// ResponseCleaner turns a free-form completion into a single search keyword.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

// FirstSuggestion returns the first usable keyword in response, or "".
func (rc *ResponseCleaner) FirstSuggestion(response string) string {
	response = rc.removeMarkdownBlocks(response)
	for _, candidate := range rc.splitCandidates(response) {
		if kw := rc.cleanCandidate(candidate); kw != "" {
			return kw
		}
	}
	return ""
}

// removeMarkdownBlocks removes code fences and emphasis markers.
func (rc *ResponseCleaner) removeMarkdownBlocks(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```text")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = markdownEmRe.ReplaceAllString(response, "$1$2")
	return strings.TrimSpace(response)
}

// splitCandidates splits on line breaks and the list separators models use
// for short term lists, in both ASCII and full-width forms.
func (rc *ResponseCleaner) splitCandidates(response string) []string {
	parts := []string{response}
	for _, sep := range suggestionSeps {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}
	return parts
}

// cleanCandidate strips numbering, labels, quotes and trailing punctuation.
// A line ending in a colon is a heading and yields "".
func (rc *ResponseCleaner) cleanCandidate(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ":") || strings.HasSuffix(s, "：") {
		return ""
	}
	s = labelPrefixRe.ReplaceAllString(s, "")
	s = listMarkerRe.ReplaceAllString(s, "")
	s = strings.Trim(s, " \t\"'`“”‘’「」『』《》<>[]【】")
	s = strings.TrimRight(s, "。.!！?？")
	s = strings.TrimSpace(s)
	if s == "" || digitsOnlyRe.MatchString(s) || utf8.RuneCountInString(s) > maxSuggestionRunes {
		return ""
	}
	return s
}
