package usecase

import (
	"iter"
	"regexp"

	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

// placeholderRe matches an image file name between an opening and a closing
// bracket. ASCII () [] and full-width （） 【】 ［］ are recognised, and the
// closing style need not match the opening one.
var placeholderRe = regexp.MustCompile(
	`[(\[（【［]([^()\[\]（）【】［］\r\n]+\.(?i:jpe?g|png|gif|webp))[)\]）】］]`,
)

// ScanPlaceholders yields placeholder spans of text left to right.
// Matching resumes after each span, so spans never overlap.
func ScanPlaceholders(text string) iter.Seq[domain.PlaceholderMatch] {
	return func(yield func(domain.PlaceholderMatch) bool) {
		offset := 0
		for offset < len(text) {
			loc := placeholderRe.FindStringSubmatchIndex(text[offset:])
			if loc == nil {
				return
			}
			m := domain.PlaceholderMatch{
				FullMatch:     text[offset+loc[0] : offset+loc[1]],
				FileNameToken: text[offset+loc[2] : offset+loc[3]],
				Start:         offset + loc[0],
				End:           offset + loc[1],
			}
			if !yield(m) {
				return
			}
			offset = m.End
		}
	}
}
