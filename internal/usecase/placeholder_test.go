package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/emoticon-relay/internal/domain"
	"github.com/fairyhunter13/emoticon-relay/internal/usecase"
)

func collect(text string) []domain.PlaceholderMatch {
	var out []domain.PlaceholderMatch
	for m := range usecase.ScanPlaceholders(text) {
		out = append(out, m)
	}
	return out
}

func TestScanPlaceholders_AllBracketStyles(t *testing.T) {
	t.Parallel()

	text := "hi [老铁.jpg] and （哈哈.PNG） x【a b.gif】 y［b.webp］ (c.jpeg)!"
	got := collect(text)
	require.Len(t, got, 5)

	tokens := make([]string, 0, len(got))
	for _, m := range got {
		tokens = append(tokens, m.FileNameToken)
		assert.Equal(t, m.FullMatch, text[m.Start:m.End])
	}
	assert.Equal(t, []string{"老铁.jpg", "哈哈.PNG", "a b.gif", "b.webp", "c.jpeg"}, tokens)
	assert.Equal(t, "[老铁.jpg]", got[0].FullMatch)
	assert.Equal(t, "（哈哈.PNG）", got[1].FullMatch)
}

func TestScanPlaceholders_MixedBracketStyles(t *testing.T) {
	t.Parallel()

	for text, token := range map[string]string{
		"[老铁.jpg）":    "老铁.jpg",
		"（哈哈.png)":    "哈哈.png",
		"(doge.gif】":  "doge.gif",
		"【狗头.webp]":   "狗头.webp",
		"［熊猫头.JPEG)": "熊猫头.JPEG",
	} {
		got := collect(text)
		require.Len(t, got, 1, text)
		assert.Equal(t, token, got[0].FileNameToken, text)
		assert.Equal(t, text, got[0].FullMatch, text)
	}
}

func TestScanPlaceholders_Rejects(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"plain text",
		"[a.txt]",
		"[.jpg]",
		"a.jpg]",
		"(line\nbreak.jpg)",
		"a.jpg",
	} {
		assert.Empty(t, collect(text), text)
	}
}

func TestScanPlaceholders_InnermostBracket(t *testing.T) {
	t.Parallel()

	got := collect("[see [doge.gif]]")
	require.Len(t, got, 1)
	assert.Equal(t, "[doge.gif]", got[0].FullMatch)
	assert.Equal(t, 5, got[0].Start)
}

func TestScanPlaceholders_StopsWhenConsumerStops(t *testing.T) {
	t.Parallel()

	n := 0
	for range usecase.ScanPlaceholders("[a.gif][b.gif][c.gif]") {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}
