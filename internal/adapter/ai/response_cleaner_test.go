package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseCleaner_FirstSuggestion(t *testing.T) {
	t.Parallel()

	cleaner := NewResponseCleaner()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "熊猫头", expected: "熊猫头"},
		{name: "comma_list", input: "熊猫头, 无语", expected: "熊猫头"},
		{name: "fullwidth_comma", input: "熊猫头，无语", expected: "熊猫头"},
		{name: "enumeration_comma", input: "无语、尴尬", expected: "无语"},
		{name: "numbered_lines", input: "1. 熊猫头\n2. 无语", expected: "熊猫头"},
		{name: "enumeration_numbering", input: "1、熊猫头\n2、无语", expected: "熊猫头"},
		{name: "bullets", input: "- 摸鱼\n- 划水", expected: "摸鱼"},
		{name: "quoted", input: "\"摸鱼\"", expected: "摸鱼"},
		{name: "chinese_quotes", input: "「摸鱼」、「划水」", expected: "摸鱼"},
		{name: "label_prefix", input: "建议：摸鱼", expected: "摸鱼"},
		{name: "heading_line_skipped", input: "Here are some options:\nfacepalm\nsigh", expected: "facepalm"},
		{name: "markdown_fence", input: "```\n**摸鱼**\n```", expected: "摸鱼"},
		{name: "trailing_period", input: "摸鱼。", expected: "摸鱼"},
		{name: "empty", input: "   ", expected: ""},
		{name: "prose_too_long", input: "this keyword could be replaced by something more popular", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleaner.FirstSuggestion(tt.input))
		})
	}
}

func TestIsRefusal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRefusal("I'm sorry, I can't help with that."))
	assert.True(t, IsRefusal("抱歉，无法提供替代词"))
	assert.False(t, IsRefusal("熊猫头, 无语"))
	assert.False(t, IsRefusal(""))
}
