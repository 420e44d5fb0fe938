package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

func TestNormalizeModelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"deepseek-chat", "gpt-4"},
		{"openai/gpt-3.5-turbo-0125", "gpt-3.5-turbo"},
		{"meta-llama/llama-3.1-8b-instruct", "gpt-4"},
		{"", "gpt-4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeModelName(tt.in), tt.in)
	}
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 3, EstimateTokens("hello world!"))
	assert.Equal(t, 4, EstimateTokens("老铁没毛"))
}

func TestCountMessages_GrowsWithHistory(t *testing.T) {
	t.Parallel()

	c := NewCounter()
	one := []domain.ChatMessage{{Role: domain.RoleUser, Content: "hello there"}}
	two := append([]domain.ChatMessage{{Role: domain.RoleAssistant, Content: "a fairly long earlier answer"}}, one...)

	n1 := c.CountMessages(one, "deepseek-chat")
	n2 := c.CountMessages(two, "deepseek-chat")
	assert.Greater(t, n1, replyPriming)
	assert.Greater(t, n2, n1)
}

func TestCountMessages_Empty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, replyPriming, DefaultCounter.CountMessages(nil, "deepseek-chat"))
}
