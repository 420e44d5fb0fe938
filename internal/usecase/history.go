package usecase

import (
	"strings"

	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

// TokenCounter sizes a prompt for a model.
type TokenCounter interface {
	CountMessages(msgs []domain.ChatMessage, model string) int
}

var allowedRoles = map[string]struct{}{
	domain.RoleUser:      {},
	domain.RoleAssistant: {},
	domain.RoleSystem:    {},
}

// SanitizeHistory keeps entries whose role is known and whose role and
// content are both non-empty.
func SanitizeHistory(history []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(history))
	for _, m := range history {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role == "" || m.Content == "" {
			continue
		}
		if _, ok := allowedRoles[role]; !ok {
			continue
		}
		out = append(out, domain.ChatMessage{Role: role, Content: m.Content})
	}
	return out
}

// TrimHistory drops the oldest history entries until history plus current
// fits in budget tokens. The current message is always kept; budget <= 0
// or a nil counter disables trimming.
func TrimHistory(history []domain.ChatMessage, current domain.ChatMessage, budget int, counter TokenCounter, model string) []domain.ChatMessage {
	if budget <= 0 || counter == nil {
		return history
	}
	for len(history) > 0 {
		msgs := append(append(make([]domain.ChatMessage, 0, len(history)+1), history...), current)
		if counter.CountMessages(msgs, model) <= budget {
			break
		}
		history = history[1:]
	}
	return history
}
