// Package tokencount counts chat tokens for history budgeting.
//
// It uses tiktoken-go for OpenAI-compatible encodings and falls back to a
// character estimate when no encoding can be loaded.
package tokencount

import (
	"strings"
	"sync"
	"unicode/utf8"

	"log/slog"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	replyPriming     = 3
)

// Counter provides thread-safe token counting for chat models.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
	}
}

// DefaultCounter is a global token counter instance.
var DefaultCounter = NewCounter()

// getEncodingForModel returns the cached tiktoken encoding for a model.
func (c *Counter) getEncodingForModel(model string) (*tiktoken.Tiktoken, error) {
	normalizedModel := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalizedModel]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encodingCache[normalizedModel]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalizedModel)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.String("normalized", normalizedModel),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	c.encodingCache[normalizedModel] = enc
	return enc, nil
}

// normalizeModelName maps provider model ids onto tiktoken model names.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		// deepseek, qwen, llama and friends are close enough to cl100k
		return "gpt-4"
	}
}

// CountTokens counts the tokens of text for model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountMessages returns the prompt size of msgs including per-message overhead.
// It never fails: when no encoding is available it uses EstimateTokens.
func (c *Counter) CountMessages(msgs []domain.ChatMessage, model string) int {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		slog.Warn("failed to load encoding, using estimate",
			slog.String("model", model),
			slog.Any("error", err))
		total := replyPriming
		for _, m := range msgs {
			total += tokensPerMessage + tokensPerRole + EstimateTokens(m.Role) + EstimateTokens(m.Content)
		}
		return total
	}

	total := replyPriming
	for _, m := range msgs {
		total += tokensPerMessage + tokensPerRole
		total += len(enc.Encode(m.Role, nil, nil))
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total
}

// EstimateTokens approximates a token count without an encoding.
// CJK text runs close to one token per rune, latin text about four bytes per token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	runes := utf8.RuneCountInString(text)
	if runes < len(text) {
		return runes
	}
	return (len(text) + 3) / 4
}
