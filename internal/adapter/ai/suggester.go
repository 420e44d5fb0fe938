package ai

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/emoticon-relay/internal/adapter/observability"
	"github.com/fairyhunter13/emoticon-relay/internal/config"
	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

const suggestSystemPrompt = `You help search a Chinese meme sticker site (表情包).
Given a keyword that returned no results, reply with 1-2 shorter or more common alternative search terms.
Reply with the terms only, separated by commas. No explanations.`

// Suggester implements domain.KeywordSuggester on top of a chat completion endpoint.
type Suggester struct {
	chat        domain.ChatCompleter
	model       string
	temperature float64
	maxTokens   int
	cleaner     *ResponseCleaner
	breaker     *CircuitBreaker
	cache       *suggestionCache
}

// NewSuggester builds a suggester using the FALLBACK_* settings of cfg.
func NewSuggester(chat domain.ChatCompleter, cfg config.Config) *Suggester {
	return &Suggester{
		chat:        chat,
		model:       cfg.ChatModel,
		temperature: cfg.FallbackTemperature,
		maxTokens:   cfg.FallbackMaxTokens,
		cleaner:     NewResponseCleaner(),
		breaker:     NewCircuitBreaker("fallback-suggester", cfg.FallbackBreakerThreshold, cfg.FallbackBreakerCooldown),
		cache:       newSuggestionCache(cfg.FallbackCacheSize),
	}
}

// SuggestAlternative asks the model for one alternative to keyword.
// It returns "" with a nil error when there is no credential or the model
// offers nothing different from keyword.
func (s *Suggester) SuggestAlternative(ctx domain.Context, keyword, credential string) (string, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" || strings.TrimSpace(credential) == "" || s == nil || s.chat == nil {
		return "", nil
	}
	if alt, ok := s.cache.get(keyword); ok {
		observability.RecordFallback("cached")
		return alt, nil
	}
	if !s.breaker.ShouldAttempt() {
		observability.RecordFallback("circuit_open")
		return "", fmt.Errorf("op=suggester.SuggestAlternative: %w: circuit open", domain.ErrUpstreamUnavailable)
	}

	res, err := s.chat.Complete(ctx, credential, domain.ChatCompletionRequest{
		Purpose: "suggest",
		Model:   s.model,
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: suggestSystemPrompt},
			{Role: domain.RoleUser, Content: keyword},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		if countsAsOutage(err) {
			s.breaker.RecordFailure()
		}
		observability.RecordFallback("error")
		observability.LoggerFromContext(ctx).Warn("fallback suggestion failed",
			slog.String("keyword", keyword),
			slog.Any("error", err))
		return "", fmt.Errorf("op=suggester.SuggestAlternative: %w", err)
	}
	s.breaker.RecordSuccess()

	if IsRefusal(res.Content) {
		observability.RecordFallback("refused")
		return "", nil
	}
	alt := s.cleaner.FirstSuggestion(res.Content)
	if alt == "" || strings.EqualFold(alt, keyword) {
		observability.RecordFallback("none")
		return "", nil
	}
	s.cache.put(keyword, alt)
	observability.RecordFallback("suggested")
	observability.LoggerFromContext(ctx).Debug("fallback suggestion accepted",
		slog.String("keyword", keyword),
		slog.String("alternative", alt))
	return alt, nil
}

// countsAsOutage reports whether err says the upstream itself is unhealthy,
// as opposed to a rejected credential or request.
func countsAsOutage(err error) bool {
	return errors.Is(err, domain.ErrUpstreamUnavailable) ||
		errors.Is(err, domain.ErrUpstreamRateLimit) ||
		errors.Is(err, domain.ErrUpstreamMalformed)
}
