package httpserver

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/emoticon-relay/internal/domain"
	"github.com/fairyhunter13/emoticon-relay/pkg/textx"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// historyEntry is lenient on purpose: malformed entries are dropped by the
// use case instead of failing the whole request.
type historyEntry struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// chatRequest is the POST /api/chat body.
type chatRequest struct {
	Message string         `json:"message" validate:"required,max=8000"`
	History []historyEntry `json:"history" validate:"max=200"`
	APIKey  string         `json:"apiKey" validate:"max=512"`
}

// validateChatRequest returns an ErrInvalidArgument error plus per field tags.
func validateChatRequest(req chatRequest) (map[string]string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return map[string]string{"message": "required"}, fmt.Errorf("%w: message required", domain.ErrInvalidArgument)
	}
	err := getValidator().Struct(req)
	if err == nil {
		return nil, nil
	}
	verrs := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument)
}

// toHistory keeps entries whose content is a string or a number; anything
// else has no sensible text form.
func toHistory(in []historyEntry) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(in))
	for _, h := range in {
		var content string
		switch v := h.Content.(type) {
		case string:
			content = v
		case float64, bool:
			content = fmt.Sprint(v)
		default:
			continue
		}
		out = append(out, domain.ChatMessage{Role: h.Role, Content: textx.SanitizeText(content)})
	}
	return out
}

// validateProxyTarget accepts absolute http(s) URLs only.
func validateProxyTarget(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: Missing image URL", domain.ErrInvalidArgument)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: Invalid image URL", domain.ErrInvalidArgument)
	}
	return u, nil
}
