package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/emoticon-relay/internal/adapter/observability"
	"github.com/fairyhunter13/emoticon-relay/internal/config"
	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

// LimitReachedMessage is returned in place of a model reply when a guest is out of quota.
const LimitReachedMessage = "The current preview experience limit has been reached. If you continue to ask questions, please set APIKEY"

// PlaceholderResolver is the Tag Replacer contract used by ChatService.
type PlaceholderResolver interface {
	Resolve(ctx domain.Context, text, credential string) domain.ReplacementOutcome
}

// ChatInput is one inbound chat turn.
type ChatInput struct {
	Message  string
	History  []domain.ChatMessage
	APIKey   string
	ClientID string
}

// ChatService runs a chat turn: guest quota, credential selection, history
// budgeting, the completion call and placeholder resolution on both sides.
type ChatService struct {
	Quota    domain.QuotaStore
	Chat     domain.ChatCompleter
	Resolver PlaceholderResolver
	Counter  TokenCounter

	ServerAPIKey     string
	GuestLimit       int
	Model            string
	Temperature      float64
	MaxTokens        int
	HistoryMaxTokens int
}

// NewChatService constructs a ChatService from cfg.
func NewChatService(q domain.QuotaStore, c domain.ChatCompleter, r PlaceholderResolver, tc TokenCounter, cfg config.Config) ChatService {
	return ChatService{
		Quota:            q,
		Chat:             c,
		Resolver:         r,
		Counter:          tc,
		ServerAPIKey:     cfg.ServerAPIKey(),
		GuestLimit:       cfg.GuestLimit,
		Model:            cfg.ChatModel,
		Temperature:      cfg.ChatTemperature,
		MaxTokens:        cfg.ChatMaxTokens,
		HistoryMaxTokens: cfg.ChatHistoryMaxTokens,
	}
}

// Handle runs one chat turn. Guests (no APIKey) are charged against the
// quota first; a denied guest gets LimitReachedMessage and no upstream call.
// The fallback suggester only ever sees the client's own key.
func (s ChatService) Handle(ctx domain.Context, in ChatInput) (domain.ChatReply, error) {
	tracer := otel.Tracer("usecase.chat")
	ctx, span := tracer.Start(ctx, "ChatService.Handle")
	defer span.End()

	if strings.TrimSpace(in.Message) == "" {
		return domain.ChatReply{}, fmt.Errorf("%w: message required", domain.ErrInvalidArgument)
	}
	clientKey := strings.TrimSpace(in.APIKey)
	span.SetAttributes(attribute.Bool("guest", clientKey == ""))
	lg := observability.LoggerFromContext(ctx)

	if clientKey == "" && s.Quota != nil {
		dec, err := s.Quota.CheckAndIncrement(ctx, in.ClientID, s.GuestLimit)
		if err != nil {
			return domain.ChatReply{}, fmt.Errorf("op=chat.Handle: %w", err)
		}
		if !dec.Allowed {
			lg.Info("guest quota reached", slog.String("client_id", in.ClientID), slog.Any("reason", domain.ErrQuotaExceeded))
			return domain.ChatReply{
				Model:       s.Model,
				Reply:       domain.ReplacementOutcome{ProcessedText: LimitReachedMessage, Emoticons: []domain.SearchResult{}},
				RawReply:    LimitReachedMessage,
				UserContent: domain.ReplacementOutcome{ProcessedText: in.Message, Emoticons: []domain.SearchResult{}},
				Limited:     true,
			}, nil
		}
	}

	effectiveKey := clientKey
	if effectiveKey == "" {
		effectiveKey = s.ServerAPIKey
	}
	if effectiveKey == "" {
		return domain.ChatReply{}, fmt.Errorf("%w: no API key provided and server key not configured", domain.ErrCredentialMissing)
	}

	current := domain.ChatMessage{Role: domain.RoleUser, Content: in.Message}
	history := TrimHistory(SanitizeHistory(in.History), current, s.HistoryMaxTokens, s.Counter, s.Model)
	if dropped := len(in.History) - len(history); dropped > 0 {
		lg.Debug("history reduced", slog.Int("kept", len(history)), slog.Int("dropped", dropped))
	}
	messages := append(history, current)

	userContent := s.resolve(ctx, in.Message, clientKey)

	completion, err := s.Chat.Complete(ctx, effectiveKey, domain.ChatCompletionRequest{
		Purpose:     "chat",
		Model:       s.Model,
		Messages:    messages,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	})
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("op=chat.Handle: %w", err)
	}

	reply := s.resolve(ctx, completion.Content, clientKey)
	span.SetAttributes(attribute.Int("reply.emoticons", len(reply.Emoticons)))
	return domain.ChatReply{
		ID:          completion.ID,
		Model:       completion.Model,
		Reply:       reply,
		RawReply:    completion.Content,
		UserContent: userContent,
	}, nil
}

func (s ChatService) resolve(ctx domain.Context, text, credential string) domain.ReplacementOutcome {
	if s.Resolver == nil {
		return domain.ReplacementOutcome{ProcessedText: text, Emoticons: []domain.SearchResult{}}
	}
	return s.Resolver.Resolve(ctx, text, credential)
}
