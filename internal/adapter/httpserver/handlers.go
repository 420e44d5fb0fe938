package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/emoticon-relay/internal/adapter/observability"
	"github.com/fairyhunter13/emoticon-relay/internal/config"
	"github.com/fairyhunter13/emoticon-relay/internal/domain"
	"github.com/fairyhunter13/emoticon-relay/internal/usecase"
	"github.com/fairyhunter13/emoticon-relay/pkg/textx"
)

// maxChatBodyBytes bounds the chat request body; history makes it larger than one message.
const maxChatBodyBytes = 1 << 20

// ChatRunner runs one chat turn.
type ChatRunner interface {
	Handle(ctx domain.Context, in usecase.ChatInput) (domain.ChatReply, error)
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Chat       ChatRunner
	ProxyHC    *http.Client
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
// redisCheck may be nil when quota records live in memory.
func NewServer(cfg config.Config, chat ChatRunner, redisCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:  cfg,
		Chat: chat,
		ProxyHC: &http.Client{
			Timeout:   orDefault(cfg.EmoticonPageTimeout, 10*time.Second),
			Transport: observability.NewTracedTransport(http.DefaultTransport, "image_proxy"),
		},
		RedisCheck: redisCheck,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

type chatMessageJSON struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoiceJSON struct {
	Index        int             `json:"index"`
	Message      chatMessageJSON `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// chatResponse duplicates the emoticon list at the top level for older consumers.
type chatResponse struct {
	ID          string                     `json:"id,omitempty"`
	Model       string                     `json:"model,omitempty"`
	Choices     []chatChoiceJSON           `json:"choices"`
	Response    string                     `json:"response"`
	Content     domain.ReplacementOutcome  `json:"content"`
	Emoticons   []domain.SearchResult      `json:"emoticons"`
	UserContent *domain.ReplacementOutcome `json:"user_content,omitempty"`
}

func buildChatResponse(reply domain.ChatReply) chatResponse {
	emoticons := reply.Reply.Emoticons
	if emoticons == nil {
		emoticons = []domain.SearchResult{}
	}
	content := domain.ReplacementOutcome{ProcessedText: reply.Reply.ProcessedText, Emoticons: emoticons}
	resp := chatResponse{
		Choices: []chatChoiceJSON{{
			Message: chatMessageJSON{Role: domain.RoleAssistant, Content: reply.RawReply},
		}},
		Response:  reply.Reply.ProcessedText,
		Content:   content,
		Emoticons: emoticons,
	}
	if reply.Limited {
		return resp
	}
	resp.ID = reply.ID
	resp.Model = reply.Model
	resp.Choices[0].FinishReason = "stop"
	user := reply.UserContent
	if user.Emoticons == nil {
		user.Emoticons = []domain.SearchResult{}
	}
	resp.UserContent = &user
	return resp
}

// clientID derives the guest identity from the first X-Forwarded-For hop.
func clientID(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if first, _, _ := strings.Cut(xff, ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	return "unknown"
}

// ChatHandler handles POST /api/chat.
func (s *Server) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: "payload too large", Code: "INVALID_ARGUMENT"})
				return
			}
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		req.Message = textx.SanitizeText(req.Message)
		if details, err := validateChatRequest(req); err != nil {
			writeError(w, r, err, details)
			return
		}

		id := clientID(r)
		annotateAccess(r, slog.Bool("guest", strings.TrimSpace(req.APIKey) == ""))
		reply, err := s.Chat.Handle(r.Context(), usecase.ChatInput{
			Message:  req.Message,
			History:  toHistory(req.History),
			APIKey:   req.APIKey,
			ClientID: id,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		annotateAccess(r,
			slog.Bool("limited", reply.Limited),
			slog.Int("emoticons", len(reply.Reply.Emoticons)),
		)
		writeJSON(w, http.StatusOK, buildChatResponse(reply))
	}
}

// ProxyImageHandler handles GET /api/proxy-image?url=. It fetches the image
// with the source site's Referer so hotlink protection lets it through.
// Errors are plain text, matching what image consumers expect.
func (s *Server) ProxyImageHandler() http.HandlerFunc {
	referer := strings.TrimRight(s.Cfg.EmoticonSourceURL, "/") + "/"
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := validateProxyTarget(r.URL.Query().Get("url"))
		if err != nil {
			http.Error(w, invalidMessage(err), http.StatusBadRequest)
			return
		}
		lg := LoggerFrom(r).With(slog.String("target_host", target.Host))
		annotateAccess(r, slog.String("target_host", target.Host))

		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
		if err != nil {
			http.Error(w, "Failed to proxy image", http.StatusInternalServerError)
			return
		}
		req.Header.Set("Referer", referer)
		if ua := s.Cfg.EmoticonUserAgent; ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		start := time.Now()
		resp, err := s.ProxyHC.Do(req)
		if err != nil {
			observability.ObserveUpstream("image_proxy", "fetch", "error", time.Since(start))
			lg.Warn("image proxy fetch failed", slog.Any("error", err))
			http.Error(w, "Failed to proxy image", http.StatusInternalServerError)
			return
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			observability.ObserveUpstream("image_proxy", "fetch", "error", time.Since(start))
			lg.Warn("image proxy upstream status", slog.Int("status", resp.StatusCode))
			http.Error(w, "Failed to proxy image", http.StatusInternalServerError)
			return
		}

		limit := s.Cfg.ProxyMaxBytes
		if limit <= 0 {
			limit = 10 << 20
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			observability.ObserveUpstream("image_proxy", "fetch", "error", time.Since(start))
			lg.Warn("image proxy read failed", slog.Any("error", err))
			http.Error(w, "Failed to proxy image", http.StatusInternalServerError)
			return
		}
		if int64(len(body)) > limit {
			observability.ObserveUpstream("image_proxy", "fetch", "too_large", time.Since(start))
			lg.Warn("image proxy payload too large", slog.Int64("limit", limit))
			http.Error(w, "Failed to proxy image", http.StatusInternalServerError)
			return
		}
		observability.ObserveUpstream("image_proxy", "fetch", "ok", time.Since(start))

		ct := proxyContentType(resp.Header.Get("Content-Type"), body)
		annotateAccess(r, slog.String("image_type", ct))
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// proxyContentType prefers the upstream header, then a sniff of the bytes.
func proxyContentType(header string, body []byte) string {
	if strings.TrimSpace(header) != "" {
		return header
	}
	if len(body) > 0 {
		if m := mimetype.Detect(body); strings.HasPrefix(m.String(), "image/") {
			return m.String()
		}
	}
	return "image/*"
}

// ReadyzHandler reports whether the quota store is reachable.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 1)
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
