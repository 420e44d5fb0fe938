// Package real implements the chat completion client for OpenAI-compatible APIs.
package real

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"log/slog"

	"github.com/fairyhunter13/emoticon-relay/internal/adapter/observability"
	"github.com/fairyhunter13/emoticon-relay/internal/config"
	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

const provider = "chat"

// UpstreamError carries the status and message an upstream returned.
type UpstreamError struct {
	Status  int
	Message string
	kind    error
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: status %d", e.kind, e.Status)
	}
	return fmt.Sprintf("%v: status %d: %s", e.kind, e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.kind }

// UpstreamMessage returns the error.message the upstream sent, possibly empty.
func (e *UpstreamError) UpstreamMessage() string { return e.Message }

// Client implements domain.ChatCompleter.
type Client struct {
	cfg     config.Config
	baseURL string
	chatHC  *http.Client
}

// readSnippet reads up to n bytes from r.
func readSnippet(r io.Reader, n int) string {
	if r == nil || n <= 0 {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, int64(n)))
	return string(b)
}

// New constructs a chat client whose transport is traced.
func New(cfg config.Config) *Client {
	timeout := cfg.ChatTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.ChatBaseURL, "/"),
		chatHC: &http.Client{
			Timeout:   timeout,
			Transport: observability.NewTracedTransport(http.DefaultTransport, provider),
		},
	}
}

// getBackoffConfig returns the retry policy for rate limited calls.
func (c *Client) getBackoffConfig() backoff.BackOff {
	maxRetries, initial, maxInterval := c.cfg.GetChatBackoffConfig()
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.MaxElapsedTime = 0
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithMaxRetries(expo, uint64(maxRetries))
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends req to {base}/chat/completions using apiKey.
// Only 429 responses are retried. A response without non-empty message
// content is reported as domain.ErrUpstreamMalformed.
func (c *Client) Complete(ctx domain.Context, apiKey string, req domain.ChatCompletionRequest) (domain.ChatCompletion, error) {
	if strings.TrimSpace(apiKey) == "" {
		return domain.ChatCompletion{}, fmt.Errorf("op=chat.Complete: %w", domain.ErrCredentialMissing)
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = "chat"
	}
	model := req.Model
	if model == "" {
		model = c.cfg.ChatModel
	}
	msgs := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}
	body := map[string]any{
		"model":    model,
		"messages": msgs,
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.ChatCompletion{}, fmt.Errorf("op=chat.Complete: %w", err)
	}

	var out domain.ChatCompletion
	attempt := 0
	op := func() error {
		attempt++
		start := time.Now()
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.chatHC.Do(httpReq)
		if err != nil {
			observability.ObserveUpstream(provider, purpose, "error", time.Since(start))
			slog.Error("chat request failed",
				slog.String("purpose", purpose),
				slog.String("model", model),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err))
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusTooManyRequests {
			observability.ObserveUpstream(provider, purpose, "rate_limited", time.Since(start))
			snippet := readSnippet(resp.Body, 512)
			slog.Warn("chat upstream rate limited",
				slog.String("purpose", purpose),
				slog.Int("attempt", attempt),
				slog.String("retry_after", resp.Header.Get("Retry-After")),
				slog.String("body_snippet", snippet))
			return &UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(snippet), kind: domain.ErrUpstreamRateLimit}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			observability.ObserveUpstream(provider, purpose, "http_error", time.Since(start))
			snippet := readSnippet(resp.Body, 512)
			slog.Error("chat upstream non-2xx",
				slog.String("purpose", purpose),
				slog.Int("status", resp.StatusCode),
				slog.String("body_snippet", snippet))
			return backoff.Permanent(&UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(snippet), kind: domain.ErrUpstreamFailed})
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			observability.ObserveUpstream(provider, purpose, "error", time.Since(start))
			return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err))
		}
		var cr chatResponse
		if err := json.Unmarshal(raw, &cr); err != nil || len(cr.Choices) == 0 ||
			cr.Choices[0].Message == nil || cr.Choices[0].Message.Content == nil || *cr.Choices[0].Message.Content == "" {
			observability.ObserveUpstream(provider, purpose, "malformed", time.Since(start))
			slog.Error("chat upstream malformed response",
				slog.String("purpose", purpose),
				slog.String("body_snippet", readSnippet(bytes.NewReader(raw), 512)))
			return backoff.Permanent(domain.ErrUpstreamMalformed)
		}
		observability.ObserveUpstream(provider, purpose, "ok", time.Since(start))
		out = domain.ChatCompletion{ID: cr.ID, Model: cr.Model, Content: *cr.Choices[0].Message.Content}
		if out.Model == "" {
			out.Model = model
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(c.getBackoffConfig(), ctx)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return domain.ChatCompletion{}, fmt.Errorf("op=chat.Complete: %w", err)
	}
	return out, nil
}

// upstreamMessage extracts error.message from an error body, if any.
func upstreamMessage(body string) string {
	var env errorEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return ""
	}
	return strings.TrimSpace(env.Error.Message)
}
