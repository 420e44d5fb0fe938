package domain

import (
	"context"
	"errors"
	"strings"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrCredentialMissing   = errors.New("credential missing")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamRateLimit   = errors.New("upstream rate limit")
	ErrUpstreamFailed      = errors.New("upstream failed")
	ErrUpstreamMalformed   = errors.New("upstream malformed response")
	ErrSearchExhausted     = errors.New("search exhausted")
	ErrImageFetchFailed    = errors.New("image fetch failed")
	ErrInternal            = errors.New("internal error")
)

// DataURIPrefix marks a SearchResult whose bytes are inlined.
const DataURIPrefix = "data:"

// SearchResult is one emoticon image found for a keyword.
// URL is either an http(s) URL or a base64 data URI; Alt is never empty.
type SearchResult struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

// NewSearchResult builds a result, defaulting the label to the keyword that found it.
func NewSearchResult(url, alt, keyword string) SearchResult {
	alt = strings.TrimSpace(alt)
	if alt == "" {
		alt = keyword
	}
	return SearchResult{URL: url, Alt: alt}
}

// IsInline reports whether the image bytes are embedded in the URL.
func (r SearchResult) IsInline() bool { return strings.HasPrefix(r.URL, DataURIPrefix) }

// PlaceholderMatch is a located placeholder span in chat text.
// Start and End are byte offsets of FullMatch in the scanned text.
type PlaceholderMatch struct {
	FullMatch     string
	FileNameToken string
	Start         int
	End           int
}

// ReplacementOutcome is the resolved text plus the emoticons substituted into it.
type ReplacementOutcome struct {
	ProcessedText string         `json:"text"`
	Emoticons     []SearchResult `json:"emoticons"`
}

// QuotaDecision is the answer of a quota check.
type QuotaDecision struct {
	Allowed   bool
	Remaining int
}

// Chat roles accepted from clients.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the payload sent to an OpenAI-compatible completion endpoint.
// Purpose labels the call in logs and metrics ("chat", "suggest").
type ChatCompletionRequest struct {
	Purpose     string
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// ChatCompletion is the useful part of a completion response.
type ChatCompletion struct {
	ID      string
	Model   string
	Content string
}

// ChatReply is the outcome of one chat turn.
// Limited is set when the guest quota answered instead of the model.
type ChatReply struct {
	ID          string
	Model       string
	Reply       ReplacementOutcome
	RawReply    string
	UserContent ReplacementOutcome
	Limited     bool
}

// Ports

// QuotaStore counts guest requests per client inside a rolling window.
// Implementations must make CheckAndIncrement linearizable per client id.
type QuotaStore interface {
	CheckAndIncrement(ctx Context, clientID string, dailyLimit int) (QuotaDecision, error)
}

// ImageSearcher finds emoticon images for a keyword, in source page order.
type ImageSearcher interface {
	Search(ctx Context, keyword string) ([]SearchResult, error)
}

// ChatCompleter calls a chat completion endpoint with the given credential.
type ChatCompleter interface {
	Complete(ctx Context, apiKey string, req ChatCompletionRequest) (ChatCompletion, error)
}

// KeywordSuggester proposes an alternative search keyword.
// An empty string with a nil error means no usable suggestion.
type KeywordSuggester interface {
	SuggestAlternative(ctx Context, keyword, credential string) (string, error)
}

// Context is an alias to keep port signatures short.
type Context = context.Context
