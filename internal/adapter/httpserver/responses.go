package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

// errorEnvelope keeps the flat {"error": "..."} shape chat clients already parse,
// with a machine readable code next to it.
type errorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// upstreamMessager is implemented by chat client errors that carry the
// upstream's own error.message.
type upstreamMessager interface {
	UpstreamMessage() string
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details any) {
	status, code, msg := classifyError(err)
	lg := LoggerFrom(r)
	if status >= http.StatusInternalServerError {
		lg.Error("request failed", "code", code, "error", err)
	} else {
		lg.Warn("request rejected", "code", code, "error", err)
	}
	writeJSON(w, status, errorEnvelope{Error: msg, Code: code, Details: details})
}

// classifyError maps domain errors to a status, a code and a client facing message.
func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT", invalidMessage(err)
	case errors.Is(err, domain.ErrCredentialMissing):
		return http.StatusUnauthorized, "CREDENTIAL_MISSING", "No API key provided and server key not configured"
	case errors.Is(err, domain.ErrUpstreamRateLimit):
		return http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMIT", "Chat API is rate limiting requests, please retry later"
	case errors.Is(err, domain.ErrUpstreamMalformed):
		return http.StatusInternalServerError, "UPSTREAM_MALFORMED", "Invalid response format from chat API"
	case errors.Is(err, domain.ErrUpstreamFailed):
		msg := "Failed to get response from chat API"
		var um upstreamMessager
		if errors.As(err, &um) && strings.TrimSpace(um.UpstreamMessage()) != "" {
			msg = um.UpstreamMessage()
		}
		return http.StatusInternalServerError, "UPSTREAM_FAILED", msg
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusInternalServerError, "UPSTREAM_UNAVAILABLE", "Failed to get response from chat API"
	}
	return http.StatusInternalServerError, "INTERNAL", "Failed to process request"
}

// invalidMessage strips the sentinel prefix so clients see only the detail.
func invalidMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, domain.ErrInvalidArgument.Error()+": "); i >= 0 {
		return msg[i+len(domain.ErrInvalidArgument.Error())+2:]
	}
	return msg
}
