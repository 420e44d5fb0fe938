// Package httpserver contains the chat relay's HTTP handlers and middleware.
//
// It exposes the chat endpoint, the image proxy the rendered emoticon markup
// points at, and health checks. Handlers only translate HTTP to use case calls.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/emoticon-relay/internal/adapter/observability"
)

// timeoutBody is what a client sees when a chat turn outlives REQUEST_TIMEOUT.
const timeoutBody = `{"error":"Failed to process request","code":"TIMEOUT"}`

// Recoverer ensures panics don't crash the server and responds with the generic failure envelope.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					LoggerFrom(r).Error("panic recovered", slog.Any("recover", rec), slog.String("path", r.URL.Path))
					writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: "Failed to process request", Code: "INTERNAL"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID injects a request id and a request-scoped logger carrying the
// trace ids and the guest identity the quota is keyed on.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-Id")
			if reqID == "" {
				reqID = newReqID()
				r.Header.Set("X-Request-Id", reqID)
			}
			spanCtx := trace.SpanContextFromContext(r.Context())
			logger := slog.Default().With(
				slog.String("request_id", reqID),
				slog.String("client_id", clientID(r)),
				slog.String("trace_id", spanCtx.TraceID().String()),
				slog.String("span_id", spanCtx.SpanID().String()),
			)
			ctx := observability.ContextWithLogger(r.Context(), logger)
			ctx = observability.ContextWithRequestID(ctx, reqID)
			w.Header().Set("X-Request-Id", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TimeoutMiddleware bounds a route. A handler still running at the deadline
// is abandoned and the client gets 503 with the generic JSON error.
func TimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		th := http.TimeoutHandler(next, d, timeoutBody)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only reaches the client on timeout; a finished handler's own
			// Content-Type replaces it.
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			th.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets strict headers for the JSON API. Paths under any of
// imagePrefixes serve raw image bytes to other origins' <img> tags, so they
// get a cross-origin resource policy and an image-only CSP instead.
func SecurityHeaders(imagePrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			if hasAnyPrefix(r.URL.Path, imagePrefixes) {
				h.Set("Cross-Origin-Resource-Policy", "cross-origin")
				h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; style-src 'unsafe-inline'")
			} else {
				h.Set("X-Frame-Options", "DENY")
				h.Set("Content-Security-Policy", "default-src 'none'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// LoggerFrom returns the request-scoped logger, or the default logger.
func LoggerFrom(r *http.Request) *slog.Logger {
	return observability.LoggerFromContext(r.Context())
}

func newReqID() string { return ulid.Make().String() }

// accessNote collects handler outcomes for the access line.
type accessNote struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

type accessNoteKey struct{}

// annotateAccess adds attributes to the request's access log line. It is a
// no-op outside AccessLog.
func annotateAccess(r *http.Request, attrs ...slog.Attr) {
	if n, ok := r.Context().Value(accessNoteKey{}).(*accessNote); ok {
		n.mu.Lock()
		n.attrs = append(n.attrs, attrs...)
		n.mu.Unlock()
	}
}

// AccessLog writes one line per request. Handlers enrich it through
// annotateAccess, e.g. with the chat turn's quota outcome.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			note := &accessNote{}
			r = r.WithContext(context.WithValue(r.Context(), accessNoteKey{}, note))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration_ms", time.Since(start)),
			}
			note.mu.Lock()
			attrs = append(attrs, note.attrs...)
			note.mu.Unlock()

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			LoggerFrom(r).LogAttrs(r.Context(), level, "http_access", attrs...)
		})
	}
}
