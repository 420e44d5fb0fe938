package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of upstream requests by provider, operation and outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)
	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "operation"},
	)

	EmoticonSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emoticon_searches_total",
			Help: "Keyword searches against the emoticon source by outcome (hit, miss, error)",
		},
		[]string{"outcome"},
	)
	EmoticonImagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emoticon_images_total",
			Help: "Accepted emoticon images by delivery mode (inline, remote, degraded)",
		},
		[]string{"mode"},
	)
	PlaceholdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emoticon_placeholders_total",
			Help: "Placeholders seen by the tag replacer by outcome",
		},
		[]string{"outcome"},
	)
	FallbackSuggestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emoticon_fallback_suggestions_total",
			Help: "AI keyword suggestions by outcome (suggested, cached, none, refused, error, circuit_open)",
		},
		[]string{"outcome"},
	)
	QuotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guest_quota_decisions_total",
			Help: "Guest quota decisions (allowed, denied, error)",
		},
		[]string{"decision"},
	)
)

var initOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(UpstreamRequestsTotal)
		prometheus.MustRegister(UpstreamRequestDuration)
		prometheus.MustRegister(EmoticonSearchesTotal)
		prometheus.MustRegister(EmoticonImagesTotal)
		prometheus.MustRegister(PlaceholdersTotal)
		prometheus.MustRegister(FallbackSuggestionsTotal)
		prometheus.MustRegister(QuotaDecisionsTotal)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveUpstream records one call to an external collaborator.
func ObserveUpstream(provider, operation, outcome string, took time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	UpstreamRequestDuration.WithLabelValues(provider, operation).Observe(took.Seconds())
}

func RecordSearch(outcome string) { EmoticonSearchesTotal.WithLabelValues(outcome).Inc() }

func RecordImage(mode string) { EmoticonImagesTotal.WithLabelValues(mode).Inc() }

func RecordPlaceholder(outcome string) { PlaceholdersTotal.WithLabelValues(outcome).Inc() }

func RecordFallback(outcome string) { FallbackSuggestionsTotal.WithLabelValues(outcome).Inc() }

func RecordQuota(decision string) { QuotaDecisionsTotal.WithLabelValues(decision).Inc() }
