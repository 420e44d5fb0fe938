package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestHTTPMetricsMiddleware_Basic(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	mw := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) }))
	mw.ServeHTTP(rec, r)
	if rec.Result().StatusCode != 204 {
		t.Fatalf("want 204")
	}
}

func TestInitMetrics_Idempotent(t *testing.T) {
	InitMetrics()
	InitMetrics()
}

func TestRecordHelpers(t *testing.T) {
	before := counterValue(t, PlaceholdersTotal.WithLabelValues("matched"))
	RecordPlaceholder("matched")
	if got := counterValue(t, PlaceholdersTotal.WithLabelValues("matched")); got != before+1 {
		t.Fatalf("placeholder counter = %v, want %v", got, before+1)
	}

	before = counterValue(t, UpstreamRequestsTotal.WithLabelValues("emoticon_source", "page", "ok"))
	ObserveUpstream("emoticon_source", "page", "ok", 10*time.Millisecond)
	if got := counterValue(t, UpstreamRequestsTotal.WithLabelValues("emoticon_source", "page", "ok")); got != before+1 {
		t.Fatalf("upstream counter = %v, want %v", got, before+1)
	}

	RecordSearch("hit")
	RecordImage("inline")
	RecordFallback("none")
	RecordQuota("denied")
}
