package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/fairyhunter13/emoticon-relay/internal/config"
)

func TestSetupLogger_DevAndProd(t *testing.T) {
	lg := SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "svc"})
	if lg == nil {
		t.Fatalf("nil logger")
	}
	lg2 := SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "svc"})
	if lg2 == nil {
		t.Fatalf("nil logger prod")
	}
}

func TestNewLogger_TagsServiceAndEnv(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(&buf, config.Config{AppEnv: "prod", OTELServiceName: "relay"})
	lg.Info("hello")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	if rec["service"] != "relay" || rec["env"] != "prod" {
		t.Fatalf("missing tags: %v", rec)
	}
	buf.Reset()
	lg.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered outside dev")
	}
}

func TestContextWithLoggerAndLoggerFromContext(t *testing.T) {
	lg := slog.Default().With("k", "v")
	base := context.Background()

	ctx := ContextWithLogger(base, lg)
	if got := LoggerFromContext(ctx); got != lg {
		t.Fatalf("LoggerFromContext did not return original logger")
	}
	if got := ContextWithLogger(base, nil); got != base {
		t.Fatal("expected original context when logger is nil")
	}
	if LoggerFromContext(context.Background()) == nil {
		t.Fatal("expected default logger for empty context")
	}
}

func TestContextWithRequestID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-123")
	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Fatalf("got %q", got)
	}
	if got := RequestIDFromContext(ContextWithRequestID(context.Background(), "")); got != "" {
		t.Fatalf("empty id should not be stored, got %q", got)
	}
}
