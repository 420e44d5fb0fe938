// Command server starts the emoticon chat relay HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	ai "github.com/fairyhunter13/emoticon-relay/internal/adapter/ai"
	"github.com/fairyhunter13/emoticon-relay/internal/adapter/ai/real"
	"github.com/fairyhunter13/emoticon-relay/internal/adapter/ai/tokencount"
	httpserver "github.com/fairyhunter13/emoticon-relay/internal/adapter/httpserver"
	"github.com/fairyhunter13/emoticon-relay/internal/adapter/imagesearch"
	"github.com/fairyhunter13/emoticon-relay/internal/adapter/observability"
	"github.com/fairyhunter13/emoticon-relay/internal/app"
	"github.com/fairyhunter13/emoticon-relay/internal/config"
	"github.com/fairyhunter13/emoticon-relay/internal/domain"
	"github.com/fairyhunter13/emoticon-relay/internal/service/quota"
	"github.com/fairyhunter13/emoticon-relay/internal/usecase"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Quota store: Redis when configured so every replica shares one count.
	var (
		store domain.QuotaStore
		rdb   *redis.Client
	)
	if cfg.RedisEnabled() {
		rdb, err = app.NewRedisClient(cfg)
		if err != nil {
			slog.Error("redis config invalid", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = rdb.Close() }()
		store = quota.NewRedisQuotaStore(rdb, cfg.QuotaWindow)
		slog.Info("quota store: redis")
	} else {
		store = quota.NewMemoryQuotaStore(cfg.QuotaWindow)
		slog.Warn("quota store: in-memory, counts are per process and reset on restart")
	}
	limiter := quota.NewLimiter(store)

	if cfg.ServerAPIKey() == "" {
		slog.Warn("no server chat key configured; guests will receive 401 until one is set")
	}

	chatClient := real.New(cfg)
	searcher := imagesearch.New(cfg)
	suggester := ai.NewSuggester(chatClient, cfg)
	resolver := usecase.NewEmoticonResolver(searcher, suggester, cfg)
	chatSvc := usecase.NewChatService(limiter, chatClient, resolver, tokencount.NewCounter(), cfg)

	srv := httpserver.NewServer(cfg, chatSvc, app.BuildReadinessCheck(cfg, app.WrapRedis(rdb)))
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("chat_model", cfg.ChatModel))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
