// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`

	// ChatAPIKey is the server default credential used when a client does not supply one.
	// DEEPSEEK_API_KEY is read as an alias for older deployments.
	ChatAPIKey           string        `env:"CHAT_API_KEY"`
	DeepSeekAPIKey       string        `env:"DEEPSEEK_API_KEY"`
	ChatBaseURL          string        `env:"CHAT_BASE_URL" envDefault:"https://api.deepseek.com/v1"`
	ChatModel            string        `env:"CHAT_MODEL" envDefault:"deepseek-chat"`
	ChatTemperature      float64       `env:"CHAT_TEMPERATURE" envDefault:"0.7"`
	ChatMaxTokens        int           `env:"CHAT_MAX_TOKENS" envDefault:"1000"`
	ChatTimeout          time.Duration `env:"CHAT_TIMEOUT" envDefault:"60s"`
	ChatRateLimitRetries int           `env:"CHAT_RATE_LIMIT_RETRIES" envDefault:"2"`
	ChatHistoryMaxTokens int           `env:"CHAT_HISTORY_MAX_TOKENS" envDefault:"6000"`

	GuestLimit  int           `env:"GUEST_LIMIT" envDefault:"3"`
	QuotaWindow time.Duration `env:"QUOTA_WINDOW" envDefault:"24h"`
	RedisURL    string        `env:"REDIS_URL"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"emoticon-relay"`

	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT" envDefault:"120s"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"150s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// Emoticon source site. The base URL doubles as the Referer its hotlink protection expects.
	EmoticonSourceURL    string        `env:"EMOTICON_SOURCE_URL" envDefault:"https://fabiaoqing.com"`
	EmoticonUserAgent    string        `env:"EMOTICON_USER_AGENT" envDefault:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"`
	EmoticonPageTimeout  time.Duration `env:"EMOTICON_PAGE_TIMEOUT" envDefault:"10s"`
	EmoticonImageTimeout time.Duration `env:"EMOTICON_IMAGE_TIMEOUT" envDefault:"3s"`
	EmoticonImageDelay   time.Duration `env:"EMOTICON_IMAGE_DELAY" envDefault:"500ms"`
	EmoticonPageAttempts int           `env:"EMOTICON_PAGE_ATTEMPTS" envDefault:"3"`
	EmoticonRetryStep    time.Duration `env:"EMOTICON_RETRY_STEP" envDefault:"1s"`
	EmoticonMaxResults   int           `env:"EMOTICON_MAX_RESULTS" envDefault:"3"`
	// Images strictly smaller than EmoticonInlineMaxBytes are inlined as data URIs.
	EmoticonInlineMaxBytes     int64  `env:"EMOTICON_INLINE_MAX_BYTES" envDefault:"102400"`
	EmoticonResolveConcurrency int    `env:"EMOTICON_RESOLVE_CONCURRENCY" envDefault:"1"`
	EmoticonProxyPath          string `env:"EMOTICON_PROXY_PATH"`

	FallbackMaxAttempts int     `env:"FALLBACK_MAX_ATTEMPTS" envDefault:"3"`
	FallbackMaxTokens   int     `env:"FALLBACK_MAX_TOKENS" envDefault:"50"`
	FallbackTemperature float64 `env:"FALLBACK_TEMPERATURE" envDefault:"0.3"`
	// Accepted suggestions are cached per keyword; 0 disables the cache.
	FallbackCacheSize        int           `env:"FALLBACK_CACHE_SIZE" envDefault:"256"`
	FallbackBreakerThreshold int           `env:"FALLBACK_BREAKER_THRESHOLD" envDefault:"3"`
	FallbackBreakerCooldown  time.Duration `env:"FALLBACK_BREAKER_COOLDOWN" envDefault:"30s"`

	ProxyMaxBytes int64 `env:"PROXY_MAX_BYTES" envDefault:"10485760"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.GuestLimit < 1:
		return fmt.Errorf("GUEST_LIMIT must be >= 1, got %d", c.GuestLimit)
	case c.QuotaWindow <= 0:
		return fmt.Errorf("QUOTA_WINDOW must be positive, got %s", c.QuotaWindow)
	case c.EmoticonPageAttempts < 1:
		return fmt.Errorf("EMOTICON_PAGE_ATTEMPTS must be >= 1, got %d", c.EmoticonPageAttempts)
	case c.EmoticonMaxResults < 1:
		return fmt.Errorf("EMOTICON_MAX_RESULTS must be >= 1, got %d", c.EmoticonMaxResults)
	case c.EmoticonInlineMaxBytes < 0:
		return fmt.Errorf("EMOTICON_INLINE_MAX_BYTES must be >= 0, got %d", c.EmoticonInlineMaxBytes)
	case c.FallbackMaxAttempts < 0:
		return fmt.Errorf("FALLBACK_MAX_ATTEMPTS must be >= 0, got %d", c.FallbackMaxAttempts)
	}
	return nil
}

// ServerAPIKey returns the server default credential, preferring CHAT_API_KEY.
func (c Config) ServerAPIKey() string {
	if c.ChatAPIKey != "" {
		return c.ChatAPIKey
	}
	return c.DeepSeekAPIKey
}

// RedisEnabled reports whether quota records live in Redis rather than in process memory.
func (c Config) RedisEnabled() bool { return strings.TrimSpace(c.RedisURL) != "" }

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }
