package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Load_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsDev())
	require.False(t, cfg.IsProd())
	require.Equal(t, 3, cfg.GuestLimit)
	require.Equal(t, 24*time.Hour, cfg.QuotaWindow)
	require.Equal(t, "deepseek-chat", cfg.ChatModel)
	require.Equal(t, "https://fabiaoqing.com", cfg.EmoticonSourceURL)
	require.Equal(t, int64(102400), cfg.EmoticonInlineMaxBytes)
	require.Equal(t, 3, cfg.EmoticonPageAttempts)
	require.Equal(t, 3, cfg.FallbackMaxAttempts)
	require.False(t, cfg.RedisEnabled())
}

func Test_Load_ErrorOnBadDuration(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "bad")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func Test_Load_RejectsZeroGuestLimit(t *testing.T) {
	t.Setenv("GUEST_LIMIT", "0")
	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "GUEST_LIMIT")
}

func Test_Validate_Table(t *testing.T) {
	base := Config{GuestLimit: 1, QuotaWindow: time.Hour, EmoticonPageAttempts: 1, EmoticonMaxResults: 1}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"window":   func(c *Config) { c.QuotaWindow = 0 },
		"attempts": func(c *Config) { c.EmoticonPageAttempts = 0 },
		"results":  func(c *Config) { c.EmoticonMaxResults = 0 },
		"inline":   func(c *Config) { c.EmoticonInlineMaxBytes = -1 },
		"fallback": func(c *Config) { c.FallbackMaxAttempts = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestServerAPIKey_PrefersChatKey(t *testing.T) {
	require.Equal(t, "ds", Config{DeepSeekAPIKey: "ds"}.ServerAPIKey())
	require.Equal(t, "chat", Config{ChatAPIKey: "chat", DeepSeekAPIKey: "ds"}.ServerAPIKey())
	require.Equal(t, "", Config{}.ServerAPIKey())
}

func TestGetSearchRetryConfig_TestEnvIsFast(t *testing.T) {
	cfg := Config{AppEnv: "test", EmoticonPageAttempts: 3, EmoticonRetryStep: time.Second, EmoticonImageDelay: 500 * time.Millisecond}
	rc := cfg.GetSearchRetryConfig()
	require.Equal(t, 3, rc.Attempts)
	require.Equal(t, time.Millisecond, rc.Step)
	require.Zero(t, rc.ImageDelay)

	cfg.AppEnv = "prod"
	rc = cfg.GetSearchRetryConfig()
	require.Equal(t, time.Second, rc.Step)
	require.Equal(t, 500*time.Millisecond, rc.ImageDelay)
}
