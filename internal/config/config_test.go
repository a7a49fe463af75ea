package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("GEMINI_API_KEY", "g-key")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadRequiresAProviderKey(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("SERVICE_API_KEYS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, []byte("secret"), cfg.JWTSecret)
	assert.Equal(t, "gemini-2.5-flash", cfg.Providers.GeminiModel)
	assert.Equal(t, 3, cfg.Providers.MaxAttempts)
	assert.Equal(t, 10, cfg.RateLimit.SummarizeRequests)
	assert.Equal(t, 30, cfg.RateLimit.AnswersRequests)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
	assert.Equal(t, int64(0), cfg.Quota.MonthlyTokenAllowance)
	assert.Equal(t, 64, cfg.Dispatch.QueueSize)
	assert.Equal(t, 24*time.Hour, cfg.Cache.ResultTTL)
	assert.False(t, cfg.Recorder.UseRedisQueue)
	assert.Empty(t, cfg.ServiceAccounts)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OPENAI_API_KEY", "o-key")
	t.Setenv("RATE_LIMIT_SUMMARIZE", "99")
	t.Setenv("RATE_LIMIT_WINDOW", "15m")
	t.Setenv("QUOTA_MONTHLY_TOKENS", "500000")
	t.Setenv("RECORDER_USE_REDIS_QUEUE", "true")
	t.Setenv("DISPATCH_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 99, cfg.RateLimit.SummarizeRequests)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, int64(500000), cfg.Quota.MonthlyTokenAllowance)
	assert.True(t, cfg.Recorder.UseRedisQueue)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
}

func TestParseServiceAccounts(t *testing.T) {
	accounts, err := parseServiceAccounts("portal-backend=abc123, importer=def456")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "portal-backend", accounts[0].ID)
	assert.Equal(t, "abc123", accounts[0].Key)
	assert.Equal(t, "importer", accounts[1].ID)

	accounts, err = parseServiceAccounts("")
	require.NoError(t, err)
	assert.Nil(t, accounts)

	_, err = parseServiceAccounts("missing-key")
	require.Error(t, err)

	_, err = parseServiceAccounts("=orphan")
	require.Error(t, err)
}

func TestGetEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))

	t.Setenv("SOME_DURATION", "eleventy")
	assert.Equal(t, time.Minute, getEnvDuration("SOME_DURATION", time.Minute))

	t.Setenv("SOME_BOOL", "1")
	assert.True(t, getEnvBool("SOME_BOOL", false))
}
