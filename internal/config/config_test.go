package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("SLA_DEFAULT_RESPONSE_MINUTES", "")
	t.Setenv("CONCURRENCY_MAX_RETRIES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, 5*time.Second, cfg.Postgres.QueryTimeout())
	assert.Equal(t, 60, cfg.SLA.DefaultResponseMinutes)
	assert.Equal(t, 480, cfg.SLA.DefaultResolutionMinutes)
	assert.Equal(t, 3, cfg.Concurrency.MaxRetries)
	assert.Equal(t, 25*time.Millisecond, cfg.Concurrency.RetryInterval())
	assert.Equal(t, time.Minute, cfg.Analytics.CacheTTL())
	assert.Equal(t, 5, cfg.Postgres.ConnectAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Redis.DialTimeout())
	assert.Equal(t, 2, cfg.Notification.Workers)
	assert.Equal(t, 256, cfg.Notification.QueueSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLA_DEFAULT_RESPONSE_MINUTES", "15")
	t.Setenv("POSTGRES_QUERY_TIMEOUT_SECONDS", "0")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("WORKFLOW_TEMPLATES_FILE", "/etc/templates.yaml")
	t.Setenv("REDIS_DIAL_TIMEOUT_MS", "-1")
	t.Setenv("NOTIFY_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.SLA.DefaultResponseMinutes)
	assert.Equal(t, time.Duration(0), cfg.Postgres.QueryTimeout())
	assert.InDelta(t, 2.5, cfg.RateLimit.RPS, 0.0001)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "/etc/templates.yaml", cfg.Workflow.TemplatesFile)
	assert.Equal(t, 500*time.Millisecond, cfg.Redis.DialTimeout())
	assert.Equal(t, 8, cfg.Notification.Workers)
}

func TestLoadRejectsInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}

func TestEnvHelpersFallBack(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_BOOL", "maybe")
	assert.Equal(t, 7, getEnvAsInt("X_INT", 7))
	assert.True(t, getEnvAsBool("X_BOOL", true))
	assert.Equal(t, "fallback", getEnv("X_MISSING", "fallback"))
}
