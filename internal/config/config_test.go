package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/config"
)

const minimalYAML = `
database:
  host: localhost
  user: tracker
  dbname: price_tracker
auth:
  jwt_secret: a-very-long-test-secret
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8070, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, config.ChannelLog, cfg.Notifications.Channel)
	assert.Equal(t, "price-tracker:notifications", cfg.Notifications.RedisChannel)
	assert.Equal(t, 15*time.Second, cfg.Notifications.DispatchTimeout)
	assert.Positive(t, cfg.Notifications.Outbox.BatchSize)
	assert.Equal(t, 10, cfg.App.HistoryLimit)
	assert.Equal(t, "http://localhost:8070", cfg.App.BaseURL)
	assert.Equal(t, "*/15 * * * *", cfg.Scheduler.Spec)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.UsesRedis())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("APP_BASE_URL", "https://prices.example.com")
	t.Setenv("NOTIFICATIONS_CHANNEL", "redis")
	t.Setenv("REDIS_ADDRESS", "redis:6379")

	cfg, err := config.Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "https://prices.example.com", cfg.App.BaseURL)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.True(t, cfg.UsesRedis())
}

func TestLoad_FileValues(t *testing.T) {
	body := minimalYAML + `
server:
  port: 8123
  cors_origins: ["https://app.example.com"]
redis:
  enabled: true
  address: cache:6379
  db: 2
rate_limit:
  rps: 5
  burst: 10
scheduler:
  enabled: true
  cron: "0 * * * *"
  max_age_hours: 12
`
	cfg, err := config.Load(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "cache:6379", cfg.Redis.Address)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.InDelta(t, 5.0, cfg.RateLimit.RPS, 0.0001)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, "0 * * * *", cfg.Scheduler.Spec)
	assert.Equal(t, 12, cfg.Scheduler.MaxAgeHours)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing database host",
			body: "auth:\n  jwt_secret: a-very-long-test-secret\n",
		},
		{
			name: "short secret",
			body: "database:\n  host: db\n  user: u\n  dbname: d\nauth:\n  jwt_secret: short\n",
		},
		{
			name: "telegram without token",
			body: minimalYAML + "notifications:\n  channel: telegram\n",
		},
		{
			name: "unknown channel",
			body: minimalYAML + "notifications:\n  channel: carrier-pigeon\n",
		},
		{
			name: "scheduler without redis",
			body: minimalYAML + "scheduler:\n  enabled: true\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}
