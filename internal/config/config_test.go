package config

import (
	"os"
	"path/filepath"
	"testing"

	"mailpipe/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `{"webhook": {"url": "http://app.internal/api/inbound"}}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, constants.DefaultSMTPPort, cfg.SMTP.Port)
	assert.Equal(t, int64(constants.DefaultMaxMessageBytes), cfg.SMTP.MaxMessageBytes)
	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultWebhookTimeoutSec, cfg.Webhook.TimeoutSec)
	assert.Equal(t, constants.DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, constants.DefaultKeepAliveSec, cfg.Realtime.KeepAliveSec)
	assert.Equal(t, "mailpipe", cfg.Tracing.ServiceName)
}

func TestLoadConfig_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("WEBHOOK_URL", "http://app.internal/api/inbound")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, "http://app.internal/api/inbound", cfg.Webhook.URL)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_MissingWebhookURL(t *testing.T) {
	path := writeConfig(t, `{}`)
	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrMissingWebhookURL)
}

func TestLoadConfig_InvalidWebhookURL(t *testing.T) {
	path := writeConfig(t, `{"webhook": {"url": "ftp://bad"}}`)
	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidWebhookURL)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SMTP_HOST", "0.0.0.0")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_ALLOWED_DOMAINS", "mail.example, inbox.example")
	t.Setenv("SMTP_MAX_MESSAGE_BYTES", "1048576")
	t.Setenv("PORT", "9090")
	t.Setenv("WEBHOOK_URL", "https://app.example/api/inbound")
	t.Setenv("MAILPIPE_WEBHOOK_SECRET", "from-environment")
	t.Setenv("LOG_LEVEL", "warn")

	path := writeConfig(t, `{
		"webhook": {"url": "http://stale.example/hook", "secret": "from-file"},
		"smtp": {"port": 25}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.SMTP.Host)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, []string{"mail.example", "inbox.example"}, cfg.SMTP.AllowedDomains)
	assert.Equal(t, int64(1048576), cfg.SMTP.MaxMessageBytes)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://app.example/api/inbound", cfg.Webhook.URL)
	assert.Equal(t, "from-environment", cfg.Webhook.Secret)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("MAILPIPE_ENV", "production")

	path := writeConfig(t, `{"webhook": {"url": "http://app.internal/api/inbound"}}`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook secret is required")
}

func TestLoadConfig_ProductionRejectsWeakSecret(t *testing.T) {
	t.Setenv("MAILPIPE_ENV", "production")
	t.Setenv("MAILPIPE_WEBHOOK_SECRET", "short")

	path := writeConfig(t, `{"webhook": {"url": "http://app.internal/api/inbound"}}`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoadConfig_ProductionRejectsDebugLogging(t *testing.T) {
	t.Setenv("MAILPIPE_ENV", "production")
	t.Setenv("MAILPIPE_WEBHOOK_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("LOG_LEVEL", "debug")

	path := writeConfig(t, `{"webhook": {"url": "http://app.internal/api/inbound"}}`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug logging")
}

func TestLoadConfig_BackoffOrdering(t *testing.T) {
	path := writeConfig(t, `{
		"webhook": {"url": "http://app.internal/api/inbound"},
		"retry": {"initialBackoffMs": 5000, "maxBackoffMs": 100}
	}`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
