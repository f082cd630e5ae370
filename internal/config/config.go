package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"mailpipe/internal/constants"
	"mailpipe/internal/models"
)

var (
	ErrMissingWebhookURL = models.ConfigError{Message: "missing webhook URL"}
	ErrInvalidWebhookURL = models.ConfigError{Message: "webhook URL must be a valid http(s) URL"}
	ErrInvalidSMTPPort   = models.ConfigError{Message: "SMTP port must be between 1 and 65535"}
	ErrInvalidServerPort = models.ConfigError{Message: "server port must be between 1 and 65535"}
)

// LoadConfig reads the JSON config file, fills defaults, applies environment
// overrides and validates the result. A missing file is not an error: the
// service can run entirely from environment variables.
func LoadConfig(path string) (*models.Config, error) {
	var config models.Config

	file, err := os.ReadFile(path) // #nosec G304 - Path comes from the operator's own flag
	if err == nil {
		if err := json.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	// Security validation runs after environment overrides so production
	// checks see the effective values
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.SMTP.Port <= 0 {
		c.SMTP.Port = constants.DefaultSMTPPort
	}
	if c.SMTP.Domain == "" {
		c.SMTP.Domain = constants.DefaultSMTPDomain
	}
	if c.SMTP.MaxMessageBytes <= 0 {
		c.SMTP.MaxMessageBytes = constants.DefaultMaxMessageBytes
	}
	if c.SMTP.MaxRecipients <= 0 {
		c.SMTP.MaxRecipients = constants.DefaultMaxRecipients
	}
	if c.SMTP.ReadTimeoutSec <= 0 {
		c.SMTP.ReadTimeoutSec = constants.DefaultSMTPReadTimeoutSec
	}
	if c.SMTP.WriteTimeoutSec <= 0 {
		c.SMTP.WriteTimeoutSec = constants.DefaultSMTPWriteTimeoutSec
	}
	if c.SMTP.RateLimit.MaxPerWindow <= 0 {
		c.SMTP.RateLimit.MaxPerWindow = constants.DefaultRateLimitMax
	}
	if c.SMTP.RateLimit.WindowSec <= 0 {
		c.SMTP.RateLimit.WindowSec = constants.DefaultRateLimitWindowSec
	}

	if c.Webhook.TimeoutSec <= 0 {
		c.Webhook.TimeoutSec = constants.DefaultWebhookTimeoutSec
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultBackoffInitialMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultBackoffMaxMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Realtime.KeepAliveSec <= 0 {
		c.Realtime.KeepAliveSec = constants.DefaultKeepAliveSec
	}
	if c.Realtime.ConnectionTimeoutSec <= 0 {
		c.Realtime.ConnectionTimeoutSec = constants.DefaultConnectionTimeoutSec
	}
	if c.Realtime.SweepIntervalSec <= 0 {
		c.Realtime.SweepIntervalSec = constants.DefaultSweepIntervalSec
	}
	if c.Realtime.ProgressTTLSec <= 0 {
		c.Realtime.ProgressTTLSec = constants.DefaultProgressTTLSec
	}
	if c.Realtime.EventLogSize <= 0 {
		c.Realtime.EventLogSize = constants.DefaultEventLogSize
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "mailpipe"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 1.0
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if host := os.Getenv("SMTP_HOST"); host != "" {
		c.SMTP.Host = host
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.SMTP.Port = p
		}
	}
	if domains := os.Getenv("SMTP_ALLOWED_DOMAINS"); domains != "" {
		var allowed []string
		for _, d := range strings.Split(domains, ",") {
			if d = strings.TrimSpace(d); d != "" {
				allowed = append(allowed, d)
			}
		}
		c.SMTP.AllowedDomains = allowed
	}
	if max := os.Getenv("SMTP_MAX_MESSAGE_BYTES"); max != "" {
		if m, err := strconv.ParseInt(max, 10, 64); err == nil && m > 0 {
			c.SMTP.MaxMessageBytes = m
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		c.Webhook.URL = url
	}

	// SECURITY: the webhook secret should be set via environment variables
	if secret := os.Getenv("MAILPIPE_WEBHOOK_SECRET"); secret != "" {
		c.Webhook.Secret = secret
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

func validate(c *models.Config) error {
	if c.Webhook.URL == "" {
		return ErrMissingWebhookURL
	}
	u, err := url.Parse(c.Webhook.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidWebhookURL
	}

	if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
		return ErrInvalidSMTPPort
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidServerPort
	}

	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		return models.ConfigError{Message: "retry max backoff must not be smaller than initial backoff"}
	}

	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("MAILPIPE_ENV") == "production"

	if isProduction {
		// In production, the webhook secret is mandatory
		if c.Webhook.Secret == "" {
			return models.ConfigError{Message: "webhook secret is required in production (set MAILPIPE_WEBHOOK_SECRET environment variable)"}
		}

		// Validate webhook secret strength
		if len(c.Webhook.Secret) < 32 {
			return models.ConfigError{Message: "webhook secret must be at least 32 characters long"}
		}

		// Warn about debug logging in production
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		// In development, warn if secrets are missing
		if c.Webhook.Secret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set MAILPIPE_WEBHOOK_SECRET environment variable for security.\n")
		}
	}

	return nil
}
