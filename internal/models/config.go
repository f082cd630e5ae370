package models

// ConfigError indicates invalid or missing configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

// Config is the root configuration document, loaded from JSON with
// environment overrides.
type Config struct {
	LogLevel string         `json:"logLevel"`
	SMTP     SMTPConfig     `json:"smtp"`
	Webhook  WebhookConfig  `json:"webhook"`
	Retry    RetryConfig    `json:"retry"`
	Server   ServerConfig   `json:"server"`
	Realtime RealtimeConfig `json:"realtime"`
	Tracing  TracingConfig  `json:"tracing"`
}

// SMTPConfig controls the inbound SMTP listener.
type SMTPConfig struct {
	Host            string          `json:"host"`
	Port            int             `json:"port"`
	Domain          string          `json:"domain"`
	MaxMessageBytes int64           `json:"maxMessageBytes"`
	MaxRecipients   int             `json:"maxRecipients"`
	ReadTimeoutSec  int             `json:"readTimeoutSec"`
	WriteTimeoutSec int             `json:"writeTimeoutSec"`
	AllowedDomains  []string        `json:"allowedDomains"`
	RateLimit       RateLimitConfig `json:"rateLimit"`
}

// RateLimitConfig is a sliding window limit keyed by remote peer address.
type RateLimitConfig struct {
	MaxPerWindow int `json:"maxPerWindow"`
	WindowSec    int `json:"windowSec"`
}

// WebhookConfig points at the application's mail-received endpoint.
type WebhookConfig struct {
	URL        string `json:"url"`
	Secret     string `json:"secret"`
	TimeoutSec int    `json:"timeoutSec"`
}

// RetryConfig bounds webhook delivery retries.
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// ServerConfig controls the HTTP server carrying the realtime endpoints.
type ServerConfig struct {
	Port            int `json:"port"`
	ReadTimeoutSec  int `json:"readTimeoutSec"`
	WriteTimeoutSec int `json:"writeTimeoutSec"`
	IdleTimeoutSec  int `json:"idleTimeoutSec"`
}

// RealtimeConfig controls the fan-out registry.
type RealtimeConfig struct {
	KeepAliveSec         int `json:"keepAliveSec"`
	ConnectionTimeoutSec int `json:"connectionTimeoutSec"`
	SweepIntervalSec     int `json:"sweepIntervalSec"`
	ProgressTTLSec       int `json:"progressTTLSec"`
	EventLogSize         int `json:"eventLogSize"`
}

// TracingConfig mirrors the OpenTelemetry setup options.
type TracingConfig struct {
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"useStdout"`
}
