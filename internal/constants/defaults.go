package constants

// Default SMTP listener configuration
const (
	DefaultSMTPPort            = 25
	DefaultSMTPDomain          = "localhost"
	DefaultMaxMessageBytes     = 10 * 1024 * 1024
	DefaultMaxRecipients       = 10
	DefaultSMTPReadTimeoutSec  = 60
	DefaultSMTPWriteTimeoutSec = 60
	DefaultRateLimitMax        = 20
	DefaultRateLimitWindowSec  = 60
)

// Default webhook forwarding values
const (
	DefaultWebhookTimeoutSec = 30
	DefaultBackoffInitialMs  = 500
	DefaultBackoffMaxMs      = 30000
	DefaultMaxAttempts       = 5
)

// Default HTTP server values.
// The write timeout is intentionally zero: the push stream endpoint holds
// response writers open indefinitely.
const (
	DefaultServerPort            = 8989
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 0
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
)

// Default realtime fan-out values
const (
	DefaultKeepAliveSec         = 30
	DefaultConnectionTimeoutSec = 60
	DefaultSweepIntervalSec     = 30
	DefaultProgressTTLSec       = 5
	DefaultEventLogSize         = 50
	DefaultMinFingerprintLength = 8
)

// ServerErrorChannelSize buffers listener errors from background goroutines
const ServerErrorChannelSize = 2
