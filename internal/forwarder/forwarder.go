package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mailpipe/internal/constants"
	"mailpipe/internal/errors"
	"mailpipe/internal/metrics"
	"mailpipe/internal/models"
	"mailpipe/internal/retry"
	"mailpipe/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SecretHeader authenticates forwarder calls at the application boundary.
const SecretHeader = "x-webhook-secret"

// Forwarder delivers normalized messages to the application's mail-received
// endpoint. It owns each message exclusively from hand-off until the POST
// succeeds or permanently fails.
type Forwarder struct {
	url     string
	secret  string
	client  *http.Client
	backoff *retry.Backoff
	logger  *logrus.Logger
}

// New creates a Forwarder from configuration.
func New(cfg models.WebhookConfig, retryCfg models.RetryConfig, logger *logrus.Logger) *Forwarder {
	timeout := cfg.TimeoutSec
	if timeout <= 0 {
		timeout = constants.DefaultWebhookTimeoutSec
	}
	initialBackoff := retryCfg.InitialBackoffMs
	if initialBackoff <= 0 {
		initialBackoff = constants.DefaultBackoffInitialMs
	}
	maxBackoff := retryCfg.MaxBackoffMs
	if maxBackoff <= 0 {
		maxBackoff = constants.DefaultBackoffMaxMs
	}
	attempts := retryCfg.MaxAttempts
	if attempts <= 0 {
		attempts = constants.DefaultMaxAttempts
	}

	return &Forwarder{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		backoff: retry.NewBackoff(retry.BackoffConfig{
			InitialDelay: time.Duration(initialBackoff) * time.Millisecond,
			MaxDelay:     time.Duration(maxBackoff) * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  attempts,
			Jitter:       true,
		}),
		logger: logger,
	}
}

// Forward delivers exactly one message. Transient failures are retried with
// bounded backoff; a duplicate at the boundary counts as delivered. The
// returned error, if any, is an AppError whose Retryable flag tells the SMTP
// layer whether to answer with a transient or permanent rejection.
func (f *Forwarder) Forward(ctx context.Context, msg *models.NormalizedMessage) error {
	ctx, span := tracing.StartSpan(ctx, "webhook_forward",
		attribute.String("mail.message_id", msg.MessageID),
		attribute.String("mail.recipient", msg.EmailAddress),
	)
	defer span.End()

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeForwarding, "failed to encode webhook payload")
	}

	start := time.Now()
	err = f.backoff.RetryWithPredicate(ctx, func() error {
		return f.post(ctx, body)
	}, errors.IsRetryable)

	metrics.RecordTimer("webhook_forward_duration", time.Since(start), nil, "Webhook delivery duration")
	if err != nil {
		metrics.IncrementCounter("webhook_forward_failures_total", map[string]string{
			"code": string(errors.GetCode(err)),
		}, "Failed webhook deliveries")
		tracing.RecordError(ctx, err)
		f.logger.WithError(err).WithFields(logrus.Fields{
			"message_id": msg.MessageID,
			"recipient":  msg.EmailAddress,
		}).Error("Webhook delivery failed")
		return err
	}

	metrics.IncrementCounter("webhook_forward_success_total", nil, "Successful webhook deliveries")
	tracing.SetSpanStatus(ctx, codes.Ok, "")
	f.logger.WithFields(logrus.Fields{
		"message_id": msg.MessageID,
		"recipient":  msg.EmailAddress,
	}).Info("Message forwarded to application boundary")
	return nil
}

func (f *Forwarder) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeForwarding, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, f.secret)

	resp, err := f.client.Do(req)
	if err != nil {
		return errors.WrapRetryable(err, errors.ErrCodeForwarding, "webhook endpoint unreachable")
	}
	defer resp.Body.Close()

	// Bounded drain so the transport can reuse the connection
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Duplicate messageId: already delivered, treat as success
		f.logger.WithField("status", resp.StatusCode).Debug("Webhook reported duplicate message")
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "recipient mailbox not found at application boundary")
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.New(errors.ErrCodeAuthentication, "webhook secret rejected; check configuration")
	case resp.StatusCode >= 500:
		return errors.WrapRetryable(
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody, 200)),
			errors.ErrCodeForwarding, "webhook endpoint failed")
	default:
		return errors.Wrap(
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody, 200)),
			errors.ErrCodeForwarding, "webhook endpoint rejected message")
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
