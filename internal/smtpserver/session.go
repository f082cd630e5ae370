package smtpserver

import (
	"bytes"
	"context"
	"io"

	apperrors "mailpipe/internal/errors"
	"mailpipe/internal/metrics"
	"mailpipe/internal/models"
	"mailpipe/internal/tracing"
	"mailpipe/internal/validation"

	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Session handles one SMTP transaction. The envelope lives from an accepted
// MAIL FROM until DATA completes or the session resets.
type Session struct {
	backend  *Backend
	remoteIP string
	envelope *models.InboundEnvelope
}

// Mail accepts the envelope sender. A sliding-window rate limit keyed by the
// remote peer applies here, before any work is done for the transaction.
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	if !s.backend.limiter.Allow(s.remoteIP) {
		metrics.IncrementCounter("smtp_rejections_total", map[string]string{
			"reason": "rate_limit",
		}, "Rejected SMTP commands")
		s.backend.logger.WithFields(logrus.Fields{
			"remote": s.remoteIP,
			"from":   from,
		}).Warn("SMTP sender rate limited")
		return errSMTPRateLimited
	}

	s.envelope = &models.InboundEnvelope{
		From:       validation.ExtractAddress(from),
		RemoteAddr: s.remoteIP,
	}
	s.backend.logger.WithFields(logrus.Fields{
		"remote": s.remoteIP,
		"from":   s.envelope.From,
	}).Debug("MAIL FROM accepted")
	return nil
}

// Rcpt accepts one envelope recipient. Recipients outside the configured
// domain allow-list are rejected before DATA; mailbox existence is not
// checked here, unknown mailboxes surface at the webhook boundary.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	address := validation.ExtractAddress(to)
	domain := validation.AddressDomain(address)
	if domain == "" {
		return errSMTPBadSender
	}

	if !s.backend.domainAllowed(domain) {
		metrics.IncrementCounter("smtp_rejections_total", map[string]string{
			"reason": "domain_not_allowed",
		}, "Rejected SMTP commands")
		s.backend.logger.WithFields(logrus.Fields{
			"remote": s.remoteIP,
			"to":     address,
		}).Info("Recipient domain not allowed")
		return errSMTPDomainNotAllowed
	}

	if s.envelope == nil {
		s.envelope = &models.InboundEnvelope{RemoteAddr: s.remoteIP}
	}
	if max := s.backend.cfg.MaxRecipients; max > 0 && len(s.envelope.Recipients) >= max {
		return errSMTPTooManyRecipients
	}
	s.envelope.Recipients = append(s.envelope.Recipients, address)
	return nil
}

// Data streams the message body into memory up to the configured maximum,
// normalizes it and forwards one record per accepted recipient. The SMTP
// reply reflects whether normalization and forwarding succeeded, so a failed
// webhook makes the sending MTA retry or bounce instead of losing mail.
func (s *Session) Data(r io.Reader) error {
	envelope := s.envelope
	s.envelope = nil
	if envelope == nil || len(envelope.Recipients) == 0 {
		return &smtp.SMTPError{
			Code:         503,
			EnhancedCode: smtp.EnhancedCode{5, 5, 1},
			Message:      "Bad sequence of commands",
		}
	}

	maxBytes := s.backend.cfg.MaxMessageBytes
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxBytes+1))
	if err != nil {
		return errSMTPUnparseable
	}
	if n > maxBytes {
		metrics.IncrementCounter("smtp_rejections_total", map[string]string{
			"reason": "size_exceeded",
		}, "Rejected SMTP commands")
		s.backend.logger.WithFields(logrus.Fields{
			"remote":    s.remoteIP,
			"max_bytes": maxBytes,
		}).Warn("Message exceeds maximum size, transaction aborted")
		return errSMTPMessageTooLarge
	}

	ctx, span := tracing.StartSpan(context.Background(), "smtp_data",
		attribute.String("smtp.remote", s.remoteIP),
		attribute.Int("smtp.recipients", len(envelope.Recipients)),
		attribute.Int64("smtp.bytes", n),
	)
	defer span.End()

	raw := buf.Bytes()
	for _, recipient := range envelope.Recipients {
		msg, err := s.backend.normalizer.Normalize(raw, recipient, envelope.From)
		if err != nil {
			metrics.IncrementCounter("smtp_rejections_total", map[string]string{
				"reason": "parse_error",
			}, "Rejected SMTP commands")
			tracing.RecordError(ctx, err)
			s.backend.logger.WithError(err).WithField("remote", s.remoteIP).
				Warn("Message failed normalization")
			return errSMTPUnparseable
		}

		if err := s.backend.forwarder.Forward(ctx, msg); err != nil {
			tracing.RecordError(ctx, err)
			if apperrors.IsRetryable(err) {
				return errSMTPForwardTransient
			}
			return errSMTPForwardPermanent
		}
	}

	metrics.IncrementCounter("smtp_messages_accepted_total", nil, "Messages accepted and forwarded")
	s.backend.logger.WithFields(logrus.Fields{
		"remote":     s.remoteIP,
		"from":       envelope.From,
		"recipients": len(envelope.Recipients),
		"bytes":      n,
	}).Info("Inbound message accepted")
	return nil
}

// Reset discards the current envelope.
func (s *Session) Reset() {
	s.envelope = nil
}

// Logout ends the session.
func (s *Session) Logout() error {
	s.backend.logger.WithField("remote", s.remoteIP).Debug("SMTP session closed")
	return nil
}
