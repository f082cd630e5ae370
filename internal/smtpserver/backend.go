package smtpserver

import (
	"context"
	"strings"

	"mailpipe/internal/httputil"
	"mailpipe/internal/metrics"
	"mailpipe/internal/models"
	"mailpipe/internal/normalize"
	"mailpipe/internal/ratelimit"

	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"
)

// Forwarder hands one normalized message across the application boundary.
type Forwarder interface {
	Forward(ctx context.Context, msg *models.NormalizedMessage) error
}

// Backend creates one Session per inbound SMTP connection.
type Backend struct {
	cfg        models.SMTPConfig
	allowed    map[string]struct{}
	limiter    *ratelimit.Limiter
	normalizer *normalize.Normalizer
	forwarder  Forwarder
	logger     *logrus.Logger
}

// NewBackend wires the ingestion pipeline behind the SMTP listener. An empty
// allow-list accepts all recipient domains.
func NewBackend(cfg models.SMTPConfig, limiter *ratelimit.Limiter, normalizer *normalize.Normalizer, forwarder Forwarder, logger *logrus.Logger) *Backend {
	var allowed map[string]struct{}
	if len(cfg.AllowedDomains) > 0 {
		allowed = make(map[string]struct{}, len(cfg.AllowedDomains))
		for _, domain := range cfg.AllowedDomains {
			allowed[strings.ToLower(strings.TrimSpace(domain))] = struct{}{}
		}
	}
	return &Backend{
		cfg:        cfg,
		allowed:    allowed,
		limiter:    limiter,
		normalizer: normalizer,
		forwarder:  forwarder,
		logger:     logger,
	}
}

// NewSession is called for every inbound connection. Sessions are
// independent: no state is shared between them.
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	remote := "unknown"
	if c != nil && c.Conn() != nil {
		remote = httputil.PeerIP(c.Conn().RemoteAddr())
	}

	metrics.IncrementCounter("smtp_sessions_total", nil, "Inbound SMTP sessions")
	b.logger.WithField("remote", remote).Debug("SMTP session opened")

	return &Session{
		backend:  b,
		remoteIP: remote,
	}, nil
}

func (b *Backend) domainAllowed(domain string) bool {
	if b.allowed == nil {
		return true
	}
	_, ok := b.allowed[strings.ToLower(domain)]
	return ok
}
