package smtpserver

import (
	"context"
	"fmt"
	"time"

	"mailpipe/internal/constants"
	"mailpipe/internal/models"

	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"
)

// Server wraps the SMTP listener. Authentication is never advertised: the
// listener accepts unauthenticated mail strictly for mailboxes the service
// is authoritative for.
type Server struct {
	server *smtp.Server
	logger *logrus.Logger
}

// NewServer configures the listener around a Backend.
func NewServer(cfg models.SMTPConfig, backend *Backend, logger *logrus.Logger) *Server {
	srv := smtp.NewServer(backend)

	host := cfg.Host
	port := cfg.Port
	if port <= 0 {
		port = constants.DefaultSMTPPort
	}
	srv.Addr = fmt.Sprintf("%s:%d", host, port)

	srv.Domain = cfg.Domain
	if srv.Domain == "" {
		srv.Domain = constants.DefaultSMTPDomain
	}

	readTimeout := cfg.ReadTimeoutSec
	if readTimeout <= 0 {
		readTimeout = constants.DefaultSMTPReadTimeoutSec
	}
	writeTimeout := cfg.WriteTimeoutSec
	if writeTimeout <= 0 {
		writeTimeout = constants.DefaultSMTPWriteTimeoutSec
	}
	srv.ReadTimeout = time.Duration(readTimeout) * time.Second
	srv.WriteTimeout = time.Duration(writeTimeout) * time.Second

	srv.MaxMessageBytes = cfg.MaxMessageBytes
	if srv.MaxMessageBytes <= 0 {
		srv.MaxMessageBytes = constants.DefaultMaxMessageBytes
	}
	srv.MaxRecipients = cfg.MaxRecipients
	if srv.MaxRecipients <= 0 {
		srv.MaxRecipients = constants.DefaultMaxRecipients
	}

	return &Server{
		server: srv,
		logger: logger,
	}
}

// Start listens and serves until Shutdown or a fatal listener error.
func (s *Server) Start() error {
	s.logger.WithFields(logrus.Fields{
		"addr":   s.server.Addr,
		"domain": s.server.Domain,
	}).Info("SMTP server listening")
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for active sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Close terminates the listener immediately.
func (s *Server) Close() error {
	return s.server.Close()
}
