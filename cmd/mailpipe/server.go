package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mailpipe/internal/forwarder"
	"mailpipe/internal/middleware"
	"mailpipe/internal/models"
	"mailpipe/internal/realtime"
	"mailpipe/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	registry *realtime.Registry
	cfg      *models.Config
	server   *http.Server
}

func NewServer(cfg *models.Config, registry *realtime.Registry, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		registry: registry,
		cfg:      cfg,
	}

	s.router.Use(middleware.Observability(logger))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	stream := s.router.PathPrefix("/api/v1/stream").Subrouter()
	stream.HandleFunc("", realtime.ServeSSE(s.registry, s.logger)).Methods(http.MethodGet)
	stream.HandleFunc("/ws", realtime.ServeWebSocket(s.registry, s.logger)).Methods(http.MethodGet)
	stream.HandleFunc("/poll", s.handlePoll()).Methods(http.MethodGet)
	stream.HandleFunc("/heartbeat", s.handleHeartbeat()).Methods(http.MethodPost)

	// Inbound collaborator endpoint: the application reports a stored email
	// so it can be pushed to the owning browser sessions.
	s.router.HandleFunc("/api/v1/notify", s.handleNotify()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	writeTimeout := time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler: s.router,
		// WriteTimeout stays zero when unset so the push stream endpoints
		// can hold response writers open indefinitely
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting HTTP server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

type heartbeatRequest struct {
	Fingerprint   string `json:"fingerprint"`
	Operation     string `json:"operation"`
	Progress      int    `json:"progress"`
	Message       string `json:"message"`
	EstimatedTime *int   `json:"estimatedTime,omitempty"`
}

// handleHeartbeat accepts a progress report for one client operation and
// pushes it to that client's live connections.
func (s *Server) handleHeartbeat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req heartbeatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := validation.ValidateFingerprint(req.Fingerprint); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid fingerprint")
			return
		}
		if req.Operation == "" {
			s.writeError(w, http.StatusBadRequest, "operation is required")
			return
		}
		if req.Progress < 0 || req.Progress > 100 {
			s.writeError(w, http.StatusBadRequest, "progress must be between 0 and 100")
			return
		}

		sent := s.registry.UpdateProgress(req.Fingerprint, models.Progress{
			Operation:     req.Operation,
			Progress:      req.Progress,
			Message:       req.Message,
			EstimatedTime: req.EstimatedTime,
		})

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"acknowledged":  true,
			"sentToClients": sent,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// handlePoll is the fallback for clients whose push connection cannot be
// established. It returns at most one pending event newer than lastUpdate.
func (s *Server) handlePoll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fingerprint := r.URL.Query().Get("fingerprint")
		if err := validation.ValidateFingerprint(fingerprint); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid fingerprint")
			return
		}

		var since time.Time
		if raw := r.URL.Query().Get("lastUpdate"); raw != "" {
			var ms int64
			if _, err := fmt.Sscanf(raw, "%d", &ms); err != nil {
				s.writeError(w, http.StatusBadRequest, "lastUpdate must be epoch milliseconds")
				return
			}
			since = time.UnixMilli(ms)
		}

		ev, ok := s.registry.Poll(fingerprint, since)
		resp := map[string]interface{}{
			"success":    true,
			"hasUpdates": ok,
		}
		if ok {
			resp["data"] = ev
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

type notifyRequest struct {
	Fingerprint     string `json:"fingerprint"`
	EmailID         string `json:"emailId"`
	FromAddress     string `json:"fromAddress"`
	Subject         string `json:"subject"`
	ReceivedAt      string `json:"receivedAt"`
	AttachmentCount int    `json:"attachmentCount"`
}

// handleNotify lets the application signal that a stored email should be
// pushed to the mailbox owner's browser sessions. The caller authenticates
// with the shared webhook secret.
func (s *Server) handleNotify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := s.cfg.Webhook.Secret
		provided := r.Header.Get(forwarder.SecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req notifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := validation.ValidateFingerprint(req.Fingerprint); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid fingerprint")
			return
		}

		if req.ReceivedAt == "" {
			req.ReceivedAt = time.Now().UTC().Format(time.RFC3339)
		}

		sent := s.registry.NotifyEmail(req.Fingerprint, models.EmailNotification{
			EmailID:         req.EmailID,
			FromAddress:     req.FromAddress,
			Subject:         req.Subject,
			ReceivedAt:      req.ReceivedAt,
			AttachmentCount: req.AttachmentCount,
		})

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":       true,
			"sentToClients": sent,
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
