package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"mailpipe/internal/models"
	"mailpipe/internal/validation"

	"github.com/sirupsen/logrus"
)

// sseSink writes server-sent-event frames to one HTTP response. Frames are
// `data: <json>` lines separated by a blank line.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func (s *sseSink) Send(ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sse sink closed")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ServeSSE returns the handler for the push subscription endpoint. The
// connection stays open until the client disconnects or the registry removes
// it; cleanup runs on every exit path.
func ServeSSE(registry *Registry, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fingerprint := r.URL.Query().Get("fingerprint")
		if err := validation.ValidateFingerprint(fingerprint); err != nil {
			http.Error(w, "Invalid fingerprint", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)

		conn, err := registry.Subscribe(fingerprint, &sseSink{w: w, flusher: flusher})
		if err != nil {
			logger.WithError(err).WithField("fingerprint", fingerprint).
				Warn("Push subscription failed before first write")
			return
		}
		defer registry.Unsubscribe(conn.ID)

		<-r.Context().Done()
	}
}
