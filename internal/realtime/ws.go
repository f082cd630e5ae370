package realtime

import (
	"context"
	"net/http"
	"time"

	"mailpipe/internal/models"
	"mailpipe/internal/validation"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

const wsWriteTimeout = 5 * time.Second

// wsSink writes events as JSON text frames on one WebSocket connection.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(ev models.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, ev)
}

func (s *wsSink) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "closing")
}

// ServeWebSocket returns the handler for the WebSocket push endpoint. It has
// the same event semantics as the SSE endpoint; inbound frames only refresh
// liveness.
func ServeWebSocket(registry *Registry, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fingerprint := r.URL.Query().Get("fingerprint")
		if err := validation.ValidateFingerprint(fingerprint); err != nil {
			http.Error(w, "Invalid fingerprint", http.StatusBadRequest)
			return
		}

		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.WithError(err).Debug("WebSocket upgrade failed")
			return
		}

		conn, err := registry.Subscribe(fingerprint, &wsSink{conn: ws})
		if err != nil {
			logger.WithError(err).WithField("fingerprint", fingerprint).
				Warn("WebSocket subscription failed before first write")
			_ = ws.Close(websocket.StatusInternalError, "subscribe failed")
			return
		}
		defer registry.Unsubscribe(conn.ID)

		// Inbound frames carry no commands; reading keeps the connection
		// alive and surfaces the close.
		for {
			if _, _, err := ws.Read(r.Context()); err != nil {
				return
			}
			registry.Touch(conn.ID)
		}
	}
}
