package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mailpipe/internal/models"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeWebSocket_InvalidFingerprint(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	handler := ServeWebSocket(NewRegistry(DefaultConfig(), logger), logger)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stream/ws?fingerprint=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeWebSocket_DeliversEvents(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	registry := NewRegistry(DefaultConfig(), logger)

	server := httptest.NewServer(ServeWebSocket(registry, logger))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, server.URL+"?fingerprint=fingerprint-1", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var connected models.Event
	require.NoError(t, wsjson.Read(ctx, conn, &connected))
	assert.Equal(t, models.EventConnected, connected.Type)

	sent := registry.NotifyEmail("fingerprint-1", models.EmailNotification{
		EmailID: "em-1", Subject: "Hi",
	})
	assert.Equal(t, 1, sent)

	var received models.Event
	require.NoError(t, wsjson.Read(ctx, conn, &received))
	assert.Equal(t, models.EventEmailReceived, received.Type)
}
