package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mailpipe/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSESink_FrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := &sseSink{w: rec, flusher: rec}

	err := sink.Send(models.Event{Type: models.EventPing, Timestamp: "2026-08-28T12:00:00Z"})
	require.NoError(t, err)

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "data: "))
	assert.True(t, strings.HasSuffix(body, "\n\n"))

	var ev models.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(body, "data: "))), &ev))
	assert.Equal(t, models.EventPing, ev.Type)
	assert.True(t, rec.Flushed)
}

func TestSSESink_SendAfterClose(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := &sseSink{w: rec, flusher: rec}

	require.NoError(t, sink.Close())
	assert.Error(t, sink.Send(models.Event{Type: models.EventPing}))
}

func TestServeSSE_InvalidFingerprint(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	handler := ServeSSE(NewRegistry(DefaultConfig(), logger), logger)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stream?fingerprint=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeSSE_DeliversConnectedFrame(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	registry := NewRegistry(DefaultConfig(), logger)

	server := httptest.NewServer(ServeSSE(registry, logger))
	defer server.Close()

	resp, err := http.Get(server.URL + "?fingerprint=fingerprint-1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)

	frame := string(buf[:n])
	require.True(t, strings.HasPrefix(frame, "data: "))

	var ev models.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(frame, "data: "))), &ev))
	assert.Equal(t, models.EventConnected, ev.Type)
	assert.Equal(t, 1, registry.ConnectionCount())
}
