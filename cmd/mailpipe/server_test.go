package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mailpipe/internal/forwarder"
	"mailpipe/internal/models"
	"mailpipe/internal/realtime"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	registry := realtime.NewRegistry(realtime.DefaultConfig(), logger)
	cfg := &models.Config{
		Webhook: models.WebhookConfig{
			URL:    "http://app.internal/api/inbound",
			Secret: testSecret,
		},
	}
	return NewServer(cfg, registry, logger)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t)
	rec := doJSON(t, s, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
}

func TestHeartbeat(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/stream/heartbeat", map[string]interface{}{
		"fingerprint": "fingerprint-1",
		"operation":   "upload",
		"progress":    42,
		"message":     "uploading",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["acknowledged"])
	assert.Equal(t, float64(0), body["sentToClients"])
	assert.NotEmpty(t, body["timestamp"])

	ops := s.registry.ActiveOperations("fingerprint-1")
	require.Len(t, ops, 1)
	assert.Equal(t, 42, ops[0].Progress)
}

func TestHeartbeat_Validation(t *testing.T) {
	s := testServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"short fingerprint", map[string]interface{}{"fingerprint": "abc", "operation": "upload", "progress": 10}},
		{"missing operation", map[string]interface{}{"fingerprint": "fingerprint-1", "progress": 10}},
		{"progress out of range", map[string]interface{}{"fingerprint": "fingerprint-1", "operation": "upload", "progress": 150}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/v1/stream/heartbeat", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPoll_NoUpdates(t *testing.T) {
	s := testServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/stream/poll?fingerprint=fingerprint-1", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["hasUpdates"])
	assert.Nil(t, body["data"])
}

func TestPoll_InvalidFingerprint(t *testing.T) {
	s := testServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/stream/poll?fingerprint=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPoll_InvalidLastUpdate(t *testing.T) {
	s := testServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/stream/poll?fingerprint=fingerprint-1&lastUpdate=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotify_RequiresSecret(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/notify", map[string]interface{}{
		"fingerprint": "fingerprint-1",
		"emailId":     "em-1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/notify", map[string]interface{}{
		"fingerprint": "fingerprint-1",
		"emailId":     "em-1",
	}, map[string]string{forwarder.SecretHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotify_ThenPoll(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/notify", map[string]interface{}{
		"fingerprint":     "fingerprint-1",
		"emailId":         "em-1",
		"fromAddress":     "alice@example.com",
		"subject":         "Hi",
		"attachmentCount": 2,
	}, map[string]string{forwarder.SecretHeader: testSecret})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(0), body["sentToClients"])

	rec = doJSON(t, s, http.MethodGet, "/api/v1/stream/poll?fingerprint=fingerprint-1&lastUpdate=0", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	require.Equal(t, true, body["hasUpdates"])

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "email_received", data["type"])
	payload := data["data"].(map[string]interface{})
	assert.Equal(t, "em-1", payload["emailId"])
	assert.Equal(t, "Hi", payload["subject"])
	assert.Equal(t, float64(2), payload["attachmentCount"])
	assert.NotEmpty(t, payload["receivedAt"])
}

func TestSSEEndpoint_InvalidFingerprint(t *testing.T) {
	s := testServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/stream?fingerprint=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
