package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-bot/internal/config"
	"referral-bot/internal/storage"
)

func newTestServer(t *testing.T) (*Server, chan telego.Update) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	updates := make(chan telego.Update, 4)
	cfg := &config.Config{WebhookSecret: "secret-token", HTTPPort: "0"}
	return New(cfg, store, updates), updates
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIndexReportsCounts(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "running", body["status"])
	assert.Contains(t, body, "users")
	assert.Contains(t, body, "pending_referrals")
}

func TestWebhookRejectsWrongToken(t *testing.T) {
	srv, updates := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/wrong-token",
		strings.NewReader(`{"update_id":1}`))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, updates)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	srv, updates := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/secret-token",
		strings.NewReader(`{not json`))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, updates)
}

func TestWebhookQueuesUpdate(t *testing.T) {
	srv, updates := newTestServer(t)

	payload := `{"update_id":77,"message":{"message_id":1,"date":0,"chat":{"id":5,"type":"private"},"text":"/start"}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/secret-token", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, updates, 1)

	update := <-updates
	assert.Equal(t, 77, update.UpdateID)
	require.NotNil(t, update.Message)
	assert.Equal(t, "/start", update.Message.Text)
}

func TestWebhookShedsWhenQueueFull(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	updates := make(chan telego.Update) // unbuffered, nothing draining
	srv := New(&config.Config{WebhookSecret: "secret-token"}, store, updates)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/secret-token",
		strings.NewReader(`{"update_id":1}`))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
