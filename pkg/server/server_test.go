package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpibot/pkg/bus"
)

const startUpdate = `{"update_id":10,"message":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"/start"}}`

func newTestServer(secret string) (*Server, *bus.Queue) {
	q := bus.NewQueue(10)
	return NewServer(q, Options{WebhookPath: "/webhook", Secret: secret}), q
}

func post(h http.Handler, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLivenessEndpoints(t *testing.T) {
	s, _ := newTestServer("")
	h := s.Handler()

	for _, path := range []string{"/", "/health"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Body.String(), path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookPublishesParsedUpdate(t *testing.T) {
	s, q := newTestServer("")

	rec := post(s.Handler(), startUpdate, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := q.Consume(ctx)
	require.True(t, ok)
	assert.Equal(t, 10, ev.UpdateID)
	assert.Equal(t, "/start", ev.Discriminator)
	assert.Equal(t, int64(42), ev.ChatID)
}

func TestWebhookRejections(t *testing.T) {
	s, q := newTestServer("s3cret")
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = post(h, startUpdate, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h, startUpdate, map[string]string{SecretHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/webhook", strings.NewReader(startUpdate)))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))

	// malformed bodies are never acknowledged
	rec = post(h, `{"update_id":`, map[string]string{SecretHeader: "s3cret"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = post(h, `{"message":{}}`, map[string]string{SecretHeader: "s3cret"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	huge := `{"update_id":1,"message":{"text":"` + strings.Repeat("x", maxUpdateBytes) + `"}}`
	rec = post(h, huge, map[string]string{SecretHeader: "s3cret"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	assert.Equal(t, 0, q.Len())

	rec = post(h, startUpdate, map[string]string{SecretHeader: "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, q.Len())
}

func TestWebhookDropsCommandsForOtherBots(t *testing.T) {
	q := bus.NewQueue(10)
	s := NewServer(q, Options{WebhookPath: "/hook", BotUsername: "kpi_bot"})

	body := `{"update_id":11,"message":{"message_id":1,"date":0,"chat":{"id":-100,"type":"group"},"text":"/start@SomeOtherBot"}}`
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := q.Consume(ctx)
	require.True(t, ok)
	assert.Empty(t, ev.Discriminator)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "абв...", preview("абвгд", 3))
}
