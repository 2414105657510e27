package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpibot/pkg/commands"
	"kpibot/pkg/config"
	"kpibot/pkg/platform"
	"kpibot/pkg/server"
)

type fakePlatform struct {
	mu       sync.Mutex
	webhooks []string
	secrets  []string
	deleted  int
	messages []string
	sent     chan string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{sent: make(chan string, 16)}
}

func (f *fakePlatform) SendMessage(_ context.Context, _ int64, text string, _ *platform.Keyboard) error {
	f.mu.Lock()
	f.messages = append(f.messages, text)
	f.mu.Unlock()
	f.sent <- text
	return nil
}

func (f *fakePlatform) SetWebhook(_ context.Context, url, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks = append(f.webhooks, url)
	f.secrets = append(f.secrets, secret)
	return nil
}

func (f *fakePlatform) DeleteWebhook(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return nil
}

func (f *fakePlatform) snapshot() (webhooks []string, deleted int, messages []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.webhooks...), f.deleted, append([]string(nil), f.messages...)
}

type fakeData struct {
	ok    atomic.Bool
	calls atomic.Int32
}

func (f *fakeData) UpdateCache(context.Context) (bool, error) {
	f.calls.Add(1)
	return f.ok.Load(), nil
}

func testConfig(t *testing.T, extra map[string]string) *config.Config {
	t.Helper()
	vars := map[string]string{
		"HOST":               "127.0.0.1",
		"PORT":               "0",
		"TELEGRAM_BOT_TOKEN": "123456789:AAEhBOweik6ad6PsVMRxjeQKcn3pHzYHw2s",
		"TIMEZONE":           "UTC",
		"UPDATE_COOLDOWN":    "0s",
		"SHUTDOWN_TIMEOUT":   "5s",
	}
	for k, v := range extra {
		vars[k] = v
	}
	cfg, err := config.LoadFrom(vars)
	require.NoError(t, err)
	return cfg
}

type running struct {
	app    *App
	cancel context.CancelFunc
	done   chan error
	once   sync.Once
}

func start(t *testing.T, cfg *config.Config, client platform.Client, dm *fakeData) *running {
	t.Helper()
	a, err := New(cfg, client, dm)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-a.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("app exited before ready: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("app not ready")
	}
	r := &running{app: a, cancel: cancel, done: done}
	t.Cleanup(func() { r.stop(t) })
	return r
}

func (r *running) stop(t *testing.T) {
	r.once.Do(func() {
		r.cancel()
		select {
		case err := <-r.done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("app did not stop")
		}
	})
}

func (r *running) url(path string) string {
	return "http://" + r.app.Addr().String() + path
}

func postUpdate(t *testing.T, url, text, secret string) {
	t.Helper()
	body := `{"update_id":77,"message":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"` + text + `"}}`
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	if secret != "" {
		req.Header.Set(server.SecretHeader, secret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func waitMessage(t *testing.T, f *fakePlatform) string {
	t.Helper()
	select {
	case msg := <-f.sent:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message sent")
		return ""
	}
}

func TestStartupWithoutURLServesHealthOnly(t *testing.T) {
	client := newFakePlatform()
	dm := &fakeData{}
	r := start(t, testConfig(t, nil), client, dm)

	assert.Equal(t, StateServing, r.app.State())
	assert.Equal(t, int32(1), dm.calls.Load())

	resp, err := http.Get(r.url("/health"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	webhooks, _, _ := client.snapshot()
	assert.Empty(t, webhooks)
}

func TestStartupRegistersWebhookAndShutdownRemovesIt(t *testing.T) {
	client := newFakePlatform()
	dm := &fakeData{}
	dm.ok.Store(true)
	r := start(t, testConfig(t, map[string]string{
		"RAILWAY_STATIC_URL": "https://bot.example.com",
		"WEBHOOK_SECRET":     "s3cret",
	}), client, dm)

	webhooks, deleted, _ := client.snapshot()
	assert.Equal(t, []string{"https://bot.example.com/webhook"}, webhooks)
	assert.Equal(t, []string{"s3cret"}, client.secrets)
	assert.Equal(t, 0, deleted)

	r.stop(t)
	assert.Equal(t, StateStopped, r.app.State())
	_, deleted, _ = client.snapshot()
	assert.Equal(t, 1, deleted)
}

func TestWebhookStartSendsGreeting(t *testing.T) {
	client := newFakePlatform()
	r := start(t, testConfig(t, nil), client, &fakeData{})

	postUpdate(t, r.url("/webhook"), "/start", "")
	assert.Equal(t, commands.TextGreeting, waitMessage(t, client))

	_, _, messages := client.snapshot()
	assert.Len(t, messages, 1)
}

func TestWebhookUpdateRefreshesOnce(t *testing.T) {
	for _, tc := range []struct {
		ok   bool
		want string
	}{
		{true, commands.TextUpdateOK},
		{false, commands.TextUpdateFailed},
	} {
		client := newFakePlatform()
		dm := &fakeData{}
		dm.ok.Store(tc.ok)
		r := start(t, testConfig(t, nil), client, dm)

		postUpdate(t, r.url("/webhook"), "/update", "")
		assert.Equal(t, tc.want, waitMessage(t, client))
		// one startup refresh plus the on-demand one
		assert.Equal(t, int32(2), dm.calls.Load())

		r.stop(t)
		_, _, messages := client.snapshot()
		assert.Len(t, messages, 1)
	}
}

func TestRunFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	cfg := testConfig(t, map[string]string{"PORT": strconv.Itoa(port)})
	dm := &fakeData{}
	a, err := New(cfg, newFakePlatform(), dm)
	require.NoError(t, err)

	err = a.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateStopped, a.State())
	assert.Equal(t, int32(0), dm.calls.Load())
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestNewRejectsBadTimezone(t *testing.T) {
	cfg := testConfig(t, map[string]string{"TIMEZONE": "Mars/Olympus"})
	_, err := New(cfg, newFakePlatform(), &fakeData{})
	assert.Error(t, err)
}
