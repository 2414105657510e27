package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mymmrac/telego"

	"kpibot/pkg/bus"
	"kpibot/pkg/logger"
	"kpibot/pkg/platform"
)

const (
	SecretHeader    = telego.WebhookSecretTokenHeader
	maxUpdateBytes  = 1 << 20
	readHeaderLimit = 10 * time.Second
)

type Options struct {
	WebhookPath string
	Secret      string
	// BotUsername drops commands addressed to other bots.
	BotUsername string
}

// Server is the HTTP surface: liveness probes and the webhook intake.
// Accepted updates are published to the queue and acknowledged at once.
type Server struct {
	opts    Options
	queue   *bus.Queue
	handler http.Handler
	server  *http.Server
}

func NewServer(queue *bus.Queue, opts Options) *Server {
	if opts.WebhookPath == "" {
		opts.WebhookPath = "/webhook"
	}
	s := &Server{opts: opts, queue: queue}
	s.handler = s.routes()
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderLimit,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	// telego reads the body and hands it to acceptUpdate; a handler error
	// becomes a 500 so the update is never acknowledged.
	intake := http.NewServeMux()
	if err := telego.WebhookHTTPServeMux(intake, "POST "+s.opts.WebhookPath)(s.acceptUpdate); err != nil {
		logger.ErrorCF("server", "Failed to mount webhook handler", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("POST "+s.opts.WebhookPath, s.verify(intake))
	mux.HandleFunc(s.opts.WebhookPath, s.handleWrongMethod)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Serve blocks until the server is shut down. A clean shutdown returns nil.
func (s *Server) Serve(ln net.Listener) error {
	logger.InfoCF("server", "Serving HTTP", map[string]interface{}{
		logger.FieldAddr: ln.Addr().String(),
		"webhook_path":   s.opts.WebhookPath,
	})
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	logger.InfoC("server", "Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Bot is running"))
}

func (s *Server) handleWrongMethod(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

// verify checks the secret header in constant time and caps the body size
// before the request reaches the telego intake.
func (s *Server) verify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			logger.WarnCF("server", "Webhook secret mismatch", map[string]interface{}{
				"remote": r.RemoteAddr,
			})
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUpdateBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) acceptUpdate(_ context.Context, body []byte) error {
	ev, err := platform.ParseUpdate(body, s.opts.BotUsername)
	if err != nil {
		logger.DebugCF("server", "Malformed update", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		return err
	}

	logger.DebugCF("server", "Update received", map[string]interface{}{
		logger.FieldUpdateID: ev.UpdateID,
		logger.FieldChatID:   ev.ChatID,
		logger.FieldCommand:  ev.Discriminator,
		logger.FieldPreview:  preview(ev.Text, 50),
	})

	// The platform retries non-2xx answers, so a full queue is still acked.
	s.queue.Publish(ev)
	return nil
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.Secret == "" {
		return true
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Secret)) == 1
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
