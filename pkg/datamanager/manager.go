package datamanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"kpibot/pkg/logger"
)

var ErrSourceNotConfigured = errors.New("data source URL not configured")

const maxPayloadBytes = 32 << 20

// Snapshot is the last successfully fetched dataset.
type Snapshot struct {
	Payload   []byte
	FetchedAt time.Time
	ETag      string
}

// HTTPManager refreshes the cached dataset from an HTTP source. The cache
// is replaced atomically only after a complete successful fetch.
type HTTPManager struct {
	sourceURL string
	client    *http.Client
	current   atomic.Pointer[Snapshot]
}

// NewSourceClient returns the HTTP client used against the data source.
// A non-empty token is sent as a bearer credential on every request.
func NewSourceClient(ctx context.Context, token string, timeout time.Duration) *http.Client {
	if token == "" {
		return &http.Client{Timeout: timeout}
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	client.Timeout = timeout
	return client
}

func NewHTTPManager(sourceURL string, client *http.Client) *HTTPManager {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPManager{sourceURL: sourceURL, client: client}
}

// UpdateCache fetches the source. A non-2xx answer is a soft failure
// (false, nil); transport problems are returned as errors.
func (m *HTTPManager) UpdateCache(ctx context.Context) (bool, error) {
	if m.sourceURL == "" {
		return false, ErrSourceNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.sourceURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.WarnCF("datamanager", "Source returned non-success status", map[string]interface{}{
			"status": resp.StatusCode,
		})
		return false, nil
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return false, fmt.Errorf("failed to read source: %w", err)
	}
	if len(payload) > maxPayloadBytes {
		return false, fmt.Errorf("source payload exceeds %d bytes", maxPayloadBytes)
	}

	m.current.Store(&Snapshot{
		Payload:   payload,
		FetchedAt: time.Now(),
		ETag:      resp.Header.Get("ETag"),
	})
	logger.DebugCF("datamanager", "Snapshot replaced", map[string]interface{}{
		"bytes": len(payload),
	})
	return true, nil
}

// Snapshot returns the current dataset, or nil before the first success.
func (m *HTTPManager) Snapshot() *Snapshot {
	return m.current.Load()
}
