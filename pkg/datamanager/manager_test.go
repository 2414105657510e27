package datamanager

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateCacheReplacesSnapshotOnSuccess(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(int(status.Load()))
		_, _ = io.WriteString(w, `{"kpi":[1,2,3]}`)
	}))
	defer srv.Close()

	m := NewHTTPManager(srv.URL, srv.Client())
	assert.Nil(t, m.Snapshot())

	ok, err := m.UpdateCache(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	snap := m.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, `{"kpi":[1,2,3]}`, string(snap.Payload))
	assert.Equal(t, `"v1"`, snap.ETag)
	assert.False(t, snap.FetchedAt.IsZero())

	status.Store(http.StatusBadGateway)
	ok, err = m.UpdateCache(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Same(t, snap, m.Snapshot())
}

func TestUpdateCacheErrors(t *testing.T) {
	_, err := NewHTTPManager("", nil).UpdateCache(context.Background())
	assert.True(t, errors.Is(err, ErrSourceNotConfigured))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ok, err := NewHTTPManager(url, nil).UpdateCache(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestSourceClientSendsBearerToken(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, "{}")
	}))
	defer srv.Close()

	client := NewSourceClient(context.Background(), "tok-123", 5*time.Second)
	ok, err := NewHTTPManager(srv.URL, client).UpdateCache(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Bearer tok-123", auth.Load())

	plain := NewSourceClient(context.Background(), "", 5*time.Second)
	assert.Equal(t, 5*time.Second, plain.Timeout)
}
