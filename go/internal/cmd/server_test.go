package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mcdev12/countdown/go/internal/config"
	"github.com/mcdev12/countdown/go/internal/countdown"
	"github.com/mcdev12/countdown/go/internal/countdown/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) Ping(ctx context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, mutate func(cfg *config.Config), repo countdown.Repository) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Driver = config.DriverMemory
	if mutate != nil {
		mutate(cfg)
	}
	if repo == nil {
		repo = store.NewMemoryStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	services, err := setupServices(ctx, cfg, repo)
	require.NoError(t, err)
	services.Run(ctx)

	srv := httptest.NewServer(setupServer(cfg, services).Handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		services.Close()
	})
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func post(t *testing.T, srv *httptest.Server, path string) int {
	t.Helper()
	resp, err := srv.Client().Post(srv.URL+path, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	status, body := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	status, body = get(t, srv, "/timer")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"running":false}`, body)

	status, body = get(t, srv, "/ws/stats")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"total_connections":0`)

	assert.Equal(t, http.StatusOK, post(t, srv, "/reset"))

	status, body = get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "countdown_resets_total")
}

func TestServer_Ready(t *testing.T) {
	t.Run("store reachable", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)
		status, body := get(t, srv, "/ready")
		assert.Equal(t, http.StatusOK, status)

		var hs HealthStatus
		require.NoError(t, json.Unmarshal([]byte(body), &hs))
		assert.True(t, hs.Healthy)
		assert.True(t, hs.StoreConnected)
		assert.Nil(t, hs.NATSConnected)
		assert.Equal(t, countdown.StateIdle, hs.State)
	})

	t.Run("store down", func(t *testing.T) {
		srv := newTestServer(t, nil, failingStore{store.NewMemoryStore()})
		status, body := get(t, srv, "/ready")
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Contains(t, body, "store ping failed")
	})
}

func TestServer_AdminRateLimit(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.AdminRateLimit = 2
	}, nil)

	assert.Equal(t, http.StatusOK, post(t, srv, "/reset"))
	assert.Equal(t, http.StatusOK, post(t, srv, "/reset"))
	assert.Equal(t, http.StatusTooManyRequests, post(t, srv, "/reset"))

	// Reads are never limited.
	for i := 0; i < 5; i++ {
		status, _ := get(t, srv, "/timer")
		assert.Equal(t, http.StatusOK, status)
	}
}

func TestServer_CORS(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.AllowedOrigins = []string{"https://viewer.example"}
	}, nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/timer", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://viewer.example")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://viewer.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSetupStore(t *testing.T) {
	ctx := context.Background()

	repo, closeFn, err := setupStore(ctx, config.StoreConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	closeFn()
	assert.IsType(t, &store.MemoryStore{}, repo)

	sqliteCfg := config.Default().Store
	sqliteCfg.SQLite.Path = t.TempDir() + "/countdown.db"
	repo, closeFn, err = setupStore(ctx, sqliteCfg)
	require.NoError(t, err)
	defer closeFn()
	assert.NoError(t, repo.Ping(ctx))

	_, _, err = setupStore(ctx, config.StoreConfig{Driver: "etcd"})
	assert.True(t, err != nil && strings.Contains(err.Error(), "etcd"))
}

func TestSetupLogging(t *testing.T) {
	var sb strings.Builder
	setupLogging("warn", &sb)
	t.Cleanup(func() { setupLogging("info", io.Discard) })
	assert.NotPanics(t, func() { setupLogging("nonsense", &sb) })
}
