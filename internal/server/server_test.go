package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentscore/internal/jsonx"
	"agentscore/internal/observability"
	"agentscore/internal/worker"
)

type staticStats worker.Stats

func (s staticStats) Stats() worker.Stats { return worker.Stats(s) }

func TestHealthAndStatus(t *testing.T) {
	srv := New(Config{}, staticStats{Identity: "0xabc", Reputation: 52, TasksCompleted: 1}, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, jsonx.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats worker.Stats
	require.NoError(t, jsonx.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "0xabc", stats.Identity)
	assert.Equal(t, 52, stats.Reputation)
	assert.Equal(t, 1, stats.TasksCompleted)
}

func TestMetricsRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	New(Config{}, staticStats{}, nil, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	collector, err := observability.NewMetricsCollector(observability.MetricsConfig{Enabled: true})
	require.NoError(t, err)
	collector.RecordReputation(context.Background(), 61)

	rec = httptest.NewRecorder()
	New(Config{}, staticStats{}, collector.Handler(), nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "agentscore_reputation")
}

func TestCORSHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	New(Config{}, staticStats{}, nil, nil).Handler().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeStopsOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(Config{}, staticStats{Identity: "0xabc"}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, listener) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + listener.Addr().String() + "/health")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
