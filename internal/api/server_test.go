package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/shoppinglist/internal/conf"
	"github.com/tphakala/shoppinglist/internal/logger"
)

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, func(c *conf.Settings) { c.Cache.Version = "shoppinglist-v3" })
	rec := get(t, s.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "shoppinglist-v3", body.CacheVersion)
	assert.Positive(t, body.Goroutines)
	assert.False(t, body.Time.IsZero())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "shoppinglist_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(4)

	settings := conf.Template()
	s, err := New(settings, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil),
		WithSiteFS(testSiteFS()),
		WithGatherer(reg))
	require.NoError(t, err)

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shoppinglist_test_total 4")
}

func TestNew_InvalidCacheSettings(t *testing.T) {
	t.Parallel()

	settings := conf.Template()
	settings.Cache.Version = ""
	_, err := New(settings, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	require.ErrorIs(t, err, conf.ErrNotConfigured)
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, func(c *conf.Settings) { c.Server.RateLimit = 1 })

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
		req.RemoteAddr = "192.0.2.10:5000"
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes[1:], http.StatusTooManyRequests)
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, func(c *conf.Settings) {
		c.Server.Listen = "127.0.0.1:0"
		c.Server.ShutdownTimeout = conf.Duration(time.Second)
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_StartListenError(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, func(c *conf.Settings) { c.Server.Listen = "256.0.0.1:bad" })
	err := s.Start(t.Context())
	require.Error(t, err)
}
