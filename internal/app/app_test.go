package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedispatch/internal/config"
	"ridedispatch/internal/logger"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Maps.APIKey = ""
	cfg.Metrics.Enabled = true
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewMemoryWiring(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := New(context.Background(), memoryConfig(t), logger.NopLogger{})
	require.NoError(t, err)
	defer a.Close()

	units, err := a.Units.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, units, 25)

	h := a.Handler()
	for _, path := range []string{"/health", "/metrics", "/api/units"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	// Weather is disabled by default.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/weather?latitude=15.8&longitude=78.0", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSeedIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	n, err := a.Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	units, err := a.Units.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, units, 25)
}

func TestServeStopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := New(context.Background(), memoryConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNewRejectsUnreachablePostgres(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Storage.Backend = "postgres"
	cfg.DB.DSN = "postgres://nobody@127.0.0.1:1/none?connect_timeout=1"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := New(ctx, cfg, nil)
	assert.Error(t, err)
}
