package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedispatch/internal/logger"
)

type captureLogger struct {
	logger.NopLogger
	mu     sync.Mutex
	errors []string
	fields []map[string]any
}

func (l *captureLogger) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *captureLogger) Debugw(_ string, f map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fields = append(l.fields, f)
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := &captureLogger{}
	r := gin.New()
	r.Use(Recovery(log))
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
	require.Len(t, log.errors, 1)
	assert.Contains(t, log.errors[0], "kaboom")
}

func TestLoggingRecordsRouteAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := &captureLogger{}
	r := gin.New()
	r.Use(Logging(log))
	r.GET("/api/trips/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/trips/abc", nil))

	require.Len(t, log.fields, 1)
	assert.Equal(t, "/api/trips/:id", log.fields[0]["path"])
	assert.Equal(t, http.StatusTeapot, log.fields[0]["status"])
	assert.Equal(t, http.MethodGet, log.fields[0]["method"])
}
