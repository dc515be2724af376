package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), AccessLog(logger))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFrom(c))
	})
	router.GET("/boom", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})
	return router
}

func TestRequestIDGenerated(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := newTestRouter(zap.New(core))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	require.Equal(t, id, rec.Body.String())

	entries := logs.FilterField(zap.String("event", "http_request")).All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	require.Equal(t, id, ctx["request_id"])
	require.Equal(t, "/ping", ctx["path"])
	require.EqualValues(t, http.StatusOK, ctx["status"])
}

func TestRequestIDPropagated(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	router := newTestRouter(zap.New(core))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	require.Equal(t, "req-123", rec.Body.String())
}

func TestAccessLogServerErrorLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := newTestRouter(zap.New(core))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
}

func TestNew(t *testing.T) {
	logger, err := New("debug", "console")
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = New("loud", "json")
	require.Error(t, err)

	_, err = New("info", "xml")
	require.Error(t, err)
}

func TestDurationMS(t *testing.T) {
	field := DurationMS("d", 1234567*time.Nanosecond)
	require.Equal(t, "d", field.Key)
	enc := zapcore.NewMapObjectEncoder()
	field.AddTo(enc)
	require.InDelta(t, 1.23, enc.Fields["d"], 0.0001)
}
