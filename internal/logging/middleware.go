package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader はリクエストIDを受け渡すヘッダー名です。
	RequestIDHeader = "X-Request-Id"

	contextRequestIDKey = "logging.request_id"
)

// RequestID は X-Request-Id を引き継ぐか新規発行し、レスポンスにも付与します。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(contextRequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFrom は RequestID ミドルウェアが設定したIDを返します。
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(contextRequestIDKey)
}

// FromContext はリクエストIDを付与したロガーを返します。
func FromContext(c *gin.Context, logger *zap.Logger) *zap.Logger {
	if id := RequestIDFrom(c); id != "" {
		return logger.With(zap.String("request_id", id))
	}
	return logger
}

// AccessLog はリクエスト完了時にアクセスログを1行出力します。
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			Event("http_request"),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			DurationMS("duration_ms", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		l := FromContext(c, logger)
		if status >= 500 {
			l.Error("request completed", fields...)
			return
		}
		l.Info("request completed", fields...)
	}
}
