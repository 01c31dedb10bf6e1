package logger

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/scalehq/entitlements/internal/observability/obscontext"
	"go.uber.org/zap"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) string
}

// GinMiddleware logs one line per request after the handler chain runs.
// The request id is propagated through the context so downstream logs and
// error responses correlate with this line.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-Id", requestID)

		c.Next()

		status := c.Writer.Status()
		fields := requestFields(c, status, start)
		if lastErr := c.Errors.Last(); lastErr != nil {
			code := ""
			if cfg.ErrorClassifier != nil {
				code = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields, zap.String("error_code", code))
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		log := FromContext(c.Request.Context())
		write := log.Info
		if status >= 500 {
			write = log.Error
		} else if status >= 400 {
			write = log.Warn
		}
		write("http.request", fields...)
	}
}

func requestFields(c *gin.Context, status int, start time.Time) []zap.Field {
	// FullPath is empty for unmatched routes (404s); keep a stable label
	// so dashboards can group them.
	route := c.FullPath()
	if strings.TrimSpace(route) == "" {
		route = "unknown"
	}
	return []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
}

func ensureRequestID(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader("X-Request-Id"))
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	return id
}
