package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/api"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/shared/id"
)

const requestIDKey = "request_id"

// RequestID tags each request with a ULID, reusing the caller's
// X-Request-ID when present.
func RequestID(gen *id.Generator) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(api.RequestIDHeader)
		if rid == "" {
			rid = gen.NewRequestID().String()
		}
		c.Set(requestIDKey, rid)
		c.Header(api.RequestIDHeader, rid)
		c.Next()
	}
}

// GetRequestID returns the request ID set by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger logs one line per request. Server errors log at Error, client
// errors at Warn and everything else at Debug.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", GetRequestID(c)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.Last().Error()))
		}

		switch {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		default:
			log.Debug("request served", fields...)
		}
	}
}
