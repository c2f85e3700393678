package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paylane/concierge/engine/core"
	"github.com/paylane/concierge/pkg/logger"
)

const correlationIDKey = "correlation_id"

// CorrelationIDMiddleware reads the correlation header, generating a fresh ID
// when the caller sent none, and echoes it back on the response.
func CorrelationIDMiddleware(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(header)
		if correlationID == "" {
			correlationID = core.NewCorrelationID()
		}
		c.Set(correlationIDKey, correlationID)
		c.Writer.Header().Set(header, correlationID)
		c.Next()
	}
}

// LoggerMiddleware injects a correlation-scoped logger into the request
// context and logs the request outcome.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		scoped := log.With(correlationIDKey, c.GetString(correlationIDKey))
		ctx := logger.ContextWithLogger(c.Request.Context(), scoped)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		scoped.Info("Request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
