package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"promopush/internal/logger"
	pkgerrors "promopush/pkg/errors"
	"promopush/pkg/logging"
	"promopush/pkg/metrics"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// LoggerMiddleware writes one access line per request and records it under the
// matched route so path parameters do not explode metric cardinality.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		elapsed := time.Since(started)
		status := c.Writer.Status()
		metrics.ObserveHTTPRequest(c.Request.Method, c.FullPath(), status, elapsed)

		fields := []interface{}{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.RequestURI(),
			"status", status,
			"latency_ms", elapsed.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			fields = append(fields, "error", errs)
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.ErrorwCtx(ctx, "ops request failed", fields...)
		case status >= 400:
			log.WarnwCtx(ctx, "ops request rejected", fields...)
		default:
			log.DebugwCtx(ctx, "ops request", fields...)
		}
	}
}

// RecoveryMiddleware turns a handler panic into the standard 500 error body.
func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		err := pkgerrors.RecoverPanic(recovered)
		log.ErrorwCtx(c.Request.Context(), "ops handler panicked",
			"error", err,
			"route", c.FullPath(),
			"method", c.Request.Method,
		)
		// stack and panic details stay in the log
		c.AbortWithStatusJSON(pkgerrors.ToHTTPStatus(err), pkgerrors.ToErrorResponse(pkgerrors.ErrInternal))
	})
}

// RequestIDMiddleware reuses the caller's X-Request-ID or mints one, and stores it in
// the request context for *wCtx log lines.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
