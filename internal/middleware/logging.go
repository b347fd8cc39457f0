package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sheet-tracker/backend/internal/domain"
)

const (
	// RequestIDKey is the context key for the request ID
	RequestIDKey = "requestID"
)

// LoggingMiddleware logs every request with a request ID, reusing the caller's X-Request-ID when sent
func LoggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Generate request ID unless the caller sent one
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		// Create request-scoped logger
		reqLogger := logger.With(
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		)

		// Process request
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		logFields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.Int("response_size", c.Writer.Size()),
		}

		if c.Request.URL.RawQuery != "" {
			logFields = append(logFields, zap.String("query", c.Request.URL.RawQuery))
		}

		if userID, ok := GetUserID(c); ok {
			logFields = append(logFields, zap.String("user_id", userID))
		}

		if len(c.Errors) > 0 {
			logFields = append(logFields, zap.Strings("errors", c.Errors.Errors()))
		}

		// Log based on status code
		switch {
		case status >= 500:
			reqLogger.Error("Server error", logFields...)
		case status >= 400:
			reqLogger.Warn("Client error", logFields...)
		default:
			reqLogger.Info("Request completed", logFields...)
		}
	}
}

// GetRequestID extracts the request ID from the gin context
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// RecoveryMiddleware creates a recovery middleware that recovers from panics
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := GetRequestID(c)

				logger.Error("Panic recovered",
					zap.String("request_id", requestID),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", err),
					zap.Stack("stack"),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      domain.ErrInternalServer.Error(),
					"request_id": requestID,
				})
			}
		}()
		c.Next()
	}
}
