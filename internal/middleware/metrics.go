package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sheet-tracker/backend/internal/infrastructure"
)

// unmeteredRoutes are probes and scrapes that would otherwise dominate the request counts
var unmeteredRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// MetricsMiddleware records request duration and count per route
func MetricsMiddleware(metrics *infrastructure.TelemetryMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if unmeteredRoutes[route] {
			return
		}
		if route == "" {
			route = "unknown"
		}

		role := c.GetString(RoleKey)
		if role == "" {
			role = "anonymous"
		}

		opt := metric.WithAttributes(
			attribute.String("http.request.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", c.Writer.Status()),
			attribute.String("user.role", role),
		)
		ctx := c.Request.Context()
		metrics.HTTPRequestDuration.Record(ctx, time.Since(start).Seconds(), opt)
		metrics.HTTPRequestCount.Add(ctx, 1, opt)
	}
}
